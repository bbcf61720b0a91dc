package domain

import "math"

// Geodesy on a spherical earth. Epicentral distances in the teleseismic range
// relevant to SKS (85-140 degrees) differ from the ellipsoidal values by far
// less than the travel-time table resolution, so the spherical forms are used
// throughout.

const degToRad = math.Pi / 180

// GCArc returns the great-circle distance between two points in degrees,
// computed with the haversine form for numerical stability at small angles.
func GCArc(lat1, lon1, lat2, lon2 float64) float64 {
	phi1 := lat1 * degToRad
	phi2 := lat2 * degToRad
	dphi := (lat2 - lat1) * degToRad
	dlmb := (lon2 - lon1) * degToRad

	sinDphi := math.Sin(dphi / 2)
	sinDlmb := math.Sin(dlmb / 2)
	a := sinDphi*sinDphi + math.Cos(phi1)*math.Cos(phi2)*sinDlmb*sinDlmb
	return 2 * math.Asin(math.Min(1, math.Sqrt(a))) / degToRad
}

// Azimuth returns the initial bearing from point 1 to point 2 in degrees,
// clockwise from north in [0, 360).
func Azimuth(lat1, lon1, lat2, lon2 float64) float64 {
	phi1 := lat1 * degToRad
	phi2 := lat2 * degToRad
	dlmb := (lon2 - lon1) * degToRad

	y := math.Sin(dlmb) * math.Cos(phi2)
	x := math.Cos(phi1)*math.Sin(phi2) - math.Sin(phi1)*math.Cos(phi2)*math.Cos(dlmb)
	az := math.Atan2(y, x) / degToRad
	return math.Mod(az+360, 360)
}

// BackAzimuth returns the bearing from point 2 back to point 1 in degrees.
func BackAzimuth(lat1, lon1, lat2, lon2 float64) float64 {
	return Azimuth(lat2, lon2, lat1, lon1)
}

// DegreesToKM converts a great-circle arc in degrees to kilometers using the
// mean earth radius, matching the SAC DIST header convention.
func DegreesToKM(deg float64) float64 {
	const earthRadiusKM = 6371.0
	return deg * degToRad * earthRadiusKM
}

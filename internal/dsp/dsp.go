// Package dsp holds the time-series conditioning applied to waveforms
// before and after instrument response removal: mean and trend removal,
// cosine tapering, Butterworth bandpass filtering, and Fourier resampling.
package dsp

import (
	"fmt"
	"math"
	"math/cmplx"

	"gonum.org/v1/gonum/dsp/fourier"
)

// Demean subtracts the arithmetic mean in place.
func Demean(data []float64) {
	if len(data) == 0 {
		return
	}
	var sum float64
	for _, v := range data {
		sum += v
	}
	mean := sum / float64(len(data))
	for i := range data {
		data[i] -= mean
	}
}

// Detrend removes the least-squares linear trend in place.
func Detrend(data []float64) {
	n := len(data)
	if n < 2 {
		return
	}
	// Fit y = a + b*x by ordinary least squares over x = 0..n-1.
	var sx, sy, sxx, sxy float64
	for i, v := range data {
		x := float64(i)
		sx += x
		sy += v
		sxx += x * x
		sxy += x * v
	}
	fn := float64(n)
	b := (fn*sxy - sx*sy) / (fn*sxx - sx*sx)
	a := (sy - b*sx) / fn
	for i := range data {
		data[i] -= a + b*float64(i)
	}
}

// Taper applies a symmetric Hann taper covering the given fraction of the
// trace at each end. A fraction of 0.05 tapers 5% at the head and 5% at the
// tail; fractions above 0.5 mean a full Hann window.
func Taper(data []float64, fraction float64) {
	n := len(data)
	if n == 0 || fraction <= 0 {
		return
	}
	if fraction > 0.5 {
		fraction = 0.5
	}
	w := int(math.Round(fraction * float64(n)))
	if w < 1 {
		return
	}
	for i := 0; i < w; i++ {
		c := 0.5 * (1 - math.Cos(math.Pi*float64(i)/float64(w)))
		data[i] *= c
		data[n-1-i] *= c
	}
}

// biquad is a second-order IIR section in direct form II transposed.
type biquad struct {
	b0, b1, b2 float64
	a1, a2     float64
}

func (s *biquad) apply(data []float64) {
	var z1, z2 float64
	for i, x := range data {
		y := s.b0*x + z1
		z1 = s.b1*x + z2 - s.a1*y
		z2 = s.b2*x - s.a2*y
		data[i] = y
	}
}

// Bandpass filters the trace in place with a causal Butterworth bandpass of
// the given order (number of analog prototype poles). Corner frequencies are
// in Hz, delta is the sample spacing in seconds. Corners at or above the
// Nyquist frequency are rejected.
func Bandpass(data []float64, freqmin, freqmax, delta float64, order int) error {
	if order < 1 {
		return fmt.Errorf("bandpass: order %d out of range", order)
	}
	fs := 1 / delta
	nyq := fs / 2
	if freqmin <= 0 || freqmax <= freqmin {
		return fmt.Errorf("bandpass: invalid corners %g-%g Hz", freqmin, freqmax)
	}
	if freqmax >= nyq {
		return fmt.Errorf("bandpass: upper corner %g Hz at or above Nyquist %g Hz", freqmax, nyq)
	}

	// Pre-warped analog corners for the bilinear transform.
	wLo := 2 * fs * math.Tan(math.Pi*freqmin/fs)
	wHi := 2 * fs * math.Tan(math.Pi*freqmax/fs)
	w0 := math.Sqrt(wLo * wHi)
	bw := wHi - wLo

	// Butterworth lowpass prototype poles on the unit circle, then the
	// lowpass-to-bandpass substitution s -> (s^2 + w0^2) / (bw*s), which
	// splits each prototype pole into two analog poles.
	poles := make([]complex128, 0, 2*order)
	for k := 1; k <= order; k++ {
		theta := math.Pi * float64(2*k+order-1) / float64(2*order)
		p := cmplx.Exp(complex(0, theta))
		pb := complex(bw, 0) * p
		d := cmplx.Sqrt(pb*pb - complex(4*w0*w0, 0))
		poles = append(poles, (pb+d)/2, (pb-d)/2)
	}

	// Bilinear transform. Analog zeros at the origin map to z=1; the order
	// zeros at infinity map to z=-1.
	twoFs := complex(2*fs, 0)
	zpoles := make([]complex128, len(poles))
	for i, p := range poles {
		zpoles[i] = (twoFs + p) / (twoFs - p)
	}

	// Normalize to unit gain at the warped center frequency.
	theta0 := 2 * math.Atan(w0/(2*fs))
	z := cmplx.Exp(complex(0, theta0))
	h := complex(1, 0)
	for i := 0; i < order; i++ {
		h *= (z - 1) * (z + 1)
	}
	for _, p := range zpoles {
		h /= z - p
	}
	gain := 1 / cmplx.Abs(h)

	// Group conjugate pole pairs into biquads, each paired with one zero at
	// z=1 and one at z=-1 so the numerator is z^2 - 1.
	sections := make([]biquad, 0, order)
	for _, p := range zpoles {
		if imag(p) < 0 {
			continue
		}
		sections = append(sections, biquad{
			b0: 1, b1: 0, b2: -1,
			a1: -2 * real(p),
			a2: real(p)*real(p) + imag(p)*imag(p),
		})
	}

	for i := range sections {
		sections[i].apply(data)
	}
	for i := range data {
		data[i] *= gain
	}
	return nil
}

// Resample converts the trace to a new sampling rate by Fourier
// interpolation: the spectrum is truncated or zero-padded to the new length.
// Returns the resampled samples; the input is not modified.
func Resample(data []float64, delta, newRate float64) ([]float64, error) {
	n := len(data)
	if n == 0 {
		return nil, fmt.Errorf("resample: empty trace")
	}
	if newRate <= 0 {
		return nil, fmt.Errorf("resample: rate %g Hz out of range", newRate)
	}
	oldRate := 1 / delta
	m := int(math.Round(float64(n) * newRate / oldRate))
	if m < 2 {
		return nil, fmt.Errorf("resample: %d samples at %g Hz leave %d samples", n, newRate, m)
	}
	if m == n {
		out := make([]float64, n)
		copy(out, data)
		return out, nil
	}

	coeff := fourier.NewFFT(n).Coefficients(nil, data)
	newCoeff := make([]complex128, m/2+1)
	keep := len(coeff)
	if len(newCoeff) < keep {
		keep = len(newCoeff)
	}
	copy(newCoeff, coeff[:keep])

	out := fourier.NewFFT(m).Sequence(nil, newCoeff)
	scale := 1 / float64(n)
	for i := range out {
		out[i] *= scale
	}
	return out, nil
}

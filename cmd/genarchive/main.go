// Command genarchive generates a synthetic raw-data archive and matching
// event catalog for local development and testing: day-long SAC files with
// realistic headers for a handful of stations, plus events placed inside the
// SKS distance band. The output is deterministic for a given seed, so test
// runs are reproducible.
//
// Usage:
//
//	go run ./cmd/genarchive -out rawdata -catalog rawdata/catalog.csv
package main

import (
	"flag"
	"fmt"
	"log"
	"math"
	"math/rand"
	"os"
	"path/filepath"
	"time"

	"github.com/seisatlas/sks-waveform-etl/internal/catalog"
	"github.com/seisatlas/sks-waveform-etl/internal/domain"
	"github.com/seisatlas/sks-waveform-etl/internal/sac"
)

var baseDate = time.Date(2024, time.April, 26, 0, 0, 0, 0, time.UTC)

// Fixed station set spread far enough from the synthetic events to land in
// the 85-140 degree SKS window.
var stations = []domain.Station{
	{Network: "IU", Station: "ANMO", Lat: 34.946, Lon: -106.457, Elevation: 1850},
	{Network: "IU", Station: "COLA", Lat: 64.874, Lon: -147.862, Elevation: 200},
	{Network: "II", Station: "PFO", Lat: 33.611, Lon: -116.455, Elevation: 1280},
}

var channels = []string{"BHZ", "BHN", "BHE"}

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	outDir := flag.String("out", "rawdata", "archive output directory")
	catalogPath := flag.String("catalog", "", "catalog CSV path (default <out>/catalog.csv)")
	sampleRate := flag.Float64("rate", 20, "sampling rate of generated traces, Hz")
	seed := flag.Int64("seed", 1, "random seed")
	flag.Parse()

	if *catalogPath == "" {
		*catalogPath = filepath.Join(*outDir, "catalog.csv")
	}
	rng := rand.New(rand.NewSource(*seed))

	// Deep Fiji and Marianas events: both sit 85-110 degrees from the
	// station set above.
	events := []domain.Event{
		{OriginTime: baseDate.Add(15*time.Hour + 10*time.Minute), Lat: -20.5, Lon: -178.3, DepthKM: 588, Magnitude: 6.1},
		{OriginTime: baseDate.Add(39*time.Hour + 22*time.Minute), Lat: 12.1, Lon: 143.9, DepthKM: 35, Magnitude: 6.8},
		{OriginTime: baseDate.Add(63 * time.Hour), Lat: -17.9, Lon: -174.2, DepthKM: 210, Magnitude: 6.4},
	}

	days := map[time.Time]bool{}
	for _, ev := range events {
		days[ev.OriginTime.UTC().Truncate(24*time.Hour)] = true
	}

	written := 0
	for _, st := range stations {
		for day := range days {
			for _, chn := range channels {
				if err := writeDay(*outDir, st, chn, day, *sampleRate, rng); err != nil {
					return fmt.Errorf("station %s day %s: %w", st.Code(), day.Format("2006-01-02"), err)
				}
				written++
			}
		}
	}

	if err := os.MkdirAll(filepath.Dir(*catalogPath), 0o755); err != nil {
		return err
	}
	if err := catalog.WriteCSV(*catalogPath, events); err != nil {
		return fmt.Errorf("write catalog: %w", err)
	}

	log.Printf("stations: %d", len(stations))
	log.Printf("events: %d over %d days", len(events), len(days))
	log.Printf("day files: %d", written)
	log.Printf("catalog: %s", *catalogPath)
	return nil
}

// writeDay fabricates one channel-day of band-limited noise with a weak
// long-period wavelet so cut segments are not pure noise.
func writeDay(outDir string, st domain.Station, chn string, day time.Time, rate float64, rng *rand.Rand) error {
	n := int(86400 * rate)
	delta := 1 / rate
	data := make([]float64, n)

	prev := 0.0
	for i := range data {
		// One-pole smoothed noise, roughly red spectrum like real background.
		prev = 0.98*prev + rng.NormFloat64()
		data[i] = prev
	}
	// A 25-second wavelet in the middle of the day.
	mid := n / 2
	for i := -500; i <= 500; i++ {
		k := mid + i
		if k < 0 || k >= n {
			continue
		}
		t := float64(i) * delta
		data[k] += 40 * math.Exp(-t*t/800) * math.Sin(2*math.Pi*t/25)
	}

	tr := domain.Trace{
		Network: st.Network,
		Station: st.Station,
		Channel: chn,
		Start:   day,
		Delta:   delta,
		Data:    data,
	}
	f := sac.FromTrace(tr)
	f.Header.Stla = st.Lat
	f.Header.Stlo = st.Lon
	f.Header.Stel = st.Elevation
	switch chn[len(chn)-1] {
	case 'Z':
		f.Header.Cmpaz, f.Header.Cmpinc = 0, 0
	case 'N':
		f.Header.Cmpaz, f.Header.Cmpinc = 0, 90
	case 'E':
		f.Header.Cmpaz, f.Header.Cmpinc = 90, 90
	}

	dir := filepath.Join(outDir, st.Network+"_day_sac", st.Code())
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	name := fmt.Sprintf("%s.%s.%s.%s.sac", day.Format("2006.01.02"), st.Network, st.Station, chn)
	return f.Write(filepath.Join(dir, name))
}

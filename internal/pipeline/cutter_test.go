package pipeline

import (
	"math"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/seisatlas/sks-waveform-etl/internal/config"
	"github.com/seisatlas/sks-waveform-etl/internal/domain"
	"github.com/seisatlas/sks-waveform-etl/internal/observability"
)

func cutterConfig() *config.Config {
	return &config.Config{
		TargetPhase:  "SKS",
		OffsetPre:    100,
		OffsetPost:   100,
		ResponseMode: "",
		DoFilter:     false,
	}
}

func eventWindowTraces(arrival time.Time, channels ...string) []domain.Trace {
	start := arrival.Add(-120 * time.Second)
	traces := make([]domain.Trace, 0, len(channels))
	for _, chn := range channels {
		data := make([]float64, 241)
		for i := range data {
			data[i] = math.Sin(2 * math.Pi * float64(i) / 20)
		}
		traces = append(traces, domain.Trace{
			Network: "IU", Station: "ANMO", Channel: chn,
			Start: start, Delta: 1, Data: data,
		})
	}
	return traces
}

func TestCutTrimsToWindow(t *testing.T) {
	origin := time.Date(2024, time.April, 26, 15, 10, 0, 0, time.UTC)
	arrival := origin.Add(1290 * time.Second)
	ev := domain.Event{OriginTime: origin, Magnitude: 6.1}
	sta := domain.Station{Network: "IU", Station: "ANMO"}

	c := NewCutter(cutterConfig(), observability.DiscardLogger(), observability.NewMetricsForTesting())
	segs := c.Cut(ev, sta, arrival, 92.4, eventWindowTraces(arrival, "BHZ", "BHN", "BHE"))

	require.Len(t, segs, 3)
	for _, seg := range segs {
		assert.Equal(t, "SKS", seg.Phase)
		assert.Equal(t, 92.4, seg.GCArc)
		assert.Equal(t, 201, seg.Trace.Npts())
		assert.True(t, seg.Trace.Start.Equal(arrival.Add(-100*time.Second)))
		assert.True(t, seg.Arrival.Equal(arrival))
	}
	assert.Equal(t, "BHZ", segs[0].Trace.Channel)
}

func TestCutDropsChannelOutsideWindow(t *testing.T) {
	origin := time.Date(2024, time.April, 26, 15, 10, 0, 0, time.UTC)
	arrival := origin.Add(1290 * time.Second)
	ev := domain.Event{OriginTime: origin, Magnitude: 6.1}
	sta := domain.Station{Network: "IU", Station: "ANMO"}

	traces := eventWindowTraces(arrival, "BHZ", "BHN", "BHE")
	// A fourth channel whose data sits entirely in the trailing read pad,
	// starting half a sample after the cut window closes. It must not become
	// a segment.
	cutEnd := arrival.Add(100 * time.Second)
	traces = append(traces, domain.Trace{
		Network: "IU", Station: "ANMO", Channel: "BH1",
		Start: cutEnd.Add(500 * time.Millisecond), Delta: 1,
		Data: make([]float64, 19),
	})

	c := NewCutter(cutterConfig(), observability.DiscardLogger(), observability.NewMetricsForTesting())
	segs := c.Cut(ev, sta, arrival, 92.4, traces)

	require.Len(t, segs, 3)
	for _, seg := range segs {
		assert.NotEqual(t, "BH1", seg.Trace.Channel)
		assert.False(t, seg.Trace.End().After(cutEnd))
	}
}

func TestCutAppliesBandpass(t *testing.T) {
	cfg := cutterConfig()
	cfg.DoFilter = true
	cfg.FreqMin = 0.02
	cfg.FreqMax = 0.2

	origin := time.Date(2024, time.April, 26, 15, 10, 0, 0, time.UTC)
	arrival := origin.Add(1290 * time.Second)

	c := NewCutter(cfg, observability.DiscardLogger(), observability.NewMetricsForTesting())
	segs := c.Cut(domain.Event{OriginTime: origin}, domain.Station{}, arrival, 92.4,
		eventWindowTraces(arrival, "BHZ"))

	// The 0.05 Hz input sine sits in the passband and survives; the trace is
	// no longer identical to the raw input.
	require.Len(t, segs, 1)
	var sum float64
	for _, v := range segs[0].Trace.Data {
		sum += v * v
	}
	assert.Greater(t, math.Sqrt(sum/201), 0.1)
}

func TestCutSkipsBadChannel(t *testing.T) {
	cfg := cutterConfig()
	cfg.DoFilter = true
	cfg.FreqMin = 0.4
	cfg.FreqMax = 0.6 // above Nyquist for 1 Hz data

	origin := time.Date(2024, time.April, 26, 15, 10, 0, 0, time.UTC)
	arrival := origin.Add(1290 * time.Second)

	m := observability.NewMetricsForTesting()
	c := NewCutter(cfg, observability.DiscardLogger(), m)
	segs := c.Cut(domain.Event{OriginTime: origin}, domain.Station{}, arrival, 92.4,
		eventWindowTraces(arrival, "BHZ", "BHN"))
	assert.Empty(t, segs)
}

func TestCutResamples(t *testing.T) {
	cfg := cutterConfig()
	cfg.ResampleRate = 0.5

	origin := time.Date(2024, time.April, 26, 15, 10, 0, 0, time.UTC)
	arrival := origin.Add(1290 * time.Second)

	c := NewCutter(cfg, observability.DiscardLogger(), observability.NewMetricsForTesting())
	segs := c.Cut(domain.Event{OriginTime: origin}, domain.Station{}, arrival, 92.4,
		eventWindowTraces(arrival, "BHZ"))

	require.Len(t, segs, 1)
	assert.Equal(t, 2.0, segs[0].Trace.Delta)
	// Half the sampling rate, about half the samples in the same window.
	assert.InDelta(t, 100, segs[0].Trace.Npts(), 2)
}

func TestCutRemovesResponse(t *testing.T) {
	respDir := t.TempDir()
	pz := "ZEROS 2\nPOLES 1\n-1.0 0.0\nCONSTANT 4.0\n"
	require.NoError(t, os.WriteFile(filepath.Join(respDir, "SAC_PZs_IU_ANMO_BHZ"), []byte(pz), 0o644))

	cfg := cutterConfig()
	cfg.ResponseMode = "sacpz"
	cfg.RespDir = respDir

	origin := time.Date(2024, time.April, 26, 15, 10, 0, 0, time.UTC)
	arrival := origin.Add(1290 * time.Second)

	m := observability.NewMetricsForTesting()
	c := NewCutter(cfg, observability.DiscardLogger(), m)
	segs := c.Cut(domain.Event{OriginTime: origin}, domain.Station{}, arrival, 92.4,
		eventWindowTraces(arrival, "BHZ"))
	require.Len(t, segs, 1)

	// No response file for BHN, so that channel is dropped.
	segs = c.Cut(domain.Event{OriginTime: origin}, domain.Station{}, arrival, 92.4,
		eventWindowTraces(arrival, "BHN"))
	assert.Empty(t, segs)
}

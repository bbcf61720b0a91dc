package pipeline

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/seisatlas/sks-waveform-etl/internal/config"
	"github.com/seisatlas/sks-waveform-etl/internal/domain"
	"github.com/seisatlas/sks-waveform-etl/internal/dsp"
	"github.com/seisatlas/sks-waveform-etl/internal/observability"
	"github.com/seisatlas/sks-waveform-etl/internal/response"
)

// Instrument response removal settings, matching common teleseismic
// shear-wave practice.
var preFilter = response.PreFilter{0.001, 0.005, 45, 50}

const (
	waterLevelDB = 60
	taperWidth   = 0.05
	filterOrder  = 4
)

// Cutter turns a merged event window into processed phase segments, one per
// channel: condition, deconvolve, filter, resample, and trim to the window
// around the theoretical arrival.
type Cutter struct {
	cfg     *config.Config
	logger  *slog.Logger
	metrics *observability.Metrics

	mu        sync.Mutex
	responses map[string]response.PoleZero
}

// NewCutter creates a Cutter. Loaded responses are cached per channel for
// the life of the run.
func NewCutter(cfg *config.Config, logger *slog.Logger, metrics *observability.Metrics) *Cutter {
	return &Cutter{
		cfg:       cfg,
		logger:    logger,
		metrics:   metrics,
		responses: make(map[string]response.PoleZero),
	}
}

// Cut processes each trace of an event window and returns the finished
// segments. Traces that fail deconvolution or filtering are skipped with a
// warning so one bad channel does not lose the others.
func (c *Cutter) Cut(ev domain.Event, sta domain.Station, arrival time.Time, gcarc float64, traces []domain.Trace) []domain.Segment {
	cutStart := arrival.Add(-secondsDuration(c.cfg.OffsetPre))
	cutEnd := arrival.Add(secondsDuration(c.cfg.OffsetPost))

	segments := make([]domain.Segment, 0, len(traces))
	for _, tr := range traces {
		out, err := c.processTrace(tr)
		if err != nil {
			c.logger.Warn("trace processing failed, skipping channel",
				"error", err,
				"station", sta.Code(),
				"channel", tr.Channel,
				"event", ev.DirName(),
			)
			c.metrics.CutErrors.Inc()
			continue
		}

		cut := out.Slice(cutStart, cutEnd)
		if cut.Npts() == 0 {
			c.metrics.CutErrors.Inc()
			continue
		}
		segments = append(segments, domain.NewSegment(c.cfg.TargetPhase, ev, sta, arrival, gcarc, cut))
	}
	return segments
}

func (c *Cutter) processTrace(tr domain.Trace) (domain.Trace, error) {
	data := append([]float64(nil), tr.Data...)

	dsp.Demean(data)
	dsp.Detrend(data)
	dsp.Taper(data, taperWidth)

	if c.cfg.ResponseMode != "" {
		pz, err := c.channelResponse(tr)
		if err != nil {
			c.metrics.ResponseRemoval.WithLabelValues(c.cfg.ResponseMode, "error").Inc()
			return domain.Trace{}, err
		}
		data, err = response.Remove(data, tr.Delta, pz, preFilter, waterLevelDB)
		if err != nil {
			c.metrics.ResponseRemoval.WithLabelValues(c.cfg.ResponseMode, "error").Inc()
			return domain.Trace{}, fmt.Errorf("channel %s: %w", tr.Channel, err)
		}
		c.metrics.ResponseRemoval.WithLabelValues(c.cfg.ResponseMode, "success").Inc()
	} else {
		c.metrics.ResponseRemoval.WithLabelValues("none", "skipped").Inc()
	}

	if c.cfg.DoFilter {
		if err := dsp.Bandpass(data, c.cfg.FreqMin, c.cfg.FreqMax, tr.Delta, filterOrder); err != nil {
			return domain.Trace{}, fmt.Errorf("channel %s: %w", tr.Channel, err)
		}
	}

	out := tr
	out.Data = data
	if c.cfg.ResampleRate > 0 {
		resampled, err := dsp.Resample(data, tr.Delta, c.cfg.ResampleRate)
		if err != nil {
			return domain.Trace{}, fmt.Errorf("channel %s: %w", tr.Channel, err)
		}
		out.Data = resampled
		out.Delta = 1 / c.cfg.ResampleRate
	}
	return out, nil
}

// channelResponse loads the channel's instrument response, converted to
// velocity so deconvolved traces are ground velocity.
func (c *Cutter) channelResponse(tr domain.Trace) (response.PoleZero, error) {
	key := tr.Network + "." + tr.Station + "." + tr.Channel

	c.mu.Lock()
	pz, ok := c.responses[key]
	c.mu.Unlock()
	if ok {
		return pz, nil
	}

	pz, err := response.Load(c.cfg.RespDir, c.cfg.ResponseMode, tr.Network, tr.Station, tr.Channel)
	if err != nil {
		return response.PoleZero{}, err
	}
	if vel, err := pz.ToVelocity(); err == nil {
		pz = vel
	}

	c.mu.Lock()
	c.responses[key] = pz
	c.mu.Unlock()
	return pz, nil
}

func secondsDuration(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}

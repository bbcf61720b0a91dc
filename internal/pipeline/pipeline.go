// Package pipeline orchestrates the waveform extraction run: walk the raw
// archive station by station, find the events in the distance window, cut
// and process the phase segments, and hand them to the sinks.
package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/seisatlas/sks-waveform-etl/internal/archive"
	"github.com/seisatlas/sks-waveform-etl/internal/config"
	"github.com/seisatlas/sks-waveform-etl/internal/domain"
	"github.com/seisatlas/sks-waveform-etl/internal/observability"
	"github.com/seisatlas/sks-waveform-etl/internal/taup"
)

// padSeconds widens the read window on each side of the cut so tapering and
// filter transients fall outside the final segment.
const padSeconds = 20.0

// Archive provides station listings, metadata, and merged event windows.
type Archive interface {
	Stations() ([]archive.Entry, error)
	StationInfo(network, station string) (domain.Station, error)
	ReadWindow(network, station string, start, end time.Time, wildcard string) ([]domain.Trace, error)
}

// TravelTimer predicts the phase arrival for a source geometry.
type TravelTimer interface {
	TravelTime(distDeg, depthKM float64) (float64, error)
}

// SegmentSink persists a finished segment and fills in its output path.
type SegmentSink interface {
	Store(ctx context.Context, seg *domain.Segment) error
}

// SegmentNotifier publishes segment metadata downstream. Implementations may
// be absent; the pipeline treats a nil notifier as "files only".
type SegmentNotifier interface {
	NotifyBatch(ctx context.Context, segments []domain.Segment) error
}

// Pipeline runs the cut over every station in the archive.
type Pipeline struct {
	archive  Archive
	times    TravelTimer
	cutter   *Cutter
	sink     SegmentSink
	notifier SegmentNotifier
	events   []domain.Event
	cfg      *config.Config
	logger   *slog.Logger
	metrics  *observability.Metrics

	ready         atomic.Bool
	stationsDone  atomic.Int64
	stationsTotal atomic.Int64
}

// New creates a Pipeline with the given stages and observability. notifier
// may be nil.
func New(a Archive, times TravelTimer, cutter *Cutter, sink SegmentSink, notifier SegmentNotifier,
	events []domain.Event, cfg *config.Config, logger *slog.Logger, metrics *observability.Metrics) *Pipeline {
	return &Pipeline{
		archive:  a,
		times:    times,
		cutter:   cutter,
		sink:     sink,
		notifier: notifier,
		events:   events,
		cfg:      cfg,
		logger:   logger,
		metrics:  metrics,
	}
}

// CheckReadiness returns nil once the pipeline has finished at least one
// station, or an error describing why the service is not yet ready.
func (p *Pipeline) CheckReadiness(_ context.Context) error {
	if !p.ready.Load() {
		return errors.New("pipeline has not processed any stations yet")
	}
	return nil
}

// Progress reports how many stations have been processed out of the total
// the current run is covering.
func (p *Pipeline) Progress() (stationsDone, stationsTotal int64) {
	return p.stationsDone.Load(), p.stationsTotal.Load()
}

// Run processes every station in the archive with a bounded worker pool and
// returns when all stations are done or the context is cancelled.
func (p *Pipeline) Run(ctx context.Context) error {
	stations, err := p.archive.Stations()
	if err != nil {
		return err
	}
	p.logger.Info("pipeline started",
		"stations", len(stations),
		"events", len(p.events),
		"phase", p.cfg.TargetPhase,
		"workers", p.cfg.Workers,
	)
	p.stationsTotal.Store(int64(len(stations)))
	p.metrics.PipelineRunning.Set(1)
	defer p.metrics.PipelineRunning.Set(0)

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(p.cfg.Workers)
	for _, st := range stations {
		g.Go(func() error {
			return p.processStation(ctx, st)
		})
	}
	if err := g.Wait(); err != nil {
		p.logger.Info("pipeline stopping", "reason", err)
		return err
	}
	p.logger.Info("pipeline finished", "stations", len(stations))
	return nil
}

// processStation cuts every matching event at one station. Per-event
// failures are logged and skipped; only cancellation aborts the station.
func (p *Pipeline) processStation(ctx context.Context, st archive.Entry) error {
	start := time.Now()

	info, err := p.archive.StationInfo(st.Network, st.Station)
	if err != nil {
		p.logger.Warn("station metadata unavailable, skipping",
			"station", st.Network+"."+st.Station, "error", err)
		p.stationsDone.Add(1)
		return nil
	}

	log := p.logger.With("station", info.Code())
	var batch []domain.Segment
	for _, ev := range p.events {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		segs := p.processEvent(ctx, log, info, ev)
		batch = append(batch, segs...)
	}

	if err := p.notify(ctx, batch); err != nil {
		return err
	}

	p.metrics.StationsProcessed.Inc()
	p.metrics.StationDuration.Observe(time.Since(start).Seconds())
	p.stationsDone.Add(1)
	p.ready.Store(true)
	log.Info("station done", "segments", len(batch), "duration", time.Since(start))
	return nil
}

func (p *Pipeline) processEvent(ctx context.Context, log *slog.Logger, sta domain.Station, ev domain.Event) []domain.Segment {
	p.metrics.EventsEvaluated.Inc()

	gcarc := domain.GCArc(ev.Lat, ev.Lon, sta.Lat, sta.Lon)
	if gcarc < p.cfg.MinDist || gcarc > p.cfg.MaxDist {
		return nil
	}

	tt, err := p.times.TravelTime(gcarc, ev.DepthKM)
	if err != nil {
		if !errors.Is(err, taup.ErrNoArrival) {
			log.Warn("travel time lookup failed", "event", ev.DirName(), "error", err)
		}
		return nil
	}
	arrival := ev.OriginTime.Add(secondsDuration(tt))

	cutStart := arrival.Add(-secondsDuration(p.cfg.OffsetPre))
	cutEnd := arrival.Add(secondsDuration(p.cfg.OffsetPost))
	readStart := cutStart.Add(-secondsDuration(padSeconds))
	readEnd := cutEnd.Add(secondsDuration(padSeconds))

	traces, err := p.archive.ReadWindow(sta.Network, sta.Station, readStart, readEnd, p.cfg.ChannelWildcard)
	if err != nil {
		log.Warn("window read failed", "event", ev.DirName(), "error", err)
		p.metrics.CutErrors.Inc()
		return nil
	}

	if !domain.ThreeComponentOK(traces, cutStart, cutEnd) {
		p.metrics.QCRejected.Inc()
		return nil
	}

	segs := p.cutter.Cut(ev, sta, arrival, gcarc, traces)
	stored := segs[:0]
	for i := range segs {
		if err := p.sink.Store(ctx, &segs[i]); err != nil {
			log.Error("segment store failed", "id", segs[i].ID, "error", err)
			p.metrics.CutErrors.Inc()
			continue
		}
		p.metrics.SegmentsWritten.Inc()
		p.metrics.SegmentSamples.Observe(float64(segs[i].Trace.Npts()))
		stored = append(stored, segs[i])
	}
	return stored
}

// notify publishes the station's segment batch, retrying with capped
// exponential backoff while the context allows.
func (p *Pipeline) notify(ctx context.Context, batch []domain.Segment) error {
	if p.notifier == nil || len(batch) == 0 {
		return nil
	}

	backoff := 200 * time.Millisecond
	maxBackoff := 5 * time.Second
	const attempts = 5

	var err error
	for i := 0; i < attempts; i++ {
		err = p.notifier.NotifyBatch(ctx, batch)
		if err == nil {
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		p.logger.Error("notify batch failed", "error", err, "batch_size", len(batch), "attempt", i+1)
		if !sleepWithContext(ctx, backoff) {
			return ctx.Err()
		}
		backoff = nextBackoff(backoff, maxBackoff)
	}
	return err
}

func nextBackoff(current, maxBackoff time.Duration) time.Duration {
	next := current * 2
	if next > maxBackoff {
		return maxBackoff
	}
	return next
}

func sleepWithContext(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return true
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

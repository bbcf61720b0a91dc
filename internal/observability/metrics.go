package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the Prometheus counters, histograms, and gauges for the
// extraction pipeline and the acquisition client.
type Metrics struct {
	StationsProcessed prometheus.Counter
	EventsEvaluated   prometheus.Counter
	SegmentsWritten   prometheus.Counter
	QCRejected        prometheus.Counter
	CutErrors         prometheus.Counter
	PipelineRunning   prometheus.Gauge

	// Station-level processing metrics.
	StationDuration prometheus.Histogram
	SegmentSamples  prometheus.Histogram

	// Instrument response removal, labeled by mode (sacpz/resp/xml) and
	// outcome (success/missing/error).
	ResponseRemoval *prometheus.CounterVec

	// Acquisition metrics.
	DownloadRequests *prometheus.CounterVec // labels: service={event,station,timeseries}, outcome={success,error,empty}
	DownloadDuration *prometheus.HistogramVec
	StationCache     *prometheus.CounterVec // labels: result={hit,miss}

	SinkEnabled prometheus.Gauge
}

// NewMetrics creates and registers all pipeline metrics with the default Prometheus registry.
func NewMetrics() *Metrics {
	m := &Metrics{
		StationsProcessed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "sks_etl",
			Name:      "stations_processed_total",
			Help:      "Total station directories fully processed.",
		}),
		EventsEvaluated: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "sks_etl",
			Name:      "events_evaluated_total",
			Help:      "Total (station, event) pairs inside the distance window.",
		}),
		SegmentsWritten: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "sks_etl",
			Name:      "segments_written_total",
			Help:      "Total processed SAC segments written to the output directory.",
		}),
		QCRejected: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "sks_etl",
			Name:      "qc_rejected_total",
			Help:      "Windows skipped by the 3-component completeness check.",
		}),
		CutErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "sks_etl",
			Name:      "cut_errors_total",
			Help:      "Per-event processing failures (read, merge, or write errors).",
		}),
		PipelineRunning: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "sks_etl",
			Name:      "pipeline_running",
			Help:      "1 while the extraction run is active, 0 when finished or shut down.",
		}),
		StationDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "sks_etl",
			Name:      "station_duration_seconds",
			Help:      "Wall time to process one station directory against the catalog.",
			Buckets:   []float64{0.1, 0.5, 1, 5, 10, 30, 60, 120, 300},
		}),
		SegmentSamples: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "sks_etl",
			Name:      "segment_samples",
			Help:      "Sample counts of written segments.",
			Buckets:   []float64{500, 1000, 2000, 4000, 8000, 16000, 32000},
		}),
		ResponseRemoval: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "sks_etl",
			Name:      "response_removal_total",
			Help:      "Instrument response removals by mode and outcome.",
		}, []string{"mode", "outcome"}),
		DownloadRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "sks_etl",
			Name:      "download_requests_total",
			Help:      "FDSN web service requests by service and outcome.",
		}, []string{"service", "outcome"}),
		DownloadDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "sks_etl",
			Name:      "download_duration_seconds",
			Help:      "FDSN web service request duration in seconds.",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
		}, []string{"service"}),
		StationCache: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "sks_etl",
			Name:      "station_cache_total",
			Help:      "Station metadata cache lookups by result.",
		}, []string{"result"}),
		SinkEnabled: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "sks_etl",
			Name:      "sink_enabled",
			Help:      "1 when the Kafka segment-metadata sink is enabled, 0 otherwise.",
		}),
	}

	prometheus.MustRegister(
		m.StationsProcessed,
		m.EventsEvaluated,
		m.SegmentsWritten,
		m.QCRejected,
		m.CutErrors,
		m.PipelineRunning,
		m.StationDuration,
		m.SegmentSamples,
		m.ResponseRemoval,
		m.DownloadRequests,
		m.DownloadDuration,
		m.StationCache,
		m.SinkEnabled,
	)

	return m
}

// NewMetricsForTesting creates Metrics with a fresh registry to avoid
// "already registered" panics when called from multiple tests.
func NewMetricsForTesting() *Metrics {
	return &Metrics{
		StationsProcessed: prometheus.NewCounter(prometheus.CounterOpts{Namespace: "sks_etl", Name: "stations_processed_total"}),
		EventsEvaluated:   prometheus.NewCounter(prometheus.CounterOpts{Namespace: "sks_etl", Name: "events_evaluated_total"}),
		SegmentsWritten:   prometheus.NewCounter(prometheus.CounterOpts{Namespace: "sks_etl", Name: "segments_written_total"}),
		QCRejected:        prometheus.NewCounter(prometheus.CounterOpts{Namespace: "sks_etl", Name: "qc_rejected_total"}),
		CutErrors:         prometheus.NewCounter(prometheus.CounterOpts{Namespace: "sks_etl", Name: "cut_errors_total"}),
		PipelineRunning:   prometheus.NewGauge(prometheus.GaugeOpts{Namespace: "sks_etl", Name: "pipeline_running"}),
		StationDuration:   prometheus.NewHistogram(prometheus.HistogramOpts{Namespace: "sks_etl", Name: "station_duration_seconds"}),
		SegmentSamples:    prometheus.NewHistogram(prometheus.HistogramOpts{Namespace: "sks_etl", Name: "segment_samples"}),
		ResponseRemoval:   prometheus.NewCounterVec(prometheus.CounterOpts{Namespace: "sks_etl", Name: "response_removal_total"}, []string{"mode", "outcome"}),
		DownloadRequests:  prometheus.NewCounterVec(prometheus.CounterOpts{Namespace: "sks_etl", Name: "download_requests_total"}, []string{"service", "outcome"}),
		DownloadDuration:  prometheus.NewHistogramVec(prometheus.HistogramOpts{Namespace: "sks_etl", Name: "download_duration_seconds"}, []string{"service"}),
		StationCache:      prometheus.NewCounterVec(prometheus.CounterOpts{Namespace: "sks_etl", Name: "station_cache_total"}, []string{"result"}),
		SinkEnabled:       prometheus.NewGauge(prometheus.GaugeOpts{Namespace: "sks_etl", Name: "sink_enabled"}),
	}
}

// Command etl cuts phase windows out of the raw waveform archive: it walks
// every station directory, finds the catalog events in the configured
// distance band, removes instrument responses, and writes processed SAC
// segments to the output tree. Segment metadata can optionally be published
// to Kafka.
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/seisatlas/sks-waveform-etl/internal/adapter/httpadapter"
	kafkaadapter "github.com/seisatlas/sks-waveform-etl/internal/adapter/kafka"
	"github.com/seisatlas/sks-waveform-etl/internal/archive"
	"github.com/seisatlas/sks-waveform-etl/internal/catalog"
	"github.com/seisatlas/sks-waveform-etl/internal/config"
	"github.com/seisatlas/sks-waveform-etl/internal/observability"
	"github.com/seisatlas/sks-waveform-etl/internal/pipeline"
	"github.com/seisatlas/sks-waveform-etl/internal/taup"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg)
	metrics := observability.NewMetrics()

	events, skipped, err := catalog.Read(cfg.CatalogFile)
	if err != nil {
		logger.Error("failed to read catalog", "file", cfg.CatalogFile, "error", err)
		os.Exit(1)
	}
	if skipped > 0 {
		logger.Warn("catalog rows skipped", "file", cfg.CatalogFile, "skipped", skipped)
	}
	logger.Info("catalog loaded", "file", cfg.CatalogFile, "events", len(events))

	model, err := taup.Load(cfg.TaupModel, cfg.TargetPhase)
	if err != nil {
		logger.Error("failed to load travel-time table", "error", err)
		os.Exit(1)
	}

	src := archive.NewCached(archive.New(cfg.RawDataDir), cfg.StationCacheSize, metrics)

	cutter := pipeline.NewCutter(cfg, logger, metrics)
	sink := pipeline.NewFileSink(cfg.OutputDir, cfg.OutputStructure)

	// Segment metadata publishing (feature-flagged via KAFKA_ENABLED / KAFKA_BROKERS).
	var notifier pipeline.SegmentNotifier
	var writer *kafkaadapter.Writer
	if cfg.KafkaEnabled {
		writer = kafkaadapter.NewWriter(cfg, logger)
		notifier = writer
		metrics.SinkEnabled.Set(1)
		logger.Info("kafka sink enabled", "brokers", cfg.KafkaBrokers, "topic", cfg.KafkaSinkTopic)
	} else {
		logger.Info("kafka sink disabled")
	}

	p := pipeline.New(src, model, cutter, sink, notifier, events, cfg, logger, metrics)

	srv := httpadapter.NewServer(cfg.HTTPAddr, p, logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", "error", err)
		}
	}()

	runErr := p.Run(ctx)
	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		logger.Error("pipeline error", "error", runErr)
	}
	stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "error", err)
	}
	if writer != nil {
		if err := writer.Close(); err != nil {
			logger.Error("kafka writer close error", "error", err)
		}
	}

	logger.Info("shutdown complete")
	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		os.Exit(1)
	}
}

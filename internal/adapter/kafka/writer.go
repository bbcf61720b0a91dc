package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	kafkago "github.com/segmentio/kafka-go"

	"github.com/seisatlas/sks-waveform-etl/internal/config"
	"github.com/seisatlas/sks-waveform-etl/internal/domain"
)

// Writer publishes segment metadata to a Kafka topic.
// It implements pipeline.SegmentNotifier.
type Writer struct {
	writer *kafkago.Writer
	logger *slog.Logger
}

// NewWriter creates a Kafka producer for the configured sink topic.
func NewWriter(cfg *config.Config, logger *slog.Logger) *Writer {
	w := &kafkago.Writer{
		Addr:         kafkago.TCP(cfg.KafkaBrokers...),
		Topic:        cfg.KafkaSinkTopic,
		Balancer:     &kafkago.LeastBytes{},
		RequiredAcks: kafkago.RequireAll,
	}
	return &Writer{writer: w, logger: logger}
}

// NotifyBatch serializes and publishes the metadata of multiple cut segments
// in a single WriteMessages call.
func (w *Writer) NotifyBatch(ctx context.Context, segments []domain.Segment) error {
	if len(segments) == 0 {
		return nil
	}
	msgs := make([]kafkago.Message, len(segments))
	for i := range segments {
		msg, err := serializeToMessage(segments[i])
		if err != nil {
			return err
		}
		msgs[i] = msg
	}
	return w.writer.WriteMessages(ctx, msgs...)
}

func (w *Writer) Close() error {
	return w.writer.Close()
}

// serializeToMessage marshals a Segment into a Kafka message. Waveform
// samples never go on the wire, only the metadata and the output path.
func serializeToMessage(seg domain.Segment) (kafkago.Message, error) {
	data, err := json.Marshal(seg)
	if err != nil {
		return kafkago.Message{}, fmt.Errorf("serialize segment: %w", err)
	}
	return kafkago.Message{
		Key:   []byte(seg.ID),
		Value: data,
		Headers: []kafkago.Header{
			{Key: "phase", Value: []byte(seg.Phase)},
			{Key: "processed_at", Value: []byte(seg.ProcessedAt.Format(time.RFC3339))},
		},
	}, nil
}

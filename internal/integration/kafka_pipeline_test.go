//go:build integration

package integration_test

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	kafkago "github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/seisatlas/sks-waveform-etl/internal/adapter/kafka"
	"github.com/seisatlas/sks-waveform-etl/internal/archive"
	"github.com/seisatlas/sks-waveform-etl/internal/config"
	"github.com/seisatlas/sks-waveform-etl/internal/domain"
	"github.com/seisatlas/sks-waveform-etl/internal/observability"
	"github.com/seisatlas/sks-waveform-etl/internal/pipeline"
	"github.com/seisatlas/sks-waveform-etl/internal/sac"
	"github.com/seisatlas/sks-waveform-etl/internal/taup"
)

const testSinkTopic = "test-segments"

// notification holds a deserialized segment message read from the sink topic.
type notification struct {
	Segment domain.Segment
	Key     string
	Headers map[string]string
}

// readNotification reads one message from the sink consumer and deserializes it.
func readNotification(ctx context.Context, t *testing.T, consumer *kafkago.Reader) notification {
	t.Helper()
	readCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	msg, err := consumer.ReadMessage(readCtx)
	require.NoError(t, err, "read from sink topic")

	headers := make(map[string]string, len(msg.Headers))
	for _, h := range msg.Headers {
		headers[h.Key] = string(h.Value)
	}
	var seg domain.Segment
	require.NoError(t, json.Unmarshal(msg.Value, &seg), "unmarshal sink message")

	return notification{Segment: seg, Key: string(msg.Key), Headers: headers}
}

func newSinkConsumer(t *testing.T, broker string) *kafkago.Reader {
	t.Helper()
	consumer := kafkago.NewReader(kafkago.ReaderConfig{
		Brokers:     []string{broker},
		Topic:       testSinkTopic,
		GroupID:     fmt.Sprintf("test-consumer-%d", time.Now().UnixNano()),
		StartOffset: kafkago.FirstOffset,
	})
	t.Cleanup(func() { _ = consumer.Close() })
	return consumer
}

// TestSegmentNotifierRoundTrip verifies the adapter layer: kafka.Writer
// publishes a segment whose key, headers, and metadata survive the round trip,
// and whose waveform samples stay off the wire.
func TestSegmentNotifierRoundTrip(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 90*time.Second)
	defer cancel()

	broker := startKafka(ctx, t)
	createTopic(t, broker, testSinkTopic)

	cfg := &config.Config{
		KafkaBrokers:   []string{broker},
		KafkaSinkTopic: testSinkTopic,
	}
	writer := kafka.NewWriter(cfg, observability.DiscardLogger())
	t.Cleanup(func() { _ = writer.Close() })

	origin := time.Date(2024, time.April, 26, 15, 10, 0, 0, time.UTC)
	ev := domain.Event{OriginTime: origin, Lat: -18.2, Lon: -178.1, DepthKM: 580, Magnitude: 6.5}
	sta := domain.Station{Network: "IU", Station: "ANMO", Lat: 34.9, Lon: -106.5, Elevation: 1743}
	arrival := origin.Add(1290 * time.Second)
	tr := domain.Trace{
		Network: "IU", Station: "ANMO", Channel: "BHZ",
		Start: arrival.Add(-100 * time.Second), Delta: 1,
		Data: make([]float64, 201),
	}
	seg := domain.NewSegment("SKS", ev, sta, arrival, 92.4, tr)
	seg.Path = "20240426_151000_M6.5/IU.ANMO.BHZ.SAC"

	require.NoError(t, writer.NotifyBatch(ctx, []domain.Segment{seg}))

	got := readNotification(ctx, t, newSinkConsumer(t, broker))

	assert.Equal(t, seg.ID, got.Key)
	assert.Equal(t, "SKS", got.Headers["phase"])
	_, err := time.Parse(time.RFC3339, got.Headers["processed_at"])
	assert.NoError(t, err, "processed_at should be valid RFC3339")

	assert.Equal(t, seg.ID, got.Segment.ID)
	assert.Equal(t, "SKS", got.Segment.Phase)
	assert.True(t, got.Segment.Event.OriginTime.Equal(origin))
	assert.Equal(t, "ANMO", got.Segment.Station.Station)
	assert.InDelta(t, 92.4, got.Segment.GCArc, 1e-9)
	assert.Equal(t, seg.Path, got.Segment.Path)
	assert.Empty(t, got.Segment.Trace.Data, "waveform samples must not be published")
}

// TestPipelineEndToEnd runs the full pipeline against a real on-disk archive
// and a real Kafka broker: cut windows land as SAC files and each segment's
// metadata appears on the sink topic.
func TestPipelineEndToEnd(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	broker := startKafka(ctx, t)
	createTopic(t, broker, testSinkTopic)

	rawDir := t.TempDir()
	outDir := t.TempDir()

	day := time.Date(2024, time.April, 26, 0, 0, 0, 0, time.UTC)
	for _, chn := range []string{"BHZ", "BHN", "BHE"} {
		writeDayFile(t, rawDir, "XX", "TEST", chn, day)
	}

	cfg := &config.Config{
		OutputDir:       outDir,
		OutputStructure: "event",
		MinDist:         85,
		MaxDist:         140,
		TargetPhase:     "SKS",
		OffsetPre:       100,
		OffsetPost:      100,
		ChannelWildcard: "*",
		Workers:         2,
		KafkaBrokers:    []string{broker},
		KafkaSinkTopic:  testSinkTopic,
	}

	model, err := taup.Load("iasp91", "SKS")
	require.NoError(t, err)

	// 100 degrees from the test station at (0, 0), deep enough for a clean SKS.
	events := []domain.Event{
		{OriginTime: day.Add(12 * time.Hour), Lat: 0, Lon: 100, DepthKM: 100, Magnitude: 6.8},
	}

	logger := observability.DiscardLogger()
	metrics := observability.NewMetricsForTesting()
	cutter := pipeline.NewCutter(cfg, logger, metrics)
	sink := pipeline.NewFileSink(cfg.OutputDir, cfg.OutputStructure)

	writer := kafka.NewWriter(cfg, logger)
	t.Cleanup(func() { _ = writer.Close() })

	p := pipeline.New(archive.New(rawDir), model, cutter, sink, writer, events, cfg, logger, metrics)
	require.NoError(t, p.Run(ctx))

	consumer := newSinkConsumer(t, broker)
	channels := map[string]bool{}
	for i := 0; i < 3; i++ {
		got := readNotification(ctx, t, consumer)

		assert.Equal(t, "SKS", got.Headers["phase"])
		assert.Equal(t, got.Segment.ID, got.Key)
		assert.InDelta(t, 100, got.Segment.GCArc, 0.01)
		assert.True(t, got.Segment.Arrival.After(events[0].OriginTime))

		require.NotEmpty(t, got.Segment.Path)
		_, err := os.Stat(filepath.Join(outDir, got.Segment.Path))
		assert.NoError(t, err, "segment file should exist: %s", got.Segment.Path)

		// Event layout: <event>/NET.STA.CHN.SAC.
		parts := strings.Split(filepath.Base(got.Segment.Path), ".")
		require.Len(t, parts, 4)
		channels[parts[2]] = true
	}
	// One segment per component.
	assert.Equal(t, map[string]bool{"BHZ": true, "BHN": true, "BHE": true}, channels)
}

// writeDayFile synthesizes a full day of 1 Hz samples in the archive layout.
func writeDayFile(t *testing.T, root, network, station, channel string, day time.Time) {
	t.Helper()

	data := make([]float64, 86400)
	for i := range data {
		data[i] = float64(i%7) - 3
	}
	f := sac.FromTrace(domain.Trace{
		Network: network, Station: station, Channel: channel,
		Start: day, Delta: 1, Data: data,
	})
	f.Header.Stla = 0
	f.Header.Stlo = 0
	f.Header.Stel = 100

	dir := filepath.Join(root, network+"_day_sac", network+"."+station)
	require.NoError(t, os.MkdirAll(dir, 0o755))
	name := day.UTC().Format("2006.01.02") + "." + network + "." + station + "." + channel + ".sac"
	require.NoError(t, f.Write(filepath.Join(dir, name)))
}

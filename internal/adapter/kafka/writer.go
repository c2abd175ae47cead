package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	kafkago "github.com/segmentio/kafka-go"

	"github.com/couchcryptid/storm-radar-service/internal/config"
	"github.com/couchcryptid/storm-radar-service/internal/domain"
)

// Writer publishes scan summaries to a Kafka topic.
// It implements pipeline.Publisher.
type Writer struct {
	writer *kafkago.Writer
	logger *slog.Logger
}

// NewWriter creates a Kafka producer for the configured topic.
func NewWriter(cfg *config.Config, logger *slog.Logger) *Writer {
	w := &kafkago.Writer{
		Addr:         kafkago.TCP(cfg.KafkaBrokers...),
		Topic:        cfg.KafkaTopic,
		Balancer:     &kafkago.Hash{},
		RequiredAcks: kafkago.RequireAll,
	}
	return &Writer{writer: w, logger: logger}
}

// Publish serializes and writes one summary. Summaries of the same station
// share a partition so consumers see them in scan order.
func (w *Writer) Publish(ctx context.Context, summary domain.ScanSummary) error {
	msg, err := serializeToMessage(summary)
	if err != nil {
		return err
	}
	if err := w.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("write scan summary: %w", err)
	}
	w.logger.Debug("scan summary published", "station", summary.Station, "scan_time", summary.ScanTime)
	return nil
}

func (w *Writer) Close() error {
	return w.writer.Close()
}

// serializeToMessage marshals a ScanSummary into a Kafka message keyed by station.
func serializeToMessage(s domain.ScanSummary) (kafkago.Message, error) {
	data, err := json.Marshal(s)
	if err != nil {
		return kafkago.Message{}, fmt.Errorf("serialize scan summary: %w", err)
	}
	partial := "false"
	if s.Partial {
		partial = "true"
	}
	return kafkago.Message{
		Key:   []byte(s.Station),
		Value: data,
		Time:  s.ScanTime,
		Headers: []kafkago.Header{
			{Key: "scan_time", Value: []byte(s.ScanTime.UTC().Format(time.RFC3339))},
			{Key: "processed_at", Value: []byte(s.ProcessedAt.UTC().Format(time.RFC3339))},
			{Key: "partial", Value: []byte(partial)},
		},
	}, nil
}

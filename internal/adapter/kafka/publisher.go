package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/couchcryptid/nova-pm-etl/internal/config"
	"github.com/couchcryptid/nova-pm-etl/internal/domain"
	"github.com/jonboulle/clockwork"
	kafkago "github.com/segmentio/kafka-go"
)

// messageWriter is the subset of *kafkago.Writer the publisher needs.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafkago.Message) error
	Close() error
}

// Publisher produces stored measurement records to a Kafka topic.
// It implements pipeline.Publisher.
type Publisher struct {
	writer messageWriter
	clock  clockwork.Clock
	logger *slog.Logger
}

// NewPublisher creates a Kafka producer for the configured topic.
func NewPublisher(cfg *config.Config, logger *slog.Logger) *Publisher {
	w := &kafkago.Writer{
		Addr:         kafkago.TCP(cfg.KafkaBrokers...),
		Topic:        cfg.KafkaTopic,
		Balancer:     &kafkago.Hash{},
		RequiredAcks: kafkago.RequireAll,
	}
	return &Publisher{writer: w, clock: clockwork.NewRealClock(), logger: logger}
}

// Publish serializes the records of one file and writes them in a single
// WriteMessages call. Messages are keyed by sensor serial number so that one
// sensor's readings stay ordered within a partition.
func (p *Publisher) Publish(ctx context.Context, runID string, records []domain.MeasurementRecord) error {
	if len(records) == 0 {
		return nil
	}
	processedAt := p.clock.Now()
	msgs := make([]kafkago.Message, len(records))
	for i := range records {
		msg, err := serializeToMessage(records[i], runID, processedAt)
		if err != nil {
			return err
		}
		msgs[i] = msg
	}
	if err := p.writer.WriteMessages(ctx, msgs...); err != nil {
		return fmt.Errorf("publish %d records: %w", len(msgs), err)
	}
	p.logger.Debug("records published", "count", len(msgs), "run_id", runID)
	return nil
}

func (p *Publisher) Close() error {
	return p.writer.Close()
}

// serializeToMessage marshals a MeasurementRecord into a Kafka message.
func serializeToMessage(r domain.MeasurementRecord, runID string, processedAt time.Time) (kafkago.Message, error) {
	data, err := json.Marshal(r)
	if err != nil {
		return kafkago.Message{}, fmt.Errorf("serialize measurement record: %w", err)
	}
	return kafkago.Message{
		Key:   []byte(r.SerialNumber()),
		Value: data,
		Headers: []kafkago.Header{
			{Key: "measurement", Value: []byte(r.Measurement)},
			{Key: "run_id", Value: []byte(runID)},
			{Key: "processed_at", Value: []byte(processedAt.Format(time.RFC3339))},
		},
	}, nil
}

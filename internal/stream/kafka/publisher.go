// Package kafka exports fill events to a Kafka topic for downstream
// consumers (analytics, portfolio trackers). The venue works without it;
// wiring is gated on config.
package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/madschristensen99/rushTrade/internal/domain"
)

// Publisher writes JSON fill events to one topic, keyed by condition id so a
// market's fills land in one partition in order.
type Publisher struct {
	writer *kafka.Writer
	logger *slog.Logger
}

// Compile-time interface check.
var _ domain.FillStream = (*Publisher)(nil)

// NewPublisher builds a publisher for the given brokers and topic.
func NewPublisher(brokers []string, topic string, logger *slog.Logger) *Publisher {
	writer := &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.LeastBytes{},
		RequiredAcks: kafka.RequireOne,
		BatchTimeout: 50 * time.Millisecond,
	}
	return &Publisher{
		writer: writer,
		logger: logger.With(slog.String("component", "kafka")),
	}
}

// PublishFill writes one fill event.
func (p *Publisher) PublishFill(ctx context.Context, evt domain.FillEvent) error {
	value, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("kafka: marshal fill %d: %w", evt.FillID, err)
	}

	msg := kafka.Message{
		Key:   []byte(evt.ConditionID),
		Value: value,
		Time:  evt.Timestamp,
	}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("kafka: publish fill %d: %w", evt.FillID, err)
	}

	p.logger.DebugContext(ctx, "fill published",
		slog.Int64("fill_id", evt.FillID),
		slog.String("condition_id", evt.ConditionID))
	return nil
}

// Close flushes and closes the underlying writer.
func (p *Publisher) Close() error {
	return p.writer.Close()
}

// Package kafka provides Kafka-based implementations of the event feed.
package kafka

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/segmentio/kafka-go"

	"fifoq/internal/config"
	"fifoq/internal/events"
	"fifoq/internal/metrics"
)

const headerEventType = "event-type"

// Producer implements events.Publisher using Kafka. Writes are
// asynchronous: Publish hands the event to the writer's batch and the
// delivery outcome is reported through complete.
type Producer struct {
	writer *kafka.Writer
	logger *slog.Logger
}

// NewProducer creates a new Kafka producer.
func NewProducer(cfg *config.KafkaConfig, logger *slog.Logger) *Producer {
	p := &Producer{logger: logger}

	p.writer = &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        cfg.Topic,
		Balancer:     &kafka.Hash{}, // Keep each queue's events on one partition
		BatchTimeout: 10 * time.Millisecond,
		RequiredAcks: kafka.RequireOne,
		Async:        true,
		Completion:   p.complete,
	}

	return p
}

// Publish queues an event keyed by queue name.
func (p *Producer) Publish(ctx context.Context, event *events.Event) error {
	value, err := event.Encode()
	if err != nil {
		return err
	}

	msg := kafka.Message{
		Key:   []byte(event.Queue),
		Value: value,
		Headers: []kafka.Header{
			{Key: headerEventType, Value: []byte(event.Type)},
		},
	}

	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("failed to write event to kafka: %w", err)
	}

	return nil
}

// complete receives the outcome of each asynchronous batch.
func (p *Producer) complete(messages []kafka.Message, err error) {
	status := "success"
	if err != nil {
		status = "failure"
	}

	for _, m := range messages {
		eventType := headerValue(m.Headers, headerEventType)
		metrics.EventsDeliveredTotal.WithLabelValues(eventType, status).Inc()
		if err != nil {
			p.logger.Warn("failed to deliver queue event",
				"type", eventType,
				"queue", string(m.Key),
				"error", err,
			)
		}
	}
}

func headerValue(headers []kafka.Header, key string) string {
	for _, h := range headers {
		if h.Key == key {
			return string(h.Value)
		}
	}
	return ""
}

// Close flushes pending events and closes the Kafka writer.
func (p *Producer) Close() error {
	if p.writer != nil {
		return p.writer.Close()
	}
	return nil
}

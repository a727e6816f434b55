package kafka

import (
	"bytes"
	"errors"
	"log/slog"
	"testing"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fifoq/internal/config"
	"fifoq/internal/events"
)

func newTestProducer(t *testing.T) (*Producer, *bytes.Buffer) {
	t.Helper()

	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))
	p := NewProducer(&config.KafkaConfig{
		Brokers: []string{"127.0.0.1:9092"},
		Topic:   "fifoq.queue-events",
	}, logger)
	return p, &buf
}

func TestNewProducer_WritesAsynchronously(t *testing.T) {
	p, _ := newTestProducer(t)

	assert.True(t, p.writer.Async)
	require.NotNil(t, p.writer.Completion)
	assert.Equal(t, "fifoq.queue-events", p.writer.Topic)
}

func TestProducer_CompleteLogsFailedDeliveries(t *testing.T) {
	p, buf := newTestProducer(t)

	msgs := []kafka.Message{{
		Key: []byte("orders"),
		Headers: []kafka.Header{
			{Key: headerEventType, Value: []byte(events.TypeQueueDeleted)},
		},
	}}

	p.complete(msgs, nil)
	assert.Empty(t, buf.String())

	p.complete(msgs, errors.New("broker down"))
	out := buf.String()
	assert.Contains(t, out, "failed to deliver queue event")
	assert.Contains(t, out, "queue=orders")
	assert.Contains(t, out, "type=queue.deleted")
	assert.Contains(t, out, "broker down")
}

func TestHeaderValue(t *testing.T) {
	headers := []kafka.Header{
		{Key: "other", Value: []byte("x")},
		{Key: headerEventType, Value: []byte("queue.created")},
	}

	assert.Equal(t, "queue.created", headerValue(headers, headerEventType))
	assert.Equal(t, "", headerValue(headers, "missing"))
}

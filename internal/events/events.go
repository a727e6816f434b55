// Package events defines the queue lifecycle event feed.
// The engine publishes an event whenever a queue is created, purged or
// deleted; implementations (Kafka, in-memory) carry them to other systems.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

// Type names a lifecycle transition.
type Type string

const (
	TypeQueueCreated Type = "queue.created"
	TypeQueuePurged  Type = "queue.purged"
	TypeQueueDeleted Type = "queue.deleted"
)

// Event describes one lifecycle transition of a queue.
type Event struct {
	Type  Type      `json:"type"`
	Queue string    `json:"queue"`
	At    time.Time `json:"at"`

	// Count is the number of messages removed by a purge or delete.
	Count int64 `json:"count,omitempty"`

	// Implicit marks a queue created by its first enqueue.
	Implicit bool `json:"implicit,omitempty"`
}

// Encode serializes the event for transport.
func (e *Event) Encode() ([]byte, error) {
	data, err := json.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal event: %w", err)
	}
	return data, nil
}

// Decode parses a serialized event.
func Decode(data []byte) (*Event, error) {
	var e Event
	if err := json.Unmarshal(data, &e); err != nil {
		return nil, fmt.Errorf("failed to unmarshal event: %w", err)
	}
	return &e, nil
}

// Publisher sends lifecycle events.
// Implementations must be safe for concurrent use.
type Publisher interface {
	// Publish sends an event. Events for the same queue are keyed
	// together so their order is preserved.
	Publish(ctx context.Context, event *Event) error

	// Close releases any resources held by the publisher.
	Close() error
}

// Handler is a callback for consumed events.
type Handler func(ctx context.Context, event *Event) error

// Consumer reads lifecycle events.
type Consumer interface {
	// Start consumes events and calls handler for each one. It blocks
	// until the context is canceled or an unrecoverable error occurs.
	Start(ctx context.Context, handler Handler) error

	// Close stops consuming and releases any resources.
	Close() error
}

// NopPublisher discards events.
type NopPublisher struct{}

// Publish does nothing.
func (NopPublisher) Publish(context.Context, *Event) error { return nil }

// Close does nothing.
func (NopPublisher) Close() error { return nil }

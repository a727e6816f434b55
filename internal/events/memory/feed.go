// Package memory provides an in-memory implementation of the event feed.
// This is useful for testing and development without a Kafka cluster.
package memory

import (
	"context"
	"errors"
	"sync"

	"fifoq/internal/events"
)

// ErrFeedClosed is returned when publishing to a closed feed.
var ErrFeedClosed = errors.New("event feed is closed")

// ErrFeedFull is returned when the buffer has no room. Publishing never
// blocks so a slow consumer cannot stall queue operations.
var ErrFeedFull = errors.New("event feed buffer is full")

// Feed is an in-memory Publisher and Consumer backed by a buffered channel.
// This implementation is safe for concurrent use.
type Feed struct {
	events chan *events.Event
	closed bool
	mu     sync.RWMutex
	wg     sync.WaitGroup
}

var (
	_ events.Publisher = (*Feed)(nil)
	_ events.Consumer  = (*Feed)(nil)
)

// NewFeed creates a feed holding up to bufferSize undelivered events.
func NewFeed(bufferSize int) *Feed {
	return &Feed{
		events: make(chan *events.Event, bufferSize),
	}
}

// Publish adds an event to the buffer.
func (f *Feed) Publish(ctx context.Context, event *events.Event) error {
	f.mu.RLock()
	defer f.mu.RUnlock()

	if f.closed {
		return ErrFeedClosed
	}

	select {
	case f.events <- event:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	default:
		return ErrFeedFull
	}
}

// Start delivers buffered events to handler until the context is canceled
// or the feed is closed. Handler errors are ignored.
func (f *Feed) Start(ctx context.Context, handler events.Handler) error {
	f.wg.Add(1)
	defer f.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case event, ok := <-f.events:
			if !ok {
				return nil
			}
			_ = handler(ctx, event)
		}
	}
}

// Drain returns every buffered event without blocking.
func (f *Feed) Drain() []*events.Event {
	var out []*events.Event
	for {
		select {
		case event, ok := <-f.events:
			if !ok {
				return out
			}
			out = append(out, event)
		default:
			return out
		}
	}
}

// Close shuts down the feed, stopping all consumers.
func (f *Feed) Close() error {
	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		return nil
	}
	f.closed = true
	close(f.events)
	f.mu.Unlock()

	f.wg.Wait()
	return nil
}

// Len returns the number of undelivered events.
func (f *Feed) Len() int {
	return len(f.events)
}

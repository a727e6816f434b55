package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"fifoq/internal/events"
)

func TestFeed_PublishAndConsume(t *testing.T) {
	feed := NewFeed(4)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	received := make(chan *events.Event, 4)
	go func() {
		_ = feed.Start(ctx, func(_ context.Context, e *events.Event) error {
			received <- e
			return nil
		})
	}()

	err := feed.Publish(ctx, &events.Event{Type: events.TypeQueueCreated, Queue: "orders", At: time.Now()})
	if err != nil {
		t.Fatalf("Publish() error = %v", err)
	}

	select {
	case e := <-received:
		if e.Queue != "orders" || e.Type != events.TypeQueueCreated {
			t.Errorf("unexpected event %+v", e)
		}
	case <-time.After(time.Second):
		t.Fatal("event was not delivered")
	}
}

func TestFeed_FullBufferDoesNotBlock(t *testing.T) {
	feed := NewFeed(1)
	ctx := context.Background()

	if err := feed.Publish(ctx, &events.Event{Type: events.TypeQueuePurged}); err != nil {
		t.Fatalf("first Publish() error = %v", err)
	}
	if err := feed.Publish(ctx, &events.Event{Type: events.TypeQueuePurged}); !errors.Is(err, ErrFeedFull) {
		t.Errorf("second Publish() error = %v, want ErrFeedFull", err)
	}
	if feed.Len() != 1 {
		t.Errorf("Len() = %d, want 1", feed.Len())
	}
}

func TestFeed_Drain(t *testing.T) {
	feed := NewFeed(3)
	ctx := context.Background()

	_ = feed.Publish(ctx, &events.Event{Queue: "a"})
	_ = feed.Publish(ctx, &events.Event{Queue: "b"})

	drained := feed.Drain()
	if len(drained) != 2 || drained[0].Queue != "a" || drained[1].Queue != "b" {
		t.Errorf("Drain() = %+v", drained)
	}
	if feed.Len() != 0 {
		t.Errorf("Len() after drain = %d", feed.Len())
	}
}

func TestFeed_PublishAfterClose(t *testing.T) {
	feed := NewFeed(1)
	if err := feed.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if err := feed.Publish(context.Background(), &events.Event{}); !errors.Is(err, ErrFeedClosed) {
		t.Errorf("Publish() error = %v, want ErrFeedClosed", err)
	}
}

func TestEvent_EncodeDecode(t *testing.T) {
	at := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	in := &events.Event{Type: events.TypeQueueDeleted, Queue: "orders", At: at, Count: 3}

	data, err := in.Encode()
	if err != nil {
		t.Fatalf("Encode() error = %v", err)
	}
	out, err := events.Decode(data)
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	if out.Type != in.Type || out.Queue != in.Queue || out.Count != 3 || !out.At.Equal(at) {
		t.Errorf("round trip mismatch: %+v", out)
	}
}

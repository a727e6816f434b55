package store

import (
	"testing"
	"time"
)

func TestKeys_Layout(t *testing.T) {
	k := NewKeys("")

	if got := k.Messages("orders"); got != "fifoq:queue:orders" {
		t.Errorf("Messages = %q", got)
	}
	if got := k.Metadata("orders"); got != "fifoq:meta:orders" {
		t.Errorf("Metadata = %q", got)
	}
	if got := k.Enqueued("orders"); got != "fifoq:stats:orders:enqueued" {
		t.Errorf("Enqueued = %q", got)
	}
	if got := k.Dequeued("orders"); got != "fifoq:stats:orders:dequeued" {
		t.Errorf("Dequeued = %q", got)
	}
	if got := k.RateBucket("orders", DirectionEnqueue, 42); got != "fifoq:rate:orders:enq:42" {
		t.Errorf("RateBucket = %q", got)
	}
}

func TestKeys_QueueName(t *testing.T) {
	k := NewKeys("app")

	tests := []struct {
		key    string
		want   string
		wantOK bool
	}{
		{"app:queue:orders", "orders", true},
		{"app:meta:billing", "billing", true},
		{"app:stats:orders:enqueued", "", false},
		{"other:queue:orders", "", false},
		{"app:queue:", "", false},
	}

	for _, tt := range tests {
		got, ok := k.QueueName(tt.key)
		if got != tt.want || ok != tt.wantOK {
			t.Errorf("QueueName(%q) = %q, %v; want %q, %v", tt.key, got, ok, tt.want, tt.wantOK)
		}
	}
}

func TestKeys_RateBuckets(t *testing.T) {
	k := NewKeys("")
	now := time.Unix(600, 0) // minute 10

	keys := k.RateBuckets("q", DirectionDequeue, now, 3)
	want := []string{"fifoq:rate:q:deq:10", "fifoq:rate:q:deq:9", "fifoq:rate:q:deq:8"}

	if len(keys) != len(want) {
		t.Fatalf("len = %d, want %d", len(keys), len(want))
	}
	for i := range want {
		if keys[i] != want[i] {
			t.Errorf("keys[%d] = %q, want %q", i, keys[i], want[i])
		}
	}
}

package engine

import (
	"time"

	"fifoq/internal/domain"
)

// EnqueueResult reports a stored message.
type EnqueueResult struct {
	Queue     string    `json:"queue"`
	MessageID string    `json:"messageId"`
	Timestamp time.Time `json:"timestamp"`
}

// BulkEnqueueResult reports a stored batch. MessageIDs follow input order,
// which is also delivery order.
type BulkEnqueueResult struct {
	Queue      string    `json:"queue"`
	Count      int       `json:"count"`
	MessageIDs []string  `json:"messageIds"`
	Timestamp  time.Time `json:"timestamp"`
}

// DequeueResult carries the removed message, or nothing when the wait
// timed out on an empty queue.
type DequeueResult struct {
	Queue   string
	Message *domain.Envelope
}

// Empty reports whether no message arrived before the timeout.
func (r *DequeueResult) Empty() bool {
	return r.Message == nil
}

// PeekResult lists the oldest messages, oldest first.
type PeekResult struct {
	Queue      string
	Messages   []*domain.Envelope
	TotalDepth int64
}

// PurgeResult reports how many messages a purge removed.
type PurgeResult struct {
	Queue       string `json:"queue"`
	PurgedCount int64  `json:"purgedCount"`
}

// DeleteResult reports how many messages were resident when a queue was
// deleted.
type DeleteResult struct {
	Queue           string `json:"queue"`
	DeletedMessages int64  `json:"deletedMessages"`
}

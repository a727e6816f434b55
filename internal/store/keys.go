package store

import (
	"fmt"
	"strings"
	"time"
)

// DefaultKeyPrefix namespaces all keys written by the engine.
const DefaultKeyPrefix = "fifoq"

// Rate bucket directions.
const (
	DirectionEnqueue = "enq"
	DirectionDequeue = "deq"
)

// Keys builds the key layout for queues:
//
//	<prefix>:queue:<name>              message list
//	<prefix>:meta:<name>               metadata record
//	<prefix>:stats:<name>:enqueued     lifetime enqueue counter
//	<prefix>:stats:<name>:dequeued     lifetime dequeue counter
//	<prefix>:rate:<name>:<dir>:<min>   per-minute rate bucket
type Keys struct {
	prefix string
}

// NewKeys returns a key builder for prefix, falling back to DefaultKeyPrefix.
func NewKeys(prefix string) Keys {
	if prefix == "" {
		prefix = DefaultKeyPrefix
	}
	return Keys{prefix: prefix}
}

// Prefix returns the namespace prefix.
func (k Keys) Prefix() string {
	return k.prefix
}

// Messages is the list holding a queue's envelopes.
func (k Keys) Messages(queue string) string {
	return k.MessagesPrefix() + queue
}

// Metadata is the record marking a queue as created.
func (k Keys) Metadata(queue string) string {
	return k.MetadataPrefix() + queue
}

// Enqueued is the lifetime enqueue counter.
func (k Keys) Enqueued(queue string) string {
	return fmt.Sprintf("%s:stats:%s:enqueued", k.prefix, queue)
}

// Dequeued is the lifetime dequeue counter.
func (k Keys) Dequeued(queue string) string {
	return fmt.Sprintf("%s:stats:%s:dequeued", k.prefix, queue)
}

// RateBucket is the counter for one minute of traffic in one direction.
func (k Keys) RateBucket(queue, direction string, minute int64) string {
	return fmt.Sprintf("%s:rate:%s:%s:%d", k.prefix, queue, direction, minute)
}

// RateBuckets returns the bucket keys for the n minutes ending at now,
// newest first.
func (k Keys) RateBuckets(queue, direction string, now time.Time, n int) []string {
	current := MinuteOf(now)
	keys := make([]string, n)
	for i := 0; i < n; i++ {
		keys[i] = k.RateBucket(queue, direction, current-int64(i))
	}
	return keys
}

// MessagesPrefix is the common prefix of all message lists.
func (k Keys) MessagesPrefix() string {
	return k.prefix + ":queue:"
}

// MetadataPrefix is the common prefix of all metadata records.
func (k Keys) MetadataPrefix() string {
	return k.prefix + ":meta:"
}

// QueueName extracts the queue name from a message-list or metadata key.
func (k Keys) QueueName(key string) (string, bool) {
	for _, p := range []string{k.MessagesPrefix(), k.MetadataPrefix()} {
		if name, ok := strings.CutPrefix(key, p); ok && name != "" {
			return name, true
		}
	}
	return "", false
}

// MinuteOf returns the unix minute containing t.
func MinuteOf(t time.Time) int64 {
	return t.Unix() / 60
}

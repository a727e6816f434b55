// Package domain contains the entities handled by the queue engine:
// message envelopes, queue metadata and the statistics views built from them.
package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
	"regexp"
	"time"

	"github.com/google/uuid"
)

// MaxQueueNameLength is the longest accepted queue name.
const MaxQueueNameLength = 64

var queueNamePattern = regexp.MustCompile(`^[A-Za-z0-9_-]{1,64}$`)

// ValidateQueueName checks a queue name against the allowed character set
// and length.
func ValidateQueueName(name string) error {
	if !queueNamePattern.MatchString(name) {
		return NewError(KindInvalidQueueName,
			"queue name %q must match %s", name, queueNamePattern.String())
	}
	return nil
}

// Envelope wraps a caller payload with its identity and timestamps.
type Envelope struct {
	// ID is a random UUID assigned at enqueue time.
	ID string `json:"id"`

	// Payload is the caller's value, kept byte for byte. It is stored as
	// base64 inside the encoded envelope.
	Payload []byte `json:"payload"`

	// EnqueuedAt is set once when the envelope is created.
	EnqueuedAt time.Time `json:"enqueuedAt"`

	// DequeuedAt is set by the dequeue that removed the message.
	DequeuedAt *time.Time `json:"dequeuedAt,omitempty"`
}

// NewEnvelope builds an envelope with a fresh id around a copy of payload.
func NewEnvelope(payload []byte, now time.Time) *Envelope {
	return &Envelope{
		ID:         uuid.NewString(),
		Payload:    bytes.Clone(payload),
		EnqueuedAt: now.UTC(),
	}
}

// MarkDequeued stamps the removal time. Later calls are ignored.
func (e *Envelope) MarkDequeued(now time.Time) {
	if e.DequeuedAt != nil {
		return
	}
	t := now.UTC()
	e.DequeuedAt = &t
}

// Age returns how long ago the envelope was enqueued.
func (e *Envelope) Age(now time.Time) time.Duration {
	return now.Sub(e.EnqueuedAt)
}

// Encode serializes the envelope for storage.
func (e *Envelope) Encode() ([]byte, error) {
	data, err := json.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal envelope: %w", err)
	}
	return data, nil
}

// DecodeEnvelope parses a stored envelope.
func DecodeEnvelope(data []byte) (*Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("failed to unmarshal envelope: %w", err)
	}
	return &env, nil
}

// MessageView is the JSON form of an envelope shown to callers. A payload
// that is well-formed JSON is embedded as is; any other payload appears as
// a JSON string.
type MessageView struct {
	ID         string          `json:"id"`
	Payload    json.RawMessage `json:"payload"`
	EnqueuedAt time.Time       `json:"enqueuedAt"`
	DequeuedAt *time.Time      `json:"dequeuedAt,omitempty"`
}

// View returns the caller-facing form of the envelope.
func (e *Envelope) View() *MessageView {
	return &MessageView{
		ID:         e.ID,
		Payload:    viewPayload(e.Payload),
		EnqueuedAt: e.EnqueuedAt,
		DequeuedAt: e.DequeuedAt,
	}
}

// Views converts envelopes, keeping their order.
func Views(envs []*Envelope) []*MessageView {
	out := make([]*MessageView, len(envs))
	for i, env := range envs {
		out[i] = env.View()
	}
	return out
}

func viewPayload(payload []byte) json.RawMessage {
	if len(payload) == 0 {
		return json.RawMessage("null")
	}
	if json.Valid(payload) {
		return payload
	}
	quoted, _ := json.Marshal(string(payload))
	return quoted
}

// QueueMetadata is the side record that marks a queue as existing.
// It is written once and only removed by deleting the queue.
type QueueMetadata struct {
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"createdAt"`
}

// NewQueueMetadata returns metadata for a queue created at now.
func NewQueueMetadata(name string, now time.Time) *QueueMetadata {
	return &QueueMetadata{Name: name, CreatedAt: now.UTC()}
}

// Encode serializes the metadata record.
func (m *QueueMetadata) Encode() ([]byte, error) {
	data, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal queue metadata: %w", err)
	}
	return data, nil
}

// DecodeQueueMetadata parses a stored metadata record.
func DecodeQueueMetadata(data []byte) (*QueueMetadata, error) {
	var m QueueMetadata
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("failed to unmarshal queue metadata: %w", err)
	}
	return &m, nil
}

// QueueInfo describes a queue's current depth, lifetime totals and the
// age of its oldest and newest resident messages.
type QueueInfo struct {
	Name          string     `json:"name"`
	Depth         int64      `json:"depth"`
	TotalEnqueued int64      `json:"totalEnqueued"`
	TotalDequeued int64      `json:"totalDequeued"`
	CreatedAt     *time.Time `json:"createdAt,omitempty"`

	// OldestMessageAgeMs and NewestMessageAgeMs are nil when the queue is empty.
	OldestMessageAgeMs *int64 `json:"oldestMessageAgeMs,omitempty"`
	NewestMessageAgeMs *int64 `json:"newestMessageAgeMs,omitempty"`
}

// QueueSummary is one row of the queue listing.
type QueueSummary struct {
	Name               string     `json:"name"`
	Depth              int64      `json:"depth"`
	CreatedAt          *time.Time `json:"createdAt,omitempty"`
	OldestMessageAgeMs *int64     `json:"oldestMessageAgeMs,omitempty"`
}

// Rates holds windowed throughput for one direction (enqueue or dequeue).
type Rates struct {
	PerSecond float64 `json:"perSecond"`
	PerMinute float64 `json:"perMinute"`
	PerHour   int64   `json:"perHour"`
}

// QueueStats combines depth, lifetime counters and windowed rates.
type QueueStats struct {
	Queue         string `json:"queue"`
	Depth         int64  `json:"depth"`
	TotalEnqueued int64  `json:"totalEnqueued"`
	TotalDequeued int64  `json:"totalDequeued"`
	EnqueueRate   Rates  `json:"enqueueRate"`
	DequeueRate   Rates  `json:"dequeueRate"`
}

// AgeMillis converts an age to a pointer in milliseconds, clamping skew
// between instances to zero.
func AgeMillis(d time.Duration) *int64 {
	ms := d.Milliseconds()
	if ms < 0 {
		ms = 0
	}
	return &ms
}

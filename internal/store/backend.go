// Package store defines the primitive contract the queue engine needs from
// the shared backing store. Implementations (Redis, in-memory) must make
// every primitive atomic with respect to concurrent callers in any process.
package store

import (
	"context"
	"time"
)

// OpKind identifies a primitive inside a batch.
type OpKind int

const (
	// OpPushHead appends values to the head of a list.
	OpPushHead OpKind = iota
	// OpIncrement adds to a scalar counter.
	OpIncrement
	// OpDelete removes keys entirely.
	OpDelete
)

// Op is a single primitive call submitted as part of a Batch.
type Op struct {
	Kind   OpKind
	Key    string
	Keys   []string
	Values [][]byte
	By     int64

	// TTL, when positive, sets an expiry on the key after an increment.
	TTL time.Duration
}

// PushHeadOp appends values to the head of the list at key, in order.
func PushHeadOp(key string, values ...[]byte) Op {
	return Op{Kind: OpPushHead, Key: key, Values: values}
}

// IncrementOp adds by to the counter at key.
func IncrementOp(key string, by int64) Op {
	return Op{Kind: OpIncrement, Key: key, By: by}
}

// IncrementWithTTLOp adds by to the counter at key and refreshes its expiry.
func IncrementWithTTLOp(key string, by int64, ttl time.Duration) Op {
	return Op{Kind: OpIncrement, Key: key, By: by, TTL: ttl}
}

// DeleteOp removes the given keys.
func DeleteOp(keys ...string) Op {
	return Op{Kind: OpDelete, Keys: keys}
}

// Backend is the set of primitives the engine composes its operations from.
// All methods must be safe for concurrent use. Lists are addressed in head
// to tail order: index 0 is the most recently pushed element and -1 the
// oldest, matching Redis list semantics.
type Backend interface {
	// PushHead atomically appends values to the head of a list and
	// returns its new length.
	PushHead(ctx context.Context, key string, values ...[]byte) (int64, error)

	// BlockingPopTail atomically removes and returns the oldest element,
	// waiting up to timeout for one to arrive. It returns nil, nil when the
	// timeout elapses with the list still empty. A zero timeout pops
	// without waiting.
	BlockingPopTail(ctx context.Context, key string, timeout time.Duration) ([]byte, error)

	// RangeRead returns elements start..stop inclusive without removing them.
	RangeRead(ctx context.Context, key string, start, stop int64) ([][]byte, error)

	// Length returns the number of elements in a list (0 if absent).
	Length(ctx context.Context, key string) (int64, error)

	// Exists returns how many of the given keys exist.
	Exists(ctx context.Context, keys ...string) (int64, error)

	// Get returns a scalar value, or nil, nil when the key is absent.
	Get(ctx context.Context, key string) ([]byte, error)

	// SetIfAbsent writes value only when key does not exist and reports
	// whether it did.
	SetIfAbsent(ctx context.Context, key string, value []byte) (bool, error)

	// Delete removes keys and returns how many existed.
	Delete(ctx context.Context, keys ...string) (int64, error)

	// Increment atomically adds by to a counter and returns the new value.
	Increment(ctx context.Context, key string, by int64) (int64, error)

	// Counters reads several counters at once; absent keys read as 0.
	Counters(ctx context.Context, keys ...string) ([]int64, error)

	// ScanPrefix returns every key starting with prefix.
	ScanPrefix(ctx context.Context, prefix string) ([]string, error)

	// Batch applies ops with all-or-nothing visibility: concurrent readers
	// observe either none or all of their effects.
	Batch(ctx context.Context, ops ...Op) error

	// Ping verifies the store is reachable.
	Ping(ctx context.Context) error

	// Close releases connections held by the backend.
	Close() error
}

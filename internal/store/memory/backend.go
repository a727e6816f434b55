// Package memory provides an in-process implementation of store.Backend.
// It is useful for development and testing without a Redis server; every
// engine instance sharing one Backend value behaves like instances sharing
// one Redis.
package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"fifoq/internal/domain"
	"fifoq/internal/store"
)

// Backend is an in-memory store.Backend. A single mutex serializes all
// primitives, which gives the same atomicity Redis provides per command.
// Counter expiry is checked on access (lazy expiration).
type Backend struct {
	mu sync.Mutex

	// lists stores each list oldest-first, so the head is the last element.
	lists map[string][][]byte

	// values stores scalar records such as queue metadata.
	values map[string][]byte

	counters map[string]*counter

	// signals holds one channel per list with blocked poppers; it is
	// closed and removed whenever the list receives new elements.
	signals map[string]chan struct{}

	closed bool
	now    func() time.Time
}

type counter struct {
	value     int64
	expiresAt time.Time
}

// NewBackend creates an empty in-memory backend.
func NewBackend() *Backend {
	return &Backend{
		lists:    make(map[string][][]byte),
		values:   make(map[string][]byte),
		counters: make(map[string]*counter),
		signals:  make(map[string]chan struct{}),
		now:      time.Now,
	}
}

var _ store.Backend = (*Backend)(nil)

func (b *Backend) checkOpen() error {
	if b.closed {
		return domain.WrapError(domain.KindBackingStoreUnavailable, ErrClosed, "memory store unavailable")
	}
	return nil
}

// PushHead appends values to the head of the list and wakes blocked poppers.
func (b *Backend) PushHead(ctx context.Context, key string, values ...[]byte) (int64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if err := b.checkOpen(); err != nil {
		return 0, err
	}
	return b.pushLocked(key, values), nil
}

func (b *Backend) pushLocked(key string, values [][]byte) int64 {
	list := b.lists[key]
	for _, v := range values {
		c := make([]byte, len(v))
		copy(c, v)
		list = append(list, c)
	}
	b.lists[key] = list

	if ch, ok := b.signals[key]; ok {
		close(ch)
		delete(b.signals, key)
	}
	return int64(len(list))
}

func (b *Backend) popTailLocked(key string) ([]byte, bool) {
	list := b.lists[key]
	if len(list) == 0 {
		return nil, false
	}
	v := list[0]
	list[0] = nil
	list = list[1:]
	if len(list) == 0 {
		delete(b.lists, key)
	} else {
		b.lists[key] = list
	}
	return v, true
}

func (b *Backend) signalLocked(key string) chan struct{} {
	ch, ok := b.signals[key]
	if !ok {
		ch = make(chan struct{})
		b.signals[key] = ch
	}
	return ch
}

// BlockingPopTail removes the oldest element, waiting up to timeout.
func (b *Backend) BlockingPopTail(ctx context.Context, key string, timeout time.Duration) ([]byte, error) {
	deadline := time.Now().Add(timeout)

	for {
		b.mu.Lock()
		if err := b.checkOpen(); err != nil {
			b.mu.Unlock()
			return nil, err
		}
		if v, ok := b.popTailLocked(key); ok {
			b.mu.Unlock()
			return v, nil
		}
		if timeout <= 0 {
			b.mu.Unlock()
			return nil, nil
		}
		wake := b.signalLocked(key)
		b.mu.Unlock()

		remaining := time.Until(deadline)
		if remaining <= 0 {
			return nil, nil
		}

		timer := time.NewTimer(remaining)
		select {
		case <-wake:
			timer.Stop()
		case <-timer.C:
			return nil, nil
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		}
	}
}

// RangeRead returns list elements start..stop in head-to-tail order.
func (b *Backend) RangeRead(ctx context.Context, key string, start, stop int64) ([][]byte, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if err := b.checkOpen(); err != nil {
		return nil, err
	}

	list := b.lists[key]
	n := int64(len(list))
	if start < 0 {
		start += n
	}
	if stop < 0 {
		stop += n
	}
	if start < 0 {
		start = 0
	}
	if stop >= n {
		stop = n - 1
	}
	if n == 0 || start > stop {
		return [][]byte{}, nil
	}

	out := make([][]byte, 0, stop-start+1)
	for i := start; i <= stop; i++ {
		src := list[n-1-i]
		c := make([]byte, len(src))
		copy(c, src)
		out = append(out, c)
	}
	return out, nil
}

// Length returns the list length.
func (b *Backend) Length(ctx context.Context, key string) (int64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if err := b.checkOpen(); err != nil {
		return 0, err
	}
	return int64(len(b.lists[key])), nil
}

// Exists counts how many keys are present.
func (b *Backend) Exists(ctx context.Context, keys ...string) (int64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if err := b.checkOpen(); err != nil {
		return 0, err
	}

	var n int64
	for _, key := range keys {
		if b.existsLocked(key) {
			n++
		}
	}
	return n, nil
}

func (b *Backend) existsLocked(key string) bool {
	if len(b.lists[key]) > 0 {
		return true
	}
	if _, ok := b.values[key]; ok {
		return true
	}
	_, ok := b.liveCounterLocked(key)
	return ok
}

func (b *Backend) liveCounterLocked(key string) (*counter, bool) {
	c, ok := b.counters[key]
	if !ok {
		return nil, false
	}
	if !c.expiresAt.IsZero() && !b.now().Before(c.expiresAt) {
		delete(b.counters, key)
		return nil, false
	}
	return c, true
}

// Get returns a scalar value or nil when absent.
func (b *Backend) Get(ctx context.Context, key string) ([]byte, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if err := b.checkOpen(); err != nil {
		return nil, err
	}

	v, ok := b.values[key]
	if !ok {
		return nil, nil
	}
	out := make([]byte, len(v))
	copy(out, v)
	return out, nil
}

// SetIfAbsent stores value only when key is not present.
func (b *Backend) SetIfAbsent(ctx context.Context, key string, value []byte) (bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if err := b.checkOpen(); err != nil {
		return false, err
	}
	if b.existsLocked(key) {
		return false, nil
	}

	c := make([]byte, len(value))
	copy(c, value)
	b.values[key] = c
	return true, nil
}

// Delete removes keys of any type.
func (b *Backend) Delete(ctx context.Context, keys ...string) (int64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if err := b.checkOpen(); err != nil {
		return 0, err
	}
	return b.deleteLocked(keys), nil
}

func (b *Backend) deleteLocked(keys []string) int64 {
	var n int64
	for _, key := range keys {
		if b.existsLocked(key) {
			n++
		}
		delete(b.lists, key)
		delete(b.values, key)
		delete(b.counters, key)
	}
	return n
}

// Increment adds by to a counter.
func (b *Backend) Increment(ctx context.Context, key string, by int64) (int64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if err := b.checkOpen(); err != nil {
		return 0, err
	}
	return b.incrementLocked(key, by, 0), nil
}

func (b *Backend) incrementLocked(key string, by int64, ttl time.Duration) int64 {
	c, ok := b.liveCounterLocked(key)
	if !ok {
		c = &counter{}
		b.counters[key] = c
	}
	c.value += by
	if ttl > 0 {
		c.expiresAt = b.now().Add(ttl)
	}
	return c.value
}

// Counters reads counter values, treating absent keys as zero.
func (b *Backend) Counters(ctx context.Context, keys ...string) ([]int64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if err := b.checkOpen(); err != nil {
		return nil, err
	}

	out := make([]int64, len(keys))
	for i, key := range keys {
		if c, ok := b.liveCounterLocked(key); ok {
			out[i] = c.value
		}
	}
	return out, nil
}

// ScanPrefix lists keys starting with prefix in sorted order.
func (b *Backend) ScanPrefix(ctx context.Context, prefix string) ([]string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if err := b.checkOpen(); err != nil {
		return nil, err
	}

	seen := make(map[string]struct{})
	for key, list := range b.lists {
		if len(list) > 0 && strings.HasPrefix(key, prefix) {
			seen[key] = struct{}{}
		}
	}
	for key := range b.values {
		if strings.HasPrefix(key, prefix) {
			seen[key] = struct{}{}
		}
	}
	for key := range b.counters {
		if _, live := b.liveCounterLocked(key); live && strings.HasPrefix(key, prefix) {
			seen[key] = struct{}{}
		}
	}

	keys := make([]string, 0, len(seen))
	for key := range seen {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys, nil
}

// Batch applies all ops under one lock acquisition.
func (b *Backend) Batch(ctx context.Context, ops ...store.Op) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if err := b.checkOpen(); err != nil {
		return err
	}

	for _, op := range ops {
		switch op.Kind {
		case store.OpPushHead:
			b.pushLocked(op.Key, op.Values)
		case store.OpIncrement:
			b.incrementLocked(op.Key, op.By, op.TTL)
		case store.OpDelete:
			b.deleteLocked(op.Keys)
		}
	}
	return nil
}

// Ping fails once the backend is closed.
func (b *Backend) Ping(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.checkOpen()
}

// Close marks the backend closed and releases blocked poppers.
func (b *Backend) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil
	}
	b.closed = true
	for key, ch := range b.signals {
		close(ch)
		delete(b.signals, key)
	}
	return nil
}

package memory

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fifoq/internal/domain"
	"fifoq/internal/store"
)

func values(items ...string) [][]byte {
	out := make([][]byte, len(items))
	for i, s := range items {
		out[i] = []byte(s)
	}
	return out
}

func strs(items [][]byte) []string {
	out := make([]string, len(items))
	for i, b := range items {
		out[i] = string(b)
	}
	return out
}

func TestBackend_PushPopIsFIFO(t *testing.T) {
	ctx := context.Background()
	b := NewBackend()

	n, err := b.PushHead(ctx, "q", values("a", "b")...)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	n, err = b.PushHead(ctx, "q", []byte("c"))
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)

	for _, want := range []string{"a", "b", "c"} {
		got, err := b.BlockingPopTail(ctx, "q", 0)
		require.NoError(t, err)
		assert.Equal(t, want, string(got))
	}

	got, err := b.BlockingPopTail(ctx, "q", 0)
	require.NoError(t, err)
	assert.Nil(t, got)

	exists, err := b.Exists(ctx, "q")
	require.NoError(t, err)
	assert.Zero(t, exists, "an emptied list should no longer exist")
}

func TestBackend_RangeReadHeadFirst(t *testing.T) {
	ctx := context.Background()
	b := NewBackend()

	_, err := b.PushHead(ctx, "q", values("1", "2", "3", "4")...)
	require.NoError(t, err)

	all, err := b.RangeRead(ctx, "q", 0, -1)
	require.NoError(t, err)
	assert.Equal(t, []string{"4", "3", "2", "1"}, strs(all))

	tail, err := b.RangeRead(ctx, "q", -2, -1)
	require.NoError(t, err)
	assert.Equal(t, []string{"2", "1"}, strs(tail))

	wide, err := b.RangeRead(ctx, "q", -100, -1)
	require.NoError(t, err)
	assert.Len(t, wide, 4)

	missing, err := b.RangeRead(ctx, "nope", -10, -1)
	require.NoError(t, err)
	assert.Empty(t, missing)

	length, err := b.Length(ctx, "q")
	require.NoError(t, err)
	assert.Equal(t, int64(4), length, "range read must not remove elements")
}

func TestBackend_BlockingPopWaitsForPush(t *testing.T) {
	ctx := context.Background()
	b := NewBackend()

	go func() {
		time.Sleep(50 * time.Millisecond)
		_, _ = b.PushHead(ctx, "q", []byte("late"))
	}()

	start := time.Now()
	got, err := b.BlockingPopTail(ctx, "q", 2*time.Second)
	require.NoError(t, err)
	assert.Equal(t, "late", string(got))
	assert.Less(t, time.Since(start), time.Second)
}

func TestBackend_BlockingPopTimesOut(t *testing.T) {
	b := NewBackend()

	start := time.Now()
	got, err := b.BlockingPopTail(context.Background(), "q", 150*time.Millisecond)
	elapsed := time.Since(start)

	require.NoError(t, err)
	assert.Nil(t, got)
	assert.GreaterOrEqual(t, elapsed, 140*time.Millisecond)
	assert.Less(t, elapsed, time.Second)
}

func TestBackend_BlockingPopHonoursContext(t *testing.T) {
	b := NewBackend()
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := b.BlockingPopTail(ctx, "q", 5*time.Second)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestBackend_SingleElementDeliveredOnce(t *testing.T) {
	ctx := context.Background()
	b := NewBackend()

	const poppers = 8
	results := make(chan []byte, poppers)
	var wg sync.WaitGroup
	for i := 0; i < poppers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			v, err := b.BlockingPopTail(ctx, "q", 300*time.Millisecond)
			if err == nil && v != nil {
				results <- v
			}
		}()
	}

	time.Sleep(20 * time.Millisecond)
	_, err := b.PushHead(ctx, "q", []byte("only"))
	require.NoError(t, err)

	wg.Wait()
	close(results)
	assert.Len(t, results, 1)
}

func TestBackend_SetIfAbsentAndGet(t *testing.T) {
	ctx := context.Background()
	b := NewBackend()

	ok, err := b.SetIfAbsent(ctx, "meta", []byte("first"))
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = b.SetIfAbsent(ctx, "meta", []byte("second"))
	require.NoError(t, err)
	assert.False(t, ok)

	v, err := b.Get(ctx, "meta")
	require.NoError(t, err)
	assert.Equal(t, "first", string(v))

	v, err = b.Get(ctx, "missing")
	require.NoError(t, err)
	assert.Nil(t, v)
}

func TestBackend_CountersAndExpiry(t *testing.T) {
	ctx := context.Background()
	b := NewBackend()
	now := time.Unix(1000, 0)
	b.now = func() time.Time { return now }

	v, err := b.Increment(ctx, "c", 2)
	require.NoError(t, err)
	assert.Equal(t, int64(2), v)

	require.NoError(t, b.Batch(ctx, store.IncrementWithTTLOp("bucket", 5, time.Minute)))

	got, err := b.Counters(ctx, "c", "bucket", "absent")
	require.NoError(t, err)
	assert.Equal(t, []int64{2, 5, 0}, got)

	now = now.Add(2 * time.Minute)
	got, err = b.Counters(ctx, "bucket")
	require.NoError(t, err)
	assert.Equal(t, []int64{0}, got, "expired bucket should read as zero")
}

func TestBackend_BatchAndDelete(t *testing.T) {
	ctx := context.Background()
	b := NewBackend()

	err := b.Batch(ctx,
		store.PushHeadOp("list", values("x", "y")...),
		store.IncrementOp("count", 2),
	)
	require.NoError(t, err)

	_, err = b.SetIfAbsent(ctx, "meta", []byte("m"))
	require.NoError(t, err)

	exists, err := b.Exists(ctx, "list", "count", "meta", "other")
	require.NoError(t, err)
	assert.Equal(t, int64(3), exists)

	require.NoError(t, b.Batch(ctx, store.DeleteOp("list", "count", "meta")))

	exists, err = b.Exists(ctx, "list", "count", "meta")
	require.NoError(t, err)
	assert.Zero(t, exists)
}

func TestBackend_ScanPrefix(t *testing.T) {
	ctx := context.Background()
	b := NewBackend()

	_, _ = b.PushHead(ctx, "p:queue:b", []byte("1"))
	_, _ = b.SetIfAbsent(ctx, "p:queue:a", []byte("1"))
	_, _ = b.Increment(ctx, "p:stats:a", 1)

	keys, err := b.ScanPrefix(ctx, "p:queue:")
	require.NoError(t, err)
	assert.Equal(t, []string{"p:queue:a", "p:queue:b"}, keys)
}

func TestBackend_ClosedIsUnavailable(t *testing.T) {
	ctx := context.Background()
	b := NewBackend()

	done := make(chan error, 1)
	go func() {
		_, err := b.BlockingPopTail(ctx, "q", 5*time.Second)
		done <- err
	}()
	time.Sleep(20 * time.Millisecond)

	require.NoError(t, b.Close())

	select {
	case err := <-done:
		assert.True(t, errors.Is(err, domain.ErrBackingStoreUnavailable))
	case <-time.After(time.Second):
		t.Fatal("blocked pop was not released by Close")
	}

	_, err := b.PushHead(ctx, "q", []byte("x"))
	assert.ErrorIs(t, err, domain.ErrBackingStoreUnavailable)
	assert.ErrorIs(t, b.Ping(ctx), ErrClosed)
}

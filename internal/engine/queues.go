package engine

import (
	"context"
	"fmt"
	"sort"
	"time"

	"fifoq/internal/domain"
	"fifoq/internal/events"
	"fifoq/internal/metrics"
	"fifoq/internal/store"
)

// Create registers an empty queue. It fails with ErrQueueAlreadyExists
// when the queue has metadata already.
func (e *Engine) Create(ctx context.Context, queue string) (meta *domain.QueueMetadata, err error) {
	ctx, finish := e.begin(ctx, "create", queue)
	defer func() { finish(err) }()

	if err := domain.ValidateQueueName(queue); err != nil {
		return nil, err
	}

	now := e.now()
	created, err := e.createMetadata(ctx, queue, now)
	if err != nil {
		return nil, err
	}
	if !created {
		return nil, domain.NewError(domain.KindQueueAlreadyExists, "queue %q already exists", queue)
	}

	e.logger.Info("queue created", "queue", queue)
	e.publish(ctx, &events.Event{
		Type:  events.TypeQueueCreated,
		Queue: queue,
		At:    now.UTC(),
	})

	return domain.NewQueueMetadata(queue, now), nil
}

// Info reports depth, lifetime totals and message ages for a queue.
func (e *Engine) Info(ctx context.Context, queue string) (info *domain.QueueInfo, err error) {
	ctx, finish := e.begin(ctx, "info", queue)
	defer func() { finish(err) }()

	if err := domain.ValidateQueueName(queue); err != nil {
		return nil, err
	}

	info, err = retryRead(ctx, e, "info", func(ctx context.Context) (*domain.QueueInfo, error) {
		return e.readInfo(ctx, queue)
	})
	if err != nil {
		return nil, err
	}

	metrics.QueueDepth.WithLabelValues(queue).Set(float64(info.Depth))
	return info, nil
}

func (e *Engine) readInfo(ctx context.Context, queue string) (*domain.QueueInfo, error) {
	ok, err := e.exists(ctx, queue)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, domain.NewError(domain.KindQueueNotFound, "queue %q not found", queue)
	}

	key := e.keys.Messages(queue)
	depth, err := e.backend.Length(ctx, key)
	if err != nil {
		return nil, err
	}
	totals, err := e.backend.Counters(ctx, e.keys.Enqueued(queue), e.keys.Dequeued(queue))
	if err != nil {
		return nil, err
	}

	info := &domain.QueueInfo{
		Name:          queue,
		Depth:         depth,
		TotalEnqueued: totals[0],
		TotalDequeued: totals[1],
	}

	if info.CreatedAt, err = e.readCreatedAt(ctx, queue); err != nil {
		return nil, err
	}

	if depth > 0 {
		now := e.now()
		if oldest, err := e.envelopeAt(ctx, key, -1); err != nil {
			return nil, err
		} else if oldest != nil {
			info.OldestMessageAgeMs = domain.AgeMillis(oldest.Age(now))
		}
		if newest, err := e.envelopeAt(ctx, key, 0); err != nil {
			return nil, err
		} else if newest != nil {
			info.NewestMessageAgeMs = domain.AgeMillis(newest.Age(now))
		}
	}

	return info, nil
}

// Delete removes a queue's messages, metadata, counters and rate buckets
// in one atomic batch.
func (e *Engine) Delete(ctx context.Context, queue string) (res *DeleteResult, err error) {
	ctx, finish := e.begin(ctx, "delete", queue)
	defer func() { finish(err) }()

	if err := domain.ValidateQueueName(queue); err != nil {
		return nil, err
	}

	ok, err := e.exists(ctx, queue)
	if err != nil {
		return nil, fmt.Errorf("failed to check queue: %w", err)
	}
	if !ok {
		return nil, domain.NewError(domain.KindQueueNotFound, "queue %q not found", queue)
	}

	depth, err := e.backend.Length(ctx, e.keys.Messages(queue))
	if err != nil {
		return nil, fmt.Errorf("failed to read queue depth: %w", err)
	}

	now := e.now()
	if err := e.backend.Batch(ctx, store.DeleteOp(e.queueKeys(queue, now)...)); err != nil {
		e.logger.Error("failed to delete queue", "queue", queue, "error", err)
		return nil, fmt.Errorf("failed to delete queue: %w", err)
	}

	metrics.ForgetQueue(queue)
	e.logger.Info("queue deleted", "queue", queue, "messages", depth)

	e.publish(ctx, &events.Event{
		Type:  events.TypeQueueDeleted,
		Queue: queue,
		At:    now.UTC(),
		Count: depth,
	})

	return &DeleteResult{Queue: queue, DeletedMessages: depth}, nil
}

// List enumerates every queue that has messages or metadata, sorted by
// name.
func (e *Engine) List(ctx context.Context) (queues []*domain.QueueSummary, err error) {
	ctx, finish := e.begin(ctx, "list", "")
	defer func() { finish(err) }()

	return retryRead(ctx, e, "list", e.readList)
}

func (e *Engine) readList(ctx context.Context) ([]*domain.QueueSummary, error) {
	names := make(map[string]struct{})
	for _, prefix := range []string{e.keys.MessagesPrefix(), e.keys.MetadataPrefix()} {
		keys, err := e.backend.ScanPrefix(ctx, prefix)
		if err != nil {
			return nil, err
		}
		for _, k := range keys {
			name, ok := e.keys.QueueName(k)
			if !ok || domain.ValidateQueueName(name) != nil {
				continue
			}
			names[name] = struct{}{}
		}
	}

	sorted := make([]string, 0, len(names))
	for name := range names {
		sorted = append(sorted, name)
	}
	sort.Strings(sorted)

	now := e.now()
	out := make([]*domain.QueueSummary, 0, len(sorted))
	for _, name := range sorted {
		key := e.keys.Messages(name)
		depth, err := e.backend.Length(ctx, key)
		if err != nil {
			return nil, err
		}
		summary := &domain.QueueSummary{Name: name, Depth: depth}
		if summary.CreatedAt, err = e.readCreatedAt(ctx, name); err != nil {
			return nil, err
		}
		if depth > 0 {
			oldest, err := e.envelopeAt(ctx, key, -1)
			if err != nil {
				return nil, err
			}
			if oldest != nil {
				summary.OldestMessageAgeMs = domain.AgeMillis(oldest.Age(now))
			}
		}
		out = append(out, summary)
	}
	return out, nil
}

// Stats reports depth, lifetime totals and windowed rates for a queue.
func (e *Engine) Stats(ctx context.Context, queue string) (stats *domain.QueueStats, err error) {
	ctx, finish := e.begin(ctx, "stats", queue)
	defer func() { finish(err) }()

	if err := domain.ValidateQueueName(queue); err != nil {
		return nil, err
	}

	return retryRead(ctx, e, "stats", func(ctx context.Context) (*domain.QueueStats, error) {
		return e.readStats(ctx, queue)
	})
}

func (e *Engine) readStats(ctx context.Context, queue string) (*domain.QueueStats, error) {
	ok, err := e.exists(ctx, queue)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, domain.NewError(domain.KindQueueNotFound, "queue %q not found", queue)
	}

	depth, err := e.backend.Length(ctx, e.keys.Messages(queue))
	if err != nil {
		return nil, err
	}

	now := e.now()
	keys := []string{e.keys.Enqueued(queue), e.keys.Dequeued(queue)}
	keys = append(keys, e.keys.RateBuckets(queue, store.DirectionEnqueue, now, rateWindowMinutes)...)
	keys = append(keys, e.keys.RateBuckets(queue, store.DirectionDequeue, now, rateWindowMinutes)...)

	values, err := e.backend.Counters(ctx, keys...)
	if err != nil {
		return nil, err
	}

	enq := values[2 : 2+rateWindowMinutes]
	deq := values[2+rateWindowMinutes:]

	return &domain.QueueStats{
		Queue:         queue,
		Depth:         depth,
		TotalEnqueued: values[0],
		TotalDequeued: values[1],
		EnqueueRate:   computeRates(enq, now),
		DequeueRate:   computeRates(deq, now),
	}, nil
}

// computeRates derives windowed rates from per-minute buckets, newest
// first. The per-minute figure is a sliding window: the current partial
// minute plus the unexpired share of the previous one.
func computeRates(buckets []int64, now time.Time) domain.Rates {
	if len(buckets) == 0 {
		return domain.Rates{}
	}

	elapsed := float64(now.Unix()%60) + float64(now.Nanosecond())/float64(time.Second)
	perMinute := float64(buckets[0])
	if len(buckets) > 1 {
		perMinute += float64(buckets[1]) * (60 - elapsed) / 60
	}

	var perHour int64
	for _, b := range buckets {
		perHour += b
	}

	return domain.Rates{
		PerSecond: perMinute / 60,
		PerMinute: perMinute,
		PerHour:   perHour,
	}
}

// readCreatedAt returns the creation time from the metadata record, or
// nil when the queue has none.
func (e *Engine) readCreatedAt(ctx context.Context, queue string) (*time.Time, error) {
	raw, err := e.backend.Get(ctx, e.keys.Metadata(queue))
	if err != nil {
		return nil, err
	}
	if raw == nil {
		return nil, nil
	}
	meta, err := domain.DecodeQueueMetadata(raw)
	if err != nil {
		e.logger.Warn("ignoring unreadable queue metadata", "queue", queue, "error", err)
		return nil, nil
	}
	return &meta.CreatedAt, nil
}

// envelopeAt decodes the element at index, or returns nil when the list
// has no such element or it cannot be decoded.
func (e *Engine) envelopeAt(ctx context.Context, key string, index int64) (*domain.Envelope, error) {
	items, err := e.backend.RangeRead(ctx, key, index, index)
	if err != nil {
		return nil, err
	}
	if len(items) == 0 {
		return nil, nil
	}
	env, err := domain.DecodeEnvelope(items[0])
	if err != nil {
		return nil, nil
	}
	return env, nil
}

package engine

import (
	"context"
	"fmt"
	"time"

	"fifoq/internal/domain"
	"fifoq/internal/events"
	"fifoq/internal/metrics"
	"fifoq/internal/store"
)

// Enqueue wraps payload in a new envelope and appends it to the queue,
// creating the queue implicitly if needed.
func (e *Engine) Enqueue(ctx context.Context, queue string, payload []byte) (res *EnqueueResult, err error) {
	ctx, finish := e.begin(ctx, "enqueue", queue)
	defer func() { finish(err) }()

	if err := domain.ValidateQueueName(queue); err != nil {
		return nil, err
	}
	if err := e.checkPayload(queue, payload); err != nil {
		return nil, err
	}

	now := e.now()
	env := domain.NewEnvelope(payload, now)
	data, err := env.Encode()
	if err != nil {
		return nil, domain.WrapError(domain.KindInternal, err, "failed to encode message")
	}

	if err := e.ensureQueue(ctx, queue, now); err != nil {
		return nil, err
	}

	if err := e.backend.Batch(ctx, e.appendOps(queue, now, data)...); err != nil {
		e.logger.Error("failed to enqueue message",
			"queue", queue,
			"message_id", env.ID,
			"error", err,
		)
		return nil, fmt.Errorf("failed to enqueue message: %w", err)
	}

	metrics.MessagesEnqueuedTotal.WithLabelValues(queue).Inc()
	e.logger.Debug("message enqueued", "queue", queue, "message_id", env.ID)

	return &EnqueueResult{
		Queue:     queue,
		MessageID: env.ID,
		Timestamp: env.EnqueuedAt,
	}, nil
}

// BulkEnqueue appends payloads as one atomic unit: either every message
// is stored, in input order, or none is.
func (e *Engine) BulkEnqueue(ctx context.Context, queue string, payloads [][]byte) (res *BulkEnqueueResult, err error) {
	ctx, finish := e.begin(ctx, "bulk_enqueue", queue)
	defer func() { finish(err) }()

	if err := domain.ValidateQueueName(queue); err != nil {
		return nil, err
	}
	if len(payloads) == 0 {
		return nil, domain.NewError(domain.KindInvalidArgument, "bulk enqueue requires at least one message")
	}
	if e.limits.MaxBulkSize > 0 && len(payloads) > e.limits.MaxBulkSize {
		return nil, domain.NewError(domain.KindInvalidArgument,
			"bulk enqueue of %d messages exceeds the limit of %d", len(payloads), e.limits.MaxBulkSize)
	}
	for i, p := range payloads {
		if err := e.checkPayload(queue, p); err != nil {
			return nil, fmt.Errorf("message %d: %w", i, err)
		}
	}

	now := e.now()
	ids := make([]string, len(payloads))
	values := make([][]byte, len(payloads))
	for i, p := range payloads {
		env := domain.NewEnvelope(p, now)
		data, err := env.Encode()
		if err != nil {
			return nil, domain.WrapError(domain.KindInternal, err, "failed to encode message")
		}
		ids[i] = env.ID
		values[i] = data
	}

	if err := e.ensureQueue(ctx, queue, now); err != nil {
		return nil, err
	}

	if err := e.backend.Batch(ctx, e.appendOps(queue, now, values...)...); err != nil {
		e.logger.Error("failed to enqueue batch",
			"queue", queue,
			"count", len(values),
			"error", err,
		)
		return nil, fmt.Errorf("failed to enqueue batch: %w", err)
	}

	metrics.MessagesEnqueuedTotal.WithLabelValues(queue).Add(float64(len(values)))
	e.logger.Debug("batch enqueued", "queue", queue, "count", len(values))

	return &BulkEnqueueResult{
		Queue:      queue,
		Count:      len(ids),
		MessageIDs: ids,
		Timestamp:  now.UTC(),
	}, nil
}

// Dequeue removes the oldest message, waiting up to timeout for one to
// arrive. A timeout of zero does not wait. An empty result is not an error.
func (e *Engine) Dequeue(ctx context.Context, queue string, timeout time.Duration) (res *DequeueResult, err error) {
	ctx, finish := e.begin(ctx, "dequeue", queue)
	defer func() { finish(err) }()

	if err := domain.ValidateQueueName(queue); err != nil {
		return nil, err
	}
	if timeout < 0 {
		return nil, domain.NewError(domain.KindInvalidArgument, "timeout must not be negative")
	}
	if timeout > e.limits.MaxDequeueTimeout {
		return nil, domain.NewError(domain.KindTimeoutTooLarge,
			"timeout %s exceeds the maximum of %s", timeout, e.limits.MaxDequeueTimeout)
	}

	data, err := e.backend.BlockingPopTail(ctx, e.keys.Messages(queue), timeout)
	if err != nil {
		return nil, fmt.Errorf("failed to dequeue message: %w", err)
	}
	if data == nil {
		metrics.DequeueEmptyTotal.WithLabelValues(queue).Inc()
		return &DequeueResult{Queue: queue}, nil
	}

	now := e.now()

	// The message is already off the list. Count it even if the caller
	// has gone away so totals stay in step with depth.
	countCtx := context.WithoutCancel(ctx)
	if err := e.backend.Batch(countCtx,
		store.IncrementOp(e.keys.Dequeued(queue), 1),
		store.IncrementWithTTLOp(e.keys.RateBucket(queue, store.DirectionDequeue, store.MinuteOf(now)), 1, rateBucketTTL),
	); err != nil {
		e.logger.Error("failed to record dequeue",
			"queue", queue,
			"error", err,
		)
	}

	env, err := domain.DecodeEnvelope(data)
	if err != nil {
		e.logger.Warn("dequeued an entry that is not an envelope",
			"queue", queue,
			"error", err,
		)
		env = domain.NewEnvelope(data, now)
	}
	env.MarkDequeued(now)

	metrics.MessagesDequeuedTotal.WithLabelValues(queue).Inc()
	metrics.MessageQueueLatency.Observe(env.DequeuedAt.Sub(env.EnqueuedAt).Seconds())
	e.logger.Debug("message dequeued", "queue", queue, "message_id", env.ID)

	return &DequeueResult{Queue: queue, Message: env}, nil
}

// Peek returns up to count of the oldest messages, oldest first, without
// removing them. Peeking a queue that does not exist yields no messages.
func (e *Engine) Peek(ctx context.Context, queue string, count int) (res *PeekResult, err error) {
	ctx, finish := e.begin(ctx, "peek", queue)
	defer func() { finish(err) }()

	if err := domain.ValidateQueueName(queue); err != nil {
		return nil, err
	}
	if count < 1 || count > e.limits.MaxPeekCount {
		return nil, domain.NewError(domain.KindInvalidArgument,
			"count must be between 1 and %d", e.limits.MaxPeekCount)
	}

	type peekRead struct {
		items [][]byte
		depth int64
	}

	key := e.keys.Messages(queue)
	read, err := retryRead(ctx, e, "peek", func(ctx context.Context) (peekRead, error) {
		items, err := e.backend.RangeRead(ctx, key, -int64(count), -1)
		if err != nil {
			return peekRead{}, err
		}
		depth, err := e.backend.Length(ctx, key)
		if err != nil {
			return peekRead{}, err
		}
		return peekRead{items: items, depth: depth}, nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to peek queue: %w", err)
	}

	// Range reads come back head first; the oldest message is last.
	messages := make([]*domain.Envelope, 0, len(read.items))
	for i := len(read.items) - 1; i >= 0; i-- {
		env, err := domain.DecodeEnvelope(read.items[i])
		if err != nil {
			e.logger.Warn("skipping entry that is not an envelope",
				"queue", queue,
				"error", err,
			)
			continue
		}
		messages = append(messages, env)
	}

	metrics.QueueDepth.WithLabelValues(queue).Set(float64(read.depth))

	return &PeekResult{
		Queue:      queue,
		Messages:   messages,
		TotalDepth: read.depth,
	}, nil
}

// Purge removes every message from the queue in a single store operation.
// Metadata and lifetime counters are kept. Purging a queue that does not
// exist removes nothing.
func (e *Engine) Purge(ctx context.Context, queue string) (res *PurgeResult, err error) {
	ctx, finish := e.begin(ctx, "purge", queue)
	defer func() { finish(err) }()

	if err := domain.ValidateQueueName(queue); err != nil {
		return nil, err
	}

	key := e.keys.Messages(queue)
	depth, err := e.backend.Length(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("failed to read queue depth: %w", err)
	}
	if _, err := e.backend.Delete(ctx, key); err != nil {
		e.logger.Error("failed to purge queue", "queue", queue, "error", err)
		return nil, fmt.Errorf("failed to purge queue: %w", err)
	}

	metrics.QueueDepth.WithLabelValues(queue).Set(0)
	e.logger.Info("queue purged", "queue", queue, "purged", depth)

	e.publish(ctx, &events.Event{
		Type:  events.TypeQueuePurged,
		Queue: queue,
		At:    e.now().UTC(),
		Count: depth,
	})

	return &PurgeResult{Queue: queue, PurgedCount: depth}, nil
}

// appendOps builds the batch that pushes values and bumps the enqueue
// counters by the same amount.
func (e *Engine) appendOps(queue string, now time.Time, values ...[]byte) []store.Op {
	n := int64(len(values))
	return []store.Op{
		store.PushHeadOp(e.keys.Messages(queue), values...),
		store.IncrementOp(e.keys.Enqueued(queue), n),
		store.IncrementWithTTLOp(e.keys.RateBucket(queue, store.DirectionEnqueue, store.MinuteOf(now)), n, rateBucketTTL),
	}
}

// ensureQueue writes the queue's metadata if it has none yet.
func (e *Engine) ensureQueue(ctx context.Context, queue string, now time.Time) error {
	created, err := e.createMetadata(ctx, queue, now)
	if err != nil {
		return err
	}
	if created {
		e.logger.Info("queue created implicitly", "queue", queue)
		e.publish(ctx, &events.Event{
			Type:     events.TypeQueueCreated,
			Queue:    queue,
			At:       now.UTC(),
			Implicit: true,
		})
	}
	return nil
}

func (e *Engine) createMetadata(ctx context.Context, queue string, now time.Time) (bool, error) {
	data, err := domain.NewQueueMetadata(queue, now).Encode()
	if err != nil {
		return false, domain.WrapError(domain.KindInternal, err, "failed to encode queue metadata")
	}
	created, err := e.backend.SetIfAbsent(ctx, e.keys.Metadata(queue), data)
	if err != nil {
		return false, fmt.Errorf("failed to write queue metadata: %w", err)
	}
	return created, nil
}

func (e *Engine) checkPayload(queue string, payload []byte) error {
	if e.policy == nil {
		return nil
	}
	if err := e.policy(queue, payload); err != nil {
		if domain.KindOf(err) == domain.KindInternal {
			return domain.WrapError(domain.KindPayloadRejected, err, "payload rejected")
		}
		return err
	}
	return nil
}

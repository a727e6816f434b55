// Package engine implements the queue operations on top of a shared
// backing store. An Engine holds no queue state of its own: every call
// reads and writes the store, so any number of engines in any number of
// processes can serve the same queues concurrently.
package engine

import (
	"context"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v5"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"fifoq/internal/config"
	"fifoq/internal/domain"
	"fifoq/internal/events"
	"fifoq/internal/metrics"
	"fifoq/internal/observability"
	"fifoq/internal/store"
)

const (
	// rateBucketTTL is how long a per-minute rate bucket survives its
	// last increment.
	rateBucketTTL = 2 * time.Hour

	// rateWindowMinutes is the number of buckets summed for hourly rates.
	rateWindowMinutes = 60

	publishTimeout = 2 * time.Second
)

// Limits bounds the arguments callers may pass.
type Limits struct {
	DefaultDequeueTimeout time.Duration
	MaxDequeueTimeout     time.Duration
	DefaultPeekCount      int
	MaxPeekCount          int
	MaxBulkSize           int
}

// DefaultLimits returns the stock limits: 10s default and 60s maximum
// dequeue wait, 10 default and 100 maximum peek count, 1000 per bulk.
func DefaultLimits() Limits {
	return Limits{
		DefaultDequeueTimeout: 10 * time.Second,
		MaxDequeueTimeout:     config.HardMaxDequeueTimeout,
		DefaultPeekCount:      10,
		MaxPeekCount:          config.HardMaxPeekCount,
		MaxBulkSize:           1000,
	}
}

// LimitsFromConfig converts the queue section of the configuration.
func LimitsFromConfig(cfg *config.QueueConfig) Limits {
	return Limits{
		DefaultDequeueTimeout: cfg.DefaultDequeueTimeout,
		MaxDequeueTimeout:     cfg.MaxDequeueTimeout,
		DefaultPeekCount:      cfg.DefaultPeekCount,
		MaxPeekCount:          cfg.MaxPeekCount,
		MaxBulkSize:           cfg.MaxBulkSize,
	}
}

// PayloadPolicy inspects a payload before it is enqueued. Returning an
// error rejects the message.
type PayloadPolicy func(queue string, payload []byte) error

// Engine executes queue operations against a store.Backend.
type Engine struct {
	backend   store.Backend
	keys      store.Keys
	publisher events.Publisher
	logger    *slog.Logger
	tracer    trace.Tracer
	limits    Limits
	policy    PayloadPolicy
	readTries uint
	now       func() time.Time
}

// Option customizes an Engine.
type Option func(*Engine)

// WithKeyPrefix sets the namespace for every key the engine touches.
func WithKeyPrefix(prefix string) Option {
	return func(e *Engine) { e.keys = store.NewKeys(prefix) }
}

// WithPublisher sets the lifecycle event publisher.
func WithPublisher(p events.Publisher) Option {
	return func(e *Engine) { e.publisher = p }
}

// WithTracer sets the tracer used for operation spans.
func WithTracer(t trace.Tracer) Option {
	return func(e *Engine) { e.tracer = t }
}

// WithLimits overrides the argument limits.
func WithLimits(l Limits) Option {
	return func(e *Engine) { e.limits = l }
}

// WithPayloadPolicy installs a hook that may reject payloads.
func WithPayloadPolicy(p PayloadPolicy) Option {
	return func(e *Engine) { e.policy = p }
}

// WithReadTries sets how many attempts read-only operations get when the
// store is unavailable. Values below 1 are treated as 1.
func WithReadTries(n uint) Option {
	return func(e *Engine) {
		if n < 1 {
			n = 1
		}
		e.readTries = n
	}
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// New creates an engine over backend.
func New(backend store.Backend, logger *slog.Logger, opts ...Option) *Engine {
	e := &Engine{
		backend:   backend,
		keys:      store.NewKeys(""),
		publisher: events.NopPublisher{},
		logger:    logger,
		tracer:    otel.Tracer(observability.InstrumentationName),
		limits:    DefaultLimits(),
		readTries: 3,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Limits returns the limits the engine enforces.
func (e *Engine) Limits() Limits {
	return e.limits
}

// Ping checks that the backing store is reachable.
func (e *Engine) Ping(ctx context.Context) error {
	return e.backend.Ping(ctx)
}

// begin opens a span for an operation and returns a func that records its
// outcome. Call it with the operation's final error.
func (e *Engine) begin(ctx context.Context, op, queue string) (context.Context, func(error)) {
	start := time.Now()
	ctx, span := e.tracer.Start(ctx, "queue."+op,
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(attribute.String("queue.name", queue)),
	)

	return ctx, func(err error) {
		result := "ok"
		if err != nil {
			result = string(domain.KindOf(err))
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		metrics.OperationsTotal.WithLabelValues(op, result).Inc()
		metrics.OperationLatency.WithLabelValues(op).Observe(time.Since(start).Seconds())
		span.End()
	}
}

// retryRead runs a read-only store sequence, retrying with exponential
// backoff while the store reports transient failures. Any other error is
// returned immediately.
func retryRead[T any](ctx context.Context, e *Engine, op string, read func(context.Context) (T, error)) (T, error) {
	attempt := 0
	return backoff.Retry(ctx, func() (T, error) {
		attempt++
		v, err := read(ctx)
		if err == nil {
			return v, nil
		}
		if !domain.IsTransient(err) {
			return v, backoff.Permanent(err)
		}
		e.logger.Warn("read-only operation failed",
			"operation", op,
			"attempt", attempt,
			"max_attempts", e.readTries,
			"error", err,
		)
		return v, err
	},
		backoff.WithBackOff(newReadBackOff()),
		backoff.WithMaxTries(e.readTries),
	)
}

func newReadBackOff() *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 50 * time.Millisecond
	b.MaxInterval = 500 * time.Millisecond
	return b
}

// publish hands a lifecycle event to the publisher. Failures are logged
// and never fail the operation that produced the event.
func (e *Engine) publish(ctx context.Context, event *events.Event) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), publishTimeout)
	defer cancel()

	if err := e.publisher.Publish(ctx, event); err != nil {
		metrics.EventsPublishedTotal.WithLabelValues(string(event.Type), "failure").Inc()
		e.logger.Warn("failed to publish queue event",
			"type", event.Type,
			"queue", event.Queue,
			"error", err,
		)
		return
	}
	metrics.EventsPublishedTotal.WithLabelValues(string(event.Type), "success").Inc()
}

// exists reports whether a queue has messages or metadata.
func (e *Engine) exists(ctx context.Context, queue string) (bool, error) {
	n, err := e.backend.Exists(ctx, e.keys.Messages(queue), e.keys.Metadata(queue))
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// queueKeys lists every key owned by a queue, including any rate bucket
// that may not have expired yet.
func (e *Engine) queueKeys(queue string, now time.Time) []string {
	buckets := int(rateBucketTTL/time.Minute) + 2

	keys := []string{
		e.keys.Messages(queue),
		e.keys.Metadata(queue),
		e.keys.Enqueued(queue),
		e.keys.Dequeued(queue),
	}
	keys = append(keys, e.keys.RateBuckets(queue, store.DirectionEnqueue, now, buckets)...)
	keys = append(keys, e.keys.RateBuckets(queue, store.DirectionDequeue, now, buckets)...)
	return keys
}

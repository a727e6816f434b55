// Package redis provides the Redis implementation of store.Backend.
package redis

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"fifoq/internal/config"
	"fifoq/internal/metrics"
	"fifoq/internal/store"
)

const storeName = "redis"

// blockingGrace is added to a BRPOP timeout to form the client-side
// deadline, so the server always answers before the client gives up.
const blockingGrace = 5 * time.Second

// Backend implements store.Backend using Redis lists, strings and
// MULTI/EXEC transactions. It keeps two clients: blocking pops run on
// their own pool so a long wait never holds a connection needed by
// ordinary commands.
type Backend struct {
	client   *redis.Client
	blocking *redis.Client
	logger   *slog.Logger
}

var _ store.Backend = (*Backend)(nil)

// NewBackend connects to Redis and verifies both connection pools.
func NewBackend(cfg *config.RedisConfig, logger *slog.Logger) (*Backend, error) {
	client := redis.NewClient(&redis.Options{
		Addr:                  cfg.RedisAddr(),
		Password:              cfg.Password,
		DB:                    cfg.DB,
		PoolSize:              cfg.PoolSize,
		DialTimeout:           cfg.DialTimeout,
		ReadTimeout:           cfg.OperationTimeout,
		WriteTimeout:          cfg.OperationTimeout,
		ContextTimeoutEnabled: true,
	})

	blocking := redis.NewClient(&redis.Options{
		Addr:         cfg.RedisAddr(),
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.BlockingPoolSize,
		DialTimeout:  cfg.DialTimeout,
		WriteTimeout: cfg.OperationTimeout,
		// Reads are bounded by the per-call context deadline instead.
		ReadTimeout:           -1,
		ContextTimeoutEnabled: true,
	})

	b := NewBackendWithClients(client, blocking, logger)

	// Verify connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := b.Ping(ctx); err != nil {
		_ = b.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return b, nil
}

// NewBackendWithClients wraps existing clients. The caller hands over
// ownership; Close closes both.
func NewBackendWithClients(client, blocking *redis.Client, logger *slog.Logger) *Backend {
	if blocking == nil {
		blocking = client
	}
	return &Backend{
		client:   client,
		blocking: blocking,
		logger:   logger,
	}
}

// done records metrics for a call and translates its error.
func (b *Backend) done(op string, start time.Time, err error) error {
	metrics.ObserveStorage(storeName, op, start, err)
	return translateError(op, err)
}

// --- List primitives ---

// PushHead runs LPUSH.
func (b *Backend) PushHead(ctx context.Context, key string, values ...[]byte) (int64, error) {
	start := time.Now()
	n, err := b.client.LPush(ctx, key, toArgs(values)...).Result()
	if err := b.done("lpush", start, err); err != nil {
		return 0, err
	}
	return n, nil
}

// BlockingPopTail runs BRPOP on the blocking pool, or RPOP when timeout
// is zero.
func (b *Backend) BlockingPopTail(ctx context.Context, key string, timeout time.Duration) ([]byte, error) {
	start := time.Now()

	if timeout <= 0 {
		v, err := b.client.RPop(ctx, key).Bytes()
		if errors.Is(err, redis.Nil) {
			_ = b.done("rpop", start, nil)
			return nil, nil
		}
		if err := b.done("rpop", start, err); err != nil {
			return nil, err
		}
		return v, nil
	}

	// Cancelling mid-BRPOP closes the connection, and an element the
	// server popped in that window would be lost. The wait is therefore
	// bounded only by its own timeout.
	waitCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), timeout+blockingGrace)
	defer cancel()

	// BRPOP through Do keeps sub-second precision; the typed helper
	// rounds the timeout to whole seconds.
	reply, err := b.blocking.Do(waitCtx, "BRPOP", key, formatSeconds(timeout)).Slice()
	if errors.Is(err, redis.Nil) {
		_ = b.done("brpop", start, nil)
		return nil, nil
	}
	if err := b.done("brpop", start, err); err != nil {
		return nil, err
	}

	if len(reply) != 2 {
		return nil, fmt.Errorf("unexpected BRPOP reply length %d", len(reply))
	}
	switch v := reply[1].(type) {
	case string:
		return []byte(v), nil
	case []byte:
		return v, nil
	default:
		return nil, fmt.Errorf("unexpected BRPOP element type %T", reply[1])
	}
}

// RangeRead runs LRANGE.
func (b *Backend) RangeRead(ctx context.Context, key string, start, stop int64) ([][]byte, error) {
	began := time.Now()
	items, err := b.client.LRange(ctx, key, start, stop).Result()
	if err := b.done("lrange", began, err); err != nil {
		return nil, err
	}

	out := make([][]byte, len(items))
	for i, item := range items {
		out[i] = []byte(item)
	}
	return out, nil
}

// Length runs LLEN.
func (b *Backend) Length(ctx context.Context, key string) (int64, error) {
	start := time.Now()
	n, err := b.client.LLen(ctx, key).Result()
	if err := b.done("llen", start, err); err != nil {
		return 0, err
	}
	return n, nil
}

// --- Key and scalar primitives ---

// Exists runs EXISTS.
func (b *Backend) Exists(ctx context.Context, keys ...string) (int64, error) {
	start := time.Now()
	n, err := b.client.Exists(ctx, keys...).Result()
	if err := b.done("exists", start, err); err != nil {
		return 0, err
	}
	return n, nil
}

// Get runs GET, returning nil for a missing key.
func (b *Backend) Get(ctx context.Context, key string) ([]byte, error) {
	start := time.Now()
	v, err := b.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		_ = b.done("get", start, nil)
		return nil, nil
	}
	if err := b.done("get", start, err); err != nil {
		return nil, err
	}
	return v, nil
}

// SetIfAbsent runs SETNX.
func (b *Backend) SetIfAbsent(ctx context.Context, key string, value []byte) (bool, error) {
	start := time.Now()
	ok, err := b.client.SetNX(ctx, key, value, 0).Result()
	if err := b.done("setnx", start, err); err != nil {
		return false, err
	}
	return ok, nil
}

// Delete runs DEL.
func (b *Backend) Delete(ctx context.Context, keys ...string) (int64, error) {
	start := time.Now()
	n, err := b.client.Del(ctx, keys...).Result()
	if err := b.done("del", start, err); err != nil {
		return 0, err
	}
	return n, nil
}

// Increment runs INCRBY.
func (b *Backend) Increment(ctx context.Context, key string, by int64) (int64, error) {
	start := time.Now()
	n, err := b.client.IncrBy(ctx, key, by).Result()
	if err := b.done("incrby", start, err); err != nil {
		return 0, err
	}
	return n, nil
}

// Counters runs MGET and parses each value as an integer.
func (b *Backend) Counters(ctx context.Context, keys ...string) ([]int64, error) {
	if len(keys) == 0 {
		return []int64{}, nil
	}

	start := time.Now()
	raw, err := b.client.MGet(ctx, keys...).Result()
	if err := b.done("mget", start, err); err != nil {
		return nil, err
	}

	out := make([]int64, len(keys))
	for i, v := range raw {
		s, ok := v.(string)
		if !ok {
			continue
		}
		n, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("counter %s is not an integer: %w", keys[i], err)
		}
		out[i] = n
	}
	return out, nil
}

// ScanPrefix iterates SCAN with a MATCH pattern built from prefix.
func (b *Backend) ScanPrefix(ctx context.Context, prefix string) ([]string, error) {
	start := time.Now()
	match := escapeGlob(prefix) + "*"

	seen := make(map[string]struct{})
	var cursor uint64
	for {
		keys, next, err := b.client.Scan(ctx, cursor, match, 200).Result()
		if err != nil {
			return nil, b.done("scan", start, err)
		}
		for _, k := range keys {
			seen[k] = struct{}{}
		}
		cursor = next
		if cursor == 0 {
			break
		}
	}
	_ = b.done("scan", start, nil)

	out := make([]string, 0, len(seen))
	for k := range seen {
		out = append(out, k)
	}
	sort.Strings(out)
	return out, nil
}

// Batch wraps ops in MULTI/EXEC so their effects become visible together.
func (b *Backend) Batch(ctx context.Context, ops ...store.Op) error {
	if len(ops) == 0 {
		return nil
	}

	start := time.Now()
	_, err := b.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		for _, op := range ops {
			switch op.Kind {
			case store.OpPushHead:
				pipe.LPush(ctx, op.Key, toArgs(op.Values)...)
			case store.OpIncrement:
				pipe.IncrBy(ctx, op.Key, op.By)
				if op.TTL > 0 {
					pipe.Expire(ctx, op.Key, op.TTL)
				}
			case store.OpDelete:
				pipe.Del(ctx, op.Keys...)
			default:
				return fmt.Errorf("unknown batch op kind %d", op.Kind)
			}
		}
		return nil
	})
	return b.done("multi", start, err)
}

// --- Lifecycle ---

// Ping checks both connection pools.
func (b *Backend) Ping(ctx context.Context) error {
	start := time.Now()
	if err := b.client.Ping(ctx).Err(); err != nil {
		return b.done("ping", start, err)
	}
	if b.blocking != b.client {
		if err := b.blocking.Ping(ctx).Err(); err != nil {
			return b.done("ping", start, err)
		}
	}
	return b.done("ping", start, nil)
}

// Close closes both Redis clients.
func (b *Backend) Close() error {
	var errs []error
	if b.client != nil {
		errs = append(errs, b.client.Close())
	}
	if b.blocking != nil && b.blocking != b.client {
		errs = append(errs, b.blocking.Close())
	}
	return errors.Join(errs...)
}

func toArgs(values [][]byte) []interface{} {
	args := make([]interface{}, len(values))
	for i, v := range values {
		args[i] = v
	}
	return args
}

func formatSeconds(d time.Duration) string {
	return strconv.FormatFloat(d.Seconds(), 'f', -1, 64)
}

func escapeGlob(s string) string {
	var sb strings.Builder
	for _, r := range s {
		switch r {
		case '*', '?', '[', ']', '\\':
			sb.WriteByte('\\')
		}
		sb.WriteRune(r)
	}
	return sb.String()
}

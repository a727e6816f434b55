package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"fifoq/internal/config"
	"fifoq/internal/engine"
	"fifoq/internal/events"
	kafkaevents "fifoq/internal/events/kafka"
	"fifoq/internal/observability"
	"fifoq/internal/store"
	memorystore "fifoq/internal/store/memory"
	redisstore "fifoq/internal/store/redis"
)

// services holds the wired components shared by serve and the admin commands.
type services struct {
	backend  store.Backend
	engine   *engine.Engine
	tracing  *observability.Provider
	cleanups []func()
}

// close releases everything in reverse order of creation.
func (r *services) close() {
	for i := len(r.cleanups) - 1; i >= 0; i-- {
		r.cleanups[i]()
	}
}

// newServices creates the backend, event publisher, tracer and engine
// selected by cfg.
func newServices(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*services, error) {
	rt := &services{}

	backend, err := newBackend(cfg, logger)
	if err != nil {
		return nil, err
	}
	rt.backend = backend
	rt.cleanups = append(rt.cleanups, func() {
		if err := backend.Close(); err != nil {
			logger.Error("failed to close backing store", "error", err)
		}
	})

	var publisher events.Publisher = events.NopPublisher{}
	if cfg.Events.Enabled {
		producer := kafkaevents.NewProducer(&cfg.Events.Kafka, logger)
		publisher = producer
		rt.cleanups = append(rt.cleanups, func() { _ = producer.Close() })
		logger.Info("queue events enabled",
			"brokers", strings.Join(cfg.Events.Kafka.Brokers, ","),
			"topic", cfg.Events.Kafka.Topic,
		)
	}

	tracing, err := observability.NewProvider(ctx, &cfg.Telemetry, version)
	if err != nil {
		rt.close()
		return nil, fmt.Errorf("failed to initialize tracing: %w", err)
	}
	rt.tracing = tracing
	rt.cleanups = append(rt.cleanups, func() {
		if err := tracing.Shutdown(context.Background()); err != nil {
			logger.Error("failed to flush traces", "error", err)
		}
	})

	rt.engine = engine.New(backend, logger,
		engine.WithKeyPrefix(cfg.Redis.KeyPrefix),
		engine.WithLimits(engine.LimitsFromConfig(&cfg.Queue)),
		engine.WithReadTries(cfg.Queue.ReadRetries),
		engine.WithPublisher(publisher),
		engine.WithTracer(tracing.Tracer()),
	)

	return rt, nil
}

// newBackend connects to the store selected by the storage mode.
func newBackend(cfg *config.Config, logger *slog.Logger) (store.Backend, error) {
	if cfg.Storage.UseMemory() {
		logger.Info("initializing in-memory storage")
		return memorystore.NewBackend(), nil
	}

	logger.Info("initializing redis storage", "address", cfg.Redis.RedisAddr(), "db", cfg.Redis.DB)
	backend, err := redisstore.NewBackend(&cfg.Redis, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	return backend, nil
}

// newLogger builds the process logger from the logger configuration.
func newLogger(cfg *config.LoggerConfig) *slog.Logger {
	opts := &slog.HandlerOptions{
		Level: parseLogLevel(cfg.Level),
	}

	var handler slog.Handler
	if cfg.Format == "text" {
		handler = slog.NewTextHandler(os.Stderr, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	}

	logger := slog.New(handler)
	slog.SetDefault(logger)
	return logger
}

func parseLogLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}
	return path
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Storage.Mode != StorageModeMemory {
		t.Errorf("Storage.Mode = %v, want %v", cfg.Storage.Mode, StorageModeMemory)
	}
	if cfg.Queue.DefaultDequeueTimeout != 10*time.Second {
		t.Errorf("DefaultDequeueTimeout = %v, want 10s", cfg.Queue.DefaultDequeueTimeout)
	}
	if cfg.Queue.MaxDequeueTimeout != 60*time.Second {
		t.Errorf("MaxDequeueTimeout = %v, want 60s", cfg.Queue.MaxDequeueTimeout)
	}
	if cfg.Queue.DefaultPeekCount != 10 || cfg.Queue.MaxPeekCount != 100 {
		t.Errorf("peek counts = %d/%d, want 10/100", cfg.Queue.DefaultPeekCount, cfg.Queue.MaxPeekCount)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("defaults should validate, got %v", err)
	}
}

func TestLoad_File(t *testing.T) {
	path := writeConfig(t, `
storage:
  mode: redis
server:
  port: 9090
redis:
  host: redis.internal
  key_prefix: shop
queue:
  max_peek_count: 50
logger:
  format: text
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if !cfg.Storage.UseRedis() {
		t.Error("storage mode should be redis")
	}
	if cfg.Server.Address() != "0.0.0.0:9090" {
		t.Errorf("Address() = %v", cfg.Server.Address())
	}
	if cfg.Redis.RedisAddr() != "redis.internal:6379" {
		t.Errorf("RedisAddr() = %v", cfg.Redis.RedisAddr())
	}
	if cfg.Redis.KeyPrefix != "shop" {
		t.Errorf("KeyPrefix = %v, want shop", cfg.Redis.KeyPrefix)
	}
	if cfg.Queue.MaxPeekCount != 50 {
		t.Errorf("MaxPeekCount = %d, want 50", cfg.Queue.MaxPeekCount)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("Load() should fail for a missing file")
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("FIFOQ_STORAGE_MODE", "redis")
	t.Setenv("FIFOQ_REDIS_PORT", "6380")
	t.Setenv("FIFOQ_KAFKA_BROKERS", "k1:9092, k2:9092")
	t.Setenv("FIFOQ_EVENTS_ENABLED", "true")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Storage.Mode != StorageModeRedis {
		t.Errorf("Storage.Mode = %v, want redis", cfg.Storage.Mode)
	}
	if cfg.Redis.Port != 6380 {
		t.Errorf("Redis.Port = %d, want 6380", cfg.Redis.Port)
	}
	if len(cfg.Events.Kafka.Brokers) != 2 || cfg.Events.Kafka.Brokers[1] != "k2:9092" {
		t.Errorf("Brokers = %v", cfg.Events.Kafka.Brokers)
	}
	if !cfg.Events.Enabled {
		t.Error("events should be enabled")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"bad mode", func(c *Config) { c.Storage.Mode = "etcd" }},
		{"timeout above ceiling", func(c *Config) { c.Queue.MaxDequeueTimeout = 2 * time.Minute }},
		{"default above max", func(c *Config) { c.Queue.DefaultDequeueTimeout = 61 * time.Second }},
		{"write timeout too short", func(c *Config) { c.Server.WriteTimeout = 30 * time.Second }},
		{"peek default above max", func(c *Config) { c.Queue.DefaultPeekCount = 500 }},
		{"peek max above ceiling", func(c *Config) { c.Queue.MaxPeekCount = HardMaxPeekCount + 1 }},
		{"bad log format", func(c *Config) { c.Logger.Format = "xml" }},
		{"bad sample rate", func(c *Config) { c.Telemetry.SampleRate = 2 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			if err := cfg.Validate(); err == nil {
				t.Error("Validate() should fail")
			}
		})
	}
}

package config

import (
	"os"
	"strconv"
	"strings"
)

// FromEnv overlays FIFOQ_* environment variables onto cfg.
func FromEnv(cfg *Config) {
	if v := os.Getenv("FIFOQ_STORAGE_MODE"); v != "" {
		cfg.Storage.Mode = StorageMode(v)
	}
	if v := os.Getenv("FIFOQ_SERVER_HOST"); v != "" {
		cfg.Server.Host = v
	}
	if v := os.Getenv("FIFOQ_SERVER_PORT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = n
		}
	}
	if v := os.Getenv("FIFOQ_REDIS_HOST"); v != "" {
		cfg.Redis.Host = v
	}
	if v := os.Getenv("FIFOQ_REDIS_PORT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Redis.Port = n
		}
	}
	if v := os.Getenv("FIFOQ_REDIS_PASSWORD"); v != "" {
		cfg.Redis.Password = v
	}
	if v := os.Getenv("FIFOQ_REDIS_DB"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Redis.DB = n
		}
	}
	if v := os.Getenv("FIFOQ_REDIS_KEY_PREFIX"); v != "" {
		cfg.Redis.KeyPrefix = v
	}
	if v := os.Getenv("FIFOQ_LOG_LEVEL"); v != "" {
		cfg.Logger.Level = v
	}
	if v := os.Getenv("FIFOQ_LOG_FORMAT"); v != "" {
		cfg.Logger.Format = v
	}
	if v := os.Getenv("FIFOQ_EVENTS_ENABLED"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.Events.Enabled = b
		}
	}
	if v := os.Getenv("FIFOQ_KAFKA_BROKERS"); v != "" {
		cfg.Events.Kafka.Brokers = nil
		for _, p := range strings.Split(v, ",") {
			p = strings.TrimSpace(p)
			if p != "" {
				cfg.Events.Kafka.Brokers = append(cfg.Events.Kafka.Brokers, p)
			}
		}
	}
	if v := os.Getenv("FIFOQ_TELEMETRY_ENABLED"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.Telemetry.Enabled = b
		}
	}
	if v := os.Getenv("FIFOQ_OTLP_ENDPOINT"); v != "" {
		cfg.Telemetry.OTLPEndpoint = v
	}
}

// Package config provides configuration loading and management for fifoq.
// It supports loading configuration from YAML files with environment variable overrides.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// StorageMode represents the backing store implementation.
type StorageMode string

const (
	// StorageModeMemory keeps all queues inside the process.
	StorageModeMemory StorageMode = "memory"
	// StorageModeRedis uses a shared Redis server so many instances act as one queue.
	StorageModeRedis StorageMode = "redis"
)

// IsValid returns true if the storage mode is valid.
func (m StorageMode) IsValid() bool {
	return m == StorageModeMemory || m == StorageModeRedis
}

// Ceilings no configuration may exceed.
const (
	HardMaxDequeueTimeout = 60 * time.Second
	HardMaxPeekCount      = 100
)

// Config represents the complete application configuration.
type Config struct {
	Storage   StorageConfig   `yaml:"storage"`
	Server    ServerConfig    `yaml:"server"`
	Redis     RedisConfig     `yaml:"redis"`
	Queue     QueueConfig     `yaml:"queue"`
	Events    EventsConfig    `yaml:"events"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
	Logger    LoggerConfig    `yaml:"logger"`
}

// StorageConfig holds the storage mode configuration.
type StorageConfig struct {
	Mode StorageMode `yaml:"mode"`
}

// UseMemory returns true if the in-process store should be used.
func (c *StorageConfig) UseMemory() bool {
	return c.Mode == StorageModeMemory
}

// UseRedis returns true if the shared Redis store should be used.
func (c *StorageConfig) UseRedis() bool {
	return c.Mode == StorageModeRedis
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host         string        `yaml:"host"`
	Port         int           `yaml:"port"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
	IdleTimeout  time.Duration `yaml:"idle_timeout"`
	BodyLimit    int           `yaml:"body_limit"`
}

// RedisConfig holds Redis connection settings.
type RedisConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`

	// KeyPrefix namespaces every key the service writes.
	KeyPrefix string `yaml:"key_prefix"`

	PoolSize         int           `yaml:"pool_size"`
	BlockingPoolSize int           `yaml:"blocking_pool_size"`
	DialTimeout      time.Duration `yaml:"dial_timeout"`

	// OperationTimeout bounds every non-blocking command.
	OperationTimeout time.Duration `yaml:"operation_timeout"`
}

// QueueConfig holds limits applied by the queue engine.
type QueueConfig struct {
	DefaultDequeueTimeout time.Duration `yaml:"default_dequeue_timeout"`
	MaxDequeueTimeout     time.Duration `yaml:"max_dequeue_timeout"`
	DefaultPeekCount      int           `yaml:"default_peek_count"`
	MaxPeekCount          int           `yaml:"max_peek_count"`
	MaxBulkSize           int           `yaml:"max_bulk_size"`

	// ReadRetries is how many times read-only operations are attempted.
	ReadRetries uint `yaml:"read_retries"`
}

// EventsConfig controls the queue lifecycle event feed.
type EventsConfig struct {
	Enabled bool        `yaml:"enabled"`
	Kafka   KafkaConfig `yaml:"kafka"`
}

// KafkaConfig holds Kafka connection and topic settings.
type KafkaConfig struct {
	Brokers       []string `yaml:"brokers"`
	Topic         string   `yaml:"topic"`
	ConsumerGroup string   `yaml:"consumer_group"`
}

// TelemetryConfig holds OpenTelemetry tracing settings.
type TelemetryConfig struct {
	Enabled      bool    `yaml:"enabled"`
	ServiceName  string  `yaml:"service_name"`
	Environment  string  `yaml:"environment"`
	OTLPEndpoint string  `yaml:"otlp_endpoint"`
	Insecure     bool    `yaml:"insecure"`
	SampleRate   float64 `yaml:"sample_rate"`
}

// LoggerConfig holds logging settings.
type LoggerConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // "json" or "text"
}

// Load reads configuration from the specified YAML file path.
// An empty path yields the defaults. Environment overrides are applied
// after the file and before defaults.
func Load(path string) (*Config, error) {
	cfg := &Config{}

	if path != "" {
		// Clean the path to prevent path traversal attacks
		cleanPath := filepath.Clean(path)
		data, err := os.ReadFile(cleanPath)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}

		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	FromEnv(cfg)
	applyDefaults(cfg)

	return cfg, nil
}

// Default returns a configuration with every default applied.
func Default() *Config {
	cfg := &Config{}
	applyDefaults(cfg)
	return cfg
}

// applyDefaults sets sensible default values for configuration fields
// that are not explicitly set in the config file.
func applyDefaults(cfg *Config) {
	// Storage defaults
	if cfg.Storage.Mode == "" {
		cfg.Storage.Mode = StorageModeMemory
	}

	// Server defaults
	if cfg.Server.Host == "" {
		cfg.Server.Host = "0.0.0.0"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Server.ReadTimeout == 0 {
		cfg.Server.ReadTimeout = 10 * time.Second
	}
	if cfg.Server.WriteTimeout == 0 {
		// Must outlast the longest blocking dequeue.
		cfg.Server.WriteTimeout = 75 * time.Second
	}
	if cfg.Server.IdleTimeout == 0 {
		cfg.Server.IdleTimeout = 120 * time.Second
	}
	if cfg.Server.BodyLimit == 0 {
		cfg.Server.BodyLimit = 4 * 1024 * 1024
	}

	// Redis defaults
	if cfg.Redis.Host == "" {
		cfg.Redis.Host = "localhost"
	}
	if cfg.Redis.Port == 0 {
		cfg.Redis.Port = 6379
	}
	if cfg.Redis.KeyPrefix == "" {
		cfg.Redis.KeyPrefix = "fifoq"
	}
	if cfg.Redis.PoolSize == 0 {
		cfg.Redis.PoolSize = 20
	}
	if cfg.Redis.BlockingPoolSize == 0 {
		cfg.Redis.BlockingPoolSize = 100
	}
	if cfg.Redis.DialTimeout == 0 {
		cfg.Redis.DialTimeout = 5 * time.Second
	}
	if cfg.Redis.OperationTimeout == 0 {
		cfg.Redis.OperationTimeout = 3 * time.Second
	}

	// Queue defaults
	if cfg.Queue.DefaultDequeueTimeout == 0 {
		cfg.Queue.DefaultDequeueTimeout = 10 * time.Second
	}
	if cfg.Queue.MaxDequeueTimeout == 0 {
		cfg.Queue.MaxDequeueTimeout = HardMaxDequeueTimeout
	}
	if cfg.Queue.DefaultPeekCount == 0 {
		cfg.Queue.DefaultPeekCount = 10
	}
	if cfg.Queue.MaxPeekCount == 0 {
		cfg.Queue.MaxPeekCount = HardMaxPeekCount
	}
	if cfg.Queue.MaxBulkSize == 0 {
		cfg.Queue.MaxBulkSize = 1000
	}
	if cfg.Queue.ReadRetries == 0 {
		cfg.Queue.ReadRetries = 3
	}

	// Events defaults
	if len(cfg.Events.Kafka.Brokers) == 0 {
		cfg.Events.Kafka.Brokers = []string{"localhost:9092"}
	}
	if cfg.Events.Kafka.Topic == "" {
		cfg.Events.Kafka.Topic = "fifoq-events"
	}
	if cfg.Events.Kafka.ConsumerGroup == "" {
		cfg.Events.Kafka.ConsumerGroup = "fifoq-tail"
	}

	// Telemetry defaults
	if cfg.Telemetry.ServiceName == "" {
		cfg.Telemetry.ServiceName = "fifoq"
	}
	if cfg.Telemetry.Environment == "" {
		cfg.Telemetry.Environment = "development"
	}
	if cfg.Telemetry.OTLPEndpoint == "" {
		cfg.Telemetry.OTLPEndpoint = "localhost:4318"
	}
	if cfg.Telemetry.SampleRate == 0 {
		cfg.Telemetry.SampleRate = 1.0
	}

	// Logger defaults
	if cfg.Logger.Level == "" {
		cfg.Logger.Level = "info"
	}
	if cfg.Logger.Format == "" {
		cfg.Logger.Format = "json"
	}
}

// Validate reports configuration values the service cannot run with.
func (c *Config) Validate() error {
	var errs []error

	if !c.Storage.Mode.IsValid() {
		errs = append(errs, fmt.Errorf("storage.mode %q must be %q or %q", c.Storage.Mode, StorageModeMemory, StorageModeRedis))
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.port %d out of range", c.Server.Port))
	}
	if c.Queue.MaxDequeueTimeout <= 0 || c.Queue.MaxDequeueTimeout > HardMaxDequeueTimeout {
		errs = append(errs, fmt.Errorf("queue.max_dequeue_timeout must be in (0, %s]", HardMaxDequeueTimeout))
	}
	if c.Queue.DefaultDequeueTimeout < 0 || c.Queue.DefaultDequeueTimeout > c.Queue.MaxDequeueTimeout {
		errs = append(errs, errors.New("queue.default_dequeue_timeout must not exceed queue.max_dequeue_timeout"))
	}
	if c.Server.WriteTimeout <= c.Queue.MaxDequeueTimeout {
		errs = append(errs, errors.New("server.write_timeout must be longer than queue.max_dequeue_timeout"))
	}
	if c.Queue.DefaultPeekCount <= 0 || c.Queue.MaxPeekCount <= 0 || c.Queue.DefaultPeekCount > c.Queue.MaxPeekCount {
		errs = append(errs, errors.New("queue peek counts must be positive and default must not exceed max"))
	}
	if c.Queue.MaxPeekCount > HardMaxPeekCount {
		errs = append(errs, fmt.Errorf("queue.max_peek_count must not exceed %d", HardMaxPeekCount))
	}
	if c.Queue.MaxBulkSize <= 0 {
		errs = append(errs, errors.New("queue.max_bulk_size must be positive"))
	}
	if c.Events.Enabled && len(c.Events.Kafka.Brokers) == 0 {
		errs = append(errs, errors.New("events.kafka.brokers is required when events are enabled"))
	}
	if c.Telemetry.SampleRate < 0 || c.Telemetry.SampleRate > 1 {
		errs = append(errs, errors.New("telemetry.sample_rate must be between 0 and 1"))
	}
	switch c.Logger.Format {
	case "json", "text":
	default:
		errs = append(errs, fmt.Errorf("logger.format %q must be json or text", c.Logger.Format))
	}

	return errors.Join(errs...)
}

// Address returns the full server address in host:port format.
func (c *ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// RedisAddr returns the Redis address in host:port format.
func (c *RedisConfig) RedisAddr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"fifoq/internal/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Configuration commands",
}

var configValidateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate configuration file",
	RunE:  runConfigValidate,
}

func init() {
	configCmd.AddCommand(configValidateCmd)
}

func runConfigValidate(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	fmt.Println("Configuration is valid")
	fmt.Printf("  Storage mode: %s\n", cfg.Storage.Mode)
	fmt.Printf("  Listen address: %s\n", cfg.Server.Address())
	if cfg.Storage.UseRedis() {
		fmt.Printf("  Redis: %s (db %d, prefix %q)\n", cfg.Redis.RedisAddr(), cfg.Redis.DB, cfg.Redis.KeyPrefix)
	}
	fmt.Printf("  Dequeue timeout: default %s, max %s\n", cfg.Queue.DefaultDequeueTimeout, cfg.Queue.MaxDequeueTimeout)
	fmt.Printf("  Peek count: default %d, max %d\n", cfg.Queue.DefaultPeekCount, cfg.Queue.MaxPeekCount)
	fmt.Printf("  Max bulk size: %d\n", cfg.Queue.MaxBulkSize)
	fmt.Printf("  Events: %v\n", cfg.Events.Enabled)
	if cfg.Events.Enabled {
		fmt.Printf("    brokers %v, topic %s\n", cfg.Events.Kafka.Brokers, cfg.Events.Kafka.Topic)
	}
	fmt.Printf("  Tracing: %v\n", cfg.Telemetry.Enabled)

	return nil
}

// loadConfig loads and validates the configuration named by --config.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(configFile)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

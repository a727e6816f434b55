package main

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"fifoq/internal/api"
	"fifoq/internal/banner"
)

var accessLog bool

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP server",
	RunE:  runServe,
}

func init() {
	serveCmd.Flags().BoolVar(&accessLog, "access-log", true, "Log every HTTP request")
}

func runServe(cmd *cobra.Command, args []string) error {
	banner.Print(cmd.ErrOrStderr(), version)

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	logger := newLogger(&cfg.Logger)
	logger.Info("configuration loaded",
		"path", configFile,
		"storage_mode", cfg.Storage.Mode,
	)

	// Create context that listens for shutdown signals
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	rt, err := newServices(ctx, cfg, logger)
	if err != nil {
		logger.Error("failed to initialize dependencies", "error", err)
		return err
	}
	defer rt.close()

	server := api.NewServer(api.ServerDeps{
		Config:        &cfg.Server,
		Logger:        logger,
		QueueHandler:  api.NewQueueHandler(rt.engine, logger),
		HealthHandler: api.NewHealthHandler(rt.engine, logger),
		AccessLog:     accessLog,
	})

	go func() {
		if err := server.Start(); err != nil {
			logger.Error("server error", "error", err)
			cancel()
		}
	}()

	logger.Info("fifoq started",
		"address", cfg.Server.Address(),
		"storage_mode", cfg.Storage.Mode,
		"version", version,
	)

	<-ctx.Done()
	logger.Info("shutdown signal received")

	// Blocked dequeues may hold connections for up to the max wait.
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.WriteTimeout)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", "error", err)
	}

	logger.Info("fifoq stopped")
	return nil
}

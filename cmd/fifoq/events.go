package main

import (
	"context"
	"errors"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"fifoq/internal/events"
	kafkaevents "fifoq/internal/events/kafka"
)

var tailQueue string

var eventsCmd = &cobra.Command{
	Use:   "events",
	Short: "Queue lifecycle event commands",
}

var eventsTailCmd = &cobra.Command{
	Use:   "tail",
	Short: "Print queue lifecycle events as they arrive",
	Args:  cobra.NoArgs,
	RunE:  runEventsTail,
}

func init() {
	eventsTailCmd.Flags().StringVarP(&tailQueue, "queue", "q", "", "Only print events for this queue")
	eventsCmd.AddCommand(eventsTailCmd)
}

func runEventsTail(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if !cfg.Events.Enabled {
		return errors.New("events are disabled; set events.enabled or FIFOQ_EVENTS_ENABLED")
	}

	logger := newLogger(&cfg.Logger)

	ctx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	consumer := kafkaevents.NewConsumer(&cfg.Events.Kafka, logger)
	defer consumer.Close()

	out := cmd.OutOrStdout()
	err = consumer.Start(ctx, func(ctx context.Context, event *events.Event) error {
		if tailQueue != "" && event.Queue != tailQueue {
			return nil
		}
		data, err := event.Encode()
		if err != nil {
			return err
		}
		_, err = out.Write(append(data, '\n'))
		return err
	})
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

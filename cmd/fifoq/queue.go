package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"fifoq/internal/domain"
	"fifoq/internal/engine"
)

var (
	peekCount      int
	dequeueTimeout time.Duration
	confirm        bool
)

type peekOutput struct {
	Queue      string                `json:"queue"`
	Messages   []*domain.MessageView `json:"messages"`
	TotalDepth int64                 `json:"totalDepth"`
}

var queueCmd = &cobra.Command{
	Use:   "queue",
	Short: "Operate on queues directly through the backing store",
}

var queueListCmd = &cobra.Command{
	Use:   "list",
	Short: "List all queues",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withEngine(cmd, func(ctx context.Context, e *engine.Engine) (any, error) {
			return e.List(ctx)
		})
	},
}

var queueInfoCmd = &cobra.Command{
	Use:   "info <queue>",
	Short: "Show depth, totals and message ages",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withEngine(cmd, func(ctx context.Context, e *engine.Engine) (any, error) {
			return e.Info(ctx, args[0])
		})
	},
}

var queueStatsCmd = &cobra.Command{
	Use:   "stats <queue>",
	Short: "Show totals and enqueue/dequeue rates",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withEngine(cmd, func(ctx context.Context, e *engine.Engine) (any, error) {
			return e.Stats(ctx, args[0])
		})
	},
}

var queuePeekCmd = &cobra.Command{
	Use:   "peek <queue>",
	Short: "Show the oldest messages without removing them",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withEngine(cmd, func(ctx context.Context, e *engine.Engine) (any, error) {
			count := peekCount
			if count == 0 {
				count = e.Limits().DefaultPeekCount
			}
			res, err := e.Peek(ctx, args[0], count)
			if err != nil {
				return nil, err
			}
			return peekOutput{
				Queue:      res.Queue,
				Messages:   domain.Views(res.Messages),
				TotalDepth: res.TotalDepth,
			}, nil
		})
	},
}

var queueEnqueueCmd = &cobra.Command{
	Use:   "enqueue <queue> [payload|-]",
	Short: "Append a JSON payload (argument or stdin)",
	Args:  cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		payload, err := readPayload(cmd.InOrStdin(), args[1:])
		if err != nil {
			return err
		}
		return withEngine(cmd, func(ctx context.Context, e *engine.Engine) (any, error) {
			return e.Enqueue(ctx, args[0], payload)
		})
	},
}

var queueDequeueCmd = &cobra.Command{
	Use:   "dequeue <queue>",
	Short: "Remove and print the oldest message",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withEngine(cmd, func(ctx context.Context, e *engine.Engine) (any, error) {
			res, err := e.Dequeue(ctx, args[0], dequeueTimeout)
			if err != nil {
				return nil, err
			}
			if res.Empty() {
				fmt.Fprintln(cmd.ErrOrStderr(), "no message")
				return nil, nil
			}
			return res.Message.View(), nil
		})
	},
}

var queuePurgeCmd = &cobra.Command{
	Use:   "purge <queue>",
	Short: "Remove every message, keeping the queue",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if !confirm {
			return fmt.Errorf("refusing to purge %q without --yes", args[0])
		}
		return withEngine(cmd, func(ctx context.Context, e *engine.Engine) (any, error) {
			return e.Purge(ctx, args[0])
		})
	},
}

var queueCreateCmd = &cobra.Command{
	Use:   "create <queue>",
	Short: "Create an empty queue",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withEngine(cmd, func(ctx context.Context, e *engine.Engine) (any, error) {
			return e.Create(ctx, args[0])
		})
	},
}

var queueDeleteCmd = &cobra.Command{
	Use:   "delete <queue>",
	Short: "Delete a queue with its messages and statistics",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if !confirm {
			return fmt.Errorf("refusing to delete %q without --yes", args[0])
		}
		return withEngine(cmd, func(ctx context.Context, e *engine.Engine) (any, error) {
			return e.Delete(ctx, args[0])
		})
	},
}

func init() {
	queuePeekCmd.Flags().IntVarP(&peekCount, "count", "n", 0, "Number of messages (0 uses the configured default)")
	queueDequeueCmd.Flags().DurationVarP(&dequeueTimeout, "timeout", "t", 0, "How long to wait for a message")
	queuePurgeCmd.Flags().BoolVarP(&confirm, "yes", "y", false, "Confirm the purge")
	queueDeleteCmd.Flags().BoolVarP(&confirm, "yes", "y", false, "Confirm the delete")

	queueCmd.AddCommand(
		queueListCmd,
		queueInfoCmd,
		queueStatsCmd,
		queuePeekCmd,
		queueEnqueueCmd,
		queueDequeueCmd,
		queuePurgeCmd,
		queueCreateCmd,
		queueDeleteCmd,
	)
}

// withEngine wires an engine from the configuration, runs fn and prints
// its result as indented JSON.
func withEngine(cmd *cobra.Command, fn func(ctx context.Context, e *engine.Engine) (any, error)) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if cfg.Storage.UseMemory() {
		fmt.Fprintln(cmd.ErrOrStderr(), "warning: storage mode is memory; queues exist only in this process")
	}

	ctx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// Admin output goes to stdout; keep the log quiet unless asked.
	logCfg := cfg.Logger
	if os.Getenv("FIFOQ_LOG_LEVEL") == "" {
		logCfg.Level = "warn"
	}

	rt, err := newServices(ctx, cfg, newLogger(&logCfg))
	if err != nil {
		return err
	}
	defer rt.close()

	out, err := fn(ctx, rt.engine)
	if err != nil {
		return err
	}
	if out == nil {
		return nil
	}
	return printJSON(cmd.OutOrStdout(), out)
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// readPayload takes the payload from args, or from stdin when args is
// empty or "-". The payload must be valid JSON.
func readPayload(stdin io.Reader, args []string) ([]byte, error) {
	var payload []byte
	if len(args) == 0 || args[0] == "-" {
		data, err := io.ReadAll(stdin)
		if err != nil {
			return nil, fmt.Errorf("failed to read payload: %w", err)
		}
		payload = data
	} else {
		payload = []byte(args[0])
	}

	if !json.Valid(payload) {
		return nil, errors.New("payload must be valid JSON")
	}
	return payload, nil
}

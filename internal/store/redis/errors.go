package redis

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"

	"github.com/redis/go-redis/v9"

	"fifoq/internal/domain"
)

// Error replies that mean the server cannot serve requests right now.
var unavailableReplies = []string{"LOADING", "MASTERDOWN", "CLUSTERDOWN", "READONLY", "TRYAGAIN"}

// translateError maps driver errors onto the engine's error kinds.
func translateError(op string, err error) error {
	if err == nil {
		return nil
	}

	var derr *domain.Error
	if errors.As(err, &derr) {
		return err
	}

	if errors.Is(err, context.Canceled) {
		return fmt.Errorf("redis %s: %w", op, err)
	}

	if errors.Is(err, context.DeadlineExceeded) || isTimeout(err) {
		return domain.WrapError(domain.KindBackingStoreTimeout, err, fmt.Sprintf("redis %s timed out", op))
	}

	var rerr redis.Error
	if errors.As(err, &rerr) {
		msg := rerr.Error()
		for _, prefix := range unavailableReplies {
			if strings.HasPrefix(msg, prefix) {
				return domain.WrapError(domain.KindBackingStoreUnavailable, err, fmt.Sprintf("redis %s failed", op))
			}
		}
		return fmt.Errorf("redis %s: %w", op, err)
	}

	return domain.WrapError(domain.KindBackingStoreUnavailable, err, fmt.Sprintf("redis %s failed", op))
}

func isTimeout(err error) bool {
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}

package api

import (
	"context"
	"log/slog"
	"time"

	"github.com/gofiber/fiber/v2"
)

// Pinger reports whether a dependency is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// HealthResponse represents the health check response.
type HealthResponse struct {
	Status    string    `json:"status"`
	Timestamp string    `json:"timestamp"`
	Error     *APIError `json:"error,omitempty"`
}

// HealthHandler serves the /healthz endpoint.
type HealthHandler struct {
	store   Pinger
	timeout time.Duration
	logger  *slog.Logger
}

// NewHealthHandler creates a health handler that pings store.
func NewHealthHandler(store Pinger, logger *slog.Logger) *HealthHandler {
	return &HealthHandler{
		store:   store,
		timeout: 2 * time.Second,
		logger:  logger,
	}
}

// Check handles GET /healthz
func (h *HealthHandler) Check(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(c.UserContext(), h.timeout)
	defer cancel()

	now := time.Now().UTC().Format(time.RFC3339)
	if err := h.store.Ping(ctx); err != nil {
		h.logger.Warn("health check failed", "error", err)
		return JSON(c, fiber.StatusServiceUnavailable, HealthResponse{
			Status:    "unavailable",
			Timestamp: now,
			Error: &APIError{
				Code:    ErrCodeServiceUnavailable,
				Message: "backing store unreachable",
			},
		})
	}

	return OK(c, HealthResponse{
		Status:    "ok",
		Timestamp: now,
	})
}

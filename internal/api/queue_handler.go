package api

import (
	"bytes"
	"encoding/json"
	"errors"
	"log/slog"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"

	"fifoq/internal/domain"
	"fifoq/internal/engine"
)

// Headers carrying envelope fields when a dequeue returns the raw payload.
const (
	HeaderMessageID  = "X-Message-Id"
	HeaderEnqueuedAt = "X-Enqueued-At"
	HeaderDequeuedAt = "X-Dequeued-At"
)

// QueueHandler handles HTTP requests for queue operations.
type QueueHandler struct {
	engine *engine.Engine
	logger *slog.Logger
}

// NewQueueHandler creates a new queue handler.
func NewQueueHandler(e *engine.Engine, logger *slog.Logger) *QueueHandler {
	return &QueueHandler{
		engine: e,
		logger: logger,
	}
}

type enqueueResponse struct {
	Success   bool      `json:"success"`
	Queue     string    `json:"queue"`
	MessageID string    `json:"messageId"`
	Timestamp time.Time `json:"timestamp"`
}

type bulkEnqueueResponse struct {
	Success    bool      `json:"success"`
	Queue      string    `json:"queue"`
	Count      int       `json:"count"`
	MessageIDs []string  `json:"messageIds"`
	Timestamp  time.Time `json:"timestamp"`
}

type peekResponse struct {
	Success    bool                  `json:"success"`
	Queue      string                `json:"queue"`
	Messages   []*domain.MessageView `json:"messages"`
	TotalDepth int64                 `json:"totalDepth"`
}

type purgeResponse struct {
	Success     bool   `json:"success"`
	Queue       string `json:"queue"`
	PurgedCount int64  `json:"purgedCount"`
}

type deleteResponse struct {
	Success         bool   `json:"success"`
	Queue           string `json:"queue"`
	DeletedMessages int64  `json:"deletedMessages"`
}

type createResponse struct {
	Success   bool      `json:"success"`
	Queue     string    `json:"queue"`
	CreatedAt time.Time `json:"createdAt"`
}

type infoResponse struct {
	Success bool `json:"success"`
	*domain.QueueInfo
}

type statsResponse struct {
	Success bool `json:"success"`
	*domain.QueueStats
}

var errInvalidBulkBody = errors.New(`request body must be a JSON array or {"messages": [...]}`)

type bulkRequest struct {
	Messages []json.RawMessage `json:"messages"`
}

// Enqueue handles POST /:queue
// The request body is the message payload and must be well-formed JSON.
func (h *QueueHandler) Enqueue(c *fiber.Ctx) error {
	queue := c.Params("queue")

	// Fiber reuses the request buffer after the handler returns.
	body := bytes.Clone(c.Body())
	if !json.Valid(body) {
		return BadRequest(c, "request body must be valid JSON")
	}

	res, err := h.engine.Enqueue(c.UserContext(), queue, body)
	if err != nil {
		return h.fail(c, "enqueue", queue, err)
	}

	return Created(c, enqueueResponse{
		Success:   true,
		Queue:     res.Queue,
		MessageID: res.MessageID,
		Timestamp: res.Timestamp,
	})
}

// BulkEnqueue handles POST /:queue/messages/bulk
// Accepts {"messages": [...]} or a bare JSON array.
func (h *QueueHandler) BulkEnqueue(c *fiber.Ctx) error {
	queue := c.Params("queue")

	messages, err := parseBulkBody(c.Body())
	if err != nil {
		return BadRequest(c, err.Error())
	}

	payloads := make([][]byte, len(messages))
	for i, m := range messages {
		payloads[i] = bytes.Clone(m)
	}

	res, err := h.engine.BulkEnqueue(c.UserContext(), queue, payloads)
	if err != nil {
		return h.fail(c, "bulk enqueue", queue, err)
	}

	return Created(c, bulkEnqueueResponse{
		Success:    true,
		Queue:      res.Queue,
		Count:      res.Count,
		MessageIDs: res.MessageIDs,
		Timestamp:  res.Timestamp,
	})
}

func parseBulkBody(body []byte) ([]json.RawMessage, error) {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) > 0 && trimmed[0] == '[' {
		var messages []json.RawMessage
		if err := json.Unmarshal(trimmed, &messages); err != nil {
			return nil, errInvalidBulkBody
		}
		return messages, nil
	}

	var req bulkRequest
	if err := json.Unmarshal(trimmed, &req); err != nil {
		return nil, errInvalidBulkBody
	}
	return req.Messages, nil
}

// Get handles GET /:queue
// A timeout query parameter selects dequeue; otherwise queue info.
func (h *QueueHandler) Get(c *fiber.Ctx) error {
	if c.Query("timeout") != "" {
		return h.Dequeue(c)
	}
	return h.Info(c)
}

// Dequeue handles GET /:queue/messages?timeout=ms&envelope=bool
// Responds 204 when no message arrives before the timeout.
func (h *QueueHandler) Dequeue(c *fiber.Ctx) error {
	queue := c.Params("queue")

	timeout := h.engine.Limits().DefaultDequeueTimeout
	if raw := c.Query("timeout"); raw != "" {
		ms, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return BadRequest(c, "timeout must be an integer number of milliseconds")
		}
		timeout, err = h.dequeueTimeout(ms)
		if err != nil {
			return h.fail(c, "dequeue", queue, err)
		}
	}

	res, err := h.engine.Dequeue(c.UserContext(), queue, timeout)
	if err != nil {
		return h.fail(c, "dequeue", queue, err)
	}
	if res.Empty() {
		return NoContent(c)
	}

	msg := res.Message
	if c.QueryBool("envelope", false) {
		return OK(c, msg.View())
	}

	c.Set(HeaderMessageID, msg.ID)
	c.Set(HeaderEnqueuedAt, msg.EnqueuedAt.Format(time.RFC3339Nano))
	if msg.DequeuedAt != nil {
		c.Set(HeaderDequeuedAt, msg.DequeuedAt.Format(time.RFC3339Nano))
	}
	c.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	return c.Status(fiber.StatusOK).Send(msg.Payload)
}

// dequeueTimeout range-checks a millisecond timeout before converting it;
// large values would overflow time.Duration.
func (h *QueueHandler) dequeueTimeout(ms int64) (time.Duration, error) {
	if ms < 0 {
		return 0, domain.NewError(domain.KindInvalidArgument, "timeout must not be negative")
	}
	limit := h.engine.Limits().MaxDequeueTimeout
	if ms > limit.Milliseconds() {
		return 0, domain.NewError(domain.KindTimeoutTooLarge,
			"timeout %dms exceeds the maximum of %s", ms, limit)
	}
	return time.Duration(ms) * time.Millisecond, nil
}

// Peek handles GET /:queue/messages/peek?count=N
func (h *QueueHandler) Peek(c *fiber.Ctx) error {
	queue := c.Params("queue")

	count := h.engine.Limits().DefaultPeekCount
	if raw := c.Query("count"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			return BadRequest(c, "count must be an integer")
		}
		count = n
	}

	res, err := h.engine.Peek(c.UserContext(), queue, count)
	if err != nil {
		return h.fail(c, "peek", queue, err)
	}

	return OK(c, peekResponse{
		Success:    true,
		Queue:      res.Queue,
		Messages:   domain.Views(res.Messages),
		TotalDepth: res.TotalDepth,
	})
}

// Purge handles DELETE /:queue/messages
func (h *QueueHandler) Purge(c *fiber.Ctx) error {
	queue := c.Params("queue")

	res, err := h.engine.Purge(c.UserContext(), queue)
	if err != nil {
		return h.fail(c, "purge", queue, err)
	}

	return OK(c, purgeResponse{
		Success:     true,
		Queue:       res.Queue,
		PurgedCount: res.PurgedCount,
	})
}

// Create handles PUT /:queue
func (h *QueueHandler) Create(c *fiber.Ctx) error {
	queue := c.Params("queue")

	meta, err := h.engine.Create(c.UserContext(), queue)
	if err != nil {
		return h.fail(c, "create", queue, err)
	}

	return Created(c, createResponse{
		Success:   true,
		Queue:     meta.Name,
		CreatedAt: meta.CreatedAt,
	})
}

// Info handles GET /:queue/info
func (h *QueueHandler) Info(c *fiber.Ctx) error {
	queue := c.Params("queue")

	info, err := h.engine.Info(c.UserContext(), queue)
	if err != nil {
		return h.fail(c, "info", queue, err)
	}

	return OK(c, infoResponse{Success: true, QueueInfo: info})
}

// Stats handles GET /:queue/stats
func (h *QueueHandler) Stats(c *fiber.Ctx) error {
	queue := c.Params("queue")

	stats, err := h.engine.Stats(c.UserContext(), queue)
	if err != nil {
		return h.fail(c, "stats", queue, err)
	}

	return OK(c, statsResponse{Success: true, QueueStats: stats})
}

// Delete handles DELETE /:queue
func (h *QueueHandler) Delete(c *fiber.Ctx) error {
	queue := c.Params("queue")

	res, err := h.engine.Delete(c.UserContext(), queue)
	if err != nil {
		return h.fail(c, "delete", queue, err)
	}

	return OK(c, deleteResponse{
		Success:         true,
		Queue:           res.Queue,
		DeletedMessages: res.DeletedMessages,
	})
}

// List handles GET /queues
// Responds with a JSON array of queue summaries.
func (h *QueueHandler) List(c *fiber.Ctx) error {
	queues, err := h.engine.List(c.UserContext())
	if err != nil {
		return h.fail(c, "list", "", err)
	}
	return OK(c, queues)
}

// fail logs server-side failures and writes the mapped error response.
func (h *QueueHandler) fail(c *fiber.Ctx, op, queue string, err error) error {
	if StatusForKind(domain.KindOf(err)) >= fiber.StatusInternalServerError {
		h.logger.Error("queue operation failed",
			"operation", op,
			"queue", queue,
			"error", err,
			"request_id", c.GetRespHeader(fiber.HeaderXRequestID),
		)
	} else {
		h.logger.Debug("queue operation rejected",
			"operation", op,
			"queue", queue,
			"error", err,
		)
	}
	return FromError(c, err)
}

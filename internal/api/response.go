// Package api provides HTTP handlers and routing for the fifoq REST API.
package api

import (
	"errors"

	"github.com/gofiber/fiber/v2"

	"fifoq/internal/domain"
)

// APIResponse is the envelope for error responses.
type APIResponse struct {
	Success bool      `json:"success"`
	Error   *APIError `json:"error,omitempty"`
}

// APIError represents an error response.
type APIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Error codes for failures that do not originate in the engine. Engine
// failures use their domain.Kind as the code.
const (
	ErrCodeBadRequest         = "BAD_REQUEST"
	ErrCodeNotFound           = "NOT_FOUND"
	ErrCodeInternalError      = "INTERNAL_ERROR"
	ErrCodeServiceUnavailable = "SERVICE_UNAVAILABLE"
)

// JSON sends body with the given status code.
func JSON(c *fiber.Ctx, status int, body interface{}) error {
	return c.Status(status).JSON(body)
}

// Created sends a 201 Created response with the given body.
func Created(c *fiber.Ctx, body interface{}) error {
	return JSON(c, fiber.StatusCreated, body)
}

// OK sends a 200 OK response with the given body.
func OK(c *fiber.Ctx, body interface{}) error {
	return JSON(c, fiber.StatusOK, body)
}

// NoContent sends a 204 No Content response.
func NoContent(c *fiber.Ctx) error {
	return c.SendStatus(fiber.StatusNoContent)
}

// Error sends an error JSON response with the given status code.
func Error(c *fiber.Ctx, status int, code, message string) error {
	return c.Status(status).JSON(APIResponse{
		Success: false,
		Error: &APIError{
			Code:    code,
			Message: message,
		},
	})
}

// BadRequest sends a 400 Bad Request error response.
func BadRequest(c *fiber.Ctx, message string) error {
	return Error(c, fiber.StatusBadRequest, ErrCodeBadRequest, message)
}

// InternalError sends a 500 Internal Server Error response.
func InternalError(c *fiber.Ctx, message string) error {
	return Error(c, fiber.StatusInternalServerError, ErrCodeInternalError, message)
}

// FromError sends the response matching an engine error's kind.
func FromError(c *fiber.Ctx, err error) error {
	kind := domain.KindOf(err)
	status := StatusForKind(kind)
	if status == fiber.StatusInternalServerError {
		return InternalError(c, "internal error")
	}

	message := err.Error()
	var de *domain.Error
	if errors.As(err, &de) {
		message = de.Message
	}
	return Error(c, status, string(kind), message)
}

// StatusForKind maps an error kind to its HTTP status code.
func StatusForKind(kind domain.Kind) int {
	switch kind {
	case domain.KindInvalidQueueName,
		domain.KindTimeoutTooLarge,
		domain.KindInvalidArgument,
		domain.KindPayloadRejected:
		return fiber.StatusBadRequest
	case domain.KindQueueNotFound:
		return fiber.StatusNotFound
	case domain.KindQueueAlreadyExists:
		return fiber.StatusConflict
	case domain.KindBackingStoreUnavailable:
		return fiber.StatusServiceUnavailable
	case domain.KindBackingStoreTimeout:
		return fiber.StatusGatewayTimeout
	default:
		return fiber.StatusInternalServerError
	}
}

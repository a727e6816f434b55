package domain

import (
	"errors"
	"fmt"
)

// Kind classifies a failure so callers can map it to a response without
// inspecting error strings.
type Kind string

const (
	KindInvalidQueueName        Kind = "INVALID_QUEUE_NAME"
	KindTimeoutTooLarge         Kind = "TIMEOUT_TOO_LARGE"
	KindInvalidArgument         Kind = "INVALID_ARGUMENT"
	KindPayloadRejected         Kind = "PAYLOAD_REJECTED"
	KindQueueNotFound           Kind = "QUEUE_NOT_FOUND"
	KindQueueAlreadyExists      Kind = "QUEUE_ALREADY_EXISTS"
	KindBackingStoreUnavailable Kind = "BACKING_STORE_UNAVAILABLE"
	KindBackingStoreTimeout     Kind = "BACKING_STORE_TIMEOUT"
	KindInternal                Kind = "INTERNAL"
)

// Error is a failure with a stable kind and a human-readable message.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is reports whether target is an *Error of the same kind, so the
// sentinels below match any error carrying their kind.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

// Sentinels for errors.Is comparisons.
var (
	ErrInvalidQueueName        = &Error{Kind: KindInvalidQueueName, Message: "invalid queue name"}
	ErrTimeoutTooLarge         = &Error{Kind: KindTimeoutTooLarge, Message: "timeout too large"}
	ErrInvalidArgument         = &Error{Kind: KindInvalidArgument, Message: "invalid argument"}
	ErrPayloadRejected         = &Error{Kind: KindPayloadRejected, Message: "payload rejected"}
	ErrQueueNotFound           = &Error{Kind: KindQueueNotFound, Message: "queue not found"}
	ErrQueueAlreadyExists      = &Error{Kind: KindQueueAlreadyExists, Message: "queue already exists"}
	ErrBackingStoreUnavailable = &Error{Kind: KindBackingStoreUnavailable, Message: "backing store unavailable"}
	ErrBackingStoreTimeout     = &Error{Kind: KindBackingStoreTimeout, Message: "backing store timeout"}
)

// NewError creates an error of the given kind with a formatted message.
func NewError(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// WrapError attaches a kind and message to an underlying cause.
func WrapError(kind Kind, err error, message string) *Error {
	return &Error{Kind: kind, Message: message, Err: err}
}

// KindOf returns the kind carried by err, or KindInternal when err is not
// an *Error.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// IsTransient reports whether err is a store connectivity failure that
// may succeed if retried.
func IsTransient(err error) bool {
	switch KindOf(err) {
	case KindBackingStoreUnavailable, KindBackingStoreTimeout:
		return true
	default:
		return false
	}
}

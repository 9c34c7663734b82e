package engine

import (
	"errors"
	"fmt"

	"github.com/roach88/linksync/internal/ir"
)

// RuntimeError is an engine-level problem that is not tied to one
// pairing: a full notification queue, a closed engine, a panicking
// collaborator.
type RuntimeError struct {
	// Code identifies the error category.
	Code RuntimeErrorCode

	// Message is a human-readable description.
	Message string

	// Side is the notification source or store involved, if any.
	Side ir.Side
}

// RuntimeErrorCode categorizes runtime errors.
type RuntimeErrorCode string

const (
	// ErrCodeQueueFull indicates a notification was dropped because the
	// source's queue was at capacity.
	ErrCodeQueueFull RuntimeErrorCode = "QUEUE_FULL"

	// ErrCodeClosed indicates the engine no longer accepts notifications.
	ErrCodeClosed RuntimeErrorCode = "ENGINE_CLOSED"

	// ErrCodePanic indicates a store, linker or accessor panicked.
	ErrCodePanic RuntimeErrorCode = "COLLABORATOR_PANIC"
)

// Error implements the error interface.
func (e *RuntimeError) Error() string {
	if e.Side != "" {
		return fmt.Sprintf("%s: %s (side=%s)", e.Code, e.Message, e.Side)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// IsQueueFull returns true if err reports a dropped notification.
func IsQueueFull(err error) bool {
	return hasCode(err, ErrCodeQueueFull)
}

// IsClosed returns true if err reports a closed engine.
func IsClosed(err error) bool {
	return hasCode(err, ErrCodeClosed)
}

// IsPanicError returns true if err was recovered from a panic.
func IsPanicError(err error) bool {
	return hasCode(err, ErrCodePanic)
}

func hasCode(err error, code RuntimeErrorCode) bool {
	var re *RuntimeError
	if errors.As(err, &re) {
		return re.Code == code
	}
	return false
}

func newQueueFullError(side ir.Side, capacity int) *RuntimeError {
	return &RuntimeError{
		Code:    ErrCodeQueueFull,
		Message: fmt.Sprintf("notification queue at capacity (%d)", capacity),
		Side:    side,
	}
}

func newClosedError(side ir.Side) *RuntimeError {
	return &RuntimeError{
		Code:    ErrCodeClosed,
		Message: "engine closed",
		Side:    side,
	}
}

// guard runs fn, converting a panic into a RuntimeError so a misbehaving
// collaborator fails one pairing instead of the whole batch.
func guard(op string, fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &RuntimeError{
				Code:    ErrCodePanic,
				Message: fmt.Sprintf("%s panicked: %v", op, r),
			}
		}
	}()
	return fn()
}

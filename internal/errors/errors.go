// Package errors provides structured error types for the santa bot.
package errors

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel errors for common failure modes.
var (
	ErrNotFound       = errors.New("session not found")
	ErrAlreadyExists  = errors.New("session already exists")
	ErrNotAuthorized  = errors.New("not authorized")
	ErrGuardFailed    = errors.New("guard failed")
	ErrDraftingFailed = errors.New("drafting failed")
	ErrPartialFailure = errors.New("participants unreachable")
	ErrInvalidInput   = errors.New("invalid input")
	ErrUnavailable    = errors.New("service unavailable")
	ErrTimeout        = errors.New("operation timed out")
)

// StoreError wraps a failure from the session store.
type StoreError struct {
	Op   string
	Room string
	Err  error
}

func (e *StoreError) Error() string {
	if e.Room != "" {
		return fmt.Sprintf("store %s %s: %v", e.Op, e.Room, e.Err)
	}
	return fmt.Sprintf("store %s: %v", e.Op, e.Err)
}

func (e *StoreError) Unwrap() error { return e.Err }

// NewStoreError classifies err and wraps it. Lock contention reported by the
// database driver is treated as transient.
func NewStoreError(op, room string, err error) error {
	if err == nil {
		return nil
	}
	msg := strings.ToLower(err.Error())
	if strings.Contains(msg, "database is locked") || strings.Contains(msg, "sqlite_busy") {
		err = fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return &StoreError{Op: op, Room: room, Err: err}
}

// IsRetryable returns true if the error is likely transient and worth retrying.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrTimeout) || errors.Is(err, ErrUnavailable)
}

package model

import (
	"errors"
	"fmt"
)

// ErrStorageUnavailable marks local store I/O failures. Retryable; the
// sync engine never treats it as fatal.
var ErrStorageUnavailable = errors.New("storage unavailable")

// ErrNotFound is returned when an entity id has no row in the local store.
var ErrNotFound = errors.New("not found")

// NetworkError wraps a push/pull/realtime transport failure. Retryable;
// it triggers a sync-error notification and leaves sync state unchanged.
type NetworkError struct {
	Op  string // "push", "pull", "subscribe"
	Err error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("network error during %s: %v", e.Op, e.Err)
}

func (e *NetworkError) Unwrap() error { return e.Err }

// ValidationError is surfaced synchronously to the caller that attempted
// the mutation. Never auto-corrected.
type ValidationError struct {
	Field string
	Msg   string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Msg
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Msg)
}

// IsRetryable reports whether err is a transient storage or network
// condition that the next sync pass should simply retry.
func IsRetryable(err error) bool {
	var netErr *NetworkError
	return errors.Is(err, ErrStorageUnavailable) || errors.As(err, &netErr)
}

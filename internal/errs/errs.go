// Package errs defines the engine's error taxonomy. Callers classify
// failures with errors.Is against the sentinel values; the API layer
// maps each class to a wire code.
package errs

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidInput marks requests rejected before any mutation.
	// Safe to retry after correction.
	ErrInvalidInput = errors.New("invalid input")
	// ErrNotFound marks a missing account, content item, or alert.
	ErrNotFound = errors.New("not found")
	// ErrConflict marks a state conflict such as an already-resolved
	// alert. Not retried automatically.
	ErrConflict = errors.New("conflict")
	// ErrTransientStore marks an underlying persistence failure.
	// Safe to retry with backoff; no partial mutation is observable.
	ErrTransientStore = errors.New("transient store error")
)

// InvalidInputf wraps ErrInvalidInput with a formatted message
func InvalidInputf(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrInvalidInput, fmt.Sprintf(format, args...))
}

// NotFoundf wraps ErrNotFound with a formatted message
func NotFoundf(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrNotFound, fmt.Sprintf(format, args...))
}

// Conflictf wraps ErrConflict with a formatted message
func Conflictf(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrConflict, fmt.Sprintf(format, args...))
}

// Store wraps a persistence error as transient
func Store(err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%w: %v", ErrTransientStore, err)
}

package api

import (
	"errors"
	"fmt"

	"github.com/inkraft/sentinel/internal/errs"
)

// Error represents an API error
type Error struct {
	Code    int
	Message string
}

// NewError creates a new API error
func NewError(code int, message string) *Error {
	return &Error{
		Code:    code,
		Message: message,
	}
}

// Error implements the error interface
func (e *Error) Error() string {
	return fmt.Sprintf("API error %d: %s", e.Code, e.Message)
}

// Engine-specific JSON-RPC error codes in the implementation-defined
// range, plus the standard invalid-params code for rejected input
const (
	CodeInvalidInput = -32602
	CodeServerError  = -32000
	CodeNotFound     = -32001
	CodeConflict     = -32002
)

// classify maps an engine error to its JSON-RPC code and message
func classify(err error) (int, string) {
	var apiErr *Error
	if errors.As(err, &apiErr) {
		return apiErr.Code, apiErr.Message
	}
	switch {
	case errors.Is(err, errs.ErrInvalidInput):
		return CodeInvalidInput, "Invalid params"
	case errors.Is(err, errs.ErrNotFound):
		return CodeNotFound, "Not found"
	case errors.Is(err, errs.ErrConflict):
		return CodeConflict, "Conflict"
	default:
		return CodeServerError, "Server error"
	}
}

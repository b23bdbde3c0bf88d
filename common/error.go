package common

import (
	"errors"
	"fmt"
)

// Sentinel errors shared by the store, the engine and the HTTP layer.
// Repositories wrap them with %w; the service maps them to APIError.
var (
	ErrInvalidPayload = errors.New("invalid payload")
	ErrNotFound       = errors.New("not found")
	ErrConflict       = errors.New("conflict")
	ErrExpired        = errors.New("expired")

	// ErrLeaseLost means the caller no longer owns the job it is reporting on:
	// the lease expired and the job was reaped, or it already reached a
	// terminal state.
	ErrLeaseLost = errors.New("lease lost")
)

type APIError struct {
	Status  int            `json:"-"`
	Message string         `json:"error"`
	Fields  map[string]any `json:"fields,omitempty"`
}

func (e APIError) Error() string {
	return e.Message
}

func Errf(status int, format string, args ...any) APIError {
	return APIError{Status: status, Message: fmt.Sprintf(format, args...)}
}

// NewAPIError creates an APIError with status, message, and optional fields
func NewAPIError(status int, message string, fields map[string]any) APIError {
	return APIError{
		Status:  status,
		Message: message,
		Fields:  fields,
	}
}

// Package qmap error values with structured error codes.
package qmap

import (
	"errors"
	"fmt"
)

// MapError represents a map operation error with a structured error code.
//
// @design QD-0104
type MapError struct {
	Code    string // Error code (e.g., "QM-NTF-4090")
	Message string // Human-readable message
	Details string // Optional additional details
	Cause   error  // Underlying error (if any)
}

// Error implements the error interface.
func (e *MapError) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("[%s] %s: %s", e.Code, e.Message, e.Details)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying error for errors.Unwrap() support.
func (e *MapError) Unwrap() error {
	return e.Cause
}

// Is implements errors.Is() support for error comparison.
func (e *MapError) Is(target error) bool {
	t, ok := target.(*MapError)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

// NewMapError creates a new MapError with the given code and message.
func NewMapError(code, message string) *MapError {
	return &MapError{
		Code:    code,
		Message: message,
	}
}

// WithDetails returns a copy of the error with additional details.
func (e *MapError) WithDetails(details string) *MapError {
	return &MapError{
		Code:    e.Code,
		Message: e.Message,
		Details: details,
		Cause:   e.Cause,
	}
}

// IsMapError checks if an error is a MapError with the given code.
// If code is empty, it only checks whether the error is a MapError.
func IsMapError(err error, code string) bool {
	var me *MapError
	if errors.As(err, &me) {
		if code == "" {
			return true
		}
		return me.Code == code
	}
	return false
}

// ============================================================================
// Notifier Errors (NTF)
// ============================================================================

var (
	// ErrNotifierExists indicates the registration already exists, or a
	// second FREE-masked notifier was registered on the same scope.
	ErrNotifierExists = NewMapError("QM-NTF-4090", "notifier already registered")

	// ErrNotifierNotFound indicates no registration matched the removal.
	ErrNotifierNotFound = NewMapError("QM-NTF-4040", "notifier not found")
)

// ============================================================================
// Map Errors (MAP)
// ============================================================================

var (
	// ErrKeyNotFound indicates the addressed key has no entry.
	ErrKeyNotFound = NewMapError("QM-MAP-4040", "key not found")
)

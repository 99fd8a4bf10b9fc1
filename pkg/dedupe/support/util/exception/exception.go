// Package exception provides custom error types and error handling utilities for the dedupe engine.
// It standardizes errors that occur during duplicate detection and merge runs, allowing
// them to be categorized by the engine's error taxonomy.
package exception

import (
	"errors"
	"fmt"
	"runtime"
)

// Sentinel errors for the engine's error taxonomy. Callers classify errors
// with errors.Is against these values rather than by message inspection.
var (
	// ErrNotFound indicates a queried run result or record does not exist.
	ErrNotFound = errors.New("not found")
	// ErrAccessDenied indicates a query or merge was attempted without the required permission.
	ErrAccessDenied = errors.New("access denied")
	// ErrValidation indicates a single group's reparent or delete step was rejected by the
	// underlying store. Validation failures are isolated to the failing group.
	ErrValidation = errors.New("validation failure")
	// ErrConfiguration indicates an invalid run configuration (unknown object type,
	// empty match fields, non-positive partition or page size).
	ErrConfiguration = errors.New("configuration error")
	// ErrRunInProgress indicates another run against the same object type holds the
	// run-exclusivity lock.
	ErrRunInProgress = errors.New("run already in progress")
)

// DedupError is a custom error type for failures during a dedupe run.
// It holds the module where the error occurred, a message, the wrapped original error,
// and a flag indicating whether it is retryable.
type DedupError struct {
	// Module indicates the module where the error occurred (e.g., "accumulator", "merge", "repository").
	Module string
	// Message is a concise description of the error.
	Message string
	// OriginalErr is the wrapped original error.
	OriginalErr error
	// isRetryable indicates whether this error is retryable.
	isRetryable bool
	// StackTrace is the stack trace at the time of the error (for debugging).
	StackTrace string
}

// NewDedupError creates a new DedupError instance.
// module: The module where the error occurred.
// message: The error message.
// originalErr: The original error to wrap.
// isRetryable: Whether this error is retryable.
func NewDedupError(module, message string, originalErr error, isRetryable bool) *DedupError {
	buf := make([]byte, 2048)
	n := runtime.Stack(buf, false)

	return &DedupError{
		Module:      module,
		Message:     message,
		OriginalErr: originalErr,
		isRetryable: isRetryable,
		StackTrace:  string(buf[:n]),
	}
}

// NewConfigError creates a DedupError wrapping ErrConfiguration.
// Configuration errors surface before any scanning begins and are never retryable.
func NewConfigError(module, format string, a ...interface{}) *DedupError {
	return NewDedupError(module, fmt.Sprintf(format, a...), ErrConfiguration, false)
}

// NewValidationError creates a DedupError wrapping ErrValidation.
// Validation errors are isolated to the failing group and do not abort the run.
func NewValidationError(module, message string, originalErr error) *DedupError {
	if originalErr != nil {
		return NewDedupError(module, message, errors.Join(ErrValidation, originalErr), false)
	}
	return NewDedupError(module, message, ErrValidation, false)
}

// NewNotFoundError creates a DedupError wrapping ErrNotFound.
func NewNotFoundError(module, format string, a ...interface{}) *DedupError {
	return NewDedupError(module, fmt.Sprintf(format, a...), ErrNotFound, false)
}

// NewAccessDeniedError creates a DedupError wrapping ErrAccessDenied.
func NewAccessDeniedError(module, format string, a ...interface{}) *DedupError {
	return NewDedupError(module, fmt.Sprintf(format, a...), ErrAccessDenied, false)
}

// Error implements the error interface.
// It returns the error's module, message, and the string representation of the original error.
func (e *DedupError) Error() string {
	if e.OriginalErr != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Module, e.Message, e.OriginalErr)
	}
	return fmt.Sprintf("[%s] %s", e.Module, e.Message)
}

// Unwrap returns the original error for errors.Unwrap.
func (e *DedupError) Unwrap() error {
	return e.OriginalErr
}

// IsRetryable returns whether this error is retryable.
func (e *DedupError) IsRetryable() bool {
	return e.isRetryable
}

// IsNotFound determines if an error indicates a missing run result or record.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsAccessDenied determines if an error indicates a permission denial.
func IsAccessDenied(err error) bool {
	return errors.Is(err, ErrAccessDenied)
}

// IsValidationFailure determines if an error indicates a per-group validation failure.
func IsValidationFailure(err error) bool {
	return errors.Is(err, ErrValidation)
}

// IsConfigurationError determines if an error indicates an invalid run configuration.
func IsConfigurationError(err error) bool {
	return errors.Is(err, ErrConfiguration)
}

// ExtractErrorMessage extracts the error message string from an error.
// For DedupError, it returns the cleaner Message field.
// Otherwise, it returns the standard Error() string.
func ExtractErrorMessage(err error) string {
	if err == nil {
		return ""
	}
	var de *DedupError
	if errors.As(err, &de) {
		return de.Message
	}
	return err.Error()
}

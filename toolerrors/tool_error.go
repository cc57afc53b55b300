// Package toolerrors provides a structured error type for tool invocation
// failures. ToolError preserves causal chains and supports errors.Is/As while
// remaining serializable across the tool-result boundary.
package toolerrors

import (
	"errors"
	"fmt"
)

// ToolError represents a structured tool failure: a human-readable message
// plus an optional causal chain. Tool errors nest via Cause so diagnostics
// survive being carried inside a ToolResultMessage.
type ToolError struct {
	// Message is the human-readable summary of the failure.
	Message string
	// Cause links to the underlying tool error, enabling chains via Unwrap.
	Cause *ToolError
	// Transient marks an error the caller may retry without changing inputs.
	Transient bool
}

// New constructs a ToolError with the given message.
func New(message string) *ToolError {
	if message == "" {
		message = "tool error"
	}
	return &ToolError{Message: message}
}

// NewWithCause constructs a ToolError that wraps an underlying error. The
// cause is converted into a ToolError chain so it survives serialization
// while still supporting errors.Is/As through Unwrap.
func NewWithCause(message string, cause error) *ToolError {
	if message == "" && cause != nil {
		message = cause.Error()
	}
	return &ToolError{
		Message: message,
		Cause:   FromError(cause),
	}
}

// FromError converts an arbitrary error into a ToolError chain.
func FromError(err error) *ToolError {
	if err == nil {
		return nil
	}
	var te *ToolError
	if errors.As(err, &te) {
		return te
	}
	return &ToolError{
		Message: err.Error(),
		Cause:   FromError(errors.Unwrap(err)),
	}
}

// Errorf formats according to a format specifier and returns it as a ToolError.
func Errorf(format string, args ...any) *ToolError {
	return New(fmt.Sprintf(format, args...))
}

// Error implements the error interface.
func (e *ToolError) Error() string {
	if e == nil {
		return ""
	}
	return e.Message
}

// Unwrap returns the underlying tool error, supporting errors.Is/As.
func (e *ToolError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Cause
}

// AsTransient returns a copy of e marked transient, for use by callers that
// classify an error after the fact (see scheduler's ServiceError check).
func (e *ToolError) AsTransient() *ToolError {
	if e == nil {
		return nil
	}
	cp := *e
	cp.Transient = true
	return &cp
}

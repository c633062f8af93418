package engine

import (
	"errors"
	"fmt"
)

// RuntimeError is an error reported by the engine driver.
//
// The core packages fail soft (booleans, Failed evaluations); the engine
// turns those failures into RuntimeErrors carrying the name involved.
type RuntimeError struct {
	// Code identifies the error category.
	Code RuntimeErrorCode

	// Message is a human-readable description.
	Message string

	// RunID identifies the run the error occurred in.
	RunID string

	// Name is the status, expression or chunk involved, if any.
	Name string

	// Details contains additional context.
	Details map[string]string

	// Err is the underlying cause, if any.
	Err error
}

// RuntimeErrorCode categorizes runtime errors.
type RuntimeErrorCode string

const (
	ErrCodeUnknownStatus      RuntimeErrorCode = "UNKNOWN_STATUS"
	ErrCodeDuplicateStatus    RuntimeErrorCode = "DUPLICATE_STATUS"
	ErrCodeInvalidFormat      RuntimeErrorCode = "INVALID_FORMAT"
	ErrCodeUnknownExpression  RuntimeErrorCode = "UNKNOWN_EXPRESSION"
	ErrCodeInvalidExpression  RuntimeErrorCode = "INVALID_EXPRESSION"
	ErrCodeInvalidHandler     RuntimeErrorCode = "INVALID_HANDLER"
	ErrCodeDuplicateChunk     RuntimeErrorCode = "DUPLICATE_CHUNK"
	ErrCodeUnknownChunk       RuntimeErrorCode = "UNKNOWN_CHUNK"
	ErrCodeDispatchReentered  RuntimeErrorCode = "DISPATCH_REENTERED"
	ErrCodeCycleLimitExceeded RuntimeErrorCode = "CYCLE_LIMIT_EXCEEDED"
)

// Error implements the error interface.
func (e *RuntimeError) Error() string {
	msg := fmt.Sprintf("%s: %s", e.Code, e.Message)
	if e.Name != "" {
		msg += fmt.Sprintf(" (name=%s)", e.Name)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap returns the underlying cause.
func (e *RuntimeError) Unwrap() error {
	return e.Err
}

func newRuntimeError(code RuntimeErrorCode, runID, name, message string) *RuntimeError {
	return &RuntimeError{Code: code, Message: message, RunID: runID, Name: name}
}

// HasCode reports whether err wraps a RuntimeError with the given code.
func HasCode(err error, code RuntimeErrorCode) bool {
	var re *RuntimeError
	if errors.As(err, &re) {
		return re.Code == code
	}
	return false
}

// IsUnknownError reports whether err names a status, expression or chunk
// that is not loaded.
func IsUnknownError(err error) bool {
	return HasCode(err, ErrCodeUnknownStatus) ||
		HasCode(err, ErrCodeUnknownExpression) ||
		HasCode(err, ErrCodeUnknownChunk)
}

// IsCycleLimitError reports whether err is a cycle limit error.
func IsCycleLimitError(err error) bool {
	return HasCode(err, ErrCodeCycleLimitExceeded)
}

// NewCycleLimitError creates a RuntimeError for a run that did not settle
// within maxCycles.
func NewCycleLimitError(runID string, cycles, maxCycles int, pending int) *RuntimeError {
	return &RuntimeError{
		Code:    ErrCodeCycleLimitExceeded,
		Message: fmt.Sprintf("writes still pending after %d cycles (max %d)", cycles, maxCycles),
		RunID:   runID,
		Details: map[string]string{
			"cycles":     fmt.Sprintf("%d", cycles),
			"max_cycles": fmt.Sprintf("%d", maxCycles),
			"pending":    fmt.Sprintf("%d", pending),
		},
	}
}

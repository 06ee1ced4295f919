package engine

import (
	"errors"
	"fmt"
	"maps"
	"slices"
	"strings"
)

// RuntimeError represents a rejected engine operation.
//
// Runtime errors include:
//   - Not a worklet: scheduling data or a JS function on the UI runtime
//   - Not callable: scheduling something that is not a function on the JS runtime
//   - Invalid argument: a freed mutable, an unknown layout animation type
//   - Closed: the engine has been torn down
//
// Unknown handler, mapper and view ids are never errors; those operations
// are no-ops.
type RuntimeError struct {
	// Code identifies the error category.
	Code RuntimeErrorCode

	// Message is a human-readable description.
	Message string

	// Op names the engine operation that failed.
	Op string

	// Details contains additional context.
	Details map[string]string
}

// RuntimeErrorCode categorizes runtime errors.
type RuntimeErrorCode string

const (
	// ErrCodeNotAWorklet indicates a non-worklet was passed where only
	// worklets can run.
	ErrCodeNotAWorklet RuntimeErrorCode = "NOT_A_WORKLET"

	// ErrCodeNotCallable indicates a value that cannot be called.
	ErrCodeNotCallable RuntimeErrorCode = "NOT_CALLABLE"

	// ErrCodeInvalidArgument indicates a malformed or stale argument.
	ErrCodeInvalidArgument RuntimeErrorCode = "INVALID_ARGUMENT"

	// ErrCodeNoRuntime indicates the operation needs a runtime that was not configured.
	ErrCodeNoRuntime RuntimeErrorCode = "NO_RUNTIME"

	// ErrCodeClosed indicates the engine has been closed.
	ErrCodeClosed RuntimeErrorCode = "CLOSED"
)

// Error implements the error interface.
func (e *RuntimeError) Error() string {
	var b strings.Builder
	if e.Op != "" {
		b.WriteString(e.Op)
		b.WriteString(": ")
	}
	fmt.Fprintf(&b, "%s: %s", e.Code, e.Message)
	if len(e.Details) > 0 {
		parts := make([]string, 0, len(e.Details))
		for _, k := range slices.Sorted(maps.Keys(e.Details)) {
			parts = append(parts, k+"="+e.Details[k])
		}
		fmt.Fprintf(&b, " (%s)", strings.Join(parts, ", "))
	}
	return b.String()
}

// IsNotAWorkletError returns true if err rejects a non-worklet.
// Uses errors.As to handle wrapped errors.
func IsNotAWorkletError(err error) bool {
	return hasCode(err, ErrCodeNotAWorklet)
}

// IsNotCallableError returns true if err rejects a non-callable value.
func IsNotCallableError(err error) bool {
	return hasCode(err, ErrCodeNotCallable)
}

// IsInvalidArgumentError returns true if err rejects a malformed argument.
func IsInvalidArgumentError(err error) bool {
	return hasCode(err, ErrCodeInvalidArgument)
}

// IsClosedError returns true if err was returned by a closed engine.
func IsClosedError(err error) bool {
	return hasCode(err, ErrCodeClosed)
}

func hasCode(err error, code RuntimeErrorCode) bool {
	var re *RuntimeError
	if errors.As(err, &re) {
		return re.Code == code
	}
	return false
}

// NewNotAWorkletError creates a RuntimeError for a non-worklet argument.
func NewNotAWorkletError(op, kind string) *RuntimeError {
	return &RuntimeError{
		Code:    ErrCodeNotAWorklet,
		Message: "argument is not a worklet",
		Op:      op,
		Details: map[string]string{"kind": kind},
	}
}

// NewNotCallableError creates a RuntimeError for a non-callable argument.
func NewNotCallableError(op, kind string) *RuntimeError {
	return &RuntimeError{
		Code:    ErrCodeNotCallable,
		Message: "argument is not a function",
		Op:      op,
		Details: map[string]string{"kind": kind},
	}
}

// NewInvalidArgumentError creates a RuntimeError for a malformed argument.
func NewInvalidArgumentError(op, message string) *RuntimeError {
	return &RuntimeError{
		Code:    ErrCodeInvalidArgument,
		Message: message,
		Op:      op,
	}
}

// NewNoRuntimeError creates a RuntimeError for a missing runtime.
func NewNoRuntimeError(op, runtime string) *RuntimeError {
	return &RuntimeError{
		Code:    ErrCodeNoRuntime,
		Message: "no " + runtime + " runtime configured",
		Op:      op,
	}
}

// NewClosedError creates a RuntimeError for an operation on a closed engine.
func NewClosedError(op string) *RuntimeError {
	return &RuntimeError{
		Code:    ErrCodeClosed,
		Message: "engine is closed",
		Op:      op,
	}
}

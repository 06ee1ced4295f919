// Package worklet defines the callable form of a worklet: a closure that has
// already been materialized inside a runtime and can be invoked with values.
//
// This package does not parse or compile worklet source. Runtimes such as
// internal/jsrt produce Callables; the scheduler, event registry and mapper
// registry only invoke them.
package worklet

import (
	"fmt"
	"runtime/debug"

	"github.com/roach88/worklets/internal/value"
)

// Callable is a worklet bound to a runtime.
type Callable interface {
	Call(args ...value.Value) (value.Value, error)
}

// Func adapts a Go function to Callable.
type Func func(args ...value.Value) (value.Value, error)

// Call implements Callable.
func (f Func) Call(args ...value.Value) (value.Value, error) {
	return f(args...)
}

// ErrorHandler receives failures from guarded worklet invocations.
type ErrorHandler func(err error)

// PanicError wraps a panic recovered while running a worklet.
type PanicError struct {
	Value any
	Stack []byte
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("worklet panicked: %v", e.Value)
}

// Unwrap exposes the panic value when it was itself an error.
func (e *PanicError) Unwrap() error {
	if err, ok := e.Value.(error); ok {
		return err
	}
	return nil
}

// Guard invokes c and converts a panic into a *PanicError, so a failing
// worklet cannot take down the dispatch loop that called it.
func Guard(c Callable, args ...value.Value) (result value.Value, err error) {
	defer func() {
		if r := recover(); r != nil {
			result = value.Undefined{}
			err = &PanicError{Value: r, Stack: debug.Stack()}
		}
	}()

	result, err = c.Call(args...)
	if result == nil {
		result = value.Undefined{}
	}
	return result, err
}

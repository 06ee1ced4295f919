// Package mapper implements reactive recomputation over MutableValues.
//
// A Mapper re-runs a callable whenever one of its declared inputs changes and
// writes the result to its declared outputs. Inputs and outputs are fixed at
// construction; there is no dependency discovery and no topological
// ordering. Invalidation is push-based: a listener on each input sets the
// mapper's dirty flag while the input's lock is held.
package mapper

import (
	"fmt"
	"sync/atomic"

	"github.com/roach88/worklets/internal/shareable"
	"github.com/roach88/worklets/internal/value"
	"github.com/roach88/worklets/internal/worklet"
)

// Mapper is one reactive binding. Its methods are only called by the owning
// Registry on the UI thread, except Dirty which is safe anywhere.
type Mapper struct {
	id       uint64
	callable worklet.Callable
	inputs   []*shareable.MutableValue
	outputs  []*shareable.MutableValue

	dirty     atomic.Bool
	removed   atomic.Bool
	listeners []uint64 // listener id per input
}

// ID returns the mapper id.
func (m *Mapper) ID() uint64 {
	return m.id
}

// Dirty reports whether an input changed since the last execution.
func (m *Mapper) Dirty() bool {
	return m.dirty.Load()
}

// execute calls the callable with the current input values and assigns the
// result. An undefined result leaves the outputs untouched, for callables
// that write their outputs themselves. With one output the result is
// assigned as is; with several the result must be an array holding at least
// one element per output.
func (m *Mapper) execute() error {
	args := make([]value.Value, len(m.inputs))
	for i, in := range m.inputs {
		args[i] = in.Get()
	}

	result, err := worklet.Guard(m.callable, args...)
	if err != nil {
		return err
	}
	if _, ok := result.(value.Undefined); ok || len(m.outputs) == 0 {
		return nil
	}

	if len(m.outputs) == 1 {
		m.outputs[0].Set(result)
		return nil
	}

	arr, ok := result.(value.Array)
	if !ok {
		return fmt.Errorf("mapper %d: %d outputs need an array result, got %s", m.id, len(m.outputs), value.Kind(result))
	}
	if len(arr) < len(m.outputs) {
		return fmt.Errorf("mapper %d: %d outputs but result has %d elements", m.id, len(m.outputs), len(arr))
	}
	for i, out := range m.outputs {
		out.Set(arr[i])
	}
	return nil
}

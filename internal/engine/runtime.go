package engine

import (
	"fmt"

	"github.com/roach88/worklets/internal/shareable"
	"github.com/roach88/worklets/internal/worklet"
)

// HostRuntime is the runtime of an engine without a JavaScript VM. It can
// only call host functions.
type HostRuntime struct{}

// Callable implements WorkletRuntime.
func (HostRuntime) Callable(s shareable.Shareable) (worklet.Callable, error) {
	if fn, ok := s.(*shareable.HostFunction); ok {
		return fn.Fn, nil
	}
	return nil, fmt.Errorf("host runtime: cannot run %s without a script runtime", kindOf(s))
}

// forget drops s from every runtime that caches materializations.
func (e *Engine) forget(s shareable.Shareable) {
	for _, rt := range []WorkletRuntime{e.ui, e.js} {
		if f, ok := rt.(Forgetter); ok {
			f.Forget(s)
		}
	}
}

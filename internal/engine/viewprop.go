package engine

import (
	"fmt"

	"github.com/roach88/worklets/internal/shareable"
	"github.com/roach88/worklets/internal/trace"
	"github.com/roach88/worklets/internal/value"
)

// GetViewProp reads prop of the view tag on the UI thread at the next Tick
// and calls callback on the JS thread with the value as a string.
func (e *Engine) GetViewProp(tag int, prop string, callback shareable.Shareable) error {
	const op = "getViewProp"
	if e.closed.Load() {
		return NewClosedError(op)
	}
	if _, ok := jsCallableName(callback); !ok {
		return NewNotCallableError(op, kindOf(callback))
	}
	if e.obtainProp == nil {
		return &RuntimeError{Code: ErrCodeNoRuntime, Message: "no view prop obtainer configured", Op: op}
	}

	ok := e.scheduler.ScheduleOnUI(func() {
		v, err := e.obtainProp(tag, prop)
		if err != nil {
			e.report(trace.KindWorkletError, "view_prop", err)
			return
		}
		result := value.ToString(v)
		e.tracer.Record(trace.KindViewProp, fmt.Sprintf("view:%d", tag), map[string]any{"prop": prop, "value": result})
		if err := e.ScheduleOnJS(callback, value.String(result)); err != nil {
			e.logger.Debug("view prop callback dropped", "tag", tag, "prop", prop, "error", err)
		}
	})
	if !ok {
		return NewClosedError(op)
	}
	return nil
}

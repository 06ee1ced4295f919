package engine

import (
	"log/slog"

	"github.com/roach88/worklets/internal/layout"
	"github.com/roach88/worklets/internal/metrics"
	"github.com/roach88/worklets/internal/scheduler"
	"github.com/roach88/worklets/internal/trace"
	"github.com/roach88/worklets/internal/value"
	"github.com/roach88/worklets/internal/worklet"
)

// EngineOption configures an Engine.
type EngineOption func(*Engine)

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) EngineOption {
	return func(e *Engine) {
		e.logger = l
	}
}

// WithMetrics sets the metrics collector. A nil collector records nothing.
func WithMetrics(c *metrics.Collector) EngineOption {
	return func(e *Engine) {
		e.metrics = c
	}
}

// WithTracer sets where engine events are recorded.
func WithTracer(t trace.Tracer) EngineOption {
	return func(e *Engine) {
		e.tracer = t
	}
}

// WithCallInvoker sets the JS thread's call invoker. Without one, work
// scheduled onto the JS thread is dropped.
func WithCallInvoker(inv scheduler.CallInvoker) EngineOption {
	return func(e *Engine) {
		e.invoker = inv
	}
}

// WithUIRuntime sets the runtime worklets are bound to on the UI thread.
func WithUIRuntime(rt WorkletRuntime) EngineOption {
	return func(e *Engine) {
		e.ui = rt
	}
}

// WithJSRuntime sets the runtime remote functions are called in on the JS thread.
func WithJSRuntime(rt WorkletRuntime) EngineOption {
	return func(e *Engine) {
		e.js = rt
	}
}

// WithRenderRequester sets the host hook that schedules the next Tick.
func WithRenderRequester(fn func()) EngineOption {
	return func(e *Engine) {
		e.requestRender = fn
	}
}

// WithLayoutCallbacks sets the native layout animation driver's hooks.
func WithLayoutCallbacks(cb layout.Callbacks) EngineOption {
	return func(e *Engine) {
		e.layoutCallbacks = cb
	}
}

// WithPropObtainer sets how GetViewProp reads a view property.
func WithPropObtainer(fn func(tag int, prop string) (value.Value, error)) EngineOption {
	return func(e *Engine) {
		e.obtainProp = fn
	}
}

// WithErrorHandler receives every worklet failure.
func WithErrorHandler(fn worklet.ErrorHandler) EngineOption {
	return func(e *Engine) {
		e.onError = fn
	}
}

// WithID fixes the engine id instead of generating a UUIDv7.
func WithID(id string) EngineOption {
	return func(e *Engine) {
		e.id = id
	}
}

// WithIDGenerator sets how the engine id is generated.
func WithIDGenerator(gen IDGenerator) EngineOption {
	return func(e *Engine) {
		e.idGen = gen
	}
}

// WithClock sets the clock handler, mapper and mutable ids come from.
func WithClock(c *Clock) EngineOption {
	return func(e *Engine) {
		e.clock = c
	}
}

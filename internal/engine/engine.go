package engine

import (
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/roach88/worklets/internal/events"
	"github.com/roach88/worklets/internal/layout"
	"github.com/roach88/worklets/internal/mapper"
	"github.com/roach88/worklets/internal/metrics"
	"github.com/roach88/worklets/internal/scheduler"
	"github.com/roach88/worklets/internal/shareable"
	"github.com/roach88/worklets/internal/trace"
	"github.com/roach88/worklets/internal/value"
	"github.com/roach88/worklets/internal/worklet"
)

// WorkletRuntime binds shareable functions to one runtime.
// internal/jsrt's VM implements it.
type WorkletRuntime interface {
	Callable(s shareable.Shareable) (worklet.Callable, error)
}

// Forgetter is implemented by runtimes that cache materializations and
// must drop them when a shareable is freed.
type Forgetter interface {
	Forget(s shareable.Shareable)
}

// Engine is one worklet runtime context.
//
// Thread-safety: all methods are safe for concurrent use. Tick, OnEvent,
// HandleRawEvent and the layout operations are meant for the UI thread;
// the others may be called from either thread.
type Engine struct {
	id      string
	idGen   IDGenerator
	clock   *Clock
	logger  *slog.Logger
	metrics *metrics.Collector
	tracer  trace.Tracer

	scheduler *scheduler.Scheduler
	store     *shareable.Store
	events    *events.Registry
	mappers   *mapper.Registry
	layout    *layout.Proxy
	configs   *layout.Configs

	ui      WorkletRuntime
	js      WorkletRuntime
	invoker scheduler.CallInvoker

	requestRender   func()
	renderRequested atomic.Bool

	layoutCallbacks layout.Callbacks
	obtainProp      func(tag int, prop string) (value.Value, error)
	onError         worklet.ErrorHandler

	mu             sync.Mutex
	frameCallbacks []frameCallback
	mutables       map[uint64]uint64                    // mutable id -> store entry held by "js"
	pendingHolds   map[uint64][]*shareable.MutableValue // mapper id -> values held until the mapper exists
	layoutEntries  map[layoutKey]uint64                 // store entry held for each configured animation

	closed atomic.Bool
}

// New creates an Engine.
//
// Without WithUIRuntime or WithJSRuntime, the missing runtime only runs
// host functions.
func New(opts ...EngineOption) *Engine {
	e := &Engine{
		idGen:         UUIDv7Generator{},
		logger:        slog.Default(),
		tracer:        trace.Nop{},
		mutables:      make(map[uint64]uint64),
		pendingHolds:  make(map[uint64][]*shareable.MutableValue),
		layoutEntries: make(map[layoutKey]uint64),
	}
	for _, opt := range opts {
		opt(e)
	}

	if e.id == "" {
		e.id = e.idGen.Generate()
	}
	if e.clock == nil {
		e.clock = NewClock()
	}
	if e.ui == nil {
		e.ui = HostRuntime{}
	}
	if e.js == nil {
		e.js = HostRuntime{}
	}
	e.logger = e.logger.With("engine", e.id)

	e.store = shareable.NewStore(
		shareable.WithChangeHook(e.metrics.RecordStoreEntries),
		shareable.WithFreeHook(e.forget),
	)
	e.scheduler = scheduler.New(
		scheduler.WithRenderRequester(e.requestHostRender),
		scheduler.WithCallInvoker(e.invoker),
		scheduler.WithLogger(e.logger),
		scheduler.WithMetrics(e.metrics),
	)
	e.events = events.NewRegistry(
		events.WithErrorHandler(func(err error) { e.report(trace.KindHandlerError, "handler", err) }),
		events.WithLogger(e.logger),
		events.WithMetrics(e.metrics),
	)
	e.mappers = mapper.NewRegistry(
		mapper.WithFrameRequester(e.maybeRequestRender),
		mapper.WithErrorHandler(func(err error) { e.report(trace.KindMapperError, "mapper", err) }),
		mapper.WithLogger(e.logger),
		mapper.WithMetrics(e.metrics),
	)
	e.layout = layout.NewProxy(e.tracedLayoutCallbacks(),
		layout.WithLogger(e.logger),
		layout.WithMetrics(e.metrics),
	)
	e.configs = layout.NewConfigs()

	return e
}

// ID returns the engine id.
func (e *Engine) ID() string {
	return e.id
}

// Store exposes the shareable store.
func (e *Engine) Store() *shareable.Store {
	return e.store
}

// Metrics returns the metrics collector, which may be nil.
func (e *Engine) Metrics() *metrics.Collector {
	return e.metrics
}

// Closed reports whether Close has been called.
func (e *Engine) Closed() bool {
	return e.closed.Load()
}

// ScheduleOnUI queues a worklet to run on the UI thread at the next Tick.
// Only worklets and host functions are accepted. The worklet is held by the
// "ui" owner until it has run.
func (e *Engine) ScheduleOnUI(w shareable.Shareable) error {
	const op = "scheduleOnUI"
	if err := e.requireWorklet(op, w); err != nil {
		return err
	}
	entry := e.store.Put(uiOwner, w)
	ok := e.scheduler.ScheduleOnUI(func() {
		defer e.store.Release(uiOwner, entry)
		e.runOnUI(w)
	})
	if !ok {
		e.store.Release(uiOwner, entry)
		return NewClosedError(op)
	}
	return nil
}

func (e *Engine) runOnUI(w shareable.Shareable) {
	callable, err := e.ui.Callable(w)
	if err != nil {
		e.report(trace.KindWorkletError, "ui", err)
		return
	}
	if _, err := worklet.Guard(callable); err != nil {
		e.report(trace.KindWorkletError, "ui", err)
	}
}

// ScheduleOnJS queues a call of fn with args on the JS thread. Only remote
// and host functions are accepted. Without a call invoker, or once the
// engine is closed, the call is dropped silently.
func (e *Engine) ScheduleOnJS(fn shareable.Shareable, args ...value.Value) error {
	const op = "scheduleOnJS"
	name, ok := jsCallableName(fn)
	if !ok {
		return NewNotCallableError(op, kindOf(fn))
	}
	if e.closed.Load() {
		e.metrics.RecordJSJob(false)
		e.logger.Debug("js job dropped", "function", name, "reason", "engine closed")
		return nil
	}

	e.scheduler.ScheduleOnJS(func() {
		callable, err := e.js.Callable(fn)
		if err != nil {
			e.report(trace.KindWorkletError, "js", err)
			return
		}
		e.tracer.Record(trace.KindJSCall, name, map[string]any{"args": traceValue(value.Array(args))})
		if _, err := worklet.Guard(callable, args...); err != nil {
			e.report(trace.KindWorkletError, "js", err)
		}
	})
	return nil
}

// CallRemote forwards a call made in the UI runtime to a function owned by
// the JS runtime. It has the shape of jsrt.RemoteCaller.
func (e *Engine) CallRemote(fn *shareable.RemoteFunction, args []value.Value) {
	if err := e.ScheduleOnJS(fn, args...); err != nil {
		e.logger.Debug("remote call dropped", "function", fn.Name, "error", err)
	}
}

// SetCallInvoker attaches or replaces the JS call invoker. nil detaches it.
func (e *Engine) SetCallInvoker(inv scheduler.CallInvoker) {
	e.scheduler.SetCallInvoker(inv)
}

// Close tears the engine down: event handlers, frame callbacks, mappers and
// layout observations are dropped without running, the UI queue is
// discarded, and every store entry is released. Calling Close again is a
// no-op.
func (e *Engine) Close() {
	if e.closed.Swap(true) {
		return
	}

	for _, h := range e.events.Clear() {
		e.store.RemoveRefs(handlerOwner(h.ID))
	}

	e.mu.Lock()
	e.frameCallbacks = nil
	e.mutables = make(map[uint64]uint64)
	e.layoutEntries = make(map[layoutKey]uint64)
	e.mu.Unlock()

	e.mappers.Clear()
	e.layout.Clear()
	dropped := e.scheduler.Close()
	e.releaseAllPending()
	e.store.Clear()

	e.logger.Info("engine closed", "dropped_ui_jobs", dropped)
}

func (e *Engine) requireWorklet(op string, w shareable.Shareable) error {
	if e.closed.Load() {
		return NewClosedError(op)
	}
	if w == nil || !shareable.IsWorklet(w) {
		return NewNotAWorkletError(op, kindOf(w))
	}
	return nil
}

// requestHostRender asks the host for a Tick so queued UI jobs drain.
func (e *Engine) requestHostRender() {
	if e.requestRender != nil {
		e.requestRender()
	}
}

// maybeRequestRender asks for a frame that runs frame callbacks and mappers.
// Only the first request between two frames reaches the host.
func (e *Engine) maybeRequestRender() {
	if !e.renderRequested.Swap(true) {
		e.requestHostRender()
	}
}

// report routes a worklet failure to logs, metrics, trace and the error handler.
func (e *Engine) report(kind trace.Kind, source string, err error) {
	e.logger.Warn("worklet failed", "source", source, "error", err)
	e.metrics.RecordWorkletError(source)
	e.tracer.Record(kind, source, map[string]any{"error": err.Error()})
	if e.onError != nil {
		e.onError(err)
	}
}

func jsCallableName(fn shareable.Shareable) (string, bool) {
	switch f := fn.(type) {
	case *shareable.RemoteFunction:
		return f.Name, true
	case *shareable.HostFunction:
		return f.Name, true
	}
	return "", false
}

func kindOf(s shareable.Shareable) string {
	if s == nil {
		return "undefined"
	}
	return s.Kind().String()
}

func handlerOwner(id uint64) string { return fmt.Sprintf("handler:%d", id) }
func mapperOwner(id uint64) string  { return fmt.Sprintf("mapper:%d", id) }
func mutableOwner(id uint64) string { return fmt.Sprintf("mutable:%d", id) }
func layoutOwner(tag int) string    { return fmt.Sprintf("layout:%d", tag) }

// traceValue makes v safe for canonical JSON by naming opaque payloads
// instead of serializing them.
func traceValue(v value.Value) any {
	switch val := v.(type) {
	case nil:
		return nil
	case value.Opaque:
		if s, ok := val.V.(shareable.Shareable); ok {
			return "[" + s.Kind().String() + "]"
		}
		return fmt.Sprintf("[%T]", val.V)
	case value.Array:
		out := make([]any, len(val))
		for i, elem := range val {
			out[i] = traceValue(elem)
		}
		return out
	case value.Object:
		out := make(map[string]any, len(val))
		for k, elem := range val {
			if _, skip := elem.(value.Undefined); skip {
				continue
			}
			out[k] = traceValue(elem)
		}
		return out
	default:
		return val
	}
}

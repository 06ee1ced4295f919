package harness

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/roach88/worklets/internal/engine"
	"github.com/roach88/worklets/internal/jsrt"
	"github.com/roach88/worklets/internal/metrics"
	"github.com/roach88/worklets/internal/scheduler"
	"github.com/roach88/worklets/internal/shareable"
	"github.com/roach88/worklets/internal/testutil"
	"github.com/roach88/worklets/internal/trace"
	"github.com/roach88/worklets/internal/value"
)

// Option configures a scenario run.
type Option func(*options)

type options struct {
	logger          *slog.Logger
	metrics         *metrics.Collector
	idGen           engine.IDGenerator
	frameIntervalMs float64
	pace            time.Duration
}

// WithLogger sets the logger used by the engine and both runtimes.
// Defaults to discarding output.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) {
		o.logger = l
	}
}

// WithMetrics attaches a metrics collector to the engine.
func WithMetrics(c *metrics.Collector) Option {
	return func(o *options) {
		o.metrics = c
	}
}

// WithIDGenerator overrides the engine id. By default the id is fixed per
// scenario so traces are reproducible.
func WithIDGenerator(gen engine.IDGenerator) Option {
	return func(o *options) {
		o.idGen = gen
	}
}

// WithFrameInterval sets the frame clock step for scenarios that do not
// set frame_interval_ms.
func WithFrameInterval(ms float64) Option {
	return func(o *options) {
		o.frameIntervalMs = ms
	}
}

// WithPacing spaces frame steps at least d apart in wall-clock time.
// Frame timestamps still come from the scenario clock, so the trace is the
// same as an unpaced run.
func WithPacing(d time.Duration) Option {
	return func(o *options) {
		o.pace = d
	}
}

// runner holds the state of one scenario execution.
type runner struct {
	scenario *Scenario
	engine   *engine.Engine
	js       *jsrt.VM
	ui       *jsrt.VM
	loop     *scheduler.Loop
	clock    *testutil.FrameClock
	recorder *trace.Recorder
	result   *Result

	mutables map[string]*shareable.MutableValue
	worklets map[string]*shareable.Worklet
	handlers map[string]uint64
	mappers  map[string]uint64

	pacer     *scheduler.Driver
	paced     chan struct{}
	stopPacer func()
}

// Run executes a scenario on a fresh engine and returns the result.
//
// Execution flow:
// 1. Create the engine, the JS and UI runtimes and the JS call loop
// 2. Evaluate the setup script in the JS runtime
// 3. Execute the steps in order
// 4. Snapshot the trace and named values, then evaluate assertions
//
// A step that fails unexpectedly aborts the run with an error. Failed
// expectations are collected in the result instead.
func Run(scenario *Scenario, opts ...Option) (*Result, error) {
	o := options{
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(&o)
	}
	if o.idGen == nil {
		id := scenario.EngineID
		if id == "" {
			id = "harness-" + scenario.Name
		}
		o.idGen = testutil.NewStaticIDGenerator(id)
	}
	interval := scenario.FrameIntervalMs
	if interval == 0 {
		interval = o.frameIntervalMs
	}

	r := &runner{
		scenario: scenario,
		loop:     scheduler.NewLoop(scheduler.WithLoopLogger(o.logger)),
		clock:    testutil.NewFrameClock(interval),
		recorder: trace.NewRecorder(),
		result:   NewResult(),
		mutables: make(map[string]*shareable.MutableValue),
		worklets: make(map[string]*shareable.Worklet),
		handlers: make(map[string]uint64),
		mappers:  make(map[string]uint64),
	}
	r.js = jsrt.New("js", jsrt.WithLogger(o.logger))
	r.ui = jsrt.New("ui", jsrt.WithLogger(o.logger), jsrt.WithRemoteCaller(r.callRemote))

	engineOpts := []engine.EngineOption{
		engine.WithIDGenerator(o.idGen),
		engine.WithLogger(o.logger),
		engine.WithTracer(r.recorder),
		engine.WithUIRuntime(r.ui),
		engine.WithJSRuntime(r.js),
		engine.WithCallInvoker(r.loop),
		engine.WithPropObtainer(r.obtainProp),
	}
	if o.metrics != nil {
		engineOpts = append(engineOpts, engine.WithMetrics(o.metrics))
	}
	r.engine = engine.New(engineOpts...)
	if o.pace > 0 {
		r.startPacer(o.pace, o.logger)
	}
	defer r.close()
	r.result.EngineID = r.engine.ID()

	if scenario.Setup != "" {
		if _, err := r.js.Run(scenario.Setup); err != nil {
			return nil, fmt.Errorf("failed to execute setup: %w", err)
		}
	}

	for i, step := range scenario.Steps {
		if err := r.execute(i, step); err != nil {
			return nil, fmt.Errorf("steps[%d] (%s): %w", i, step.Op, err)
		}
	}

	r.result.Trace = r.recorder.Events()
	for name, mv := range r.mutables {
		r.result.Values[name] = mv.Get()
	}

	for _, msg := range EvaluateAssertions(r.result, scenario.Assertions) {
		r.result.AddError(msg)
	}
	return r.result, nil
}

// execute applies one step, checking expect_error when present.
func (r *runner) execute(index int, step Step) error {
	err := r.apply(step)
	if step.ExpectError == "" {
		return err
	}

	var rtErr *engine.RuntimeError
	switch {
	case err == nil:
		r.result.AddError(fmt.Sprintf("steps[%d] (%s): expected error %s, got success", index, step.Op, step.ExpectError))
	case !errors.As(err, &rtErr):
		r.result.AddError(fmt.Sprintf("steps[%d] (%s): expected error %s, got %v", index, step.Op, step.ExpectError, err))
	case rtErr.Code != step.ExpectError:
		r.result.AddError(fmt.Sprintf("steps[%d] (%s): expected error %s, got %s", index, step.Op, step.ExpectError, rtErr.Code))
	}
	return nil
}

func (r *runner) callRemote(fn *shareable.RemoteFunction, args []value.Value) {
	r.engine.CallRemote(fn, args)
}

func (r *runner) obtainProp(tag int, prop string) (value.Value, error) {
	props, ok := r.scenario.Views[tag]
	if !ok {
		return nil, fmt.Errorf("view %d not found", tag)
	}
	v, ok := props[prop]
	if !ok {
		return nil, fmt.Errorf("view %d has no prop %q", tag, prop)
	}
	return value.FromGo(v)
}

// startPacer runs a frame driver whose ticks release frame steps.
func (r *runner) startPacer(interval time.Duration, logger *slog.Logger) {
	ctx, cancel := context.WithCancel(context.Background())
	r.paced = make(chan struct{})
	r.pacer = scheduler.NewDriver(func(float64) {
		select {
		case r.paced <- struct{}{}:
		case <-ctx.Done():
		}
	}, scheduler.WithFrameInterval(interval), scheduler.WithDriverLogger(logger))

	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = r.pacer.Run(ctx)
	}()
	r.stopPacer = func() {
		cancel()
		<-done
	}
}

// awaitFrame blocks until the pacer lets the next frame through.
func (r *runner) awaitFrame() {
	if r.pacer == nil {
		return
	}
	r.pacer.Request()
	<-r.paced
}

func (r *runner) close() {
	if r.stopPacer != nil {
		r.stopPacer()
	}
	r.engine.Close()
	r.loop.Close()
}

package mapper

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/roach88/worklets/internal/metrics"
	"github.com/roach88/worklets/internal/shareable"
	"github.com/roach88/worklets/internal/value"
	"github.com/roach88/worklets/internal/worklet"
)

// ExecutionError reports a failed mapper execution.
type ExecutionError struct {
	MapperID uint64
	Err      error
}

func (e *ExecutionError) Error() string {
	return fmt.Sprintf("mapper %d: %v", e.MapperID, e.Err)
}

func (e *ExecutionError) Unwrap() error {
	return e.Err
}

// Registry owns every live Mapper and runs the dirty ones once per frame.
//
// Thread-safety: Add, Remove and RunDirty are meant for the UI thread but
// are safe for concurrent use. Input listeners may fire on any thread.
type Registry struct {
	mu      sync.Mutex
	mappers map[uint64]*Mapper
	order   []*Mapper // creation order

	requestFrame func()
	onError      worklet.ErrorHandler
	logger       *slog.Logger
	metrics      *metrics.Collector
}

// Option configures a Registry.
type Option func(*Registry)

// WithFrameRequester sets the function called when an input change dirties a
// mapper. It runs under the input's lock and must not block.
func WithFrameRequester(fn func()) Option {
	return func(r *Registry) {
		r.requestFrame = fn
	}
}

// WithErrorHandler sets where failed executions are reported.
func WithErrorHandler(fn worklet.ErrorHandler) Option {
	return func(r *Registry) {
		r.onError = fn
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(r *Registry) {
		r.logger = l
	}
}

// WithMetrics sets the metrics collector.
func WithMetrics(c *metrics.Collector) Option {
	return func(r *Registry) {
		r.metrics = c
	}
}

// NewRegistry creates an empty Registry.
func NewRegistry(opts ...Option) *Registry {
	r := &Registry{
		mappers: make(map[uint64]*Mapper),
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Add creates a mapper and retains its inputs and outputs until it is
// removed. A new mapper starts dirty so its outputs are computed on the next
// pass. Fails if any input or output has already been freed.
func (r *Registry) Add(id uint64, callable worklet.Callable, inputs, outputs []*shareable.MutableValue) (*Mapper, error) {
	m := &Mapper{
		id:       id,
		callable: callable,
		inputs:   append([]*shareable.MutableValue(nil), inputs...),
		outputs:  append([]*shareable.MutableValue(nil), outputs...),
	}

	var retained []*shareable.MutableValue
	for _, mv := range append(append([]*shareable.MutableValue(nil), m.inputs...), m.outputs...) {
		if !mv.Retain() {
			for _, held := range retained {
				held.Release()
			}
			return nil, fmt.Errorf("mapper %d: mutable %d already freed", id, mv.ID())
		}
		retained = append(retained, mv)
	}

	m.dirty.Store(true)
	m.listeners = make([]uint64, len(m.inputs))
	for i, in := range m.inputs {
		m.listeners[i] = in.AddListener(func(value.Value) {
			m.dirty.Store(true)
			if r.requestFrame != nil {
				r.requestFrame()
			}
		})
	}

	r.mu.Lock()
	old, replaced := r.mappers[id]
	if replaced {
		r.removeLocked(old)
	}
	r.mappers[id] = m
	r.order = append(r.order, m)
	n := len(r.mappers)
	r.mu.Unlock()

	if replaced {
		old.detach()
	}

	r.metrics.RecordMappers(n)
	r.logger.Debug("mapper added", "mapper_id", id, "inputs", len(inputs), "outputs", len(outputs))
	return m, nil
}

// Remove stops the mapper with id, detaching its listeners and releasing its
// inputs and outputs. Unknown ids are a no-op.
func (r *Registry) Remove(id uint64) bool {
	r.mu.Lock()
	m, ok := r.mappers[id]
	if ok {
		r.removeLocked(m)
	}
	n := len(r.mappers)
	r.mu.Unlock()

	if !ok {
		return false
	}
	m.detach()
	r.metrics.RecordMappers(n)
	r.logger.Debug("mapper removed", "mapper_id", id)
	return true
}

// removeLocked unindexes m. Caller holds r.mu and detaches m after unlocking.
func (r *Registry) removeLocked(m *Mapper) {
	delete(r.mappers, m.id)
	for i, candidate := range r.order {
		if candidate == m {
			r.order = append(r.order[:i:i], r.order[i+1:]...)
			break
		}
	}
}

// detach removes the input listeners and releases inputs and outputs. Only
// the first call has an effect.
func (m *Mapper) detach() {
	if !m.removed.CompareAndSwap(false, true) {
		return
	}
	for i, in := range m.inputs {
		in.RemoveListener(m.listeners[i])
	}
	for _, mv := range m.inputs {
		mv.Release()
	}
	for _, mv := range m.outputs {
		mv.Release()
	}
}

// RunDirty makes one pass over the mappers in creation order and executes
// each dirty one exactly once, clearing its flag just before the execution.
// A mapper dirtied by an earlier mapper in the same pass runs in this pass;
// one dirtied by a later mapper waits for the next pass.
//
// Returns the number of executions and whether any mapper is still dirty.
func (r *Registry) RunDirty() (executed int, pending bool) {
	r.mu.Lock()
	snapshot := append([]*Mapper(nil), r.order...)
	r.mu.Unlock()

	for _, m := range snapshot {
		if m.removed.Load() {
			continue
		}
		if !m.dirty.CompareAndSwap(true, false) {
			continue
		}
		executed++
		r.metrics.RecordMapperExecution()
		if err := m.execute(); err != nil {
			r.report(&ExecutionError{MapperID: m.id, Err: err})
		}
	}

	return executed, r.HasDirty()
}

// HasDirty reports whether any live mapper is waiting to run.
func (r *Registry) HasDirty() bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, m := range r.order {
		if m.dirty.Load() {
			return true
		}
	}
	return false
}

func (r *Registry) report(err error) {
	r.logger.Warn("mapper execution failed", "error", err)
	if r.onError != nil {
		r.onError(err)
	}
}

// Len returns the number of live mappers.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.mappers)
}

// Clear removes every mapper in creation order.
func (r *Registry) Clear() int {
	r.mu.Lock()
	order := r.order
	r.order = nil
	r.mappers = make(map[uint64]*Mapper)
	r.mu.Unlock()

	for _, m := range order {
		m.detach()
	}
	r.metrics.RecordMappers(0)
	return len(order)
}

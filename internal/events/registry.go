package events

import (
	"cmp"
	"fmt"
	"log/slog"
	"slices"
	"sync"

	"github.com/roach88/worklets/internal/metrics"
	"github.com/roach88/worklets/internal/value"
	"github.com/roach88/worklets/internal/worklet"
)

// AnyEmitter binds a handler to every view that emits its event name.
const AnyEmitter = -1

// Handler is a worklet registered for one event name.
type Handler struct {
	ID         uint64
	EventName  string
	EmitterTag int // AnyEmitter, or the view tag the handler is bound to
	Callable   worklet.Callable
}

func (h *Handler) matches(emitterTag int) bool {
	return h.EmitterTag == AnyEmitter || emitterTag == AnyEmitter || h.EmitterTag == emitterTag
}

// HandlerError reports a failed handler invocation during dispatch.
type HandlerError struct {
	HandlerID uint64
	EventName string
	Err       error
}

func (e *HandlerError) Error() string {
	return fmt.Sprintf("event handler %d for %q: %v", e.HandlerID, e.EventName, e.Err)
}

func (e *HandlerError) Unwrap() error {
	return e.Err
}

type emitterKey struct {
	name string
	tag  int
}

// Registry maps event names to handlers.
//
// Thread-safety: all methods are safe for concurrent use. Handlers run
// without the registry lock held, so they may register or unregister
// handlers, including themselves.
type Registry struct {
	mu        sync.Mutex
	byName    map[string][]*Handler
	byID      map[uint64]*Handler
	byEmitter map[emitterKey]int // handler count per (name, tag)

	onError worklet.ErrorHandler
	logger  *slog.Logger
	metrics *metrics.Collector
}

// Option configures a Registry.
type Option func(*Registry)

// WithErrorHandler sets where failed handler invocations are reported.
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
		byName:    make(map[string][]*Handler),
		byID:      make(map[uint64]*Handler),
		byEmitter: make(map[emitterKey]int),
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Register adds h to both indexes. Registering an id that is already present
// replaces the earlier handler.
func (r *Registry) Register(h *Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.byID[h.ID]; exists {
		r.removeLocked(h.ID)
	}
	r.byID[h.ID] = h
	r.byName[h.EventName] = append(r.byName[h.EventName], h)
	r.byEmitter[emitterKey{h.EventName, h.EmitterTag}]++
}

// Unregister removes the handler with id from both indexes and returns it.
// Unknown ids are a no-op and return nil.
func (r *Registry) Unregister(id uint64) *Handler {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.removeLocked(id)
}

func (r *Registry) removeLocked(id uint64) *Handler {
	h, ok := r.byID[id]
	if !ok {
		return nil
	}
	delete(r.byID, id)

	list := r.byName[h.EventName]
	for i, candidate := range list {
		if candidate == h {
			// Copy so snapshots taken by in-flight dispatches stay intact.
			next := make([]*Handler, 0, len(list)-1)
			next = append(next, list[:i]...)
			next = append(next, list[i+1:]...)
			list = next
			break
		}
	}
	if len(list) == 0 {
		delete(r.byName, h.EventName)
	} else {
		r.byName[h.EventName] = list
	}

	key := emitterKey{h.EventName, h.EmitterTag}
	if r.byEmitter[key] <= 1 {
		delete(r.byEmitter, key)
	} else {
		r.byEmitter[key]--
	}
	return h
}

// Process invokes every handler registered for eventName with
// (payload, timestamp), in registration order. Returns the number of
// handlers invoked.
func (r *Registry) Process(eventName string, timestamp float64, payload value.Value) int {
	return r.ProcessFrom(eventName, AnyEmitter, timestamp, payload)
}

// ProcessFrom is Process for an event emitted by the view emitterTag. Handlers
// bound to a different view are skipped.
//
// Object payloads carry the event name in their eventName field.
func (r *Registry) ProcessFrom(eventName string, emitterTag int, timestamp float64, payload value.Value) int {
	r.mu.Lock()
	handlers := r.byName[eventName]
	r.mu.Unlock()

	if len(handlers) == 0 {
		r.metrics.RecordEvent(false)
		return 0
	}

	if obj, ok := payload.(value.Object); ok {
		tagged := make(value.Object, len(obj)+1)
		for k, v := range obj {
			tagged[k] = v
		}
		tagged["eventName"] = value.String(eventName)
		payload = tagged
	}
	if payload == nil {
		payload = value.Undefined{}
	}

	invoked := 0
	for _, h := range handlers {
		if !h.matches(emitterTag) {
			continue
		}
		if !r.isRegistered(h) {
			// Unregistered by an earlier handler in this dispatch.
			continue
		}
		_, err := worklet.Guard(h.Callable, payload, value.Number(timestamp))
		r.metrics.RecordHandlerInvocation(err)
		invoked++
		if err != nil {
			r.report(&HandlerError{HandlerID: h.ID, EventName: eventName, Err: err})
		}
	}

	r.metrics.RecordEvent(invoked > 0)
	return invoked
}

func (r *Registry) isRegistered(h *Handler) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.byID[h.ID] == h
}

func (r *Registry) report(err error) {
	r.logger.Warn("event handler failed", "error", err)
	if r.onError != nil {
		r.onError(err)
	}
}

// IsAnyHandlerWaitingForEvent reports whether at least one handler is
// registered for eventName.
func (r *Registry) IsAnyHandlerWaitingForEvent(eventName string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.byName[eventName]) > 0
}

// IsAnyHandlerWaitingForEventFrom reports whether a handler would receive
// eventName emitted by the view emitterTag.
func (r *Registry) IsAnyHandlerWaitingForEventFrom(eventName string, emitterTag int) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if emitterTag == AnyEmitter {
		return len(r.byName[eventName]) > 0
	}
	return r.byEmitter[emitterKey{eventName, AnyEmitter}] > 0 ||
		r.byEmitter[emitterKey{eventName, emitterTag}] > 0
}

// Len returns the number of registered handlers.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.byID)
}

// Clear unregisters every handler and returns them in id order.
func (r *Registry) Clear() []*Handler {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]*Handler, 0, len(r.byID))
	for _, h := range r.byID {
		out = append(out, h)
	}
	slices.SortFunc(out, func(a, b *Handler) int { return cmp.Compare(a.ID, b.ID) })

	r.byName = make(map[string][]*Handler)
	r.byID = make(map[uint64]*Handler)
	r.byEmitter = make(map[emitterKey]int)
	return out
}

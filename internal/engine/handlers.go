package engine

import (
	"errors"

	"github.com/roach88/worklets/internal/events"
	"github.com/roach88/worklets/internal/shareable"
	"github.com/roach88/worklets/internal/trace"
	"github.com/roach88/worklets/internal/value"
)

// RegisterEventHandler registers a worklet for eventName emitted by
// emitterTag (events.AnyEmitter for every view). The id is allocated
// immediately; the handler is bound and registered on the UI thread at the
// next Tick, so events processed before then do not reach it.
func (e *Engine) RegisterEventHandler(eventName string, emitterTag int, handler shareable.Shareable) (uint64, error) {
	const op = "registerEventHandler"
	if err := e.requireWorklet(op, handler); err != nil {
		return 0, err
	}
	if eventName == "" {
		return 0, NewInvalidArgumentError(op, "event name is empty")
	}

	id := e.clock.Next()
	ok := e.scheduler.ScheduleOnUI(func() {
		callable, err := e.ui.Callable(handler)
		if err != nil {
			e.report(trace.KindHandlerError, "handler", err)
			return
		}
		e.store.Put(handlerOwner(id), handler)
		e.events.Register(&events.Handler{
			ID:         id,
			EventName:  eventName,
			EmitterTag: emitterTag,
			Callable:   callable,
		})
		e.tracer.Record(trace.KindHandlerRegister, handlerOwner(id), map[string]any{
			"event":   eventName,
			"emitter": emitterTag,
		})
	})
	if !ok {
		return 0, NewClosedError(op)
	}
	return id, nil
}

// UnregisterEventHandler removes a handler on the UI thread at the next
// Tick. Unknown ids, and ids already unregistered, are a no-op.
func (e *Engine) UnregisterEventHandler(id uint64) {
	e.scheduler.ScheduleOnUI(func() {
		if h := e.events.Unregister(id); h != nil {
			e.tracer.Record(trace.KindHandlerUnregister, handlerOwner(id), map[string]any{"event": h.EventName})
		}
		e.store.RemoveRefs(handlerOwner(id))
	})
}

// OnEvent dispatches an event to every handler registered for eventName.
// Must be called on the UI thread. Returns the number of handlers invoked.
func (e *Engine) OnEvent(eventName string, timestamp float64, payload value.Value) int {
	return e.dispatch(eventName, events.AnyEmitter, timestamp, payload)
}

// HandleRawEvent dispatches a native event envelope. Envelopes without a
// target are ignored. The payload is only decoded when a handler is waiting
// for the event; timestamp is used when the envelope carries none.
func (e *Engine) HandleRawEvent(raw []byte, timestamp float64) (int, error) {
	ev, err := events.ParseRaw(raw)
	if errors.Is(err, events.ErrNoTarget) {
		return 0, nil
	}
	if err != nil {
		return 0, NewInvalidArgumentError("handleRawEvent", err.Error())
	}

	name := ev.Name()
	if !e.events.IsAnyHandlerWaitingForEventFrom(name, ev.Target) {
		e.metrics.RecordEvent(false)
		return 0, nil
	}

	payload, err := ev.Payload()
	if err != nil {
		return 0, NewInvalidArgumentError("handleRawEvent", err.Error())
	}
	if ev.HasTimestamp {
		timestamp = ev.Timestamp
	}
	return e.dispatch(name, ev.Target, timestamp, payload), nil
}

func (e *Engine) dispatch(eventName string, emitterTag int, timestamp float64, payload value.Value) int {
	if e.closed.Load() {
		return 0
	}
	if e.events.IsAnyHandlerWaitingForEventFrom(eventName, emitterTag) {
		e.tracer.Record(trace.KindEvent, eventName, map[string]any{
			"emitter":   emitterTag,
			"timestamp": timestamp,
			"payload":   traceValue(payload),
		})
	}
	return e.events.ProcessFrom(eventName, emitterTag, timestamp, payload)
}

// IsAnyHandlerWaitingForEvent reports whether a handler would receive
// eventName emitted by emitterTag.
func (e *Engine) IsAnyHandlerWaitingForEvent(eventName string, emitterTag int) bool {
	return e.events.IsAnyHandlerWaitingForEventFrom(eventName, emitterTag)
}

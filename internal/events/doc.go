// Package events routes native UI events to registered worklet handlers.
//
// Handlers are indexed by event name and by id. A handler may be bound to one
// emitter view tag or listen to every emitter (AnyEmitter). Dispatch runs
// handlers in registration order and isolates failures: an error or panic in
// one handler is reported and the remaining handlers still run.
//
// Raw native events arrive as JSON envelopes; see ParseRaw.
package events

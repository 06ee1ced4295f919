// Package engine implements the worklet runtime context.
//
// An Engine owns everything one embedding runtime needs: the UI scheduler,
// the shareable store, the event handler registry, the mapper registry, the
// layout animation proxy and the per-frame callback list. Nothing is
// process-wide; two engines in one process never see each other's state.
//
// ARCHITECTURE:
//
// Two Threads:
// The JS thread authors worklets and calls into the engine. The UI thread
// runs worklets. Both are goroutines chosen by the embedder. Operations that
// touch UI-confined state (registering handlers, starting mappers, reading
// view props) are not applied directly; they are scheduled onto the UI queue
// and take effect on the next Tick. JS-side callbacks travel the other way
// through the call invoker.
//
// Frame Processing:
// 1. Tick drains the UI queue (registrations, scheduled worklets)
// 2. If a render was requested, frame callbacks run with the timestamp
// 3. One mapper pass executes dirty mappers in creation order
// 4. Work still pending requests the next frame
//
// Ownership:
// Shareables held by the engine are tracked in the store under an owner
// name: "js" for values handed out to the JS side, "handler:<id>",
// "mapper:<id>" and "layout:<tag>" for values captured by those, and
// "mutable:<id>" for values a mutable holds. Removing the subscriber
// removes its references; an entry is freed when its last owner lets go.
//
// Errors from worklets never propagate to the caller. They are logged,
// counted, traced and passed to the error handler, and the rest of the
// frame continues.
package engine

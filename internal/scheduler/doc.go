// Package scheduler moves work between the two execution contexts.
//
// The UI side is a mutex-guarded FIFO drained once per frame by TriggerUI on
// the UI thread. The JS side is an asynchronous call invoker; Loop is the
// in-process implementation, a single goroutine consuming an unbounded queue.
// Driver paces frames and is the only caller of the drain.
//
// Neither side blocks the caller: cross-thread communication is by queuing.
package scheduler

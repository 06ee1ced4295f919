// Package jsrt hosts JavaScript runtimes for the two execution contexts.
//
// A VM wraps one goja runtime and is confined to the goroutine acting as its
// thread: the JS loop for the JS runtime, the frame driver for the UI runtime.
// Only Forget may be called from elsewhere.
//
// Values cross between VMs as Shareables. MakeShareableClone captures a
// JavaScript value on the authoring VM:
//
//   - functions carrying __workletHash become worklets (hash, source, closure)
//   - objects with an __init function become lazily initialized handles
//   - other functions stay in their origin VM as remote functions
//   - arrays and plain objects are copied, optionally retained per runtime
//   - wrapped Go values become host objects
//   - strings, numbers, booleans, null and undefined are copied
//   - symbols are captured as their description
//
// Materialize rebuilds a Shareable inside a VM. Worklets are re-evaluated from
// source with their closure in scope; mutable values and data holders appear
// as objects with a live value property.
package jsrt

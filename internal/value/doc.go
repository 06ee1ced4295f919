// Package value provides the tagged value model shared by both runtimes.
//
// Values are what crosses the boundary between the JS thread and the UI
// thread: event payloads, mutable value contents, mapper inputs and outputs.
// The model mirrors JavaScript's primitive set (undefined, null, boolean,
// number, string) plus arrays, plain objects and an Opaque escape hatch for
// host-owned data that is passed by identity.
//
// This package imports nothing internal. Every other internal package may
// import it.
package value

// Package shareable holds values that may be referenced from both the JS
// thread and the UI thread.
//
// A Shareable is captured on the authoring thread (see internal/jsrt for the
// classification of JavaScript values) and later rebuilt inside the other
// runtime. Data kinds are immutable copies; Handle and Retaining convert on
// first access per runtime and cache the result; MutableValue and
// SynchronizedDataHolder are the two kinds with shared mutable state.
//
// The Store tracks Shareables on behalf of named owners. It is owned by one
// engine instance, never by the process. All Store mutations hold a single
// recursive mutex, because release hooks run with the lock held and may call
// back into the Store.
package shareable

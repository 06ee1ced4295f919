package shareable

import (
	"fmt"
	"sync"

	"github.com/roach88/worklets/internal/value"
	"github.com/roach88/worklets/internal/worklet"
)

// Kind identifies the concrete Shareable type.
type Kind int

const (
	KindScalar Kind = iota + 1
	KindString
	KindArray
	KindObject
	KindWorklet
	KindRemoteFunction
	KindHostFunction
	KindHostObject
	KindHandle
	KindRetaining
	KindSynchronizedDataHolder
	KindMutable
)

var kindNames = map[Kind]string{
	KindScalar:                 "scalar",
	KindString:                 "string",
	KindArray:                  "array",
	KindObject:                 "object",
	KindWorklet:                "worklet",
	KindRemoteFunction:         "remote_function",
	KindHostFunction:           "host_function",
	KindHostObject:             "host_object",
	KindHandle:                 "handle",
	KindRetaining:              "retaining",
	KindSynchronizedDataHolder: "synchronized_data_holder",
	KindMutable:                "mutable",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// Shareable is a value captured in one runtime that can be rebuilt in another.
type Shareable interface {
	Kind() Kind
}

// Releaser is implemented by Shareables that hold a reference count.
// The Store calls Release when its last owner lets go of the entry.
type Releaser interface {
	Release()
}

// Scalar holds undefined, null, a boolean or a number.
type Scalar struct {
	V value.Value
}

func (Scalar) Kind() Kind { return KindScalar }

// String holds a string. Symbols are captured as their description.
type String string

func (String) Kind() Kind { return KindString }

// Array is an immutable copy of an array.
type Array struct {
	Items []Shareable
}

func (Array) Kind() Kind { return KindArray }

// Object is an immutable copy of a plain object.
type Object struct {
	Fields map[string]Shareable
}

func (Object) Kind() Kind { return KindObject }

// Worklet is a function authored for the UI runtime: its source, the hash the
// authoring layer assigned to it, and the values it closes over.
type Worklet struct {
	Hash    string
	Source  string
	Closure Object

	memo
}

func (*Worklet) Kind() Kind { return KindWorklet }

// RemoteFunction is a function that lives in its origin runtime. Calling it
// from another runtime means scheduling the call back onto the origin.
type RemoteFunction struct {
	Origin any // identity of the runtime that owns Fn
	Fn     any
	Name   string
}

func (*RemoteFunction) Kind() Kind { return KindRemoteFunction }

// HostFunction is a Go function callable from any runtime.
type HostFunction struct {
	Name string
	Fn   worklet.Callable
}

func (*HostFunction) Kind() Kind { return KindHostFunction }

// HostObject wraps host data passed by identity.
type HostObject struct {
	V any
}

func (*HostObject) Kind() Kind { return KindHostObject }

// Handle is an object with a lazy initializer. The initializer runs in each
// runtime on first access and the result is cached for that runtime.
type Handle struct {
	Init *Worklet

	memo
}

func (*Handle) Kind() Kind { return KindHandle }

// Retaining wraps an array or object whose materialization is kept alive per
// runtime, so repeated reads observe the same instance.
type Retaining struct {
	Inner Shareable

	memo
}

func (*Retaining) Kind() Kind { return KindRetaining }

// IsWorklet reports whether s can be scheduled on the UI runtime.
func IsWorklet(s Shareable) bool {
	switch s.(type) {
	case *Worklet, *HostFunction:
		return true
	}
	return false
}

// IsCallable reports whether s can be invoked as a function somewhere.
func IsCallable(s Shareable) bool {
	switch s.(type) {
	case *Worklet, *HostFunction, *RemoteFunction:
		return true
	}
	return false
}

// memo caches one materialization per runtime.
type memo struct {
	mu        sync.Mutex
	byRuntime map[any]any
}

// Resolve returns the cached materialization for rt, building it on first use.
// A failed build is not cached.
func (m *memo) Resolve(rt any, build func() (any, error)) (any, error) {
	m.mu.Lock()
	if v, ok := m.byRuntime[rt]; ok {
		m.mu.Unlock()
		return v, nil
	}
	m.mu.Unlock()

	// Build outside the lock: initializers may capture other handles.
	v, err := build()
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if existing, ok := m.byRuntime[rt]; ok {
		return existing, nil
	}
	if m.byRuntime == nil {
		m.byRuntime = make(map[any]any)
	}
	m.byRuntime[rt] = v
	return v, nil
}

// Forget drops the materialization cached for rt, used when a runtime is torn down.
func (m *memo) Forget(rt any) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.byRuntime, rt)
}

// FromValue captures a plain value. Opaque values that wrap a Shareable are
// unwrapped; other Opaque payloads become HostObjects.
func FromValue(v value.Value) Shareable {
	switch val := v.(type) {
	case nil:
		return Scalar{V: value.Undefined{}}
	case value.Undefined, value.Null, value.Bool, value.Number:
		return Scalar{V: val}
	case value.String:
		return String(val)
	case value.Array:
		items := make([]Shareable, len(val))
		for i, elem := range val {
			items[i] = FromValue(elem)
		}
		return Array{Items: items}
	case value.Object:
		fields := make(map[string]Shareable, len(val))
		for k, elem := range val {
			fields[k] = FromValue(elem)
		}
		return Object{Fields: fields}
	case value.Opaque:
		if s, ok := val.V.(Shareable); ok {
			return s
		}
		return &HostObject{V: val.V}
	default:
		return &HostObject{V: v}
	}
}

// ToValue rebuilds a plain value. Kinds with identity (functions, handles,
// mutables, holders) are returned as Opaque wrappers around themselves so
// they survive a round trip through FromValue.
func ToValue(s Shareable) value.Value {
	switch val := s.(type) {
	case nil:
		return value.Undefined{}
	case Scalar:
		if val.V == nil {
			return value.Undefined{}
		}
		return val.V
	case String:
		return value.String(val)
	case Array:
		out := make(value.Array, len(val.Items))
		for i, item := range val.Items {
			out[i] = ToValue(item)
		}
		return out
	case Object:
		out := make(value.Object, len(val.Fields))
		for k, field := range val.Fields {
			out[k] = ToValue(field)
		}
		return out
	case *Retaining:
		return ToValue(val.Inner)
	case *HostObject:
		return value.Opaque{V: val}
	default:
		return value.Opaque{V: s}
	}
}

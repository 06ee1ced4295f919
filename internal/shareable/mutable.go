package shareable

import (
	"sync"
	"sync/atomic"

	"github.com/roach88/worklets/internal/value"
)

// Listener observes writes to a MutableValue. Listeners run while the value's
// lock is held and receive the new value; they must not call Get or Set on
// the same MutableValue.
type Listener func(v value.Value)

type listenerEntry struct {
	id uint64
	fn Listener
}

// MutableValue is a reference counted cell visible from both threads.
//
// Reads and writes are serialized by the value's own mutex. The count starts
// at one for the creator; the value is freed when the count drops to zero,
// at which point onFree runs exactly once and all listeners are dropped.
type MutableValue struct {
	id uint64

	mu           sync.Mutex
	v            value.Value
	listeners    []listenerEntry
	nextListener uint64

	refs   atomic.Int64
	freed  atomic.Bool
	onFree func(*MutableValue)
}

// NewMutable creates a MutableValue holding initial with a reference count of one.
// onFree may be nil.
func NewMutable(id uint64, initial value.Value, onFree func(*MutableValue)) *MutableValue {
	if initial == nil {
		initial = value.Undefined{}
	}
	m := &MutableValue{
		id:     id,
		v:      initial,
		onFree: onFree,
	}
	m.refs.Store(1)
	return m
}

func (*MutableValue) Kind() Kind { return KindMutable }

// ID returns the identifier assigned at creation.
func (m *MutableValue) ID() uint64 {
	return m.id
}

// Get returns the current value.
func (m *MutableValue) Get() value.Value {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.v
}

// Set stores v and notifies listeners under the value lock. Writing a value
// equal to the current one is not a change: nothing is stored or notified.
// Returns true if the value changed.
func (m *MutableValue) Set(v value.Value) bool {
	if v == nil {
		v = value.Undefined{}
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if value.Equal(m.v, v) {
		return false
	}
	m.v = v

	for _, l := range m.listeners {
		l.fn(v)
	}
	return true
}

// Update applies fn to the current value atomically with respect to other
// writers, then behaves like Set.
func (m *MutableValue) Update(fn func(old value.Value) value.Value) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	next := fn(m.v)
	if next == nil {
		next = value.Undefined{}
	}
	if value.Equal(m.v, next) {
		return false
	}
	m.v = next

	for _, l := range m.listeners {
		l.fn(next)
	}
	return true
}

// AddListener registers fn and returns an id for RemoveListener.
// Listeners added to a freed value are ignored.
func (m *MutableValue) AddListener(fn Listener) uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.nextListener++
	if m.freed.Load() {
		return m.nextListener
	}
	m.listeners = append(m.listeners, listenerEntry{id: m.nextListener, fn: fn})
	return m.nextListener
}

// RemoveListener unregisters a listener. Unknown ids are ignored.
func (m *MutableValue) RemoveListener(id uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for i, l := range m.listeners {
		if l.id == id {
			m.listeners = append(m.listeners[:i], m.listeners[i+1:]...)
			return
		}
	}
}

// Retain adds an owner. Retaining a freed value has no effect and returns false.
func (m *MutableValue) Retain() bool {
	for {
		n := m.refs.Load()
		if n <= 0 {
			return false
		}
		if m.refs.CompareAndSwap(n, n+1) {
			return true
		}
	}
}

// Release drops an owner. The last release frees the value.
func (m *MutableValue) Release() {
	if m.refs.Add(-1) != 0 {
		return
	}
	if !m.freed.CompareAndSwap(false, true) {
		return
	}

	m.mu.Lock()
	m.listeners = nil
	m.mu.Unlock()

	if m.onFree != nil {
		m.onFree(m)
	}
}

// Refs returns the current reference count.
func (m *MutableValue) Refs() int64 {
	return m.refs.Load()
}

// Freed reports whether the last owner has released the value.
func (m *MutableValue) Freed() bool {
	return m.freed.Load()
}

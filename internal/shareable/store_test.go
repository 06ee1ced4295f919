package shareable

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/worklets/internal/value"
)

func TestStore_PutAndWeakRef(t *testing.T) {
	s := NewStore()

	id := s.Put("js", String("hello"))
	ref := s.GetWeakRef(id)

	got, ok := ref.Lock()
	require.True(t, ok)
	assert.Equal(t, String("hello"), got)
	assert.Equal(t, 1, s.Len())
}

func TestStore_WeakRefDoesNotExtendLifetime(t *testing.T) {
	s := NewStore()

	id := s.Put("js", String("hello"))
	ref := s.GetWeakRef(id)

	s.RemoveRefs("js")

	_, ok := ref.Lock()
	assert.False(t, ok, "weak ref must not keep the entry alive")
	assert.Equal(t, 0, s.Len())
}

func TestStore_ZeroWeakRef(t *testing.T) {
	_, ok := WeakRef{}.Lock()
	assert.False(t, ok)
}

func TestStore_RetainKeepsEntryAlive(t *testing.T) {
	s := NewStore()

	id := s.Put("js", String("x"))
	require.True(t, s.Retain("handler:1", id))

	s.RemoveRefs("js")
	_, ok := s.Lookup(id)
	assert.True(t, ok, "second owner still holds the entry")

	s.RemoveRefs("handler:1")
	_, ok = s.Lookup(id)
	assert.False(t, ok)
}

func TestStore_RetainUnknown(t *testing.T) {
	s := NewStore()
	assert.False(t, s.Retain("js", 42))
}

func TestStore_Release(t *testing.T) {
	s := NewStore()

	a := s.Put("js", String("a"))
	b := s.Put("js", String("b"))

	s.Release("js", a)
	s.Release("js", a) // idempotent
	s.Release("nobody", b)

	_, ok := s.Lookup(a)
	assert.False(t, ok)
	_, ok = s.Lookup(b)
	assert.True(t, ok)
	assert.Equal(t, 1, s.Held("js"))
}

func TestStore_RemoveRefsIdempotent(t *testing.T) {
	s := NewStore()
	s.Put("worklet:1", String("a"))
	s.Put("worklet:1", String("b"))

	assert.Equal(t, 2, s.RemoveRefs("worklet:1"))
	assert.Equal(t, 0, s.RemoveRefs("worklet:1"))
	assert.Equal(t, 0, s.RemoveRefs("never-seen"))
}

func TestStore_ReleasesMutableOnLastOwner(t *testing.T) {
	s := NewStore()

	freed := 0
	mv := NewMutable(1, value.Number(0), func(*MutableValue) { freed++ })
	id := s.Put("js", mv)

	s.Release("js", id)
	assert.Equal(t, 1, freed)
	assert.True(t, mv.Freed())
}

func TestStore_ReentrantReleaseHook(t *testing.T) {
	s := NewStore()

	// The mutable's free hook drops what was held on its behalf, re-entering
	// the store while RemoveRefs still holds the lock.
	var mv *MutableValue
	mv = NewMutable(1, value.Number(0), func(m *MutableValue) {
		s.RemoveRefs(fmt.Sprintf("mutable:%d", m.ID()))
	})
	s.Put("js", mv)
	captured := s.Put("mutable:1", String("captured"))

	done := make(chan struct{})
	go func() {
		s.RemoveRefs("js")
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("reentrant release deadlocked")
	}

	_, ok := s.Lookup(captured)
	assert.False(t, ok, "nested owner's refs are dropped by the hook")
	assert.Equal(t, 0, s.Len())
}

func TestStore_Clear(t *testing.T) {
	s := NewStore()

	var order []uint64
	for i := uint64(1); i <= 3; i++ {
		s.Put("js", NewMutable(i, value.Null{}, func(m *MutableValue) {
			order = append(order, m.ID())
			// Store calls from inside the hook must not deadlock.
			s.RemoveRefs("js")
		}))
	}

	s.Clear()
	assert.Equal(t, []uint64{1, 2, 3}, order)
	assert.Equal(t, 0, s.Len())
	assert.Equal(t, 0, s.Held("js"))
}

func TestStore_FreeHookRunsOnceLastEntryGoes(t *testing.T) {
	var freed []Shareable
	s := NewStore(WithFreeHook(func(v Shareable) { freed = append(freed, v) }))

	w := &Worklet{Hash: "h1", Source: "function () {}"}
	first := s.Put("handler:1", w)
	s.Put("mapper:2", w)
	s.Put("js", String("data"))
	assert.True(t, s.Holds(w))

	s.Release("handler:1", first)
	assert.Empty(t, freed, "another entry still holds the worklet")
	assert.True(t, s.Holds(w))

	s.RemoveRefs("mapper:2")
	assert.Equal(t, []Shareable{w}, freed)
	assert.False(t, s.Holds(w))

	s.RemoveRefs("js")
	assert.Len(t, freed, 1, "data kinds have no identity to free")
	assert.False(t, s.Holds(String("data")))
}

func TestStore_FreeHookOnClear(t *testing.T) {
	var freed []Shareable
	s := NewStore(WithFreeHook(func(v Shareable) { freed = append(freed, v) }))

	fn := &HostFunction{Name: "f"}
	s.Put("js", fn)
	s.Put("handler:1", fn)
	s.Put("js", Scalar{V: value.Number(1)})

	s.Clear()
	assert.Equal(t, []Shareable{fn}, freed)
	assert.False(t, s.Holds(fn))
}

func TestStore_ChangeHook(t *testing.T) {
	var counts []int
	s := NewStore(WithChangeHook(func(n int) { counts = append(counts, n) }))

	id := s.Put("js", String("a"))
	s.Put("js", String("b"))
	s.Release("js", id)
	s.Clear()

	assert.Equal(t, []int{1, 2, 1, 0}, counts)
}

func TestStore_Concurrent(t *testing.T) {
	s := NewStore()

	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			owner := fmt.Sprintf("owner:%d", g)
			for i := 0; i < 100; i++ {
				id := s.Put(owner, Scalar{V: value.Number(float64(i))})
				s.GetWeakRef(id).Lock()
			}
			s.RemoveRefs(owner)
		}(g)
	}
	wg.Wait()

	assert.Equal(t, 0, s.Len())
}

func TestRecursiveMutex_UnlockByOtherGoroutinePanics(t *testing.T) {
	var m recursiveMutex
	m.Lock()
	defer m.Unlock()

	panicked := make(chan bool)
	go func() {
		defer func() { panicked <- recover() != nil }()
		m.Unlock()
	}()
	assert.True(t, <-panicked)
}

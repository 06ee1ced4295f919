package shareable

import (
	"sync"
	"sync/atomic"

	"github.com/petermattis/goid"
)

// recursiveMutex is a mutex the holding goroutine may lock again.
// Ownership is tracked by goroutine id; depth is only touched by the owner.
type recursiveMutex struct {
	mu    sync.Mutex
	owner atomic.Int64 // goroutine id of the holder, 0 when unlocked
	depth int
}

func (m *recursiveMutex) Lock() {
	gid := goid.Get()
	if m.owner.Load() == gid {
		m.depth++
		return
	}

	m.mu.Lock()
	m.owner.Store(gid)
	m.depth = 1
}

func (m *recursiveMutex) Unlock() {
	if m.owner.Load() != goid.Get() {
		panic("shareable: unlock of recursive mutex by a goroutine that does not hold it")
	}

	m.depth--
	if m.depth == 0 {
		m.owner.Store(0)
		m.mu.Unlock()
	}
}

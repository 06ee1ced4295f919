package shareable

import "sync"

// SynchronizedDataHolder is a slot that either runtime may read or replace
// synchronously. Unlike MutableValue it has no listeners and stores a
// Shareable, so it can carry functions and handles.
type SynchronizedDataHolder struct {
	mu   sync.RWMutex
	data Shareable
}

// NewSynchronizedDataHolder creates a holder with initial data.
func NewSynchronizedDataHolder(initial Shareable) *SynchronizedDataHolder {
	return &SynchronizedDataHolder{data: initial}
}

func (*SynchronizedDataHolder) Kind() Kind { return KindSynchronizedDataHolder }

// Get returns the current data.
func (h *SynchronizedDataHolder) Get() Shareable {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.data
}

// Set replaces the data.
func (h *SynchronizedDataHolder) Set(data Shareable) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.data = data
}

package shareable

import (
	"slices"
)

// Store tracks Shareables on behalf of owners.
//
// An owner is any string naming a subscriber: the JS side, an event handler,
// a mapper, a mutable value. An entry stays alive while at least one owner
// holds it. When the last owner lets go, the entry is removed and, if the
// Shareable is a Releaser, its Release hook runs with the store lock held.
// Once no entry holds a value with identity (every kind except the data
// kinds), the free hook runs for it, also with the lock held. Hooks may call
// back into the Store; the lock is recursive for that reason.
//
// Thread-safety: all methods are safe for concurrent use.
type Store struct {
	mu recursiveMutex

	entries map[uint64]*entry
	owners  map[string]map[uint64]struct{}
	nextID  uint64
	// live counts the entries holding each identity value.
	live map[Shareable]int

	onChange func(entries int)
	onFree   func(v Shareable)
}

type entry struct {
	v      Shareable
	owners map[string]struct{}
}

// StoreOption configures a Store.
type StoreOption func(*Store)

// WithChangeHook registers fn to observe the entry count after every mutation.
// fn runs with the store lock held.
func WithChangeHook(fn func(entries int)) StoreOption {
	return func(s *Store) {
		s.onChange = fn
	}
}

// WithFreeHook registers fn to run once the last entry holding a value with
// identity is removed. fn runs with the store lock held.
func WithFreeHook(fn func(v Shareable)) StoreOption {
	return func(s *Store) {
		s.onFree = fn
	}
}

// NewStore creates an empty Store.
func NewStore(opts ...StoreOption) *Store {
	s := &Store{
		entries: make(map[uint64]*entry),
		owners:  make(map[string]map[uint64]struct{}),
		live:    make(map[Shareable]int),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Put adds v to the store, held by owner, and returns its id.
// For Releasers the store takes over the reference the caller created v with.
func (s *Store) Put(owner string, v Shareable) uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextID++
	id := s.nextID
	s.entries[id] = &entry{v: v, owners: map[string]struct{}{owner: {}}}
	s.addOwnerIndex(owner, id)
	if hasIdentity(v) {
		s.live[v]++
	}
	s.changed()
	return id
}

// Retain makes owner an additional holder of id.
// Returns false if the entry no longer exists.
func (s *Store) Retain(owner string, id uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[id]
	if !ok {
		return false
	}
	e.owners[owner] = struct{}{}
	s.addOwnerIndex(owner, id)
	return true
}

// Release drops owner's hold on id. Unknown owners and ids are ignored.
func (s *Store) Release(owner string, id uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ids, ok := s.owners[owner]
	if !ok {
		return
	}
	if _, held := ids[id]; !held {
		return
	}
	delete(ids, id)
	if len(ids) == 0 {
		delete(s.owners, owner)
	}
	s.dropOwner(id, owner)
	s.changed()
}

// RemoveRefs drops every hold owner has and returns how many it dropped.
// Calling it again for the same owner is a no-op.
func (s *Store) RemoveRefs(owner string) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	ids, ok := s.owners[owner]
	if !ok {
		return 0
	}
	// Unindex first so a release hook re-entering for the same owner sees nothing.
	delete(s.owners, owner)

	sorted := make([]uint64, 0, len(ids))
	for id := range ids {
		sorted = append(sorted, id)
	}
	slices.Sort(sorted)

	for _, id := range sorted {
		s.dropOwner(id, owner)
	}
	s.changed()
	return len(sorted)
}

// Clear removes every entry regardless of owners, releasing Releasers in id order.
func (s *Store) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries, live := s.entries, s.live
	s.entries = make(map[uint64]*entry)
	s.owners = make(map[string]map[uint64]struct{})
	s.live = make(map[Shareable]int)

	ids := make([]uint64, 0, len(entries))
	for id := range entries {
		ids = append(ids, id)
	}
	slices.Sort(ids)

	for _, id := range ids {
		v := entries[id].v
		if r, ok := v.(Releaser); ok {
			r.Release()
		}
		s.unlive(live, v)
	}
	s.changed()
}

// GetWeakRef returns a non-owning handle to id. The handle does not keep the
// entry alive; Lock fails once the last owner has released it.
func (s *Store) GetWeakRef(id uint64) WeakRef {
	return WeakRef{store: s, id: id}
}

// Lookup returns the Shareable stored under id.
func (s *Store) Lookup(id uint64) (Shareable, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[id]
	if !ok {
		return nil, false
	}
	return e.v, true
}

// Len returns the number of live entries.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// Holds reports whether any entry holds v. Data kinds are never reported.
func (s *Store) Holds(v Shareable) bool {
	if !hasIdentity(v) {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.live[v] > 0
}

// Held returns the number of entries owner currently holds.
func (s *Store) Held(owner string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.owners[owner])
}

func (s *Store) addOwnerIndex(owner string, id uint64) {
	ids, ok := s.owners[owner]
	if !ok {
		ids = make(map[uint64]struct{})
		s.owners[owner] = ids
	}
	ids[id] = struct{}{}
}

// dropOwner removes owner from the entry and frees it when no owner is left.
// Caller holds s.mu.
func (s *Store) dropOwner(id uint64, owner string) {
	e, ok := s.entries[id]
	if !ok {
		return
	}
	delete(e.owners, owner)
	if len(e.owners) > 0 {
		return
	}

	delete(s.entries, id)
	if r, ok := e.v.(Releaser); ok {
		r.Release()
	}
	s.unlive(s.live, e.v)
}

// unlive drops one entry's count for v and runs the free hook at zero.
// Caller holds s.mu.
func (s *Store) unlive(live map[Shareable]int, v Shareable) {
	if !hasIdentity(v) {
		return
	}
	live[v]--
	if live[v] > 0 {
		return
	}
	delete(live, v)
	if s.onFree != nil {
		s.onFree(v)
	}
}

// hasIdentity reports whether v is compared by identity. The data kinds are
// copies and may not be comparable at all.
func hasIdentity(v Shareable) bool {
	switch v.(type) {
	case nil, Scalar, String, Array, Object:
		return false
	}
	return true
}

func (s *Store) changed() {
	if s.onChange != nil {
		s.onChange(len(s.entries))
	}
}

// WeakRef is a non-owning handle to a Store entry.
type WeakRef struct {
	store *Store
	id    uint64
}

// ID returns the entry id the handle points to.
func (w WeakRef) ID() uint64 {
	return w.id
}

// Lock resolves the handle. It returns false once the entry has been freed
// or if the handle is the zero value.
func (w WeakRef) Lock() (Shareable, bool) {
	if w.store == nil {
		return nil, false
	}
	return w.store.Lookup(w.id)
}

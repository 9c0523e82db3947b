package overlay

import (
	"context"
	"sync"

	"github.com/google/uuid"
)

// Store is the persistence abstraction for overlay records.
// Implementations can be in-memory or MongoDB backed; the Service does not
// need to know which one is used. List returns records in insertion order.
type Store interface {
	List(ctx context.Context) ([]Overlay, error)
	// Insert stores o under a freshly assigned id and returns the stored record.
	Insert(ctx context.Context, o Overlay) (Overlay, error)
	// Update applies p to the record; ErrNotFound if id is unknown.
	Update(ctx context.Context, id ID, p Patch) error
	// Delete removes the record; ErrNotFound if id is unknown.
	Delete(ctx context.Context, id ID) error
}

// InMemoryStore is a concurrency-safe in-memory implementation of Store.
type InMemoryStore struct {
	mu       sync.RWMutex
	overlays map[ID]Overlay
	order    []ID
	newID    func() ID
}

// NewInMemoryStore returns a new empty in-memory store that assigns UUIDs.
func NewInMemoryStore() *InMemoryStore {
	return NewInMemoryStoreWithIDs(func() ID { return ID(uuid.NewString()) })
}

// NewInMemoryStoreWithIDs uses newID to assign ids; useful for deterministic tests.
func NewInMemoryStoreWithIDs(newID func() ID) *InMemoryStore {
	return &InMemoryStore{
		overlays: make(map[ID]Overlay),
		newID:    newID,
	}
}

// List implements Store.List.
func (s *InMemoryStore) List(ctx context.Context) ([]Overlay, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Overlay, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.overlays[id])
	}
	return out, nil
}

// Insert implements Store.Insert.
func (s *InMemoryStore) Insert(ctx context.Context, o Overlay) (Overlay, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	o.ID = s.newID()
	if _, exists := s.overlays[o.ID]; !exists {
		s.order = append(s.order, o.ID)
	}
	s.overlays[o.ID] = o
	return o, nil
}

// Update implements Store.Update.
func (s *InMemoryStore) Update(ctx context.Context, id ID, p Patch) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	o, ok := s.overlays[id]
	if !ok {
		return ErrNotFound
	}
	s.overlays[id] = p.Apply(o)
	return nil
}

// Delete implements Store.Delete.
func (s *InMemoryStore) Delete(ctx context.Context, id ID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.overlays[id]; !ok {
		return ErrNotFound
	}
	delete(s.overlays, id)
	for i, v := range s.order {
		if v == id {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	return nil
}

// Len returns the number of stored overlays.
func (s *InMemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.order)
}

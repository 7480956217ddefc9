package knowledge

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// MemStore is an in-memory passage store.
//
// It backs tests and embedded deployments that have no PostgreSQL available.
// Insertion order is preserved so listings are deterministic.
//
// MemStore is safe for concurrent use by multiple goroutines.
type MemStore struct {
	mu       sync.RWMutex
	passages map[string]*Passage
	order    []string
	clock    func() time.Time
}

// NewMemStore creates an empty in-memory store.
func NewMemStore() *MemStore {
	return &MemStore{
		passages: make(map[string]*Passage),
		clock:    time.Now,
	}
}

// Upsert inserts or replaces a passage by ID.
func (s *MemStore) Upsert(_ context.Context, p Passage) error {
	if p.ID == "" {
		return fmt.Errorf("passage id is required")
	}
	if p.OrgID == "" {
		return fmt.Errorf("passage org id is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.clock()
	if existing, ok := s.passages[p.ID]; ok {
		p.CreatedAt = existing.CreatedAt
	} else {
		p.CreatedAt = now
		s.order = append(s.order, p.ID)
	}
	p.UpdatedAt = now
	s.passages[p.ID] = &p
	return nil
}

// ListActive returns active passages matching the filter, in insertion order.
func (s *MemStore) ListActive(_ context.Context, f Filter) ([]Passage, error) {
	if f.OrgID == "" {
		return nil, fmt.Errorf("filter org id is required")
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []Passage
	for _, id := range s.order {
		p := s.passages[id]
		if !p.Active {
			continue
		}
		if !f.Match(*p) {
			continue
		}
		out = append(out, *p)
	}
	return out, nil
}

// Deactivate soft-deletes a passage.
func (s *MemStore) Deactivate(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.passages[id]
	if !ok {
		return fmt.Errorf("deactivate passage %s: %w", id, ErrNotFound)
	}
	p.Active = false
	p.UpdatedAt = s.clock()
	return nil
}

// Len reports the number of stored passages, active or not.
func (s *MemStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.passages)
}

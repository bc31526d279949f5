// Package memory implements the domain store interfaces with in-process maps.
// It backs the "memory" storage mode, the simulator, and tests. All stores are
// safe for concurrent use.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/alanyoungcy/anchorbot/internal/domain"
)

// PositionStore implements domain.PositionStore in memory.
type PositionStore struct {
	mu        sync.RWMutex
	positions map[string]domain.PositionState
}

// NewPositionStore creates an empty PositionStore.
func NewPositionStore() *PositionStore {
	return &PositionStore{positions: make(map[string]domain.PositionState)}
}

// Create adds a new position.
func (s *PositionStore) Create(_ context.Context, pos domain.PositionState) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.positions[pos.ID]; ok {
		return fmt.Errorf("memory: position %s: %w", pos.ID, domain.ErrAlreadyExists)
	}
	s.positions[pos.ID] = pos
	return nil
}

// Save writes a full snapshot back.
func (s *PositionStore) Save(_ context.Context, pos domain.PositionState) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.positions[pos.ID]; !ok {
		return fmt.Errorf("memory: position %s: %w", pos.ID, domain.ErrNotFound)
	}
	s.positions[pos.ID] = pos
	return nil
}

// GetByID returns a position snapshot.
func (s *PositionStore) GetByID(_ context.Context, id string) (domain.PositionState, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	pos, ok := s.positions[id]
	if !ok {
		return domain.PositionState{}, fmt.Errorf("memory: position %s: %w", id, domain.ErrNotFound)
	}
	return pos, nil
}

// ListEligible returns positions with AutoCycle set, ordered by id.
func (s *PositionStore) ListEligible(_ context.Context) ([]domain.PositionState, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []domain.PositionState
	for _, pos := range s.positions {
		if pos.AutoCycle {
			out = append(out, pos)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// List returns positions with pagination, ordered by id.
func (s *PositionStore) List(_ context.Context, opts domain.ListOpts) ([]domain.PositionState, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	all := make([]domain.PositionState, 0, len(s.positions))
	for _, pos := range s.positions {
		all = append(all, pos)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].ID < all[j].ID })
	return paginate(all, opts), nil
}

// paginate applies Limit/Offset to a sorted slice.
func paginate[T any](items []T, opts domain.ListOpts) []T {
	if opts.Offset > 0 {
		if opts.Offset >= len(items) {
			return nil
		}
		items = items[opts.Offset:]
	}
	if opts.Limit > 0 && opts.Limit < len(items) {
		items = items[:opts.Limit]
	}
	out := make([]T, len(items))
	copy(out, items)
	return out
}

// Compile-time interface check.
var _ domain.PositionStore = (*PositionStore)(nil)

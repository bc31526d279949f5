package memory

import (
	"context"
	"sync"
	"time"

	"github.com/alanyoungcy/anchorbot/internal/domain"
)

// EventStore implements domain.EventStore in memory. Append-only: the slice
// only ever grows, matching the audit-trail contract.
type EventStore struct {
	mu      sync.RWMutex
	records []domain.EventRecord
}

// NewEventStore creates an empty EventStore.
func NewEventStore() *EventStore {
	return &EventStore{}
}

// Append adds a record to the trail.
func (s *EventStore) Append(_ context.Context, record domain.EventRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = append(s.records, record)
	return nil
}

// List returns records matching the filter in insertion order.
func (s *EventStore) List(_ context.Context, filter domain.EventFilter) ([]domain.EventRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []domain.EventRecord
	for _, r := range s.records {
		if filter.TraceID != "" && r.TraceID != filter.TraceID {
			continue
		}
		if filter.AssetID != "" && (r.AssetID == nil || *r.AssetID != filter.AssetID) {
			continue
		}
		if filter.Type != "" && r.EventType != filter.Type {
			continue
		}
		if filter.Since != nil && r.CreatedAt.Before(*filter.Since) {
			continue
		}
		if filter.Until != nil && r.CreatedAt.After(*filter.Until) {
			continue
		}
		out = append(out, r)
	}

	if filter.Offset > 0 {
		if filter.Offset >= len(out) {
			return nil, nil
		}
		out = out[filter.Offset:]
	}
	if filter.Limit > 0 && filter.Limit < len(out) {
		out = out[:filter.Limit]
	}
	return out, nil
}

// ListBefore returns records created strictly before the cutoff.
func (s *EventStore) ListBefore(_ context.Context, before time.Time) ([]domain.EventRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []domain.EventRecord
	for _, r := range s.records {
		if r.CreatedAt.Before(before) {
			out = append(out, r)
		}
	}
	return out, nil
}

// Compile-time interface check.
var _ domain.EventStore = (*EventStore)(nil)

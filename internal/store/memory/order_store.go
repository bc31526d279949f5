package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/alanyoungcy/anchorbot/internal/domain"
)

// OrderStore implements domain.OrderStore in memory.
type OrderStore struct {
	mu     sync.RWMutex
	orders map[string]domain.Order
}

// NewOrderStore creates an empty OrderStore.
func NewOrderStore() *OrderStore {
	return &OrderStore{orders: make(map[string]domain.Order)}
}

// Create adds a new order.
func (s *OrderStore) Create(_ context.Context, order domain.Order) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.orders[order.ID]; ok {
		return fmt.Errorf("memory: order %s: %w", order.ID, domain.ErrAlreadyExists)
	}
	s.orders[order.ID] = order
	return nil
}

// MarkFilled transitions a submitted order to filled.
func (s *OrderStore) MarkFilled(_ context.Context, id string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	order, ok := s.orders[id]
	if !ok {
		return fmt.Errorf("memory: order %s: %w", id, domain.ErrNotFound)
	}
	order.Status = domain.OrderStatusFilled
	order.FilledAt = &at
	s.orders[id] = order
	return nil
}

// MarkRejected transitions a submitted order to rejected.
func (s *OrderStore) MarkRejected(_ context.Context, id string, reason string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	order, ok := s.orders[id]
	if !ok {
		return fmt.Errorf("memory: order %s: %w", id, domain.ErrNotFound)
	}
	order.Status = domain.OrderStatusRejected
	order.Reason = reason
	s.orders[id] = order
	return nil
}

// GetByID returns an order.
func (s *OrderStore) GetByID(_ context.Context, id string) (domain.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	order, ok := s.orders[id]
	if !ok {
		return domain.Order{}, fmt.Errorf("memory: order %s: %w", id, domain.ErrNotFound)
	}
	return order, nil
}

// ListByPosition returns a position's orders, newest first.
func (s *OrderStore) ListByPosition(_ context.Context, positionID string, opts domain.ListOpts) ([]domain.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []domain.Order
	for _, order := range s.orders {
		if order.PositionID == positionID {
			out = append(out, order)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return paginate(out, opts), nil
}

// CountSince counts non-rejected orders created at or after the given time.
func (s *OrderStore) CountSince(_ context.Context, positionID string, since time.Time) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	count := 0
	for _, order := range s.orders {
		if order.PositionID == positionID &&
			order.Status != domain.OrderStatusRejected &&
			!order.CreatedAt.Before(since) {
			count++
		}
	}
	return count, nil
}

// Compile-time interface check.
var _ domain.OrderStore = (*OrderStore)(nil)

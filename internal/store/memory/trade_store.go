package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/anchorbot/internal/domain"
)

// TradeStore implements domain.TradeStore in memory.
type TradeStore struct {
	mu     sync.RWMutex
	trades map[string]domain.Trade
}

// NewTradeStore creates an empty TradeStore.
func NewTradeStore() *TradeStore {
	return &TradeStore{trades: make(map[string]domain.Trade)}
}

// Insert records an execution.
func (s *TradeStore) Insert(_ context.Context, trade domain.Trade) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.trades[trade.ID]; ok {
		return fmt.Errorf("memory: trade %s: %w", trade.ID, domain.ErrAlreadyExists)
	}
	s.trades[trade.ID] = trade
	return nil
}

// ListByPosition returns a position's trades, newest first.
func (s *TradeStore) ListByPosition(_ context.Context, positionID string, opts domain.ListOpts) ([]domain.Trade, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []domain.Trade
	for _, trade := range s.trades {
		if trade.PositionID == positionID {
			out = append(out, trade)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ExecutedAt.After(out[j].ExecutedAt) })
	return paginate(out, opts), nil
}

// SumNotionalSince sums executed notional at or after the given time.
func (s *TradeStore) SumNotionalSince(_ context.Context, positionID string, since time.Time) (decimal.Decimal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sum := decimal.Zero
	for _, trade := range s.trades {
		if trade.PositionID == positionID && !trade.ExecutedAt.Before(since) {
			sum = sum.Add(trade.Notional)
		}
	}
	return sum, nil
}

// Compile-time interface check.
var _ domain.TradeStore = (*TradeStore)(nil)

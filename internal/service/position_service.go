package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/anchorbot/internal/domain"
	"github.com/alanyoungcy/anchorbot/internal/eventchain"
)

// positionLockTTL bounds dividend mutations the same way cycle locks bound
// trading cycles.
const positionLockTTL = 30 * time.Second

// PositionService manages position lifecycle and dividend accounting.
// Dividend mutations take the same per-position lock as trading cycles, so a
// dividend payout can never interleave with a cycle's read-modify-write.
type PositionService struct {
	positions domain.PositionStore
	locks     domain.LockManager
	chain     *eventchain.Chain
	logger    *slog.Logger
}

// NewPositionService creates a PositionService.
func NewPositionService(
	positions domain.PositionStore,
	locks domain.LockManager,
	chain *eventchain.Chain,
	logger *slog.Logger,
) *PositionService {
	return &PositionService{
		positions: positions,
		locks:     locks,
		chain:     chain,
		logger:    logger.With(slog.String("component", "position_service")),
	}
}

// NewPositionParams carries the caller-supplied fields for position creation.
type NewPositionParams struct {
	TenantID    string
	PortfolioID string
	Ticker      string
	Currency    string
	Quantity    decimal.Decimal
	Cash        decimal.Decimal
	AutoCycle   bool
}

// Create registers a new position. The anchor starts unset; the first fully
// executed trade establishes it.
func (s *PositionService) Create(ctx context.Context, params NewPositionParams) (domain.PositionState, error) {
	if params.Ticker == "" {
		return domain.PositionState{}, fmt.Errorf("position_service: ticker is required")
	}
	if params.Quantity.IsNegative() || params.Cash.IsNegative() {
		return domain.PositionState{}, fmt.Errorf("position_service: quantity and cash must be non-negative")
	}

	currency := params.Currency
	if currency == "" {
		currency = "USD"
	}

	now := time.Now().UTC()
	pos := domain.PositionState{
		ID:          uuid.New().String(),
		TenantID:    params.TenantID,
		PortfolioID: params.PortfolioID,
		Ticker:      params.Ticker,
		Currency:    currency,
		Quantity:    params.Quantity,
		Cash:        params.Cash,
		AutoCycle:   params.AutoCycle,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	if err := s.positions.Create(ctx, pos); err != nil {
		return domain.PositionState{}, fmt.Errorf("position_service: create position: %w", err)
	}

	s.logger.InfoContext(ctx, "position created",
		slog.String("position_id", pos.ID),
		slog.String("ticker", pos.Ticker),
		slog.Bool("auto_cycle", pos.AutoCycle),
	)
	return pos, nil
}

// Get returns one position by ID.
func (s *PositionService) Get(ctx context.Context, id string) (domain.PositionState, error) {
	pos, err := s.positions.GetByID(ctx, id)
	if err != nil {
		return domain.PositionState{}, fmt.Errorf("position_service: get position %s: %w", id, err)
	}
	return pos, nil
}

// List returns positions with pagination.
func (s *PositionService) List(ctx context.Context, opts domain.ListOpts) ([]domain.PositionState, error) {
	positions, err := s.positions.List(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("position_service: list positions: %w", err)
	}
	return positions, nil
}

// SetAutoCycle flips scheduled-cycle eligibility for a position.
func (s *PositionService) SetAutoCycle(ctx context.Context, id string, enabled bool) (domain.PositionState, error) {
	var out domain.PositionState
	err := s.withLock(ctx, id, func(pos domain.PositionState) (domain.PositionState, error) {
		pos.AutoCycle = enabled
		pos.UpdatedAt = time.Now().UTC()
		out = pos
		return pos, nil
	})
	if err != nil {
		return domain.PositionState{}, err
	}
	return out, nil
}

// AccrueDividend records a declared dividend as receivable. No cash moves
// until PayDividend.
func (s *PositionService) AccrueDividend(ctx context.Context, id string, amount decimal.Decimal) (domain.PositionState, error) {
	if !amount.IsPositive() {
		return domain.PositionState{}, fmt.Errorf("position_service: dividend amount must be positive")
	}

	var out domain.PositionState
	err := s.withLock(ctx, id, func(pos domain.PositionState) (domain.PositionState, error) {
		pos.DividendReceivable = pos.DividendReceivable.Add(amount)
		pos.UpdatedAt = time.Now().UTC()
		out = pos
		return pos, nil
	})
	if err != nil {
		return domain.PositionState{}, err
	}

	s.logger.InfoContext(ctx, "dividend accrued",
		slog.String("position_id", id),
		slog.String("amount", amount.String()),
	)
	return out, nil
}

// PayDividend settles the accrued receivable into cash and records a
// DividendPaid event on its own trace. Paying with nothing receivable is an
// error, not a no-op.
func (s *PositionService) PayDividend(ctx context.Context, id string) (domain.PositionState, error) {
	var out domain.PositionState
	var paid decimal.Decimal

	err := s.withLock(ctx, id, func(pos domain.PositionState) (domain.PositionState, error) {
		if !pos.DividendReceivable.IsPositive() {
			return pos, fmt.Errorf("position_service: no dividend receivable on position %s", id)
		}
		paid = pos.DividendReceivable
		pos.Cash = pos.Cash.Add(paid)
		pos.TotalDividendsReceived = pos.TotalDividendsReceived.Add(paid)
		pos.DividendReceivable = decimal.Zero
		pos.UpdatedAt = time.Now().UTC()
		out = pos
		return pos, nil
	})
	if err != nil {
		return domain.PositionState{}, err
	}

	trace := s.chain.NewTrace(eventchain.TraceScope{
		TenantID:    out.TenantID,
		PortfolioID: out.PortfolioID,
		AssetID:     out.Ticker,
	}, domain.SourceManual)
	trace.Append(ctx, domain.EventDividendPaid, map[string]any{
		"position_id":              out.ID,
		"amount":                   paid.String(),
		"cash":                     out.Cash.String(),
		"total_dividends_received": out.TotalDividendsReceived.String(),
	})

	s.logger.InfoContext(ctx, "dividend paid",
		slog.String("position_id", id),
		slog.String("amount", paid.String()),
	)
	return out, nil
}

// withLock loads the position under its cycle lock, applies fn, and saves the
// result when fn succeeds.
func (s *PositionService) withLock(ctx context.Context, id string, fn func(domain.PositionState) (domain.PositionState, error)) error {
	unlock, err := s.locks.Acquire(ctx, "cycle:"+id, positionLockTTL)
	if err != nil {
		return fmt.Errorf("position_service: acquire position lock %s: %w", id, err)
	}
	defer unlock()

	pos, err := s.positions.GetByID(ctx, id)
	if err != nil {
		return fmt.Errorf("position_service: load position %s: %w", id, err)
	}

	updated, err := fn(pos)
	if err != nil {
		return err
	}

	if err := s.positions.Save(ctx, updated); err != nil {
		return fmt.Errorf("position_service: save position %s: %w", id, err)
	}
	return nil
}

package domain

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// ListOpts provides pagination for list queries.
type ListOpts struct {
	Limit  int
	Offset int
}

// PositionStore persists position snapshots.
type PositionStore interface {
	Create(ctx context.Context, pos PositionState) error
	// Save writes a full snapshot back. The caller holds the position lock.
	Save(ctx context.Context, pos PositionState) error
	GetByID(ctx context.Context, id string) (PositionState, error)
	// ListEligible returns positions currently enabled for automatic cycles.
	ListEligible(ctx context.Context) ([]PositionState, error)
	List(ctx context.Context, opts ListOpts) ([]PositionState, error)
}

// OrderStore persists orders.
type OrderStore interface {
	Create(ctx context.Context, order Order) error
	// MarkFilled and MarkRejected are the only legal transitions out of
	// submitted; afterwards the order is immutable.
	MarkFilled(ctx context.Context, id string, at time.Time) error
	MarkRejected(ctx context.Context, id string, reason string) error
	GetByID(ctx context.Context, id string) (Order, error)
	ListByPosition(ctx context.Context, positionID string, opts ListOpts) ([]Order, error)
	// CountSince returns the number of non-rejected orders for the position
	// created at or after the given time. Used by the daily guardrails.
	CountSince(ctx context.Context, positionID string, since time.Time) (int, error)
}

// TradeStore persists executions.
type TradeStore interface {
	Insert(ctx context.Context, trade Trade) error
	ListByPosition(ctx context.Context, positionID string, opts ListOpts) ([]Trade, error)
	// SumNotionalSince returns the total executed notional for the position
	// since the given time. Used by the daily guardrails.
	SumNotionalSince(ctx context.Context, positionID string, since time.Time) (decimal.Decimal, error)
}

// EventStore is the append-only audit trail. No update or delete exists.
type EventStore interface {
	Append(ctx context.Context, record EventRecord) error
	List(ctx context.Context, filter EventFilter) ([]EventRecord, error)
	// ListBefore returns records created strictly before the cutoff, for
	// archival export.
	ListBefore(ctx context.Context, before time.Time) ([]EventRecord, error)
}

// ConfigStore supplies trigger/guardrail/order-policy parameters by scope.
// Implementations return ErrNotFound for scopes with no stored value; the
// resolver in the engine package walks the precedence chain.
type ConfigStore interface {
	GetTriggerConfig(ctx context.Context, scope ConfigScope) (TriggerConfig, error)
	GetGuardrailConfig(ctx context.Context, scope ConfigScope) (GuardrailConfig, error)
	GetOrderPolicy(ctx context.Context, scope ConfigScope) (OrderPolicyConfig, error)
	// GetCommissionRate looks up a stored rate for the exact tenant/asset
	// pair given; either field may be empty for broader scopes.
	GetCommissionRate(ctx context.Context, tenantID, assetID string) (decimal.Decimal, error)
}

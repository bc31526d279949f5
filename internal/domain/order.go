package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// OrderStatus tracks the order lifecycle. An order is created once, moves
// submitted -> filled|rejected, and is immutable afterwards.
type OrderStatus string

const (
	OrderStatusSubmitted OrderStatus = "submitted"
	OrderStatusFilled    OrderStatus = "filled"
	OrderStatusRejected  OrderStatus = "rejected"
)

// Order is a sized trade submitted to the execution collaborator. It carries
// the commission rate snapshotted at submission time; the effective rate lives
// on the resulting Trade.
type Order struct {
	ID         string
	PositionID string
	TenantID   string
	Ticker     string
	Side       Direction
	Quantity   decimal.Decimal
	// QuotePrice is the price the order was sized against, not a limit.
	QuotePrice decimal.Decimal
	Notional   decimal.Decimal

	CommissionRateSnapshot decimal.Decimal

	Status OrderStatus
	// Reason is set on rejected orders.
	Reason string
	// TraceID links the order to its cycle's event trail.
	TraceID string
	// Source is "worker" for scheduled cycles, "api/manual" otherwise.
	Source string

	CreatedAt time.Time
	FilledAt  *time.Time
}

// TradeStatus is the terminal execution status reported by the broker.
type TradeStatus string

const (
	TradeStatusExecuted          TradeStatus = "executed"
	TradeStatusPartiallyExecuted TradeStatus = "partially_executed"
	TradeStatusCancelled         TradeStatus = "cancelled"
	TradeStatusExpired           TradeStatus = "expired"
)

// Trade is a recorded execution. CommissionRateEffective is recomputed from
// the real commission charged against the real fill notional, so it can drift
// from the order's snapshot rate.
type Trade struct {
	ID         string
	OrderID    string
	PositionID string
	Ticker     string
	Side       Direction

	FillPrice    decimal.Decimal
	FillQuantity decimal.Decimal
	Notional     decimal.Decimal

	Commission              decimal.Decimal
	CommissionRateEffective decimal.Decimal

	Status     TradeStatus
	ExecutedAt time.Time
}

// Fill is the execution collaborator's response to a submitted order.
type Fill struct {
	Price      decimal.Decimal
	Quantity   decimal.Decimal
	Commission decimal.Decimal
	Status     TradeStatus
	ExecutedAt time.Time
}

// Executed reports whether the fill moved any quantity.
func (f Fill) Executed() bool {
	return f.Status == TradeStatusExecuted || f.Status == TradeStatusPartiallyExecuted
}

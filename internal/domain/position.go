package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// PositionState is the full snapshot of a single-asset position. The
// orchestrator reads one snapshot per cycle, computes a new one, and writes it
// back atomically; nothing else mutates a position while a cycle holds its
// lock.
type PositionState struct {
	ID          string
	TenantID    string
	PortfolioID string
	Ticker      string
	Currency    string

	Quantity decimal.Decimal
	Cash     decimal.Decimal

	// AnchorPrice is the reference price trigger thresholds are measured
	// against. Nil until the first successful trade sets it. It only ever
	// changes to the fill price of a fully executed trade.
	AnchorPrice *decimal.Decimal

	DividendReceivable     decimal.Decimal
	TotalCommissionPaid    decimal.Decimal
	TotalDividendsReceived decimal.Decimal

	// AutoCycle marks the position as eligible for scheduled cycles.
	AutoCycle bool

	CreatedAt time.Time
	UpdatedAt time.Time
}

// MarketValue returns the stock market value at the given price.
func (p PositionState) MarketValue(price decimal.Decimal) decimal.Decimal {
	return p.Quantity.Mul(price)
}

// PortfolioValue returns stock market value plus cash at the given price.
func (p PositionState) PortfolioValue(price decimal.Decimal) decimal.Decimal {
	return p.MarketValue(price).Add(p.Cash)
}

// Allocation returns the stock allocation ratio stockMV / (stockMV + cash) at
// the given price. A portfolio with zero total value has zero allocation.
func (p PositionState) Allocation(price decimal.Decimal) decimal.Decimal {
	pv := p.PortfolioValue(price)
	if pv.IsZero() {
		return decimal.Zero
	}
	return p.MarketValue(price).Div(pv)
}

// Anchor returns the anchor price and whether one is set. A zero anchor is
// treated as unset: thresholds are relative deviations and have no meaning
// against a zero baseline.
func (p PositionState) Anchor() (decimal.Decimal, bool) {
	if p.AnchorPrice == nil || p.AnchorPrice.IsZero() {
		return decimal.Zero, false
	}
	return *p.AnchorPrice, true
}

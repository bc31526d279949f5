package engine

import (
	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/anchorbot/internal/domain"
)

// SizedOrder is the outcome of applying order-policy rounding and minimums to
// a trade intent.
type SizedOrder struct {
	// OK is true when the trade survived rounding and minimum checks.
	OK bool
	// Held is true when the trade fell below minimums and the policy says
	// to silently drop it (no order is created at all).
	Held bool
	// Reason explains a held or rejected outcome.
	Reason   string
	Quantity decimal.Decimal
	Notional decimal.Decimal
}

// SizeOrder rounds the intent's raw quantity down to the configured quantity
// step, floors it to whole lots, and checks the minimum quantity and minimum
// notional. A trade below minimum is either held (dropped silently) or
// rejected (an explicit rejected order is recorded), per ActionBelowMin.
func SizeOrder(intent domain.TradeIntent, policy domain.OrderPolicyConfig) SizedOrder {
	qty := intent.Quantity

	if policy.QuantityStep.IsPositive() {
		qty = qty.Div(policy.QuantityStep).Floor().Mul(policy.QuantityStep)
	}
	if policy.LotSize.IsPositive() {
		qty = qty.Div(policy.LotSize).Floor().Mul(policy.LotSize)
	}

	notional := qty.Mul(intent.Price)

	belowMin := func(reason string) SizedOrder {
		return SizedOrder{
			OK:       false,
			Held:     policy.ActionBelowMin != domain.BelowMinReject,
			Reason:   reason,
			Quantity: qty,
			Notional: notional,
		}
	}

	if !qty.IsPositive() || qty.LessThan(policy.MinQuantity) {
		return belowMin(domain.ReasonBelowMinQuantity)
	}
	if policy.MinNotional.IsPositive() && notional.LessThan(policy.MinNotional) {
		return belowMin(domain.ReasonBelowMinNotional)
	}

	return SizedOrder{OK: true, Quantity: qty, Notional: notional}
}

// EffectiveCommissionRate recomputes the commission rate actually paid from
// the real fill notional. Zero notional yields a zero rate.
func EffectiveCommissionRate(commission, notional decimal.Decimal) decimal.Decimal {
	if notional.IsZero() {
		return decimal.Zero
	}
	return commission.Div(notional)
}

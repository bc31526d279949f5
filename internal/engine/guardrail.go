package engine

import (
	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/anchorbot/internal/domain"
)

// EvaluateGuardrail runs the pre-trade allocation check and, when the trade is
// allowed, sizes a candidate intent. It is called only for fired triggers.
//
// The candidate notional is a fraction of portfolio value bounded by
// MaxTradePctOfPosition and scaled by how far the price deviation overshoots
// the threshold (RebalanceRatio maps the breach into proportional size, capped
// at the full fraction). The result is then clamped so executing it cannot
// push the allocation outside the configured band, nor spend cash or shares
// the position does not have, nor exceed the optional daily limits.
func EvaluateGuardrail(
	pos domain.PositionState,
	price decimal.Decimal,
	trigger domain.TriggerDecision,
	cfg domain.GuardrailConfig,
	policy domain.OrderPolicyConfig,
	usage domain.DayUsage,
) domain.GuardrailDecision {
	alloc := pos.Allocation(price)

	blocked := func(reason string) domain.GuardrailDecision {
		return domain.GuardrailDecision{Allowed: false, Reason: reason, Allocation: alloc}
	}

	switch trigger.Direction {
	case domain.DirectionBuy:
		if alloc.GreaterThanOrEqual(cfg.MaxStockPct) {
			return blocked(domain.ReasonAboveMaxAlloc)
		}
	case domain.DirectionSell:
		if alloc.LessThanOrEqual(cfg.MinStockPct) {
			return blocked(domain.ReasonBelowMinAlloc)
		}
	default:
		return blocked(domain.ReasonWithinBand)
	}

	if cfg.MaxOrdersPerDay != nil && usage.Orders >= *cfg.MaxOrdersPerDay {
		return blocked(domain.ReasonMaxOrdersPerDay)
	}

	pv := pos.PortfolioValue(price)
	stockMV := pos.MarketValue(price)
	notional := pv.Mul(cfg.MaxTradePctOfPosition).Mul(breachScale(trigger, policy.RebalanceRatio))

	// Clamp so the trade cannot leave the allocation band.
	if trigger.Direction == domain.DirectionBuy {
		if room := pv.Mul(cfg.MaxStockPct).Sub(stockMV); notional.GreaterThan(room) {
			notional = room
		}
		if notional.GreaterThan(pos.Cash) {
			notional = pos.Cash
		}
		if !notional.IsPositive() {
			return blocked(domain.ReasonInsufficientCash)
		}
	} else {
		if room := stockMV.Sub(pv.Mul(cfg.MinStockPct)); notional.GreaterThan(room) {
			notional = room
		}
		if notional.GreaterThan(stockMV) {
			notional = stockMV
		}
		if !notional.IsPositive() {
			return blocked(domain.ReasonInsufficientStock)
		}
	}

	if cfg.MaxDailyNotional != nil {
		remaining := cfg.MaxDailyNotional.Sub(usage.Notional)
		if !remaining.IsPositive() {
			return blocked(domain.ReasonMaxDailyNotional)
		}
		if notional.GreaterThan(remaining) {
			notional = remaining
		}
	}

	return domain.GuardrailDecision{
		Allowed:    true,
		Reason:     domain.ReasonSized,
		Allocation: alloc,
		Intent: &domain.TradeIntent{
			PositionID: pos.ID,
			Ticker:     pos.Ticker,
			Side:       trigger.Direction,
			Quantity:   notional.Div(price),
			Price:      price,
			Notional:   notional,
		},
	}
}

// breachScale maps the threshold breach into a (0, 1] sizing factor:
// ratio * |delta| / threshold, capped at 1. A deviation at exactly the
// threshold with ratio 1 already sizes the full trade fraction.
func breachScale(trigger domain.TriggerDecision, ratio decimal.Decimal) decimal.Decimal {
	one := decimal.NewFromInt(1)
	if !ratio.IsPositive() {
		ratio = one
	}
	if !trigger.ThresholdPct.IsPositive() {
		// A zero threshold means any move is a full breach.
		return one
	}
	scale := trigger.DeltaPct.Abs().Div(trigger.ThresholdPct).Mul(ratio)
	if scale.GreaterThan(one) {
		return one
	}
	return scale
}

// ValidateAfterFill is the post-trade sanity check. It reports whether the
// actual fill left the allocation outside the configured band (slippage can do
// this). Detection only: the trade already executed and there is no
// compensating transaction, so callers log the violation rather than roll
// back.
func ValidateAfterFill(pos domain.PositionState, price decimal.Decimal, cfg domain.GuardrailConfig) (bool, string) {
	alloc := pos.Allocation(price)
	if alloc.GreaterThan(cfg.MaxStockPct) {
		return true, domain.ReasonAboveMaxAlloc
	}
	if alloc.LessThan(cfg.MinStockPct) {
		return true, domain.ReasonBelowMinAlloc
	}
	return false, ""
}

// Package engine contains the pure decision functions of the rebalancer:
// trigger evaluation, guardrail evaluation, order sizing, and layered config
// resolution. Nothing in this package performs I/O except the Resolver, which
// only reads the config store; the evaluators are deterministic, which is what
// lets the live and simulated orchestrators share identical behavior.
package engine

import (
	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/anchorbot/internal/domain"
)

// EvaluateTrigger compares the current price against the position's anchor.
// Without an anchor (absent or zero) it never fires. A drop of at least
// DownThresholdPct fires BUY (buy the dip); a rise of at least UpThresholdPct
// fires SELL. Boundary values fire.
func EvaluateTrigger(price decimal.Decimal, pos domain.PositionState, cfg domain.TriggerConfig) domain.TriggerDecision {
	anchor, ok := pos.Anchor()
	if !ok {
		return domain.TriggerDecision{
			Fired:     false,
			Direction: domain.DirectionNone,
			Reason:    domain.ReasonNoAnchor,
		}
	}

	delta := price.Sub(anchor).Div(anchor)

	switch {
	case delta.LessThanOrEqual(cfg.DownThresholdPct.Neg()):
		return domain.TriggerDecision{
			Fired:        true,
			Direction:    domain.DirectionBuy,
			Reason:       domain.ReasonBelowThreshold,
			DeltaPct:     delta,
			ThresholdPct: cfg.DownThresholdPct,
		}
	case delta.GreaterThanOrEqual(cfg.UpThresholdPct):
		return domain.TriggerDecision{
			Fired:        true,
			Direction:    domain.DirectionSell,
			Reason:       domain.ReasonAboveThreshold,
			DeltaPct:     delta,
			ThresholdPct: cfg.UpThresholdPct,
		}
	default:
		return domain.TriggerDecision{
			Fired:     false,
			Direction: domain.DirectionNone,
			Reason:    domain.ReasonWithinBand,
			DeltaPct:  delta,
		}
	}
}

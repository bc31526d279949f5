package domain

import "github.com/shopspring/decimal"

// Direction is the side of a proposed or executed trade.
type Direction string

const (
	DirectionBuy  Direction = "BUY"
	DirectionSell Direction = "SELL"
	DirectionNone Direction = "NONE"
)

// Decision reason codes. Rejections by policy are decisions with a reason,
// never errors.
const (
	ReasonNoAnchor          = "NO_ANCHOR"
	ReasonWithinBand        = "WITHIN_BAND"
	ReasonBelowThreshold    = "BELOW_THRESHOLD"
	ReasonAboveThreshold    = "ABOVE_THRESHOLD"
	ReasonAboveMaxAlloc     = "ABOVE_MAX_ALLOCATION"
	ReasonBelowMinAlloc     = "BELOW_MIN_ALLOCATION"
	ReasonInsufficientCash  = "INSUFFICIENT_CASH"
	ReasonInsufficientStock = "INSUFFICIENT_SHARES"
	ReasonBelowMinQuantity  = "BELOW_MIN_QUANTITY"
	ReasonBelowMinNotional  = "BELOW_MIN_NOTIONAL"
	ReasonMaxDailyNotional  = "MAX_DAILY_NOTIONAL"
	ReasonMaxOrdersPerDay   = "MAX_ORDERS_PER_DAY"
	ReasonMarketClosed      = "MARKET_CLOSED"
	ReasonPositionBusy      = "POSITION_BUSY"
	ReasonSized             = "SIZED"
)

// TriggerDecision is the outcome of evaluating a quote against the anchor.
// It lives for one cycle only and is never persisted directly; the event
// trail records it instead.
type TriggerDecision struct {
	Fired     bool
	Direction Direction
	Reason    string
	// DeltaPct is (price - anchor) / anchor. Zero when no anchor is set.
	DeltaPct decimal.Decimal
	// ThresholdPct is the threshold that fired (down for BUY, up for SELL),
	// carried along so downstream sizing can measure the breach.
	ThresholdPct decimal.Decimal
}

// TradeIntent is a sized but not yet order-policy-rounded trade proposal.
type TradeIntent struct {
	PositionID string
	Ticker     string
	Side       Direction
	// Quantity is the raw quantity estimate before lot/step rounding.
	Quantity decimal.Decimal
	// Price is the quote the intent was sized against.
	Price decimal.Decimal
	// Notional is Quantity * Price, the pre-rounding notional estimate.
	Notional decimal.Decimal
}

// GuardrailDecision is the outcome of the pre-trade allocation check. When
// blocked, Intent is nil.
type GuardrailDecision struct {
	Allowed bool
	Reason  string
	Intent  *TradeIntent
	// Allocation is the stock allocation observed at evaluation time.
	Allocation decimal.Decimal
}

// DayUsage aggregates a position's order activity for the current day, used to
// enforce the optional daily guardrail limits. It is computed by the caller so
// the evaluator stays pure.
type DayUsage struct {
	Orders   int
	Notional decimal.Decimal
}

package domain

import "github.com/shopspring/decimal"

// TriggerConfig holds the threshold percentages, expressed as fractions
// (0.03 = 3%), relative to the anchor price. Resolved fresh each cycle and
// immutable for its duration.
type TriggerConfig struct {
	UpThresholdPct   decimal.Decimal
	DownThresholdPct decimal.Decimal
}

// GuardrailConfig holds the allocation band and trade-size limits. The daily
// limits are optional; nil disables them.
type GuardrailConfig struct {
	MinStockPct           decimal.Decimal
	MaxStockPct           decimal.Decimal
	MaxTradePctOfPosition decimal.Decimal
	MaxDailyNotional      *decimal.Decimal
	MaxOrdersPerDay       *int
}

// BelowMinAction decides what happens to a trade that rounds below the
// configured minimums.
type BelowMinAction string

const (
	// BelowMinHold silently drops the trade; the cycle ends without an order.
	BelowMinHold BelowMinAction = "hold"
	// BelowMinReject records an explicitly rejected order.
	BelowMinReject BelowMinAction = "reject"
)

// OrderPolicyConfig holds rounding and minimum rules applied when turning a
// trade intent into an order.
type OrderPolicyConfig struct {
	MinQuantity    decimal.Decimal
	MinNotional    decimal.Decimal
	LotSize        decimal.Decimal
	QuantityStep   decimal.Decimal
	ActionBelowMin BelowMinAction
	// RebalanceRatio scales how aggressively a threshold breach maps into
	// order size. 1 means a breach at exactly the threshold already sizes
	// the full MaxTradePctOfPosition fraction.
	RebalanceRatio  decimal.Decimal
	AllowAfterHours bool
	// CommissionRateOverride, when non-nil, beats the commission-rate
	// precedence chain.
	CommissionRateOverride *decimal.Decimal
}

// ConfigScope identifies where a configuration value applies. Lookups walk
// scopes from most to least specific; empty fields widen the scope.
type ConfigScope struct {
	PositionID string
	TenantID   string
	AssetID    string
}

// Global reports whether the scope is the catch-all default.
func (s ConfigScope) Global() bool {
	return s.PositionID == "" && s.TenantID == "" && s.AssetID == ""
}

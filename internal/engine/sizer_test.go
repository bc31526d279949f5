package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/alanyoungcy/anchorbot/internal/domain"
)

func intent(qty, price string) domain.TradeIntent {
	q, p := dec(qty), dec(price)
	return domain.TradeIntent{
		PositionID: "p",
		Ticker:     "SPY",
		Side:       domain.DirectionBuy,
		Quantity:   q,
		Price:      p,
		Notional:   q.Mul(p),
	}
}

func TestSizeOrder_Rounding(t *testing.T) {
	policy := domain.OrderPolicyConfig{
		MinQuantity:    dec("1"),
		QuantityStep:   dec("0.5"),
		ActionBelowMin: domain.BelowMinHold,
	}

	s := SizeOrder(intent("10.74", "100"), policy)
	assert.True(t, s.OK)
	assert.True(t, s.Quantity.Equal(dec("10.5")), "quantity %s", s.Quantity)
	assert.True(t, s.Notional.Equal(dec("1050")), "notional %s", s.Notional)

	// Whole lots floor after the step rounding.
	policy.LotSize = dec("10")
	s = SizeOrder(intent("27.3", "100"), policy)
	assert.True(t, s.OK)
	assert.True(t, s.Quantity.Equal(dec("20")), "quantity %s", s.Quantity)
}

func TestSizeOrder_HoldBelowMinimum(t *testing.T) {
	policy := domain.OrderPolicyConfig{
		MinQuantity:    dec("5"),
		LotSize:        dec("1"),
		ActionBelowMin: domain.BelowMinHold,
	}

	s := SizeOrder(intent("3.9", "100"), policy)
	assert.False(t, s.OK)
	assert.True(t, s.Held)
	assert.Equal(t, domain.ReasonBelowMinQuantity, s.Reason)
}

func TestSizeOrder_RejectBelowMinimum(t *testing.T) {
	policy := domain.OrderPolicyConfig{
		MinQuantity:    dec("1"),
		MinNotional:    dec("500"),
		LotSize:        dec("1"),
		ActionBelowMin: domain.BelowMinReject,
	}

	s := SizeOrder(intent("3", "100"), policy)
	assert.False(t, s.OK)
	assert.False(t, s.Held)
	assert.Equal(t, domain.ReasonBelowMinNotional, s.Reason)
}

func TestSizeOrder_RoundingCanPushBelowMinimum(t *testing.T) {
	policy := domain.OrderPolicyConfig{
		MinQuantity:    dec("10"),
		LotSize:        dec("10"),
		ActionBelowMin: domain.BelowMinHold,
	}

	// 10.2 raw survives the minimum but floors to 10, still OK.
	s := SizeOrder(intent("10.2", "100"), policy)
	assert.True(t, s.OK)
	assert.True(t, s.Quantity.Equal(dec("10")))

	// 9.9 raw floors to zero lots.
	s = SizeOrder(intent("9.9", "100"), policy)
	assert.False(t, s.OK)
	assert.True(t, s.Held)
	assert.Equal(t, domain.ReasonBelowMinQuantity, s.Reason)
}

func TestEffectiveCommissionRate(t *testing.T) {
	rate := EffectiveCommissionRate(dec("2.5"), dec("1000"))
	assert.True(t, rate.Equal(dec("0.0025")), "rate %s", rate)

	assert.True(t, EffectiveCommissionRate(dec("1"), dec("0")).IsZero())
}

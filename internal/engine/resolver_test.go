package engine

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/anchorbot/internal/domain"
	"github.com/alanyoungcy/anchorbot/internal/store/memory"
)

func testDefaults() Defaults {
	return Defaults{
		Trigger: domain.TriggerConfig{
			UpThresholdPct:   dec("0.03"),
			DownThresholdPct: dec("0.03"),
		},
		Guardrail: domain.GuardrailConfig{
			MinStockPct:           dec("0.25"),
			MaxStockPct:           dec("0.75"),
			MaxTradePctOfPosition: dec("0.10"),
		},
		OrderPolicy: domain.OrderPolicyConfig{
			MinQuantity:    dec("1"),
			LotSize:        dec("1"),
			ActionBelowMin: domain.BelowMinHold,
			RebalanceRatio: dec("1"),
		},
		CommissionRate: dec("0.001"),
	}
}

func testPosition() domain.PositionState {
	return domain.PositionState{
		ID:       "pos-1",
		TenantID: "tenant-a",
		Ticker:   "SPY",
	}
}

func TestResolver_FallsBackToDefaults(t *testing.T) {
	r := NewResolver(memory.NewConfigStore(), testDefaults())
	ctx := context.Background()
	pos := testPosition()

	trig, err := r.TriggerConfig(ctx, pos)
	require.NoError(t, err)
	assert.True(t, trig.UpThresholdPct.Equal(dec("0.03")))

	guard, err := r.GuardrailConfig(ctx, pos)
	require.NoError(t, err)
	assert.True(t, guard.MaxStockPct.Equal(dec("0.75")))

	policy, err := r.OrderPolicy(ctx, pos)
	require.NoError(t, err)
	assert.Equal(t, domain.BelowMinHold, policy.ActionBelowMin)

	rate, err := r.CommissionRate(ctx, pos, policy)
	require.NoError(t, err)
	assert.True(t, rate.Equal(dec("0.001")))
}

func TestResolver_MostSpecificScopeWins(t *testing.T) {
	store := memory.NewConfigStore()
	ctx := context.Background()
	pos := testPosition()

	store.SetTriggerConfig(domain.ConfigScope{}, domain.TriggerConfig{
		UpThresholdPct: dec("0.10"), DownThresholdPct: dec("0.10"),
	})
	store.SetTriggerConfig(domain.ConfigScope{TenantID: "tenant-a"}, domain.TriggerConfig{
		UpThresholdPct: dec("0.05"), DownThresholdPct: dec("0.05"),
	})
	store.SetTriggerConfig(domain.ConfigScope{TenantID: "tenant-a", AssetID: "SPY"}, domain.TriggerConfig{
		UpThresholdPct: dec("0.04"), DownThresholdPct: dec("0.04"),
	})
	store.SetTriggerConfig(domain.ConfigScope{PositionID: "pos-1"}, domain.TriggerConfig{
		UpThresholdPct: dec("0.02"), DownThresholdPct: dec("0.02"),
	})

	r := NewResolver(store, testDefaults())

	trig, err := r.TriggerConfig(ctx, pos)
	require.NoError(t, err)
	assert.True(t, trig.UpThresholdPct.Equal(dec("0.02")), "position scope wins, got %s", trig.UpThresholdPct)

	// A position without its own row falls to tenant+asset.
	other := pos
	other.ID = "pos-2"
	trig, err = r.TriggerConfig(ctx, other)
	require.NoError(t, err)
	assert.True(t, trig.UpThresholdPct.Equal(dec("0.04")))

	// A different asset of the same tenant falls to the tenant row.
	other.Ticker = "QQQ"
	trig, err = r.TriggerConfig(ctx, other)
	require.NoError(t, err)
	assert.True(t, trig.UpThresholdPct.Equal(dec("0.05")))

	// A foreign tenant falls through to the global row.
	other.TenantID = "tenant-b"
	trig, err = r.TriggerConfig(ctx, other)
	require.NoError(t, err)
	assert.True(t, trig.UpThresholdPct.Equal(dec("0.10")))
}

func TestResolver_CommissionPrecedence(t *testing.T) {
	store := memory.NewConfigStore()
	ctx := context.Background()
	pos := testPosition()
	r := NewResolver(store, testDefaults())

	// Nothing stored: process default.
	rate, err := r.CommissionRate(ctx, pos, domain.OrderPolicyConfig{})
	require.NoError(t, err)
	assert.True(t, rate.Equal(dec("0.001")))

	// Global stored rate beats the default.
	store.SetCommissionRate("", "", dec("0.002"))
	rate, err = r.CommissionRate(ctx, pos, domain.OrderPolicyConfig{})
	require.NoError(t, err)
	assert.True(t, rate.Equal(dec("0.002")))

	// Tenant rate beats global.
	store.SetCommissionRate("tenant-a", "", dec("0.003"))
	rate, err = r.CommissionRate(ctx, pos, domain.OrderPolicyConfig{})
	require.NoError(t, err)
	assert.True(t, rate.Equal(dec("0.003")))

	// Tenant+asset rate beats tenant.
	store.SetCommissionRate("tenant-a", "SPY", dec("0.004"))
	rate, err = r.CommissionRate(ctx, pos, domain.OrderPolicyConfig{})
	require.NoError(t, err)
	assert.True(t, rate.Equal(dec("0.004")))

	// A policy override beats everything.
	override := dec("0.005")
	rate, err = r.CommissionRate(ctx, pos, domain.OrderPolicyConfig{CommissionRateOverride: &override})
	require.NoError(t, err)
	assert.True(t, rate.Equal(dec("0.005")))
}

func TestResolver_CommissionAdapter(t *testing.T) {
	store := memory.NewConfigStore()
	store.SetCommissionRate("tenant-a", "SPY", dec("0.004"))
	r := NewResolver(store, testDefaults())

	rate, err := r.Commission().Resolve(context.Background(), "tenant-a", "SPY")
	require.NoError(t, err)
	assert.True(t, rate.Equal(dec("0.004")))

	rate, err = r.Commission().Resolve(context.Background(), "tenant-b", "QQQ")
	require.NoError(t, err)
	assert.True(t, rate.Equal(dec("0.001")), "falls through to default")
}

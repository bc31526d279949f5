package engine

import (
	"context"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/anchorbot/internal/domain"
)

// Defaults are the process-wide fallback parameters used when no stored
// configuration matches any scope in the precedence chain.
type Defaults struct {
	Trigger        domain.TriggerConfig
	Guardrail      domain.GuardrailConfig
	OrderPolicy    domain.OrderPolicyConfig
	CommissionRate decimal.Decimal
}

// Resolver walks a fixed precedence list of configuration scopes: the
// position itself, then tenant+asset, then tenant, then the global store
// scope, then the process defaults. First match wins. Config lookups fall
// through the chain rather than failing; only storage errors propagate.
type Resolver struct {
	store    domain.ConfigStore
	defaults Defaults
}

// NewResolver creates a Resolver over the given store and fallback defaults.
func NewResolver(store domain.ConfigStore, defaults Defaults) *Resolver {
	return &Resolver{store: store, defaults: defaults}
}

// scopes returns the precedence chain for a position, most specific first.
func scopes(pos domain.PositionState) []domain.ConfigScope {
	return []domain.ConfigScope{
		{PositionID: pos.ID},
		{TenantID: pos.TenantID, AssetID: pos.Ticker},
		{TenantID: pos.TenantID},
		{},
	}
}

// TriggerConfig resolves the trigger thresholds for a position.
func (r *Resolver) TriggerConfig(ctx context.Context, pos domain.PositionState) (domain.TriggerConfig, error) {
	for _, scope := range scopes(pos) {
		cfg, err := r.store.GetTriggerConfig(ctx, scope)
		if errors.Is(err, domain.ErrNotFound) {
			continue
		}
		if err != nil {
			return domain.TriggerConfig{}, fmt.Errorf("engine: resolve trigger config: %w", err)
		}
		return cfg, nil
	}
	return r.defaults.Trigger, nil
}

// GuardrailConfig resolves the allocation band and trade limits for a position.
func (r *Resolver) GuardrailConfig(ctx context.Context, pos domain.PositionState) (domain.GuardrailConfig, error) {
	for _, scope := range scopes(pos) {
		cfg, err := r.store.GetGuardrailConfig(ctx, scope)
		if errors.Is(err, domain.ErrNotFound) {
			continue
		}
		if err != nil {
			return domain.GuardrailConfig{}, fmt.Errorf("engine: resolve guardrail config: %w", err)
		}
		return cfg, nil
	}
	return r.defaults.Guardrail, nil
}

// OrderPolicy resolves the rounding and minimum rules for a position.
func (r *Resolver) OrderPolicy(ctx context.Context, pos domain.PositionState) (domain.OrderPolicyConfig, error) {
	for _, scope := range scopes(pos) {
		cfg, err := r.store.GetOrderPolicy(ctx, scope)
		if errors.Is(err, domain.ErrNotFound) {
			continue
		}
		if err != nil {
			return domain.OrderPolicyConfig{}, fmt.Errorf("engine: resolve order policy: %w", err)
		}
		return cfg, nil
	}
	return r.defaults.OrderPolicy, nil
}

// CommissionRate resolves a commission rate with precedence: order-policy
// override, tenant+asset rate, tenant rate, global stored rate, process
// default.
func (r *Resolver) CommissionRate(ctx context.Context, pos domain.PositionState, policy domain.OrderPolicyConfig) (decimal.Decimal, error) {
	if policy.CommissionRateOverride != nil {
		return *policy.CommissionRateOverride, nil
	}

	lookups := [][2]string{
		{pos.TenantID, pos.Ticker},
		{pos.TenantID, ""},
		{"", ""},
	}
	for _, l := range lookups {
		rate, err := r.store.GetCommissionRate(ctx, l[0], l[1])
		if errors.Is(err, domain.ErrNotFound) {
			continue
		}
		if err != nil {
			return decimal.Zero, fmt.Errorf("engine: resolve commission rate: %w", err)
		}
		return rate, nil
	}
	return r.defaults.CommissionRate, nil
}

// Compile-time interface check.
var _ domain.CommissionResolver = commissionAdapter{}

// commissionAdapter exposes the resolver's commission precedence through the
// narrow domain.CommissionResolver interface for callers that have no
// position in hand (reporting, dividends).
type commissionAdapter struct{ r *Resolver }

// Commission returns a domain.CommissionResolver view of the resolver.
func (r *Resolver) Commission() domain.CommissionResolver {
	return commissionAdapter{r: r}
}

func (a commissionAdapter) Resolve(ctx context.Context, tenantID, assetID string) (decimal.Decimal, error) {
	pos := domain.PositionState{TenantID: tenantID, Ticker: assetID}
	return a.r.CommissionRate(ctx, pos, domain.OrderPolicyConfig{})
}

package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/anchorbot/internal/domain"
)

// ConfigStore implements domain.ConfigStore using PostgreSQL. Each lookup
// hits the exact scope row; the engine resolver walks the precedence chain.
type ConfigStore struct {
	pool *pgxpool.Pool
}

// NewConfigStore creates a ConfigStore backed by the given connection pool.
func NewConfigStore(pool *pgxpool.Pool) *ConfigStore {
	return &ConfigStore{pool: pool}
}

// GetTriggerConfig returns the trigger thresholds stored for the exact scope.
func (s *ConfigStore) GetTriggerConfig(ctx context.Context, scope domain.ConfigScope) (domain.TriggerConfig, error) {
	var up, down string
	err := s.pool.QueryRow(ctx,
		`SELECT up_threshold_pct::text, down_threshold_pct::text FROM trigger_configs
		 WHERE position_id = $1 AND tenant_id = $2 AND asset_id = $3`,
		scope.PositionID, scope.TenantID, scope.AssetID,
	).Scan(&up, &down)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.TriggerConfig{}, domain.ErrNotFound
		}
		return domain.TriggerConfig{}, fmt.Errorf("postgres: get trigger config: %w", err)
	}

	var cfg domain.TriggerConfig
	if cfg.UpThresholdPct, err = parseDecimal(up); err != nil {
		return domain.TriggerConfig{}, err
	}
	if cfg.DownThresholdPct, err = parseDecimal(down); err != nil {
		return domain.TriggerConfig{}, err
	}
	return cfg, nil
}

// GetGuardrailConfig returns the guardrail parameters stored for the exact scope.
func (s *ConfigStore) GetGuardrailConfig(ctx context.Context, scope domain.ConfigScope) (domain.GuardrailConfig, error) {
	var minPct, maxPct, maxTrade string
	var maxDaily *string
	var maxOrders *int
	err := s.pool.QueryRow(ctx,
		`SELECT min_stock_pct::text, max_stock_pct::text, max_trade_pct_of_position::text,
		        max_daily_notional::text, max_orders_per_day
		 FROM guardrail_configs
		 WHERE position_id = $1 AND tenant_id = $2 AND asset_id = $3`,
		scope.PositionID, scope.TenantID, scope.AssetID,
	).Scan(&minPct, &maxPct, &maxTrade, &maxDaily, &maxOrders)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.GuardrailConfig{}, domain.ErrNotFound
		}
		return domain.GuardrailConfig{}, fmt.Errorf("postgres: get guardrail config: %w", err)
	}

	var cfg domain.GuardrailConfig
	if cfg.MinStockPct, err = parseDecimal(minPct); err != nil {
		return domain.GuardrailConfig{}, err
	}
	if cfg.MaxStockPct, err = parseDecimal(maxPct); err != nil {
		return domain.GuardrailConfig{}, err
	}
	if cfg.MaxTradePctOfPosition, err = parseDecimal(maxTrade); err != nil {
		return domain.GuardrailConfig{}, err
	}
	if cfg.MaxDailyNotional, err = parseDecimalPtr(maxDaily); err != nil {
		return domain.GuardrailConfig{}, err
	}
	cfg.MaxOrdersPerDay = maxOrders
	return cfg, nil
}

// GetOrderPolicy returns the order policy stored for the exact scope.
func (s *ConfigStore) GetOrderPolicy(ctx context.Context, scope domain.ConfigScope) (domain.OrderPolicyConfig, error) {
	var minQty, minNotional, lotSize, qtyStep, ratio string
	var action string
	var allowAfterHours bool
	var commOverride *string
	err := s.pool.QueryRow(ctx,
		`SELECT min_quantity::text, min_notional::text, lot_size::text, quantity_step::text,
		        action_below_min, rebalance_ratio::text, allow_after_hours, commission_rate_override::text
		 FROM order_policies
		 WHERE position_id = $1 AND tenant_id = $2 AND asset_id = $3`,
		scope.PositionID, scope.TenantID, scope.AssetID,
	).Scan(&minQty, &minNotional, &lotSize, &qtyStep, &action, &ratio, &allowAfterHours, &commOverride)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.OrderPolicyConfig{}, domain.ErrNotFound
		}
		return domain.OrderPolicyConfig{}, fmt.Errorf("postgres: get order policy: %w", err)
	}

	var cfg domain.OrderPolicyConfig
	if cfg.MinQuantity, err = parseDecimal(minQty); err != nil {
		return domain.OrderPolicyConfig{}, err
	}
	if cfg.MinNotional, err = parseDecimal(minNotional); err != nil {
		return domain.OrderPolicyConfig{}, err
	}
	if cfg.LotSize, err = parseDecimal(lotSize); err != nil {
		return domain.OrderPolicyConfig{}, err
	}
	if cfg.QuantityStep, err = parseDecimal(qtyStep); err != nil {
		return domain.OrderPolicyConfig{}, err
	}
	if cfg.RebalanceRatio, err = parseDecimal(ratio); err != nil {
		return domain.OrderPolicyConfig{}, err
	}
	if cfg.CommissionRateOverride, err = parseDecimalPtr(commOverride); err != nil {
		return domain.OrderPolicyConfig{}, err
	}
	cfg.ActionBelowMin = domain.BelowMinAction(action)
	cfg.AllowAfterHours = allowAfterHours
	return cfg, nil
}

// GetCommissionRate returns the rate stored for the exact tenant/asset pair.
func (s *ConfigStore) GetCommissionRate(ctx context.Context, tenantID, assetID string) (decimal.Decimal, error) {
	var rate string
	err := s.pool.QueryRow(ctx,
		`SELECT rate::text FROM commission_rates WHERE tenant_id = $1 AND asset_id = $2`,
		tenantID, assetID,
	).Scan(&rate)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return decimal.Zero, domain.ErrNotFound
		}
		return decimal.Zero, fmt.Errorf("postgres: get commission rate: %w", err)
	}
	return parseDecimal(rate)
}

package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/anchorbot/internal/domain"
)

// ConfigStore implements domain.ConfigStore in memory. Values are keyed by
// exact scope; the precedence walk lives in the engine resolver, not here.
type ConfigStore struct {
	mu          sync.RWMutex
	triggers    map[domain.ConfigScope]domain.TriggerConfig
	guardrails  map[domain.ConfigScope]domain.GuardrailConfig
	policies    map[domain.ConfigScope]domain.OrderPolicyConfig
	commissions map[[2]string]decimal.Decimal
}

// NewConfigStore creates an empty ConfigStore.
func NewConfigStore() *ConfigStore {
	return &ConfigStore{
		triggers:    make(map[domain.ConfigScope]domain.TriggerConfig),
		guardrails:  make(map[domain.ConfigScope]domain.GuardrailConfig),
		policies:    make(map[domain.ConfigScope]domain.OrderPolicyConfig),
		commissions: make(map[[2]string]decimal.Decimal),
	}
}

// SetTriggerConfig stores thresholds for a scope.
func (s *ConfigStore) SetTriggerConfig(scope domain.ConfigScope, cfg domain.TriggerConfig) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.triggers[scope] = cfg
}

// SetGuardrailConfig stores a guardrail band for a scope.
func (s *ConfigStore) SetGuardrailConfig(scope domain.ConfigScope, cfg domain.GuardrailConfig) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.guardrails[scope] = cfg
}

// SetOrderPolicy stores an order policy for a scope.
func (s *ConfigStore) SetOrderPolicy(scope domain.ConfigScope, cfg domain.OrderPolicyConfig) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.policies[scope] = cfg
}

// SetCommissionRate stores a rate for a tenant/asset pair. Either id may be
// empty for broader scopes.
func (s *ConfigStore) SetCommissionRate(tenantID, assetID string, rate decimal.Decimal) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.commissions[[2]string{tenantID, assetID}] = rate
}

// GetTriggerConfig implements domain.ConfigStore.
func (s *ConfigStore) GetTriggerConfig(_ context.Context, scope domain.ConfigScope) (domain.TriggerConfig, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	cfg, ok := s.triggers[scope]
	if !ok {
		return domain.TriggerConfig{}, fmt.Errorf("memory: trigger config %+v: %w", scope, domain.ErrNotFound)
	}
	return cfg, nil
}

// GetGuardrailConfig implements domain.ConfigStore.
func (s *ConfigStore) GetGuardrailConfig(_ context.Context, scope domain.ConfigScope) (domain.GuardrailConfig, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	cfg, ok := s.guardrails[scope]
	if !ok {
		return domain.GuardrailConfig{}, fmt.Errorf("memory: guardrail config %+v: %w", scope, domain.ErrNotFound)
	}
	return cfg, nil
}

// GetOrderPolicy implements domain.ConfigStore.
func (s *ConfigStore) GetOrderPolicy(_ context.Context, scope domain.ConfigScope) (domain.OrderPolicyConfig, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	cfg, ok := s.policies[scope]
	if !ok {
		return domain.OrderPolicyConfig{}, fmt.Errorf("memory: order policy %+v: %w", scope, domain.ErrNotFound)
	}
	return cfg, nil
}

// GetCommissionRate implements domain.ConfigStore.
func (s *ConfigStore) GetCommissionRate(_ context.Context, tenantID, assetID string) (decimal.Decimal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rate, ok := s.commissions[[2]string{tenantID, assetID}]
	if !ok {
		return decimal.Zero, fmt.Errorf("memory: commission rate %s/%s: %w", tenantID, assetID, domain.ErrNotFound)
	}
	return rate, nil
}

// Compile-time interface check.
var _ domain.ConfigStore = (*ConfigStore)(nil)

package model

import "time"

// CircuitState is the breaker position of a provider for one tenant.
type CircuitState string

const (
	CircuitClosed   CircuitState = "closed"
	CircuitOpen     CircuitState = "open"
	CircuitHalfOpen CircuitState = "half_open"
)

// ProviderHealth is the persisted circuit breaker record for one
// (tenant, provider). It is never deleted.
type ProviderHealth struct {
	TenantID        string       `json:"tenant_id"`
	ProviderID      string       `json:"provider_id"`
	SuccessCount    int64        `json:"success_count"`
	FailureCount    int64        `json:"failure_count"`
	LastSuccessAt   *time.Time   `json:"last_success_at,omitempty"`
	LastFailureAt   *time.Time   `json:"last_failure_at,omitempty"`
	CircuitState    CircuitState `json:"circuit_state"`
	CircuitOpenedAt *time.Time   `json:"circuit_opened_at,omitempty"`
	UpdatedAt       time.Time    `json:"updated_at"`
}

// NewProviderHealth returns the lazily created closed record.
func NewProviderHealth(tenantID, providerID string, now time.Time) ProviderHealth {
	return ProviderHealth{
		TenantID:     tenantID,
		ProviderID:   providerID,
		CircuitState: CircuitClosed,
		UpdatedAt:    now,
	}
}

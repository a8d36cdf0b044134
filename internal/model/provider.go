package model

import (
	"slices"
	"time"
)

// EnrichmentProvider is a registry entry describing an external data vendor.
// Disabled providers stay in the catalog so their history is preserved.
type EnrichmentProvider struct {
	ID              string         `json:"id"`
	TenantID        string         `json:"tenant_id,omitempty"` // empty = global catalog entry
	Name            string         `json:"name"`
	Type            string         `json:"type"`
	SupportedFields []string       `json:"supported_fields"`
	Priority        int            `json:"priority"`
	CostPerLookup   float64        `json:"cost_per_lookup"`
	AvgLatencyMs    float64        `json:"avg_latency_ms"`
	SuccessRate     float64        `json:"success_rate"`
	SupportsBatch   bool           `json:"supports_batch"`
	Config          map[string]any `json:"config,omitempty"`
	Enabled         bool           `json:"enabled"`
	CreatedAt       time.Time      `json:"created_at"`
	UpdatedAt       time.Time      `json:"updated_at"`
}

// NewProvider builds a provider entry and checks its invariants. New
// providers start enabled with a neutral success rate.
func NewProvider(id, name, typ string, fields []string, costPerLookup float64, now time.Time) (EnrichmentProvider, error) {
	p := EnrichmentProvider{
		ID:              id,
		Name:            name,
		Type:            typ,
		SupportedFields: fields,
		CostPerLookup:   costPerLookup,
		SuccessRate:     1,
		Enabled:         true,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if err := p.Validate(); err != nil {
		return EnrichmentProvider{}, err
	}
	return p, nil
}

// Validate checks the provider invariants.
func (p EnrichmentProvider) Validate() error {
	var verr ValidationErrors
	if p.ID == "" {
		verr.Add("id", "required")
	}
	if p.Name == "" {
		verr.Add("name", "required")
	}
	if p.CostPerLookup < 0 {
		verr.Add("cost_per_lookup", "must be non-negative")
	}
	if p.SuccessRate < 0 || p.SuccessRate > 1 {
		verr.Add("success_rate", "must be between 0 and 1")
	}
	for _, f := range p.SupportedFields {
		if !IsKnownField(f) {
			verr.Add("supported_fields", "unknown field "+f)
		}
	}
	return verr.Err()
}

// SupportsField reports whether field is in the provider's supported set.
func (p EnrichmentProvider) SupportsField(field string) bool {
	return slices.Contains(p.SupportedFields, field)
}

// Disable excludes the provider from all waterfalls on their next evaluation.
func (p *EnrichmentProvider) Disable(now time.Time) {
	p.Enabled = false
	p.UpdatedAt = now
}

// Enable puts a disabled provider back into rotation.
func (p *EnrichmentProvider) Enable(now time.Time) {
	p.Enabled = true
	p.UpdatedAt = now
}

// ObserveCall folds one call outcome into the rolling latency and success
// statistics using an exponential moving average with weight alpha.
func (p *EnrichmentProvider) ObserveCall(latencyMs int64, success bool, alpha float64, now time.Time) {
	hit := 0.0
	if success {
		hit = 1
	}
	if p.AvgLatencyMs == 0 {
		p.AvgLatencyMs = float64(latencyMs)
	} else {
		p.AvgLatencyMs = alpha*float64(latencyMs) + (1-alpha)*p.AvgLatencyMs
	}
	p.SuccessRate = alpha*hit + (1-alpha)*p.SuccessRate
	p.UpdatedAt = now
}

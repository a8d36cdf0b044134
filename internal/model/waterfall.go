package model

import "time"

// Hard-coded waterfall policy defaults, applied when a tenant has no config
// for a field.
const (
	DefaultMaxAttempts   = 3
	DefaultTimeoutMs     = 5000
	DefaultMinConfidence = 0.5
	DefaultCacheTTLDays  = 7

	MinTimeoutMs = 100
)

// WaterfallConfig is the enrichment policy for one (tenant, field).
type WaterfallConfig struct {
	TenantID       string    `json:"tenant_id" yaml:"-"`
	Field          string    `json:"field" yaml:"-"`
	ProviderOrder  []string  `json:"provider_order" yaml:"providers"`
	MaxAttempts    int       `json:"max_attempts" yaml:"max_attempts"`
	TimeoutMs      int       `json:"timeout_ms" yaml:"timeout_ms"`
	MinConfidence  float64   `json:"min_confidence" yaml:"min_confidence"`
	CacheTTLDays   int       `json:"cache_ttl_days" yaml:"cache_ttl_days"`
	MaxCostPerLead *float64  `json:"max_cost_per_lead,omitempty" yaml:"max_cost_per_lead,omitempty"`
	CreatedAt      time.Time `json:"created_at" yaml:"-"`
	UpdatedAt      time.Time `json:"updated_at" yaml:"-"`
}

// DefaultWaterfallConfig returns the zero-configuration policy for a field.
// Its provider order is empty; callers fill it from the registry or YAML.
func DefaultWaterfallConfig(tenantID, field string) WaterfallConfig {
	return WaterfallConfig{
		TenantID:      tenantID,
		Field:         field,
		MaxAttempts:   DefaultMaxAttempts,
		TimeoutMs:     DefaultTimeoutMs,
		MinConfidence: DefaultMinConfidence,
		CacheTTLDays:  DefaultCacheTTLDays,
	}
}

// NewWaterfallConfig builds a config and validates it.
func NewWaterfallConfig(tenantID, field string, order []string, maxAttempts, timeoutMs int, minConfidence float64, cacheTTLDays int, maxCostPerLead *float64) (WaterfallConfig, error) {
	c := WaterfallConfig{
		TenantID:       tenantID,
		Field:          field,
		ProviderOrder:  order,
		MaxAttempts:    maxAttempts,
		TimeoutMs:      timeoutMs,
		MinConfidence:  minConfidence,
		CacheTTLDays:   cacheTTLDays,
		MaxCostPerLead: maxCostPerLead,
	}
	if err := c.Validate(); err != nil {
		return WaterfallConfig{}, err
	}
	return c, nil
}

// Validate checks the policy bounds.
func (c WaterfallConfig) Validate() error {
	var verr ValidationErrors
	if c.Field == "" {
		verr.Add("field", "required")
	} else if !IsKnownField(c.Field) {
		verr.Add("field", "unknown field "+c.Field)
	}
	if c.MaxAttempts < 1 {
		verr.Add("max_attempts", "must be at least 1")
	}
	if c.TimeoutMs < MinTimeoutMs {
		verr.Add("timeout_ms", "must be at least 100")
	}
	if c.MinConfidence < 0 || c.MinConfidence > 1 {
		verr.Add("min_confidence", "must be between 0 and 1")
	}
	if c.CacheTTLDays < 0 {
		verr.Add("cache_ttl_days", "must be non-negative")
	}
	if c.MaxCostPerLead != nil && *c.MaxCostPerLead < 0 {
		verr.Add("max_cost_per_lead", "must be non-negative")
	}
	seen := make(map[string]bool, len(c.ProviderOrder))
	for _, id := range c.ProviderOrder {
		if id == "" {
			verr.Add("provider_order", "empty provider id")
			continue
		}
		if seen[id] {
			verr.Add("provider_order", "duplicate provider "+id)
		}
		seen[id] = true
	}
	return verr.Err()
}

// Usable reports whether the field can be enriched at all.
func (c WaterfallConfig) Usable() bool {
	return len(c.ProviderOrder) > 0
}

// Timeout returns the per-provider call budget.
func (c WaterfallConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutMs) * time.Millisecond
}

// CacheTTL returns the cache lifetime of an accepted value.
func (c WaterfallConfig) CacheTTL() time.Duration {
	return time.Duration(c.CacheTTLDays) * 24 * time.Hour
}

// Clone returns a deep copy so a job can snapshot the policy it runs with.
func (c WaterfallConfig) Clone() WaterfallConfig {
	out := c
	out.ProviderOrder = append([]string(nil), c.ProviderOrder...)
	if c.MaxCostPerLead != nil {
		v := *c.MaxCostPerLead
		out.MaxCostPerLead = &v
	}
	return out
}

package model

import "time"

// CacheEntry is a previously accepted value for (tenant, contact, field).
type CacheEntry struct {
	TenantID   string    `json:"tenant_id"`
	ContactID  string    `json:"contact_id"`
	Field      string    `json:"field"`
	Value      any       `json:"value"`
	Confidence float64   `json:"confidence"`
	ProviderID string    `json:"provider_id"`
	CachedAt   time.Time `json:"cached_at"`
	ExpiresAt  time.Time `json:"expires_at"`
}

// Expired reports whether the entry is past its TTL at now.
func (e CacheEntry) Expired(now time.Time) bool {
	return !now.Before(e.ExpiresAt)
}

// Package store persists contacts, the provider catalog, waterfall configs,
// provider health, jobs and cache entries.
package store

import (
	"context"
	"time"

	"github.com/sells-group/enrich-waterfall/internal/model"
)

// JobFilter specifies criteria for listing jobs. An empty TenantID matches
// every tenant and is meant for operator tooling only.
type JobFilter struct {
	TenantID     string          `json:"tenant_id"`
	ContactID    string          `json:"contact_id,omitempty"`
	Status       model.JobStatus `json:"status,omitempty"`
	CreatedAfter time.Time       `json:"created_after,omitempty"`
	Limit        int             `json:"limit,omitempty"`
	Offset       int             `json:"offset,omitempty"`
}

// DefaultListLimit caps ListJobs when no limit is given.
const DefaultListLimit = 100

// Store defines the persistence interface for the enrichment engine. Get
// methods return model.ErrNotFound for missing rows. Tenant "" holds global
// provider entries.
type Store interface {
	// Contacts
	GetContact(ctx context.Context, tenantID, id string) (*model.Contact, error)
	UpsertContact(ctx context.Context, c model.Contact) error
	UpsertContacts(ctx context.Context, cs []model.Contact) (int64, error)

	// Provider catalog
	ListProviders(ctx context.Context, tenantID string) ([]model.EnrichmentProvider, error)
	GetProvider(ctx context.Context, tenantID, id string) (*model.EnrichmentProvider, error)
	SaveProvider(ctx context.Context, p model.EnrichmentProvider) error
	UpdateProviderStats(ctx context.Context, tenantID, id string, avgLatencyMs, successRate float64) error

	// Waterfall configs
	GetWaterfallConfig(ctx context.Context, tenantID, field string) (*model.WaterfallConfig, error)
	SaveWaterfallConfig(ctx context.Context, cfg model.WaterfallConfig) error
	ListWaterfallConfigs(ctx context.Context, tenantID string) ([]model.WaterfallConfig, error)
	DeleteWaterfallConfig(ctx context.Context, tenantID, field string) error

	// Provider health
	GetHealth(ctx context.Context, tenantID, providerID string) (*model.ProviderHealth, error)
	SaveHealth(ctx context.Context, h model.ProviderHealth) error
	ListHealth(ctx context.Context, tenantID string) ([]model.ProviderHealth, error)

	// Jobs
	SaveJob(ctx context.Context, job *model.EnrichmentJob) error
	GetJob(ctx context.Context, tenantID, id string) (*model.EnrichmentJob, error)
	ListJobs(ctx context.Context, filter JobFilter) ([]model.EnrichmentJob, error)

	// Cache
	GetCacheEntry(ctx context.Context, tenantID, contactID, field string) (*model.CacheEntry, error)
	SetCacheEntry(ctx context.Context, e model.CacheEntry) error
	DeleteCacheEntries(ctx context.Context, tenantID, contactID, field string) error
	DeleteExpiredCache(ctx context.Context, now time.Time) (int64, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Ping(ctx context.Context) error
	Close() error
}

func effectiveLimit(n int) int {
	if n <= 0 {
		return DefaultListLimit
	}
	return n
}

package provider

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/enrich-waterfall/internal/model"
)

// StatsAlpha is the smoothing factor of the rolling latency and success rate.
const StatsAlpha = 0.2

// Skip reasons reported by Candidate.
const (
	SkipUnknown     = "unknown_provider"
	SkipDisabled    = "disabled"
	SkipUnsupported = "unsupported_field"
	SkipNoAdapter   = "no_adapter"
)

// CatalogStore persists provider catalog entries. Tenant "" holds the
// global entries; lookups are exact and return model.ErrNotFound when a row
// is missing.
type CatalogStore interface {
	ListProviders(ctx context.Context, tenantID string) ([]model.EnrichmentProvider, error)
	GetProvider(ctx context.Context, tenantID, id string) (*model.EnrichmentProvider, error)
	SaveProvider(ctx context.Context, p model.EnrichmentProvider) error
	UpdateProviderStats(ctx context.Context, tenantID, id string, avgLatencyMs, successRate float64) error
}

// Candidate is a provider eligible to serve a field.
type Candidate struct {
	Provider model.EnrichmentProvider
	Adapter  Adapter
}

// Registry joins the provider catalog with the registered adapters. A
// tenant entry overrides the global entry with the same id.
type Registry struct {
	catalog CatalogStore

	mu       sync.RWMutex
	adapters map[string]Adapter

	statsMu sync.Mutex
	nowFunc func() time.Time
}

// NewRegistry creates a registry over catalog with no adapters.
func NewRegistry(catalog CatalogStore) *Registry {
	return &Registry{
		catalog:  catalog,
		adapters: make(map[string]Adapter),
		nowFunc:  time.Now,
	}
}

// Register adds an adapter, replacing any adapter with the same id.
func (r *Registry) Register(a Adapter) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.adapters[a.ID()] = a
}

// Adapter returns the adapter for id, or nil.
func (r *Registry) Adapter(id string) Adapter {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.adapters[id]
}

// List returns the registered adapter ids, sorted.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]string, 0, len(r.adapters))
	for id := range r.adapters {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// ListAll returns the effective catalog for tenant, enabled or not, sorted
// by priority then id.
func (r *Registry) ListAll(ctx context.Context, tenantID string) ([]model.EnrichmentProvider, error) {
	global, err := r.catalog.ListProviders(ctx, "")
	if err != nil {
		return nil, eris.Wrap(err, "registry: list global providers")
	}
	merged := make(map[string]model.EnrichmentProvider, len(global))
	for _, p := range global {
		merged[p.ID] = p
	}
	if tenantID != "" {
		scoped, err := r.catalog.ListProviders(ctx, tenantID)
		if err != nil {
			return nil, eris.Wrapf(err, "registry: list providers for %s", tenantID)
		}
		for _, p := range scoped {
			merged[p.ID] = p
		}
	}

	out := make([]model.EnrichmentProvider, 0, len(merged))
	for _, p := range merged {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Priority != out[j].Priority {
			return out[i].Priority < out[j].Priority
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

// ListEnabled returns the enabled providers visible to tenant.
func (r *Registry) ListEnabled(ctx context.Context, tenantID string) ([]model.EnrichmentProvider, error) {
	all, err := r.ListAll(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	enabled := all[:0]
	for _, p := range all {
		if p.Enabled {
			enabled = append(enabled, p)
		}
	}
	return enabled, nil
}

// Get returns the provider entry for tenant, falling back to the global
// entry. It returns model.ErrNotFound when neither exists.
func (r *Registry) Get(ctx context.Context, tenantID, id string) (*model.EnrichmentProvider, error) {
	if tenantID != "" {
		p, err := r.catalog.GetProvider(ctx, tenantID, id)
		if err == nil {
			return p, nil
		}
		if !errors.Is(err, model.ErrNotFound) {
			return nil, eris.Wrapf(err, "registry: get %s for %s", id, tenantID)
		}
	}
	p, err := r.catalog.GetProvider(ctx, "", id)
	if err != nil {
		if errors.Is(err, model.ErrNotFound) {
			return nil, err
		}
		return nil, eris.Wrapf(err, "registry: get %s", id)
	}
	return p, nil
}

// Candidate resolves id for field. A non-empty skip reason means the
// provider must not be called; enabled state is read at call time so a
// disable applies to every waterfall on its next evaluation.
func (r *Registry) Candidate(ctx context.Context, tenantID, id, field string) (*Candidate, string, error) {
	p, err := r.Get(ctx, tenantID, id)
	if errors.Is(err, model.ErrNotFound) {
		return nil, SkipUnknown, nil
	}
	if err != nil {
		return nil, "", err
	}
	if !p.Enabled {
		return nil, SkipDisabled, nil
	}
	if !p.SupportsField(field) {
		return nil, SkipUnsupported, nil
	}
	a := r.Adapter(id)
	if a == nil {
		return nil, SkipNoAdapter, nil
	}
	return &Candidate{Provider: *p, Adapter: a}, "", nil
}

// SetEnabled toggles a provider for tenant. Toggling a global entry on
// behalf of a tenant writes a tenant-scoped override; tenant "" edits the
// global entry.
func (r *Registry) SetEnabled(ctx context.Context, tenantID, id string, enabled bool) (*model.EnrichmentProvider, error) {
	p, err := r.Get(ctx, tenantID, id)
	if err != nil {
		return nil, err
	}
	now := r.nowFunc()
	if enabled {
		p.Enable(now)
	} else {
		p.Disable(now)
	}
	if p.TenantID != tenantID {
		p.TenantID = tenantID
		p.CreatedAt = now
	}
	if err := r.catalog.SaveProvider(ctx, *p); err != nil {
		return nil, eris.Wrapf(err, "registry: save %s", id)
	}
	return p, nil
}

// Save validates and stores a catalog entry.
func (r *Registry) Save(ctx context.Context, p model.EnrichmentProvider) error {
	if err := p.Validate(); err != nil {
		return err
	}
	if err := r.catalog.SaveProvider(ctx, p); err != nil {
		return eris.Wrapf(err, "registry: save %s", p.ID)
	}
	return nil
}

// RecordCall folds one real call into the entry's rolling statistics.
func (r *Registry) RecordCall(ctx context.Context, tenantID, id string, latencyMs int64, success bool) error {
	r.statsMu.Lock()
	defer r.statsMu.Unlock()

	p, err := r.Get(ctx, tenantID, id)
	if err != nil {
		return err
	}
	p.ObserveCall(latencyMs, success, StatsAlpha, r.nowFunc())
	if err := r.catalog.UpdateProviderStats(ctx, p.TenantID, p.ID, p.AvgLatencyMs, p.SuccessRate); err != nil {
		return eris.Wrapf(err, "registry: update stats %s", id)
	}
	return nil
}

package store

import (
	"context"
	"encoding/json"
	"maps"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/enrich-waterfall/internal/model"
)

// MemoryStore implements Store in process memory. Jobs are stored as JSON
// so readers never share state with the orchestrator.
type MemoryStore struct {
	mu        sync.RWMutex
	contacts  map[[2]string]model.Contact
	providers map[[2]string]model.EnrichmentProvider
	configs   map[[2]string]model.WaterfallConfig
	health    map[[2]string]model.ProviderHealth
	jobs      map[[2]string][]byte
	cache     map[[3]string]model.CacheEntry
}

// NewMemory creates an empty MemoryStore.
func NewMemory() *MemoryStore {
	return &MemoryStore{
		contacts:  make(map[[2]string]model.Contact),
		providers: make(map[[2]string]model.EnrichmentProvider),
		configs:   make(map[[2]string]model.WaterfallConfig),
		health:    make(map[[2]string]model.ProviderHealth),
		jobs:      make(map[[2]string][]byte),
		cache:     make(map[[3]string]model.CacheEntry),
	}
}

func (s *MemoryStore) GetContact(_ context.Context, tenantID, id string) (*model.Contact, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.contacts[[2]string{tenantID, id}]
	if !ok {
		return nil, eris.Wrapf(model.ErrNotFound, "contact %s", id)
	}
	return &c, nil
}

func (s *MemoryStore) UpsertContact(_ context.Context, c model.Contact) error {
	if err := c.Validate(); err != nil {
		return err
	}
	now := time.Now().UTC()
	s.mu.Lock()
	defer s.mu.Unlock()
	key := [2]string{c.TenantID, c.ID}
	if prev, ok := s.contacts[key]; ok {
		c.CreatedAt = prev.CreatedAt
	} else if c.CreatedAt.IsZero() {
		c.CreatedAt = now
	}
	c.UpdatedAt = now
	s.contacts[key] = c
	return nil
}

func (s *MemoryStore) UpsertContacts(ctx context.Context, cs []model.Contact) (int64, error) {
	for _, c := range cs {
		if err := s.UpsertContact(ctx, c); err != nil {
			return 0, err
		}
	}
	return int64(len(cs)), nil
}

func cloneProvider(p model.EnrichmentProvider) model.EnrichmentProvider {
	p.SupportedFields = slices.Clone(p.SupportedFields)
	p.Config = maps.Clone(p.Config)
	return p
}

func (s *MemoryStore) ListProviders(_ context.Context, tenantID string) ([]model.EnrichmentProvider, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []model.EnrichmentProvider
	for k, p := range s.providers {
		if k[0] == tenantID {
			out = append(out, cloneProvider(p))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Priority != out[j].Priority {
			return out[i].Priority < out[j].Priority
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (s *MemoryStore) GetProvider(_ context.Context, tenantID, id string) (*model.EnrichmentProvider, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.providers[[2]string{tenantID, id}]
	if !ok {
		return nil, eris.Wrapf(model.ErrNotFound, "provider %s", id)
	}
	p = cloneProvider(p)
	return &p, nil
}

func (s *MemoryStore) SaveProvider(_ context.Context, p model.EnrichmentProvider) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.providers[[2]string{p.TenantID, p.ID}] = cloneProvider(p)
	return nil
}

func (s *MemoryStore) UpdateProviderStats(_ context.Context, tenantID, id string, avgLatencyMs, successRate float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := [2]string{tenantID, id}
	p, ok := s.providers[key]
	if !ok {
		return eris.Wrapf(model.ErrNotFound, "provider %s", id)
	}
	p.AvgLatencyMs, p.SuccessRate = avgLatencyMs, successRate
	p.UpdatedAt = time.Now().UTC()
	s.providers[key] = p
	return nil
}

func (s *MemoryStore) GetWaterfallConfig(_ context.Context, tenantID, field string) (*model.WaterfallConfig, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.configs[[2]string{tenantID, field}]
	if !ok {
		return nil, eris.Wrapf(model.ErrNotFound, "waterfall config %s", field)
	}
	c = c.Clone()
	return &c, nil
}

func (s *MemoryStore) SaveWaterfallConfig(_ context.Context, cfg model.WaterfallConfig) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.configs[[2]string{cfg.TenantID, cfg.Field}] = cfg.Clone()
	return nil
}

func (s *MemoryStore) ListWaterfallConfigs(_ context.Context, tenantID string) ([]model.WaterfallConfig, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []model.WaterfallConfig
	for k, c := range s.configs {
		if k[0] == tenantID {
			out = append(out, c.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Field < out[j].Field })
	return out, nil
}

func (s *MemoryStore) DeleteWaterfallConfig(_ context.Context, tenantID, field string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := [2]string{tenantID, field}
	if _, ok := s.configs[key]; !ok {
		return eris.Wrapf(model.ErrNotFound, "waterfall config %s", field)
	}
	delete(s.configs, key)
	return nil
}

func (s *MemoryStore) GetHealth(_ context.Context, tenantID, providerID string) (*model.ProviderHealth, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	h, ok := s.health[[2]string{tenantID, providerID}]
	if !ok {
		return nil, model.ErrNotFound
	}
	return &h, nil
}

func (s *MemoryStore) SaveHealth(_ context.Context, h model.ProviderHealth) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.health[[2]string{h.TenantID, h.ProviderID}] = h
	return nil
}

func (s *MemoryStore) ListHealth(_ context.Context, tenantID string) ([]model.ProviderHealth, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []model.ProviderHealth
	for k, h := range s.health {
		if k[0] == tenantID {
			out = append(out, h)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ProviderID < out[j].ProviderID })
	return out, nil
}

func (s *MemoryStore) SaveJob(_ context.Context, job *model.EnrichmentJob) error {
	data, err := json.Marshal(job)
	if err != nil {
		return eris.Wrap(err, "memory: marshal job")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobs[[2]string{job.TenantID, job.ID}] = data
	return nil
}

func (s *MemoryStore) GetJob(_ context.Context, tenantID, id string) (*model.EnrichmentJob, error) {
	s.mu.RLock()
	data, ok := s.jobs[[2]string{tenantID, id}]
	s.mu.RUnlock()
	if !ok {
		return nil, eris.Wrapf(model.ErrNotFound, "job %s", id)
	}
	var j model.EnrichmentJob
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, eris.Wrap(err, "memory: unmarshal job")
	}
	return &j, nil
}

func (s *MemoryStore) ListJobs(_ context.Context, filter JobFilter) ([]model.EnrichmentJob, error) {
	s.mu.RLock()
	var all []model.EnrichmentJob
	for k, data := range s.jobs {
		if filter.TenantID != "" && k[0] != filter.TenantID {
			continue
		}
		var j model.EnrichmentJob
		if err := json.Unmarshal(data, &j); err != nil {
			s.mu.RUnlock()
			return nil, eris.Wrap(err, "memory: unmarshal job")
		}
		if filter.ContactID != "" && j.ContactID != filter.ContactID {
			continue
		}
		if filter.Status != "" && j.Status != filter.Status {
			continue
		}
		if !filter.CreatedAfter.IsZero() && j.CreatedAt.Before(filter.CreatedAfter) {
			continue
		}
		all = append(all, j)
	}
	s.mu.RUnlock()

	sort.Slice(all, func(i, j int) bool { return all[i].CreatedAt.After(all[j].CreatedAt) })
	if filter.Offset >= len(all) {
		return nil, nil
	}
	all = all[filter.Offset:]
	if limit := effectiveLimit(filter.Limit); len(all) > limit {
		all = all[:limit]
	}
	return all, nil
}

func (s *MemoryStore) GetCacheEntry(_ context.Context, tenantID, contactID, field string) (*model.CacheEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.cache[[3]string{tenantID, contactID, field}]
	if !ok {
		return nil, model.ErrNotFound
	}
	return &e, nil
}

func (s *MemoryStore) SetCacheEntry(_ context.Context, e model.CacheEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cache[[3]string{e.TenantID, e.ContactID, e.Field}] = e
	return nil
}

func (s *MemoryStore) DeleteCacheEntries(_ context.Context, tenantID, contactID, field string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for k := range s.cache {
		if k[0] == tenantID && k[1] == contactID && (field == "" || k[2] == field) {
			delete(s.cache, k)
		}
	}
	return nil
}

func (s *MemoryStore) DeleteExpiredCache(_ context.Context, now time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for k, e := range s.cache {
		if e.Expired(now) {
			delete(s.cache, k)
			n++
		}
	}
	return n, nil
}

func (s *MemoryStore) Migrate(context.Context) error { return nil }

func (s *MemoryStore) Ping(context.Context) error { return nil }

func (s *MemoryStore) Close() error { return nil }

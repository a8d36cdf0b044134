// Package cache stores accepted enrichment values per (tenant, contact,
// field). Only accepted values are written; unresolved outcomes are never
// cached.
package cache

import (
	"context"
	"sync"
	"time"

	"github.com/sells-group/enrich-waterfall/internal/model"
)

// Cache is consulted before any provider is called.
type Cache interface {
	// Get returns the live entry, or nil when missing or expired.
	Get(ctx context.Context, tenantID, contactID, field string) (*model.CacheEntry, error)
	// Set writes entry, superseding any entry for the same key.
	Set(ctx context.Context, entry model.CacheEntry) error
	// Invalidate removes one field, or every field of the contact when
	// field is empty.
	Invalidate(ctx context.Context, tenantID, contactID, field string) error
}

// Option configures a cache implementation.
type Option func(*options)

type options struct {
	nowFunc func() time.Time
}

// WithNow overrides the clock used for expiry checks.
func WithNow(fn func() time.Time) Option {
	return func(o *options) { o.nowFunc = fn }
}

func buildOptions(opts []Option) options {
	o := options{nowFunc: time.Now}
	for _, fn := range opts {
		fn(&o)
	}
	return o
}

type memKey struct {
	tenant, contact, field string
}

// MemoryCache is an in-process Cache.
type MemoryCache struct {
	mu      sync.RWMutex
	entries map[memKey]model.CacheEntry
	opts    options
}

// NewMemoryCache creates an empty MemoryCache.
func NewMemoryCache(opts ...Option) *MemoryCache {
	return &MemoryCache{
		entries: make(map[memKey]model.CacheEntry),
		opts:    buildOptions(opts),
	}
}

// Get implements Cache.
func (c *MemoryCache) Get(_ context.Context, tenantID, contactID, field string) (*model.CacheEntry, error) {
	c.mu.RLock()
	e, ok := c.entries[memKey{tenantID, contactID, field}]
	c.mu.RUnlock()
	if !ok || e.Expired(c.opts.nowFunc()) {
		return nil, nil
	}
	return &e, nil
}

// Set implements Cache.
func (c *MemoryCache) Set(_ context.Context, entry model.CacheEntry) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[memKey{entry.TenantID, entry.ContactID, entry.Field}] = entry
	return nil
}

// Invalidate implements Cache.
func (c *MemoryCache) Invalidate(_ context.Context, tenantID, contactID, field string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if field != "" {
		delete(c.entries, memKey{tenantID, contactID, field})
		return nil
	}
	for k := range c.entries {
		if k.tenant == tenantID && k.contact == contactID {
			delete(c.entries, k)
		}
	}
	return nil
}

// Sweep drops expired entries and returns how many were removed.
func (c *MemoryCache) Sweep(_ context.Context) (int64, error) {
	now := c.opts.nowFunc()
	c.mu.Lock()
	defer c.mu.Unlock()
	var n int64
	for k, e := range c.entries {
		if e.Expired(now) {
			delete(c.entries, k)
			n++
		}
	}
	return n, nil
}

package cache

import (
	"context"
	"errors"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/enrich-waterfall/internal/model"
)

// EntryStore is the durable table behind StoreCache.
type EntryStore interface {
	GetCacheEntry(ctx context.Context, tenantID, contactID, field string) (*model.CacheEntry, error)
	SetCacheEntry(ctx context.Context, e model.CacheEntry) error
	DeleteCacheEntries(ctx context.Context, tenantID, contactID, field string) error
	DeleteExpiredCache(ctx context.Context, now time.Time) (int64, error)
}

// StoreCache keeps entries in the durable store. Expired rows are hidden on
// read and removed by Sweep.
type StoreCache struct {
	store EntryStore
	opts  options
}

// NewStoreCache wraps store.
func NewStoreCache(store EntryStore, opts ...Option) *StoreCache {
	return &StoreCache{store: store, opts: buildOptions(opts)}
}

// Get implements Cache.
func (c *StoreCache) Get(ctx context.Context, tenantID, contactID, field string) (*model.CacheEntry, error) {
	e, err := c.store.GetCacheEntry(ctx, tenantID, contactID, field)
	if errors.Is(err, model.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrap(err, "cache: store get")
	}
	if e.Expired(c.opts.nowFunc()) {
		return nil, nil
	}
	return e, nil
}

// Set implements Cache.
func (c *StoreCache) Set(ctx context.Context, entry model.CacheEntry) error {
	if err := c.store.SetCacheEntry(ctx, entry); err != nil {
		return eris.Wrap(err, "cache: store set")
	}
	return nil
}

// Invalidate implements Cache.
func (c *StoreCache) Invalidate(ctx context.Context, tenantID, contactID, field string) error {
	if err := c.store.DeleteCacheEntries(ctx, tenantID, contactID, field); err != nil {
		return eris.Wrap(err, "cache: store invalidate")
	}
	return nil
}

// Sweep deletes expired rows.
func (c *StoreCache) Sweep(ctx context.Context) (int64, error) {
	n, err := c.store.DeleteExpiredCache(ctx, c.opts.nowFunc())
	if err != nil {
		return 0, eris.Wrap(err, "cache: sweep")
	}
	return n, nil
}

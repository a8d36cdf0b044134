package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/enrich-waterfall/internal/model"
)

var t0 = time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)

func sampleEntry(field string, ttl time.Duration) model.CacheEntry {
	return model.CacheEntry{
		TenantID:   "t1",
		ContactID:  "c1",
		Field:      field,
		Value:      "jane@acme.com",
		Confidence: 0.91,
		ProviderID: "clearbit",
		CachedAt:   t0,
		ExpiresAt:  t0.Add(ttl),
	}
}

// contract runs the shared Cache behavior against an implementation whose
// clock is driven by now.
func contract(t *testing.T, c Cache, now *time.Time) {
	ctx := context.Background()

	got, err := c.Get(ctx, "t1", "c1", "email")
	require.NoError(t, err)
	assert.Nil(t, got, "miss")

	require.NoError(t, c.Set(ctx, sampleEntry("email", 24*time.Hour)))
	got, err = c.Get(ctx, "t1", "c1", "email")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "jane@acme.com", got.Value)
	assert.Equal(t, "clearbit", got.ProviderID)

	// Supersede.
	e := sampleEntry("email", 24*time.Hour)
	e.Value = "j.doe@acme.com"
	e.ProviderID = "hunter"
	require.NoError(t, c.Set(ctx, e))
	got, err = c.Get(ctx, "t1", "c1", "email")
	require.NoError(t, err)
	assert.Equal(t, "j.doe@acme.com", got.Value)

	// Tenant isolation.
	got, err = c.Get(ctx, "t2", "c1", "email")
	require.NoError(t, err)
	assert.Nil(t, got)

	// Single-field invalidate.
	require.NoError(t, c.Set(ctx, sampleEntry("phone", 24*time.Hour)))
	require.NoError(t, c.Invalidate(ctx, "t1", "c1", "email"))
	got, _ = c.Get(ctx, "t1", "c1", "email")
	assert.Nil(t, got)
	got, _ = c.Get(ctx, "t1", "c1", "phone")
	assert.NotNil(t, got)

	// Whole-contact invalidate.
	require.NoError(t, c.Set(ctx, sampleEntry("title", 24*time.Hour)))
	require.NoError(t, c.Invalidate(ctx, "t1", "c1", ""))
	for _, f := range []string{"phone", "title"} {
		got, _ = c.Get(ctx, "t1", "c1", f)
		assert.Nil(t, got, f)
	}

	// Expiry.
	require.NoError(t, c.Set(ctx, sampleEntry("domain", time.Hour)))
	*now = t0.Add(time.Hour)
	got, err = c.Get(ctx, "t1", "c1", "domain")
	require.NoError(t, err)
	assert.Nil(t, got, "expired at the boundary")
}

func TestMemoryCache(t *testing.T) {
	now := t0
	contract(t, NewMemoryCache(WithNow(func() time.Time { return now })), &now)
}

func TestMemoryCache_Sweep(t *testing.T) {
	now := t0
	c := NewMemoryCache(WithNow(func() time.Time { return now }))
	ctx := context.Background()
	require.NoError(t, c.Set(ctx, sampleEntry("email", time.Hour)))
	require.NoError(t, c.Set(ctx, sampleEntry("phone", 48*time.Hour)))

	now = t0.Add(2 * time.Hour)
	n, err := c.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestRedisCache(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close() //nolint:errcheck

	now := t0
	c := NewRedisCache(rdb, "", WithNow(func() time.Time { return now }))
	contract(t, c, &now)
	require.NoError(t, c.Ping(context.Background()))
}

func TestRedisCache_KeyAndTTL(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close() //nolint:errcheck

	c := NewRedisCache(rdb, "", WithNow(func() time.Time { return t0 }))
	require.NoError(t, c.Set(context.Background(), sampleEntry("email", 7*24*time.Hour)))

	key := "enrich:cache:t1:c1:email"
	assert.True(t, mr.Exists(key))
	assert.Equal(t, 7*24*time.Hour, mr.TTL(key))

	mr.FastForward(7*24*time.Hour + time.Second)
	assert.False(t, mr.Exists(key))
}

func TestRedisCache_InvalidateStaysWithinContact(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close() //nolint:errcheck
	ctx := context.Background()

	c := NewRedisCache(rdb, "", WithNow(func() time.Time { return t0 }))
	for _, id := range []string{"x", "x:y", "x*", "*", "x?", "[x]", `x\`} {
		e := sampleEntry("email", time.Hour)
		e.ContactID = id
		e.Value = id
		require.NoError(t, c.Set(ctx, e))
	}
	assert.True(t, mr.Exists("enrich:cache:t1:x%3Ay:email"))
	assert.True(t, mr.Exists("enrich:cache:t1:x%2A:email"))

	remaining := func() []string {
		var ids []string
		for _, id := range []string{"x", "x:y", "x*", "*", "x?", "[x]", `x\`} {
			got, err := c.Get(ctx, "t1", id, "email")
			require.NoError(t, err)
			if got != nil {
				ids = append(ids, got.Value.(string))
			}
		}
		return ids
	}

	require.NoError(t, c.Invalidate(ctx, "t1", "x", ""))
	assert.Equal(t, []string{"x:y", "x*", "*", "x?", "[x]", `x\`}, remaining())

	require.NoError(t, c.Invalidate(ctx, "t1", "*", ""))
	assert.Equal(t, []string{"x:y", "x*", "x?", "[x]", `x\`}, remaining())

	require.NoError(t, c.Invalidate(ctx, "t1", "[x]", ""))
	require.NoError(t, c.Invalidate(ctx, "t1", "x?", ""))
	assert.Equal(t, []string{"x:y", "x*", `x\`}, remaining())
}

func TestRedisCache_SkipsExpiredWrite(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close() //nolint:errcheck

	c := NewRedisCache(rdb, "test", WithNow(func() time.Time { return t0.Add(time.Hour) }))
	require.NoError(t, c.Set(context.Background(), sampleEntry("email", time.Minute)))
	assert.Empty(t, mr.Keys())
}

func TestRedisCache_GetError(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close() //nolint:errcheck
	mr.Close()

	c := NewRedisCache(rdb, "")
	_, err := c.Get(context.Background(), "t1", "c1", "email")
	assert.Error(t, err)
}

type fakeEntryStore struct {
	rows    map[string]model.CacheEntry
	deleted []string
}

func (f *fakeEntryStore) GetCacheEntry(_ context.Context, tenantID, contactID, field string) (*model.CacheEntry, error) {
	e, ok := f.rows[tenantID+contactID+field]
	if !ok {
		return nil, model.ErrNotFound
	}
	return &e, nil
}

func (f *fakeEntryStore) SetCacheEntry(_ context.Context, e model.CacheEntry) error {
	f.rows[e.TenantID+e.ContactID+e.Field] = e
	return nil
}

func (f *fakeEntryStore) DeleteCacheEntries(_ context.Context, tenantID, contactID, field string) error {
	f.deleted = append(f.deleted, tenantID+"/"+contactID+"/"+field)
	for k, e := range f.rows {
		if e.TenantID == tenantID && e.ContactID == contactID && (field == "" || e.Field == field) {
			delete(f.rows, k)
		}
	}
	return nil
}

func (f *fakeEntryStore) DeleteExpiredCache(_ context.Context, now time.Time) (int64, error) {
	var n int64
	for k, e := range f.rows {
		if e.Expired(now) {
			delete(f.rows, k)
			n++
		}
	}
	return n, nil
}

func TestStoreCache(t *testing.T) {
	now := t0
	fs := &fakeEntryStore{rows: map[string]model.CacheEntry{}}
	c := NewStoreCache(fs, WithNow(func() time.Time { return now }))
	contract(t, c, &now)

	n, err := c.Sweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(1), n, "the expired domain row")
}

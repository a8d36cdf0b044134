package provider

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/enrich-waterfall/internal/model"
)

// memCatalog implements CatalogStore for testing.
type memCatalog struct {
	mu   sync.Mutex
	rows map[string]model.EnrichmentProvider
}

func newMemCatalog(rows ...model.EnrichmentProvider) *memCatalog {
	c := &memCatalog{rows: make(map[string]model.EnrichmentProvider)}
	for _, r := range rows {
		c.rows[r.TenantID+"/"+r.ID] = r
	}
	return c
}

func (c *memCatalog) ListProviders(_ context.Context, tenantID string) ([]model.EnrichmentProvider, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []model.EnrichmentProvider
	for _, r := range c.rows {
		if r.TenantID == tenantID {
			out = append(out, r)
		}
	}
	return out, nil
}

func (c *memCatalog) GetProvider(_ context.Context, tenantID, id string) (*model.EnrichmentProvider, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	r, ok := c.rows[tenantID+"/"+id]
	if !ok {
		return nil, model.ErrNotFound
	}
	return &r, nil
}

func (c *memCatalog) SaveProvider(_ context.Context, p model.EnrichmentProvider) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.rows[p.TenantID+"/"+p.ID] = p
	return nil
}

func (c *memCatalog) UpdateProviderStats(_ context.Context, tenantID, id string, lat, rate float64) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	r, ok := c.rows[tenantID+"/"+id]
	if !ok {
		return model.ErrNotFound
	}
	r.AvgLatencyMs, r.SuccessRate = lat, rate
	c.rows[tenantID+"/"+id] = r
	return nil
}

func entry(t *testing.T, tenant, id string, priority int, fields ...string) model.EnrichmentProvider {
	t.Helper()
	p, err := model.NewProvider(id, id, "static", fields, 0.05, time.Now())
	require.NoError(t, err)
	p.TenantID = tenant
	p.Priority = priority
	return p
}

func TestRegistry_RegisterAndList(t *testing.T) {
	r := NewRegistry(newMemCatalog())
	r.Register(&StaticAdapter{ProviderID: "hunter"})
	r.Register(&StaticAdapter{ProviderID: "clearbit"})

	assert.Equal(t, []string{"clearbit", "hunter"}, r.List())
	assert.NotNil(t, r.Adapter("hunter"))
	assert.Nil(t, r.Adapter("nonexistent"))
}

func TestRegistry_TenantOverridesGlobal(t *testing.T) {
	ctx := context.Background()
	global := entry(t, "", "clearbit", 1, "email")
	scoped := entry(t, "t1", "clearbit", 1, "email")
	scoped.Disable(time.Now())
	r := NewRegistry(newMemCatalog(global, scoped, entry(t, "", "hunter", 2, "email")))

	got, err := r.Get(ctx, "t1", "clearbit")
	require.NoError(t, err)
	assert.False(t, got.Enabled)

	got, err = r.Get(ctx, "t2", "clearbit")
	require.NoError(t, err)
	assert.True(t, got.Enabled)

	enabled, err := r.ListEnabled(ctx, "t1")
	require.NoError(t, err)
	require.Len(t, enabled, 1)
	assert.Equal(t, "hunter", enabled[0].ID)

	all, err := r.ListAll(ctx, "t2")
	require.NoError(t, err)
	assert.Equal(t, "clearbit", all[0].ID, "priority order")

	_, err = r.Get(ctx, "t1", "zoominfo")
	assert.ErrorIs(t, err, model.ErrNotFound)
}

func TestRegistry_Candidate(t *testing.T) {
	ctx := context.Background()
	disabled := entry(t, "", "pdl", 1, "email")
	disabled.Disable(time.Now())
	r := NewRegistry(newMemCatalog(
		entry(t, "", "clearbit", 1, "email"),
		entry(t, "", "orphan", 1, "email"),
		disabled,
	))
	r.Register(&StaticAdapter{ProviderID: "clearbit"})
	r.Register(&StaticAdapter{ProviderID: "pdl"})

	tests := []struct {
		id, field, skip string
	}{
		{"clearbit", "email", ""},
		{"clearbit", "phone", SkipUnsupported},
		{"pdl", "email", SkipDisabled},
		{"orphan", "email", SkipNoAdapter},
		{"missing", "email", SkipUnknown},
	}
	for _, tt := range tests {
		t.Run(tt.id+"/"+tt.field, func(t *testing.T) {
			c, skip, err := r.Candidate(ctx, "t1", tt.id, tt.field)
			require.NoError(t, err)
			assert.Equal(t, tt.skip, skip)
			if tt.skip == "" {
				require.NotNil(t, c)
				assert.Equal(t, tt.id, c.Adapter.ID())
			} else {
				assert.Nil(t, c)
			}
		})
	}
}

func TestRegistry_SetEnabled_WritesTenantOverride(t *testing.T) {
	ctx := context.Background()
	cat := newMemCatalog(entry(t, "", "clearbit", 1, "email"))
	r := NewRegistry(cat)

	p, err := r.SetEnabled(ctx, "t1", "clearbit", false)
	require.NoError(t, err)
	assert.Equal(t, "t1", p.TenantID)

	global, err := cat.GetProvider(ctx, "", "clearbit")
	require.NoError(t, err)
	assert.True(t, global.Enabled, "global entry untouched")

	c, skip, err := r.Candidate(ctx, "t1", "clearbit", "email")
	require.NoError(t, err)
	assert.Nil(t, c)
	assert.Equal(t, SkipDisabled, skip)
}

func TestRegistry_RecordCall(t *testing.T) {
	ctx := context.Background()
	cat := newMemCatalog(entry(t, "", "hunter", 1, "email"))
	r := NewRegistry(cat)

	require.NoError(t, r.RecordCall(ctx, "t1", "hunter", 100, true))
	require.NoError(t, r.RecordCall(ctx, "t1", "hunter", 200, false))

	p, err := cat.GetProvider(ctx, "", "hunter")
	require.NoError(t, err)
	assert.InDelta(t, 120, p.AvgLatencyMs, 1e-9)
	assert.InDelta(t, 0.8, p.SuccessRate, 1e-9)

	assert.ErrorIs(t, r.RecordCall(ctx, "t1", "ghost", 1, true), model.ErrNotFound)
}

func TestRegistry_SaveValidates(t *testing.T) {
	r := NewRegistry(newMemCatalog())
	err := r.Save(context.Background(), model.EnrichmentProvider{ID: "x"})
	require.Error(t, err)
}

func TestNewRequest(t *testing.T) {
	c := model.Contact{ID: "c1", TenantID: "t1", Email: "a@b.co", Domain: "b.co"}
	req := NewRequest(c, "phone", "title")
	assert.Equal(t, "c1", req.ContactID)
	assert.Equal(t, []string{"phone", "title"}, req.Fields)
	assert.Equal(t, "b.co", req.Domain)
}

func TestResult_Field(t *testing.T) {
	r := &Result{Fields: []FieldValue{{Field: "email", Value: "x@y.z", Confidence: 0.9}}}
	v, ok := r.Field("email")
	assert.True(t, ok)
	assert.Equal(t, "x@y.z", v.Value)

	_, ok = r.Field("phone")
	assert.False(t, ok)

	var nilRes *Result
	_, ok = nilRes.Field("email")
	assert.False(t, ok)
}

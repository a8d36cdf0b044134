package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/enrich-waterfall/internal/db"
	"github.com/sells-group/enrich-waterfall/internal/model"
)

// newMockPostgresStore creates a PostgresStore backed by pgxmock for unit testing.
func newMockPostgresStore(t *testing.T) (*PostgresStore, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool(pgxmock.QueryMatcherOption(pgxmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { mock.Close() })

	s := &PostgresStore{pool: mock}
	return s, mock
}

func TestPostgresStore_Migrate(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`CREATE TABLE IF NOT EXISTS contacts`).
		WillReturnResult(pgxmock.NewResult("CREATE", 0))

	require.NoError(t, s.Migrate(context.Background()))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_GetContact(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	rows := pgxmock.NewRows([]string{"tenant_id", "id", "email", "phone", "first_name", "last_name", "company", "domain", "linkedin_url", "created_at", "updated_at"}).
		AddRow("t1", "c1", "a@acme.io", "", "Ada", "Lovelace", "Acme", "acme.io", "", testNow, testNow)
	mock.ExpectQuery(`SELECT .+ FROM contacts WHERE tenant_id = \$1 AND id = \$2`).
		WithArgs("t1", "c1").
		WillReturnRows(rows)

	c, err := s.GetContact(context.Background(), "t1", "c1")
	require.NoError(t, err)
	assert.Equal(t, "a@acme.io", c.Email)
	assert.Equal(t, "acme.io", c.Domain)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_GetContact_NotFound(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`SELECT .+ FROM contacts`).
		WithArgs("t1", "missing").
		WillReturnError(pgx.ErrNoRows)

	_, err := s.GetContact(context.Background(), "t1", "missing")
	require.Error(t, err)
	assert.ErrorIs(t, err, model.ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_GetContact_QueryError(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`SELECT .+ FROM contacts`).
		WithArgs("t1", "c1").
		WillReturnError(errors.New("connection reset"))

	_, err := s.GetContact(context.Background(), "t1", "c1")
	require.Error(t, err)
	assert.NotErrorIs(t, err, model.ErrNotFound)
	assert.Contains(t, err.Error(), "get contact")
}

func TestPostgresStore_UpsertContact(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`INSERT INTO contacts .+ ON CONFLICT \(tenant_id, id\) DO UPDATE`).
		WithArgs("t1", "c1", "a@acme.io", "", "", "", "", "", "", pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	require.NoError(t, s.UpsertContact(context.Background(), model.Contact{TenantID: "t1", ID: "c1", Email: "a@acme.io"}))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_UpsertContacts_Bulk(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectBegin()
	mock.ExpectExec(`CREATE TEMP TABLE _contact_load`).
		WillReturnResult(pgxmock.NewResult("CREATE", 0))
	mock.ExpectCopyFrom(pgx.Identifier{"_contact_load"}, db.ContactCopyColumns).
		WillReturnResult(2)
	mock.ExpectExec(`INSERT INTO contacts .+ ON CONFLICT \(tenant_id, id\)`).
		WillReturnResult(pgxmock.NewResult("INSERT", 2))
	mock.ExpectCommit()

	n, err := s.UpsertContacts(context.Background(), []model.Contact{
		{TenantID: "t1", ID: "c1"},
		{TenantID: "t1", ID: "c2"},
	})
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_UpsertContacts_Invalid(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	_, err := s.UpsertContacts(context.Background(), []model.Contact{{ID: "c1"}})
	require.Error(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_ListProviders(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	rows := pgxmock.NewRows([]string{"tenant_id", "id", "name", "type", "supported_fields", "priority", "cost_per_lookup", "avg_latency_ms", "success_rate", "supports_batch", "config", "enabled", "created_at", "updated_at"}).
		AddRow("", "clearbit", "Clearbit", "api", []byte(`["email","title"]`), 1, 0.03, 210.0, 0.9, false, []byte(`{"region":"us"}`), true, testNow, testNow).
		AddRow("", "hunter", "Hunter", "api", []byte(`["email"]`), 2, 0.04, 350.0, 0.8, true, []byte(`{}`), true, testNow, testNow)
	mock.ExpectQuery(`SELECT .+ FROM providers WHERE tenant_id = \$1 ORDER BY priority, id`).
		WithArgs("").
		WillReturnRows(rows)

	list, err := s.ListProviders(context.Background(), "")
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, []string{"email", "title"}, list[0].SupportedFields)
	assert.Equal(t, "us", list[0].Config["region"])
	assert.True(t, list[1].SupportsBatch)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_SaveProvider(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	p, err := model.NewProvider("hunter", "Hunter", "api", []string{"email"}, 0.04, testNow)
	require.NoError(t, err)

	mock.ExpectExec(`INSERT INTO providers .+ ON CONFLICT \(tenant_id, id\) DO UPDATE`).
		WithArgs("", "hunter", "Hunter", "api", []byte(`["email"]`), p.Priority, 0.04,
			pgxmock.AnyArg(), pgxmock.AnyArg(), false, pgxmock.AnyArg(), true, testNow, testNow).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	require.NoError(t, s.SaveProvider(context.Background(), p))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_UpdateProviderStats_NotFound(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`UPDATE providers SET avg_latency_ms`).
		WithArgs(120.0, 0.5, pgxmock.AnyArg(), "t1", "hunter").
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	err := s.UpdateProviderStats(context.Background(), "t1", "hunter", 120, 0.5)
	assert.ErrorIs(t, err, model.ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_GetWaterfallConfig(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	capped := 0.05
	rows := pgxmock.NewRows([]string{"tenant_id", "field", "provider_order", "max_attempts", "timeout_ms", "min_confidence", "cache_ttl_days", "max_cost_per_lead", "created_at", "updated_at"}).
		AddRow("t1", "email", []byte(`["clearbit","hunter"]`), 2, 3000, 0.8, 30, &capped, testNow, testNow)
	mock.ExpectQuery(`SELECT .+ FROM waterfall_configs WHERE tenant_id = \$1 AND field = \$2`).
		WithArgs("t1", "email").
		WillReturnRows(rows)

	cfg, err := s.GetWaterfallConfig(context.Background(), "t1", "email")
	require.NoError(t, err)
	assert.Equal(t, []string{"clearbit", "hunter"}, cfg.ProviderOrder)
	require.NotNil(t, cfg.MaxCostPerLead)
	assert.InDelta(t, 0.05, *cfg.MaxCostPerLead, 1e-9)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_DeleteWaterfallConfig_NotFound(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`DELETE FROM waterfall_configs`).
		WithArgs("t1", "email").
		WillReturnResult(pgxmock.NewResult("DELETE", 0))

	assert.ErrorIs(t, s.DeleteWaterfallConfig(context.Background(), "t1", "email"), model.ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_GetHealth_NotFound(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`SELECT .+ FROM provider_health`).
		WithArgs("t1", "hunter").
		WillReturnError(pgx.ErrNoRows)

	_, err := s.GetHealth(context.Background(), "t1", "hunter")
	assert.ErrorIs(t, err, model.ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_SaveHealth(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	h := model.NewProviderHealth("t1", "hunter", testNow)
	h.CircuitState = model.CircuitOpen
	h.CircuitOpenedAt = &testNow

	mock.ExpectExec(`INSERT INTO provider_health .+ ON CONFLICT \(tenant_id, provider_id\)`).
		WithArgs("t1", "hunter", int64(0), int64(0), pgxmock.AnyArg(), pgxmock.AnyArg(), "open", pgxmock.AnyArg(), testNow).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	require.NoError(t, s.SaveHealth(context.Background(), h))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_SaveAndGetJob(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	j, err := model.NewJob("t1", "c1", []string{"email"}, testNow)
	require.NoError(t, err)

	mock.ExpectExec(`INSERT INTO enrichment_jobs .+ ON CONFLICT \(id\) DO UPDATE`).
		WithArgs(j.ID, "t1", "c1", "pending", 0.0, pgxmock.AnyArg(), testNow, pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	require.NoError(t, s.SaveJob(context.Background(), j))

	body := []byte(`{"id":"` + j.ID + `","tenant_id":"t1","contact_id":"c1","requested_fields":["email"],"status":"pending","total_cost":0}`)
	mock.ExpectQuery(`SELECT body FROM enrichment_jobs WHERE tenant_id = \$1 AND id = \$2`).
		WithArgs("t1", j.ID).
		WillReturnRows(pgxmock.NewRows([]string{"body"}).AddRow(body))

	got, err := s.GetJob(context.Background(), "t1", j.ID)
	require.NoError(t, err)
	assert.Equal(t, j.ID, got.ID)
	assert.Equal(t, model.JobStatusPending, got.Status)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_ListJobs_Filters(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`SELECT body FROM enrichment_jobs WHERE tenant_id = \$1 AND contact_id = \$2 AND status = \$3 ORDER BY created_at DESC LIMIT \$4 OFFSET \$5`).
		WithArgs("t1", "c1", "completed", DefaultListLimit, 0).
		WillReturnRows(pgxmock.NewRows([]string{"body"}).
			AddRow([]byte(`{"id":"j2","status":"completed"}`)).
			AddRow([]byte(`{"id":"j1","status":"completed"}`)))

	jobs, err := s.ListJobs(context.Background(), JobFilter{TenantID: "t1", ContactID: "c1", Status: model.JobStatusCompleted})
	require.NoError(t, err)
	require.Len(t, jobs, 2)
	assert.Equal(t, "j2", jobs[0].ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_ListJobs_StatusOnly(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`WHERE tenant_id = \$1 AND status = \$2 ORDER BY created_at DESC LIMIT \$3 OFFSET \$4`).
		WithArgs("t1", "failed", 10, 20).
		WillReturnRows(pgxmock.NewRows([]string{"body"}))

	jobs, err := s.ListJobs(context.Background(), JobFilter{TenantID: "t1", Status: model.JobStatusFailed, Limit: 10, Offset: 20})
	require.NoError(t, err)
	assert.Empty(t, jobs)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_ListJobs_AllTenantsSince(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`SELECT body FROM enrichment_jobs WHERE created_at >= \$1 ORDER BY created_at DESC LIMIT \$2 OFFSET \$3`).
		WithArgs(testNow, 500, 0).
		WillReturnRows(pgxmock.NewRows([]string{"body"}).
			AddRow([]byte(`{"id":"j1","tenant_id":"t2","status":"exhausted"}`)))

	jobs, err := s.ListJobs(context.Background(), JobFilter{CreatedAfter: testNow, Limit: 500})
	require.NoError(t, err)
	require.Len(t, jobs, 1)
	assert.Equal(t, "t2", jobs[0].TenantID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_GetCacheEntry(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	expires := testNow.Add(24 * time.Hour)
	mock.ExpectQuery(`SELECT .+ FROM enrichment_cache WHERE tenant_id = \$1 AND contact_id = \$2 AND field = \$3`).
		WithArgs("t1", "c1", "email").
		WillReturnRows(pgxmock.NewRows([]string{"tenant_id", "contact_id", "field", "value", "confidence", "provider_id", "cached_at", "expires_at"}).
			AddRow("t1", "c1", "email", []byte(`"a@acme.io"`), 0.92, "hunter", testNow, expires))

	e, err := s.GetCacheEntry(context.Background(), "t1", "c1", "email")
	require.NoError(t, err)
	assert.Equal(t, "a@acme.io", e.Value)
	assert.Equal(t, "hunter", e.ProviderID)
	assert.True(t, e.ExpiresAt.Equal(expires))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_SetCacheEntry(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`INSERT INTO enrichment_cache .+ ON CONFLICT \(tenant_id, contact_id, field\)`).
		WithArgs("t1", "c1", "email", []byte(`"a@acme.io"`), 0.92, "hunter", testNow, testNow.Add(time.Hour)).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	err := s.SetCacheEntry(context.Background(), model.CacheEntry{
		TenantID: "t1", ContactID: "c1", Field: "email", Value: "a@acme.io",
		Confidence: 0.92, ProviderID: "hunter", CachedAt: testNow, ExpiresAt: testNow.Add(time.Hour),
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_DeleteCacheEntries(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`DELETE FROM enrichment_cache WHERE tenant_id = \$1 AND contact_id = \$2 AND field = \$3`).
		WithArgs("t1", "c1", "email").
		WillReturnResult(pgxmock.NewResult("DELETE", 1))
	mock.ExpectExec(`DELETE FROM enrichment_cache WHERE tenant_id = \$1 AND contact_id = \$2$`).
		WithArgs("t1", "c1").
		WillReturnResult(pgxmock.NewResult("DELETE", 3))

	require.NoError(t, s.DeleteCacheEntries(context.Background(), "t1", "c1", "email"))
	require.NoError(t, s.DeleteCacheEntries(context.Background(), "t1", "c1", ""))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_DeleteExpiredCache(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`DELETE FROM enrichment_cache WHERE expires_at <= \$1`).
		WithArgs(testNow).
		WillReturnResult(pgxmock.NewResult("DELETE", 7))

	n, err := s.DeleteExpiredCache(context.Background(), testNow)
	require.NoError(t, err)
	assert.Equal(t, int64(7), n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_Close_NilCloseFn(t *testing.T) {
	s := &PostgresStore{}
	assert.NoError(t, s.Close())
}

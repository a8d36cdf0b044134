package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/sells-group/enrich-waterfall/internal/model"
)

// timeLayout is fixed width so TEXT comparisons order the same as time.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS contacts (
	tenant_id    TEXT NOT NULL,
	id           TEXT NOT NULL,
	email        TEXT NOT NULL DEFAULT '',
	phone        TEXT NOT NULL DEFAULT '',
	first_name   TEXT NOT NULL DEFAULT '',
	last_name    TEXT NOT NULL DEFAULT '',
	company      TEXT NOT NULL DEFAULT '',
	domain       TEXT NOT NULL DEFAULT '',
	linkedin_url TEXT NOT NULL DEFAULT '',
	created_at   TEXT NOT NULL,
	updated_at   TEXT NOT NULL,
	PRIMARY KEY (tenant_id, id)
);

CREATE TABLE IF NOT EXISTS providers (
	tenant_id        TEXT NOT NULL DEFAULT '',
	id               TEXT NOT NULL,
	name             TEXT NOT NULL,
	type             TEXT NOT NULL,
	supported_fields TEXT NOT NULL DEFAULT '[]',
	priority         INTEGER NOT NULL DEFAULT 0,
	cost_per_lookup  REAL NOT NULL DEFAULT 0,
	avg_latency_ms   REAL NOT NULL DEFAULT 0,
	success_rate     REAL NOT NULL DEFAULT 1,
	supports_batch   INTEGER NOT NULL DEFAULT 0,
	config           TEXT,
	enabled          INTEGER NOT NULL DEFAULT 1,
	created_at       TEXT NOT NULL,
	updated_at       TEXT NOT NULL,
	PRIMARY KEY (tenant_id, id)
);

CREATE TABLE IF NOT EXISTS waterfall_configs (
	tenant_id         TEXT NOT NULL,
	field             TEXT NOT NULL,
	provider_order    TEXT NOT NULL DEFAULT '[]',
	max_attempts      INTEGER NOT NULL,
	timeout_ms        INTEGER NOT NULL,
	min_confidence    REAL NOT NULL,
	cache_ttl_days    INTEGER NOT NULL,
	max_cost_per_lead REAL,
	created_at        TEXT NOT NULL,
	updated_at        TEXT NOT NULL,
	PRIMARY KEY (tenant_id, field)
);

CREATE TABLE IF NOT EXISTS provider_health (
	tenant_id         TEXT NOT NULL,
	provider_id       TEXT NOT NULL,
	success_count     INTEGER NOT NULL DEFAULT 0,
	failure_count     INTEGER NOT NULL DEFAULT 0,
	last_success_at   TEXT,
	last_failure_at   TEXT,
	circuit_state     TEXT NOT NULL DEFAULT 'closed',
	circuit_opened_at TEXT,
	updated_at        TEXT NOT NULL,
	PRIMARY KEY (tenant_id, provider_id)
);

CREATE TABLE IF NOT EXISTS enrichment_jobs (
	id           TEXT PRIMARY KEY,
	tenant_id    TEXT NOT NULL,
	contact_id   TEXT NOT NULL,
	status       TEXT NOT NULL,
	total_cost   REAL NOT NULL DEFAULT 0,
	body         TEXT NOT NULL,
	created_at   TEXT NOT NULL,
	completed_at TEXT
);

CREATE TABLE IF NOT EXISTS enrichment_cache (
	tenant_id   TEXT NOT NULL,
	contact_id  TEXT NOT NULL,
	field       TEXT NOT NULL,
	value       TEXT NOT NULL,
	confidence  REAL NOT NULL,
	provider_id TEXT NOT NULL,
	cached_at   TEXT NOT NULL,
	expires_at  TEXT NOT NULL,
	PRIMARY KEY (tenant_id, contact_id, field)
);

CREATE INDEX IF NOT EXISTS idx_jobs_tenant_created ON enrichment_jobs(tenant_id, created_at);
CREATE INDEX IF NOT EXISTS idx_jobs_created ON enrichment_jobs(created_at);
CREATE INDEX IF NOT EXISTS idx_jobs_tenant_contact ON enrichment_jobs(tenant_id, contact_id);
CREATE INDEX IF NOT EXISTS idx_enrichment_cache_expires_at ON enrichment_cache(expires_at);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, sqliteMigration); err != nil {
		return eris.Wrap(err, "sqlite: migrate")
	}
	return nil
}

func (s *SQLiteStore) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return eris.Wrap(err, "sqlite: ping")
	}
	return nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func fmtTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func fmtTimePtr(t *time.Time) any {
	if t == nil {
		return nil
	}
	return fmtTime(*t)
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		return time.Time{}, eris.Wrapf(err, "sqlite: parse time %q", s)
	}
	return t, nil
}

func parseTimePtr(ns sql.NullString) (*time.Time, error) {
	if !ns.Valid {
		return nil, nil
	}
	t, err := parseTime(ns.String)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// --- Contacts ---

func (s *SQLiteStore) GetContact(ctx context.Context, tenantID, id string) (*model.Contact, error) {
	var c model.Contact
	var created, updated string
	err := s.db.QueryRowContext(ctx,
		`SELECT `+contactColumns+` FROM contacts WHERE tenant_id = ? AND id = ?`,
		tenantID, id,
	).Scan(&c.TenantID, &c.ID, &c.Email, &c.Phone, &c.FirstName, &c.LastName, &c.Company, &c.Domain, &c.LinkedInURL, &created, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, eris.Wrapf(model.ErrNotFound, "contact %s", id)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get contact %s", id)
	}
	if c.CreatedAt, err = parseTime(created); err != nil {
		return nil, err
	}
	if c.UpdatedAt, err = parseTime(updated); err != nil {
		return nil, err
	}
	return &c, nil
}

const sqliteUpsertContact = `INSERT INTO contacts (` + contactColumns + `)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT (tenant_id, id) DO UPDATE SET
	  email = excluded.email, phone = excluded.phone,
	  first_name = excluded.first_name, last_name = excluded.last_name,
	  company = excluded.company, domain = excluded.domain,
	  linkedin_url = excluded.linkedin_url, updated_at = excluded.updated_at`

func contactArgs(c model.Contact, now string) []any {
	return []any{c.TenantID, c.ID, c.Email, c.Phone, c.FirstName, c.LastName, c.Company, c.Domain, c.LinkedInURL, now, now}
}

func (s *SQLiteStore) UpsertContact(ctx context.Context, c model.Contact) error {
	if err := c.Validate(); err != nil {
		return err
	}
	if _, err := s.db.ExecContext(ctx, sqliteUpsertContact, contactArgs(c, fmtTime(time.Now()))...); err != nil {
		return eris.Wrapf(err, "sqlite: upsert contact %s", c.ID)
	}
	return nil
}

// UpsertContacts writes all contacts in one transaction.
func (s *SQLiteStore) UpsertContacts(ctx context.Context, cs []model.Contact) (int64, error) {
	for _, c := range cs {
		if err := c.Validate(); err != nil {
			return 0, err
		}
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: begin tx")
	}
	defer tx.Rollback() //nolint:errcheck

	stmt, err := tx.PrepareContext(ctx, sqliteUpsertContact)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: prepare upsert contact")
	}
	defer stmt.Close() //nolint:errcheck

	now := fmtTime(time.Now())
	for _, c := range cs {
		if _, err := stmt.ExecContext(ctx, contactArgs(c, now)...); err != nil {
			return 0, eris.Wrapf(err, "sqlite: upsert contact %s", c.ID)
		}
	}
	if err := tx.Commit(); err != nil {
		return 0, eris.Wrap(err, "sqlite: commit tx")
	}
	return int64(len(cs)), nil
}

// --- Providers ---

func scanSQLiteProvider(row scannable) (*model.EnrichmentProvider, error) {
	var p model.EnrichmentProvider
	var fieldsJSON string
	var configJSON sql.NullString
	var created, updated string
	if err := row.Scan(&p.TenantID, &p.ID, &p.Name, &p.Type, &fieldsJSON, &p.Priority, &p.CostPerLookup,
		&p.AvgLatencyMs, &p.SuccessRate, &p.SupportsBatch, &configJSON, &p.Enabled, &created, &updated); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(fieldsJSON), &p.SupportedFields); err != nil {
		return nil, eris.Wrap(err, "sqlite: unmarshal supported fields")
	}
	if configJSON.Valid && configJSON.String != "" {
		if err := json.Unmarshal([]byte(configJSON.String), &p.Config); err != nil {
			return nil, eris.Wrap(err, "sqlite: unmarshal provider config")
		}
	}
	var err error
	if p.CreatedAt, err = parseTime(created); err != nil {
		return nil, err
	}
	if p.UpdatedAt, err = parseTime(updated); err != nil {
		return nil, err
	}
	return &p, nil
}

func (s *SQLiteStore) ListProviders(ctx context.Context, tenantID string) ([]model.EnrichmentProvider, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+providerColumns+` FROM providers WHERE tenant_id = ? ORDER BY priority, id`,
		tenantID,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list providers")
	}
	defer rows.Close() //nolint:errcheck

	var out []model.EnrichmentProvider
	for rows.Next() {
		p, err := scanSQLiteProvider(rows)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: scan provider")
		}
		out = append(out, *p)
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "sqlite: list providers iterate")
	}
	return out, nil
}

func (s *SQLiteStore) GetProvider(ctx context.Context, tenantID, id string) (*model.EnrichmentProvider, error) {
	p, err := scanSQLiteProvider(s.db.QueryRowContext(ctx,
		`SELECT `+providerColumns+` FROM providers WHERE tenant_id = ? AND id = ?`,
		tenantID, id,
	))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, eris.Wrapf(model.ErrNotFound, "provider %s", id)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get provider %s", id)
	}
	return p, nil
}

func (s *SQLiteStore) SaveProvider(ctx context.Context, p model.EnrichmentProvider) error {
	fieldsJSON, err := json.Marshal(p.SupportedFields)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal supported fields")
	}
	var configJSON any
	if p.Config != nil {
		b, err := json.Marshal(p.Config)
		if err != nil {
			return eris.Wrap(err, "sqlite: marshal provider config")
		}
		configJSON = string(b)
	}
	now := time.Now()
	if p.CreatedAt.IsZero() {
		p.CreatedAt = now
	}
	if p.UpdatedAt.IsZero() {
		p.UpdatedAt = now
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO providers (`+providerColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (tenant_id, id) DO UPDATE SET
		   name = excluded.name, type = excluded.type,
		   supported_fields = excluded.supported_fields, priority = excluded.priority,
		   cost_per_lookup = excluded.cost_per_lookup, avg_latency_ms = excluded.avg_latency_ms,
		   success_rate = excluded.success_rate, supports_batch = excluded.supports_batch,
		   config = excluded.config, enabled = excluded.enabled, updated_at = excluded.updated_at`,
		p.TenantID, p.ID, p.Name, p.Type, string(fieldsJSON), p.Priority, p.CostPerLookup,
		p.AvgLatencyMs, p.SuccessRate, p.SupportsBatch, configJSON, p.Enabled, fmtTime(p.CreatedAt), fmtTime(p.UpdatedAt),
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: save provider %s", p.ID)
	}
	return nil
}

func (s *SQLiteStore) UpdateProviderStats(ctx context.Context, tenantID, id string, avgLatencyMs, successRate float64) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE providers SET avg_latency_ms = ?, success_rate = ?, updated_at = ? WHERE tenant_id = ? AND id = ?`,
		avgLatencyMs, successRate, fmtTime(time.Now()), tenantID, id,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: update provider stats %s", id)
	}
	return checkRowsAffected(res, "provider", id)
}

// --- Waterfall configs ---

func scanSQLiteConfig(row scannable) (*model.WaterfallConfig, error) {
	var c model.WaterfallConfig
	var orderJSON, created, updated string
	var maxCost sql.NullFloat64
	if err := row.Scan(&c.TenantID, &c.Field, &orderJSON, &c.MaxAttempts, &c.TimeoutMs, &c.MinConfidence,
		&c.CacheTTLDays, &maxCost, &created, &updated); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(orderJSON), &c.ProviderOrder); err != nil {
		return nil, eris.Wrap(err, "sqlite: unmarshal provider order")
	}
	if maxCost.Valid {
		v := maxCost.Float64
		c.MaxCostPerLead = &v
	}
	var err error
	if c.CreatedAt, err = parseTime(created); err != nil {
		return nil, err
	}
	if c.UpdatedAt, err = parseTime(updated); err != nil {
		return nil, err
	}
	return &c, nil
}

func (s *SQLiteStore) GetWaterfallConfig(ctx context.Context, tenantID, field string) (*model.WaterfallConfig, error) {
	c, err := scanSQLiteConfig(s.db.QueryRowContext(ctx,
		`SELECT `+configColumns+` FROM waterfall_configs WHERE tenant_id = ? AND field = ?`,
		tenantID, field,
	))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, eris.Wrapf(model.ErrNotFound, "waterfall config %s", field)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get waterfall config %s", field)
	}
	return c, nil
}

func (s *SQLiteStore) SaveWaterfallConfig(ctx context.Context, cfg model.WaterfallConfig) error {
	orderJSON, err := json.Marshal(cfg.ProviderOrder)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal provider order")
	}
	now := time.Now()
	if cfg.CreatedAt.IsZero() {
		cfg.CreatedAt = now
	}
	var maxCost any
	if cfg.MaxCostPerLead != nil {
		maxCost = *cfg.MaxCostPerLead
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO waterfall_configs (`+configColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (tenant_id, field) DO UPDATE SET
		   provider_order = excluded.provider_order, max_attempts = excluded.max_attempts,
		   timeout_ms = excluded.timeout_ms, min_confidence = excluded.min_confidence,
		   cache_ttl_days = excluded.cache_ttl_days, max_cost_per_lead = excluded.max_cost_per_lead,
		   updated_at = excluded.updated_at`,
		cfg.TenantID, cfg.Field, string(orderJSON), cfg.MaxAttempts, cfg.TimeoutMs, cfg.MinConfidence,
		cfg.CacheTTLDays, maxCost, fmtTime(cfg.CreatedAt), fmtTime(now),
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: save waterfall config %s", cfg.Field)
	}
	return nil
}

func (s *SQLiteStore) ListWaterfallConfigs(ctx context.Context, tenantID string) ([]model.WaterfallConfig, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+configColumns+` FROM waterfall_configs WHERE tenant_id = ? ORDER BY field`,
		tenantID,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list waterfall configs")
	}
	defer rows.Close() //nolint:errcheck

	var out []model.WaterfallConfig
	for rows.Next() {
		c, err := scanSQLiteConfig(rows)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: scan waterfall config")
		}
		out = append(out, *c)
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "sqlite: list waterfall configs iterate")
	}
	return out, nil
}

func (s *SQLiteStore) DeleteWaterfallConfig(ctx context.Context, tenantID, field string) error {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM waterfall_configs WHERE tenant_id = ? AND field = ?`,
		tenantID, field,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: delete waterfall config %s", field)
	}
	return checkRowsAffected(res, "waterfall config", field)
}

// --- Provider health ---

func scanSQLiteHealth(row scannable) (*model.ProviderHealth, error) {
	var h model.ProviderHealth
	var state, updated string
	var lastSuccess, lastFailure, opened sql.NullString
	if err := row.Scan(&h.TenantID, &h.ProviderID, &h.SuccessCount, &h.FailureCount, &lastSuccess,
		&lastFailure, &state, &opened, &updated); err != nil {
		return nil, err
	}
	h.CircuitState = model.CircuitState(state)
	var err error
	if h.LastSuccessAt, err = parseTimePtr(lastSuccess); err != nil {
		return nil, err
	}
	if h.LastFailureAt, err = parseTimePtr(lastFailure); err != nil {
		return nil, err
	}
	if h.CircuitOpenedAt, err = parseTimePtr(opened); err != nil {
		return nil, err
	}
	if h.UpdatedAt, err = parseTime(updated); err != nil {
		return nil, err
	}
	return &h, nil
}

func (s *SQLiteStore) GetHealth(ctx context.Context, tenantID, providerID string) (*model.ProviderHealth, error) {
	h, err := scanSQLiteHealth(s.db.QueryRowContext(ctx,
		`SELECT `+healthColumns+` FROM provider_health WHERE tenant_id = ? AND provider_id = ?`,
		tenantID, providerID,
	))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, model.ErrNotFound
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get health %s", providerID)
	}
	return h, nil
}

func (s *SQLiteStore) SaveHealth(ctx context.Context, h model.ProviderHealth) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO provider_health (`+healthColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (tenant_id, provider_id) DO UPDATE SET
		   success_count = excluded.success_count, failure_count = excluded.failure_count,
		   last_success_at = excluded.last_success_at, last_failure_at = excluded.last_failure_at,
		   circuit_state = excluded.circuit_state, circuit_opened_at = excluded.circuit_opened_at,
		   updated_at = excluded.updated_at`,
		h.TenantID, h.ProviderID, h.SuccessCount, h.FailureCount, fmtTimePtr(h.LastSuccessAt),
		fmtTimePtr(h.LastFailureAt), string(h.CircuitState), fmtTimePtr(h.CircuitOpenedAt), fmtTime(h.UpdatedAt),
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: save health %s", h.ProviderID)
	}
	return nil
}

func (s *SQLiteStore) ListHealth(ctx context.Context, tenantID string) ([]model.ProviderHealth, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+healthColumns+` FROM provider_health WHERE tenant_id = ? ORDER BY provider_id`,
		tenantID,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list health")
	}
	defer rows.Close() //nolint:errcheck

	var out []model.ProviderHealth
	for rows.Next() {
		h, err := scanSQLiteHealth(rows)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: scan health")
		}
		out = append(out, *h)
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "sqlite: list health iterate")
	}
	return out, nil
}

// --- Jobs ---

func (s *SQLiteStore) SaveJob(ctx context.Context, job *model.EnrichmentJob) error {
	body, err := json.Marshal(job)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal job")
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO enrichment_jobs (id, tenant_id, contact_id, status, total_cost, body, created_at, completed_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (id) DO UPDATE SET
		   status = excluded.status, total_cost = excluded.total_cost,
		   body = excluded.body, completed_at = excluded.completed_at`,
		job.ID, job.TenantID, job.ContactID, string(job.Status), job.TotalCost, string(body),
		fmtTime(job.CreatedAt), fmtTimePtr(job.CompletedAt),
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: save job %s", job.ID)
	}
	return nil
}

func unmarshalJob(body string) (*model.EnrichmentJob, error) {
	var j model.EnrichmentJob
	if err := json.Unmarshal([]byte(body), &j); err != nil {
		return nil, eris.Wrap(err, "sqlite: unmarshal job")
	}
	return &j, nil
}

func (s *SQLiteStore) GetJob(ctx context.Context, tenantID, id string) (*model.EnrichmentJob, error) {
	var body string
	err := s.db.QueryRowContext(ctx,
		`SELECT body FROM enrichment_jobs WHERE tenant_id = ? AND id = ?`,
		tenantID, id,
	).Scan(&body)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, eris.Wrapf(model.ErrNotFound, "job %s", id)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get job %s", id)
	}
	return unmarshalJob(body)
}

func (s *SQLiteStore) ListJobs(ctx context.Context, filter JobFilter) ([]model.EnrichmentJob, error) {
	var (
		conds []string
		args  []any
	)
	if filter.TenantID != "" {
		conds = append(conds, "tenant_id = ?")
		args = append(args, filter.TenantID)
	}
	if filter.ContactID != "" {
		conds = append(conds, "contact_id = ?")
		args = append(args, filter.ContactID)
	}
	if filter.Status != "" {
		conds = append(conds, "status = ?")
		args = append(args, string(filter.Status))
	}
	if !filter.CreatedAfter.IsZero() {
		conds = append(conds, "created_at >= ?")
		args = append(args, fmtTime(filter.CreatedAfter))
	}
	query := `SELECT body FROM enrichment_jobs`
	if len(conds) > 0 {
		query += ` WHERE ` + strings.Join(conds, " AND ")
	}
	query += ` ORDER BY created_at DESC LIMIT ? OFFSET ?`
	args = append(args, effectiveLimit(filter.Limit), filter.Offset)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list jobs")
	}
	defer rows.Close() //nolint:errcheck

	var out []model.EnrichmentJob
	for rows.Next() {
		var body string
		if err := rows.Scan(&body); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan job")
		}
		j, err := unmarshalJob(body)
		if err != nil {
			return nil, err
		}
		out = append(out, *j)
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "sqlite: list jobs iterate")
	}
	return out, nil
}

// --- Cache ---

func (s *SQLiteStore) GetCacheEntry(ctx context.Context, tenantID, contactID, field string) (*model.CacheEntry, error) {
	var e model.CacheEntry
	var value, cached, expires string
	err := s.db.QueryRowContext(ctx,
		`SELECT tenant_id, contact_id, field, value, confidence, provider_id, cached_at, expires_at
		 FROM enrichment_cache WHERE tenant_id = ? AND contact_id = ? AND field = ?`,
		tenantID, contactID, field,
	).Scan(&e.TenantID, &e.ContactID, &e.Field, &value, &e.Confidence, &e.ProviderID, &cached, &expires)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, model.ErrNotFound
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get cache entry %s", field)
	}
	if err := json.Unmarshal([]byte(value), &e.Value); err != nil {
		return nil, eris.Wrap(err, "sqlite: unmarshal cache value")
	}
	if e.CachedAt, err = parseTime(cached); err != nil {
		return nil, err
	}
	if e.ExpiresAt, err = parseTime(expires); err != nil {
		return nil, err
	}
	return &e, nil
}

func (s *SQLiteStore) SetCacheEntry(ctx context.Context, e model.CacheEntry) error {
	value, err := json.Marshal(e.Value)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal cache value")
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO enrichment_cache (tenant_id, contact_id, field, value, confidence, provider_id, cached_at, expires_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (tenant_id, contact_id, field) DO UPDATE SET
		   value = excluded.value, confidence = excluded.confidence, provider_id = excluded.provider_id,
		   cached_at = excluded.cached_at, expires_at = excluded.expires_at`,
		e.TenantID, e.ContactID, e.Field, string(value), e.Confidence, e.ProviderID, fmtTime(e.CachedAt), fmtTime(e.ExpiresAt),
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: set cache entry %s", e.Field)
	}
	return nil
}

func (s *SQLiteStore) DeleteCacheEntries(ctx context.Context, tenantID, contactID, field string) error {
	var err error
	if field == "" {
		_, err = s.db.ExecContext(ctx,
			`DELETE FROM enrichment_cache WHERE tenant_id = ? AND contact_id = ?`,
			tenantID, contactID,
		)
	} else {
		_, err = s.db.ExecContext(ctx,
			`DELETE FROM enrichment_cache WHERE tenant_id = ? AND contact_id = ? AND field = ?`,
			tenantID, contactID, field,
		)
	}
	if err != nil {
		return eris.Wrapf(err, "sqlite: delete cache entries %s", contactID)
	}
	return nil
}

func (s *SQLiteStore) DeleteExpiredCache(ctx context.Context, now time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM enrichment_cache WHERE expires_at <= ?`, fmtTime(now))
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: delete expired cache")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: rows affected")
	}
	return n, nil
}

func checkRowsAffected(res sql.Result, entity, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "rows affected")
	}
	if n == 0 {
		return eris.Wrapf(model.ErrNotFound, "%s %s", entity, id)
	}
	return nil
}

type scannable interface {
	Scan(dest ...any) error
}

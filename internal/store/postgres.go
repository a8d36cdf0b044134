package store

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/sells-group/enrich-waterfall/internal/db"
	"github.com/sells-group/enrich-waterfall/internal/model"
)

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool    db.Pool
	closeFn func()
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns := int32(10)
	minConns := int32(2)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool, closeFn: pool.Close}, nil
}

const postgresMigration = `
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
	created_at   TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at   TIMESTAMPTZ NOT NULL DEFAULT now(),
	PRIMARY KEY (tenant_id, id)
);

CREATE TABLE IF NOT EXISTS providers (
	tenant_id        TEXT NOT NULL DEFAULT '',
	id               TEXT NOT NULL,
	name             TEXT NOT NULL,
	type             TEXT NOT NULL,
	supported_fields JSONB NOT NULL DEFAULT '[]',
	priority         INTEGER NOT NULL DEFAULT 0,
	cost_per_lookup  DOUBLE PRECISION NOT NULL DEFAULT 0,
	avg_latency_ms   DOUBLE PRECISION NOT NULL DEFAULT 0,
	success_rate     DOUBLE PRECISION NOT NULL DEFAULT 1,
	supports_batch   BOOLEAN NOT NULL DEFAULT false,
	config           JSONB,
	enabled          BOOLEAN NOT NULL DEFAULT true,
	created_at       TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at       TIMESTAMPTZ NOT NULL DEFAULT now(),
	PRIMARY KEY (tenant_id, id)
);

CREATE TABLE IF NOT EXISTS waterfall_configs (
	tenant_id         TEXT NOT NULL,
	field             TEXT NOT NULL,
	provider_order    JSONB NOT NULL DEFAULT '[]',
	max_attempts      INTEGER NOT NULL,
	timeout_ms        INTEGER NOT NULL,
	min_confidence    DOUBLE PRECISION NOT NULL,
	cache_ttl_days    INTEGER NOT NULL,
	max_cost_per_lead DOUBLE PRECISION,
	created_at        TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at        TIMESTAMPTZ NOT NULL DEFAULT now(),
	PRIMARY KEY (tenant_id, field)
);

CREATE TABLE IF NOT EXISTS provider_health (
	tenant_id         TEXT NOT NULL,
	provider_id       TEXT NOT NULL,
	success_count     BIGINT NOT NULL DEFAULT 0,
	failure_count     BIGINT NOT NULL DEFAULT 0,
	last_success_at   TIMESTAMPTZ,
	last_failure_at   TIMESTAMPTZ,
	circuit_state     TEXT NOT NULL DEFAULT 'closed',
	circuit_opened_at TIMESTAMPTZ,
	updated_at        TIMESTAMPTZ NOT NULL DEFAULT now(),
	PRIMARY KEY (tenant_id, provider_id)
);

CREATE TABLE IF NOT EXISTS enrichment_jobs (
	id           TEXT PRIMARY KEY,
	tenant_id    TEXT NOT NULL,
	contact_id   TEXT NOT NULL,
	status       TEXT NOT NULL,
	total_cost   DOUBLE PRECISION NOT NULL DEFAULT 0,
	body         JSONB NOT NULL,
	created_at   TIMESTAMPTZ NOT NULL DEFAULT now(),
	completed_at TIMESTAMPTZ
);

CREATE INDEX IF NOT EXISTS idx_jobs_tenant_created ON enrichment_jobs(tenant_id, created_at DESC);
CREATE INDEX IF NOT EXISTS idx_jobs_created ON enrichment_jobs(created_at DESC);
CREATE INDEX IF NOT EXISTS idx_jobs_tenant_contact ON enrichment_jobs(tenant_id, contact_id);

CREATE TABLE IF NOT EXISTS enrichment_cache (
	tenant_id   TEXT NOT NULL,
	contact_id  TEXT NOT NULL,
	field       TEXT NOT NULL,
	value       JSONB NOT NULL,
	confidence  DOUBLE PRECISION NOT NULL,
	provider_id TEXT NOT NULL,
	cached_at   TIMESTAMPTZ NOT NULL DEFAULT now(),
	expires_at  TIMESTAMPTZ NOT NULL,
	PRIMARY KEY (tenant_id, contact_id, field)
);

CREATE INDEX IF NOT EXISTS idx_enrichment_cache_expires_at ON enrichment_cache(expires_at);
`

func (s *PostgresStore) Ping(ctx context.Context) error {
	if err := s.pool.Ping(ctx); err != nil {
		return eris.Wrap(err, "postgres: ping")
	}
	return nil
}

func (s *PostgresStore) Migrate(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, postgresMigration); err != nil {
		return eris.Wrap(err, "postgres: migrate")
	}
	return nil
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

// notFound maps pgx.ErrNoRows to model.ErrNotFound.
func notFound(err error, what string) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return eris.Wrapf(model.ErrNotFound, "%s", what)
	}
	return eris.Wrapf(err, "postgres: get %s", what)
}

// --- Contacts ---

const contactColumns = `tenant_id, id, email, phone, first_name, last_name, company, domain, linkedin_url, created_at, updated_at`

func (s *PostgresStore) GetContact(ctx context.Context, tenantID, id string) (*model.Contact, error) {
	var c model.Contact
	err := s.pool.QueryRow(ctx,
		`SELECT `+contactColumns+` FROM contacts WHERE tenant_id = $1 AND id = $2`,
		tenantID, id,
	).Scan(&c.TenantID, &c.ID, &c.Email, &c.Phone, &c.FirstName, &c.LastName, &c.Company, &c.Domain, &c.LinkedInURL, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return nil, notFound(err, "contact "+id)
	}
	return &c, nil
}

func (s *PostgresStore) UpsertContact(ctx context.Context, c model.Contact) error {
	if err := c.Validate(); err != nil {
		return err
	}
	now := time.Now().UTC()
	_, err := s.pool.Exec(ctx,
		`INSERT INTO contacts (`+contactColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $10)
		 ON CONFLICT (tenant_id, id) DO UPDATE SET
		   email = EXCLUDED.email, phone = EXCLUDED.phone,
		   first_name = EXCLUDED.first_name, last_name = EXCLUDED.last_name,
		   company = EXCLUDED.company, domain = EXCLUDED.domain,
		   linkedin_url = EXCLUDED.linkedin_url, updated_at = EXCLUDED.updated_at`,
		c.TenantID, c.ID, c.Email, c.Phone, c.FirstName, c.LastName, c.Company, c.Domain, c.LinkedInURL, now,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: upsert contact %s", c.ID)
	}
	return nil
}

// UpsertContacts bulk-loads contacts through a COPY into a temp table.
func (s *PostgresStore) UpsertContacts(ctx context.Context, cs []model.Contact) (int64, error) {
	for _, c := range cs {
		if err := c.Validate(); err != nil {
			return 0, err
		}
	}
	n, err := db.UpsertContacts(ctx, s.pool, cs, time.Now().UTC())
	if err != nil {
		return 0, eris.Wrap(err, "postgres: upsert contacts")
	}
	return n, nil
}

// --- Providers ---

const providerColumns = `tenant_id, id, name, type, supported_fields, priority, cost_per_lookup, avg_latency_ms, success_rate, supports_batch, config, enabled, created_at, updated_at`

func scanProvider(row pgx.Row) (*model.EnrichmentProvider, error) {
	var p model.EnrichmentProvider
	var fieldsJSON, configJSON []byte
	if err := row.Scan(&p.TenantID, &p.ID, &p.Name, &p.Type, &fieldsJSON, &p.Priority, &p.CostPerLookup,
		&p.AvgLatencyMs, &p.SuccessRate, &p.SupportsBatch, &configJSON, &p.Enabled, &p.CreatedAt, &p.UpdatedAt); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(fieldsJSON, &p.SupportedFields); err != nil {
		return nil, eris.Wrap(err, "postgres: unmarshal supported fields")
	}
	if len(configJSON) > 0 {
		if err := json.Unmarshal(configJSON, &p.Config); err != nil {
			return nil, eris.Wrap(err, "postgres: unmarshal provider config")
		}
	}
	return &p, nil
}

func (s *PostgresStore) ListProviders(ctx context.Context, tenantID string) ([]model.EnrichmentProvider, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+providerColumns+` FROM providers WHERE tenant_id = $1 ORDER BY priority, id`,
		tenantID,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list providers")
	}
	defer rows.Close()

	var out []model.EnrichmentProvider
	for rows.Next() {
		p, err := scanProvider(rows)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan provider")
		}
		out = append(out, *p)
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "postgres: list providers iterate")
	}
	return out, nil
}

func (s *PostgresStore) GetProvider(ctx context.Context, tenantID, id string) (*model.EnrichmentProvider, error) {
	p, err := scanProvider(s.pool.QueryRow(ctx,
		`SELECT `+providerColumns+` FROM providers WHERE tenant_id = $1 AND id = $2`,
		tenantID, id,
	))
	if err != nil {
		return nil, notFound(err, "provider "+id)
	}
	return p, nil
}

func (s *PostgresStore) SaveProvider(ctx context.Context, p model.EnrichmentProvider) error {
	fieldsJSON, err := json.Marshal(p.SupportedFields)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal supported fields")
	}
	var configJSON []byte
	if p.Config != nil {
		if configJSON, err = json.Marshal(p.Config); err != nil {
			return eris.Wrap(err, "postgres: marshal provider config")
		}
	}
	now := time.Now().UTC()
	if p.CreatedAt.IsZero() {
		p.CreatedAt = now
	}
	if p.UpdatedAt.IsZero() {
		p.UpdatedAt = now
	}
	_, err = s.pool.Exec(ctx,
		`INSERT INTO providers (`+providerColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		 ON CONFLICT (tenant_id, id) DO UPDATE SET
		   name = EXCLUDED.name, type = EXCLUDED.type,
		   supported_fields = EXCLUDED.supported_fields, priority = EXCLUDED.priority,
		   cost_per_lookup = EXCLUDED.cost_per_lookup, avg_latency_ms = EXCLUDED.avg_latency_ms,
		   success_rate = EXCLUDED.success_rate, supports_batch = EXCLUDED.supports_batch,
		   config = EXCLUDED.config, enabled = EXCLUDED.enabled, updated_at = EXCLUDED.updated_at`,
		p.TenantID, p.ID, p.Name, p.Type, fieldsJSON, p.Priority, p.CostPerLookup,
		p.AvgLatencyMs, p.SuccessRate, p.SupportsBatch, configJSON, p.Enabled, p.CreatedAt, p.UpdatedAt,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: save provider %s", p.ID)
	}
	return nil
}

func (s *PostgresStore) UpdateProviderStats(ctx context.Context, tenantID, id string, avgLatencyMs, successRate float64) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE providers SET avg_latency_ms = $1, success_rate = $2, updated_at = $3 WHERE tenant_id = $4 AND id = $5`,
		avgLatencyMs, successRate, time.Now().UTC(), tenantID, id,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: update provider stats %s", id)
	}
	if tag.RowsAffected() == 0 {
		return eris.Wrapf(model.ErrNotFound, "provider %s", id)
	}
	return nil
}

// --- Waterfall configs ---

const configColumns = `tenant_id, field, provider_order, max_attempts, timeout_ms, min_confidence, cache_ttl_days, max_cost_per_lead, created_at, updated_at`

func scanConfig(row pgx.Row) (*model.WaterfallConfig, error) {
	var c model.WaterfallConfig
	var orderJSON []byte
	if err := row.Scan(&c.TenantID, &c.Field, &orderJSON, &c.MaxAttempts, &c.TimeoutMs, &c.MinConfidence,
		&c.CacheTTLDays, &c.MaxCostPerLead, &c.CreatedAt, &c.UpdatedAt); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(orderJSON, &c.ProviderOrder); err != nil {
		return nil, eris.Wrap(err, "postgres: unmarshal provider order")
	}
	return &c, nil
}

func (s *PostgresStore) GetWaterfallConfig(ctx context.Context, tenantID, field string) (*model.WaterfallConfig, error) {
	c, err := scanConfig(s.pool.QueryRow(ctx,
		`SELECT `+configColumns+` FROM waterfall_configs WHERE tenant_id = $1 AND field = $2`,
		tenantID, field,
	))
	if err != nil {
		return nil, notFound(err, "waterfall config "+field)
	}
	return c, nil
}

func (s *PostgresStore) SaveWaterfallConfig(ctx context.Context, cfg model.WaterfallConfig) error {
	orderJSON, err := json.Marshal(cfg.ProviderOrder)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal provider order")
	}
	now := time.Now().UTC()
	if cfg.CreatedAt.IsZero() {
		cfg.CreatedAt = now
	}
	_, err = s.pool.Exec(ctx,
		`INSERT INTO waterfall_configs (`+configColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		 ON CONFLICT (tenant_id, field) DO UPDATE SET
		   provider_order = EXCLUDED.provider_order, max_attempts = EXCLUDED.max_attempts,
		   timeout_ms = EXCLUDED.timeout_ms, min_confidence = EXCLUDED.min_confidence,
		   cache_ttl_days = EXCLUDED.cache_ttl_days, max_cost_per_lead = EXCLUDED.max_cost_per_lead,
		   updated_at = EXCLUDED.updated_at`,
		cfg.TenantID, cfg.Field, orderJSON, cfg.MaxAttempts, cfg.TimeoutMs, cfg.MinConfidence,
		cfg.CacheTTLDays, cfg.MaxCostPerLead, cfg.CreatedAt, now,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: save waterfall config %s", cfg.Field)
	}
	return nil
}

func (s *PostgresStore) ListWaterfallConfigs(ctx context.Context, tenantID string) ([]model.WaterfallConfig, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+configColumns+` FROM waterfall_configs WHERE tenant_id = $1 ORDER BY field`,
		tenantID,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list waterfall configs")
	}
	defer rows.Close()

	var out []model.WaterfallConfig
	for rows.Next() {
		c, err := scanConfig(rows)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan waterfall config")
		}
		out = append(out, *c)
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "postgres: list waterfall configs iterate")
	}
	return out, nil
}

func (s *PostgresStore) DeleteWaterfallConfig(ctx context.Context, tenantID, field string) error {
	tag, err := s.pool.Exec(ctx,
		`DELETE FROM waterfall_configs WHERE tenant_id = $1 AND field = $2`,
		tenantID, field,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: delete waterfall config %s", field)
	}
	if tag.RowsAffected() == 0 {
		return eris.Wrapf(model.ErrNotFound, "waterfall config %s", field)
	}
	return nil
}

// --- Provider health ---

const healthColumns = `tenant_id, provider_id, success_count, failure_count, last_success_at, last_failure_at, circuit_state, circuit_opened_at, updated_at`

func scanHealth(row pgx.Row) (*model.ProviderHealth, error) {
	var h model.ProviderHealth
	var state string
	if err := row.Scan(&h.TenantID, &h.ProviderID, &h.SuccessCount, &h.FailureCount, &h.LastSuccessAt,
		&h.LastFailureAt, &state, &h.CircuitOpenedAt, &h.UpdatedAt); err != nil {
		return nil, err
	}
	h.CircuitState = model.CircuitState(state)
	return &h, nil
}

func (s *PostgresStore) GetHealth(ctx context.Context, tenantID, providerID string) (*model.ProviderHealth, error) {
	h, err := scanHealth(s.pool.QueryRow(ctx,
		`SELECT `+healthColumns+` FROM provider_health WHERE tenant_id = $1 AND provider_id = $2`,
		tenantID, providerID,
	))
	if err != nil {
		return nil, notFound(err, "health "+providerID)
	}
	return h, nil
}

func (s *PostgresStore) SaveHealth(ctx context.Context, h model.ProviderHealth) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO provider_health (`+healthColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		 ON CONFLICT (tenant_id, provider_id) DO UPDATE SET
		   success_count = EXCLUDED.success_count, failure_count = EXCLUDED.failure_count,
		   last_success_at = EXCLUDED.last_success_at, last_failure_at = EXCLUDED.last_failure_at,
		   circuit_state = EXCLUDED.circuit_state, circuit_opened_at = EXCLUDED.circuit_opened_at,
		   updated_at = EXCLUDED.updated_at`,
		h.TenantID, h.ProviderID, h.SuccessCount, h.FailureCount, h.LastSuccessAt,
		h.LastFailureAt, string(h.CircuitState), h.CircuitOpenedAt, h.UpdatedAt,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: save health %s", h.ProviderID)
	}
	return nil
}

func (s *PostgresStore) ListHealth(ctx context.Context, tenantID string) ([]model.ProviderHealth, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+healthColumns+` FROM provider_health WHERE tenant_id = $1 ORDER BY provider_id`,
		tenantID,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list health")
	}
	defer rows.Close()

	var out []model.ProviderHealth
	for rows.Next() {
		h, err := scanHealth(rows)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan health")
		}
		out = append(out, *h)
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "postgres: list health iterate")
	}
	return out, nil
}

// --- Jobs ---

func (s *PostgresStore) SaveJob(ctx context.Context, job *model.EnrichmentJob) error {
	body, err := json.Marshal(job)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal job")
	}
	_, err = s.pool.Exec(ctx,
		`INSERT INTO enrichment_jobs (id, tenant_id, contact_id, status, total_cost, body, created_at, completed_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		 ON CONFLICT (id) DO UPDATE SET
		   status = EXCLUDED.status, total_cost = EXCLUDED.total_cost,
		   body = EXCLUDED.body, completed_at = EXCLUDED.completed_at`,
		job.ID, job.TenantID, job.ContactID, string(job.Status), job.TotalCost, body, job.CreatedAt, job.CompletedAt,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: save job %s", job.ID)
	}
	return nil
}

func (s *PostgresStore) GetJob(ctx context.Context, tenantID, id string) (*model.EnrichmentJob, error) {
	var body []byte
	err := s.pool.QueryRow(ctx,
		`SELECT body FROM enrichment_jobs WHERE tenant_id = $1 AND id = $2`,
		tenantID, id,
	).Scan(&body)
	if err != nil {
		return nil, notFound(err, "job "+id)
	}
	var j model.EnrichmentJob
	if err := json.Unmarshal(body, &j); err != nil {
		return nil, eris.Wrap(err, "postgres: unmarshal job")
	}
	return &j, nil
}

func (s *PostgresStore) ListJobs(ctx context.Context, filter JobFilter) ([]model.EnrichmentJob, error) {
	var (
		conds []string
		args  []any
	)
	add := func(cond string, v any) {
		args = append(args, v)
		conds = append(conds, cond+" $"+strconv.Itoa(len(args)))
	}
	if filter.TenantID != "" {
		add("tenant_id =", filter.TenantID)
	}
	if filter.ContactID != "" {
		add("contact_id =", filter.ContactID)
	}
	if filter.Status != "" {
		add("status =", string(filter.Status))
	}
	if !filter.CreatedAfter.IsZero() {
		add("created_at >=", filter.CreatedAfter)
	}
	query := `SELECT body FROM enrichment_jobs`
	if len(conds) > 0 {
		query += ` WHERE ` + strings.Join(conds, " AND ")
	}
	args = append(args, effectiveLimit(filter.Limit), filter.Offset)
	query += ` ORDER BY created_at DESC LIMIT $` + strconv.Itoa(len(args)-1) + ` OFFSET $` + strconv.Itoa(len(args))

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list jobs")
	}
	defer rows.Close()

	var out []model.EnrichmentJob
	for rows.Next() {
		var body []byte
		if err := rows.Scan(&body); err != nil {
			return nil, eris.Wrap(err, "postgres: scan job")
		}
		var j model.EnrichmentJob
		if err := json.Unmarshal(body, &j); err != nil {
			return nil, eris.Wrap(err, "postgres: unmarshal job")
		}
		out = append(out, j)
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "postgres: list jobs iterate")
	}
	return out, nil
}

// --- Cache ---

func (s *PostgresStore) GetCacheEntry(ctx context.Context, tenantID, contactID, field string) (*model.CacheEntry, error) {
	var e model.CacheEntry
	var value []byte
	err := s.pool.QueryRow(ctx,
		`SELECT tenant_id, contact_id, field, value, confidence, provider_id, cached_at, expires_at
		 FROM enrichment_cache WHERE tenant_id = $1 AND contact_id = $2 AND field = $3`,
		tenantID, contactID, field,
	).Scan(&e.TenantID, &e.ContactID, &e.Field, &value, &e.Confidence, &e.ProviderID, &e.CachedAt, &e.ExpiresAt)
	if err != nil {
		return nil, notFound(err, "cache entry "+field)
	}
	if err := json.Unmarshal(value, &e.Value); err != nil {
		return nil, eris.Wrap(err, "postgres: unmarshal cache value")
	}
	return &e, nil
}

func (s *PostgresStore) SetCacheEntry(ctx context.Context, e model.CacheEntry) error {
	value, err := json.Marshal(e.Value)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal cache value")
	}
	_, err = s.pool.Exec(ctx,
		`INSERT INTO enrichment_cache (tenant_id, contact_id, field, value, confidence, provider_id, cached_at, expires_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		 ON CONFLICT (tenant_id, contact_id, field) DO UPDATE SET
		   value = EXCLUDED.value, confidence = EXCLUDED.confidence, provider_id = EXCLUDED.provider_id,
		   cached_at = EXCLUDED.cached_at, expires_at = EXCLUDED.expires_at`,
		e.TenantID, e.ContactID, e.Field, value, e.Confidence, e.ProviderID, e.CachedAt, e.ExpiresAt,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: set cache entry %s", e.Field)
	}
	return nil
}

func (s *PostgresStore) DeleteCacheEntries(ctx context.Context, tenantID, contactID, field string) error {
	var err error
	if field == "" {
		_, err = s.pool.Exec(ctx,
			`DELETE FROM enrichment_cache WHERE tenant_id = $1 AND contact_id = $2`,
			tenantID, contactID,
		)
	} else {
		_, err = s.pool.Exec(ctx,
			`DELETE FROM enrichment_cache WHERE tenant_id = $1 AND contact_id = $2 AND field = $3`,
			tenantID, contactID, field,
		)
	}
	if err != nil {
		return eris.Wrapf(err, "postgres: delete cache entries %s", contactID)
	}
	return nil
}

func (s *PostgresStore) DeleteExpiredCache(ctx context.Context, now time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM enrichment_cache WHERE expires_at <= $1`, now)
	if err != nil {
		return 0, eris.Wrap(err, "postgres: delete expired cache")
	}
	return tag.RowsAffected(), nil
}

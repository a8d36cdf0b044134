package db

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/rotisserie/eris"

	"github.com/sells-group/enrich-waterfall/internal/model"
)

// contactLoadTable is the per-transaction staging table for contact imports.
const contactLoadTable = "_contact_load"

// ContactCopyColumns is the column order rows are copied in.
var ContactCopyColumns = []string{
	"tenant_id", "id", "email", "phone", "first_name", "last_name",
	"company", "domain", "linkedin_url", "created_at", "updated_at",
}

const createContactLoad = `CREATE TEMP TABLE ` + contactLoadTable + ` (
	tenant_id    TEXT NOT NULL,
	id           TEXT NOT NULL,
	email        TEXT NOT NULL,
	phone        TEXT NOT NULL,
	first_name   TEXT NOT NULL,
	last_name    TEXT NOT NULL,
	company      TEXT NOT NULL,
	domain       TEXT NOT NULL,
	linkedin_url TEXT NOT NULL,
	created_at   TIMESTAMPTZ NOT NULL,
	updated_at   TIMESTAMPTZ NOT NULL
) ON COMMIT DROP`

// mergeContactLoad keeps created_at of existing rows and only touches a row
// whose profile actually changed, so RowsAffected counts new or edited contacts.
const mergeContactLoad = `INSERT INTO contacts (tenant_id, id, email, phone, first_name, last_name, company, domain, linkedin_url, created_at, updated_at)
SELECT tenant_id, id, email, phone, first_name, last_name, company, domain, linkedin_url, created_at, updated_at
FROM ` + contactLoadTable + `
ON CONFLICT (tenant_id, id) DO UPDATE SET
	email = EXCLUDED.email, phone = EXCLUDED.phone,
	first_name = EXCLUDED.first_name, last_name = EXCLUDED.last_name,
	company = EXCLUDED.company, domain = EXCLUDED.domain,
	linkedin_url = EXCLUDED.linkedin_url, updated_at = EXCLUDED.updated_at
WHERE (contacts.email, contacts.phone, contacts.first_name, contacts.last_name, contacts.company, contacts.domain, contacts.linkedin_url)
	IS DISTINCT FROM (EXCLUDED.email, EXCLUDED.phone, EXCLUDED.first_name, EXCLUDED.last_name, EXCLUDED.company, EXCLUDED.domain, EXCLUDED.linkedin_url)`

// UpsertContacts bulk-loads contacts: COPY into a temp table, then merge into
// contacts on (tenant_id, id). When a batch repeats a key the last row wins.
// Returns the number of contacts inserted or changed.
func UpsertContacts(ctx context.Context, pool Pool, cs []model.Contact, now time.Time) (int64, error) {
	rows := contactRows(cs, now)
	if len(rows) == 0 {
		return 0, nil
	}

	tx, err := pool.Begin(ctx)
	if err != nil {
		return 0, eris.Wrap(err, "db: upsert contacts: begin tx")
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	if _, err := tx.Exec(ctx, createContactLoad); err != nil {
		return 0, eris.Wrap(err, "db: upsert contacts: create temp table")
	}
	if _, err := tx.CopyFrom(ctx, pgx.Identifier{contactLoadTable}, ContactCopyColumns, pgx.CopyFromRows(rows)); err != nil {
		return 0, eris.Wrap(err, "db: upsert contacts: COPY into temp table")
	}
	tag, err := tx.Exec(ctx, mergeContactLoad)
	if err != nil {
		return 0, eris.Wrap(err, "db: upsert contacts: merge")
	}
	if err := tx.Commit(ctx); err != nil {
		return 0, eris.Wrap(err, "db: upsert contacts: commit tx")
	}
	return tag.RowsAffected(), nil
}

// contactRows flattens cs in ContactCopyColumns order. Postgres rejects an
// ON CONFLICT merge that hits the same key twice, so duplicates collapse to
// the last occurrence at the position of the first.
func contactRows(cs []model.Contact, now time.Time) [][]any {
	type key struct{ tenant, id string }
	pos := make(map[key]int, len(cs))
	rows := make([][]any, 0, len(cs))
	for _, c := range cs {
		row := []any{c.TenantID, c.ID, c.Email, c.Phone, c.FirstName, c.LastName, c.Company, c.Domain, c.LinkedInURL, now, now}
		k := key{c.TenantID, c.ID}
		if i, ok := pos[k]; ok {
			rows[i] = row
			continue
		}
		pos[k] = len(rows)
		rows = append(rows, row)
	}
	return rows
}

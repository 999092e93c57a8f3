// pkg/gradebook/gradebook/migrate.go
package gradebook

import (
	"context"
	"database/sql"
	"strings"

	"github.com/pkg/errors"
)

// Migrate applies the schema for the selected driver (idempotent CREATE IF NOT EXISTS).
func Migrate(ctx context.Context, db *sql.DB, driver string) error {
	var schema string
	switch normalizeDriver(driver) {
	case "postgres", "postgresql":
		schema = schemaPostgres
	case "sqlite", "sqlite3":
		schema = schemaSQLite
	default:
		return errors.Errorf("unsupported driver %q (expected postgres/sqlite)", driver)
	}

	// Try to run as a single script first; if driver rejects multi statements, fall back to splitting.
	if _, err := db.ExecContext(ctx, schema); err != nil {
		for _, stmt := range splitSQL(schema) {
			if _, e := db.ExecContext(ctx, stmt); e != nil {
				return errors.Wrapf(e, "migration failed at: %s", firstLine(stmt))
			}
		}
	}
	return nil
}

func normalizeDriver(d string) string {
	d = strings.ToLower(strings.TrimSpace(d))
	switch d {
	case "pgx", "pgsql":
		return "postgres"
	}
	return d
}

// splitSQL naively splits on ';' boundaries.
// This is acceptable for our simple DDL (no procedures/functions).
func splitSQL(s string) []string {
	parts := strings.Split(s, ";")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p+";")
		}
	}
	return out
}

func firstLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}

// ------------------------ Schemas ------------------------

const schemaPostgres = `
-- Map platform user (launch sub) to local user id
CREATE TABLE IF NOT EXISTS lti_user_map (
  local_user_id       BIGINT PRIMARY KEY,
  platform_sub        TEXT NOT NULL,
  created_at          TIMESTAMPTZ NOT NULL DEFAULT now()
);

-- One line item per lesson and site
CREATE TABLE IF NOT EXISTS gradebook_lineitems (
  id                  BIGSERIAL PRIMARY KEY,
  site_id             TEXT NOT NULL,
  lesson_id           BIGINT NOT NULL,
  label               TEXT NOT NULL,
  score_max           NUMERIC NOT NULL,
  line_item_url       TEXT NOT NULL,  -- absolute URL of created/reused line item
  created_at          TIMESTAMPTZ NOT NULL DEFAULT now(),
  updated_at          TIMESTAMPTZ NOT NULL DEFAULT now(),
  UNIQUE (site_id, lesson_id)
);

-- Passback status per lesson:user
CREATE TABLE IF NOT EXISTS grade_sync_status (
  sync_key            TEXT PRIMARY KEY,
  status              TEXT NOT NULL CHECK (status IN ('pending','ok','failed')),
  retries             INT NOT NULL DEFAULT 0,
  last_error          TEXT,
  updated_at          TIMESTAMPTZ NOT NULL DEFAULT now()
);
`

// SQLite schema uses compatible types and CURRENT_TIMESTAMP defaults.
const schemaSQLite = `
CREATE TABLE IF NOT EXISTS lti_user_map (
  local_user_id       INTEGER PRIMARY KEY,
  platform_sub        TEXT NOT NULL,
  created_at          DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS gradebook_lineitems (
  id                  INTEGER PRIMARY KEY AUTOINCREMENT,
  site_id             TEXT NOT NULL,
  lesson_id           INTEGER NOT NULL,
  label               TEXT NOT NULL,
  score_max           REAL NOT NULL,
  line_item_url       TEXT NOT NULL,
  created_at          DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
  updated_at          DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
  UNIQUE (site_id, lesson_id)
);

CREATE TABLE IF NOT EXISTS grade_sync_status (
  sync_key            TEXT PRIMARY KEY,
  status              TEXT NOT NULL CHECK (status IN ('pending','ok','failed')),
  retries             INTEGER NOT NULL DEFAULT 0,
  last_error          TEXT,
  updated_at          DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);
`

// ABOUTME: Database schema definitions
// ABOUTME: Same tables on SQLite and PostgreSQL; only the timestamp column type differs
package db

import (
	"database/sql"
	"fmt"
)

const schema = `
CREATE TABLE IF NOT EXISTS locations (
	id TEXT PRIMARY KEY,
	name TEXT NOT NULL UNIQUE,
	created_at %[1]s NOT NULL
);

CREATE TABLE IF NOT EXISTS prospects (
	id TEXT PRIMARY KEY,
	name TEXT NOT NULL DEFAULT '',
	phone TEXT NOT NULL,
	address TEXT NOT NULL DEFAULT '',
	location_id TEXT REFERENCES locations(id) ON DELETE SET NULL,
	starts_at %[1]s,
	ends_at %[1]s,
	all_day BOOLEAN NOT NULL DEFAULT FALSE,
	notes TEXT NOT NULL DEFAULT '',
	status TEXT NOT NULL CHECK(status IN ('pending', 'confirmed', 'completed', 'cancelled')),
	priority TEXT NOT NULL CHECK(priority IN ('low', 'medium', 'high')),
	position DOUBLE PRECISION NOT NULL DEFAULT 0,
	created_at %[1]s NOT NULL,
	updated_at %[1]s NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_prospects_starts_at ON prospects(starts_at);
CREATE INDEX IF NOT EXISTS idx_prospects_status_position ON prospects(status, position);

CREATE TABLE IF NOT EXISTS services (
	id TEXT PRIMARY KEY,
	prospect_id TEXT NOT NULL REFERENCES prospects(id) ON DELETE CASCADE,
	type TEXT NOT NULL CHECK(type IN ('couch', 'carpet', 'car-seats', 'mattress')),
	details TEXT NOT NULL DEFAULT '{}',
	sort_order INTEGER NOT NULL DEFAULT 0,
	created_at %[1]s NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_services_prospect_id ON services(prospect_id);

CREATE TABLE IF NOT EXISTS reminders (
	id TEXT PRIMARY KEY,
	prospect_id TEXT NOT NULL REFERENCES prospects(id) ON DELETE CASCADE,
	due_at %[1]s NOT NULL,
	note TEXT NOT NULL DEFAULT '',
	completed BOOLEAN NOT NULL DEFAULT FALSE,
	created_at %[1]s NOT NULL,
	updated_at %[1]s NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_reminders_prospect_id ON reminders(prospect_id);
CREATE INDEX IF NOT EXISTS idx_reminders_due_at ON reminders(due_at);
`

func timestampType(d Dialect) string {
	if d == Postgres {
		return "TIMESTAMPTZ"
	}
	return "TIMESTAMP"
}

func InitSchema(db *sql.DB, d Dialect) error {
	if _, err := db.Exec(fmt.Sprintf(schema, timestampType(d))); err != nil {
		return fmt.Errorf("failed to apply schema: %w", err)
	}
	return nil
}

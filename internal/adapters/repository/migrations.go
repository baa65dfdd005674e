package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// Migration is one forward/backward schema step.
type Migration struct {
	Version int
	UpSQL   string
	DownSQL string
}

var migrations = []Migration{
	{
		Version: 1,
		UpSQL: `
CREATE TABLE IF NOT EXISTS events (
	event_id TEXT PRIMARY KEY,
	session_id TEXT NOT NULL,
	event_code TEXT NOT NULL,
	protocol_version TEXT NOT NULL,
	category TEXT NOT NULL DEFAULT '',
	athlete INTEGER NOT NULL DEFAULT 0,
	round INTEGER NOT NULL DEFAULT 0,
	status TEXT NOT NULL CHECK(status IN ('recognized','partial','unknown','deprecated')),
	confidence REAL NOT NULL,
	processing_ns INTEGER NOT NULL,
	received_at TEXT NOT NULL,
	raw_text TEXT NOT NULL,
	source TEXT NOT NULL DEFAULT '',
	fields_json TEXT,
	extra_json TEXT,
	tokens_json TEXT
);

CREATE INDEX IF NOT EXISTS events_session ON events(session_id);
CREATE INDEX IF NOT EXISTS events_status_received ON events(status, received_at);

CREATE TABLE IF NOT EXISTS event_errors (
	event_id TEXT NOT NULL,
	position INTEGER NOT NULL,
	rule_name TEXT NOT NULL,
	kind TEXT NOT NULL,
	field TEXT NOT NULL DEFAULT '',
	message TEXT NOT NULL,
	PRIMARY KEY(event_id, position),
	FOREIGN KEY(event_id) REFERENCES events(event_id) ON DELETE CASCADE
);

CREATE TABLE IF NOT EXISTS recognition_history (
	history_id TEXT PRIMARY KEY,
	event_id TEXT NOT NULL,
	old_status TEXT NOT NULL,
	new_status TEXT NOT NULL,
	changed_by TEXT NOT NULL,
	reason TEXT NOT NULL CHECK(length(trim(reason)) > 0),
	changed_at TEXT NOT NULL,
	FOREIGN KEY(event_id) REFERENCES events(event_id) ON DELETE CASCADE
);

CREATE INDEX IF NOT EXISTS recognition_history_event ON recognition_history(event_id, changed_at);

CREATE TABLE IF NOT EXISTS match_snapshots (
	snapshot_id INTEGER PRIMARY KEY AUTOINCREMENT,
	generation INTEGER NOT NULL,
	event_id TEXT NOT NULL DEFAULT '',
	event_code TEXT NOT NULL DEFAULT '',
	taken_at TEXT NOT NULL,
	state_json TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS unknown_events (
	pattern_hash TEXT PRIMARY KEY,
	pattern TEXT NOT NULL,
	raw_pattern TEXT NOT NULL,
	occurrence_count INTEGER NOT NULL,
	first_seen TEXT NOT NULL,
	last_seen TEXT NOT NULL,
	suggested_event_code TEXT NOT NULL DEFAULT ''
);

CREATE INDEX IF NOT EXISTS unknown_events_count ON unknown_events(occurrence_count DESC);
`,
		DownSQL: `
DROP TABLE IF EXISTS unknown_events;
DROP TABLE IF EXISTS match_snapshots;
DROP TABLE IF EXISTS recognition_history;
DROP TABLE IF EXISTS event_errors;
DROP TABLE IF EXISTS events;
`,
	},
	{
		Version: 2,
		UpSQL: `
CREATE TABLE IF NOT EXISTS event_definitions (
	event_code TEXT NOT NULL,
	protocol_version TEXT NOT NULL,
	category TEXT NOT NULL DEFAULT '',
	athlete INTEGER NOT NULL DEFAULT 0,
	round INTEGER NOT NULL DEFAULT 0,
	introduced TEXT NOT NULL DEFAULT '',
	deprecated INTEGER NOT NULL DEFAULT 0,
	description TEXT NOT NULL DEFAULT '',
	fields_json TEXT NOT NULL,
	updated_at TEXT NOT NULL,
	PRIMARY KEY(event_code, protocol_version)
);

CREATE TABLE IF NOT EXISTS validation_rules (
	event_code TEXT NOT NULL,
	protocol_version TEXT NOT NULL,
	rule_name TEXT NOT NULL,
	kind TEXT NOT NULL CHECK(kind IN ('range','format','datatype','required','custom')),
	field TEXT NOT NULL DEFAULT '',
	definition_json TEXT NOT NULL,
	error_message TEXT NOT NULL DEFAULT '',
	active INTEGER NOT NULL DEFAULT 1,
	updated_at TEXT NOT NULL,
	PRIMARY KEY(event_code, protocol_version, rule_name)
);
`,
		DownSQL: `
DROP TABLE IF EXISTS validation_rules;
DROP TABLE IF EXISTS event_definitions;
`,
	},
}

// ApplyMigrations brings db up to the latest schema version.
func ApplyMigrations(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS schema_migrations(version INTEGER PRIMARY KEY, applied_at TEXT NOT NULL)`); err != nil {
		return fmt.Errorf("create schema_migrations: %w", err)
	}

	for _, m := range migrations {
		var exists int
		err := db.QueryRowContext(ctx, `SELECT 1 FROM schema_migrations WHERE version = ?`, m.Version).Scan(&exists)
		if err == nil {
			continue
		}
		if !errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("check migration %d: %w", m.Version, err)
		}

		tx, err := db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("begin tx for migration %d: %w", m.Version, err)
		}
		if _, err := tx.ExecContext(ctx, m.UpSQL); err != nil {
			tx.Rollback() //nolint:errcheck
			return fmt.Errorf("apply migration %d: %w", m.Version, err)
		}
		if _, err := tx.ExecContext(ctx, `INSERT INTO schema_migrations(version, applied_at) VALUES (?, datetime('now'))`, m.Version); err != nil {
			tx.Rollback() //nolint:errcheck
			return fmt.Errorf("record migration %d: %w", m.Version, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit migration %d: %w", m.Version, err)
		}
	}
	return nil
}

// RollbackAll reverts every migration, newest first.
func RollbackAll(ctx context.Context, db *sql.DB) error {
	for i := len(migrations) - 1; i >= 0; i-- {
		m := migrations[i]
		tx, err := db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("begin rollback tx %d: %w", m.Version, err)
		}
		if _, err := tx.ExecContext(ctx, m.DownSQL); err != nil {
			tx.Rollback() //nolint:errcheck
			return fmt.Errorf("rollback migration %d: %w", m.Version, err)
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM schema_migrations WHERE version = ?`, m.Version); err != nil {
			tx.Rollback() //nolint:errcheck
			return fmt.Errorf("unrecord migration %d: %w", m.Version, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit rollback %d: %w", m.Version, err)
		}
	}
	return nil
}

// Package db provides SQLite database access for Outflow.
package db

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	"github.com/outflow-crm/outflow/internal/logging"
	"github.com/rs/zerolog"
	_ "modernc.org/sqlite"
)

// DB wraps the SQLite connection shared by the repositories.
type DB struct {
	conn   *sql.DB
	logger zerolog.Logger
}

// Open opens (or creates) the database at the given path.
func Open(path string) (*DB, error) {
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create database directory: %w", err)
		}
	}

	conn, err := sql.Open("sqlite", path+"?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=foreign_keys(ON)")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	return &DB{conn: conn, logger: logging.Component("db")}, nil
}

// OpenInMemory opens an in-memory database. Used by tests.
func OpenInMemory() (*DB, error) {
	conn, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		return nil, fmt.Errorf("open in-memory database: %w", err)
	}
	// A second connection would see a different empty database.
	conn.SetMaxOpenConns(1)

	return &DB{conn: conn, logger: logging.Component("db")}, nil
}

// Close closes the underlying connection.
func (d *DB) Close() error {
	return d.conn.Close()
}

// ExecContext executes a statement.
func (d *DB) ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error) {
	return d.conn.ExecContext(ctx, query, args...)
}

// QueryContext executes a query returning rows.
func (d *DB) QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	return d.conn.QueryContext(ctx, query, args...)
}

// QueryRowContext executes a query returning at most one row.
func (d *DB) QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row {
	return d.conn.QueryRowContext(ctx, query, args...)
}

// BeginTx starts a transaction.
func (d *DB) BeginTx(ctx context.Context, opts *sql.TxOptions) (*sql.Tx, error) {
	return d.conn.BeginTx(ctx, opts)
}

// Migrate creates or upgrades the schema.
func (d *DB) Migrate(ctx context.Context) error {
	if _, err := d.conn.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	d.logger.Debug().Msg("schema migrated")
	return nil
}

const schema = `
CREATE TABLE IF NOT EXISTS sequences (
	id TEXT PRIMARY KEY,
	team_id TEXT NOT NULL DEFAULT '',
	name TEXT NOT NULL,
	active INTEGER NOT NULL DEFAULT 0,
	eligibility_tags_json TEXT,
	steps_json TEXT NOT NULL,
	stop_conditions_json TEXT,
	enrollment_count INTEGER NOT NULL DEFAULT 0,
	created_at TEXT NOT NULL,
	updated_at TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS runs (
	id TEXT PRIMARY KEY,
	lead_id TEXT NOT NULL,
	sequence_id TEXT NOT NULL REFERENCES sequences(id),
	current_step INTEGER NOT NULL DEFAULT 0,
	status TEXT NOT NULL,
	next_due_at TEXT,
	steps_json TEXT NOT NULL,
	stop_conditions_json TEXT,
	steps_completed_json TEXT,
	pending_json TEXT,
	attempt_count INTEGER NOT NULL DEFAULT 0,
	stopped_reason TEXT,
	enrolled_at TEXT NOT NULL,
	completed_at TEXT,
	version INTEGER NOT NULL DEFAULT 1,
	updated_at TEXT NOT NULL
);

-- At most one active or paused run per lead. Enrollment races resolve here.
CREATE UNIQUE INDEX IF NOT EXISTS idx_runs_lead_live
	ON runs(lead_id) WHERE status IN ('active', 'paused');

CREATE INDEX IF NOT EXISTS idx_runs_due
	ON runs(status, next_due_at);

CREATE TABLE IF NOT EXISTS events (
	id TEXT PRIMARY KEY,
	timestamp TEXT NOT NULL,
	type TEXT NOT NULL,
	entity_type TEXT NOT NULL,
	entity_id TEXT NOT NULL,
	payload_json TEXT,
	metadata_json TEXT
);

CREATE INDEX IF NOT EXISTS idx_events_entity
	ON events(entity_type, entity_id, timestamp);

CREATE TABLE IF NOT EXISTS activities (
	id TEXT PRIMARY KEY,
	lead_id TEXT NOT NULL,
	type TEXT NOT NULL,
	direction TEXT NOT NULL,
	description TEXT,
	occurred_at TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_activities_lead
	ON activities(lead_id, occurred_at);

CREATE TABLE IF NOT EXISTS lead_flags (
	lead_id TEXT PRIMARY KEY,
	unsubscribed INTEGER NOT NULL DEFAULT 0,
	do_not_contact INTEGER NOT NULL DEFAULT 0,
	converted INTEGER NOT NULL DEFAULT 0,
	meeting_scheduled INTEGER NOT NULL DEFAULT 0,
	updated_at TEXT NOT NULL
);
`

func nullString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

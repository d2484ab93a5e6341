// Package db provides SQLite database management for wlanmigrate.
// Two databases per data directory: wlanmigrate.db (preferences and run history)
// and wlanmigrate-audit.db (append-only audit log).
package db

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "github.com/mattn/go-sqlite3"
)

const (
	StateDBFile = "wlanmigrate.db"
	AuditDBFile = "wlanmigrate-audit.db"
)

// StateSchema defines the tables of the state database.
const StateSchema = `
PRAGMA journal_mode=WAL;

-- Key/value preference documents (dashboard.widgets, ...)
CREATE TABLE IF NOT EXISTS preferences (
    key             TEXT PRIMARY KEY,
    value           TEXT NOT NULL,
    updated_at      TEXT NOT NULL
);

-- One row per execute request sent to the backend
CREATE TABLE IF NOT EXISTS migration_runs (
    uuid            TEXT PRIMARY KEY,
    session_uuid    TEXT NOT NULL,
    dry_run         INTEGER NOT NULL DEFAULT 1,
    ssid_status     TEXT NOT NULL DEFAULT 'enabled',
    status          TEXT NOT NULL DEFAULT 'running',
    started_at      TEXT NOT NULL,
    completed_at    TEXT,
    services        INTEGER NOT NULL DEFAULT 0,
    assignments     INTEGER NOT NULL DEFAULT 0,
    results         TEXT DEFAULT '{}',  -- JSON MigrationResults, verbatim
    error_detail    TEXT
);

CREATE INDEX IF NOT EXISTS idx_runs_session ON migration_runs(session_uuid);
CREATE INDEX IF NOT EXISTS idx_runs_started ON migration_runs(started_at);
`

// AuditSchema defines the append-only audit log table.
const AuditSchema = `
PRAGMA journal_mode=WAL;

CREATE TABLE IF NOT EXISTS audit_log (
    id              INTEGER PRIMARY KEY AUTOINCREMENT,
    timestamp       TEXT NOT NULL,
    instance_uuid   TEXT NOT NULL,
    session_uuid    TEXT DEFAULT '',
    run_uuid        TEXT DEFAULT '',
    operator        TEXT NOT NULL DEFAULT 'local',
    event_type      TEXT NOT NULL,
    detail          TEXT DEFAULT '{}',
    record_hash     TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_audit_instance ON audit_log(instance_uuid);
CREATE INDEX IF NOT EXISTS idx_audit_event_type ON audit_log(event_type);
CREATE INDEX IF NOT EXISTS idx_audit_timestamp ON audit_log(timestamp);
CREATE INDEX IF NOT EXISTS idx_audit_session ON audit_log(session_uuid);
`

// OpenStateDB opens or creates the state database in dataDir.
func OpenStateDB(dataDir string) (*sql.DB, error) {
	dbPath := filepath.Join(dataDir, StateDBFile)
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("opening state db: %w", err)
	}

	if _, err := db.Exec(StateSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("initializing state schema: %w", err)
	}

	return db, nil
}

// OpenAuditDB opens or creates the append-only audit database in dataDir.
func OpenAuditDB(dataDir string) (*sql.DB, error) {
	dbPath := filepath.Join(dataDir, AuditDBFile)
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("opening audit db: %w", err)
	}

	if _, err := db.Exec(AuditSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("initializing audit schema: %w", err)
	}

	return db, nil
}

// EnsureDataDir creates the data directory structure.
func EnsureDataDir(path string) error {
	dirs := []string{
		path,
		filepath.Join(path, "exports"),
		filepath.Join(path, "pki"),
	}
	for _, d := range dirs {
		if err := os.MkdirAll(d, 0700); err != nil {
			return fmt.Errorf("creating directory %s: %w", d, err)
		}
	}
	return nil
}

package runlog

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

const schema = `
CREATE TABLE IF NOT EXISTS runs (
	id          TEXT PRIMARY KEY,
	started_at  TEXT NOT NULL,
	finished_at TEXT NOT NULL DEFAULT '',
	any_failed  INTEGER NOT NULL DEFAULT 0,
	summary     TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS source_runs (
	id            TEXT PRIMARY KEY,
	run_id        TEXT NOT NULL REFERENCES runs(id),
	source_id     TEXT NOT NULL,
	state         TEXT NOT NULL,
	snapshot_ts   TEXT NOT NULL DEFAULT '',
	added         INTEGER NOT NULL DEFAULT 0,
	removed       INTEGER NOT NULL DEFAULT 0,
	modified      INTEGER NOT NULL DEFAULT 0,
	confirmed     INTEGER NOT NULL DEFAULT 0,
	still_present INTEGER NOT NULL DEFAULT 0,
	check_errors  INTEGER NOT NULL DEFAULT 0,
	artifacts     TEXT NOT NULL DEFAULT '',
	error         TEXT NOT NULL DEFAULT '',
	recorded_at   TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_source_runs_source
	ON source_runs(source_id, recorded_at);
`

// openDB opens the SQLite database with the production-safe pragmas applied
// via EXEC (driver-agnostic) and the run-log schema in place.
//
// Pragmas: foreign_keys ON, journal_mode WAL, busy_timeout 10000,
// synchronous NORMAL.
func openDB(path string) (*sql.DB, error) {
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("runlog: mkdir %s: %w", dir, err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("runlog: open %s: %w", path, err)
	}

	pragmas := []string{
		"PRAGMA foreign_keys = ON",
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 10000",
		"PRAGMA synchronous = NORMAL",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			db.Close()
			return nil, fmt.Errorf("runlog: %s: %w", p, err)
		}
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("runlog: apply schema: %w", err)
	}
	return db, nil
}

// isBusy reports whether err indicates an SQLite BUSY condition.
func isBusy(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "SQLITE_BUSY") ||
		strings.Contains(msg, "database is locked") ||
		strings.Contains(msg, "database table is locked")
}

const maxRetries = 3

// exec executes a statement with automatic retry on SQLITE_BUSY:
// up to 3 attempts with 100/200/300 ms backoff.
func exec(ctx context.Context, db *sql.DB, query string, args ...any) error {
	for i := range maxRetries {
		_, err := db.ExecContext(ctx, query, args...)
		if err == nil {
			return nil
		}
		if !isBusy(err) || i == maxRetries-1 {
			return err
		}
		if err := sleepCtx(ctx, time.Duration(100*(i+1))*time.Millisecond); err != nil {
			return fmt.Errorf("runlog: context cancelled during retry: %w", err)
		}
	}
	return fmt.Errorf("runlog: exec: max retries exceeded")
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Package runlog persists run history in SQLite: one row per engine run and
// one row per source outcome, so partial failures stay inspectable after the
// process exits.
//
// The store is optional infrastructure: a nil *Store disables recording
// without changing coordinator behavior.
package runlog

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/acepocalypse/ntl-academies-tracker/idgen"
)

// SourceRun is one source's recorded outcome within a run.
type SourceRun struct {
	ID           string
	RunID        string
	SourceID     string
	State        string
	SnapshotTS   string
	Added        int
	Removed      int
	Modified     int
	Confirmed    int
	StillPresent int
	CheckErrors  int
	Artifacts    []string
	Error        string
	RecordedAt   time.Time
}

// Store wraps the run-history database.
type Store struct {
	db    *sql.DB
	newID idgen.Generator
}

// Open creates or opens the run-history database at path.
func Open(path string) (*Store, error) {
	db, err := openDB(path)
	if err != nil {
		return nil, err
	}
	return &Store{db: db, newID: idgen.Default}, nil
}

// Close releases the database handle. Safe on a nil store.
func (s *Store) Close() error {
	if s == nil {
		return nil
	}
	return s.db.Close()
}

// BeginRun inserts a new run row and returns its ID.
func (s *Store) BeginRun(ctx context.Context) (string, error) {
	if s == nil {
		return "", nil
	}
	id := "run_" + s.newID()
	err := exec(ctx, s.db,
		`INSERT INTO runs (id, started_at) VALUES (?, ?)`,
		id, time.Now().UTC().Format(time.RFC3339))
	if err != nil {
		return "", fmt.Errorf("runlog: begin run: %w", err)
	}
	return id, nil
}

// FinishRun stamps a run's end time, overall status, and summary text.
func (s *Store) FinishRun(ctx context.Context, runID string, anyFailed bool, summary string) error {
	if s == nil {
		return nil
	}
	failed := 0
	if anyFailed {
		failed = 1
	}
	err := exec(ctx, s.db,
		`UPDATE runs SET finished_at = ?, any_failed = ?, summary = ? WHERE id = ?`,
		time.Now().UTC().Format(time.RFC3339), failed, summary, runID)
	if err != nil {
		return fmt.Errorf("runlog: finish run: %w", err)
	}
	return nil
}

// RecordSource appends one source outcome to a run.
func (s *Store) RecordSource(ctx context.Context, r *SourceRun) error {
	if s == nil {
		return nil
	}
	if r.ID == "" {
		r.ID = s.newID()
	}
	if r.RecordedAt.IsZero() {
		r.RecordedAt = time.Now().UTC()
	}
	err := exec(ctx, s.db,
		`INSERT INTO source_runs (id, run_id, source_id, state, snapshot_ts,
		added, removed, modified, confirmed, still_present, check_errors,
		artifacts, error, recorded_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.RunID, r.SourceID, r.State, r.SnapshotTS,
		r.Added, r.Removed, r.Modified, r.Confirmed, r.StillPresent, r.CheckErrors,
		strings.Join(r.Artifacts, "\n"), r.Error,
		r.RecordedAt.Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("runlog: record source: %w", err)
	}
	return nil
}

// History returns a source's recorded outcomes, newest first.
func (s *Store) History(ctx context.Context, sourceID string, limit int) ([]*SourceRun, error) {
	if s == nil {
		return nil, nil
	}
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, run_id, source_id, state, snapshot_ts,
		added, removed, modified, confirmed, still_present, check_errors,
		artifacts, error, recorded_at
		FROM source_runs WHERE source_id = ?
		ORDER BY recorded_at DESC, id DESC LIMIT ?`, sourceID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []*SourceRun
	for rows.Next() {
		var r SourceRun
		var artifacts, recordedAt string
		if err := rows.Scan(&r.ID, &r.RunID, &r.SourceID, &r.State, &r.SnapshotTS,
			&r.Added, &r.Removed, &r.Modified, &r.Confirmed, &r.StillPresent, &r.CheckErrors,
			&artifacts, &r.Error, &recordedAt); err != nil {
			return nil, fmt.Errorf("runlog: scan source run: %w", err)
		}
		if artifacts != "" {
			r.Artifacts = strings.Split(artifacts, "\n")
		}
		r.RecordedAt, _ = time.Parse(time.RFC3339, recordedAt)
		result = append(result, &r)
	}
	return result, rows.Err()
}

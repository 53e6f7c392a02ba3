// Package snapshot locates and loads the immutable CSV captures of one
// source and hands back the two most recent as normalized tables.
//
// Snapshot files live under <root>/<source_id>/ and are named by capture
// timestamp (YYYYMMDD_HHMMSS.csv), so lexical order is chronological order.
// The repository never mutates snapshots; only the external collector
// creates them.
package snapshot

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/acepocalypse/ntl-academies-tracker/tabular"
)

// ErrEmptySnapshot is returned when a snapshot file has no header row.
var ErrEmptySnapshot = errors.New("snapshot: file has no header row")

// timestampLayout is the filename-stem capture timestamp format.
const timestampLayout = "20060102_150405"

// artifactSuffixes mark diff artifacts that may sit next to snapshots; they
// are never snapshots themselves.
var artifactSuffixes = []string{"__added.csv", "__removed.csv", "__modified.csv"}

// Repository reads a source's snapshot history from a root directory.
type Repository struct {
	root string
}

// NewRepository creates a Repository rooted at dir.
func NewRepository(dir string) *Repository {
	return &Repository{root: dir}
}

// Root returns the snapshot root directory.
func (r *Repository) Root() string {
	return r.root
}

// List returns the source's snapshot paths in capture order, oldest first.
// Diff artifacts and non-CSV files are skipped. A missing source directory
// yields an empty list, not an error.
func (r *Repository) List(sourceID string) ([]string, error) {
	dir := filepath.Join(r.root, sourceID)
	entries, err := os.ReadDir(dir)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("snapshot: read dir %s: %w", dir, err)
	}

	var paths []string
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".csv") {
			continue
		}
		if isArtifact(e.Name()) {
			continue
		}
		paths = append(paths, filepath.Join(dir, e.Name()))
	}
	slices.Sort(paths)
	return paths, nil
}

// LatestTwo loads and normalizes the two most recent snapshots of a source.
//
// With no snapshots both tables are nil. With exactly one, prev is nil and
// prevPath empty, the caller's "first snapshot, nothing to diff" signal.
// Older history is never consulted.
func (r *Repository) LatestTwo(sourceID string, keyFields, ignoredFields []string) (prev, curr *tabular.Table, prevPath, currPath string, err error) {
	paths, err := r.List(sourceID)
	if err != nil {
		return nil, nil, "", "", err
	}
	if len(paths) == 0 {
		return nil, nil, "", "", nil
	}

	currPath = paths[len(paths)-1]
	curr, err = r.Load(currPath, keyFields, ignoredFields)
	if err != nil {
		return nil, nil, "", "", err
	}
	if len(paths) == 1 {
		return nil, curr, "", currPath, nil
	}

	prevPath = paths[len(paths)-2]
	prev, err = r.Load(prevPath, keyFields, ignoredFields)
	if err != nil {
		return nil, nil, "", "", err
	}
	return prev, curr, prevPath, currPath, nil
}

// Load reads one snapshot CSV and normalizes it. The header row declares the
// columns; short rows are padded with empty strings rather than rejected.
func (r *Repository) Load(path string, keyFields, ignoredFields []string) (*tabular.Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("snapshot: open %s: %w", path, err)
	}
	defer f.Close()

	reader := csv.NewReader(f)
	reader.FieldsPerRecord = -1 // scraped captures are occasionally ragged

	header, err := reader.Read()
	if errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("%w: %s", ErrEmptySnapshot, path)
	}
	if err != nil {
		return nil, fmt.Errorf("snapshot: read header %s: %w", path, err)
	}

	raw := tabular.NewTable(header, keyFields)
	for {
		fields, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("snapshot: read %s: %w", path, err)
		}
		row := make(tabular.Record, len(header))
		for i, col := range header {
			if i < len(fields) {
				row[col] = fields[i]
			} else {
				row[col] = ""
			}
		}
		raw.Append(row)
	}

	return tabular.Normalize(raw, keyFields, ignoredFields), nil
}

// Timestamp derives the capture timestamp string for a snapshot path: the
// filename stem when it parses as YYYYMMDD_HHMMSS, else now. Artifacts take
// their identity from this value so re-runs stay idempotent.
func Timestamp(path string, now time.Time) string {
	stem := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	if len(stem) >= len(timestampLayout) {
		if _, err := time.Parse(timestampLayout, stem[:len(timestampLayout)]); err == nil {
			return stem[:len(timestampLayout)]
		}
	}
	return now.Format(timestampLayout)
}

func isArtifact(name string) bool {
	for _, s := range artifactSuffixes {
		if strings.HasSuffix(name, s) {
			return true
		}
	}
	return false
}

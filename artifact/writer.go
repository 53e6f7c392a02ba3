// Package artifact persists non-empty diff partitions as immutable CSV files.
//
// Artifact identity is deterministic from (source, snapshot timestamp,
// partition): re-running the writer against the same inputs produces
// byte-identical files under the same names. An empty partition produces no
// file at all: absence of a file is the "no changes of that kind" signal,
// and the coordinator's summary relies on that staying true.
package artifact

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"

	"github.com/acepocalypse/ntl-academies-tracker/diff"
	"github.com/acepocalypse/ntl-academies-tracker/tabular"
)

// Partition names, in the order artifacts are written.
var partitions = []string{"added", "removed", "modified"}

// ID builds the deterministic artifact identifier.
func ID(sourceID, timestamp, partition string) string {
	return fmt.Sprintf("%s__%s__%s", sourceID, timestamp, partition)
}

// Write persists each non-empty partition of res as <ID>.csv under dir,
// creating dir if needed. Returns the paths written, in partition order.
func Write(res *diff.Result, dir, sourceID, timestamp string) ([]string, error) {
	tables := map[string]*tabular.Table{
		"added":    res.Added,
		"removed":  res.Removed,
		"modified": res.Modified,
	}

	var written []string
	for _, part := range partitions {
		t := tables[part]
		if t.Empty() {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return written, fmt.Errorf("artifact: mkdir %s: %w", dir, err)
		}
		path := filepath.Join(dir, ID(sourceID, timestamp, part)+".csv")
		if err := writeCSV(path, t); err != nil {
			return written, err
		}
		written = append(written, path)
	}
	return written, nil
}

// writeCSV writes one table atomically: encode in memory, write a temp file,
// rename into place. Consumers never observe a partial artifact.
func writeCSV(path string, t *tabular.Table) error {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)

	if err := w.Write(t.Columns); err != nil {
		return fmt.Errorf("artifact: encode header: %w", err)
	}
	fields := make([]string, len(t.Columns))
	for _, row := range t.Rows {
		for i, col := range t.Columns {
			fields[i] = row.Get(col)
		}
		if err := w.Write(fields); err != nil {
			return fmt.Errorf("artifact: encode row: %w", err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return fmt.Errorf("artifact: encode: %w", err)
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, buf.Bytes(), 0o644); err != nil {
		return fmt.Errorf("artifact: write tmp: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("artifact: rename: %w", err)
	}
	return nil
}

package tabular

import (
	"slices"
	"strings"
)

// CollapseWhitespace trims s and collapses every internal whitespace run to a
// single space.
func CollapseWhitespace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// Normalize canonicalizes a raw table for diffing:
//
//   - every field is trimmed and internal whitespace runs collapse to one space
//   - absent values become the empty string, never a null marker
//   - all key and ignored columns exist afterwards, synthesized empty when the
//     raw source lacks them, so downstream alignment never fails
//   - rows are sorted by key columns then remaining columns (a stable full-row
//     order), and duplicate keys collapse to the first row after that sort
//
// Ignored fields are not removed; they stay visible in outputs for context,
// only change detection excludes them. Normalize is idempotent and does not
// mutate its input.
func Normalize(t *Table, keyFields, ignoredFields []string) *Table {
	cols := make(map[string]bool)
	if t != nil {
		for _, c := range t.Columns {
			cols[c] = true
		}
	}
	for _, c := range keyFields {
		cols[c] = true
	}
	for _, c := range ignoredFields {
		cols[c] = true
	}

	out := NewTable(orderedColumns(cols, keyFields), keyFields)
	if t == nil {
		return out
	}

	for _, row := range t.Rows {
		clean := make(Record, len(out.Columns))
		for _, c := range out.Columns {
			clean[c] = CollapseWhitespace(row.Get(c))
		}
		out.Rows = append(out.Rows, clean)
	}

	// Full-row sort: key columns lead the column order, so this sorts by
	// primary key with the remaining fields as tie-breaks.
	slices.SortStableFunc(out.Rows, func(a, b Record) int {
		for _, c := range out.Columns {
			if d := strings.Compare(a.Get(c), b.Get(c)); d != 0 {
				return d
			}
		}
		return 0
	})

	// Collapse duplicate keys, keeping the first row after the sort.
	seen := make(map[string]bool, len(out.Rows))
	kept := out.Rows[:0]
	for _, row := range out.Rows {
		k := out.KeyOf(row)
		if seen[k] {
			continue
		}
		seen[k] = true
		kept = append(kept, row)
	}
	out.Rows = kept
	return out
}

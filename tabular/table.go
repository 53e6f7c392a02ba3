// Package tabular provides the normalized record/table model that the diff
// engine and verifier operate on.
//
// A Table is a flat, string-valued view of one roster snapshot: every field is
// a string, every row shares the same column set, and one or more columns form
// the declared primary key. Tables are value-oriented: operations return new
// tables and never mutate their inputs.
package tabular

import (
	"slices"
	"strings"
)

// keySep joins composite key values. The unit separator cannot appear in
// normalized field values.
const keySep = "\x1f"

// Record maps a field name to its string value. Fields absent from a record
// read as the empty string.
type Record map[string]string

// Get returns the value of a field, or "" when the field is absent.
func (r Record) Get(field string) string {
	return r[field]
}

// Clone returns an independent copy of the record.
func (r Record) Clone() Record {
	out := make(Record, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}

// Table is an ordered sequence of records sharing a column set.
// Key lists the primary-key columns; they are always a prefix of Columns.
type Table struct {
	Columns []string
	Key     []string
	Rows    []Record
}

// NewTable creates an empty table with the given columns and key.
func NewTable(columns, key []string) *Table {
	return &Table{
		Columns: slices.Clone(columns),
		Key:     slices.Clone(key),
	}
}

// Len returns the number of rows.
func (t *Table) Len() int {
	if t == nil {
		return 0
	}
	return len(t.Rows)
}

// Empty reports whether the table is nil or has no rows.
func (t *Table) Empty() bool {
	return t.Len() == 0
}

// KeyOf builds the composite key string of a record under the given key columns.
func KeyOf(r Record, keyFields []string) string {
	if len(keyFields) == 1 {
		return r.Get(keyFields[0])
	}
	parts := make([]string, len(keyFields))
	for i, f := range keyFields {
		parts[i] = r.Get(f)
	}
	return strings.Join(parts, keySep)
}

// KeyOf builds the composite key string for one of the table's own rows.
func (t *Table) KeyOf(r Record) string {
	return KeyOf(r, t.Key)
}

// Index returns a map from composite key to the first row carrying it.
func (t *Table) Index() map[string]Record {
	idx := make(map[string]Record, t.Len())
	for _, row := range t.Rows {
		k := t.KeyOf(row)
		if _, seen := idx[k]; !seen {
			idx[k] = row
		}
	}
	return idx
}

// Append adds a row. The row is stored as-is; callers own its lifetime.
func (t *Table) Append(r Record) {
	t.Rows = append(t.Rows, r)
}

// orderedColumns arranges a column set with the key columns first (in declared
// order) and the remaining columns sorted. Duplicate names collapse.
func orderedColumns(cols map[string]bool, keyFields []string) []string {
	out := make([]string, 0, len(cols))
	seen := make(map[string]bool, len(cols))
	for _, k := range keyFields {
		if !seen[k] {
			out = append(out, k)
			seen[k] = true
		}
	}
	rest := make([]string, 0, len(cols))
	for c := range cols {
		if !seen[c] {
			rest = append(rest, c)
		}
	}
	slices.Sort(rest)
	return append(out, rest...)
}

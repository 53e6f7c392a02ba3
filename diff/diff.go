// Package diff reconciles two normalized roster tables by primary key into
// added / removed / modified partitions.
//
// The engine is a pure function over immutable inputs: no shared state, safe
// to call concurrently for different sources. Comparison is literal string
// equality after upstream whitespace normalization, so "2020" and "2020.0"
// are a genuine modification.
package diff

import (
	"fmt"
	"slices"

	"github.com/acepocalypse/ntl-academies-tracker/tabular"
)

// Before and After suffix the per-field columns of a modified row.
const (
	BeforeSuffix = "_before"
	AfterSuffix  = "_after"
)

// Result holds the three disjoint partitions of a snapshot comparison.
// Every key in the union of previous and current appears in exactly one
// partition, or in none when the record is unchanged.
type Result struct {
	Added    *tabular.Table // keys only in current
	Removed  *tabular.Table // keys only in previous
	Modified *tabular.Table // keys in both with a non-ignored field change
}

// Summary renders the compact "+added / -removed / ~modified" line used in
// run reports.
func (r *Result) Summary() string {
	return fmt.Sprintf("+%d / -%d / ~%d", r.Added.Len(), r.Removed.Len(), r.Modified.Len())
}

// Empty reports whether all three partitions are empty.
func (r *Result) Empty() bool {
	return r.Added.Empty() && r.Removed.Empty() && r.Modified.Empty()
}

// Compute diffs two normalized tables by primary key.
//
// Added rows come from current, removed rows from previous, both preserving
// the normalizer's sort order. For keys present in both tables, the comparison
// column set is the union of both tables' columns minus ignoredFields, with
// the key columns pinned first; columns missing from one side read as empty,
// so schema drift is absorbed rather than reported. A changed key is emitted
// as one merged record carrying the key columns once and every other union
// column twice, suffixed _before/_after. Ignored fields ride along for context
// even though they never drive the decision.
func Compute(prev, curr *tabular.Table, keyFields, ignoredFields []string) *Result {
	// Degenerate cases first: no alignment work needed.
	switch {
	case prev.Empty() && curr.Empty():
		return &Result{
			Added:    emptyLike(curr, keyFields),
			Removed:  emptyLike(prev, keyFields),
			Modified: modifiedTable(prev, curr, keyFields),
		}
	case prev.Empty():
		return &Result{
			Added:    copyTable(curr),
			Removed:  emptyLike(prev, keyFields),
			Modified: modifiedTable(prev, curr, keyFields),
		}
	case curr.Empty():
		return &Result{
			Added:    emptyLike(curr, keyFields),
			Removed:  copyTable(prev),
			Modified: modifiedTable(prev, curr, keyFields),
		}
	}

	prevIdx := prev.Index()
	currIdx := curr.Index()

	added := emptyLike(curr, keyFields)
	for _, row := range curr.Rows {
		if _, ok := prevIdx[tabular.KeyOf(row, keyFields)]; !ok {
			added.Append(row.Clone())
		}
	}

	removed := emptyLike(prev, keyFields)
	for _, row := range prev.Rows {
		if _, ok := currIdx[tabular.KeyOf(row, keyFields)]; !ok {
			removed.Append(row.Clone())
		}
	}

	compareCols := comparisonColumns(prev, curr, keyFields, ignoredFields)
	unionCols := unionColumns(prev, curr, keyFields)

	modified := modifiedTable(prev, curr, keyFields)
	for _, prevRow := range prev.Rows {
		key := tabular.KeyOf(prevRow, keyFields)
		currRow, ok := currIdx[key]
		if !ok {
			continue
		}
		if !rowsDiffer(prevRow, currRow, compareCols) {
			continue
		}
		modified.Append(mergeRow(prevRow, currRow, keyFields, unionCols))
	}

	return &Result{Added: added, Removed: removed, Modified: modified}
}

// rowsDiffer reports whether any comparison column differs between the two
// rows. Missing columns read as "", so empty-to-empty is never a change.
func rowsDiffer(a, b tabular.Record, cols []string) bool {
	for _, c := range cols {
		if a.Get(c) != b.Get(c) {
			return true
		}
	}
	return false
}

// mergeRow builds the side-by-side before/after record for one modified key.
func mergeRow(prevRow, currRow tabular.Record, keyFields, unionCols []string) tabular.Record {
	out := make(tabular.Record, 2*len(unionCols))
	for _, k := range keyFields {
		out[k] = currRow.Get(k)
	}
	for _, c := range unionCols {
		if slices.Contains(keyFields, c) {
			continue
		}
		out[c+BeforeSuffix] = prevRow.Get(c)
		out[c+AfterSuffix] = currRow.Get(c)
	}
	return out
}

// comparisonColumns is the union of both tables' columns minus ignored fields,
// key columns pinned first.
func comparisonColumns(prev, curr *tabular.Table, keyFields, ignoredFields []string) []string {
	cols := unionColumns(prev, curr, keyFields)
	out := make([]string, 0, len(cols))
	for _, c := range cols {
		if slices.Contains(keyFields, c) || !slices.Contains(ignoredFields, c) {
			out = append(out, c)
		}
	}
	return out
}

// unionColumns merges both tables' columns, key columns first, rest sorted.
func unionColumns(prev, curr *tabular.Table, keyFields []string) []string {
	seen := make(map[string]bool)
	out := slices.Clone(keyFields)
	for _, k := range keyFields {
		seen[k] = true
	}
	var rest []string
	collect := func(t *tabular.Table) {
		if t == nil {
			return
		}
		for _, c := range t.Columns {
			if !seen[c] {
				seen[c] = true
				rest = append(rest, c)
			}
		}
	}
	collect(prev)
	collect(curr)
	slices.Sort(rest)
	return append(out, rest...)
}

// emptyLike returns an empty table with src's columns (or just the key
// columns when src is nil) and the given key.
func emptyLike(src *tabular.Table, keyFields []string) *tabular.Table {
	if src == nil || len(src.Columns) == 0 {
		return tabular.NewTable(keyFields, keyFields)
	}
	return tabular.NewTable(src.Columns, keyFields)
}

// copyTable returns a row-by-row copy of t.
func copyTable(t *tabular.Table) *tabular.Table {
	out := tabular.NewTable(t.Columns, t.Key)
	for _, row := range t.Rows {
		out.Append(row.Clone())
	}
	return out
}

// modifiedTable builds the empty merged-schema table for the modified
// partition: key columns once, every other union column twice.
func modifiedTable(prev, curr *tabular.Table, keyFields []string) *tabular.Table {
	unionCols := unionColumns(prev, curr, keyFields)
	cols := slices.Clone(keyFields)
	for _, c := range unionCols {
		if slices.Contains(keyFields, c) {
			continue
		}
		cols = append(cols, c+BeforeSuffix, c+AfterSuffix)
	}
	return tabular.NewTable(cols, keyFields)
}

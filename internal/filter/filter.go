// Package filter strips configured columns from records before comparison.
// Filtering never mutates its input; stored artifacts keep every column.
package filter

import (
	"github.com/koba/db-fixpoint/internal/record"
)

// IgnoredColumns names the columns excluded from comparison: Global applies
// to every table, PerTable adds table-specific columns on top.
type IgnoredColumns struct {
	Global   []string
	PerTable map[string][]string
}

// Columns returns the union of globally ignored columns and those ignored
// for the named table.
func (ic IgnoredColumns) Columns(table string) []string {
	cols := make([]string, 0, len(ic.Global))
	cols = append(cols, ic.Global...)
	cols = append(cols, ic.PerTable[table]...)
	return cols
}

// Apply returns copies of rows with the ignored columns for table removed.
func (ic IgnoredColumns) Apply(table string, rows []record.Record) []record.Record {
	ignored := make(map[string]bool)
	for _, col := range ic.Columns(table) {
		ignored[col] = true
	}

	out := make([]record.Record, len(rows))
	for i, row := range rows {
		filtered := make(record.Record, len(row))
		for col, val := range row {
			if ignored[col] {
				continue
			}
			filtered[col] = val
		}
		out[i] = filtered
	}
	return out
}

// ApplySnapshot filters every table of a snapshot.
func (ic IgnoredColumns) ApplySnapshot(snap record.Snapshot) record.Snapshot {
	out := make(record.Snapshot, len(snap))
	for table, rows := range snap {
		out[table] = ic.Apply(table, rows)
	}
	return out
}

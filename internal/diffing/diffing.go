// Package diffing implements the incremental snapshot engine: extracting a
// minimal positional change-set between two snapshots and replaying a
// change-set onto its parent to reconstruct the full state.
//
// Alignment is positional, not key-based. Removing a record anywhere but the
// tail shifts every later position and the diff reports the shift as a run of
// modified records followed by an addition. That is the designed trade-off:
// persisted change-sets depend on these exact semantics, so they must not be
// upgraded to primary-key matching.
package diffing

import (
	"github.com/koba/db-fixpoint/internal/record"
)

// Options controls change extraction.
type Options struct {
	// IgnoreColumns never appear in a change entry even when their value
	// differs between parent and current (typically update timestamps).
	IgnoreColumns []string
}

func (o Options) ignored(col string) bool {
	for _, c := range o.IgnoreColumns {
		if c == col {
			return true
		}
	}
	return false
}

// ExtractChanges computes the per-table change-set that transforms parent
// into current. The result covers the union of both table sets; per table it
// holds exactly one entry per current record, plus trailing deletion markers
// when the parent had more records. A nil or empty parent yields current's
// records verbatim.
func ExtractChanges(parent, current record.Snapshot, opts Options) record.Changes {
	changes := record.Changes{Tables: make(map[string][]record.ChangeRecord)}

	for table := range current {
		changes.Tables[table] = extractTable(parent[table], current[table], opts)
	}
	for table := range parent {
		if _, seen := current[table]; seen {
			continue
		}
		// Table disappeared entirely: every parent position is a deletion.
		changes.Tables[table] = extractTable(parent[table], nil, opts)
	}

	return changes
}

func extractTable(parentRows, currentRows []record.Record, opts Options) []record.ChangeRecord {
	if len(parentRows) == 0 {
		// Newly appearing table: store the rows verbatim.
		entries := make([]record.ChangeRecord, len(currentRows))
		for i, row := range currentRows {
			entries[i] = record.Changed(row.Clone())
		}
		return entries
	}

	n := len(currentRows)
	if len(parentRows) > n {
		n = len(parentRows)
	}

	entries := make([]record.ChangeRecord, 0, n)
	for i := 0; i < n; i++ {
		switch {
		case i >= len(currentRows):
			entries = append(entries, record.Deletion())
		case i >= len(parentRows):
			entries = append(entries, record.Changed(currentRows[i].Clone()))
		default:
			entries = append(entries, record.Changed(changedFields(parentRows[i], currentRows[i], opts)))
		}
	}
	return entries
}

// changedFields returns only the columns of current whose value differs from
// parent. Columns the parent never had count as changed; ignored columns are
// excluded outright.
func changedFields(parentRow, currentRow record.Record, opts Options) record.Record {
	fields := record.Record{}
	for col, val := range currentRow {
		if opts.ignored(col) {
			continue
		}
		parentVal, exists := parentRow[col]
		if exists && record.ValueEqual(parentVal, val) {
			continue
		}
		fields[col] = val
	}
	return fields
}

// ApplyChanges replays a change-set onto its parent snapshot and returns the
// reconstructed state. Tables absent from the change-set pass through
// unchanged; tables left without rows are stripped from the result.
func ApplyChanges(parent record.Snapshot, changes record.Changes) record.Snapshot {
	result := make(record.Snapshot)

	for table, parentRows := range parent {
		if _, touched := changes.Tables[table]; touched {
			continue
		}
		result[table] = record.CloneRows(parentRows)
	}

	for table, entries := range changes.Tables {
		if len(entries) == 0 {
			// An empty change list means the table was untouched.
			if rows := parent[table]; len(rows) > 0 {
				result[table] = record.CloneRows(rows)
			}
			continue
		}
		rows := applyTable(parent[table], entries)
		if len(rows) > 0 {
			result[table] = rows
		}
	}

	return result
}

func applyTable(parentRows []record.Record, entries []record.ChangeRecord) []record.Record {
	rows := make([]record.Record, 0, len(entries))
	for i, entry := range entries {
		if entry.Deleted {
			continue
		}
		if i >= len(parentRows) {
			// Past the parent's length the entry is the complete new record.
			rows = append(rows, entry.Fields.Clone())
			continue
		}
		merged := parentRows[i].Clone()
		for col, val := range entry.Fields {
			merged[col] = val
		}
		rows = append(rows, merged)
	}
	return rows
}

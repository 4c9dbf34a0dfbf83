package record

import (
	"encoding/json"
	"fmt"
)

// DeletionMarker is the reserved sentinel stored in a change-set entry to
// mean "the record at this position no longer exists".
const DeletionMarker = "__deleted__"

// Record is a single row: column name mapped to a scalar value (string,
// number, boolean or nil). Canonical column order is the sorted key order
// produced by JSON serialization.
type Record map[string]any

// Snapshot maps table name to that table's ordered rows. Tables with zero
// rows are never present; a missing key means "no rows".
type Snapshot map[string][]Record

// ChangeRecord is one entry of a table change-set: either a deletion marker
// or a mapping of the columns that changed (empty when the record survived
// unchanged, the full record when it is new at this position).
type ChangeRecord struct {
	Deleted bool
	Fields  Record
}

// Changes is a database change-set: per-table change entries plus the name
// of the parent artifact they were computed against. An empty Parent means
// the change-set stands alone (full snapshot semantics).
type Changes struct {
	Parent string
	Tables map[string][]ChangeRecord
}

// Deletion returns the reserved change entry marking a removed record.
func Deletion() ChangeRecord {
	return ChangeRecord{Deleted: true}
}

// Changed returns a change entry carrying the given fields.
func Changed(fields Record) ChangeRecord {
	if fields == nil {
		fields = Record{}
	}
	return ChangeRecord{Fields: fields}
}

// MarshalJSON serializes a deletion as the reserved marker string and any
// other entry as its field object.
func (c ChangeRecord) MarshalJSON() ([]byte, error) {
	if c.Deleted {
		return json.Marshal(DeletionMarker)
	}
	if c.Fields == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(c.Fields)
}

// UnmarshalJSON accepts either the reserved marker string or a field object.
func (c *ChangeRecord) UnmarshalJSON(data []byte) error {
	var marker string
	if err := json.Unmarshal(data, &marker); err == nil {
		if marker != DeletionMarker {
			return fmt.Errorf("unexpected change entry string %q", marker)
		}
		*c = ChangeRecord{Deleted: true}
		return nil
	}

	var fields Record
	if err := json.Unmarshal(data, &fields); err != nil {
		return fmt.Errorf("failed to decode change entry: %w", err)
	}
	*c = ChangeRecord{Fields: fields}
	return nil
}

// ValueEqual reports whether two scalar values are equal by identity of
// their JSON serialization. This folds together numeric representations a
// round-trip through the artifact format would also fold (int64 1 and
// float64 1 both serialize as 1).
func ValueEqual(a, b any) bool {
	jsonA, _ := json.Marshal(a)
	jsonB, _ := json.Marshal(b)
	return string(jsonA) == string(jsonB)
}

// Equal reports whether two records have the same columns and equal values.
func Equal(a, b Record) bool {
	if len(a) != len(b) {
		return false
	}
	for col, valA := range a {
		valB, exists := b[col]
		if !exists {
			return false
		}
		if !ValueEqual(valA, valB) {
			return false
		}
	}
	return true
}

// RowsEqual reports whether two row sequences are equal position by position.
func RowsEqual(a, b []Record) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if !Equal(a[i], b[i]) {
			return false
		}
	}
	return true
}

// Clone returns a shallow copy of the record (scalar values are immutable,
// so column-level copying is sufficient).
func (r Record) Clone() Record {
	out := make(Record, len(r))
	for col, val := range r {
		out[col] = val
	}
	return out
}

// CloneRows returns position-aligned clones of every record.
func CloneRows(rows []Record) []Record {
	out := make([]Record, len(rows))
	for i, row := range rows {
		out[i] = row.Clone()
	}
	return out
}

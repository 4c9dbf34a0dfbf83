// Package store persists fixpoint artifacts as named JSON files and resolves
// incremental artifacts back to full snapshots through their parent chain.
//
// Artifacts are indented JSON with sorted keys so they diff cleanly under
// version control. A full artifact maps table names to row lists; an
// incremental artifact additionally carries the reserved ParentKey naming
// the artifact its change entries were computed against.
package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/koba/db-fixpoint/internal/diffing"
	"github.com/koba/db-fixpoint/internal/record"
)

// ParentKey is the reserved top-level key holding the parent artifact name
// in an incremental artifact. It is rejected as a table name at save time.
const ParentKey = "__parent_fixpoint__"

var (
	// ErrNotFound reports a named artifact missing from the store. Callers
	// typically surface this as "fixpoint missing; re-run the producing test".
	ErrNotFound = errors.New("fixpoint not found")

	// ErrInvalidLocation reports an unusable artifact directory.
	ErrInvalidLocation = errors.New("invalid fixpoint directory")

	// ErrParentCycle reports a parent chain that revisits an artifact. A
	// well-formed store cannot contain one (parents are written before the
	// children that reference them), so this indicates corruption.
	ErrParentCycle = errors.New("fixpoint parent chain contains a cycle")
)

// Store reads and writes artifacts under a single directory. The directory
// is an explicit constructor argument; there is no process-global location.
type Store struct {
	dir  string
	diff diffing.Options
}

// New validates dir and returns a store over it. The diffing options apply
// whenever Save computes an incremental change-set.
func New(dir string, opts diffing.Options) (*Store, error) {
	if dir == "" {
		return nil, fmt.Errorf("%w: empty path", ErrInvalidLocation)
	}
	info, err := os.Stat(dir)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrInvalidLocation, dir)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%w: %s is not a directory", ErrInvalidLocation, dir)
	}
	return &Store{dir: dir, diff: opts}, nil
}

// Path returns the file an artifact name maps to.
func (s *Store) Path(name string) string {
	return filepath.Join(s.dir, name+".json")
}

// Exists reports whether the named artifact is present, without parsing it.
func (s *Store) Exists(name string) bool {
	_, err := os.Stat(s.Path(name))
	return err == nil
}

// Remove deletes the named artifact; removing an absent artifact is a no-op.
func (s *Store) Remove(name string) error {
	err := os.Remove(s.Path(name))
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove fixpoint %s: %w", name, err)
	}
	return nil
}

// Save persists snap under name. With a parentName the parent chain is
// resolved first and only the change-set against it is written; without one
// the full snapshot is written. Empty tables are omitted either way.
func (s *Store) Save(name string, snap record.Snapshot, parentName string) error {
	if _, clash := snap[ParentKey]; clash {
		return fmt.Errorf("table name %q collides with the reserved parent key", ParentKey)
	}

	doc := make(map[string]json.RawMessage)

	if parentName == "" {
		for table, rows := range snap {
			if len(rows) == 0 {
				continue
			}
			raw, err := json.Marshal(rows)
			if err != nil {
				return fmt.Errorf("failed to encode table %s: %w", table, err)
			}
			doc[table] = raw
		}
	} else {
		parent, err := s.Load(parentName)
		if err != nil {
			return fmt.Errorf("failed to load parent fixpoint %s: %w", parentName, err)
		}
		changes := diffing.ExtractChanges(parent, snap, s.diff)
		for table, entries := range changes.Tables {
			if len(entries) == 0 {
				continue
			}
			raw, err := json.Marshal(entries)
			if err != nil {
				return fmt.Errorf("failed to encode changes for table %s: %w", table, err)
			}
			doc[table] = raw
		}
		raw, err := json.Marshal(parentName)
		if err != nil {
			return fmt.Errorf("failed to encode parent reference: %w", err)
		}
		doc[ParentKey] = raw
	}

	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode fixpoint %s: %w", name, err)
	}
	data = append(data, '\n')

	if err := os.WriteFile(s.Path(name), data, 0644); err != nil {
		return fmt.Errorf("failed to write fixpoint %s: %w", name, err)
	}
	return nil
}

// Load returns the full snapshot stored under name, replaying incremental
// artifacts onto their recursively resolved parents.
func (s *Store) Load(name string) (record.Snapshot, error) {
	return s.load(name, map[string]bool{})
}

func (s *Store) load(name string, visited map[string]bool) (record.Snapshot, error) {
	if visited[name] {
		return nil, fmt.Errorf("%w: revisited %s", ErrParentCycle, name)
	}
	visited[name] = true

	data, err := os.ReadFile(s.Path(name))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, name)
		}
		return nil, fmt.Errorf("failed to read fixpoint %s: %w", name, err)
	}

	var doc map[string]json.RawMessage
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to decode fixpoint %s: %w", name, err)
	}

	rawParent, incremental := doc[ParentKey]
	if !incremental {
		snap := make(record.Snapshot, len(doc))
		for table, raw := range doc {
			var rows []record.Record
			if err := json.Unmarshal(raw, &rows); err != nil {
				return nil, fmt.Errorf("failed to decode table %s in fixpoint %s: %w", table, name, err)
			}
			if len(rows) > 0 {
				snap[table] = rows
			}
		}
		return snap, nil
	}

	var parentName string
	if err := json.Unmarshal(rawParent, &parentName); err != nil {
		return nil, fmt.Errorf("failed to decode parent reference in fixpoint %s: %w", name, err)
	}

	parent, err := s.load(parentName, visited)
	if err != nil {
		return nil, err
	}

	changes := record.Changes{Parent: parentName, Tables: make(map[string][]record.ChangeRecord)}
	for table, raw := range doc {
		if table == ParentKey {
			continue
		}
		var entries []record.ChangeRecord
		if err := json.Unmarshal(raw, &entries); err != nil {
			return nil, fmt.Errorf("failed to decode changes for table %s in fixpoint %s: %w", table, name, err)
		}
		changes.Tables[table] = entries
	}

	return diffing.ApplyChanges(parent, changes), nil
}

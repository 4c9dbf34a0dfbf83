// Package fixpoint orchestrates capture, restore and compare of database
// fixpoints: named snapshots of a database's contents used to seed and
// verify state in behavior tests.
package fixpoint

import (
	"fmt"
	"io"
	"log/slog"
	"sort"

	"github.com/koba/db-fixpoint/internal/database"
	"github.com/koba/db-fixpoint/internal/filter"
	"github.com/koba/db-fixpoint/internal/record"
	"github.com/koba/db-fixpoint/internal/store"
)

// Options configures a Fixpoint.
type Options struct {
	// SkipTables are never captured, restored or compared (for example a
	// migration bookkeeping table).
	SkipTables []string
	// Ignored columns are stripped from both sides before comparison.
	// Stored artifacts always keep every column.
	Ignored filter.IgnoredColumns
	// Logger receives operation progress; nil disables logging.
	Logger *slog.Logger
}

// Fixpoint ties a database gateway to an artifact store. Operations are
// synchronous and must not run concurrently against the same database and
// artifact names; no locking is provided.
type Fixpoint struct {
	gw   database.Gateway
	st   *store.Store
	opts Options
	log  *slog.Logger
}

// New creates a Fixpoint over the given gateway and store.
func New(gw database.Gateway, st *store.Store, opts Options) *Fixpoint {
	log := opts.Logger
	if log == nil {
		log = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Fixpoint{gw: gw, st: st, opts: opts, log: log}
}

func (f *Fixpoint) skipped(table string) bool {
	for _, t := range f.opts.SkipTables {
		if t == table {
			return true
		}
	}
	return false
}

// snapshot reads the current database state: every non-skipped table with at
// least one row, rows in the gateway's primary-key order.
func (f *Fixpoint) snapshot() (record.Snapshot, error) {
	tables, err := f.gw.ListTables()
	if err != nil {
		return nil, fmt.Errorf("failed to list tables: %w", err)
	}

	snap := make(record.Snapshot)
	for _, table := range tables {
		if f.skipped(table) {
			continue
		}
		rows, err := f.gw.SelectAllRows(table)
		if err != nil {
			return nil, fmt.Errorf("failed to read table %s: %w", table, err)
		}
		if len(rows) == 0 {
			continue
		}
		f.log.Debug("captured table", "table", table, "rows", len(rows))
		snap[table] = rows
	}

	return snap, nil
}

// Capture reads the current database state and persists it under name. With
// a parentName only the change-set against that (chain-resolved) parent is
// stored. Returns the captured snapshot.
func (f *Fixpoint) Capture(name, parentName string) (record.Snapshot, error) {
	snap, err := f.snapshot()
	if err != nil {
		return nil, err
	}

	if err := f.st.Save(name, snap, parentName); err != nil {
		return nil, err
	}

	f.log.Info("captured fixpoint", "name", name, "parent", parentName, "tables", len(snap))
	return snap, nil
}

// Restore resolves the named fixpoint to a full snapshot and replaces the
// database contents of every table it covers (delete-then-insert; live rows
// of affected tables are discarded, other tables are left alone).
func (f *Fixpoint) Restore(name string) error {
	snap, err := f.st.Load(name)
	if err != nil {
		return err
	}

	for _, table := range sortedTables(snap) {
		if err := f.gw.ReplaceAllRows(table, snap[table]); err != nil {
			return fmt.Errorf("failed to restore table %s: %w", table, err)
		}
		f.log.Debug("restored table", "table", table, "rows", len(snap[table]))
	}

	f.log.Info("restored fixpoint", "name", name, "tables", len(snap))
	return nil
}

// Compare loads the named fixpoint and checks the live database state
// against it, ignoring the configured columns on both sides. With explicit
// tables only those are checked; otherwise every table either side has.
// Returns a *MismatchError describing each unequal table, nil when equal.
func (f *Fixpoint) Compare(name string, tables ...string) error {
	stored, err := f.st.Load(name)
	if err != nil {
		return err
	}

	live, err := f.snapshot()
	if err != nil {
		return err
	}

	stored = f.opts.Ignored.ApplySnapshot(stored)
	live = f.opts.Ignored.ApplySnapshot(live)

	if len(tables) == 0 {
		seen := make(map[string]bool)
		for table := range stored {
			seen[table] = true
		}
		for table := range live {
			seen[table] = true
		}
		for table := range seen {
			tables = append(tables, table)
		}
		sort.Strings(tables)
	}

	mismatch := &MismatchError{Fixpoint: name}
	for _, table := range tables {
		if f.skipped(table) {
			continue
		}
		storedRows, inStored := stored[table]
		liveRows, inLive := live[table]

		switch {
		case inStored && !inLive:
			mismatch.add(TableMismatch{Table: table, Detail: fmt.Sprintf("present in fixpoint (%d rows) but empty in database", len(storedRows))})
		case inLive && !inStored:
			mismatch.add(TableMismatch{Table: table, Detail: fmt.Sprintf("empty in fixpoint but present in database (%d rows)", len(liveRows))})
		case !record.RowsEqual(storedRows, liveRows):
			mismatch.add(TableMismatch{Table: table, Detail: describeRowDiff(storedRows, liveRows)})
		}
	}

	if len(mismatch.Tables) > 0 {
		f.log.Info("fixpoint comparison failed", "name", name, "tables", len(mismatch.Tables))
		return mismatch
	}

	f.log.Info("fixpoint comparison passed", "name", name)
	return nil
}

func describeRowDiff(stored, live []record.Record) string {
	if len(stored) != len(live) {
		return fmt.Sprintf("row count differs: fixpoint has %d, database has %d", len(stored), len(live))
	}
	for i := range stored {
		if !record.Equal(stored[i], live[i]) {
			return fmt.Sprintf("first difference at row %d: fixpoint %v, database %v", i, stored[i], live[i])
		}
	}
	return "rows differ"
}

func sortedTables(snap record.Snapshot) []string {
	tables := make([]string, 0, len(snap))
	for table := range snap {
		tables = append(tables, table)
	}
	sort.Strings(tables)
	return tables
}

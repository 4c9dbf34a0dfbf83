package fixpoint

import (
	"fmt"
	"strings"
)

// TableMismatch describes one table whose stored and live contents differ.
type TableMismatch struct {
	Table  string
	Detail string
}

// MismatchError is Compare's positive-detection outcome: the database state
// no longer matches the fixpoint. It is a test-failure signal, not a fault
// of the engine, and is never swallowed.
type MismatchError struct {
	Fixpoint string
	Tables   []TableMismatch
}

func (e *MismatchError) add(m TableMismatch) {
	e.Tables = append(e.Tables, m)
}

func (e *MismatchError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "database state differs from fixpoint %s:", e.Fixpoint)
	for _, m := range e.Tables {
		fmt.Fprintf(&b, "\n  table %s: %s", m.Table, m.Detail)
	}
	return b.String()
}

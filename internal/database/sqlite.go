package database

import (
	"database/sql"
	"fmt"
	"sort"
	"strings"

	_ "modernc.org/sqlite"

	"github.com/koba/db-fixpoint/internal/record"
)

// SQLite implements the Gateway interface for SQLite database files
type SQLite struct {
	config Config
	db     *sql.DB
}

// NewSQLite creates a new SQLite gateway
func NewSQLite(config Config) *SQLite {
	return &SQLite{config: config}
}

// Connect opens the SQLite database file
func (s *SQLite) Connect() error {
	db, err := sql.Open("sqlite", s.config.Path)
	if err != nil {
		return fmt.Errorf("failed to open SQLite database: %w", err)
	}

	if err := db.Ping(); err != nil {
		return fmt.Errorf("failed to ping SQLite: %w", err)
	}

	s.db = db
	return nil
}

// Close closes the SQLite database
func (s *SQLite) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// ListTables retrieves all table names in the database
func (s *SQLite) ListTables() ([]string, error) {
	query := `
		SELECT name FROM sqlite_master
		WHERE type = 'table' AND name NOT LIKE 'sqlite_%'
		ORDER BY name
	`
	rows, err := s.db.Query(query)
	if err != nil {
		return nil, fmt.Errorf("failed to get tables: %w", err)
	}
	defer rows.Close()

	var tables []string
	for rows.Next() {
		var tableName string
		if err := rows.Scan(&tableName); err != nil {
			return nil, fmt.Errorf("failed to scan table name: %w", err)
		}
		tables = append(tables, tableName)
	}

	return tables, rows.Err()
}

// primaryKeyColumns returns the table's primary key columns in key order,
// or nil when the table has no primary key.
func (s *SQLite) primaryKeyColumns(tableName string) ([]string, error) {
	rows, err := s.db.Query(fmt.Sprintf("PRAGMA table_info(%q)", tableName))
	if err != nil {
		return nil, fmt.Errorf("failed to get table info: %w", err)
	}
	defer rows.Close()

	type pkColumn struct {
		name string
		pos  int
	}

	var pk []pkColumn
	for rows.Next() {
		var (
			cid        int
			name       string
			columnType string
			notNull    int
			dflt       sql.NullString
			pkPos      int
		)
		if err := rows.Scan(&cid, &name, &columnType, &notNull, &dflt, &pkPos); err != nil {
			return nil, fmt.Errorf("failed to scan table info: %w", err)
		}
		if pkPos > 0 {
			pk = append(pk, pkColumn{name: name, pos: pkPos})
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	sort.Slice(pk, func(i, j int) bool { return pk[i].pos < pk[j].pos })

	columns := make([]string, len(pk))
	for i, col := range pk {
		columns[i] = col.name
	}
	return columns, nil
}

// SelectAllRows retrieves all rows of a table, primary key order first
func (s *SQLite) SelectAllRows(tableName string) ([]record.Record, error) {
	pkColumns, err := s.primaryKeyColumns(tableName)
	if err != nil {
		return nil, err
	}

	query := fmt.Sprintf("SELECT * FROM %q", tableName)
	if len(pkColumns) > 0 {
		quoted := make([]string, len(pkColumns))
		for i, col := range pkColumns {
			quoted[i] = fmt.Sprintf("%q", col)
		}
		query = fmt.Sprintf("%s ORDER BY %s", query, strings.Join(quoted, ", "))
	}

	rows, err := s.db.Query(query)
	if err != nil {
		return nil, fmt.Errorf("failed to get table data: %w", err)
	}
	defer rows.Close()

	return scanRows(rows)
}

// ReplaceAllRows clears the table and bulk-inserts the given rows
func (s *SQLite) ReplaceAllRows(tableName string, data []record.Record) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(fmt.Sprintf("DELETE FROM %q", tableName)); err != nil {
		return fmt.Errorf("failed to clear table %s: %w", tableName, err)
	}

	for _, row := range data {
		columns := sortedColumns(row)
		quoted := make([]string, len(columns))
		placeholders := make([]string, len(columns))
		values := make([]interface{}, len(columns))
		for i, col := range columns {
			quoted[i] = fmt.Sprintf("%q", col)
			placeholders[i] = "?"
			values[i] = row[col]
		}

		query := fmt.Sprintf("INSERT INTO %q (%s) VALUES (%s)",
			tableName,
			strings.Join(quoted, ", "),
			strings.Join(placeholders, ", "),
		)
		if _, err := tx.Exec(query, values...); err != nil {
			return fmt.Errorf("failed to insert row into %s: %w", tableName, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}

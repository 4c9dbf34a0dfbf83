package database

import (
	"database/sql"
	"fmt"
	"strings"

	_ "github.com/lib/pq"

	"github.com/koba/db-fixpoint/internal/record"
)

// Postgres implements the Gateway interface for PostgreSQL
type Postgres struct {
	config Config
	db     *sql.DB
}

// NewPostgres creates a new PostgreSQL gateway
func NewPostgres(config Config) *Postgres {
	return &Postgres{config: config}
}

// Connect establishes a connection to PostgreSQL
func (p *Postgres) Connect() error {
	dsn := fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=disable",
		p.config.Host,
		p.config.Port,
		p.config.User,
		p.config.Password,
		p.config.Database,
	)

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return fmt.Errorf("failed to open PostgreSQL connection: %w", err)
	}

	if err := db.Ping(); err != nil {
		return fmt.Errorf("failed to ping PostgreSQL: %w", err)
	}

	p.db = db
	return nil
}

// Close closes the PostgreSQL connection
func (p *Postgres) Close() error {
	if p.db != nil {
		return p.db.Close()
	}
	return nil
}

// ListTables retrieves all table names in the public schema
func (p *Postgres) ListTables() ([]string, error) {
	query := `
		SELECT table_name
		FROM information_schema.tables
		WHERE table_schema = 'public' AND table_type = 'BASE TABLE'
		ORDER BY table_name
	`
	rows, err := p.db.Query(query)
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
func (p *Postgres) primaryKeyColumns(tableName string) ([]string, error) {
	query := `
		SELECT a.attname
		FROM pg_class t
		JOIN pg_index ix ON t.oid = ix.indrelid
		JOIN pg_attribute a ON a.attrelid = t.oid AND a.attnum = ANY(ix.indkey)
		WHERE t.relname = $1 AND t.relkind = 'r' AND ix.indisprimary
		ORDER BY array_position(ix.indkey, a.attnum)
	`
	rows, err := p.db.Query(query, tableName)
	if err != nil {
		return nil, fmt.Errorf("failed to get primary key: %w", err)
	}
	defer rows.Close()

	var columns []string
	for rows.Next() {
		var columnName string
		if err := rows.Scan(&columnName); err != nil {
			return nil, fmt.Errorf("failed to scan primary key column: %w", err)
		}
		columns = append(columns, columnName)
	}

	return columns, rows.Err()
}

// SelectAllRows retrieves all rows of a table, primary key order first
func (p *Postgres) SelectAllRows(tableName string) ([]record.Record, error) {
	pkColumns, err := p.primaryKeyColumns(tableName)
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

	rows, err := p.db.Query(query)
	if err != nil {
		return nil, fmt.Errorf("failed to get table data: %w", err)
	}
	defer rows.Close()

	return scanRows(rows)
}

// ReplaceAllRows clears the table and bulk-inserts the given rows
func (p *Postgres) ReplaceAllRows(tableName string, data []record.Record) error {
	tx, err := p.db.Begin()
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
			placeholders[i] = fmt.Sprintf("$%d", i+1)
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

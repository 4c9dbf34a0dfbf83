package database

import (
	"database/sql"
	"fmt"
	"strings"

	_ "github.com/go-sql-driver/mysql"

	"github.com/koba/db-fixpoint/internal/record"
)

// MySQL implements the Gateway interface for MySQL
type MySQL struct {
	config Config
	db     *sql.DB
}

// NewMySQL creates a new MySQL gateway
func NewMySQL(config Config) *MySQL {
	return &MySQL{config: config}
}

// Connect establishes a connection to MySQL
func (m *MySQL) Connect() error {
	dsn := fmt.Sprintf("%s:%s@tcp(%s:%s)/%s?parseTime=true",
		m.config.User,
		m.config.Password,
		m.config.Host,
		m.config.Port,
		m.config.Database,
	)

	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return fmt.Errorf("failed to open MySQL connection: %w", err)
	}

	if err := db.Ping(); err != nil {
		return fmt.Errorf("failed to ping MySQL: %w", err)
	}

	m.db = db
	return nil
}

// Close closes the MySQL connection
func (m *MySQL) Close() error {
	if m.db != nil {
		return m.db.Close()
	}
	return nil
}

// ListTables retrieves all table names in the database
func (m *MySQL) ListTables() ([]string, error) {
	query := "SELECT TABLE_NAME FROM information_schema.TABLES WHERE TABLE_SCHEMA = ? AND TABLE_TYPE = 'BASE TABLE' ORDER BY TABLE_NAME"
	rows, err := m.db.Query(query, m.config.Database)
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
func (m *MySQL) primaryKeyColumns(tableName string) ([]string, error) {
	query := `
		SELECT COLUMN_NAME
		FROM information_schema.KEY_COLUMN_USAGE
		WHERE TABLE_SCHEMA = ? AND TABLE_NAME = ? AND CONSTRAINT_NAME = 'PRIMARY'
		ORDER BY ORDINAL_POSITION
	`
	rows, err := m.db.Query(query, m.config.Database, tableName)
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
func (m *MySQL) SelectAllRows(tableName string) ([]record.Record, error) {
	pkColumns, err := m.primaryKeyColumns(tableName)
	if err != nil {
		return nil, err
	}

	query := fmt.Sprintf("SELECT * FROM `%s`", tableName)
	if len(pkColumns) > 0 {
		quoted := make([]string, len(pkColumns))
		for i, col := range pkColumns {
			quoted[i] = fmt.Sprintf("`%s`", col)
		}
		query = fmt.Sprintf("%s ORDER BY %s", query, strings.Join(quoted, ", "))
	}

	rows, err := m.db.Query(query)
	if err != nil {
		return nil, fmt.Errorf("failed to get table data: %w", err)
	}
	defer rows.Close()

	return scanRows(rows)
}

// ReplaceAllRows clears the table and bulk-inserts the given rows
func (m *MySQL) ReplaceAllRows(tableName string, data []record.Record) error {
	tx, err := m.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(fmt.Sprintf("DELETE FROM `%s`", tableName)); err != nil {
		return fmt.Errorf("failed to clear table %s: %w", tableName, err)
	}

	for _, row := range data {
		columns := sortedColumns(row)
		quoted := make([]string, len(columns))
		placeholders := make([]string, len(columns))
		values := make([]interface{}, len(columns))
		for i, col := range columns {
			quoted[i] = fmt.Sprintf("`%s`", col)
			placeholders[i] = "?"
			values[i] = row[col]
		}

		query := fmt.Sprintf("INSERT INTO `%s` (%s) VALUES (%s)",
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

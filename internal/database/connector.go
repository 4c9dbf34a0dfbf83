package database

import (
	"database/sql"
	"fmt"
	"os"
	"sort"

	"github.com/koba/db-fixpoint/internal/record"
)

// Config holds database connection configuration
type Config struct {
	Type     string // "mysql", "postgres" or "sqlite"
	Host     string
	Port     string
	Database string
	User     string
	Password string
	Path     string // sqlite only: database file path
}

// Gateway defines the operations the fixpoint engine needs from a database.
// Connection selection is a caller-supplied Config, never process-global.
type Gateway interface {
	Connect() error
	Close() error
	// ListTables returns the names of every base table.
	ListTables() ([]string, error)
	// SelectAllRows returns every row of a table, ordered by primary key
	// ascending when the table has one and by the driver's natural row
	// order otherwise.
	SelectAllRows(tableName string) ([]record.Record, error)
	// ReplaceAllRows clears the table and bulk-inserts the given rows in
	// order, inside a single transaction.
	ReplaceAllRows(tableName string, rows []record.Record) error
}

// NewGateway creates a gateway for the configured database type
func NewGateway(config Config) (Gateway, error) {
	switch config.Type {
	case "mysql", "MySQL":
		return NewMySQL(config), nil
	case "postgres", "Postgres", "PostgreSQL":
		return NewPostgres(config), nil
	case "sqlite", "SQLite", "sqlite3":
		return NewSQLite(config), nil
	default:
		return nil, fmt.Errorf("unsupported database type: %s", config.Type)
	}
}

// LoadConfigFromEnv loads database configuration from environment variables
func LoadConfigFromEnv() (Config, error) {
	dbType := os.Getenv("FIXPOINT_DB_TYPE")
	if dbType == "" {
		return Config{}, fmt.Errorf("FIXPOINT_DB_TYPE environment variable is required")
	}

	if dbType == "sqlite" || dbType == "SQLite" || dbType == "sqlite3" {
		path := os.Getenv("FIXPOINT_DB_PATH")
		if path == "" {
			return Config{}, fmt.Errorf("FIXPOINT_DB_PATH environment variable is required for sqlite")
		}
		return Config{Type: dbType, Path: path}, nil
	}

	host := os.Getenv("FIXPOINT_DB_HOST")
	if host == "" {
		host = "localhost"
	}

	database := os.Getenv("FIXPOINT_DB_NAME")
	if database == "" {
		return Config{}, fmt.Errorf("FIXPOINT_DB_NAME environment variable is required")
	}

	user := os.Getenv("FIXPOINT_DB_USER")
	password := os.Getenv("FIXPOINT_DB_PASSWORD")

	port := os.Getenv("FIXPOINT_DB_PORT")
	if port == "" {
		if dbType == "mysql" || dbType == "MySQL" {
			port = "3306"
		} else {
			port = "5432"
		}
	}

	return Config{
		Type:     dbType,
		Host:     host,
		Port:     port,
		Database: database,
		User:     user,
		Password: password,
	}, nil
}

// scanRows reads every row of a result set into records, normalizing []byte
// column values to string.
func scanRows(rows *sql.Rows) ([]record.Record, error) {
	columns, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("failed to get columns: %w", err)
	}

	var data []record.Record
	for rows.Next() {
		values := make([]interface{}, len(columns))
		valuePtrs := make([]interface{}, len(columns))
		for i := range values {
			valuePtrs[i] = &values[i]
		}

		if err := rows.Scan(valuePtrs...); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}

		row := make(record.Record)
		for i, col := range columns {
			val := values[i]
			if b, ok := val.([]byte); ok {
				row[col] = string(b)
			} else {
				row[col] = val
			}
		}

		data = append(data, row)
	}

	return data, rows.Err()
}

// sortedColumns returns a record's column names in canonical order, so
// generated INSERT statements are deterministic.
func sortedColumns(row record.Record) []string {
	columns := make([]string, 0, len(row))
	for col := range row {
		columns = append(columns, col)
	}
	sort.Strings(columns)
	return columns
}

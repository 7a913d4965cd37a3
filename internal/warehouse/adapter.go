// Package warehouse provides read-only adapters for the analytical
// databases that model source queries run against.
package warehouse

import (
	"context"
	"database/sql"
	"fmt"
)

// Config holds the connection settings for a warehouse.
type Config struct {
	// Type selects the adapter ("duckdb", "postgres").
	Type string

	// Path is the file path for file-based warehouses. Use ":memory:"
	// for an in-memory database.
	Path string

	// Host and Port locate network-based warehouses.
	Host string
	Port int

	// Database is the database name.
	Database string

	// Username and Password authenticate the connection.
	Username string
	Password string

	// Options contains additional driver-specific options.
	Options map[string]string
}

// Rows wraps sql.Rows to provide a consistent interface across adapters.
type Rows struct {
	*sql.Rows
}

// Adapter is the minimal surface the metric and materialization layers
// need from a warehouse. Implementations are read-only: Query rejects
// any statement that is not a plain read.
type Adapter interface {
	// Connect establishes a connection using the provided config.
	Connect(ctx context.Context, cfg Config) error

	// Close closes the connection and releases resources.
	Close() error

	// Query executes a read statement and returns its rows.
	Query(ctx context.Context, sql string) (*Rows, error)

	// Ping verifies the connection is alive.
	Ping(ctx context.Context) error

	// DialectName returns the SQL dialect name ("duckdb", "postgres").
	DialectName() string
}

// ScanAll drains rows into generic maps keyed by column name. Byte
// slices are converted to strings so JSON encoding stays readable.
func ScanAll(rows *Rows) ([]map[string]any, error) {
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("failed to read columns: %w", err)
	}

	var out []map[string]any
	for rows.Next() {
		values := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}

		record := make(map[string]any, len(cols))
		for i, col := range cols {
			v := values[i]
			if b, ok := v.([]byte); ok {
				v = string(b)
			}
			record[col] = v
		}
		out = append(out, record)
	}
	return out, rows.Err()
}

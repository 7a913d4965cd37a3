package warehouse

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"log/slog"

	_ "github.com/marcboeker/go-duckdb" // duckdb driver
)

func init() {
	Register("duckdb", func(logger *slog.Logger) Adapter { return NewDuckDBAdapter(logger) })
}

// DuckDBAdapter implements Adapter for DuckDB.
type DuckDBAdapter struct {
	db     *sql.DB
	config Config
	logger *slog.Logger
}

// NewDuckDBAdapter creates a new DuckDB adapter. A nil logger discards.
func NewDuckDBAdapter(logger *slog.Logger) *DuckDBAdapter {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &DuckDBAdapter{logger: logger}
}

// Connect opens the DuckDB database. Use ":memory:" as the path for an
// in-memory database.
func (a *DuckDBAdapter) Connect(ctx context.Context, cfg Config) error {
	path := cfg.Path
	if path == "" {
		path = ":memory:"
	}

	db, err := sql.Open("duckdb", path)
	if err != nil {
		return fmt.Errorf("failed to open duckdb connection: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return fmt.Errorf("failed to ping duckdb: %w", err)
	}

	a.db = db
	a.config = cfg
	a.logger.Debug("connected to duckdb", "path", path)
	return nil
}

// Close closes the DuckDB connection.
func (a *DuckDBAdapter) Close() error {
	if a.db != nil {
		return a.db.Close()
	}
	return nil
}

// Query executes a read statement and returns its rows.
func (a *DuckDBAdapter) Query(ctx context.Context, sqlStr string) (*Rows, error) {
	if a.db == nil {
		return nil, fmt.Errorf("database connection not established")
	}
	if err := ValidateReadOnly(sqlStr); err != nil {
		return nil, err
	}

	//nolint:rowserrcheck // rows.Err() must be checked by caller after iteration completes
	rows, err := a.db.QueryContext(ctx, sqlStr)
	if err != nil {
		return nil, fmt.Errorf("failed to execute query: %w", err)
	}
	return &Rows{Rows: rows}, nil
}

// Ping verifies the connection is alive.
func (a *DuckDBAdapter) Ping(ctx context.Context) error {
	if a.db == nil {
		return fmt.Errorf("database connection not established")
	}
	return a.db.PingContext(ctx)
}

// DialectName returns "duckdb".
func (a *DuckDBAdapter) DialectName() string {
	return "duckdb"
}

var _ Adapter = (*DuckDBAdapter)(nil)

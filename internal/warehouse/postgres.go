package warehouse

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"log/slog"
	"net/url"

	_ "github.com/jackc/pgx/v5/stdlib" // pgx database/sql driver
)

func init() {
	Register("postgres", func(logger *slog.Logger) Adapter { return NewPostgresAdapter(logger) })
}

// PostgresAdapter implements Adapter for PostgreSQL via pgx.
type PostgresAdapter struct {
	db     *sql.DB
	config Config
	logger *slog.Logger
}

// NewPostgresAdapter creates a new Postgres adapter. A nil logger
// discards.
func NewPostgresAdapter(logger *slog.Logger) *PostgresAdapter {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &PostgresAdapter{logger: logger}
}

// Connect opens a connection to PostgreSQL.
func (a *PostgresAdapter) Connect(ctx context.Context, cfg Config) error {
	if cfg.Host == "" {
		return fmt.Errorf("postgres host not specified")
	}
	port := cfg.Port
	if port == 0 {
		port = 5432
	}

	dsn := url.URL{
		Scheme: "postgres",
		Host:   fmt.Sprintf("%s:%d", cfg.Host, port),
		Path:   "/" + cfg.Database,
	}
	if cfg.Username != "" {
		dsn.User = url.UserPassword(cfg.Username, cfg.Password)
	}
	q := dsn.Query()
	for k, v := range cfg.Options {
		q.Set(k, v)
	}
	dsn.RawQuery = q.Encode()

	db, err := sql.Open("pgx", dsn.String())
	if err != nil {
		return fmt.Errorf("failed to open postgres connection: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return fmt.Errorf("failed to ping postgres: %w", err)
	}

	a.db = db
	a.config = cfg
	a.logger.Debug("connected to postgres", "host", cfg.Host, "database", cfg.Database)
	return nil
}

// Close closes the PostgreSQL connection.
func (a *PostgresAdapter) Close() error {
	if a.db != nil {
		return a.db.Close()
	}
	return nil
}

// Query executes a read statement and returns its rows.
func (a *PostgresAdapter) Query(ctx context.Context, sqlStr string) (*Rows, error) {
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
func (a *PostgresAdapter) Ping(ctx context.Context) error {
	if a.db == nil {
		return fmt.Errorf("database connection not established")
	}
	return a.db.PingContext(ctx)
}

// DialectName returns "postgres".
func (a *PostgresAdapter) DialectName() string {
	return "postgres"
}

var _ Adapter = (*PostgresAdapter)(nil)

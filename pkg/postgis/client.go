// Package postgis wraps a PostGIS database behind the small query surface the
// rest of orelake needs: plain execution, row-capped safe execution, explain-only
// dry validation, and schema introspection.
package postgis

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Config holds the configuration for the PostGIS client.
type Config struct {
	Logger      *slog.Logger
	DatabaseURL string
	// ConnectTimeout bounds the initial pool ping. Defaults to 10s.
	ConnectTimeout time.Duration
}

// ConfigFromEnv builds a Config from POSTGRES_* environment variables.
func ConfigFromEnv(log *slog.Logger) Config {
	host := envOr("POSTGRES_HOST", "localhost")
	port := envOr("POSTGRES_PORT", "5432")
	db := envOr("POSTGRES_DB", "geodb")
	user := envOr("POSTGRES_USER", "geodb")
	password := os.Getenv("POSTGRES_PASSWORD")

	return Config{
		Logger: log,
		DatabaseURL: fmt.Sprintf("postgres://%s:%s@%s:%s/%s",
			user, password, host, port, db),
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// Client is a pgxpool-backed PostGIS client.
type Client struct {
	log  *slog.Logger
	pool *pgxpool.Pool
}

// New creates a new Client and verifies connectivity.
func New(ctx context.Context, cfg Config) (*Client, error) {
	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("database URL is required")
	}
	if cfg.ConnectTimeout == 0 {
		cfg.ConnectTimeout = 10 * time.Second
	}

	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, cfg.ConnectTimeout)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &Client{log: cfg.Logger, pool: pool}, nil
}

// Close releases the underlying connection pool.
func (c *Client) Close() {
	c.pool.Close()
}

// Ping verifies database connectivity.
func (c *Client) Ping(ctx context.Context) error {
	return c.pool.Ping(ctx)
}

// ExecuteQuery runs a statement and returns all rows as column-keyed maps.
func (c *Client) ExecuteQuery(ctx context.Context, sql string, args ...any) ([]map[string]any, error) {
	rows, err := c.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectRows(rows, -1)
}

// Exec runs a statement that returns no rows.
func (c *Client) Exec(ctx context.Context, sql string, args ...any) error {
	_, err := c.pool.Exec(ctx, sql, args...)
	return err
}

// ExecuteSafeQuery validates the statement for safety, runs it, and caps the
// returned rows at maxRows. The second return reports whether rows were
// dropped by the cap.
func (c *Client) ExecuteSafeQuery(ctx context.Context, sql string, maxRows int) ([]map[string]any, bool, error) {
	if ok, reason := c.ValidateQuery(sql); !ok {
		return nil, false, fmt.Errorf("%w: %s", ErrUnsafeQuery, reason)
	}

	start := time.Now()
	rows, err := c.pool.Query(ctx, sql)
	if err != nil {
		return nil, false, err
	}
	defer rows.Close()

	results, err := collectRows(rows, maxRows)
	if err != nil {
		return nil, false, err
	}

	truncated := len(results) == maxRows && rows.Next()
	if c.log != nil {
		c.log.Debug("postgis: query executed",
			"rows", len(results),
			"truncated", truncated,
			"duration", time.Since(start))
	}
	return results, truncated, nil
}

// Explain runs a plan-only check of the statement without executing it. Any
// syntax or reference error surfaces here the same way it would at run time.
func (c *Client) Explain(ctx context.Context, sql string) error {
	rows, err := c.pool.Query(ctx, "EXPLAIN "+sql)
	if err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
	}
	return rows.Err()
}

// collectRows drains up to maxRows rows into column-keyed maps. A negative
// maxRows means no cap.
func collectRows(rows pgx.Rows, maxRows int) ([]map[string]any, error) {
	fields := rows.FieldDescriptions()
	columns := make([]string, len(fields))
	for i, f := range fields {
		columns[i] = f.Name
	}

	var results []map[string]any
	for rows.Next() {
		if maxRows >= 0 && len(results) >= maxRows {
			break
		}
		values, err := rows.Values()
		if err != nil {
			return nil, err
		}
		row := make(map[string]any, len(columns))
		for i, col := range columns {
			row[col] = values[i]
		}
		results = append(results, row)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return results, nil
}

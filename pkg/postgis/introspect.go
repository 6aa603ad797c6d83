package postgis

import (
	"context"
	"fmt"
)

// ColumnInfo describes one column of a user table.
type ColumnInfo struct {
	Name     string
	DataType string
	Nullable bool
}

// GeometryInfo describes the geometry column of a spatial table.
type GeometryInfo struct {
	Column string
	Type   string
	SRID   int
}

// ListTables returns the names of all ordinary tables in the public schema.
func (c *Client) ListTables(ctx context.Context) ([]string, error) {
	rows, err := c.pool.Query(ctx, `
		SELECT table_name
		FROM information_schema.tables
		WHERE table_schema = 'public' AND table_type = 'BASE TABLE'
		ORDER BY table_name
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list tables: %w", err)
	}
	defer rows.Close()

	var tables []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		tables = append(tables, name)
	}
	return tables, rows.Err()
}

// TableColumns returns column metadata for a table.
func (c *Client) TableColumns(ctx context.Context, table string) ([]ColumnInfo, error) {
	rows, err := c.pool.Query(ctx, `
		SELECT column_name, data_type, is_nullable
		FROM information_schema.columns
		WHERE table_schema = 'public' AND table_name = $1
		ORDER BY ordinal_position
	`, table)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch columns for %s: %w", table, err)
	}
	defer rows.Close()

	var columns []ColumnInfo
	for rows.Next() {
		var col ColumnInfo
		var nullable string
		if err := rows.Scan(&col.Name, &col.DataType, &nullable); err != nil {
			return nil, err
		}
		col.Nullable = nullable == "YES"
		columns = append(columns, col)
	}
	return columns, rows.Err()
}

// TableRowCount returns the number of rows in a table.
func (c *Client) TableRowCount(ctx context.Context, table string) (int64, error) {
	var count int64
	err := c.pool.QueryRow(ctx, fmt.Sprintf("SELECT COUNT(*) FROM %s", quoteIdent(table))).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count rows in %s: %w", table, err)
	}
	return count, nil
}

// GeometryColumn returns geometry metadata for a table from the PostGIS
// geometry_columns view, or nil if the table has no geometry.
func (c *Client) GeometryColumn(ctx context.Context, table string) (*GeometryInfo, error) {
	rows, err := c.pool.Query(ctx, `
		SELECT f_geometry_column, type, srid
		FROM geometry_columns
		WHERE f_table_schema = 'public' AND f_table_name = $1
	`, table)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch geometry info for %s: %w", table, err)
	}
	defer rows.Close()

	if !rows.Next() {
		return nil, rows.Err()
	}
	var info GeometryInfo
	if err := rows.Scan(&info.Column, &info.Type, &info.SRID); err != nil {
		return nil, err
	}
	return &info, nil
}

// DistinctValues returns up to limit distinct non-null, non-empty values of a
// text column in database return order.
func (c *Client) DistinctValues(ctx context.Context, table, column string, limit int) ([]string, error) {
	sql := fmt.Sprintf(
		`SELECT DISTINCT %s FROM %s WHERE %s IS NOT NULL AND %s != '' LIMIT %d`,
		quoteIdent(column), quoteIdent(table), quoteIdent(column), quoteIdent(column), limit,
	)

	rows, err := c.pool.Query(ctx, sql)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch distinct values for %s.%s: %w", table, column, err)
	}
	defer rows.Close()

	var values []string
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return nil, err
		}
		values = append(values, v)
	}
	return values, rows.Err()
}

// quoteIdent double-quotes an identifier. Table and column names here come
// from code-side registries, not user input, but quoting keeps mixed-case
// legacy column names working.
func quoteIdent(ident string) string {
	return `"` + ident + `"`
}

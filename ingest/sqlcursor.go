package ingest

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
)

// SQLCursor adapts a database/sql table to the Cursor interface using
// keyset pagination on the ordering column. Queries use Postgres
// placeholder syntax.
type SQLCursor struct {
	DB    *sql.DB
	Table string
	// Where is an optional SQL predicate fragment with no placeholders.
	Where string
	// KeyColumn drives pagination; defaults to "id".
	KeyColumn string
	// BatchSize rows per query; defaults to 1000.
	BatchSize int
}

func (c *SQLCursor) OrderColumn() string {
	if c.KeyColumn == "" {
		return "id"
	}
	return c.KeyColumn
}

func (c *SQLCursor) batchSize() int {
	if c.BatchSize <= 0 {
		return 1000
	}
	return c.BatchSize
}

func (c *SQLCursor) Each(ctx context.Context, columns []string, fn func(Row) error) error {
	key := c.OrderColumn()

	var lastKey interface{}
	for {
		n, err := c.page(ctx, columns, key, lastKey, func(row Row) error {
			lastKey = row[key]
			return fn(row)
		})
		if err != nil {
			return err
		}
		if n < c.batchSize() {
			return nil
		}
	}
}

func (c *SQLCursor) page(ctx context.Context, columns []string, key string, after interface{}, fn func(Row) error) (int, error) {
	var query strings.Builder
	fmt.Fprintf(&query, "SELECT %s FROM %s", strings.Join(columns, ", "), c.Table)

	var args []interface{}
	conds := []string{}
	if c.Where != "" {
		conds = append(conds, "("+c.Where+")")
	}
	if after != nil {
		args = append(args, after)
		conds = append(conds, fmt.Sprintf("%s > $%d", key, len(args)))
	}
	if len(conds) > 0 {
		query.WriteString(" WHERE " + strings.Join(conds, " AND "))
	}
	fmt.Fprintf(&query, " ORDER BY %s ASC LIMIT %d", key, c.batchSize())

	rows, err := c.DB.QueryContext(ctx, query.String(), args...)
	if err != nil {
		return 0, fmt.Errorf("cursor query %s: %w", c.Table, err)
	}
	defer rows.Close()

	count := 0
	values := make([]interface{}, len(columns))
	scan := make([]interface{}, len(columns))
	for i := range values {
		scan[i] = &values[i]
	}

	for rows.Next() {
		if err := rows.Scan(scan...); err != nil {
			return count, fmt.Errorf("cursor scan %s: %w", c.Table, err)
		}

		row := make(Row, len(columns))
		for i, col := range columns {
			row[col] = normalizeSQLValue(values[i])
		}

		if err := fn(row); err != nil {
			return count, err
		}
		count++
	}
	return count, rows.Err()
}

// normalizeSQLValue turns driver byte slices into strings so records
// serialize as text rather than base64.
func normalizeSQLValue(v interface{}) interface{} {
	if b, ok := v.([]byte); ok {
		return string(b)
	}
	return v
}

package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/JonMunkholm/ferry/internal/core"
)

const duckdbDefaultSchema = "main"

// duckdbClient holds one database/sql connection for the lifetime of a
// transfer or catalog call.
type duckdbClient struct {
	conn *sql.Conn
}

func (c *duckdbClient) Ping(ctx context.Context) error {
	return c.conn.PingContext(ctx)
}

func (c *duckdbClient) ListTables(ctx context.Context) ([]string, error) {
	const q = `SELECT table_schema, table_name
		FROM information_schema.tables
		WHERE table_type = 'BASE TABLE'
		ORDER BY table_schema, table_name`

	rows, err := c.conn.QueryContext(ctx, q)
	if err != nil {
		return nil, &core.QueryError{Query: q, Err: err}
	}
	defer rows.Close()

	var tables []string
	for rows.Next() {
		var schema, name string
		if err := rows.Scan(&schema, &name); err != nil {
			return nil, &core.QueryError{Query: q, Err: err}
		}
		tables = append(tables, qualifiedName(schema, name, duckdbDefaultSchema))
	}
	if err := rows.Err(); err != nil {
		return nil, &core.QueryError{Query: q, Err: err}
	}
	return tables, nil
}

func (c *duckdbClient) DescribeTable(ctx context.Context, table string) ([]core.ColumnInfo, error) {
	const q = `SELECT column_name, data_type
		FROM information_schema.columns
		WHERE table_schema = COALESCE(NULLIF(?, ''), current_schema())
		  AND table_name = ?
		ORDER BY ordinal_position`

	schema, name := splitTable(table)
	rows, err := c.conn.QueryContext(ctx, q, schema, name)
	if err != nil {
		return nil, &core.QueryError{Query: q, Err: err}
	}
	defer rows.Close()

	var cols []core.ColumnInfo
	for rows.Next() {
		var col core.ColumnInfo
		if err := rows.Scan(&col.Name, &col.Type); err != nil {
			return nil, &core.QueryError{Query: q, Err: err}
		}
		cols = append(cols, col)
	}
	if err := rows.Err(); err != nil {
		return nil, &core.QueryError{Query: q, Err: err}
	}
	if len(cols) == 0 {
		return nil, &core.QueryError{Query: q, Err: fmt.Errorf("table %s does not exist", table)}
	}
	return cols, nil
}

func (c *duckdbClient) CreateTable(ctx context.Context, table string, columns []string) error {
	q := createTableQuery(table, columns, "VARCHAR")
	if _, err := c.conn.ExecContext(ctx, q); err != nil {
		return &core.QueryError{Query: q, Err: err}
	}
	return nil
}

func (c *duckdbClient) CountRows(ctx context.Context, table string) (int64, error) {
	q := countQuery(table)
	var n int64
	if err := c.conn.QueryRowContext(ctx, q).Scan(&n); err != nil {
		return 0, &core.QueryError{Query: q, Err: err}
	}
	return n, nil
}

func (c *duckdbClient) QueryRows(ctx context.Context, table string, columns []string, limit, offset int) (core.Batch, error) {
	q := selectQuery(table, columns, "", limit, offset)
	rows, err := c.conn.QueryContext(ctx, q)
	if err != nil {
		return nil, &core.QueryError{Query: q, Err: err}
	}
	defer rows.Close()

	types, err := rows.ColumnTypes()
	if err != nil {
		return nil, &core.QueryError{Query: q, Err: err}
	}

	batch := make(core.Batch, 0, limit)
	for rows.Next() {
		values := make([]any, len(types))
		ptrs := make([]any, len(types))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, &core.QueryError{Query: q, Err: err}
		}

		row := make(core.Row, len(values))
		for i, v := range values {
			row[i] = normalize(v, types[i].DatabaseTypeName())
		}
		batch = append(batch, row)
	}
	if err := rows.Err(); err != nil {
		return nil, &core.QueryError{Query: q, Err: err}
	}
	return batch, nil
}

// InsertRows runs one prepared INSERT per row inside a transaction. The
// first failing row rolls back the whole batch.
func (c *duckdbClient) InsertRows(ctx context.Context, table string, columns []string, rows core.Batch) (int, error) {
	if len(rows) == 0 {
		return 0, nil
	}

	tx, err := c.conn.BeginTx(ctx, nil)
	if err != nil {
		return 0, &core.InsertError{Table: table, Row: -1, Err: fmt.Errorf("begin transaction: %w", err)}
	}
	defer tx.Rollback() // No-op if already committed

	stmt, err := tx.PrepareContext(ctx, insertQuery(table, columns, questionPlaceholder))
	if err != nil {
		return 0, &core.InsertError{Table: table, Row: -1, Err: err}
	}
	defer stmt.Close()

	for i, row := range rows {
		if _, err := stmt.ExecContext(ctx, row...); err != nil {
			return 0, &core.InsertError{Table: table, Row: i, Err: err}
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, &core.InsertError{Table: table, Row: -1, Err: fmt.Errorf("commit: %w", err)}
	}
	return len(rows), nil
}

func (c *duckdbClient) Close() error {
	err := c.conn.Close()
	if errors.Is(err, sql.ErrConnDone) {
		return nil
	}
	return err
}

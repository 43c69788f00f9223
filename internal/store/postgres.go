package store

import (
	"context"
	"fmt"
	"sync"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/JonMunkholm/ferry/internal/core"
)

const postgresDefaultSchema = "public"

// postgresPageOrder keeps export pages in physical row order even when a
// synchronized scan starts mid-table. tableoid separates partitions.
const postgresPageOrder = "tableoid, ctid"

// postgresClient holds one pooled connection for the lifetime of a
// transfer or catalog call.
type postgresClient struct {
	conn *pgxpool.Conn
	once sync.Once
}

func (c *postgresClient) Ping(ctx context.Context) error {
	return c.conn.Ping(ctx)
}

func (c *postgresClient) ListTables(ctx context.Context) ([]string, error) {
	const q = `SELECT table_schema, table_name
		FROM information_schema.tables
		WHERE table_type = 'BASE TABLE'
		  AND table_schema NOT IN ('pg_catalog', 'information_schema')
		ORDER BY table_schema, table_name`

	rows, err := c.conn.Query(ctx, q)
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
		tables = append(tables, qualifiedName(schema, name, postgresDefaultSchema))
	}
	if err := rows.Err(); err != nil {
		return nil, &core.QueryError{Query: q, Err: err}
	}
	return tables, nil
}

func (c *postgresClient) DescribeTable(ctx context.Context, table string) ([]core.ColumnInfo, error) {
	const q = `SELECT column_name, data_type
		FROM information_schema.columns
		WHERE table_schema = COALESCE(NULLIF($1, ''), current_schema())
		  AND table_name = $2
		ORDER BY ordinal_position`

	schema, name := splitTable(table)
	rows, err := c.conn.Query(ctx, q, schema, name)
	if err != nil {
		return nil, &core.QueryError{Query: q, Err: err}
	}

	cols, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (core.ColumnInfo, error) {
		var col core.ColumnInfo
		err := row.Scan(&col.Name, &col.Type)
		return col, err
	})
	if err != nil {
		return nil, &core.QueryError{Query: q, Err: err}
	}
	if len(cols) == 0 {
		return nil, &core.QueryError{Query: q, Err: fmt.Errorf("table %s does not exist", table)}
	}
	return cols, nil
}

func (c *postgresClient) CreateTable(ctx context.Context, table string, columns []string) error {
	q := createTableQuery(table, columns, "TEXT")
	if _, err := c.conn.Exec(ctx, q); err != nil {
		return &core.QueryError{Query: q, Err: err}
	}
	return nil
}

func (c *postgresClient) CountRows(ctx context.Context, table string) (int64, error) {
	q := countQuery(table)
	var n int64
	if err := c.conn.QueryRow(ctx, q).Scan(&n); err != nil {
		return 0, &core.QueryError{Query: q, Err: err}
	}
	return n, nil
}

func (c *postgresClient) QueryRows(ctx context.Context, table string, columns []string, limit, offset int) (core.Batch, error) {
	q := selectQuery(table, columns, postgresPageOrder, limit, offset)
	rows, err := c.conn.Query(ctx, q)
	if err != nil {
		return nil, &core.QueryError{Query: q, Err: err}
	}
	defer rows.Close()

	fields := rows.FieldDescriptions()
	batch := make(core.Batch, 0, limit)
	for rows.Next() {
		values, err := rows.Values()
		if err != nil {
			return nil, &core.QueryError{Query: q, Err: err}
		}
		row := make(core.Row, len(values))
		for i, v := range values {
			row[i] = normalize(v, postgresTypeName(fields[i].DataTypeOID))
		}
		batch = append(batch, row)
	}
	if err := rows.Err(); err != nil {
		return nil, &core.QueryError{Query: q, Err: err}
	}
	return batch, nil
}

// InsertRows inserts rows in one transaction. The statements are pipelined
// with a pgx.Batch; the first failing row aborts and rolls back the lot.
func (c *postgresClient) InsertRows(ctx context.Context, table string, columns []string, rows core.Batch) (int, error) {
	if len(rows) == 0 {
		return 0, nil
	}

	tx, err := c.conn.Begin(ctx)
	if err != nil {
		return 0, &core.InsertError{Table: table, Row: -1, Err: fmt.Errorf("begin transaction: %w", err)}
	}
	defer tx.Rollback(ctx) // No-op if already committed

	q := insertQuery(table, columns, dollarPlaceholder)
	batch := &pgx.Batch{}
	for _, row := range rows {
		batch.Queue(q, row...)
	}

	results := tx.SendBatch(ctx, batch)
	for i := range rows {
		if _, err := results.Exec(); err != nil {
			results.Close()
			return 0, &core.InsertError{Table: table, Row: i, Err: err}
		}
	}
	if err := results.Close(); err != nil {
		return 0, &core.InsertError{Table: table, Row: -1, Err: err}
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, &core.InsertError{Table: table, Row: -1, Err: fmt.Errorf("commit: %w", err)}
	}
	return len(rows), nil
}

func (c *postgresClient) Close() error {
	c.once.Do(c.conn.Release)
	return nil
}

// postgresTypeName reports the type names normalize cares about.
func postgresTypeName(oid uint32) string {
	if oid == pgtype.UUIDOID {
		return "UUID"
	}
	return ""
}

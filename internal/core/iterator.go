package core

import (
	"context"
	"io"
)

// StorePager iterates a store table in LIMIT/OFFSET pages. A page shorter
// than the page size ends the stream, so an exact multiple of the page
// size costs one extra empty query.
type StorePager struct {
	client   StoreClient
	table    string
	columns  []string
	pageSize int

	offset int
	done   bool
}

// NewStorePager validates columns against the table's schema and returns a
// pager positioned at the first row. Nothing is read from the table until
// the first call to Next.
func NewStorePager(ctx context.Context, client StoreClient, table string, columns []string, pageSize int) (*StorePager, error) {
	if pageSize <= 0 {
		pageSize = DefaultExportBatchSize
	}

	schema, err := client.DescribeTable(ctx, table)
	if err != nil {
		return nil, err
	}

	available := make([]string, len(schema))
	for i, c := range schema {
		available[i] = c.Name
	}
	if err := CheckColumns(columns, available, "table "+table); err != nil {
		return nil, err
	}

	return &StorePager{
		client:   client,
		table:    table,
		columns:  append([]string(nil), columns...),
		pageSize: pageSize,
	}, nil
}

// Next returns the next page, or io.EOF once the table is exhausted.
func (p *StorePager) Next(ctx context.Context) (Batch, error) {
	if p.done {
		return nil, io.EOF
	}

	page, err := p.client.QueryRows(ctx, p.table, p.columns, p.pageSize, p.offset)
	if err != nil {
		p.done = true
		return nil, err
	}

	if len(page) < p.pageSize {
		p.done = true
	}
	if len(page) == 0 {
		return nil, io.EOF
	}

	p.offset += len(page)
	return page, nil
}

// Close releases nothing; the client belongs to the transfer.
func (p *StorePager) Close() error {
	p.done = true
	return nil
}

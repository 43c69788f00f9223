package core

import (
	"context"
)

// StoreSink inserts each batch into a store table as it arrives.
type StoreSink struct {
	client  StoreClient
	table   string
	columns []string
}

// NewStoreSink returns a sink writing columns of each batch into table.
func NewStoreSink(client StoreClient, table string, columns []string) *StoreSink {
	return &StoreSink{
		client:  client,
		table:   table,
		columns: append([]string(nil), columns...),
	}
}

// WriteBatch inserts batch in one transaction. A failure on any row aborts
// the whole batch.
func (s *StoreSink) WriteBatch(ctx context.Context, batch Batch) (int, error) {
	if len(batch) == 0 {
		return 0, nil
	}
	return s.client.InsertRows(ctx, s.table, s.columns, batch)
}

// Close releases nothing; the client belongs to the transfer.
func (s *StoreSink) Close() error { return nil }

// AccumulatingFileSink buffers every batch and writes the file once, on
// Finalize. WriteBatch reports rows buffered so progress still advances
// per page.
type AccumulatingFileSink struct {
	writer    FileWriter
	path      string
	headers   []string
	delimiter string

	rows Batch
}

// NewAccumulatingFileSink returns a sink that writes path in one pass.
func NewAccumulatingFileSink(w FileWriter, path string, headers []string, delimiter string) *AccumulatingFileSink {
	return &AccumulatingFileSink{
		writer:    w,
		path:      path,
		headers:   append([]string(nil), headers...),
		delimiter: delimiter,
	}
}

// WriteBatch appends batch to the in-memory result set.
func (s *AccumulatingFileSink) WriteBatch(_ context.Context, batch Batch) (int, error) {
	s.rows = append(s.rows, batch...)
	return len(batch), nil
}

// Finalize writes the header and every buffered row.
func (s *AccumulatingFileSink) Finalize(ctx context.Context) (int, error) {
	n, err := s.writer.Write(ctx, s.path, s.headers, s.rows, s.delimiter)
	s.rows = nil
	return n, err
}

// Close drops any buffered rows.
func (s *AccumulatingFileSink) Close() error {
	s.rows = nil
	return nil
}

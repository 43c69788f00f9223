package core

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
)

// TestConnection opens a catalog client and pings the store.
func (s *Service) TestConnection(ctx context.Context, cfg ConnectionConfig) error {
	client, err := s.connector.OpenCatalog(ctx, cfg)
	if err != nil {
		return err
	}
	defer client.Close()

	return client.Ping(ctx)
}

// ListTables returns the table names visible through cfg.
func (s *Service) ListTables(ctx context.Context, cfg ConnectionConfig) ([]string, error) {
	client, err := s.connector.OpenCatalog(ctx, cfg)
	if err != nil {
		return nil, err
	}
	defer client.Close()

	return client.ListTables(ctx)
}

// DescribeTable returns the columns of table in declaration order.
func (s *Service) DescribeTable(ctx context.Context, cfg ConnectionConfig, table string) ([]ColumnInfo, error) {
	if strings.TrimSpace(table) == "" {
		return nil, fmt.Errorf("%w: table name is required", ErrInvalidRequest)
	}

	client, err := s.connector.OpenCatalog(ctx, cfg)
	if err != nil {
		return nil, err
	}
	defer client.Close()

	return client.DescribeTable(ctx, table)
}

// CreateTable creates table with one text column per name, if it does not
// already exist.
func (s *Service) CreateTable(ctx context.Context, cfg ConnectionConfig, table string, columns []string) error {
	if strings.TrimSpace(table) == "" {
		return fmt.Errorf("%w: table name is required", ErrInvalidRequest)
	}
	if len(columns) == 0 {
		return fmt.Errorf("%w: at least one column must be selected", ErrInvalidRequest)
	}

	client, err := s.connector.OpenCatalog(ctx, cfg)
	if err != nil {
		return err
	}
	defer client.Close()

	return client.CreateTable(ctx, table, columns)
}

// FileSchema returns the header of a delimited file with types inferred
// from its first data record.
func (s *Service) FileSchema(ctx context.Context, path, delimiter string) ([]ColumnInfo, error) {
	if delimiter == "" {
		delimiter = s.cfg.DefaultDelimiter
	}
	return s.inspector.Schema(ctx, path, delimiter)
}

// PreviewTable returns up to maxRows rows of the projected table columns.
// An empty projection selects every column.
func (s *Service) PreviewTable(ctx context.Context, cfg ConnectionConfig, table string, columns []string, maxRows int) ([]string, Batch, error) {
	maxRows = s.previewLimit(maxRows)

	client, err := s.connector.Open(ctx, cfg)
	if err != nil {
		return nil, nil, err
	}
	defer client.Close()

	if len(columns) == 0 {
		schema, err := client.DescribeTable(ctx, table)
		if err != nil {
			return nil, nil, err
		}
		for _, c := range schema {
			columns = append(columns, c.Name)
		}
	}

	pager, err := NewStorePager(ctx, client, table, columns, maxRows)
	if err != nil {
		return nil, nil, err
	}
	defer pager.Close()

	rows, err := firstBatch(ctx, pager)
	return columns, rows, err
}

// PreviewFile returns up to maxRows rows of the projected file columns.
// An empty projection selects every column.
func (s *Service) PreviewFile(ctx context.Context, path, delimiter string, columns []string, maxRows int) ([]string, Batch, error) {
	maxRows = s.previewLimit(maxRows)
	if delimiter == "" {
		delimiter = s.cfg.DefaultDelimiter
	}

	if len(columns) == 0 {
		schema, err := s.inspector.Schema(ctx, path, delimiter)
		if err != nil {
			return nil, nil, err
		}
		for _, c := range schema {
			columns = append(columns, c.Name)
		}
	}

	it, err := s.files.StreamBatches(ctx, path, delimiter, columns, maxRows)
	if err != nil {
		return nil, nil, err
	}
	defer it.Close()

	rows, err := firstBatch(ctx, it)
	return columns, rows, err
}

func (s *Service) previewLimit(n int) int {
	if n <= 0 {
		return s.cfg.PreviewRows
	}
	return n
}

func firstBatch(ctx context.Context, it BatchIterator) (Batch, error) {
	rows, err := it.Next(ctx)
	if errors.Is(err, io.EOF) {
		return Batch{}, nil
	}
	return rows, err
}

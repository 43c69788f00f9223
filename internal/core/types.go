package core

import (
	"context"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"
)

// Row is one record aligned to a column projection. A nil element is null.
type Row []any

// Batch is a group of rows processed as one unit between source and sink.
type Batch []Row

// Direction names which side of a transfer is the source.
type Direction string

const (
	// DirectionFileToStore streams a delimited file into a store table.
	DirectionFileToStore Direction = "file_to_store"
	// DirectionStoreToFile pages a store table out to a delimited file.
	DirectionStoreToFile Direction = "store_to_file"
)

// ParseDirection accepts the canonical names as well as the source type
// names used by the ingest form ("FlatFile" / "ClickHouse").
func ParseDirection(s string) (Direction, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "file_to_store", "flatfile", "file":
		return DirectionFileToStore, nil
	case "store_to_file", "clickhouse", "store":
		return DirectionStoreToFile, nil
	}
	return "", fmt.Errorf("%w: unknown direction %q", ErrInvalidRequest, s)
}

// ConnectionConfig describes how to reach a tabular store.
type ConnectionConfig struct {
	Driver   string `json:"driver,omitempty"`
	URL      string `json:"url,omitempty"`
	Host     string `json:"host,omitempty"`
	Port     int    `json:"port,omitempty"`
	Database string `json:"database,omitempty"`
	User     string `json:"user,omitempty"`
	Password string `json:"password,omitempty"`
	JWTToken string `json:"jwtToken,omitempty"`
	SSL      bool   `json:"ssl,omitempty"`
}

// IsZero reports whether no connection settings were supplied.
func (c ConnectionConfig) IsZero() bool {
	return c.URL == "" && c.Host == "" && c.Database == ""
}

// TransferRequest is everything needed to start one transfer.
type TransferRequest struct {
	Direction  Direction
	Connection ConnectionConfig
	Table      string
	FilePath   string
	Delimiter  string
	Columns    []string
}

// Validate checks the request shape before an operation is created.
func (r TransferRequest) Validate() error {
	var problems []string

	switch r.Direction {
	case DirectionFileToStore, DirectionStoreToFile:
	default:
		problems = append(problems, fmt.Sprintf("unknown direction %q", r.Direction))
	}
	if strings.TrimSpace(r.Table) == "" {
		problems = append(problems, "table name is required")
	}
	if strings.TrimSpace(r.FilePath) == "" {
		problems = append(problems, "file path is required")
	}
	if len(r.Columns) == 0 {
		problems = append(problems, "at least one column must be selected")
	}
	for i, c := range r.Columns {
		if strings.TrimSpace(c) == "" {
			problems = append(problems, fmt.Sprintf("column %d is blank", i+1))
		}
	}
	if _, err := ParseDelimiter(r.Delimiter); err != nil {
		problems = append(problems, err.Error())
	}

	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", ErrInvalidRequest, strings.Join(problems, "; "))
	}
	return nil
}

// Source returns a display name for the transfer's origin.
func (r TransferRequest) Source() string {
	if r.Direction == DirectionStoreToFile {
		return r.Table
	}
	return r.FilePath
}

// Target returns a display name for the transfer's destination.
func (r TransferRequest) Target() string {
	if r.Direction == DirectionStoreToFile {
		return r.FilePath
	}
	return r.Table
}

// ParseDelimiter resolves a delimiter string to the rune used for parsing.
// Empty means comma; the literal sequence \t means tab; otherwise the
// first rune is used.
func ParseDelimiter(s string) (rune, error) {
	switch s {
	case "":
		return ',', nil
	case `\t`, "\t", "tab":
		return '\t', nil
	}
	r, _ := utf8.DecodeRuneInString(s)
	if r == utf8.RuneError || r == '"' || r == '\r' || r == '\n' {
		return 0, fmt.Errorf("invalid delimiter %q", s)
	}
	return r, nil
}

// ColumnInfo describes one column of a store table or file.
type ColumnInfo struct {
	Name string `json:"name"`
	Type string `json:"type"`
}

// StoreClient is the per-transfer view of a tabular store. A transfer owns
// its client exclusively and closes it when done.
type StoreClient interface {
	CountRows(ctx context.Context, table string) (int64, error)
	QueryRows(ctx context.Context, table string, columns []string, limit, offset int) (Batch, error)
	InsertRows(ctx context.Context, table string, columns []string, rows Batch) (int, error)
	DescribeTable(ctx context.Context, table string) ([]ColumnInfo, error)
	Close() error
}

// CatalogClient adds the schema-level calls used outside of transfers.
type CatalogClient interface {
	StoreClient
	Ping(ctx context.Context) error
	ListTables(ctx context.Context) ([]string, error)
	CreateTable(ctx context.Context, table string, columns []string) error
}

// StoreConnector opens exclusive store clients. Every call returns a new
// client holding its own connection.
type StoreConnector interface {
	Open(ctx context.Context, cfg ConnectionConfig) (StoreClient, error)
	OpenCatalog(ctx context.Context, cfg ConnectionConfig) (CatalogClient, error)
}

// FileReader reads delimited files.
type FileReader interface {
	CountLines(ctx context.Context, path string) (int64, error)
	StreamBatches(ctx context.Context, path, delimiter string, columns []string, batchSize int) (BatchIterator, error)
}

// FileInspector reads a file's header and infers column types from the
// first data record.
type FileInspector interface {
	Schema(ctx context.Context, path, delimiter string) ([]ColumnInfo, error)
}

// FileWriter writes delimited files.
type FileWriter interface {
	Write(ctx context.Context, path string, headers []string, rows Batch, delimiter string) (int, error)
	OpenAppender(ctx context.Context, path string, headers []string, delimiter string) (BatchSink, error)
}

// BatchIterator yields batches in source order. Next returns io.EOF after
// the last batch. Iterators are not restartable.
type BatchIterator interface {
	Next(ctx context.Context) (Batch, error)
	Close() error
}

// BatchSink persists one batch at a time and reports rows written.
type BatchSink interface {
	WriteBatch(ctx context.Context, batch Batch) (int, error)
	Close() error
}

// Finalizer is implemented by sinks that defer their write until the
// stream is exhausted.
type Finalizer interface {
	Finalize(ctx context.Context) (int, error)
}

// Clock abstracts time for operation bookkeeping.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// SystemClock is the wall clock.
var SystemClock Clock = systemClock{}

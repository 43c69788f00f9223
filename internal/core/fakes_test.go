package core

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"
)

// fakeClock is a manually advanced Clock.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

// fakeTable is an in-memory store table.
type fakeTable struct {
	columns []string
	rows    Batch
}

// fakeStore implements StoreConnector and CatalogClient over in-memory tables.
type fakeStore struct {
	mu     sync.Mutex
	tables map[string]*fakeTable

	queries    int
	opens      int
	closes     int
	countErr   error
	openErr    error
	failInsert int   // fail the Nth InsertRows call (1-based); 0 disables
	insertErr  error // error returned by the failing call
	inserts    int
	onInsert   func(call int)
}

func newFakeStore() *fakeStore {
	return &fakeStore{tables: make(map[string]*fakeTable)}
}

func (s *fakeStore) addTable(name string, columns []string, rows Batch) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tables[name] = &fakeTable{columns: columns, rows: rows}
}

func (s *fakeStore) table(name string) *fakeTable {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tables[name]
}

func (s *fakeStore) Open(ctx context.Context, _ ConnectionConfig) (StoreClient, error) {
	return s.OpenCatalog(ctx, ConnectionConfig{})
}

func (s *fakeStore) OpenCatalog(_ context.Context, _ ConnectionConfig) (CatalogClient, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.openErr != nil {
		return nil, s.openErr
	}
	s.opens++
	return s, nil
}

func (s *fakeStore) Ping(context.Context) error { return nil }

func (s *fakeStore) ListTables(context.Context) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var names []string
	for n := range s.tables {
		names = append(names, n)
	}
	return names, nil
}

func (s *fakeStore) CreateTable(_ context.Context, table string, columns []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.tables[table]; !ok {
		s.tables[table] = &fakeTable{columns: columns}
	}
	return nil
}

func (s *fakeStore) CountRows(_ context.Context, table string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.countErr != nil {
		return 0, s.countErr
	}
	t, ok := s.tables[table]
	if !ok {
		return 0, &QueryError{Err: fmt.Errorf("table %s does not exist", table)}
	}
	return int64(len(t.rows)), nil
}

func (s *fakeStore) DescribeTable(_ context.Context, table string) ([]ColumnInfo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tables[table]
	if !ok {
		return nil, &QueryError{Err: fmt.Errorf("table %s does not exist", table)}
	}
	cols := make([]ColumnInfo, len(t.columns))
	for i, c := range t.columns {
		cols[i] = ColumnInfo{Name: c, Type: "TEXT"}
	}
	return cols, nil
}

func (s *fakeStore) QueryRows(_ context.Context, table string, columns []string, limit, offset int) (Batch, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.queries++

	t, ok := s.tables[table]
	if !ok {
		return nil, &QueryError{Err: fmt.Errorf("table %s does not exist", table)}
	}
	idx := indexes(t.columns, columns)

	var out Batch
	for i := offset; i < len(t.rows) && len(out) < limit; i++ {
		row := make(Row, len(idx))
		for j, k := range idx {
			row[j] = t.rows[i][k]
		}
		out = append(out, row)
	}
	return out, nil
}

func (s *fakeStore) InsertRows(_ context.Context, table string, columns []string, rows Batch) (int, error) {
	s.mu.Lock()
	s.inserts++
	call := s.inserts
	hook := s.onInsert
	failing := s.failInsert != 0 && call == s.failInsert
	s.mu.Unlock()

	if hook != nil {
		hook(call)
	}
	if failing {
		return 0, &InsertError{Table: table, Row: 0, Err: s.insertErr}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tables[table]
	if !ok {
		return 0, &InsertError{Table: table, Row: -1, Err: errors.New("relation does not exist")}
	}
	idx := indexes(t.columns, columns)
	for _, r := range rows {
		full := make(Row, len(t.columns))
		for j, k := range idx {
			full[k] = r[j]
		}
		t.rows = append(t.rows, full)
	}
	return len(rows), nil
}

func (s *fakeStore) Close() error {
	s.mu.Lock()
	s.closes++
	s.mu.Unlock()
	return nil
}

func indexes(all, want []string) []int {
	idx := make([]int, len(want))
	for i, w := range want {
		idx[i] = -1
		for j, a := range all {
			if a == w {
				idx[i] = j
			}
		}
	}
	return idx
}

// fakeFiles keeps parsed files in memory: files[path][0] is the header.
type fakeFiles struct {
	mu       sync.Mutex
	files    map[string][][]string
	countErr error
	writeErr error
	writes   int
}

func newFakeFiles() *fakeFiles {
	return &fakeFiles{files: make(map[string][][]string)}
}

func (f *fakeFiles) put(path string, lines ...[]string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.files[path] = lines
}

func (f *fakeFiles) get(path string) [][]string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.files[path]
}

func (f *fakeFiles) CountLines(_ context.Context, path string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.countErr != nil {
		return 0, f.countErr
	}
	lines, ok := f.files[path]
	if !ok {
		return 0, &IOError{Op: "open", Path: path, Err: errors.New("no such file")}
	}
	return int64(len(lines)), nil
}

func (f *fakeFiles) Schema(_ context.Context, path, _ string) ([]ColumnInfo, error) {
	lines := f.get(path)
	if lines == nil {
		return nil, &IOError{Op: "open", Path: path, Err: errors.New("no such file")}
	}
	cols := make([]ColumnInfo, len(lines[0]))
	for i, h := range lines[0] {
		cols[i] = ColumnInfo{Name: h, Type: "String"}
	}
	return cols, nil
}

func (f *fakeFiles) StreamBatches(_ context.Context, path, _ string, columns []string, batchSize int) (BatchIterator, error) {
	lines := f.get(path)
	if lines == nil {
		return nil, &IOError{Op: "open", Path: path, Err: errors.New("no such file")}
	}
	if err := CheckColumns(columns, lines[0], "file"); err != nil {
		return nil, err
	}
	idx := indexes(lines[0], columns)

	var rows Batch
	for _, l := range lines[1:] {
		row := make(Row, len(idx))
		for j, k := range idx {
			if l[k] != "" {
				row[j] = l[k]
			}
		}
		rows = append(rows, row)
	}
	return &sliceIterator{rows: rows, size: batchSize}, nil
}

func (f *fakeFiles) Write(_ context.Context, path string, headers []string, rows Batch, _ string) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.writes++
	if f.writeErr != nil {
		return 0, &IOError{Op: "write", Path: path, Err: f.writeErr}
	}
	lines := [][]string{append([]string(nil), headers...)}
	for _, r := range rows {
		lines = append(lines, toStrings(r))
	}
	f.files[path] = lines
	return len(rows), nil
}

func (f *fakeFiles) OpenAppender(_ context.Context, path string, headers []string, _ string) (BatchSink, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.files[path] = [][]string{append([]string(nil), headers...)}
	return &fakeAppender{files: f, path: path}, nil
}

type fakeAppender struct {
	files *fakeFiles
	path  string
}

func (a *fakeAppender) WriteBatch(_ context.Context, b Batch) (int, error) {
	a.files.mu.Lock()
	defer a.files.mu.Unlock()
	for _, r := range b {
		a.files.files[a.path] = append(a.files.files[a.path], toStrings(r))
	}
	return len(b), nil
}

func (a *fakeAppender) Close() error { return nil }

func toStrings(r Row) []string {
	out := make([]string, len(r))
	for i, v := range r {
		if v != nil {
			out[i] = fmt.Sprint(v)
		}
	}
	return out
}

// sliceIterator yields fixed-size batches from rows.
type sliceIterator struct {
	rows   Batch
	size   int
	pos    int
	failAt int // fail the Nth call to Next (1-based); 0 disables
	calls  int
}

func (it *sliceIterator) Next(context.Context) (Batch, error) {
	it.calls++
	if it.failAt != 0 && it.calls == it.failAt {
		return nil, &IOError{Op: "read", Path: "fake", Err: errors.New("disk went away")}
	}
	if it.pos >= len(it.rows) {
		return nil, io.EOF
	}
	end := min(it.pos+it.size, len(it.rows))
	b := it.rows[it.pos:end]
	it.pos = end
	return b, nil
}

func (it *sliceIterator) Close() error { return nil }

// newTestService wires a Service over the fakes with a synchronous-enough pool.
func newTestService(store *fakeStore, files *fakeFiles, clock Clock, cfg ServiceConfig) *Service {
	return NewService(cfg, Dependencies{
		Connector: store,
		Files:     files,
		Inspector: files,
		Writer:    files,
		Registry:  NewRegistry(time.Hour, clock),
		Pool:      NewWorkerPool(2, 10, time.Second),
	}, WithClock(clock))
}

package flatfile

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"path"
	"strconv"
	"time"

	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/util"
	"github.com/shopspring/decimal"

	"github.com/JonMunkholm/ferry/internal/core"
)

// ErrFileTooLarge is returned by Save when the input exceeds the limit.
var ErrFileTooLarge = errors.New("file too large")

// Writer writes delimited files with a header line.
type Writer struct {
	fs billy.Filesystem
}

// NewWriter creates a Writer over fs.
func NewWriter(fs billy.Filesystem) *Writer {
	return &Writer{fs: fs}
}

// Write writes headers and rows to name in one pass. The file is written
// under a temporary name in the same directory and renamed into place, so
// readers never see a partial file.
func (w *Writer) Write(ctx context.Context, name string, headers []string, rows core.Batch, delimiter string) (int, error) {
	name, err := cleanPath(name)
	if err != nil {
		return 0, err
	}
	comma, err := core.ParseDelimiter(delimiter)
	if err != nil {
		return 0, fmt.Errorf("%w: %w", core.ErrInvalidRequest, err)
	}

	dir := path.Dir(name)
	if err := w.mkdir(dir); err != nil {
		return 0, err
	}

	tmp, err := util.TempFile(w.fs, dir, ".ferry-")
	if err != nil {
		return 0, &core.IOError{Op: "create", Path: name, Err: err}
	}
	tmpName := path.Join(dir, path.Base(tmp.Name()))

	a := newAppender(tmp, name, headers, comma)
	n, err := a.write(ctx, headers, rows)
	if cerr := a.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		_ = w.fs.Remove(tmpName)
		return 0, err
	}

	if err := w.fs.Rename(tmpName, name); err != nil {
		_ = w.fs.Remove(tmpName)
		return 0, &core.IOError{Op: "rename", Path: name, Err: err}
	}
	return n, nil
}

// OpenAppender creates name, truncating any existing file, and writes the
// header. Each WriteBatch appends and flushes.
func (w *Writer) OpenAppender(_ context.Context, name string, headers []string, delimiter string) (core.BatchSink, error) {
	name, err := cleanPath(name)
	if err != nil {
		return nil, err
	}
	comma, err := core.ParseDelimiter(delimiter)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", core.ErrInvalidRequest, err)
	}

	if err := w.mkdir(path.Dir(name)); err != nil {
		return nil, err
	}

	f, err := w.fs.Create(name)
	if err != nil {
		return nil, &core.IOError{Op: "create", Path: name, Err: err}
	}

	a := newAppender(f, name, headers, comma)
	if err := a.writeRecord(headers); err != nil {
		a.Close()
		return nil, err
	}
	if err := a.flush(); err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

// Save copies r to name, failing with ErrFileTooLarge once more than
// maxBytes have been read. A non-positive limit disables the check.
func (w *Writer) Save(name string, r io.Reader, maxBytes int64) (int64, error) {
	name, err := cleanPath(name)
	if err != nil {
		return 0, err
	}

	dir := path.Dir(name)
	if err := w.mkdir(dir); err != nil {
		return 0, err
	}

	f, err := w.fs.Create(name)
	if err != nil {
		return 0, &core.IOError{Op: "create", Path: name, Err: err}
	}

	src := r
	if maxBytes > 0 {
		src = io.LimitReader(r, maxBytes+1)
	}
	n, err := io.Copy(f, src)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err == nil && maxBytes > 0 && n > maxBytes {
		err = fmt.Errorf("%w: limit is %d bytes", ErrFileTooLarge, maxBytes)
	}
	if err != nil {
		_ = w.fs.Remove(name)
		return 0, &core.IOError{Op: "write", Path: name, Err: err}
	}
	return n, nil
}

func (w *Writer) mkdir(dir string) error {
	if dir == "." {
		return nil
	}
	if err := w.fs.MkdirAll(dir, 0o755); err != nil {
		return &core.IOError{Op: "mkdir", Path: dir, Err: err}
	}
	return nil
}

// appender writes records through a csv.Writer to an open file.
type appender struct {
	file   billy.File
	path   string
	csv    *csv.Writer
	record []string
	closed bool
}

func newAppender(f billy.File, name string, headers []string, comma rune) *appender {
	cw := csv.NewWriter(f)
	cw.Comma = comma
	return &appender{
		file:   f,
		path:   name,
		csv:    cw,
		record: make([]string, len(headers)),
	}
}

func (a *appender) write(ctx context.Context, headers []string, rows core.Batch) (int, error) {
	if err := a.writeRecord(headers); err != nil {
		return 0, err
	}
	return a.WriteBatch(ctx, rows)
}

// WriteBatch appends rows and flushes them to the file.
func (a *appender) WriteBatch(ctx context.Context, rows core.Batch) (int, error) {
	if a.closed {
		return 0, &core.IOError{Op: "write", Path: a.path, Err: errors.New("appender is closed")}
	}

	for i, row := range rows {
		if i%1000 == 0 {
			if err := ctx.Err(); err != nil {
				return 0, err
			}
		}
		for j := range a.record {
			a.record[j] = ""
			if j < len(row) {
				a.record[j] = FormatValue(row[j])
			}
		}
		if err := a.writeRecord(a.record); err != nil {
			return 0, err
		}
	}

	if err := a.flush(); err != nil {
		return 0, err
	}
	return len(rows), nil
}

func (a *appender) writeRecord(rec []string) error {
	// csv.Writer renders a lone empty field as a blank line, which
	// csv.Reader skips. Quote it so the row survives a read-back.
	if len(rec) == 1 && rec[0] == "" {
		if err := a.flush(); err != nil {
			return err
		}
		if _, err := io.WriteString(a.file, emptyRecord(a.csv.UseCRLF)); err != nil {
			return &core.IOError{Op: "write", Path: a.path, Err: err}
		}
		return nil
	}
	if err := a.csv.Write(rec); err != nil {
		return &core.IOError{Op: "write", Path: a.path, Err: err}
	}
	return nil
}

func (a *appender) flush() error {
	a.csv.Flush()
	if err := a.csv.Error(); err != nil {
		return &core.IOError{Op: "write", Path: a.path, Err: err}
	}
	return nil
}

func emptyRecord(crlf bool) string {
	if crlf {
		return "\"\"\r\n"
	}
	return "\"\"\n"
}

// Close flushes buffered records and closes the file. It is safe to call
// more than once.
func (a *appender) Close() error {
	if a.closed {
		return nil
	}
	a.closed = true

	ferr := a.flush()
	if err := a.file.Close(); err != nil && ferr == nil {
		return &core.IOError{Op: "close", Path: a.path, Err: err}
	}
	return ferr
}

// FormatValue renders a store value as a delimited-file field. Nil becomes
// the empty string.
func FormatValue(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case []byte:
		return string(x)
	case bool:
		return strconv.FormatBool(x)
	case int:
		return strconv.Itoa(x)
	case int8:
		return strconv.FormatInt(int64(x), 10)
	case int16:
		return strconv.FormatInt(int64(x), 10)
	case int32:
		return strconv.FormatInt(int64(x), 10)
	case int64:
		return strconv.FormatInt(x, 10)
	case uint8:
		return strconv.FormatUint(uint64(x), 10)
	case uint16:
		return strconv.FormatUint(uint64(x), 10)
	case uint32:
		return strconv.FormatUint(uint64(x), 10)
	case uint64:
		return strconv.FormatUint(x, 10)
	case float32:
		return strconv.FormatFloat(float64(x), 'f', -1, 32)
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case decimal.Decimal:
		return x.String()
	case time.Time:
		if x.Hour() == 0 && x.Minute() == 0 && x.Second() == 0 && x.Nanosecond() == 0 {
			return x.Format(time.DateOnly)
		}
		return x.Format("2006-01-02 15:04:05.999999999")
	case fmt.Stringer:
		return x.String()
	}
	return fmt.Sprint(v)
}

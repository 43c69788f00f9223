// Package flatfile reads and writes delimited files on a billy filesystem.
//
// Paths are relative to the filesystem root. The server mounts the
// configured files directory with osfs; tests use memfs.
package flatfile

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"path"
	"slices"
	"strconv"
	"strings"

	"github.com/go-git/go-billy/v5"

	"github.com/JonMunkholm/ferry/internal/core"
)

// Inferred column types reported by Schema.
const (
	TypeInt32   = "Int32"
	TypeFloat64 = "Float64"
	TypeBoolean = "Boolean"
	TypeString  = "String"
)

var (
	// ErrEmptyFile is returned when a file has no header line.
	ErrEmptyFile = errors.New("empty file: no header line")

	// ErrInvalidPath is returned for paths that leave the filesystem root.
	ErrInvalidPath = fmt.Errorf("%w: invalid file path", core.ErrInvalidRequest)
)

// Reader reads delimited files with a header line.
type Reader struct {
	fs billy.Filesystem
}

// NewReader creates a Reader over fs.
func NewReader(fs billy.Filesystem) *Reader {
	return &Reader{fs: fs}
}

// CountLines returns the number of lines in the file, header included.
// Newlines inside quoted fields are counted too, so the result is only an
// estimate of the record count.
func (r *Reader) CountLines(ctx context.Context, name string) (int64, error) {
	name, err := cleanPath(name)
	if err != nil {
		return 0, err
	}

	f, err := r.fs.Open(name)
	if err != nil {
		return 0, &core.IOError{Op: "open", Path: name, Err: err}
	}
	defer f.Close()

	var (
		lines int64
		last  byte
		seen  bool
		buf   = make([]byte, 64*1024)
	)
	for {
		if err := ctx.Err(); err != nil {
			return 0, err
		}

		n, err := f.Read(buf)
		if n > 0 {
			lines += int64(bytes.Count(buf[:n], []byte{'\n'}))
			last = buf[n-1]
			seen = true
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			return 0, &core.IOError{Op: "read", Path: name, Err: err}
		}
	}

	if seen && last != '\n' {
		lines++
	}
	return lines, nil
}

// StreamBatches validates columns against the header and returns an
// iterator over the projected records. Empty fields become nil.
func (r *Reader) StreamBatches(ctx context.Context, name, delimiter string, columns []string, batchSize int) (core.BatchIterator, error) {
	if batchSize <= 0 {
		return nil, fmt.Errorf("%w: batch size must be positive", core.ErrInvalidRequest)
	}

	f, cr, header, err := r.open(name, delimiter)
	if err != nil {
		return nil, err
	}

	if err := core.CheckColumns(columns, header, "file"); err != nil {
		f.Close()
		return nil, err
	}

	idx := make([]int, len(columns))
	for i, c := range columns {
		idx[i] = slices.Index(header, c)
	}

	return &fileIterator{
		path:  name,
		file:  f,
		csv:   cr,
		index: idx,
		size:  batchSize,
	}, nil
}

// Schema returns the header with a type inferred from the first record.
// Columns of a header-only file are reported as String.
func (r *Reader) Schema(ctx context.Context, name, delimiter string) ([]core.ColumnInfo, error) {
	f, cr, header, err := r.open(name, delimiter)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	first, err := cr.Read()
	if err != nil && err != io.EOF {
		return nil, &core.IOError{Op: "parse", Path: name, Err: err}
	}

	cols := make([]core.ColumnInfo, len(header))
	for i, h := range header {
		typ := TypeString
		if i < len(first) {
			typ = inferType(first[i])
		}
		cols[i] = core.ColumnInfo{Name: h, Type: typ}
	}
	return cols, nil
}

// open returns the file, a csv reader positioned after the header and the
// trimmed header names.
func (r *Reader) open(name, delimiter string) (billy.File, *csv.Reader, []string, error) {
	name, err := cleanPath(name)
	if err != nil {
		return nil, nil, nil, err
	}

	comma, err := core.ParseDelimiter(delimiter)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("%w: %w", core.ErrInvalidRequest, err)
	}

	f, err := r.fs.Open(name)
	if err != nil {
		return nil, nil, nil, &core.IOError{Op: "open", Path: name, Err: err}
	}

	cr := csv.NewReader(decode(f))
	cr.Comma = comma
	cr.ReuseRecord = true

	header, err := cr.Read()
	if err == io.EOF {
		f.Close()
		return nil, nil, nil, &core.IOError{Op: "read", Path: name, Err: ErrEmptyFile}
	}
	if err != nil {
		f.Close()
		return nil, nil, nil, &core.IOError{Op: "parse", Path: name, Err: err}
	}

	header = slices.Clone(header)
	for i := range header {
		header[i] = strings.TrimSpace(header[i])
	}
	return f, cr, header, nil
}

// fileIterator yields projected records. A parse error ends the stream
// without emitting the partial batch.
type fileIterator struct {
	path  string
	file  billy.File
	csv   *csv.Reader
	index []int
	size  int
	done  bool
}

func (it *fileIterator) Next(ctx context.Context) (core.Batch, error) {
	if it.done {
		return nil, io.EOF
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	batch := make(core.Batch, 0, it.size)
	for len(batch) < it.size {
		rec, err := it.csv.Read()
		if err == io.EOF {
			it.done = true
			break
		}
		if err != nil {
			it.done = true
			return nil, &core.IOError{Op: "parse", Path: it.path, Err: err}
		}

		row := make(core.Row, len(it.index))
		for j, k := range it.index {
			if v := rec[k]; v != "" {
				row[j] = v
			}
		}
		batch = append(batch, row)
	}

	if len(batch) == 0 {
		return nil, io.EOF
	}
	return batch, nil
}

func (it *fileIterator) Close() error {
	if it.file == nil {
		return nil
	}
	err := it.file.Close()
	it.file = nil
	return err
}

func inferType(v string) string {
	v = strings.TrimSpace(v)
	if v == "" {
		return TypeString
	}
	if _, err := strconv.ParseInt(v, 10, 32); err == nil {
		return TypeInt32
	}
	if _, err := strconv.ParseFloat(v, 64); err == nil {
		return TypeFloat64
	}
	if strings.EqualFold(v, "true") || strings.EqualFold(v, "false") {
		return TypeBoolean
	}
	return TypeString
}

// cleanPath makes name relative to the filesystem root and rejects paths
// that climb above it.
func cleanPath(name string) (string, error) {
	name = strings.TrimSpace(strings.ReplaceAll(name, `\`, "/"))
	if name == "" {
		return "", ErrInvalidPath
	}

	clean := path.Clean("/" + name)[1:]
	if clean == "" {
		return "", ErrInvalidPath
	}
	for _, seg := range strings.Split(name, "/") {
		if seg == ".." {
			return "", ErrInvalidPath
		}
	}
	return clean, nil
}

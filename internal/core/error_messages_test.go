package core

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"testing"
)

func TestMapError(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		wantCode string
	}{
		{"nil error returns empty", nil, ""},
		{"column not found", &ColumnNotFoundError{Missing: []string{"x"}, Available: []string{"a"}}, "VAL001"},
		{"wrapped column not found", &SourceReadError{Source: "f.csv", Err: &ColumnNotFoundError{Missing: []string{"x"}}}, "VAL001"},
		{"invalid request", fmt.Errorf("%w: table name is required", ErrInvalidRequest), "VAL002"},
		{"too many transfers", ErrTooManyTransfers, "XFR001"},
		{"operation not found", ErrOperationNotFound, "XFR002"},
		{"cancelled", fmt.Errorf("%w: read from t: context canceled", ErrTransferCancelled), "XFR003"},
		{"file not found", &IOError{Op: "open", Path: "x.csv", Err: fs.ErrNotExist}, "FILE001"},
		{"duplicate key", errors.New("ERROR: duplicate key value violates unique constraint"), "DB001"},
		{"connection refused", errors.New("dial tcp 127.0.0.1:5432: connect: connection refused"), "DB003"},
		{"missing relation", errors.New(`relation "events" does not exist`), "DB006"},
		{"deadline", context.DeadlineExceeded, "DB007"},
		{"ragged csv", errors.New("record on line 3: wrong number of fields"), "FILE003"},
		{"rate limit", errors.New("rate limit exceeded"), "RATE001"},
		{"case insensitive matching", errors.New("DUPLICATE KEY value"), "DB001"},
		{"unknown error returns default", errors.New("some random internal error"), "ERR000"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := MapError(tt.err)
			if got.Code != tt.wantCode {
				t.Errorf("MapError(%v).Code = %q, want %q", tt.err, got.Code, tt.wantCode)
			}
		})
	}
}

func TestMapError_ColumnNotFoundNamesColumns(t *testing.T) {
	got := MapError(&ColumnNotFoundError{Missing: []string{"amount", "region"}})
	if !strings.Contains(got.Message, "amount, region") {
		t.Errorf("Message = %q, want it to list missing columns", got.Message)
	}
}

func TestFormatUserError(t *testing.T) {
	got := FormatUserError(ErrTooManyTransfers)
	want := "System is busy processing other transfers (Code: XFR001). Please wait a moment and try again"
	if got != want {
		t.Errorf("FormatUserError() = %q, want %q", got, want)
	}
	if FormatUserError(nil) != "" {
		t.Error("FormatUserError(nil) should be empty")
	}
}

func TestIsUserFacing(t *testing.T) {
	if IsUserFacing(nil) {
		t.Error("nil should not be user facing")
	}
	if !IsUserFacing(ErrOperationNotFound) {
		t.Error("ErrOperationNotFound should be user facing")
	}
	if IsUserFacing(errors.New("opaque")) {
		t.Error("unmatched errors should not be user facing")
	}
}

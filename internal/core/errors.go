package core

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrOperationNotFound is returned for unknown or expired operation ids.
	ErrOperationNotFound = errors.New("operation not found")

	// ErrTooManyTransfers is returned when the transfer queue stays full for
	// longer than the configured wait. Clients should retry after a short delay.
	ErrTooManyTransfers = errors.New("too many transfers in progress, please try again later")

	// ErrInvalidRequest marks malformed transfer requests.
	ErrInvalidRequest = errors.New("invalid transfer request")

	// ErrTransferCancelled is the cause recorded when a caller cancels a transfer.
	ErrTransferCancelled = errors.New("transfer cancelled")

	// ErrServiceClosed is returned by Submit after shutdown has begun.
	ErrServiceClosed = errors.New("transfer service is shutting down")

	// ErrOperationFinished is returned when cancelling an operation that has
	// already reached a terminal state.
	ErrOperationFinished = errors.New("operation already finished")
)

// ColumnNotFoundError reports projection columns absent from a source schema.
type ColumnNotFoundError struct {
	Missing   []string
	Available []string
	Source    string // "file" or "table"
}

func (e *ColumnNotFoundError) Error() string {
	where := e.Source
	if where == "" {
		where = "source"
	}
	return fmt.Sprintf("column(s) not found in %s: %s. Available columns are: %s",
		where, strings.Join(e.Missing, ", "), strings.Join(e.Available, ", "))
}

// CheckColumns returns a *ColumnNotFoundError listing every requested
// column that is not in available, or nil. Matching is exact.
func CheckColumns(requested, available []string, source string) error {
	have := make(map[string]struct{}, len(available))
	for _, a := range available {
		have[a] = struct{}{}
	}

	var missing []string
	for _, r := range requested {
		if _, ok := have[r]; !ok {
			missing = append(missing, r)
		}
	}
	if len(missing) == 0 {
		return nil
	}

	return &ColumnNotFoundError{
		Missing:   missing,
		Available: append([]string(nil), available...),
		Source:    source,
	}
}

// SourceReadError wraps a failure while pulling a batch from the source.
type SourceReadError struct {
	Source string
	Err    error
}

func (e *SourceReadError) Error() string {
	return fmt.Sprintf("read from %s: %v", e.Source, e.Err)
}

func (e *SourceReadError) Unwrap() error { return e.Err }

// SinkWriteError wraps a failure while writing a batch to the sink.
type SinkWriteError struct {
	Target string
	Err    error
}

func (e *SinkWriteError) Error() string {
	return fmt.Sprintf("write to %s: %v", e.Target, e.Err)
}

func (e *SinkWriteError) Unwrap() error { return e.Err }

// QueryError is returned by store clients when a read query fails.
type QueryError struct {
	Query string
	Err   error
}

func (e *QueryError) Error() string {
	return fmt.Sprintf("query failed: %v", e.Err)
}

func (e *QueryError) Unwrap() error { return e.Err }

// InsertError is returned by store clients when a batch insert fails.
// Row is the zero-based index of the failing row within the batch, or -1.
type InsertError struct {
	Table string
	Row   int
	Err   error
}

func (e *InsertError) Error() string {
	if e.Row >= 0 {
		return fmt.Sprintf("insert into %s failed at batch row %d: %v", e.Table, e.Row+1, e.Err)
	}
	return fmt.Sprintf("insert into %s failed: %v", e.Table, e.Err)
}

func (e *InsertError) Unwrap() error { return e.Err }

// IOError is returned by the file side for filesystem and parse failures.
type IOError struct {
	Op   string
	Path string
	Err  error
}

func (e *IOError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.Path, e.Err)
}

func (e *IOError) Unwrap() error { return e.Err }

// rootCause follows the Unwrap chain to its end.
func rootCause(err error) error {
	for {
		next := errors.Unwrap(err)
		if next == nil {
			return err
		}
		err = next
	}
}

// describeFailure builds the operation message for a failed transfer,
// appending the root cause when it is not already part of the message.
func describeFailure(prefix string, err error) string {
	msg := err.Error()
	if cause := rootCause(err); cause != nil && cause != err {
		if c := cause.Error(); !strings.Contains(msg, c) {
			msg += " (cause: " + c + ")"
		}
	}
	return prefix + ": " + msg
}

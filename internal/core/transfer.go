package core

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/JonMunkholm/ferry/internal/observability"
)

// run drives one transfer to a terminal state. It always finishes op.
func (s *Service) run(ctx context.Context, op *Operation, req TransferRequest, logger *slog.Logger) {
	ctx, span := s.tracer.StartTransfer(ctx, op.ID(), string(req.Direction), req.Source(), req.Target())
	s.metrics.TransferStarted(ctx, string(req.Direction))
	logger.Info("transfer started")

	var err error
	switch req.Direction {
	case DirectionFileToStore:
		err = s.fileToStore(ctx, op, req, logger)
	case DirectionStoreToFile:
		err = s.storeToFile(ctx, op, req, logger)
	default:
		err = fmt.Errorf("%w: unknown direction %q", ErrInvalidRequest, req.Direction)
	}

	// Surface why the context ended rather than a bare "context canceled".
	if err != nil && ctx.Err() != nil {
		if cause := context.Cause(ctx); cause != nil && !errors.Is(err, cause) {
			err = fmt.Errorf("%w: %w", cause, err)
		}
	}

	rec := s.finish(ctx, op, req, err, logger)
	observability.EndTransfer(span, rec.RecordsProcessed, err)
}

// finish records the outcome on op, writes it back to the registry and
// emits the final log line and metrics.
func (s *Service) finish(ctx context.Context, op *Operation, req TransferRequest, err error, logger *slog.Logger) OperationRecord {
	processed := op.Snapshot().RecordsProcessed

	status := string(StatusCompleted)
	if err == nil {
		op.Finish(true, successMessage(req, processed))
	} else {
		status = string(StatusError)
		op.Finish(false, describeFailure(failurePrefix(req.Direction), err))
		s.metrics.RecordError(ctx, string(req.Direction), errorType(err))
	}
	s.registry.Put(op)

	rec := op.Snapshot()
	s.metrics.TransferFinished(ctx, string(req.Direction), status, msDuration(rec.ExecutionTimeMs))

	if err != nil {
		logger.Error("transfer failed",
			"error", err,
			"records_processed", rec.RecordsProcessed,
			"duration_ms", rec.ExecutionTimeMs,
		)
	} else {
		logger.Info("transfer completed",
			"records_processed", rec.RecordsProcessed,
			"records_per_second", rec.RecordsPerSecond,
			"duration_ms", rec.ExecutionTimeMs,
		)
	}
	return rec
}

// fileToStore streams a delimited file into a store table, inserting each
// batch as soon as it is read.
func (s *Service) fileToStore(ctx context.Context, op *Operation, req TransferRequest, logger *slog.Logger) error {
	s.estimate(ctx, op, logger, func(ctx context.Context) (int64, error) {
		lines, err := s.files.CountLines(ctx, req.FilePath)
		if err != nil {
			return 0, err
		}
		return max(lines-1, 0), nil
	})

	client, err := s.connector.Open(ctx, req.Connection)
	if err != nil {
		return &SinkWriteError{Target: req.Table, Err: fmt.Errorf("connect to store: %w", err)}
	}
	defer client.Close()

	it, err := s.files.StreamBatches(ctx, req.FilePath, req.Delimiter, req.Columns, s.cfg.ImportBatchSize)
	if err != nil {
		return sourceError(req.FilePath, err)
	}

	sink := NewStoreSink(client, req.Table, req.Columns)
	defer sink.Close()

	op.SetMessage(fmt.Sprintf("importing %s into %s", req.FilePath, req.Table))
	return s.pump(ctx, op, req, it, sink)
}

// storeToFile pages a store table out to a delimited file. By default the
// pages are accumulated and the file is written once at the end; with
// StreamExports each page is appended as it arrives.
func (s *Service) storeToFile(ctx context.Context, op *Operation, req TransferRequest, logger *slog.Logger) error {
	client, err := s.connector.Open(ctx, req.Connection)
	if err != nil {
		return &SourceReadError{Source: req.Table, Err: fmt.Errorf("connect to store: %w", err)}
	}
	defer client.Close()

	s.estimate(ctx, op, logger, func(ctx context.Context) (int64, error) {
		return client.CountRows(ctx, req.Table)
	})

	pager, err := NewStorePager(ctx, client, req.Table, req.Columns, s.cfg.ExportBatchSize)
	if err != nil {
		return sourceError(req.Table, err)
	}

	var sink BatchSink
	if s.cfg.StreamExports {
		sink, err = s.writer.OpenAppender(ctx, req.FilePath, req.Columns, req.Delimiter)
		if err != nil {
			pager.Close()
			return &SinkWriteError{Target: req.FilePath, Err: err}
		}
	} else {
		sink = NewAccumulatingFileSink(s.writer, req.FilePath, req.Columns, req.Delimiter)
	}
	defer sink.Close()

	op.SetMessage(fmt.Sprintf("exporting %s to %s", req.Table, req.FilePath))
	if err := s.pump(ctx, op, req, pager, sink); err != nil {
		return err
	}

	if f, ok := sink.(Finalizer); ok {
		op.SetMessage(fmt.Sprintf("writing %s", req.FilePath))
		if _, err := f.Finalize(ctx); err != nil {
			return &SinkWriteError{Target: req.FilePath, Err: err}
		}
	}
	return nil
}

// pump moves batches from it to sink until the source is exhausted, the
// context ends or either side fails. After every committed batch the
// operation is updated and written back to the registry.
func (s *Service) pump(ctx context.Context, op *Operation, req TransferRequest, it BatchIterator, sink BatchSink) error {
	defer it.Close()

	direction := string(req.Direction)
	for index := 0; ; index++ {
		if ctx.Err() != nil {
			return context.Cause(ctx)
		}

		batch, err := it.Next(ctx)
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return sourceError(req.Source(), err)
		}
		if len(batch) == 0 {
			continue
		}

		batchCtx, span := s.tracer.StartBatch(ctx, index, len(batch))
		started := s.clock.Now()

		n, err := sink.WriteBatch(batchCtx, batch)
		if err != nil {
			observability.RecordError(span, err)
			span.End()
			return &SinkWriteError{Target: req.Target(), Err: err}
		}
		span.End()

		op.RecordBatch(n)
		s.registry.Put(op)
		s.metrics.RecordBatch(ctx, direction, n, s.clock.Now().Sub(started))
	}
}

// estimate fills in the operation's total. Failures only cost the
// progress percentage, so they are logged and dropped.
func (s *Service) estimate(ctx context.Context, op *Operation, logger *slog.Logger, count func(context.Context) (int64, error)) {
	total, err := count(ctx)
	if err != nil {
		logger.Warn("could not estimate total records", "error", err)
		return
	}
	op.SetTotal(total)
	s.registry.Put(op)
}

// sourceError wraps err as a *SourceReadError unless it is a column
// validation failure or already wrapped.
func sourceError(source string, err error) error {
	var (
		cnf  *ColumnNotFoundError
		read *SourceReadError
	)
	if errors.As(err, &cnf) || errors.As(err, &read) {
		return err
	}
	return &SourceReadError{Source: source, Err: err}
}

func successMessage(req TransferRequest, processed int64) string {
	if req.Direction == DirectionStoreToFile {
		return fmt.Sprintf("successfully exported %d records from %s to %s", processed, req.Table, req.FilePath)
	}
	return fmt.Sprintf("successfully imported %d records from %s to %s", processed, req.FilePath, req.Table)
}

func msDuration(ms int64) time.Duration {
	return time.Duration(ms) * time.Millisecond
}

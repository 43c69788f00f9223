package core

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/JonMunkholm/ferry/internal/logging"
	"github.com/JonMunkholm/ferry/internal/observability"
)

// Batch sizes and limits used when ServiceConfig leaves them unset.
const (
	DefaultImportBatchSize = 1000
	DefaultExportBatchSize = 10000
	DefaultTransferTimeout = 2 * time.Hour
	DefaultPreviewRows     = 100
)

// ServiceConfig holds the tunables of the transfer engine.
type ServiceConfig struct {
	ImportBatchSize  int
	ExportBatchSize  int
	StreamExports    bool
	Timeout          time.Duration
	DefaultDelimiter string
	PreviewRows      int
}

func (c *ServiceConfig) applyDefaults() {
	if c.ImportBatchSize <= 0 {
		c.ImportBatchSize = DefaultImportBatchSize
	}
	if c.ExportBatchSize <= 0 {
		c.ExportBatchSize = DefaultExportBatchSize
	}
	if c.Timeout <= 0 {
		c.Timeout = DefaultTransferTimeout
	}
	if c.DefaultDelimiter == "" {
		c.DefaultDelimiter = ","
	}
	if c.PreviewRows <= 0 {
		c.PreviewRows = DefaultPreviewRows
	}
}

// Dependencies are the collaborators a Service drives.
type Dependencies struct {
	Connector StoreConnector
	Files     FileReader
	Inspector FileInspector
	Writer    FileWriter
	Registry  *Registry
	Pool      *WorkerPool
}

// Service starts transfers in the background and answers status polls.
type Service struct {
	cfg       ServiceConfig
	connector StoreConnector
	files     FileReader
	inspector FileInspector
	writer    FileWriter
	registry  *Registry
	pool      *WorkerPool
	clock     Clock
	tracer    *observability.Tracer
	metrics   *observability.Metrics

	mu      sync.Mutex
	cancels map[string]context.CancelCauseFunc
}

// Option configures a Service.
type Option func(*Service)

// WithClock overrides the clock used for operation bookkeeping.
func WithClock(c Clock) Option {
	return func(s *Service) {
		s.clock = c
	}
}

// WithTracer sets the tracer used for transfer spans.
func WithTracer(t *observability.Tracer) Option {
	return func(s *Service) {
		s.tracer = t
	}
}

// WithMetrics sets the transfer metric instruments.
func WithMetrics(m *observability.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

// NewService creates a Service. Registry and Pool are created with defaults
// when nil.
func NewService(cfg ServiceConfig, deps Dependencies, opts ...Option) *Service {
	cfg.applyDefaults()

	s := &Service{
		cfg:       cfg,
		connector: deps.Connector,
		files:     deps.Files,
		inspector: deps.Inspector,
		writer:    deps.Writer,
		registry:  deps.Registry,
		pool:      deps.Pool,
		clock:     SystemClock,
		tracer:    observability.NewNoopTracer(),
		metrics:   observability.NewNoopMetrics(),
		cancels:   make(map[string]context.CancelCauseFunc),
	}
	for _, opt := range opts {
		opt(s)
	}

	if s.registry == nil {
		s.registry = NewRegistry(DefaultRetention, s.clock)
	}
	if s.pool == nil {
		s.pool = NewWorkerPool(DefaultMaxConcurrentTransfers, DefaultQueueSize, DefaultMaxWaitTime)
	}
	return s
}

// Registry returns the operation registry shared with pollers.
func (s *Service) Registry() *Registry {
	return s.registry
}

// PoolStatus returns the worker pool state for monitoring.
func (s *Service) PoolStatus() PoolStatus {
	return s.pool.Status()
}

// StartTransfer validates req, registers a running operation and hands the
// transfer to the worker pool. The operation id is returned before any data
// moves.
//
// Invalid requests return an error and no operation. If the pool rejects
// the task, the operation is still registered, finished with the rejection
// as its message, and its id is returned alongside the error.
func (s *Service) StartTransfer(ctx context.Context, req TransferRequest) (string, error) {
	if req.Delimiter == "" {
		req.Delimiter = s.cfg.DefaultDelimiter
	}
	req.Columns = append([]string(nil), req.Columns...)

	if err := req.Validate(); err != nil {
		return "", err
	}

	op := NewOperation(s.clock, req.Direction, req.Source(), req.Target())
	s.registry.Put(op)

	logger := logging.ForOperation(ctx, op.ID(), string(req.Direction))
	logger.Info("transfer accepted",
		"source", req.Source(),
		"target", req.Target(),
		"columns", len(req.Columns),
		"client_ip", ClientIPFromContext(ctx),
		"user_agent", UserAgentFromContext(ctx),
	)

	// The transfer outlives the request that started it.
	runCtx, cancelTimeout := context.WithTimeout(context.Background(), s.cfg.Timeout)
	runCtx, cancel := context.WithCancelCause(runCtx)

	s.mu.Lock()
	s.cancels[op.ID()] = cancel
	s.mu.Unlock()

	release := func() {
		s.mu.Lock()
		delete(s.cancels, op.ID())
		s.mu.Unlock()
		cancel(nil)
		cancelTimeout()
	}

	err := s.pool.Submit(ctx, Task{
		ID: op.ID(),
		Run: func() {
			defer release()
			s.run(runCtx, op, req, logger)
		},
		OnPanic: func(v any) {
			s.finish(runCtx, op, req, fmt.Errorf("internal error: %v", v), logger)
		},
	})
	if err != nil {
		release()
		logger.Warn("transfer rejected", "error", err)
		op.Finish(false, describeFailure(failurePrefix(req.Direction), err))
		s.registry.Put(op)
		return op.ID(), err
	}

	return op.ID(), nil
}

// GetStatus returns the latest snapshot of an operation.
func (s *Service) GetStatus(id string) (OperationRecord, error) {
	return s.registry.Get(id)
}

// ListOperations returns every retained operation, newest first.
func (s *Service) ListOperations() []OperationRecord {
	return s.registry.List()
}

// Cancel stops a queued or running transfer at the next batch boundary.
func (s *Service) Cancel(id string) error {
	rec, err := s.registry.Get(id)
	if err != nil {
		return err
	}

	s.mu.Lock()
	cancel, ok := s.cancels[id]
	s.mu.Unlock()

	if !ok || rec.Status.Terminal() {
		return ErrOperationFinished
	}
	cancel(ErrTransferCancelled)
	return nil
}

// Shutdown stops accepting transfers and waits for running ones to finish.
// If ctx ends first, the remaining transfers are cancelled.
func (s *Service) Shutdown(ctx context.Context) error {
	s.pool.Close()

	err := s.pool.WaitForDrain(ctx)
	if err == nil {
		return nil
	}

	s.mu.Lock()
	for _, cancel := range s.cancels {
		cancel(ErrServiceClosed)
	}
	s.mu.Unlock()

	return fmt.Errorf("wait for transfers: %w", err)
}

// failurePrefix returns the message prefix for a failed transfer.
func failurePrefix(d Direction) string {
	if d == DirectionStoreToFile {
		return "failed to export data"
	}
	return "failed to import data"
}

// errorType classifies err for metrics.
func errorType(err error) string {
	var (
		cnf  *ColumnNotFoundError
		read *SourceReadError
		sink *SinkWriteError
	)
	switch {
	case errors.Is(err, ErrTransferCancelled):
		return "cancelled"
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	case errors.As(err, &cnf):
		return "column_not_found"
	case errors.As(err, &read):
		return "source_read"
	case errors.As(err, &sink):
		return "sink_write"
	case errors.Is(err, ErrTooManyTransfers), errors.Is(err, ErrServiceClosed):
		return "rejected"
	}
	return "internal"
}

package observability

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Metrics holds the transfer metric instruments.
type Metrics struct {
	rowsProcessed    metric.Int64Counter
	batchesWritten   metric.Int64Counter
	batchDuration    metric.Float64Histogram
	transferDuration metric.Float64Histogram
	activeTransfers  metric.Int64UpDownCounter
	errorCount       metric.Int64Counter
}

// NewMetrics creates a new Metrics instance with the given MeterProvider.
func NewMetrics(mp metric.MeterProvider) *Metrics {
	meter := mp.Meter(MeterName)
	m := &Metrics{}

	// Instrument creation only fails on invalid options; fall back to a
	// bare instrument so recording never hits a nil.
	var err error

	m.rowsProcessed, err = meter.Int64Counter(
		"ferry.rows.processed",
		metric.WithDescription("Rows committed to a sink"),
		metric.WithUnit("{row}"),
	)
	if err != nil {
		m.rowsProcessed, _ = meter.Int64Counter("ferry.rows.processed")
	}

	m.batchesWritten, err = meter.Int64Counter(
		"ferry.batches.written",
		metric.WithDescription("Batches committed to a sink"),
		metric.WithUnit("{batch}"),
	)
	if err != nil {
		m.batchesWritten, _ = meter.Int64Counter("ferry.batches.written")
	}

	m.batchDuration, err = meter.Float64Histogram(
		"ferry.batch.duration",
		metric.WithDescription("Time to write one batch in milliseconds"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		m.batchDuration, _ = meter.Float64Histogram("ferry.batch.duration")
	}

	m.transferDuration, err = meter.Float64Histogram(
		"ferry.transfer.duration",
		metric.WithDescription("Duration of a transfer in milliseconds"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		m.transferDuration, _ = meter.Float64Histogram("ferry.transfer.duration")
	}

	m.activeTransfers, err = meter.Int64UpDownCounter(
		"ferry.transfers.active",
		metric.WithDescription("Transfers currently running"),
		metric.WithUnit("{transfer}"),
	)
	if err != nil {
		m.activeTransfers, _ = meter.Int64UpDownCounter("ferry.transfers.active")
	}

	m.errorCount, err = meter.Int64Counter(
		"ferry.error.count",
		metric.WithDescription("Failed transfers"),
		metric.WithUnit("{error}"),
	)
	if err != nil {
		m.errorCount, _ = meter.Int64Counter("ferry.error.count")
	}

	return m
}

// RecordBatch records one committed batch.
func (m *Metrics) RecordBatch(ctx context.Context, direction string, rows int, duration time.Duration) {
	attrs := metric.WithAttributes(DirectionAttr(direction))
	m.rowsProcessed.Add(ctx, int64(rows), attrs)
	m.batchesWritten.Add(ctx, 1, attrs)
	m.batchDuration.Record(ctx, float64(duration.Milliseconds()), attrs)
}

// TransferStarted increments the active transfer gauge.
func (m *Metrics) TransferStarted(ctx context.Context, direction string) {
	m.activeTransfers.Add(ctx, 1, metric.WithAttributes(DirectionAttr(direction)))
}

// TransferFinished records the outcome and duration of a transfer.
func (m *Metrics) TransferFinished(ctx context.Context, direction, status string, duration time.Duration) {
	dir := DirectionAttr(direction)
	m.activeTransfers.Add(ctx, -1, metric.WithAttributes(dir))
	m.transferDuration.Record(ctx, float64(duration.Milliseconds()),
		metric.WithAttributes(dir, StatusAttr(status)))
}

// RecordError records a failed transfer by error type.
func (m *Metrics) RecordError(ctx context.Context, direction, errorType string) {
	m.errorCount.Add(ctx, 1, metric.WithAttributes(
		DirectionAttr(direction),
		attribute.String(AttrErrorType, errorType),
	))
}

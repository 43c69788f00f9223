package observability

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Tracer wraps an OpenTelemetry tracer with transfer-specific span helpers.
type Tracer struct {
	tracer      trace.Tracer
	serviceName string
}

// NewTracer creates a new Tracer using the given TracerProvider.
func NewTracer(tp trace.TracerProvider, serviceName string) *Tracer {
	return &Tracer{
		tracer:      tp.Tracer(TracerName),
		serviceName: serviceName,
	}
}

// StartSpan starts a new span with the given name and attributes.
func (t *Tracer) StartSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return t.tracer.Start(ctx, name, trace.WithAttributes(attrs...))
}

// StartTransfer starts the root span of one transfer.
func (t *Tracer) StartTransfer(ctx context.Context, operationID, direction, source, target string) (context.Context, trace.Span) {
	return t.tracer.Start(ctx, "ferry.transfer", trace.WithAttributes(
		OperationIDAttr(operationID),
		DirectionAttr(direction),
		attribute.String(AttrSource, source),
		attribute.String(AttrTarget, target),
		attribute.String("service.name", t.serviceName),
	))
}

// StartBatch starts a span for writing one batch.
func (t *Tracer) StartBatch(ctx context.Context, index, rows int) (context.Context, trace.Span) {
	return t.tracer.Start(ctx, "ferry.batch", trace.WithAttributes(
		attribute.Int(AttrBatchIndex, index),
		attribute.Int(AttrBatchRows, rows),
	))
}

// EndTransfer records the outcome on span and ends it.
func EndTransfer(span trace.Span, processed int64, err error) {
	span.SetAttributes(attribute.Int64(AttrRowsTotal, processed))
	if err != nil {
		RecordError(span, err)
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.End()
}

// RecordError marks span as failed with err.
func RecordError(span trace.Span, err error) {
	if err == nil {
		return
	}
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}

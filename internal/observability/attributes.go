// Package observability provides OpenTelemetry instrumentation for transfers.
//
// Spans cover a transfer end to end plus one child span per batch. Metrics
// count rows and batches moved and record transfer durations by outcome.
// When no providers are configured the no-op implementations are used.
package observability

import "go.opentelemetry.io/otel/attribute"

// Instrumentation identity constants
const (
	// TracerName is the instrumentation name for tracing.
	TracerName = "github.com/JonMunkholm/ferry"
	// MeterName is the instrumentation name for metrics.
	MeterName = "github.com/JonMunkholm/ferry"
)

// Transfer attribute keys.
const (
	AttrOperationID = "ferry.operation_id"
	AttrDirection   = "ferry.direction"
	AttrSource      = "ferry.source"
	AttrTarget      = "ferry.target"
	AttrBatchRows   = "ferry.batch.rows"
	AttrBatchIndex  = "ferry.batch.index"
	AttrRowsTotal   = "ferry.rows.processed"
	AttrStatus      = "ferry.status"
	AttrErrorType   = "error.type"
)

// DirectionAttr returns an attribute for the transfer direction.
func DirectionAttr(direction string) attribute.KeyValue {
	return attribute.String(AttrDirection, direction)
}

// OperationIDAttr returns an attribute for the operation id.
func OperationIDAttr(id string) attribute.KeyValue {
	return attribute.String(AttrOperationID, id)
}

// StatusAttr returns an attribute for the terminal status.
func StatusAttr(status string) attribute.KeyValue {
	return attribute.String(AttrStatus, status)
}

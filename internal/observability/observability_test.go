package observability

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	servertiming "github.com/mitchellh/go-server-timing"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNoopInstrumentsAreUsable(t *testing.T) {
	ctx := context.Background()

	tracer := NewNoopTracer()
	ctx, span := tracer.StartTransfer(ctx, "op-1", "file_to_store", "a.csv", "t")
	_, batch := tracer.StartBatch(ctx, 0, 10)
	RecordError(batch, errors.New("boom"))
	batch.End()
	EndTransfer(span, 10, nil)

	m := NewNoopMetrics()
	m.TransferStarted(ctx, "file_to_store")
	m.RecordBatch(ctx, "file_to_store", 10, time.Millisecond)
	m.RecordError(ctx, "file_to_store", "sink_write")
	m.TransferFinished(ctx, "file_to_store", "error", time.Second)
}

func TestStartServerTiming_WithoutHeaderContext(t *testing.T) {
	m := StartServerTiming(context.Background(), "db", "")
	require.NotNil(t, m)
	m.Stop()
}

func TestStartServerTiming_WritesHeader(t *testing.T) {
	handler := servertiming.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		m := StartServerTiming(r.Context(), "describe", "describe table")
		m.Stop()
		w.WriteHeader(http.StatusOK)
	}), nil)

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	header := rec.Header().Get("Server-Timing")
	assert.True(t, strings.Contains(header, "describe"), "header %q", header)
}

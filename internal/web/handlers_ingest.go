package web

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/JonMunkholm/ferry/internal/core"
	"github.com/JonMunkholm/ferry/internal/logging"
	"github.com/JonMunkholm/ferry/internal/observability"
	"github.com/JonMunkholm/ferry/internal/web/templates"
)

// maxJSONBody bounds every JSON request body.
const maxJSONBody = 1 << 20

// IngestRequest is the body of POST /api/ingest. SourceType "FlatFile"
// imports SourceFilePath into TableName; "ClickHouse" exports TableName to
// TargetFilePath.
type IngestRequest struct {
	SourceType       string                `json:"sourceType"`
	ConnectionConfig core.ConnectionConfig `json:"connectionConfig"`
	TableName        string                `json:"tableName"`
	SelectedColumns  []string              `json:"selectedColumns"`
	SourceFilePath   string                `json:"sourceFilePath"`
	TargetFilePath   string                `json:"targetFilePath"`
	Delimiter        string                `json:"delimiter"`
}

func (req IngestRequest) transferRequest() (core.TransferRequest, error) {
	dir, err := core.ParseDirection(req.SourceType)
	if err != nil {
		return core.TransferRequest{}, err
	}

	path := req.SourceFilePath
	if dir == core.DirectionStoreToFile {
		path = req.TargetFilePath
	}

	return core.TransferRequest{
		Direction:  dir,
		Connection: req.ConnectionConfig,
		Table:      req.TableName,
		FilePath:   path,
		Delimiter:  req.Delimiter,
		Columns:    req.SelectedColumns,
	}, nil
}

// handleStartIngest starts a transfer and returns its initial record. The
// transfer keeps running after the response is written.
func (s *Server) handleStartIngest(w http.ResponseWriter, r *http.Request) {
	timing := observability.StartServerTiming(r.Context(), "ingest", "start transfer")
	defer timing.Stop()

	var body IngestRequest
	if err := decodeJSON(w, r, &body); err != nil {
		s.respondError(w, r, err)
		return
	}

	req, err := body.transferRequest()
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	id, err := s.service.StartTransfer(withRequestMetadata(r.Context(), r), req)
	if err != nil {
		if id != "" {
			w.Header().Set("X-Operation-Id", id)
		}
		s.respondError(w, r, err)
		return
	}

	rec, err := s.service.GetStatus(id)
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	logging.FromContext(r.Context()).Info("ingest started", "operation_id", id, "direction", req.Direction)
	s.respondOperation(w, r, http.StatusOK, rec)
}

// handleIngestStatus returns the latest snapshot for ?operationId=.
func (s *Server) handleIngestStatus(w http.ResponseWriter, r *http.Request) {
	id := r.URL.Query().Get("operationId")
	if id == "" {
		writeError(w, r, http.StatusBadRequest, "Missing required parameter: operationId")
		return
	}

	rec, err := s.service.GetStatus(id)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	s.respondOperation(w, r, http.StatusOK, rec)
}

// handleCancelIngest requests cancellation. The transfer stops at its next
// batch boundary, so the returned record may still be running.
func (s *Server) handleCancelIngest(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "operationID")

	if err := s.service.Cancel(id); err != nil {
		s.respondError(w, r, err)
		return
	}

	logging.FromContext(r.Context()).Info("ingest cancel requested", "operation_id", id)

	rec, err := s.service.GetStatus(id)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	s.respondOperation(w, r, http.StatusAccepted, rec)
}

// handleListOperations returns every retained operation, newest first.
func (s *Server) handleListOperations(w http.ResponseWriter, r *http.Request) {
	recs := s.service.ListOperations()
	if recs == nil {
		recs = []core.OperationRecord{}
	}

	if isHTMX(r) {
		renderFragment(w, r, http.StatusOK, templates.OperationList(recs))
		return
	}
	writeJSON(w, http.StatusOK, recs)
}

func (s *Server) respondOperation(w http.ResponseWriter, r *http.Request, status int, rec core.OperationRecord) {
	if isHTMX(r) {
		renderFragment(w, r, status, templates.OperationStatus(rec))
		return
	}
	writeJSON(w, status, rec)
}

// decodeJSON reads a bounded JSON body into v. Malformed bodies are
// reported as invalid requests.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxJSONBody)

	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return fmt.Errorf("%w: request body is empty", core.ErrInvalidRequest)
		}
		return fmt.Errorf("%w: malformed JSON body: %v", core.ErrInvalidRequest, err)
	}
	return nil
}

package web

import (
	"net/http"

	"github.com/JonMunkholm/ferry/internal/core"
	"github.com/JonMunkholm/ferry/internal/logging"
	"github.com/JonMunkholm/ferry/internal/observability"
)

// TableInfo is the schema response for both store tables and files.
type TableInfo struct {
	TableName string            `json:"tableName"`
	Columns   []core.ColumnInfo `json:"columns"`
}

type messageResponse struct {
	Message string `json:"message"`
}

type tableRequest struct {
	ConnectionConfig core.ConnectionConfig `json:"connectionConfig"`
	TableName        string                `json:"tableName"`
}

// createTableRequest accepts the connection under either "connection" or
// "connectionConfig".
type createTableRequest struct {
	Connection       core.ConnectionConfig `json:"connection"`
	ConnectionConfig core.ConnectionConfig `json:"connectionConfig"`
	TableName        string                `json:"tableName"`
	Columns          []string              `json:"columns"`
	SourceFilePath   string                `json:"sourceFilePath,omitempty"`
}

func (r createTableRequest) connection() core.ConnectionConfig {
	if r.Connection.IsZero() && r.Connection.Driver == "" {
		return r.ConnectionConfig
	}
	return r.Connection
}

// handleConnect opens a connection with the posted settings and pings it.
func (s *Server) handleConnect(w http.ResponseWriter, r *http.Request) {
	timing := observability.StartServerTiming(r.Context(), "connect", "test store connection")
	defer timing.Stop()

	var cfg core.ConnectionConfig
	if err := decodeJSON(w, r, &cfg); err != nil {
		s.respondError(w, r, err)
		return
	}

	if err := s.service.TestConnection(r.Context(), cfg); err != nil {
		s.respondErrorStatus(w, r, err, upstreamStatus(err))
		return
	}
	writeJSON(w, http.StatusOK, messageResponse{Message: "Connected successfully"})
}

// handleListTables lists the tables visible through the posted connection.
func (s *Server) handleListTables(w http.ResponseWriter, r *http.Request) {
	timing := observability.StartServerTiming(r.Context(), "tables", "list tables")
	defer timing.Stop()

	var cfg core.ConnectionConfig
	if err := decodeJSON(w, r, &cfg); err != nil {
		s.respondError(w, r, err)
		return
	}

	tables, err := s.service.ListTables(r.Context(), cfg)
	if err != nil {
		s.respondErrorStatus(w, r, err, upstreamStatus(err))
		return
	}
	if tables == nil {
		tables = []string{}
	}
	writeJSON(w, http.StatusOK, tables)
}

// handleTableSchema describes one table's columns.
func (s *Server) handleTableSchema(w http.ResponseWriter, r *http.Request) {
	timing := observability.StartServerTiming(r.Context(), "schema", "describe table")
	defer timing.Stop()

	var req tableRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.respondError(w, r, err)
		return
	}

	cols, err := s.service.DescribeTable(r.Context(), req.ConnectionConfig, req.TableName)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, TableInfo{TableName: req.TableName, Columns: cols})
}

// handleCreateTable creates a table with one text column per selected column.
func (s *Server) handleCreateTable(w http.ResponseWriter, r *http.Request) {
	timing := observability.StartServerTiming(r.Context(), "create", "create table")
	defer timing.Stop()

	var req createTableRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.respondError(w, r, err)
		return
	}

	if err := s.service.CreateTable(r.Context(), req.connection(), req.TableName, req.Columns); err != nil {
		s.respondError(w, r, err)
		return
	}

	logging.FromContext(r.Context()).Info("table created",
		"table", req.TableName,
		"columns", len(req.Columns),
		"source_file", req.SourceFilePath,
	)
	writeJSON(w, http.StatusOK, messageResponse{Message: "Table created successfully"})
}

// upstreamStatus reports unclassified store failures as 502.
func upstreamStatus(err error) int {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		return http.StatusBadGateway
	}
	return status
}

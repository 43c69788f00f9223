package web

import (
	"errors"
	"fmt"
	"net/http"
	"path"
	"strings"

	"github.com/google/uuid"

	"github.com/JonMunkholm/ferry/internal/core"
	"github.com/JonMunkholm/ferry/internal/flatfile"
	"github.com/JonMunkholm/ferry/internal/logging"
	"github.com/JonMunkholm/ferry/internal/observability"
)

// multipartMemory is how much of a multipart form is buffered in memory
// before spilling to temporary files.
const multipartMemory = 8 << 20

// UploadResponse describes a stored upload. FilePath is relative to the
// files root and can be passed back as sourceFilePath.
type UploadResponse struct {
	Success  bool   `json:"success"`
	Message  string `json:"message"`
	FileName string `json:"fileName"`
	FilePath string `json:"filePath"`
	Size     int64  `json:"size"`
}

type fileSchemaRequest struct {
	FilePath  string `json:"filePath"`
	Delimiter string `json:"delimiter"`
}

// PreviewRequest is the body of POST /api/preview. SourceType "ClickHouse"
// previews TableName; anything else previews SourceFilePath.
type PreviewRequest struct {
	SourceType       string                `json:"sourceType"`
	ConnectionConfig core.ConnectionConfig `json:"connectionConfig"`
	TableName        string                `json:"tableName"`
	SourceFilePath   string                `json:"sourceFilePath"`
	SelectedColumns  []string              `json:"selectedColumns"`
	Delimiter        string                `json:"delimiter"`
	MaxRows          int                   `json:"maxRows"`
}

// PreviewResponse holds the projected header and the first rows.
type PreviewResponse struct {
	Columns []string   `json:"columns"`
	Rows    core.Batch `json:"rows"`
}

// handleUpload stores a multipart "file" part under the upload directory.
// The stored name is prefixed with a short random id so repeated uploads
// of the same file do not overwrite each other.
func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	timing := observability.StartServerTiming(r.Context(), "upload", "store uploaded file")
	defer timing.Stop()

	maxSize := s.cfg.Files.MaxUploadSize
	r.Body = http.MaxBytesReader(w, r.Body, maxSize+multipartMemory)

	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			s.respondError(w, r, fmt.Errorf("upload: %w", flatfile.ErrFileTooLarge))
			return
		}
		s.respondError(w, r, fmt.Errorf("%w: invalid multipart form: %v", core.ErrInvalidRequest, err))
		return
	}
	defer r.MultipartForm.RemoveAll()

	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "no file provided")
		return
	}
	defer file.Close()

	name := uploadName(header.Filename)
	if name == "" {
		writeError(w, r, http.StatusBadRequest, "no file provided")
		return
	}

	target := path.Join(s.cfg.Files.UploadDir, uuid.NewString()[:8]+"_"+name)
	n, err := s.files.Save(target, file, maxSize)
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	logging.FromContext(r.Context()).Info("file uploaded",
		"file_name", name,
		"path", target,
		"bytes", n,
		"client_ip", clientIP(r),
	)

	writeJSON(w, http.StatusOK, UploadResponse{
		Success:  true,
		Message:  "File uploaded successfully",
		FileName: name,
		FilePath: target,
		Size:     n,
	})
}

// handleFileSchema returns a file's header with inferred column types.
func (s *Server) handleFileSchema(w http.ResponseWriter, r *http.Request) {
	timing := observability.StartServerTiming(r.Context(), "schema", "read file schema")
	defer timing.Stop()

	var req fileSchemaRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.respondError(w, r, err)
		return
	}
	if req.FilePath == "" {
		writeError(w, r, http.StatusBadRequest, "Missing file path")
		return
	}

	cols, err := s.service.FileSchema(r.Context(), req.FilePath, req.Delimiter)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, TableInfo{TableName: path.Base(req.FilePath), Columns: cols})
}

// handlePreview returns the first rows of a table or file.
func (s *Server) handlePreview(w http.ResponseWriter, r *http.Request) {
	timing := observability.StartServerTiming(r.Context(), "preview", "preview rows")
	defer timing.Stop()

	var req PreviewRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.respondError(w, r, err)
		return
	}

	var (
		cols []string
		rows core.Batch
		err  error
	)
	if dir, _ := core.ParseDirection(req.SourceType); dir == core.DirectionStoreToFile {
		if strings.TrimSpace(req.TableName) == "" {
			writeError(w, r, http.StatusBadRequest, "Missing table name")
			return
		}
		cols, rows, err = s.service.PreviewTable(r.Context(), req.ConnectionConfig, req.TableName, req.SelectedColumns, req.MaxRows)
	} else {
		if req.SourceFilePath == "" {
			writeError(w, r, http.StatusBadRequest, "Missing file path")
			return
		}
		cols, rows, err = s.service.PreviewFile(r.Context(), req.SourceFilePath, req.Delimiter, req.SelectedColumns, req.MaxRows)
	}
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, PreviewResponse{Columns: cols, Rows: rows})
}

// uploadName reduces a client-supplied file name to its base name.
func uploadName(name string) string {
	name = path.Base(strings.ReplaceAll(name, `\`, "/"))
	switch name {
	case ".", "..", "/":
		return ""
	}
	return name
}

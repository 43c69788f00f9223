package web

// errors.go turns handler errors into responses. The technical error is
// logged with the request id; the client gets the mapped user message,
// as an HTML fragment for HTMX requests and JSON otherwise.

import (
	"errors"
	"io/fs"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5/middleware"

	"github.com/JonMunkholm/ferry/internal/core"
	"github.com/JonMunkholm/ferry/internal/flatfile"
	"github.com/JonMunkholm/ferry/internal/logging"
	"github.com/JonMunkholm/ferry/internal/web/templates"
)

// ErrorResponse is the JSON body of every error response. Message mirrors
// Error so clients written against either field keep working.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Action  string `json:"action,omitempty"`
	Code    string `json:"code"`
}

// respondError logs err and writes the user-facing message with a status
// derived from the error.
func (s *Server) respondError(w http.ResponseWriter, r *http.Request, err error) {
	s.respondErrorStatus(w, r, err, statusFor(err))
}

// respondErrorStatus is respondError with an explicit status.
func (s *Server) respondErrorStatus(w http.ResponseWriter, r *http.Request, err error, status int) {
	msg := core.MapError(err)

	logger := logging.FromContext(r.Context())
	attrs := []any{
		"path", r.URL.Path,
		"method", r.Method,
		"status", status,
		"error", err.Error(),
		"code", msg.Code,
	}
	if status >= http.StatusInternalServerError {
		logger.Error("request error", attrs...)
	} else {
		logger.Warn("request error", attrs...)
	}

	respondMessage(w, r, msg, status)
}

// writeError responds with a plain message that has no underlying error,
// such as a missing parameter.
func writeError(w http.ResponseWriter, r *http.Request, status int, message string) {
	msg := core.MapError(errors.New(message))
	if msg.Code == "ERR000" {
		msg = core.UserMessage{Message: message, Code: "HTTP" + strconv.Itoa(status)}
	}
	respondMessage(w, r, msg, status)
}

func respondMessage(w http.ResponseWriter, r *http.Request, msg core.UserMessage, status int) {
	if isHTMX(r) {
		renderFragment(w, r, status, templates.ErrorAlert(msg.Message, msg.Action, msg.Code))
		return
	}

	w.Header().Set("X-Request-Id", middleware.GetReqID(r.Context()))
	writeJSON(w, status, ErrorResponse{
		Error:   msg.Message,
		Message: msg.Message,
		Action:  msg.Action,
		Code:    msg.Code,
	})
}

// statusFor picks the HTTP status for an error returned by the service.
func statusFor(err error) int {
	var cnf *core.ColumnNotFoundError
	switch {
	case errors.Is(err, core.ErrOperationNotFound), errors.Is(err, fs.ErrNotExist):
		return http.StatusNotFound
	case errors.Is(err, core.ErrTooManyTransfers), errors.Is(err, core.ErrServiceClosed):
		return http.StatusServiceUnavailable
	case errors.Is(err, core.ErrOperationFinished):
		return http.StatusConflict
	case errors.Is(err, flatfile.ErrFileTooLarge):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, core.ErrInvalidRequest), errors.Is(err, flatfile.ErrEmptyFile), errors.As(err, &cnf):
		return http.StatusBadRequest
	}

	var qe *core.QueryError
	if errors.As(err, &qe) {
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}

// isHTMX reports whether the request came from HTMX.
func isHTMX(r *http.Request) bool {
	return r.Header.Get("HX-Request") == "true"
}

package web

import (
	"net/http"

	"github.com/JonMunkholm/ferry/internal/core"
)

// StatusResponse reports transfer capacity for monitoring.
type StatusResponse struct {
	Pool       core.PoolStatus `json:"pool"`
	Operations int             `json:"operations"`
}

// handleHealth answers liveness probes. It reports unavailable once the
// service has begun shutting down.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if s.service.PoolStatus().Closed {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "shutting down"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, StatusResponse{
		Pool:       s.service.PoolStatus(),
		Operations: s.service.Registry().Len(),
	})
}

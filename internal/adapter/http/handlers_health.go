package adapthttp

import (
	"context"
	"net/http"
	"time"
)

const healthTimeout = 2 * time.Second

func (s *Server) handleHealthcheck(w http.ResponseWriter, r *http.Request) {
	if s.health != nil {
		ctx, cancel := context.WithTimeout(r.Context(), healthTimeout)
		defer cancel()
		if err := s.health.Ping(ctx); err != nil {
			s.logger.Warn("health check failed", "error", err)
			writeError(w, http.StatusServiceUnavailable, CodeServiceUnavailable, msgUnavailable)
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status_code": http.StatusOK,
		"description": "Service is available",
	})
}

package api

import (
	"net/http"
)

type healthResponse struct {
	Status  string `json:"status"`
	Modules int    `json:"modules"`
	Loaded  int    `json:"loaded"`
}

// handleHealthz reports ok while the registry's store answers queries.
func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	stats, err := s.registry.Statistics(r.Context())
	if err != nil {
		s.logger.Error("health check", "error", err)
		s.writeJSON(w, http.StatusServiceUnavailable, healthResponse{Status: "unavailable"})
		return
	}
	s.writeJSON(w, http.StatusOK, healthResponse{
		Status:  "ok",
		Modules: stats.Total,
		Loaded:  stats.Loaded,
	})
}

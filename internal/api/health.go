package api

import (
	"net/http"
)

// healthResponse is the JSON response for GET /healthz.
type healthResponse struct {
	Status      string `json:"status"`
	LiveWorkers int    `json:"live_workers"`
}

// handleHealthz reports process liveness plus the primary pool's live worker
// count, a cheap signal that the dispatch runtime came up. Store readiness
// is deliberately not probed here; it surfaces through /v1/stats.
func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, healthResponse{
		Status:      "ok",
		LiveWorkers: s.runtime.Primary().Live(),
	})
}

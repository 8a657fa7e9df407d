package api

import (
	"net/http"

	"github.com/yonglehou/DReAM/internal/dispatch"
)

// capacityResponse is the JSON response for GET /v1/capacity.
type capacityResponse struct {
	Limits    dispatch.Limits   `json:"limits"`
	Available dispatch.Capacity `json:"available"`
}

func (s *Server) handleGetCapacity(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, capacityResponse{
		Limits:    s.runtime.ConfiguredLimits(),
		Available: s.runtime.AvailableCapacity(),
	})
}

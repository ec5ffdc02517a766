package gateway

import (
	"net/http"
	"strings"

	"atende-ai/internal/domain"
)

// StatusResponse is the JSON body returned by GET /api/v1/status.
type StatusResponse struct {
	Service string               `json:"service"`
	System  domain.SystemMetrics `json:"system"`
	Agents  []domain.AgentStatus `json:"agents"`
	Ranking []domain.AgentRank   `json:"ranking"`
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	writeJSON(w, http.StatusOK, StatusResponse{
		Service: "atende-ai",
		System:  s.deps.Collector.SystemMetrics(),
		Agents:  s.deps.Registry.StatusAll(),
		Ranking: s.deps.Collector.Ranking(),
	})
}

// handleAgent serves GET /api/v1/agents/{id}.
func (s *Server) handleAgent(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	id := strings.TrimPrefix(r.URL.Path, "/api/v1/agents/")
	if id == "" || strings.Contains(id, "/") {
		writeError(w, http.StatusBadRequest, "agent id required")
		return
	}
	status, err := s.deps.Registry.Status(id)
	if err != nil {
		writeError(w, http.StatusNotFound, "agent not found")
		return
	}
	writeJSON(w, http.StatusOK, status)
}

// handleSession serves DELETE /api/v1/sessions/{id}.
func (s *Server) handleSession(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodDelete {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	id := strings.TrimPrefix(r.URL.Path, "/api/v1/sessions/")
	if id == "" || strings.Contains(id, "/") {
		writeError(w, http.StatusBadRequest, "session id required")
		return
	}
	removed, err := s.deps.Sessions.Delete(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "session delete failed")
		return
	}
	if !removed {
		writeError(w, http.StatusNotFound, "session not found")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted", "session_id": id})
}

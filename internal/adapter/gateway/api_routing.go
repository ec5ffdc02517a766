package gateway

import (
	"encoding/json"
	"net/http"
	"strings"
)

// RuleRequest is the body of POST /api/v1/routing/rules.
type RuleRequest struct {
	Keyword string `json:"keyword"`
	AgentID string `json:"agent_id"`
}

// handleRules serves GET (list) and POST (add) on /api/v1/routing/rules.
func (s *Server) handleRules(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		rules := s.deps.Engine.Rules()
		out := make([]RuleRequest, 0, len(rules))
		for _, rule := range rules {
			out = append(out, RuleRequest{Keyword: rule.Keyword, AgentID: rule.AgentID})
		}
		writeJSON(w, http.StatusOK, out)
	case http.MethodPost:
		var req RuleRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid body")
			return
		}
		if err := s.deps.Engine.AddRule(req.Keyword, req.AgentID); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		s.logger.Info("routing rule added via admin API", "keyword", req.Keyword, "agent_id", req.AgentID)
		writeJSON(w, http.StatusCreated, req)
	default:
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

// handleRuleDelete serves DELETE /api/v1/routing/rules/{keyword}.
func (s *Server) handleRuleDelete(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodDelete {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	keyword := strings.TrimPrefix(r.URL.Path, "/api/v1/routing/rules/")
	if keyword == "" {
		writeError(w, http.StatusBadRequest, "keyword required")
		return
	}
	if !s.deps.Engine.RemoveRule(keyword) {
		writeError(w, http.StatusNotFound, "rule not found")
		return
	}
	s.logger.Info("routing rule removed via admin API", "keyword", keyword)
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted", "keyword": keyword})
}

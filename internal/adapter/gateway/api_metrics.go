package gateway

import (
	"fmt"
	"net/http"
	"runtime"
	"strconv"
)

func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	writeJSON(w, http.StatusOK, s.deps.Collector.SystemMetrics())
}

func (s *Server) handleRanking(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	writeJSON(w, http.StatusOK, s.deps.Collector.Ranking())
}

// handleErrors serves GET /api/v1/metrics/errors?limit=N.
func (s *Server) handleErrors(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		limit = n
	}
	writeJSON(w, http.StatusOK, s.deps.Collector.RecentErrors(limit))
}

func (s *Server) handleMetricsReset(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	s.deps.Collector.Reset()
	s.logger.Info("metrics reset via admin API")
	writeJSON(w, http.StatusOK, map[string]string{"status": "reset"})
}

// handlePrometheus serves GET /metrics in Prometheus text format.
// This uses the lightweight text format to avoid pulling in the full
// prometheus client.
func (s *Server) handlePrometheus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	w.Header().Set("Content-Type", "text/plain; version=0.0.4; charset=utf-8")

	system := s.deps.Collector.SystemMetrics()

	fmt.Fprintf(w, "# HELP atendeai_requests_total Total dispatched requests.\n")
	fmt.Fprintf(w, "# TYPE atendeai_requests_total counter\n")
	fmt.Fprintf(w, "atendeai_requests_total %d\n", system.TotalRequests)

	fmt.Fprintf(w, "# HELP atendeai_requests_failed_total Total failed dispatches.\n")
	fmt.Fprintf(w, "# TYPE atendeai_requests_failed_total counter\n")
	fmt.Fprintf(w, "atendeai_requests_failed_total %d\n", system.FailedRequests)

	fmt.Fprintf(w, "# HELP atendeai_success_rate Overall dispatch success rate.\n")
	fmt.Fprintf(w, "# TYPE atendeai_success_rate gauge\n")
	fmt.Fprintf(w, "atendeai_success_rate %.4f\n", system.SuccessRate)

	fmt.Fprintf(w, "# HELP atendeai_recent_success_rate Success rate over the recent window.\n")
	fmt.Fprintf(w, "# TYPE atendeai_recent_success_rate gauge\n")
	fmt.Fprintf(w, "atendeai_recent_success_rate %.4f\n", system.RecentSuccessRate)

	fmt.Fprintf(w, "# HELP atendeai_uptime_seconds Seconds since the service started.\n")
	fmt.Fprintf(w, "# TYPE atendeai_uptime_seconds gauge\n")
	fmt.Fprintf(w, "atendeai_uptime_seconds %.0f\n", system.UptimeSeconds)

	// Per-agent series.
	for _, st := range s.deps.Registry.StatusAll() {
		m := st.Metrics
		fmt.Fprintf(w, "atendeai_agent_requests_total{agent=%q} %d\n", st.AgentID, m.TotalRequests)
		fmt.Fprintf(w, "atendeai_agent_requests_failed_total{agent=%q} %d\n", st.AgentID, m.FailedRequests)
		fmt.Fprintf(w, "atendeai_agent_success_rate{agent=%q} %.4f\n", st.AgentID, m.SuccessRate)
		fmt.Fprintf(w, "atendeai_agent_avg_response_ms{agent=%q} %.2f\n", st.AgentID, m.AvgResponseTimeMs)
		active := 0
		if st.Active {
			active = 1
		}
		fmt.Fprintf(w, "atendeai_agent_active{agent=%q} %d\n", st.AgentID, active)
	}

	fmt.Fprintf(w, "# HELP go_goroutines Number of goroutines.\n")
	fmt.Fprintf(w, "# TYPE go_goroutines gauge\n")
	fmt.Fprintf(w, "go_goroutines %d\n", runtime.NumGoroutine())
}

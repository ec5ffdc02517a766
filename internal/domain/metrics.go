package domain

import "time"

// DispatchRecord is one entry in the rolling dispatch history.
type DispatchRecord struct {
	Timestamp      time.Time `json:"timestamp"`
	AgentID        string    `json:"agent_id"`
	Success        bool      `json:"success"`
	ResponseTimeMs float64   `json:"response_time_ms"`
	Error          string    `json:"error,omitempty"`
}

// ErrorRecord is one entry in an agent's rolling error window.
type ErrorRecord struct {
	Timestamp time.Time `json:"timestamp"`
	AgentID   string    `json:"agent_id"`
	Error     string    `json:"error"`
}

// AgentMetrics is the aggregate view for a single agent.
// Response time statistics cover the current rolling window only.
type AgentMetrics struct {
	TotalRequests      int64   `json:"total_requests"`
	SuccessfulRequests int64   `json:"successful_requests"`
	FailedRequests     int64   `json:"failed_requests"`
	SuccessRate        float64 `json:"success_rate"`
	AvgResponseTimeMs  float64 `json:"avg_response_time_ms"`
	MinResponseTimeMs  float64 `json:"min_response_time_ms"`
	MaxResponseTimeMs  float64 `json:"max_response_time_ms"`
}

// SystemMetrics is the system-wide aggregate view.
type SystemMetrics struct {
	UptimeSeconds      float64 `json:"uptime_seconds"`
	TotalRequests      int64   `json:"total_requests"`
	SuccessfulRequests int64   `json:"successful_requests"`
	FailedRequests     int64   `json:"failed_requests"`
	SuccessRate        float64 `json:"success_rate"`
	RecentSuccessRate  float64 `json:"recent_success_rate"`
}

// AgentRank is one row of the per-agent performance ranking.
type AgentRank struct {
	AgentID           string  `json:"agent_id"`
	SuccessRate       float64 `json:"success_rate"`
	TotalRequests     int64   `json:"total_requests"`
	AvgResponseTimeMs float64 `json:"avg_response_time_ms"`
	FailedRequests    int64   `json:"failed_requests"`
}

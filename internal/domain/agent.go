package domain

import (
	"context"
	"time"
)

// Capability tags recognized by the routing engine.
const (
	CapCustomerService  = "customer_service"
	CapTechnicalSupport = "technical_support"
	CapFinancial        = "financial"
)

// Agent is the identity and capability descriptor of a processing unit.
// The registry owns Agent records; fields are fixed at registration time.
type Agent struct {
	ID            string    `json:"id"`
	Capabilities  []string  `json:"capabilities"`
	Active        bool      `json:"active"`
	LastHeartbeat time.Time `json:"last_heartbeat,omitempty"`
}

// HasCapability reports whether the agent exposes the given capability tag.
func (a *Agent) HasCapability(cap string) bool {
	for _, c := range a.Capabilities {
		if c == cap {
			return true
		}
	}
	return false
}

// Processor is the per-agent processing contract. Given the request and the
// session's capped conversation history, it produces the response text.
type Processor interface {
	Process(ctx context.Context, req Request, history []Message) (string, error)
}

// AgentUsage is the registry's routing usage view for one agent.
type AgentUsage struct {
	TotalRequests int64     `json:"total_requests"`
	LastUsed      time.Time `json:"last_used,omitempty"`
}

// AgentStatus is a read-only snapshot combining registry state with the
// metrics collector's current aggregate.
type AgentStatus struct {
	AgentID       string       `json:"agent_id"`
	Capabilities  []string     `json:"capabilities"`
	Active        bool         `json:"active"`
	LastHeartbeat time.Time    `json:"last_heartbeat,omitempty"`
	Usage         AgentUsage   `json:"usage"`
	Metrics       AgentMetrics `json:"metrics"`
}

package usecase

import (
	"log/slog"
	"sort"
	"sync"
	"time"

	"atende-ai/internal/domain"
)

// MetricsView is the slice of the metrics collector the registry reads when
// assembling status snapshots. The registry never writes metrics beyond
// zeroing an agent's aggregate on (re-)registration.
type MetricsView interface {
	AgentMetrics(agentID string) domain.AgentMetrics
	ResetAgent(agentID string)
}

// entry bundles an agent record with its processor and routing usage view.
type entry struct {
	agent     domain.Agent
	processor domain.Processor
	usage     domain.AgentUsage
}

// Registry holds the set of registered processing units.
// Registration typically happens once at startup; lookups are read-mostly
// and never observe a partially constructed entry.
type Registry struct {
	mu      sync.RWMutex
	entries map[string]*entry
	metrics MetricsView
	logger  *slog.Logger
	now     func() time.Time
}

// NewRegistry creates an empty Registry backed by the given metrics view.
func NewRegistry(metrics MetricsView, logger *slog.Logger) *Registry {
	return &Registry{
		entries: make(map[string]*entry),
		metrics: metrics,
		logger:  logger,
		now:     time.Now,
	}
}

// Register inserts or replaces an agent. Re-registration overwrites the
// record and zeroes its counters. Fails only on an empty id.
func (r *Registry) Register(id string, capabilities []string, p domain.Processor) error {
	if id == "" {
		return domain.NewDomainError("Registry.Register", domain.ErrInvalidInput, "empty agent id")
	}

	caps := make([]string, len(capabilities))
	copy(caps, capabilities)

	r.mu.Lock()
	r.entries[id] = &entry{
		agent: domain.Agent{
			ID:           id,
			Capabilities: caps,
			Active:       true,
		},
		processor: p,
	}
	r.mu.Unlock()

	r.metrics.ResetAgent(id)
	r.logger.Info("agent registered", "agent_id", id, "capabilities", caps)
	return nil
}

// Get returns a copy of the agent record, or ErrNotFound.
func (r *Registry) Get(id string) (domain.Agent, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	e, ok := r.entries[id]
	if !ok {
		return domain.Agent{}, domain.NewDomainError("Registry.Get", domain.ErrNotFound, id)
	}
	return e.agent, nil
}

// Processor returns the processing contract for the given agent id.
func (r *Registry) Processor(id string) (domain.Processor, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	e, ok := r.entries[id]
	if !ok {
		return nil, domain.NewDomainError("Registry.Processor", domain.ErrNotFound, id)
	}
	return e.processor, nil
}

// Exists reports whether an agent id is currently registered.
func (r *Registry) Exists(id string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.entries[id]
	return ok
}

// ListActive returns the active agents sorted by id.
func (r *Registry) ListActive() []domain.Agent {
	r.mu.RLock()
	defer r.mu.RUnlock()

	agents := make([]domain.Agent, 0, len(r.entries))
	for _, e := range r.entries {
		if e.agent.Active {
			agents = append(agents, e.agent)
		}
	}
	sort.Slice(agents, func(i, j int) bool { return agents[i].ID < agents[j].ID })
	return agents
}

// ResolveCapability returns the id of an active registered agent exposing the
// capability tag. With several candidates the lowest id wins, keeping
// resolution deterministic.
func (r *Registry) ResolveCapability(cap string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	best := ""
	for id, e := range r.entries {
		if !e.agent.Active || !e.agent.HasCapability(cap) {
			continue
		}
		if best == "" || id < best {
			best = id
		}
	}
	return best, best != ""
}

// RecordUse stamps the routing usage view after a successful resolution.
func (r *Registry) RecordUse(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if e, ok := r.entries[id]; ok {
		e.usage.TotalRequests++
		e.usage.LastUsed = r.now()
	}
}

// Heartbeat stamps the agent's last heartbeat after a successful processing call.
func (r *Registry) Heartbeat(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if e, ok := r.entries[id]; ok {
		e.agent.LastHeartbeat = r.now()
	}
}

// SetActive toggles an agent's administrative active flag.
func (r *Registry) SetActive(id string, active bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.entries[id]
	if !ok {
		return domain.NewDomainError("Registry.SetActive", domain.ErrNotFound, id)
	}
	e.agent.Active = active
	return nil
}

// Status returns the agent's snapshot combined with its current metrics aggregate.
func (r *Registry) Status(id string) (domain.AgentStatus, error) {
	r.mu.RLock()
	e, ok := r.entries[id]
	if !ok {
		r.mu.RUnlock()
		return domain.AgentStatus{}, domain.NewDomainError("Registry.Status", domain.ErrNotFound, id)
	}
	status := domain.AgentStatus{
		AgentID:       e.agent.ID,
		Capabilities:  append([]string(nil), e.agent.Capabilities...),
		Active:        e.agent.Active,
		LastHeartbeat: e.agent.LastHeartbeat,
		Usage:         e.usage,
	}
	r.mu.RUnlock()

	status.Metrics = r.metrics.AgentMetrics(id)
	return status, nil
}

// StatusAll returns snapshots for every registered agent, sorted by id.
func (r *Registry) StatusAll() []domain.AgentStatus {
	r.mu.RLock()
	ids := make([]string, 0, len(r.entries))
	for id := range r.entries {
		ids = append(ids, id)
	}
	r.mu.RUnlock()

	sort.Strings(ids)
	statuses := make([]domain.AgentStatus, 0, len(ids))
	for _, id := range ids {
		if s, err := r.Status(id); err == nil {
			statuses = append(statuses, s)
		}
	}
	return statuses
}

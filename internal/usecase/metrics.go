package usecase

import (
	"log/slog"
	"sort"
	"sync"
	"time"

	"atende-ai/internal/domain"
)

// Window capacities for the rolling metrics state.
const (
	historyCapacity = 1000
	windowCapacity  = 100
	recentWindow    = 100
)

// ring is a fixed-capacity rolling window; the oldest entry is evicted first.
type ring[T any] struct {
	buf   []T
	next  int
	count int
}

func newRing[T any](capacity int) *ring[T] {
	return &ring[T]{buf: make([]T, capacity)}
}

func (r *ring[T]) push(v T) {
	r.buf[r.next] = v
	r.next = (r.next + 1) % len(r.buf)
	if r.count < len(r.buf) {
		r.count++
	}
}

// items returns the window contents, oldest first.
func (r *ring[T]) items() []T {
	out := make([]T, 0, r.count)
	start := r.next - r.count
	if start < 0 {
		start += len(r.buf)
	}
	for i := 0; i < r.count; i++ {
		out = append(out, r.buf[(start+i)%len(r.buf)])
	}
	return out
}

func (r *ring[T]) clear() {
	r.next = 0
	r.count = 0
}

// agentAggregate holds one agent's counters and rolling windows.
// Each aggregate has its own lock so concurrent dispatches for different
// agents do not serialize on a single collector-wide mutex.
type agentAggregate struct {
	mu            sync.Mutex
	total         int64
	successful    int64
	failed        int64
	responseTimes *ring[float64]
	errors        *ring[domain.ErrorRecord]
}

func newAgentAggregate() *agentAggregate {
	return &agentAggregate{
		responseTimes: newRing[float64](windowCapacity),
		errors:        newRing[domain.ErrorRecord](windowCapacity),
	}
}

// Collector owns all metrics state: a bounded global dispatch history,
// per-agent aggregates, and system-wide counters. Recording never returns an
// error to the caller.
type Collector struct {
	mu         sync.Mutex
	startedAt  time.Time
	history    *ring[domain.DispatchRecord]
	agents     map[string]*agentAggregate
	total      int64
	successful int64
	failed     int64
	logger     *slog.Logger
	now        func() time.Time
}

// NewCollector creates a Collector with uptime starting now.
func NewCollector(logger *slog.Logger) *Collector {
	c := &Collector{
		history: newRing[domain.DispatchRecord](historyCapacity),
		agents:  make(map[string]*agentAggregate),
		logger:  logger,
		now:     time.Now,
	}
	c.startedAt = c.now()
	return c
}

func (c *Collector) aggregate(agentID string) *agentAggregate {
	c.mu.Lock()
	defer c.mu.Unlock()
	agg, ok := c.agents[agentID]
	if !ok {
		agg = newAgentAggregate()
		c.agents[agentID] = agg
	}
	return agg
}

// Record folds one dispatch outcome into the rolling history and the agent's
// aggregate. Response times are windowed for successful dispatches; failures
// feed the error window instead. An empty agent id (failure before routing
// resolved) updates the system-wide state only.
func (c *Collector) Record(agentID string, success bool, responseTime time.Duration, errMsg string) {
	ts := c.now()
	ms := float64(responseTime.Microseconds()) / 1000.0

	c.mu.Lock()
	c.history.push(domain.DispatchRecord{
		Timestamp:      ts,
		AgentID:        agentID,
		Success:        success,
		ResponseTimeMs: ms,
		Error:          errMsg,
	})
	c.total++
	if success {
		c.successful++
	} else {
		c.failed++
	}
	c.mu.Unlock()

	if agentID == "" {
		return
	}

	agg := c.aggregate(agentID)
	agg.mu.Lock()
	agg.total++
	if success {
		agg.successful++
		agg.responseTimes.push(ms)
	} else {
		agg.failed++
		if errMsg != "" {
			agg.errors.push(domain.ErrorRecord{Timestamp: ts, AgentID: agentID, Error: errMsg})
		}
	}
	agg.mu.Unlock()
}

// AgentMetrics returns the current aggregate for one agent. Unknown agents
// yield a zero aggregate; success rate is 0 when no requests were recorded.
func (c *Collector) AgentMetrics(agentID string) domain.AgentMetrics {
	c.mu.Lock()
	agg, ok := c.agents[agentID]
	c.mu.Unlock()
	if !ok {
		return domain.AgentMetrics{}
	}

	agg.mu.Lock()
	defer agg.mu.Unlock()

	m := domain.AgentMetrics{
		TotalRequests:      agg.total,
		SuccessfulRequests: agg.successful,
		FailedRequests:     agg.failed,
	}
	if agg.total > 0 {
		m.SuccessRate = float64(agg.successful) / float64(agg.total)
	}
	times := agg.responseTimes.items()
	if len(times) > 0 {
		minT, maxT, sum := times[0], times[0], 0.0
		for _, t := range times {
			sum += t
			if t < minT {
				minT = t
			}
			if t > maxT {
				maxT = t
			}
		}
		m.AvgResponseTimeMs = sum / float64(len(times))
		m.MinResponseTimeMs = minT
		m.MaxResponseTimeMs = maxT
	}
	return m
}

// SystemMetrics returns the system-wide view, including the success rate over
// the most recent dispatches.
func (c *Collector) SystemMetrics() domain.SystemMetrics {
	c.mu.Lock()
	defer c.mu.Unlock()

	m := domain.SystemMetrics{
		UptimeSeconds:      c.now().Sub(c.startedAt).Seconds(),
		TotalRequests:      c.total,
		SuccessfulRequests: c.successful,
		FailedRequests:     c.failed,
	}
	if c.total > 0 {
		m.SuccessRate = float64(c.successful) / float64(c.total)
	}

	recent := c.history.items()
	if len(recent) > recentWindow {
		recent = recent[len(recent)-recentWindow:]
	}
	if len(recent) > 0 {
		ok := 0
		for _, rec := range recent {
			if rec.Success {
				ok++
			}
		}
		m.RecentSuccessRate = float64(ok) / float64(len(recent))
	}
	return m
}

// Ranking orders agents with recorded traffic by success rate descending,
// ties broken by ascending average response time.
func (c *Collector) Ranking() []domain.AgentRank {
	c.mu.Lock()
	ids := make([]string, 0, len(c.agents))
	for id := range c.agents {
		ids = append(ids, id)
	}
	c.mu.Unlock()

	ranking := make([]domain.AgentRank, 0, len(ids))
	for _, id := range ids {
		m := c.AgentMetrics(id)
		if m.TotalRequests == 0 {
			continue
		}
		ranking = append(ranking, domain.AgentRank{
			AgentID:           id,
			SuccessRate:       m.SuccessRate,
			TotalRequests:     m.TotalRequests,
			AvgResponseTimeMs: m.AvgResponseTimeMs,
			FailedRequests:    m.FailedRequests,
		})
	}

	sort.Slice(ranking, func(i, j int) bool {
		if ranking[i].SuccessRate != ranking[j].SuccessRate {
			return ranking[i].SuccessRate > ranking[j].SuccessRate
		}
		return ranking[i].AvgResponseTimeMs < ranking[j].AvgResponseTimeMs
	})
	return ranking
}

// RecentErrors returns up to limit errors merged across all agents, newest first.
func (c *Collector) RecentErrors(limit int) []domain.ErrorRecord {
	if limit <= 0 {
		limit = 50
	}

	c.mu.Lock()
	aggs := make([]*agentAggregate, 0, len(c.agents))
	for _, agg := range c.agents {
		aggs = append(aggs, agg)
	}
	c.mu.Unlock()

	var all []domain.ErrorRecord
	for _, agg := range aggs {
		agg.mu.Lock()
		all = append(all, agg.errors.items()...)
		agg.mu.Unlock()
	}

	sort.Slice(all, func(i, j int) bool { return all[i].Timestamp.After(all[j].Timestamp) })
	if len(all) > limit {
		all = all[:limit]
	}
	return all
}

// ResetAgent zeroes a single agent's aggregate. Called on (re-)registration.
func (c *Collector) ResetAgent(agentID string) {
	c.mu.Lock()
	c.agents[agentID] = newAgentAggregate()
	c.mu.Unlock()
}

// Reset clears all metrics state. Maintenance use only, never the request path.
func (c *Collector) Reset() {
	c.mu.Lock()
	c.history.clear()
	c.agents = make(map[string]*agentAggregate)
	c.total = 0
	c.successful = 0
	c.failed = 0
	c.mu.Unlock()
	c.logger.Info("metrics reset")
}

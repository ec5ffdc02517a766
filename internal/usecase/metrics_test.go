package usecase

import (
	"fmt"
	"sync"
	"testing"
	"time"
)

func TestCollectorSuccessRate(t *testing.T) {
	c := NewCollector(testLogger())
	for i := 0; i < 3; i++ {
		c.Record("financial", true, 10*time.Millisecond, "")
	}
	c.Record("financial", false, 10*time.Millisecond, "timeout")

	m := c.AgentMetrics("financial")
	if m.TotalRequests != 4 || m.SuccessfulRequests != 3 || m.FailedRequests != 1 {
		t.Fatalf("counters = %+v", m)
	}
	if m.SuccessRate != 0.75 {
		t.Errorf("SuccessRate = %v, want 0.75", m.SuccessRate)
	}
}

func TestCollectorZeroRequests(t *testing.T) {
	c := NewCollector(testLogger())
	m := c.AgentMetrics("nobody")
	if m.SuccessRate != 0 || m.AvgResponseTimeMs != 0 {
		t.Errorf("expected zero aggregate, got %+v", m)
	}
}

func TestCollectorResponseTimeWindow(t *testing.T) {
	c := NewCollector(testLogger())
	c.Record("a", true, 10*time.Millisecond, "")
	c.Record("a", true, 30*time.Millisecond, "")
	c.Record("a", true, 20*time.Millisecond, "")

	m := c.AgentMetrics("a")
	if m.MinResponseTimeMs != 10 {
		t.Errorf("Min = %v, want 10", m.MinResponseTimeMs)
	}
	if m.MaxResponseTimeMs != 30 {
		t.Errorf("Max = %v, want 30", m.MaxResponseTimeMs)
	}
	if m.AvgResponseTimeMs != 20 {
		t.Errorf("Avg = %v, want 20", m.AvgResponseTimeMs)
	}
}

func TestCollectorWindowEviction(t *testing.T) {
	c := NewCollector(testLogger())
	// Overfill the window; only the newest windowCapacity entries remain.
	c.Record("a", true, time.Duration(999)*time.Millisecond, "")
	for i := 0; i < windowCapacity; i++ {
		c.Record("a", true, 10*time.Millisecond, "")
	}
	m := c.AgentMetrics("a")
	if m.MaxResponseTimeMs != 10 {
		t.Errorf("Max = %v, want 10 (oldest entry evicted)", m.MaxResponseTimeMs)
	}
}

func TestCollectorRankingOrder(t *testing.T) {
	c := NewCollector(testLogger())
	// fast: 100% success, 10ms avg. slow: 100% success, 50ms avg.
	// flaky: 50% success.
	c.Record("fast", true, 10*time.Millisecond, "")
	c.Record("slow", true, 50*time.Millisecond, "")
	c.Record("flaky", true, 5*time.Millisecond, "")
	c.Record("flaky", false, 5*time.Millisecond, "err")

	ranking := c.Ranking()
	if len(ranking) != 3 {
		t.Fatalf("len(ranking) = %d, want 3", len(ranking))
	}
	got := []string{ranking[0].AgentID, ranking[1].AgentID, ranking[2].AgentID}
	want := []string{"fast", "slow", "flaky"}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("ranking = %v, want %v", got, want)
		}
	}
}

func TestCollectorRecentErrorsNewestFirst(t *testing.T) {
	c := NewCollector(testLogger())
	base := time.Unix(1700000000, 0)
	i := 0
	c.now = func() time.Time { i++; return base.Add(time.Duration(i) * time.Second) }

	c.Record("a", false, time.Millisecond, "first")
	c.Record("b", false, time.Millisecond, "second")
	c.Record("a", false, time.Millisecond, "third")

	errs := c.RecentErrors(2)
	if len(errs) != 2 {
		t.Fatalf("len(errs) = %d, want 2", len(errs))
	}
	if errs[0].Error != "third" || errs[1].Error != "second" {
		t.Errorf("errs = %q,%q; want third,second", errs[0].Error, errs[1].Error)
	}
}

func TestCollectorSystemMetrics(t *testing.T) {
	c := NewCollector(testLogger())
	for i := 0; i < 8; i++ {
		c.Record("a", true, time.Millisecond, "")
	}
	c.Record("a", false, time.Millisecond, "boom")
	c.Record("", false, time.Millisecond, "no agent available")

	m := c.SystemMetrics()
	if m.TotalRequests != 10 || m.SuccessfulRequests != 8 || m.FailedRequests != 2 {
		t.Fatalf("system counters = %+v", m)
	}
	if m.SuccessRate != 0.8 {
		t.Errorf("SuccessRate = %v, want 0.8", m.SuccessRate)
	}
	if m.RecentSuccessRate != 0.8 {
		t.Errorf("RecentSuccessRate = %v, want 0.8", m.RecentSuccessRate)
	}
	if m.UptimeSeconds < 0 {
		t.Errorf("UptimeSeconds = %v", m.UptimeSeconds)
	}
}

func TestCollectorReset(t *testing.T) {
	c := NewCollector(testLogger())
	c.Record("a", true, time.Millisecond, "")
	c.Record("a", false, time.Millisecond, "x")
	c.Reset()

	if m := c.SystemMetrics(); m.TotalRequests != 0 {
		t.Errorf("TotalRequests after reset = %d, want 0", m.TotalRequests)
	}
	if m := c.AgentMetrics("a"); m.TotalRequests != 0 {
		t.Errorf("agent TotalRequests after reset = %d, want 0", m.TotalRequests)
	}
	if errs := c.RecentErrors(10); len(errs) != 0 {
		t.Errorf("len(errs) after reset = %d, want 0", len(errs))
	}
}

func TestCollectorConcurrentRecord(t *testing.T) {
	c := NewCollector(testLogger())
	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			agent := fmt.Sprintf("agent-%d", g%2)
			for i := 0; i < 100; i++ {
				c.Record(agent, i%10 != 0, time.Millisecond, "e")
			}
		}(g)
	}
	wg.Wait()

	m := c.SystemMetrics()
	if m.TotalRequests != 800 {
		t.Errorf("TotalRequests = %d, want 800", m.TotalRequests)
	}
	a := c.AgentMetrics("agent-0")
	b := c.AgentMetrics("agent-1")
	if a.TotalRequests+b.TotalRequests != 800 {
		t.Errorf("per-agent totals = %d+%d, want 800", a.TotalRequests, b.TotalRequests)
	}
}

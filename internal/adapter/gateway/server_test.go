package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"atende-ai/internal/adapter/store"
	"atende-ai/internal/domain"
	"atende-ai/internal/usecase"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type echoProcessor struct{}

func (echoProcessor) Process(_ context.Context, req domain.Request, _ []domain.Message) (string, error) {
	return req.Content, nil
}

// newTestServer starts a gateway on an ephemeral port with seeded agents and
// traffic, returning its base URL.
func newTestServer(t *testing.T, authToken string) (string, Deps) {
	t.Helper()
	logger := testLogger()
	collector := usecase.NewCollector(logger)
	registry := usecase.NewRegistry(collector, logger)
	engine := usecase.NewEngine(registry, logger)
	sessions := store.NewMemoryStore(time.Hour, 0, logger)

	for _, id := range []string{"customer_service", "technical_support", "financial"} {
		require.NoError(t, registry.Register(id, []string{id}, echoProcessor{}))
	}
	collector.Record("financial", true, 10*time.Millisecond, "")
	collector.Record("financial", false, 10*time.Millisecond, "boom")

	deps := Deps{Registry: registry, Engine: engine, Collector: collector, Sessions: sessions}
	srv := NewServer(deps, "127.0.0.1:0", authToken, logger)

	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, srv.Start(ctx))
	t.Cleanup(func() {
		cancel()
		srv.Stop(context.Background())
	})
	return "http://" + srv.BoundAddr(), deps
}

func doRequest(t *testing.T, method, url, token, body string) (*http.Response, []byte) {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req, err := http.NewRequest(method, url, reader)
	require.NoError(t, err)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, data
}

func TestHealthOpenWithoutAuth(t *testing.T) {
	base, _ := newTestServer(t, "secret")

	resp, body := doRequest(t, http.MethodGet, base+"/health", "", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.JSONEq(t, `{"status":"ok"}`, string(body))
}

func TestAdminRequiresToken(t *testing.T) {
	base, _ := newTestServer(t, "secret")

	resp, _ := doRequest(t, http.MethodGet, base+"/api/v1/status", "", "")
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp, _ = doRequest(t, http.MethodGet, base+"/api/v1/status", "wrong", "")
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp, _ = doRequest(t, http.MethodGet, base+"/api/v1/status", "secret", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestStatusSnapshot(t *testing.T) {
	base, _ := newTestServer(t, "")

	resp, body := doRequest(t, http.MethodGet, base+"/api/v1/status", "", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var status StatusResponse
	require.NoError(t, json.Unmarshal(body, &status))
	assert.Equal(t, "atende-ai", status.Service)
	assert.Equal(t, int64(2), status.System.TotalRequests)
	assert.Len(t, status.Agents, 3)
	require.Len(t, status.Ranking, 1)
	assert.Equal(t, "financial", status.Ranking[0].AgentID)
}

func TestAgentDetail(t *testing.T) {
	base, _ := newTestServer(t, "")

	resp, body := doRequest(t, http.MethodGet, base+"/api/v1/agents/financial", "", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var status domain.AgentStatus
	require.NoError(t, json.Unmarshal(body, &status))
	assert.Equal(t, "financial", status.AgentID)
	assert.Equal(t, int64(2), status.Metrics.TotalRequests)
	assert.Equal(t, 0.5, status.Metrics.SuccessRate)

	resp, _ = doRequest(t, http.MethodGet, base+"/api/v1/agents/nope", "", "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestRoutingRulesLifecycle(t *testing.T) {
	base, deps := newTestServer(t, "")

	resp, _ := doRequest(t, http.MethodPost, base+"/api/v1/routing/rules", "",
		`{"keyword":"urgente","agent_id":"technical_support"}`)
	assert.Equal(t, http.StatusCreated, resp.StatusCode)

	resp, body := doRequest(t, http.MethodGet, base+"/api/v1/routing/rules", "", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var rules []RuleRequest
	require.NoError(t, json.Unmarshal(body, &rules))
	require.Len(t, rules, 1)
	assert.Equal(t, "urgente", rules[0].Keyword)

	agentID, err := deps.Engine.Route("caso urgente", "text")
	require.NoError(t, err)
	assert.Equal(t, "technical_support", agentID)

	resp, _ = doRequest(t, http.MethodDelete, base+"/api/v1/routing/rules/urgente", "", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, _ = doRequest(t, http.MethodDelete, base+"/api/v1/routing/rules/urgente", "", "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestRoutingRuleRejectsUnknownAgent(t *testing.T) {
	base, _ := newTestServer(t, "")

	resp, _ := doRequest(t, http.MethodPost, base+"/api/v1/routing/rules", "",
		`{"keyword":"vip","agent_id":"missing"}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestMetricsEndpoints(t *testing.T) {
	base, _ := newTestServer(t, "")

	resp, body := doRequest(t, http.MethodGet, base+"/api/v1/metrics", "", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var system domain.SystemMetrics
	require.NoError(t, json.Unmarshal(body, &system))
	assert.Equal(t, int64(1), system.FailedRequests)

	resp, body = doRequest(t, http.MethodGet, base+"/api/v1/metrics/errors?limit=5", "", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var errs []domain.ErrorRecord
	require.NoError(t, json.Unmarshal(body, &errs))
	require.Len(t, errs, 1)
	assert.Equal(t, "boom", errs[0].Error)

	resp, _ = doRequest(t, http.MethodGet, base+"/api/v1/metrics/errors?limit=bad", "", "")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestMetricsReset(t *testing.T) {
	base, deps := newTestServer(t, "")

	resp, _ := doRequest(t, http.MethodPost, base+"/api/v1/metrics/reset", "", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, int64(0), deps.Collector.SystemMetrics().TotalRequests)

	resp, _ = doRequest(t, http.MethodGet, base+"/api/v1/metrics/reset", "", "")
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
}

func TestSessionDelete(t *testing.T) {
	base, deps := newTestServer(t, "")

	_, err := deps.Sessions.GetOrCreate(context.Background(), "s1", "u1")
	require.NoError(t, err)

	resp, _ := doRequest(t, http.MethodDelete, base+"/api/v1/sessions/s1", "", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, _ = doRequest(t, http.MethodDelete, base+"/api/v1/sessions/s1", "", "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestPrometheusExposition(t *testing.T) {
	base, _ := newTestServer(t, "secret")

	// Prometheus endpoint stays open for scrapers.
	resp, body := doRequest(t, http.MethodGet, base+"/metrics", "", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)

	out := string(body)
	assert.Contains(t, out, "atendeai_requests_total 2")
	assert.Contains(t, out, "atendeai_requests_failed_total 1")
	assert.Contains(t, out, fmt.Sprintf("atendeai_agent_requests_total{agent=%q} 2", "financial"))
	assert.Contains(t, out, "go_goroutines")
}

func TestExtraRouteMounted(t *testing.T) {
	logger := testLogger()
	collector := usecase.NewCollector(logger)
	registry := usecase.NewRegistry(collector, logger)
	deps := Deps{
		Registry:  registry,
		Engine:    usecase.NewEngine(registry, logger),
		Collector: collector,
		Sessions:  store.NewMemoryStore(time.Hour, 0, logger),
	}
	srv := NewServer(deps, "127.0.0.1:0", "", logger)
	srv.RegisterHTTPRoute("/webhook/chatwoot", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusAccepted)
	})

	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, srv.Start(ctx))
	t.Cleanup(func() {
		cancel()
		srv.Stop(context.Background())
	})

	resp, _ := doRequest(t, http.MethodPost, "http://"+srv.BoundAddr()+"/webhook/chatwoot", "", "{}")
	assert.Equal(t, http.StatusAccepted, resp.StatusCode)
}

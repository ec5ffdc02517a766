// Package gateway exposes the HTTP admin API: system and agent status,
// metrics, routing rule management, session administration, and the
// Prometheus endpoint.
package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"atende-ai/internal/domain"
	"atende-ai/internal/usecase"
)

// Deps are the use-case dependencies the gateway serves.
type Deps struct {
	Registry  *usecase.Registry
	Engine    *usecase.Engine
	Collector *usecase.Collector
	Sessions  domain.SessionStore
}

type httpRoute struct {
	pattern string
	handler http.HandlerFunc
}

// Server is the HTTP gateway. Admin routes are bearer-token protected when a
// token is configured; /health, /metrics and extra routes are open.
type Server struct {
	deps       Deps
	auth       *BearerAuth
	logger     *slog.Logger
	addr       string
	httpSrv    *http.Server
	boundAddr  string
	httpRoutes []httpRoute
}

// NewServer creates a gateway server. An empty authToken disables admin auth.
func NewServer(deps Deps, addr, authToken string, logger *slog.Logger) *Server {
	return &Server{
		deps:   deps,
		auth:   NewBearerAuth(authToken),
		logger: logger,
		addr:   addr,
	}
}

// RegisterHTTPRoute adds an HTTP handler to the gateway's mux.
// Must be called before Start().
func (s *Server) RegisterHTTPRoute(pattern string, handler http.HandlerFunc) {
	s.httpRoutes = append(s.httpRoutes, httpRoute{pattern: pattern, handler: handler})
}

// Start begins serving. Non-blocking; the server shuts down when ctx is
// cancelled.
func (s *Server) Start(ctx context.Context) error {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/metrics", s.handlePrometheus)
	mux.HandleFunc("/api/v1/status", s.auth.Require(s.handleStatus))
	mux.HandleFunc("/api/v1/agents/", s.auth.Require(s.handleAgent))
	mux.HandleFunc("/api/v1/metrics", s.auth.Require(s.handleMetrics))
	mux.HandleFunc("/api/v1/metrics/ranking", s.auth.Require(s.handleRanking))
	mux.HandleFunc("/api/v1/metrics/errors", s.auth.Require(s.handleErrors))
	mux.HandleFunc("/api/v1/metrics/reset", s.auth.Require(s.handleMetricsReset))
	mux.HandleFunc("/api/v1/routing/rules", s.auth.Require(s.handleRules))
	mux.HandleFunc("/api/v1/routing/rules/", s.auth.Require(s.handleRuleDelete))
	mux.HandleFunc("/api/v1/sessions/", s.auth.Require(s.handleSession))
	for _, route := range s.httpRoutes {
		mux.HandleFunc(route.pattern, route.handler)
	}

	listener, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("gateway listen: %w", err)
	}
	s.boundAddr = listener.Addr().String()

	s.httpSrv = &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
	}

	s.logger.Info("gateway started", "addr", s.boundAddr)

	go func() {
		<-ctx.Done()
		s.Stop(context.Background())
	}()
	go func() {
		if err := s.httpSrv.Serve(listener); err != nil && err != http.ErrServerClosed {
			s.logger.Error("gateway server error", "error", err)
		}
	}()
	return nil
}

// Stop gracefully shuts down the server.
func (s *Server) Stop(ctx context.Context) error {
	if s.httpSrv == nil {
		return nil
	}
	return s.httpSrv.Shutdown(ctx)
}

// BoundAddr returns the actual listen address after Start.
func (s *Server) BoundAddr() string { return s.boundAddr }

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

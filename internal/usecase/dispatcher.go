package usecase

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	"atende-ai/internal/domain"
)

// FallbackMessage is the user-safe reply returned for any internal failure.
// Internal detail is only available through the metrics error feed.
const FallbackMessage = "Desculpe, ocorreu um erro ao processar sua solicitação. Por favor, tente novamente."

// dispatchState tracks the per-request lifecycle.
type dispatchState string

const (
	stateReceived        dispatchState = "RECEIVED"
	stateSessionResolved dispatchState = "SESSION_RESOLVED"
	stateRouted          dispatchState = "ROUTED"
	stateProcessed       dispatchState = "PROCESSED"
	stateMetricsRecorded dispatchState = "METRICS_RECORDED"
	stateResponded       dispatchState = "RESPONDED"
	stateFailed          dispatchState = "FAILED"
)

// Dispatcher composes the registry, routing engine, session store and metrics
// collector into one end-to-end dispatch cycle. It is safe for concurrent use,
// one goroutine per inbound request.
type Dispatcher struct {
	registry  *Registry
	engine    *Engine
	store     domain.SessionStore
	collector *Collector
	logger    *slog.Logger
	now       func() time.Time
}

// NewDispatcher creates a Dispatcher with injected dependencies.
func NewDispatcher(registry *Registry, engine *Engine, store domain.SessionStore, collector *Collector, logger *slog.Logger) *Dispatcher {
	return &Dispatcher{
		registry:  registry,
		engine:    engine,
		store:     store,
		collector: collector,
		logger:    logger,
		now:       time.Now,
	}
}

// newDispatchID uses the package-level locked entropy so concurrent
// dispatches in the same millisecond still get distinct ids.
func newDispatchID(t time.Time) string {
	return ulid.MustNew(ulid.Timestamp(t), ulid.DefaultEntropy()).String()
}

// Dispatch runs one request through the full cycle:
// RECEIVED -> SESSION_RESOLVED -> ROUTED -> PROCESSED -> METRICS_RECORDED -> RESPONDED.
// Every failure short-circuits to FAILED, records a failed metrics entry, and
// returns the user-safe fallback instead of propagating the internal error.
func (d *Dispatcher) Dispatch(ctx context.Context, req domain.Request) *domain.Response {
	start := d.now()
	state := stateReceived
	log := d.logger.With("dispatch_id", newDispatchID(start), "session_id", req.SessionID, "user_id", req.UserID)

	if req.MessageType == "" {
		req.MessageType = "text"
	}
	if req.Timestamp.IsZero() {
		req.Timestamp = start
	}

	if strings.TrimSpace(req.Content) == "" || req.SessionID == "" {
		err := domain.NewDomainError("Dispatcher.Dispatch", domain.ErrInvalidInput, "missing content or session id")
		return d.fail(log, state, "", start, err)
	}

	// Session resolution. A store outage degrades to a non-persistent session
	// for this single request instead of aborting.
	sess, err := d.store.GetOrCreate(ctx, req.SessionID, req.UserID)
	ephemeral := false
	if err != nil {
		log.Warn("session store unavailable, degrading to ephemeral session", "error", err)
		sess = domain.NewSession(req.SessionID, req.UserID, start)
		ephemeral = true
	}
	state = stateSessionResolved

	agentID, err := d.engine.Route(req.Content, req.MessageType)
	if err != nil {
		return d.fail(log, state, "", start, err)
	}
	state = stateRouted

	proc, err := d.registry.Processor(agentID)
	if err != nil {
		return d.fail(log, state, agentID, start, err)
	}

	history := append([]domain.Message(nil), sess.History...)
	if !ephemeral {
		d.appendTurn(ctx, log, req.SessionID, req.UserID, domain.RoleUser, req.Content)
	}

	text, err := proc.Process(ctx, req, history)
	if err != nil {
		return d.fail(log, state, agentID, start, domain.WrapOp("process", err))
	}
	state = stateProcessed
	d.registry.Heartbeat(agentID)

	if !ephemeral {
		if err := d.store.SetActiveAgent(ctx, req.SessionID, agentID); err != nil {
			log.Warn("set active agent failed", "error", err)
		}
		d.appendTurn(ctx, log, req.SessionID, req.UserID, domain.RoleAssistant, text)
	}

	d.collector.Record(agentID, true, d.now().Sub(start), "")
	state = stateMetricsRecorded

	resp := &domain.Response{
		AgentID:          agentID,
		UserID:           req.UserID,
		SessionID:        req.SessionID,
		Response:         text,
		Timestamp:        d.now(),
		RequiresFollowup: false,
	}
	state = stateResponded
	log.Info("dispatch completed", "agent_id", agentID, "state", string(state), "elapsed_ms", d.now().Sub(start).Milliseconds())
	return resp
}

// appendTurn persists a conversation turn, re-creating the session once when
// it expired between read and write. Persistence problems never fail the
// request.
func (d *Dispatcher) appendTurn(ctx context.Context, log *slog.Logger, sessionID, userID, role, content string) {
	err := d.store.AppendTurn(ctx, sessionID, role, content)
	if err == nil {
		return
	}
	if errors.Is(err, domain.ErrSessionExpired) || errors.Is(err, domain.ErrSessionNotFound) {
		if _, cerr := d.store.GetOrCreate(ctx, sessionID, userID); cerr == nil {
			err = d.store.AppendTurn(ctx, sessionID, role, content)
		}
	}
	if err != nil {
		log.Warn("append turn failed", "role", role, "error", err)
	}
}

// fail records the failed dispatch and converts the internal error into the
// user-safe fallback response.
func (d *Dispatcher) fail(log *slog.Logger, reached dispatchState, agentID string, start time.Time, err error) *domain.Response {
	d.collector.Record(agentID, false, d.now().Sub(start), err.Error())
	log.Error("dispatch failed",
		"agent_id", agentID,
		"reached", string(reached),
		"state", string(stateFailed),
		"code", string(domain.ErrorCodeOf(err)),
		"error", err,
	)
	return &domain.Response{
		AgentID:   agentID,
		Error:     FallbackMessage,
		Timestamp: d.now(),
	}
}

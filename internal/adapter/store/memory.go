// Package store provides session store implementations with sliding TTL
// expiry: an in-process map store for single-node deployments and tests, and
// a Redis-backed store for clustered ones.
package store

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"atende-ai/internal/domain"
)

type memEntry struct {
	sess      *domain.Session
	expiresAt time.Time
}

// MemoryStore is an in-process SessionStore. Expiry is lazy: entries are
// checked on access and swept by Reap. All methods are safe for concurrent
// use; the create-if-absent in GetOrCreate is atomic under the store lock.
type MemoryStore struct {
	mu         sync.Mutex
	entries    map[string]*memEntry
	ttl        time.Duration
	maxHistory int
	logger     *slog.Logger
	now        func() time.Time
}

// NewMemoryStore creates a MemoryStore. Zero ttl and maxHistory fall back to
// the domain defaults.
func NewMemoryStore(ttl time.Duration, maxHistory int, logger *slog.Logger) *MemoryStore {
	if ttl <= 0 {
		ttl = domain.DefaultSessionTTL
	}
	if maxHistory <= 0 {
		maxHistory = domain.DefaultMaxHistory
	}
	return &MemoryStore{
		entries:    make(map[string]*memEntry),
		ttl:        ttl,
		maxHistory: maxHistory,
		logger:     logger,
		now:        time.Now,
	}
}

// live returns the entry for sessionID if present and unexpired, deleting it
// when lapsed. Caller holds s.mu.
func (s *MemoryStore) live(sessionID string, now time.Time) (*memEntry, bool) {
	e, ok := s.entries[sessionID]
	if !ok {
		return nil, false
	}
	if now.After(e.expiresAt) {
		delete(s.entries, sessionID)
		return nil, true
	}
	return e, true
}

func cloneSession(sess *domain.Session) *domain.Session {
	out := *sess
	out.History = append([]domain.Message(nil), sess.History...)
	out.Context = make(map[string]any, len(sess.Context))
	for k, v := range sess.Context {
		out.Context[k] = v
	}
	return &out
}

// GetOrCreate implements domain.SessionStore.
func (s *MemoryStore) GetOrCreate(_ context.Context, sessionID, userID string) (*domain.Session, error) {
	if sessionID == "" {
		return nil, domain.NewDomainError("MemoryStore.GetOrCreate", domain.ErrInvalidInput, "empty session id")
	}
	now := s.now()

	s.mu.Lock()
	defer s.mu.Unlock()

	if e, _ := s.live(sessionID, now); e != nil {
		e.expiresAt = now.Add(s.ttl)
		return cloneSession(e.sess), nil
	}

	sess := domain.NewSession(sessionID, userID, now)
	s.entries[sessionID] = &memEntry{sess: sess, expiresAt: now.Add(s.ttl)}
	s.logger.Debug("session created", "session_id", sessionID, "user_id", userID)
	return cloneSession(sess), nil
}

// AppendTurn implements domain.SessionStore.
func (s *MemoryStore) AppendTurn(_ context.Context, sessionID, role, content string) error {
	now := s.now()

	s.mu.Lock()
	defer s.mu.Unlock()

	e, existed := s.live(sessionID, now)
	if e == nil {
		if existed {
			return domain.NewDomainError("MemoryStore.AppendTurn", domain.ErrSessionExpired, sessionID)
		}
		return domain.NewDomainError("MemoryStore.AppendTurn", domain.ErrSessionNotFound, sessionID)
	}
	e.sess.AppendTurn(role, content, now, s.maxHistory)
	e.expiresAt = now.Add(s.ttl)
	return nil
}

// SetActiveAgent implements domain.SessionStore.
func (s *MemoryStore) SetActiveAgent(_ context.Context, sessionID, agentID string) error {
	now := s.now()

	s.mu.Lock()
	defer s.mu.Unlock()

	e, existed := s.live(sessionID, now)
	if e == nil {
		if existed {
			return domain.NewDomainError("MemoryStore.SetActiveAgent", domain.ErrSessionExpired, sessionID)
		}
		return domain.NewDomainError("MemoryStore.SetActiveAgent", domain.ErrSessionNotFound, sessionID)
	}
	e.sess.ActiveAgent = agentID
	if now.After(e.sess.LastActivity) {
		e.sess.LastActivity = now
	}
	e.expiresAt = now.Add(s.ttl)
	return nil
}

// Exists implements domain.SessionStore. It does not refresh the TTL.
func (s *MemoryStore) Exists(_ context.Context, sessionID string) (bool, error) {
	now := s.now()

	s.mu.Lock()
	defer s.mu.Unlock()

	e, _ := s.live(sessionID, now)
	return e != nil, nil
}

// Delete implements domain.SessionStore.
func (s *MemoryStore) Delete(_ context.Context, sessionID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, ok := s.entries[sessionID]
	delete(s.entries, sessionID)
	return ok, nil
}

// Len returns the number of stored entries, expired ones included.
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// Reap removes all expired entries and returns how many were removed. Meant
// to run on a periodic schedule.
func (s *MemoryStore) Reap() int {
	now := s.now()

	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for id, e := range s.entries {
		if now.After(e.expiresAt) {
			delete(s.entries, id)
			removed++
		}
	}
	if removed > 0 {
		s.logger.Debug("expired sessions reaped", "count", removed)
	}
	return removed
}

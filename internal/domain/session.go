package domain

import (
	"context"
	"time"
)

// DefaultSessionTTL is the idle expiry window for session records.
const DefaultSessionTTL = 3600 * time.Second

// DefaultMaxHistory caps the conversation history kept per session.
const DefaultMaxHistory = 50

// Session is the per-conversation state record. Its storage representation
// belongs to the SessionStore; callers mutate it only through store contracts.
type Session struct {
	SessionID    string         `json:"session_id"`
	UserID       string         `json:"user_id"`
	CreatedAt    time.Time      `json:"created_at"`
	LastActivity time.Time      `json:"last_activity"`
	ActiveAgent  string         `json:"active_agent,omitempty"`
	Context      map[string]any `json:"context"`
	History      []Message      `json:"conversation_history"`
}

// NewSession creates an empty session record with TTL start at now.
func NewSession(sessionID, userID string, now time.Time) *Session {
	return &Session{
		SessionID:    sessionID,
		UserID:       userID,
		CreatedAt:    now,
		LastActivity: now,
		Context:      make(map[string]any),
		History:      make([]Message, 0),
	}
}

// AppendTurn appends a role-tagged turn, advances LastActivity, and trims the
// history to maxHistory entries (oldest dropped first).
func (s *Session) AppendTurn(role, content string, now time.Time, maxHistory int) {
	s.History = append(s.History, Message{Role: role, Content: content, Timestamp: now})
	if maxHistory > 0 && len(s.History) > maxHistory {
		s.History = s.History[len(s.History)-maxHistory:]
	}
	if now.After(s.LastActivity) {
		s.LastActivity = now
	}
}

// SessionStore is the conversation session store with sliding TTL expiry.
// Every successful read or write resets the idle timer to the full TTL.
// Implementations must be safe for concurrent use, and GetOrCreate must use
// an atomic create-if-absent primitive so that concurrent first contact for
// the same id yields exactly one record.
type SessionStore interface {
	// GetOrCreate returns the live session, refreshing its TTL, or atomically
	// creates a new one.
	GetOrCreate(ctx context.Context, sessionID, userID string) (*Session, error)
	// AppendTurn appends a conversation turn and refreshes the TTL. Returns
	// ErrSessionExpired when the session lapsed between read and write.
	AppendTurn(ctx context.Context, sessionID, role, content string) error
	// SetActiveAgent records the agent bound to the session.
	SetActiveAgent(ctx context.Context, sessionID, agentID string) error
	// Exists reports whether a live session exists (no TTL refresh).
	Exists(ctx context.Context, sessionID string) (bool, error)
	// Delete removes the session. Returns true when a record was removed.
	Delete(ctx context.Context, sessionID string) (bool, error)
}

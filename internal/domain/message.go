package domain

import (
	"context"
	"time"
)

// Role constants for conversation turns.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message represents a single role-tagged turn in a conversation.
type Message struct {
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp,omitempty"`
}

// Request is a normalized inbound conversational request.
type Request struct {
	Content     string    `json:"content"`
	UserID      string    `json:"user_id"`
	SessionID   string    `json:"session_id"`
	MessageType string    `json:"message_type"` // defaults to "text"
	Timestamp   time.Time `json:"timestamp,omitempty"`
}

// Response is the result of one dispatch cycle.
// On failure, Error carries the user-safe message and Response is empty.
type Response struct {
	AgentID          string    `json:"agent_id"`
	UserID           string    `json:"user_id,omitempty"`
	SessionID        string    `json:"session_id,omitempty"`
	Response         string    `json:"response,omitempty"`
	Error            string    `json:"error,omitempty"`
	Timestamp        time.Time `json:"timestamp"`
	RequiresFollowup bool      `json:"requires_followup"`
}

// RequestHandler is the callback a channel invokes for each inbound request.
// The returned response is delivered back on the same conversation.
type RequestHandler func(ctx context.Context, req Request) (*Response, error)

// ChatRequest is sent to an LLM provider.
type ChatRequest struct {
	Model       string    `json:"model"`
	Messages    []Message `json:"messages"`
	MaxTokens   int       `json:"max_tokens,omitempty"`
	Temperature float64   `json:"temperature,omitempty"`
}

// ChatResponse is returned from an LLM provider.
type ChatResponse struct {
	ID        string    `json:"id"`
	Model     string    `json:"model"`
	Message   Message   `json:"message"`
	Usage     Usage     `json:"usage"`
	CreatedAt time.Time `json:"created_at"`
}

// Usage tracks token consumption.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// LLMProvider is the external generative capability. Implementations must be
// safe for concurrent use.
type LLMProvider interface {
	Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error)
	Name() string
}

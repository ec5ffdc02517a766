// Package channel integrates inbound messaging platforms. The Chatwoot
// channel receives conversation webhooks and replies through the Chatwoot
// REST API.
package channel

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"atende-ai/internal/domain"
	"atende-ai/internal/infra/config"
)

const maxWebhookBody = 1 * 1024 * 1024 // 1 MB

// ChatwootChannel bridges Chatwoot conversations to the dispatch handler.
// Inbound messages arrive on the webhook endpoint; replies go out through
// the inbox contacts API, paced by a rate limiter.
type ChatwootChannel struct {
	baseURL  string
	inboxID  int
	apiToken string
	handler  domain.RequestHandler
	limiter  *rate.Limiter
	client   *http.Client
	logger   *slog.Logger
}

// NewChatwootChannel creates the channel. The handler is bound later via
// SetHandler, before the webhook endpoint is mounted.
func NewChatwootChannel(cfg config.ChatwootConfig, logger *slog.Logger) *ChatwootChannel {
	limit := cfg.RateLimit
	if limit <= 0 {
		limit = 5
	}
	burst := cfg.RateBurst
	if burst <= 0 {
		burst = 10
	}
	return &ChatwootChannel{
		baseURL:  strings.TrimRight(cfg.BaseURL, "/"),
		inboxID:  cfg.InboxID,
		apiToken: cfg.APIToken,
		limiter:  rate.NewLimiter(rate.Limit(limit), burst),
		client:   &http.Client{Timeout: 30 * time.Second},
		logger:   logger,
	}
}

// SetHandler binds the dispatch handler invoked for each inbound message.
func (c *ChatwootChannel) SetHandler(handler domain.RequestHandler) {
	c.handler = handler
}

// --- Chatwoot webhook wire types ---

type webhookPayload struct {
	Event   string         `json:"event"`
	Message webhookMessage `json:"message"`
}

type webhookMessage struct {
	Content   string        `json:"content"`
	CreatedAt int64         `json:"created_at"`
	Sender    webhookSender `json:"sender"`
}

type webhookSender struct {
	Identifier string `json:"identifier"`
}

// HandleWebhook is the POST endpoint receiving Chatwoot conversation events.
// The contact identifier doubles as user and session id, so each contact
// keeps one continuous conversation.
func (c *ChatwootChannel) HandleWebhook(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, `{"error":"method not allowed"}`, http.StatusMethodNotAllowed)
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
	if err != nil {
		http.Error(w, `{"error":"read body"}`, http.StatusBadRequest)
		return
	}

	var payload webhookPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		http.Error(w, `{"error":"invalid payload"}`, http.StatusBadRequest)
		return
	}

	content := payload.Message.Content
	contact := payload.Message.Sender.Identifier
	if content == "" || contact == "" {
		c.logger.Warn("chatwoot webhook missing content or contact identifier")
		http.Error(w, `{"error":"missing content or sender"}`, http.StatusBadRequest)
		return
	}

	req := domain.Request{
		Content:     content,
		UserID:      contact,
		SessionID:   contact,
		MessageType: "text",
	}
	if payload.Message.CreatedAt > 0 {
		req.Timestamp = time.Unix(payload.Message.CreatedAt, 0)
	}

	resp, err := c.handler(r.Context(), req)
	if err != nil || resp == nil {
		c.logger.Error("chatwoot message handling failed", "contact", contact, "error", err)
		http.Error(w, `{"error":"internal error"}`, http.StatusInternalServerError)
		return
	}

	reply := resp.Response
	if resp.Error != "" {
		reply = resp.Error
	}
	if err := c.Send(r.Context(), contact, reply); err != nil {
		c.logger.Error("chatwoot reply delivery failed", "contact", contact, "error", err)
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	fmt.Fprint(w, `{"status":"success"}`)
}

// Send delivers a message to a contact through the Chatwoot inbox API.
func (c *ChatwootChannel) Send(ctx context.Context, contactIdentifier, message string) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limit wait: %w", err)
	}

	payload, err := json.Marshal(map[string]string{
		"source_id": contactIdentifier,
		"body":      message,
	})
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}

	url := fmt.Sprintf("%s/api/v1/inboxes/%d/contacts", c.baseURL, c.inboxID)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.apiToken)

	httpResp, err := c.client.Do(httpReq)
	if err != nil {
		return fmt.Errorf("http request: %w", err)
	}
	defer httpResp.Body.Close()
	io.Copy(io.Discard, io.LimitReader(httpResp.Body, 4096))

	if httpResp.StatusCode < 200 || httpResp.StatusCode >= 300 {
		return fmt.Errorf("%w: chatwoot API status %d", domain.ErrProviderError, httpResp.StatusCode)
	}

	c.logger.Debug("chatwoot message sent", "contact", contactIdentifier)
	return nil
}

package usecase

import (
	"log/slog"
	"strings"
	"sync"

	"atende-ai/internal/domain"
)

// keywordClass binds a fixed keyword set to a capability tag. Classes are
// evaluated in declaration order; the first class with a matching keyword wins.
type keywordClass struct {
	capability string
	keywords   []string
}

// fixedClasses is the built-in classification table. Financial keywords take
// priority over technical ones; content matching neither class routes to the
// default capability.
var fixedClasses = []keywordClass{
	{
		capability: domain.CapFinancial,
		keywords: []string{
			"pagamento", "paguei", "fatura", "boleto", "reembolso",
			"devolução", "desconto", "promoção", "financeiro",
		},
	},
	{
		capability: domain.CapTechnicalSupport,
		keywords: []string{
			"erro", "não funciona", "problema", "instalação", "instalar",
			"lento", "demora", "técnico", "acesso",
		},
	},
}

// Rule is a keyword to agent-id routing override.
type Rule struct {
	Keyword string `json:"keyword"`
	AgentID string `json:"agent_id"`
}

// Engine maps request content to exactly one registered agent id.
//
// Evaluation order is strict: custom rules in insertion order first, then the
// fixed keyword classes, then the default capability. A custom rule only wins
// when its target agent is currently registered; otherwise scanning continues
// and eventually falls through to fixed classification.
type Engine struct {
	mu       sync.RWMutex
	rules    []Rule
	registry *Registry
	logger   *slog.Logger
}

// NewEngine creates a routing engine over the given registry.
func NewEngine(registry *Registry, logger *slog.Logger) *Engine {
	return &Engine{registry: registry, logger: logger}
}

// AddRule appends a custom routing rule. Keywords are matched
// case-insensitively; re-adding a keyword replaces its target and moves the
// rule to the end of the evaluation order (last write wins).
func (e *Engine) AddRule(keyword, agentID string) error {
	keyword = strings.ToLower(strings.TrimSpace(keyword))
	if keyword == "" || agentID == "" {
		return domain.NewDomainError("Engine.AddRule", domain.ErrInvalidInput, "empty keyword or agent id")
	}
	if !e.registry.Exists(agentID) {
		return domain.NewDomainError("Engine.AddRule", domain.ErrInvalidInput, "agent not registered: "+agentID)
	}

	e.mu.Lock()
	for i, r := range e.rules {
		if r.Keyword == keyword {
			e.rules = append(e.rules[:i], e.rules[i+1:]...)
			break
		}
	}
	e.rules = append(e.rules, Rule{Keyword: keyword, AgentID: agentID})
	e.mu.Unlock()

	e.logger.Info("routing rule added", "keyword", keyword, "agent_id", agentID)
	return nil
}

// RemoveRule deletes a custom rule. Returns false when the keyword is unknown.
func (e *Engine) RemoveRule(keyword string) bool {
	keyword = strings.ToLower(strings.TrimSpace(keyword))

	e.mu.Lock()
	defer e.mu.Unlock()
	for i, r := range e.rules {
		if r.Keyword == keyword {
			e.rules = append(e.rules[:i], e.rules[i+1:]...)
			e.logger.Info("routing rule removed", "keyword", keyword)
			return true
		}
	}
	return false
}

// Rules returns a copy of the custom rules in evaluation order.
func (e *Engine) Rules() []Rule {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return append([]Rule(nil), e.rules...)
}

// Route resolves the request content to a registered agent id.
// Returns ErrNoAgentAvailable when neither the chosen capability nor the
// default capability has a registered active agent; callers must treat that
// as a hard failure.
func (e *Engine) Route(content, messageType string) (string, error) {
	normalized := strings.ToLower(content)

	// Custom rule pass: insertion order, first match with a registered target.
	e.mu.RLock()
	rules := append([]Rule(nil), e.rules...)
	e.mu.RUnlock()

	for _, r := range rules {
		if !strings.Contains(normalized, r.Keyword) {
			continue
		}
		if agent, err := e.registry.Get(r.AgentID); err != nil || !agent.Active {
			e.logger.Warn("routing rule target unavailable", "keyword", r.Keyword, "agent_id", r.AgentID)
			continue
		}
		e.registry.RecordUse(r.AgentID)
		e.logger.Debug("custom rule matched", "keyword", r.Keyword, "agent_id", r.AgentID)
		return r.AgentID, nil
	}

	// Fixed keyword-class pass.
	capability := domain.CapCustomerService
	for _, class := range fixedClasses {
		if containsAny(normalized, class.keywords) {
			capability = class.capability
			break
		}
	}

	agentID, ok := e.registry.ResolveCapability(capability)
	if !ok && capability != domain.CapCustomerService {
		// Single fallback to the default capability.
		e.logger.Warn("no agent for capability, falling back", "capability", capability)
		agentID, ok = e.registry.ResolveCapability(domain.CapCustomerService)
	}
	if !ok {
		return "", domain.NewDomainError("Engine.Route", domain.ErrNoAgentAvailable, capability)
	}

	e.registry.RecordUse(agentID)
	e.logger.Debug("request routed", "capability", capability, "agent_id", agentID, "message_type", messageType)
	return agentID, nil
}

func containsAny(s string, keywords []string) bool {
	for _, k := range keywords {
		if strings.Contains(s, k) {
			return true
		}
	}
	return false
}

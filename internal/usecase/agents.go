package usecase

import (
	"context"
	"log/slog"
	"strings"

	"atende-ai/internal/domain"
)

// responseRule maps content keywords to a canned reply. Rules are evaluated
// in order; the first keyword hit wins.
type responseRule struct {
	keywords []string
	reply    string
}

// SpecializedAgent is a processing unit with a keyword playbook for its
// specialty. Content matching a playbook rule is answered immediately;
// everything else is delegated to the generative provider with the agent's
// system prompt and the session history.
type SpecializedAgent struct {
	id           string
	systemPrompt string
	playbook     []responseRule
	fallback     string
	provider     domain.LLMProvider
	logger       *slog.Logger
}

// NewSpecializedAgent creates an agent processor. provider may be nil when a
// non-empty fallback reply is given; unmatched content then gets the fallback
// instead of a generated answer.
func NewSpecializedAgent(id, systemPrompt string, playbook []responseRule, fallback string, provider domain.LLMProvider, logger *slog.Logger) *SpecializedAgent {
	return &SpecializedAgent{
		id:           id,
		systemPrompt: systemPrompt,
		playbook:     playbook,
		fallback:     fallback,
		provider:     provider,
		logger:       logger,
	}
}

// Process implements domain.Processor.
func (a *SpecializedAgent) Process(ctx context.Context, req domain.Request, history []domain.Message) (string, error) {
	content := strings.ToLower(req.Content)

	for _, rule := range a.playbook {
		if containsAny(content, rule.keywords) {
			a.logger.Debug("playbook reply", "agent_id", a.id, "user_id", req.UserID)
			return rule.reply, nil
		}
	}

	if a.provider == nil {
		if a.fallback != "" {
			return a.fallback, nil
		}
		return "", domain.NewDomainError("SpecializedAgent.Process", domain.ErrProviderError, "no generative provider configured")
	}

	messages := make([]domain.Message, 0, len(history)+2)
	messages = append(messages, domain.Message{Role: domain.RoleSystem, Content: a.systemPrompt})
	messages = append(messages, history...)
	messages = append(messages, domain.Message{Role: domain.RoleUser, Content: req.Content})

	resp, err := a.provider.Chat(ctx, domain.ChatRequest{Messages: messages})
	if err != nil {
		return "", domain.WrapOp("SpecializedAgent.Process", err)
	}
	return strings.TrimSpace(resp.Message.Content), nil
}

// NewCustomerServiceAgent builds the default customer-service processor.
// It has no playbook: every request is answered by the generative provider.
func NewCustomerServiceAgent(id string, provider domain.LLMProvider, logger *slog.Logger) *SpecializedAgent {
	prompt := `Você é um assistente de atendimento ao cliente profissional.
Sua função é ajudar os clientes com perguntas, reclamações e solicitações.
Seja sempre educado, prestativo e objetivo em suas respostas.
Se não souber a resposta para algo, sugira que o cliente entre em contato
com um atendente humano.`
	return NewSpecializedAgent(id, prompt, nil, "", provider, logger)
}

// NewTechnicalSupportAgent builds the technical-support processor with its
// troubleshooting playbook.
func NewTechnicalSupportAgent(id string, provider domain.LLMProvider, logger *slog.Logger) *SpecializedAgent {
	prompt := `Você é um especialista em suporte técnico.
Ajude os usuários com problemas técnicos, dúvidas sobre produtos e instruções de uso.
Seja detalhado e claro em suas explicações.
Se o problema for complexo, recomende que o usuário entre em contato com o suporte especializado.`
	playbook := []responseRule{
		{
			keywords: []string{"não consigo acessar", "acesso"},
			reply:    "Entendi que você está tendo problemas de acesso. Vamos resolver isso juntos. Primeiro, verifique se sua conexão com a internet está funcionando corretamente.",
		},
		{
			keywords: []string{"lento", "demora"},
			reply:    "Percebi que você está enfrentando lentidão. Isso pode ser causado por vários fatores. Vamos verificar alguns pontos importantes para melhorar o desempenho.",
		},
		{
			keywords: []string{"erro", "não funciona"},
			reply:    "Sinto que você está enfrentando um erro técnico. Para ajudá-lo melhor, preciso de mais detalhes sobre o problema. Pode me descrever exatamente o que acontece?",
		},
		{
			keywords: []string{"instalação", "instalar"},
			reply:    "Vamos resolver seu problema de instalação. Primeiro, verifique se seu sistema atende aos requisitos mínimos e se você está seguindo os passos corretos.",
		},
	}
	fallback := "Entendi que você precisa de ajuda com um problema técnico. Para fornecer a melhor assistência possível, por favor, me descreva detalhadamente o problema que você está enfrentando."
	return NewSpecializedAgent(id, prompt, playbook, fallback, provider, logger)
}

// NewFinancialAgent builds the billing/finance processor with its playbook.
func NewFinancialAgent(id string, provider domain.LLMProvider, logger *slog.Logger) *SpecializedAgent {
	prompt := `Você é um especialista em questões financeiras.
Ajude os clientes com dúvidas sobre pagamentos, faturas, reembolsos e promoções.
Seja preciso com valores e prazos; quando não tiver certeza, peça o número do
pedido ou da transação antes de responder.`
	playbook := []responseRule{
		{
			keywords: []string{"pagamento", "paguei"},
			reply:    "Entendi que você tem uma dúvida sobre pagamento. Para verificar o status do seu pagamento, preciso do número da transação ou ID do pedido.",
		},
		{
			keywords: []string{"fatura", "boleto"},
			reply:    "Sobre sua fatura, posso ajudá-lo a verificar valores, datas de vencimento ou segunda via. Por favor, me informe o número da fatura ou o período de referência.",
		},
		{
			keywords: []string{"reembolso", "devolução"},
			reply:    "Sobre reembolsos, nosso processo geralmente leva de 5 a 10 dias úteis após a aprovação. Posso verificar o status do seu reembolso específico se você me fornecer o número do pedido.",
		},
		{
			keywords: []string{"desconto", "promoção"},
			reply:    "Temos várias opções de descontos e promoções disponíveis. Posso verificar quais estão ativas para o seu perfil e ajudá-lo a aproveitá-las.",
		},
	}
	fallback := "Entendi que você precisa de ajuda com uma questão financeira. Para fornecer a assistência mais precisa, por favor, detalhe sua dúvida sobre pagamentos, faturas, reembolsos ou qualquer outro assunto financeiro."
	return NewSpecializedAgent(id, prompt, playbook, fallback, provider, logger)
}

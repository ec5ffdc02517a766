// Command agent runs the atende-ai dispatch service: specialized agents
// behind a keyword router, session state with sliding TTL, rolling metrics,
// the admin gateway, and the Chatwoot channel.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"

	"atende-ai/internal/adapter/channel"
	"atende-ai/internal/adapter/gateway"
	"atende-ai/internal/adapter/llm"
	"atende-ai/internal/adapter/store"
	"atende-ai/internal/domain"
	"atende-ai/internal/infra/config"
	"atende-ai/internal/infra/logger"
	"atende-ai/internal/usecase"
)

const shutdownTimeout = 10 * time.Second

func main() {
	configPath := flag.String("config", "config.yaml", "path to configuration file")
	flag.Parse()

	if err := run(*configPath); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}

func run(configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	log, closeLogger, err := logger.New(cfg.Logger)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer closeLogger()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Session store.
	var sessions domain.SessionStore
	var reaper *cron.Cron
	switch cfg.Session.Backend {
	case "redis":
		client, err := store.NewRedisClient(cfg.Session.RedisURL)
		if err != nil {
			return fmt.Errorf("redis client: %w", err)
		}
		defer client.Close()
		sessions = store.NewRedisStore(client, cfg.Session.TTL, cfg.Session.MaxHistory, log)
		log.Info("session store ready", "backend", "redis")
	default:
		mem := store.NewMemoryStore(cfg.Session.TTL, cfg.Session.MaxHistory, log)
		sessions = mem

		// Redis expires keys natively; the map store needs a sweep.
		reaper = cron.New()
		schedule := cfg.Session.ReapSchedule
		if schedule == "" {
			schedule = "@every 5m"
		}
		if _, err := reaper.AddFunc(schedule, func() { mem.Reap() }); err != nil {
			return fmt.Errorf("reap schedule %q: %w", schedule, err)
		}
		reaper.Start()
		defer reaper.Stop()
		log.Info("session store ready", "backend", "memory", "reap_schedule", schedule)
	}

	// Generative provider. Without an API key the agents fall back to their
	// playbooks and canned replies.
	var provider domain.LLMProvider
	if cfg.Provider.APIKey != "" {
		provider = llm.NewCircuitBreakerProvider(
			llm.NewOpenAIProvider(cfg.Provider, log),
			cfg.Breaker,
			log,
		)
		log.Info("generative provider ready", "provider", provider.Name(), "model", cfg.Provider.Model)
	} else {
		log.Warn("no provider api key configured, agents answer from playbooks only")
	}

	collector := usecase.NewCollector(log)
	registry := usecase.NewRegistry(collector, log)
	engine := usecase.NewEngine(registry, log)

	type agentSpec struct {
		id   string
		caps []string
		proc domain.Processor
	}
	for _, a := range []agentSpec{
		{domain.CapCustomerService, []string{domain.CapCustomerService},
			usecase.NewCustomerServiceAgent(domain.CapCustomerService, provider, log)},
		{domain.CapTechnicalSupport, []string{domain.CapTechnicalSupport},
			usecase.NewTechnicalSupportAgent(domain.CapTechnicalSupport, provider, log)},
		{domain.CapFinancial, []string{domain.CapFinancial},
			usecase.NewFinancialAgent(domain.CapFinancial, provider, log)},
	} {
		if err := registry.Register(a.id, a.caps, a.proc); err != nil {
			return fmt.Errorf("register agent %s: %w", a.id, err)
		}
	}

	for _, rule := range cfg.Routing.Rules {
		if err := engine.AddRule(rule.Keyword, rule.AgentID); err != nil {
			return fmt.Errorf("seed routing rule %q: %w", rule.Keyword, err)
		}
	}

	dispatcher := usecase.NewDispatcher(registry, engine, sessions, collector, log)

	srv := gateway.NewServer(gateway.Deps{
		Registry:  registry,
		Engine:    engine,
		Collector: collector,
		Sessions:  sessions,
	}, cfg.Gateway.Addr, cfg.Gateway.AuthToken, log)

	if cfg.Chatwoot.Enabled {
		cw := channel.NewChatwootChannel(cfg.Chatwoot, log)
		cw.SetHandler(func(ctx context.Context, req domain.Request) (*domain.Response, error) {
			return dispatcher.Dispatch(ctx, req), nil
		})
		srv.RegisterHTTPRoute("/webhook/chatwoot", cw.HandleWebhook)
		log.Info("chatwoot channel enabled", "inbox_id", cfg.Chatwoot.InboxID)
	}

	if err := srv.Start(ctx); err != nil {
		return fmt.Errorf("start gateway: %w", err)
	}

	log.Info("atende-ai started",
		slog.String("gateway", srv.BoundAddr()),
		slog.String("session_backend", cfg.Session.Backend),
	)

	<-ctx.Done()
	log.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Stop(shutdownCtx); err != nil {
		log.Error("gateway shutdown error", "error", err)
	}
	return nil
}

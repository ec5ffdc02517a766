// Package config loads the application configuration from YAML with
// environment variable overrides (ATENDEAI_* prefix).
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the top-level application configuration.
type Config struct {
	Logger   LoggerConfig   `yaml:"logger"`
	Session  SessionConfig  `yaml:"session"`
	Provider ProviderConfig `yaml:"provider"`
	Breaker  BreakerConfig  `yaml:"breaker"`
	Routing  RoutingConfig  `yaml:"routing"`
	Chatwoot ChatwootConfig `yaml:"chatwoot"`
	Gateway  GatewayConfig  `yaml:"gateway"`
}

// LoggerConfig holds structured logging settings.
type LoggerConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // text or json
	Output string `yaml:"output"` // stdout, stderr, or a file path
}

// SessionConfig holds session store settings.
type SessionConfig struct {
	Backend      string        `yaml:"backend"` // "memory" or "redis"
	RedisURL     string        `yaml:"redis_url"`
	TTL          time.Duration `yaml:"ttl"`
	MaxHistory   int           `yaml:"max_history"`
	ReapSchedule string        `yaml:"reap_schedule"` // cron spec for the memory backend sweep
}

// ProviderConfig holds the generative provider settings for an
// OpenAI-compatible API. An empty APIKey disables the provider; agents then
// answer from their playbooks and fallbacks only.
type ProviderConfig struct {
	Name        string        `yaml:"name"`
	Model       string        `yaml:"model"`
	APIKey      string        `yaml:"api_key"`
	BaseURL     string        `yaml:"base_url"`
	MaxTokens   int           `yaml:"max_tokens"`
	Temperature float64       `yaml:"temperature"`
	ConnTimeout time.Duration `yaml:"conn_timeout"`
	RespTimeout time.Duration `yaml:"resp_timeout"`
}

// BreakerConfig holds circuit breaker settings for the provider.
type BreakerConfig struct {
	MaxFailures uint32        `yaml:"max_failures"`
	Timeout     time.Duration `yaml:"timeout"`
	Interval    time.Duration `yaml:"interval"`
}

// RoutingConfig holds routing rules loaded at startup.
type RoutingConfig struct {
	Rules []RuleConfig `yaml:"rules,omitempty"`
}

// RuleConfig maps a content keyword to an agent id.
type RuleConfig struct {
	Keyword string `yaml:"keyword"`
	AgentID string `yaml:"agent_id"`
}

// ChatwootConfig holds the Chatwoot channel settings.
type ChatwootConfig struct {
	Enabled   bool    `yaml:"enabled"`
	BaseURL   string  `yaml:"base_url"`
	InboxID   int     `yaml:"inbox_id"`
	APIToken  string  `yaml:"api_token"`
	RateLimit float64 `yaml:"rate_limit"` // outbound messages per second
	RateBurst int     `yaml:"rate_burst"`
}

// GatewayConfig holds the HTTP gateway settings. The gateway serves the
// admin API, the Prometheus endpoint, and the Chatwoot webhook.
type GatewayConfig struct {
	Addr      string `yaml:"addr"`
	AuthToken string `yaml:"auth_token"` // empty disables admin auth
}

// Defaults returns the configuration defaults.
func Defaults() *Config {
	return &Config{
		Logger: LoggerConfig{
			Level:  "info",
			Format: "text",
			Output: "stderr",
		},
		Session: SessionConfig{
			Backend:      "memory",
			RedisURL:     "redis://localhost:6379",
			TTL:          time.Hour,
			MaxHistory:   50,
			ReapSchedule: "@every 5m",
		},
		Provider: ProviderConfig{
			Name:        "openai",
			Model:       "gpt-4o-mini",
			BaseURL:     "https://api.openai.com/v1",
			MaxTokens:   1024,
			Temperature: 0.7,
			ConnTimeout: 30 * time.Second,
			RespTimeout: 120 * time.Second,
		},
		Breaker: BreakerConfig{
			MaxFailures: 5,
			Timeout:     30 * time.Second,
			Interval:    60 * time.Second,
		},
		Chatwoot: ChatwootConfig{
			RateLimit: 5,
			RateBurst: 10,
		},
		Gateway: GatewayConfig{
			Addr: ":8080",
		},
	}
}

// Load reads the configuration file at path, falling back to defaults when
// the file does not exist. Environment overrides are applied last.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			ApplyEnvOverrides(cfg)
			if err := Validate(cfg); err != nil {
				return nil, err
			}
			return cfg, nil
		}
		return nil, fmt.Errorf("read config: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	ApplyEnvOverrides(cfg)

	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyEnvOverrides applies ATENDEAI_* environment variables over cfg.
func ApplyEnvOverrides(cfg *Config) {
	if v := os.Getenv("ATENDEAI_LOGGER_LEVEL"); v != "" {
		cfg.Logger.Level = v
	}
	if v := os.Getenv("ATENDEAI_LOGGER_FORMAT"); v != "" {
		cfg.Logger.Format = v
	}
	if v := os.Getenv("ATENDEAI_SESSION_BACKEND"); v != "" {
		cfg.Session.Backend = v
	}
	if v := os.Getenv("ATENDEAI_SESSION_REDIS_URL"); v != "" {
		cfg.Session.RedisURL = v
	}
	if v := os.Getenv("ATENDEAI_SESSION_TTL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			cfg.Session.TTL = d
		}
	}
	if v := os.Getenv("ATENDEAI_SESSION_MAX_HISTORY"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.Session.MaxHistory = n
		}
	}
	if v := os.Getenv("ATENDEAI_PROVIDER_MODEL"); v != "" {
		cfg.Provider.Model = v
	}
	if v := os.Getenv("ATENDEAI_PROVIDER_API_KEY"); v != "" {
		cfg.Provider.APIKey = v
	}
	if v := os.Getenv("ATENDEAI_PROVIDER_BASE_URL"); v != "" {
		cfg.Provider.BaseURL = v
	}
	if v := os.Getenv("ATENDEAI_CHATWOOT_ENABLED"); v == "true" {
		cfg.Chatwoot.Enabled = true
	}
	if v := os.Getenv("ATENDEAI_CHATWOOT_BASE_URL"); v != "" {
		cfg.Chatwoot.BaseURL = v
	}
	if v := os.Getenv("ATENDEAI_CHATWOOT_INBOX_ID"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.Chatwoot.InboxID = n
		}
	}
	if v := os.Getenv("ATENDEAI_CHATWOOT_API_TOKEN"); v != "" {
		cfg.Chatwoot.APIToken = v
	}
	if v := os.Getenv("ATENDEAI_GATEWAY_ADDR"); v != "" {
		cfg.Gateway.Addr = v
	}
	if v := os.Getenv("ATENDEAI_GATEWAY_AUTH_TOKEN"); v != "" {
		cfg.Gateway.AuthToken = v
	}
}

// Validate checks cross-field constraints.
func Validate(cfg *Config) error {
	switch cfg.Session.Backend {
	case "memory", "redis":
	default:
		return fmt.Errorf("session.backend: unknown backend %q", cfg.Session.Backend)
	}
	if cfg.Session.Backend == "redis" && cfg.Session.RedisURL == "" {
		return fmt.Errorf("session.redis_url: required for the redis backend")
	}
	if cfg.Session.TTL < 0 {
		return fmt.Errorf("session.ttl: must not be negative")
	}
	if cfg.Chatwoot.Enabled {
		if cfg.Chatwoot.BaseURL == "" {
			return fmt.Errorf("chatwoot.base_url: required when chatwoot is enabled")
		}
		if cfg.Chatwoot.InboxID <= 0 {
			return fmt.Errorf("chatwoot.inbox_id: required when chatwoot is enabled")
		}
		if cfg.Chatwoot.APIToken == "" {
			return fmt.Errorf("chatwoot.api_token: required when chatwoot is enabled")
		}
	}
	for i, r := range cfg.Routing.Rules {
		if r.Keyword == "" || r.AgentID == "" {
			return fmt.Errorf("routing.rules[%d]: keyword and agent_id are required", i)
		}
	}
	return nil
}

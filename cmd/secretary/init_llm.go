package main

import (
	"fmt"
	"log/slog"

	"secretary-ai/internal/adapter/llm"
	"secretary-ai/internal/domain"
	"secretary-ai/internal/infra/config"
)

// LLMComponents holds all LLM-related components
type LLMComponents struct {
	Registry   *llm.Registry
	DefaultLLM domain.LLMProvider
}

// initLLM registers the configured providers and resolves the default,
// wrapped with failover when configured.
func initLLM(cfg *config.Config, log *slog.Logger) (*LLMComponents, error) {
	if len(cfg.LLM.Providers) == 0 {
		return nil, fmt.Errorf("no LLM provider configured (set SECRETARY_OPENAI_API_KEY or llm.providers)")
	}

	registry, err := llm.NewRegistryFromConfig(cfg.LLM, log)
	if err != nil {
		return nil, err
	}

	cb := cfg.LLM.CircuitBreaker
	if cb.Enabled {
		log.Info("llm circuit breaker enabled",
			"max_failures", cb.MaxFailures,
			"timeout", cb.Timeout,
			"interval", cb.Interval,
		)
	}

	defaultLLM, err := registry.Resolve(cfg.LLM, log)
	if err != nil {
		return nil, fmt.Errorf("default llm provider %q: %w", cfg.LLM.DefaultProvider, err)
	}
	if cfg.LLM.Failover.Enabled && len(cfg.LLM.Failover.Fallbacks) > 0 {
		log.Info("model failover enabled", "fallbacks", cfg.LLM.Failover.Fallbacks)
	}

	return &LLMComponents{Registry: registry, DefaultLLM: defaultLLM}, nil
}

package llm

import (
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"sync"

	"secretary-ai/internal/domain"
	"secretary-ai/internal/infra/config"
)

// Registry holds the configured providers by name.
type Registry struct {
	mu        sync.RWMutex
	providers map[string]domain.LLMProvider
}

func NewRegistry() *Registry {
	return &Registry{
		providers: make(map[string]domain.LLMProvider),
	}
}

// Register fails when the provider's name is taken.
func (r *Registry) Register(provider domain.LLMProvider) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	name := provider.Name()
	if _, exists := r.providers[name]; exists {
		return fmt.Errorf("provider %q already registered", name)
	}
	r.providers[name] = provider
	return nil
}

func (r *Registry) Get(name string) (domain.LLMProvider, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	p, ok := r.providers[name]
	if !ok {
		return nil, domain.NewDomainError("Registry.Get", domain.ErrProviderNotFound, name)
	}
	return p, nil
}

// List returns provider names in lexical order.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return slices.Sorted(maps.Keys(r.providers))
}

// NewRegistryFromConfig registers one provider per configured entry, each
// behind its own circuit breaker when breakers are enabled.
func NewRegistryFromConfig(cfg config.LLMConfig, logger *slog.Logger) (*Registry, error) {
	if logger == nil {
		logger = slog.Default()
	}
	reg := NewRegistry()
	for _, pc := range cfg.Providers {
		var p domain.LLMProvider = NewOpenAIProvider(pc, logger.With("provider", pc.Name))
		if cfg.CircuitBreaker.Enabled {
			p = NewCircuitBreakerProvider(p, cfg.CircuitBreaker, logger)
		}
		if err := reg.Register(p); err != nil {
			return nil, err
		}
	}
	return reg, nil
}

// Resolve returns the default provider, wrapped with the configured
// fallbacks when failover is enabled.
func (r *Registry) Resolve(cfg config.LLMConfig, logger *slog.Logger) (domain.LLMProvider, error) {
	primary, err := r.Get(cfg.DefaultProvider)
	if err != nil {
		return nil, err
	}
	if !cfg.Failover.Enabled || len(cfg.Failover.Fallbacks) == 0 {
		return primary, nil
	}

	fallbacks := make([]domain.LLMProvider, 0, len(cfg.Failover.Fallbacks))
	for _, name := range cfg.Failover.Fallbacks {
		if name == cfg.DefaultProvider {
			continue
		}
		fb, err := r.Get(name)
		if err != nil {
			return nil, err
		}
		fallbacks = append(fallbacks, fb)
	}
	if len(fallbacks) == 0 {
		return primary, nil
	}
	return NewFailoverProvider(primary, fallbacks, logger), nil
}

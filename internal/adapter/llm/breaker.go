package llm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/sony/gobreaker/v2"

	"secretary-ai/internal/domain"
	"secretary-ai/internal/infra/config"
)

const (
	defaultBreakerMaxFailures uint32 = 5
	defaultBreakerTimeout            = 30 * time.Second
	defaultBreakerInterval           = 60 * time.Second
)

// CircuitBreakerProvider fails fast once a provider has failed
// MaxFailures times in a row. After Timeout one probe request is let through;
// its outcome closes or reopens the circuit.
type CircuitBreakerProvider struct {
	inner   domain.LLMProvider
	breaker *gobreaker.CircuitBreaker[*domain.ChatResponse]
}

// NewCircuitBreakerProvider wraps inner. Zero settings take defaults;
// cfg.Enabled is the caller's concern.
func NewCircuitBreakerProvider(inner domain.LLMProvider, cfg config.CircuitBreakerConfig, logger *slog.Logger) *CircuitBreakerProvider {
	if logger == nil {
		logger = slog.Default()
	}
	cfg = breakerDefaults(cfg)

	settings := gobreaker.Settings{
		Name:        "llm:" + inner.Name(),
		MaxRequests: 1,
		Interval:    cfg.Interval,
		Timeout:     cfg.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.MaxFailures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("circuit breaker state change", "breaker", name, "from", from.String(), "to", to.String())
		},
		IsSuccessful: healthyOutcome,
	}
	return &CircuitBreakerProvider{
		inner:   inner,
		breaker: gobreaker.NewCircuitBreaker[*domain.ChatResponse](settings),
	}
}

func breakerDefaults(cfg config.CircuitBreakerConfig) config.CircuitBreakerConfig {
	if cfg.MaxFailures == 0 {
		cfg.MaxFailures = defaultBreakerMaxFailures
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = defaultBreakerTimeout
	}
	if cfg.Interval == 0 {
		cfg.Interval = defaultBreakerInterval
	}
	return cfg
}

// healthyOutcome reports whether err leaves the provider's health untouched.
// Caller cancellation and faults in the request itself (oversized context,
// invalid input) are not the provider's failures.
func healthyOutcome(err error) bool {
	switch {
	case err == nil:
		return true
	case errors.Is(err, context.Canceled),
		errors.Is(err, domain.ErrContextOverflow),
		errors.Is(err, domain.ErrInvalidInput):
		return true
	default:
		return false
	}
}

// Chat routes the call through the breaker. An open circuit yields an error
// matching domain.ErrCircuitOpen.
func (p *CircuitBreakerProvider) Chat(ctx context.Context, req domain.ChatRequest) (*domain.ChatResponse, error) {
	resp, err := p.breaker.Execute(func() (*domain.ChatResponse, error) {
		return p.inner.Chat(ctx, req)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return nil, fmt.Errorf("%w: %q circuit open: %v", domain.ErrCircuitOpen, p.inner.Name(), err)
	}
	return resp, err
}

func (p *CircuitBreakerProvider) Name() string { return p.inner.Name() }

// State returns the current circuit state.
func (p *CircuitBreakerProvider) State() gobreaker.State { return p.breaker.State() }

// Counts returns the breaker's counters for the current interval.
func (p *CircuitBreakerProvider) Counts() gobreaker.Counts { return p.breaker.Counts() }

var _ domain.LLMProvider = (*CircuitBreakerProvider)(nil)

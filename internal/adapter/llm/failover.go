package llm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"secretary-ai/internal/domain"
)

// FailoverProvider asks each provider of its chain in turn and returns the
// first answer. The chain stops early when the caller's context ends or the
// request itself is invalid, since no other provider would accept it.
type FailoverProvider struct {
	chain  []domain.LLMProvider
	logger *slog.Logger
}

func NewFailoverProvider(primary domain.LLMProvider, fallbacks []domain.LLMProvider, logger *slog.Logger) *FailoverProvider {
	if logger == nil {
		logger = slog.Default()
	}
	chain := make([]domain.LLMProvider, 0, 1+len(fallbacks))
	chain = append(chain, primary)
	chain = append(chain, fallbacks...)
	return &FailoverProvider{chain: chain, logger: logger}
}

func (f *FailoverProvider) Chat(ctx context.Context, req domain.ChatRequest) (*domain.ChatResponse, error) {
	var failures []error
	for i, p := range f.chain {
		resp, err := p.Chat(ctx, req)
		if err == nil {
			if i > 0 {
				f.logger.Info("llm failover answered", "provider", p.Name(), "attempt", i+1)
			}
			return resp, nil
		}
		if ctx.Err() != nil || errors.Is(err, domain.ErrInvalidInput) {
			if i == 0 {
				return nil, err
			}
			failures = append(failures, fmt.Errorf("%s: %w", p.Name(), err))
			break
		}
		f.logger.Warn("llm provider failed", "provider", p.Name(), "attempt", i+1, "error", err)
		failures = append(failures, fmt.Errorf("%s: %w", p.Name(), err))
	}
	return nil, fmt.Errorf("%w: all providers failed: %w", domain.ErrProviderError, errors.Join(failures...))
}

// Name is the primary's name with a "+failover" suffix.
func (f *FailoverProvider) Name() string {
	return f.chain[0].Name() + "+failover"
}

var _ domain.LLMProvider = (*FailoverProvider)(nil)

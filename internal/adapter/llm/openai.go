package llm

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/otel/trace"

	"secretary-ai/internal/domain"
	"secretary-ai/internal/infra/config"
	"secretary-ai/internal/infra/tracer"
)

// Default base URLs per provider type.
const (
	openAIBaseURL     = "https://api.openai.com/v1"
	openRouterBaseURL = "https://openrouter.ai/api/v1"
	ollamaBaseURL     = "http://localhost:11434/v1"
)

// OpenAIProvider implements domain.LLMProvider for any OpenAI-compatible
// chat-completions API (OpenAI, OpenRouter, Ollama).
type OpenAIProvider struct {
	name    string
	model   string
	baseURL string
	header  http.Header
	client  *http.Client
	logger  *slog.Logger
}

// NewOpenAIProvider creates a provider with configured timeouts.
func NewOpenAIProvider(cfg config.ProviderConfig, logger *slog.Logger) *OpenAIProvider {
	if logger == nil {
		logger = slog.Default()
	}
	baseURL := strings.TrimRight(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = defaultBaseURL(cfg.Type)
	}

	header := http.Header{}
	if cfg.APIKey != "" {
		header.Set("Authorization", "Bearer "+cfg.APIKey)
	}
	if cfg.Type == "openrouter" {
		header.Set("X-Title", "secretary-ai")
	}

	return &OpenAIProvider{
		name:    cfg.Name,
		model:   cfg.Model,
		baseURL: baseURL,
		header:  header,
		client:  NewHTTPClient(cfg),
		logger:  logger,
	}
}

func defaultBaseURL(providerType string) string {
	switch providerType {
	case "openrouter":
		return openRouterBaseURL
	case "ollama":
		return ollamaBaseURL
	default:
		return openAIBaseURL
	}
}

// Chat implements domain.LLMProvider.
func (p *OpenAIProvider) Chat(ctx context.Context, req domain.ChatRequest) (*domain.ChatResponse, error) {
	if req.Model == "" {
		req.Model = p.model
	}

	ctx, span := tracer.StartSpan(ctx, "llm.openai.chat",
		trace.WithAttributes(
			tracer.StringAttr("llm.provider", p.name),
			tracer.StringAttr("llm.model", req.Model),
			tracer.IntAttr("llm.tools", len(req.Tools)),
		),
	)
	defer span.End()

	var out completionResponse
	if err := postJSON(ctx, p.client, p.baseURL+"/chat/completions", p.header, encodeCompletion(req), &out); err != nil {
		tracer.RecordError(span, err)
		return nil, err
	}
	if len(out.Choices) == 0 {
		err := fmt.Errorf("%w: response has no choices", domain.ErrProviderError)
		tracer.RecordError(span, err)
		return nil, err
	}

	result := decodeCompletion(out, time.Now)
	span.SetAttributes(
		tracer.IntAttr("llm.prompt_tokens", result.Usage.PromptTokens),
		tracer.IntAttr("llm.completion_tokens", result.Usage.CompletionTokens),
	)
	tracer.SetOK(span)
	p.logger.Debug("llm chat completed", "provider", p.name, "model", result.Model, "tokens", result.Usage.TotalTokens)

	return result, nil
}

// Name implements domain.LLMProvider.
func (p *OpenAIProvider) Name() string { return p.name }

var _ domain.LLMProvider = (*OpenAIProvider)(nil)

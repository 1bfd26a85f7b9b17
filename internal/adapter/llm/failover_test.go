package llm

import (
	"context"
	"errors"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"secretary-ai/internal/domain"
)

type mockProvider struct {
	name     string
	chatFunc func(context.Context, domain.ChatRequest) (*domain.ChatResponse, error)
}

func (m *mockProvider) Chat(ctx context.Context, req domain.ChatRequest) (*domain.ChatResponse, error) {
	return m.chatFunc(ctx, req)
}
func (m *mockProvider) Name() string { return m.name }

func okProvider(name, content string) *mockProvider {
	return &mockProvider{
		name: name,
		chatFunc: func(_ context.Context, _ domain.ChatRequest) (*domain.ChatResponse, error) {
			return &domain.ChatResponse{Message: domain.Message{Content: content}}, nil
		},
	}
}

func failingProvider(name string, err error, calls *int) *mockProvider {
	return &mockProvider{
		name: name,
		chatFunc: func(_ context.Context, _ domain.ChatRequest) (*domain.ChatResponse, error) {
			if calls != nil {
				*calls++
			}
			return nil, err
		},
	}
}

func TestFailoverPrimarySuccess(t *testing.T) {
	fallbackCalls := 0
	fp := NewFailoverProvider(okProvider("primary", "hello"),
		[]domain.LLMProvider{failingProvider("fallback", errors.New("unused"), &fallbackCalls)}, slog.Default())

	resp, err := fp.Chat(context.Background(), domain.ChatRequest{})
	require.NoError(t, err)
	assert.Equal(t, "hello", resp.Message.Content)
	assert.Zero(t, fallbackCalls)
}

func TestFailoverPrimaryFailFallbackSuccess(t *testing.T) {
	fp := NewFailoverProvider(failingProvider("primary", errors.New("down"), nil),
		[]domain.LLMProvider{okProvider("fallback", "from fallback")}, slog.Default())

	resp, err := fp.Chat(context.Background(), domain.ChatRequest{})
	require.NoError(t, err)
	assert.Equal(t, "from fallback", resp.Message.Content)
}

func TestFailoverAllFailAggregatesErrors(t *testing.T) {
	rateLimited := errors.Join(domain.ErrRateLimit, errors.New("slow down"))
	fp := NewFailoverProvider(failingProvider("primary", errors.New("primary down"), nil),
		[]domain.LLMProvider{
			failingProvider("fb1", rateLimited, nil),
			failingProvider("fb2", errors.New("fb2 down"), nil),
		}, slog.Default())

	_, err := fp.Chat(context.Background(), domain.ChatRequest{})
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrProviderError)
	assert.ErrorIs(t, err, domain.ErrRateLimit)
	for _, want := range []string{"all providers failed", "primary: primary down", "fb1:", "fb2: fb2 down"} {
		assert.Contains(t, err.Error(), want)
	}
}

func TestFailoverStopsOnCancelledContext(t *testing.T) {
	fallbackCalls := 0
	ctx, cancel := context.WithCancel(context.Background())
	primary := &mockProvider{
		name: "primary",
		chatFunc: func(ctx context.Context, _ domain.ChatRequest) (*domain.ChatResponse, error) {
			cancel()
			return nil, ctx.Err()
		},
	}
	fp := NewFailoverProvider(primary,
		[]domain.LLMProvider{failingProvider("fallback", errors.New("unused"), &fallbackCalls)}, slog.Default())

	_, err := fp.Chat(ctx, domain.ChatRequest{})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, fallbackCalls)
}

func TestFailoverName(t *testing.T) {
	fp := NewFailoverProvider(&mockProvider{name: "openai"}, nil, nil)
	assert.Equal(t, "openai+failover", fp.Name())
}

func TestFailoverStopsOnInvalidRequest(t *testing.T) {
	fallbackCalls := 0
	bad := domain.NewDomainError("openai", domain.ErrInvalidInput, "unknown tool schema")
	fp := NewFailoverProvider(failingProvider("primary", bad, nil),
		[]domain.LLMProvider{failingProvider("fallback", errors.New("unused"), &fallbackCalls)}, nil)

	_, err := fp.Chat(context.Background(), domain.ChatRequest{})
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
	assert.NotErrorIs(t, err, domain.ErrProviderError)
	assert.Zero(t, fallbackCalls)
}

func TestFailoverTriesEveryFallbackInOrder(t *testing.T) {
	var order []string
	record := func(name string, ok bool) *mockProvider {
		return &mockProvider{name: name, chatFunc: func(context.Context, domain.ChatRequest) (*domain.ChatResponse, error) {
			order = append(order, name)
			if ok {
				return &domain.ChatResponse{}, nil
			}
			return nil, domain.ErrTimeout
		}}
	}
	fp := NewFailoverProvider(record("a", false),
		[]domain.LLMProvider{record("b", false), record("c", true), record("d", true)}, nil)

	_, err := fp.Chat(context.Background(), domain.ChatRequest{})
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b", "c"}, order)
}

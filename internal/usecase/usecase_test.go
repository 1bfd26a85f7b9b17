package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"sync"
	"time"

	"secretary-ai/internal/domain"
)

// --- Mocks ---

type llmStep struct {
	resp *domain.ChatResponse
	err  error
}

// scriptedLLM replays steps in order and records every request it receives.
type scriptedLLM struct {
	mu       sync.Mutex
	steps    []llmStep
	requests []domain.ChatRequest
}

func (m *scriptedLLM) Chat(_ context.Context, req domain.ChatRequest) (*domain.ChatResponse, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	req.Messages = append([]domain.Message(nil), req.Messages...)
	req.Tools = append([]domain.ToolSchema(nil), req.Tools...)
	m.requests = append(m.requests, req)

	idx := len(m.requests) - 1
	if idx >= len(m.steps) {
		return &domain.ChatResponse{
			Message: domain.Message{Role: domain.RoleAssistant, Content: "fallback"},
		}, nil
	}
	return m.steps[idx].resp, m.steps[idx].err
}

func (m *scriptedLLM) Name() string { return "scripted" }

func (m *scriptedLLM) calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.requests)
}

func textReply(s string) llmStep {
	return llmStep{resp: &domain.ChatResponse{
		Message: domain.Message{Role: domain.RoleAssistant, Content: s},
		Usage:   domain.Usage{PromptTokens: 10, CompletionTokens: 2, TotalTokens: 12},
	}}
}

func toolCallReply(calls ...domain.ToolCall) llmStep {
	return llmStep{resp: &domain.ChatResponse{
		Message: domain.Message{Role: domain.RoleAssistant, ToolCalls: calls},
		Usage:   domain.Usage{PromptTokens: 20, CompletionTokens: 5, TotalTokens: 25},
	}}
}

func failReply(err error) llmStep { return llmStep{err: err} }

func call(id, name, args string) domain.ToolCall {
	return domain.ToolCall{ID: id, Name: name, Arguments: json.RawMessage(args)}
}

type mockToolExecutor struct {
	tools   map[string]domain.Tool
	schemas []domain.ToolSchema
}

func newToolExecutor(tools ...domain.Tool) *mockToolExecutor {
	m := &mockToolExecutor{tools: make(map[string]domain.Tool)}
	for _, t := range tools {
		m.tools[t.Name()] = t
		m.schemas = append(m.schemas, t.Schema())
	}
	return m
}

func (m *mockToolExecutor) Get(name string) (domain.Tool, error) {
	t, ok := m.tools[name]
	if !ok {
		return nil, domain.ErrToolNotFound
	}
	return t, nil
}

func (m *mockToolExecutor) Schemas() []domain.ToolSchema { return m.schemas }

// invocationLog records tool invocations across tools, in order.
type invocationLog struct {
	mu    sync.Mutex
	names []string
	args  []string
}

func (l *invocationLog) add(name string, args json.RawMessage) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.names = append(l.names, name)
	l.args = append(l.args, string(args))
}

// capturingTool records its invocations and returns a fixed result.
type capturingTool struct {
	name   string
	result string
	log    *invocationLog
}

func (t *capturingTool) Name() string        { return t.name }
func (t *capturingTool) Description() string { return "capturing test tool" }
func (t *capturingTool) Schema() domain.ToolSchema {
	return domain.ToolSchema{Name: t.name, Description: t.Description(), Parameters: json.RawMessage(`{"type":"object"}`)}
}
func (t *capturingTool) Execute(_ context.Context, params json.RawMessage) (*domain.ToolResult, error) {
	if t.log != nil {
		t.log.add(t.name, params)
	}
	return &domain.ToolResult{Content: t.result}, nil
}

type errorTool struct{ name string }

func (t *errorTool) Name() string              { return t.name }
func (t *errorTool) Description() string       { return "always fails" }
func (t *errorTool) Schema() domain.ToolSchema { return domain.ToolSchema{Name: t.name} }
func (t *errorTool) Execute(context.Context, json.RawMessage) (*domain.ToolResult, error) {
	return nil, errors.New("backend exploded")
}

type panicTool struct{ name string }

func (t *panicTool) Name() string              { return t.name }
func (t *panicTool) Description() string       { return "always panics" }
func (t *panicTool) Schema() domain.ToolSchema { return domain.ToolSchema{Name: t.name} }
func (t *panicTool) Execute(context.Context, json.RawMessage) (*domain.ToolResult, error) {
	panic("nil map write")
}

// memConversations is a minimal ConversationStore.
type memConversations struct {
	mu      sync.Mutex
	convs   map[string]domain.Conversation
	saveErr error
	saves   int
}

func newMemConversations() *memConversations {
	return &memConversations{convs: make(map[string]domain.Conversation)}
}

func (m *memConversations) GetConversation(_ context.Context, id string) (*domain.Conversation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.convs[id]
	if !ok {
		return nil, domain.NewDomainError("mem.GetConversation", domain.ErrConversationNotFound, id)
	}
	c.Messages = append([]domain.Message(nil), c.Messages...)
	return &c, nil
}

func (m *memConversations) SaveConversation(_ context.Context, c *domain.Conversation) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.saves++
	if m.saveErr != nil {
		return m.saveErr
	}
	m.convs[c.ID] = *c
	return nil
}

func (m *memConversations) DeleteConversation(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.convs, id)
	return nil
}

func (m *memConversations) PurgeConversationsBefore(context.Context, time.Time) (int, error) {
	return 0, nil
}

func nopLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

var testNow = time.Date(2025, 6, 2, 10, 7, 0, 0, time.UTC)

func newTestOrchestrator(llm domain.LLMProvider, tools domain.ToolExecutor) *Orchestrator {
	return NewOrchestrator(OrchestratorDeps{
		LLM:   llm,
		Tools: tools,
		ContextBuilder: NewContextBuilder(ContextBuilderConfig{
			Model:    "test-model",
			Now:      func() time.Time { return testNow },
			Location: time.UTC,
		}),
		Logger: nopLogger(),
	})
}

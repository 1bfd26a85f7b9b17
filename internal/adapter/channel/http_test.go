package channel

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"secretary-ai/internal/adapter/store"
	"secretary-ai/internal/domain"
	"secretary-ai/internal/infra/config"
	"secretary-ai/internal/usecase"
)

type stubChat struct {
	fn   func(ctx context.Context, in usecase.ChatInput) (*usecase.ChatOutput, error)
	seen []usecase.ChatInput
}

func (s *stubChat) HandleMessage(ctx context.Context, in usecase.ChatInput) (*usecase.ChatOutput, error) {
	s.seen = append(s.seen, in)
	return s.fn(ctx, in)
}

var fixedNow = time.Date(2025, 6, 2, 10, 7, 0, 0, time.UTC)

func newTestAPI(t *testing.T, chat ChatHandler, cfg config.HTTPConfig) (http.Handler, *store.MemoryStore) {
	t.Helper()
	st := store.NewMemoryStore()
	if cfg.MaxBodyBytes == 0 {
		cfg.MaxBodyBytes = 1 << 20
	}
	ch := NewHTTPChannel(cfg, HTTPDeps{
		Chat:          chat,
		Conversations: st,
		Credentials:   st,
		Todos:         st,
		Logger:        slog.New(slog.NewTextHandler(io.Discard, nil)),
		Now:           func() time.Time { return fixedNow },
	})
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	return ch.Handler(ctx), st
}

func do(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var rd io.Reader
	if body != "" {
		rd = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, rd)
	req.RemoteAddr = "192.0.2.1:1234"
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) errorResponse {
	t.Helper()
	var e errorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &e))
	return e
}

func echoChat() *stubChat {
	return &stubChat{fn: func(_ context.Context, in usecase.ChatInput) (*usecase.ChatOutput, error) {
		return &usecase.ChatOutput{ConversationID: "conv-1", Content: "echo: " + in.Content}, nil
	}}
}

func TestHealth(t *testing.T) {
	h, _ := newTestAPI(t, echoChat(), config.HTTPConfig{})
	rec := do(t, h, http.MethodGet, "/api/v1/health", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
	assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))
	assert.Equal(t, "no-store", rec.Header().Get("Cache-Control"))
}

func TestChat(t *testing.T) {
	chat := &stubChat{fn: func(_ context.Context, in usecase.ChatInput) (*usecase.ChatOutput, error) {
		return &usecase.ChatOutput{
			ConversationID: "conv-9",
			Content:        "Booked for 2 PM.",
			ToolCalls:      []string{"check_availability", "schedule_meeting"},
			Simulated:      true,
			Usage:          domain.Usage{TotalTokens: 50},
		}, nil
	}}
	h, _ := newTestAPI(t, chat, config.HTTPConfig{})

	rec := do(t, h, http.MethodPost, "/api/v1/chat",
		`{"conversation_id":"conv-9","user_id":"u1","content":"book 2pm","mode":"calendar"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp chatResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "conv-9", resp.ConversationID)
	assert.Equal(t, "Booked for 2 PM.", resp.Content)
	assert.Equal(t, []string{"check_availability", "schedule_meeting"}, resp.ToolCalls)
	assert.True(t, resp.Simulated)
	assert.Equal(t, 50, resp.Usage.TotalTokens)

	require.Len(t, chat.seen, 1)
	assert.Equal(t, domain.ModeCalendar, chat.seen[0].Mode)
	assert.Equal(t, "u1", chat.seen[0].UserID)
}

func TestChatEmptyToolCallsIsArray(t *testing.T) {
	h, _ := newTestAPI(t, echoChat(), config.HTTPConfig{})
	rec := do(t, h, http.MethodPost, "/api/v1/chat", `{"user_id":"u1","content":"hi"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"tool_calls":[]`)
}

func TestChatRejectsBadRequests(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"not json", `{`},
		{"missing user", `{"content":"hi"}`},
		{"missing content", `{"user_id":"u1"}`},
		{"bad mode", `{"user_id":"u1","content":"hi","mode":"shouty"}`},
		{"unknown field", `{"user_id":"u1","content":"hi","extra":1}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			chat := echoChat()
			h, _ := newTestAPI(t, chat, config.HTTPConfig{})
			rec := do(t, h, http.MethodPost, "/api/v1/chat", tt.body)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Equal(t, string(domain.CodeInvalidInput), decodeError(t, rec).Code)
			assert.Empty(t, chat.seen)
		})
	}
}

func TestChatBodyTooLarge(t *testing.T) {
	h, _ := newTestAPI(t, echoChat(), config.HTTPConfig{MaxBodyBytes: 64})
	body := `{"user_id":"u1","content":"` + strings.Repeat("x", 200) + `"}`
	rec := do(t, h, http.MethodPost, "/api/v1/chat", body)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, decodeError(t, rec).Error, "too large")
}

func TestChatErrorStatus(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
		code   domain.ErrorCode
	}{
		{"model failure", &domain.ModelCallError{Stage: domain.StageInitial, Err: domain.ErrRateLimit}, http.StatusBadGateway, domain.CodeModelCallFailed},
		{"foreign conversation", domain.NewDomainError("x", domain.ErrConversationNotFound, "c1"), http.StatusNotFound, domain.CodeConversationNotFound},
		{"invalid", domain.NewDomainError("x", domain.ErrInvalidInput, "empty"), http.StatusBadRequest, domain.CodeInvalidInput},
		{"unknown", errors.New("disk on fire"), http.StatusInternalServerError, domain.CodeUnknown},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			chat := &stubChat{fn: func(context.Context, usecase.ChatInput) (*usecase.ChatOutput, error) {
				return nil, tt.err
			}}
			h, _ := newTestAPI(t, chat, config.HTTPConfig{})
			rec := do(t, h, http.MethodPost, "/api/v1/chat", `{"user_id":"u1","content":"hi"}`)
			assert.Equal(t, tt.status, rec.Code)
			e := decodeError(t, rec)
			assert.Equal(t, string(tt.code), e.Code)
			assert.NotContains(t, e.Error, "disk on fire")
		})
	}
}

func TestConversationEndpoints(t *testing.T) {
	h, st := newTestAPI(t, echoChat(), config.HTTPConfig{})
	ctx := context.Background()
	require.NoError(t, st.SaveConversation(ctx, &domain.Conversation{
		ID: "c1", UserID: "u1", Mode: domain.ModeGeneral,
		Messages:  []domain.Message{{Role: domain.RoleUser, Content: "hi"}},
		CreatedAt: fixedNow, UpdatedAt: fixedNow,
	}))

	rec := do(t, h, http.MethodGet, "/api/v1/conversations/c1", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var conv domain.Conversation
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &conv))
	assert.Equal(t, "u1", conv.UserID)
	require.Len(t, conv.Messages, 1)

	rec = do(t, h, http.MethodGet, "/api/v1/conversations/c1?user_id=u2", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = do(t, h, http.MethodGet, "/api/v1/conversations/nope", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, string(domain.CodeConversationNotFound), decodeError(t, rec).Code)

	rec = do(t, h, http.MethodDelete, "/api/v1/conversations/c1", "")
	assert.Equal(t, http.StatusNoContent, rec.Code)
	rec = do(t, h, http.MethodGet, "/api/v1/conversations/c1", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCredentialEndpoints(t *testing.T) {
	h, st := newTestAPI(t, echoChat(), config.HTTPConfig{})
	ctx := context.Background()

	rec := do(t, h, http.MethodPut, "/api/v1/users/u1/calendar/credentials", `{"token_type":"Bearer"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, h, http.MethodPut, "/api/v1/users/u1/calendar/credentials",
		`{"access_token":"at","refresh_token":"rt","expiry":"2025-06-02T11:07:00Z"}`)
	require.Equal(t, http.StatusNoContent, rec.Code, rec.Body.String())

	creds, err := st.GetCredentials(ctx, "u1")
	require.NoError(t, err)
	require.NotNil(t, creds)
	assert.Equal(t, "at", creds.AccessToken)
	assert.Equal(t, "rt", creds.RefreshToken)
	assert.Equal(t, fixedNow, creds.UpdatedAt)

	rec = do(t, h, http.MethodDelete, "/api/v1/users/u1/calendar/credentials", "")
	assert.Equal(t, http.StatusNoContent, rec.Code)
	creds, err = st.GetCredentials(ctx, "u1")
	require.NoError(t, err)
	assert.Nil(t, creds)
}

func TestTodoEndpoints(t *testing.T) {
	h, _ := newTestAPI(t, echoChat(), config.HTTPConfig{})

	rec := do(t, h, http.MethodPost, "/api/v1/users/u1/todos", `{"title":""}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, h, http.MethodPost, "/api/v1/users/u1/todos", `{"title":"  Send agenda ","due_date":"2025-06-03T09:00:00Z"}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var created domain.TodoItem
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
	assert.NotEmpty(t, created.ID)
	assert.Equal(t, "Send agenda", created.Title)
	require.NotNil(t, created.DueDate)

	rec = do(t, h, http.MethodPost, "/api/v1/users/u1/todos", `{"title":"Book room"}`)
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = do(t, h, http.MethodPatch, "/api/v1/users/u1/todos/"+created.ID, `{"done":true}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var updated domain.TodoItem
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &updated))
	assert.True(t, updated.Done)
	assert.Equal(t, "Send agenda", updated.Title)

	rec = do(t, h, http.MethodGet, "/api/v1/users/u1/todos", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var list struct {
		Todos []domain.TodoItem `json:"todos"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	assert.Len(t, list.Todos, 2)

	rec = do(t, h, http.MethodGet, "/api/v1/users/u2/todos", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"todos":[]}`, rec.Body.String())

	rec = do(t, h, http.MethodPatch, "/api/v1/users/u2/todos/"+created.ID, `{"done":true}`)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = do(t, h, http.MethodDelete, "/api/v1/users/u1/todos/"+created.ID, "")
	assert.Equal(t, http.StatusNoContent, rec.Code)
	rec = do(t, h, http.MethodDelete, "/api/v1/users/u1/todos/"+created.ID, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, string(domain.CodeTodoNotFound), decodeError(t, rec).Code)
}

func TestRateLimit(t *testing.T) {
	h, _ := newTestAPI(t, echoChat(), config.HTTPConfig{RateLimit: 0.001, RateBurst: 2})
	for i := 0; i < 2; i++ {
		assert.Equal(t, http.StatusOK, do(t, h, http.MethodGet, "/api/v1/health", "").Code)
	}
	rec := do(t, h, http.MethodGet, "/api/v1/health", "")
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("Retry-After"))
}

func TestUnknownRouteAndMethod(t *testing.T) {
	h, _ := newTestAPI(t, echoChat(), config.HTTPConfig{})

	rec := do(t, h, http.MethodGet, "/api/v1/nope", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, string(domain.CodeNotFound), decodeError(t, rec).Code)

	rec = do(t, h, http.MethodGet, "/api/v1/chat", "")
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestPanicRecovered(t *testing.T) {
	chat := &stubChat{fn: func(context.Context, usecase.ChatInput) (*usecase.ChatOutput, error) {
		panic("boom")
	}}
	h, _ := newTestAPI(t, chat, config.HTTPConfig{})
	rec := do(t, h, http.MethodPost, "/api/v1/chat", `{"user_id":"u1","content":"hi"}`)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestStartStop(t *testing.T) {
	ch := NewHTTPChannel(config.HTTPConfig{Addr: "127.0.0.1:0", MaxBodyBytes: 1 << 20}, HTTPDeps{
		Chat:   echoChat(),
		Logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	require.NoError(t, ch.Start(context.Background()))

	resp, err := http.Post("http://"+ch.Addr()+"/api/v1/chat", "application/json",
		bytes.NewBufferString(`{"user_id":"u1","content":"ping"}`))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	// Store-backed routes are not mounted without stores.
	resp2, err := http.Get("http://" + ch.Addr() + "/api/v1/conversations/x")
	require.NoError(t, err)
	resp2.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp2.StatusCode)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, ch.Stop(ctx))
}

package tool

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace"

	"secretary-ai/internal/domain"
)

func TestExecute_SuccessJSON(t *testing.T) {
	type params struct {
		Name string `json:"name"`
	}

	res, err := Execute(context.Background(), "test.tool", nopLogger(), json.RawMessage(`{"name":"alice"}`),
		func(_ context.Context, _ trace.Span, p params) (any, error) {
			return map[string]any{"success": true, "greeting": "hello " + p.Name}, nil
		})

	require.NoError(t, err)
	assert.False(t, res.IsError)
	m := decode(t, res)
	assert.Equal(t, true, m["success"])
	assert.Equal(t, "hello alice", m["greeting"])
}

func TestExecute_HandlerErrorBecomesFailure(t *testing.T) {
	res, err := Execute(context.Background(), "test.tool", nopLogger(), json.RawMessage(`{}`),
		func(_ context.Context, _ trace.Span, _ struct{}) (any, error) {
			return nil, errors.New("calendar exploded")
		})

	require.NoError(t, err)
	assert.True(t, res.IsError)
	m := decode(t, res)
	assert.Equal(t, false, m["success"])
	assert.Equal(t, "calendar exploded", m["error"])
	assert.NotContains(t, m, "retryable")
}

func TestExecute_RetryableFailure(t *testing.T) {
	res, err := Execute(context.Background(), "test.tool", nopLogger(), nil,
		func(_ context.Context, _ trace.Span, _ struct{}) (any, error) {
			return nil, fmt.Errorf("google: %w", domain.ErrRateLimit)
		})

	require.NoError(t, err)
	assert.True(t, res.IsRetryable)
	assert.Equal(t, true, decode(t, res)["retryable"])
}

func TestExecute_InvalidParams(t *testing.T) {
	called := false
	res, err := Execute(context.Background(), "test.tool", nopLogger(), json.RawMessage(`{bad`),
		func(_ context.Context, _ trace.Span, _ struct{}) (any, error) {
			called = true
			return nil, nil
		})

	require.NoError(t, err)
	assert.False(t, called)
	assert.True(t, res.IsError)
	assert.Contains(t, decode(t, res)["error"], "invalid params")
}

func TestExecute_StructValidation(t *testing.T) {
	type params struct {
		Date string `json:"date" validate:"required,datetime=2006-01-02"`
		Days int    `json:"days" validate:"omitempty,max=31"`
	}

	res, err := Execute(context.Background(), "test.tool", nopLogger(), json.RawMessage(`{"date":"tomorrow","days":90}`),
		func(_ context.Context, _ trace.Span, _ params) (any, error) {
			t.Fatal("handler must not run")
			return nil, nil
		})

	require.NoError(t, err)
	msg := decode(t, res)["error"].(string)
	assert.Contains(t, msg, "'date' must match layout 2006-01-02")
	assert.Contains(t, msg, "'days' must be at most 31")
}

func TestExecute_PassThroughToolResult(t *testing.T) {
	want := &domain.ToolResult{Content: "custom"}
	res, err := Execute(context.Background(), "test.tool", nopLogger(), nil,
		func(_ context.Context, _ trace.Span, _ struct{}) (any, error) {
			return want, nil
		})

	require.NoError(t, err)
	assert.Same(t, want, res)
}

func TestTransient(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"wrapped timeout", fmt.Errorf("x: %w", domain.ErrTimeout), true},
		{"rate limit", domain.ErrRateLimit, true},
		{"deadline", context.DeadlineExceeded, true},
		{"google 503 text", errors.New("googleapi: Error 503: Service Unavailable"), true},
		{"dial timeout", &net.OpError{Op: "dial", Err: timeoutErr{}}, true},
		{"plain failure", errors.New("invalid date"), false},
		{"auth", domain.ErrAuthInvalid, false},
		{"invalid input wrapped as provider", domain.NewDomainError("google", domain.ErrInvalidInput, "bad attendee"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, transient(tt.err))
		})
	}
}

type timeoutErr struct{}

func (timeoutErr) Error() string   { return "i/o wait" }
func (timeoutErr) Timeout() bool   { return true }
func (timeoutErr) Temporary() bool { return true }

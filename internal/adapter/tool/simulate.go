package tool

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"maps"

	"secretary-ai/internal/domain"
)

// AuthorizedFunc reports whether the current turn may use the real calendar.
type AuthorizedFunc func(ctx context.Context) bool

// Simulator produces the payload returned in place of a real call. The
// wrapper adds "success": true and "simulated": true.
type Simulator func(ctx context.Context, params json.RawMessage) (map[string]any, error)

// CalendarAuthorized is the AuthorizedFunc for tools that need a calendar in
// the context.
func CalendarAuthorized(ctx context.Context) bool {
	_, ok := domain.CalendarFromContext(ctx)
	return ok
}

// rejectedParams carries the failure ParseParams built for arguments that do
// not parse or validate. The wrapper returns it unchanged, so bad arguments
// fail even without credentials and the model can correct them.
type rejectedParams struct{ result *domain.ToolResult }

func (r *rejectedParams) Error() string { return r.result.Content }

type simulatedFallbackTool struct {
	inner        domain.Tool
	isAuthorized AuthorizedFunc
	simulate     Simulator
	logger       *slog.Logger
}

// WithSimulatedFallback wraps a tool so that, when isAuthorized is false, the
// inner tool is never executed and a simulated success is returned instead.
func WithSimulatedFallback(t domain.Tool, isAuthorized AuthorizedFunc, simulate Simulator, logger *slog.Logger) domain.Tool {
	if logger == nil {
		logger = slog.Default()
	}
	return &simulatedFallbackTool{inner: t, isAuthorized: isAuthorized, simulate: simulate, logger: logger}
}

func (s *simulatedFallbackTool) Name() string              { return s.inner.Name() }
func (s *simulatedFallbackTool) Description() string       { return s.inner.Description() }
func (s *simulatedFallbackTool) Schema() domain.ToolSchema { return s.inner.Schema() }

func (s *simulatedFallbackTool) Execute(ctx context.Context, params json.RawMessage) (*domain.ToolResult, error) {
	if s.isAuthorized(ctx) {
		return s.inner.Execute(ctx, params)
	}

	s.logger.Debug("calendar credentials absent, simulating", "tool", s.inner.Name())

	payload := map[string]any{}
	if s.simulate != nil {
		extra, err := s.simulate(ctx, params)
		var rejected *rejectedParams
		if errors.As(err, &rejected) {
			return rejected.result, nil
		}
		if err != nil {
			return FailureResult(fmt.Sprintf("%s: %v", s.inner.Name(), err), false), nil
		}
		maps.Copy(payload, extra)
	}
	payload["success"] = true
	payload["simulated"] = true
	return JSONResult(payload)
}

// IsSimulated reports whether a tool result came from the simulated path.
func IsSimulated(content string) bool {
	var probe struct {
		Simulated bool `json:"simulated"`
	}
	if err := json.Unmarshal([]byte(content), &probe); err != nil {
		return false
	}
	return probe.Simulated
}

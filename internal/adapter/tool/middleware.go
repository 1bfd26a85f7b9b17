package tool

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"go.opentelemetry.io/otel/trace"

	"secretary-ai/internal/domain"
	"secretary-ai/internal/infra/tracer"
)

// Failure is the payload every failed tool call serializes to, so the model
// always sees {"success": false, "error": "..."}.
type Failure struct {
	Success   bool   `json:"success"`
	Error     string `json:"error"`
	Retryable bool   `json:"retryable,omitempty"`
}

// Execute is the standard tool execution pipeline: parse params -> validate
// -> start trace -> run handler -> format result.
//
// The handler receives the parsed params and an active trace span. It should return:
//   - (any Go value, nil): JSON-marshaled into a success ToolResult
//   - (*domain.ToolResult, nil): returned as-is
//   - (nil, error): turned into a Failure ToolResult with logging
func Execute[P any](
	ctx context.Context,
	spanName string,
	logger *slog.Logger,
	rawParams json.RawMessage,
	handler func(ctx context.Context, span trace.Span, params P) (any, error),
) (*domain.ToolResult, error) {
	ctx, span := tracer.StartSpan(ctx, spanName,
		trace.WithAttributes(tracer.StringAttr("tool.name", spanName)),
	)
	defer span.End()

	p, bad := ParseParams[P](rawParams)
	if bad != nil {
		tracer.RecordError(span, fmt.Errorf("%s", bad.Content))
		return bad, nil
	}

	result, err := handler(ctx, span, p)
	if err != nil {
		tracer.RecordError(span, err)
		logger.Warn(spanName+" failed", "error", err)
		return FailureResult(err.Error(), transient(err)), nil
	}

	return formatResult(span, result)
}

// formatResult converts the handler's return value into a ToolResult.
func formatResult(span trace.Span, result any) (*domain.ToolResult, error) {
	if v, ok := result.(*domain.ToolResult); ok {
		if v.IsError {
			tracer.RecordError(span, fmt.Errorf("%s", v.Content))
		} else {
			tracer.SetOK(span)
		}
		return v, nil
	}
	res, err := JSONResult(result)
	if err != nil {
		tracer.RecordError(span, err)
		return FailureResult(fmt.Sprintf("failed to format response: %v", err), false), nil
	}
	tracer.SetOK(span)
	return res, nil
}

// ParseParams unmarshals rawParams into P and runs struct validation.
// On failure it returns a Failure ToolResult suitable for returning directly.
func ParseParams[P any](rawParams json.RawMessage) (P, *domain.ToolResult) {
	var p P
	if len(rawParams) == 0 {
		rawParams = json.RawMessage("{}")
	}
	if err := json.Unmarshal(rawParams, &p); err != nil {
		return p, FailureResult(fmt.Sprintf("invalid params: %v", err), false)
	}
	if err := ValidateStruct(p); err != nil {
		return p, FailureResult(err.Error(), false)
	}
	return p, nil
}

// FailureResult builds an error ToolResult whose content is a Failure payload.
func FailureResult(msg string, retryable bool) *domain.ToolResult {
	data, _ := json.Marshal(Failure{Error: msg, Retryable: retryable})
	return &domain.ToolResult{IsError: true, IsRetryable: retryable, Content: string(data)}
}

// JSONResult marshals v as JSON into a success ToolResult.
func JSONResult(v any) (*domain.ToolResult, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("marshal result: %w", err)
	}
	return &domain.ToolResult{Content: string(data)}, nil
}

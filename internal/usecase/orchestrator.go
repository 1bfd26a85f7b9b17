package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/trace"

	"secretary-ai/internal/domain"
	"secretary-ai/internal/infra/tracer"
)

// turnState is the orchestrator's position within one chat turn.
type turnState int

const (
	awaitingInitialResponse turnState = iota
	awaitingFinalResponse
)

func (s turnState) stage() domain.ModelCallStage {
	if s == awaitingFinalResponse {
		return domain.StageFinal
	}
	return domain.StageInitial
}

// TurnInput is everything one chat turn needs.
type TurnInput struct {
	SystemPrompt string
	Summaries    []string
	History      []domain.Message
	UserMessage  string
	// ToolsEnabled offers the registry's tools on the initial model call.
	ToolsEnabled bool
}

// TurnOutput is the outcome of a completed turn.
type TurnOutput struct {
	Text string
	// Messages are the new messages produced by this turn, in order: the user
	// message, then (when tools ran) the assistant tool-call message and one
	// tool message per call, then the final assistant message.
	Messages  []domain.Message
	ToolCalls []domain.ToolCall
	Usage     domain.Usage
}

// OrchestratorDeps holds the orchestrator's collaborators.
type OrchestratorDeps struct {
	LLM            domain.LLMProvider
	Tools          domain.ToolExecutor
	ContextBuilder *ContextBuilder
	Logger         *slog.Logger
}

// Orchestrator runs a single chat turn: model call, optional tool execution,
// follow-up model call.
type Orchestrator struct {
	deps OrchestratorDeps
}

// NewOrchestrator creates an orchestrator.
func NewOrchestrator(deps OrchestratorDeps) *Orchestrator {
	if deps.ContextBuilder == nil {
		deps.ContextBuilder = NewContextBuilder(ContextBuilderConfig{})
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	return &Orchestrator{deps: deps}
}

// RunTurn executes one turn. Only a failed model call is returned as an
// error (a *domain.ModelCallError); tool problems become tool-result content.
func (o *Orchestrator) RunTurn(ctx context.Context, in TurnInput) (*TurnOutput, error) {
	ctx, span := tracer.StartSpan(ctx, "orchestrator.turn",
		trace.WithAttributes(tracer.BoolAttr("tools.enabled", in.ToolsEnabled)),
	)
	defer span.End()

	userMsg := domain.Message{Role: domain.RoleUser, Content: in.UserMessage, Timestamp: time.Now()}
	req := o.deps.ContextBuilder.Build(in.SystemPrompt, in.Summaries, in.History, userMsg)

	out := &TurnOutput{Messages: []domain.Message{userMsg}}
	state := awaitingInitialResponse

	for {
		switch state {
		case awaitingInitialResponse:
			if in.ToolsEnabled && o.deps.Tools != nil {
				req.Tools = o.deps.Tools.Schemas()
				if len(req.Tools) > 0 {
					req.ToolChoice = domain.ToolChoiceAuto
				}
			}
			resp, err := o.callModel(ctx, state, req)
			if err != nil {
				tracer.RecordError(span, err)
				return nil, err
			}
			out.Usage.Add(resp.Usage)

			if len(resp.Message.ToolCalls) == 0 {
				o.finish(out, resp.Message)
				tracer.SetOK(span)
				return out, nil
			}

			assistant := resp.Message
			assistant.Role = domain.RoleAssistant
			if assistant.Timestamp.IsZero() {
				assistant.Timestamp = time.Now()
			}
			results := o.executeTools(ctx, assistant.ToolCalls)

			out.ToolCalls = append(out.ToolCalls, assistant.ToolCalls...)
			out.Messages = append(out.Messages, assistant)
			out.Messages = append(out.Messages, results...)

			req.Messages = append(req.Messages, assistant)
			req.Messages = append(req.Messages, results...)
			req.Tools = nil
			req.ToolChoice = ""
			state = awaitingFinalResponse

		case awaitingFinalResponse:
			resp, err := o.callModel(ctx, state, req)
			if err != nil {
				tracer.RecordError(span, err)
				return nil, err
			}
			out.Usage.Add(resp.Usage)
			if n := len(resp.Message.ToolCalls); n > 0 {
				o.deps.Logger.Warn("ignoring tool calls in final response", "count", n)
			}
			o.finish(out, resp.Message)
			span.SetAttributes(tracer.IntAttr("tool.calls", len(out.ToolCalls)))
			tracer.SetOK(span)
			return out, nil
		}
	}
}

func (o *Orchestrator) finish(out *TurnOutput, msg domain.Message) {
	final := domain.Message{
		Role:      domain.RoleAssistant,
		Content:   msg.Content,
		Timestamp: msg.Timestamp,
	}
	if final.Timestamp.IsZero() {
		final.Timestamp = time.Now()
	}
	out.Text = final.Content
	out.Messages = append(out.Messages, final)
}

func (o *Orchestrator) callModel(ctx context.Context, state turnState, req domain.ChatRequest) (*domain.ChatResponse, error) {
	stage := state.stage()
	ctx, span := tracer.StartSpan(ctx, "orchestrator.model_call",
		trace.WithAttributes(
			tracer.StringAttr("llm.stage", string(stage)),
			tracer.IntAttr("llm.tools", len(req.Tools)),
		),
	)
	defer span.End()

	resp, err := o.deps.LLM.Chat(ctx, req)
	if err == nil && resp == nil {
		err = errors.New("empty response")
	}
	if err != nil {
		tracer.RecordError(span, err)
		o.deps.Logger.Error("model call failed", "stage", stage, "provider", o.deps.LLM.Name(), "error", err)
		return nil, &domain.ModelCallError{Stage: stage, Err: err}
	}

	o.deps.Logger.Debug("llm response",
		"stage", stage,
		"tool_calls", len(resp.Message.ToolCalls),
		"tokens", resp.Usage.TotalTokens,
	)
	tracer.SetOK(span)
	return resp, nil
}

// executeTools runs calls one at a time in the order received and returns
// exactly one tool message per call.
func (o *Orchestrator) executeTools(ctx context.Context, calls []domain.ToolCall) []domain.Message {
	results := make([]domain.Message, 0, len(calls))
	for _, call := range calls {
		results = append(results, domain.Message{
			Role:       domain.RoleTool,
			Name:       call.Name,
			Content:    o.executeTool(ctx, call),
			ToolCallID: call.ID,
			Timestamp:  time.Now(),
		})
	}
	return results
}

func (o *Orchestrator) executeTool(ctx context.Context, call domain.ToolCall) (content string) {
	ctx, span := tracer.StartSpan(ctx, "orchestrator.execute_tool",
		trace.WithAttributes(tracer.StringAttr("tool.name", call.Name)),
	)
	defer span.End()

	defer func() {
		if r := recover(); r != nil {
			err := fmt.Errorf("%w: panic: %v", domain.ErrToolFailure, r)
			tracer.RecordError(span, err)
			o.deps.Logger.Error("tool panicked", "tool", call.Name, "panic", r)
			content = toolFailure(fmt.Sprintf("tool panicked: %v", r))
		}
	}()

	if o.deps.Tools == nil {
		return toolNotFound(call.Name)
	}
	tool, err := o.deps.Tools.Get(call.Name)
	if err != nil {
		tracer.RecordError(span, err)
		o.deps.Logger.Warn("tool not found", "tool", call.Name)
		return toolNotFound(call.Name)
	}

	result, err := tool.Execute(ctx, call.Arguments)
	if err != nil {
		tracer.RecordError(span, err)
		o.deps.Logger.Warn("tool failed", "tool", call.Name, "error", err)
		return toolFailure(err.Error())
	}
	if result == nil {
		return toolFailure("tool returned no result")
	}
	if result.IsError {
		o.deps.Logger.Debug("tool returned error result", "tool", call.Name)
	} else {
		tracer.SetOK(span)
	}
	return result.Content
}

func toolFailure(msg string) string {
	return mustJSON(map[string]any{"success": false, "error": msg})
}

func toolNotFound(name string) string {
	return mustJSON(map[string]any{"success": false, "error": "tool not found", "tool": name})
}

// toolResultPayload decodes a tool message's JSON content, returning nil for
// non-JSON content.
func toolResultPayload(content string) map[string]any {
	var m map[string]any
	if err := json.Unmarshal([]byte(content), &m); err != nil {
		return nil
	}
	return m
}

package llm

import (
	"encoding/json"
	"time"

	"secretary-ai/internal/domain"
)

// Chat-completions wire format shared by OpenAI, OpenRouter and Ollama.

type completionRequest struct {
	Model       string        `json:"model"`
	Messages    []wireMessage `json:"messages"`
	Tools       []wireTool    `json:"tools,omitempty"`
	ToolChoice  string        `json:"tool_choice,omitempty"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
	Temperature *float64      `json:"temperature,omitempty"`
}

type wireMessage struct {
	Role       string     `json:"role"`
	Content    string     `json:"content,omitempty"`
	Name       string     `json:"name,omitempty"`
	ToolCalls  []wireCall `json:"tool_calls,omitempty"`
	ToolCallID string     `json:"tool_call_id,omitempty"`
}

type wireTool struct {
	Type     string       `json:"type"`
	Function wireFunction `json:"function"`
}

type wireFunction struct {
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	Parameters  json.RawMessage `json:"parameters,omitempty"`
	Arguments   string          `json:"arguments,omitempty"`
}

type wireCall struct {
	ID       string       `json:"id"`
	Type     string       `json:"type"`
	Function wireFunction `json:"function"`
}

type completionResponse struct {
	ID      string       `json:"id"`
	Model   string       `json:"model"`
	Created int64        `json:"created"`
	Choices []wireChoice `json:"choices"`
	Usage   domain.Usage `json:"usage"`
}

type wireChoice struct {
	Message      wireMessage `json:"message"`
	FinishReason string      `json:"finish_reason"`
}

// encodeCompletion maps a domain request onto the wire. Tool results carry
// their call id, assistant turns carry their tool calls, and tool_choice is
// dropped when no tools are offered.
func encodeCompletion(req domain.ChatRequest) completionRequest {
	out := completionRequest{
		Model:     req.Model,
		Messages:  make([]wireMessage, len(req.Messages)),
		MaxTokens: max(req.MaxTokens, 0),
	}
	if req.Temperature > 0 {
		t := req.Temperature
		out.Temperature = &t
	}
	for i, m := range req.Messages {
		wm := wireMessage{Role: m.Role, Content: m.Content}
		switch m.Role {
		case domain.RoleTool:
			wm.ToolCallID = m.ToolCallID
		case domain.RoleAssistant:
			for _, tc := range m.ToolCalls {
				wm.ToolCalls = append(wm.ToolCalls, wireCall{
					ID:       tc.ID,
					Type:     "function",
					Function: wireFunction{Name: tc.Name, Arguments: string(tc.Arguments)},
				})
			}
		default:
			wm.Name = m.Name
		}
		out.Messages[i] = wm
	}
	if len(req.Tools) == 0 {
		return out
	}
	for _, t := range req.Tools {
		out.Tools = append(out.Tools, wireTool{
			Type:     "function",
			Function: wireFunction{Name: t.Name, Description: t.Description, Parameters: t.Parameters},
		})
	}
	out.ToolChoice = req.ToolChoice
	return out
}

// decodeCompletion reads the first choice. Callers ensure there is one.
// Missing tool arguments become "{}".
func decodeCompletion(resp completionResponse, now func() time.Time) *domain.ChatResponse {
	created := now()
	if resp.Created > 0 {
		created = time.Unix(resp.Created, 0)
	}
	wm := resp.Choices[0].Message
	msg := domain.Message{Role: domain.RoleAssistant, Content: wm.Content, Timestamp: created}
	for _, c := range wm.ToolCalls {
		args := json.RawMessage(c.Function.Arguments)
		if len(args) == 0 {
			args = json.RawMessage("{}")
		}
		msg.ToolCalls = append(msg.ToolCalls, domain.ToolCall{ID: c.ID, Name: c.Function.Name, Arguments: args})
	}
	return &domain.ChatResponse{
		ID:        resp.ID,
		Model:     resp.Model,
		Message:   msg,
		Usage:     resp.Usage,
		CreatedAt: created,
	}
}

package domain

import "time"

const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleTool      = "tool"
)

// ToolChoiceAuto lets the model decide whether to call a tool. It is only
// sent alongside a non-empty tool list.
const ToolChoiceAuto = "auto"

// Message is one entry of a conversation transcript. An assistant message
// may request ToolCalls; each is answered by a RoleTool message whose
// ToolCallID names the call.
type Message struct {
	Role       string     `json:"role"`
	Content    string     `json:"content"`
	Name       string     `json:"name,omitempty"`
	ToolCalls  []ToolCall `json:"tool_calls,omitempty"`
	ToolCallID string     `json:"tool_call_id,omitempty"`
	Timestamp  time.Time  `json:"timestamp"`
}

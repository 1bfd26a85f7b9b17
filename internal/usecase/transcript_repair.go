package usecase

import (
	"encoding/json"
	"time"

	"secretary-ai/internal/domain"
)

// RepairTranscript scans stored history and fixes broken tool chains:
//  1. If an Assistant message has ToolCalls that never received a result,
//     an error result is injected.
//  2. A tool result without a preceding matching tool call is dropped.
//
// Returns a new slice (does not modify the input).
func RepairTranscript(messages []domain.Message) []domain.Message {
	if len(messages) == 0 {
		return messages
	}

	result := make([]domain.Message, 0, len(messages))
	var pending []domain.ToolCall

	for _, msg := range messages {
		switch msg.Role {
		case domain.RoleAssistant:
			result = injectMissingResults(result, pending)
			pending = pending[:0]
			for _, tc := range msg.ToolCalls {
				if tc.ID != "" {
					pending = append(pending, tc)
				}
			}
			result = append(result, msg)

		case domain.RoleTool:
			idx := indexOfCall(pending, msg.ToolCallID)
			if idx < 0 {
				continue
			}
			pending = append(pending[:idx], pending[idx+1:]...)
			result = append(result, msg)

		default:
			result = injectMissingResults(result, pending)
			pending = pending[:0]
			result = append(result, msg)
		}
	}

	return injectMissingResults(result, pending)
}

func indexOfCall(calls []domain.ToolCall, id string) int {
	if id == "" {
		return -1
	}
	for i, c := range calls {
		if c.ID == id {
			return i
		}
	}
	return -1
}

var missingResultContent = mustJSON(map[string]any{
	"success": false,
	"error":   "tool call did not produce a result",
})

// injectMissingResults appends error results for each pending call, in call order.
func injectMissingResults(msgs []domain.Message, pending []domain.ToolCall) []domain.Message {
	for _, tc := range pending {
		msgs = append(msgs, domain.Message{
			Role:       domain.RoleTool,
			Name:       tc.Name,
			Content:    missingResultContent,
			ToolCallID: tc.ID,
			Timestamp:  time.Now(),
		})
	}
	return msgs
}

func mustJSON(v any) string {
	data, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	return string(data)
}

package usecase

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"secretary-ai/internal/domain"
)

func TestRepairTranscript_Empty(t *testing.T) {
	assert.Empty(t, RepairTranscript(nil))
}

func TestRepairTranscript_IntactChainUnchanged(t *testing.T) {
	in := []domain.Message{
		{Role: domain.RoleUser, Content: "hi"},
		{Role: domain.RoleAssistant, ToolCalls: []domain.ToolCall{{ID: "c1", Name: "list_events"}}},
		{Role: domain.RoleTool, ToolCallID: "c1", Content: "{}"},
		{Role: domain.RoleAssistant, Content: "nothing today"},
	}
	assert.Equal(t, in, RepairTranscript(in))
}

func TestRepairTranscript_InjectsMissingResults(t *testing.T) {
	in := []domain.Message{
		{Role: domain.RoleAssistant, ToolCalls: []domain.ToolCall{{ID: "c1", Name: "a"}, {ID: "c2", Name: "b"}}},
		{Role: domain.RoleTool, ToolCallID: "c2", Content: "{}"},
		{Role: domain.RoleUser, Content: "next"},
	}
	out := RepairTranscript(in)
	require.Len(t, out, 4)
	assert.Equal(t, "c2", out[1].ToolCallID)
	assert.Equal(t, "c1", out[2].ToolCallID)
	assert.Equal(t, "a", out[2].Name)
	assert.JSONEq(t, `{"success":false,"error":"tool call did not produce a result"}`, out[2].Content)
	assert.Equal(t, domain.RoleUser, out[3].Role)
}

func TestRepairTranscript_DropsOrphans(t *testing.T) {
	in := []domain.Message{
		{Role: domain.RoleUser, Content: "hi"},
		{Role: domain.RoleTool, ToolCallID: "ghost", Content: "{}"},
		{Role: domain.RoleTool, Content: "no id"},
		{Role: domain.RoleAssistant, Content: "hello"},
	}
	out := RepairTranscript(in)
	require.Len(t, out, 2)
	assert.Equal(t, "hello", out[1].Content)
}

func TestRepairTranscript_TrailingPendingCalls(t *testing.T) {
	in := []domain.Message{
		{Role: domain.RoleAssistant, ToolCalls: []domain.ToolCall{{ID: "c1", Name: "a"}}},
	}
	out := RepairTranscript(in)
	require.Len(t, out, 2)
	assert.Equal(t, domain.RoleTool, out[1].Role)
	assert.Equal(t, "c1", out[1].ToolCallID)
}

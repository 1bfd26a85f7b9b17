package usecase

import (
	"time"

	"secretary-ai/internal/domain"
)

// ContextBuilder constructs the prompt message array for a turn.
type ContextBuilder struct {
	model       string
	maxMessages int
	maxTokens   int
	temperature float64
	now         func() time.Time
	loc         *time.Location
}

// ContextBuilderConfig configures a ContextBuilder. Zero values fall back to
// unlimited history, the provider's default sampling and the local clock.
type ContextBuilderConfig struct {
	Model       string
	MaxMessages int
	MaxTokens   int
	Temperature float64
	Now         func() time.Time
	Location    *time.Location
}

// NewContextBuilder creates a new context builder.
func NewContextBuilder(cfg ContextBuilderConfig) *ContextBuilder {
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Location == nil {
		cfg.Location = time.Local
	}
	return &ContextBuilder{
		model:       cfg.Model,
		maxMessages: cfg.MaxMessages,
		maxTokens:   cfg.MaxTokens,
		temperature: cfg.Temperature,
		now:         cfg.Now,
		loc:         cfg.Location,
	}
}

// Build assembles: system prompt (with the current date) + context summaries
// + repaired, truncated history + the new user message.
func (cb *ContextBuilder) Build(systemPrompt string, summaries []string, history []domain.Message, user domain.Message) domain.ChatRequest {
	now := cb.now().In(cb.loc)
	messages := make([]domain.Message, 0, 2+len(summaries)+len(history))

	content := systemPrompt
	if content != "" {
		content += "\n\n"
	}
	content += "Current date and time: " + now.Format("Monday, January 2, 2006 15:04 MST") +
		" (" + cb.loc.String() + ")."
	messages = append(messages, domain.Message{
		Role:      domain.RoleSystem,
		Content:   content,
		Timestamp: now,
	})

	for _, s := range summaries {
		if s == "" {
			continue
		}
		messages = append(messages, domain.Message{
			Role:      domain.RoleSystem,
			Content:   s,
			Timestamp: now,
		})
	}

	hist := RepairTranscript(history)
	hist = cb.truncateHistory(hist)
	messages = append(messages, hist...)
	messages = append(messages, user)

	return domain.ChatRequest{
		Model:       cb.model,
		Messages:    messages,
		MaxTokens:   cb.maxTokens,
		Temperature: cb.temperature,
	}
}

func (cb *ContextBuilder) truncateHistory(history []domain.Message) []domain.Message {
	if cb.maxMessages <= 0 || len(history) <= cb.maxMessages {
		return history
	}

	// [Assistant(tool_calls), ToolResult...] groups are never split.
	groups := groupMessages(history)

	var kept [][]domain.Message
	total := 0
	for i := len(groups) - 1; i >= 0; i-- {
		groupLen := len(groups[i])
		if total+groupLen > cb.maxMessages && total > 0 {
			break
		}
		kept = append(kept, groups[i])
		total += groupLen
	}

	for i, j := 0, len(kept)-1; i < j; i, j = i+1, j-1 {
		kept[i], kept[j] = kept[j], kept[i]
	}

	result := make([]domain.Message, 0, total)
	for _, g := range kept {
		result = append(result, g...)
	}

	// Never start the window on a bare tool result.
	for len(result) > 0 && result[0].Role == domain.RoleTool {
		result = result[1:]
	}
	return result
}

// groupMessages partitions messages into atomic groups.
// An assistant message with tool calls and its immediately following
// tool result messages form a single group. All other messages are
// individual groups.
func groupMessages(msgs []domain.Message) [][]domain.Message {
	var groups [][]domain.Message
	i := 0
	for i < len(msgs) {
		msg := msgs[i]
		if msg.Role == domain.RoleAssistant && len(msg.ToolCalls) > 0 {
			group := []domain.Message{msg}
			j := i + 1
			for j < len(msgs) && msgs[j].Role == domain.RoleTool {
				group = append(group, msgs[j])
				j++
			}
			groups = append(groups, group)
			i = j
		} else {
			groups = append(groups, []domain.Message{msg})
			i++
		}
	}
	return groups
}

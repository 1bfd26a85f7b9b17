package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"secretary-ai/internal/domain"
)

// PromptSet holds the system prompt for each chat mode.
type PromptSet struct {
	General  string
	Calendar string
}

// For returns the prompt for mode.
func (p PromptSet) For(mode domain.ChatMode) string {
	if mode == domain.ModeCalendar && p.Calendar != "" {
		return p.Calendar
	}
	return p.General
}

// ChatInput is one incoming user message.
type ChatInput struct {
	ConversationID string
	UserID         string
	Content        string
	Mode           domain.ChatMode
	// Summaries are optional context summaries injected after the system prompt.
	Summaries []string
}

// ChatOutput is the reply to a ChatInput.
type ChatOutput struct {
	ConversationID string
	Content        string
	ToolCalls      []string
	// Simulated is true when at least one calendar tool ran without credentials.
	Simulated bool
	Usage     domain.Usage
}

// ChatDeps holds the chat service's collaborators. Credentials and Calendar
// may be nil, in which case calendar tools always simulate.
type ChatDeps struct {
	Orchestrator  *Orchestrator
	Conversations domain.ConversationStore
	Credentials   domain.CredentialStore
	Calendar      domain.CalendarConnector
	Prompts       PromptSet
	TurnTimeout   time.Duration
	Logger        *slog.Logger
}

// ChatService loads a conversation, resolves calendar access, runs one turn
// and persists the result.
type ChatService struct {
	deps ChatDeps
}

// NewChatService creates a chat service.
func NewChatService(deps ChatDeps) *ChatService {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	return &ChatService{deps: deps}
}

// HandleMessage runs one chat turn for in. The only errors returned are
// invalid input, store failures while loading, and *domain.ModelCallError.
func (s *ChatService) HandleMessage(ctx context.Context, in ChatInput) (*ChatOutput, error) {
	if strings.TrimSpace(in.Content) == "" {
		return nil, domain.NewDomainError("ChatService.HandleMessage", domain.ErrInvalidInput, "content is empty")
	}
	if in.UserID == "" {
		return nil, domain.NewDomainError("ChatService.HandleMessage", domain.ErrInvalidInput, "user_id is empty")
	}
	if in.Mode == "" {
		in.Mode = domain.ModeGeneral
	}
	if !in.Mode.Valid() {
		return nil, domain.NewDomainError("ChatService.HandleMessage", domain.ErrInvalidInput,
			fmt.Sprintf("unknown mode %q", in.Mode))
	}

	conv, err := s.loadConversation(ctx, in)
	if err != nil {
		return nil, err
	}

	ctx = domain.ContextWithUserID(ctx, in.UserID)
	ctx = domain.ContextWithConversationID(ctx, conv.ID)
	if in.Mode.ToolsEnabled() {
		ctx = s.attachCalendar(ctx, in.UserID)
	}

	if s.deps.TurnTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.deps.TurnTimeout)
		defer cancel()
	}

	turn, err := s.deps.Orchestrator.RunTurn(ctx, TurnInput{
		SystemPrompt: s.deps.Prompts.For(in.Mode),
		Summaries:    in.Summaries,
		History:      conv.Messages,
		UserMessage:  in.Content,
		ToolsEnabled: in.Mode.ToolsEnabled(),
	})
	if err != nil {
		return nil, err
	}

	conv.Mode = in.Mode
	conv.Messages = append(conv.Messages, turn.Messages...)
	conv.UpdatedAt = time.Now()
	if s.deps.Conversations != nil {
		// The user still gets a reply if persistence fails.
		if err := s.deps.Conversations.SaveConversation(context.WithoutCancel(ctx), conv); err != nil {
			s.deps.Logger.Warn("save conversation failed", "conversation", conv.ID, "error", err)
		}
	}

	out := &ChatOutput{
		ConversationID: conv.ID,
		Content:        turn.Text,
		Usage:          turn.Usage,
	}
	for _, tc := range turn.ToolCalls {
		out.ToolCalls = append(out.ToolCalls, tc.Name)
	}
	for _, m := range turn.Messages {
		if m.Role != domain.RoleTool {
			continue
		}
		if p := toolResultPayload(m.Content); p != nil && p["simulated"] == true {
			out.Simulated = true
		}
	}
	return out, nil
}

func (s *ChatService) loadConversation(ctx context.Context, in ChatInput) (*domain.Conversation, error) {
	now := time.Now()
	fresh := &domain.Conversation{
		ID:        NewID(now),
		UserID:    in.UserID,
		Mode:      in.Mode,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if in.ConversationID == "" || s.deps.Conversations == nil {
		if in.ConversationID != "" {
			fresh.ID = in.ConversationID
		}
		return fresh, nil
	}

	conv, err := s.deps.Conversations.GetConversation(ctx, in.ConversationID)
	switch {
	case errors.Is(err, domain.ErrConversationNotFound):
		fresh.ID = in.ConversationID
		return fresh, nil
	case err != nil:
		return nil, domain.WrapOp("ChatService.loadConversation", err)
	case conv.UserID != in.UserID:
		// Another user's conversation is indistinguishable from a missing one.
		return nil, domain.NewDomainError("ChatService.loadConversation", domain.ErrConversationNotFound, in.ConversationID)
	}
	return conv, nil
}

// attachCalendar puts the user's calendar in ctx when valid credentials exist.
// Any failure leaves ctx unchanged so calendar tools simulate.
func (s *ChatService) attachCalendar(ctx context.Context, userID string) context.Context {
	if s.deps.Credentials == nil || s.deps.Calendar == nil {
		return ctx
	}
	creds, err := s.deps.Credentials.GetCredentials(ctx, userID)
	if err != nil {
		s.deps.Logger.Warn("load calendar credentials failed", "user", userID, "error", err)
		return ctx
	}
	if !creds.Valid() {
		return ctx
	}
	cal, err := s.deps.Calendar.Connect(ctx, creds)
	if err != nil {
		s.deps.Logger.Warn("connect calendar failed", "user", userID, "error", err)
		return ctx
	}
	return domain.ContextWithCalendar(ctx, cal)
}

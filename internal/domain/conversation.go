package domain

import (
	"context"
	"time"
)

// ChatMode selects the prompt and tool set used for a turn.
type ChatMode string

const (
	ModeGeneral  ChatMode = "general"
	ModeCalendar ChatMode = "calendar"
)

// ToolsEnabled reports whether tools are offered to the model in this mode.
func (m ChatMode) ToolsEnabled() bool { return m == ModeCalendar }

// Valid reports whether m is a known mode.
func (m ChatMode) Valid() bool { return m == ModeGeneral || m == ModeCalendar }

// Conversation holds an ordered sequence of messages for one user.
type Conversation struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	Mode      ChatMode  `json:"mode"`
	Messages  []Message `json:"messages"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ConversationStore persists conversations.
// Get returns ErrConversationNotFound for unknown ids.
type ConversationStore interface {
	GetConversation(ctx context.Context, id string) (*Conversation, error)
	SaveConversation(ctx context.Context, conv *Conversation) error
	DeleteConversation(ctx context.Context, id string) error
	// PurgeConversationsBefore deletes conversations not updated since cutoff
	// and returns how many were removed.
	PurgeConversationsBefore(ctx context.Context, cutoff time.Time) (int, error)
}

package domain

import "context"

type ctxKey string

const (
	conversationCtxKey ctxKey = "conversation_id"
	userCtxKey         ctxKey = "user_id"
	calendarCtxKey     ctxKey = "calendar"
)

// ContextWithConversationID returns a new context carrying the conversation ID (ULID).
func ContextWithConversationID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, conversationCtxKey, id)
}

// ConversationIDFromContext extracts the conversation ID from the context.
// Returns empty string if not set.
func ConversationIDFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(conversationCtxKey).(string); ok {
		return v
	}
	return ""
}

// ContextWithUserID returns a new context carrying the user ID.
func ContextWithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, userCtxKey, userID)
}

// UserIDFromContext extracts the user ID from the context.
func UserIDFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(userCtxKey).(string); ok {
		return v
	}
	return ""
}

// ContextWithCalendar attaches the calendar the current turn is authorized for.
func ContextWithCalendar(ctx context.Context, p CalendarProvider) context.Context {
	return context.WithValue(ctx, calendarCtxKey, p)
}

// CalendarFromContext returns the authorized calendar for this turn, if any.
func CalendarFromContext(ctx context.Context) (CalendarProvider, bool) {
	p, ok := ctx.Value(calendarCtxKey).(CalendarProvider)
	return p, ok && p != nil
}

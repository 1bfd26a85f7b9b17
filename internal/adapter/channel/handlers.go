package channel

import (
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"secretary-ai/internal/domain"
	"secretary-ai/internal/usecase"
)

type chatRequest struct {
	ConversationID string   `json:"conversation_id" validate:"omitempty,max=128"`
	UserID         string   `json:"user_id" validate:"required,max=128"`
	Content        string   `json:"content" validate:"required,max=32000"`
	Mode           string   `json:"mode" validate:"omitempty,oneof=general calendar"`
	Summaries      []string `json:"summaries" validate:"max=8"`
}

type chatResponse struct {
	ConversationID string       `json:"conversation_id"`
	Content        string       `json:"content"`
	ToolCalls      []string     `json:"tool_calls"`
	Simulated      bool         `json:"simulated"`
	Usage          domain.Usage `json:"usage"`
}

func (h *HTTPChannel) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *HTTPChannel) handleChat(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if err := readJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}

	out, err := h.deps.Chat.HandleMessage(r.Context(), usecase.ChatInput{
		ConversationID: req.ConversationID,
		UserID:         req.UserID,
		Content:        req.Content,
		Mode:           domain.ChatMode(req.Mode),
		Summaries:      req.Summaries,
	})
	if err != nil {
		h.logger.Warn("chat turn failed", "user_id", req.UserID, "error", err)
		writeError(w, err)
		return
	}

	toolCalls := out.ToolCalls
	if toolCalls == nil {
		toolCalls = []string{}
	}
	writeJSON(w, http.StatusOK, chatResponse{
		ConversationID: out.ConversationID,
		Content:        out.Content,
		ToolCalls:      toolCalls,
		Simulated:      out.Simulated,
		Usage:          out.Usage,
	})
}

// loadOwnedConversation fetches a conversation and, when the caller names a
// user, hides conversations that belong to someone else.
func (h *HTTPChannel) loadOwnedConversation(r *http.Request) (*domain.Conversation, error) {
	id := chi.URLParam(r, "id")
	conv, err := h.deps.Conversations.GetConversation(r.Context(), id)
	if err != nil {
		return nil, err
	}
	if user := r.URL.Query().Get("user_id"); user != "" && user != conv.UserID {
		return nil, domain.NewDomainError("http.conversation", domain.ErrConversationNotFound, id)
	}
	return conv, nil
}

func (h *HTTPChannel) handleGetConversation(w http.ResponseWriter, r *http.Request) {
	conv, err := h.loadOwnedConversation(r)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, conv)
}

func (h *HTTPChannel) handleDeleteConversation(w http.ResponseWriter, r *http.Request) {
	conv, err := h.loadOwnedConversation(r)
	if err != nil {
		writeError(w, err)
		return
	}
	if err := h.deps.Conversations.DeleteConversation(r.Context(), conv.ID); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type credentialsRequest struct {
	AccessToken  string    `json:"access_token" validate:"required_without=RefreshToken"`
	RefreshToken string    `json:"refresh_token"`
	TokenType    string    `json:"token_type"`
	Expiry       time.Time `json:"expiry"`
}

func (h *HTTPChannel) handlePutCredentials(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := readJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	userID := chi.URLParam(r, "userID")
	creds := &domain.CalendarCredentials{
		UserID:       userID,
		AccessToken:  req.AccessToken,
		RefreshToken: req.RefreshToken,
		TokenType:    req.TokenType,
		Expiry:       req.Expiry,
		UpdatedAt:    h.deps.Now(),
	}
	if err := h.deps.Credentials.SaveCredentials(r.Context(), creds); err != nil {
		writeError(w, err)
		return
	}
	h.logger.Info("calendar credentials stored", "user_id", userID)
	w.WriteHeader(http.StatusNoContent)
}

func (h *HTTPChannel) handleDeleteCredentials(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")
	if err := h.deps.Credentials.DeleteCredentials(r.Context(), userID); err != nil {
		writeError(w, err)
		return
	}
	h.logger.Info("calendar credentials removed", "user_id", userID)
	w.WriteHeader(http.StatusNoContent)
}

type todoCreateRequest struct {
	Title   string     `json:"title" validate:"required,max=500"`
	DueDate *time.Time `json:"due_date"`
}

type todoUpdateRequest struct {
	Title   *string    `json:"title" validate:"omitempty,min=1,max=500"`
	Done    *bool      `json:"done"`
	DueDate *time.Time `json:"due_date"`
}

func (h *HTTPChannel) handleListTodos(w http.ResponseWriter, r *http.Request) {
	items, err := h.deps.Todos.ListTodos(r.Context(), chi.URLParam(r, "userID"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"todos": items})
}

func (h *HTTPChannel) handleCreateTodo(w http.ResponseWriter, r *http.Request) {
	var req todoCreateRequest
	if err := readJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	now := h.deps.Now()
	item := &domain.TodoItem{
		ID:        usecase.NewID(now),
		UserID:    chi.URLParam(r, "userID"),
		Title:     strings.TrimSpace(req.Title),
		DueDate:   req.DueDate,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if item.Title == "" {
		writeError(w, domain.NewDomainError("http.createTodo", domain.ErrInvalidInput, "title is blank"))
		return
	}
	if err := h.deps.Todos.SaveTodo(r.Context(), item); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, item)
}

func (h *HTTPChannel) handleUpdateTodo(w http.ResponseWriter, r *http.Request) {
	var req todoUpdateRequest
	if err := readJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	item, err := h.deps.Todos.GetTodo(r.Context(), chi.URLParam(r, "userID"), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	if req.Title != nil {
		item.Title = strings.TrimSpace(*req.Title)
	}
	if req.Done != nil {
		item.Done = *req.Done
	}
	if req.DueDate != nil {
		item.DueDate = req.DueDate
	}
	item.UpdatedAt = h.deps.Now()
	if err := h.deps.Todos.SaveTodo(r.Context(), item); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, item)
}

func (h *HTTPChannel) handleDeleteTodo(w http.ResponseWriter, r *http.Request) {
	if err := h.deps.Todos.DeleteTodo(r.Context(), chi.URLParam(r, "userID"), chi.URLParam(r, "id")); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

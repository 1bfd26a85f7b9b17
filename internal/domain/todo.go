package domain

import (
	"context"
	"time"
)

// TodoItem is one entry in a user's to-do list.
type TodoItem struct {
	ID        string     `json:"id"`
	UserID    string     `json:"user_id"`
	Title     string     `json:"title"`
	Done      bool       `json:"done"`
	DueDate   *time.Time `json:"due_date,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
}

// TodoStore persists to-do items. Lookups of unknown items return ErrTodoNotFound.
type TodoStore interface {
	ListTodos(ctx context.Context, userID string) ([]TodoItem, error)
	GetTodo(ctx context.Context, userID, id string) (*TodoItem, error)
	SaveTodo(ctx context.Context, item *TodoItem) error
	DeleteTodo(ctx context.Context, userID, id string) error
}

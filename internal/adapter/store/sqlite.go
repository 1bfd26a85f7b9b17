// Package store persists conversations, calendar credentials and to-do items.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"secretary-ai/internal/domain"
)

// timeLayout is fixed-width so stored timestamps sort lexicographically.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

// OpenSQLite opens (or creates) the SQLite database at path in WAL mode.
// The caller owns the returned *sql.DB.
func OpenSQLite(path string) (*sql.DB, error) {
	if dir := filepath.Dir(path); dir != "" && path != ":memory:" {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return nil, fmt.Errorf("create db dir: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	// A single connection keeps PRAGMAs in effect and serializes writers.
	db.SetMaxOpenConns(1)

	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("%s: %w", pragma, err)
		}
	}
	return db, nil
}

// SQLiteStore implements the conversation, credential and to-do stores on a
// caller-supplied database.
type SQLiteStore struct {
	db *sql.DB
}

var (
	_ domain.ConversationStore = (*SQLiteStore)(nil)
	_ domain.CredentialStore   = (*SQLiteStore)(nil)
	_ domain.TodoStore         = (*SQLiteStore)(nil)
)

// NewSQLiteStore runs the schema migration on db and returns a store.
func NewSQLiteStore(db *sql.DB) (*SQLiteStore, error) {
	if err := migrate(db); err != nil {
		return nil, fmt.Errorf("migrate db: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

func migrate(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS conversations (
			id         TEXT PRIMARY KEY,
			user_id    TEXT NOT NULL,
			mode       TEXT NOT NULL DEFAULT 'general',
			messages   TEXT NOT NULL DEFAULT '[]',
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_conversations_updated ON conversations(updated_at);

		CREATE TABLE IF NOT EXISTS calendar_credentials (
			user_id       TEXT PRIMARY KEY,
			access_token  TEXT NOT NULL,
			refresh_token TEXT NOT NULL DEFAULT '',
			token_type    TEXT NOT NULL DEFAULT '',
			expiry        TEXT NOT NULL DEFAULT '',
			updated_at    TEXT NOT NULL
		);

		CREATE TABLE IF NOT EXISTS todos (
			id         TEXT PRIMARY KEY,
			user_id    TEXT NOT NULL,
			title      TEXT NOT NULL,
			done       INTEGER NOT NULL DEFAULT 0,
			due_date   TEXT,
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_todos_user ON todos(user_id, created_at);
	`)
	return err
}

// --- conversations ---

// GetConversation implements domain.ConversationStore.
func (s *SQLiteStore) GetConversation(ctx context.Context, id string) (*domain.Conversation, error) {
	row := s.db.QueryRowContext(ctx,
		"SELECT id, user_id, mode, messages, created_at, updated_at FROM conversations WHERE id = ?", id)

	var c domain.Conversation
	var mode, msgs, created, updated string
	if err := row.Scan(&c.ID, &c.UserID, &mode, &msgs, &created, &updated); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.NewDomainError("SQLiteStore.GetConversation", domain.ErrConversationNotFound, id)
		}
		return nil, domain.WrapOp("SQLiteStore.GetConversation", err)
	}
	c.Mode = domain.ChatMode(mode)
	if err := json.Unmarshal([]byte(msgs), &c.Messages); err != nil {
		return nil, fmt.Errorf("decode messages for %s: %w", id, err)
	}
	c.CreatedAt = parseTime(created)
	c.UpdatedAt = parseTime(updated)
	return &c, nil
}

// SaveConversation implements domain.ConversationStore (insert or replace).
func (s *SQLiteStore) SaveConversation(ctx context.Context, c *domain.Conversation) error {
	msgs, err := json.Marshal(c.Messages)
	if err != nil {
		return fmt.Errorf("encode messages: %w", err)
	}
	if c.Messages == nil {
		msgs = []byte("[]")
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO conversations (id, user_id, mode, messages, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			user_id = excluded.user_id,
			mode = excluded.mode,
			messages = excluded.messages,
			updated_at = excluded.updated_at`,
		c.ID, c.UserID, string(c.Mode), string(msgs), formatTime(c.CreatedAt), formatTime(c.UpdatedAt),
	)
	return domain.WrapOp("SQLiteStore.SaveConversation", err)
}

// DeleteConversation implements domain.ConversationStore.
func (s *SQLiteStore) DeleteConversation(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, "DELETE FROM conversations WHERE id = ?", id)
	if err != nil {
		return domain.WrapOp("SQLiteStore.DeleteConversation", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.NewDomainError("SQLiteStore.DeleteConversation", domain.ErrConversationNotFound, id)
	}
	return nil
}

// PurgeConversationsBefore implements domain.ConversationStore.
func (s *SQLiteStore) PurgeConversationsBefore(ctx context.Context, cutoff time.Time) (int, error) {
	res, err := s.db.ExecContext(ctx, "DELETE FROM conversations WHERE updated_at < ?", formatTime(cutoff))
	if err != nil {
		return 0, domain.WrapOp("SQLiteStore.PurgeConversationsBefore", err)
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

// --- calendar credentials ---

// GetCredentials implements domain.CredentialStore. Missing credentials are
// reported as (nil, nil).
func (s *SQLiteStore) GetCredentials(ctx context.Context, userID string) (*domain.CalendarCredentials, error) {
	row := s.db.QueryRowContext(ctx,
		"SELECT user_id, access_token, refresh_token, token_type, expiry, updated_at FROM calendar_credentials WHERE user_id = ?",
		userID)

	var c domain.CalendarCredentials
	var expiry, updated string
	if err := row.Scan(&c.UserID, &c.AccessToken, &c.RefreshToken, &c.TokenType, &expiry, &updated); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, domain.WrapOp("SQLiteStore.GetCredentials", err)
	}
	c.Expiry = parseTime(expiry)
	c.UpdatedAt = parseTime(updated)
	return &c, nil
}

// SaveCredentials implements domain.CredentialStore.
func (s *SQLiteStore) SaveCredentials(ctx context.Context, c *domain.CalendarCredentials) error {
	if c.UpdatedAt.IsZero() {
		c.UpdatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO calendar_credentials (user_id, access_token, refresh_token, token_type, expiry, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(user_id) DO UPDATE SET
			access_token = excluded.access_token,
			refresh_token = excluded.refresh_token,
			token_type = excluded.token_type,
			expiry = excluded.expiry,
			updated_at = excluded.updated_at`,
		c.UserID, c.AccessToken, c.RefreshToken, c.TokenType, formatTime(c.Expiry), formatTime(c.UpdatedAt),
	)
	return domain.WrapOp("SQLiteStore.SaveCredentials", err)
}

// DeleteCredentials implements domain.CredentialStore. Deleting absent
// credentials is not an error.
func (s *SQLiteStore) DeleteCredentials(ctx context.Context, userID string) error {
	_, err := s.db.ExecContext(ctx, "DELETE FROM calendar_credentials WHERE user_id = ?", userID)
	return domain.WrapOp("SQLiteStore.DeleteCredentials", err)
}

// --- todos ---

const todoColumns = "id, user_id, title, done, due_date, created_at, updated_at"

// ListTodos implements domain.TodoStore, oldest first.
func (s *SQLiteStore) ListTodos(ctx context.Context, userID string) ([]domain.TodoItem, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT "+todoColumns+" FROM todos WHERE user_id = ? ORDER BY created_at, id", userID)
	if err != nil {
		return nil, domain.WrapOp("SQLiteStore.ListTodos", err)
	}
	defer rows.Close()

	items := []domain.TodoItem{}
	for rows.Next() {
		item, err := scanTodo(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, *item)
	}
	return items, rows.Err()
}

// GetTodo implements domain.TodoStore.
func (s *SQLiteStore) GetTodo(ctx context.Context, userID, id string) (*domain.TodoItem, error) {
	row := s.db.QueryRowContext(ctx,
		"SELECT "+todoColumns+" FROM todos WHERE user_id = ? AND id = ?", userID, id)
	item, err := scanTodo(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.NewDomainError("SQLiteStore.GetTodo", domain.ErrTodoNotFound, id)
	}
	return item, err
}

// SaveTodo implements domain.TodoStore (insert or replace).
func (s *SQLiteStore) SaveTodo(ctx context.Context, item *domain.TodoItem) error {
	var due any
	if item.DueDate != nil {
		due = formatTime(*item.DueDate)
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO todos (`+todoColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			title = excluded.title,
			done = excluded.done,
			due_date = excluded.due_date,
			updated_at = excluded.updated_at
		WHERE todos.user_id = excluded.user_id`,
		item.ID, item.UserID, item.Title, item.Done, due, formatTime(item.CreatedAt), formatTime(item.UpdatedAt),
	)
	return domain.WrapOp("SQLiteStore.SaveTodo", err)
}

// DeleteTodo implements domain.TodoStore.
func (s *SQLiteStore) DeleteTodo(ctx context.Context, userID, id string) error {
	res, err := s.db.ExecContext(ctx, "DELETE FROM todos WHERE user_id = ? AND id = ?", userID, id)
	if err != nil {
		return domain.WrapOp("SQLiteStore.DeleteTodo", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.NewDomainError("SQLiteStore.DeleteTodo", domain.ErrTodoNotFound, id)
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanTodo(row scanner) (*domain.TodoItem, error) {
	var t domain.TodoItem
	var due sql.NullString
	var created, updated string
	if err := row.Scan(&t.ID, &t.UserID, &t.Title, &t.Done, &due, &created, &updated); err != nil {
		return nil, err
	}
	if due.Valid && due.String != "" {
		d := parseTime(due.String)
		t.DueDate = &d
	}
	t.CreatedAt = parseTime(created)
	t.UpdatedAt = parseTime(updated)
	return &t, nil
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		return time.Time{}
	}
	return t
}

package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"secretary-ai/internal/domain"
)

// MemoryStore keeps everything in process memory. It backs development runs
// and takes over when the SQLite database cannot be opened.
type MemoryStore struct {
	mu            sync.RWMutex
	conversations map[string]domain.Conversation
	credentials   map[string]domain.CalendarCredentials
	todos         map[string]domain.TodoItem
}

var (
	_ domain.ConversationStore = (*MemoryStore)(nil)
	_ domain.CredentialStore   = (*MemoryStore)(nil)
	_ domain.TodoStore         = (*MemoryStore)(nil)
)

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		conversations: make(map[string]domain.Conversation),
		credentials:   make(map[string]domain.CalendarCredentials),
		todos:         make(map[string]domain.TodoItem),
	}
}

func (m *MemoryStore) GetConversation(_ context.Context, id string) (*domain.Conversation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.conversations[id]
	if !ok {
		return nil, domain.NewDomainError("MemoryStore.GetConversation", domain.ErrConversationNotFound, id)
	}
	c.Messages = append([]domain.Message(nil), c.Messages...)
	return &c, nil
}

func (m *MemoryStore) SaveConversation(_ context.Context, c *domain.Conversation) error {
	cp := *c
	cp.Messages = append([]domain.Message(nil), c.Messages...)
	m.mu.Lock()
	defer m.mu.Unlock()
	if prev, ok := m.conversations[c.ID]; ok {
		cp.CreatedAt = prev.CreatedAt
	}
	m.conversations[c.ID] = cp
	return nil
}

func (m *MemoryStore) DeleteConversation(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.conversations[id]; !ok {
		return domain.NewDomainError("MemoryStore.DeleteConversation", domain.ErrConversationNotFound, id)
	}
	delete(m.conversations, id)
	return nil
}

func (m *MemoryStore) PurgeConversationsBefore(_ context.Context, cutoff time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for id, c := range m.conversations {
		if c.UpdatedAt.Before(cutoff) {
			delete(m.conversations, id)
			n++
		}
	}
	return n, nil
}

func (m *MemoryStore) GetCredentials(_ context.Context, userID string) (*domain.CalendarCredentials, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.credentials[userID]
	if !ok {
		return nil, nil
	}
	return &c, nil
}

func (m *MemoryStore) SaveCredentials(_ context.Context, c *domain.CalendarCredentials) error {
	if c.UpdatedAt.IsZero() {
		c.UpdatedAt = time.Now().UTC()
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.credentials[c.UserID] = *c
	return nil
}

func (m *MemoryStore) DeleteCredentials(_ context.Context, userID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.credentials, userID)
	return nil
}

func (m *MemoryStore) ListTodos(_ context.Context, userID string) ([]domain.TodoItem, error) {
	m.mu.RLock()
	items := []domain.TodoItem{}
	for _, t := range m.todos {
		if t.UserID == userID {
			items = append(items, t)
		}
	}
	m.mu.RUnlock()

	sort.Slice(items, func(i, j int) bool {
		if !items[i].CreatedAt.Equal(items[j].CreatedAt) {
			return items[i].CreatedAt.Before(items[j].CreatedAt)
		}
		return items[i].ID < items[j].ID
	})
	return items, nil
}

func (m *MemoryStore) GetTodo(_ context.Context, userID, id string) (*domain.TodoItem, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	t, ok := m.todos[id]
	if !ok || t.UserID != userID {
		return nil, domain.NewDomainError("MemoryStore.GetTodo", domain.ErrTodoNotFound, id)
	}
	return &t, nil
}

func (m *MemoryStore) SaveTodo(_ context.Context, item *domain.TodoItem) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if prev, ok := m.todos[item.ID]; ok {
		if prev.UserID != item.UserID {
			return nil
		}
		item.CreatedAt = prev.CreatedAt
	}
	m.todos[item.ID] = *item
	return nil
}

func (m *MemoryStore) DeleteTodo(_ context.Context, userID, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.todos[id]
	if !ok || t.UserID != userID {
		return domain.NewDomainError("MemoryStore.DeleteTodo", domain.ErrTodoNotFound, id)
	}
	delete(m.todos, id)
	return nil
}

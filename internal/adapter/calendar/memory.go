package calendar

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"secretary-ai/internal/domain"
)

// MemoryConnector hands out one in-process calendar per user. Calendars live
// as long as the connector.
type MemoryConnector struct {
	mu        sync.Mutex
	calendars map[string]*MemoryCalendar
}

// NewMemoryConnector creates an empty connector.
func NewMemoryConnector() *MemoryConnector {
	return &MemoryConnector{calendars: make(map[string]*MemoryCalendar)}
}

// Connect implements domain.CalendarConnector.
func (m *MemoryConnector) Connect(_ context.Context, creds *domain.CalendarCredentials) (domain.CalendarProvider, error) {
	if !creds.Valid() {
		return nil, domain.NewDomainError("MemoryConnector.Connect", domain.ErrAuthInvalid, "credentials missing or expired")
	}
	return m.Calendar(creds.UserID), nil
}

// Calendar returns the user's calendar, creating it on first use.
func (m *MemoryConnector) Calendar(userID string) *MemoryCalendar {
	m.mu.Lock()
	defer m.mu.Unlock()
	cal, ok := m.calendars[userID]
	if !ok {
		cal = NewMemoryCalendar()
		m.calendars[userID] = cal
	}
	return cal
}

// MemoryCalendar is a CalendarProvider that keeps events in memory.
type MemoryCalendar struct {
	mu     sync.RWMutex
	events []domain.CalendarEvent
}

var (
	_ domain.CalendarConnector = (*MemoryConnector)(nil)
	_ domain.CalendarProvider  = (*MemoryCalendar)(nil)
)

// NewMemoryCalendar creates an empty calendar.
func NewMemoryCalendar() *MemoryCalendar {
	return &MemoryCalendar{}
}

// BusyIntervals implements domain.CalendarProvider.
func (c *MemoryCalendar) BusyIntervals(_ context.Context, timeMin, timeMax time.Time) ([]domain.BusyInterval, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	var busy []domain.BusyInterval
	for _, ev := range c.events {
		b := domain.BusyInterval{Start: ev.Start, End: ev.End}
		if b.Overlaps(timeMin, timeMax) {
			busy = append(busy, b)
		}
	}
	return busy, nil
}

// CreateEvent implements domain.CalendarProvider.
func (c *MemoryCalendar) CreateEvent(_ context.Context, details domain.EventDetails) (*domain.CreatedEvent, error) {
	if !details.End.After(details.Start) {
		return nil, fmt.Errorf("%w: event must end after it starts", domain.ErrInvalidInput)
	}

	id := strings.ReplaceAll(uuid.NewString(), "-", "")
	ev := domain.CalendarEvent{
		ID:          id,
		Title:       details.Title,
		Description: details.Description,
		Start:       details.Start,
		End:         details.End,
		HTMLLink:    "memory://events/" + id,
		Attendees:   append([]string(nil), details.Attendees...),
	}
	if details.AddMeetLink {
		ev.MeetLink = "https://meet.google.com/" + id[:3] + "-" + id[3:7] + "-" + id[7:10]
	}

	c.mu.Lock()
	c.events = append(c.events, ev)
	c.mu.Unlock()

	return &domain.CreatedEvent{EventID: ev.ID, MeetLink: ev.MeetLink, HTMLLink: ev.HTMLLink}, nil
}

// ListEvents implements domain.CalendarProvider, ordered by start time.
func (c *MemoryCalendar) ListEvents(_ context.Context, timeMin, timeMax time.Time, maxResults int) ([]domain.CalendarEvent, error) {
	c.mu.RLock()
	var out []domain.CalendarEvent
	for _, ev := range c.events {
		if ev.Start.Before(timeMax) && ev.End.After(timeMin) {
			out = append(out, ev)
		}
	}
	c.mu.RUnlock()

	sort.SliceStable(out, func(i, j int) bool { return out[i].Start.Before(out[j].Start) })
	if maxResults > 0 && len(out) > maxResults {
		out = out[:maxResults]
	}
	return out, nil
}

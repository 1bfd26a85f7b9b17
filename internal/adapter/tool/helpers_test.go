package tool

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"secretary-ai/internal/domain"
)

// nopLogger returns a logger that discards output.
func nopLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeCalendar records every call and serves canned data.
type fakeCalendar struct {
	mu      sync.Mutex
	busy    []domain.BusyInterval
	events  []domain.CalendarEvent
	created []domain.EventDetails
	calls   int

	busyErr   error
	createErr error
	listErr   error

	lastMin, lastMax time.Time
}

func (f *fakeCalendar) BusyIntervals(_ context.Context, timeMin, timeMax time.Time) ([]domain.BusyInterval, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.lastMin, f.lastMax = timeMin, timeMax
	if f.busyErr != nil {
		return nil, f.busyErr
	}
	// Like FreeBusy, only intervals touching the queried window come back.
	var out []domain.BusyInterval
	for _, b := range f.busy {
		if b.Overlaps(timeMin, timeMax) {
			out = append(out, b)
		}
	}
	return out, nil
}

func (f *fakeCalendar) CreateEvent(_ context.Context, d domain.EventDetails) (*domain.CreatedEvent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.createErr != nil {
		return nil, f.createErr
	}
	f.created = append(f.created, d)
	return &domain.CreatedEvent{
		EventID:  "evt-1",
		MeetLink: "https://meet.google.com/abc-defg-hij",
		HTMLLink: "https://calendar.google.com/event?eid=evt-1",
	}, nil
}

func (f *fakeCalendar) ListEvents(_ context.Context, timeMin, timeMax time.Time, _ int) ([]domain.CalendarEvent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.lastMin, f.lastMax = timeMin, timeMax
	if f.listErr != nil {
		return nil, f.listErr
	}
	return f.events, nil
}

func (f *fakeCalendar) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

// decode unmarshals a tool result's JSON content.
func decode(t *testing.T, res *domain.ToolResult) map[string]any {
	t.Helper()
	require.NotNil(t, res)
	var m map[string]any
	require.NoError(t, json.Unmarshal([]byte(res.Content), &m), "content: %s", res.Content)
	return m
}

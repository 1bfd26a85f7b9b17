package tool

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"

	"secretary-ai/internal/domain"
	"secretary-ai/internal/infra/tracer"
	"secretary-ai/internal/usecase/availability"
)

const (
	defaultMeetingMinutes = 60
	defaultListDays       = 1
	defaultListMax        = 20

	notConnectedNote = "Google Calendar is not connected, so this result is simulated. " +
		"Tell the user to connect their calendar for real scheduling."
)

// CalendarToolDeps are shared by every calendar tool.
type CalendarToolDeps struct {
	Finder *availability.Finder
	// Now defaults to time.Now.
	Now func() time.Time
	// IsAuthorized defaults to CalendarAuthorized.
	IsAuthorized AuthorizedFunc
	Logger       *slog.Logger
}

// NewCalendarTools returns schedule_meeting, check_availability, list_events
// and find_next_available, each behind WithSimulatedFallback.
func NewCalendarTools(deps CalendarToolDeps) []domain.Tool {
	if deps.Finder == nil {
		deps.Finder = availability.New()
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if deps.IsAuthorized == nil {
		deps.IsAuthorized = CalendarAuthorized
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}

	base := calendarBase{finder: deps.Finder, now: deps.Now, logger: deps.Logger}
	schedule := &ScheduleMeetingTool{base}
	check := &CheckAvailabilityTool{base}
	list := &ListEventsTool{base}
	next := &FindNextAvailableTool{base}

	return []domain.Tool{
		WithSimulatedFallback(schedule, deps.IsAuthorized, schedule.simulate, deps.Logger),
		WithSimulatedFallback(check, deps.IsAuthorized, check.simulate, deps.Logger),
		WithSimulatedFallback(list, deps.IsAuthorized, list.simulate, deps.Logger),
		WithSimulatedFallback(next, deps.IsAuthorized, next.simulate, deps.Logger),
	}
}

type calendarBase struct {
	finder *availability.Finder
	now    func() time.Time
	logger *slog.Logger
}

func (b calendarBase) calendar(ctx context.Context) (domain.CalendarProvider, error) {
	p, ok := domain.CalendarFromContext(ctx)
	if !ok {
		return nil, fmt.Errorf("calendar not connected")
	}
	return p, nil
}

func (b calendarBase) loc() *time.Location { return b.finder.Location() }

func (b calendarBase) format(t time.Time) string { return t.In(b.loc()).Format(time.RFC3339) }

func (b calendarBase) startOfDay(t time.Time) time.Time {
	t = t.In(b.loc())
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, b.loc())
}

func orDefault(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}

// --- schedule_meeting ---

// ScheduleMeetingTool creates a calendar event.
type ScheduleMeetingTool struct{ calendarBase }

type scheduleMeetingParams struct {
	Title           string   `json:"title" validate:"required"`
	Date            string   `json:"date" validate:"required,datetime=2006-01-02"`
	Time            string   `json:"time" validate:"required"`
	DurationMinutes int      `json:"duration_minutes" validate:"omitempty,min=5,max=720"`
	Description     string   `json:"description"`
	Attendees       []string `json:"attendees" validate:"omitempty,dive,email"`
	AddMeetLink     *bool    `json:"add_meet_link"`
}

// ScheduledMeeting is the schedule_meeting payload.
type ScheduledMeeting struct {
	Success  bool   `json:"success"`
	EventID  string `json:"event_id"`
	Title    string `json:"title"`
	Start    string `json:"start"`
	End      string `json:"end"`
	MeetLink string `json:"meet_link,omitempty"`
	HTMLLink string `json:"html_link,omitempty"`
}

func (t *ScheduleMeetingTool) Name() string { return "schedule_meeting" }
func (t *ScheduleMeetingTool) Description() string {
	return "Create a meeting on the user's Google Calendar. Dates are YYYY-MM-DD and times HH:MM (24h) " +
		"in the user's time zone. Adds a Google Meet link unless add_meet_link is false."
}

func (t *ScheduleMeetingTool) Schema() domain.ToolSchema {
	return domain.ToolSchema{
		Name:        t.Name(),
		Description: t.Description(),
		Parameters: json.RawMessage(`{
			"type": "object",
			"properties": {
				"title": {"type": "string", "description": "Meeting title"},
				"date": {"type": "string", "description": "Date, YYYY-MM-DD"},
				"time": {"type": "string", "description": "Start time, HH:MM 24h"},
				"duration_minutes": {"type": "integer", "description": "Length in minutes (default 60)"},
				"description": {"type": "string", "description": "Agenda or notes"},
				"attendees": {"type": "array", "items": {"type": "string"}, "description": "Attendee email addresses"},
				"add_meet_link": {"type": "boolean", "description": "Attach a Google Meet link (default true)"}
			},
			"required": ["title", "date", "time"]
		}`),
	}
}

func (t *ScheduleMeetingTool) window(p scheduleMeetingParams) (time.Time, time.Time, error) {
	start, err := t.finder.ParseSlotStart(p.Date, p.Time)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	return start, start.Add(time.Duration(orDefault(p.DurationMinutes, defaultMeetingMinutes)) * time.Minute), nil
}

func (t *ScheduleMeetingTool) Execute(ctx context.Context, params json.RawMessage) (*domain.ToolResult, error) {
	return Execute(ctx, "tool.schedule_meeting", t.logger, params,
		func(ctx context.Context, span trace.Span, p scheduleMeetingParams) (any, error) {
			cal, err := t.calendar(ctx)
			if err != nil {
				return nil, err
			}
			start, end, err := t.window(p)
			if err != nil {
				return nil, err
			}
			span.SetAttributes(tracer.StringAttr("meeting.start", t.format(start)))

			created, err := cal.CreateEvent(ctx, domain.EventDetails{
				Title:       p.Title,
				Description: p.Description,
				Start:       start,
				End:         end,
				TimeZone:    t.loc().String(),
				Attendees:   p.Attendees,
				AddMeetLink: p.AddMeetLink == nil || *p.AddMeetLink,
			})
			if err != nil {
				return nil, fmt.Errorf("create event: %w", err)
			}
			return ScheduledMeeting{
				Success:  true,
				EventID:  created.EventID,
				Title:    p.Title,
				Start:    t.format(start),
				End:      t.format(end),
				MeetLink: created.MeetLink,
				HTMLLink: created.HTMLLink,
			}, nil
		})
}

func (t *ScheduleMeetingTool) simulate(_ context.Context, params json.RawMessage) (map[string]any, error) {
	p, bad := ParseParams[scheduleMeetingParams](params)
	if bad != nil {
		return nil, &rejectedParams{bad}
	}
	start, end, err := t.window(p)
	if err != nil {
		return nil, err
	}
	return map[string]any{
		"event_id": "simulated-" + uuid.NewString(),
		"title":    p.Title,
		"start":    t.format(start),
		"end":      t.format(end),
		"message":  notConnectedNote,
	}, nil
}

// --- check_availability ---

// CheckAvailabilityTool checks whether a proposed slot is free.
type CheckAvailabilityTool struct{ calendarBase }

type checkAvailabilityParams struct {
	Date            string `json:"date" validate:"required,datetime=2006-01-02"`
	Time            string `json:"time" validate:"required"`
	DurationMinutes int    `json:"duration_minutes" validate:"omitempty,min=5,max=720"`
}

// AvailabilityResult is the check_availability payload.
type AvailabilityResult struct {
	Success bool `json:"success"`
	*availability.Availability
}

func (t *CheckAvailabilityTool) Name() string { return "check_availability" }
func (t *CheckAvailabilityTool) Description() string {
	return "Check whether the user is free for a proposed meeting slot. Returns any conflicting events."
}

func (t *CheckAvailabilityTool) Schema() domain.ToolSchema {
	return domain.ToolSchema{
		Name:        t.Name(),
		Description: t.Description(),
		Parameters: json.RawMessage(`{
			"type": "object",
			"properties": {
				"date": {"type": "string", "description": "Date, YYYY-MM-DD"},
				"time": {"type": "string", "description": "Start time, HH:MM 24h"},
				"duration_minutes": {"type": "integer", "description": "Length in minutes (default 60)"}
			},
			"required": ["date", "time"]
		}`),
	}
}

func (t *CheckAvailabilityTool) Execute(ctx context.Context, params json.RawMessage) (*domain.ToolResult, error) {
	return Execute(ctx, "tool.check_availability", t.logger, params,
		func(ctx context.Context, _ trace.Span, p checkAvailabilityParams) (any, error) {
			cal, err := t.calendar(ctx)
			if err != nil {
				return nil, err
			}
			start, err := t.finder.ParseSlotStart(p.Date, p.Time)
			if err != nil {
				return nil, err
			}
			minutes := orDefault(p.DurationMinutes, defaultMeetingMinutes)
			// Fetch the whole day so conflicts carry their real bounds, and
			// past midnight when the slot runs into the next day.
			day := t.startOfDay(start)
			until := day.AddDate(0, 0, 1)
			if end := start.Add(time.Duration(minutes) * time.Minute); end.After(until) {
				until = end
			}
			busy, err := cal.BusyIntervals(ctx, day, until)
			if err != nil {
				return nil, fmt.Errorf("fetch busy intervals: %w", err)
			}
			res, err := t.finder.CheckAvailability(p.Date, p.Time, minutes, busy)
			if err != nil {
				return nil, err
			}
			return AvailabilityResult{Success: true, Availability: res}, nil
		})
}

func (t *CheckAvailabilityTool) simulate(_ context.Context, params json.RawMessage) (map[string]any, error) {
	p, bad := ParseParams[checkAvailabilityParams](params)
	if bad != nil {
		return nil, &rejectedParams{bad}
	}
	res, err := t.finder.CheckAvailability(p.Date, p.Time, orDefault(p.DurationMinutes, defaultMeetingMinutes), nil)
	if err != nil {
		return nil, err
	}
	return map[string]any{
		"available":       res.Available,
		"requested_start": t.format(res.RequestedStart),
		"requested_end":   t.format(res.RequestedEnd),
		"conflicts":       res.Conflicts,
		"message":         notConnectedNote,
	}, nil
}

// --- list_events ---

// ListEventsTool lists upcoming events.
type ListEventsTool struct{ calendarBase }

type listEventsParams struct {
	Date       string `json:"date" validate:"omitempty,datetime=2006-01-02"`
	Days       int    `json:"days" validate:"omitempty,min=1,max=31"`
	MaxResults int    `json:"max_results" validate:"omitempty,min=1,max=100"`
}

// EventList is the list_events payload. An empty list is a normal result.
type EventList struct {
	Success bool                   `json:"success"`
	From    string                 `json:"from"`
	To      string                 `json:"to"`
	Count   int                    `json:"count"`
	Events  []domain.CalendarEvent `json:"events"`
	Message string                 `json:"message,omitempty"`
}

func (t *ListEventsTool) Name() string { return "list_events" }
func (t *ListEventsTool) Description() string {
	return "List events on the user's calendar starting from a date (default today) for a number of days."
}

func (t *ListEventsTool) Schema() domain.ToolSchema {
	return domain.ToolSchema{
		Name:        t.Name(),
		Description: t.Description(),
		Parameters: json.RawMessage(`{
			"type": "object",
			"properties": {
				"date": {"type": "string", "description": "First day, YYYY-MM-DD (default today)"},
				"days": {"type": "integer", "description": "Number of days to cover (default 1)"},
				"max_results": {"type": "integer", "description": "Maximum events to return (default 20)"}
			}
		}`),
	}
}

func (t *ListEventsTool) window(p listEventsParams) (time.Time, time.Time, error) {
	from := t.startOfDay(t.now())
	if p.Date != "" {
		d, err := time.ParseInLocation(time.DateOnly, p.Date, t.loc())
		if err != nil {
			return time.Time{}, time.Time{}, fmt.Errorf("invalid date %q: %w", p.Date, err)
		}
		from = d
	}
	return from, from.AddDate(0, 0, orDefault(p.Days, defaultListDays)), nil
}

func (t *ListEventsTool) Execute(ctx context.Context, params json.RawMessage) (*domain.ToolResult, error) {
	return Execute(ctx, "tool.list_events", t.logger, params,
		func(ctx context.Context, _ trace.Span, p listEventsParams) (any, error) {
			cal, err := t.calendar(ctx)
			if err != nil {
				return nil, err
			}
			from, to, err := t.window(p)
			if err != nil {
				return nil, err
			}
			events, err := cal.ListEvents(ctx, from, to, orDefault(p.MaxResults, defaultListMax))
			if err != nil {
				return nil, fmt.Errorf("list events: %w", err)
			}
			out := EventList{
				Success: true,
				From:    t.format(from),
				To:      t.format(to),
				Count:   len(events),
				Events:  events,
			}
			if len(events) == 0 {
				out.Events = []domain.CalendarEvent{}
				out.Message = "No events found."
			}
			return out, nil
		})
}

func (t *ListEventsTool) simulate(_ context.Context, params json.RawMessage) (map[string]any, error) {
	p, bad := ParseParams[listEventsParams](params)
	if bad != nil {
		return nil, &rejectedParams{bad}
	}
	from, to, err := t.window(p)
	if err != nil {
		return nil, err
	}
	return map[string]any{
		"from":    t.format(from),
		"to":      t.format(to),
		"count":   0,
		"events":  []domain.CalendarEvent{},
		"message": notConnectedNote,
	}, nil
}

// --- find_next_available ---

// FindNextAvailableTool searches forward for the next free slot.
type FindNextAvailableTool struct{ calendarBase }

type findNextParams struct {
	DurationMinutes int    `json:"duration_minutes" validate:"omitempty,min=5,max=720"`
	Date            string `json:"date" validate:"omitempty,datetime=2006-01-02"`
	Time            string `json:"time" validate:"required_with=Date"`
}

// NextSlotResult is the find_next_available payload.
type NextSlotResult struct {
	Success bool `json:"success"`
	*availability.Suggestion
}

func (t *FindNextAvailableTool) Name() string { return "find_next_available" }
func (t *FindNextAvailableTool) Description() string {
	return "Find the next free slot of the given length during business hours (09:00-18:00) " +
		"within the next 7 days, starting now or from an optional date and time."
}

func (t *FindNextAvailableTool) Schema() domain.ToolSchema {
	return domain.ToolSchema{
		Name:        t.Name(),
		Description: t.Description(),
		Parameters: json.RawMessage(`{
			"type": "object",
			"properties": {
				"duration_minutes": {"type": "integer", "description": "Length in minutes (default 60)"},
				"date": {"type": "string", "description": "Search from this date, YYYY-MM-DD"},
				"time": {"type": "string", "description": "Search from this time, HH:MM 24h (required with date)"}
			}
		}`),
	}
}

func (t *FindNextAvailableTool) searchStart(p findNextParams) (time.Time, error) {
	now := t.now()
	if p.Date == "" {
		return now, nil
	}
	start, err := t.finder.ParseSlotStart(p.Date, p.Time)
	if err != nil {
		return time.Time{}, err
	}
	if start.Before(now) {
		return now, nil
	}
	return start, nil
}

func (t *FindNextAvailableTool) Execute(ctx context.Context, params json.RawMessage) (*domain.ToolResult, error) {
	return Execute(ctx, "tool.find_next_available", t.logger, params,
		func(ctx context.Context, _ trace.Span, p findNextParams) (any, error) {
			cal, err := t.calendar(ctx)
			if err != nil {
				return nil, err
			}
			from, err := t.searchStart(p)
			if err != nil {
				return nil, err
			}
			dur := time.Duration(orDefault(p.DurationMinutes, defaultMeetingMinutes)) * time.Minute
			// A candidate near the horizon still occupies dur past it.
			busy, err := cal.BusyIntervals(ctx, from, from.Add(t.finder.Horizon()+dur))
			if err != nil {
				return nil, fmt.Errorf("fetch busy intervals: %w", err)
			}
			return NextSlotResult{Success: true, Suggestion: t.finder.FindNextAvailableSlot(dur, from, busy)}, nil
		})
}

func (t *FindNextAvailableTool) simulate(_ context.Context, params json.RawMessage) (map[string]any, error) {
	p, bad := ParseParams[findNextParams](params)
	if bad != nil {
		return nil, &rejectedParams{bad}
	}
	from, err := t.searchStart(p)
	if err != nil {
		return nil, err
	}
	dur := time.Duration(orDefault(p.DurationMinutes, defaultMeetingMinutes)) * time.Minute
	s := t.finder.FindNextAvailableSlot(dur, from, nil)
	out := map[string]any{
		"available": s.Available,
		"message":   notConnectedNote,
	}
	if s.SuggestedTime != nil {
		out["suggested_time"] = t.format(*s.SuggestedTime)
		out["suggested_end"] = t.format(*s.SuggestedEnd)
		out["display"] = s.Display
	}
	return out, nil
}

// Package calendar provides CalendarProvider implementations: Google Calendar,
// an in-memory calendar for development, and a busy-interval cache.
package calendar

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	gcal "google.golang.org/api/calendar/v3"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"secretary-ai/internal/domain"
	"secretary-ai/internal/infra/config"
	"secretary-ai/internal/infra/tracer"
)

const defaultCalendarID = "primary"

// GoogleConnector opens Google Calendar providers for stored OAuth tokens.
type GoogleConnector struct {
	oauth      *oauth2.Config
	calendarID string
	endpoint   string
	httpClient *http.Client
	logger     *slog.Logger
}

// GoogleOption customizes a GoogleConnector.
type GoogleOption func(*GoogleConnector)

// WithEndpoint points the connector at a different API base URL.
func WithEndpoint(url string) GoogleOption {
	return func(c *GoogleConnector) { c.endpoint = url }
}

// WithHTTPClient sets the base HTTP client used under the OAuth transport.
func WithHTTPClient(client *http.Client) GoogleOption {
	return func(c *GoogleConnector) { c.httpClient = client }
}

// NewGoogleConnector creates a connector from the calendar config section.
func NewGoogleConnector(cfg config.CalendarConfig, logger *slog.Logger, opts ...GoogleOption) *GoogleConnector {
	if logger == nil {
		logger = slog.Default()
	}
	calendarID := cfg.CalendarID
	if calendarID == "" {
		calendarID = defaultCalendarID
	}
	c := &GoogleConnector{
		oauth: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURL,
			Endpoint:     google.Endpoint,
			Scopes:       []string{gcal.CalendarEventsScope, gcal.CalendarReadonlyScope},
		},
		calendarID: calendarID,
		logger:     logger,
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Connect implements domain.CalendarConnector.
func (c *GoogleConnector) Connect(ctx context.Context, creds *domain.CalendarCredentials) (domain.CalendarProvider, error) {
	if !creds.Valid() {
		return nil, domain.NewDomainError("GoogleConnector.Connect", domain.ErrAuthInvalid, "credentials missing or expired")
	}

	token := &oauth2.Token{
		AccessToken:  creds.AccessToken,
		RefreshToken: creds.RefreshToken,
		TokenType:    creds.TokenType,
		Expiry:       creds.Expiry,
	}
	if c.httpClient != nil {
		ctx = context.WithValue(ctx, oauth2.HTTPClient, c.httpClient)
	}
	client := oauth2.NewClient(ctx, c.oauth.TokenSource(ctx, token))

	opts := []option.ClientOption{option.WithHTTPClient(client)}
	if c.endpoint != "" {
		opts = append(opts, option.WithEndpoint(c.endpoint))
	}
	svc, err := gcal.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("%w: calendar service: %v", domain.ErrProviderError, err)
	}

	return &GoogleCalendar{
		svc:        svc,
		calendarID: c.calendarID,
		logger:     c.logger.With("user_id", creds.UserID),
	}, nil
}

// GoogleCalendar is a CalendarProvider backed by the Google Calendar v3 API.
type GoogleCalendar struct {
	svc        *gcal.Service
	calendarID string
	logger     *slog.Logger
}

var (
	_ domain.CalendarConnector = (*GoogleConnector)(nil)
	_ domain.CalendarProvider  = (*GoogleCalendar)(nil)
)

// BusyIntervals implements domain.CalendarProvider using a FreeBusy query.
func (g *GoogleCalendar) BusyIntervals(ctx context.Context, timeMin, timeMax time.Time) ([]domain.BusyInterval, error) {
	ctx, span := tracer.StartSpan(ctx, "calendar.google.freebusy",
		trace.WithAttributes(tracer.StringAttr("calendar.id", g.calendarID)),
	)
	defer span.End()

	resp, err := g.svc.Freebusy.Query(&gcal.FreeBusyRequest{
		TimeMin: timeMin.Format(time.RFC3339),
		TimeMax: timeMax.Format(time.RFC3339),
		Items:   []*gcal.FreeBusyRequestItem{{Id: g.calendarID}},
	}).Context(ctx).Do()
	if err != nil {
		err = mapGoogleError("freebusy", err)
		tracer.RecordError(span, err)
		return nil, err
	}

	// A missing or malformed entry must not read as a free calendar.
	cal, ok := resp.Calendars[g.calendarID]
	if !ok {
		err := fmt.Errorf("%w: freebusy: calendar %q missing from response", domain.ErrProviderError, g.calendarID)
		tracer.RecordError(span, err)
		return nil, err
	}
	if len(cal.Errors) > 0 {
		err := fmt.Errorf("%w: freebusy: %s", domain.ErrProviderError, cal.Errors[0].Reason)
		tracer.RecordError(span, err)
		return nil, err
	}

	busy := make([]domain.BusyInterval, 0, len(cal.Busy))
	for _, p := range cal.Busy {
		start, err1 := time.Parse(time.RFC3339, p.Start)
		end, err2 := time.Parse(time.RFC3339, p.End)
		if err1 != nil || err2 != nil {
			err := fmt.Errorf("%w: freebusy: unparseable busy period %q..%q", domain.ErrProviderError, p.Start, p.End)
			tracer.RecordError(span, err)
			return nil, err
		}
		busy = append(busy, domain.BusyInterval{Start: start, End: end})
	}
	span.SetAttributes(tracer.IntAttr("calendar.busy", len(busy)))
	tracer.SetOK(span)
	return busy, nil
}

// CreateEvent implements domain.CalendarProvider.
func (g *GoogleCalendar) CreateEvent(ctx context.Context, details domain.EventDetails) (*domain.CreatedEvent, error) {
	ctx, span := tracer.StartSpan(ctx, "calendar.google.insert",
		trace.WithAttributes(
			tracer.StringAttr("calendar.id", g.calendarID),
			tracer.BoolAttr("calendar.meet", details.AddMeetLink),
		),
	)
	defer span.End()

	ev := &gcal.Event{
		Summary:     details.Title,
		Description: details.Description,
		Start:       &gcal.EventDateTime{DateTime: details.Start.Format(time.RFC3339), TimeZone: details.TimeZone},
		End:         &gcal.EventDateTime{DateTime: details.End.Format(time.RFC3339), TimeZone: details.TimeZone},
	}
	for _, email := range details.Attendees {
		ev.Attendees = append(ev.Attendees, &gcal.EventAttendee{Email: email})
	}

	if details.AddMeetLink {
		ev.ConferenceData = &gcal.ConferenceData{
			CreateRequest: &gcal.CreateConferenceRequest{
				RequestId:             uuid.NewString(),
				ConferenceSolutionKey: &gcal.ConferenceSolutionKey{Type: "hangoutsMeet"},
			},
		}
	}

	call := g.svc.Events.Insert(g.calendarID, ev)
	if details.AddMeetLink {
		call = call.ConferenceDataVersion(1)
	}
	if len(details.Attendees) > 0 {
		call = call.SendUpdates("all")
	}

	created, err := call.Context(ctx).Do()
	if err != nil {
		err = mapGoogleError("insert event", err)
		tracer.RecordError(span, err)
		return nil, err
	}

	g.logger.Info("calendar event created", "event_id", created.Id, "meet", details.AddMeetLink)
	tracer.SetOK(span)
	return &domain.CreatedEvent{
		EventID:  created.Id,
		MeetLink: meetLink(created),
		HTMLLink: created.HtmlLink,
	}, nil
}

// ListEvents implements domain.CalendarProvider. Recurring events are
// expanded into single instances ordered by start time.
func (g *GoogleCalendar) ListEvents(ctx context.Context, timeMin, timeMax time.Time, maxResults int) ([]domain.CalendarEvent, error) {
	ctx, span := tracer.StartSpan(ctx, "calendar.google.list",
		trace.WithAttributes(tracer.StringAttr("calendar.id", g.calendarID)),
	)
	defer span.End()

	call := g.svc.Events.List(g.calendarID).
		TimeMin(timeMin.Format(time.RFC3339)).
		TimeMax(timeMax.Format(time.RFC3339)).
		SingleEvents(true).
		OrderBy("startTime")
	if maxResults > 0 {
		call = call.MaxResults(int64(maxResults))
	}

	resp, err := call.Context(ctx).Do()
	if err != nil {
		err = mapGoogleError("list events", err)
		tracer.RecordError(span, err)
		return nil, err
	}

	events := make([]domain.CalendarEvent, 0, len(resp.Items))
	for _, item := range resp.Items {
		ev, ok := fromGoogleEvent(item)
		if !ok {
			g.logger.Warn("skipping event with unparseable times", "event_id", item.Id)
			continue
		}
		events = append(events, ev)
	}
	span.SetAttributes(tracer.IntAttr("calendar.events", len(events)))
	tracer.SetOK(span)
	return events, nil
}

func fromGoogleEvent(item *gcal.Event) (domain.CalendarEvent, bool) {
	ev := domain.CalendarEvent{
		ID:          item.Id,
		Title:       item.Summary,
		Description: item.Description,
		Location:    item.Location,
		HTMLLink:    item.HtmlLink,
		MeetLink:    meetLink(item),
	}
	start, allDay, ok := parseEventTime(item.Start)
	if !ok {
		return ev, false
	}
	end, _, ok := parseEventTime(item.End)
	if !ok {
		return ev, false
	}
	ev.Start, ev.End, ev.AllDay = start, end, allDay
	for _, a := range item.Attendees {
		ev.Attendees = append(ev.Attendees, a.Email)
	}
	return ev, true
}

func parseEventTime(t *gcal.EventDateTime) (time.Time, bool, bool) {
	if t == nil {
		return time.Time{}, false, false
	}
	if t.DateTime != "" {
		v, err := time.Parse(time.RFC3339, t.DateTime)
		return v, false, err == nil
	}
	if t.Date != "" {
		v, err := time.Parse(time.DateOnly, t.Date)
		return v, true, err == nil
	}
	return time.Time{}, false, false
}

func meetLink(ev *gcal.Event) string {
	if ev.HangoutLink != "" {
		return ev.HangoutLink
	}
	if ev.ConferenceData != nil {
		for _, ep := range ev.ConferenceData.EntryPoints {
			if ep.EntryPointType == "video" {
				return ep.Uri
			}
		}
	}
	return ""
}

// mapGoogleError maps Google API errors onto domain sentinels.
func mapGoogleError(op string, err error) error {
	var gerr *googleapi.Error
	if errors.As(err, &gerr) {
		switch {
		case gerr.Code == http.StatusUnauthorized || gerr.Code == http.StatusForbidden:
			return fmt.Errorf("%w: %s: %s", domain.ErrAuthInvalid, op, gerr.Message)
		case gerr.Code == http.StatusTooManyRequests:
			return fmt.Errorf("%w: %s: %s", domain.ErrRateLimit, op, gerr.Message)
		case gerr.Code == http.StatusNotFound:
			return fmt.Errorf("%w: %s: %s", domain.ErrNotFound, op, gerr.Message)
		}
	}
	var rerr *oauth2.RetrieveError
	if errors.As(err, &rerr) {
		return fmt.Errorf("%w: %s: token refresh: %v", domain.ErrAuthInvalid, op, err)
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %s", domain.ErrTimeout, op)
	}
	return fmt.Errorf("%w: %s: %v", domain.ErrProviderError, op, err)
}

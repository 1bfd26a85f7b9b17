package domain

import (
	"context"
	"time"
)

// BusyInterval is a half-open [Start, End) block of time reported busy by a
// calendar provider. Lists of intervals may be unsorted and may overlap.
type BusyInterval struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// Overlaps reports whether the interval intersects [start, end).
// Touching edges do not overlap.
func (b BusyInterval) Overlaps(start, end time.Time) bool {
	return b.Start.Before(end) && b.End.After(start)
}

// EventDetails describes an event to create.
type EventDetails struct {
	Title       string
	Description string
	Start       time.Time
	End         time.Time
	TimeZone    string
	Attendees   []string
	AddMeetLink bool
}

// CreatedEvent is what a provider returns after creating an event.
type CreatedEvent struct {
	EventID  string `json:"event_id"`
	MeetLink string `json:"meet_link,omitempty"`
	HTMLLink string `json:"html_link"`
}

// CalendarEvent is a single event as listed by a provider.
type CalendarEvent struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	Description string    `json:"description,omitempty"`
	Location    string    `json:"location,omitempty"`
	Start       time.Time `json:"start"`
	End         time.Time `json:"end"`
	AllDay      bool      `json:"all_day,omitempty"`
	HTMLLink    string    `json:"html_link,omitempty"`
	MeetLink    string    `json:"meet_link,omitempty"`
	Attendees   []string  `json:"attendees,omitempty"`
}

// CalendarProvider is a calendar the assistant has been authorized to use.
type CalendarProvider interface {
	BusyIntervals(ctx context.Context, timeMin, timeMax time.Time) ([]BusyInterval, error)
	CreateEvent(ctx context.Context, details EventDetails) (*CreatedEvent, error)
	ListEvents(ctx context.Context, timeMin, timeMax time.Time, maxResults int) ([]CalendarEvent, error)
}

// CalendarCredentials are the OAuth tokens a user granted for their calendar.
type CalendarCredentials struct {
	UserID       string    `json:"user_id"`
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token,omitempty"`
	TokenType    string    `json:"token_type,omitempty"`
	Expiry       time.Time `json:"expiry,omitempty"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Valid reports whether the credentials can authorize calendar access.
// An expired access token is still valid when a refresh token is present.
func (c *CalendarCredentials) Valid() bool {
	if c == nil {
		return false
	}
	if c.RefreshToken != "" {
		return true
	}
	return c.AccessToken != "" && (c.Expiry.IsZero() || time.Now().Before(c.Expiry))
}

// CredentialStore persists calendar credentials per user.
// GetCredentials returns (nil, nil) when the user has none.
type CredentialStore interface {
	GetCredentials(ctx context.Context, userID string) (*CalendarCredentials, error)
	SaveCredentials(ctx context.Context, creds *CalendarCredentials) error
	DeleteCredentials(ctx context.Context, userID string) error
}

// CalendarConnector opens a provider for a user's credentials.
type CalendarConnector interface {
	Connect(ctx context.Context, creds *CalendarCredentials) (CalendarProvider, error)
}

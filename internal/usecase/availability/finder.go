// Package availability answers "is this slot free?" and "when is the next
// free slot?" against a list of busy intervals fetched by the caller.
package availability

import (
	"fmt"
	"time"

	"secretary-ai/internal/domain"
)

const (
	// DefaultHorizon bounds the next-slot search.
	DefaultHorizon = 7 * 24 * time.Hour
	// DefaultStep is both the rounding granularity and the scan increment.
	DefaultStep = 30 * time.Minute

	DefaultBusinessStart = 9
	DefaultBusinessEnd   = 18

	// DisplayLayout renders conflict times for people.
	DisplayLayout = "Mon Jan 2, 3:04 PM"

	ExhaustedMessage = "No available slots found in the next 7 days"
)

// Conflict is a busy interval that overlaps a requested slot. Start and End
// keep the raw timestamps; the *Display fields are formatted for people.
type Conflict struct {
	Start        time.Time `json:"start"`
	End          time.Time `json:"end"`
	StartDisplay string    `json:"start_display"`
	EndDisplay   string    `json:"end_display"`
}

// Availability is the result of checking one slot.
type Availability struct {
	Available      bool       `json:"available"`
	RequestedStart time.Time  `json:"requested_start"`
	RequestedEnd   time.Time  `json:"requested_end"`
	Conflicts      []Conflict `json:"conflicts"`
}

// Suggestion is the result of a next-slot search. Available=false with a
// Message means the horizon was exhausted; that is a valid answer, not an error.
type Suggestion struct {
	Available     bool       `json:"available"`
	SuggestedTime *time.Time `json:"suggested_time,omitempty"`
	SuggestedEnd  *time.Time `json:"suggested_end,omitempty"`
	Display       string     `json:"display,omitempty"`
	Message       string     `json:"message,omitempty"`
}

// Finder checks slots and searches for free ones. It holds no per-search
// state and is safe for concurrent use.
type Finder struct {
	loc           *time.Location
	horizon       time.Duration
	step          time.Duration
	businessStart int
	businessEnd   int
	layout        string
	observe       func(candidate time.Time)
}

// Option configures a Finder.
type Option func(*Finder)

// WithLocation sets the time zone used for business hours and display.
func WithLocation(loc *time.Location) Option {
	return func(f *Finder) {
		if loc != nil {
			f.loc = loc
		}
	}
}

// WithBusinessHours sets the [start, end) hour window for candidates.
func WithBusinessHours(start, end int) Option {
	return func(f *Finder) {
		f.businessStart = start
		f.businessEnd = end
	}
}

// WithDisplayLayout overrides the time layout used for display strings.
func WithDisplayLayout(layout string) Option {
	return func(f *Finder) { f.layout = layout }
}

// WithCandidateObserver registers fn to be called for every candidate the
// search tests for conflicts.
func WithCandidateObserver(fn func(candidate time.Time)) Option {
	return func(f *Finder) { f.observe = fn }
}

// New creates a Finder with 09:00-18:00 business hours, a 30 minute grid and
// a 7 day horizon in the local time zone.
func New(opts ...Option) *Finder {
	f := &Finder{
		loc:           time.Local,
		horizon:       DefaultHorizon,
		step:          DefaultStep,
		businessStart: DefaultBusinessStart,
		businessEnd:   DefaultBusinessEnd,
		layout:        DisplayLayout,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Location returns the finder's time zone.
func (f *Finder) Location() *time.Location { return f.loc }

// Horizon returns how far forward FindNextAvailableSlot searches.
func (f *Finder) Horizon() time.Duration { return f.horizon }

// ParseSlotStart combines a "2006-01-02" date and a "15:04" (or "15:04:05")
// clock time in the finder's time zone.
func (f *Finder) ParseSlotStart(date, clock string) (time.Time, error) {
	for _, layout := range []string{"2006-01-02 15:04", "2006-01-02 15:04:05"} {
		if t, err := time.ParseInLocation(layout, date+" "+clock, f.loc); err == nil {
			return t, nil
		}
	}
	return time.Time{}, domain.NewDomainError("Finder.ParseSlotStart", domain.ErrInvalidInput,
		fmt.Sprintf("date %q time %q: want YYYY-MM-DD and HH:MM", date, clock))
}

// CheckAvailability reports whether [date time, +durationMinutes) is free.
func (f *Finder) CheckAvailability(date, clock string, durationMinutes int, busy []domain.BusyInterval) (*Availability, error) {
	if durationMinutes <= 0 {
		return nil, domain.NewDomainError("Finder.CheckAvailability", domain.ErrInvalidInput,
			fmt.Sprintf("duration must be positive, got %d", durationMinutes))
	}
	start, err := f.ParseSlotStart(date, clock)
	if err != nil {
		return nil, err
	}
	return f.CheckSlot(start, time.Duration(durationMinutes)*time.Minute, busy), nil
}

// CheckSlot reports whether [start, start+duration) is free. Every
// overlapping interval is listed; input order does not matter.
func (f *Finder) CheckSlot(start time.Time, duration time.Duration, busy []domain.BusyInterval) *Availability {
	end := start.Add(duration)
	res := &Availability{
		RequestedStart: start,
		RequestedEnd:   end,
		Conflicts:      []Conflict{},
	}
	for _, b := range busy {
		if b.Overlaps(start, end) {
			res.Conflicts = append(res.Conflicts, Conflict{
				Start:        b.Start,
				End:          b.End,
				StartDisplay: f.display(b.Start),
				EndDisplay:   f.display(b.End),
			})
		}
	}
	res.Available = len(res.Conflicts) == 0
	return res
}

// FindNextAvailableSlot scans forward from startFrom on the 30 minute grid,
// inside business hours, and returns the first candidate that conflicts with
// nothing in busy. Candidates at or beyond startFrom+horizon are never tested.
func (f *Finder) FindNextAvailableSlot(duration time.Duration, startFrom time.Time, busy []domain.BusyInterval) *Suggestion {
	searchEnd := startFrom.Add(f.horizon)
	cursor := f.roundUp(startFrom.In(f.loc))

	for cursor.Before(searchEnd) {
		switch h := cursor.Hour(); {
		case h < f.businessStart:
			cursor = f.atHour(cursor, 0, f.businessStart)
			continue
		case h >= f.businessEnd:
			cursor = f.atHour(cursor, 1, f.businessStart)
			continue
		}

		if f.observe != nil {
			f.observe(cursor)
		}
		end := cursor.Add(duration)
		if !conflicts(cursor, end, busy) {
			return &Suggestion{
				Available:     true,
				SuggestedTime: &cursor,
				SuggestedEnd:  &end,
				Display:       f.display(cursor),
			}
		}
		cursor = cursor.Add(f.step)
	}

	return &Suggestion{Available: false, Message: ExhaustedMessage}
}

func conflicts(start, end time.Time, busy []domain.BusyInterval) bool {
	for _, b := range busy {
		if b.Overlaps(start, end) {
			return true
		}
	}
	return false
}

// roundUp moves t forward to the next step boundary on the local wall clock.
// A time already on a boundary is returned unchanged.
func (f *Finder) roundUp(t time.Time) time.Time {
	midnight := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, f.loc)
	sinceMidnight := time.Duration(t.Hour())*time.Hour +
		time.Duration(t.Minute())*time.Minute +
		time.Duration(t.Second())*time.Second +
		time.Duration(t.Nanosecond())
	rem := sinceMidnight % f.step
	if rem == 0 {
		return t
	}
	target := sinceMidnight - rem + f.step
	return time.Date(midnight.Year(), midnight.Month(), midnight.Day(),
		0, 0, 0, int(target), f.loc)
}

// atHour returns hour:00 on the day dayOffset days after t's local date.
func (f *Finder) atHour(t time.Time, dayOffset, hour int) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day()+dayOffset, hour, 0, 0, 0, f.loc)
}

func (f *Finder) display(t time.Time) string {
	return t.In(f.loc).Format(f.layout)
}

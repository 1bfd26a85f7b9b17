package tool

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/trace"

	"secretary-ai/internal/domain"
)

// DateTimeTool reports the current date and time. It is pure: no I/O beyond
// reading the clock.
type DateTimeTool struct {
	now    func() time.Time
	loc    *time.Location
	logger *slog.Logger
}

// NewDateTimeTool creates the get_current_datetime tool. A nil clock means time.Now.
func NewDateTimeTool(now func() time.Time, loc *time.Location, logger *slog.Logger) *DateTimeTool {
	if now == nil {
		now = time.Now
	}
	if loc == nil {
		loc = time.Local
	}
	return &DateTimeTool{now: now, loc: loc, logger: logger}
}

func (t *DateTimeTool) Name() string { return "get_current_datetime" }
func (t *DateTimeTool) Description() string {
	return "Get the current date and time. Call this before interpreting relative dates such as " +
		"\"tomorrow\" or \"next Tuesday\"."
}

func (t *DateTimeTool) Schema() domain.ToolSchema {
	return domain.ToolSchema{
		Name:        t.Name(),
		Description: t.Description(),
		Parameters:  json.RawMessage(`{"type":"object","properties":{}}`),
	}
}

// CurrentDateTime is the structured clock reading.
type CurrentDateTime struct {
	Success  bool   `json:"success"`
	ISO      string `json:"iso"`
	Date     string `json:"date"`
	Time     string `json:"time"`
	Weekday  string `json:"weekday"`
	Year     int    `json:"year"`
	TimeZone string `json:"timezone"`
	Unix     int64  `json:"unix"`
	Human    string `json:"human"`
}

func (t *DateTimeTool) Execute(ctx context.Context, params json.RawMessage) (*domain.ToolResult, error) {
	return Execute(ctx, "tool.get_current_datetime", t.logger, params,
		func(_ context.Context, _ trace.Span, _ struct{}) (any, error) {
			now := t.now().In(t.loc)
			return CurrentDateTime{
				Success:  true,
				ISO:      now.Format(time.RFC3339),
				Date:     now.Format(time.DateOnly),
				Time:     now.Format("15:04"),
				Weekday:  now.Weekday().String(),
				Year:     now.Year(),
				TimeZone: t.loc.String(),
				Unix:     now.Unix(),
				Human:    now.Format("Monday, January 2, 2006 at 3:04 PM"),
			}, nil
		})
}

package main

import (
	"fmt"
	"log/slog"

	"secretary-ai/internal/adapter/calendar"
	"secretary-ai/internal/domain"
	"secretary-ai/internal/infra/config"
)

// initCalendar builds the calendar connector. A nil connector means calendar
// tools always simulate.
func initCalendar(cfg config.CalendarConfig, log *slog.Logger) (domain.CalendarConnector, func(), error) {
	noop := func() {}

	var connector domain.CalendarConnector
	switch cfg.Provider {
	case "google":
		connector = calendar.NewGoogleConnector(cfg, log)
		log.Info("google calendar enabled", "calendar_id", cfg.CalendarID)
	case "memory":
		connector = calendar.NewMemoryConnector()
		log.Warn("using in-memory calendar; events are lost on restart")
	case "none", "":
		log.Info("calendar disabled; calendar tools will simulate")
		return nil, noop, nil
	default:
		return nil, nil, fmt.Errorf("unknown calendar provider %q", cfg.Provider)
	}

	cached, err := calendar.NewCachingConnector(connector, cfg.BusyCacheTTL, cfg.BusyCacheMaxCost)
	if err != nil {
		return nil, nil, fmt.Errorf("busy cache: %w", err)
	}
	if c, ok := cached.(*calendar.CachingConnector); ok {
		log.Debug("busy-interval cache enabled", "ttl", cfg.BusyCacheTTL)
		return c, c.Close, nil
	}
	return cached, noop, nil
}

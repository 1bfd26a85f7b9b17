package config

import (
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
)

// ValidationError accumulates config validation errors.
type ValidationError struct {
	Errors []string
}

func (v *ValidationError) Error() string {
	return "config validation failed:\n  - " + strings.Join(v.Errors, "\n  - ")
}

// HasErrors reports whether any validation errors have been recorded.
func (v *ValidationError) HasErrors() bool {
	return len(v.Errors) > 0
}

// Add records a formatted validation error.
func (v *ValidationError) Add(format string, args ...any) {
	v.Errors = append(v.Errors, fmt.Sprintf(format, args...))
}

// Validate checks cfg for structural correctness. It returns a *ValidationError
// when one or more problems are found, allowing callers to inspect all issues.
func Validate(cfg *Config) error {
	ve := &ValidationError{}
	validateAgent(cfg, ve)
	validateLLM(cfg, ve)
	validateCalendar(cfg, ve)
	validateStore(cfg, ve)
	validateHTTP(cfg, ve)
	validateLogger(cfg, ve)
	validateTracer(cfg, ve)
	if ve.HasErrors() {
		return ve
	}
	return nil
}

func validateAgent(cfg *Config, ve *ValidationError) {
	if cfg.Agent.SystemPrompt == "" {
		ve.Add("agent.system_prompt must not be empty")
	}
	if cfg.Agent.TurnTimeout <= 0 {
		ve.Add("agent.turn_timeout must be > 0")
	}
	if cfg.Agent.HistoryLimit < 0 {
		ve.Add("agent.history_limit must be >= 0")
	}
	if cfg.Agent.MaxTokens < 0 {
		ve.Add("agent.max_tokens must be >= 0")
	}
	if cfg.Agent.Temperature < 0 || cfg.Agent.Temperature > 2 {
		ve.Add("agent.temperature must be between 0 and 2")
	}
	if _, err := cfg.Agent.Location(); err != nil {
		ve.Add("agent.timezone %q is not a known time zone", cfg.Agent.Timezone)
	}
}

var validProviderTypes = map[string]bool{
	"openai":     true,
	"openrouter": true,
	"ollama":     true,
}

func validateLLM(cfg *Config, ve *ValidationError) {
	if cfg.LLM.DefaultProvider == "" {
		ve.Add("llm.default_provider must not be empty")
	}

	if len(cfg.LLM.Providers) == 0 {
		return
	}

	seen := make(map[string]bool)
	for i, p := range cfg.LLM.Providers {
		if p.Name == "" {
			ve.Add("llm.providers[%d].name must not be empty", i)
			continue
		}
		if seen[p.Name] {
			ve.Add("llm.providers[%d]: duplicate provider name %q", i, p.Name)
		}
		seen[p.Name] = true

		if p.Type != "" && !validProviderTypes[p.Type] {
			ve.Add("llm.providers[%d].type %q is invalid (want: openai, openrouter, ollama)", i, p.Type)
		}
		if p.APIKey == "" && p.Type != "ollama" {
			ve.Add("llm.providers[%d] (%s): api_key is empty (set via SECRETARY_LLM_PROVIDER_%s_API_KEY)",
				i, p.Name, envName(p.Name))
		}
		if p.Model == "" {
			ve.Add("llm.providers[%d] (%s): model must not be empty", i, p.Name)
		}
	}

	if cfg.LLM.DefaultProvider != "" && !seen[cfg.LLM.DefaultProvider] {
		ve.Add("llm.default_provider %q does not match any configured provider", cfg.LLM.DefaultProvider)
	}
	if cfg.LLM.Failover.Enabled {
		for _, fb := range cfg.LLM.Failover.Fallbacks {
			if !seen[fb] {
				ve.Add("llm.failover.fallbacks: unknown provider %q", fb)
			}
		}
	}
	if cb := cfg.LLM.CircuitBreaker; cb.Enabled && cb.Timeout < 0 {
		ve.Add("llm.circuit_breaker.timeout must be >= 0")
	}
}

func validateCalendar(cfg *Config, ve *ValidationError) {
	switch cfg.Calendar.Provider {
	case "google":
		if cfg.Calendar.CalendarID == "" {
			ve.Add("calendar.calendar_id must not be empty for the google provider")
		}
	case "memory", "none", "":
	default:
		ve.Add("calendar.provider %q is invalid (want: google, memory, none)", cfg.Calendar.Provider)
	}
	if cfg.Calendar.BusyCacheTTL < 0 {
		ve.Add("calendar.busy_cache_ttl must be >= 0")
	}
	if cfg.Calendar.BusyCacheTTL > 0 && cfg.Calendar.BusyCacheMaxCost <= 0 {
		ve.Add("calendar.busy_cache_max_cost must be > 0 when the cache is enabled")
	}
}

func validateStore(cfg *Config, ve *ValidationError) {
	switch cfg.Store.Driver {
	case "sqlite":
		if cfg.Store.Path == "" {
			ve.Add("store.path is required for the sqlite driver")
		}
	case "memory":
	default:
		ve.Add("store.driver %q is invalid (want: sqlite, memory)", cfg.Store.Driver)
	}
	if cfg.Store.RetentionDays < 0 {
		ve.Add("store.retention_days must be >= 0")
	}
	if cfg.Store.RetentionDays > 0 {
		if _, err := parseSchedule(cfg.Store.RetentionSchedule); err != nil {
			ve.Add("store.retention_schedule %q: %v", cfg.Store.RetentionSchedule, err)
		}
	}
}

// parseSchedule accepts what the scheduler accepts: a cron expression or a
// positive duration.
func parseSchedule(s string) (any, error) {
	if s == "" {
		return nil, fmt.Errorf("empty schedule")
	}
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
	if sched, err := parser.Parse(s); err == nil {
		return sched, nil
	}
	if d, err := time.ParseDuration(s); err == nil && d > 0 {
		return d, nil
	}
	return nil, fmt.Errorf("not a valid cron expression or duration")
}

func validateHTTP(cfg *Config, ve *ValidationError) {
	if cfg.HTTP.Addr == "" {
		ve.Add("http.addr is required")
	} else if _, _, err := net.SplitHostPort(cfg.HTTP.Addr); err != nil {
		ve.Add("http.addr %q is not a valid host:port", cfg.HTTP.Addr)
	}
	if cfg.HTTP.RateLimit < 0 {
		ve.Add("http.rate_limit must be >= 0")
	}
	if cfg.HTTP.RateLimit > 0 && cfg.HTTP.RateBurst <= 0 {
		ve.Add("http.rate_burst must be > 0 when rate limiting is enabled")
	}
	if cfg.HTTP.MaxBodyBytes <= 0 {
		ve.Add("http.max_body_bytes must be > 0")
	}
}

var validLogLevels = map[string]bool{"debug": true, "info": true, "warn": true, "warning": true, "error": true}

func validateLogger(cfg *Config, ve *ValidationError) {
	if !validLogLevels[strings.ToLower(cfg.Logger.Level)] {
		ve.Add("logger.level %q is invalid (want: debug, info, warn, error)", cfg.Logger.Level)
	}
	switch cfg.Logger.Format {
	case "text", "json", "":
	default:
		ve.Add("logger.format %q is invalid (want: text, json)", cfg.Logger.Format)
	}
}

func validateTracer(cfg *Config, ve *ValidationError) {
	if !cfg.Tracer.Enabled {
		return
	}
	switch cfg.Tracer.Exporter {
	case "stdout", "stderr", "noop", "":
	default:
		ve.Add("tracer.exporter %q is invalid (want: stdout, stderr, noop)", cfg.Tracer.Exporter)
	}
	if r := cfg.Tracer.SampleRatio; r < 0 || r > 1 {
		ve.Add("tracer.sample_ratio %v must be between 0 and 1", r)
	}
}

package config

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
	_ "time/tzdata" // agent.timezone must resolve in minimal containers

	"golang.org/x/crypto/argon2"
	"gopkg.in/yaml.v3"
)

// Config is the top-level application configuration.
type Config struct {
	Agent    AgentConfig    `yaml:"agent"`
	LLM      LLMConfig      `yaml:"llm"`
	Calendar CalendarConfig `yaml:"calendar"`
	Store    StoreConfig    `yaml:"store"`
	HTTP     HTTPConfig     `yaml:"http"`
	Logger   LoggerConfig   `yaml:"logger"`
	Tracer   TracerConfig   `yaml:"tracer"`
}

// AgentConfig holds assistant behavior settings.
type AgentConfig struct {
	SystemPrompt   string `yaml:"system_prompt"`
	CalendarPrompt string `yaml:"calendar_prompt"`
	// Timezone is an IANA name used for business hours and display; empty
	// means the process's local zone.
	Timezone     string        `yaml:"timezone"`
	HistoryLimit int           `yaml:"history_limit"`
	TurnTimeout  time.Duration `yaml:"turn_timeout"`
	MaxTokens    int           `yaml:"max_tokens"`
	Temperature  float64       `yaml:"temperature"`
}

// Location resolves Timezone.
func (a AgentConfig) Location() (*time.Location, error) {
	if a.Timezone == "" || a.Timezone == "Local" {
		return time.Local, nil
	}
	return time.LoadLocation(a.Timezone)
}

// LLMConfig holds LLM provider settings.
type LLMConfig struct {
	DefaultProvider string               `yaml:"default_provider"`
	Providers       []ProviderConfig     `yaml:"providers"`
	Failover        FailoverConfig       `yaml:"failover"`
	CircuitBreaker  CircuitBreakerConfig `yaml:"circuit_breaker"`
}

// Provider returns the provider named name.
func (l LLMConfig) Provider(name string) (ProviderConfig, bool) {
	for _, p := range l.Providers {
		if p.Name == name {
			return p, true
		}
	}
	return ProviderConfig{}, false
}

// FailoverConfig lists providers tried, in order, when the default fails.
type FailoverConfig struct {
	Enabled   bool     `yaml:"enabled"`
	Fallbacks []string `yaml:"fallbacks"`
}

// CircuitBreakerConfig holds circuit breaker settings for LLM providers.
type CircuitBreakerConfig struct {
	Enabled     bool          `yaml:"enabled"`
	MaxFailures uint32        `yaml:"max_failures"`
	Timeout     time.Duration `yaml:"timeout"`
	Interval    time.Duration `yaml:"interval"`
}

// PoolConfig holds HTTP connection pool settings for LLM providers.
type PoolConfig struct {
	MaxIdleConns        int           `yaml:"max_idle_conns"`
	MaxIdleConnsPerHost int           `yaml:"max_idle_conns_per_host"`
	MaxConnsPerHost     int           `yaml:"max_conns_per_host"`
	IdleConnTimeout     time.Duration `yaml:"idle_conn_timeout"`
}

// ProviderConfig holds settings for a single OpenAI-compatible endpoint.
type ProviderConfig struct {
	Name        string        `yaml:"name"`
	Type        string        `yaml:"type"`
	BaseURL     string        `yaml:"base_url"`
	APIKey      string        `yaml:"api_key"`
	Model       string        `yaml:"model"`
	ConnTimeout time.Duration `yaml:"conn_timeout"`
	RespTimeout time.Duration `yaml:"resp_timeout"`
	Pool        PoolConfig    `yaml:"pool"`
}

// CalendarConfig selects and configures the calendar backend.
type CalendarConfig struct {
	Provider     string `yaml:"provider"` // "google", "memory" or "none"
	ClientID     string `yaml:"client_id"`
	ClientSecret string `yaml:"client_secret"`
	RedirectURL  string `yaml:"redirect_url"`
	CalendarID   string `yaml:"calendar_id"`
	// BusyCacheTTL of zero disables the busy-interval cache.
	BusyCacheTTL     time.Duration `yaml:"busy_cache_ttl"`
	BusyCacheMaxCost int64         `yaml:"busy_cache_max_cost"`
}

// StoreConfig holds persistence settings.
type StoreConfig struct {
	Driver            string `yaml:"driver"` // "sqlite" or "memory"
	Path              string `yaml:"path"`
	RetentionDays     int    `yaml:"retention_days"`
	RetentionSchedule string `yaml:"retention_schedule"`
	// EncryptionKey, when set, encrypts stored calendar tokens at rest.
	EncryptionKey string `yaml:"encryption_key"`
}

// HTTPConfig holds API server settings.
type HTTPConfig struct {
	Addr         string        `yaml:"addr"`
	RateLimit    float64       `yaml:"rate_limit"` // requests per second per client IP; 0 disables
	RateBurst    int           `yaml:"rate_burst"`
	MaxBodyBytes int64         `yaml:"max_body_bytes"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
}

// LoggerConfig holds logging settings.
type LoggerConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// TracerConfig holds tracing settings.
type TracerConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Exporter string `yaml:"exporter"` // "stdout", "stderr" or "noop"
	// SampleRatio is the fraction of root spans kept, in [0, 1].
	SampleRatio float64 `yaml:"sample_ratio"`
}

const (
	defaultSystemPrompt = "You are a helpful personal secretary. Answer concisely and keep track of the user's plans."

	defaultCalendarPrompt = "You are a personal secretary with access to the user's Google Calendar. " +
		"Use the tools to check availability, find free slots, list events and schedule meetings. " +
		"Confirm the date, time and duration before scheduling. If a tool result says it is simulated, " +
		"tell the user their calendar is not connected and nothing was really booked."
)

// defaultDataDir returns the persistent data directory under $HOME/.secretary/data.
// Falls back to "./data" if $HOME cannot be determined.
func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "./data"
	}
	return filepath.Join(home, ".secretary", "data")
}

// Defaults returns a Config with sensible defaults.
func Defaults() *Config {
	return &Config{
		Agent: AgentConfig{
			SystemPrompt:   defaultSystemPrompt,
			CalendarPrompt: defaultCalendarPrompt,
			HistoryLimit:   40,
			TurnTimeout:    90 * time.Second,
			MaxTokens:      1024,
			Temperature:    0.3,
		},
		LLM: LLMConfig{
			DefaultProvider: "openai",
			CircuitBreaker: CircuitBreakerConfig{
				Enabled:     true,
				MaxFailures: 5,
				Timeout:     30 * time.Second,
				Interval:    60 * time.Second,
			},
		},
		Calendar: CalendarConfig{
			Provider:         "google",
			CalendarID:       "primary",
			BusyCacheTTL:     time.Minute,
			BusyCacheMaxCost: 1 << 20,
		},
		Store: StoreConfig{
			Driver:            "sqlite",
			Path:              filepath.Join(defaultDataDir(), "secretary.db"),
			RetentionDays:     90,
			RetentionSchedule: "0 3 * * *",
		},
		HTTP: HTTPConfig{
			Addr:         ":8080",
			RateLimit:    5,
			RateBurst:    10,
			MaxBodyBytes: 1 << 20,
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 120 * time.Second,
		},
		Logger: LoggerConfig{
			Level:  "info",
			Format: "text",
			Output: "stderr",
		},
		Tracer: TracerConfig{
			Enabled:     false,
			Exporter:    "noop",
			SampleRatio: 1,
		},
	}
}

// Load reads a YAML config file, applies env var overrides, and decrypts secrets.
// A missing file yields the defaults.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	data, err := os.ReadFile(path)
	switch {
	case os.IsNotExist(err):
	case err != nil:
		return nil, fmt.Errorf("read config: %w", err)
	default:
		if err := validatePermissions(path); err != nil {
			return nil, err
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	ApplyEnvOverrides(cfg)

	if passphrase := os.Getenv("SECRETARY_CONFIG_KEY"); passphrase != "" {
		if err := decryptSecrets(cfg, passphrase); err != nil {
			return nil, fmt.Errorf("decrypt secrets: %w", err)
		}
	}

	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyEnvOverrides maps SECRETARY_* env vars to config fields.
func ApplyEnvOverrides(cfg *Config) {
	if v := os.Getenv("SECRETARY_TIMEZONE"); v != "" {
		cfg.Agent.Timezone = v
	}
	if v := os.Getenv("SECRETARY_HISTORY_LIMIT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			cfg.Agent.HistoryLimit = n
		}
	}
	if v := os.Getenv("SECRETARY_TURN_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			cfg.Agent.TurnTimeout = d
		}
	}

	if v := os.Getenv("SECRETARY_LLM_DEFAULT_PROVIDER"); v != "" {
		cfg.LLM.DefaultProvider = v
	}
	// SECRETARY_OPENAI_* configures an "openai" provider when the file has none.
	if v := os.Getenv("SECRETARY_OPENAI_API_KEY"); v != "" {
		if _, ok := cfg.LLM.Provider("openai"); !ok {
			cfg.LLM.Providers = append(cfg.LLM.Providers, ProviderConfig{
				Name:  "openai",
				Type:  "openai",
				Model: "gpt-4o-mini",
			})
		}
		for i := range cfg.LLM.Providers {
			if cfg.LLM.Providers[i].Name == "openai" {
				cfg.LLM.Providers[i].APIKey = v
			}
		}
	}
	if v := os.Getenv("SECRETARY_OPENAI_MODEL"); v != "" {
		for i := range cfg.LLM.Providers {
			if cfg.LLM.Providers[i].Name == "openai" {
				cfg.LLM.Providers[i].Model = v
			}
		}
	}
	// Per-provider API key overrides: SECRETARY_LLM_PROVIDER_<NAME>_API_KEY
	for i := range cfg.LLM.Providers {
		envKey := "SECRETARY_LLM_PROVIDER_" + envName(cfg.LLM.Providers[i].Name) + "_API_KEY"
		if v := os.Getenv(envKey); v != "" {
			cfg.LLM.Providers[i].APIKey = v
		}
	}
	if v := os.Getenv("SECRETARY_LLM_CIRCUIT_BREAKER_ENABLED"); v != "" {
		cfg.LLM.CircuitBreaker.Enabled = v == "true"
	}

	if v := os.Getenv("SECRETARY_CALENDAR_PROVIDER"); v != "" {
		cfg.Calendar.Provider = v
	}
	if v := os.Getenv("SECRETARY_GOOGLE_CLIENT_ID"); v != "" {
		cfg.Calendar.ClientID = v
	}
	if v := os.Getenv("SECRETARY_GOOGLE_CLIENT_SECRET"); v != "" {
		cfg.Calendar.ClientSecret = v
	}
	if v := os.Getenv("SECRETARY_GOOGLE_REDIRECT_URL"); v != "" {
		cfg.Calendar.RedirectURL = v
	}

	if v := os.Getenv("SECRETARY_STORE_DRIVER"); v != "" {
		cfg.Store.Driver = v
	}
	if v := os.Getenv("SECRETARY_STORE_PATH"); v != "" {
		cfg.Store.Path = v
	}
	if v := os.Getenv("SECRETARY_STORE_ENCRYPTION_KEY"); v != "" {
		cfg.Store.EncryptionKey = v
	}
	if v := os.Getenv("SECRETARY_STORE_RETENTION_DAYS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			cfg.Store.RetentionDays = n
		}
	}

	if v := os.Getenv("SECRETARY_HTTP_ADDR"); v != "" {
		cfg.HTTP.Addr = v
	}
	if v := os.Getenv("SECRETARY_HTTP_RATE_LIMIT"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil && f >= 0 {
			cfg.HTTP.RateLimit = f
		}
	}

	if v := os.Getenv("SECRETARY_LOGGER_LEVEL"); v != "" {
		cfg.Logger.Level = v
	}
	if v := os.Getenv("SECRETARY_LOGGER_FORMAT"); v != "" {
		cfg.Logger.Format = v
	}
	if v := os.Getenv("SECRETARY_TRACER_ENABLED"); v == "true" {
		cfg.Tracer.Enabled = true
	}
	if v := os.Getenv("SECRETARY_TRACER_EXPORTER"); v != "" {
		cfg.Tracer.Exporter = v
	}
}

func envName(s string) string {
	return strings.ToUpper(strings.NewReplacer("-", "_", ".", "_").Replace(s))
}

// decryptSecrets finds "enc:..." values in secret fields and decrypts them.
func decryptSecrets(cfg *Config, passphrase string) error {
	for i := range cfg.LLM.Providers {
		if err := decryptField(&cfg.LLM.Providers[i].APIKey, passphrase); err != nil {
			return fmt.Errorf("provider %s api_key: %w", cfg.LLM.Providers[i].Name, err)
		}
	}
	if err := decryptField(&cfg.Calendar.ClientSecret, passphrase); err != nil {
		return fmt.Errorf("calendar client_secret: %w", err)
	}
	if err := decryptField(&cfg.Store.EncryptionKey, passphrase); err != nil {
		return fmt.Errorf("store encryption_key: %w", err)
	}
	return nil
}

func decryptField(field *string, passphrase string) error {
	if !strings.HasPrefix(*field, "enc:") {
		return nil
	}
	decrypted, err := DecryptValue(strings.TrimPrefix(*field, "enc:"), passphrase)
	if err != nil {
		return err
	}
	*field = decrypted
	return nil
}

// EncryptValue encrypts a plaintext value with AES-256-GCM using a passphrase.
func EncryptValue(plaintext, passphrase string) (string, error) {
	salt := make([]byte, 16)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return "", fmt.Errorf("generate salt: %w", err)
	}

	gcm, err := newGCM(passphrase, salt)
	if err != nil {
		return "", err
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("generate nonce: %w", err)
	}

	ciphertext := gcm.Seal(nonce, nonce, []byte(plaintext), nil)
	// Format: hex(salt) + ":" + hex(nonce+ciphertext)
	return hex.EncodeToString(salt) + ":" + hex.EncodeToString(ciphertext), nil
}

// DecryptValue decrypts a value produced by EncryptValue.
func DecryptValue(encrypted, passphrase string) (string, error) {
	parts := strings.SplitN(encrypted, ":", 2)
	if len(parts) != 2 {
		return "", fmt.Errorf("invalid encrypted format")
	}

	salt, err := hex.DecodeString(parts[0])
	if err != nil {
		return "", fmt.Errorf("decode salt: %w", err)
	}
	data, err := hex.DecodeString(parts[1])
	if err != nil {
		return "", fmt.Errorf("decode ciphertext: %w", err)
	}

	gcm, err := newGCM(passphrase, salt)
	if err != nil {
		return "", err
	}

	nonceSize := gcm.NonceSize()
	if len(data) < nonceSize {
		return "", fmt.Errorf("ciphertext too short")
	}

	nonce, ciphertext := data[:nonceSize], data[nonceSize:]
	plaintext, err := gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return "", fmt.Errorf("decrypt: %w", err)
	}
	return string(plaintext), nil
}

func newGCM(passphrase string, salt []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(deriveKey(passphrase, salt))
	if err != nil {
		return nil, fmt.Errorf("create cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("create gcm: %w", err)
	}
	return gcm, nil
}

// deriveKey uses Argon2id to derive a 32-byte key from passphrase + salt.
func deriveKey(passphrase string, salt []byte) []byte {
	return argon2.IDKey([]byte(passphrase), salt, 1, 64*1024, 4, 32)
}

// validatePermissions rejects config files writable by group or others.
func validatePermissions(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("stat config: %w", err)
	}
	mode := info.Mode().Perm()
	if mode&0o022 != 0 {
		return fmt.Errorf("config file %s has insecure permissions %o (want 0600 or 0644)", path, mode)
	}
	return nil
}

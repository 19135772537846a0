// Package config provides application configuration.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all application configuration.
type Config struct {
	Port           string
	FrontendURL    string
	LogLevel       string
	MaxRequestBody int64

	Store      StoreConfig
	Completion CompletionConfig
	Launcher   LauncherConfig
	Notify     NotifyConfig
	RateLimit  RateLimitConfig
	GRPCHealth GRPCHealthConfig
}

// StoreConfig selects and tunes the session store.
type StoreConfig struct {
	Backend       string        // "sqlite" or "memory"
	DBPath        string
	Retention     time.Duration // 0 keeps sessions forever
	SweepInterval time.Duration
}

// CompletionConfig configures the completion provider.
type CompletionConfig struct {
	Provider string
	URL      string
	APIKey   string
	Model    string
	Timeout  time.Duration
}

// LauncherConfig configures application launching.
type LauncherConfig struct {
	AliasesFile string
	Fallback    string // empty selects the platform default
	Watch       bool
}

// NotifyConfig selects notification sinks.
type NotifyConfig struct {
	Sinks         []string
	QueueSize     int
	SpeechCommand string
	Timeout       time.Duration
}

// RateLimitConfig limits /ask per client. RPS <= 0 (the default) disables it.
type RateLimitConfig struct {
	RPS   float64
	Burst int
}

// GRPCHealthConfig configures the optional gRPC health listener.
type GRPCHealthConfig struct {
	Addr     string // empty disables the listener
	Interval time.Duration
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	provider := strings.ToLower(getEnv("COMPLETION_PROVIDER", "perplexity"))

	cfg := &Config{
		Port:           getEnv("PORT", "8080"),
		FrontendURL:    getEnv("FRONTEND_URL", ""),
		LogLevel:       strings.ToLower(getEnv("LOG_LEVEL", "info")),
		MaxRequestBody: int64(getEnvInt("MAX_REQUEST_BODY", 1<<20)),
		Store: StoreConfig{
			Backend:       strings.ToLower(getEnv("STORE_BACKEND", "sqlite")),
			DBPath:        getEnv("DB_PATH", "./data/jarvis.db"),
			Retention:     getEnvDuration("SESSION_RETENTION", 0),
			SweepInterval: getEnvDuration("RETENTION_SWEEP_INTERVAL", 5*time.Minute),
		},
		Completion: CompletionConfig{
			Provider: provider,
			URL:      getEnv("COMPLETION_API_URL", "https://api.perplexity.ai/chat/completions"),
			APIKey:   completionAPIKey(provider),
			Model:    getEnv("COMPLETION_MODEL", "sonar-pro"),
			Timeout:  getEnvDuration("COMPLETION_TIMEOUT", 20*time.Second),
		},
		Launcher: LauncherConfig{
			AliasesFile: getEnv("LAUNCHER_ALIASES_FILE", ""),
			Fallback:    getEnv("LAUNCHER_FALLBACK", ""),
			Watch:       getEnvBool("LAUNCHER_WATCH", true),
		},
		Notify: NotifyConfig{
			Sinks:         getEnvList("NOTIFY_SINKS", []string{"log"}),
			QueueSize:     getEnvInt("NOTIFY_QUEUE_SIZE", 64),
			SpeechCommand: getEnv("NOTIFY_SPEECH_COMMAND", "espeak"),
			Timeout:       getEnvDuration("NOTIFY_TIMEOUT", 30*time.Second),
		},
		RateLimit: RateLimitConfig{
			RPS:   getEnvFloat("RATE_LIMIT_RPS", 0),
			Burst: getEnvInt("RATE_LIMIT_BURST", 5),
		},
		GRPCHealth: GRPCHealthConfig{
			Addr:     getEnv("GRPC_HEALTH_ADDR", ""),
			Interval: getEnvDuration("GRPC_HEALTH_INTERVAL", 15*time.Second),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Validate checks that all required configuration fields are set.
func (c *Config) Validate() error {
	if c.Port == "" {
		return fmt.Errorf("PORT cannot be empty")
	}
	switch c.Store.Backend {
	case "sqlite":
		if c.Store.DBPath == "" {
			return fmt.Errorf("DB_PATH cannot be empty")
		}
	case "memory":
	default:
		return fmt.Errorf("STORE_BACKEND must be sqlite or memory, got %q", c.Store.Backend)
	}
	if c.Store.Retention < 0 {
		return fmt.Errorf("SESSION_RETENTION must be >= 0")
	}
	switch c.Completion.Provider {
	case "perplexity", "openai", "gemini":
	default:
		return fmt.Errorf("COMPLETION_PROVIDER must be perplexity, openai or gemini, got %q", c.Completion.Provider)
	}
	if c.Completion.Timeout <= 0 {
		return fmt.Errorf("COMPLETION_TIMEOUT must be > 0")
	}
	if c.Notify.QueueSize <= 0 {
		return fmt.Errorf("NOTIFY_QUEUE_SIZE must be > 0")
	}
	if c.RateLimit.Burst <= 0 {
		return fmt.Errorf("RATE_LIMIT_BURST must be > 0")
	}
	if c.MaxRequestBody <= 0 {
		return fmt.Errorf("MAX_REQUEST_BODY must be > 0")
	}
	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("LOG_LEVEL must be debug, info, warn or error, got %q", c.LogLevel)
	}
	return nil
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.FrontendURL == "" ||
		strings.Contains(c.FrontendURL, "localhost") ||
		strings.Contains(c.FrontendURL, "127.0.0.1")
}

// AllowedOrigins returns the CORS origins for the API.
func (c *Config) AllowedOrigins() []string {
	if c.FrontendURL == "" {
		return []string{"*"}
	}
	return []string{c.FrontendURL}
}

func completionAPIKey(provider string) string {
	if key := getEnv("COMPLETION_API_KEY", ""); key != "" {
		return key
	}
	if provider == "gemini" {
		return getEnv("GEMINI_API_KEY", "")
	}
	return getEnv("PERPLEXITY_API_KEY", "")
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return fallback
	}
}

func getEnvInt(key string, fallback int) int {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	n, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return fallback
	}
	return n
}

func getEnvFloat(key string, fallback float64) float64 {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	f, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
	if err != nil {
		return fallback
	}
	return f
}

// getEnvDuration accepts Go durations ("90s") or plain seconds ("90").
func getEnvDuration(key string, fallback time.Duration) time.Duration {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	value = strings.TrimSpace(value)
	if d, err := time.ParseDuration(value); err == nil {
		return d
	}
	if secs, err := strconv.Atoi(value); err == nil {
		return time.Duration(secs) * time.Second
	}
	return fallback
}

func getEnvList(key string, fallback []string) []string {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// IsContainer returns true if running inside a Docker container.
func IsContainer() bool {
	if os.Getenv("CONTAINER") == "true" {
		return true
	}
	if _, err := os.Stat("/.dockerenv"); err == nil {
		return true
	}
	return false
}

// Package config handles file and environment loading for ports, backends, timing, etc.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"worktrack/internal/auth"

	"gopkg.in/yaml.v3"
)

// Backend names accepted for session_backend and kv_backend.
const (
	BackendMemory   = "memory"
	BackendPostgres = "postgres"
	BackendRedis    = "redis"
	BackendFile     = "file"
)

// Config holds all configuration values for the daemon.
type Config struct {
	// HTTP server port for the control API
	HTTPPort int `yaml:"http_port"`

	LogLevel string `yaml:"log_level"`

	// Where the active session and work records live: memory or postgres
	SessionBackend string `yaml:"session_backend"`

	// Where the state snapshot and pending markers live: memory, file, redis or postgres
	KVBackend string `yaml:"kv_backend"`

	// Database connection string, required by the postgres backends
	DatabaseURL string `yaml:"database_url"`

	RedisAddr string `yaml:"redis_addr"`

	// Directory for the file KV backend
	StateDir string `yaml:"state_dir"`

	// YAML jobs file, watched for changes. Empty means jobs come from the session store only.
	JobsFile string `yaml:"jobs_file"`

	LocationInterval    time.Duration `yaml:"location_interval"`
	LocationMinDistance float64       `yaml:"location_min_distance"`
	ExitHysteresis      float64       `yaml:"exit_hysteresis"`

	// Countdown broadcast cadence
	CountdownTick time.Duration `yaml:"countdown_tick"`

	// Reminder notification lead before a pending action is due
	ReminderLead time.Duration `yaml:"reminder_lead"`

	// Webhook for notifications. Empty logs notifications instead.
	NotifyWebhookURL string  `yaml:"notify_webhook_url"`
	NotifyRateLimit  float64 `yaml:"notify_rate_limit"`

	// Bearer token for the control API. Empty disables auth.
	APIToken string `yaml:"api_token"`

	// SHA-256 hex of the bearer token, for configs that should not hold the token itself.
	// Ignored when APIToken is set.
	APITokenHash string `yaml:"api_token_hash"`

	// Requests per second per client
	APIRateLimit float64 `yaml:"api_rate_limit"`

	// OpenTelemetry Collector endpoint. Empty disables tracing.
	OTELEndpoint string `yaml:"otel_endpoint"`
}

// Load reads configuration from an optional YAML file, then applies environment
// variable overrides. Environment variables always win.
func Load(path string) (*Config, error) {
	cfg := &Config{
		HTTPPort:            6171,
		LogLevel:            "info",
		SessionBackend:      BackendMemory,
		KVBackend:           BackendFile,
		RedisAddr:           "localhost:6379",
		StateDir:            "./data",
		LocationInterval:    30 * time.Second,
		LocationMinDistance: 20,
		ExitHysteresis:      1.0,
		CountdownTick:       time.Second,
		ReminderLead:        30 * time.Second,
		NotifyRateLimit:     1,
		APIRateLimit:        20,
	}

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	if err := applyEnv(cfg); err != nil {
		return nil, err
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyEnv(cfg *Config) error {
	envString("LOG_LEVEL", &cfg.LogLevel)
	envString("SESSION_BACKEND", &cfg.SessionBackend)
	envString("KV_BACKEND", &cfg.KVBackend)
	envString("DATABASE_URL", &cfg.DatabaseURL)
	envString("REDIS_ADDR", &cfg.RedisAddr)
	envString("STATE_DIR", &cfg.StateDir)
	envString("JOBS_FILE", &cfg.JobsFile)
	envString("NOTIFY_WEBHOOK_URL", &cfg.NotifyWebhookURL)
	envString("API_TOKEN", &cfg.APIToken)
	envString("API_TOKEN_HASH", &cfg.APITokenHash)
	envString("OTEL_EXPORTER_OTLP_ENDPOINT", &cfg.OTELEndpoint)

	if v := os.Getenv("PORT"); v != "" {
		p, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid PORT: %w", err)
		}
		cfg.HTTPPort = p
	}

	durations := []struct {
		env string
		dst *time.Duration
	}{
		{"LOCATION_INTERVAL", &cfg.LocationInterval},
		{"COUNTDOWN_TICK", &cfg.CountdownTick},
		{"REMINDER_LEAD", &cfg.ReminderLead},
	}
	for _, d := range durations {
		if v := os.Getenv(d.env); v != "" {
			parsed, err := time.ParseDuration(v)
			if err != nil {
				return fmt.Errorf("invalid %s: %w", d.env, err)
			}
			*d.dst = parsed
		}
	}

	floats := []struct {
		env string
		dst *float64
	}{
		{"LOCATION_MIN_DISTANCE", &cfg.LocationMinDistance},
		{"EXIT_HYSTERESIS", &cfg.ExitHysteresis},
		{"NOTIFY_RATE_LIMIT", &cfg.NotifyRateLimit},
		{"API_RATE_LIMIT", &cfg.APIRateLimit},
	}
	for _, f := range floats {
		if v := os.Getenv(f.env); v != "" {
			parsed, err := strconv.ParseFloat(v, 64)
			if err != nil {
				return fmt.Errorf("invalid %s: %w", f.env, err)
			}
			*f.dst = parsed
		}
	}
	return nil
}

func envString(key string, dst *string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func (c *Config) validate() error {
	switch c.SessionBackend {
	case BackendMemory, BackendPostgres:
	default:
		return fmt.Errorf("invalid session_backend %q: must be 'memory' or 'postgres'", c.SessionBackend)
	}
	switch c.KVBackend {
	case BackendMemory, BackendFile, BackendRedis, BackendPostgres:
	default:
		return fmt.Errorf("invalid kv_backend %q: must be 'memory', 'file', 'redis' or 'postgres'", c.KVBackend)
	}
	if c.usesPostgres() && c.DatabaseURL == "" {
		return fmt.Errorf("database_url is required (env: DATABASE_URL)")
	}
	if c.KVBackend == BackendRedis && c.RedisAddr == "" {
		return fmt.Errorf("redis_addr is required (env: REDIS_ADDR)")
	}
	if c.KVBackend == BackendFile && c.StateDir == "" {
		return fmt.Errorf("state_dir is required (env: STATE_DIR)")
	}
	if c.APIToken == "" && c.APITokenHash != "" && !auth.ValidHash(c.APITokenHash) {
		return fmt.Errorf("api_token_hash must be a hex SHA-256 digest")
	}
	if c.ExitHysteresis < 1 {
		return fmt.Errorf("exit_hysteresis must be >= 1, got %v", c.ExitHysteresis)
	}
	if c.LocationInterval <= 0 {
		return fmt.Errorf("location_interval must be positive")
	}
	if c.CountdownTick <= 0 {
		return fmt.Errorf("countdown_tick must be positive")
	}
	return nil
}

// TokenHash is the hash the control API checks bearer tokens against.
// Empty means auth is disabled.
func (c *Config) TokenHash() string {
	if c.APIToken != "" {
		return auth.HashKey(c.APIToken)
	}
	return c.APITokenHash
}

func (c *Config) usesPostgres() bool {
	return c.SessionBackend == BackendPostgres || c.KVBackend == BackendPostgres
}

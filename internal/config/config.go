package config

import (
	"strings"
	"sync"
	"time"
)

// Config is the root configuration for the bot fleet.
type Config struct {
	Database  DatabaseConfig  `json:"database,omitempty"`
	HTTP      HTTPConfig      `json:"http"`
	Telegram  TelegramConfig  `json:"telegram"`
	Payment   PaymentConfig   `json:"payment"`
	Broadcast BroadcastConfig `json:"broadcast"`
	Fleet     FleetConfig     `json:"fleet"`
	State     StateConfig     `json:"state"`
	Log       LogConfig       `json:"log"`
	Telemetry TelemetryConfig `json:"telemetry,omitempty"`
	mu        sync.RWMutex
}

// DatabaseConfig configures Postgres.
// PostgresDSN is NEVER read from config.json (secret), only from env BOTFLEET_POSTGRES_DSN.
type DatabaseConfig struct {
	PostgresDSN string `json:"-"`
}

// HTTPConfig configures the admin API listener.
type HTTPConfig struct {
	Enabled        bool     `json:"enabled"`
	Host           string   `json:"host"`
	Port           int      `json:"port"`
	AllowedOrigins []string `json:"allowed_origins,omitempty"` // WebSocket CORS whitelist (empty = allow all)
	RateLimitRPS   float64  `json:"rate_limit_rps"`
	RateLimitBurst int      `json:"rate_limit_burst"`
	TokenTTLHours  int      `json:"token_ttl_hours"`
	AdminEmails    []string `json:"admin_emails,omitempty"` // accounts allowed fleet-wide sync and shutdown
	JWTSecret      string   `json:"-"`                      // from env BOTFLEET_JWT_SECRET only
}

// IsAdmin reports whether email belongs to a fleet administrator.
// Comparison ignores case and surrounding spaces.
func (h HTTPConfig) IsAdmin(email string) bool {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" {
		return false
	}
	for _, a := range h.AdminEmails {
		if strings.ToLower(strings.TrimSpace(a)) == email {
			return true
		}
	}
	return false
}

// TokenTTL is the lifetime of issued access tokens.
func (h HTTPConfig) TokenTTL() time.Duration {
	if h.TokenTTLHours <= 0 {
		return 24 * time.Hour
	}
	return time.Duration(h.TokenTTLHours) * time.Hour
}

// TelegramConfig configures the Bot API connection shared by every bot.
type TelegramConfig struct {
	Proxy       string `json:"proxy,omitempty"`
	APIServer   string `json:"api_server,omitempty"` // self-hosted Bot API server
	PollTimeout int    `json:"poll_timeout"`         // long polling timeout in seconds
	OwnerID     int64  `json:"owner_id,omitempty"`   // Telegram id of the admin, env BOTFLEET_OWNER_TELEGRAM_ID
}

// PaymentConfig configures the Pakasir payment gateway client.
type PaymentConfig struct {
	BaseURL    string `json:"base_url"`
	TimeoutSec int    `json:"timeout_sec"`
	Retries    int    `json:"retries"`
}

// BroadcastConfig configures bulk sends.
type BroadcastConfig struct {
	IntervalMs int `json:"interval_ms"` // pause between two sends
	MaxLength  int `json:"max_length"`
}

// Interval is the pacing between two broadcast sends.
func (b BroadcastConfig) Interval() time.Duration {
	if b.IntervalMs <= 0 {
		return 50 * time.Millisecond
	}
	return time.Duration(b.IntervalMs) * time.Millisecond
}

// FleetConfig configures the bot lifecycle orchestrator.
type FleetConfig struct {
	SyncSchedule      string `json:"sync_schedule,omitempty"`   // cron expression, empty = disabled
	ExpireSchedule    string `json:"expire_schedule,omitempty"` // cron expression for pending order expiry
	StartTimeoutSec   int    `json:"start_timeout_sec"`
	StopTimeoutSec    int    `json:"stop_timeout_sec"`
	MaxParallelStarts int    `json:"max_parallel_starts,omitempty"` // 0 = unlimited
	ExitWhenEmpty     *bool  `json:"exit_when_empty,omitempty"`     // default true
}

func (f FleetConfig) StartTimeout() time.Duration {
	return seconds(f.StartTimeoutSec, 30*time.Second)
}

func (f FleetConfig) StopTimeout() time.Duration {
	return seconds(f.StopTimeoutSec, 15*time.Second)
}

// ShouldExitWhenEmpty reports whether the supervisor returns when no bot is active.
func (f FleetConfig) ShouldExitWhenEmpty() bool {
	return f.ExitWhenEmpty == nil || *f.ExitWhenEmpty
}

// StateConfig configures conversation state storage.
// An empty Dir keeps state in memory.
type StateConfig struct {
	Dir    string `json:"dir,omitempty"`
	TTLMin int    `json:"ttl_min"`
}

func (s StateConfig) TTL() time.Duration {
	if s.TTLMin <= 0 {
		return 30 * time.Minute
	}
	return time.Duration(s.TTLMin) * time.Minute
}

// LogConfig configures slog output and optional file rotation.
type LogConfig struct {
	Level      string `json:"level,omitempty"`  // debug, info, warn, error
	Format     string `json:"format,omitempty"` // text (default) or json
	File       string `json:"file,omitempty"`
	MaxSizeMB  int    `json:"max_size_mb,omitempty"`
	MaxBackups int    `json:"max_backups,omitempty"`
	MaxAgeDays int    `json:"max_age_days,omitempty"`
	Compress   bool   `json:"compress,omitempty"`
}

// TelemetryConfig configures OpenTelemetry OTLP export.
type TelemetryConfig struct {
	Enabled     bool              `json:"enabled,omitempty"`
	Endpoint    string            `json:"endpoint,omitempty"` // OTLP endpoint (e.g. "localhost:4317")
	Protocol    string            `json:"protocol,omitempty"` // "grpc" (default) or "http"
	Insecure    bool              `json:"insecure,omitempty"`
	ServiceName string            `json:"service_name,omitempty"`
	Headers     map[string]string `json:"headers,omitempty"`
}

func seconds(n int, def time.Duration) time.Duration {
	if n <= 0 {
		return def
	}
	return time.Duration(n) * time.Second
}

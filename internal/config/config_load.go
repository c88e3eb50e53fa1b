package config

import (
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/titanous/json5"
)

// Default returns a Config with sensible defaults.
func Default() *Config {
	return &Config{
		HTTP: HTTPConfig{
			Enabled:        true,
			Host:           "0.0.0.0",
			Port:           5000,
			RateLimitRPS:   5,
			RateLimitBurst: 20,
			TokenTTLHours:  24,
		},
		Telegram: TelegramConfig{
			PollTimeout: 30,
		},
		Payment: PaymentConfig{
			BaseURL:    "https://app.pakasir.com/api",
			TimeoutSec: 30,
			Retries:    2,
		},
		Broadcast: BroadcastConfig{
			IntervalMs: 50,
			MaxLength:  4096,
		},
		Fleet: FleetConfig{
			SyncSchedule:    "*/5 * * * *",
			ExpireSchedule:  "* * * * *",
			StartTimeoutSec: 30,
			StopTimeoutSec:  15,
		},
		State: StateConfig{
			TTLMin: 30,
		},
		Log: LogConfig{
			Level:      "info",
			Format:     "text",
			MaxSizeMB:  50,
			MaxBackups: 5,
			MaxAgeDays: 14,
		},
		Telemetry: TelemetryConfig{
			Protocol:    "grpc",
			ServiceName: "botfleet",
		},
	}
}

// Load reads config from a JSON5 file, then overlays env vars.
// A missing file yields the defaults.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	} else if err := json5.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	cfg.applyEnvOverrides()
	return cfg, nil
}

// applyEnvOverrides overlays env vars onto the config.
// Env vars take precedence over file values.
func (c *Config) applyEnvOverrides() {
	envStr := func(key string, dst *string) {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}
	envInt := func(key string, dst *int) {
		if v := os.Getenv(key); v != "" {
			if n, err := strconv.Atoi(v); err == nil && n > 0 {
				*dst = n
			}
		}
	}
	envBool := func(key string, dst *bool) {
		if v := os.Getenv(key); v != "" {
			*dst = v == "true" || v == "1"
		}
	}

	// Secrets
	envStr("BOTFLEET_POSTGRES_DSN", &c.Database.PostgresDSN)
	envStr("BOTFLEET_JWT_SECRET", &c.HTTP.JWTSecret)
	if v := os.Getenv("BOTFLEET_OWNER_TELEGRAM_ID"); v != "" {
		if id, err := strconv.ParseInt(v, 10, 64); err == nil {
			c.Telegram.OwnerID = id
		}
	}

	// HTTP
	envStr("BOTFLEET_HOST", &c.HTTP.Host)
	envInt("BOTFLEET_PORT", &c.HTTP.Port)
	envBool("BOTFLEET_HTTP_ENABLED", &c.HTTP.Enabled)
	if v := os.Getenv("BOTFLEET_ALLOWED_ORIGINS"); v != "" {
		c.HTTP.AllowedOrigins = strings.Split(v, ",")
	}
	if v := os.Getenv("BOTFLEET_ADMIN_EMAILS"); v != "" {
		c.HTTP.AdminEmails = strings.Split(v, ",")
	}

	// Telegram
	envStr("BOTFLEET_TELEGRAM_PROXY", &c.Telegram.Proxy)
	envStr("BOTFLEET_TELEGRAM_API_SERVER", &c.Telegram.APIServer)

	// Payment
	envStr("BOTFLEET_PAYMENT_BASE_URL", &c.Payment.BaseURL)

	// State & logs
	envStr("BOTFLEET_STATE_DIR", &c.State.Dir)
	envStr("BOTFLEET_LOG_LEVEL", &c.Log.Level)
	envStr("BOTFLEET_LOG_FILE", &c.Log.File)

	// Telemetry
	envStr("BOTFLEET_TELEMETRY_ENDPOINT", &c.Telemetry.Endpoint)
	envStr("BOTFLEET_TELEMETRY_PROTOCOL", &c.Telemetry.Protocol)
	envStr("BOTFLEET_TELEMETRY_SERVICE_NAME", &c.Telemetry.ServiceName)
	envBool("BOTFLEET_TELEMETRY_ENABLED", &c.Telemetry.Enabled)
	envBool("BOTFLEET_TELEMETRY_INSECURE", &c.Telemetry.Insecure)
}

// Hash returns a short SHA-256 hash of the config, secrets excluded.
func (c *Config) Hash() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	data, _ := json.Marshal(c)
	h := sha256.Sum256(data)
	return fmt.Sprintf("%x", h[:8])
}

const secretMask = "***"

// MaskedCopy returns a copy of the config with all secret fields masked.
func (c *Config) MaskedCopy() *Config {
	c.mu.RLock()
	defer c.mu.RUnlock()

	data, err := json.Marshal(c)
	if err != nil {
		return &Config{}
	}
	cp := Default()
	if err := json.Unmarshal(data, cp); err != nil {
		return &Config{}
	}
	cp.Database.PostgresDSN = c.Database.PostgresDSN
	cp.HTTP.JWTSecret = c.HTTP.JWTSecret

	maskNonEmpty(&cp.Database.PostgresDSN)
	maskNonEmpty(&cp.HTTP.JWTSecret)
	maskNonEmpty(&cp.Telegram.Proxy)
	for k := range cp.Telemetry.Headers {
		cp.Telemetry.Headers[k] = secretMask
	}
	return cp
}

func maskNonEmpty(s *string) {
	if *s != "" {
		*s = secretMask
	}
}

// ExpandHome replaces leading ~ with the user home directory.
func ExpandHome(path string) string {
	if path == "" || path[0] != '~' {
		return path
	}
	home, _ := os.UserHomeDir()
	if len(path) > 1 && path[1] == '/' {
		return home + path[1:]
	}
	return home
}

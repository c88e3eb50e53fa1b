package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.json"))
	require.NoError(t, err)
	assert.Equal(t, 5000, cfg.HTTP.Port)
	assert.Equal(t, 50*time.Millisecond, cfg.Broadcast.Interval())
	assert.True(t, cfg.Fleet.ShouldExitWhenEmpty())
}

func TestLoadJSON5WithEnvOverrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(`{
		// comments are allowed
		http: { port: 8080, token_ttl_hours: 2 },
		fleet: { stop_timeout_sec: 3, exit_when_empty: false },
		telegram: { proxy: "http://file-proxy:3128" },
	}`), 0600))

	t.Setenv("BOTFLEET_POSTGRES_DSN", "postgres://u:p@db/fleet")
	t.Setenv("BOTFLEET_OWNER_TELEGRAM_ID", "12345")
	t.Setenv("BOTFLEET_TELEGRAM_PROXY", "http://env-proxy:3128")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 8080, cfg.HTTP.Port)
	assert.Equal(t, 2*time.Hour, cfg.HTTP.TokenTTL())
	assert.Equal(t, 3*time.Second, cfg.Fleet.StopTimeout())
	assert.Equal(t, 30*time.Second, cfg.Fleet.StartTimeout())
	assert.False(t, cfg.Fleet.ShouldExitWhenEmpty())
	assert.Equal(t, "postgres://u:p@db/fleet", cfg.Database.PostgresDSN)
	assert.Equal(t, int64(12345), cfg.Telegram.OwnerID)
	assert.Equal(t, "http://env-proxy:3128", cfg.Telegram.Proxy)
}

func TestAdminEmails(t *testing.T) {
	t.Setenv("BOTFLEET_ADMIN_EMAILS", "ops@example.com, Root@Example.com")
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.json"))
	require.NoError(t, err)

	for email, want := range map[string]bool{
		"ops@example.com":    true,
		"root@example.com":   true,
		" OPS@example.com ":  true,
		"tenant@example.com": false,
		"":                   false,
	} {
		assert.Equal(t, want, cfg.HTTP.IsAdmin(email), email)
	}
	assert.False(t, Default().HTTP.IsAdmin("ops@example.com"))
}

func TestLoadRejectsMalformedFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(`{http: `), 0600))
	_, err := Load(path)
	assert.Error(t, err)
}

func TestMaskedCopyHidesSecrets(t *testing.T) {
	cfg := Default()
	cfg.Database.PostgresDSN = "postgres://secret"
	cfg.HTTP.JWTSecret = "jwt"

	masked := cfg.MaskedCopy()
	assert.Equal(t, "***", masked.Database.PostgresDSN)
	assert.Equal(t, "***", masked.HTTP.JWTSecret)
	assert.Equal(t, "postgres://secret", cfg.Database.PostgresDSN)
	assert.Equal(t, cfg.Hash(), cfg.Hash())
}

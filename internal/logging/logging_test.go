package logging

import (
	"bytes"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nextlevelbuilder/botfleet/internal/config"
)

func TestLevel(t *testing.T) {
	assert.Equal(t, slog.LevelInfo, Level("", false))
	assert.Equal(t, slog.LevelWarn, Level("WARN", false))
	assert.Equal(t, slog.LevelError, Level("error", false))
	assert.Equal(t, slog.LevelDebug, Level("error", true))
}

func TestJSONHandler(t *testing.T) {
	var buf bytes.Buffer
	log := slog.New(NewHandler(&buf, config.LogConfig{Format: "json"}, false))
	log.Info("bot started", "bot_id", 7)
	assert.Contains(t, buf.String(), `"bot_id":7`)

	buf.Reset()
	log.Debug("hidden")
	assert.Empty(t, buf.String())
}

func TestSetupWritesFile(t *testing.T) {
	prev := slog.Default()
	defer slog.SetDefault(prev)

	path := filepath.Join(t.TempDir(), "logs", "botfleet.log")
	closer, err := Setup(config.LogConfig{File: path, MaxSizeMB: 1}, false)
	require.NoError(t, err)

	slog.Info("fleet ready", "bots", 3)
	require.NoError(t, closer.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "fleet ready")
}

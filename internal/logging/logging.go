// Package logging installs the process-wide slog logger.
package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/nextlevelbuilder/botfleet/internal/config"
)

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

// Setup sets the default slog logger from cfg. Logs always go to stdout;
// when cfg.File is set they are also written to a rotating file, which
// the returned Closer flushes and closes.
func Setup(cfg config.LogConfig, verbose bool) (io.Closer, error) {
	var out io.Writer = os.Stdout
	var closer io.Closer = nopCloser{}

	if cfg.File != "" {
		path := config.ExpandHome(cfg.File)
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("create log dir: %w", err)
		}
		file := &lumberjack.Logger{
			Filename:   path,
			MaxSize:    cfg.MaxSizeMB,
			MaxBackups: cfg.MaxBackups,
			MaxAge:     cfg.MaxAgeDays,
			Compress:   cfg.Compress,
		}
		out = io.MultiWriter(os.Stdout, file)
		closer = file
	}

	slog.SetDefault(slog.New(NewHandler(out, cfg, verbose)))
	return closer, nil
}

// NewHandler builds the text or JSON handler cfg asks for.
func NewHandler(w io.Writer, cfg config.LogConfig, verbose bool) slog.Handler {
	opts := &slog.HandlerOptions{Level: Level(cfg.Level, verbose)}
	if strings.EqualFold(cfg.Format, "json") {
		return slog.NewJSONHandler(w, opts)
	}
	return slog.NewTextHandler(w, opts)
}

// Level maps a config level name to slog. verbose forces debug.
func Level(name string, verbose bool) slog.Level {
	if verbose {
		return slog.LevelDebug
	}
	switch strings.ToLower(name) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

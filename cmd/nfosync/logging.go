package main

import (
	"io"
	"log/slog"
	"strings"

	"github.com/vmunix/nfosync/internal/config"
)

func parseLogLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// logLevel applies the detail and silent switches on top of log.level.
func logLevel(c config.LogConfig) slog.Level {
	switch {
	case c.Detail:
		return slog.LevelDebug
	case c.Silent:
		return slog.LevelWarn
	}
	return parseLogLevel(c.Level)
}

func newLogger(w io.Writer, c config.LogConfig) *slog.Logger {
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{
		Level: logLevel(c),
	}))
}

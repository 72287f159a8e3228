// Package logging configures the process-wide structured logger.
//
// Wheelport logs with log/slog everywhere; Setup installs the default
// logger once at startup based on the logging section of the config.
package logging

import (
	"io"
	"log/slog"
	"strings"
)

// Setup installs the default slog logger writing to w.
//
// level is one of "debug", "info", "warn" or "error" (case insensitive,
// "warning" is accepted as an alias). format is "text" or "json".
// Unknown values fall back to info-level text logging. The installed
// logger is returned for callers that want to hold on to it.
func Setup(level, format string, w io.Writer) *slog.Logger {
	var lvl slog.Level
	switch strings.ToLower(level) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn", "warning":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: lvl}

	var handler slog.Handler
	switch strings.ToLower(format) {
	case "json":
		handler = slog.NewJSONHandler(w, opts)
	default:
		handler = slog.NewTextHandler(w, opts)
	}

	logger := slog.New(handler)
	slog.SetDefault(logger)
	return logger
}

// Package telemetry sets up the structured JSON logger used by both
// binaries.
package telemetry

import (
	"io"
	"log/slog"
	"strings"
)

// NewLogger creates a JSON slog logger writing to w at the given level.
// Unknown level strings fall back to info.
func NewLogger(w io.Writer, level string) *slog.Logger {
	var logLevel slog.Level

	switch strings.ToLower(level) {
	case "debug":
		logLevel = slog.LevelDebug
	case "info":
		logLevel = slog.LevelInfo
	case "warn", "warning":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{
		Level:     logLevel,
		AddSource: logLevel == slog.LevelDebug,
	}

	return slog.New(slog.NewJSONHandler(w, opts))
}

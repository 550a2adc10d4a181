package logger

import (
	"io"
	"log/slog"
	"os"
	"strings"

	"minerva/internal/platform/config"
)

// New returns a structured logger writing to stderr, so command output on stdout
// stays machine-readable.
func New(cfg config.LogConfig) *slog.Logger {
	return NewWithWriter(os.Stderr, cfg)
}

// NewWithWriter is New with an explicit sink, used by tests.
func NewWithWriter(w io.Writer, cfg config.LogConfig) *slog.Logger {
	opts := &slog.HandlerOptions{Level: parseLevel(cfg.Level)}
	var h slog.Handler
	if strings.EqualFold(cfg.Format, "json") {
		h = slog.NewJSONHandler(w, opts)
	} else {
		h = slog.NewTextHandler(w, opts)
	}
	return slog.New(h)
}

// Discard drops everything; services fall back to it when no logger is injected.
func Discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError + 1}))
}

func parseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
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

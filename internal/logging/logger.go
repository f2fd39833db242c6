package logging

import (
	"io"
	"log/slog"
	"os"
)

// New creates a structured text logger for the given application name.
// level is one of "debug", "info", "warn", "error" (default: "info").
// Log output goes to stderr so it never interleaves with report output.
func New(app string, level string) *slog.Logger {
	return NewWithWriter(app, level, os.Stderr)
}

// NewWithWriter is New with an explicit destination (for tests).
func NewWithWriter(app string, level string, w io.Writer) *slog.Logger {
	handler := slog.NewTextHandler(w, &slog.HandlerOptions{
		Level: parseLevel(level),
	})
	return slog.New(handler).With(
		slog.String("app", app),
		slog.Int("pid", os.Getpid()),
	)
}

func parseLevel(level string) slog.Level {
	switch level {
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

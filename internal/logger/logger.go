// Package logger provides structured logging setup for AgentFleet.
package logger

import (
	"log/slog"
	"os"
	"strings"

	"github.com/Strob0t/AgentFleet/internal/config"
)

// New creates a *slog.Logger from the given Logging config.
// Output is JSON to stdout with a "service" attribute on every record.
func New(cfg config.Logging) *slog.Logger {
	level := parseLevel(cfg.Level)

	handler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: level,
	})

	return slog.New(handler).With("service", cfg.Service)
}

// NewAsync creates a logger like New but, when cfg.Buffer is positive,
// queues records behind a bounded channel so slow stdout never stalls a
// request. The returned close function flushes pending records; in
// synchronous mode it is a no-op.
func NewAsync(cfg config.Logging) (*slog.Logger, func()) {
	base := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: parseLevel(cfg.Level),
	})
	if cfg.Buffer <= 0 {
		return slog.New(base).With("service", cfg.Service), func() {}
	}
	h := newAsyncHandler(base, cfg.Buffer)
	return slog.New(h).With("service", cfg.Service), func() { h.close() }
}

// parseLevel converts a string log level to slog.Level.
func parseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
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

package logger

import (
	"log/slog"
	"testing"

	"github.com/Strob0t/AgentFleet/internal/config"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"DEBUG", slog.LevelDebug},
		{"info", slog.LevelInfo},
		{"warn", slog.LevelWarn},
		{"warning", slog.LevelWarn},
		{"error", slog.LevelError},
		{"", slog.LevelInfo},
		{"bogus", slog.LevelInfo},
	}
	for _, tt := range tests {
		if got := parseLevel(tt.in); got != tt.want {
			t.Errorf("parseLevel(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestNewRespectsLevel(t *testing.T) {
	log := New(config.Logging{Level: "warn", Service: "test"})
	if log.Enabled(nil, slog.LevelInfo) {
		t.Error("info enabled at warn level")
	}
	if !log.Enabled(nil, slog.LevelWarn) {
		t.Error("warn disabled at warn level")
	}
}

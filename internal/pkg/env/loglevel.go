package env

import (
	"log/slog"
	"strings"
)

// ParseLogLevel maps LOG_LEVEL (debug, info, warn or error) to a slog.Level.
// An empty or unrecognised value yields fallback.
func ParseLogLevel(fallback slog.Level) slog.Level {
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.TrimSpace(Get("LOG_LEVEL", "")))); err != nil {
		return fallback
	}
	return level
}

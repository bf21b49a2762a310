// Package env reads scanner configuration from environment variables.
// Every getter treats an unset and an empty variable the same way.
package env

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Get returns the value of the environment variable or the default if not set.
func Get(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// GetBool reports whether key is set to 1, true or yes (case-insensitive).
// Flags like FORCE_RESCAN are opt-in, so anything else is false.
func GetBool(key string) bool {
	switch strings.ToLower(strings.TrimSpace(os.Getenv(key))) {
	case "1", "true", "yes":
		return true
	default:
		return false
	}
}

// GetInt parses key as a decimal integer, or returns defaultValue if unset.
func GetInt(key string, defaultValue int) (int, error) {
	raw := Get(key, "")
	if raw == "" {
		return defaultValue, nil
	}
	n, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return n, nil
}

// GetDuration parses key with time.ParseDuration, or returns defaultValue if
// unset.
func GetDuration(key string, defaultValue time.Duration) (time.Duration, error) {
	raw := Get(key, "")
	if raw == "" {
		return defaultValue, nil
	}
	d, err := time.ParseDuration(strings.TrimSpace(raw))
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return d, nil
}

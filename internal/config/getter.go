// Package config reads configuration values from the process environment.
//
// Every getter takes a fallback and never fails: an unset variable yields the
// fallback, and a set-but-unparseable one does too. Components that need a
// hard error on bad input validate the assembled config struct afterwards.
package config

import (
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
)

// lookupEnv returns the variable's value and whether it is set to something
// non-empty. All getters funnel through here so "" and unset behave the same.
func lookupEnv(key string) (string, bool) {
	value := os.Getenv(key)

	return value, value != ""
}

// GetEnvStr returns the value of key, or fallback when unset or empty.
func GetEnvStr(key, fallback string) string {
	if value, ok := lookupEnv(key); ok {
		return value
	}

	return fallback
}

// GetEnvInt returns key parsed as an int, or fallback when unset or invalid.
func GetEnvInt(key string, fallback int) int {
	value, ok := lookupEnv(key)
	if !ok {
		return fallback
	}

	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}

	return parsed
}

// GetEnvInt64 returns key parsed as an int64, or fallback when unset or
// invalid. Used for byte-size limits that can exceed 32 bits.
func GetEnvInt64(key string, fallback int64) int64 {
	value, ok := lookupEnv(key)
	if !ok {
		return fallback
	}

	parsed, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return fallback
	}

	return parsed
}

// GetEnvBool returns key parsed as a boolean. "true", "1" and "yes" are true;
// "false", "0" and "no" are false; anything else yields the fallback.
// Matching is case-insensitive and ignores surrounding whitespace.
func GetEnvBool(key string, fallback bool) bool {
	value, ok := lookupEnv(key)
	if !ok {
		return fallback
	}

	switch strings.ToLower(strings.TrimSpace(value)) {
	case "true", "1", "yes":
		return true
	case "false", "0", "no":
		return false
	default:
		return fallback
	}
}

// GetEnvDuration returns key parsed in time.ParseDuration syntax ("30s",
// "5m"), or fallback when unset or invalid.
func GetEnvDuration(key string, fallback time.Duration) time.Duration {
	value, ok := lookupEnv(key)
	if !ok {
		return fallback
	}

	parsed, err := time.ParseDuration(value)
	if err != nil {
		return fallback
	}

	return parsed
}

// GetEnvLogLevel maps key onto a slog level. Recognized values are "debug",
// "info", "warn"/"warning" and "error", case-insensitively.
func GetEnvLogLevel(key string, fallback slog.Level) slog.Level {
	value, ok := lookupEnv(key)
	if !ok {
		return fallback
	}

	switch strings.ToLower(strings.TrimSpace(value)) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return fallback
	}
}

// ParseCommaSeparatedList splits a comma-separated value into trimmed,
// non-empty elements. "a, b,,c" becomes ["a" "b" "c"]; "" becomes an empty
// (non-nil) slice.
func ParseCommaSeparatedList(input string) []string {
	result := []string{}

	for _, part := range strings.Split(input, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			result = append(result, trimmed)
		}
	}

	return result
}

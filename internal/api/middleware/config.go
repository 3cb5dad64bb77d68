package middleware

import (
	"time"

	"github.com/rootline-io/rootline/internal/config"
)

// Config carries the rate limiter settings: sustained requests-per-second
// for the global, per-client and unauthenticated tiers, optional burst
// overrides (zero means two seconds of sustained rate), and the idle-client
// reaper's schedule.
type Config struct {
	GlobalRPS int
	ClientRPS int
	UnAuthRPS int

	GlobalBurst int
	ClientBurst int
	UnAuthBurst int

	CleanupInterval time.Duration
	IdleTimeout     time.Duration
	MaxClients      int
}

// LoadConfig reads the limiter settings from ROOTLINE_* environment
// variables, defaulting to 100/50/10 rps, auto-computed bursts, and a
// five-minute reaper pass that drops clients idle for over an hour.
func LoadConfig() *Config {
	return &Config{
		GlobalRPS: config.GetEnvInt("ROOTLINE_GLOBAL_RPS", defaultGlobalRPS),
		ClientRPS: config.GetEnvInt("ROOTLINE_CLIENT_RPS", defaultClientRPS),
		UnAuthRPS: config.GetEnvInt("ROOTLINE_UNAUTH_RPS", defaultUnAuthRPS),

		GlobalBurst: config.GetEnvInt("ROOTLINE_GLOBAL_BURST", 0),
		ClientBurst: config.GetEnvInt("ROOTLINE_CLIENT_BURST", 0),
		UnAuthBurst: config.GetEnvInt("ROOTLINE_UNAUTH_BURST", 0),

		CleanupInterval: config.GetEnvDuration("ROOTLINE_RATE_LIMIT_CLEANUP_INTERVAL", rateLimiterCleanupInterval),
		IdleTimeout:     config.GetEnvDuration("ROOTLINE_RATE_LIMIT_IDLE_TIMEOUT", rateLimiterIdleTimeout),
		MaxClients:      config.GetEnvInt("ROOTLINE_RATE_LIMIT_MAX_CLIENTS", maxClients),
	}
}

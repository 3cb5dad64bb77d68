package storage

import (
	"errors"
	"strings"
	"time"

	"github.com/rootline-io/rootline/internal/config"
)

// Research jobs hold connections across long engine runs, so the pool is
// sized for steady concurrent jobs rather than request bursts.
const (
	defaultMaxOpenConns    = 25
	defaultMaxIdleConns    = 5
	defaultConnMaxLifetime = 30 * time.Minute
	defaultConnMaxIdleTime = 10 * time.Minute
)

var ErrDatabaseURLEmpty = errors.New("database URL cannot be empty")

// Config holds the PostgreSQL connection settings. The URL is unexported so
// it cannot end up in a log through a %+v; use MaskDatabaseURL for logging.
type Config struct {
	databaseURL     string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
}

// LoadConfig reads connection settings from the environment, falling back to
// the pool defaults above.
func LoadConfig() *Config {
	return &Config{
		databaseURL:     config.GetEnvStr("DATABASE_URL", ""),
		MaxOpenConns:    config.GetEnvInt("DATABASE_MAX_OPEN_CONNS", defaultMaxOpenConns),
		MaxIdleConns:    config.GetEnvInt("DATABASE_MAX_IDLE_CONNS", defaultMaxIdleConns),
		ConnMaxLifetime: config.GetEnvDuration("DATABASE_CONN_MAX_LIFETIME", defaultConnMaxLifetime),
		ConnMaxIdleTime: config.GetEnvDuration("DATABASE_CONN_MAX_IDLE_TIME", defaultConnMaxIdleTime),
	}
}

// NewConfig builds a config for a known URL with default pool settings. Used
// by tests and embedded setups that bypass the environment.
func NewConfig(databaseURL string) *Config {
	return &Config{
		databaseURL:     databaseURL,
		MaxOpenConns:    defaultMaxOpenConns,
		MaxIdleConns:    defaultMaxIdleConns,
		ConnMaxLifetime: defaultConnMaxLifetime,
		ConnMaxIdleTime: defaultConnMaxIdleTime,
	}
}

func (c *Config) Validate() error {
	if strings.TrimSpace(c.databaseURL) == "" {
		return ErrDatabaseURLEmpty
	}

	return nil
}

// MaskDatabaseURL returns the URL with the password replaced by "***".
// URLs without a scheme, userinfo, or password come back unchanged; there
// is nothing to hide in them.
func (c *Config) MaskDatabaseURL() string {
	scheme, rest, ok := strings.Cut(c.databaseURL, "://")
	if !ok {
		return c.databaseURL
	}

	// Userinfo ends at the last @; the password may itself contain @.
	at := strings.LastIndex(rest, "@")
	if at == -1 {
		return c.databaseURL
	}

	username, password, ok := strings.Cut(rest[:at], ":")
	if !ok || password == "" {
		return c.databaseURL
	}

	return scheme + "://" + username + ":***" + rest[at:]
}

// Package intake consumes research job requests from Kafka and starts
// them through the research runner.
package intake

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/rootline-io/rootline/internal/config"
)

const (
	defaultBrokers           = "localhost:9092"
	defaultTopic             = "rootline.jobs.requested"
	defaultGroupID           = "rootline-intake"
	defaultMinBytes          = 1
	defaultMaxBytes          = 1048576 // 1 MB, matches the API request size cap
	defaultMaxWait           = 1 * time.Second
	defaultCreateRetryBudget = 30 * time.Second
	defaultLogLevel          = slog.LevelInfo
)

var (
	// ErrNoBrokers indicates the broker list is empty.
	ErrNoBrokers = errors.New("at least one kafka broker is required")

	// ErrEmptyTopic indicates the topic name is empty.
	ErrEmptyTopic = errors.New("topic cannot be empty")

	// ErrEmptyGroupID indicates the consumer group id is empty.
	ErrEmptyGroupID = errors.New("consumer group id cannot be empty")

	// ErrInvalidMaxBytes indicates the fetch size bounds are inconsistent.
	ErrInvalidMaxBytes = errors.New("max bytes must be positive and at least min bytes")

	// ErrInvalidRetryBudget indicates the create retry budget is zero or negative.
	ErrInvalidRetryBudget = errors.New("create retry budget must be positive")
)

// Config holds Kafka consumer configuration.
// Pure configuration only - no runtime dependencies.
type Config struct {
	Brokers  []string
	Topic    string
	GroupID  string
	MinBytes int
	MaxBytes int
	MaxWait  time.Duration

	// CreateRetryBudget bounds how long one message retries a failing
	// store before the consumer gives up and leaves the offset
	// uncommitted.
	CreateRetryBudget time.Duration

	LogLevel slog.Level
}

// LoadConfig loads intake configuration from environment variables with sensible defaults.
func LoadConfig() *Config {
	return &Config{
		Brokers: config.ParseCommaSeparatedList(
			config.GetEnvStr("ROOTLINE_KAFKA_BROKERS", defaultBrokers),
		),
		Topic:             config.GetEnvStr("ROOTLINE_KAFKA_TOPIC", defaultTopic),
		GroupID:           config.GetEnvStr("ROOTLINE_KAFKA_GROUP_ID", defaultGroupID),
		MinBytes:          config.GetEnvInt("ROOTLINE_KAFKA_MIN_BYTES", defaultMinBytes),
		MaxBytes:          config.GetEnvInt("ROOTLINE_KAFKA_MAX_BYTES", defaultMaxBytes),
		MaxWait:           config.GetEnvDuration("ROOTLINE_KAFKA_MAX_WAIT", defaultMaxWait),
		CreateRetryBudget: config.GetEnvDuration("ROOTLINE_INTAKE_RETRY_BUDGET", defaultCreateRetryBudget),
		LogLevel:          config.GetEnvLogLevel("ROOTLINE_INTAKE_LOG_LEVEL", defaultLogLevel),
	}
}

// Validate validates the intake configuration.
func (c *Config) Validate() error {
	if len(c.Brokers) == 0 {
		return ErrNoBrokers
	}

	for _, broker := range c.Brokers {
		if broker == "" {
			return fmt.Errorf("%w: got a blank entry in %v", ErrNoBrokers, c.Brokers)
		}
	}

	if c.Topic == "" {
		return ErrEmptyTopic
	}

	if c.GroupID == "" {
		return ErrEmptyGroupID
	}

	if c.MaxBytes <= 0 || c.MaxBytes < c.MinBytes {
		return fmt.Errorf("%w: min %d, max %d", ErrInvalidMaxBytes, c.MinBytes, c.MaxBytes)
	}

	if c.CreateRetryBudget <= 0 {
		return fmt.Errorf("%w: got %v", ErrInvalidRetryBudget, c.CreateRetryBudget)
	}

	return nil
}

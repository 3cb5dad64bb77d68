package sources

import (
	"errors"
	"log/slog"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/rootline-io/rootline/internal/config"
)

// Config holds record-source configuration loaded from .rootline.yaml.
// Each section configures one adapter; a section without a base URL leaves
// that source unregistered.
type Config struct {
	//nolint:tagliatelle // snake_case is intentional for YAML config files
	CivilIndex SourceConfig `yaml:"civil_index"`
	Tree       SourceConfig `yaml:"tree"`
}

// SourceConfig configures a single source adapter.
//
//nolint:tagliatelle // snake_case is intentional for YAML config files
type SourceConfig struct {
	Name              string  `yaml:"name"`
	BaseURL           string  `yaml:"base_url"`
	APIKey            string  `yaml:"api_key"`
	RequestsPerSecond float64 `yaml:"requests_per_second"`
	Burst             int     `yaml:"burst"`
}

// DefaultConfigPath is the default location for the source configuration
// file. Uses hidden file format following common tool conventions
// (.eslintrc, .prettierrc, etc.).
const DefaultConfigPath = ".rootline.yaml"

// ConfigPathEnvVar is the environment variable name for a custom config
// path.
const ConfigPathEnvVar = "ROOTLINE_CONFIG_PATH"

// Environment overrides for endpoints and credentials. These win over the
// config file so deployments can keep keys out of it.
const (
	civilIndexURLEnvVar = "ROOTLINE_CIVIL_INDEX_URL"
	civilIndexKeyEnvVar = "ROOTLINE_CIVIL_INDEX_API_KEY"
	treeURLEnvVar       = "ROOTLINE_TREE_URL"
	treeKeyEnvVar       = "ROOTLINE_TREE_API_KEY"
)

// LoadConfig loads source configuration from a YAML file at the given path.
//
// Behavior:
//   - Returns empty config (not error) if file doesn't exist - sources can
//     be configured entirely through the environment
//   - Returns empty config + logs warning if YAML is invalid (graceful
//     degradation)
//   - Returns populated config on success
//
// Environment overrides are applied after the file in all cases.
func LoadConfig(path string) (*Config, error) {
	cfg := &Config{}

	data, err := os.ReadFile(path) //nolint:gosec // path is from trusted config source
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			// Missing file is OK - environment config is enough
			slog.Debug("Source config file not found, using environment only",
				slog.String("path", path))

			return applyEnvOverrides(cfg), nil
		}

		// Other read errors (permissions, etc.) - log warning and continue
		slog.Warn("Failed to read source config file, using environment only",
			slog.String("path", path),
			slog.String("error", err.Error()))

		return applyEnvOverrides(cfg), nil
	}

	if len(data) > 0 {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			// Invalid YAML - log warning and continue with empty config
			slog.Warn("Failed to parse source config file, using environment only",
				slog.String("path", path),
				slog.String("error", err.Error()))

			return applyEnvOverrides(&Config{}), nil
		}
	}

	return applyEnvOverrides(cfg), nil
}

// LoadConfigFromEnv loads config from the path specified in
// ROOTLINE_CONFIG_PATH. Falls back to ".rootline.yaml" in the current
// directory if not set.
func LoadConfigFromEnv() (*Config, error) {
	path := config.GetEnvStr(ConfigPathEnvVar, DefaultConfigPath)

	return LoadConfig(path)
}

func applyEnvOverrides(cfg *Config) *Config {
	cfg.CivilIndex.BaseURL = config.GetEnvStr(civilIndexURLEnvVar, cfg.CivilIndex.BaseURL)
	cfg.CivilIndex.APIKey = config.GetEnvStr(civilIndexKeyEnvVar, cfg.CivilIndex.APIKey)
	cfg.Tree.BaseURL = config.GetEnvStr(treeURLEnvVar, cfg.Tree.BaseURL)
	cfg.Tree.APIKey = config.GetEnvStr(treeKeyEnvVar, cfg.Tree.APIKey)

	return cfg
}

func (s SourceConfig) transportConfig() TransportConfig {
	return TransportConfig{
		BaseURL:           s.BaseURL,
		APIKey:            s.APIKey,
		RequestsPerSecond: s.RequestsPerSecond,
		Burst:             s.Burst,
	}
}

// BuildRegistry constructs a registry from configuration, registering every
// adapter with a configured endpoint. An unconfigured source is logged and
// skipped, never fatal; research degrades per the capability rules instead.
func BuildRegistry(cfg *Config, logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}

	registry := NewRegistry(logger)

	civil, err := NewCivilIndexSource(CivilIndexConfig{
		Name:      cfg.CivilIndex.Name,
		Transport: cfg.CivilIndex.transportConfig(),
	}, logger)
	if err != nil {
		logger.Warn("Civil index source not registered",
			slog.String("error", err.Error()))
	} else {
		registry.Register(civil)
	}

	tree, err := NewTreeSource(TreeConfig{
		Name:      cfg.Tree.Name,
		Transport: cfg.Tree.transportConfig(),
	}, logger)
	if err != nil {
		logger.Warn("Tree source not registered",
			slog.String("error", err.Error()))
	} else {
		registry.Register(tree)
	}

	return registry
}

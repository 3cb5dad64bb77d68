package sources

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestLoadConfig_MissingFileReturnsEmptyConfig verifies missing files are
// not an error: sources can be configured entirely through the environment.
func TestLoadConfig_MissingFileReturnsEmptyConfig(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "absent.yaml"))

	require.NoError(t, err)
	require.NotNil(t, cfg)
	assert.Empty(t, cfg.CivilIndex.BaseURL)
	assert.Empty(t, cfg.Tree.BaseURL)
}

// TestLoadConfig_ParsesYAML verifies both source sections load from a valid
// config file.
func TestLoadConfig_ParsesYAML(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	path := filepath.Join(t.TempDir(), ".rootline.yaml")
	content := `civil_index:
  name: gro-index
  base_url: https://index.example.test
  api_key: civil-secret
  requests_per_second: 1.5
  burst: 2
tree:
  name: familysearch
  base_url: https://tree.example.test
  api_key: tree-secret
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, "gro-index", cfg.CivilIndex.Name)
	assert.Equal(t, "https://index.example.test", cfg.CivilIndex.BaseURL)
	assert.Equal(t, "civil-secret", cfg.CivilIndex.APIKey)
	assert.InDelta(t, 1.5, cfg.CivilIndex.RequestsPerSecond, 0.001)
	assert.Equal(t, 2, cfg.CivilIndex.Burst)
	assert.Equal(t, "https://tree.example.test", cfg.Tree.BaseURL)
}

// TestLoadConfig_InvalidYAMLReturnsEmptyConfig verifies graceful
// degradation on a corrupt file.
func TestLoadConfig_InvalidYAMLReturnsEmptyConfig(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	path := filepath.Join(t.TempDir(), ".rootline.yaml")
	require.NoError(t, os.WriteFile(path, []byte("civil_index: [not: valid"), 0o600))

	cfg, err := LoadConfig(path)

	require.NoError(t, err)
	require.NotNil(t, cfg)
	assert.Empty(t, cfg.CivilIndex.BaseURL)
}

// TestLoadConfig_EnvOverridesFile verifies endpoint and credential
// overrides win over the file so keys can stay out of it.
func TestLoadConfig_EnvOverridesFile(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	path := filepath.Join(t.TempDir(), ".rootline.yaml")
	content := `civil_index:
  base_url: https://file.example.test
  api_key: file-key
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	os.Setenv(civilIndexURLEnvVar, "https://env.example.test")
	os.Setenv(civilIndexKeyEnvVar, "env-key")

	defer func() {
		os.Unsetenv(civilIndexURLEnvVar)
		os.Unsetenv(civilIndexKeyEnvVar)
	}()

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, "https://env.example.test", cfg.CivilIndex.BaseURL)
	assert.Equal(t, "env-key", cfg.CivilIndex.APIKey)
}

// TestBuildRegistry_RegistersConfiguredSources verifies both adapters show
// up when their endpoints are configured.
func TestBuildRegistry_RegistersConfiguredSources(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	cfg := &Config{
		CivilIndex: SourceConfig{BaseURL: "https://index.example.test"},
		Tree:       SourceConfig{BaseURL: "https://tree.example.test"},
	}

	registry := BuildRegistry(cfg, nil)

	assert.Equal(t, []string{"civil-index", "familysearch"}, registry.Names())

	_, ok := registry.FirstWith(CapabilitySearchPrimary)
	assert.True(t, ok)

	_, ok = registry.FirstWith(CapabilityTreeTraversal)
	assert.True(t, ok)
}

// TestBuildRegistry_SkipsUnconfiguredSources verifies a missing endpoint
// leaves that source out without failing startup.
func TestBuildRegistry_SkipsUnconfiguredSources(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	cfg := &Config{
		Tree: SourceConfig{Name: "ancestry", BaseURL: "https://tree.example.test"},
	}

	registry := BuildRegistry(cfg, nil)

	assert.Equal(t, []string{"ancestry"}, registry.Names())

	_, ok := registry.FirstWith(CapabilitySearchPrimary)
	assert.False(t, ok)
}

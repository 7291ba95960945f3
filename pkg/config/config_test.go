package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "does-not-exist.yaml"))
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoadOverlaysOntoDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	contents := `
region: eu-west-1
provider:
  selection_policy: HEALTH_BASED
  providers:
    - name: primary
      type: aws
      enabled: true
      priority: 0
      weight: 2
      capabilities: ["RunInstances", "EC2Fleet"]
`
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "eu-west-1", cfg.Region)
	assert.Equal(t, SelectionHealthBased, cfg.Provider.SelectionPolicy)
	require.Len(t, cfg.Provider.Providers, 1)
	assert.Equal(t, "primary", cfg.Provider.Providers[0].Name)
	assert.Equal(t, []string{"RunInstances", "EC2Fleet"}, cfg.Provider.Providers[0].Capabilities)

	// Fields the overlay didn't mention keep their default values.
	assert.Equal(t, StorageJSON, cfg.Storage.Strategy)
	assert.True(t, cfg.Provider.CircuitBreaker.Enabled)
}

func TestLoadRejectsMalformedYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("region: [unterminated"), 0o644))

	_, err := Load(path)
	require.Error(t, err)
}

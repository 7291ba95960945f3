// Package config implements the configuration knobs of spec.md §6: a plain
// struct unmarshalled from YAML via gopkg.in/yaml.v3. Grounded on the
// retrieval pack's own YAML-config loader (giantswarm-muster's
// internal/config/loader.go): start from a default struct, then overlay
// file contents. Environment variables are not consulted — the teacher
// itself has no config loader of its own (its configuration arrives as
// Kubernetes CRDs).
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// SelectionPolicy mirrors provider.selection_policy's closed vocabulary.
type SelectionPolicy string

const (
	SelectionRoundRobin         SelectionPolicy = "ROUND_ROBIN"
	SelectionWeightedRoundRobin SelectionPolicy = "WEIGHTED_ROUND_ROBIN"
	SelectionHealthBased        SelectionPolicy = "HEALTH_BASED"
	SelectionCapabilityBased    SelectionPolicy = "CAPABILITY_BASED"
)

// StorageStrategy mirrors storage.strategy's closed vocabulary.
type StorageStrategy string

const (
	StorageJSON StorageStrategy = "json"
	StorageSQL  StorageStrategy = "sql"
)

// CircuitBreakerConfig is provider.circuit_breaker's knob group.
type CircuitBreakerConfig struct {
	Enabled           bool `yaml:"enabled"`
	FailureThreshold  int  `yaml:"failure_threshold"`
	RecoveryTimeout   int  `yaml:"recovery_timeout_seconds"`
	HalfOpenMaxCalls  int  `yaml:"half_open_max_calls"`
}

// ProviderInstanceConfig is one entry of provider.providers[].
type ProviderInstanceConfig struct {
	Name         string         `yaml:"name"`
	Type         string         `yaml:"type"`
	Enabled      bool           `yaml:"enabled"`
	Priority     int            `yaml:"priority"`
	Weight       int            `yaml:"weight"`
	Capabilities []string       `yaml:"capabilities"`
	Config       map[string]any `yaml:"config"`
}

// ProviderConfig is the provider.* knob group.
type ProviderConfig struct {
	SelectionPolicy        SelectionPolicy          `yaml:"selection_policy"`
	HealthCheckInterval    int                      `yaml:"health_check_interval_seconds"`
	CircuitBreaker         CircuitBreakerConfig      `yaml:"circuit_breaker"`
	Providers              []ProviderInstanceConfig `yaml:"providers"`
}

// LaunchTemplateConfig is the launch_template.* knob group.
type LaunchTemplateConfig struct {
	CreatePerRequest       bool   `yaml:"create_per_request"`
	ReuseExisting          bool   `yaml:"reuse_existing"`
	NamingStrategy         string `yaml:"naming_strategy"`
	CleanupOldVersions     bool   `yaml:"cleanup_old_versions"`
	MaxVersionsPerTemplate int    `yaml:"max_versions_per_template"`
}

// StorageConfig is the storage.* knob group.
type StorageConfig struct {
	Strategy StorageStrategy `yaml:"strategy"`
	JSONPath string          `yaml:"json_path"`
}

// Config is the top-level configuration struct, spec.md §6's table.
type Config struct {
	Region         string               `yaml:"region"`
	Provider       ProviderConfig       `yaml:"provider"`
	LaunchTemplate LaunchTemplateConfig `yaml:"launch_template"`
	Storage        StorageConfig        `yaml:"storage"`
}

// Default returns the configuration this control plane falls back to when
// no file is present — a single RunInstances-capable provider instance,
// round robin selection, breaker enabled with conservative thresholds.
func Default() Config {
	return Config{
		Region: "us-east-1",
		Provider: ProviderConfig{
			SelectionPolicy:     SelectionRoundRobin,
			HealthCheckInterval: 30,
			CircuitBreaker: CircuitBreakerConfig{
				Enabled:          true,
				FailureThreshold: 5,
				RecoveryTimeout:  30,
				HalfOpenMaxCalls: 1,
			},
			Providers: []ProviderInstanceConfig{
				{Name: "default", Type: "aws", Enabled: true, Priority: 0, Weight: 1, Capabilities: []string{"RunInstances"}},
			},
		},
		LaunchTemplate: LaunchTemplateConfig{
			ReuseExisting:          true,
			NamingStrategy:         "hf-{template_id}",
			CleanupOldVersions:     true,
			MaxVersionsPerTemplate: 20,
		},
		Storage: StorageConfig{Strategy: StorageJSON, JSONPath: "./data"},
	}
}

// Load reads path, overlaying it onto Default(); a missing file is not an
// error — the process runs on defaults alone, mirroring the pack's own
// loader behavior for an absent config.yaml.
func Load(path string) (Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return cfg, nil
	}
	if err != nil {
		return Config{}, fmt.Errorf("reading config file %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parsing config file %s: %w", path, err)
	}
	return cfg, nil
}

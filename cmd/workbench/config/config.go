// Package config provides configuration structures for the workbench CLI.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// Config represents the workbench configuration.
type Config struct {
	// StatePath is the persisted connection/session state file.
	StatePath string `yaml:"state_path" json:"state_path"`
	LogLevel  string `yaml:"log_level" json:"log_level"`

	// Execution settings
	ExecutionTimeout time.Duration `yaml:"execution_timeout" json:"execution_timeout"`
	MaxBufferRows    int           `yaml:"max_buffer_rows" json:"max_buffer_rows"`
	MaxDisplayRows   int           `yaml:"max_display_rows" json:"max_display_rows"`

	// Session properties sent on session open.
	SessionProperties map[string]string `yaml:"session_properties" json:"session_properties"`

	// Metadata cache configuration
	Metadata MetadataConfig `yaml:"metadata" json:"metadata"`

	// Metrics configuration
	Metrics MetricsConfig `yaml:"metrics" json:"metrics"`
}

// MetadataConfig represents metadata cache configuration.
type MetadataConfig struct {
	TTL time.Duration `yaml:"ttl" json:"ttl"`
}

// MetricsConfig represents metrics configuration.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled" json:"enabled"`
	Address string `yaml:"address" json:"address"`
}

// Validate validates the configuration and fills defaults.
func (c *Config) Validate() error {
	if c.StatePath == "" {
		return fmt.Errorf("state path is required")
	}

	switch c.LogLevel {
	case "", "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("unsupported log level: %s", c.LogLevel)
	}

	if c.ExecutionTimeout <= 0 {
		c.ExecutionTimeout = time.Minute
	}

	if c.MaxBufferRows <= 0 {
		c.MaxBufferRows = 1000
	}

	if c.MaxDisplayRows <= 0 {
		c.MaxDisplayRows = 100
	}

	if c.Metadata.TTL <= 0 {
		c.Metadata.TTL = time.Minute
	}

	if c.Metrics.Enabled && c.Metrics.Address == "" {
		return fmt.Errorf("metrics address is required when metrics are enabled")
	}

	return nil
}

// DefaultStatePath returns the default state file location under the user
// config directory, falling back to the working directory.
func DefaultStatePath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "workbench.yaml"
	}
	return filepath.Join(dir, "workbench", "state.yaml")
}

// DefaultConfig returns a default configuration.
func DefaultConfig() *Config {
	return &Config{
		StatePath:        DefaultStatePath(),
		LogLevel:         "info",
		ExecutionTimeout: time.Minute,
		MaxBufferRows:    1000,
		MaxDisplayRows:   100,
		Metadata: MetadataConfig{
			TTL: time.Minute,
		},
		Metrics: MetricsConfig{
			Enabled: false,
			Address: ":9090",
		},
	}
}

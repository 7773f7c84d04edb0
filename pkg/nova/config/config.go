// Package config loads the application-level YAML configuration: where the
// data root lives, what address the GUI API listens on, and how logging and
// maintenance behave. Per-user chat settings live in the settings package;
// this file is deployment configuration.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config is the application configuration.
type Config struct {
	// DataRoot is the folder holding Bots/, Personas/, Chats/, Settings/,
	// Models/ and Debug_logs/.
	DataRoot string `yaml:"data_root"`

	// ListenAddr is the GUI API listen address.
	ListenAddr string `yaml:"listen_addr"`

	Logging     LoggingConfig     `yaml:"logging"`
	Maintenance MaintenanceConfig `yaml:"maintenance"`
}

// LoggingConfig controls the slog handler.
type LoggingConfig struct {
	// Level is debug, info, warn, or error.
	Level string `yaml:"level"`
	// Format is text or json.
	Format string `yaml:"format"`
}

// MaintenanceConfig controls the background housekeeping jobs.
type MaintenanceConfig struct {
	Enabled bool `yaml:"enabled"`
	// Schedule is a cron expression; empty uses the default nightly run.
	Schedule string `yaml:"schedule"`
	// DebugLogRetentionDays prunes Debug_logs/ entries older than this.
	DebugLogRetentionDays int `yaml:"debug_log_retention_days"`
	// UsageRetentionDays prunes usage rows older than this; zero keeps all.
	UsageRetentionDays int `yaml:"usage_retention_days"`
}

// DefaultConfig returns the configuration used when no file is present.
func DefaultConfig() *Config {
	return &Config{
		DataRoot:   ".",
		ListenAddr: "127.0.0.1:5067",
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
		Maintenance: MaintenanceConfig{
			Enabled:               true,
			Schedule:              "0 4 * * *",
			DebugLogRetentionDays: 14,
			UsageRetentionDays:    0,
		},
	}
}

// LoadFromFile reads and parses a YAML configuration file.
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}
	return Parse(data)
}

// Parse parses YAML bytes into a Config, starting from defaults and
// overlaying values from the YAML.
func Parse(data []byte) (*Config, error) {
	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config YAML: %w", err)
	}
	return cfg, nil
}

// SaveToFile writes a Config as YAML.
func SaveToFile(cfg *Config, path string) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}
	return nil
}

// FindConfigFile searches standard locations for a config file and returns
// the first found, or empty string.
func FindConfigFile() string {
	candidates := []string{
		"nova.yaml",
		"nova.yml",
		"config.yaml",
		"config.yml",
		"configs/nova.yaml",
	}
	for _, path := range candidates {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}

// Package config loads Flow sync core configuration.
//
// Configuration comes from a YAML file with sane defaults for every
// field; a handful of environment variables override the file for
// deployment knobs that change per machine.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// RemoteConfig describes the Flow REST API endpoint.
type RemoteConfig struct {
	BaseURL        string        `yaml:"base_url"`
	HealthPath     string        `yaml:"health_path"`
	SocketPath     string        `yaml:"socket_path"`
	RequestTimeout time.Duration `yaml:"request_timeout"`
}

// SyncConfig holds drain and undo timing knobs.
type SyncConfig struct {
	DrainInterval    time.Duration `yaml:"drain_interval"`
	ProbeInterval    time.Duration `yaml:"probe_interval"`
	UndoWindow       time.Duration `yaml:"undo_window"`
	AttemptWarnAfter int           `yaml:"attempt_warn_after"`
}

// Config is the root configuration.
type Config struct {
	DataDir  string       `yaml:"data_dir"`
	LogLevel string       `yaml:"log_level"`
	Remote   RemoteConfig `yaml:"remote"`
	Sync     SyncConfig   `yaml:"sync"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		DataDir:  "./data",
		LogLevel: "INFO",
		Remote: RemoteConfig{
			BaseURL:        "http://localhost:5000",
			HealthPath:     "/api/health",
			SocketPath:     "/ws",
			RequestTimeout: 10 * time.Second,
		},
		Sync: SyncConfig{
			DrainInterval:    30 * time.Second,
			ProbeInterval:    15 * time.Second,
			UndoWindow:       5 * time.Second,
			AttemptWarnAfter: 10,
		},
	}
}

// Load reads configuration from the given path. An empty path falls back
// to $FLOWSYNC_CONFIG and then ./config.yaml; a missing file yields the
// defaults rather than an error. Environment overrides are applied last.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path == "" {
		path = strings.TrimSpace(os.Getenv("FLOWSYNC_CONFIG"))
	}
	if path == "" {
		path = "config.yaml"
	}

	if data, err := os.ReadFile(path); err == nil {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
		}
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to read config %s: %w", path, err)
	}

	applyEnv(cfg)
	cfg.normalize()
	return cfg, nil
}

func applyEnv(cfg *Config) {
	if v := strings.TrimSpace(os.Getenv("FLOWSYNC_BASE_URL")); v != "" {
		cfg.Remote.BaseURL = v
	}
	if v := strings.TrimSpace(os.Getenv("FLOWSYNC_DATA_DIR")); v != "" {
		cfg.DataDir = v
	}
	if v := strings.TrimSpace(os.Getenv("FLOWSYNC_LOG_LEVEL")); v != "" {
		cfg.LogLevel = v
	}
}

// normalize backfills zero values so a sparse YAML file cannot disable
// timers outright.
func (c *Config) normalize() {
	def := Default()
	if c.Remote.RequestTimeout <= 0 {
		c.Remote.RequestTimeout = def.Remote.RequestTimeout
	}
	if c.Sync.DrainInterval <= 0 {
		c.Sync.DrainInterval = def.Sync.DrainInterval
	}
	if c.Sync.ProbeInterval <= 0 {
		c.Sync.ProbeInterval = def.Sync.ProbeInterval
	}
	if c.Sync.UndoWindow <= 0 {
		c.Sync.UndoWindow = def.Sync.UndoWindow
	}
	if c.Sync.AttemptWarnAfter <= 0 {
		c.Sync.AttemptWarnAfter = def.Sync.AttemptWarnAfter
	}
	if c.DataDir == "" {
		c.DataDir = def.DataDir
	}
}

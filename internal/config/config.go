// Package config provides configuration management for threadwatch.
package config

import (
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"
)

const (
	// DefaultWorkerPort is the default port for the worker HTTP service.
	DefaultWorkerPort = 41777

	// DefaultDebounceMS is the default file-change debounce window.
	// Multiple rapid appends to one file within this window coalesce
	// into a single change event.
	DefaultDebounceMS = 500

	// DefaultDedupWindowSecs is the default notification dedup window.
	// Chosen small to favor under-deduplication over dropping distinct events.
	DefaultDedupWindowSecs = 5

	// DefaultAutoReadDwellMS is the default continuous-visibility time
	// before a notification auto-transitions to read.
	DefaultAutoReadDwellMS = 5000
)

// Config holds all threadwatch configuration.
type Config struct {
	WorkerPort      int      `yaml:"worker_port"`
	WatchRoots      []string `yaml:"watch_roots"`
	DebounceMS      int      `yaml:"debounce_ms"`
	DedupWindowSecs int      `yaml:"dedup_window_secs"`
	AutoReadDwellMS int      `yaml:"auto_read_dwell_ms"`
	DBPath          string   `yaml:"db_path"`
}

var (
	instance *Config
	mu       sync.RWMutex
)

// Default returns a config with default values.
func Default() *Config {
	return &Config{
		WorkerPort:      DefaultWorkerPort,
		WatchRoots:      []string{defaultWatchRoot()},
		DebounceMS:      DefaultDebounceMS,
		DedupWindowSecs: DefaultDedupWindowSecs,
		AutoReadDwellMS: DefaultAutoReadDwellMS,
		DBPath:          DBPath(),
	}
}

// Get returns the current config, loading it on first use.
func Get() *Config {
	mu.RLock()
	if instance != nil {
		defer mu.RUnlock()
		return instance
	}
	mu.RUnlock()

	mu.Lock()
	defer mu.Unlock()
	if instance == nil {
		cfg, err := Load()
		if err != nil {
			log.Warn().Err(err).Msg("Failed to load config, using defaults")
			cfg = Default()
		}
		instance = cfg
	}
	return instance
}

// Set replaces the current config (used by main after flag parsing and by tests).
func Set(cfg *Config) {
	mu.Lock()
	defer mu.Unlock()
	instance = cfg
}

// Load reads the config file, falling back to defaults for missing values.
func Load() (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(ConfigPath())
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, err
		}
	case !os.IsNotExist(err):
		return nil, err
	}

	// Environment override for the port applies whether or not a config
	// file exists; hook binaries read the same variable, so the worker
	// and the hooks must agree on the port.
	if p := os.Getenv("THREADWATCH_PORT"); p != "" {
		if parsed, err := strconv.Atoi(p); err == nil && parsed > 0 {
			cfg.WorkerPort = parsed
		}
	}

	if cfg.DebounceMS <= 0 {
		cfg.DebounceMS = DefaultDebounceMS
	}
	if cfg.DedupWindowSecs <= 0 {
		cfg.DedupWindowSecs = DefaultDedupWindowSecs
	}
	if cfg.AutoReadDwellMS <= 0 {
		cfg.AutoReadDwellMS = DefaultAutoReadDwellMS
	}
	if cfg.DBPath == "" {
		cfg.DBPath = DBPath()
	}

	return cfg, nil
}

// Save writes the config to disk.
func (c *Config) Save() error {
	if err := EnsureDataDir(); err != nil {
		return err
	}
	data, err := yaml.Marshal(c)
	if err != nil {
		return err
	}
	return os.WriteFile(ConfigPath(), data, 0o644)
}

// Debounce returns the debounce window as a duration.
func (c *Config) Debounce() time.Duration {
	return time.Duration(c.DebounceMS) * time.Millisecond
}

// DedupWindow returns the dedup window as a duration.
func (c *Config) DedupWindow() time.Duration {
	return time.Duration(c.DedupWindowSecs) * time.Second
}

// AutoReadDwell returns the auto-read dwell time as a duration.
func (c *Config) AutoReadDwell() time.Duration {
	return time.Duration(c.AutoReadDwellMS) * time.Millisecond
}

// DataDir returns the threadwatch data directory.
func DataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		home = "."
	}
	return filepath.Join(home, ".threadwatch")
}

// ConfigPath returns the config file path.
func ConfigPath() string {
	return filepath.Join(DataDir(), "config.yaml")
}

// DBPath returns the notification database path.
func DBPath() string {
	return filepath.Join(DataDir(), "threadwatch.db")
}

// EnsureDataDir creates the data directory if it doesn't exist.
func EnsureDataDir() error {
	return os.MkdirAll(DataDir(), 0o755)
}

// defaultWatchRoot returns the default session-log root directory.
func defaultWatchRoot() string {
	home, err := os.UserHomeDir()
	if err != nil {
		home = "."
	}
	return filepath.Join(home, ".claude", "projects")
}

// Package config provides configuration management for threadwatch.
package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"
)

// ConfigSuite is a test suite for config operations.
type ConfigSuite struct {
	suite.Suite
	tempDir     string
	origHomeDir string
}

func (s *ConfigSuite) SetupTest() {
	var err error
	s.tempDir, err = os.MkdirTemp("", "config-test-*")
	s.Require().NoError(err)

	// Save and override HOME
	s.origHomeDir = os.Getenv("HOME")
	os.Setenv("HOME", s.tempDir)
	Set(nil)
}

func (s *ConfigSuite) TearDownTest() {
	os.Setenv("HOME", s.origHomeDir)
	os.RemoveAll(s.tempDir)
	Set(nil)
}

func TestConfigSuite(t *testing.T) {
	suite.Run(t, new(ConfigSuite))
}

// TestDefault tests default configuration values.
func (s *ConfigSuite) TestDefault() {
	cfg := Default()

	s.Equal(DefaultWorkerPort, cfg.WorkerPort)
	s.Equal(DefaultDebounceMS, cfg.DebounceMS)
	s.Equal(DefaultDedupWindowSecs, cfg.DedupWindowSecs)
	s.Equal(DefaultAutoReadDwellMS, cfg.AutoReadDwellMS)
	s.Len(cfg.WatchRoots, 1)
	s.Contains(cfg.WatchRoots[0], filepath.Join(".claude", "projects"))
}

// TestDataDir tests data directory path.
func (s *ConfigSuite) TestDataDir() {
	dir := DataDir()
	s.Contains(dir, ".threadwatch")
}

// TestDBPath tests database path.
func (s *ConfigSuite) TestDBPath() {
	path := DBPath()
	s.Contains(path, "threadwatch.db")
}

// TestEnsureDataDir tests data directory creation.
func (s *ConfigSuite) TestEnsureDataDir() {
	err := EnsureDataDir()
	s.NoError(err)

	info, err := os.Stat(DataDir())
	s.NoError(err)
	s.True(info.IsDir())
}

// TestLoadMissingFile tests that a missing config file yields defaults.
func (s *ConfigSuite) TestLoadMissingFile() {
	cfg, err := Load()
	s.NoError(err)
	s.Equal(DefaultWorkerPort, cfg.WorkerPort)
}

// TestSaveAndLoad tests round-tripping the config through disk.
func (s *ConfigSuite) TestSaveAndLoad() {
	cfg := Default()
	cfg.WorkerPort = 12345
	cfg.DebounceMS = 300
	cfg.WatchRoots = []string{"/tmp/logs-a", "/tmp/logs-b"}

	s.Require().NoError(cfg.Save())

	loaded, err := Load()
	s.Require().NoError(err)
	s.Equal(12345, loaded.WorkerPort)
	s.Equal(300, loaded.DebounceMS)
	s.Equal([]string{"/tmp/logs-a", "/tmp/logs-b"}, loaded.WatchRoots)
}

// TestLoadEnvOverride tests the port environment override.
func (s *ConfigSuite) TestLoadEnvOverride() {
	s.T().Setenv("THREADWATCH_PORT", "9999")

	cfg, err := Load()
	s.Require().NoError(err)
	s.Equal(9999, cfg.WorkerPort)
}

// TestLoadEnvOverrideBeatsFile tests that the environment wins over the file.
func (s *ConfigSuite) TestLoadEnvOverrideBeatsFile() {
	cfg := Default()
	cfg.WorkerPort = 12345
	s.Require().NoError(cfg.Save())

	s.T().Setenv("THREADWATCH_PORT", "9999")

	loaded, err := Load()
	s.Require().NoError(err)
	s.Equal(9999, loaded.WorkerPort)
}

// TestLoadInvalidValues tests that non-positive tunables fall back to defaults.
func (s *ConfigSuite) TestLoadInvalidValues() {
	s.Require().NoError(EnsureDataDir())
	data := []byte("debounce_ms: -1\ndedup_window_secs: 0\nauto_read_dwell_ms: 0\n")
	s.Require().NoError(os.WriteFile(ConfigPath(), data, 0o644))

	cfg, err := Load()
	s.Require().NoError(err)
	s.Equal(DefaultDebounceMS, cfg.DebounceMS)
	s.Equal(DefaultDedupWindowSecs, cfg.DedupWindowSecs)
	s.Equal(DefaultAutoReadDwellMS, cfg.AutoReadDwellMS)
}

// TestDurations tests duration helpers.
func (s *ConfigSuite) TestDurations() {
	cfg := Default()
	s.Equal(500*time.Millisecond, cfg.Debounce())
	s.Equal(5*time.Second, cfg.DedupWindow())
	s.Equal(5*time.Second, cfg.AutoReadDwell())
}

// TestGetCachesInstance tests the singleton behavior.
func (s *ConfigSuite) TestGetCachesInstance() {
	first := Get()
	second := Get()
	s.Same(first, second)
}

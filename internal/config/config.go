package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains directory configuration.
type Paths struct {
	RuntimeDir string `toml:"runtime_dir"`
	DataDir    string `toml:"data_dir"`
	LogDir     string `toml:"log_dir"`
	Socket     string `toml:"socket"`
}

// Worker contains subprocess launch and per-call timeout configuration.
type Worker struct {
	Command                string   `toml:"command"`
	Args                   []string `toml:"args"`
	Count                  int      `toml:"count"`
	ToolPath               string   `toml:"tool_path"`
	LibraryPath            string   `toml:"library_path"`
	StartupTimeoutSeconds  int      `toml:"startup_timeout"`
	RequestTimeoutSeconds  int      `toml:"request_timeout"`
	ShutdownTimeoutSeconds int      `toml:"shutdown_timeout"`
}

// Pool contains orchestration and health monitoring configuration.
type Pool struct {
	StartTimeoutSeconds    int  `toml:"start_timeout"`
	HealthIntervalSeconds  int  `toml:"health_interval"`
	InactivityLimitSeconds int  `toml:"inactivity_limit"`
	RetryWaitMillis        int  `toml:"retry_wait_ms"`
	StrictRoleIsolation    bool `toml:"strict_role_isolation"`
	HeartbeatOnHealthSweep bool `toml:"heartbeat_on_health_sweep"`
}

// Logging contains log output configuration.
type Logging struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
}

// Stats contains execution history configuration.
type Stats struct {
	Enabled bool `toml:"enabled"`
}

// Config is the root Foreman configuration.
type Config struct {
	Paths   Paths   `toml:"paths"`
	Worker  Worker  `toml:"worker"`
	Pool    Pool    `toml:"pool"`
	Logging Logging `toml:"logging"`
	Stats   Stats   `toml:"stats"`
}

// SampleConfig returns the embedded annotated sample configuration.
func SampleConfig() string {
	return sampleConfig
}

// DefaultConfigPath returns the standard config file location.
func DefaultConfigPath() (string, error) {
	return expandPath("~/.config/foreman/config.toml")
}

// Load reads configuration from path, falling back to the default location
// when path is empty. It returns the config, the resolved path, and whether a
// file existed at that path.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		if _, err := os.Stat(expanded); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := DefaultConfigPath()
	if err != nil {
		return "", false, err
	}
	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	return defaultPath, false, nil
}

// EnsureDirectories creates the directories the daemon writes into.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.RuntimeDir, c.Paths.DataDir, c.Paths.LogDir} {
		if dir == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %s: %w", dir, err)
		}
	}
	return nil
}

// SocketPath returns the IPC socket location.
func (c *Config) SocketPath() string {
	if c.Paths.Socket != "" {
		return c.Paths.Socket
	}
	return filepath.Join(c.Paths.DataDir, "foremand.sock")
}

// LockPath returns the daemon single-instance lock file location.
func (c *Config) LockPath() string {
	return filepath.Join(c.Paths.DataDir, "foremand.lock")
}

// StatsDBPath returns the execution history database location.
func (c *Config) StatsDBPath() string {
	return filepath.Join(c.Paths.DataDir, "taskstats.db")
}

// LogPath returns the daemon log file location, empty when file logging is
// disabled.
func (c *Config) LogPath() string {
	if c.Paths.LogDir == "" {
		return ""
	}
	return filepath.Join(c.Paths.LogDir, "foremand.log")
}

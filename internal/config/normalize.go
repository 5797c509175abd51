package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

func (c *Config) normalize() error {
	var err error
	if c.Paths.RuntimeDir, err = expandPath(c.Paths.RuntimeDir); err != nil {
		return fmt.Errorf("paths.runtime_dir: %w", err)
	}
	if c.Paths.DataDir, err = expandPath(c.Paths.DataDir); err != nil {
		return fmt.Errorf("paths.data_dir: %w", err)
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	if c.Paths.Socket != "" {
		if c.Paths.Socket, err = expandPath(c.Paths.Socket); err != nil {
			return fmt.Errorf("paths.socket: %w", err)
		}
	}
	if c.Worker.ToolPath != "" {
		if c.Worker.ToolPath, err = expandPath(c.Worker.ToolPath); err != nil {
			return fmt.Errorf("worker.tool_path: %w", err)
		}
	}
	if c.Worker.LibraryPath != "" {
		if c.Worker.LibraryPath, err = expandPath(c.Worker.LibraryPath); err != nil {
			return fmt.Errorf("worker.library_path: %w", err)
		}
	}

	c.Worker.Command = strings.TrimSpace(c.Worker.Command)
	if c.Worker.Count <= 0 {
		c.Worker.Count = defaultWorkerCount
	}
	if c.Worker.StartupTimeoutSeconds <= 0 {
		c.Worker.StartupTimeoutSeconds = defaultStartupTimeoutSeconds
	}
	if c.Worker.RequestTimeoutSeconds <= 0 {
		c.Worker.RequestTimeoutSeconds = defaultRequestTimeoutSeconds
	}
	if c.Worker.ShutdownTimeoutSeconds <= 0 {
		c.Worker.ShutdownTimeoutSeconds = defaultShutdownTimeoutSeconds
	}
	if c.Pool.StartTimeoutSeconds <= 0 {
		c.Pool.StartTimeoutSeconds = defaultStartTimeoutSeconds
	}
	if c.Pool.HealthIntervalSeconds <= 0 {
		c.Pool.HealthIntervalSeconds = defaultHealthIntervalSeconds
	}
	if c.Pool.InactivityLimitSeconds <= 0 {
		c.Pool.InactivityLimitSeconds = defaultInactivityLimitSeconds
	}
	if c.Pool.RetryWaitMillis <= 0 {
		c.Pool.RetryWaitMillis = defaultRetryWaitMillis
	}
	if strings.TrimSpace(c.Logging.Level) == "" {
		c.Logging.Level = defaultLogLevel
	}
	if strings.TrimSpace(c.Logging.Format) == "" {
		c.Logging.Format = defaultLogFormat
	}
	return nil
}

func expandPath(path string) (string, error) {
	trimmed := strings.TrimSpace(path)
	if trimmed == "" {
		return "", nil
	}
	if trimmed == "~" || strings.HasPrefix(trimmed, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if trimmed == "~" {
			return home, nil
		}
		return filepath.Join(home, trimmed[2:]), nil
	}
	return filepath.Abs(trimmed)
}

package testsupport

import (
	"path/filepath"
	"testing"

	"foreman/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*config.Config)

// NewConfig produces a config seeded with unique temp directories per test
// and the fake worker command. Timeouts stay at their defaults; tests that
// need sub-second bounds override them through pool or worker options.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfg := config.Default()
	cfg.Paths.RuntimeDir = filepath.Join(base, "runtime")
	cfg.Paths.DataDir = filepath.Join(base, "data")
	cfg.Paths.LogDir = filepath.Join(base, "logs")
	cfg.Worker.Command = "fakeworker"
	cfg.Worker.Args = nil

	for _, opt := range opts {
		opt(&cfg)
	}
	return &cfg
}

// WithWorkerCount sets the pool size on the test config.
func WithWorkerCount(n int) ConfigOption {
	return func(cfg *config.Config) {
		cfg.Worker.Count = n
	}
}

// WithStrictRoleIsolation enables the strict routing knob.
func WithStrictRoleIsolation() ConfigOption {
	return func(cfg *config.Config) {
		cfg.Pool.StrictRoleIsolation = true
	}
}

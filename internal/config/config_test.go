package config_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"foreman/internal/config"
)

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "absent.toml")
	cfg, resolved, exists, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if exists {
		t.Fatal("expected exists=false for missing config file")
	}
	if resolved == "" {
		t.Fatal("expected resolved path")
	}
	if cfg.Worker.Count != 4 {
		t.Fatalf("expected default worker count 4, got %d", cfg.Worker.Count)
	}
	if cfg.Worker.RequestTimeoutSeconds != 300 {
		t.Fatalf("expected default request timeout 300, got %d", cfg.Worker.RequestTimeoutSeconds)
	}
	if cfg.Pool.StrictRoleIsolation {
		t.Fatal("strict role isolation should default to false")
	}
}

func TestLoadParsesOverrides(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	content := `
[paths]
runtime_dir = "` + dir + `"
data_dir = "` + dir + `"

[worker]
command = "fakeworker"
count = 6
request_timeout = 12

[pool]
strict_role_isolation = true
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, _, exists, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if !exists {
		t.Fatal("expected exists=true")
	}
	if cfg.Worker.Command != "fakeworker" {
		t.Fatalf("unexpected command %q", cfg.Worker.Command)
	}
	if cfg.Worker.Count != 6 {
		t.Fatalf("unexpected count %d", cfg.Worker.Count)
	}
	if cfg.Worker.RequestTimeoutSeconds != 12 {
		t.Fatalf("unexpected request timeout %d", cfg.Worker.RequestTimeoutSeconds)
	}
	if !cfg.Pool.StrictRoleIsolation {
		t.Fatal("expected strict role isolation enabled")
	}
}

func TestValidateRejectsEmptyCommand(t *testing.T) {
	cfg := config.Default()
	cfg.Worker.Command = ""
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected validation error for empty worker.command")
	}
}

func TestValidateRejectsInactivityBelowInterval(t *testing.T) {
	cfg := config.Default()
	cfg.Pool.HealthIntervalSeconds = 60
	cfg.Pool.InactivityLimitSeconds = 30
	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected validation error")
	}
	if !strings.Contains(err.Error(), "inactivity_limit") {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestSocketPathDerivedFromDataDir(t *testing.T) {
	cfg := config.Default()
	cfg.Paths.DataDir = "/tmp/foreman-test"
	cfg.Paths.Socket = ""
	if got := cfg.SocketPath(); got != "/tmp/foreman-test/foremand.sock" {
		t.Fatalf("unexpected socket path %q", got)
	}
	cfg.Paths.Socket = "/run/foreman.sock"
	if got := cfg.SocketPath(); got != "/run/foreman.sock" {
		t.Fatalf("explicit socket not honored: %q", got)
	}
}

func TestSampleConfigParses(t *testing.T) {
	sample := config.SampleConfig()
	if !strings.Contains(sample, "[worker]") {
		t.Fatal("sample config missing [worker] section")
	}
}

package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLoadFromMissingFileReturnsDefaults(t *testing.T) {
	cfg, err := LoadFrom(filepath.Join(t.TempDir(), "nope.yaml"))
	if err != nil {
		t.Fatalf("LoadFrom() = %v", err)
	}
	if cfg.Server.Port != 8617 || cfg.Database.Driver != "sqlite" {
		t.Errorf("defaults not applied: %+v", cfg)
	}
	if cfg.Executor.DefaultProfile != "claude" {
		t.Errorf("default executor = %q", cfg.Executor.DefaultProfile)
	}
}

func TestLoadFromOverlaysFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `
server:
  host: 0.0.0.0
  port: 9001
database:
  driver: sqlite
  path: /tmp/custom.db
workspace:
  root: /srv/worktrees
github:
  default_remote: origin
  poll_interval: 30s
executor:
  default_profile: codex
log:
  level: debug
  format: json
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	cfg, err := LoadFrom(path)
	if err != nil {
		t.Fatalf("LoadFrom() = %v", err)
	}
	if cfg.Server.Addr() != "0.0.0.0:9001" {
		t.Errorf("addr = %q", cfg.Server.Addr())
	}
	if cfg.Database.Path != "/tmp/custom.db" {
		t.Errorf("db path = %q", cfg.Database.Path)
	}
	if cfg.GitHub.PollInterval != 30*time.Second {
		t.Errorf("poll interval = %v", cfg.GitHub.PollInterval)
	}
	if cfg.Executor.DefaultProfile != "codex" || cfg.Log.Level != "debug" {
		t.Errorf("overlay incomplete: %+v", cfg)
	}
}

func TestLoadFromRejectsMalformedYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("server: [not a map"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := LoadFrom(path); err == nil {
		t.Error("LoadFrom(malformed) = nil, want error")
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("GREENROOM_PORT", "7777")
	t.Setenv("GREENROOM_EXECUTOR", "codex")
	t.Setenv("GREENROOM_GITHUB_TOKEN", "ghp_test")

	cfg, err := LoadFrom(filepath.Join(t.TempDir(), "absent.yaml"))
	if err != nil {
		t.Fatalf("LoadFrom() = %v", err)
	}
	if cfg.Server.Port != 7777 {
		t.Errorf("port = %d, want 7777", cfg.Server.Port)
	}
	if cfg.Executor.DefaultProfile != "codex" {
		t.Errorf("executor = %q", cfg.Executor.DefaultProfile)
	}
	if cfg.GitHub.Token != "ghp_test" {
		t.Errorf("token = %q", cfg.GitHub.Token)
	}
}

func TestValidate(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"postgres without dsn", func(c *Config) { c.Database.Driver = "postgres"; c.Database.DSN = "" }, "dsn"},
		{"unknown driver", func(c *Config) { c.Database.Driver = "oracle" }, "driver"},
		{"bad port", func(c *Config) { c.Server.Port = -1 }, "port"},
		{"empty workspace", func(c *Config) { c.Workspace.Root = "" }, "workspace"},
		{"zero poll interval", func(c *Config) { c.GitHub.PollInterval = 0 }, "poll_interval"},
	}
	for _, tc := range cases {
		cfg := Default()
		tc.mutate(cfg)
		err := cfg.Validate()
		if err == nil {
			t.Errorf("%s: Validate() = nil, want error", tc.name)
			continue
		}
		if !strings.Contains(err.Error(), tc.want) {
			t.Errorf("%s: error %q missing %q", tc.name, err, tc.want)
		}
	}
}

func TestSaveRoundtrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")
	cfg := Default()
	cfg.Server.Port = 9999

	if err := cfg.Save(path); err != nil {
		t.Fatalf("Save() = %v", err)
	}
	loaded, err := LoadFrom(path)
	if err != nil {
		t.Fatalf("LoadFrom() = %v", err)
	}
	if loaded.Server.Port != 9999 {
		t.Errorf("roundtrip port = %d", loaded.Server.Port)
	}
}

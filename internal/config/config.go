// Package config provides configuration management for greenroom.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	// ConfigFileName is the default config file name.
	ConfigFileName = "config.yaml"
	// GreenroomDir is the greenroom configuration directory.
	GreenroomDir = ".greenroom"
)

// ServerConfig holds the HTTP server settings.
type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// Addr returns the listen address.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// DatabaseConfig selects the storage backend.
type DatabaseConfig struct {
	// Driver is "sqlite" or "postgres".
	Driver string `yaml:"driver"`
	// Path is the sqlite database file, relative paths resolve against
	// the greenroom directory.
	Path string `yaml:"path"`
	// DSN is the postgres connection string, used when Driver is postgres.
	DSN string `yaml:"dsn,omitempty"`
}

// WorkspaceConfig controls where attempt worktrees are materialized.
type WorkspaceConfig struct {
	// Root is the arena directory holding one subdirectory per attempt.
	Root string `yaml:"root"`
}

// GitHubConfig configures the hosting integration.
type GitHubConfig struct {
	// Token authenticates API calls; the GITHUB_TOKEN env var overrides.
	Token string `yaml:"token,omitempty"`
	// DefaultRemote is the remote pushed to and polled for PRs.
	DefaultRemote string `yaml:"default_remote"`
	// PollInterval is how often open PR statuses are refreshed.
	PollInterval time.Duration `yaml:"poll_interval"`
}

// ExecutorConfig sets the default coding agent.
type ExecutorConfig struct {
	DefaultProfile string `yaml:"default_profile"`
	DefaultVariant string `yaml:"default_variant,omitempty"`
}

// LogConfig controls structured logging output.
type LogConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // text or json
}

// Config is the greenroom configuration.
type Config struct {
	Version   int             `yaml:"version"`
	Server    ServerConfig    `yaml:"server"`
	Database  DatabaseConfig  `yaml:"database"`
	Workspace WorkspaceConfig `yaml:"workspace"`
	GitHub    GitHubConfig    `yaml:"github"`
	Executor  ExecutorConfig  `yaml:"executor"`
	Log       LogConfig       `yaml:"log"`
}

// Default returns the default configuration.
func Default() *Config {
	return &Config{
		Version: 1,
		Server: ServerConfig{
			Host: "127.0.0.1",
			Port: 8617,
		},
		Database: DatabaseConfig{
			Driver: "sqlite",
			Path:   filepath.Join(GreenroomDir, "greenroom.db"),
		},
		Workspace: WorkspaceConfig{
			Root: filepath.Join(GreenroomDir, "worktrees"),
		},
		GitHub: GitHubConfig{
			DefaultRemote: "origin",
			PollInterval:  time.Minute,
		},
		Executor: ExecutorConfig{
			DefaultProfile: "claude",
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Load reads the config from the default project location.
func Load() (*Config, error) {
	return LoadFrom(filepath.Join(GreenroomDir, ConfigFileName))
}

// LoadFrom reads the config from path, overlaying file values and then
// GREENROOM_* environment variables on the defaults. A missing file yields
// the defaults.
func LoadFrom(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	} else if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}

	applyEnv(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Save writes the config to path, creating parent directories.
func (c *Config) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}

// Validate checks for values no component can work with.
func (c *Config) Validate() error {
	switch c.Database.Driver {
	case "sqlite":
		if c.Database.Path == "" {
			return fmt.Errorf("config: sqlite driver requires database.path")
		}
	case "postgres":
		if c.Database.DSN == "" {
			return fmt.Errorf("config: postgres driver requires database.dsn")
		}
	default:
		return fmt.Errorf("config: unknown database driver %q", c.Database.Driver)
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("config: invalid server port %d", c.Server.Port)
	}
	if c.Workspace.Root == "" {
		return fmt.Errorf("config: workspace.root must be set")
	}
	if c.GitHub.PollInterval <= 0 {
		return fmt.Errorf("config: github.poll_interval must be positive")
	}
	return nil
}

// applyEnv overlays GREENROOM_* environment variables. GITHUB_TOKEN is also
// honored since every tool in this space reads it.
func applyEnv(cfg *Config) {
	if v := os.Getenv("GREENROOM_HOST"); v != "" {
		cfg.Server.Host = v
	}
	if v := os.Getenv("GREENROOM_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
	if v := os.Getenv("GREENROOM_DB_DRIVER"); v != "" {
		cfg.Database.Driver = v
	}
	if v := os.Getenv("GREENROOM_DB_PATH"); v != "" {
		cfg.Database.Path = v
	}
	if v := os.Getenv("GREENROOM_DB_DSN"); v != "" {
		cfg.Database.DSN = v
	}
	if v := os.Getenv("GREENROOM_WORKSPACE_ROOT"); v != "" {
		cfg.Workspace.Root = v
	}
	if v := os.Getenv("GREENROOM_EXECUTOR"); v != "" {
		cfg.Executor.DefaultProfile = v
	}
	if v := os.Getenv("GREENROOM_LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
	if v := os.Getenv("GREENROOM_GITHUB_TOKEN"); v != "" {
		cfg.GitHub.Token = v
	} else if v := os.Getenv("GITHUB_TOKEN"); v != "" && cfg.GitHub.Token == "" {
		cfg.GitHub.Token = v
	}
}

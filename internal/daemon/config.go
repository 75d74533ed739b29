// Package daemon manages rocketeer configuration and wires the orchestrator
// to its runner, history store, metrics and HTTP API.
package daemon

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"

	"github.com/guoyu07/rocketeer/internal/app"
)

// ConfigFiles are looked up, in order, in the working directory.
var ConfigFiles = []string{"rocketeer.toml", "rocketeer.yaml", "rocketeer.yml"}

// ErrNoConfig is returned when no project file can be found.
var ErrNoConfig = errors.New("no rocketeer.toml or rocketeer.yaml found")

// Config holds the project file: the deployable project plus the settings of
// the surrounding tool.
type Config struct {
	app.Project `yaml:",inline"`

	History HistoryConfig `toml:"history" yaml:"history"`
	API     APIConfig     `toml:"api" yaml:"api"`
	Logging LoggingConfig `toml:"logging" yaml:"logging"`
	Remote  RemoteConfig  `toml:"remote" yaml:"remote"`

	// Path is the file the config was loaded from.
	Path string `toml:"-" yaml:"-"`
}

// HistoryConfig controls the deployment history database.
type HistoryConfig struct {
	Dir      string `toml:"dir,omitempty" yaml:"dir,omitempty"`
	Disabled bool   `toml:"disabled" yaml:"disabled"`
	// Keep prunes all but the newest Keep deployments after each run; 0 keeps all.
	Keep int `toml:"keep" yaml:"keep"`
}

// APIConfig controls the HTTP API server.
type APIConfig struct {
	Host string `toml:"host" yaml:"host"`
	Port int    `toml:"port" yaml:"port"`
}

// Addr returns host:port.
func (c APIConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// LoggingConfig controls logging behavior.
type LoggingConfig struct {
	Level string `toml:"level" yaml:"level"` // quiet, info or debug
}

// RemoteConfig controls how commands are executed.
type RemoteConfig struct {
	Shell   string   `toml:"shell" yaml:"shell"`
	Timeout string   `toml:"timeout" yaml:"timeout"` // per command, e.g. "10m"
	Env     []string `toml:"env,omitempty" yaml:"env,omitempty"`
}

// CommandTimeout parses Timeout; empty means no limit.
func (c RemoteConfig) CommandTimeout() (time.Duration, error) {
	if strings.TrimSpace(c.Timeout) == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(c.Timeout)
	if err != nil {
		return 0, fmt.Errorf("remote.timeout: %w", err)
	}
	if d < 0 {
		return 0, fmt.Errorf("remote.timeout must not be negative")
	}
	return d, nil
}

// DefaultConfig returns a sensible default configuration.
func DefaultConfig() Config {
	homeDir := rocketeerHome()
	return Config{
		Project: app.Project{
			Application: app.ApplicationConfig{
				KeepReleases: 4,
				Permissions:  "755",
			},
		},
		History: HistoryConfig{
			Dir: filepath.Join(homeDir, "history"),
		},
		API: APIConfig{
			Host: "127.0.0.1",
			Port: 8787,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
		Remote: RemoteConfig{
			Shell: "sh",
		},
	}
}

// FindConfig returns the first of ConfigFiles present in dir.
func FindConfig(dir string) (string, error) {
	for _, name := range ConfigFiles {
		path := filepath.Join(dir, name)
		if _, err := os.Stat(path); err == nil {
			return path, nil
		}
	}
	return "", fmt.Errorf("%w in %s", ErrNoConfig, dir)
}

// LoadConfig reads the project file at path over the defaults. An empty path
// searches the working directory. The format follows the file extension.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	if path == "" {
		wd, err := os.Getwd()
		if err != nil {
			return cfg, err
		}
		if path, err = FindConfig(wd); err != nil {
			return cfg, err
		}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}
	if err := decodeConfig(path, data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config %s: %w", path, err)
	}
	cfg.Path = path
	if cfg.History.Dir == "" {
		cfg.History.Dir = filepath.Join(rocketeerHome(), "history")
	}
	cfg.Application.RootDirectory = expandHome(cfg.Application.RootDirectory)
	cfg.History.Dir = expandHome(cfg.History.Dir)

	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return cfg, nil
}

func decodeConfig(path string, data []byte, cfg *Config) error {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return yaml.Unmarshal(data, cfg)
	default:
		_, err := toml.Decode(string(data), cfg)
		return err
	}
}

// SaveConfig writes cfg to path as TOML or YAML, by extension.
func SaveConfig(cfg Config, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}

	var buf bytes.Buffer
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		enc := yaml.NewEncoder(&buf)
		enc.SetIndent(2)
		if err := enc.Encode(cfg); err != nil {
			return err
		}
		if err := enc.Close(); err != nil {
			return err
		}
	default:
		if err := toml.NewEncoder(&buf).Encode(cfg); err != nil {
			return err
		}
	}
	return os.WriteFile(path, buf.Bytes(), 0644)
}

// Validate checks the settings a run depends on.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Application.RootDirectory) == "" {
		return fmt.Errorf("application.root_directory is required")
	}
	if c.API.Port < 0 || c.API.Port > 65535 {
		return fmt.Errorf("api.port %d out of range", c.API.Port)
	}
	switch c.Logging.Level {
	case "", "quiet", "info", "debug":
	default:
		return fmt.Errorf("logging.level %q: want quiet, info or debug", c.Logging.Level)
	}
	if _, err := c.Remote.CommandTimeout(); err != nil {
		return err
	}
	if c.History.Keep < 0 {
		return fmt.Errorf("history.keep must not be negative")
	}
	return c.Project.Validate()
}

func expandHome(path string) string {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, strings.TrimPrefix(path, "~"))
}

// rocketeerHome returns the rocketeer data directory.
func rocketeerHome() string {
	if env := os.Getenv("ROCKETEER_HOME"); env != "" {
		return env
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".rocketeer")
}

// Home is exported for use by other packages.
func Home() string {
	return rocketeerHome()
}

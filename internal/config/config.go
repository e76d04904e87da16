package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/afero"
	"gopkg.in/yaml.v3"
)

const FileName = "meetline.yml"

// Config models meetline.yml.
type Config struct {
	Server struct {
		Addr     string `yaml:"addr"`
		BasePath string `yaml:"base_path"`
	} `yaml:"server"`
	Database  DatabaseConfig  `yaml:"database"`
	Analysis  AnalysisConfig  `yaml:"analysis"`
	Dictation DictationConfig `yaml:"dictation"`
	Client    struct {
		BaseURL string        `yaml:"base_url"`
		Timeout time.Duration `yaml:"timeout"`
	} `yaml:"client"`
	Log struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
	} `yaml:"log"`
}

type DatabaseConfig struct {
	// Driver is sqlite or pgx.
	Driver string `yaml:"driver"`
	// DSN is required for pgx; for sqlite an empty DSN means the workspace file.
	DSN string `yaml:"dsn"`
}

type AnalysisConfig struct {
	URL     string        `yaml:"url"`
	Timeout time.Duration `yaml:"timeout"`
}

type DictationConfig struct {
	Locale             string        `yaml:"locale"`
	QuickSessionWindow time.Duration `yaml:"quick_session_window"`
	MaxRapidRestarts   int           `yaml:"max_rapid_restarts"`
	RestartBackoff     time.Duration `yaml:"restart_backoff"`
}

// Load reads and validates config from workspace.
func Load(fs afero.Fs, workspace string) (*Config, error) {
	path := Path(workspace)
	data, err := afero.ReadFile(fs, path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config %s not found; create one with ml config init", path)
		}
		return nil, err
	}
	return FromYAML(data)
}

// LoadOptional returns the defaults if the config file does not exist.
func LoadOptional(fs afero.Fs, workspace string) (*Config, error) {
	path := Path(workspace)
	data, err := afero.ReadFile(fs, path)
	if err != nil {
		if os.IsNotExist(err) {
			return Default(), nil
		}
		return nil, err
	}
	return FromYAML(data)
}

// Validate ensures the config meets required structure.
func (c *Config) Validate() error {
	if c.Server.Addr == "" {
		return fmt.Errorf("config.server.addr is required")
	}
	if c.Server.BasePath != "" && !strings.HasPrefix(c.Server.BasePath, "/") {
		return fmt.Errorf("config.server.base_path must start with /")
	}
	switch c.Database.Driver {
	case "sqlite":
	case "pgx":
		if c.Database.DSN == "" {
			return fmt.Errorf("config.database.dsn is required for driver pgx")
		}
	default:
		return fmt.Errorf("config.database.driver must be sqlite or pgx, got %q", c.Database.Driver)
	}
	if c.Analysis.Timeout < 0 {
		return fmt.Errorf("config.analysis.timeout must not be negative")
	}
	if c.Dictation.Locale == "" {
		return fmt.Errorf("config.dictation.locale is required")
	}
	if c.Dictation.MaxRapidRestarts < 1 {
		return fmt.Errorf("config.dictation.max_rapid_restarts must be at least 1")
	}
	if c.Dictation.QuickSessionWindow < 0 || c.Dictation.RestartBackoff < 0 {
		return fmt.Errorf("config.dictation durations must not be negative")
	}
	if c.Client.Timeout <= 0 {
		return fmt.Errorf("config.client.timeout must be positive")
	}
	switch c.Log.Format {
	case "", "console", "json":
	default:
		return fmt.Errorf("config.log.format must be console or json")
	}
	return nil
}

// Path returns the config file path for a workspace.
func Path(workspace string) string {
	if workspace == "" {
		workspace = "."
	}
	return filepath.Join(workspace, FileName)
}

// GenerateDefault returns default config YAML.
func GenerateDefault() string {
	return defaultTemplate
}

// Default returns the default Config.
func Default() *Config {
	var cfg Config
	_ = yaml.NewDecoder(bytes.NewBufferString(defaultTemplate)).Decode(&cfg)
	return &cfg
}

// FromYAML parses and validates config from raw YAML bytes. Missing keys keep
// their default values.
func FromYAML(data []byte) (*Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("invalid config yaml: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

const defaultTemplate = `server:
  addr: 127.0.0.1:8080
  base_path: /v0

database:
  driver: sqlite
  dsn: ""

analysis:
  url: ""
  timeout: 60s

dictation:
  locale: ru-RU
  quick_session_window: 1s
  max_rapid_restarts: 5
  restart_backoff: 250ms

client:
  base_url: http://127.0.0.1:8080/v0
  timeout: 30s

log:
  level: info
  format: console
`

package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	Agents   AgentsConfig   `yaml:"agents"`
	Uploads  UploadsConfig  `yaml:"uploads"`
	Webhooks WebhooksConfig `yaml:"webhooks"`
	Logging  LoggingConfig  `yaml:"logging"`
}

type ServerConfig struct {
	Port         int           `yaml:"port"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
	CORSOrigins  []string      `yaml:"cors_origins"`
}

type DatabaseConfig struct {
	Path        string `yaml:"path"`
	ArchivePath string `yaml:"archive_path"`
	ArchiveDays int    `yaml:"archive_days"`
}

type AgentsConfig struct {
	StaleAfter   time.Duration `yaml:"stale_after"`
	OfflineSweep time.Duration `yaml:"offline_sweep"`
}

type UploadsConfig struct {
	AssetDir    string `yaml:"asset_dir"`
	ComposedDir string `yaml:"composed_dir"`
}

type WebhooksConfig struct {
	WorkerCount int           `yaml:"worker_count"`
	Timeout     time.Duration `yaml:"timeout"`
	MaxRetries  int           `yaml:"max_retries"`
	RetryDelay  time.Duration `yaml:"retry_delay"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

func defaults() *Config {
	return &Config{
		Server: ServerConfig{
			Port:         8080,
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 30 * time.Second,
			CORSOrigins:  []string{"http://localhost:5173"},
		},
		Database: DatabaseConfig{
			Path:        "./data/printflow.db",
			ArchivePath: "./data/archives",
			ArchiveDays: 30,
		},
		Agents: AgentsConfig{
			StaleAfter:   2 * time.Minute,
			OfflineSweep: 30 * time.Second,
		},
		Uploads: UploadsConfig{
			AssetDir:    "./data/assets",
			ComposedDir: "./data/composed",
		},
		Webhooks: WebhooksConfig{
			WorkerCount: 2,
			Timeout:     10 * time.Second,
			MaxRetries:  3,
			RetryDelay:  5 * time.Second,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Load reads the yaml config at configPath over the defaults, then applies
// environment overrides on top. A missing file is not an error.
func Load(configPath string) (*Config, error) {
	cfg := defaults()

	data, err := os.ReadFile(configPath)
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	} else if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	cfg.applyEnv()
	return cfg, nil
}

func (c *Config) applyEnv() {
	if v := os.Getenv("PRINTFLOW_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			c.Server.Port = port
		}
	}

	if v := os.Getenv("PRINTFLOW_DB_PATH"); v != "" {
		c.Database.Path = v
	}

	if v := os.Getenv("PRINTFLOW_ARCHIVE_PATH"); v != "" {
		c.Database.ArchivePath = v
	}

	if v := os.Getenv("PRINTFLOW_ASSET_DIR"); v != "" {
		c.Uploads.AssetDir = v
	}

	if v := os.Getenv("PRINTFLOW_AGENT_STALE_AFTER"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			c.Agents.StaleAfter = d
		}
	}

	if v := os.Getenv("PRINTFLOW_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
}

func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("server port must be between 1 and 65535, got %d", c.Server.Port)
	}

	if c.Server.ReadTimeout < 0 {
		return fmt.Errorf("server read timeout must be non-negative")
	}

	if c.Server.WriteTimeout < 0 {
		return fmt.Errorf("server write timeout must be non-negative")
	}

	if c.Database.Path == "" {
		return fmt.Errorf("database path is required")
	}

	if c.Database.ArchiveDays < 0 {
		return fmt.Errorf("archive days must be non-negative")
	}

	if c.Agents.StaleAfter <= 0 {
		return fmt.Errorf("agent stale_after must be positive")
	}

	if c.Agents.OfflineSweep <= 0 {
		return fmt.Errorf("agent offline_sweep must be positive")
	}

	if c.Uploads.AssetDir == "" {
		return fmt.Errorf("upload asset dir is required")
	}

	if c.Uploads.ComposedDir == "" {
		return fmt.Errorf("upload composed dir is required")
	}

	if c.Webhooks.WorkerCount < 1 {
		return fmt.Errorf("webhook worker count must be at least 1")
	}

	if c.Webhooks.Timeout <= 0 {
		return fmt.Errorf("webhook timeout must be positive")
	}

	if c.Webhooks.MaxRetries < 0 {
		return fmt.Errorf("webhook max retries must be non-negative")
	}

	validLevels := map[string]bool{
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}

	if !validLevels[c.Logging.Level] {
		return fmt.Errorf("invalid log level: %s (valid: debug, info, warn, error)", c.Logging.Level)
	}

	validFormats := map[string]bool{
		"json": true,
		"text": true,
	}

	if !validFormats[c.Logging.Format] {
		return fmt.Errorf("invalid log format: %s (valid: json, text)", c.Logging.Format)
	}

	return nil
}

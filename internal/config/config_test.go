package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}

	if cfg.Server.Port != 8080 {
		t.Errorf("port = %d, want 8080", cfg.Server.Port)
	}
	if cfg.Agents.StaleAfter != 2*time.Minute {
		t.Errorf("stale_after = %v, want 2m", cfg.Agents.StaleAfter)
	}
	if cfg.Database.ArchiveDays != 30 {
		t.Errorf("archive_days = %d, want 30", cfg.Database.ArchiveDays)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("defaults must validate: %v", err)
	}
}

func TestLoadYAMLOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `
server:
  port: 9000
agents:
  stale_after: 5m
logging:
  level: debug
`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}

	if cfg.Server.Port != 9000 {
		t.Errorf("port = %d, want 9000", cfg.Server.Port)
	}
	if cfg.Agents.StaleAfter != 5*time.Minute {
		t.Errorf("stale_after = %v, want 5m", cfg.Agents.StaleAfter)
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("level = %q, want debug", cfg.Logging.Level)
	}
	// Untouched sections keep defaults.
	if cfg.Webhooks.WorkerCount != 2 {
		t.Errorf("worker_count = %d, want 2", cfg.Webhooks.WorkerCount)
	}
}

func TestLoadInvalidYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("server: [not a map"), 0644); err != nil {
		t.Fatal(err)
	}

	if _, err := Load(path); err == nil {
		t.Fatal("expected parse error")
	}
}

func TestEnvOverridesYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("server:\n  port: 9000\n"), 0644); err != nil {
		t.Fatal(err)
	}

	t.Setenv("PRINTFLOW_PORT", "7777")
	t.Setenv("PRINTFLOW_DB_PATH", "/var/lib/printflow.db")
	t.Setenv("PRINTFLOW_AGENT_STALE_AFTER", "90s")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}

	if cfg.Server.Port != 7777 {
		t.Errorf("port = %d, want 7777", cfg.Server.Port)
	}
	if cfg.Database.Path != "/var/lib/printflow.db" {
		t.Errorf("db path = %q", cfg.Database.Path)
	}
	if cfg.Agents.StaleAfter != 90*time.Second {
		t.Errorf("stale_after = %v, want 90s", cfg.Agents.StaleAfter)
	}
}

func TestValidateRejectsBadValues(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"port too low", func(c *Config) { c.Server.Port = 0 }},
		{"port too high", func(c *Config) { c.Server.Port = 70000 }},
		{"empty db path", func(c *Config) { c.Database.Path = "" }},
		{"negative archive days", func(c *Config) { c.Database.ArchiveDays = -1 }},
		{"zero stale_after", func(c *Config) { c.Agents.StaleAfter = 0 }},
		{"zero offline_sweep", func(c *Config) { c.Agents.OfflineSweep = 0 }},
		{"empty asset dir", func(c *Config) { c.Uploads.AssetDir = "" }},
		{"zero webhook workers", func(c *Config) { c.Webhooks.WorkerCount = 0 }},
		{"bad log level", func(c *Config) { c.Logging.Level = "verbose" }},
		{"bad log format", func(c *Config) { c.Logging.Format = "xml" }},
	}

	for _, tc := range cases {
		cfg := defaults()
		tc.mutate(cfg)
		if err := cfg.Validate(); err == nil {
			t.Errorf("%s: expected validation error", tc.name)
		}
	}
}

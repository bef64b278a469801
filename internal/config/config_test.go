// ABOUTME: Tests for configuration loading and parsing
// ABOUTME: Covers YAML and TOML loading, env var expansion, env overrides, defaults, and validation

package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}
	return path
}

func TestLoad_ValidConfig(t *testing.T) {
	configPath := writeConfig(t, "config.yaml", `
agent:
  base_url: "https://agents.example.com/"
  app_name: "vehicle_service"
  user_id: "tech-7"
  request_timeout: "15s"
  stream_idle_timeout: "45s"

auth:
  token_file: "/tmp/pitstop-token"

attachments:
  max_bytes: 1048576

upload:
  cache_ttl: "1m"
  cache_size: 8

ledger:
  path: "./transcript.db"

logging:
  level: "debug"
  format: "json"
`)

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Agent.BaseURL != "https://agents.example.com" {
		t.Errorf("Agent.BaseURL = %q, want trailing slash trimmed", cfg.Agent.BaseURL)
	}
	if cfg.Agent.AppName != "vehicle_service" {
		t.Errorf("Agent.AppName = %q, want %q", cfg.Agent.AppName, "vehicle_service")
	}
	if cfg.Agent.UserID != "tech-7" {
		t.Errorf("Agent.UserID = %q, want %q", cfg.Agent.UserID, "tech-7")
	}
	if cfg.Agent.RequestTimeout != 15*time.Second {
		t.Errorf("Agent.RequestTimeout = %v, want %v", cfg.Agent.RequestTimeout, 15*time.Second)
	}
	if cfg.Agent.StreamIdleTimeout != 45*time.Second {
		t.Errorf("Agent.StreamIdleTimeout = %v, want %v", cfg.Agent.StreamIdleTimeout, 45*time.Second)
	}
	if cfg.Auth.TokenFile != "/tmp/pitstop-token" {
		t.Errorf("Auth.TokenFile = %q", cfg.Auth.TokenFile)
	}
	if cfg.Attachments.MaxBytes != 1048576 {
		t.Errorf("Attachments.MaxBytes = %d, want %d", cfg.Attachments.MaxBytes, 1048576)
	}
	if cfg.Upload.CacheTTL != time.Minute {
		t.Errorf("Upload.CacheTTL = %v, want %v", cfg.Upload.CacheTTL, time.Minute)
	}
	if cfg.Upload.CacheSize != 8 {
		t.Errorf("Upload.CacheSize = %d, want 8", cfg.Upload.CacheSize)
	}
	if cfg.Ledger.Path != "./transcript.db" {
		t.Errorf("Ledger.Path = %q", cfg.Ledger.Path)
	}
	if cfg.Logging.Level != "debug" || cfg.Logging.Format != "json" {
		t.Errorf("Logging = %+v", cfg.Logging)
	}
}

func TestLoad_TOML(t *testing.T) {
	configPath := writeConfig(t, "config.toml", `
[agent]
base_url = "http://10.0.0.5:9000"
app_name = "fleet"
request_timeout = "5s"

[logging]
level = "warn"
`)

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Agent.BaseURL != "http://10.0.0.5:9000" {
		t.Errorf("Agent.BaseURL = %q", cfg.Agent.BaseURL)
	}
	if cfg.Agent.AppName != "fleet" {
		t.Errorf("Agent.AppName = %q", cfg.Agent.AppName)
	}
	if cfg.Agent.RequestTimeout != 5*time.Second {
		t.Errorf("Agent.RequestTimeout = %v", cfg.Agent.RequestTimeout)
	}
	if cfg.Logging.Level != "warn" {
		t.Errorf("Logging.Level = %q", cfg.Logging.Level)
	}
	// Unset fields take defaults.
	if cfg.Agent.UserID != DefaultUserID {
		t.Errorf("Agent.UserID = %q, want default %q", cfg.Agent.UserID, DefaultUserID)
	}
}

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("XDG_DATA_HOME", "/data")
	t.Setenv("XDG_CONFIG_HOME", "/conf")

	cfg, err := Load(writeConfig(t, "config.yaml", ""))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Agent.BaseURL != DefaultBaseURL {
		t.Errorf("Agent.BaseURL = %q, want %q", cfg.Agent.BaseURL, DefaultBaseURL)
	}
	if cfg.Agent.AppName != DefaultAppName {
		t.Errorf("Agent.AppName = %q, want %q", cfg.Agent.AppName, DefaultAppName)
	}
	if cfg.Agent.RequestTimeout != DefaultRequestTimeout {
		t.Errorf("Agent.RequestTimeout = %v", cfg.Agent.RequestTimeout)
	}
	if cfg.Agent.StreamIdleTimeout != DefaultStreamIdleTimeout {
		t.Errorf("Agent.StreamIdleTimeout = %v", cfg.Agent.StreamIdleTimeout)
	}
	if cfg.Attachments.MaxBytes != DefaultMaxAttachment {
		t.Errorf("Attachments.MaxBytes = %d", cfg.Attachments.MaxBytes)
	}
	if cfg.Upload.CacheTTL != DefaultUploadCacheTTL || cfg.Upload.CacheSize != DefaultUploadCacheSize {
		t.Errorf("Upload = %+v", cfg.Upload)
	}
	if cfg.Auth.TokenFile != filepath.Join("/conf", "pitstop", "token") {
		t.Errorf("Auth.TokenFile = %q", cfg.Auth.TokenFile)
	}
	if cfg.Ledger.Path != filepath.Join("/data", "pitstop", "transcript.db") {
		t.Errorf("Ledger.Path = %q", cfg.Ledger.Path)
	}
	if cfg.Logging.Level != "info" || cfg.Logging.Format != "text" {
		t.Errorf("Logging = %+v", cfg.Logging)
	}
}

func TestLoad_EnvVarExpansion(t *testing.T) {
	t.Setenv("TEST_AGENT_HOST", "agents.internal:8443")
	t.Setenv("TEST_APP", "service_logs")

	cfg, err := Load(writeConfig(t, "config.yaml", `
agent:
  base_url: "https://${TEST_AGENT_HOST}"
  app_name: "${TEST_APP}"
  user_id: "${TEST_UNSET_USER}"
`))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Agent.BaseURL != "https://agents.internal:8443" {
		t.Errorf("Agent.BaseURL = %q", cfg.Agent.BaseURL)
	}
	if cfg.Agent.AppName != "service_logs" {
		t.Errorf("Agent.AppName = %q", cfg.Agent.AppName)
	}
	// Unset variables expand to empty, which then takes the default.
	if cfg.Agent.UserID != DefaultUserID {
		t.Errorf("Agent.UserID = %q, want %q", cfg.Agent.UserID, DefaultUserID)
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("PITSTOP_BASE_URL", "http://override:1234")
	t.Setenv("PITSTOP_USER_ID", "env-user")
	t.Setenv("PITSTOP_STREAM_IDLE_TIMEOUT", "10s")
	t.Setenv("PITSTOP_LEDGER_DISABLED", "true")
	t.Setenv("PITSTOP_LOG_LEVEL", "error")

	cfg, err := Load(writeConfig(t, "config.yaml", `
agent:
  base_url: "http://from-file:8080"
  user_id: "file-user"
  app_name: "file-app"
  stream_idle_timeout: "3m"
`))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Agent.BaseURL != "http://override:1234" {
		t.Errorf("Agent.BaseURL = %q, want env override", cfg.Agent.BaseURL)
	}
	if cfg.Agent.UserID != "env-user" {
		t.Errorf("Agent.UserID = %q, want env override", cfg.Agent.UserID)
	}
	if cfg.Agent.AppName != "file-app" {
		t.Errorf("Agent.AppName = %q, want file value kept", cfg.Agent.AppName)
	}
	if cfg.Agent.StreamIdleTimeout != 10*time.Second {
		t.Errorf("Agent.StreamIdleTimeout = %v, want 10s", cfg.Agent.StreamIdleTimeout)
	}
	if !cfg.Ledger.Disabled {
		t.Error("Ledger.Disabled = false, want true")
	}
	if cfg.Logging.Level != "error" {
		t.Errorf("Logging.Level = %q", cfg.Logging.Level)
	}
}

func TestLoad_InvalidDuration(t *testing.T) {
	_, err := Load(writeConfig(t, "config.yaml", `
agent:
  request_timeout: "soon"
`))
	if err == nil {
		t.Fatal("Load() expected error for invalid duration")
	}
	if !strings.Contains(err.Error(), "request_timeout") {
		t.Errorf("error = %v, want mention of request_timeout", err)
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	_, err := Load(writeConfig(t, "config.yaml", "agent: [unterminated"))
	if err == nil {
		t.Fatal("Load() expected error for invalid YAML")
	}
}

func TestLoad_FileNotFound(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	if err == nil {
		t.Fatal("Load() expected error for missing file")
	}
}

func TestLoadOrDefault_MissingFile(t *testing.T) {
	cfg, err := LoadOrDefault(filepath.Join(t.TempDir(), "missing.yaml"))
	if err != nil {
		t.Fatalf("LoadOrDefault() error = %v", err)
	}
	if cfg.Agent.BaseURL != DefaultBaseURL {
		t.Errorf("Agent.BaseURL = %q, want default", cfg.Agent.BaseURL)
	}
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		cfg := &Config{}
		applyDefaults(cfg)
		return cfg
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{name: "defaults are valid"},
		{
			name:    "bad scheme",
			mutate:  func(c *Config) { c.Agent.BaseURL = "ftp://host" },
			wantErr: "http or https",
		},
		{
			name:    "missing host",
			mutate:  func(c *Config) { c.Agent.BaseURL = "http://" },
			wantErr: "host",
		},
		{
			name:    "blank app name",
			mutate:  func(c *Config) { c.Agent.AppName = "  " },
			wantErr: "agent.app_name",
		},
		{
			name:    "blank user id",
			mutate:  func(c *Config) { c.Agent.UserID = "" },
			wantErr: "agent.user_id",
		},
		{
			name:    "negative timeout",
			mutate:  func(c *Config) { c.Agent.RequestTimeout = -time.Second },
			wantErr: "request_timeout",
		},
		{
			name:    "negative max bytes",
			mutate:  func(c *Config) { c.Attachments.MaxBytes = -1 },
			wantErr: "max_bytes",
		},
		{
			name:    "unknown log format",
			mutate:  func(c *Config) { c.Logging.Format = "xml" },
			wantErr: "logging.format",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			if tt.mutate != nil {
				tt.mutate(cfg)
			}
			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("Validate() error = %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Validate() error = %v, want containing %q", err, tt.wantErr)
			}
		})
	}
}

func TestPath(t *testing.T) {
	t.Run("env override", func(t *testing.T) {
		t.Setenv("PITSTOP_CONFIG", "/etc/pitstop.toml")
		if got := Path(); got != "/etc/pitstop.toml" {
			t.Errorf("Path() = %q", got)
		}
	})

	t.Run("xdg", func(t *testing.T) {
		t.Setenv("PITSTOP_CONFIG", "")
		t.Setenv("XDG_CONFIG_HOME", "/xdg")
		if got := Path(); got != filepath.Join("/xdg", "pitstop", "config.yaml") {
			t.Errorf("Path() = %q", got)
		}
	})
}

// ABOUTME: Configuration loading and parsing for pitstop
// ABOUTME: Supports YAML or TOML files with env var expansion, env overrides, and duration parsing

package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

// Defaults applied to fields left empty by the file and environment.
const (
	DefaultBaseURL           = "http://127.0.0.1:8080"
	DefaultAppName           = "agent"
	DefaultUserID            = "user"
	DefaultRequestTimeout    = 30 * time.Second
	DefaultStreamIdleTimeout = 2 * time.Minute
	DefaultMaxAttachment     = 20 << 20
	DefaultUploadCacheTTL    = 10 * time.Minute
	DefaultUploadCacheSize   = 64
)

// Config represents the complete pitstop configuration
type Config struct {
	Agent       AgentConfig       `yaml:"agent" toml:"agent"`
	Auth        AuthConfig        `yaml:"auth" toml:"auth"`
	Attachments AttachmentsConfig `yaml:"attachments" toml:"attachments"`
	Upload      UploadConfig      `yaml:"upload" toml:"upload"`
	Ledger      LedgerConfig      `yaml:"ledger" toml:"ledger"`
	Logging     LoggingConfig     `yaml:"logging" toml:"logging"`
}

// AgentConfig holds the remote agent service location and timing
type AgentConfig struct {
	BaseURL string `yaml:"base_url" toml:"base_url" env:"PITSTOP_BASE_URL"`
	AppName string `yaml:"app_name" toml:"app_name" env:"PITSTOP_APP_NAME"`
	UserID  string `yaml:"user_id" toml:"user_id" env:"PITSTOP_USER_ID"`

	// RequestTimeout bounds unary calls (session directory, extraction).
	RequestTimeout time.Duration `yaml:"-" toml:"-"`
	// StreamIdleTimeout bounds the gap between bytes of a streaming reply.
	StreamIdleTimeout time.Duration `yaml:"-" toml:"-"`

	// Raw string values for unmarshaling
	RequestTimeoutRaw    string `yaml:"request_timeout" toml:"request_timeout" env:"PITSTOP_REQUEST_TIMEOUT"`
	StreamIdleTimeoutRaw string `yaml:"stream_idle_timeout" toml:"stream_idle_timeout" env:"PITSTOP_STREAM_IDLE_TIMEOUT"`
}

// AuthConfig holds where the bearer token is read from
type AuthConfig struct {
	TokenFile string `yaml:"token_file" toml:"token_file" env:"PITSTOP_TOKEN_FILE"`
}

// AttachmentsConfig holds limits for inline attachments
type AttachmentsConfig struct {
	MaxBytes int64 `yaml:"max_bytes" toml:"max_bytes" env:"PITSTOP_ATTACHMENT_MAX_BYTES"`
}

// UploadConfig holds the extraction result cache settings
type UploadConfig struct {
	CacheTTL    time.Duration `yaml:"-" toml:"-"`
	CacheTTLRaw string        `yaml:"cache_ttl" toml:"cache_ttl" env:"PITSTOP_UPLOAD_CACHE_TTL"`
	CacheSize   int           `yaml:"cache_size" toml:"cache_size" env:"PITSTOP_UPLOAD_CACHE_SIZE"`
}

// LedgerConfig holds the local transcript database settings
type LedgerConfig struct {
	Path     string `yaml:"path" toml:"path" env:"PITSTOP_LEDGER_PATH"`
	Disabled bool   `yaml:"disabled" toml:"disabled" env:"PITSTOP_LEDGER_DISABLED"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level" toml:"level" env:"PITSTOP_LOG_LEVEL"`
	Format string `yaml:"format" toml:"format" env:"PITSTOP_LOG_FORMAT"`
}

// Load reads a configuration file from the given path and returns a parsed Config.
// Files ending in .toml are decoded as TOML, everything else as YAML.
// Environment variables in the format ${VAR_NAME} are expanded, PITSTOP_*
// variables override file values, and defaults fill whatever is left.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}
	return parse(path, data)
}

// LoadOrDefault behaves like Load but treats a missing file as empty.
func LoadOrDefault(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return parse(path, nil)
	}
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}
	return parse(path, data)
}

func parse(path string, data []byte) (*Config, error) {
	expanded := expandEnvVars(string(data))

	var cfg Config
	if strings.EqualFold(filepath.Ext(path), ".toml") {
		if _, err := toml.Decode(expanded, &cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	} else {
		if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	}

	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("parsing environment overrides: %w", err)
	}

	if err := parseDurations(&cfg); err != nil {
		return nil, fmt.Errorf("parsing durations: %w", err)
	}

	applyDefaults(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &cfg, nil
}

// expandEnvVars replaces ${VAR_NAME} patterns with the corresponding environment variable values.
// If the environment variable is not set, it is replaced with an empty string.
func expandEnvVars(s string) string {
	re := regexp.MustCompile(`\$\{([^}]+)\}`)

	return re.ReplaceAllStringFunc(s, func(match string) string {
		varName := re.FindStringSubmatch(match)[1]
		return os.Getenv(varName)
	})
}

// applyDefaults fills fields the file and environment left empty
func applyDefaults(cfg *Config) {
	if cfg.Agent.BaseURL == "" {
		cfg.Agent.BaseURL = DefaultBaseURL
	}
	cfg.Agent.BaseURL = strings.TrimSuffix(cfg.Agent.BaseURL, "/")
	if cfg.Agent.AppName == "" {
		cfg.Agent.AppName = DefaultAppName
	}
	if cfg.Agent.UserID == "" {
		cfg.Agent.UserID = DefaultUserID
	}
	if cfg.Agent.RequestTimeout == 0 {
		cfg.Agent.RequestTimeout = DefaultRequestTimeout
	}
	if cfg.Agent.StreamIdleTimeout == 0 {
		cfg.Agent.StreamIdleTimeout = DefaultStreamIdleTimeout
	}
	if cfg.Auth.TokenFile == "" {
		cfg.Auth.TokenFile = filepath.Join(configDir(), "pitstop", "token")
	}
	if cfg.Attachments.MaxBytes == 0 {
		cfg.Attachments.MaxBytes = DefaultMaxAttachment
	}
	if cfg.Upload.CacheTTL == 0 {
		cfg.Upload.CacheTTL = DefaultUploadCacheTTL
	}
	if cfg.Upload.CacheSize == 0 {
		cfg.Upload.CacheSize = DefaultUploadCacheSize
	}
	if cfg.Ledger.Path == "" {
		cfg.Ledger.Path = filepath.Join(DataDir(), "transcript.db")
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "text"
	}
}

// Validate checks that all required configuration fields are present and valid.
// Returns an error describing the first validation failure encountered.
func (c *Config) Validate() error {
	u, err := url.Parse(c.Agent.BaseURL)
	if err != nil {
		return fmt.Errorf("agent.base_url is not a valid URL: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("agent.base_url must use http or https scheme")
	}
	if u.Host == "" {
		return fmt.Errorf("agent.base_url must include a host")
	}

	if strings.TrimSpace(c.Agent.AppName) == "" {
		return fmt.Errorf("agent.app_name is required")
	}
	if strings.TrimSpace(c.Agent.UserID) == "" {
		return fmt.Errorf("agent.user_id is required")
	}
	if c.Agent.RequestTimeout < 0 {
		return fmt.Errorf("agent.request_timeout must be positive")
	}
	if c.Agent.StreamIdleTimeout < 0 {
		return fmt.Errorf("agent.stream_idle_timeout must be positive")
	}
	if c.Attachments.MaxBytes < 0 {
		return fmt.Errorf("attachments.max_bytes must be positive")
	}
	if c.Upload.CacheSize < 0 {
		return fmt.Errorf("upload.cache_size must be positive")
	}

	switch c.Logging.Format {
	case "text", "json":
	default:
		return fmt.Errorf("logging.format must be text or json, got %q", c.Logging.Format)
	}

	return nil
}

// parseDurations converts the raw duration strings into time.Duration values
func parseDurations(cfg *Config) error {
	var err error

	if cfg.Agent.RequestTimeoutRaw != "" {
		cfg.Agent.RequestTimeout, err = time.ParseDuration(cfg.Agent.RequestTimeoutRaw)
		if err != nil {
			return fmt.Errorf("parsing request_timeout %q: %w", cfg.Agent.RequestTimeoutRaw, err)
		}
	}

	if cfg.Agent.StreamIdleTimeoutRaw != "" {
		cfg.Agent.StreamIdleTimeout, err = time.ParseDuration(cfg.Agent.StreamIdleTimeoutRaw)
		if err != nil {
			return fmt.Errorf("parsing stream_idle_timeout %q: %w", cfg.Agent.StreamIdleTimeoutRaw, err)
		}
	}

	if cfg.Upload.CacheTTLRaw != "" {
		cfg.Upload.CacheTTL, err = time.ParseDuration(cfg.Upload.CacheTTLRaw)
		if err != nil {
			return fmt.Errorf("parsing cache_ttl %q: %w", cfg.Upload.CacheTTLRaw, err)
		}
	}

	return nil
}

// Path returns the path to the pitstop config file.
// Priority: PITSTOP_CONFIG env var > XDG_CONFIG_HOME/pitstop/config.yaml > ~/.config/pitstop/config.yaml
func Path() string {
	if envPath := os.Getenv("PITSTOP_CONFIG"); envPath != "" {
		return envPath
	}
	return filepath.Join(configDir(), "pitstop", "config.yaml")
}

// DataDir returns the pitstop data directory.
// Priority: XDG_DATA_HOME/pitstop > ~/.local/share/pitstop
func DataDir() string {
	dataDir := os.Getenv("XDG_DATA_HOME")
	if dataDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "data"
		}
		dataDir = filepath.Join(homeDir, ".local", "share")
	}
	return filepath.Join(dataDir, "pitstop")
}

func configDir() string {
	dir := os.Getenv("XDG_CONFIG_HOME")
	if dir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "."
		}
		dir = filepath.Join(homeDir, ".config")
	}
	return dir
}

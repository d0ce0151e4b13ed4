package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/brightline/vantage/internal/retry"
)

// Config is the root configuration structure.
// It is read-only after Load() returns and thread-safe for concurrent reads.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	Schema   SchemaConfig   `yaml:"schema"`
	Identity IdentityConfig `yaml:"identity"`
	Research ResearchConfig `yaml:"research"`
	DocStore DocStoreConfig `yaml:"docstore"`
	Sync     SyncConfig     `yaml:"sync"`
	Auth     AuthConfig     `yaml:"auth"`
	Archive  ArchiveConfig  `yaml:"archive"`
	Log      LogConfig      `yaml:"log"`
}

// ServerConfig contains HTTP server settings.
type ServerConfig struct {
	Port            int      `yaml:"port"`
	ReadTimeout     Duration `yaml:"read_timeout"`
	WriteTimeout    Duration `yaml:"write_timeout"`
	ShutdownTimeout Duration `yaml:"shutdown_timeout"`
}

// DatabaseConfig contains snapshot database settings.
type DatabaseConfig struct {
	Path string `yaml:"path"`
}

// SchemaConfig locates the competitor schema document.
type SchemaConfig struct {
	Path string `yaml:"path"`
}

// IdentityConfig tunes identity resolution. An empty suffix list selects
// the built-in corporate suffixes.
type IdentityConfig struct {
	Suffixes []string `yaml:"suffixes"`
}

// ResearchConfig contains AI research backend settings.
type ResearchConfig struct {
	APIKey         string          `yaml:"-"` // env-only, never in YAML
	Model          string          `yaml:"model"`
	CompanyContext string          `yaml:"company_context"`
	Retry          RetryConfig     `yaml:"retry"`
	RateLimit      RateLimitConfig `yaml:"rate_limit"`
}

// DocStoreConfig contains external document store settings.
type DocStoreConfig struct {
	BaseURL       string          `yaml:"base_url"`
	Token         string          `yaml:"-"` // env-only, never in YAML
	DatabaseID    string          `yaml:"database_id"`
	SummaryPageID string          `yaml:"summary_page_id"`
	Retry         RetryConfig     `yaml:"retry"`
	RateLimit     RateLimitConfig `yaml:"rate_limit"`
}

// SyncConfig contains run orchestration settings. Interval and NamesFile
// together enable scheduled runs in serve mode; either one missing leaves
// scheduling off.
type SyncConfig struct {
	Workers           int      `yaml:"workers"`
	RunTimeout        Duration `yaml:"run_timeout"`
	Interval          Duration `yaml:"interval"`
	NamesFile         string   `yaml:"names_file"`
	Summary           bool     `yaml:"summary"`
	Discovery         bool     `yaml:"discovery"`
	DiscoveryLookback Duration `yaml:"discovery_lookback"`
}

// AuthConfig contains API authentication settings.
type AuthConfig struct {
	APIKey string `yaml:"-"` // env-only, never in YAML
}

// ArchiveConfig contains S3-compatible report archive settings.
// An empty bucket disables archiving.
type ArchiveConfig struct {
	Bucket    string   `yaml:"bucket"`
	Endpoint  string   `yaml:"endpoint"`
	Region    string   `yaml:"region"`
	AccessKey string   `yaml:"-"` // env-only, never in YAML
	SecretKey string   `yaml:"-"` // env-only, never in YAML
	UseSSL    *bool    `yaml:"use_ssl"`
	URLExpiry Duration `yaml:"url_expiry"`
}

// LogConfig contains logging settings.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// RetryConfig describes one collaborator's backoff policy.
type RetryConfig struct {
	MaxAttempts int      `yaml:"max_attempts"`
	BaseBackoff Duration `yaml:"base_backoff"`
	MaxBackoff  Duration `yaml:"max_backoff"`
	Budget      Duration `yaml:"budget"`
}

// Policy converts the settings to a retry.Policy.
func (r RetryConfig) Policy() retry.Policy {
	return retry.Policy{
		MaxAttempts: r.MaxAttempts,
		BaseBackoff: time.Duration(r.BaseBackoff),
		MaxBackoff:  time.Duration(r.MaxBackoff),
		Budget:      time.Duration(r.Budget),
	}
}

// RateLimitConfig describes one collaborator's shared call budget: burst
// immediate calls, then one call per interval. A zero interval disables
// limiting.
type RateLimitConfig struct {
	Burst    int      `yaml:"burst"`
	Interval Duration `yaml:"interval"`
}

// Duration is a wrapper around time.Duration that supports YAML string parsing.
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler for Duration.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	*d = Duration(parsed)
	return nil
}

// MarshalYAML implements yaml.Marshaler for Duration.
func (d Duration) MarshalYAML() (interface{}, error) {
	return time.Duration(d).String(), nil
}

// Load loads configuration with precedence: defaults → YAML file → env vars.
// Returns an immutable Config suitable for concurrent read access.
func Load() (*Config, error) {
	cfg := newDefaults()

	configPath := getEnv("VANTAGE_CONFIG_PATH", "config/vantage.yaml")

	// Missing file is not an error; defaults plus env cover it.
	if err := loadYAMLFile(cfg, configPath); err != nil {
		return nil, err
	}

	applyEnvOverrides(cfg)

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// LoadFromFile loads configuration from a specific path. Env overrides
// still apply on top of the file.
func LoadFromFile(path string) (*Config, error) {
	cfg := newDefaults()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	applyEnvOverrides(cfg)

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// newDefaults returns a Config with all default values.
func newDefaults() *Config {
	useSSL := true
	return &Config{
		Server: ServerConfig{
			Port:            8080,
			ReadTimeout:     Duration(30 * time.Second),
			WriteTimeout:    Duration(30 * time.Second),
			ShutdownTimeout: Duration(15 * time.Second),
		},
		Database: DatabaseConfig{
			Path: "data/vantage.db",
		},
		Schema: SchemaConfig{
			Path: "config/schema.yaml",
		},
		Research: ResearchConfig{
			Model: "gpt-4o-mini",
			Retry: RetryConfig{
				MaxAttempts: 4,
				BaseBackoff: Duration(500 * time.Millisecond),
				MaxBackoff:  Duration(10 * time.Second),
				Budget:      Duration(2 * time.Minute),
			},
			RateLimit: RateLimitConfig{
				Burst:    2,
				Interval: Duration(2 * time.Second),
			},
		},
		DocStore: DocStoreConfig{
			Retry: RetryConfig{
				MaxAttempts: 4,
				BaseBackoff: Duration(500 * time.Millisecond),
				MaxBackoff:  Duration(10 * time.Second),
				Budget:      Duration(2 * time.Minute),
			},
			RateLimit: RateLimitConfig{
				Burst:    3,
				Interval: Duration(350 * time.Millisecond),
			},
		},
		Sync: SyncConfig{
			Workers:           4,
			RunTimeout:        Duration(15 * time.Minute),
			Summary:           true,
			Discovery:         false,
			DiscoveryLookback: Duration(30 * 24 * time.Hour),
		},
		Archive: ArchiveConfig{
			Region:    "us-east-1",
			UseSSL:    &useSSL,
			URLExpiry: Duration(1 * time.Hour),
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// loadYAMLFile loads configuration from a YAML file if it exists.
// Missing file is not an error; we just use defaults.
func loadYAMLFile(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parsing config file: %w", err)
	}

	return nil
}

// applyEnvOverrides applies environment variable overrides to the config.
// Only non-empty env vars override config values.
func applyEnvOverrides(cfg *Config) {
	// Server
	if v := os.Getenv("VANTAGE_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
	if v := os.Getenv("VANTAGE_READ_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Server.ReadTimeout = Duration(d)
		}
	}
	if v := os.Getenv("VANTAGE_WRITE_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Server.WriteTimeout = Duration(d)
		}
	}
	if v := os.Getenv("VANTAGE_SHUTDOWN_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Server.ShutdownTimeout = Duration(d)
		}
	}

	// Database and schema
	if v := os.Getenv("VANTAGE_DB_PATH"); v != "" {
		cfg.Database.Path = v
	}
	if v := os.Getenv("VANTAGE_SCHEMA_PATH"); v != "" {
		cfg.Schema.Path = v
	}

	// Research (OPENAI_API_KEY is industry convention)
	if v := os.Getenv("OPENAI_API_KEY"); v != "" {
		cfg.Research.APIKey = v
	}
	if v := os.Getenv("VANTAGE_RESEARCH_MODEL"); v != "" {
		cfg.Research.Model = v
	}
	if v := os.Getenv("VANTAGE_COMPANY_CONTEXT"); v != "" {
		cfg.Research.CompanyContext = v
	}

	// Document store
	if v := os.Getenv("VANTAGE_DOCSTORE_URL"); v != "" {
		cfg.DocStore.BaseURL = v
	}
	if v := os.Getenv("VANTAGE_DOCSTORE_TOKEN"); v != "" {
		cfg.DocStore.Token = v
	}
	if v := os.Getenv("VANTAGE_DOCSTORE_DATABASE_ID"); v != "" {
		cfg.DocStore.DatabaseID = v
	}
	if v := os.Getenv("VANTAGE_DOCSTORE_SUMMARY_PAGE_ID"); v != "" {
		cfg.DocStore.SummaryPageID = v
	}

	// Sync
	if v := os.Getenv("VANTAGE_WORKERS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Sync.Workers = n
		}
	}
	if v := os.Getenv("VANTAGE_RUN_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Sync.RunTimeout = Duration(d)
		}
	}
	if v := os.Getenv("VANTAGE_SYNC_INTERVAL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Sync.Interval = Duration(d)
		}
	}
	if v := os.Getenv("VANTAGE_NAMES_FILE"); v != "" {
		cfg.Sync.NamesFile = v
	}
	if v := os.Getenv("VANTAGE_SUMMARY"); v != "" {
		cfg.Sync.Summary = v == "true" || v == "1"
	}
	if v := os.Getenv("VANTAGE_DISCOVERY"); v != "" {
		cfg.Sync.Discovery = v == "true" || v == "1"
	}
	if v := os.Getenv("VANTAGE_DISCOVERY_LOOKBACK"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Sync.DiscoveryLookback = Duration(d)
		}
	}

	// Auth
	if v := os.Getenv("VANTAGE_API_KEY"); v != "" {
		cfg.Auth.APIKey = v
	}

	// Archive
	if v := os.Getenv("VANTAGE_ARCHIVE_BUCKET"); v != "" {
		cfg.Archive.Bucket = v
	}
	if v := os.Getenv("VANTAGE_ARCHIVE_ENDPOINT"); v != "" {
		cfg.Archive.Endpoint = v
	}
	if v := os.Getenv("VANTAGE_ARCHIVE_REGION"); v != "" {
		cfg.Archive.Region = v
	}
	if v := os.Getenv("VANTAGE_ARCHIVE_ACCESS_KEY"); v != "" {
		cfg.Archive.AccessKey = v
	}
	if v := os.Getenv("VANTAGE_ARCHIVE_SECRET_KEY"); v != "" {
		cfg.Archive.SecretKey = v
	}
	if v := os.Getenv("VANTAGE_ARCHIVE_USE_SSL"); v != "" {
		useSSL := v == "true" || v == "1"
		cfg.Archive.UseSSL = &useSSL
	}
	if v := os.Getenv("VANTAGE_ARCHIVE_URL_EXPIRY"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Archive.URLExpiry = Duration(d)
		}
	}

	// Log
	if v := os.Getenv("VANTAGE_LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
	if v := os.Getenv("VANTAGE_LOG_FORMAT"); v != "" {
		cfg.Log.Format = v
	}
}

// validate checks that required configuration values are set.
// In dev mode (VANTAGE_DEV_MODE=true), credential validation is skipped.
func (c *Config) validate() error {
	if os.Getenv("VANTAGE_DEV_MODE") == "true" {
		return nil
	}

	if c.Research.APIKey == "" {
		return errors.New("OPENAI_API_KEY is required")
	}
	if c.DocStore.BaseURL == "" {
		return errors.New("docstore base_url is required")
	}
	if c.DocStore.Token == "" {
		return errors.New("VANTAGE_DOCSTORE_TOKEN is required")
	}
	return nil
}

// getEnv returns the value of an environment variable or a default.
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

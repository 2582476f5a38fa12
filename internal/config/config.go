package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultConfigPath is used when neither --config nor CUNYSERVE_CONFIG is set.
const DefaultConfigPath = "~/.config/cunyserve/config.yaml"

// EnvConfigPath names the environment variable that overrides the config path.
const EnvConfigPath = "CUNYSERVE_CONFIG"

// Config holds all CUNYServe configuration.
type Config struct {
	Storage    StorageConfig    `yaml:"storage"`
	Server     ServerConfig     `yaml:"server"`
	Schedule   ScheduleConfig   `yaml:"schedule"`
	HTTP       HTTPConfig       `yaml:"http"`
	Browser    BrowserConfig    `yaml:"browser"`
	Sources    SourcesConfig    `yaml:"sources"`
	Moderation ModerationConfig `yaml:"moderation"`
	Runs       RunsConfig       `yaml:"runs"`
	Logging    LoggingConfig    `yaml:"logging"`
}

type StorageConfig struct {
	Driver            string `yaml:"driver"`
	SQLitePath        string `yaml:"sqlite_path"`
	SQLiteJournalMode string `yaml:"sqlite_journal_mode"`
	PostgresDSN       string `yaml:"postgres_dsn"`
	PostgresMaxConns  int    `yaml:"postgres_max_conns"`
}

type ServerConfig struct {
	Host         string        `yaml:"host"`
	Port         int           `yaml:"port"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
	// AdminTokens maps a bearer token to the admin identity it represents.
	AdminTokens map[string]string `yaml:"admin_tokens"`
}

type ScheduleConfig struct {
	Enabled  bool   `yaml:"enabled"`
	DailyAt  string `yaml:"daily_at"`
	TimeZone string `yaml:"time_zone"`
}

type HTTPConfig struct {
	UserAgent     string        `yaml:"user_agent"`
	Timeout       time.Duration `yaml:"timeout"`
	RatePerSecond float64       `yaml:"rate_per_second"`
	Burst         int           `yaml:"burst"`
	MaxRetries    int           `yaml:"max_retries"`
	Backoff       time.Duration `yaml:"backoff"`
	MaxBackoff    time.Duration `yaml:"max_backoff"`
}

type BrowserConfig struct {
	Enabled  bool   `yaml:"enabled"`
	ExecPath string `yaml:"exec_path"`
	Headless bool   `yaml:"headless"`
}

type SourcesConfig struct {
	CUNYEvents ListingSourceConfig `yaml:"cuny_events"`
	Admissions ListingSourceConfig `yaml:"cuny_admissions"`
	NYCService NYCServiceConfig    `yaml:"nyc_service"`
}

type ListingSourceConfig struct {
	Enabled     bool          `yaml:"enabled"`
	URL         string        `yaml:"url"`
	MaxPages    int           `yaml:"max_pages"`
	WaitTimeout time.Duration `yaml:"wait_timeout"`
}

type NYCServiceConfig struct {
	Enabled       bool          `yaml:"enabled"`
	PageURL       string        `yaml:"page_url"`
	APIURL        string        `yaml:"api_url"`
	Method        string        `yaml:"method"`
	RequestBody   string        `yaml:"request_body"`
	SettleTimeout time.Duration `yaml:"settle_timeout"`
}

type ModerationConfig struct {
	TimeZone        string `yaml:"time_zone"`
	DefaultLocation string `yaml:"default_location"`
}

type RunsConfig struct {
	HistoryLimit int           `yaml:"history_limit"`
	StaleAfter   time.Duration `yaml:"stale_after"`
	Heartbeat    time.Duration `yaml:"heartbeat"`
}

type LoggingConfig struct {
	Level string `yaml:"level"`
	File  string `yaml:"file"`
}

var dailyAtPattern = regexp.MustCompile(`^([01]\d|2[0-3]):[0-5]\d$`)

// Load reads a YAML config file at path and merges it with defaults.
// Returns an error if the file cannot be read or contains invalid YAML.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks values that the rest of the program assumes are sane.
func (c *Config) Validate() error {
	switch c.Storage.Driver {
	case "sqlite":
		if c.Storage.SQLitePath == "" {
			return fmt.Errorf("storage.sqlite_path is required for the sqlite driver")
		}
	case "postgres":
		if c.Storage.PostgresDSN == "" {
			return fmt.Errorf("storage.postgres_dsn is required for the postgres driver")
		}
	default:
		return fmt.Errorf("unknown storage driver %q (use sqlite or postgres)", c.Storage.Driver)
	}

	if c.Schedule.Enabled && !dailyAtPattern.MatchString(c.Schedule.DailyAt) {
		return fmt.Errorf("schedule.daily_at must be HH:MM, got %q", c.Schedule.DailyAt)
	}
	if _, err := time.LoadLocation(c.Schedule.TimeZone); err != nil {
		return fmt.Errorf("schedule.time_zone: %w", err)
	}
	if _, err := time.LoadLocation(c.Moderation.TimeZone); err != nil {
		return fmt.Errorf("moderation.time_zone: %w", err)
	}
	if c.Runs.HistoryLimit <= 0 {
		return fmt.Errorf("runs.history_limit must be positive")
	}
	if err := c.Sources.CUNYEvents.validate("cuny_events"); err != nil {
		return err
	}
	if err := c.Sources.Admissions.validate("cuny_admissions"); err != nil {
		return err
	}
	if c.Sources.NYCService.Enabled && c.Sources.NYCService.SettleTimeout <= 0 {
		return fmt.Errorf("sources.nyc_service.settle_timeout must be positive")
	}
	return nil
}

func (l ListingSourceConfig) validate(name string) error {
	if !l.Enabled {
		return nil
	}
	if l.MaxPages <= 0 {
		return fmt.Errorf("sources.%s.max_pages must be positive", name)
	}
	if l.WaitTimeout <= 0 {
		return fmt.Errorf("sources.%s.wait_timeout must be positive", name)
	}
	return nil
}

// Location resolves the moderation time zone used for normalizing dates.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Moderation.TimeZone)
	if err != nil {
		return time.Local
	}
	return loc
}

// ExpandPath replaces a leading ~ with the user's home directory.
func ExpandPath(path string) (string, error) {
	if len(path) > 0 && path[0] == '~' {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolving home directory: %w", err)
		}
		return filepath.Join(home, path[1:]), nil
	}
	return path, nil
}

// ResolvePath picks the config path: the explicit flag value, then the
// environment override, then the default location.
func ResolvePath(flagValue string) (string, error) {
	path := flagValue
	if path == "" {
		path = os.Getenv(EnvConfigPath)
	}
	if path == "" {
		path = DefaultConfigPath
	}
	return ExpandPath(path)
}

// LoadOrCreateAt loads the config from the given path. If the file does
// not exist, it creates the directory structure and writes defaults.
func LoadOrCreateAt(path string) (*Config, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		cfg := DefaultConfig()

		dir := filepath.Dir(path)
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("creating config directory: %w", err)
		}

		data, err := yaml.Marshal(cfg)
		if err != nil {
			return nil, fmt.Errorf("marshaling default config: %w", err)
		}

		if err := os.WriteFile(path, data, 0600); err != nil {
			return nil, fmt.Errorf("writing default config: %w", err)
		}

		return cfg, nil
	}

	return Load(path)
}

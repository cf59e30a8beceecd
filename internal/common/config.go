package common

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/pelletier/go-toml/v2"
)

// Config represents the application configuration
type Config struct {
	Environment string          `toml:"environment"` // "development" or "production"
	Queue       QueueConfig     `toml:"queue"`
	Storage     StorageConfig   `toml:"storage"`
	Logging     LoggingConfig   `toml:"logging"`
	Scraper     ScraperConfig   `toml:"scraper"`
	Sessions    SessionsConfig  `toml:"sessions"`
	Fields      FieldsConfig    `toml:"fields"`
	Provider    ProviderConfig  `toml:"provider"`
	Schedules   SchedulesConfig `toml:"schedules"`
}

type QueueConfig struct {
	PollInterval      string `toml:"poll_interval"`      // e.g. "1s" - how often workers poll for messages
	Concurrency       int    `toml:"concurrency"`        // Number of concurrent run workers
	VisibilityTimeout string `toml:"visibility_timeout"` // e.g. "5m" - message visibility timeout for redelivery
	MaxReceive        int    `toml:"max_receive"`        // Max times a message can be received before it is dropped
	QueueName         string `toml:"queue_name"`         // Queue name prefix in Badger
}

type StorageConfig struct {
	Badger BadgerConfig `toml:"badger"`
}

// BadgerConfig represents BadgerDB-specific configuration
type BadgerConfig struct {
	Path           string `toml:"path"`             // Database directory path
	ResetOnStartup bool   `toml:"reset_on_startup"` // Delete database on startup for clean test runs
}

type LoggingConfig struct {
	Level  string   `toml:"level"`  // "debug", "info", "warn", "error"
	Format string   `toml:"format"` // "json" or "text"
	Output []string `toml:"output"` // "stdout", "file"
}

// ScraperConfig contains fetch-engine configuration shared by the engine adapters
type ScraperConfig struct {
	UserAgent         string        `toml:"user_agent"`          // Default user agent string
	HTTPTimeout       time.Duration `toml:"http_timeout"`        // HTTP engine request timeout
	BrowserNavTimeout time.Duration `toml:"browser_nav_timeout"` // Browser engine navigation timeout
	RequestDelay      time.Duration `toml:"request_delay"`       // Minimum delay between requests to the same domain
	MaxBodySize       int           `toml:"max_body_size"`       // Maximum response body size in bytes
	MaxEscalations    int           `toml:"max_escalations"`     // Engine ladder bound per run
	MaxAttempts       int           `toml:"max_attempts"`        // Default run attempts before giving up
	BrowserPoolSize   int           `toml:"browser_pool_size"`   // Number of pooled chromedp contexts
	Headless          bool          `toml:"headless"`            // Run browsers headless
	SnapshotDir       string        `toml:"snapshot_dir"`        // Where page snapshots for interventions are written
	InterventionTTL   time.Duration `toml:"intervention_ttl"`    // Open intervention tasks expire after this; 0 disables
}

// SessionsConfig contains session pool configuration
type SessionsConfig struct {
	Dir             string `toml:"dir"`               // Directory for persisted session files
	MaxAgeMinutes   int    `toml:"max_age_minutes"`   // Session age ceiling before trust decay retires it
	MaxPersistedAge string `toml:"max_persisted_age"` // Persisted files older than this are ignored on load
	SweepSchedule   string `toml:"sweep_schedule"`    // Cron schedule for retiring stale sessions
}

// FieldsConfig contains field pipeline defaults
type FieldsConfig struct {
	DefaultRegion string `toml:"default_region"` // Phone parsing region when the field does not specify one
	DefaultScheme string `toml:"default_scheme"` // URL scheme applied to scheme-less values
}

// ProviderConfig contains third-party fetch provider configuration
type ProviderConfig struct {
	Preference []string          `toml:"preference"` // Provider order of preference
	APIKeys    map[string]string `toml:"api_keys"`   // Provider name -> API key
	Timeout    time.Duration     `toml:"timeout"`    // Provider request timeout
}

// SchedulesConfig contains cron schedules for background maintenance
type SchedulesConfig struct {
	SessionSweep      string `toml:"session_sweep"`      // Retire stale sessions and flush persistence
	InterventionSweep string `toml:"intervention_sweep"` // Expire open interventions past their TTL
	StatsFlush        string `toml:"stats_flush"`        // Persist adaptive domain stats
}

// NewDefaultConfig creates a configuration with default values.
// Technical parameters are hardcoded here for production stability.
func NewDefaultConfig() *Config {
	return &Config{
		Environment: "development",
		Queue: QueueConfig{
			PollInterval:      "1s",
			Concurrency:       4,
			VisibilityTimeout: "5m",
			MaxReceive:        3,
			QueueName:         "tendril_runs",
		},
		Storage: StorageConfig{
			Badger: BadgerConfig{
				Path: "./data",
			},
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
			Output: []string{"stdout", "file"},
		},
		Scraper: ScraperConfig{
			UserAgent:         "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
			HTTPTimeout:       20 * time.Second,
			BrowserNavTimeout: 30 * time.Second,
			RequestDelay:      1 * time.Second,
			MaxBodySize:       10 * 1024 * 1024, // 10MB
			MaxEscalations:    3,
			MaxAttempts:       3,
			BrowserPoolSize:   2,
			Headless:          true,
			SnapshotDir:       "./data/snapshots",
			InterventionTTL:   72 * time.Hour,
		},
		Sessions: SessionsConfig{
			Dir:             ".sessions",
			MaxAgeMinutes:   120,
			MaxPersistedAge: "24h",
			SweepSchedule:   "0 */5 * * * *", // Every 5 minutes
		},
		Fields: FieldsConfig{
			DefaultRegion: "US",
			DefaultScheme: "https",
		},
		Provider: ProviderConfig{
			Preference: []string{"scrapingbee", "zyte", "brightdata"},
			APIKeys:    map[string]string{},
			Timeout:    60 * time.Second,
		},
		Schedules: SchedulesConfig{
			SessionSweep:      "0 */5 * * * *",
			InterventionSweep: "0 */10 * * * *",
			StatsFlush:        "0 */1 * * * *",
		},
	}
}

// LoadFromFile loads configuration with priority: defaults -> file -> env
func LoadFromFile(path string) (*Config, error) {
	if path == "" {
		return LoadFromFiles()
	}
	return LoadFromFiles(path)
}

// LoadFromFiles loads configuration from multiple files. Later files override
// earlier files; environment variables override everything.
func LoadFromFiles(paths ...string) (*Config, error) {
	config := NewDefaultConfig()

	for i, path := range paths {
		if path == "" {
			continue
		}

		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}

		if err := toml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s (file %d of %d): %w", path, i+1, len(paths), err)
		}
	}

	applyEnvOverrides(config)

	return config, nil
}

// applyEnvOverrides applies environment variable overrides to config
func applyEnvOverrides(config *Config) {
	if env := os.Getenv("TENDRIL_ENV"); env != "" {
		config.Environment = env
	} else if env := os.Getenv("GO_ENV"); env != "" {
		config.Environment = env
	}

	if path := os.Getenv("TENDRIL_BADGER_PATH"); path != "" {
		config.Storage.Badger.Path = path
	}

	if level := os.Getenv("TENDRIL_LOG_LEVEL"); level != "" {
		config.Logging.Level = level
	}

	if concurrency := os.Getenv("TENDRIL_QUEUE_CONCURRENCY"); concurrency != "" {
		if c, err := strconv.Atoi(concurrency); err == nil && c > 0 {
			config.Queue.Concurrency = c
		}
	}

	if dir := os.Getenv("TENDRIL_SESSION_DIR"); dir != "" {
		config.Sessions.Dir = dir
	}

	for _, provider := range []string{"scrapingbee", "zyte", "brightdata"} {
		envKey := "TENDRIL_PROVIDER_KEY_" + toEnvSuffix(provider)
		if key := os.Getenv(envKey); key != "" {
			if config.Provider.APIKeys == nil {
				config.Provider.APIKeys = map[string]string{}
			}
			config.Provider.APIKeys[provider] = key
		}
	}
}

func toEnvSuffix(name string) string {
	out := make([]byte, 0, len(name))
	for i := 0; i < len(name); i++ {
		c := name[i]
		if c >= 'a' && c <= 'z' {
			c -= 'a' - 'A'
		}
		out = append(out, c)
	}
	return string(out)
}

// PollIntervalDuration parses the queue poll interval with a sane fallback
func (c *Config) PollIntervalDuration() time.Duration {
	d, err := time.ParseDuration(c.Queue.PollInterval)
	if err != nil || d <= 0 {
		return 1 * time.Second
	}
	return d
}

// VisibilityTimeoutDuration parses the queue visibility timeout with a sane fallback
func (c *Config) VisibilityTimeoutDuration() time.Duration {
	d, err := time.ParseDuration(c.Queue.VisibilityTimeout)
	if err != nil || d <= 0 {
		return 5 * time.Minute
	}
	return d
}

// MaxPersistedAgeDuration parses the persisted session age ceiling
func (c *Config) MaxPersistedAgeDuration() time.Duration {
	d, err := time.ParseDuration(c.Sessions.MaxPersistedAge)
	if err != nil || d <= 0 {
		return 24 * time.Hour
	}
	return d
}

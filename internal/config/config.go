package config

import (
	"fmt"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the cache layer
type Config struct {
	API       APIConfig       `mapstructure:"api" yaml:"api"`
	Storage   StorageConfig   `mapstructure:"storage" yaml:"storage"`
	Cache     CacheConfig     `mapstructure:"cache" yaml:"cache"`
	Patient   PatientConfig   `mapstructure:"patient" yaml:"patient"`
	Analytics AnalyticsConfig `mapstructure:"analytics" yaml:"analytics"`
	Logging   LoggingConfig   `mapstructure:"logging" yaml:"logging"`
	Metrics   MetricsConfig   `mapstructure:"metrics" yaml:"metrics"`
}

// APIConfig holds remote backend settings
type APIConfig struct {
	BaseURL            string        `mapstructure:"base_url" yaml:"base_url"`
	Timeout            time.Duration `mapstructure:"timeout" yaml:"timeout"`
	RateRPS            float64       `mapstructure:"rate_rps" yaml:"rate_rps"`
	RateBurst          int           `mapstructure:"rate_burst" yaml:"rate_burst"`
	BreakerFailures    uint32        `mapstructure:"breaker_failures" yaml:"breaker_failures"`
	BreakerOpenTimeout time.Duration `mapstructure:"breaker_open_timeout" yaml:"breaker_open_timeout"`
}

// StorageConfig holds durable key-value settings
type StorageConfig struct {
	Backend    string `mapstructure:"backend" yaml:"backend"` // badger, sqlite or memory
	DataDir    string `mapstructure:"data_dir" yaml:"data_dir"`
	SQLitePath string `mapstructure:"sqlite_path" yaml:"sqlite_path"`
	BadgerPath string `mapstructure:"badger_path" yaml:"badger_path"`
}

// CacheConfig holds profile cache settings
type CacheConfig struct {
	ProfileTTL           time.Duration `mapstructure:"profile_ttl" yaml:"profile_ttl"`
	ProfileCheckSchedule string        `mapstructure:"profile_check_schedule" yaml:"profile_check_schedule"`
}

// PatientConfig holds the identity the client works for
type PatientConfig struct {
	DefaultID string `mapstructure:"default_id" yaml:"default_id"`
}

// AnalyticsConfig holds aggregation store settings
type AnalyticsConfig struct {
	IntensityDays   int           `mapstructure:"intensity_days" yaml:"intensity_days"`
	FrequencyMonths int           `mapstructure:"frequency_months" yaml:"frequency_months"`
	AutoRefresh     bool          `mapstructure:"auto_refresh" yaml:"auto_refresh"`
	StaleAfter      time.Duration `mapstructure:"stale_after" yaml:"stale_after"`
	Debounce        time.Duration `mapstructure:"debounce" yaml:"debounce"`
	PollSchedule    string        `mapstructure:"poll_schedule" yaml:"poll_schedule"`
}

// LoggingConfig holds logger settings
type LoggingConfig struct {
	Level  string `mapstructure:"level" yaml:"level"`
	Format string `mapstructure:"format" yaml:"format"` // json or console
}

// MetricsConfig holds the Prometheus endpoint served by the daemon
type MetricsConfig struct {
	Address string `mapstructure:"address" yaml:"address"` // empty disables
	Path    string `mapstructure:"path" yaml:"path"`
}

// Load loads configuration from file, env, and defaults
func Load(configPath, dataDir string) (*Config, error) {
	v, err := newViper(configPath, dataDir)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := validate(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func newViper(configPath, dataDir string) (*viper.Viper, error) {
	v := viper.New()
	setDefaults(v)

	if dataDir == "" {
		dataDir = getDefaultDataDir()
	}
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	v.SetDefault("storage.data_dir", dataDir)
	v.SetDefault("storage.sqlite_path", filepath.Join(dataDir, "carecache.db"))
	v.SetDefault("storage.badger_path", filepath.Join(dataDir, "badger"))

	if configPath == "" {
		configPath = filepath.Join(dataDir, "carecache.yaml")
	}

	if _, err := os.Stat(configPath); err == nil {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	// CARECACHE_API_BASE_URL, CARECACHE_ANALYTICS_AUTO_REFRESH, ...
	v.SetEnvPrefix("CARECACHE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	return v, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("api.base_url", "https://ai-doctor-chatbot-zw8n.onrender.com")
	v.SetDefault("api.timeout", 20*time.Second)
	v.SetDefault("api.rate_rps", 5.0)
	v.SetDefault("api.rate_burst", 10)
	v.SetDefault("api.breaker_failures", 5)
	v.SetDefault("api.breaker_open_timeout", 30*time.Second)

	v.SetDefault("storage.backend", "badger")

	v.SetDefault("cache.profile_ttl", time.Hour)
	v.SetDefault("cache.profile_check_schedule", "@every 5m")

	v.SetDefault("patient.default_id", "example")

	v.SetDefault("analytics.intensity_days", 30)
	v.SetDefault("analytics.frequency_months", 6)
	v.SetDefault("analytics.auto_refresh", true)
	v.SetDefault("analytics.stale_after", 30*time.Second)
	v.SetDefault("analytics.debounce", 100*time.Millisecond)
	v.SetDefault("analytics.poll_schedule", "@every 30s")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "console")

	v.SetDefault("metrics.address", "")
	v.SetDefault("metrics.path", "/metrics")
}

func getDefaultDataDir() string {
	if xdg := os.Getenv("XDG_DATA_HOME"); xdg != "" {
		return filepath.Join(xdg, "carecache")
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "./data"
	}

	return filepath.Join(home, ".local", "share", "carecache")
}

func validate(cfg *Config) error {
	u, err := url.Parse(cfg.API.BaseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("api.base_url must be an absolute URL, got %q", cfg.API.BaseURL)
	}
	cfg.API.BaseURL = strings.TrimRight(cfg.API.BaseURL, "/")

	if cfg.API.Timeout <= 0 {
		return fmt.Errorf("api.timeout must be positive")
	}

	switch cfg.Storage.Backend {
	case "badger", "sqlite", "memory":
	default:
		return fmt.Errorf("storage.backend must be badger, sqlite or memory, got %q", cfg.Storage.Backend)
	}

	if cfg.Cache.ProfileTTL <= 0 {
		return fmt.Errorf("cache.profile_ttl must be positive")
	}

	if cfg.Analytics.IntensityDays <= 0 || cfg.Analytics.FrequencyMonths <= 0 {
		return fmt.Errorf("analytics window must be positive, got %d days / %d months",
			cfg.Analytics.IntensityDays, cfg.Analytics.FrequencyMonths)
	}

	if cfg.Analytics.Debounce < 0 || cfg.Analytics.StaleAfter < 0 {
		return fmt.Errorf("analytics durations must not be negative")
	}

	if cfg.Metrics.Address != "" && !strings.HasPrefix(cfg.Metrics.Path, "/") {
		return fmt.Errorf("metrics.path must start with /, got %q", cfg.Metrics.Path)
	}

	switch cfg.Logging.Format {
	case "json", "console":
	default:
		return fmt.Errorf("logging.format must be json or console, got %q", cfg.Logging.Format)
	}

	return nil
}

// Watch reloads the config whenever the file at configPath changes and hands
// the result to onChange. Invalid edits are reported through onError and
// otherwise ignored. Without a config file there is nothing to watch.
func Watch(configPath, dataDir string, onChange func(*Config), onError func(error)) error {
	v, err := newViper(configPath, dataDir)
	if err != nil {
		return err
	}
	if v.ConfigFileUsed() == "" {
		return ErrNoConfigFile
	}

	v.OnConfigChange(func(e fsnotify.Event) {
		if !e.Has(fsnotify.Write) && !e.Has(fsnotify.Create) {
			return
		}
		cfg, err := Load(configPath, dataDir)
		if err != nil {
			if onError != nil {
				onError(err)
			}
			return
		}
		onChange(cfg)
	})
	v.WatchConfig()
	return nil
}

// ErrNoConfigFile is returned by Watch when only defaults and env are in use.
var ErrNoConfigFile = fmt.Errorf("no config file to watch")

// Dump writes the effective configuration as YAML.
func (c *Config) Dump(w io.Writer) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(c); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	return enc.Close()
}

// Package config provides Outflow configuration loading via viper.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config is the top-level Outflow configuration.
type Config struct {
	// LogLevel is the zerolog level name (trace, debug, info, warn, error).
	LogLevel string `mapstructure:"log_level"`

	// LogConsole enables human-readable log output instead of JSON.
	LogConsole bool `mapstructure:"log_console"`

	Database      DatabaseConfig      `mapstructure:"database"`
	Scheduler     SchedulerConfig     `mapstructure:"scheduler"`
	BusinessHours BusinessHoursConfig `mapstructure:"business_hours"`
	Daemon        DaemonConfig        `mapstructure:"daemon"`
}

// DatabaseConfig configures the SQLite storage layer.
type DatabaseConfig struct {
	// Path is the SQLite database file path.
	Path string `mapstructure:"path"`
}

// SchedulerConfig configures the periodic run scheduler.
type SchedulerConfig struct {
	// TickInterval is how often the scheduler polls for due runs.
	TickInterval time.Duration `mapstructure:"tick_interval"`

	// DispatchTimeout bounds a single run's processing, including the
	// external action call.
	DispatchTimeout time.Duration `mapstructure:"dispatch_timeout"`

	// MaxConcurrentRuns limits how many due runs are processed at once.
	MaxConcurrentRuns int `mapstructure:"max_concurrent_runs"`

	// BatchSize caps how many due runs a single tick fetches.
	BatchSize int `mapstructure:"batch_size"`

	// MaxAttempts caps action execution retries per step before the run
	// is stopped for exhaustion.
	MaxAttempts int `mapstructure:"max_attempts"`

	// PendingTimeout is how long an in-flight execution marker may stand
	// before a later tick treats the attempt as failed and retries.
	PendingTimeout time.Duration `mapstructure:"pending_timeout"`
}

// BusinessHoursConfig defines the window used by only_business_hours steps.
type BusinessHoursConfig struct {
	// Timezone is an IANA timezone name, e.g. "Europe/Helsinki".
	Timezone string `mapstructure:"timezone"`

	// StartHour is the first business hour (local, inclusive).
	StartHour int `mapstructure:"start_hour"`

	// EndHour is the end of the window (local, exclusive).
	EndHour int `mapstructure:"end_hour"`
}

// DaemonConfig configures the long-running service process.
type DaemonConfig struct {
	// HealthAddr is the bind address for the HTTP health endpoint.
	// Empty disables the endpoint.
	HealthAddr string `mapstructure:"health_addr"`
}

// DefaultConfig returns the built-in defaults.
func DefaultConfig() *Config {
	return &Config{
		LogLevel:   "info",
		LogConsole: false,
		Database: DatabaseConfig{
			Path: defaultDatabasePath(),
		},
		Scheduler: SchedulerConfig{
			TickInterval:      2 * time.Minute,
			DispatchTimeout:   30 * time.Second,
			MaxConcurrentRuns: 10,
			BatchSize:         100,
			MaxAttempts:       3,
			PendingTimeout:    5 * time.Minute,
		},
		BusinessHours: BusinessHoursConfig{
			Timezone:  "UTC",
			StartHour: 9,
			EndHour:   18,
		},
		Daemon: DaemonConfig{
			HealthAddr: "127.0.0.1:8710",
		},
	}
}

// Load reads configuration from the optional config file and OUTFLOW_*
// environment variables, layered over the defaults. An empty path searches
// the standard locations.
func Load(path string) (*Config, error) {
	v := viper.New()

	defaults := DefaultConfig()
	v.SetDefault("log_level", defaults.LogLevel)
	v.SetDefault("log_console", defaults.LogConsole)
	v.SetDefault("database.path", defaults.Database.Path)
	v.SetDefault("scheduler.tick_interval", defaults.Scheduler.TickInterval)
	v.SetDefault("scheduler.dispatch_timeout", defaults.Scheduler.DispatchTimeout)
	v.SetDefault("scheduler.max_concurrent_runs", defaults.Scheduler.MaxConcurrentRuns)
	v.SetDefault("scheduler.batch_size", defaults.Scheduler.BatchSize)
	v.SetDefault("scheduler.max_attempts", defaults.Scheduler.MaxAttempts)
	v.SetDefault("scheduler.pending_timeout", defaults.Scheduler.PendingTimeout)
	v.SetDefault("business_hours.timezone", defaults.BusinessHours.Timezone)
	v.SetDefault("business_hours.start_hour", defaults.BusinessHours.StartHour)
	v.SetDefault("business_hours.end_hour", defaults.BusinessHours.EndHour)
	v.SetDefault("daemon.health_addr", defaults.Daemon.HealthAddr)

	v.SetEnvPrefix("OUTFLOW")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	} else {
		v.SetConfigName("outflow")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		if dir, err := os.UserConfigDir(); err == nil {
			v.AddConfigPath(filepath.Join(dir, "outflow"))
		}
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("read config: %w", err)
			}
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks configuration invariants.
func (c *Config) Validate() error {
	if c.Scheduler.TickInterval <= 0 {
		return fmt.Errorf("scheduler.tick_interval must be positive")
	}
	if c.Scheduler.MaxAttempts <= 0 {
		return fmt.Errorf("scheduler.max_attempts must be positive")
	}
	if c.BusinessHours.StartHour < 0 || c.BusinessHours.StartHour > 23 {
		return fmt.Errorf("business_hours.start_hour must be in [0,23]")
	}
	if c.BusinessHours.EndHour <= c.BusinessHours.StartHour || c.BusinessHours.EndHour > 24 {
		return fmt.Errorf("business_hours.end_hour must be after start_hour and at most 24")
	}
	if _, err := time.LoadLocation(c.BusinessHours.Timezone); err != nil {
		return fmt.Errorf("business_hours.timezone: %w", err)
	}
	return nil
}

// Location returns the configured business-hours timezone.
func (c *BusinessHoursConfig) Location() *time.Location {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

func defaultDatabasePath() string {
	dir, err := os.UserHomeDir()
	if err != nil {
		return "outflow.db"
	}
	return filepath.Join(dir, ".outflow", "outflow.db")
}

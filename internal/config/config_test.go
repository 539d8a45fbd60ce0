package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	require.Equal(t, "info", cfg.LogLevel)
	require.Equal(t, 2*time.Minute, cfg.Scheduler.TickInterval)
	require.Equal(t, 3, cfg.Scheduler.MaxAttempts)
	require.Equal(t, 9, cfg.BusinessHours.StartHour)
	require.Equal(t, 18, cfg.BusinessHours.EndHour)
	require.NoError(t, cfg.Validate(), "defaults must validate")
}

func TestLoad_FromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "outflow.yaml")
	content := `
log_level: debug
database:
  path: /tmp/outflow-test.db
scheduler:
  tick_interval: 30s
  max_attempts: 5
business_hours:
  timezone: Europe/Helsinki
  start_hour: 8
  end_hour: 16
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	require.Equal(t, "debug", cfg.LogLevel)
	require.Equal(t, "/tmp/outflow-test.db", cfg.Database.Path)
	require.Equal(t, 30*time.Second, cfg.Scheduler.TickInterval)
	require.Equal(t, 5, cfg.Scheduler.MaxAttempts)
	// Unset keys keep their defaults.
	require.Equal(t, 100, cfg.Scheduler.BatchSize)
	require.Equal(t, "Europe/Helsinki", cfg.BusinessHours.Timezone)
}

func TestLoad_MissingFileErrors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err, "explicitly named config files must exist")
}

func TestLoad_EnvOverride(t *testing.T) {
	t.Setenv("OUTFLOW_LOG_LEVEL", "warn")

	cfg, err := Load("")
	require.NoError(t, err)
	require.Equal(t, "warn", cfg.LogLevel)
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"zero tick interval", func(c *Config) { c.Scheduler.TickInterval = 0 }},
		{"zero max attempts", func(c *Config) { c.Scheduler.MaxAttempts = 0 }},
		{"start hour out of range", func(c *Config) { c.BusinessHours.StartHour = 24 }},
		{"end before start", func(c *Config) { c.BusinessHours.StartHour = 10; c.BusinessHours.EndHour = 9 }},
		{"end past midnight", func(c *Config) { c.BusinessHours.EndHour = 25 }},
		{"bad timezone", func(c *Config) { c.BusinessHours.Timezone = "Mars/Olympus" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			require.Error(t, cfg.Validate())
		})
	}
}

func TestBusinessHoursConfig_Location(t *testing.T) {
	bh := BusinessHoursConfig{Timezone: "UTC"}
	require.Equal(t, time.UTC, bh.Location())

	bh.Timezone = "not-a-zone"
	require.Equal(t, time.UTC, bh.Location(), "bad timezone falls back to UTC")
}

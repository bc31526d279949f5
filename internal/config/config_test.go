package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultsAreValid(t *testing.T) {
	cfg := Defaults()
	require.NoError(t, cfg.Validate())

	assert.Equal(t, "serve", cfg.Mode)
	assert.Equal(t, "memory", cfg.Storage)
	assert.True(t, cfg.Server.Enabled)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, time.Minute, cfg.Worker.Interval.Duration)
	assert.InDelta(t, 0.03, cfg.Defaults.Trigger.UpThresholdPct, 1e-9)
	assert.InDelta(t, 0.25, cfg.Defaults.Guardrail.MinStockPct, 1e-9)
	assert.Equal(t, "hold", cfg.Defaults.Policy.ActionBelowMin)
}

func TestLoad_TOMLOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	data := `
mode = "once"
log_level = "debug"
storage = "postgres"

[server]
enabled = false

[postgres]
host = "db.internal"
database = "anchorbot"
user = "svc"

[worker]
interval = "30s"

[defaults.trigger]
up_threshold_pct = 0.05
down_threshold_pct = 0.02

[defaults.policy]
action_below_min = "reject"
`
	require.NoError(t, os.WriteFile(path, []byte(data), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, "once", cfg.Mode)
	assert.Equal(t, "postgres", cfg.Storage)
	assert.False(t, cfg.Server.Enabled)
	assert.Equal(t, "db.internal", cfg.Postgres.Host)
	assert.Equal(t, 5432, cfg.Postgres.Port, "untouched defaults survive")
	assert.Equal(t, 30*time.Second, cfg.Worker.Interval.Duration)
	assert.InDelta(t, 0.05, cfg.Defaults.Trigger.UpThresholdPct, 1e-9)
	assert.InDelta(t, 0.02, cfg.Defaults.Trigger.DownThresholdPct, 1e-9)
	assert.Equal(t, "reject", cfg.Defaults.Policy.ActionBelowMin)
}

func TestLoad_EnvOverridesTOML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(`mode = "serve"`), 0o644))

	t.Setenv("ANCHORBOT_MODE", "once")
	t.Setenv("ANCHORBOT_STORAGE", "postgres")
	t.Setenv("ANCHORBOT_POSTGRES_DSN", "postgres://svc:secret@db:5432/anchorbot")
	t.Setenv("ANCHORBOT_SERVER_PORT", "9090")
	t.Setenv("ANCHORBOT_SERVER_CORS_ORIGINS", "https://a.example, https://b.example")
	t.Setenv("ANCHORBOT_WORKER_INTERVAL", "5m")
	t.Setenv("ANCHORBOT_TRIGGER_UP_THRESHOLD_PCT", "0.08")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "once", cfg.Mode)
	assert.Equal(t, "postgres", cfg.Storage)
	assert.Equal(t, "postgres://svc:secret@db:5432/anchorbot", cfg.Postgres.DSN)
	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.Server.CORSOrigins)
	assert.Equal(t, 5*time.Minute, cfg.Worker.Interval.Duration)
	assert.InDelta(t, 0.08, cfg.Defaults.Trigger.UpThresholdPct, 1e-9)
}

func TestValidate_Failures(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"bad mode", func(c *Config) { c.Mode = "replay" }},
		{"bad log level", func(c *Config) { c.LogLevel = "verbose" }},
		{"bad storage", func(c *Config) { c.Storage = "sqlite" }},
		{"postgres without endpoint", func(c *Config) { c.Storage = "postgres" }},
		{"bad server port", func(c *Config) { c.Server.Port = 0 }},
		{"redis without addr", func(c *Config) { c.Redis.Enabled = true; c.Redis.Addr = "" }},
		{"s3 without bucket", func(c *Config) { c.S3.Enabled = true; c.S3.Region = "us-east-1" }},
		{"s3 without region", func(c *Config) { c.S3.Enabled = true; c.S3.Bucket = "archive" }},
		{"zero trigger threshold", func(c *Config) { c.Defaults.Trigger.UpThresholdPct = 0 }},
		{"inverted band", func(c *Config) {
			c.Defaults.Guardrail.MinStockPct = 0.8
			c.Defaults.Guardrail.MaxStockPct = 0.2
		}},
		{"band above one", func(c *Config) { c.Defaults.Guardrail.MaxStockPct = 1.5 }},
		{"max trade above one", func(c *Config) { c.Defaults.Guardrail.MaxTradePctOfPosition = 1.2 }},
		{"bad below-min action", func(c *Config) { c.Defaults.Policy.ActionBelowMin = "cancel" }},
		{"commission rate out of range", func(c *Config) { c.Defaults.CommissionRate = 1 }},
		{"sim mode without csv", func(c *Config) { c.Mode = "sim" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Defaults()
			tt.mutate(&cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestValidate_SimModeWithCSV(t *testing.T) {
	cfg := Defaults()
	cfg.Mode = "sim"
	cfg.Sim.CSVPath = "prices.csv"
	assert.NoError(t, cfg.Validate())
}

func TestDurationUnmarshalText(t *testing.T) {
	var d duration
	require.NoError(t, d.UnmarshalText([]byte("90s")))
	assert.Equal(t, 90*time.Second, d.Duration)

	assert.Error(t, d.UnmarshalText([]byte("ninety")))
}

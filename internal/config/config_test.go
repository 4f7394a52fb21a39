package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newViper(t *testing.T) *viper.Viper {
	t.Helper()
	v := viper.New()
	SetDefaults(v)
	require.NoError(t, BindEnvironment(v))
	return v
}

func TestDefaults(t *testing.T) {
	cfg, err := Load(newViper(t))
	require.NoError(t, err)

	assert.Equal(t, "", cfg.Env)
	assert.Equal(t, "0.0.0.0", cfg.Bind)
	assert.Equal(t, 5000, cfg.Port)
	assert.Equal(t, 60*time.Second, cfg.Timeout)
	assert.Equal(t, 30*time.Second, cfg.GracefulTimeout)
	assert.Equal(t, 2, cfg.Workers)
	assert.Equal(t, "dict", cfg.DataDir)
	assert.Equal(t, "0.0.0.0:5000", cfg.Addr())
	assert.True(t, cfg.Reload.Enabled)
	assert.Equal(t, 500*time.Millisecond, cfg.Reload.Debounce)
	assert.False(t, cfg.IsDevelopment())
}

func TestModeFlagFromEnvironment(t *testing.T) {
	tests := []struct {
		name    string
		envVar  string
		value   string
		wantEnv string
		wantDev bool
	}{
		{"app env development", "APP_ENV", "development", "development", true},
		{"flask env development", "FLASK_ENV", "development", "development", true},
		{"prefixed development", "DOCKERAPP_ENV", "development", "development", true},
		{"production", "APP_ENV", "production", "production", false},
		{"empty", "APP_ENV", "", "", false},
		{"case differs", "APP_ENV", "Development", "Development", false},
		{"short form", "APP_ENV", "dev", "dev", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv(tt.envVar, tt.value)

			cfg, err := Load(newViper(t))
			require.NoError(t, err)
			assert.Equal(t, tt.wantEnv, cfg.Env)
			assert.Equal(t, tt.wantDev, cfg.IsDevelopment())
		})
	}
}

func TestEnvironmentOverrides(t *testing.T) {
	t.Setenv("PORT", "8000")
	t.Setenv("TZ", "UTC")
	t.Setenv("DOCKERAPP_TIMEOUT", "90s")
	t.Setenv("DOCKERAPP_WORKERS", "4")
	t.Setenv("DOCKERAPP_RELOAD_ENABLED", "false")

	cfg, err := Load(newViper(t))
	require.NoError(t, err)

	assert.Equal(t, 8000, cfg.Port)
	assert.Equal(t, "UTC", cfg.Timezone)
	assert.Equal(t, 90*time.Second, cfg.Timeout)
	assert.Equal(t, 4, cfg.Workers)
	assert.False(t, cfg.Reload.Enabled)
}

func TestConfigFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := `
env: development
port: 7000
workers: 3
reload:
  watch: [templates, static]
launch:
  managed_command: [gunicorn, -b, "{bind}", main:app]
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	v := newViper(t)
	v.SetConfigFile(path)
	require.NoError(t, v.ReadInConfig())

	cfg, err := Load(v)
	require.NoError(t, err)

	assert.True(t, cfg.IsDevelopment())
	assert.Equal(t, 7000, cfg.Port)
	assert.Equal(t, 3, cfg.Workers)
	assert.Equal(t, []string{"templates", "static"}, cfg.Reload.Watch)
	assert.Equal(t, []string{"gunicorn", "-b", "{bind}", "main:app"}, cfg.Launch.ManagedCommand)
	assert.Equal(t, path, cfg.ConfigFile)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"port zero", func(c *Config) { c.Port = 0 }},
		{"port too large", func(c *Config) { c.Port = 70000 }},
		{"zero timeout", func(c *Config) { c.Timeout = 0 }},
		{"negative graceful", func(c *Config) { c.GracefulTimeout = -time.Second }},
		{"no workers", func(c *Config) { c.Workers = 0 }},
		{"negative rps", func(c *Config) { c.RateLimit.RPS = -1 }},
		{"cpu weight", func(c *Config) { c.Limits.CPUWeight = 20000 }},
		{"memory", func(c *Config) { c.Limits.MemoryMB = -5 }},
		{"timezone", func(c *Config) { c.Timezone = "Mars/Olympus_Mons" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(&cfg)
			assert.ErrorIs(t, cfg.Validate(), ErrInvalid)
		})
	}
}

func TestLocation(t *testing.T) {
	cfg := Default()
	loc, err := cfg.Location()
	require.NoError(t, err)
	assert.Equal(t, time.Local, loc)

	cfg.Timezone = "UTC"
	loc, err = cfg.Location()
	require.NoError(t, err)
	assert.Equal(t, "UTC", loc.String())
}

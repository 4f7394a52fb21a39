package config

import (
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// ModeDevelopment is the only mode flag value that selects the direct run.
const ModeDevelopment = "development"

// ErrInvalid is wrapped by every validation failure.
var ErrInvalid = errors.New("invalid configuration")

// Config is populated once at process entry and passed by value.
type Config struct {
	Env             string        `mapstructure:"env" yaml:"env" json:"env"`
	Bind            string        `mapstructure:"bind" yaml:"bind" json:"bind"`
	Port            int           `mapstructure:"port" yaml:"port" json:"port"`
	Timeout         time.Duration `mapstructure:"timeout" yaml:"timeout" json:"timeout"`
	GracefulTimeout time.Duration `mapstructure:"graceful_timeout" yaml:"graceful_timeout" json:"graceful_timeout"`
	Workers         int           `mapstructure:"workers" yaml:"workers" json:"workers"`
	DataDir         string        `mapstructure:"data_dir" yaml:"data_dir" json:"data_dir"`
	Timezone        string        `mapstructure:"timezone" yaml:"timezone" json:"timezone"`
	EnvFile         string        `mapstructure:"env_file" yaml:"env_file" json:"env_file"`

	Reload    ReloadConfig    `mapstructure:"reload" yaml:"reload" json:"reload"`
	Control   ControlConfig   `mapstructure:"control" yaml:"control" json:"control"`
	Logging   LoggingConfig   `mapstructure:"logging" yaml:"logging" json:"logging"`
	RateLimit RateLimitConfig `mapstructure:"rate_limit" yaml:"rate_limit" json:"rate_limit"`
	Tracing   TracingConfig   `mapstructure:"tracing" yaml:"tracing" json:"tracing"`
	Limits    LimitsConfig    `mapstructure:"limits" yaml:"limits" json:"limits"`
	Launch    LaunchConfig    `mapstructure:"launch" yaml:"launch" json:"launch"`

	// ConfigFile is the file viper actually read, if any.
	ConfigFile string `mapstructure:"-" yaml:"-" json:"-"`
}

// ReloadConfig controls the development reloader.
type ReloadConfig struct {
	Enabled  bool          `mapstructure:"enabled" yaml:"enabled" json:"enabled"`
	Watch    []string      `mapstructure:"watch" yaml:"watch" json:"watch"`
	Debounce time.Duration `mapstructure:"debounce" yaml:"debounce" json:"debounce"`
}

// ControlConfig is the supervisor's local status endpoint. Empty address disables it.
type ControlConfig struct {
	Address string `mapstructure:"address" yaml:"address" json:"address"`
}

// LoggingConfig mirrors the rotation knobs of lumberjack.
type LoggingConfig struct {
	Level      string `mapstructure:"level" yaml:"level" json:"level"`
	Path       string `mapstructure:"path" yaml:"path" json:"path"`
	MaxSize    int    `mapstructure:"max_size" yaml:"max_size" json:"max_size"`
	MaxBackups int    `mapstructure:"max_backups" yaml:"max_backups" json:"max_backups"`
	MaxAge     int    `mapstructure:"max_age" yaml:"max_age" json:"max_age"`
	Compress   bool   `mapstructure:"compress" yaml:"compress" json:"compress"`
	JSON       bool   `mapstructure:"json" yaml:"json" json:"json"`
}

type RateLimitConfig struct {
	Enabled bool    `mapstructure:"enabled" yaml:"enabled" json:"enabled"`
	RPS     float64 `mapstructure:"rps" yaml:"rps" json:"rps"`
	Burst   int     `mapstructure:"burst" yaml:"burst" json:"burst"`
}

type TracingConfig struct {
	Enabled     bool   `mapstructure:"enabled" yaml:"enabled" json:"enabled"`
	Endpoint    string `mapstructure:"endpoint" yaml:"endpoint" json:"endpoint"`
	ServiceName string `mapstructure:"service_name" yaml:"service_name" json:"service_name"`
}

// LimitsConfig is applied to every managed worker through cgroups (best effort).
type LimitsConfig struct {
	CPUWeight int   `mapstructure:"cpu_weight" yaml:"cpu_weight" json:"cpu_weight"`
	MemoryMB  int64 `mapstructure:"memory_mb" yaml:"memory_mb" json:"memory_mb"`
}

// LaunchConfig overrides the command each strategy execs.
type LaunchConfig struct {
	DevelopmentCommand []string `mapstructure:"development_command" yaml:"development_command" json:"development_command"`
	ManagedCommand     []string `mapstructure:"managed_command" yaml:"managed_command" json:"managed_command"`
}

// SetDefaults registers every key so that AutomaticEnv can resolve it on Unmarshal.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("env", "")
	v.SetDefault("bind", "0.0.0.0")
	v.SetDefault("port", 5000)
	v.SetDefault("timeout", 60*time.Second)
	v.SetDefault("graceful_timeout", 30*time.Second)
	v.SetDefault("workers", 2)
	v.SetDefault("data_dir", "dict")
	v.SetDefault("timezone", "")
	v.SetDefault("env_file", ".env")

	v.SetDefault("reload.enabled", true)
	v.SetDefault("reload.watch", []string{})
	v.SetDefault("reload.debounce", 500*time.Millisecond)

	v.SetDefault("control.address", "127.0.0.1:9191")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.path", "")
	v.SetDefault("logging.max_size", 100)
	v.SetDefault("logging.max_backups", 5)
	v.SetDefault("logging.max_age", 14)
	v.SetDefault("logging.compress", true)
	v.SetDefault("logging.json", false)

	v.SetDefault("rate_limit.enabled", false)
	v.SetDefault("rate_limit.rps", 50.0)
	v.SetDefault("rate_limit.burst", 100)

	v.SetDefault("tracing.enabled", false)
	v.SetDefault("tracing.endpoint", "localhost:4318")
	v.SetDefault("tracing.service_name", "dockerapp")

	v.SetDefault("limits.cpu_weight", 0)
	v.SetDefault("limits.memory_mb", 0)

	v.SetDefault("launch.development_command", []string{})
	v.SetDefault("launch.managed_command", []string{})
}

// BindEnvironment wires the DOCKERAPP_ prefix plus the well-known variables
// the container image sets.
func BindEnvironment(v *viper.Viper) error {
	v.SetEnvPrefix("DOCKERAPP")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	bindings := [][]string{
		{"env", "DOCKERAPP_ENV", "APP_ENV", "FLASK_ENV"},
		{"timezone", "DOCKERAPP_TIMEZONE", "TZ"},
		{"port", "DOCKERAPP_PORT", "PORT"},
	}
	for _, b := range bindings {
		if err := v.BindEnv(b...); err != nil {
			return fmt.Errorf("failed to bind environment for %s: %w", b[0], err)
		}
	}
	return nil
}

// Load resolves the configuration held by v. The caller owns file discovery.
func Load(v *viper.Viper) (Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("failed to decode configuration: %w", err)
	}
	cfg.ConfigFile = v.ConfigFileUsed()

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Default returns the configuration with nothing but built-in defaults.
func Default() Config {
	v := viper.New()
	SetDefaults(v)
	cfg, _ := Load(v)
	return cfg
}

// IsDevelopment reports whether the mode flag selects the direct run.
// The comparison is exact: "Development" or "dev" are production.
func (c Config) IsDevelopment() bool {
	return c.Env == ModeDevelopment
}

// Addr returns bind:port.
func (c Config) Addr() string {
	return net.JoinHostPort(c.Bind, strconv.Itoa(c.Port))
}

// Location returns the configured time zone, or time.Local when unset.
func (c Config) Location() (*time.Location, error) {
	if c.Timezone == "" {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, fmt.Errorf("%w: timezone %q: %v", ErrInvalid, c.Timezone, err)
	}
	return loc, nil
}

// Validate checks ranges. It never fills in defaults.
func (c Config) Validate() error {
	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("%w: port %d out of range", ErrInvalid, c.Port)
	}
	if c.Timeout <= 0 {
		return fmt.Errorf("%w: timeout must be positive, got %s", ErrInvalid, c.Timeout)
	}
	if c.GracefulTimeout < 0 {
		return fmt.Errorf("%w: graceful_timeout must not be negative", ErrInvalid)
	}
	if c.Workers < 1 {
		return fmt.Errorf("%w: workers must be at least 1, got %d", ErrInvalid, c.Workers)
	}
	if c.RateLimit.RPS < 0 || c.RateLimit.Burst < 0 {
		return fmt.Errorf("%w: rate_limit values must not be negative", ErrInvalid)
	}
	if c.Limits.CPUWeight < 0 || c.Limits.CPUWeight > 10000 {
		return fmt.Errorf("%w: limits.cpu_weight must be 0-10000", ErrInvalid)
	}
	if c.Limits.MemoryMB < 0 {
		return fmt.Errorf("%w: limits.memory_mb must not be negative", ErrInvalid)
	}
	if _, err := c.Location(); err != nil {
		return err
	}
	return nil
}

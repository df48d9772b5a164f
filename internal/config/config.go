// File: internal/config/config.go
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
	"go.uber.org/zap/zapcore"

	"github.com/xkilldash9x/polyplug/internal/events"
)

// Config is the root configuration, loaded from file, env and flags.
type Config struct {
	Logger LoggerConfig `mapstructure:"logger" yaml:"logger"`
	Events EventsConfig `mapstructure:"events" yaml:"events"`
	Script ScriptConfig `mapstructure:"script" yaml:"script"`
	Run    RunConfig    `mapstructure:"run" yaml:"run"`
}

// LoggerConfig defines all settings related to logging.
type LoggerConfig struct {
	Level       string      `mapstructure:"level" yaml:"level"`
	Format      string      `mapstructure:"format" yaml:"format"`
	AddSource   bool        `mapstructure:"add_source" yaml:"add_source"`
	ServiceName string      `mapstructure:"service_name" yaml:"service_name"`
	LogFile     string      `mapstructure:"log_file" yaml:"log_file"`
	MaxSize     int         `mapstructure:"max_size" yaml:"max_size"`
	MaxBackups  int         `mapstructure:"max_backups" yaml:"max_backups"`
	MaxAge      int         `mapstructure:"max_age" yaml:"max_age"`
	Compress    bool        `mapstructure:"compress" yaml:"compress"`
	Colors      ColorConfig `mapstructure:"colors" yaml:"colors"`
}

// ColorConfig names an ANSI color per log level for the console encoder.
type ColorConfig struct {
	Debug  string `mapstructure:"debug" yaml:"debug"`
	Info   string `mapstructure:"info" yaml:"info"`
	Warn   string `mapstructure:"warn" yaml:"warn"`
	Error  string `mapstructure:"error" yaml:"error"`
	DPanic string `mapstructure:"dpanic" yaml:"dpanic"`
	Panic  string `mapstructure:"panic" yaml:"panic"`
	Fatal  string `mapstructure:"fatal" yaml:"fatal"`
}

// EventsConfig controls the event bridge.
type EventsConfig struct {
	// RebindPolicy is one of orphan, replace or reject. Empty means orphan.
	RebindPolicy string `mapstructure:"rebind_policy" yaml:"rebind_policy"`
}

// ScriptConfig controls the embedded script host.
type ScriptConfig struct {
	Timeout time.Duration `mapstructure:"timeout" yaml:"timeout"`
}

// RunConfig holds defaults for the run command.
type RunConfig struct {
	Follow bool `mapstructure:"follow" yaml:"follow"`
	// Poll makes --follow poll the file instead of using inotify.
	Poll bool `mapstructure:"poll" yaml:"poll"`
	Dump bool `mapstructure:"dump" yaml:"dump"`
}

// EnvPrefix namespaces environment overrides, e.g. POLYPLUG_LOGGER_LEVEL.
const EnvPrefix = "POLYPLUG"

// BindEnv makes every key overridable from the environment.
func BindEnv(v *viper.Viper) {
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
}

// NewDefaultConfig returns a configuration with every default applied.
func NewDefaultConfig() *Config {
	v := viper.New()
	SetDefaults(v)
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		// Defaults are static; failing here is a programming error.
		panic(fmt.Sprintf("failed to unmarshal default config: %v", err))
	}
	return &cfg
}

// SetDefaults registers the default value of every key on v.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "console")
	v.SetDefault("logger.add_source", false)
	v.SetDefault("logger.service_name", "polyplug")
	v.SetDefault("logger.log_file", "")
	v.SetDefault("logger.max_size", 100)
	v.SetDefault("logger.max_backups", 5)
	v.SetDefault("logger.max_age", 30)
	v.SetDefault("logger.compress", true)
	v.SetDefault("logger.colors.debug", "cyan")
	v.SetDefault("logger.colors.info", "green")
	v.SetDefault("logger.colors.warn", "yellow")
	v.SetDefault("logger.colors.error", "red")
	v.SetDefault("logger.colors.dpanic", "magenta")
	v.SetDefault("logger.colors.panic", "magenta")
	v.SetDefault("logger.colors.fatal", "magenta")

	v.SetDefault("events.rebind_policy", "orphan")

	v.SetDefault("script.timeout", "30s")

	v.SetDefault("run.follow", false)
	v.SetDefault("run.poll", false)
	v.SetDefault("run.dump", false)
}

// NewConfigFromViper unmarshals v and validates the result.
func NewConfigFromViper(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

// Validate checks values viper cannot type-check on its own.
func (c *Config) Validate() error {
	if _, err := zapcore.ParseLevel(c.Logger.Level); err != nil {
		return fmt.Errorf("logger.level %q is not a valid level", c.Logger.Level)
	}
	switch c.Logger.Format {
	case "console", "json":
	default:
		return fmt.Errorf("logger.format must be 'console' or 'json', got %q", c.Logger.Format)
	}
	if _, err := events.ParseRebindPolicy(c.Events.RebindPolicy); err != nil {
		return fmt.Errorf("events.rebind_policy: %w", err)
	}
	if c.Script.Timeout <= 0 {
		return fmt.Errorf("script.timeout must be positive")
	}
	return nil
}

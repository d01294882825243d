// File: internal/config/config.go
package config

import (
	"fmt"
	"runtime"
	"strings"
	"time"

	"github.com/mitchellh/go-homedir"
	"github.com/spf13/viper"
)

// EnvPrefix is the prefix of environment variables overriding config keys,
// e.g. DELIBERATE_SCHEDULER_WORKERS.
const EnvPrefix = "DELIBERATE"

// Config is the root configuration of the deliberate binary.
type Config struct {
	Logger    LoggerConfig    `mapstructure:"logger" yaml:"logger"`
	Scheduler SchedulerConfig `mapstructure:"scheduler" yaml:"scheduler"`
	Executor  ExecutorConfig  `mapstructure:"executor" yaml:"executor"`
	Metrics   MetricsConfig   `mapstructure:"metrics" yaml:"metrics"`
	Demo      DemoConfig      `mapstructure:"demo" yaml:"demo"`
}

// LoggerConfig holds all the configuration for the logger.
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

// ColorConfig defines the color codes for different log levels.
type ColorConfig struct {
	Debug  string `mapstructure:"debug" yaml:"debug"`
	Info   string `mapstructure:"info" yaml:"info"`
	Warn   string `mapstructure:"warn" yaml:"warn"`
	Error  string `mapstructure:"error" yaml:"error"`
	DPanic string `mapstructure:"dpanic" yaml:"dpanic"`
	Panic  string `mapstructure:"panic" yaml:"panic"`
	Fatal  string `mapstructure:"fatal" yaml:"fatal"`
}

// SchedulerConfig sizes the worker pool that runs deliberation turns.
type SchedulerConfig struct {
	Workers int `mapstructure:"workers" yaml:"workers"`
	// TurnRate caps, in turns per second, how fast busy agents reschedule
	// themselves. Zero disables the cap.
	TurnRate    float64       `mapstructure:"turn_rate" yaml:"turn_rate"`
	TurnBurst   int           `mapstructure:"turn_burst" yaml:"turn_burst"`
	HaltTimeout time.Duration `mapstructure:"halt_timeout" yaml:"halt_timeout"`
}

// ExecutorConfig bounds the executor that runs blocking work for agents.
type ExecutorConfig struct {
	MaxConcurrent int64 `mapstructure:"max_concurrent" yaml:"max_concurrent"`
}

// MetricsConfig controls the stdout OpenTelemetry exporter.
type MetricsConfig struct {
	Enabled  bool          `mapstructure:"enabled" yaml:"enabled"`
	Interval time.Duration `mapstructure:"interval" yaml:"interval"`
}

// DemoConfig parameterizes the negotiation demo run by `deliberate run`.
type DemoConfig struct {
	Buyers   int           `mapstructure:"buyers" yaml:"buyers"`
	AskPrice int           `mapstructure:"ask_price" yaml:"ask_price"`
	MaxBid   int           `mapstructure:"max_bid" yaml:"max_bid"`
	Duration time.Duration `mapstructure:"duration" yaml:"duration"`
	Tick     string        `mapstructure:"tick" yaml:"tick"`
}

// NewDefaultConfig returns a configuration populated only with defaults.
func NewDefaultConfig() *Config {
	v := viper.New()
	SetDefaults(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		// This should not happen with defaults, but good to be safe.
		panic(fmt.Sprintf("failed to unmarshal default config: %v", err))
	}
	return &cfg
}

// SetDefaults initializes default values for various configuration parameters.
func SetDefaults(v *viper.Viper) {
	// -- Logger --
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "console")
	v.SetDefault("logger.add_source", false)
	v.SetDefault("logger.service_name", "deliberate")
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

	// -- Scheduler --
	v.SetDefault("scheduler.workers", runtime.NumCPU())
	v.SetDefault("scheduler.turn_rate", 0.0)
	v.SetDefault("scheduler.turn_burst", 1)
	v.SetDefault("scheduler.halt_timeout", "10s")

	// -- Executor --
	v.SetDefault("executor.max_concurrent", 8)

	// -- Metrics --
	v.SetDefault("metrics.enabled", false)
	v.SetDefault("metrics.interval", "30s")

	// -- Demo --
	v.SetDefault("demo.buyers", 4)
	v.SetDefault("demo.ask_price", 100)
	v.SetDefault("demo.max_bid", 140)
	v.SetDefault("demo.duration", "3s")
	v.SetDefault("demo.tick", "@every 1s")
}

// BindEnv wires DELIBERATE_* environment variables to config keys.
func BindEnv(v *viper.Viper) {
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
}

// NewConfigFromViper unmarshals and validates the configuration held by v.
func NewConfigFromViper(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	if cfg.Logger.LogFile != "" {
		expanded, err := homedir.Expand(cfg.Logger.LogFile)
		if err != nil {
			return nil, fmt.Errorf("failed to expand logger.log_file: %w", err)
		}
		cfg.Logger.LogFile = expanded
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

// Validate checks the configuration for required fields and sane values.
func (c *Config) Validate() error {
	if c.Scheduler.Workers <= 0 {
		return fmt.Errorf("scheduler.workers must be a positive integer")
	}
	if c.Scheduler.TurnRate < 0 {
		return fmt.Errorf("scheduler.turn_rate cannot be negative")
	}
	if c.Scheduler.TurnRate > 0 && c.Scheduler.TurnBurst < 1 {
		return fmt.Errorf("scheduler.turn_burst must be at least 1 when turn_rate is set")
	}
	if c.Scheduler.HaltTimeout <= 0 {
		return fmt.Errorf("scheduler.halt_timeout must be positive")
	}
	if c.Executor.MaxConcurrent <= 0 {
		return fmt.Errorf("executor.max_concurrent must be a positive integer")
	}
	if c.Metrics.Enabled && c.Metrics.Interval <= 0 {
		return fmt.Errorf("metrics.interval must be positive when metrics are enabled")
	}
	switch c.Logger.Format {
	case "console", "json":
	default:
		return fmt.Errorf("logger.format must be \"console\" or \"json\", got %q", c.Logger.Format)
	}
	if err := c.Demo.Validate(); err != nil {
		return fmt.Errorf("demo configuration invalid: %w", err)
	}
	return nil
}

// Validate checks the demo configuration.
func (d *DemoConfig) Validate() error {
	if d.Buyers < 0 {
		return fmt.Errorf("buyers cannot be negative")
	}
	if d.AskPrice <= 0 || d.MaxBid <= 0 {
		return fmt.Errorf("ask_price and max_bid must be positive")
	}
	if d.Duration <= 0 {
		return fmt.Errorf("duration must be positive")
	}
	if d.Tick == "" {
		return fmt.Errorf("tick schedule is required")
	}
	return nil
}

// Package config loads server configuration from defaults, an optional
// config file, and PTO_-prefixed environment variables, in increasing
// order of precedence.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config is the full server configuration tree.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Database  DatabaseConfig  `mapstructure:"db"`
	Accrual   AccrualConfig   `mapstructure:"accrual"`
	Scheduler SchedulerConfig `mapstructure:"scheduler"`
	Log       LogConfig       `mapstructure:"log"`
}

// ServerConfig holds the HTTP listener settings.
type ServerConfig struct {
	Port        int      `mapstructure:"port"`
	CORSOrigins []string `mapstructure:"cors_origins"`
}

// DatabaseConfig holds the SQLite settings.
type DatabaseConfig struct {
	Path string `mapstructure:"path"`
}

// AccrualConfig holds the grant amounts for the batch jobs.
// RolloverCapHours of zero means unlimited carry-over.
type AccrualConfig struct {
	AnnualSickHours  float64 `mapstructure:"annual_sick_hours"`
	AnnualVacHours   float64 `mapstructure:"annual_vac_hours"`
	RolloverCapHours float64 `mapstructure:"rollover_cap_hours"`
}

// SchedulerConfig controls the background job runner.
type SchedulerConfig struct {
	Enabled  bool          `mapstructure:"enabled"`
	Interval time.Duration `mapstructure:"interval"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level string `mapstructure:"level"` // debug, info, warn, error
}

// Load reads configuration with precedence env > file > defaults.
// An empty path searches ./config.yaml and ./config/config.yaml; a
// missing file is not an error.
func Load(path string) (*Config, error) {
	v := viper.New()

	v.SetDefault("server.port", 8080)
	v.SetDefault("server.cors_origins", []string{"http://localhost:5173", "http://localhost:3000"})

	v.SetDefault("db.path", "./data/pto.db")

	v.SetDefault("accrual.annual_sick_hours", 40.0)
	v.SetDefault("accrual.annual_vac_hours", 40.0)
	v.SetDefault("accrual.rollover_cap_hours", 0.0)

	v.SetDefault("scheduler.enabled", true)
	v.SetDefault("scheduler.interval", "1h")

	v.SetDefault("log.level", "info")

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath("./config")
		v.AddConfigPath(".")
	}

	v.SetEnvPrefix("PTO")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		// No file: defaults plus environment variables.
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks the settings that would otherwise fail at runtime.
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid config: server.port must be between 1 and 65535")
	}
	if c.Accrual.AnnualSickHours < 0 || c.Accrual.AnnualVacHours < 0 {
		return fmt.Errorf("invalid config: annual grant hours must not be negative")
	}
	if c.Accrual.RolloverCapHours < 0 {
		return fmt.Errorf("invalid config: accrual.rollover_cap_hours must not be negative")
	}
	if c.Scheduler.Enabled && c.Scheduler.Interval <= 0 {
		return fmt.Errorf("invalid config: scheduler.interval must be positive")
	}
	return nil
}

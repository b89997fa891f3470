package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/viper"
)

// Config holds all configuration for the medtrack engine
type Config struct {
	Server        ServerConfig        `mapstructure:"server"`
	Backend       BackendConfig       `mapstructure:"backend"`
	Notifications NotificationsConfig `mapstructure:"notifications"`
	Resync        ResyncConfig        `mapstructure:"resync"`
}

// ServerConfig holds the engine HTTP surface settings
type ServerConfig struct {
	Address      string `mapstructure:"address"`
	Port         int    `mapstructure:"port"`
	ReadTimeout  int    `mapstructure:"read_timeout"`
	WriteTimeout int    `mapstructure:"write_timeout"`
}

// BackendConfig holds settings for the medication backend client
type BackendConfig struct {
	BaseURL        string  `mapstructure:"base_url"`
	TimeoutSeconds int     `mapstructure:"timeout_seconds"`
	RateRPS        float64 `mapstructure:"rate_rps"`
	RateBurst      int     `mapstructure:"rate_burst"`
	BreakerMaxFail int     `mapstructure:"breaker_max_failures"`
	BreakerCoolOff int     `mapstructure:"breaker_cooloff_seconds"`
}

// NotificationsConfig holds platform notification settings
type NotificationsConfig struct {
	PushCapable          bool `mapstructure:"push_capable"`
	FallbackDelaySeconds int  `mapstructure:"fallback_delay_seconds"`
}

// ResyncConfig holds the periodic reminder re-arm settings
type ResyncConfig struct {
	Enabled         bool `mapstructure:"enabled"`
	IntervalMinutes int  `mapstructure:"interval_minutes"`
}

// Load loads configuration from file, env, and defaults
func Load(configPath string) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	if configPath != "" {
		if _, err := os.Stat(configPath); err == nil {
			v.SetConfigFile(configPath)
			if err := v.ReadInConfig(); err != nil {
				return nil, fmt.Errorf("failed to read config: %w", err)
			}
		}
	}

	// Environment variables (MEDTRACK_BACKEND_BASE_URL, MEDTRACK_SERVER_PORT, etc.)
	v.SetEnvPrefix("MEDTRACK")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := validate(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.address", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", 30)
	v.SetDefault("server.write_timeout", 30)

	v.SetDefault("backend.base_url", "http://localhost:3001")
	v.SetDefault("backend.timeout_seconds", 10)
	v.SetDefault("backend.rate_rps", 10.0)
	v.SetDefault("backend.rate_burst", 20)
	v.SetDefault("backend.breaker_max_failures", 5)
	v.SetDefault("backend.breaker_cooloff_seconds", 30)

	v.SetDefault("notifications.push_capable", true)
	v.SetDefault("notifications.fallback_delay_seconds", 5)

	v.SetDefault("resync.enabled", true)
	v.SetDefault("resync.interval_minutes", 60)
}

func validate(cfg *Config) error {
	if cfg.Backend.BaseURL == "" {
		return fmt.Errorf("backend.base_url is required")
	}
	if cfg.Backend.TimeoutSeconds <= 0 {
		return fmt.Errorf("backend.timeout_seconds must be positive")
	}
	if cfg.Notifications.FallbackDelaySeconds <= 0 {
		cfg.Notifications.FallbackDelaySeconds = 5
	}
	if cfg.Resync.IntervalMinutes <= 0 {
		cfg.Resync.IntervalMinutes = 60
	}
	return nil
}

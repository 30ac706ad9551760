// Package config loads subsystem configuration from the environment.
package config

import (
	"time"

	"github.com/spf13/viper"

	"github.com/simonmuehling/educafric-app-sub010/internal/errors"
)

// Config holds everything the offline subsystem needs at startup. Values
// come from EDUCAFRIC_* environment variables, with working defaults for a
// local client.
type Config struct {
	DataDir       string        `mapstructure:"dataDir"`
	RemoteBaseURL string        `mapstructure:"remoteBaseUrl"`
	ListenAddr    string        `mapstructure:"listenAddr"`
	MaxRetries    int           `mapstructure:"maxRetries"`
	SyncInterval  time.Duration `mapstructure:"syncInterval"`
	CacheTTL      time.Duration `mapstructure:"cacheTtl"`
	Sandbox       bool          `mapstructure:"sandbox"`
	LogLevel      string        `mapstructure:"logLevel"`
}

// Load reads configuration from the environment.
func Load() (*Config, error) {
	v := viper.New()
	v.SetTypeByDefaultValue(true)

	v.SetDefault("dataDir", "./data")
	v.SetDefault("remoteBaseUrl", "https://www.educafric.com")
	v.SetDefault("listenAddr", "127.0.0.1:8095")
	v.SetDefault("maxRetries", 3)
	v.SetDefault("syncInterval", 5*time.Minute)
	v.SetDefault("cacheTtl", 60*time.Minute)
	v.SetDefault("sandbox", false)
	v.SetDefault("logLevel", "INFO")

	v.SetEnvPrefix("EDUCAFRIC")
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, errors.Wrap(errors.ErrValidation, "failed to parse configuration", err)
	}

	if cfg.MaxRetries < 0 {
		return nil, errors.New(errors.ErrValidation, "maxRetries must not be negative")
	}
	if cfg.RemoteBaseURL == "" {
		return nil, errors.New(errors.ErrValidation, "remoteBaseUrl must not be empty")
	}

	return &cfg, nil
}

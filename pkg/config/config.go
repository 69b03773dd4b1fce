package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all static configuration shared by the manager and worker
// entry points. A zero Timeout means jobs run inline without a deadline;
// zero MaxJob / MaxWorkTime disable the corresponding voluntary-exit
// condition.
type Config struct {
	BaseDir     string `mapstructure:"base_dir"`
	NodeID      string `mapstructure:"node_id"`
	WaitManager bool   `mapstructure:"wait_manager"`

	Timeout     time.Duration `mapstructure:"timeout"`
	MaxJob      int           `mapstructure:"max_job"`
	MaxWorkTime time.Duration `mapstructure:"max_work_time"`

	HeartbeatPeriod  time.Duration `mapstructure:"heartbeat_period"`
	HeartbeatTimeout time.Duration `mapstructure:"heartbeat_timeout"`

	ReaderMaxRetries int           `mapstructure:"reader_max_retries"`
	ReaderBackoff    time.Duration `mapstructure:"reader_backoff"`

	MetricsAddr string `mapstructure:"metrics_addr"`
	LogLevel    string `mapstructure:"log_level"`
	LogJSON     bool   `mapstructure:"log_json"`
}

// Load reads configuration from flock.yaml and environment variables.
// Priority: env vars > config file > defaults.
func Load(path string) (*Config, error) {
	v := viper.New()

	// Every key needs a registered default so AutomaticEnv can surface it
	// through Unmarshal.
	v.SetDefault("base_dir", "")
	v.SetDefault("node_id", "")
	v.SetDefault("wait_manager", false)
	v.SetDefault("timeout", "0s")
	v.SetDefault("max_job", 0)
	v.SetDefault("max_work_time", "0s")
	v.SetDefault("metrics_addr", "")
	v.SetDefault("log_json", false)
	v.SetDefault("heartbeat_period", "5s")
	v.SetDefault("heartbeat_timeout", "120s")
	v.SetDefault("reader_max_retries", 60)
	v.SetDefault("reader_backoff", "1s")
	v.SetDefault("log_level", "info")

	v.SetConfigName("flock")
	v.SetConfigType("yaml")
	if path != "" {
		v.AddConfigPath(path)
	}
	v.AddConfigPath(".")

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		// A missing config file is fine; env vars and flags may carry
		// everything needed.
	}

	v.SetEnvPrefix("FLOCK")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unable to decode config into struct: %w", err)
	}

	if err := Validate(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate checks required fields and fills derived defaults.
func Validate(cfg *Config) error {
	if cfg.BaseDir == "" {
		return errors.New("configuration 'base_dir' is required")
	}
	if cfg.HeartbeatPeriod <= 0 {
		cfg.HeartbeatPeriod = 5 * time.Second
	}
	if cfg.HeartbeatTimeout <= 0 {
		cfg.HeartbeatTimeout = 120 * time.Second
	}
	if cfg.ReaderMaxRetries <= 0 {
		cfg.ReaderMaxRetries = 60
	}
	if cfg.ReaderBackoff <= 0 {
		cfg.ReaderBackoff = time.Second
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}
	return nil
}

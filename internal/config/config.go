// Package config loads pipeline configuration from environment variables and
// an optional .env file, using Viper for precedence handling.
package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"

	"github.com/testherd/testherd/internal/logger"
)

// DBConfig holds the Postgres connection settings used when the result store
// runs with the "postgres" driver.
type DBConfig struct {
	Host            string
	Port            int
	Username        string
	Password        string
	Database        string
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
}

// Config holds the application's configuration values. Timeouts and the retry
// budget are configuration inputs everywhere; nothing in the scheduling core
// hardcodes them.
type Config struct {
	ServerPort string
	Logger     logger.Config

	// Monitored repository.
	RepoURL    string
	RepoBranch string

	// Commit source selection: "poll" or "hook".
	SourceMode   string
	PollInterval time.Duration

	// Scheduling.
	HeartbeatTimeout time.Duration
	JobTimeout       time.Duration
	MaxAttempts      int

	// Result store: "memory" or "postgres".
	StorageDriver string
	Database      DBConfig

	// Optional shared secret for validating GitHub webhook signatures.
	WebhookSecret string

	// Runner-side settings.
	DispatcherURL string
	RunnerPort    string
	RunnerAddress string
	WorkDir       string
}

// LoadConfig reads configuration, sets defaults, and validates the fields the
// pipeline cannot run without.
func LoadConfig() (*Config, error) {
	v := viper.New()
	v.SetConfigFile(".env")

	v.SetDefault("SERVER_PORT", "8888")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "text")
	v.SetDefault("LOG_OUTPUT", "stdout")
	v.SetDefault("REPO_BRANCH", "master")
	v.SetDefault("SOURCE_MODE", "poll")
	v.SetDefault("POLL_INTERVAL", "15s")
	v.SetDefault("HEARTBEAT_TIMEOUT", "10s")
	v.SetDefault("JOB_TIMEOUT", "10m")
	v.SetDefault("MAX_ATTEMPTS", 3)
	v.SetDefault("STORAGE_DRIVER", "memory")
	v.SetDefault("DB_HOST", "localhost")
	v.SetDefault("DB_PORT", 5432)
	v.SetDefault("DB_USER", "testherd")
	v.SetDefault("DB_NAME", "testherd")
	v.SetDefault("DB_CONN_MAX_LIFETIME", "30m")
	v.SetDefault("DB_CONN_MAX_IDLE_TIME", "5m")
	v.SetDefault("DISPATCHER_URL", "http://localhost:8888")
	v.SetDefault("RUNNER_PORT", "8900")
	v.SetDefault("WORK_DIR", "")

	v.AutomaticEnv()
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			// A missing .env is fine; a broken one is worth surfacing.
			return nil, fmt.Errorf("failed to read .env: %w", err)
		}
	}

	cfg := &Config{
		ServerPort: v.GetString("SERVER_PORT"),
		Logger: logger.Config{
			Level:  v.GetString("LOG_LEVEL"),
			Format: v.GetString("LOG_FORMAT"),
			Output: v.GetString("LOG_OUTPUT"),
		},
		RepoURL:          v.GetString("REPO_URL"),
		RepoBranch:       v.GetString("REPO_BRANCH"),
		SourceMode:       v.GetString("SOURCE_MODE"),
		PollInterval:     v.GetDuration("POLL_INTERVAL"),
		HeartbeatTimeout: v.GetDuration("HEARTBEAT_TIMEOUT"),
		JobTimeout:       v.GetDuration("JOB_TIMEOUT"),
		MaxAttempts:      v.GetInt("MAX_ATTEMPTS"),
		StorageDriver:    v.GetString("STORAGE_DRIVER"),
		Database: DBConfig{
			Host:            v.GetString("DB_HOST"),
			Port:            v.GetInt("DB_PORT"),
			Username:        v.GetString("DB_USER"),
			Password:        v.GetString("DB_PASSWORD"),
			Database:        v.GetString("DB_NAME"),
			ConnMaxLifetime: v.GetDuration("DB_CONN_MAX_LIFETIME"),
			ConnMaxIdleTime: v.GetDuration("DB_CONN_MAX_IDLE_TIME"),
		},
		WebhookSecret: v.GetString("WEBHOOK_SECRET"),
		DispatcherURL: v.GetString("DISPATCHER_URL"),
		RunnerPort:    v.GetString("RUNNER_PORT"),
		RunnerAddress: v.GetString("RUNNER_ADDRESS"),
		WorkDir:       v.GetString("WORK_DIR"),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects configurations the dispatcher cannot safely run with.
func (c *Config) Validate() error {
	switch c.SourceMode {
	case "poll", "hook":
	default:
		return fmt.Errorf("SOURCE_MODE must be \"poll\" or \"hook\", got %q", c.SourceMode)
	}
	if c.SourceMode == "poll" && c.RepoURL == "" {
		return fmt.Errorf("REPO_URL must be set when SOURCE_MODE is \"poll\"")
	}
	switch c.StorageDriver {
	case "memory", "postgres":
	default:
		return fmt.Errorf("STORAGE_DRIVER must be \"memory\" or \"postgres\", got %q", c.StorageDriver)
	}
	if c.MaxAttempts < 1 {
		return fmt.Errorf("MAX_ATTEMPTS must be at least 1, got %d", c.MaxAttempts)
	}
	if c.HeartbeatTimeout <= 0 {
		return fmt.Errorf("HEARTBEAT_TIMEOUT must be positive, got %s", c.HeartbeatTimeout)
	}
	if c.JobTimeout <= 0 {
		return fmt.Errorf("JOB_TIMEOUT must be positive, got %s", c.JobTimeout)
	}
	if c.PollInterval <= 0 {
		return fmt.Errorf("POLL_INTERVAL must be positive, got %s", c.PollInterval)
	}
	return nil
}

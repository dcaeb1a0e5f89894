// Package config loads process configuration from environment variables and
// the guild/rule configuration from a YAML file.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all application configuration.
type Config struct {
	App      AppConfig
	Log      LogConfig
	Redis    RedisConfig
	Rules    RulesConfig
	Resync   ResyncConfig
	Identity IdentityConfig
}

// AppConfig holds application-level configuration.
type AppConfig struct {
	Name       string
	Env        string
	GuildsFile string
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level  string
	Format string
}

// RedisConfig holds Redis configuration for the rule result cache and the
// background job queue.
type RedisConfig struct {
	Host          string
	Port          int
	Password      string
	DB            int
	PoolSize      int
	MinIdleConns  int
	DialTimeout   time.Duration
	ReadTimeout   time.Duration
	WriteTimeout  time.Duration
	MaxRetries    int
	MinRetryDelay time.Duration
	MaxRetryDelay time.Duration
}

// Addr returns the host:port address.
func (c *RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// RulesConfig bounds rule execution.
type RulesConfig struct {
	// Timeout bounds a single rule execution; a rule exceeding it fails.
	Timeout time.Duration
}

// ResyncConfig controls background role resynchronization.
type ResyncConfig struct {
	// Schedule is a cron expression for periodic full resyncs.
	// Empty disables the scheduler.
	Schedule string

	// Concurrency caps how many users are resynced in parallel by the
	// scheduler and the job worker.
	Concurrency int

	// Queue is the asynq queue name for resync tasks.
	Queue string
}

// IdentityConfig controls identity disclosure behavior.
type IdentityConfig struct {
	// NotifyAutomatedAccess controls whether system-initiated disclosures
	// send the user a notification. Manual disclosures always notify.
	NotifyAutomatedAccess bool
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	cfg := &Config{
		App: AppConfig{
			Name:       getEnv("APP_NAME", "epilink"),
			Env:        getEnv("APP_ENV", "development"),
			GuildsFile: getEnv("EPILINK_GUILDS_FILE", "guilds.yaml"),
		},
		Log: LogConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "json"),
		},
		Redis: RedisConfig{
			Host:          getEnv("REDIS_HOST", "localhost"),
			Port:          getEnvInt("REDIS_PORT", 6379),
			Password:      getEnv("REDIS_PASSWORD", ""),
			DB:            getEnvInt("REDIS_DB", 0),
			PoolSize:      getEnvInt("REDIS_POOL_SIZE", 10),
			MinIdleConns:  getEnvInt("REDIS_MIN_IDLE_CONNS", 2),
			DialTimeout:   getEnvDuration("REDIS_DIAL_TIMEOUT", 5*time.Second),
			ReadTimeout:   getEnvDuration("REDIS_READ_TIMEOUT", 3*time.Second),
			WriteTimeout:  getEnvDuration("REDIS_WRITE_TIMEOUT", 3*time.Second),
			MaxRetries:    getEnvInt("REDIS_MAX_RETRIES", 3),
			MinRetryDelay: getEnvDuration("REDIS_MIN_RETRY_DELAY", 100*time.Millisecond),
			MaxRetryDelay: getEnvDuration("REDIS_MAX_RETRY_DELAY", 2*time.Second),
		},
		Rules: RulesConfig{
			Timeout: getEnvDuration("RULE_TIMEOUT", 30*time.Second),
		},
		Resync: ResyncConfig{
			Schedule:    getEnv("RESYNC_SCHEDULE", ""),
			Concurrency: getEnvInt("RESYNC_CONCURRENCY", 4),
			Queue:       getEnv("RESYNC_QUEUE", "roles"),
		},
		Identity: IdentityConfig{
			NotifyAutomatedAccess: getEnvBool("IDENTITY_NOTIFY_AUTOMATED", true),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.App.GuildsFile == "" {
		return fmt.Errorf("EPILINK_GUILDS_FILE is required")
	}
	if c.Rules.Timeout <= 0 {
		return fmt.Errorf("RULE_TIMEOUT must be positive")
	}
	if c.Resync.Concurrency <= 0 {
		return fmt.Errorf("RESYNC_CONCURRENCY must be positive")
	}
	return nil
}

func getEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v, ok := os.LookupEnv(key); ok {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if v, ok := os.LookupEnv(key); ok {
		switch strings.ToLower(v) {
		case "true", "1", "yes", "on":
			return true
		case "false", "0", "no", "off":
			return false
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if v, ok := os.LookupEnv(key); ok {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}

package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	StoreDriverPostgres = "postgres"
	StoreDriverMemory   = "memory"
)

type Config struct {
	DBHost     string
	DBPort     string
	DBUser     string
	DBPassword string
	DBName     string
	DBSSLMode  string

	ServerPort      string
	ShutdownTimeout time.Duration

	StoreDriver    string
	MigrateOnStart bool

	// RedisAddr enables the distributed account lock when set.
	RedisAddr  string
	LockExpiry time.Duration

	// RiskTimezone is the location posting timestamps are taken in, which
	// decides what counts as a night-time posting.
	RiskTimezone *time.Location

	LogLevel  string
	LogFormat string
}

// Load reads configuration from environment variables, applying defaults.
func Load() (*Config, error) {
	cfg := &Config{
		DBHost:         valueOrDefault("DB_HOST", "localhost"),
		DBPort:         valueOrDefault("DB_PORT", "5432"),
		DBUser:         valueOrDefault("DB_USER", "postgres"),
		DBPassword:     valueOrDefault("DB_PASSWORD", "password"),
		DBName:         valueOrDefault("DB_NAME", "bank_postings"),
		DBSSLMode:      valueOrDefault("DB_SSLMODE", "disable"),
		ServerPort:     valueOrDefault("SERVER_PORT", "8080"),
		StoreDriver:    strings.ToLower(valueOrDefault("STORE_DRIVER", StoreDriverPostgres)),
		MigrateOnStart: parseBoolWithDefault("MIGRATE_ON_START", true),
		RedisAddr:      os.Getenv("REDIS_ADDR"),
		LogLevel:       valueOrDefault("LOG_LEVEL", "info"),
		LogFormat:      valueOrDefault("LOG_FORMAT", "json"),
	}

	var err error
	if cfg.ShutdownTimeout, err = parseDurationWithDefault("SHUTDOWN_TIMEOUT", 30*time.Second); err != nil {
		return nil, err
	}
	if cfg.LockExpiry, err = parseDurationWithDefault("LOCK_EXPIRY", 10*time.Second); err != nil {
		return nil, err
	}

	cfg.RiskTimezone, err = time.LoadLocation(valueOrDefault("RISK_TIMEZONE", "Local"))
	if err != nil {
		return nil, fmt.Errorf("invalid RISK_TIMEZONE: %w", err)
	}

	switch cfg.StoreDriver {
	case StoreDriverPostgres, StoreDriverMemory:
	default:
		return nil, fmt.Errorf("invalid STORE_DRIVER %q", cfg.StoreDriver)
	}

	return cfg, nil
}

func (c *Config) GetDBConnectionString() string {
	return fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		c.DBHost, c.DBPort, c.DBUser, c.DBPassword, c.DBName, c.DBSSLMode)
}

func valueOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func parseBoolWithDefault(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		val, err := strconv.ParseBool(v)
		if err != nil {
			return fallback
		}
		return val
	}
	return fallback
}

func parseDurationWithDefault(key string, fallback time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return d, nil
}

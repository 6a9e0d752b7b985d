package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Lock backends for the reminder pass try-lock.
const (
	LockPostgres = "postgres"
	LockRedis    = "redis"
	LockLocal    = "local"
)

// Delivery senders.
const (
	SenderLog     = "log"
	SenderWebhook = "webhook"
	SenderSES     = "ses"
)

// Config holds all runtime configuration loaded from environment variables.
// Every field has a sensible default; only DATABASE_URL is required.
type Config struct {
	// Server
	HTTPPort        string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration

	// Logging
	Env      string
	LogLevel string

	// Database
	DatabaseURL    string
	DBMaxConns     int32
	DBMinConns     int32
	MigrationsPath string

	// Reminder pass lock
	LockBackend   string
	LockTTL       time.Duration
	RedisAddr     string
	RedisPassword string
	RedisDB       int

	// Reminder scheduler
	ReminderEnabled  bool
	ReminderBaseURL  string
	ReminderInterval time.Duration

	// Delivery
	DeliveryWorkers  int
	DeliveryIdleWait time.Duration
	LeaseTimeout     time.Duration
	RateLimit        int
	StatsInterval    time.Duration

	// Sender
	Sender          string
	ProviderBaseURL string
	ProviderTimeout time.Duration
	SESRegion       string
	SESFrom         string
}

// Load reads a .env file when present, then the process environment.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	dbURL := os.Getenv("DATABASE_URL")
	if dbURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}

	cfg := &Config{
		HTTPPort:        getEnv("HTTP_PORT", "8080"),
		ReadTimeout:     getDuration("READ_TIMEOUT", 5*time.Second),
		WriteTimeout:    getDuration("WRITE_TIMEOUT", 10*time.Second),
		ShutdownTimeout: getDuration("SHUTDOWN_TIMEOUT", 30*time.Second),

		Env:      getEnv("ENV", "development"),
		LogLevel: getEnv("LOG_LEVEL", "info"),

		DatabaseURL:    dbURL,
		DBMaxConns:     int32(getInt("DB_MAX_CONNS", 25)),
		DBMinConns:     int32(getInt("DB_MIN_CONNS", 5)),
		MigrationsPath: getEnv("MIGRATIONS_PATH", ""),

		LockBackend:   getEnv("LOCK_BACKEND", LockPostgres),
		LockTTL:       getDuration("LOCK_TTL", 5*time.Minute),
		RedisAddr:     getEnv("REDIS_ADDR", "localhost:6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       getInt("REDIS_DB", 0),

		ReminderEnabled:  getBool("REMINDER_ENABLED", true),
		ReminderBaseURL:  getEnv("REMINDER_BASE_URL", "http://localhost:9000"),
		ReminderInterval: getDuration("REMINDER_INTERVAL", time.Minute),

		DeliveryWorkers:  getInt("DELIVERY_WORKERS", 4),
		DeliveryIdleWait: getDuration("DELIVERY_IDLE_WAIT", 15*time.Second),
		LeaseTimeout:     getDuration("LEASE_TIMEOUT", 5*time.Minute),
		RateLimit:        getInt("RATE_LIMIT_PER_KIND", 50),
		StatsInterval:    getDuration("STATS_INTERVAL", 15*time.Second),

		Sender:          getEnv("SENDER", SenderLog),
		ProviderBaseURL: getEnv("PROVIDER_BASE_URL", "http://localhost:9100/send"),
		ProviderTimeout: getDuration("PROVIDER_TIMEOUT", 10*time.Second),
		SESRegion:       getEnv("SES_REGION", "us-east-1"),
		SESFrom:         getEnv("SES_FROM", ""),
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	switch c.LockBackend {
	case LockPostgres, LockRedis, LockLocal:
	default:
		return fmt.Errorf("LOCK_BACKEND must be one of postgres, redis, local: got %q", c.LockBackend)
	}
	switch c.Sender {
	case SenderLog, SenderWebhook:
	case SenderSES:
		if c.SESFrom == "" {
			return fmt.Errorf("SES_FROM is required when SENDER=ses")
		}
	default:
		return fmt.Errorf("SENDER must be one of log, webhook, ses: got %q", c.Sender)
	}
	if c.DeliveryWorkers < 0 {
		return fmt.Errorf("DELIVERY_WORKERS must not be negative")
	}
	if c.RateLimit <= 0 {
		return fmt.Errorf("RATE_LIMIT_PER_KIND must be positive")
	}
	for _, d := range []struct {
		key string
		val time.Duration
	}{
		{"LEASE_TIMEOUT", c.LeaseTimeout},
		{"REMINDER_INTERVAL", c.ReminderInterval},
		{"STATS_INTERVAL", c.StatsInterval},
		{"DELIVERY_IDLE_WAIT", c.DeliveryIdleWait},
		{"PROVIDER_TIMEOUT", c.ProviderTimeout},
	} {
		if d.val <= 0 {
			return fmt.Errorf("%s must be positive: got %s", d.key, d.val)
		}
	}
	return nil
}

func getEnv(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func getInt(key string, defaultVal int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return defaultVal
}

func getBool(key string, defaultVal bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return defaultVal
}

func getDuration(key string, defaultVal time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return defaultVal
}

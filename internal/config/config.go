package config

import (
	"fmt"
	"net/url"
	"os"
	"slices"
	"strconv"
	"strings"
	"time"

	"budgetsync/internal/log"
)

type Config struct {
	// Remote API
	APIBaseURL string
	APITimeout time.Duration
	APIBackend string

	// Durable session storage
	StorageBackend string
	SQLiteDBPath   string
	RedisURL       string
	RedisKeyPrefix string

	// AMQP (optional transition publishing)
	AMQPURL        string
	AMQPExchange   string
	AMQPRoutingKey string

	// Memoized selectors
	SelectorCacheSize int
	SelectorCacheTTL  time.Duration

	LogLevel string
}

var (
	validAPIBackends     = []string{"http", "memory"}
	validStorageBackends = []string{"sqlite", "redis", "memory"}
)

func Load() *Config {
	return &Config{
		APIBaseURL: getEnv("API_BASE_URL", "http://localhost:8000"),
		APITimeout: getEnvDuration("API_TIMEOUT", 10*time.Second),
		APIBackend: getEnv("API_BACKEND", "http"),

		StorageBackend: getEnv("STORAGE_BACKEND", "sqlite"),
		SQLiteDBPath:   getEnv("SQLITE_DB_PATH", "./data/budgetsync.db"),
		RedisURL:       getEnv("REDIS_URL", ""),
		RedisKeyPrefix: getEnv("REDIS_KEY_PREFIX", "budgetsync:"),

		AMQPURL:        getEnv("AMQP_URL", ""),
		AMQPExchange:   getEnv("AMQP_EXCHANGE", "budgetsync"),
		AMQPRoutingKey: getEnv("AMQP_ROUTING_KEY", "state"),

		SelectorCacheSize: getEnvInt("SELECTOR_CACHE_SIZE", 128),
		SelectorCacheTTL:  getEnvDuration("SELECTOR_CACHE_TTL", 5*time.Minute),

		LogLevel: getEnv("LOG_LEVEL", "info"),
	}
}

// Validate validates the configuration and returns an error if invalid
func (c *Config) Validate() error {
	var errors []string

	if !slices.Contains(validAPIBackends, c.APIBackend) {
		errors = append(errors, fmt.Sprintf("invalid API backend '%s': must be one of %v", c.APIBackend, validAPIBackends))
	}
	if c.APIBackend == "http" {
		if parsedURL, err := url.Parse(c.APIBaseURL); err != nil {
			errors = append(errors, fmt.Sprintf("invalid API base URL '%s': %v", c.APIBaseURL, err))
		} else if parsedURL.Scheme != "http" && parsedURL.Scheme != "https" {
			errors = append(errors, fmt.Sprintf("invalid API base URL scheme '%s': must be 'http' or 'https'", parsedURL.Scheme))
		}
	}
	if c.APITimeout < 100*time.Millisecond {
		errors = append(errors, fmt.Sprintf("invalid API timeout %v: must be at least 100ms", c.APITimeout))
	} else if c.APITimeout > 5*time.Minute {
		errors = append(errors, fmt.Sprintf("invalid API timeout %v: must be at most 5 minutes", c.APITimeout))
	}

	if !slices.Contains(validStorageBackends, c.StorageBackend) {
		errors = append(errors, fmt.Sprintf("invalid storage backend '%s': must be one of %v", c.StorageBackend, validStorageBackends))
	}
	if c.StorageBackend == "sqlite" && c.SQLiteDBPath == "" {
		errors = append(errors, "SQLite database path cannot be empty when using sqlite storage")
	}
	if c.StorageBackend == "redis" {
		if c.RedisURL == "" {
			errors = append(errors, "Redis URL is required when using redis storage")
		} else if parsedURL, err := url.Parse(c.RedisURL); err != nil {
			errors = append(errors, fmt.Sprintf("invalid Redis URL '%s': %v", c.RedisURL, err))
		} else if parsedURL.Scheme != "redis" && parsedURL.Scheme != "rediss" {
			errors = append(errors, fmt.Sprintf("invalid Redis URL scheme '%s': must be 'redis' or 'rediss'", parsedURL.Scheme))
		}
	}

	if c.AMQPURL != "" {
		if parsedURL, err := url.Parse(c.AMQPURL); err != nil {
			errors = append(errors, fmt.Sprintf("invalid AMQP URL '%s': %v", c.AMQPURL, err))
		} else if parsedURL.Scheme != "amqp" && parsedURL.Scheme != "amqps" {
			errors = append(errors, fmt.Sprintf("invalid AMQP URL scheme '%s': must be 'amqp' or 'amqps'", parsedURL.Scheme))
		}
		if c.AMQPExchange == "" {
			errors = append(errors, "AMQP exchange name cannot be empty when AMQP URL is provided")
		}
		if c.AMQPRoutingKey == "" {
			errors = append(errors, "AMQP routing key cannot be empty when AMQP URL is provided")
		}
	}

	if c.SelectorCacheSize < 1 {
		errors = append(errors, fmt.Sprintf("invalid selector cache size %d: must be at least 1", c.SelectorCacheSize))
	} else if c.SelectorCacheSize > 10000 {
		errors = append(errors, fmt.Sprintf("invalid selector cache size %d: must be at most 10000", c.SelectorCacheSize))
	}
	if c.SelectorCacheTTL < 0 {
		errors = append(errors, fmt.Sprintf("invalid selector cache TTL %v: must not be negative", c.SelectorCacheTTL))
	}

	if _, err := log.ParseLevel(c.LogLevel); err != nil {
		errors = append(errors, fmt.Sprintf("invalid log level '%s': must be one of debug, info, warn, error", c.LogLevel))
	}

	if len(errors) > 0 {
		return fmt.Errorf("configuration validation failed:\n- %s", strings.Join(errors, "\n- "))
	}

	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

package backend

import (
	"errors"
	"fmt"
	"time"

	"budgetsync/internal/config"
)

// FromAppConfig converts the application config to backend config
func FromAppConfig(appConfig *config.Config) (Config, error) {
	if appConfig == nil {
		return Config{}, errors.New("app config is nil")
	}

	apiType := APIType(appConfig.APIBackend)
	if !apiType.IsValid() {
		return Config{}, fmt.Errorf("invalid API backend in config: %s", appConfig.APIBackend)
	}
	storageType := StorageType(appConfig.StorageBackend)
	if !storageType.IsValid() {
		return Config{}, fmt.Errorf("invalid storage backend in config: %s", appConfig.StorageBackend)
	}

	return Config{
		API:     apiType,
		Storage: storageType,

		BaseURL: appConfig.APIBaseURL,
		Timeout: appConfig.APITimeout,

		SQLiteDBPath:   appConfig.SQLiteDBPath,
		RedisURL:       appConfig.RedisURL,
		RedisKeyPrefix: appConfig.RedisKeyPrefix,

		AMQPURL:        appConfig.AMQPURL,
		AMQPExchange:   appConfig.AMQPExchange,
		AMQPRoutingKey: appConfig.AMQPRoutingKey,
	}, nil
}

// Validate validates the backend configuration
func (c Config) Validate() error {
	if !c.API.IsValid() {
		return fmt.Errorf("invalid API backend: %s", c.API)
	}
	if !c.Storage.IsValid() {
		return fmt.Errorf("invalid storage backend: %s", c.Storage)
	}

	if c.API == HTTPAPI {
		if c.BaseURL == "" {
			return errors.New("API base URL is required for http backend")
		}
		if c.Timeout < 0 {
			return fmt.Errorf("API timeout must not be negative: %v", c.Timeout)
		}
	}

	switch c.Storage {
	case SQLiteStorage:
		if c.SQLiteDBPath == "" {
			return errors.New("SQLite database path is required for sqlite storage")
		}
	case RedisStorage:
		if c.RedisURL == "" {
			return errors.New("Redis URL is required for redis storage")
		}
	case MemoryStorage:
		// nothing to check
	}

	// AMQP is optional, but a configured URL needs somewhere to publish.
	if c.AMQPURL != "" && c.AMQPExchange == "" {
		return errors.New("AMQP exchange is required when AMQP URL is set")
	}

	return nil
}

// DefaultTimeout is used by the HTTP backend when Config.Timeout is zero.
const DefaultTimeout = 10 * time.Second

// GetAPITypes returns all valid API backend types
func GetAPITypes() []APIType {
	return []APIType{HTTPAPI, MemoryAPI}
}

// GetStorageTypes returns all valid storage backend types
func GetStorageTypes() []StorageType {
	return []StorageType{SQLiteStorage, RedisStorage, MemoryStorage}
}

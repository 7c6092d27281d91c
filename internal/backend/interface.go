package backend

import (
	"context"
	"time"

	"budgetsync/internal/amqp"
	"budgetsync/internal/api"
	"budgetsync/internal/api/memory"
	"budgetsync/internal/storage"
)

// CleanupFunc represents a cleanup function for resources
type CleanupFunc func() error

// Result holds everything the stores need to talk to the outside world.
type Result struct {
	Client  api.Client
	Storage storage.KV
	// Publisher is nil when AMQP is not configured or unreachable.
	Publisher *amqp.Client
	// Server is set only for the memory API backend.
	Server  *memory.Server
	Cleanup CleanupFunc
}

// Factory creates backends based on configuration
type Factory interface {
	CreateBackend(ctx context.Context, config Config) (*Result, error)
}

// Config holds configuration for backend creation
type Config struct {
	API     APIType
	Storage StorageType

	// HTTP API
	BaseURL string
	Timeout time.Duration

	// Storage
	SQLiteDBPath   string
	RedisURL       string
	RedisKeyPrefix string

	// AMQP, optional
	AMQPURL        string
	AMQPExchange   string
	AMQPRoutingKey string
}

// APIType selects the remote API implementation.
type APIType string

const (
	HTTPAPI   APIType = "http"
	MemoryAPI APIType = "memory"
)

// String implements fmt.Stringer
func (t APIType) String() string {
	return string(t)
}

// IsValid returns true if the API type is valid
func (t APIType) IsValid() bool {
	switch t {
	case HTTPAPI, MemoryAPI:
		return true
	default:
		return false
	}
}

// StorageType selects where the session is persisted.
type StorageType string

const (
	SQLiteStorage StorageType = "sqlite"
	RedisStorage  StorageType = "redis"
	MemoryStorage StorageType = "memory"
)

// String implements fmt.Stringer
func (t StorageType) String() string {
	return string(t)
}

// IsValid returns true if the storage type is valid
func (t StorageType) IsValid() bool {
	switch t {
	case SQLiteStorage, RedisStorage, MemoryStorage:
		return true
	default:
		return false
	}
}

package backend

import (
	"context"
	"errors"
	"fmt"

	"budgetsync/internal/amqp"
	"budgetsync/internal/api"
	"budgetsync/internal/api/httpapi"
	"budgetsync/internal/api/memory"
	"budgetsync/internal/log"
	"budgetsync/internal/storage"
)

// Demo account seeded into the memory API backend, which starts empty on
// every run.
const (
	DemoName     = "Demo User"
	DemoEmail    = "demo@example.com"
	DemoPassword = "demo-password"
)

// DefaultFactory implements the Factory interface
type DefaultFactory struct {
	logger *log.Logger
}

// NewFactory creates a new backend factory
func NewFactory(logger *log.Logger) Factory {
	if logger == nil {
		logger = log.Discard()
	}
	return &DefaultFactory{
		logger: logger.WithComponent(log.ComponentBackend),
	}
}

// CreateBackend implements Factory.CreateBackend
func (f *DefaultFactory) CreateBackend(ctx context.Context, config Config) (*Result, error) {
	if err := config.Validate(); err != nil {
		f.logger.Error("Invalid backend configuration",
			log.FieldErrorType, log.ErrorTypeConfiguration, log.FieldError, err)
		return nil, err
	}

	result := &Result{}
	var err error

	switch config.API {
	case HTTPAPI:
		result.Client, err = f.createHTTPAPI(config)
	case MemoryAPI:
		result.Server, err = f.createMemoryAPI()
		if err == nil {
			result.Client = result.Server.Client()
		}
	default:
		err = fmt.Errorf("unsupported API backend: %s", config.API)
	}
	if err != nil {
		return nil, err
	}

	result.Storage, err = f.createStorage(ctx, config)
	if err != nil {
		return nil, err
	}

	// AMQP is optional; a broker outage never blocks startup.
	if config.AMQPURL != "" {
		pub, err := amqp.NewClient(config.AMQPURL, config.AMQPExchange, config.AMQPRoutingKey, f.logger)
		if err != nil {
			f.logger.Warn("Failed to initialize AMQP client, continuing without publishing", log.FieldError, err)
		} else {
			f.logger.Info("Initialized AMQP client",
				log.FieldExchange, config.AMQPExchange,
				log.FieldRoutingKey, config.AMQPRoutingKey)
			result.Publisher = pub
		}
	}

	storageKV, publisher := result.Storage, result.Publisher
	result.Cleanup = func() error {
		var errs []error
		if publisher != nil {
			errs = append(errs, publisher.Close())
		}
		errs = append(errs, storageKV.Close())
		return errors.Join(errs...)
	}

	f.logger.Info("Initialized backend",
		"api", config.API.String(),
		"storage", config.Storage.String(),
		"amqp_enabled", result.Publisher != nil)

	return result, nil
}

func (f *DefaultFactory) createHTTPAPI(config Config) (api.Client, error) {
	timeout := config.Timeout
	if timeout == 0 {
		timeout = DefaultTimeout
	}
	client, err := httpapi.New(httpapi.Config{
		BaseURL: config.BaseURL,
		Timeout: timeout,
		Logger:  f.logger.Logger.With(log.FieldComponent, log.ComponentAPI),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize HTTP API client: %w", err)
	}
	f.logger.Info("Initialized HTTP API backend", "base_url", config.BaseURL)
	return client, nil
}

func (f *DefaultFactory) createMemoryAPI() (*memory.Server, error) {
	srv := memory.NewServer(memory.Options{})
	if _, err := srv.AddUser(DemoName, DemoEmail, DemoPassword); err != nil {
		return nil, fmt.Errorf("failed to seed memory API backend: %w", err)
	}
	f.logger.Info("Initialized memory API backend", "demo_email", DemoEmail)
	return srv, nil
}

func (f *DefaultFactory) createStorage(ctx context.Context, config Config) (storage.KV, error) {
	switch config.Storage {
	case SQLiteStorage:
		kv, err := storage.NewSQLiteKV(config.SQLiteDBPath)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize SQLite storage: %w", err)
		}
		f.logger.Info("Initialized SQLite storage", "db_path", config.SQLiteDBPath)
		return kv, nil
	case RedisStorage:
		client, err := storage.NewRedisClient(ctx, config.RedisURL)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize Redis storage: %w", err)
		}
		f.logger.Info("Initialized Redis storage", log.FieldKey, config.RedisKeyPrefix)
		return storage.NewRedisKV(client, config.RedisKeyPrefix), nil
	case MemoryStorage:
		f.logger.Info("Initialized memory storage")
		return storage.NewMemoryKV(), nil
	default:
		return nil, fmt.Errorf("unsupported storage backend: %s", config.Storage)
	}
}

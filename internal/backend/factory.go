package backend

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"goalpact/internal/amqp"
	"goalpact/internal/storage"
	"goalpact/internal/storage/memory"
	"goalpact/internal/storage/postgres"
)

type DefaultFactory struct {
	logger *slog.Logger
}

func NewFactory(logger *slog.Logger) Factory {
	if logger == nil {
		logger = slog.Default()
	}
	return &DefaultFactory{logger: logger}
}

func (f *DefaultFactory) CreateBackend(ctx context.Context, config Config) (*Result, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	var (
		res *Result
		err error
	)
	switch config.Type {
	case SQLiteBackend:
		res, err = f.createSQLiteBackend(config)
	case PostgresBackend:
		res, err = f.createPostgresBackend(ctx, config)
	case MemoryBackend:
		res = f.createMemoryBackend()
	default:
		return nil, fmt.Errorf("unsupported backend type: %s", config.Type)
	}
	if err != nil {
		return nil, err
	}

	f.attachPublisher(res, config)
	return res, nil
}

func (f *DefaultFactory) createSQLiteBackend(config Config) (*Result, error) {
	repo, err := storage.NewSQLiteRepository(config.SQLiteDBPath)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize SQLite repository: %w", err)
	}
	f.logger.Info("Initialized SQLite backend", "db_path", config.SQLiteDBPath)
	return &Result{Store: repo, Cleanup: repo.Close}, nil
}

func (f *DefaultFactory) createPostgresBackend(ctx context.Context, config Config) (*Result, error) {
	opts := postgres.DefaultOptions(config.PostgresDSN)
	if config.PostgresQueryTimeout > 0 {
		opts.QueryTimeout = config.PostgresQueryTimeout
	}
	repo, err := postgres.Open(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize Postgres repository: %w", err)
	}
	f.logger.Info("Initialized Postgres backend")
	return &Result{Store: repo, DB: repo.DB(), Cleanup: repo.Close}, nil
}

func (f *DefaultFactory) createMemoryBackend() *Result {
	f.logger.Warn("Initialized memory backend, state is lost on restart")
	return &Result{Store: memory.New(), Cleanup: func() error { return nil }}
}

// attachPublisher connects the penalty event publisher. A broker that is down
// at startup is not fatal: penalties still apply, only notifications wait.
func (f *DefaultFactory) attachPublisher(res *Result, config Config) {
	if config.AMQPURL == "" {
		return
	}
	client, err := amqp.NewClient(config.AMQPURL, config.AMQPExchange, config.AMQPQueue)
	if err != nil {
		f.logger.Warn("Failed to initialize AMQP client, continuing without events", "error", err)
		return
	}
	f.logger.Info("Initialized AMQP client",
		"exchange", config.AMQPExchange,
		"queue", config.AMQPQueue)

	res.Publisher = client
	storeCleanup := res.Cleanup
	res.Cleanup = func() error {
		return errors.Join(client.Close(), storeCleanup())
	}
}

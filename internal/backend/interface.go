package backend

import (
	"context"
	"database/sql"

	"goalpact/internal/services"
	"goalpact/internal/storage"
)

// CleanupFunc releases what a Result holds.
type CleanupFunc func() error

// Result bundles the entity store with the optional event publisher.
type Result struct {
	Store storage.Store
	// DB is the Postgres pool, nil for other backends.
	DB *sql.DB
	// Publisher is nil when AMQP is not configured.
	Publisher services.PenaltyPublisher
	Cleanup   CleanupFunc
}

// Factory creates backends based on configuration
type Factory interface {
	CreateBackend(ctx context.Context, config Config) (*Result, error)
}

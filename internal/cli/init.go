// Package cli provides common initialization shared by the goalpact binaries:
// cmd/goalpact, cmd/penalty-worker, cmd/notifier-worker and cmd/goalctl.
package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"

	"goalpact/internal/backend"
	"goalpact/internal/config"
	"goalpact/internal/distlock"
	applog "goalpact/internal/log"
	"goalpact/internal/services"
)

// SweepLockKey names the lock that serializes penalty sweeps across instances.
const SweepLockKey = "goalpact:penalty-sweep"

// LoadEnvFile loads the .env file for local development.
// Errors are ignored silently as this is optional in production.
func LoadEnvFile() {
	_ = godotenv.Load()
}

// SetupLogger configures the process logger from cfg and makes it the default.
func SetupLogger(cfg *config.Config, component string) *applog.Logger {
	return applog.Setup(cfg.LogLevel, cfg.LogFormat, component)
}

// LoadAndValidateConfig loads configuration and validates it.
// Returns the config or exits the process on failure.
func LoadAndValidateConfig(component string) (*config.Config, *applog.Logger) {
	cfg, err := config.Load()
	if err != nil {
		logger := applog.Setup("info", "text", component)
		logger.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}
	logger := SetupLogger(cfg, component)
	if err := cfg.Validate(); err != nil {
		logger.Error("Configuration validation failed", "error", err)
		os.Exit(1)
	}
	return cfg, logger
}

// OpenBackend opens the configured store and, when AMQP is configured, the
// penalty event publisher.
func OpenBackend(ctx context.Context, cfg *config.Config, logger *applog.Logger) (*backend.Result, error) {
	bcfg, err := backend.FromAppConfig(cfg)
	if err != nil {
		return nil, err
	}
	factory := backend.NewFactory(logger.WithComponent(applog.ComponentBackend).Logger)
	res, err := factory.CreateBackend(ctx, bcfg)
	if err != nil {
		return nil, fmt.Errorf("create %s backend: %w", bcfg.Type, err)
	}
	return res, nil
}

// NewRedisClient returns nil when url is empty.
func NewRedisClient(ctx context.Context, url string) (*redis.Client, error) {
	if url == "" {
		return nil, nil
	}
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opts)
	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return client, nil
}

// NewController wires the lifecycle controller over an opened backend.
func NewController(res *backend.Result, cfg *config.Config) *services.Controller {
	applicator := services.NewApplicator(res.Store, res.Publisher)
	return services.NewController(res.Store, applicator,
		services.WithLocation(cfg.Location()),
		services.WithConcurrency(cfg.ReconcileConcurrency))
}

// NewSweeper builds the overdue-goal sweeper. The lock uses Redis when a
// client is given, a Postgres advisory lock when the backend is Postgres, and
// nothing otherwise.
func NewSweeper(res *backend.Result, controller *services.Controller, redisClient *redis.Client, cfg *config.Config) *services.Sweeper {
	lock := distlock.NewLock(redisClient, res.DB, SweepLockKey, cfg.SweepLockTTL)
	return services.NewSweeper(res.Store, controller, lock)
}

// GracefulShutdown sets up signal handling for graceful shutdown.
// Returns a context that will be cancelled on shutdown signals,
// and a channel that signals when cleanup has finished.
func GracefulShutdown(logger *applog.Logger, timeout time.Duration, cleanup func(ctx context.Context)) (context.Context, <-chan struct{}) {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})

	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		sig := <-sigChan
		logger.Info("Shutdown signal received", "signal", sig.String())

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), timeout)
		defer shutdownCancel()

		cancel()

		finished := make(chan struct{})
		go func() {
			if cleanup != nil {
				cleanup(shutdownCtx)
			}
			close(finished)
		}()

		select {
		case <-shutdownCtx.Done():
			logger.Warn("Shutdown timeout reached")
		case <-finished:
			logger.Info("Shutdown complete")
		}
		close(done)
	}()

	return ctx, done
}

// WaitForShutdown blocks until the context is cancelled and cleanup is over.
func WaitForShutdown(ctx context.Context, done <-chan struct{}) {
	<-ctx.Done()
	<-done
}

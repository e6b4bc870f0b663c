package main

import (
	"context"
	"os"
	"time"

	"goalpact/internal/cli"
	applog "goalpact/internal/log"
)

func main() {
	cli.LoadEnvFile()
	cfg, logger := cli.LoadAndValidateConfig(applog.ComponentSweep)

	logger.Info("Starting penalty-worker",
		"backend", cfg.DataBackend,
		"interval", cfg.SweepInterval.String(),
		"timezone", cfg.Timezone)

	res, err := cli.OpenBackend(context.Background(), cfg, logger)
	if err != nil {
		logger.Error("Failed to initialize backend", "error", err, "backend", cfg.DataBackend)
		os.Exit(1)
	}

	redisClient, err := cli.NewRedisClient(context.Background(), cfg.RedisURL)
	if err != nil {
		logger.Warn("Redis unavailable, sweeping without the Redis lock", "error", err)
		redisClient = nil
	}

	sweeper := cli.NewSweeper(res, cli.NewController(res, cfg), redisClient, cfg)

	ctx, done := cli.GracefulShutdown(logger, 30*time.Second, nil)

	if err := sweeper.Run(ctx, cfg.SweepInterval); err != nil {
		logger.Error("Penalty sweeper failed", "error", err)
		os.Exit(1)
	}
	cli.WaitForShutdown(ctx, done)

	if redisClient != nil {
		if err := redisClient.Close(); err != nil {
			logger.Error("Redis close error", "error", err)
		}
	}
	if err := res.Cleanup(); err != nil {
		logger.Error("Backend cleanup error", "error", err)
	}
	logger.Info("penalty-worker stopped")
}

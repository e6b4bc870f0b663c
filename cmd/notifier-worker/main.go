package main

import (
	"context"
	"errors"
	"os"
	"time"

	"goalpact/internal/amqp"
	"goalpact/internal/cache"
	"goalpact/internal/cli"
	applog "goalpact/internal/log"
	"goalpact/internal/worker"
)

const cacheCleanupInterval = 5 * time.Minute

func main() {
	cli.LoadEnvFile()
	cfg, logger := cli.LoadAndValidateConfig(applog.ComponentWorker)

	logger.Info("Starting notifier-worker", "queue", cfg.AMQPQueue, "backend", cfg.DataBackend)

	if cfg.AMQPURL == "" {
		logger.Error("AMQP_URL is required for notifier-worker")
		os.Exit(1)
	}

	// The worker only consumes, so the backend is opened without a publisher.
	storeCfg := *cfg
	storeCfg.AMQPURL = ""
	res, err := cli.OpenBackend(context.Background(), &storeCfg, logger)
	if err != nil {
		logger.Error("Failed to initialize backend", "error", err, "backend", cfg.DataBackend)
		os.Exit(1)
	}

	amqpClient, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
	if err != nil {
		logger.Error("Failed to initialize AMQP client", "error", err)
		os.Exit(1)
	}

	notifier := worker.NewNotifier(res.Store)

	ctx, done := cli.GracefulShutdown(logger, 30*time.Second, nil)

	go cache.NewManager(notifier.Cache()).Run(ctx, cacheCleanupInterval)

	if err := amqpClient.ConsumePenaltyApplied(ctx, notifier.HandlePenaltyApplied); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("Message consumption failed", "error", err)
		amqpClient.Close()
		res.Cleanup()
		os.Exit(1)
	}
	cli.WaitForShutdown(ctx, done)

	if err := amqpClient.Close(); err != nil {
		logger.Error("AMQP close error", "error", err)
	}
	if err := res.Cleanup(); err != nil {
		logger.Error("Backend cleanup error", "error", err)
	}
	logger.Info("notifier-worker stopped")
}

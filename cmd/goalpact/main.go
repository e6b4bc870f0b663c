package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"time"

	"goalpact/internal/auth"
	"goalpact/internal/cli"
	"goalpact/internal/config"
	apphttp "goalpact/internal/http"
	applog "goalpact/internal/log"
	"goalpact/internal/middleware/ratelimit"
	"goalpact/internal/services"
)

func main() {
	cli.LoadEnvFile()
	cfg, logger := cli.LoadAndValidateConfig(applog.ComponentApp)

	res, err := cli.OpenBackend(context.Background(), cfg, logger)
	if err != nil {
		logger.Error("Failed to initialize backend", "error", err, "backend", cfg.DataBackend)
		os.Exit(1)
	}

	rl := ratelimit.DefaultConfig()
	rl.RequestsPerSecond = cfg.RateLimitRPS
	rl.Burst = cfg.RateLimitBurst

	srv := apphttp.NewServer(":"+cfg.Port, apphttp.Deps{
		Controller:     cli.NewController(res, cfg),
		Groups:         services.NewGroupService(res.Store),
		Store:          res.Store,
		Auth:           authenticator(cfg),
		Logger:         logger,
		RateLimit:      rl,
		TrustedProxies: cfg.TrustedProxies,
		SecureCookies:  cfg.SecureCookies,
	})

	srv.ReadTimeout = 10 * time.Second
	srv.WriteTimeout = 10 * time.Second
	srv.IdleTimeout = 60 * time.Second
	srv.MaxHeaderBytes = 1 << 16 // 64KB

	ctx, done := cli.GracefulShutdown(logger, 30*time.Second, func(ctx context.Context) {
		if err := srv.Shutdown(ctx); err != nil {
			logger.Error("Server shutdown error", "error", err)
		}
		if err := res.Cleanup(); err != nil {
			logger.Error("Backend cleanup error", "error", err)
		}
	})

	logger.Info("Starting goalpact server",
		"port", cfg.Port,
		"backend", cfg.DataBackend,
		"auth_mode", cfg.AuthMode,
		"timezone", cfg.Timezone)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("Server error", "error", err, "port", cfg.Port)
		os.Exit(1)
	}

	cli.WaitForShutdown(ctx, done)
	logger.Info("Server stopped gracefully")
}

func authenticator(cfg *config.Config) auth.Authenticator {
	if cfg.AuthMode == "header" {
		return auth.HeaderAuthenticator{}
	}
	return auth.NewJWTAuthenticator(cfg.JWTSecret)
}

package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"goalpact/internal/backend"
	"goalpact/internal/cli"
	"goalpact/internal/config"
	"goalpact/internal/core"
	applog "goalpact/internal/log"
)

var logLevel string

var rootCmd = &cobra.Command{
	Use:   "goalctl",
	Short: "Operate the goalpact penalty engine",
	Long: `goalctl runs maintenance tasks against the configured goalpact store.

It reads the same environment and CONFIG_FILE as the server.

Examples:
  goalctl migrate
  goalctl reconcile --user 6f1c... --today 2024-06-10
  goalctl sweep
  goalctl group show 1b2e...
  goalctl notify backfill --group 1b2e...`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "warn", "Log level written to stderr (debug|info|warn|error)")
}

func main() {
	cli.LoadEnvFile()
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// app is what every subcommand needs: validated config plus an open backend.
type app struct {
	cfg    *config.Config
	logger *applog.Logger
	res    *backend.Result
}

func openApp(ctx context.Context) (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	// Admin commands never serve requests.
	if cfg.AuthMode == "jwt" && cfg.JWTSecret == "" {
		cfg.AuthMode = "header"
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	lvl, err := applog.ParseLevel(logLevel)
	if err != nil {
		return nil, err
	}
	logger := applog.New(applog.Config{
		Level:     lvl,
		Format:    cfg.LogFormat,
		Component: applog.ComponentApp,
		Output:    os.Stderr,
	})
	applog.SetDefault(logger)

	res, err := cli.OpenBackend(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	return &app{cfg: cfg, logger: logger, res: res}, nil
}

func (a *app) Close() {
	if err := a.res.Cleanup(); err != nil {
		a.logger.Error("Backend cleanup error", "error", err)
	}
}

// resolveToday parses --today or falls back to the current day in the
// configured zone.
func resolveToday(flag string, cfg *config.Config) (core.Date, error) {
	if flag == "" {
		return core.Today(time.Now(), cfg.Location()), nil
	}
	d, err := core.ParseDate(flag)
	if err != nil {
		return core.Date{}, fmt.Errorf("invalid --today %q: %w", flag, err)
	}
	return d, nil
}

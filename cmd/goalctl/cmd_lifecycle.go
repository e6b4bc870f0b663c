package main

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"goalpact/internal/cli"
	"goalpact/internal/core"
	"goalpact/internal/services"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Bring the store schema up to date",
	Long: `Open the configured store, which applies any pending embedded
migrations for sqlite and postgres. The memory backend has no schema.`,
	RunE: runMigrate,
}

var reconcileCmd = &cobra.Command{
	Use:   "reconcile",
	Short: "Apply due penalties for one user and print the dashboard",
	RunE:  runReconcile,
}

var sweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Reconcile every user with an overdue pending goal",
	RunE:  runSweep,
}

var (
	reconcileUser  string
	reconcileToday string
	sweepToday     string
)

func init() {
	rootCmd.AddCommand(migrateCmd)
	rootCmd.AddCommand(reconcileCmd)
	rootCmd.AddCommand(sweepCmd)

	reconcileCmd.Flags().StringVar(&reconcileUser, "user", "", "User id to reconcile (required)")
	reconcileCmd.Flags().StringVar(&reconcileToday, "today", "", "Override today as YYYY-MM-DD")
	_ = reconcileCmd.MarkFlagRequired("user")

	sweepCmd.Flags().StringVar(&sweepToday, "today", "", "Override today as YYYY-MM-DD")
}

func runMigrate(cmd *cobra.Command, _ []string) error {
	a, err := openApp(cmd.Context())
	if err != nil {
		return err
	}
	defer a.Close()

	if err := a.res.Store.Ping(cmd.Context()); err != nil {
		return fmt.Errorf("store not reachable: %w", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "schema up to date (%s)\n", a.cfg.DataBackend)
	return nil
}

func runReconcile(cmd *cobra.Command, _ []string) error {
	a, err := openApp(cmd.Context())
	if err != nil {
		return err
	}
	defer a.Close()

	today, err := resolveToday(reconcileToday, a.cfg)
	if err != nil {
		return err
	}

	report, err := cli.NewController(a.res, a.cfg).ReconcileAt(cmd.Context(), reconcileUser, today)
	if report.Goals != nil {
		if werr := printReport(cmd.OutOrStdout(), report); werr != nil {
			return werr
		}
	}
	if err != nil {
		return fmt.Errorf("reconcile %s: %w", reconcileUser, err)
	}
	return nil
}

func runSweep(cmd *cobra.Command, _ []string) error {
	a, err := openApp(cmd.Context())
	if err != nil {
		return err
	}
	defer a.Close()

	today, err := resolveToday(sweepToday, a.cfg)
	if err != nil {
		return err
	}

	redisClient, err := cli.NewRedisClient(cmd.Context(), a.cfg.RedisURL)
	if err != nil {
		a.logger.Warn("Redis unavailable, sweeping without the Redis lock", "error", err)
		redisClient = nil
	}
	if redisClient != nil {
		defer redisClient.Close()
	}

	sweeper := cli.NewSweeper(a.res, cli.NewController(a.res, a.cfg), redisClient, a.cfg)
	result, err := sweeper.Sweep(cmd.Context(), today)
	if werr := printSweep(cmd.OutOrStdout(), today, result); werr != nil {
		return werr
	}
	return err
}

func printReport(out io.Writer, report core.Report) error {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "User:\t%s\n", report.UserID)
	fmt.Fprintf(w, "Today:\t%s\n", report.Today)
	fmt.Fprintf(w, "Applied:\t%d\n", report.Applied)
	fmt.Fprintf(w, "Total owed:\t%d\n", report.Totals.TotalOwed)
	if report.Group != nil {
		fmt.Fprintf(w, "Group:\t%s (%s)\n", report.Group.Name, report.Group.ID)
		fmt.Fprintf(w, "Fund:\t%d\n", report.Totals.FundPoints)
	} else {
		fmt.Fprintf(w, "Group:\t-\n")
	}
	fmt.Fprintln(w)

	fmt.Fprintln(w, "ID\tTITLE\tDUE\tSTATUS\tDUENESS\tPOINTS")
	for _, g := range report.Goals {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%d\n",
			g.ID, g.Title, g.DueDate, g.Status, g.Due, g.PenaltyPoints)
	}
	return w.Flush()
}

func printSweep(out io.Writer, today core.Date, result services.SweepResult) error {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "Today:\t%s\n", today)
	if result.Skipped {
		fmt.Fprintf(w, "Skipped:\tlock held by another sweeper\n")
		return w.Flush()
	}
	fmt.Fprintf(w, "Users:\t%d\n", result.Users)
	fmt.Fprintf(w, "Applied:\t%d\n", result.Applied)
	return w.Flush()
}

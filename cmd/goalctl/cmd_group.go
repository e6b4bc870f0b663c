package main

import (
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"goalpact/internal/core"
	"goalpact/internal/services"
	"goalpact/internal/worker"
)

const defaultCreditLimit = 20

var groupCmd = &cobra.Command{
	Use:   "group",
	Short: "Inspect accountability groups",
}

var groupShowCmd = &cobra.Command{
	Use:   "show GROUP_ID",
	Short: "Print a group's fund, roster and latest penalty credits",
	Args:  cobra.ExactArgs(1),
	RunE:  runGroupShow,
}

var notifyCmd = &cobra.Command{
	Use:   "notify",
	Short: "Manage penalty notifications",
}

var notifyBackfillCmd = &cobra.Command{
	Use:   "backfill",
	Short: "Write notifications for penalty credits that were never delivered",
	Long: `Replay a group's latest penalty credits through the notifier. Members
that were already notified about a goal are skipped, so the command is safe
to repeat.`,
	RunE: runNotifyBackfill,
}

var (
	groupCreditLimit int
	backfillGroup    string
	backfillLimit    int
)

func init() {
	rootCmd.AddCommand(groupCmd)
	groupCmd.AddCommand(groupShowCmd)
	groupShowCmd.Flags().IntVar(&groupCreditLimit, "credits", defaultCreditLimit, "Number of latest credits to list")

	rootCmd.AddCommand(notifyCmd)
	notifyCmd.AddCommand(notifyBackfillCmd)
	notifyBackfillCmd.Flags().StringVar(&backfillGroup, "group", "", "Group id to backfill (required)")
	notifyBackfillCmd.Flags().IntVar(&backfillLimit, "limit", 200, "Number of latest credits to replay")
	_ = notifyBackfillCmd.MarkFlagRequired("group")
}

func runGroupShow(cmd *cobra.Command, args []string) error {
	a, err := openApp(cmd.Context())
	if err != nil {
		return err
	}
	defer a.Close()

	groupID := args[0]
	detail, err := services.NewGroupService(a.res.Store).Detail(cmd.Context(), groupID)
	if err != nil {
		return fmt.Errorf("group %s: %w", groupID, err)
	}
	credits, err := a.res.Store.ListCredits(cmd.Context(), groupID, groupCreditLimit)
	if err != nil {
		return fmt.Errorf("list credits: %w", err)
	}
	return printGroup(cmd.OutOrStdout(), detail, credits)
}

func runNotifyBackfill(cmd *cobra.Command, _ []string) error {
	if backfillLimit <= 0 {
		return fmt.Errorf("--limit must be positive, got %d", backfillLimit)
	}
	a, err := openApp(cmd.Context())
	if err != nil {
		return err
	}
	defer a.Close()

	written, err := worker.NewNotifier(a.res.Store).BackfillGroup(cmd.Context(), backfillGroup, backfillLimit)
	fmt.Fprintf(cmd.OutOrStdout(), "notifications written: %d\n", written)
	return err
}

func printGroup(out io.Writer, detail services.GroupDetail, credits []core.PenaltyCredit) error {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "Group:\t%s (%s)\n", detail.Group.Name, detail.Group.ID)
	fmt.Fprintf(w, "Fund:\t%d\n", detail.Group.FundPoints)
	fmt.Fprintf(w, "Created:\t%s\n", detail.Group.CreatedAt.UTC().Format(time.RFC3339))
	fmt.Fprintln(w)

	fmt.Fprintln(w, "MEMBER\tJOINED")
	for _, m := range detail.Members {
		fmt.Fprintf(w, "%s\t%s\n", m.UserID, m.JoinedAt.UTC().Format(time.RFC3339))
	}
	fmt.Fprintln(w)

	fmt.Fprintln(w, "GOAL\tUSER\tPOINTS\tAPPLIED")
	for _, c := range credits {
		fmt.Fprintf(w, "%s\t%s\t%d\t%s\n", c.GoalID, c.UserID, c.Points, c.AppliedAt.UTC().Format(time.RFC3339))
	}
	return w.Flush()
}

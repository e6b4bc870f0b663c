package main

import (
	"bytes"
	"context"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"goalpact/internal/config"
	"goalpact/internal/core"
	"goalpact/internal/services"
	"goalpact/internal/storage"
)

func seedSQLite(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "goalpact.db")
	repo, err := storage.NewSQLiteRepository(path)
	require.NoError(t, err)
	defer repo.Close()

	ctx := context.Background()
	_, err = repo.CreateGroup(ctx, core.Group{ID: "grp", Name: "Crew"}, "alice")
	require.NoError(t, err)
	_, err = repo.AddMember(ctx, "bob", "grp")
	require.NoError(t, err)
	_, err = repo.CreateGoal(ctx, core.Goal{
		ID: "g1", UserID: "alice", GroupID: "grp", Title: "Run",
		DueDate: core.NewDate(2024, 6, 1), PenaltyPoints: 10,
	})
	require.NoError(t, err)
	return path
}

func setEnv(t *testing.T, dbPath string) {
	t.Helper()
	for key, value := range map[string]string{
		"CONFIG_FILE":    "",
		"DATA_BACKEND":   "sqlite",
		"SQLITE_DB_PATH": dbPath,
		"AUTH_MODE":      "header",
		"AMQP_URL":       "",
		"REDIS_URL":      "",
		"TIMEZONE":       "UTC",
	} {
		t.Setenv(key, value)
	}
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	err := rootCmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestSweepThenGroupShow(t *testing.T) {
	setEnv(t, seedSQLite(t))

	out, err := execute(t, "sweep", "--today", "2024-06-10")
	require.NoError(t, err)
	assert.Contains(t, out, "Users:    1")
	assert.Contains(t, out, "Applied:  1")

	// A second sweep finds nothing left to penalize.
	out, err = execute(t, "sweep", "--today", "2024-06-10")
	require.NoError(t, err)
	assert.Contains(t, out, "Users:    0")

	out, err = execute(t, "group", "show", "grp")
	require.NoError(t, err)
	assert.Contains(t, out, "Crew (grp)")
	assert.Contains(t, out, "Fund:     10")
	assert.Contains(t, out, "bob")

	out, err = execute(t, "notify", "backfill", "--group", "grp")
	require.NoError(t, err)
	assert.Contains(t, out, "notifications written: 1")
}

func TestReconcilePrintsReport(t *testing.T) {
	setEnv(t, seedSQLite(t))

	out, err := execute(t, "reconcile", "--user", "alice", "--today", "2024-06-10")
	require.NoError(t, err)
	assert.Contains(t, out, "Applied:     1")
	assert.Contains(t, out, "Total owed:  10")
	assert.Contains(t, out, "missed")
}

func TestReconcileRejectsBadToday(t *testing.T) {
	setEnv(t, seedSQLite(t))

	_, err := execute(t, "reconcile", "--user", "alice", "--today", "10/06/2024")
	assert.ErrorIs(t, err, core.ErrInvalidDate)
}

func TestPrintSweepSkipped(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, printSweep(&buf, core.NewDate(2024, 6, 10), services.SweepResult{Skipped: true}))
	assert.Contains(t, buf.String(), "lock held by another sweeper")
	assert.NotContains(t, buf.String(), "Users")
}

func TestPrintReportWithoutGroup(t *testing.T) {
	var buf bytes.Buffer
	report := core.Report{
		UserID: "carol",
		Today:  core.NewDate(2024, 6, 10),
		Goals: []core.GoalView{{
			Goal:   core.Goal{ID: "g9", Title: "Read", DueDate: core.NewDate(2024, 6, 10), PenaltyPoints: 3},
			Status: core.StatusPending,
			Due:    core.DueToday,
		}},
	}
	require.NoError(t, printReport(&buf, report))

	lines := strings.Split(buf.String(), "\n")
	assert.Contains(t, lines, "Group:       -")
	assert.Contains(t, buf.String(), "due_today")
}

func TestResolveToday(t *testing.T) {
	cfg := &config.Config{Timezone: "UTC"}

	d, err := resolveToday("2024-02-29", cfg)
	require.NoError(t, err)
	assert.Equal(t, core.NewDate(2024, 2, 29), d)

	d, err = resolveToday("", cfg)
	require.NoError(t, err)
	assert.Equal(t, core.Today(time.Now(), time.UTC), d)
}

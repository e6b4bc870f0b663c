package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"goalpact/internal/core"
	"goalpact/internal/storage"
)

// Lock keeps two sweepers from scanning at the same time.
type Lock interface {
	Acquire(ctx context.Context) (bool, error)
	Release(ctx context.Context) error
}

// SweepResult summarizes one sweep.
type SweepResult struct {
	Skipped bool // another process held the lock
	Users   int
	Applied int
}

// Sweeper reconciles every user who owns a pending goal past its due date,
// so penalties land even for users who never open the app.
type Sweeper struct {
	goals      storage.GoalStore
	controller *Controller
	lock       Lock
}

// NewSweeper builds a sweeper. lock may be nil for single-instance deployments.
func NewSweeper(goals storage.GoalStore, controller *Controller, lock Lock) *Sweeper {
	return &Sweeper{goals: goals, controller: controller, lock: lock}
}

// Sweep runs one pass for the given day. Per-user failures are joined and do
// not stop the pass.
func (s *Sweeper) Sweep(ctx context.Context, today core.Date) (SweepResult, error) {
	if s.lock != nil {
		ok, err := s.lock.Acquire(ctx)
		if err != nil {
			return SweepResult{}, fmt.Errorf("acquire sweep lock: %w", err)
		}
		if !ok {
			slog.InfoContext(ctx, "Sweep skipped, lock held elsewhere")
			return SweepResult{Skipped: true}, nil
		}
		defer func() {
			if err := s.lock.Release(context.WithoutCancel(ctx)); err != nil {
				slog.WarnContext(ctx, "Failed to release sweep lock", "error", err)
			}
		}()
	}

	users, err := s.goals.ListUsersWithOverdueGoals(ctx, today)
	if err != nil {
		return SweepResult{}, fmt.Errorf("list overdue owners: %w", err)
	}

	res := SweepResult{Users: len(users)}
	var errs []error
	for _, userID := range users {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}
		report, err := s.controller.ReconcileAt(ctx, userID, today)
		res.Applied += report.Applied
		if err != nil {
			errs = append(errs, fmt.Errorf("user %s: %w", userID, err))
		}
	}

	slog.InfoContext(ctx, "Penalty sweep complete",
		"today", today.String(),
		"users", res.Users,
		"applied", res.Applied,
		"errors", len(errs))

	return res, errors.Join(errs...)
}

// Run sweeps once immediately, then every interval until ctx is done.
func (s *Sweeper) Run(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		return fmt.Errorf("sweep interval must be positive, got %s", interval)
	}

	s.sweepNow(ctx)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			slog.InfoContext(ctx, "Penalty sweeper stopped", "reason", ctx.Err())
			return nil
		case <-ticker.C:
			s.sweepNow(ctx)
		}
	}
}

func (s *Sweeper) sweepNow(ctx context.Context) {
	if _, err := s.Sweep(ctx, s.controller.Today()); err != nil {
		slog.ErrorContext(ctx, "Penalty sweep failed", "error", err)
	}
}

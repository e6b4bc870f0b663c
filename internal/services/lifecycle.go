package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"goalpact/internal/core"
	"goalpact/internal/metrics"
	"goalpact/internal/storage"
)

const defaultConcurrency = 4

// Controller runs the goal lifecycle for one user at a time: creation,
// completion and the reconciliation pass that applies due penalties.
type Controller struct {
	store       storage.Store
	applicator  *Applicator
	aggregator  *Aggregator
	loc         *time.Location
	now         func() time.Time
	concurrency int
}

type ControllerOption func(*Controller)

// WithClock replaces the wall clock used to fix "today".
func WithClock(now func() time.Time) ControllerOption {
	return func(c *Controller) { c.now = now }
}

// WithLocation sets the zone whose midnight starts a new day.
func WithLocation(loc *time.Location) ControllerOption {
	return func(c *Controller) {
		if loc != nil {
			c.loc = loc
		}
	}
}

// WithConcurrency bounds how many goals one pass penalizes in parallel.
func WithConcurrency(n int) ControllerOption {
	return func(c *Controller) {
		if n > 0 {
			c.concurrency = n
		}
	}
}

func NewController(store storage.Store, applicator *Applicator, opts ...ControllerOption) *Controller {
	c := &Controller{
		store:       store,
		applicator:  applicator,
		aggregator:  NewAggregator(store, store),
		loc:         time.UTC,
		now:         time.Now,
		concurrency: defaultConcurrency,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Today is the current calendar day in the controller's location.
func (c *Controller) Today() core.Date {
	return core.Today(c.now(), c.loc)
}

// Reconcile applies every due penalty for userID and reports fresh totals.
func (c *Controller) Reconcile(ctx context.Context, userID string) (core.Report, error) {
	return c.ReconcileAt(ctx, userID, c.Today())
}

// ReconcileAt is Reconcile with "today" fixed by the caller. Goals are penalized
// independently: a failure on one is collected and returned joined with the
// others while the remaining goals are still processed. The report is filled in
// whenever the goals could be read back, even if some penalties failed.
func (c *Controller) ReconcileAt(ctx context.Context, userID string, today core.Date) (core.Report, error) {
	start := time.Now()
	report, err := c.reconcile(ctx, userID, today)
	metrics.RecordReconciliation(err, time.Since(start))
	return report, err
}

func (c *Controller) reconcile(ctx context.Context, userID string, today core.Date) (core.Report, error) {
	goals, err := c.store.ListGoalsByUser(ctx, userID)
	if err != nil {
		return core.Report{}, fmt.Errorf("list goals: %w", err)
	}

	var (
		mu      sync.Mutex
		errs    []error
		applied int
	)
	g := new(errgroup.Group)
	g.SetLimit(c.concurrency)
	for _, goal := range goals {
		if !NeedsPenalty(goal, today) {
			continue
		}
		id := goal.ID
		g.Go(func() error {
			outcome, err := c.applicator.Apply(ctx, id, today)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				errs = append(errs, fmt.Errorf("goal %s: %w", id, err))
				return nil
			}
			if outcome == core.Applied {
				applied++
			}
			return nil
		})
	}
	_ = g.Wait()

	report := core.Report{UserID: userID, Today: today, Applied: applied}

	goals, err = c.store.ListGoalsByUser(ctx, userID)
	if err != nil {
		return report, errors.Join(append(errs, fmt.Errorf("reload goals: %w", err))...)
	}
	report.Goals = make([]core.GoalView, 0, len(goals))
	for _, goal := range goals {
		report.Goals = append(report.Goals, core.GoalView{
			Goal:   goal,
			Status: goal.Status(),
			Due:    Classify(goal, today),
		})
	}
	report.Totals.TotalOwed = TotalOwed(goals)

	group, err := c.aggregator.CurrentGroup(ctx, userID)
	if err != nil {
		errs = append(errs, err)
	} else if group != nil {
		report.Group = group
		report.Totals.FundPoints = group.FundPoints
	}

	if applied > 0 || len(errs) > 0 {
		slog.InfoContext(ctx, "Reconciliation complete",
			"user_id", userID,
			"today", today.String(),
			"goals", len(goals),
			"applied", applied,
			"errors", len(errs))
	}
	return report, errors.Join(errs...)
}

// CreateGoal validates input and stores a pending goal in the user's group.
func (c *Controller) CreateGoal(ctx context.Context, userID string, in core.NewGoal) (core.Goal, error) {
	if err := in.Validate(); err != nil {
		return core.Goal{}, err
	}

	m, err := c.store.MembershipForUser(ctx, userID)
	if errors.Is(err, core.ErrNotFound) {
		return core.Goal{}, fmt.Errorf("%w: %w", core.ErrValidation, core.ErrNoMembership)
	}
	if err != nil {
		return core.Goal{}, fmt.Errorf("get membership: %w", err)
	}

	goal, err := c.store.CreateGoal(ctx, core.Goal{
		ID:            uuid.NewString(),
		UserID:        userID,
		GroupID:       m.GroupID,
		Title:         strings.TrimSpace(in.Title),
		Frequency:     strings.TrimSpace(in.Frequency),
		DueDate:       in.DueDate,
		PenaltyPoints: in.PenaltyPoints,
		CreatedAt:     c.now().UTC(),
	})
	if err != nil {
		return core.Goal{}, fmt.Errorf("create goal: %w", err)
	}

	slog.InfoContext(ctx, "Goal created",
		"goal_id", goal.ID,
		"user_id", userID,
		"group_id", goal.GroupID,
		"due_date", goal.DueDate.String())
	return goal, nil
}

// CompleteGoal marks a pending goal done. A goal already completed or missed
// is rejected with core.ErrGoalSettled and the penalty flag is never touched.
func (c *Controller) CompleteGoal(ctx context.Context, userID, goalID string) error {
	if err := c.store.CompleteGoal(ctx, goalID, userID); err != nil {
		return fmt.Errorf("complete goal: %w", err)
	}
	slog.InfoContext(ctx, "Goal completed", "goal_id", goalID, "user_id", userID)
	return nil
}

// Credits lists the newest penalty credits of the user's group.
func (c *Controller) Credits(ctx context.Context, userID string, limit int) ([]core.PenaltyCredit, error) {
	m, err := c.store.MembershipForUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("get membership: %w", err)
	}
	credits, err := c.store.ListCredits(ctx, m.GroupID, limit)
	if err != nil {
		return nil, fmt.Errorf("list credits: %w", err)
	}
	return credits, nil
}

package services

import (
	"context"
	"errors"
	"fmt"

	"goalpact/internal/core"
	"goalpact/internal/storage"
)

// TotalOwed sums penalty points over the penalized goals in goals.
func TotalOwed(goals []core.Goal) int64 {
	var total int64
	for _, g := range goals {
		if g.Penalized {
			total += g.PenaltyPoints
		}
	}
	return total
}

// Aggregator reads accrual totals. The user's figure is recomputed from goals
// every time; the group's is the stored fund, never rebuilt from history.
type Aggregator struct {
	goals  storage.GoalStore
	groups storage.GroupStore
}

func NewAggregator(goals storage.GoalStore, groups storage.GroupStore) *Aggregator {
	return &Aggregator{goals: goals, groups: groups}
}

func (a *Aggregator) TotalOwed(ctx context.Context, userID string) (int64, error) {
	goals, err := a.goals.ListGoalsByUser(ctx, userID)
	if err != nil {
		return 0, fmt.Errorf("list goals: %w", err)
	}
	return TotalOwed(goals), nil
}

func (a *Aggregator) FundBalance(ctx context.Context, groupID string) (int64, error) {
	g, err := a.groups.GetGroup(ctx, groupID)
	if err != nil {
		return 0, fmt.Errorf("get group: %w", err)
	}
	return g.FundPoints, nil
}

// CurrentGroup returns the user's group, or nil when the user has none.
func (a *Aggregator) CurrentGroup(ctx context.Context, userID string) (*core.Group, error) {
	m, err := a.groups.MembershipForUser(ctx, userID)
	if errors.Is(err, core.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get membership: %w", err)
	}
	g, err := a.groups.GetGroup(ctx, m.GroupID)
	if err != nil {
		return nil, fmt.Errorf("get group: %w", err)
	}
	return &g, nil
}

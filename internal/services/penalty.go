package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"goalpact/internal/amqp"
	"goalpact/internal/core"
	applog "goalpact/internal/log"
	"goalpact/internal/metrics"
	"goalpact/internal/storage"
)

// PenaltyPublisher announces applied penalties to other processes.
type PenaltyPublisher interface {
	PublishPenaltyApplied(ctx context.Context, msg amqp.PenaltyAppliedMessage) error
}

// penaltyStore is what the Applicator needs from the entity store.
type penaltyStore interface {
	storage.PenaltyStore
	GetGoal(ctx context.Context, id string) (core.Goal, error)
}

// Applicator marks overdue goals missed through the store's conditional update.
// Repeated and concurrent calls for one goal are safe: the store re-checks the
// predicate and at most one call ever reports Applied.
type Applicator struct {
	store     penaltyStore
	publisher PenaltyPublisher
	now       func() time.Time
}

func NewApplicator(store penaltyStore, publisher PenaltyPublisher) *Applicator {
	return &Applicator{
		store:     store,
		publisher: publisher,
		now:       time.Now,
	}
}

// Apply penalizes goalID if it is still pending and due before today.
// AlreadySettled and NotDue are outcomes, not errors.
func (a *Applicator) Apply(ctx context.Context, goalID string, today core.Date) (core.PenaltyOutcome, error) {
	outcome, err := a.store.ApplyPenalty(ctx, goalID, today)
	if err != nil {
		return "", fmt.Errorf("apply penalty %s: %w", goalID, err)
	}
	if outcome != core.Applied {
		metrics.RecordPenaltyOutcome(string(outcome), 0)
		slog.DebugContext(ctx, "Penalty not applied", "goal_id", goalID, "outcome", outcome)
		return outcome, nil
	}

	// The penalty is committed; everything below is best effort.
	g, err := a.store.GetGoal(ctx, goalID)
	if err != nil {
		metrics.RecordPenaltyOutcome(string(outcome), 0)
		slog.ErrorContext(ctx, "Failed to load penalized goal", "goal_id", goalID, "error", err)
		return outcome, nil
	}
	metrics.RecordPenaltyOutcome(string(outcome), g.PenaltyPoints)
	slog.InfoContext(ctx, "Penalty applied", applog.NewFields().
		WithOperation(applog.OpPenalize).
		WithGoal(g.ID, g.GroupID, g.PenaltyPoints).
		WithUser(g.UserID).
		WithOutcome(string(outcome)).
		ToSlice()...)
	a.publish(ctx, g)
	return outcome, nil
}

func (a *Applicator) publish(ctx context.Context, g core.Goal) {
	if a.publisher == nil {
		return
	}

	msg := amqp.PenaltyAppliedMessage{
		GoalID:    g.ID,
		GroupID:   g.GroupID,
		UserID:    g.UserID,
		Title:     g.Title,
		Points:    g.PenaltyPoints,
		AppliedAt: a.now().UTC(),
	}
	if err := a.publisher.PublishPenaltyApplied(ctx, msg); err != nil {
		slog.ErrorContext(ctx, "Failed to publish penalty message",
			"goal_id", g.ID,
			"group_id", g.GroupID,
			"error", err)
	}
}

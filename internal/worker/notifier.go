package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"goalpact/internal/amqp"
	"goalpact/internal/cache"
	"goalpact/internal/core"
	applog "goalpact/internal/log"
	"goalpact/internal/storage"
)

const (
	rosterCacheSize = 256
	rosterCacheTTL  = time.Minute
)

type notifierStore interface {
	storage.GroupStore
	storage.PenaltyStore
	storage.NotificationStore
	GetGoal(ctx context.Context, id string) (core.Goal, error)
}

// roster is a group's member ids as of loadedAt.
type roster struct {
	members  []string
	loadedAt time.Time
}

// Notifier fans a penalty out to the other members of the penalized user's group.
type Notifier struct {
	store   notifierStore
	rosters *cache.Loading[roster]
	cleaner *cache.LRUCache[roster]
	now     func() time.Time
}

func NewNotifier(store notifierStore) *Notifier {
	lru := cache.NewLRUCache[roster](rosterCacheSize, rosterCacheTTL)
	n := &Notifier{store: store, cleaner: lru, now: time.Now}
	n.rosters = cache.NewLoading[roster](lru, n.loadRoster)
	return n
}

// Cache exposes the roster cache so a cache.Manager can sweep it.
func (n *Notifier) Cache() cache.Cleaner {
	return n.cleaner
}

func (n *Notifier) loadRoster(ctx context.Context, groupID string) (roster, error) {
	loadedAt := n.now()
	members, err := n.store.ListMembers(ctx, groupID)
	if err != nil {
		return roster{}, fmt.Errorf("list members: %w", err)
	}
	ids := make([]string, 0, len(members))
	for _, m := range members {
		ids = append(ids, m.UserID)
	}
	return roster{members: ids, loadedAt: loadedAt}, nil
}

// rosterAsOf returns the group's members, reloading a cached roster that
// predates appliedAt. Members join through the API process, so this worker
// never sees the join itself.
func (n *Notifier) rosterAsOf(ctx context.Context, groupID string, appliedAt time.Time) ([]string, error) {
	r, err := n.rosters.Get(ctx, groupID)
	if err != nil {
		return nil, err
	}
	if r.loadedAt.Before(appliedAt) {
		n.rosters.Invalidate(groupID)
		if r, err = n.rosters.Get(ctx, groupID); err != nil {
			return nil, err
		}
	}
	return r.members, nil
}

// HandlePenaltyApplied writes one notification per other group member.
// Redelivery is harmless: the store drops duplicate (user, goal) pairs.
func (n *Notifier) HandlePenaltyApplied(ctx context.Context, msg *amqp.PenaltyAppliedMessage) error {
	slog.InfoContext(ctx, "Processing penalty message", applog.NewFields().
		WithOperation(applog.OpNotify).
		WithGoal(msg.GoalID, msg.GroupID, msg.Points).
		WithUser(msg.UserID).
		ToSlice()...)

	written, err := n.notify(ctx, msg.GoalID, msg.GroupID, msg.UserID, msg.Title, msg.Points, msg.AppliedAt)
	if err != nil {
		return err
	}
	slog.InfoContext(ctx, "Penalty notifications written",
		"goal_id", msg.GoalID,
		"written", written)
	return nil
}

func (n *Notifier) notify(ctx context.Context, goalID, groupID, actorID, title string, points int64, appliedAt time.Time) (int, error) {
	members, err := n.rosterAsOf(ctx, groupID, appliedAt)
	if err != nil {
		return 0, fmt.Errorf("load roster %s: %w", groupID, err)
	}

	var (
		written int
		errs    []error
	)
	for _, userID := range members {
		if userID == actorID {
			continue
		}
		ok, err := n.store.AddNotification(ctx, core.Notification{
			ID:        uuid.NewString(),
			UserID:    userID,
			GoalID:    goalID,
			GroupID:   groupID,
			ActorID:   actorID,
			Title:     title,
			Points:    points,
			CreatedAt: n.now().UTC(),
		})
		if err != nil {
			errs = append(errs, fmt.Errorf("notify %s: %w", userID, err))
			continue
		}
		if ok {
			written++
		}
	}
	if len(errs) > 0 {
		// a failed member may have joined after the roster was cached
		n.rosters.Invalidate(groupID)
	}
	return written, errors.Join(errs...)
}

// BackfillGroup replays the group's newest credits as notifications. It
// recovers fan-outs lost while the broker or this worker was down.
func (n *Notifier) BackfillGroup(ctx context.Context, groupID string, limit int) (int, error) {
	credits, err := n.store.ListCredits(ctx, groupID, limit)
	if err != nil {
		return 0, fmt.Errorf("list credits: %w", err)
	}
	if len(credits) == 0 {
		slog.InfoContext(ctx, "No credits to backfill", "group_id", groupID)
		return 0, nil
	}

	total := 0
	for _, c := range credits {
		goal, err := n.store.GetGoal(ctx, c.GoalID)
		if err != nil {
			slog.ErrorContext(ctx, "Failed to load goal for backfill", "goal_id", c.GoalID, "error", err)
			continue
		}
		written, err := n.notify(ctx, c.GoalID, c.GroupID, c.UserID, goal.Title, c.Points, c.AppliedAt)
		if err != nil {
			slog.ErrorContext(ctx, "Failed to backfill notifications", "goal_id", c.GoalID, "error", err)
		}
		total += written
	}

	slog.InfoContext(ctx, "Backfill complete",
		"group_id", groupID,
		"credits", len(credits),
		"written", total)
	return total, nil
}

package storage

import (
	"context"

	"goalpact/internal/core"
)

// Ports implemented by every entity store backend.
type (
	GoalStore interface {
		CreateGoal(ctx context.Context, g core.Goal) (core.Goal, error)
		GetGoal(ctx context.Context, id string) (core.Goal, error)
		// ListGoalsByUser returns the user's goals ordered by ascending due date.
		ListGoalsByUser(ctx context.Context, userID string) ([]core.Goal, error)
		// CompleteGoal sets completed=true only while the goal is pending and owned by userID.
		// It returns core.ErrGoalSettled when the goal already reached a terminal state.
		CompleteGoal(ctx context.Context, id, userID string) error
		// ListUsersWithOverdueGoals returns owners of pending goals due before today.
		ListUsersWithOverdueGoals(ctx context.Context, today core.Date) ([]string, error)
	}

	GroupStore interface {
		// CreateGroup inserts a group with zero fund and the owner's membership as one unit.
		CreateGroup(ctx context.Context, g core.Group, ownerID string) (core.Group, error)
		GetGroup(ctx context.Context, id string) (core.Group, error)
		// AddMember returns core.ErrAlreadyMember if the user belongs to any group.
		AddMember(ctx context.Context, userID, groupID string) (core.Membership, error)
		// MembershipForUser returns core.ErrNotFound when the user has no group.
		MembershipForUser(ctx context.Context, userID string) (core.Membership, error)
		ListMembers(ctx context.Context, groupID string) ([]core.Membership, error)
	}

	PenaltyStore interface {
		// ApplyPenalty is the single conditional update that marks a goal penalized,
		// credits its group's fund and appends the ledger row, all or nothing.
		// The predicate is completed=false AND penalized=false AND due_date < today.
		ApplyPenalty(ctx context.Context, goalID string, today core.Date) (core.PenaltyOutcome, error)
		ListCredits(ctx context.Context, groupID string, limit int) ([]core.PenaltyCredit, error)
	}

	ProfileStore interface {
		UpsertProfile(ctx context.Context, p core.Profile) error
		GetProfile(ctx context.Context, id string) (core.Profile, error)
	}

	NotificationStore interface {
		// AddNotification ignores a duplicate (user, goal) pair and reports whether a row was written.
		AddNotification(ctx context.Context, n core.Notification) (bool, error)
		ListNotifications(ctx context.Context, userID string, limit int) ([]core.Notification, error)
	}

	Store interface {
		GoalStore
		GroupStore
		PenaltyStore
		ProfileStore
		NotificationStore
		Ping(ctx context.Context) error
		Close() error
	}
)

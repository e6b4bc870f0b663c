// Package storagetest holds the behaviour every storage.Store backend must share.
package storagetest

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"goalpact/internal/core"
	"goalpact/internal/storage"
)

// Factory returns an empty store. The suite closes it when the test ends.
type Factory func(t *testing.T) storage.Store

var today = core.NewDate(2024, 6, 10)

// Run executes the shared store contract against the backend built by newStore.
func Run(t *testing.T, newStore Factory) {
	tests := []struct {
		name string
		fn   func(t *testing.T, s storage.Store)
	}{
		{"GoalRoundTrip", testGoalRoundTrip},
		{"GoalsOrderedByDueDate", testGoalsOrderedByDueDate},
		{"CompleteGoal", testCompleteGoal},
		{"ApplyPenaltyOutcomes", testApplyPenaltyOutcomes},
		{"ApplyPenaltyIsIdempotent", testApplyPenaltyIsIdempotent},
		{"CompleteAfterPenaltyRejected", testCompleteAfterPenalty},
		{"ConcurrentApplyCreditsOnce", testConcurrentApplyCreditsOnce},
		{"ConcurrentGoalsSumIntoFund", testConcurrentGoalsSumIntoFund},
		{"CompleteRacesPenalty", testCompleteRacesPenalty},
		{"OverdueOwners", testOverdueOwners},
		{"Groups", testGroups},
		{"Profiles", testProfiles},
		{"NotificationsDeduplicated", testNotificationsDeduplicated},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newStore(t)
			t.Cleanup(func() { _ = s.Close() })
			tt.fn(t, s)
		})
	}
}

func mustGroup(t *testing.T, s storage.Store, owner string) core.Group {
	t.Helper()
	g, err := s.CreateGroup(context.Background(), core.Group{ID: uuid.NewString(), Name: "Crew"}, owner)
	if err != nil {
		t.Fatalf("create group: %v", err)
	}
	return g
}

func mustGoal(t *testing.T, s storage.Store, owner, groupID string, due core.Date, points int64) core.Goal {
	t.Helper()
	g, err := s.CreateGoal(context.Background(), core.Goal{
		ID:            uuid.NewString(),
		UserID:        owner,
		GroupID:       groupID,
		Title:         "Run 5k",
		Frequency:     "weekly",
		DueDate:       due,
		PenaltyPoints: points,
	})
	if err != nil {
		t.Fatalf("create goal: %v", err)
	}
	return g
}

func fund(t *testing.T, s storage.Store, groupID string) int64 {
	t.Helper()
	g, err := s.GetGroup(context.Background(), groupID)
	if err != nil {
		t.Fatalf("get group: %v", err)
	}
	return g.FundPoints
}

func testGoalRoundTrip(t *testing.T, s storage.Store) {
	ctx := context.Background()
	grp := mustGroup(t, s, "alice")
	created := mustGoal(t, s, "alice", grp.ID, today.AddDays(3), 10)

	got, err := s.GetGoal(ctx, created.ID)
	if err != nil {
		t.Fatalf("get goal: %v", err)
	}
	if got.Title != "Run 5k" || got.Frequency != "weekly" || got.PenaltyPoints != 10 {
		t.Fatalf("unexpected goal: %+v", got)
	}
	if !got.DueDate.Equal(today.AddDays(3)) {
		t.Fatalf("due date = %s, want %s", got.DueDate, today.AddDays(3))
	}
	if got.Status() != core.StatusPending {
		t.Fatalf("status = %s, want pending", got.Status())
	}

	if _, err := s.GetGoal(ctx, "missing"); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("get missing goal err = %v, want ErrNotFound", err)
	}
}

func testGoalsOrderedByDueDate(t *testing.T, s storage.Store) {
	grp := mustGroup(t, s, "alice")
	late := mustGoal(t, s, "alice", grp.ID, today.AddDays(5), 1)
	early := mustGoal(t, s, "alice", grp.ID, today.AddDays(-5), 1)
	mid := mustGoal(t, s, "alice", grp.ID, today, 1)

	goals, err := s.ListGoalsByUser(context.Background(), "alice")
	if err != nil {
		t.Fatalf("list goals: %v", err)
	}
	want := []string{early.ID, mid.ID, late.ID}
	if len(goals) != len(want) {
		t.Fatalf("got %d goals, want %d", len(goals), len(want))
	}
	for i, g := range goals {
		if g.ID != want[i] {
			t.Errorf("goal[%d] = %s, want %s", i, g.ID, want[i])
		}
	}

	others, err := s.ListGoalsByUser(context.Background(), "bob")
	if err != nil || len(others) != 0 {
		t.Fatalf("expected no goals for bob, got %v err=%v", others, err)
	}
}

func testCompleteGoal(t *testing.T, s storage.Store) {
	ctx := context.Background()
	grp := mustGroup(t, s, "alice")
	g := mustGoal(t, s, "alice", grp.ID, today.AddDays(-2), 10)

	if err := s.CompleteGoal(ctx, g.ID, "bob"); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("complete by non-owner err = %v, want ErrNotFound", err)
	}
	if err := s.CompleteGoal(ctx, g.ID, "alice"); err != nil {
		t.Fatalf("complete goal: %v", err)
	}
	if err := s.CompleteGoal(ctx, g.ID, "alice"); !errors.Is(err, core.ErrGoalSettled) {
		t.Fatalf("second complete err = %v, want ErrGoalSettled", err)
	}

	got, _ := s.GetGoal(ctx, g.ID)
	if got.Status() != core.StatusCompleted {
		t.Fatalf("status = %s, want completed", got.Status())
	}

	// A completed overdue goal is never penalized.
	outcome, err := s.ApplyPenalty(ctx, g.ID, today)
	if err != nil || outcome != core.AlreadySettled {
		t.Fatalf("apply on completed = %s, %v; want already_settled", outcome, err)
	}
	if f := fund(t, s, grp.ID); f != 0 {
		t.Fatalf("fund = %d, want 0", f)
	}
}

func testApplyPenaltyOutcomes(t *testing.T, s storage.Store) {
	ctx := context.Background()
	grp := mustGroup(t, s, "alice")

	tests := []struct {
		name string
		due  core.Date
		want core.PenaltyOutcome
	}{
		{"due yesterday", today.AddDays(-1), core.Applied},
		{"due today", today, core.NotDue},
		{"due tomorrow", today.AddDays(1), core.NotDue},
	}
	var credited int64
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := mustGoal(t, s, "alice", grp.ID, tt.due, 7)
			got, err := s.ApplyPenalty(ctx, g.ID, today)
			if err != nil {
				t.Fatalf("apply penalty: %v", err)
			}
			if got != tt.want {
				t.Fatalf("outcome = %s, want %s", got, tt.want)
			}
			if got == core.Applied {
				credited += g.PenaltyPoints
			}
		})
	}
	if f := fund(t, s, grp.ID); f != credited {
		t.Fatalf("fund = %d, want %d", f, credited)
	}

	if _, err := s.ApplyPenalty(ctx, "missing", today); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("apply on missing goal err = %v, want ErrNotFound", err)
	}
}

func testApplyPenaltyIsIdempotent(t *testing.T, s storage.Store) {
	ctx := context.Background()
	grp := mustGroup(t, s, "alice")
	g := mustGoal(t, s, "alice", grp.ID, today.AddDays(-3), 25)

	first, err := s.ApplyPenalty(ctx, g.ID, today)
	if err != nil || first != core.Applied {
		t.Fatalf("first apply = %s, %v", first, err)
	}
	for i := 0; i < 3; i++ {
		again, err := s.ApplyPenalty(ctx, g.ID, today.AddDays(i))
		if err != nil || again != core.AlreadySettled {
			t.Fatalf("repeat apply = %s, %v; want already_settled", again, err)
		}
	}
	if f := fund(t, s, grp.ID); f != 25 {
		t.Fatalf("fund = %d, want 25", f)
	}

	credits, err := s.ListCredits(ctx, grp.ID, 10)
	if err != nil {
		t.Fatalf("list credits: %v", err)
	}
	if len(credits) != 1 || credits[0].GoalID != g.ID || credits[0].Points != 25 || credits[0].UserID != "alice" {
		t.Fatalf("unexpected credits: %+v", credits)
	}

	got, _ := s.GetGoal(ctx, g.ID)
	if got.Status() != core.StatusMissed {
		t.Fatalf("status = %s, want missed", got.Status())
	}
}

func testCompleteAfterPenalty(t *testing.T, s storage.Store) {
	ctx := context.Background()
	grp := mustGroup(t, s, "alice")
	g := mustGoal(t, s, "alice", grp.ID, today.AddDays(-1), 5)

	if _, err := s.ApplyPenalty(ctx, g.ID, today); err != nil {
		t.Fatalf("apply penalty: %v", err)
	}
	if err := s.CompleteGoal(ctx, g.ID, "alice"); !errors.Is(err, core.ErrGoalSettled) {
		t.Fatalf("complete after penalty err = %v, want ErrGoalSettled", err)
	}
	got, _ := s.GetGoal(ctx, g.ID)
	if got.Completed || !got.Penalized {
		t.Fatalf("unexpected flags: completed=%v penalized=%v", got.Completed, got.Penalized)
	}
}

func testConcurrentApplyCreditsOnce(t *testing.T, s storage.Store) {
	ctx := context.Background()
	grp := mustGroup(t, s, "alice")
	g := mustGoal(t, s, "alice", grp.ID, today.AddDays(-1), 40)

	const workers = 16
	outcomes := make(chan core.PenaltyOutcome, workers)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			o, err := s.ApplyPenalty(ctx, g.ID, today)
			if err != nil {
				t.Errorf("apply penalty: %v", err)
				return
			}
			outcomes <- o
		}()
	}
	wg.Wait()
	close(outcomes)

	applied := 0
	for o := range outcomes {
		if o == core.Applied {
			applied++
		}
	}
	if applied != 1 {
		t.Fatalf("applied %d times, want exactly 1", applied)
	}
	if f := fund(t, s, grp.ID); f != 40 {
		t.Fatalf("fund = %d, want 40", f)
	}
}

func testConcurrentGoalsSumIntoFund(t *testing.T, s storage.Store) {
	ctx := context.Background()
	grp := mustGroup(t, s, "alice")
	if _, err := s.AddMember(ctx, "bob", grp.ID); err != nil {
		t.Fatalf("add member: %v", err)
	}

	var goals []core.Goal
	var want int64
	for i := 1; i <= 10; i++ {
		owner := "alice"
		if i%2 == 0 {
			owner = "bob"
		}
		g := mustGoal(t, s, owner, grp.ID, today.AddDays(-i), int64(i))
		goals = append(goals, g)
		want += int64(i)
	}

	var wg sync.WaitGroup
	for _, g := range goals {
		for r := 0; r < 2; r++ {
			wg.Add(1)
			go func(id string) {
				defer wg.Done()
				if _, err := s.ApplyPenalty(ctx, id, today); err != nil {
					t.Errorf("apply penalty: %v", err)
				}
			}(g.ID)
		}
	}
	wg.Wait()

	if f := fund(t, s, grp.ID); f != want {
		t.Fatalf("fund = %d, want %d", f, want)
	}
}

func testCompleteRacesPenalty(t *testing.T, s storage.Store) {
	ctx := context.Background()
	grp := mustGroup(t, s, "alice")

	for i := 0; i < 8; i++ {
		g := mustGoal(t, s, "alice", grp.ID, today.AddDays(-1), 3)
		before := fund(t, s, grp.ID)

		var (
			wg          sync.WaitGroup
			completeErr error
			outcome     core.PenaltyOutcome
			applyErr    error
		)
		wg.Add(2)
		go func() {
			defer wg.Done()
			completeErr = s.CompleteGoal(ctx, g.ID, "alice")
		}()
		go func() {
			defer wg.Done()
			outcome, applyErr = s.ApplyPenalty(ctx, g.ID, today)
		}()
		wg.Wait()

		if applyErr != nil {
			t.Fatalf("apply penalty: %v", applyErr)
		}
		got, _ := s.GetGoal(ctx, g.ID)
		if got.Completed && got.Penalized {
			t.Fatalf("goal both completed and penalized")
		}
		switch {
		case completeErr == nil:
			if outcome == core.Applied || got.Penalized {
				t.Fatalf("completion won but penalty outcome = %s", outcome)
			}
			if f := fund(t, s, grp.ID); f != before {
				t.Fatalf("fund moved after completion won: %d -> %d", before, f)
			}
		case errors.Is(completeErr, core.ErrGoalSettled):
			if outcome != core.Applied || !got.Penalized {
				t.Fatalf("penalty won but outcome = %s", outcome)
			}
			if f := fund(t, s, grp.ID); f != before+3 {
				t.Fatalf("fund = %d, want %d", f, before+3)
			}
		default:
			t.Fatalf("complete goal: %v", completeErr)
		}
	}
}

func testOverdueOwners(t *testing.T, s storage.Store) {
	ctx := context.Background()
	grp := mustGroup(t, s, "alice")
	for _, u := range []string{"bob", "carol", "dave"} {
		if _, err := s.AddMember(ctx, u, grp.ID); err != nil {
			t.Fatalf("add member %s: %v", u, err)
		}
	}
	mustGoal(t, s, "alice", grp.ID, today.AddDays(-1), 1)
	mustGoal(t, s, "alice", grp.ID, today.AddDays(-4), 1)
	mustGoal(t, s, "bob", grp.ID, today, 1)
	done := mustGoal(t, s, "carol", grp.ID, today.AddDays(-2), 1)
	if err := s.CompleteGoal(ctx, done.ID, "carol"); err != nil {
		t.Fatalf("complete: %v", err)
	}
	missed := mustGoal(t, s, "dave", grp.ID, today.AddDays(-2), 1)
	if _, err := s.ApplyPenalty(ctx, missed.ID, today); err != nil {
		t.Fatalf("apply: %v", err)
	}

	users, err := s.ListUsersWithOverdueGoals(ctx, today)
	if err != nil {
		t.Fatalf("list overdue owners: %v", err)
	}
	if len(users) != 1 || users[0] != "alice" {
		t.Fatalf("overdue owners = %v, want [alice]", users)
	}
}

func testGroups(t *testing.T, s storage.Store) {
	ctx := context.Background()
	grp := mustGroup(t, s, "alice")
	if grp.FundPoints != 0 {
		t.Fatalf("new group fund = %d, want 0", grp.FundPoints)
	}

	m, err := s.MembershipForUser(ctx, "alice")
	if err != nil || m.GroupID != grp.ID {
		t.Fatalf("owner membership = %+v, %v", m, err)
	}
	if _, err := s.MembershipForUser(ctx, "bob"); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("membership for outsider err = %v, want ErrNotFound", err)
	}

	if _, err := s.AddMember(ctx, "bob", grp.ID); err != nil {
		t.Fatalf("add member: %v", err)
	}
	if _, err := s.AddMember(ctx, "bob", grp.ID); !errors.Is(err, core.ErrAlreadyMember) {
		t.Fatalf("rejoin err = %v, want ErrAlreadyMember", err)
	}
	if _, err := s.AddMember(ctx, "carol", "no-such-group"); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("join missing group err = %v, want ErrNotFound", err)
	}
	if _, err := s.CreateGroup(ctx, core.Group{ID: uuid.NewString(), Name: "Other"}, "bob"); !errors.Is(err, core.ErrAlreadyMember) {
		t.Fatalf("create group while member err = %v, want ErrAlreadyMember", err)
	}

	members, err := s.ListMembers(ctx, grp.ID)
	if err != nil {
		t.Fatalf("list members: %v", err)
	}
	if len(members) != 2 {
		t.Fatalf("members = %+v, want 2", members)
	}

	if _, err := s.GetGroup(ctx, "no-such-group"); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("get missing group err = %v, want ErrNotFound", err)
	}
}

func testProfiles(t *testing.T, s storage.Store) {
	ctx := context.Background()
	if _, err := s.GetProfile(ctx, "alice"); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("missing profile err = %v, want ErrNotFound", err)
	}
	if err := s.UpsertProfile(ctx, core.Profile{ID: "alice", Username: "al"}); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	if err := s.UpsertProfile(ctx, core.Profile{ID: "alice", Username: "alice"}); err != nil {
		t.Fatalf("upsert again: %v", err)
	}
	p, err := s.GetProfile(ctx, "alice")
	if err != nil || p.Username != "alice" {
		t.Fatalf("profile = %+v, %v", p, err)
	}
}

func testNotificationsDeduplicated(t *testing.T, s storage.Store) {
	ctx := context.Background()
	grp := mustGroup(t, s, "alice")
	g := mustGoal(t, s, "alice", grp.ID, today.AddDays(-1), 9)

	n := core.Notification{
		ID:        uuid.NewString(),
		UserID:    "bob",
		GoalID:    g.ID,
		GroupID:   grp.ID,
		ActorID:   "alice",
		Title:     g.Title,
		Points:    9,
		CreatedAt: time.Date(2024, 6, 10, 8, 0, 0, 0, time.UTC),
	}
	written, err := s.AddNotification(ctx, n)
	if err != nil || !written {
		t.Fatalf("first notification written=%v err=%v", written, err)
	}
	n.ID = uuid.NewString()
	written, err = s.AddNotification(ctx, n)
	if err != nil || written {
		t.Fatalf("duplicate notification written=%v err=%v", written, err)
	}

	list, err := s.ListNotifications(ctx, "bob", 10)
	if err != nil {
		t.Fatalf("list notifications: %v", err)
	}
	if len(list) != 1 || list[0].Points != 9 || list[0].ActorID != "alice" {
		t.Fatalf("unexpected notifications: %+v", list)
	}
	if list, _ := s.ListNotifications(ctx, "alice", 10); len(list) != 0 {
		t.Fatalf("alice should have no notifications, got %+v", list)
	}
}

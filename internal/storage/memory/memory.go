package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"goalpact/internal/core"
	"goalpact/internal/storage"
)

// Store keeps every entity in process memory. One mutex guards all maps so the
// penalty check-and-set and the fund increment happen as a single step.
type Store struct {
	mu            sync.Mutex
	goals         map[string]core.Goal
	groups        map[string]core.Group
	members       map[string]core.Membership // keyed by user id
	profiles      map[string]core.Profile
	credits       []core.PenaltyCredit
	notifications []core.Notification
	notified      map[[2]string]struct{} // (user id, goal id)
	now           func() time.Time
}

var _ storage.Store = (*Store)(nil)

func New() *Store {
	return &Store{
		goals:    map[string]core.Goal{},
		groups:   map[string]core.Group{},
		members:  map[string]core.Membership{},
		profiles: map[string]core.Profile{},
		notified: map[[2]string]struct{}{},
		now:      func() time.Time { return time.Now().UTC() },
	}
}

func (s *Store) Ping(context.Context) error { return nil }
func (s *Store) Close() error               { return nil }

// CreateGoal stores the goal as pending.
func (s *Store) CreateGoal(_ context.Context, g core.Goal) (core.Goal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.groups[g.GroupID]; !ok {
		return core.Goal{}, fmt.Errorf("create goal: group %s: %w", g.GroupID, core.ErrNotFound)
	}
	if _, ok := s.goals[g.ID]; ok {
		return core.Goal{}, fmt.Errorf("create goal: duplicate id %s: %w", g.ID, core.ErrStoreUnavailable)
	}
	if g.CreatedAt.IsZero() {
		g.CreatedAt = s.now()
	}
	g.Completed, g.Penalized = false, false
	s.goals[g.ID] = g
	return g, nil
}

func (s *Store) GetGoal(_ context.Context, id string) (core.Goal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	g, ok := s.goals[id]
	if !ok {
		return core.Goal{}, fmt.Errorf("get goal %s: %w", id, core.ErrNotFound)
	}
	return g, nil
}

func (s *Store) ListGoalsByUser(_ context.Context, userID string) ([]core.Goal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []core.Goal
	for _, g := range s.goals {
		if g.UserID == userID {
			out = append(out, g)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].DueDate.Equal(out[j].DueDate) {
			return out[i].DueDate.Before(out[j].DueDate)
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

func (s *Store) CompleteGoal(_ context.Context, id, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	g, ok := s.goals[id]
	if !ok || g.UserID != userID {
		return fmt.Errorf("complete goal %s: %w", id, core.ErrNotFound)
	}
	if !g.Pending() {
		return fmt.Errorf("complete goal %s: %w", id, core.ErrGoalSettled)
	}
	g.Completed = true
	s.goals[id] = g
	return nil
}

func (s *Store) ListUsersWithOverdueGoals(_ context.Context, today core.Date) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	seen := map[string]struct{}{}
	for _, g := range s.goals {
		if g.Pending() && g.DueDate.Before(today) {
			seen[g.UserID] = struct{}{}
		}
	}
	out := make([]string, 0, len(seen))
	for id := range seen {
		out = append(out, id)
	}
	sort.Strings(out)
	return out, nil
}

func (s *Store) ApplyPenalty(_ context.Context, goalID string, today core.Date) (core.PenaltyOutcome, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	g, ok := s.goals[goalID]
	if !ok {
		return "", fmt.Errorf("apply penalty %s: %w", goalID, core.ErrNotFound)
	}
	if !g.Pending() || !g.DueDate.Before(today) {
		return storage.SettledOutcome(g, today), nil
	}
	grp, ok := s.groups[g.GroupID]
	if !ok {
		return "", fmt.Errorf("credit group fund %s: %w", g.GroupID, core.ErrNotFound)
	}

	g.Penalized = true
	grp.FundPoints += g.PenaltyPoints
	s.goals[goalID] = g
	s.groups[grp.ID] = grp
	s.credits = append(s.credits, core.PenaltyCredit{
		GoalID:    g.ID,
		GroupID:   g.GroupID,
		UserID:    g.UserID,
		Points:    g.PenaltyPoints,
		AppliedAt: s.now(),
	})
	return core.Applied, nil
}

// ListCredits returns the newest credits first.
func (s *Store) ListCredits(_ context.Context, groupID string, limit int) ([]core.PenaltyCredit, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []core.PenaltyCredit
	for i := len(s.credits) - 1; i >= 0 && len(out) < limit; i-- {
		if s.credits[i].GroupID == groupID {
			out = append(out, s.credits[i])
		}
	}
	return out, nil
}

func (s *Store) CreateGroup(_ context.Context, g core.Group, ownerID string) (core.Group, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.members[ownerID]; ok {
		return core.Group{}, fmt.Errorf("create group: %w", core.ErrAlreadyMember)
	}
	if g.CreatedAt.IsZero() {
		g.CreatedAt = s.now()
	}
	g.FundPoints = 0
	s.groups[g.ID] = g
	s.members[ownerID] = core.Membership{UserID: ownerID, GroupID: g.ID, JoinedAt: g.CreatedAt}
	return g, nil
}

func (s *Store) GetGroup(_ context.Context, id string) (core.Group, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	g, ok := s.groups[id]
	if !ok {
		return core.Group{}, fmt.Errorf("get group %s: %w", id, core.ErrNotFound)
	}
	return g, nil
}

func (s *Store) AddMember(_ context.Context, userID, groupID string) (core.Membership, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.groups[groupID]; !ok {
		return core.Membership{}, fmt.Errorf("find group %s: %w", groupID, core.ErrNotFound)
	}
	if _, ok := s.members[userID]; ok {
		return core.Membership{}, fmt.Errorf("join group: %w", core.ErrAlreadyMember)
	}
	m := core.Membership{UserID: userID, GroupID: groupID, JoinedAt: s.now()}
	s.members[userID] = m
	return m, nil
}

func (s *Store) MembershipForUser(_ context.Context, userID string) (core.Membership, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.members[userID]
	if !ok {
		return core.Membership{}, fmt.Errorf("get membership: %w", core.ErrNotFound)
	}
	return m, nil
}

func (s *Store) ListMembers(_ context.Context, groupID string) ([]core.Membership, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []core.Membership
	for _, m := range s.members {
		if m.GroupID == groupID {
			out = append(out, m)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].JoinedAt.Equal(out[j].JoinedAt) {
			return out[i].JoinedAt.Before(out[j].JoinedAt)
		}
		return out[i].UserID < out[j].UserID
	})
	return out, nil
}

func (s *Store) UpsertProfile(_ context.Context, p core.Profile) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.profiles[p.ID] = p
	return nil
}

func (s *Store) GetProfile(_ context.Context, id string) (core.Profile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.profiles[id]
	if !ok {
		return core.Profile{}, fmt.Errorf("get profile %s: %w", id, core.ErrNotFound)
	}
	return p, nil
}

func (s *Store) AddNotification(_ context.Context, n core.Notification) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := [2]string{n.UserID, n.GoalID}
	if _, dup := s.notified[key]; dup {
		return false, nil
	}
	if n.CreatedAt.IsZero() {
		n.CreatedAt = s.now()
	}
	s.notified[key] = struct{}{}
	s.notifications = append(s.notifications, n)
	return true, nil
}

// ListNotifications returns the newest notifications first.
func (s *Store) ListNotifications(_ context.Context, userID string, limit int) ([]core.Notification, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []core.Notification
	for i := len(s.notifications) - 1; i >= 0 && len(out) < limit; i-- {
		if s.notifications[i].UserID == userID {
			out = append(out, s.notifications[i])
		}
	}
	return out, nil
}

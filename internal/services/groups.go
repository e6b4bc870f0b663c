package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"goalpact/internal/core"
	"goalpact/internal/storage"
)

const maxUsernameLength = 50

var ErrEmptyUsername = errors.New("empty username")

// GroupService manages groups, memberships, profiles and the notification feed.
type GroupService struct {
	store storage.Store
	now   func() time.Time
}

func NewGroupService(store storage.Store) *GroupService {
	return &GroupService{store: store, now: time.Now}
}

// CreateGroup creates a group with an empty fund and makes owner its first member.
func (s *GroupService) CreateGroup(ctx context.Context, ownerID, name string) (core.Group, error) {
	name, err := core.ValidateGroupName(name)
	if err != nil {
		return core.Group{}, err
	}

	g, err := s.store.CreateGroup(ctx, core.Group{
		ID:        uuid.NewString(),
		Name:      name,
		CreatedAt: s.now().UTC(),
	}, ownerID)
	if err != nil {
		return core.Group{}, fmt.Errorf("create group: %w", err)
	}

	slog.InfoContext(ctx, "Group created", "group_id", g.ID, "owner_id", ownerID, "name", g.Name)
	return g, nil
}

// JoinGroup adds userID to groupID. Any user may join any group by id.
func (s *GroupService) JoinGroup(ctx context.Context, userID, groupID string) (core.Membership, error) {
	groupID = strings.TrimSpace(groupID)
	if groupID == "" {
		return core.Membership{}, fmt.Errorf("%w: empty group id", core.ErrValidation)
	}
	m, err := s.store.AddMember(ctx, userID, groupID)
	if err != nil {
		return core.Membership{}, fmt.Errorf("join group: %w", err)
	}
	slog.InfoContext(ctx, "User joined group", "user_id", userID, "group_id", groupID)
	return m, nil
}

// GroupDetail is a group with its member list.
type GroupDetail struct {
	Group   core.Group
	Members []core.Membership
}

func (s *GroupService) Detail(ctx context.Context, groupID string) (GroupDetail, error) {
	g, err := s.store.GetGroup(ctx, groupID)
	if err != nil {
		return GroupDetail{}, fmt.Errorf("get group: %w", err)
	}
	members, err := s.store.ListMembers(ctx, groupID)
	if err != nil {
		return GroupDetail{}, fmt.Errorf("list members: %w", err)
	}
	return GroupDetail{Group: g, Members: members}, nil
}

// UpsertProfile stores the display name shown to other group members.
func (s *GroupService) UpsertProfile(ctx context.Context, userID, username string) (core.Profile, error) {
	username = strings.TrimSpace(username)
	if username == "" {
		return core.Profile{}, fmt.Errorf("%w: %w", core.ErrValidation, ErrEmptyUsername)
	}
	if len(username) > maxUsernameLength {
		return core.Profile{}, fmt.Errorf("%w: username too long (max %d characters)", core.ErrValidation, maxUsernameLength)
	}
	p := core.Profile{ID: userID, Username: username}
	if err := s.store.UpsertProfile(ctx, p); err != nil {
		return core.Profile{}, fmt.Errorf("upsert profile: %w", err)
	}
	return p, nil
}

func (s *GroupService) Notifications(ctx context.Context, userID string, limit int) ([]core.Notification, error) {
	out, err := s.store.ListNotifications(ctx, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("list notifications: %w", err)
	}
	return out, nil
}

package services

import (
	"context"
	"errors"
	"strings"
	"testing"

	"goalpact/internal/core"
)

func TestGroupService_CreateAndJoin(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	if f.group.FundPoints != 0 || f.group.Name != "Crew" {
		t.Fatalf("unexpected group: %+v", f.group)
	}
	if _, err := f.groups.CreateGroup(ctx, "alice", "Second"); !errors.Is(err, core.ErrAlreadyMember) {
		t.Fatalf("err = %v, want ErrAlreadyMember", err)
	}
	if _, err := f.groups.CreateGroup(ctx, "bob", "   "); !errors.Is(err, core.ErrValidation) {
		t.Fatalf("err = %v, want ErrValidation", err)
	}

	if _, err := f.groups.JoinGroup(ctx, "bob", " "+f.group.ID+" "); err != nil {
		t.Fatalf("join: %v", err)
	}
	if _, err := f.groups.JoinGroup(ctx, "bob", f.group.ID); !errors.Is(err, core.ErrAlreadyMember) {
		t.Fatalf("err = %v, want ErrAlreadyMember", err)
	}
	if _, err := f.groups.JoinGroup(ctx, "carol", "nope"); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
	if _, err := f.groups.JoinGroup(ctx, "carol", ""); !errors.Is(err, core.ErrValidation) {
		t.Fatalf("err = %v, want ErrValidation", err)
	}

	detail, err := f.groups.Detail(ctx, f.group.ID)
	if err != nil || len(detail.Members) != 2 {
		t.Fatalf("detail = %+v, %v", detail, err)
	}
}

func TestGroupService_UpsertProfile(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	if _, err := f.groups.UpsertProfile(ctx, "alice", " "); !errors.Is(err, ErrEmptyUsername) {
		t.Fatalf("err = %v, want ErrEmptyUsername", err)
	}
	if _, err := f.groups.UpsertProfile(ctx, "alice", strings.Repeat("a", maxUsernameLength+1)); !errors.Is(err, core.ErrValidation) {
		t.Fatalf("err = %v, want ErrValidation", err)
	}
	p, err := f.groups.UpsertProfile(ctx, "alice", " ally ")
	if err != nil || p.Username != "ally" {
		t.Fatalf("profile = %+v, %v", p, err)
	}
	stored, _ := f.store.GetProfile(ctx, "alice")
	if stored.Username != "ally" {
		t.Fatalf("stored username = %q", stored.Username)
	}
}

package core

import (
	"errors"
	"strings"
	"testing"
	"time"
)

func TestDateValidate(t *testing.T) {
	cases := []struct {
		d  Date
		ok bool
	}{
		{NewDate(2025, 1, 1), true},
		{NewDate(2025, 12, 31), true},
		{Date{Time: time.Time{}}, false}, // zero time
	}
	for i, tc := range cases {
		err := tc.d.Validate()
		if tc.ok && err != nil {
			t.Fatalf("case %d expected ok, got %v", i, err)
		}
		if !tc.ok && err == nil {
			t.Fatalf("case %d expected error", i)
		}
	}
}

func TestParseDate(t *testing.T) {
	d, err := ParseDate(" 2025-03-09 ")
	if err != nil {
		t.Fatalf("expected ok, got %v", err)
	}
	if !d.Equal(NewDate(2025, 3, 9)) {
		t.Fatalf("unexpected date %v", d)
	}
	if d.String() != "2025-03-09" {
		t.Fatalf("unexpected string %q", d.String())
	}
	for _, bad := range []string{"", "2025-13-01", "09/03/2025", "tomorrow"} {
		if _, err := ParseDate(bad); !errors.Is(err, ErrInvalidDate) {
			t.Fatalf("%q expected ErrInvalidDate, got %v", bad, err)
		}
	}
}

func TestTodayTruncatesInLocation(t *testing.T) {
	// 23:30 UTC on March 1st is already March 2nd in Rome.
	now := time.Date(2025, 3, 1, 23, 30, 0, 0, time.UTC)
	if got := Today(now, nil); !got.Equal(NewDate(2025, 3, 1)) {
		t.Fatalf("utc today = %v", got)
	}
	rome := time.FixedZone("CET", 60*60)
	if got := Today(now, rome); !got.Equal(NewDate(2025, 3, 2)) {
		t.Fatalf("rome today = %v", got)
	}
	if h, m, s := Today(now, rome).Clock(); h != 0 || m != 0 || s != 0 {
		t.Fatalf("expected midnight, got %02d:%02d:%02d", h, m, s)
	}
}

func TestGoalStatus(t *testing.T) {
	cases := []struct {
		g    Goal
		want GoalStatus
	}{
		{Goal{}, StatusPending},
		{Goal{Completed: true}, StatusCompleted},
		{Goal{Penalized: true}, StatusMissed},
	}
	for i, tc := range cases {
		if got := tc.g.Status(); got != tc.want {
			t.Fatalf("case %d: got %s want %s", i, got, tc.want)
		}
		if tc.g.Pending() != (tc.want == StatusPending) {
			t.Fatalf("case %d: pending mismatch", i)
		}
	}
}

func TestNewGoalValidate(t *testing.T) {
	good := NewGoal{
		Title:         "Run 5k",
		Frequency:     "weekly",
		DueDate:       NewDate(2025, 1, 1),
		PenaltyPoints: 5,
	}
	if err := good.Validate(); err != nil {
		t.Fatalf("expected ok, got %v", err)
	}

	bads := []NewGoal{
		{Title: "", Frequency: "weekly", DueDate: NewDate(2025, 1, 1), PenaltyPoints: 5},
		{Title: strings.Repeat("x", 201), Frequency: "weekly", DueDate: NewDate(2025, 1, 1), PenaltyPoints: 5},
		{Title: "a", Frequency: " ", DueDate: NewDate(2025, 1, 1), PenaltyPoints: 5},
		{Title: "a", Frequency: "daily", DueDate: Date{}, PenaltyPoints: 5},
		{Title: "a", Frequency: "daily", DueDate: NewDate(2025, 1, 1), PenaltyPoints: 0},
		{Title: "a", Frequency: "daily", DueDate: NewDate(2025, 1, 1), PenaltyPoints: -2},
	}
	for i, g := range bads {
		err := g.Validate()
		if err == nil {
			t.Fatalf("case %d expected error", i)
		}
		if !errors.Is(err, ErrValidation) {
			t.Fatalf("case %d expected ErrValidation, got %v", i, err)
		}
	}
}

func TestValidateGroupName(t *testing.T) {
	name, err := ValidateGroupName("  Night Owls ")
	if err != nil || name != "Night Owls" {
		t.Fatalf("unexpected result %q %v", name, err)
	}
	if _, err := ValidateGroupName("   "); !errors.Is(err, ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

package core

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

const dateLayout = "2006-01-02"

const (
	StatusPending   GoalStatus = "pending"
	StatusCompleted GoalStatus = "completed"
	StatusMissed    GoalStatus = "missed"
)

const (
	OnTime   DueStatus = "on_time"
	DueToday DueStatus = "due_today"
	Overdue  DueStatus = "overdue"
)

const (
	// Applied means this call marked the goal penalized and credited the fund.
	Applied PenaltyOutcome = "applied"
	// AlreadySettled means the goal was completed or penalized before the update landed.
	AlreadySettled PenaltyOutcome = "already_settled"
	// NotDue means the goal is still pending but not past its due date.
	NotDue PenaltyOutcome = "not_due"
)

const maxTitleLength = 200

type (
	GoalStatus     string
	DueStatus      string
	PenaltyOutcome string

	// Date is a calendar day. The time component is always midnight UTC.
	Date struct {
		time.Time
	}

	Profile struct {
		ID       string
		Username string
	}

	Group struct {
		ID         string
		Name       string
		FundPoints int64
		CreatedAt  time.Time
	}

	Membership struct {
		UserID   string
		GroupID  string
		JoinedAt time.Time
	}

	Goal struct {
		ID            string
		UserID        string
		GroupID       string
		Title         string
		Frequency     string // free-form label, not scheduled
		DueDate       Date
		PenaltyPoints int64
		Completed     bool
		Penalized     bool
		CreatedAt     time.Time
	}

	// NewGoal is the user-supplied part of a goal; owner and group come from the session.
	NewGoal struct {
		Title         string
		Frequency     string
		DueDate       Date
		PenaltyPoints int64
	}

	// PenaltyCredit is the ledger row written together with a fund increment.
	PenaltyCredit struct {
		GoalID    string
		GroupID   string
		UserID    string
		Points    int64
		AppliedAt time.Time
	}

	Notification struct {
		ID        string
		UserID    string
		GoalID    string
		GroupID   string
		ActorID   string
		Title     string
		Points    int64
		CreatedAt time.Time
	}
)

var (
	ErrEmptyTitle     = errors.New("empty title")
	ErrTitleTooLong   = fmt.Errorf("title too long (max %d characters)", maxTitleLength)
	ErrEmptyFrequency = errors.New("empty frequency")
	ErrInvalidPoints  = errors.New("penalty points must be a positive integer")
	ErrInvalidDate    = errors.New("invalid date")
	ErrEmptyGroupName = errors.New("empty group name")
)

// NewDate creates a new Date from year, month, day
func NewDate(year, month, day int) Date {
	return Date{Time: time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)}
}

// ParseDate parses a YYYY-MM-DD string.
func ParseDate(s string) (Date, error) {
	t, err := time.Parse(dateLayout, strings.TrimSpace(s))
	if err != nil {
		return Date{}, fmt.Errorf("%w: %q", ErrInvalidDate, s)
	}
	return Date{Time: t}, nil
}

// Today truncates now to its calendar day in loc. A nil loc means UTC.
func Today(now time.Time, loc *time.Location) Date {
	if loc == nil {
		loc = time.UTC
	}
	y, m, d := now.In(loc).Date()
	return NewDate(y, int(m), d)
}

func (d Date) String() string {
	if d.IsZero() {
		return ""
	}
	return d.Format(dateLayout)
}

// Before reports whether d is an earlier calendar day than other.
func (d Date) Before(other Date) bool {
	return d.Time.Before(other.Time)
}

// Equal reports whether both dates name the same calendar day.
func (d Date) Equal(other Date) bool {
	return d.Time.Equal(other.Time)
}

// AddDays returns the date n days later (earlier when n is negative).
func (d Date) AddDays(n int) Date {
	return Date{Time: d.Time.AddDate(0, 0, n)}
}

func (d Date) Validate() error {
	if d.IsZero() {
		return fmt.Errorf("%w: date cannot be zero", ErrInvalidDate)
	}
	return nil
}

// Status derives the lifecycle state from the two terminal flags.
func (g Goal) Status() GoalStatus {
	switch {
	case g.Completed:
		return StatusCompleted
	case g.Penalized:
		return StatusMissed
	default:
		return StatusPending
	}
}

// Pending reports whether neither terminal transition has happened yet.
func (g Goal) Pending() bool {
	return !g.Completed && !g.Penalized
}

func (n NewGoal) Validate() error {
	title := strings.TrimSpace(n.Title)
	if title == "" {
		return fmt.Errorf("%w: %w", ErrValidation, ErrEmptyTitle)
	}
	if len(title) > maxTitleLength {
		return fmt.Errorf("%w: %w", ErrValidation, ErrTitleTooLong)
	}
	if strings.TrimSpace(n.Frequency) == "" {
		return fmt.Errorf("%w: %w", ErrValidation, ErrEmptyFrequency)
	}
	if err := n.DueDate.Validate(); err != nil {
		return fmt.Errorf("%w: %w", ErrValidation, err)
	}
	if n.PenaltyPoints <= 0 || n.PenaltyPoints > maxPenaltyPoints {
		return fmt.Errorf("%w: %w", ErrValidation, ErrInvalidPoints)
	}
	return nil
}

// ValidateGroupName trims and checks a group name.
func ValidateGroupName(name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", fmt.Errorf("%w: %w", ErrValidation, ErrEmptyGroupName)
	}
	if len(name) > maxTitleLength {
		return "", fmt.Errorf("%w: group name too long (max %d characters)", ErrValidation, maxTitleLength)
	}
	return name, nil
}

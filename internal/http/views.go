package http

import (
	"time"

	"goalpact/internal/core"
	"goalpact/internal/services"
)

type goalView struct {
	ID            string    `json:"id"`
	Title         string    `json:"title"`
	Frequency     string    `json:"frequency"`
	DueDate       string    `json:"due_date"`
	PenaltyPoints int64     `json:"penalty_points"`
	Completed     bool      `json:"completed"`
	Penalized     bool      `json:"penalized"`
	Status        string    `json:"status"`
	Due           string    `json:"due_status,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
}

type groupView struct {
	ID         string    `json:"id"`
	Name       string    `json:"name"`
	FundPoints int64     `json:"fund_points"`
	CreatedAt  time.Time `json:"created_at"`
}

type dashboardView struct {
	UserID     string     `json:"user_id"`
	Today      string     `json:"today"`
	Goals      []goalView `json:"goals"`
	TotalOwed  int64      `json:"total_owed"`
	Group      *groupView `json:"group,omitempty"`
	FundPoints int64      `json:"fund_points"`
	Applied    int        `json:"applied"`
	// Warnings lists goals whose penalty could not be settled this pass.
	Warnings []string `json:"warnings,omitempty"`
}

type membershipView struct {
	UserID   string    `json:"user_id"`
	GroupID  string    `json:"group_id"`
	JoinedAt time.Time `json:"joined_at"`
}

type groupDetailView struct {
	groupView
	Members []membershipView `json:"members"`
}

type creditView struct {
	GoalID    string    `json:"goal_id"`
	UserID    string    `json:"user_id"`
	Points    int64     `json:"points"`
	AppliedAt time.Time `json:"applied_at"`
}

type notificationView struct {
	ID        string    `json:"id"`
	GoalID    string    `json:"goal_id"`
	GroupID   string    `json:"group_id"`
	ActorID   string    `json:"actor_id"`
	Title     string    `json:"title"`
	Points    int64     `json:"points"`
	CreatedAt time.Time `json:"created_at"`
}

type profileView struct {
	ID       string `json:"id"`
	Username string `json:"username"`
}

func newGoalView(g core.Goal, due core.DueStatus) goalView {
	return goalView{
		ID:            g.ID,
		Title:         g.Title,
		Frequency:     g.Frequency,
		DueDate:       g.DueDate.String(),
		PenaltyPoints: g.PenaltyPoints,
		Completed:     g.Completed,
		Penalized:     g.Penalized,
		Status:        string(g.Status()),
		Due:           string(due),
		CreatedAt:     g.CreatedAt,
	}
}

func newGroupView(g core.Group) groupView {
	return groupView{ID: g.ID, Name: g.Name, FundPoints: g.FundPoints, CreatedAt: g.CreatedAt}
}

func newDashboardView(r core.Report, warnings []string) dashboardView {
	v := dashboardView{
		UserID:     r.UserID,
		Today:      r.Today.String(),
		Goals:      make([]goalView, 0, len(r.Goals)),
		TotalOwed:  r.Totals.TotalOwed,
		FundPoints: r.Totals.FundPoints,
		Applied:    r.Applied,
		Warnings:   warnings,
	}
	for _, g := range r.Goals {
		v.Goals = append(v.Goals, newGoalView(g.Goal, g.Due))
	}
	if r.Group != nil {
		gv := newGroupView(*r.Group)
		v.Group = &gv
	}
	return v
}

func newMembershipView(m core.Membership) membershipView {
	return membershipView{UserID: m.UserID, GroupID: m.GroupID, JoinedAt: m.JoinedAt}
}

func newGroupDetailView(d services.GroupDetail) groupDetailView {
	v := groupDetailView{groupView: newGroupView(d.Group), Members: make([]membershipView, 0, len(d.Members))}
	for _, m := range d.Members {
		v.Members = append(v.Members, newMembershipView(m))
	}
	return v
}

func newCreditViews(credits []core.PenaltyCredit) []creditView {
	out := make([]creditView, 0, len(credits))
	for _, c := range credits {
		out = append(out, creditView{GoalID: c.GoalID, UserID: c.UserID, Points: c.Points, AppliedAt: c.AppliedAt})
	}
	return out
}

func newNotificationViews(ns []core.Notification) []notificationView {
	out := make([]notificationView, 0, len(ns))
	for _, n := range ns {
		out = append(out, notificationView{
			ID: n.ID, GoalID: n.GoalID, GroupID: n.GroupID, ActorID: n.ActorID,
			Title: n.Title, Points: n.Points, CreatedAt: n.CreatedAt,
		})
	}
	return out
}

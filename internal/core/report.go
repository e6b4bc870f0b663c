package core

// GoalView pairs a goal with its lifecycle and due status as of a reconciliation.
type GoalView struct {
	Goal
	Status GoalStatus
	Due    DueStatus
}

// Totals is the aggregated accrual figure for one user.
type Totals struct {
	TotalOwed  int64
	FundPoints int64 // zero when the user has no group
}

// Report is the result of one reconciliation pass for a user.
type Report struct {
	UserID  string
	Today   Date
	Goals   []GoalView
	Group   *Group
	Totals  Totals
	Applied int // penalties this pass applied
}

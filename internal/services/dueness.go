// Package services holds the goal lifecycle: due-date evaluation, penalty
// application, accrual totals and the reconciliation controller.
package services

import "goalpact/internal/core"

// Classify places a goal relative to today at calendar-day granularity.
// Only Overdue makes a goal eligible for a penalty. It never reads a clock.
func Classify(g core.Goal, today core.Date) core.DueStatus {
	switch {
	case g.DueDate.Before(today):
		return core.Overdue
	case g.DueDate.Equal(today):
		return core.DueToday
	default:
		return core.OnTime
	}
}

// NeedsPenalty reports whether reconciliation should try to penalize g.
func NeedsPenalty(g core.Goal, today core.Date) bool {
	return g.Pending() && Classify(g, today) == core.Overdue
}

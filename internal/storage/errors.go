package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"goalpact/internal/core"
)

// storeErr maps driver errors onto the core sentinels. Missing rows become
// core.ErrNotFound, context cancellation passes through untouched and
// everything else is reported as core.ErrStoreUnavailable.
func storeErr(op string, err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, sql.ErrNoRows):
		return fmt.Errorf("%s: %w", op, core.ErrNotFound)
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return fmt.Errorf("%s: %w", op, err)
	default:
		return fmt.Errorf("%s: %w: %w", op, core.ErrStoreUnavailable, err)
	}
}

// SettledOutcome classifies a goal whose penalty update matched no row.
func SettledOutcome(g core.Goal, today core.Date) core.PenaltyOutcome {
	if !g.Pending() {
		return core.AlreadySettled
	}
	if g.DueDate.Before(today) {
		// Still pending and overdue means a concurrent writer is mid-flight;
		// report it as settled since this call did not apply it.
		return core.AlreadySettled
	}
	return core.NotDue
}

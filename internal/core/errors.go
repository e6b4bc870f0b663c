package core

import "errors"

// Sentinel errors shared by the store implementations and the services.
var (
	ErrNotFound         = errors.New("not found")
	ErrStoreUnavailable = errors.New("store unavailable")
	ErrValidation       = errors.New("validation failed")
	ErrNoMembership     = errors.New("join or create a group first")
	ErrAlreadyMember    = errors.New("user already belongs to a group")
	ErrGoalSettled      = errors.New("goal is already completed or missed")
)

// IsRetryable reports whether err is a transient store failure worth retrying.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrStoreUnavailable)
}

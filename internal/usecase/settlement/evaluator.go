package settlement

import (
	"time"

	"github.com/errandlink/errandlink-backend/internal/domain"
)

// DefaultDisputeWindowHours is the minimum time a completed task must sit
// untouched before its reward is released.
const DefaultDisputeWindowHours = 24

// IsEligible reports whether a task qualifies for settlement at the given
// instant. A task is eligible iff it is completed, carries no dispute
// record, and the dispute window has fully elapsed since its last update.
// The window is anchored on UpdatedAt, so any later mutation of the task
// resets the clock.
//
// Pure: reads only the passed-in snapshot, no I/O.
func IsEligible(task *domain.Task, now time.Time, disputeWindowHours int) bool {
	if task == nil {
		return false
	}
	if task.Status != domain.TaskStatusCompleted {
		return false
	}
	if task.HasDispute() {
		return false
	}
	window := time.Duration(disputeWindowHours) * time.Hour
	return now.Sub(task.UpdatedAt) >= window
}

// HoursRemaining returns the number of hours until the task becomes
// eligible for settlement, clamped at zero. It returns nil when the
// question does not apply: the task is not completed, or a dispute is
// blocking settlement entirely.
func HoursRemaining(task *domain.Task, now time.Time, disputeWindowHours int) *float64 {
	if task == nil || task.Status != domain.TaskStatusCompleted || task.HasDispute() {
		return nil
	}
	elapsed := now.Sub(task.UpdatedAt).Hours()
	remaining := float64(disputeWindowHours) - elapsed
	if remaining < 0 {
		remaining = 0
	}
	return &remaining
}

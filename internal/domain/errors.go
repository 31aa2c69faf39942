package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrTaskNotFound is returned when a task ID does not exist in the store.
	ErrTaskNotFound = errors.New("task not found")
)

// IneligibilityReason names the specific reason a task cannot be settled
type IneligibilityReason string

const (
	ReasonNotCompleted     IneligibilityReason = "NOT_COMPLETED"
	ReasonDisputed         IneligibilityReason = "DISPUTED"
	ReasonWindowNotElapsed IneligibilityReason = "WINDOW_NOT_ELAPSED"
	ReasonAlreadyPaid      IneligibilityReason = "ALREADY_PAID"
)

// NotEligibleError is returned when a settlement is requested for a task
// that does not currently qualify. It is an expected, user-facing error
// and is never logged at error level.
type NotEligibleError struct {
	TaskID string
	Reason IneligibilityReason
}

func (e *NotEligibleError) Error() string {
	return fmt.Sprintf("task %s is not eligible for settlement: %s", e.TaskID, e.Reason)
}

// AsNotEligible unwraps err into a NotEligibleError if it is one
func AsNotEligible(err error) (*NotEligibleError, bool) {
	var ne *NotEligibleError
	if errors.As(err, &ne) {
		return ne, true
	}
	return nil, false
}

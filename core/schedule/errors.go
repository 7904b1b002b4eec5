package schedule

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	ErrNotFound        = errors.New("schedule: not found")
	ErrDuplicate       = errors.New("schedule: depot already has a schedule for this date")
	ErrVersionConflict = errors.New("schedule: version conflict")
	// ErrInvalidTransition is wrapped by TransitionError.
	ErrInvalidTransition = errors.New("schedule: invalid status transition")
	ErrInvalidOverride   = errors.New("schedule: invalid override")
)

// TransitionError reports a lifecycle move the state machine forbids.
type TransitionError struct {
	ScheduleID string
	From, To   Status
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("schedule %s: cannot move from %s to %s", e.ScheduleID, e.From, e.To)
}

func (e *TransitionError) Unwrap() error { return ErrInvalidTransition }

// ConflictUnresolvedError blocks finalization while conflicts are open.
type ConflictUnresolvedError struct {
	ScheduleID  string
	ConflictIDs []string
}

func (e *ConflictUnresolvedError) Error() string {
	return fmt.Sprintf("schedule %s: %d unresolved conflicts: %s", e.ScheduleID, len(e.ConflictIDs), strings.Join(e.ConflictIDs, ", "))
}

// ConcurrentScheduleError rejects a planning run for a depot and date that
// is already being planned or already has a committed schedule.
type ConcurrentScheduleError struct {
	DepotID    string
	Date       time.Time
	ScheduleID string
	Status     Status
}

func (e *ConcurrentScheduleError) Error() string {
	day := e.Date.Format(time.DateOnly)
	if e.Status == "" {
		return fmt.Sprintf("depot %s %s: a planning run is already in progress", e.DepotID, day)
	}
	return fmt.Sprintf("depot %s %s: schedule %s is already %s", e.DepotID, day, e.ScheduleID, e.Status)
}

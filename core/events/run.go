package events

import (
	"time"

	"github.com/kilianp07/induction/core/schedule"
)

// RunEvent is published once per planning run. Schedule is nil when the run
// failed before a draft was stored; Err then carries the cause.
type RunEvent struct {
	DepotID  string
	Date     time.Time
	Schedule *schedule.Schedule
	Code     schedule.ResultCode
	Reason   string
	Duration time.Duration
	Nodes    int
	Err      error
	At       time.Time
}

package events

import "github.com/kilianp07/induction/core/schedule"

// ScheduleEvent is published after a ledger entry was written. Schedule is a
// copy taken right after the change.
type ScheduleEvent struct {
	Entry    schedule.Entry
	Schedule *schedule.Schedule
}

package metrics

import "time"

// PlanningRun summarizes one planning run for a depot and date.
type PlanningRun struct {
	DepotID     string
	Date        time.Time
	Code        string
	Quality     string
	Duration    time.Duration
	Objective   float64
	Terms       map[string]float64
	Nodes       int
	Service     int
	Standby     int
	Maintenance int
	Cleaned     int
	Conflicts   map[string]int
	Failed      bool
	Time        time.Time
}

// MetricsSink records planning runs for observability purposes.
type MetricsSink interface {
	RecordPlanningRun(run PlanningRun) error
}

// ScheduleAction is an operator or lifecycle action on a schedule.
type ScheduleAction struct {
	ScheduleID string
	DepotID    string
	Kind       string
	From       string
	To         string
	Time       time.Time
}

// ScheduleActionRecorder records schedule actions.
type ScheduleActionRecorder interface {
	RecordScheduleAction(ev ScheduleAction) error
}

// NopSink implements every recorder with no-op methods.
type NopSink struct{}

func (NopSink) RecordPlanningRun(PlanningRun) error       { return nil }
func (NopSink) RecordScheduleAction(ScheduleAction) error { return nil }

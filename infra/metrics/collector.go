package metrics

import (
	"context"
	"time"

	"github.com/kilianp07/induction/core/events"
	coremetrics "github.com/kilianp07/induction/core/metrics"
	coremon "github.com/kilianp07/induction/core/monitoring"
	"github.com/kilianp07/induction/infra/logger"
	"github.com/kilianp07/induction/internal/eventbus"
)

// StartEventCollector subscribes to the event bus and records metrics for events.
// It stops when the context is canceled or the bus is closed.
func StartEventCollector(ctx context.Context, bus eventbus.EventBus, sink coremetrics.MetricsSink) {
	if bus == nil || sink == nil {
		return
	}
	log := logger.New("metrics-collector")
	sub := bus.Subscribe()
	go func() {
		defer bus.Unsubscribe(sub)
		defer coremon.Recover(map[string]string{"module": "metrics_collector"})
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-sub:
				if !ok {
					return
				}
				if err := collect(ev, sink); err != nil {
					log.Warnf("record metrics: %v", err)
				}
			}
		}
	}()
}

func collect(ev eventbus.Event, sink coremetrics.MetricsSink) error {
	switch e := ev.(type) {
	case events.RunEvent:
		return sink.RecordPlanningRun(planningRun(e))
	case events.ScheduleEvent:
		rec, ok := sink.(coremetrics.ScheduleActionRecorder)
		if !ok {
			return nil
		}
		return rec.RecordScheduleAction(coremetrics.ScheduleAction{
			ScheduleID: e.Entry.ScheduleID,
			DepotID:    e.Entry.DepotID,
			Kind:       string(e.Entry.Kind),
			From:       string(e.Entry.From),
			To:         string(e.Entry.To),
			Time:       e.Entry.At,
		})
	}
	return nil
}

func planningRun(e events.RunEvent) coremetrics.PlanningRun {
	run := coremetrics.PlanningRun{
		DepotID:  e.DepotID,
		Date:     e.Date,
		Code:     string(e.Code),
		Duration: e.Duration,
		Nodes:    e.Nodes,
		Failed:   e.Schedule == nil,
		Time:     e.At,
	}
	if run.Time.IsZero() {
		run.Time = time.Now()
	}
	s := e.Schedule
	if s == nil {
		return run
	}
	run.Quality = string(s.Quality)
	run.Objective = s.Objective
	run.Terms = s.ObjectiveTerms
	run.Service = len(s.Assignments.ReadyForService)
	run.Standby = len(s.Assignments.OnStandby)
	run.Maintenance = len(s.Assignments.HeldForMaintenance)
	run.Cleaned = len(s.Cleaning)
	if len(s.Conflicts) > 0 {
		run.Conflicts = make(map[string]int)
		for _, c := range s.Conflicts {
			run.Conflicts[string(c.Kind)]++
		}
	}
	return run
}

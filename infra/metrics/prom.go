package metrics

import (
	"errors"

	coremetrics "github.com/kilianp07/induction/core/metrics"
	"github.com/prometheus/client_golang/prometheus"
)

// PromSink records planning runs in Prometheus metrics.
type PromSink struct {
	runs      *prometheus.CounterVec
	duration  *prometheus.HistogramVec
	objective *prometheus.GaugeVec
	trainsets *prometheus.GaugeVec
	conflicts *prometheus.CounterVec
	actions   *prometheus.CounterVec
}

// NewPromSinkWithRegistry registers metrics on the provided registerer.
// A nil registerer defaults to the global Prometheus registerer.
func NewPromSinkWithRegistry(reg prometheus.Registerer) (*PromSink, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	s := &PromSink{
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "induction_planning_runs_total",
			Help: "Total number of planning runs by result code",
		}, []string{"depot_id", "code", "quality"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "induction_planning_duration_seconds",
			Help:    "Wall time of a planning run",
			Buckets: []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}, []string{"depot_id"}),
		objective: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "induction_planning_objective",
			Help: "Objective value of the last plan by term",
		}, []string{"depot_id", "term"}),
		trainsets: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "induction_planned_trainsets",
			Help: "Trainsets per category in the last plan",
		}, []string{"depot_id", "category"}),
		conflicts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "induction_conflicts_total",
			Help: "Conflicts raised by planning runs",
		}, []string{"depot_id", "kind"}),
		actions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "induction_schedule_actions_total",
			Help: "Operator and lifecycle actions on schedules",
		}, []string{"depot_id", "kind"}),
	}
	var err error
	if s.runs, err = register(reg, s.runs); err != nil {
		return nil, err
	}
	if s.duration, err = register(reg, s.duration); err != nil {
		return nil, err
	}
	if s.objective, err = register(reg, s.objective); err != nil {
		return nil, err
	}
	if s.trainsets, err = register(reg, s.trainsets); err != nil {
		return nil, err
	}
	if s.conflicts, err = register(reg, s.conflicts); err != nil {
		return nil, err
	}
	if s.actions, err = register(reg, s.actions); err != nil {
		return nil, err
	}
	return s, nil
}

// register returns the already registered collector when an identical one
// exists, so several sinks can share the default registerer.
func register[C prometheus.Collector](reg prometheus.Registerer, c C) (C, error) {
	if err := reg.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(C); ok {
				return existing, nil
			}
		}
		return c, err
	}
	return c, nil
}

// RecordPlanningRun updates counters and gauges for a run.
func (s *PromSink) RecordPlanningRun(run coremetrics.PlanningRun) error {
	code := run.Code
	if code == "" {
		code = "error"
	}
	s.runs.WithLabelValues(run.DepotID, code, run.Quality).Inc()
	s.duration.WithLabelValues(run.DepotID).Observe(run.Duration.Seconds())
	for kind, n := range run.Conflicts {
		s.conflicts.WithLabelValues(run.DepotID, kind).Add(float64(n))
	}
	if run.Failed {
		return nil
	}
	s.objective.WithLabelValues(run.DepotID, "total").Set(run.Objective)
	for term, v := range run.Terms {
		s.objective.WithLabelValues(run.DepotID, term).Set(v)
	}
	s.trainsets.WithLabelValues(run.DepotID, "service").Set(float64(run.Service))
	s.trainsets.WithLabelValues(run.DepotID, "standby").Set(float64(run.Standby))
	s.trainsets.WithLabelValues(run.DepotID, "maintenance").Set(float64(run.Maintenance))
	s.trainsets.WithLabelValues(run.DepotID, "cleaned").Set(float64(run.Cleaned))
	return nil
}

// RecordScheduleAction counts an action on a schedule.
func (s *PromSink) RecordScheduleAction(ev coremetrics.ScheduleAction) error {
	s.actions.WithLabelValues(ev.DepotID, ev.Kind).Inc()
	return nil
}

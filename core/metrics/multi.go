package metrics

// MultiSink fanouts planning metrics to multiple sinks.
type MultiSink struct {
	Sinks []MetricsSink
}

// NewMultiSink creates a MultiSink with the provided sinks.
func NewMultiSink(sinks ...MetricsSink) *MultiSink {
	return &MultiSink{Sinks: sinks}
}

// RecordPlanningRun forwards the run to all sinks, returning the first error encountered.
func (m *MultiSink) RecordPlanningRun(run PlanningRun) error {
	for _, s := range m.Sinks {
		if err := s.RecordPlanningRun(run); err != nil {
			return err
		}
	}
	return nil
}

// RecordScheduleAction forwards schedule actions when supported by the sink.
func (m *MultiSink) RecordScheduleAction(ev ScheduleAction) error {
	for _, s := range m.Sinks {
		if rec, ok := s.(ScheduleActionRecorder); ok {
			if err := rec.RecordScheduleAction(ev); err != nil {
				return err
			}
		}
	}
	return nil
}

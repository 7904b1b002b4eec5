package metrics

import (
	"errors"
	"testing"

	"github.com/kilianp07/induction/core/factory"
)

type recordSink struct {
	runs    int
	actions int
	err     error
}

func (r *recordSink) RecordPlanningRun(PlanningRun) error {
	r.runs++
	return r.err
}

func (r *recordSink) RecordScheduleAction(ScheduleAction) error {
	r.actions++
	return r.err
}

type runOnlySink struct{ runs int }

func (r *runOnlySink) RecordPlanningRun(PlanningRun) error {
	r.runs++
	return nil
}

// TestMultiSink ensures events are forwarded to all sinks.
func TestMultiSink(t *testing.T) {
	s1 := &recordSink{}
	s2 := &runOnlySink{}
	m := NewMultiSink(s1, s2)
	if err := m.RecordPlanningRun(PlanningRun{DepotID: "D1"}); err != nil {
		t.Fatalf("record run: %v", err)
	}
	if err := m.RecordScheduleAction(ScheduleAction{Kind: "finalized"}); err != nil {
		t.Fatalf("record action: %v", err)
	}
	if s1.runs != 1 || s1.actions != 1 || s2.runs != 1 {
		t.Fatalf("events not forwarded: %+v %+v", s1, s2)
	}
}

func TestMultiSink_FirstError(t *testing.T) {
	boom := errors.New("boom")
	s1 := &recordSink{err: boom}
	s2 := &recordSink{}
	if err := NewMultiSink(s1, s2).RecordPlanningRun(PlanningRun{}); !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}
	if s2.runs != 0 {
		t.Fatalf("second sink should not be called after an error")
	}
}

func TestNewMetricsSink(t *testing.T) {
	if err := RegisterMetricsSink("record_test", func(map[string]any) (MetricsSink, error) {
		return &recordSink{}, nil
	}); err != nil {
		t.Fatalf("register: %v", err)
	}
	s, err := NewMetricsSink(nil)
	if err != nil {
		t.Fatalf("create default: %v", err)
	}
	if _, ok := s.(NopSink); !ok {
		t.Fatalf("expected NopSink, got %T", s)
	}
	s, err = NewMetricsSink([]factory.ModuleConfig{{Type: "record_test"}})
	if err != nil {
		t.Fatalf("create single: %v", err)
	}
	if _, ok := s.(*recordSink); !ok {
		t.Fatalf("expected recordSink, got %T", s)
	}
	s, err = NewMetricsSink([]factory.ModuleConfig{{Type: "record_test"}, {Type: "record_test"}})
	if err != nil {
		t.Fatalf("create multi: %v", err)
	}
	ms, ok := s.(*MultiSink)
	if !ok || len(ms.Sinks) != 2 {
		t.Fatalf("expected MultiSink with two sinks, got %T", s)
	}
	if _, err := NewMetricsSink([]factory.ModuleConfig{{Type: "missing"}}); err == nil {
		t.Fatal("expected error for unknown type")
	}
}

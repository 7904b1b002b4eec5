package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	coremetrics "github.com/kilianp07/induction/core/metrics"
)

func TestPromSink_RecordPlanningRun(t *testing.T) {
	reg := prometheus.NewRegistry()
	sink, err := NewPromSinkWithRegistry(reg)
	require.NoError(t, err)

	run := coremetrics.PlanningRun{
		DepotID:     "D1",
		Code:        "Optimal",
		Quality:     "optimal",
		Duration:    1500 * time.Millisecond,
		Objective:   -170.5,
		Terms:       map[string]float64{"mileage": 12.5},
		Service:     18,
		Standby:     3,
		Maintenance: 4,
		Cleaned:     3,
		Conflicts:   map[string]int{"service_slot_contention": 2},
	}
	require.NoError(t, sink.RecordPlanningRun(run))
	require.NoError(t, sink.RecordPlanningRun(run))

	assert.Equal(t, 2.0, testutil.ToFloat64(sink.runs.WithLabelValues("D1", "Optimal", "optimal")))
	assert.Equal(t, 4.0, testutil.ToFloat64(sink.conflicts.WithLabelValues("D1", "service_slot_contention")))
	assert.Equal(t, 18.0, testutil.ToFloat64(sink.trainsets.WithLabelValues("D1", "service")))
	assert.Equal(t, 12.5, testutil.ToFloat64(sink.objective.WithLabelValues("D1", "mileage")))
	assert.Equal(t, -170.5, testutil.ToFloat64(sink.objective.WithLabelValues("D1", "total")))
	assert.Equal(t, 1, testutil.CollectAndCount(sink.duration))
}

func TestPromSink_FailedRun(t *testing.T) {
	reg := prometheus.NewRegistry()
	sink, err := NewPromSinkWithRegistry(reg)
	require.NoError(t, err)

	require.NoError(t, sink.RecordPlanningRun(coremetrics.PlanningRun{DepotID: "D1", Failed: true}))
	assert.Equal(t, 1.0, testutil.ToFloat64(sink.runs.WithLabelValues("D1", "error", "")))
	assert.Equal(t, 0, testutil.CollectAndCount(sink.trainsets))
}

func TestPromSink_SharedRegistry(t *testing.T) {
	reg := prometheus.NewRegistry()
	s1, err := NewPromSinkWithRegistry(reg)
	require.NoError(t, err)
	s2, err := NewPromSinkWithRegistry(reg)
	require.NoError(t, err)

	require.NoError(t, s1.RecordScheduleAction(coremetrics.ScheduleAction{DepotID: "D1", Kind: "finalized"}))
	require.NoError(t, s2.RecordScheduleAction(coremetrics.ScheduleAction{DepotID: "D1", Kind: "finalized"}))
	assert.Equal(t, 2.0, testutil.ToFloat64(s1.actions.WithLabelValues("D1", "finalized")))
}

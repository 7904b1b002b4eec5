package app

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kilianp07/induction/config"
	"github.com/kilianp07/induction/core/conflict"
	"github.com/kilianp07/induction/core/factory"
	"github.com/kilianp07/induction/core/schedule"
	"github.com/kilianp07/induction/infra/logger"
)

var trigger0 = time.Date(2025, 3, 14, 21, 0, 0, 0, time.UTC)

func newService(t *testing.T) *Service {
	t.Helper()
	cfg := config.Default()
	dir := t.TempDir()
	cfg.Store = config.StoreConfig{Backend: "sqlite", Path: filepath.Join(dir, "schedules.db")}
	cfg.Audit = []factory.ModuleConfig{{Type: "jsonl", Conf: map[string]any{"path": filepath.Join(dir, "ledger.jsonl")}}}
	cfg.Planning.Depots = []string{"MUT", "ALV"}
	svc, err := New(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { assert.NoError(t, svc.Close()) })
	return svc
}

func TestPlanAllAndExecute(t *testing.T) {
	svc := newService(t)
	ctx := context.Background()

	errs := svc.PlanAll(ctx, trigger0)
	require.Empty(t, errs)

	day := time.Date(2025, 3, 15, 0, 0, 0, 0, time.UTC)
	list, err := svc.Planner.Schedules(ctx, "MUT")
	require.NoError(t, err)
	require.Len(t, list, 1)
	s := list[0]
	assert.Equal(t, day, s.Date)
	assert.Equal(t, "induction-planner", s.CreatedBy)
	assert.Len(t, s.Assignments.ReadyForService, 18)

	errs = svc.ExecuteAll(ctx, day.Add(5*time.Hour))
	assert.ErrorIs(t, errs["MUT"], schedule.ErrInvalidTransition, "drafts are not executed")

	for _, c := range s.Conflicts {
		_, err := svc.Planner.ResolveConflict(ctx, s.ID, c.ID, conflict.Resolution{Action: conflict.ActionAccept, Reason: "ok", OperatorID: "sup"})
		require.NoError(t, err)
	}
	_, err = svc.Planner.FinalizeSchedule(ctx, s.ID, "sup")
	require.NoError(t, err)

	errs = svc.ExecuteAll(ctx, day.Add(5*time.Hour))
	assert.NoError(t, errs["MUT"])
	got, err := svc.Planner.Schedule(ctx, s.ID)
	require.NoError(t, err)
	assert.Equal(t, schedule.StatusExecuted, got.Status)

	entries, err := svc.Planner.Ledger(ctx, s.ID)
	require.NoError(t, err)
	assert.Equal(t, schedule.EntryExecuted, entries[len(entries)-1].Kind)
}

type fakeRunner struct {
	mu    sync.Mutex
	calls []triggerKind
}

func (f *fakeRunner) PlanAll(context.Context, time.Time) map[string]error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, triggerPlan)
	return nil
}

func (f *fakeRunner) ExecuteAll(context.Context, time.Time) map[string]error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, triggerExecute)
	return nil
}

func (f *fakeRunner) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func TestSchedulerDispatchesTriggers(t *testing.T) {
	cfg := config.Default().Planning
	r := &fakeRunner{}
	s, err := newScheduler(cfg, r, nil)
	require.NoError(t, err)
	assert.Len(t, s.c.Entries(), 2)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	s.Start(ctx)
	s.Fire(triggerPlan, trigger0)
	require.Eventually(t, func() bool { return r.count() == 1 }, time.Second, 5*time.Millisecond)
	s.Fire(triggerExecute, trigger0)
	require.Eventually(t, func() bool { return r.count() == 2 }, time.Second, 5*time.Millisecond)
	s.Stop()
	assert.Equal(t, []triggerKind{triggerPlan, triggerExecute}, r.calls)
}

func TestSchedulerRejectsBadCron(t *testing.T) {
	cfg := config.Default().Planning
	cfg.PlanCron = "at dusk"
	_, err := newScheduler(cfg, &fakeRunner{}, nil)
	assert.Error(t, err)
}

type closeCounter struct{ n int }

func (c *closeCounter) Close() error {
	c.n++
	return nil
}

func TestNewClosesLogsWhenStoreFails(t *testing.T) {
	logs := &closeCounter{}
	setupLogging = func(logger.Config) (io.Closer, error) { return logs, nil }
	t.Cleanup(func() { setupLogging = logger.Setup })

	blocker := filepath.Join(t.TempDir(), "blocker")
	require.NoError(t, os.WriteFile(blocker, nil, 0o644))
	cfg := config.Default()
	cfg.Store = config.StoreConfig{Backend: "sqlite", Path: filepath.Join(blocker, "schedules.db")}

	_, err := New(cfg)
	require.Error(t, err)
	assert.Equal(t, 1, logs.n)
}

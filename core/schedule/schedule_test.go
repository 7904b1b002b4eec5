package schedule

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kilianp07/induction/core/conflict"
	"github.com/kilianp07/induction/core/induction"
	"github.com/kilianp07/induction/core/model"
)

var (
	opDay = time.Date(2025, 3, 15, 0, 0, 0, 0, time.UTC)
	clock = time.Date(2025, 3, 14, 22, 0, 0, 0, time.UTC)
)

func draft(id string, conflicts ...conflict.Conflict) *Schedule {
	if conflicts == nil {
		conflicts = []conflict.Conflict{}
	}
	return &Schedule{
		ID:      id,
		DepotID: "MUT",
		Date:    opDay,
		Status:  StatusDraft,
		Assignments: Assignments{
			ReadyForService:    []string{"TS-01", "TS-02"},
			OnStandby:          []string{"TS-03", "TS-04"},
			HeldForMaintenance: []string{"TS-05"},
		},
		Bays:            map[string]string{"TS-01": "STB-01"},
		Conflicts:       conflicts,
		ManualOverrides: []ManualOverride{},
		Restrictions:    map[string]string{"TS-05": "open critical job card"},
		CreatedBy:       "planner",
		Quality:         induction.QualityOptimal,
		ResultCode:      CodeOptimal,
	}
}

func openConflict(id, trainset string) conflict.Conflict {
	return conflict.Conflict{ID: id, TrainsetID: trainset, Kind: conflict.KindServiceSlot, Resolution: conflict.Record{Status: conflict.StatusUnresolved}}
}

func newPublisher() (*Publisher, *MemoryStore, *MemoryLedger) {
	store, ledger := NewMemoryStore(), NewMemoryLedger()
	return NewPublisher(store, ledger, nil).WithClock(func() time.Time { return clock }), store, ledger
}

func TestFinalizeBlockedUntilConflictsResolved(t *testing.T) {
	ctx := context.Background()
	p, _, _ := newPublisher()
	s, err := p.PublishDraft(ctx, draft("s1", openConflict("c1", "TS-02"), openConflict("c2", "TS-03")))
	require.NoError(t, err)

	_, err = p.Finalize(ctx, s.ID, "op-1")
	var uErr *ConflictUnresolvedError
	require.ErrorAs(t, err, &uErr)
	assert.ElementsMatch(t, []string{"c1", "c2"}, uErr.ConflictIDs)

	_, c, err := p.Resolve(ctx, s.ID, "c1", conflict.Resolution{Action: conflict.ActionAccept, OperatorID: "op-1"})
	require.NoError(t, err)
	assert.Equal(t, conflict.StatusAccepted, c.Resolution.Status)
	_, err = p.Finalize(ctx, s.ID, "op-1")
	require.ErrorAs(t, err, &uErr)
	assert.Equal(t, []string{"c2"}, uErr.ConflictIDs)

	standby := model.CategoryStandby
	_, _, err = p.Resolve(ctx, s.ID, "c2", conflict.Resolution{Action: conflict.ActionOverride, OperatorID: "op-1", Reason: "sponsor call", NewState: &standby})
	require.NoError(t, err)

	final, err := p.Finalize(ctx, s.ID, "op-1")
	require.NoError(t, err)
	assert.Equal(t, StatusFinalized, final.Status)
	assert.Equal(t, "op-1", final.FinalizedBy)
	require.NotNil(t, final.FinalizedAt)
	assert.Equal(t, CodeResolvedWithOverrides, final.ResultCode)

	kinds := ledgerKinds(t, p, s.ID)
	assert.Equal(t, []EntryKind{EntryDrafted, EntryConflictAccepted, EntryConflictOverridden, EntryFinalized}, kinds)
}

func ledgerKinds(t *testing.T, p *Publisher, id string) []EntryKind {
	t.Helper()
	entries, err := p.Ledger(context.Background(), id)
	require.NoError(t, err)
	var out []EntryKind
	for _, e := range entries {
		out = append(out, e.Kind)
	}
	return out
}

func TestOverrideAudit(t *testing.T) {
	ctx := context.Background()
	p, _, _ := newPublisher()
	_, err := p.PublishDraft(ctx, draft("s1"))
	require.NoError(t, err)
	final, err := p.Finalize(ctx, "s1", "op-1")
	require.NoError(t, err)
	original := final.Assignments

	_, err = p.AppendOverride(ctx, "s1", OverrideRequest{TrainsetID: "TS-03", NewAssignment: model.CategoryService, Reason: "TS-01 door fault", OperatorID: "op-2"})
	require.NoError(t, err)
	s, err := p.AppendOverride(ctx, "s1", OverrideRequest{TrainsetID: "TS-03", NewAssignment: model.CategoryStandby, Reason: "door fixed", OperatorID: "op-3"})
	require.NoError(t, err)

	assert.Equal(t, original, s.Assignments)
	assert.Equal(t, []string{"TS-01", "TS-02"}, s.Assignments.ReadyForService)
	require.Len(t, s.ManualOverrides, 2)
	assert.Equal(t, model.CategoryStandby, s.ManualOverrides[0].OriginalAssignment)
	assert.Equal(t, model.CategoryService, s.ManualOverrides[0].NewAssignment)
	assert.Equal(t, "op-3", s.ManualOverrides[1].OverriddenBy)
	assert.Equal(t, original.OnStandby, s.Effective().OnStandby)

	entries, err := p.Ledger(ctx, "s1")
	require.NoError(t, err)
	var overrides []Entry
	for _, e := range entries {
		if e.Kind == EntryManualOverride {
			overrides = append(overrides, e)
		}
	}
	require.Len(t, overrides, 2)
	assert.Equal(t, Entry{Kind: EntryManualOverride, TrainsetID: "TS-03", OperatorID: "op-2", Reason: "TS-01 door fault", From: model.CategoryStandby, To: model.CategoryService},
		Entry{Kind: overrides[0].Kind, TrainsetID: overrides[0].TrainsetID, OperatorID: overrides[0].OperatorID, Reason: overrides[0].Reason, From: overrides[0].From, To: overrides[0].To})
	assert.Equal(t, "door fixed", overrides[1].Reason)
	assert.Equal(t, model.CategoryService, overrides[1].From)
	assert.Equal(t, clock, overrides[1].At)
}

func TestOverrideRules(t *testing.T) {
	ctx := context.Background()
	p, _, _ := newPublisher()
	_, err := p.PublishDraft(ctx, draft("s1"))
	require.NoError(t, err)

	_, err = p.AppendOverride(ctx, "s1", OverrideRequest{TrainsetID: "TS-03", NewAssignment: model.CategoryService, Reason: "r", OperatorID: "op"})
	assert.ErrorIs(t, err, ErrInvalidTransition)

	_, err = p.Finalize(ctx, "s1", "op")
	require.NoError(t, err)

	cases := []struct {
		name string
		req  OverrideRequest
		want error
	}{
		{"missing reason", OverrideRequest{TrainsetID: "TS-03", NewAssignment: model.CategoryService, OperatorID: "op"}, ErrInvalidOverride},
		{"missing operator", OverrideRequest{TrainsetID: "TS-03", NewAssignment: model.CategoryService, Reason: "r"}, ErrInvalidOverride},
		{"unknown category", OverrideRequest{TrainsetID: "TS-03", NewAssignment: "scrapped", Reason: "r", OperatorID: "op"}, ErrInvalidOverride},
		{"no change", OverrideRequest{TrainsetID: "TS-03", NewAssignment: model.CategoryStandby, Reason: "r", OperatorID: "op"}, ErrInvalidOverride},
		{"unknown trainset", OverrideRequest{TrainsetID: "TS-99", NewAssignment: model.CategoryService, Reason: "r", OperatorID: "op"}, ErrNotFound},
		{"job card into service", OverrideRequest{TrainsetID: "TS-05", NewAssignment: model.CategoryService, Reason: "r", OperatorID: "op"}, conflict.ErrUnsafeOverride},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := p.AppendOverride(ctx, "s1", tc.req)
			assert.ErrorIs(t, err, tc.want)
		})
	}

	s, err := p.AppendOverride(ctx, "s1", OverrideRequest{TrainsetID: "TS-05", NewAssignment: model.CategoryRemoved, Reason: "bogie crack", OperatorID: "op"})
	require.NoError(t, err)
	assert.Equal(t, []string{"TS-05"}, s.Effective().RemovedFromService)
	assert.Empty(t, s.Effective().HeldForMaintenance)
}

func TestLifecycleTransitions(t *testing.T) {
	ctx := context.Background()
	p, _, _ := newPublisher()
	_, err := p.PublishDraft(ctx, draft("s1"))
	require.NoError(t, err)

	_, err = p.MarkExecuted(ctx, "s1")
	var tErr *TransitionError
	require.ErrorAs(t, err, &tErr)
	assert.Equal(t, StatusDraft, tErr.From)
	assert.ErrorIs(t, err, ErrInvalidTransition)

	_, err = p.Finalize(ctx, "s1", "op")
	require.NoError(t, err)
	_, err = p.Finalize(ctx, "s1", "op")
	assert.ErrorIs(t, err, ErrInvalidTransition)
	s, err := p.MarkExecuted(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, StatusExecuted, s.Status)
	require.NotNil(t, s.ExecutedAt)

	_, _, err = p.Resolve(ctx, "s1", "c1", conflict.Resolution{Action: conflict.ActionAccept, OperatorID: "op"})
	assert.ErrorIs(t, err, ErrInvalidTransition)
	_, err = p.Get(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestDraftReplacementAndCommittedGuard(t *testing.T) {
	ctx := context.Background()
	p, store, _ := newPublisher()
	_, err := p.PublishDraft(ctx, draft("s1"))
	require.NoError(t, err)
	_, err = p.PublishDraft(ctx, draft("s2"))
	require.NoError(t, err)

	_, err = store.Get(ctx, "s1")
	assert.ErrorIs(t, err, ErrNotFound)
	cur, err := store.GetByDepotDate(ctx, "MUT", opDay)
	require.NoError(t, err)
	assert.Equal(t, "s2", cur.ID)
	entries, _ := p.Ledger(ctx, "s2")
	require.Len(t, entries, 1)
	assert.Contains(t, entries[0].Detail, "replaces draft s1")

	_, err = p.Finalize(ctx, "s2", "op")
	require.NoError(t, err)
	_, err = p.PublishDraft(ctx, draft("s3"))
	var cErr *ConcurrentScheduleError
	require.ErrorAs(t, err, &cErr)
	assert.Equal(t, StatusFinalized, cErr.Status)

	_, err = p.Reserve(ctx, "MUT", opDay)
	require.ErrorAs(t, err, &cErr)
	assert.Equal(t, "s2", cErr.ScheduleID)
}

func TestReserveRejectsConcurrentRun(t *testing.T) {
	ctx := context.Background()
	p, _, _ := newPublisher()
	release, err := p.Reserve(ctx, "MUT", opDay)
	require.NoError(t, err)

	_, err = p.Reserve(ctx, "MUT", opDay)
	var cErr *ConcurrentScheduleError
	require.ErrorAs(t, err, &cErr)
	assert.Contains(t, cErr.Error(), "in progress")

	other, err := p.Reserve(ctx, "MUT", opDay.AddDate(0, 0, 1))
	require.NoError(t, err)
	other()

	release()
	release, err = p.Reserve(ctx, "MUT", opDay)
	require.NoError(t, err)
	release()
}

func TestConcurrentOverridesAreSerialized(t *testing.T) {
	ctx := context.Background()
	p, _, _ := newPublisher()
	_, err := p.PublishDraft(ctx, draft("s1"))
	require.NoError(t, err)
	_, err = p.Finalize(ctx, "s1", "op")
	require.NoError(t, err)

	var wg sync.WaitGroup
	errs := make(chan error, 10)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			target := model.CategoryService
			if i%2 == 1 {
				target = model.CategoryMaintenance
			}
			_, err := p.AppendOverride(ctx, "s1", OverrideRequest{TrainsetID: "TS-04", NewAssignment: target, Reason: fmt.Sprintf("swap %d", i), OperatorID: "op"})
			errs <- err
		}(i)
	}
	wg.Wait()
	close(errs)
	ok := 0
	for err := range errs {
		if err == nil {
			ok++
			continue
		}
		assert.ErrorIs(t, err, ErrInvalidOverride)
	}
	s, err := p.Get(ctx, "s1")
	require.NoError(t, err)
	assert.Len(t, s.ManualOverrides, ok)
	assert.Equal(t, 2+ok, s.Version)

	p.locksMu.Lock()
	defer p.locksMu.Unlock()
	assert.Empty(t, p.locks, "released keys are dropped")
}

func TestMemoryStoreVersioning(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	s := draft("s1")
	require.NoError(t, store.Create(ctx, s))
	assert.Equal(t, 1, s.Version)
	assert.ErrorIs(t, store.Create(ctx, draft("s2")), ErrDuplicate)

	a, _ := store.Get(ctx, "s1")
	b, _ := store.Get(ctx, "s1")
	a.Notes = "first"
	require.NoError(t, store.Update(ctx, a, a.Version))
	b.Notes = "second"
	err := store.Update(ctx, b, b.Version)
	assert.True(t, errors.Is(err, ErrVersionConflict))

	got, _ := store.Get(ctx, "s1")
	assert.Equal(t, "first", got.Notes)
	got.Assignments.ReadyForService[0] = "mutated"
	again, _ := store.Get(ctx, "s1")
	assert.Equal(t, "TS-01", again.Assignments.ReadyForService[0])

	list, err := store.List(ctx, "MUT")
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

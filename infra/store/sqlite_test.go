package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kilianp07/induction/core/conflict"
	"github.com/kilianp07/induction/core/model"
	"github.com/kilianp07/induction/core/schedule"
)

var opDay = time.Date(2025, 3, 15, 0, 0, 0, 0, time.UTC)

func newStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := NewSQLiteStore(filepath.Join(t.TempDir(), "schedules.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func draft(id, depot string, date time.Time, conflicts ...conflict.Conflict) *schedule.Schedule {
	if conflicts == nil {
		conflicts = []conflict.Conflict{}
	}
	return &schedule.Schedule{
		ID:      id,
		DepotID: depot,
		Date:    date,
		Status:  schedule.StatusDraft,
		Assignments: schedule.Assignments{
			ReadyForService:    []string{"TS-01"},
			OnStandby:          []string{"TS-02"},
			HeldForMaintenance: []string{"TS-03"},
		},
		Bays:            map[string]string{"TS-01": "STB-01", "TS-02": "STB-02", "TS-03": "MNT-01"},
		Cleaning:        []string{"TS-03"},
		Conflicts:       conflicts,
		ManualOverrides: []schedule.ManualOverride{},
		Restrictions:    map[string]string{"TS-03": "open critical job card"},
		CreatedBy:       "planner",
		ResultCode:      schedule.CodeOptimal,
		ObjectiveTerms:  map[string]float64{"mileage": 1.5},
	}
}

func TestSQLiteStore_CRUD(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)

	d := draft("s1", "MUT", opDay)
	require.NoError(t, s.Create(ctx, d))
	assert.Equal(t, 1, d.Version)
	assert.ErrorIs(t, s.Create(ctx, draft("s2", "MUT", opDay)), schedule.ErrDuplicate)
	assert.ErrorIs(t, s.Create(ctx, draft("s1", "ALV", opDay)), schedule.ErrDuplicate)

	got, err := s.Get(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, d.Assignments, got.Assignments)
	assert.Equal(t, d.Bays, got.Bays)
	assert.Equal(t, 1, got.Version)
	assert.True(t, got.Date.Equal(opDay))

	byDay, err := s.GetByDepotDate(ctx, "MUT", opDay)
	require.NoError(t, err)
	assert.Equal(t, "s1", byDay.ID)
	_, err = s.GetByDepotDate(ctx, "MUT", opDay.AddDate(0, 0, 1))
	assert.ErrorIs(t, err, schedule.ErrNotFound)

	got.Notes = "first"
	require.NoError(t, s.Update(ctx, got, 1))
	assert.Equal(t, 2, got.Version)
	stale := *got
	stale.Notes = "stale"
	assert.ErrorIs(t, s.Update(ctx, &stale, 1), schedule.ErrVersionConflict)
	assert.ErrorIs(t, s.Update(ctx, draft("nope", "MUT", opDay), 1), schedule.ErrNotFound)

	again, err := s.Get(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, "first", again.Notes)

	require.NoError(t, s.Create(ctx, draft("s0", "MUT", opDay.AddDate(0, 0, -1))))
	require.NoError(t, s.Create(ctx, draft("s9", "ALV", opDay)))
	list, err := s.List(ctx, "MUT")
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "s0", list[0].ID)
	all, err := s.List(ctx, "")
	require.NoError(t, err)
	assert.Len(t, all, 3)

	require.NoError(t, s.DeleteDraft(ctx, "s1"))
	_, err = s.Get(ctx, "s1")
	assert.ErrorIs(t, err, schedule.ErrNotFound)
}

func TestSQLiteStore_DeleteCommitted(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)
	d := draft("s1", "MUT", opDay)
	d.Status = schedule.StatusFinalized
	require.NoError(t, s.Create(ctx, d))
	err := s.DeleteDraft(ctx, "s1")
	assert.ErrorIs(t, err, schedule.ErrInvalidTransition)
}

func TestSQLiteStore_WithPublisher(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)
	p := schedule.NewPublisher(s, schedule.NewMemoryLedger(), nil)

	c := conflict.Conflict{ID: "c1", TrainsetID: "TS-02", Kind: conflict.KindServiceSlot, Resolution: conflict.Record{Status: conflict.StatusUnresolved}}
	d, err := p.PublishDraft(ctx, draft("s1", "MUT", opDay, c))
	require.NoError(t, err)

	_, err = p.Finalize(ctx, d.ID, "supervisor")
	var cu *schedule.ConflictUnresolvedError
	require.ErrorAs(t, err, &cu)

	standby := model.CategoryStandby
	_, _, err = p.Resolve(ctx, d.ID, "c1", conflict.Resolution{Action: conflict.ActionOverride, Reason: "keep reserve", OperatorID: "supervisor", NewState: &standby})
	require.NoError(t, err)
	final, err := p.Finalize(ctx, d.ID, "supervisor")
	require.NoError(t, err)
	assert.Equal(t, schedule.StatusFinalized, final.Status)

	stored, err := s.Get(ctx, d.ID)
	require.NoError(t, err)
	assert.Equal(t, schedule.StatusFinalized, stored.Status)
	assert.Equal(t, conflict.StatusOverridden, stored.Conflicts[0].Resolution.Status)
	require.NotNil(t, stored.FinalizedAt)
	assert.Equal(t, 3, stored.Version)
}

package schedule

import (
	"context"
	"sync"
	"time"
)

// Store persists schedules. Update uses optimistic concurrency: it succeeds
// only when the stored version equals expectedVersion and then increments it.
type Store interface {
	Create(ctx context.Context, s *Schedule) error
	Get(ctx context.Context, id string) (*Schedule, error)
	GetByDepotDate(ctx context.Context, depotID string, date time.Time) (*Schedule, error)
	Update(ctx context.Context, s *Schedule, expectedVersion int) error
	DeleteDraft(ctx context.Context, id string) error
	List(ctx context.Context, depotID string) ([]*Schedule, error)
}

func depotKey(depotID string, date time.Time) string {
	return depotID + "|" + date.UTC().Format(time.DateOnly)
}

// MemoryStore is an in-process Store.
type MemoryStore struct {
	mu      sync.RWMutex
	byID    map[string]*Schedule
	byDepot map[string]string
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{byID: make(map[string]*Schedule), byDepot: make(map[string]string)}
}

func (m *MemoryStore) Create(_ context.Context, s *Schedule) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := depotKey(s.DepotID, s.Date)
	if _, ok := m.byDepot[key]; ok {
		return ErrDuplicate
	}
	if _, ok := m.byID[s.ID]; ok {
		return ErrDuplicate
	}
	s.Version = 1
	m.byID[s.ID] = s.Clone()
	m.byDepot[key] = s.ID
	return nil
}

func (m *MemoryStore) Get(_ context.Context, id string) (*Schedule, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.byID[id]
	if !ok {
		return nil, ErrNotFound
	}
	return s.Clone(), nil
}

func (m *MemoryStore) GetByDepotDate(ctx context.Context, depotID string, date time.Time) (*Schedule, error) {
	m.mu.RLock()
	id, ok := m.byDepot[depotKey(depotID, date)]
	m.mu.RUnlock()
	if !ok {
		return nil, ErrNotFound
	}
	return m.Get(ctx, id)
}

func (m *MemoryStore) Update(_ context.Context, s *Schedule, expectedVersion int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cur, ok := m.byID[s.ID]
	if !ok {
		return ErrNotFound
	}
	if cur.Version != expectedVersion {
		return ErrVersionConflict
	}
	s.Version = expectedVersion + 1
	m.byID[s.ID] = s.Clone()
	return nil
}

func (m *MemoryStore) DeleteDraft(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.byID[id]
	if !ok {
		return ErrNotFound
	}
	if s.Status != StatusDraft {
		return &TransitionError{ScheduleID: id, From: s.Status, To: StatusDraft}
	}
	delete(m.byID, id)
	delete(m.byDepot, depotKey(s.DepotID, s.Date))
	return nil
}

func (m *MemoryStore) List(_ context.Context, depotID string) ([]*Schedule, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*Schedule
	for _, s := range m.byID {
		if depotID == "" || s.DepotID == depotID {
			out = append(out, s.Clone())
		}
	}
	sortSchedules(out)
	return out, nil
}

package schedule

import (
	"context"
	"sync"
	"time"

	"github.com/kilianp07/induction/core/model"
)

// EntryKind names the event recorded by a ledger entry.
type EntryKind string

const (
	EntryDrafted            EntryKind = "drafted"
	EntryConflictAccepted   EntryKind = "conflict_accepted"
	EntryConflictOverridden EntryKind = "conflict_overridden"
	EntryFinalized          EntryKind = "finalized"
	EntryExecuted           EntryKind = "executed"
	EntryManualOverride     EntryKind = "manual_override"
)

// Entry is one immutable audit record.
type Entry struct {
	ID         string         `json:"id"`
	ScheduleID string         `json:"scheduleId"`
	DepotID    string         `json:"depotId"`
	Kind       EntryKind      `json:"kind"`
	TrainsetID string         `json:"trainsetId,omitempty"`
	ConflictID string         `json:"conflictId,omitempty"`
	OperatorID string         `json:"operatorId,omitempty"`
	Reason     string         `json:"reason,omitempty"`
	From       model.Category `json:"from,omitempty"`
	To         model.Category `json:"to,omitempty"`
	Detail     string         `json:"detail,omitempty"`
	At         time.Time      `json:"at"`
}

// Ledger is an append-only audit trail. Entries are never modified or
// removed; List returns them in append order.
type Ledger interface {
	Append(ctx context.Context, e Entry) error
	List(ctx context.Context, scheduleID string) ([]Entry, error)
}

// MemoryLedger keeps entries in process memory.
type MemoryLedger struct {
	mu      sync.RWMutex
	entries []Entry
}

// NewMemoryLedger returns an empty MemoryLedger.
func NewMemoryLedger() *MemoryLedger { return &MemoryLedger{} }

func (l *MemoryLedger) Append(_ context.Context, e Entry) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = append(l.entries, e)
	return nil
}

func (l *MemoryLedger) List(_ context.Context, scheduleID string) ([]Entry, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	var out []Entry
	for _, e := range l.entries {
		if e.ScheduleID == scheduleID {
			out = append(out, e)
		}
	}
	return out, nil
}

// MultiLedger appends to every ledger in order and lists from the first.
type MultiLedger []Ledger

func (m MultiLedger) Append(ctx context.Context, e Entry) error {
	for _, l := range m {
		if err := l.Append(ctx, e); err != nil {
			return err
		}
	}
	return nil
}

func (m MultiLedger) List(ctx context.Context, scheduleID string) ([]Entry, error) {
	if len(m) == 0 {
		return nil, nil
	}
	return m[0].List(ctx, scheduleID)
}

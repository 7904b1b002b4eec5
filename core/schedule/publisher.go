package schedule

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/kilianp07/induction/core/conflict"
	"github.com/kilianp07/induction/core/logger"
	"github.com/kilianp07/induction/core/model"
)

// OverrideRequest asks to move one trainset of a committed schedule.
type OverrideRequest struct {
	TrainsetID    string         `json:"trainsetId"`
	NewAssignment model.Category `json:"newAssignment"`
	Reason        string         `json:"reason"`
	OperatorID    string         `json:"operatorId"`
}

// Publisher drives the schedule lifecycle and writes every decision to the
// ledger. Changes to one schedule are serialized.
type Publisher struct {
	store  Store
	ledger Ledger
	log    logger.Logger
	now    func() time.Time
	newID  func() string
	notify func(Entry, *Schedule)

	locksMu sync.Mutex
	locks   map[string]*keyLock

	runsMu sync.Mutex
	runs   map[string]bool
}

// NewPublisher returns a Publisher backed by store and ledger.
func NewPublisher(store Store, ledger Ledger, log logger.Logger) *Publisher {
	return &Publisher{
		store:  store,
		ledger: ledger,
		log:    logger.OrNop(log),
		now:    time.Now,
		newID:  uuid.NewString,
		locks:  make(map[string]*keyLock),
		runs:   make(map[string]bool),
	}
}

// WithClock replaces the clock used for timestamps.
func (p *Publisher) WithClock(now func() time.Time) *Publisher {
	p.now = now
	return p
}

// Notify registers fn to be called with every ledger entry written and a
// copy of the schedule it belongs to.
func (p *Publisher) Notify(fn func(Entry, *Schedule)) *Publisher {
	p.notify = fn
	return p
}

// keyLock is a mutex shared by the callers holding or waiting on one key.
type keyLock struct {
	mu   sync.Mutex
	refs int
}

// lock serializes callers on id. The entry is dropped once the last holder
// or waiter releases it.
func (p *Publisher) lock(id string) func() {
	p.locksMu.Lock()
	l, ok := p.locks[id]
	if !ok {
		l = &keyLock{}
		p.locks[id] = l
	}
	l.refs++
	p.locksMu.Unlock()

	l.mu.Lock()
	return func() {
		l.mu.Unlock()
		p.locksMu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(p.locks, id)
		}
		p.locksMu.Unlock()
	}
}

// Reserve claims the depot and date for one planning run. It fails with
// *ConcurrentScheduleError when another run holds the claim or when a
// committed schedule already exists. The returned func releases the claim.
func (p *Publisher) Reserve(ctx context.Context, depotID string, date time.Time) (func(), error) {
	key := depotKey(depotID, date)
	p.runsMu.Lock()
	if p.runs[key] {
		p.runsMu.Unlock()
		return nil, &ConcurrentScheduleError{DepotID: depotID, Date: date}
	}
	p.runs[key] = true
	p.runsMu.Unlock()
	release := func() {
		p.runsMu.Lock()
		delete(p.runs, key)
		p.runsMu.Unlock()
	}
	if err := p.checkCommitted(ctx, depotID, date); err != nil {
		release()
		return nil, err
	}
	return release, nil
}

func (p *Publisher) checkCommitted(ctx context.Context, depotID string, date time.Time) error {
	cur, err := p.store.GetByDepotDate(ctx, depotID, date)
	switch {
	case errors.Is(err, ErrNotFound):
		return nil
	case err != nil:
		return fmt.Errorf("lookup schedule: %w", err)
	case cur.Status != StatusDraft:
		return &ConcurrentScheduleError{DepotID: depotID, Date: date, ScheduleID: cur.ID, Status: cur.Status}
	}
	return nil
}

// PublishDraft stores s as the draft for its depot and date, replacing an
// earlier draft. A committed schedule for the same day is never replaced.
func (p *Publisher) PublishDraft(ctx context.Context, s *Schedule) (*Schedule, error) {
	if s.Status != StatusDraft {
		return nil, &TransitionError{ScheduleID: s.ID, From: s.Status, To: StatusDraft}
	}
	unlock := p.lock(depotKey(s.DepotID, s.Date))
	defer unlock()

	replaced := ""
	cur, err := p.store.GetByDepotDate(ctx, s.DepotID, s.Date)
	switch {
	case errors.Is(err, ErrNotFound):
	case err != nil:
		return nil, fmt.Errorf("lookup schedule: %w", err)
	case cur.Status != StatusDraft:
		return nil, &ConcurrentScheduleError{DepotID: s.DepotID, Date: s.Date, ScheduleID: cur.ID, Status: cur.Status}
	default:
		if err := p.store.DeleteDraft(ctx, cur.ID); err != nil {
			return nil, fmt.Errorf("discard draft %s: %w", cur.ID, err)
		}
		replaced = cur.ID
	}
	if err := p.store.Create(ctx, s); err != nil {
		return nil, fmt.Errorf("create schedule: %w", err)
	}
	detail := fmt.Sprintf("%d in service, %d conflicts, quality %s", len(s.Assignments.ReadyForService), len(s.Conflicts), s.Quality)
	if replaced != "" {
		detail += ", replaces draft " + replaced
	}
	if err := p.append(ctx, s, Entry{Kind: EntryDrafted, OperatorID: s.CreatedBy, Detail: detail}); err != nil {
		return nil, err
	}
	p.log.Infof("schedule %s drafted for depot %s on %s", s.ID, s.DepotID, s.Date.Format(time.DateOnly))
	return s, nil
}

// Get returns a stored schedule.
func (p *Publisher) Get(ctx context.Context, id string) (*Schedule, error) {
	return p.store.Get(ctx, id)
}

// Find returns the schedule of a depot and date.
func (p *Publisher) Find(ctx context.Context, depotID string, date time.Time) (*Schedule, error) {
	return p.store.GetByDepotDate(ctx, depotID, date)
}

// List returns the schedules of a depot ordered by date.
func (p *Publisher) List(ctx context.Context, depotID string) ([]*Schedule, error) {
	return p.store.List(ctx, depotID)
}

// Resolve records an operator decision on a draft's conflict. An override
// with a new state is layered on the schedule as a manual override.
func (p *Publisher) Resolve(ctx context.Context, scheduleID, conflictID string, r conflict.Resolution) (*Schedule, conflict.Conflict, error) {
	unlock := p.lock(scheduleID)
	defer unlock()
	s, err := p.store.Get(ctx, scheduleID)
	if err != nil {
		return nil, conflict.Conflict{}, err
	}
	if s.Status != StatusDraft {
		return nil, conflict.Conflict{}, &TransitionError{ScheduleID: s.ID, From: s.Status, To: StatusDraft}
	}
	i := s.Conflict(conflictID)
	if i < 0 {
		return nil, conflict.Conflict{}, fmt.Errorf("conflict %s: %w", conflictID, ErrNotFound)
	}
	c := &s.Conflicts[i]
	if r.NewState != nil && *r.NewState == model.CategoryService {
		if why, ok := s.Restrictions[c.TrainsetID]; ok {
			return nil, conflict.Conflict{}, fmt.Errorf("%w: %s (%s)", conflict.ErrUnsafeOverride, c.TrainsetID, why)
		}
	}
	now := p.now().UTC()
	if err := c.Apply(r, now); err != nil {
		return nil, conflict.Conflict{}, err
	}

	entry := Entry{Kind: EntryConflictAccepted, TrainsetID: c.TrainsetID, ConflictID: c.ID, OperatorID: r.OperatorID, Reason: r.Reason, Detail: string(c.Kind)}
	if r.Action == conflict.ActionOverride {
		entry.Kind = EntryConflictOverridden
		s.ResultCode = CodeResolvedWithOverrides
		if cur, _ := s.Current(c.TrainsetID); r.NewState != nil && *r.NewState != cur {
			orig, _ := s.Original(c.TrainsetID)
			s.ManualOverrides = append(s.ManualOverrides, ManualOverride{
				TrainsetID:         c.TrainsetID,
				OriginalAssignment: orig,
				NewAssignment:      *r.NewState,
				Reason:             r.Reason,
				OverriddenBy:       r.OperatorID,
				Timestamp:          now,
				ConflictID:         c.ID,
			})
			entry.From, entry.To = cur, *r.NewState
		}
	}
	resolved := *c
	if err := p.store.Update(ctx, s, s.Version); err != nil {
		return nil, conflict.Conflict{}, fmt.Errorf("update schedule: %w", err)
	}
	if err := p.append(ctx, s, entry); err != nil {
		return nil, conflict.Conflict{}, err
	}
	return s, resolved, nil
}

// Finalize commits a draft whose conflicts are all resolved.
func (p *Publisher) Finalize(ctx context.Context, scheduleID, operatorID string) (*Schedule, error) {
	if strings.TrimSpace(operatorID) == "" {
		return nil, fmt.Errorf("%w: operator id is required", ErrInvalidOverride)
	}
	unlock := p.lock(scheduleID)
	defer unlock()
	s, err := p.store.Get(ctx, scheduleID)
	if err != nil {
		return nil, err
	}
	if open := conflict.Unresolved(s.Conflicts); len(open) > 0 && s.Status == StatusDraft {
		ids := make([]string, len(open))
		for i, c := range open {
			ids[i] = c.ID
		}
		return nil, &ConflictUnresolvedError{ScheduleID: s.ID, ConflictIDs: ids}
	}
	if err := s.transition(StatusFinalized); err != nil {
		return nil, err
	}
	now := p.now().UTC()
	s.FinalizedBy = operatorID
	s.FinalizedAt = &now
	if err := p.store.Update(ctx, s, s.Version); err != nil {
		return nil, fmt.Errorf("update schedule: %w", err)
	}
	if err := p.append(ctx, s, Entry{Kind: EntryFinalized, OperatorID: operatorID}); err != nil {
		return nil, err
	}
	p.log.Infof("schedule %s finalized by %s", s.ID, operatorID)
	return s, nil
}

// MarkExecuted records that the operating day of a finalized schedule began.
func (p *Publisher) MarkExecuted(ctx context.Context, scheduleID string) (*Schedule, error) {
	unlock := p.lock(scheduleID)
	defer unlock()
	s, err := p.store.Get(ctx, scheduleID)
	if err != nil {
		return nil, err
	}
	if err := s.transition(StatusExecuted); err != nil {
		return nil, err
	}
	now := p.now().UTC()
	s.ExecutedAt = &now
	if err := p.store.Update(ctx, s, s.Version); err != nil {
		return nil, fmt.Errorf("update schedule: %w", err)
	}
	if err := p.append(ctx, s, Entry{Kind: EntryExecuted}); err != nil {
		return nil, err
	}
	return s, nil
}

// AppendOverride layers an operator change on a finalized or executed
// schedule. The planner's assignment arrays are left untouched.
func (p *Publisher) AppendOverride(ctx context.Context, scheduleID string, req OverrideRequest) (*Schedule, error) {
	switch {
	case strings.TrimSpace(req.OperatorID) == "":
		return nil, fmt.Errorf("%w: operator id is required", ErrInvalidOverride)
	case strings.TrimSpace(req.Reason) == "":
		return nil, fmt.Errorf("%w: reason is required", ErrInvalidOverride)
	case !model.ValidCategory(req.NewAssignment):
		return nil, fmt.Errorf("%w: unknown assignment %q", ErrInvalidOverride, req.NewAssignment)
	}
	unlock := p.lock(scheduleID)
	defer unlock()
	s, err := p.store.Get(ctx, scheduleID)
	if err != nil {
		return nil, err
	}
	if s.Status == StatusDraft {
		return nil, &TransitionError{ScheduleID: s.ID, From: s.Status, To: StatusFinalized}
	}
	cur, ok := s.Current(req.TrainsetID)
	if !ok {
		return nil, fmt.Errorf("trainset %s: %w", req.TrainsetID, ErrNotFound)
	}
	if cur == req.NewAssignment {
		return nil, fmt.Errorf("%w: %s is already %s", ErrInvalidOverride, req.TrainsetID, cur)
	}
	if why, ok := s.Restrictions[req.TrainsetID]; ok && req.NewAssignment == model.CategoryService {
		return nil, fmt.Errorf("%w: %s (%s)", conflict.ErrUnsafeOverride, req.TrainsetID, why)
	}
	orig, _ := s.Original(req.TrainsetID)
	now := p.now().UTC()
	s.ManualOverrides = append(s.ManualOverrides, ManualOverride{
		TrainsetID:         req.TrainsetID,
		OriginalAssignment: orig,
		NewAssignment:      req.NewAssignment,
		Reason:             req.Reason,
		OverriddenBy:       req.OperatorID,
		Timestamp:          now,
	})
	s.ResultCode = CodeResolvedWithOverrides
	if err := p.store.Update(ctx, s, s.Version); err != nil {
		return nil, fmt.Errorf("update schedule: %w", err)
	}
	if err := p.append(ctx, s, Entry{
		Kind:       EntryManualOverride,
		TrainsetID: req.TrainsetID,
		OperatorID: req.OperatorID,
		Reason:     req.Reason,
		From:       cur,
		To:         req.NewAssignment,
	}); err != nil {
		return nil, err
	}
	p.log.Infof("schedule %s: %s moved %s -> %s by %s", s.ID, req.TrainsetID, cur, req.NewAssignment, req.OperatorID)
	return s, nil
}

// Ledger returns the audit trail of a schedule.
func (p *Publisher) Ledger(ctx context.Context, scheduleID string) ([]Entry, error) {
	return p.ledger.List(ctx, scheduleID)
}

func (p *Publisher) append(ctx context.Context, s *Schedule, e Entry) error {
	e.ID = p.newID()
	e.ScheduleID = s.ID
	e.DepotID = s.DepotID
	if e.At.IsZero() {
		e.At = p.now().UTC()
	}
	if err := p.ledger.Append(ctx, e); err != nil {
		return fmt.Errorf("append ledger: %w", err)
	}
	if p.notify != nil {
		p.notify(e, s.Clone())
	}
	return nil
}

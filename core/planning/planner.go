package planning

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/kilianp07/induction/core/conflict"
	"github.com/kilianp07/induction/core/events"
	"github.com/kilianp07/induction/core/induction"
	"github.com/kilianp07/induction/core/logger"
	"github.com/kilianp07/induction/core/monitoring"
	"github.com/kilianp07/induction/core/schedule"
	"github.com/kilianp07/induction/core/snapshot"
	"github.com/kilianp07/induction/internal/eventbus"
)

// DefaultOperator signs drafts produced without an operator.
const DefaultOperator = "induction-planner"

// RunResult is the outcome of one planning run.
type RunResult struct {
	Schedule  *schedule.Schedule  `json:"schedule,omitempty"`
	Conflicts []conflict.Conflict `json:"conflicts"`
	Code      schedule.ResultCode `json:"code"`
	Reason    string              `json:"reason,omitempty"`
}

// Planner runs the nightly pipeline for a depot and exposes the operator
// decisions taken on its drafts.
type Planner struct {
	builder   *snapshot.Builder
	adapter   *induction.Adapter
	detector  *conflict.Detector
	publisher *schedule.Publisher
	bus       eventbus.EventBus
	log       logger.Logger
	operator  string
	now       func() time.Time
	newID     func() string
}

// NewPlanner wires the pipeline stages. The bus may be nil.
func NewPlanner(builder *snapshot.Builder, adapter *induction.Adapter, detector *conflict.Detector, publisher *schedule.Publisher, bus eventbus.EventBus, log logger.Logger) (*Planner, error) {
	if builder == nil || adapter == nil || detector == nil || publisher == nil {
		return nil, fmt.Errorf("planning: nil parameter provided to NewPlanner")
	}
	p := &Planner{
		builder:   builder,
		adapter:   adapter,
		detector:  detector,
		publisher: publisher,
		bus:       bus,
		log:       logger.OrNop(log),
		operator:  DefaultOperator,
		now:       time.Now,
		newID:     uuid.NewString,
	}
	publisher.Notify(p.publishEntry)
	return p, nil
}

// SetOperator sets the identity recorded as creator of new drafts.
func (p *Planner) SetOperator(id string) {
	if id != "" {
		p.operator = id
	}
}

// WithClock replaces the clock used for timestamps and durations.
func (p *Planner) WithClock(now func() time.Time) *Planner {
	p.now = now
	return p
}

// RunInductionPlanning builds the snapshot for depotID and date, solves it,
// detects conflicts and stores the result as a draft. An infeasible
// snapshot returns a result with CodeInfeasible along with the
// *induction.InfeasibleModelError.
func (p *Planner) RunInductionPlanning(ctx context.Context, depotID string, date time.Time) (*RunResult, error) {
	date = snapshot.Day(date)
	release, err := p.publisher.Reserve(ctx, depotID, date)
	if err != nil {
		p.log.Infof("planning run for %s on %s rejected: %v", depotID, date.Format(time.DateOnly), err)
		return nil, err
	}
	defer release()

	start := p.now()
	ev := events.RunEvent{DepotID: depotID, Date: date}
	done := func(res *RunResult, err error) (*RunResult, error) {
		ev.Duration = p.now().Sub(start)
		ev.At = p.now().UTC()
		ev.Err = err
		if res != nil {
			ev.Code = res.Code
			ev.Reason = res.Reason
			ev.Schedule = res.Schedule
		}
		p.publish(ev)
		return res, err
	}

	snap, err := p.builder.Build(ctx, depotID, date)
	if err != nil {
		var die *snapshot.DataIncompleteError
		if errors.As(err, &die) {
			p.log.Errorf("planning run for %s aborted: %v", depotID, err)
			monitoring.CaptureException(err, monitoring.RunTags(depotID, date, monitoring.StageSnapshot))
		}
		return done(nil, fmt.Errorf("build snapshot: %w", err))
	}

	plan, err := p.adapter.Plan(ctx, snap)
	if err != nil {
		var inf *induction.InfeasibleModelError
		if errors.As(err, &inf) {
			p.log.Errorf("planning run for %s infeasible: %v", depotID, inf)
			monitoring.CaptureException(err, monitoring.RunTags(depotID, date, monitoring.StageSolve))
			return done(&RunResult{Conflicts: []conflict.Conflict{}, Code: schedule.CodeInfeasible, Reason: inf.Error()}, err)
		}
		if ctx.Err() == nil {
			monitoring.CaptureException(err, monitoring.RunTags(depotID, date, monitoring.StageSolve))
		}
		return done(nil, fmt.Errorf("solve: %w", err))
	}
	ev.Nodes = plan.Nodes

	conflicts := p.detector.Detect(snap, plan)
	draft := schedule.FromPlan(p.newID(), snap, plan, conflicts, p.operator, p.now())
	res := &RunResult{Conflicts: draft.Conflicts, Code: draft.ResultCode}
	if plan.Fallback != nil {
		res.Reason = plan.Fallback.Error()
		p.log.Warnf("planning run for %s degraded: %v", depotID, plan.Fallback)
	}
	stored, err := p.publisher.PublishDraft(ctx, draft)
	if err != nil {
		monitoring.CaptureException(err, monitoring.RunTags(depotID, date, monitoring.StagePublish))
		return done(nil, fmt.Errorf("publish draft: %w", err))
	}
	res.Schedule = stored
	p.log.Infof("planning run for %s on %s: %s, %d conflicts", depotID, date.Format(time.DateOnly), res.Code, len(res.Conflicts))
	return done(res, nil)
}

// ResolveConflict records an operator decision on one conflict of a draft.
func (p *Planner) ResolveConflict(ctx context.Context, scheduleID, conflictID string, r conflict.Resolution) (conflict.Conflict, error) {
	_, c, err := p.publisher.Resolve(ctx, scheduleID, conflictID, r)
	if err != nil {
		p.log.Infof("resolve %s on %s rejected: %v", conflictID, scheduleID, err)
		return conflict.Conflict{}, err
	}
	return c, nil
}

// FinalizeSchedule commits a draft once every conflict is resolved.
func (p *Planner) FinalizeSchedule(ctx context.Context, scheduleID, operatorID string) (*schedule.Schedule, error) {
	s, err := p.publisher.Finalize(ctx, scheduleID, operatorID)
	if err != nil {
		var cu *schedule.ConflictUnresolvedError
		if errors.As(err, &cu) {
			p.log.Infof("finalize %s blocked by %d conflicts", scheduleID, len(cu.ConflictIDs))
		}
		return nil, err
	}
	return s, nil
}

// ApplyOverride layers an operator change on a committed schedule.
func (p *Planner) ApplyOverride(ctx context.Context, scheduleID string, req schedule.OverrideRequest) (*schedule.Schedule, error) {
	return p.publisher.AppendOverride(ctx, scheduleID, req)
}

// MarkExecuted flags the finalized schedule of depotID and date as executed.
func (p *Planner) MarkExecuted(ctx context.Context, depotID string, date time.Time) (*schedule.Schedule, error) {
	s, err := p.publisher.Find(ctx, depotID, snapshot.Day(date))
	if err != nil {
		return nil, err
	}
	return p.publisher.MarkExecuted(ctx, s.ID)
}

// Schedule returns a stored schedule.
func (p *Planner) Schedule(ctx context.Context, id string) (*schedule.Schedule, error) {
	return p.publisher.Get(ctx, id)
}

// Schedules lists the schedules of a depot.
func (p *Planner) Schedules(ctx context.Context, depotID string) ([]*schedule.Schedule, error) {
	return p.publisher.List(ctx, depotID)
}

// Ledger returns the audit trail of a schedule.
func (p *Planner) Ledger(ctx context.Context, scheduleID string) ([]schedule.Entry, error) {
	if _, err := p.publisher.Get(ctx, scheduleID); err != nil {
		return nil, err
	}
	return p.publisher.Ledger(ctx, scheduleID)
}

func (p *Planner) publishEntry(e schedule.Entry, s *schedule.Schedule) {
	p.publish(events.ScheduleEvent{Entry: e, Schedule: s})
}

func (p *Planner) publish(ev eventbus.Event) {
	if p.bus != nil {
		p.bus.Publish(ev)
	}
}

// Package schedule holds the published induction schedule, its lifecycle
// and the append-only record of every decision taken on it.
package schedule

import (
	"maps"
	"slices"
	"sort"
	"strings"
	"time"

	"github.com/kilianp07/induction/core/conflict"
	"github.com/kilianp07/induction/core/induction"
	"github.com/kilianp07/induction/core/model"
	"github.com/kilianp07/induction/core/snapshot"
)

// Status is the lifecycle state of a schedule.
type Status string

const (
	StatusDraft     Status = "draft"
	StatusFinalized Status = "finalized"
	StatusExecuted  Status = "executed"
)

// ResultCode summarises how a schedule came to be.
type ResultCode string

const (
	CodeOptimal               ResultCode = "Optimal"
	CodeResolvedWithOverrides ResultCode = "ResolvedWithOverrides"
	CodeInfeasible            ResultCode = "Infeasible"
	CodeTimedOutFallback      ResultCode = "TimedOutFallback"
)

// Assignments are the per-state trainset lists of a schedule.
type Assignments struct {
	ReadyForService    []string `json:"readyForService"`
	OnStandby          []string `json:"onStandby"`
	HeldForMaintenance []string `json:"heldForMaintenance"`
	RemovedFromService []string `json:"removedFromService,omitempty"`
}

func (a Assignments) category(id string) (model.Category, bool) {
	for _, l := range []struct {
		c   model.Category
		ids []string
	}{
		{model.CategoryService, a.ReadyForService},
		{model.CategoryStandby, a.OnStandby},
		{model.CategoryMaintenance, a.HeldForMaintenance},
		{model.CategoryRemoved, a.RemovedFromService},
	} {
		for _, v := range l.ids {
			if v == id {
				return l.c, true
			}
		}
	}
	return "", false
}

// ManualOverride is one operator change layered over a schedule.
type ManualOverride struct {
	TrainsetID         string         `json:"trainsetId"`
	OriginalAssignment model.Category `json:"originalAssignment"`
	NewAssignment      model.Category `json:"newAssignment"`
	Reason             string         `json:"reason"`
	OverriddenBy       string         `json:"overriddenBy"`
	Timestamp          time.Time      `json:"timestamp"`
	ConflictID         string         `json:"conflictId,omitempty"`
}

// Schedule is the induction decision for one depot and operating day.
// Assignments hold the planner's output and never change once finalized;
// operator changes live in ManualOverrides.
type Schedule struct {
	ID                  string                           `json:"id"`
	DepotID             string                           `json:"depotId"`
	Date                time.Time                        `json:"date"`
	Status              Status                           `json:"status"`
	Assignments         Assignments                      `json:"assignments"`
	Bays                map[string]string                `json:"bays"`
	Cleaning            []string                         `json:"cleaning"`
	Explanations        map[string]induction.Explanation `json:"explanations"`
	Conflicts           []conflict.Conflict              `json:"conflicts"`
	ManualOverrides     []ManualOverride                 `json:"manualOverrides"`
	Restrictions        map[string]string                `json:"restrictions,omitempty"`
	CreatedBy           string                           `json:"createdBy"`
	CreatedAt           time.Time                        `json:"createdAt"`
	FinalizedBy         string                           `json:"finalizedBy,omitempty"`
	FinalizedAt         *time.Time                       `json:"finalizedAt,omitempty"`
	ExecutedAt          *time.Time                       `json:"executedAt,omitempty"`
	Quality             induction.Quality                `json:"quality"`
	ResultCode          ResultCode                       `json:"resultCode"`
	Objective           float64                          `json:"objective"`
	ObjectiveTerms      map[string]float64               `json:"objectiveTerms"`
	SnapshotFingerprint string                           `json:"snapshotFingerprint"`
	Notes               string                           `json:"notes,omitempty"`
	Version             int                              `json:"version"`
}

// FromPlan builds a draft schedule from a validated plan.
func FromPlan(id string, snap *snapshot.PlanningSnapshot, plan *induction.Plan, conflicts []conflict.Conflict, createdBy string, now time.Time) *Schedule {
	s := &Schedule{
		ID:                  id,
		DepotID:             snap.DepotID,
		Date:                snap.Date,
		Status:              StatusDraft,
		Assignments:         Assignments{ReadyForService: plan.InState(model.StateService), OnStandby: plan.InState(model.StateStandby), HeldForMaintenance: plan.InState(model.StateIBL)},
		Bays:                plan.Bays(),
		Cleaning:            plan.Cleaning(),
		Explanations:        make(map[string]induction.Explanation, len(plan.Assignments)),
		Conflicts:           conflicts,
		ManualOverrides:     []ManualOverride{},
		Restrictions:        make(map[string]string),
		CreatedBy:           createdBy,
		CreatedAt:           now.UTC(),
		Quality:             plan.Quality,
		ResultCode:          CodeOptimal,
		Objective:           plan.Objective,
		ObjectiveTerms:      plan.Terms,
		SnapshotFingerprint: snap.Fingerprint(),
	}
	if plan.Quality == induction.QualityDegraded {
		s.ResultCode = CodeTimedOutFallback
	}
	if s.Conflicts == nil {
		s.Conflicts = []conflict.Conflict{}
	}
	for _, a := range plan.Assignments {
		s.Explanations[a.TrainsetID] = a.Explanation
	}
	for _, t := range snap.Trainsets {
		switch {
		case t.OpenCriticalJobCard:
			s.Restrictions[t.ID] = "open critical job card"
		case !t.Certificates.Valid():
			s.Restrictions[t.ID] = "failed certificates: " + strings.Join(t.Certificates.Failed(), ", ")
		}
	}
	return s
}

// Original returns the planner's category for a trainset.
func (s *Schedule) Original(trainsetID string) (model.Category, bool) {
	return s.Assignments.category(trainsetID)
}

// Current returns the category of a trainset after every override.
func (s *Schedule) Current(trainsetID string) (model.Category, bool) {
	c, ok := s.Original(trainsetID)
	if !ok {
		return "", false
	}
	for _, o := range s.ManualOverrides {
		if o.TrainsetID == trainsetID {
			c = o.NewAssignment
		}
	}
	return c, true
}

// Effective replays the manual overrides over the original assignments.
func (s *Schedule) Effective() Assignments {
	cur := make(map[string]model.Category)
	for _, l := range [][]string{s.Assignments.ReadyForService, s.Assignments.OnStandby, s.Assignments.HeldForMaintenance, s.Assignments.RemovedFromService} {
		for _, id := range l {
			cur[id], _ = s.Original(id)
		}
	}
	for _, o := range s.ManualOverrides {
		cur[o.TrainsetID] = o.NewAssignment
	}
	out := Assignments{ReadyForService: []string{}, OnStandby: []string{}, HeldForMaintenance: []string{}}
	for id, c := range cur {
		switch c {
		case model.CategoryService:
			out.ReadyForService = append(out.ReadyForService, id)
		case model.CategoryStandby:
			out.OnStandby = append(out.OnStandby, id)
		case model.CategoryMaintenance:
			out.HeldForMaintenance = append(out.HeldForMaintenance, id)
		case model.CategoryRemoved:
			out.RemovedFromService = append(out.RemovedFromService, id)
		}
	}
	for _, l := range [][]string{out.ReadyForService, out.OnStandby, out.HeldForMaintenance, out.RemovedFromService} {
		sort.Strings(l)
	}
	return out
}

// Conflict returns the index of the conflict with the given id, or -1.
func (s *Schedule) Conflict(id string) int {
	for i, c := range s.Conflicts {
		if c.ID == id {
			return i
		}
	}
	return -1
}

// Clone returns a deep copy so stored schedules cannot be mutated through
// shared slices or maps.
func (s *Schedule) Clone() *Schedule {
	out := *s
	out.Assignments = Assignments{
		ReadyForService:    slices.Clone(s.Assignments.ReadyForService),
		OnStandby:          slices.Clone(s.Assignments.OnStandby),
		HeldForMaintenance: slices.Clone(s.Assignments.HeldForMaintenance),
		RemovedFromService: slices.Clone(s.Assignments.RemovedFromService),
	}
	out.Bays = maps.Clone(s.Bays)
	out.Cleaning = slices.Clone(s.Cleaning)
	out.Explanations = make(map[string]induction.Explanation, len(s.Explanations))
	for k, v := range s.Explanations {
		v.Terms = maps.Clone(v.Terms)
		out.Explanations[k] = v
	}
	out.Conflicts = make([]conflict.Conflict, len(s.Conflicts))
	for i, c := range s.Conflicts {
		c.Claims = slices.Clone(c.Claims)
		c.Competitors = slices.Clone(c.Competitors)
		if c.Resolution.NewState != nil {
			ns := *c.Resolution.NewState
			c.Resolution.NewState = &ns
		}
		out.Conflicts[i] = c
	}
	out.ManualOverrides = slices.Clone(s.ManualOverrides)
	out.Restrictions = maps.Clone(s.Restrictions)
	out.ObjectiveTerms = maps.Clone(s.ObjectiveTerms)
	if s.FinalizedAt != nil {
		t := *s.FinalizedAt
		out.FinalizedAt = &t
	}
	if s.ExecutedAt != nil {
		t := *s.ExecutedAt
		out.ExecutedAt = &t
	}
	return &out
}

var transitions = map[Status]Status{
	StatusDraft:     StatusFinalized,
	StatusFinalized: StatusExecuted,
}

// transition moves s to the next status or fails with ErrInvalidTransition.
func (s *Schedule) transition(to Status) error {
	if next, ok := transitions[s.Status]; !ok || next != to {
		return &TransitionError{ScheduleID: s.ID, From: s.Status, To: to}
	}
	s.Status = to
	return nil
}

func sortSchedules(ss []*Schedule) {
	sort.Slice(ss, func(i, j int) bool {
		if !ss[i].Date.Equal(ss[j].Date) {
			return ss[i].Date.Before(ss[j].Date)
		}
		return ss[i].DepotID < ss[j].DepotID
	})
}

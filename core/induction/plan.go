package induction

import (
	"sort"

	"github.com/kilianp07/induction/core/model"
)

// Quality tells whether a plan is proven optimal or came from the fallback.
type Quality string

const (
	QualityOptimal  Quality = "optimal"
	QualityDegraded Quality = "degraded"
)

// Cause classifies what determined a trainset's state.
type Cause string

const (
	CauseHard     Cause = "hard_constraint"
	CauseSoft     Cause = "soft_objective"
	CauseTieBreak Cause = "tie_break"
	CauseCapacity Cause = "capacity_limit"
)

// Explanation tells an operator why a trainset received its state. Terms
// holds, per objective term, the extra cost the closest alternative state
// would have incurred.
type Explanation struct {
	Cause      Cause              `json:"cause"`
	Constraint string             `json:"constraint"`
	Detail     string             `json:"detail"`
	Terms      map[string]float64 `json:"terms,omitempty"`
}

// Assignment is the decision for one trainset.
type Assignment struct {
	TrainsetID  string      `json:"trainsetId"`
	State       model.State `json:"state"`
	Bay         string      `json:"bay"`
	Cleaned     bool        `json:"cleaned"`
	Explanation Explanation `json:"explanation"`
}

// Plan is a validated induction plan for one depot and date.
type Plan struct {
	DepotID     string             `json:"depotId"`
	Assignments []Assignment       `json:"assignments"`
	Quality     Quality            `json:"quality"`
	Objective   float64            `json:"objective"`
	Terms       map[string]float64 `json:"terms"`
	Nodes       int                `json:"nodes"`
	// Fallback is the *SolverTimeoutError of a degraded plan.
	Fallback error `json:"-"`
}

// Assignment returns the decision for the given trainset.
func (p *Plan) Assignment(id string) (Assignment, bool) {
	i := sort.Search(len(p.Assignments), func(i int) bool { return p.Assignments[i].TrainsetID >= id })
	if i < len(p.Assignments) && p.Assignments[i].TrainsetID == id {
		return p.Assignments[i], true
	}
	return Assignment{}, false
}

// InState returns the sorted ids of trainsets assigned state s.
func (p *Plan) InState(s model.State) []string {
	out := []string{}
	for _, a := range p.Assignments {
		if a.State == s {
			out = append(out, a.TrainsetID)
		}
	}
	return out
}

// Cleaning returns the sorted ids of trainsets given a cleaning slot.
func (p *Plan) Cleaning() []string {
	out := []string{}
	for _, a := range p.Assignments {
		if a.Cleaned {
			out = append(out, a.TrainsetID)
		}
	}
	return out
}

// Bays maps trainset ids to their assigned bay.
func (p *Plan) Bays() map[string]string {
	out := make(map[string]string, len(p.Assignments))
	for _, a := range p.Assignments {
		out[a.TrainsetID] = a.Bay
	}
	return out
}

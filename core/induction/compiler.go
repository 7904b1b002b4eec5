package induction

import (
	"fmt"
	"math"

	"github.com/kilianp07/induction/core/logger"
	"github.com/kilianp07/induction/core/milp"
	"github.com/kilianp07/induction/core/model"
	"github.com/kilianp07/induction/core/snapshot"
)

// Constraint classes of the compiled programs.
const (
	ClassExactlyOneState  = "exactly_one_state"
	ClassCertificate      = "certificate"
	ClassJobCard          = "job_card"
	ClassServiceQuota     = "service_quota"
	ClassIBLCapacity      = "ibl_capacity"
	ClassStablingCapacity = "stabling_capacity"
	ClassCleaningLink     = "cleaning_link"
	ClassCleaningCapacity = "cleaning_capacity"
	ClassMileage          = "mileage"
	ClassBranding         = "branding"
	ClassExactlyOneBay    = "exactly_one_bay"
	ClassBayCapacity      = "bay_capacity"
)

// StateVars are the stage-one variables of one trainset.
type StateVars struct {
	State       [3]milp.VarID
	Clean       milp.VarID
	MileagePen  milp.VarID
	BrandingPen milp.VarID
}

// StateProgram is the compiled state-selection model. Vars is aligned with
// the snapshot's trainsets.
type StateProgram struct {
	Snapshot      *snapshot.PlanningSnapshot
	Model         *milp.Model
	Vars          []StateVars
	IBLLimit      int
	CleaningLimit int
	StablingLimit int

	ranks []int
}

// Values builds the full variable vector of a state decision, penalties
// included, as needed for hints and evaluation.
func (p *StateProgram) Values(states []model.State, cleaned []bool) []float64 {
	vals := make([]float64, len(p.Model.Vars))
	snap := p.Snapshot
	pol := snap.Policy
	target := mileageTarget(snap)
	for i, t := range snap.Trainsets {
		v := p.Vars[i]
		vals[v.State[states[i]]] = 1
		if cleaned[i] {
			vals[v.Clean] = 1
		}
		m := t.Mileage
		if states[i] == model.StateService {
			m += pol.DailyServiceKm
		}
		vals[v.MileagePen] = pol.MileageFactor * math.Abs(m-target)
		if t.Branding != nil && states[i] != model.StateService {
			vals[v.BrandingPen] = pol.Tiers.Terms(t.Tier()).HoursNeeded
		}
	}
	return vals
}

// BayPair is a compatible trainset/bay combination of the stabling program.
type BayPair struct {
	Trainset int
	Bay      int
	Var      milp.VarID
}

// StablingProgram is the compiled bay-allocation model for fixed states.
type StablingProgram struct {
	Snapshot *snapshot.PlanningSnapshot
	Model    *milp.Model
	States   []model.State
	Cleaned  []bool
	Pairs    []BayPair

	byTrainset [][]int
}

// Values builds the variable vector placing trainset i in bay bays[i].
func (p *StablingProgram) Values(bays []int) []float64 {
	vals := make([]float64, len(p.Model.Vars))
	for i, b := range bays {
		for _, k := range p.byTrainset[i] {
			if p.Pairs[k].Bay == b {
				vals[p.Pairs[k].Var] = 1
			}
		}
	}
	return vals
}

func (p *StablingProgram) distance(pair BayPair) float64 {
	t := p.Snapshot.Trainsets[pair.Trainset]
	if t.CurrentBay == "" {
		return 0
	}
	from, ok := p.Snapshot.Bay(t.CurrentBay)
	if !ok {
		return 0
	}
	return from.Distance(p.Snapshot.Bays[pair.Bay])
}

// Compiler translates snapshots into milp models.
type Compiler struct {
	log logger.Logger
}

// NewCompiler returns a Compiler.
func NewCompiler(log logger.Logger) *Compiler {
	return &Compiler{log: logger.OrNop(log)}
}

// CompileStates builds the stage-one model: one state per trainset,
// eligibility fixings, the service quota, IBL, stabling and cleaning
// capacities and the penalty linearizations.
func (c *Compiler) CompileStates(snap *snapshot.PlanningSnapshot) *StateProgram {
	pol := snap.Policy
	counts := snap.BayCounts()
	p := &StateProgram{
		Snapshot:      snap,
		Model:         milp.NewModel("states/" + snap.DepotID),
		Vars:          make([]StateVars, len(snap.Trainsets)),
		IBLLimit:      min(pol.IBLCapacity, counts[model.BayMaintenance]+counts[model.BayWash]),
		CleaningLimit: min(pol.CleaningSlots, counts[model.BayWash]),
		StablingLimit: counts[model.BayStabling],
		ranks:         serviceRanks(snap),
	}
	m := p.Model
	target := mileageTarget(snap)

	var service, ibl, stabled, clean []milp.Term
	for i, t := range snap.Trainsets {
		v := &p.Vars[i]
		for _, s := range model.States {
			v.State[s] = m.Binary(fmt.Sprintf("x[%s,%s]", t.ID, s))
		}
		v.Clean = m.Binary(fmt.Sprintf("clean[%s]", t.ID))
		v.MileagePen = m.Continuous(fmt.Sprintf("mileage_pen[%s]", t.ID))
		v.BrandingPen = m.Continuous(fmt.Sprintf("branding_pen[%s]", t.ID))

		m.Add(milp.Constraint{
			Name:  "exactly_one_state[" + t.ID + "]",
			Class: ClassExactlyOneState,
			Terms: []milp.Term{{Var: v.State[0], Coef: 1}, {Var: v.State[1], Coef: 1}, {Var: v.State[2], Coef: 1}},
			Sense: milp.Equal,
			RHS:   1,
		})

		serviceFixed := false
		switch {
		case t.OpenCriticalJobCard:
			m.Fix(v.State[model.StateService], 0, ClassJobCard)
			m.Fix(v.State[model.StateStandby], 0, ClassJobCard)
			m.Fix(v.State[model.StateIBL], 1, ClassJobCard)
			serviceFixed = true
		case !t.Certificates.Valid():
			m.Fix(v.State[model.StateService], 0, ClassCertificate)
			serviceFixed = true
		}

		if t.CleaningDue {
			m.Add(milp.Constraint{
				Name:  "cleaning_link[" + t.ID + "]",
				Class: ClassCleaningLink,
				Terms: []milp.Term{{Var: v.Clean, Coef: 1}, {Var: v.State[model.StateIBL], Coef: -1}},
				Sense: milp.LessEq,
			})
			clean = append(clean, milp.Term{Var: v.Clean, Coef: 1})
		} else {
			m.Fix(v.Clean, 0, "not_due")
		}

		// Mileage deviation |k·(m + r·x_S − T)|, constant when the service
		// decision cannot change it.
		k, r := pol.MileageFactor, pol.DailyServiceKm
		if serviceFixed || r == 0 {
			m.Fix(v.MileagePen, k*math.Abs(t.Mileage-target), ClassMileage)
		} else {
			m.Add(milp.Constraint{
				Name:  "mileage_over[" + t.ID + "]",
				Class: ClassMileage,
				Terms: []milp.Term{{Var: v.MileagePen, Coef: 1}, {Var: v.State[model.StateService], Coef: -k * r}},
				Sense: milp.GreaterEq,
				RHS:   k * (t.Mileage - target),
			})
			m.Add(milp.Constraint{
				Name:  "mileage_under[" + t.ID + "]",
				Class: ClassMileage,
				Terms: []milp.Term{{Var: v.MileagePen, Coef: 1}, {Var: v.State[model.StateService], Coef: k * r}},
				Sense: milp.GreaterEq,
				RHS:   k * (target - t.Mileage),
			})
		}

		hours := pol.Tiers.Terms(t.Tier()).HoursNeeded
		switch {
		case hours == 0:
			m.Fix(v.BrandingPen, 0, ClassBranding)
		case serviceFixed:
			m.Fix(v.BrandingPen, hours, ClassBranding)
		default:
			m.Add(milp.Constraint{
				Name:  "branding[" + t.ID + "]",
				Class: ClassBranding,
				Terms: []milp.Term{{Var: v.BrandingPen, Coef: 1}, {Var: v.State[model.StateService], Coef: hours}},
				Sense: milp.GreaterEq,
				RHS:   hours,
			})
		}

		service = append(service, milp.Term{Var: v.State[model.StateService], Coef: 1})
		ibl = append(ibl, milp.Term{Var: v.State[model.StateIBL], Coef: 1})
		stabled = append(stabled,
			milp.Term{Var: v.State[model.StateService], Coef: 1},
			milp.Term{Var: v.State[model.StateStandby], Coef: 1})
	}

	m.Add(milp.Constraint{Name: ClassServiceQuota, Class: ClassServiceQuota, Terms: service, Sense: milp.Equal, RHS: float64(pol.ServiceQuota)})
	m.Add(milp.Constraint{Name: ClassIBLCapacity, Class: ClassIBLCapacity, Terms: ibl, Sense: milp.LessEq, RHS: float64(p.IBLLimit)})
	m.Add(milp.Constraint{Name: ClassStablingCapacity, Class: ClassStablingCapacity, Terms: stabled, Sense: milp.LessEq, RHS: float64(p.StablingLimit)})
	if len(clean) > 0 {
		m.Add(milp.Constraint{Name: ClassCleaningCapacity, Class: ClassCleaningCapacity, Terms: clean, Sense: milp.LessEq, RHS: float64(p.CleaningLimit)})
	}

	c.log.Debugw("state model compiled", map[string]any{
		"depot":       snap.DepotID,
		"variables":   len(m.Vars),
		"constraints": len(m.Constraints),
		"ibl_limit":   p.IBLLimit,
		"clean_limit": p.CleaningLimit,
	})
	return p
}

// CompileStabling builds the stage-two model placing every trainset in one
// compatible bay, each bay holding at most one trainset.
func (c *Compiler) CompileStabling(snap *snapshot.PlanningSnapshot, states []model.State, cleaned []bool) (*StablingProgram, error) {
	p := &StablingProgram{
		Snapshot:   snap,
		Model:      milp.NewModel("stabling/" + snap.DepotID),
		States:     states,
		Cleaned:    cleaned,
		byTrainset: make([][]int, len(snap.Trainsets)),
	}
	m := p.Model
	perBay := make([][]milp.Term, len(snap.Bays))
	for i, t := range snap.Trainsets {
		var row []milp.Term
		for j, b := range snap.Bays {
			if !b.Accepts(states[i], cleaned[i]) {
				continue
			}
			v := m.Binary(fmt.Sprintf("y[%s,%s]", t.ID, b.ID))
			p.byTrainset[i] = append(p.byTrainset[i], len(p.Pairs))
			p.Pairs = append(p.Pairs, BayPair{Trainset: i, Bay: j, Var: v})
			row = append(row, milp.Term{Var: v, Coef: 1})
			perBay[j] = append(perBay[j], milp.Term{Var: v, Coef: 1})
		}
		if len(row) == 0 {
			return nil, &InfeasibleModelError{
				Class:  ClassExactlyOneBay,
				Detail: fmt.Sprintf("no bay accepts %s in state %s", t.ID, states[i]),
			}
		}
		m.Add(milp.Constraint{Name: "exactly_one_bay[" + t.ID + "]", Class: ClassExactlyOneBay, Terms: row, Sense: milp.Equal, RHS: 1})
	}
	for j, terms := range perBay {
		if len(terms) < 2 {
			continue
		}
		m.Add(milp.Constraint{Name: "bay_capacity[" + snap.Bays[j].ID + "]", Class: ClassBayCapacity, Terms: terms, Sense: milp.LessEq, RHS: 1})
	}
	c.log.Debugw("stabling model compiled", map[string]any{
		"depot":       snap.DepotID,
		"variables":   len(m.Vars),
		"constraints": len(m.Constraints),
	})
	return p, nil
}

// Diagnose names the constraint class that makes the snapshot infeasible,
// or returns nil when no aggregate capacity argument rules it out.
func Diagnose(snap *snapshot.PlanningSnapshot) *InfeasibleModelError {
	pol := snap.Policy
	counts := snap.BayCounts()
	n := len(snap.Trainsets)
	iblLimit := min(pol.IBLCapacity, counts[model.BayMaintenance]+counts[model.BayWash])
	var eligible, forced int
	for _, t := range snap.Trainsets {
		if t.ServiceEligible() {
			eligible++
		}
		if t.OpenCriticalJobCard {
			forced++
		}
	}
	switch {
	case forced > iblLimit:
		return &InfeasibleModelError{Class: ClassIBLCapacity, Detail: fmt.Sprintf("%d trainsets have open critical job cards but only %d IBL berths are usable", forced, iblLimit)}
	case eligible < pol.ServiceQuota:
		return &InfeasibleModelError{Class: ClassServiceQuota, Detail: fmt.Sprintf("service quota %d exceeds the %d service-eligible trainsets", pol.ServiceQuota, eligible)}
	case pol.ServiceQuota > counts[model.BayStabling]:
		return &InfeasibleModelError{Class: ClassStablingCapacity, Detail: fmt.Sprintf("service quota %d exceeds %d stabling bays", pol.ServiceQuota, counts[model.BayStabling])}
	case n-iblLimit > counts[model.BayStabling]:
		return &InfeasibleModelError{Class: ClassStablingCapacity, Detail: fmt.Sprintf("%d trainsets outside IBL need stabling but only %d stabling bays exist", n-iblLimit, counts[model.BayStabling])}
	case n > len(snap.Bays):
		return &InfeasibleModelError{Class: ClassBayCapacity, Detail: fmt.Sprintf("%d trainsets for %d bays", n, len(snap.Bays))}
	}
	return nil
}

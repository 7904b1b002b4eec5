package induction

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/kilianp07/induction/core/milp"
	"github.com/kilianp07/induction/core/model"
	"github.com/kilianp07/induction/core/snapshot"
)

const interpretTol = 1e-6

// decodeStates rounds stage-one values and checks that every trainset holds
// exactly one state.
func decodeStates(p *StateProgram, vals []float64) ([]model.State, []bool, error) {
	n := len(p.Snapshot.Trainsets)
	states := make([]model.State, n)
	cleaned := make([]bool, n)
	for i, v := range p.Vars {
		sum := 0.0
		chosen := -1
		for _, s := range model.States {
			x := vals[v.State[s]]
			sum += x
			if x > 0.5 {
				chosen = int(s)
			}
		}
		if chosen < 0 || math.Abs(sum-1) > interpretTol {
			return nil, nil, fmt.Errorf("%w: %s holds %.3f states", ErrInvariant, p.Snapshot.Trainsets[i].ID, sum)
		}
		states[i] = model.State(chosen)
		cleaned[i] = vals[v.Clean] > 0.5
	}
	return states, cleaned, nil
}

// decodeBays rounds stage-two values into one bay index per trainset.
func decodeBays(p *StablingProgram, vals []float64) ([]int, error) {
	bays := make([]int, len(p.Snapshot.Trainsets))
	for i, pairs := range p.byTrainset {
		bays[i] = -1
		sum := 0.0
		for _, k := range pairs {
			x := vals[p.Pairs[k].Var]
			sum += x
			if x > 0.5 {
				bays[i] = p.Pairs[k].Bay
			}
		}
		if bays[i] < 0 || math.Abs(sum-1) > interpretTol {
			return nil, fmt.Errorf("%w: %s holds %.3f bays", ErrInvariant, p.Snapshot.Trainsets[i].ID, sum)
		}
	}
	return bays, nil
}

// validate re-checks the hard rules on a decoded assignment.
func validate(snap *snapshot.PlanningSnapshot, p *StateProgram, states []model.State, cleaned []bool, bays []int) error {
	var problems []string
	var service, ibl, clean, stabled int
	used := make(map[int]string, len(bays))
	for i, t := range snap.Trainsets {
		s := states[i]
		switch {
		case t.OpenCriticalJobCard && s != model.StateIBL:
			problems = append(problems, t.ID+" has an open job card but is not in IBL")
		case !t.Certificates.Valid() && s == model.StateService:
			problems = append(problems, t.ID+" fails certificates but is in service")
		}
		if cleaned[i] {
			clean++
			if s != model.StateIBL {
				problems = append(problems, t.ID+" is cleaned outside IBL")
			}
		}
		switch s {
		case model.StateService:
			service++
			stabled++
		case model.StateStandby:
			stabled++
		case model.StateIBL:
			ibl++
		}
		if bays == nil {
			continue
		}
		b := bays[i]
		if other, ok := used[b]; ok {
			problems = append(problems, fmt.Sprintf("%s and %s share bay %s", other, t.ID, snap.Bays[b].ID))
		}
		used[b] = t.ID
		if !snap.Bays[b].Accepts(s, cleaned[i]) {
			problems = append(problems, fmt.Sprintf("%s in state %s cannot use bay %s", t.ID, s, snap.Bays[b].ID))
		}
	}
	if service != snap.Policy.ServiceQuota {
		problems = append(problems, fmt.Sprintf("%d in service, quota %d", service, snap.Policy.ServiceQuota))
	}
	if ibl > p.IBLLimit {
		problems = append(problems, fmt.Sprintf("%d in IBL, capacity %d", ibl, p.IBLLimit))
	}
	if clean > p.CleaningLimit {
		problems = append(problems, fmt.Sprintf("%d cleaned, %d slots", clean, p.CleaningLimit))
	}
	if stabled > p.StablingLimit {
		problems = append(problems, fmt.Sprintf("%d stabled, %d stabling bays", stabled, p.StablingLimit))
	}
	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", ErrInvariant, strings.Join(problems, "; "))
	}
	return nil
}

// explain tells why trainset i holds its state: the hard rule that forced
// it, otherwise the objective term that makes the closest alternative state
// the most expensive.
func explain(p *StateProgram, i int, states []model.State, cleaned []bool) Explanation {
	snap := p.Snapshot
	t := snap.Trainsets[i]
	s := states[i]
	if t.OpenCriticalJobCard {
		return Explanation{Cause: CauseHard, Constraint: ClassJobCard, Detail: "open critical job card forces IBL"}
	}
	if !t.Certificates.Valid() {
		return Explanation{Cause: CauseHard, Constraint: ClassCertificate, Detail: "failed certificates: " + strings.Join(t.Certificates.Failed(), ", ")}
	}

	actual := stateCost(snap, p.ranks, i, s, cleaned[i])
	bestAlt, bestDelta := model.State(-1), math.Inf(1)
	var bestTerms map[string]float64
	for _, alt := range model.States {
		if alt == s {
			continue
		}
		cost := stateCost(snap, p.ranks, i, alt, alt == model.StateIBL && t.CleaningDue)
		terms := make(map[string]float64)
		var total float64
		for _, k := range termKeys(actual, cost) {
			if d := cost[k] - actual[k]; math.Abs(d) > 1e-9 {
				terms[k] = d
				total += d
			}
		}
		if total < bestDelta {
			bestAlt, bestDelta, bestTerms = alt, total, terms
		}
	}

	if bestDelta <= 1e-9 {
		constraint := ClassIBLCapacity
		switch {
		case s == model.StateService || bestAlt == model.StateService:
			constraint = ClassServiceQuota
		case t.CleaningDue:
			constraint = ClassCleaningCapacity
		}
		return Explanation{
			Cause:      CauseCapacity,
			Constraint: constraint,
			Detail:     fmt.Sprintf("%s would be no more expensive but %s is exhausted", bestAlt, constraint),
			Terms:      bestTerms,
		}
	}

	driver, weight := "", math.Inf(-1)
	for _, k := range termKeys(bestTerms, nil) {
		if bestTerms[k] > weight {
			driver, weight = k, bestTerms[k]
		}
	}
	cause := CauseSoft
	if driver == TermTieBreak {
		cause = CauseTieBreak
	}
	return Explanation{
		Cause:      cause,
		Constraint: driver,
		Detail:     fmt.Sprintf("%s instead would add %.2f to the objective, %.2f from %s", bestAlt, bestDelta, weight, driver),
		Terms:      bestTerms,
	}
}

func termKeys(a, b map[string]float64) []string {
	seen := make(map[string]bool, len(a)+len(b))
	var keys []string
	for _, m := range []map[string]float64{a, b} {
		for k := range m {
			if !seen[k] {
				seen[k] = true
				keys = append(keys, k)
			}
		}
	}
	sort.Strings(keys)
	return keys
}

// Interpret decodes both stages, re-validates the hard rules and produces
// the per-trainset explanations.
func Interpret(sp *StateProgram, stateVals []float64, bp *StablingProgram, bayVals []float64) (*Plan, error) {
	states, cleaned, err := decodeStates(sp, stateVals)
	if err != nil {
		return nil, err
	}
	bays, err := decodeBays(bp, bayVals)
	if err != nil {
		return nil, err
	}
	snap := sp.Snapshot
	if err := validate(snap, sp, states, cleaned, bays); err != nil {
		return nil, err
	}

	plan := &Plan{
		DepotID:     snap.DepotID,
		Assignments: make([]Assignment, len(snap.Trainsets)),
		Quality:     QualityOptimal,
		Terms:       make(map[string]float64),
	}
	for _, b := range []milp.Breakdown{sp.Model.Evaluate(stateVals), bp.Model.Evaluate(bayVals)} {
		for k, v := range b.Terms {
			plan.Terms[k] += v
		}
		plan.Objective += b.Total
	}
	for i, t := range snap.Trainsets {
		plan.Assignments[i] = Assignment{
			TrainsetID:  t.ID,
			State:       states[i],
			Bay:         snap.Bays[bays[i]].ID,
			Cleaned:     cleaned[i],
			Explanation: explain(sp, i, states, cleaned),
		}
	}
	return plan, nil
}

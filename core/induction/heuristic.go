package induction

import (
	"fmt"
	"math"
	"sort"

	"github.com/kilianp07/induction/core/model"
)

// heuristicOrder ranks trainsets for service: valid certificates first, then
// no open job card, branding tier, mileage and id.
func heuristicOrder(p *StateProgram) []int {
	snap := p.Snapshot
	idx := make([]int, len(snap.Trainsets))
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(a, b int) bool {
		ta, tb := snap.Trainsets[idx[a]], snap.Trainsets[idx[b]]
		if va, vb := ta.Certificates.Valid(), tb.Certificates.Valid(); va != vb {
			return va
		}
		if ta.OpenCriticalJobCard != tb.OpenCriticalJobCard {
			return !ta.OpenCriticalJobCard
		}
		if ta.Tier() != tb.Tier() {
			return ta.Tier() > tb.Tier()
		}
		return p.ranks[idx[a]] < p.ranks[idx[b]]
	})
	return idx
}

// heuristicStates is the rule-based fallback for stage one. It honours every
// hard constraint of the state program or reports why it cannot.
func heuristicStates(p *StateProgram) ([]model.State, []bool, error) {
	snap := p.Snapshot
	pol := snap.Policy
	n := len(snap.Trainsets)
	states := make([]model.State, n)
	cleaned := make([]bool, n)
	order := heuristicOrder(p)

	ibl, service := 0, 0
	for _, i := range order {
		t := snap.Trainsets[i]
		switch {
		case t.OpenCriticalJobCard:
			states[i] = model.StateIBL
			ibl++
		case t.ServiceEligible() && service < pol.ServiceQuota:
			states[i] = model.StateService
			service++
		default:
			states[i] = model.StateStandby
		}
	}
	if service < pol.ServiceQuota || ibl > p.IBLLimit {
		if d := Diagnose(snap); d != nil {
			return nil, nil, d
		}
		return nil, nil, &InfeasibleModelError{Class: ClassServiceQuota, Detail: fmt.Sprintf("only %d of %d service slots filled", service, pol.ServiceQuota)}
	}

	// Cleaning pays off only when a slot is cheaper than deferring it.
	if pol.Weights.Cleaning > 0 && pol.CleaningCost < pol.CleaningDeferral {
		slots := p.CleaningLimit
		for _, i := range order {
			if slots == 0 {
				break
			}
			if snap.Trainsets[i].CleaningDue && states[i] == model.StateIBL {
				cleaned[i] = true
				slots--
			}
		}
		for k := len(order) - 1; k >= 0 && slots > 0 && ibl < p.IBLLimit; k-- {
			i := order[k]
			if snap.Trainsets[i].CleaningDue && states[i] == model.StateStandby {
				states[i] = model.StateIBL
				cleaned[i] = true
				ibl++
				slots--
			}
		}
	}

	stabled := n - ibl
	for k := len(order) - 1; k >= 0 && stabled > p.StablingLimit && ibl < p.IBLLimit; k-- {
		i := order[k]
		if states[i] == model.StateStandby {
			states[i] = model.StateIBL
			ibl++
			stabled--
		}
	}
	if stabled > p.StablingLimit {
		return nil, nil, &InfeasibleModelError{Class: ClassStablingCapacity, Detail: fmt.Sprintf("%d trainsets need stabling but only %d stabling bays exist", stabled, p.StablingLimit)}
	}
	return states, cleaned, nil
}

// heuristicBays places trainsets greedily: a trainset already standing in a
// suitable bay stays, the rest take the nearest free compatible bay. Cleaned
// trainsets are placed first so wash bays stay available to them.
func heuristicBays(p *StablingProgram) ([]int, error) {
	snap := p.Snapshot
	n := len(snap.Trainsets)
	bays := make([]int, n)
	used := make([]bool, len(snap.Bays))
	for i := range bays {
		bays[i] = -1
	}

	// keeps reports whether trainset i may stay where it stands without
	// starving a later phase.
	keeps := func(i int, b model.DepotBay) bool {
		if !b.Accepts(p.States[i], p.Cleaned[i]) {
			return false
		}
		if p.States[i] == model.StateIBL && !p.Cleaned[i] {
			return b.Class == model.BayMaintenance
		}
		return true
	}
	for i, t := range snap.Trainsets {
		if t.CurrentBay == "" {
			continue
		}
		for j, b := range snap.Bays {
			if b.ID == t.CurrentBay && !used[j] && keeps(i, b) {
				bays[i] = j
				used[j] = true
			}
		}
	}

	phase := func(i int) int {
		switch {
		case p.States[i] == model.StateIBL && p.Cleaned[i]:
			return 0
		case p.States[i] == model.StateIBL:
			return 1
		default:
			return 2
		}
	}
	for ph := 0; ph < 3; ph++ {
		for i, t := range snap.Trainsets {
			if bays[i] >= 0 || phase(i) != ph {
				continue
			}
			best, bestKey := -1, math.Inf(1)
			for j, b := range snap.Bays {
				if used[j] || !b.Accepts(p.States[i], p.Cleaned[i]) {
					continue
				}
				key := 0.0
				if from, ok := snap.Bay(t.CurrentBay); ok {
					key = from.Distance(b)
				}
				if ph == 1 && b.Class != model.BayMaintenance {
					key += 1e6
				}
				if key < bestKey {
					best, bestKey = j, key
				}
			}
			if best < 0 {
				return nil, &InfeasibleModelError{Class: ClassBayCapacity, Detail: fmt.Sprintf("no free bay for %s in state %s", t.ID, p.States[i])}
			}
			bays[i] = best
			used[best] = true
		}
	}
	return bays, nil
}

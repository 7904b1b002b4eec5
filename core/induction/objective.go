package induction

import (
	"math"
	"sort"

	"github.com/kilianp07/induction/core/logger"
	"github.com/kilianp07/induction/core/model"
	"github.com/kilianp07/induction/core/snapshot"
)

// Objective term groups.
const (
	TermMileage       = "mileage"
	TermBranding      = "branding"
	TermShunting      = "shunting"
	TermCleaning      = "cleaning"
	TermServiceReward = "service_reward"
	TermTieBreak      = "tie_break"
)

// tieBreakScale bounds the total tie-break contribution well below any
// weighted term so it only orders otherwise equal plans.
const tieBreakScale = 1e-3

// Composer attaches the weighted objective to compiled programs.
type Composer struct {
	log logger.Logger
}

// NewComposer returns a Composer.
func NewComposer(log logger.Logger) *Composer {
	return &Composer{log: logger.OrNop(log)}
}

// ComposeStates adds the mileage, branding, cleaning, service reward and
// tie-break terms to the state program.
func (c *Composer) ComposeStates(p *StateProgram) {
	snap := p.Snapshot
	pol := snap.Policy
	w := pol.Weights
	n := float64(len(snap.Trainsets))
	for i, t := range snap.Trainsets {
		v := p.Vars[i]
		p.Model.AddObjective(TermMileage, v.MileagePen, w.Mileage)
		p.Model.AddObjective(TermBranding, v.BrandingPen, w.Branding*pol.Tiers.Terms(t.Tier()).PenaltyWeight)
		if t.CleaningDue {
			p.Model.AddConstant(TermCleaning, w.Cleaning*pol.CleaningDeferral)
			p.Model.AddObjective(TermCleaning, v.Clean, w.Cleaning*(pol.CleaningCost-pol.CleaningDeferral))
		}
		p.Model.AddObjective(TermServiceReward, v.State[model.StateService], -w.ServiceReward)
		p.Model.AddObjective(TermTieBreak, v.State[model.StateService], tieBreakScale*float64(p.ranks[i]+1)/n)
	}
	c.CheckPriority(snap)
}

// ComposeStabling adds the shunting cost of every candidate move.
func (c *Composer) ComposeStabling(p *StablingProgram) {
	snap := p.Snapshot
	scale := snap.Policy.Weights.Shunting * snap.Policy.ShuntingUnitCost
	for _, pair := range p.Pairs {
		p.Model.AddObjective(TermShunting, pair.Var, scale*p.distance(pair))
	}
}

// CheckPriority warns when the configured weights can let mileage balancing
// outrank a branding commitment: the cheapest branding penalty must exceed
// the largest possible mileage penalty. It reports whether the ordering holds.
func (c *Composer) CheckPriority(snap *snapshot.PlanningSnapshot) bool {
	pol := snap.Policy
	cheapest := math.Inf(1)
	for _, t := range snap.Trainsets {
		if t.Branding == nil || pol.Tiers.Penalty(t.Tier()) == 0 {
			continue
		}
		cheapest = math.Min(cheapest, pol.Weights.Branding*pol.Tiers.Penalty(t.Tier()))
	}
	if math.IsInf(cheapest, 1) {
		return true
	}
	target := mileageTarget(snap)
	var largest float64
	for _, t := range snap.Trainsets {
		for _, s := range []model.State{model.StateService, model.StateStandby} {
			largest = math.Max(largest, mileageCost(snap, t, s, target))
		}
	}
	if cheapest < largest {
		c.log.Warnf("objective weights: cheapest branding penalty %.2f is below largest mileage penalty %.2f", cheapest, largest)
		return false
	}
	return true
}

// mileageTarget is the fleet mean projected by one operating day of service.
func mileageTarget(snap *snapshot.PlanningSnapshot) float64 {
	n := len(snap.Trainsets)
	if n == 0 {
		return snap.FleetMeanMileage
	}
	p := snap.Policy
	return snap.FleetMeanMileage + p.DailyServiceKm*float64(p.ServiceQuota)/float64(n)
}

func mileageCost(snap *snapshot.PlanningSnapshot, t model.Trainset, s model.State, target float64) float64 {
	p := snap.Policy
	m := t.Mileage
	if s == model.StateService {
		m += p.DailyServiceKm
	}
	return p.Weights.Mileage * p.MileageFactor * math.Abs(m-target)
}

// serviceRanks orders trainsets by mileage then id; lower ranks are
// preferred for service when everything else is equal.
func serviceRanks(snap *snapshot.PlanningSnapshot) []int {
	idx := make([]int, len(snap.Trainsets))
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(a, b int) bool {
		ta, tb := snap.Trainsets[idx[a]], snap.Trainsets[idx[b]]
		if ta.Mileage != tb.Mileage {
			return ta.Mileage < tb.Mileage
		}
		return ta.ID < tb.ID
	})
	ranks := make([]int, len(idx))
	for r, i := range idx {
		ranks[i] = r
	}
	return ranks
}

// stateCost is the per-term objective contribution of trainset i in state s.
// It mirrors ComposeStates and backs the explanations.
func stateCost(snap *snapshot.PlanningSnapshot, ranks []int, i int, s model.State, cleaned bool) map[string]float64 {
	t := snap.Trainsets[i]
	p := snap.Policy
	w := p.Weights
	out := map[string]float64{TermMileage: mileageCost(snap, t, s, mileageTarget(snap))}
	if t.Branding != nil && s != model.StateService {
		out[TermBranding] = w.Branding * p.Tiers.Penalty(t.Tier())
	}
	if t.CleaningDue {
		if cleaned && s == model.StateIBL {
			out[TermCleaning] = w.Cleaning * p.CleaningCost
		} else {
			out[TermCleaning] = w.Cleaning * p.CleaningDeferral
		}
	}
	if s == model.StateService {
		out[TermServiceReward] = -w.ServiceReward
		out[TermTieBreak] = tieBreakScale * float64(ranks[i]+1) / float64(len(snap.Trainsets))
	}
	return out
}

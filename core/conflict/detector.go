package conflict

import (
	"fmt"
	"sort"
	"strings"

	"github.com/google/uuid"

	"github.com/kilianp07/induction/core/induction"
	"github.com/kilianp07/induction/core/logger"
	"github.com/kilianp07/induction/core/model"
	"github.com/kilianp07/induction/core/snapshot"
)

// namespace scopes conflict ids derived from depot, date, rule and trainset.
var namespace = uuid.MustParse("6f1c2a8e-3d4b-4c5e-9f60-7a8b9c0d1e2f")

// Detector inspects a plan against its snapshot and raises a conflict for
// every claim that lost or competed at a boundary.
type Detector struct {
	log logger.Logger
}

// NewDetector returns a Detector.
func NewDetector(log logger.Logger) *Detector {
	return &Detector{log: logger.OrNop(log)}
}

// Detect returns the conflicts of plan, sorted by trainset then kind. All
// of them are unresolved.
func (d *Detector) Detect(snap *snapshot.PlanningSnapshot, plan *induction.Plan) []Conflict {
	var out []Conflict
	out = append(out, d.brandingRules(snap, plan)...)
	out = append(out, d.serviceContention(snap, plan)...)
	out = append(out, d.cleaningContention(snap, plan)...)
	sort.Slice(out, func(i, j int) bool {
		if out[i].TrainsetID != out[j].TrainsetID {
			return out[i].TrainsetID < out[j].TrainsetID
		}
		return out[i].Kind < out[j].Kind
	})
	for i := range out {
		out[i].ID = conflictID(snap, out[i].Kind, out[i].TrainsetID)
		out[i].Resolution = Record{Status: StatusUnresolved}
	}
	if len(out) > 0 {
		d.log.Infof("depot %s: %d conflicts detected", snap.DepotID, len(out))
	}
	return out
}

func conflictID(snap *snapshot.PlanningSnapshot, k Kind, trainset string) string {
	key := fmt.Sprintf("%s|%s|%s|%s", snap.DepotID, snap.Date.Format("2006-01-02"), k, trainset)
	return uuid.NewSHA1(namespace, []byte(key)).String()
}

func (d *Detector) brandingRules(snap *snapshot.PlanningSnapshot, plan *induction.Plan) []Conflict {
	var out []Conflict
	th := snap.Policy.SLAThreshold
	for _, t := range snap.Trainsets {
		if !t.BrandingAtRisk(th) {
			continue
		}
		a, ok := plan.Assignment(t.ID)
		if !ok {
			continue
		}
		deficit := t.Branding.Deficit()
		switch {
		case t.OpenCriticalJobCard:
			out = append(out, Conflict{
				TrainsetID:     t.ID,
				Kind:           KindBrandingJobCard,
				Claims:         []string{"branding_sla", "job_card"},
				Description:    fmt.Sprintf("%s-tier campaign on %s is %.1f%% behind target but an open critical job card holds it in IBL", t.Tier(), t.ID, deficit),
				Recommendation: Recommendation{Constraint: "job_card", Outcome: model.StateIBL},
			})
		case !t.Certificates.Valid():
			out = append(out, Conflict{
				TrainsetID:     t.ID,
				Kind:           KindBrandingCertificate,
				Claims:         []string{"branding_sla", "certificate"},
				Description:    fmt.Sprintf("%s-tier campaign on %s is %.1f%% behind target but certificates failed: %s", t.Tier(), t.ID, deficit, strings.Join(t.Certificates.Failed(), ", ")),
				Recommendation: Recommendation{Constraint: "certificate", Outcome: a.State},
			})
		}
	}
	return out
}

// serviceContention flags eligible at-risk campaigns left out of service and
// the branded trainsets that took the contested slots. With s* the strongest
// at-risk claim left out, it flags the losers holding s* and the branded
// winners whose tier claim is at most s*.
func (d *Detector) serviceContention(snap *snapshot.PlanningSnapshot, plan *induction.Plan) []Conflict {
	pol := snap.Policy
	strength := func(t model.Trainset) float64 {
		return pol.Weights.Branding * pol.Tiers.Penalty(t.Tier())
	}
	var winners, losers []model.Trainset
	for _, t := range snap.Trainsets {
		if !t.ServiceEligible() || t.Branding == nil {
			continue
		}
		a, ok := plan.Assignment(t.ID)
		if !ok {
			continue
		}
		switch {
		case a.State == model.StateService:
			winners = append(winners, t)
		case t.BrandingAtRisk(pol.SLAThreshold):
			losers = append(losers, t)
		}
	}
	if len(losers) == 0 {
		return nil
	}
	boundary := 0.0
	for _, t := range losers {
		boundary = max(boundary, strength(t))
	}
	var flagged []model.Trainset
	for _, t := range losers {
		if strength(t) == boundary {
			flagged = append(flagged, t)
		}
	}
	for _, t := range winners {
		if strength(t) <= boundary {
			flagged = append(flagged, t)
		}
	}

	out := make([]Conflict, 0, len(flagged))
	for _, t := range flagged {
		a, _ := plan.Assignment(t.ID)
		verb := "won"
		if a.State != model.StateService {
			verb = "lost"
		}
		out = append(out, Conflict{
			TrainsetID:     t.ID,
			Kind:           KindServiceSlot,
			Claims:         []string{"branding_sla", "service_quota"},
			Competitors:    others(flagged, t.ID),
			Description:    fmt.Sprintf("%s-tier campaign on %s %s a contested service slot (quota %d)", t.Tier(), t.ID, verb, pol.ServiceQuota),
			Recommendation: Recommendation{Constraint: "service_quota", Outcome: a.State},
		})
	}
	return out
}

// cleaningContention flags the cleaning-due trainsets held in IBL when they
// outnumber the usable cleaning slots.
func (d *Detector) cleaningContention(snap *snapshot.PlanningSnapshot, plan *induction.Plan) []Conflict {
	slots := min(snap.Policy.CleaningSlots, snap.BayCounts()[model.BayWash])
	var held []model.Trainset
	for _, t := range snap.Trainsets {
		if !t.CleaningDue {
			continue
		}
		if a, ok := plan.Assignment(t.ID); ok && a.State == model.StateIBL {
			held = append(held, t)
		}
	}
	if len(held) <= slots {
		return nil
	}
	out := make([]Conflict, 0, len(held))
	for _, t := range held {
		a, _ := plan.Assignment(t.ID)
		verb := "deferred"
		if a.Cleaned {
			verb = "granted"
		}
		out = append(out, Conflict{
			TrainsetID:     t.ID,
			Kind:           KindCleaningSlot,
			Claims:         []string{"cleaning", "cleaning_capacity"},
			Competitors:    others(held, t.ID),
			Description:    fmt.Sprintf("%d trainsets in IBL are due for cleaning but only %d slots exist; cleaning of %s %s", len(held), slots, t.ID, verb),
			Recommendation: Recommendation{Constraint: "cleaning_capacity", Outcome: a.State},
		})
	}
	return out
}

func others(ts []model.Trainset, id string) []string {
	var out []string
	for _, t := range ts {
		if t.ID != id {
			out = append(out, t.ID)
		}
	}
	sort.Strings(out)
	return out
}

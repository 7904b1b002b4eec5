package snapshot

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/kilianp07/induction/core/logger"
	"github.com/kilianp07/induction/core/model"
)

// PlanningSnapshot is the frozen input of one planning cycle. It is treated
// as read-only once built and is never shared across runs.
type PlanningSnapshot struct {
	DepotID          string           `json:"depotId"`
	Date             time.Time        `json:"date"`
	TakenAt          time.Time        `json:"takenAt"`
	Trainsets        []model.Trainset `json:"trainsets"`
	Bays             []model.DepotBay `json:"bays"`
	Policy           model.Policy     `json:"policy"`
	FleetMeanMileage float64          `json:"fleetMeanMileage"`
	// Defaults lists the documented defaults applied while assembling.
	Defaults []string `json:"defaults,omitempty"`
}

// Trainset returns the record with the given id.
func (s *PlanningSnapshot) Trainset(id string) (model.Trainset, bool) {
	i := sort.Search(len(s.Trainsets), func(i int) bool { return s.Trainsets[i].ID >= id })
	if i < len(s.Trainsets) && s.Trainsets[i].ID == id {
		return s.Trainsets[i], true
	}
	return model.Trainset{}, false
}

// Bay returns the bay with the given id.
func (s *PlanningSnapshot) Bay(id string) (model.DepotBay, bool) {
	for _, b := range s.Bays {
		if b.ID == id {
			return b, true
		}
	}
	return model.DepotBay{}, false
}

// BayCounts returns the number of bays per class.
func (s *PlanningSnapshot) BayCounts() map[model.BayClass]int {
	return model.CountBays(s.Bays)
}

// Fingerprint hashes the planning-relevant content of the snapshot. TakenAt
// is excluded so two snapshots of identical data share a fingerprint.
func (s *PlanningSnapshot) Fingerprint() string {
	c := *s
	c.TakenAt = time.Time{}
	b, err := json.Marshal(c)
	if err != nil {
		return ""
	}
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}

// Builder reads fleet data from a Source and assembles snapshots.
type Builder struct {
	source Source
	policy model.Policy
	now    func() time.Time
	log    logger.Logger
}

// NewBuilder returns a builder using policy for every snapshot it builds.
func NewBuilder(src Source, policy model.Policy, log logger.Logger) *Builder {
	return &Builder{source: src, policy: policy, now: time.Now, log: logger.OrNop(log)}
}

// WithClock replaces the clock used to stamp TakenAt.
func (b *Builder) WithClock(now func() time.Time) *Builder {
	b.now = now
	return b
}

// Build reads the depot data and assembles a snapshot for the given date.
func (b *Builder) Build(ctx context.Context, depotID string, date time.Time) (*PlanningSnapshot, error) {
	recs, err := b.source.Trainsets(ctx, depotID)
	if err != nil {
		return nil, fmt.Errorf("read trainsets: %w", err)
	}
	topo, err := b.source.Topology(ctx, depotID)
	if err != nil {
		return nil, fmt.Errorf("read topology: %w", err)
	}
	bays, err := topo.Expand()
	if err != nil {
		return nil, fmt.Errorf("expand topology: %w", err)
	}
	snap, err := Assemble(depotID, date, recs, bays, b.policy, b.now())
	if err != nil {
		return nil, err
	}
	b.log.Debugw("snapshot built", map[string]any{
		"depot":       depotID,
		"date":        snap.Date.Format(time.DateOnly),
		"trainsets":   len(snap.Trainsets),
		"bays":        len(snap.Bays),
		"defaults":    len(snap.Defaults),
		"fingerprint": snap.Fingerprint(),
	})
	return snap, nil
}

// Assemble validates raw records and freezes them into a snapshot. Every
// missing mandatory field is collected into a single DataIncompleteError.
func Assemble(depotID string, date time.Time, recs []TrainsetRecord, bays []model.DepotBay, policy model.Policy, takenAt time.Time) (*PlanningSnapshot, error) {
	policy.SetDefaults()
	if err := policy.Validate(); err != nil {
		return nil, fmt.Errorf("invalid policy: %w", err)
	}
	var missing []MissingField
	if len(bays) == 0 {
		missing = append(missing, MissingField{Field: "topology"})
	}
	bayIDs := make(map[string]bool, len(bays))
	for _, b := range bays {
		if b.ID == "" || !b.Class.Valid() || bayIDs[b.ID] {
			missing = append(missing, MissingField{Field: "bay " + b.ID})
			continue
		}
		bayIDs[b.ID] = true
	}
	if len(recs) == 0 {
		missing = append(missing, MissingField{Field: "trainsets"})
	}

	seen := make(map[string]bool, len(recs))
	var sum float64
	var known int
	for _, r := range recs {
		if r.Mileage != nil && *r.Mileage >= 0 {
			sum += *r.Mileage
			known++
		}
	}
	mean := 0.0
	if known > 0 {
		mean = sum / float64(known)
	}

	out := make([]model.Trainset, 0, len(recs))
	var defaults []string
	for _, r := range recs {
		if r.ID == "" {
			missing = append(missing, MissingField{Field: "id"})
			continue
		}
		if seen[r.ID] {
			missing = append(missing, MissingField{TrainsetID: r.ID, Field: "duplicate_id"})
			continue
		}
		seen[r.ID] = true
		t, fields := convert(r)
		for _, f := range fields {
			missing = append(missing, MissingField{TrainsetID: r.ID, Field: f})
		}
		if t.CurrentBay != "" && !bayIDs[t.CurrentBay] {
			missing = append(missing, MissingField{TrainsetID: r.ID, Field: "current_bay"})
		}
		if !t.MileageKnown {
			t.Mileage = mean
			defaults = append(defaults, fmt.Sprintf("%s: mileage defaulted to fleet mean %.0f km", r.ID, mean))
		}
		out = append(out, t)
	}
	if len(missing) > 0 {
		return nil, &DataIncompleteError{DepotID: depotID, Missing: missing}
	}

	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	sort.Strings(defaults)
	frozenBays := append([]model.DepotBay(nil), bays...)
	return &PlanningSnapshot{
		DepotID:          depotID,
		Date:             Day(date),
		TakenAt:          takenAt.UTC(),
		Trainsets:        out,
		Bays:             frozenBays,
		Policy:           policy,
		FleetMeanMileage: mean,
		Defaults:         defaults,
	}, nil
}

// Day truncates t to the start of its UTC day.
func Day(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func convert(r TrainsetRecord) (model.Trainset, []string) {
	var missing []string
	t := model.Trainset{ID: r.ID, CleaningDue: r.CleaningDue, CurrentBay: r.CurrentBay}
	if r.Certificates == nil {
		missing = append(missing, "certificates")
	} else {
		c := r.Certificates
		if c.RollingStock == nil {
			missing = append(missing, "certificates.rolling_stock")
		} else {
			t.Certificates.RollingStock = *c.RollingStock
		}
		if c.Signaling == nil {
			missing = append(missing, "certificates.signaling")
		} else {
			t.Certificates.Signaling = *c.Signaling
		}
		if c.Telecom == nil {
			missing = append(missing, "certificates.telecom")
		} else {
			t.Certificates.Telecom = *c.Telecom
		}
	}
	if r.OpenCriticalJobCard == nil {
		missing = append(missing, "open_critical_job_card")
	} else {
		t.OpenCriticalJobCard = *r.OpenCriticalJobCard
	}
	if r.Mileage != nil {
		if *r.Mileage < 0 {
			missing = append(missing, "mileage")
		} else {
			t.Mileage = *r.Mileage
			t.MileageKnown = true
		}
	}
	if r.Branding != nil {
		b, err := convertBranding(*r.Branding)
		if err != nil {
			missing = append(missing, "branding.tier")
		} else if b != nil {
			t.Branding = b
		}
	}
	return t, missing
}

func convertBranding(r BrandingRecord) (*model.Branding, error) {
	tier, err := model.ParseTier(r.Tier)
	if err != nil {
		return nil, err
	}
	if tier == model.TierNone {
		return nil, nil
	}
	b := &model.Branding{Tier: tier, RequiredVisibility: r.RequiredVisibility, CurrentVisibility: r.CurrentVisibility}
	if r.VisibilityDeficit != nil && b.RequiredVisibility == 0 {
		b.RequiredVisibility = 100
		b.CurrentVisibility = 100 - *r.VisibilityDeficit
	}
	return b, nil
}

package model

import (
	"errors"
	"fmt"
)

// Weights scale each objective term. Their magnitudes encode the priority
// ordering branding SLA > mileage balance > shunting and cleaning cost.
type Weights struct {
	Mileage       float64 `json:"mileage"`
	Branding      float64 `json:"branding"`
	Shunting      float64 `json:"shunting"`
	Cleaning      float64 `json:"cleaning"`
	ServiceReward float64 `json:"service_reward"`
}

// DefaultWeights mirrors the weights of the original planning model.
func DefaultWeights() Weights {
	return Weights{Mileage: 1, Branding: 1, Shunting: 1, Cleaning: 1, ServiceReward: 10}
}

// Validate rejects negative weights.
func (w Weights) Validate() error {
	if w.Mileage < 0 || w.Branding < 0 || w.Shunting < 0 || w.Cleaning < 0 || w.ServiceReward < 0 {
		return errors.New("weights must not be negative")
	}
	return nil
}

// Policy holds the nightly planning parameters of a depot.
type Policy struct {
	ServiceQuota  int       `json:"service_quota"`
	IBLCapacity   int       `json:"ibl_capacity"`
	CleaningSlots int       `json:"cleaning_slots"`
	Weights       Weights   `json:"weights"`
	Tiers         TierTable `json:"tiers"`

	// MileageFactor scales the absolute deviation from the target mileage.
	MileageFactor float64 `json:"mileage_factor"`
	// DailyServiceKm is the distance a trainset is expected to run when
	// placed in service. Zero makes the mileage penalty independent of the
	// decision.
	DailyServiceKm float64 `json:"daily_service_km"`
	// SLAThreshold is the fraction of the required visibility below which a
	// branding campaign is at risk.
	SLAThreshold float64 `json:"sla_threshold"`

	CleaningCost     float64 `json:"cleaning_cost"`
	CleaningDeferral float64 `json:"cleaning_deferral"`
	ShuntingUnitCost float64 `json:"shunting_unit_cost"`
}

// Reference capacities of a depot night.
const (
	DefaultServiceQuota  = 18
	DefaultIBLCapacity   = 4
	DefaultCleaningSlots = 3
)

// DefaultPolicy returns the reference parameters: 18 trainsets in service,
// four IBL berths and three cleaning slots.
func DefaultPolicy() Policy {
	p := Policy{ServiceQuota: DefaultServiceQuota, IBLCapacity: DefaultIBLCapacity, CleaningSlots: DefaultCleaningSlots}
	p.SetDefaults()
	return p
}

// SetDefaults applies sane defaults for unset tuning values. Quota and
// capacities are taken as given: zero cleaning slots or IBL berths is a
// valid night. Start from DefaultPolicy to get the reference capacities.
func (p *Policy) SetDefaults() {
	if p.Weights == (Weights{}) {
		p.Weights = DefaultWeights()
	}
	if len(p.Tiers) == 0 {
		p.Tiers = DefaultTierTable()
	}
	if p.MileageFactor == 0 {
		p.MileageFactor = 0.01
	}
	if p.SLAThreshold == 0 {
		p.SLAThreshold = 0.98
	}
	if p.CleaningCost == 0 {
		p.CleaningCost = 20
	}
	if p.CleaningDeferral == 0 {
		p.CleaningDeferral = 60
	}
	if p.ShuntingUnitCost == 0 {
		p.ShuntingUnitCost = 1
	}
}

// Validate checks the policy for values the planner cannot work with.
func (p Policy) Validate() error {
	if p.ServiceQuota < 0 || p.IBLCapacity < 0 || p.CleaningSlots < 0 {
		return errors.New("quota and capacities must not be negative")
	}
	if p.MileageFactor < 0 || p.DailyServiceKm < 0 {
		return errors.New("mileage parameters must not be negative")
	}
	if p.SLAThreshold <= 0 || p.SLAThreshold > 1 {
		return fmt.Errorf("sla_threshold must be in (0,1], got %v", p.SLAThreshold)
	}
	if p.CleaningCost < 0 || p.CleaningDeferral < 0 || p.ShuntingUnitCost < 0 {
		return errors.New("costs must not be negative")
	}
	for t, terms := range p.Tiers {
		if terms.HoursNeeded < 0 || terms.PenaltyWeight < 0 {
			return fmt.Errorf("tier %s: terms must not be negative", t)
		}
	}
	return p.Weights.Validate()
}

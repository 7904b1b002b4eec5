package model

import "fmt"

// Certificates holds the per-subsystem fitness certificate validity of a trainset.
type Certificates struct {
	RollingStock bool `json:"rollingStock" yaml:"rolling_stock"`
	Signaling    bool `json:"signaling" yaml:"signaling"`
	Telecom      bool `json:"telecom" yaml:"telecom"`
}

// Valid reports whether every subsystem certificate is valid.
func (c Certificates) Valid() bool {
	return c.RollingStock && c.Signaling && c.Telecom
}

// Failed returns the names of the subsystems whose certificate is not valid.
func (c Certificates) Failed() []string {
	var out []string
	if !c.RollingStock {
		out = append(out, "rolling_stock")
	}
	if !c.Signaling {
		out = append(out, "signaling")
	}
	if !c.Telecom {
		out = append(out, "telecom")
	}
	return out
}

// Branding describes the advertising campaign hosted by a trainset.
type Branding struct {
	Tier               Tier    `json:"tier"`
	RequiredVisibility float64 `json:"requiredVisibility"` // SLA target in percent
	CurrentVisibility  float64 `json:"currentVisibility"`  // achieved visibility in percent
}

// Deficit returns the visibility still owed to the campaign, never negative.
func (b Branding) Deficit() float64 {
	d := b.RequiredVisibility - b.CurrentVisibility
	if d < 0 {
		return 0
	}
	return d
}

// AtRisk reports whether the campaign falls below threshold times its target.
// A campaign without a target is never at risk.
func (b Branding) AtRisk(threshold float64) bool {
	if b.Tier == TierNone || b.RequiredVisibility <= 0 {
		return false
	}
	return b.CurrentVisibility < threshold*b.RequiredVisibility
}

// Trainset is the eligibility record used for one planning cycle.
type Trainset struct {
	ID                  string       `json:"id"`
	Certificates        Certificates `json:"certificates"`
	OpenCriticalJobCard bool         `json:"openCriticalJobCard"`
	// Mileage is the cumulative odometer reading in km. When MileageKnown is
	// false the value has been defaulted to the fleet mean.
	Mileage      float64   `json:"mileage"`
	MileageKnown bool      `json:"mileageKnown"`
	Branding     *Branding `json:"branding,omitempty"`
	CleaningDue  bool      `json:"cleaningDue"`
	CurrentBay   string    `json:"currentBay,omitempty"`
}

// ServiceEligible reports whether the trainset may enter revenue service.
func (t Trainset) ServiceEligible() bool {
	return t.Certificates.Valid() && !t.OpenCriticalJobCard
}

// BrandingAtRisk reports whether the hosted campaign is behind its SLA.
func (t Trainset) BrandingAtRisk(threshold float64) bool {
	return t.Branding != nil && t.Branding.AtRisk(threshold)
}

// Tier returns the branding tier, TierNone when unbranded.
func (t Trainset) Tier() Tier {
	if t.Branding == nil {
		return TierNone
	}
	return t.Branding.Tier
}

// Validate checks that the record is usable.
func (t Trainset) Validate() error {
	if t.ID == "" {
		return fmt.Errorf("trainset id is required")
	}
	if t.Mileage < 0 {
		return fmt.Errorf("trainset %s: mileage must not be negative", t.ID)
	}
	return nil
}

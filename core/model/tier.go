package model

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Tier is the commercial priority of a branding campaign.
type Tier int

const (
	TierNone Tier = iota
	TierLow
	TierMedium
	TierHigh
)

// String returns the lower-case tier name.
func (t Tier) String() string {
	switch t {
	case TierLow:
		return "low"
	case TierMedium:
		return "medium"
	case TierHigh:
		return "high"
	default:
		return "none"
	}
}

// ParseTier converts a tier name into a Tier.
func ParseTier(s string) (Tier, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "none":
		return TierNone, nil
	case "low":
		return TierLow, nil
	case "medium":
		return TierMedium, nil
	case "high":
		return TierHigh, nil
	default:
		return TierNone, fmt.Errorf("unknown branding tier %q", s)
	}
}

// MarshalText implements encoding.TextMarshaler.
func (t Tier) MarshalText() ([]byte, error) { return []byte(t.String()), nil }

// UnmarshalText implements encoding.TextUnmarshaler.
func (t *Tier) UnmarshalText(b []byte) error {
	v, err := ParseTier(string(b))
	if err != nil {
		return err
	}
	*t = v
	return nil
}

// TierTerms binds a tier to the service hours the campaign needs per night
// and the weight applied to each missed hour.
type TierTerms struct {
	HoursNeeded   float64 `json:"hours_needed"`
	PenaltyWeight float64 `json:"penalty_weight"`
}

// TierTable maps every branded tier to its terms.
type TierTable map[Tier]TierTerms

// DefaultTierTable returns the contractual defaults.
func DefaultTierTable() TierTable {
	return TierTable{
		TierHigh:   {HoursNeeded: 8, PenaltyWeight: 1000},
		TierMedium: {HoursNeeded: 6, PenaltyWeight: 500},
		TierLow:    {HoursNeeded: 4, PenaltyWeight: 100},
	}
}

// Terms returns the terms of t. TierNone and unknown tiers carry no penalty.
func (tt TierTable) Terms(t Tier) TierTerms {
	if t == TierNone {
		return TierTerms{}
	}
	return tt[t]
}

// Penalty returns the full weighted penalty for leaving a tier out of service.
func (tt TierTable) Penalty(t Tier) float64 {
	terms := tt.Terms(t)
	return terms.HoursNeeded * terms.PenaltyWeight
}

// MarshalJSON encodes the table keyed by tier name.
func (tt TierTable) MarshalJSON() ([]byte, error) {
	m := make(map[string]TierTerms, len(tt))
	for k, v := range tt {
		m[k.String()] = v
	}
	return json.Marshal(m)
}

// UnmarshalJSON decodes a table keyed by tier name.
func (tt *TierTable) UnmarshalJSON(b []byte) error {
	var m map[string]TierTerms
	if err := json.Unmarshal(b, &m); err != nil {
		return err
	}
	out := make(TierTable, len(m))
	for k, v := range m {
		t, err := ParseTier(k)
		if err != nil {
			return err
		}
		out[t] = v
	}
	*tt = out
	return nil
}

package model

import (
	"fmt"
	"strings"
)

// BayClass is the capacity class of a depot bay.
type BayClass string

const (
	BayStabling    BayClass = "stabling"
	BayMaintenance BayClass = "maintenance"
	BayWash        BayClass = "wash"
)

// Valid reports whether c is a known bay class.
func (c BayClass) Valid() bool {
	switch c {
	case BayStabling, BayMaintenance, BayWash:
		return true
	}
	return false
}

// Prefix returns the identifier prefix used for generated bay ids.
func (c BayClass) Prefix() string {
	switch c {
	case BayStabling:
		return "STB"
	case BayMaintenance:
		return "MNT"
	case BayWash:
		return "WSH"
	default:
		return strings.ToUpper(string(c))
	}
}

// DepotBay is one physical berth of the depot.
type DepotBay struct {
	ID       string   `json:"id"`
	Class    BayClass `json:"class"`
	Track    int      `json:"track"`
	Position int      `json:"position"`
}

// trackWeight is the shunting distance charged for crossing to an adjacent track.
const trackWeight = 10

// Distance is the shunting distance between two bays: crossing tracks costs
// trackWeight per track, moving along a track one per position.
func (b DepotBay) Distance(o DepotBay) float64 {
	return float64(trackWeight*abs(b.Track-o.Track) + abs(b.Position-o.Position))
}

// Accepts reports whether a trainset in state s, cleaned or not, may occupy the bay.
func (b DepotBay) Accepts(s State, cleaned bool) bool {
	switch s {
	case StateService, StateStandby:
		return b.Class == BayStabling
	case StateIBL:
		if cleaned {
			return b.Class == BayWash
		}
		return b.Class == BayMaintenance || b.Class == BayWash
	}
	return false
}

// BayGroup describes a number of identical bays of one class.
type BayGroup struct {
	Class BayClass `json:"class" yaml:"class"`
	Count int      `json:"count" yaml:"count"`
}

// ExpandBays turns bay groups into concrete bays. Each group becomes its own
// track; bay ids are the class prefix followed by a running number.
func ExpandBays(groups []BayGroup) ([]DepotBay, error) {
	var out []DepotBay
	seen := make(map[BayClass]int)
	for track, g := range groups {
		if !g.Class.Valid() {
			return nil, fmt.Errorf("unknown bay class %q", g.Class)
		}
		if g.Count < 0 {
			return nil, fmt.Errorf("bay group %s: negative count", g.Class)
		}
		for i := 0; i < g.Count; i++ {
			seen[g.Class]++
			out = append(out, DepotBay{
				ID:       fmt.Sprintf("%s-%02d", g.Class.Prefix(), seen[g.Class]),
				Class:    g.Class,
				Track:    track,
				Position: i,
			})
		}
	}
	return out, nil
}

// CountBays returns the number of bays per class.
func CountBays(bays []DepotBay) map[BayClass]int {
	out := make(map[BayClass]int, 3)
	for _, b := range bays {
		out[b.Class]++
	}
	return out
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}

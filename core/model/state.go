package model

import "fmt"

// State is the operational state a trainset is allocated to for the night.
type State int

const (
	StateService State = iota
	StateStandby
	StateIBL
)

// States lists every state in solver order.
var States = []State{StateService, StateStandby, StateIBL}

// String returns a human-readable representation of the state.
func (s State) String() string {
	switch s {
	case StateService:
		return "Service"
	case StateStandby:
		return "Standby"
	case StateIBL:
		return "IBL"
	default:
		return "unknown"
	}
}

// Category names the schedule assignment array a state is published in.
type Category string

const (
	CategoryService     Category = "readyForService"
	CategoryStandby     Category = "onStandby"
	CategoryMaintenance Category = "heldForMaintenance"
	// CategoryRemoved is only valid as the target of a manual override.
	CategoryRemoved Category = "removedFromService"
)

// Category returns the assignment category for s.
func (s State) Category() Category {
	switch s {
	case StateService:
		return CategoryService
	case StateStandby:
		return CategoryStandby
	default:
		return CategoryMaintenance
	}
}

// ParseState accepts a state name or an assignment category name.
func ParseState(v string) (State, error) {
	switch v {
	case "Service", "service", string(CategoryService):
		return StateService, nil
	case "Standby", "standby", string(CategoryStandby):
		return StateStandby, nil
	case "IBL", "ibl", string(CategoryMaintenance):
		return StateIBL, nil
	}
	return 0, fmt.Errorf("unknown state %q", v)
}

// MarshalText implements encoding.TextMarshaler.
func (s State) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

// UnmarshalText implements encoding.TextUnmarshaler.
func (s *State) UnmarshalText(b []byte) error {
	v, err := ParseState(string(b))
	if err != nil {
		return err
	}
	*s = v
	return nil
}

// ValidCategory reports whether c is a known assignment category.
func ValidCategory(c Category) bool {
	switch c {
	case CategoryService, CategoryStandby, CategoryMaintenance, CategoryRemoved:
		return true
	}
	return false
}

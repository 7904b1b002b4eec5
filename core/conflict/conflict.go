// Package conflict surfaces the planning decisions an operator must confirm:
// branding claims that lost against a hard rule and trainsets that competed
// for the last service or cleaning slots.
package conflict

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/kilianp07/induction/core/model"
)

// Kind identifies the rule that raised a conflict.
type Kind string

const (
	KindBrandingJobCard     Kind = "branding_vs_job_card"
	KindBrandingCertificate Kind = "branding_vs_certificate"
	KindServiceSlot         Kind = "service_slot_contention"
	KindCleaningSlot        Kind = "cleaning_slot_contention"
)

// Status is the resolution state of a conflict.
type Status string

const (
	StatusUnresolved Status = "unresolved"
	StatusAccepted   Status = "accepted"
	StatusOverridden Status = "overridden"
)

// Action is what an operator does with a conflict.
type Action string

const (
	ActionAccept   Action = "accept"
	ActionOverride Action = "override"
)

var (
	ErrInvalidResolution = errors.New("conflict: invalid resolution")
	ErrAlreadyResolved   = errors.New("conflict: already resolved")
	// ErrUnsafeOverride rejects moving a trainset into service against a
	// certificate failure or an open critical job card.
	ErrUnsafeOverride = errors.New("conflict: override would put an unsafe trainset in service")
)

// Recommendation is the outcome the planner applied and the rule behind it.
type Recommendation struct {
	Constraint string      `json:"constraint"`
	Outcome    model.State `json:"outcome"`
}

// Record is the stored resolution of a conflict.
type Record struct {
	Status     Status          `json:"status"`
	Reason     string          `json:"reason,omitempty"`
	OperatorID string          `json:"operatorId,omitempty"`
	NewState   *model.Category `json:"newState,omitempty"`
	At         time.Time       `json:"at,omitempty"`
}

// Conflict is one decision awaiting operator confirmation.
type Conflict struct {
	ID             string         `json:"id"`
	TrainsetID     string         `json:"trainsetId"`
	Kind           Kind           `json:"kind"`
	Claims         []string       `json:"claims"`
	Competitors    []string       `json:"competitors,omitempty"`
	Description    string         `json:"description"`
	Recommendation Recommendation `json:"recommendation"`
	Resolution     Record         `json:"resolution"`
}

// Resolved reports whether an operator has accepted or overridden it.
func (c Conflict) Resolved() bool {
	return c.Resolution.Status != StatusUnresolved && c.Resolution.Status != ""
}

// Resolution is an operator's answer to a conflict.
type Resolution struct {
	Action     Action          `json:"action"`
	Reason     string          `json:"reason"`
	OperatorID string          `json:"operatorId"`
	NewState   *model.Category `json:"newState,omitempty"`
}

// Validate checks the request independently of the conflict it targets.
func (r Resolution) Validate() error {
	if strings.TrimSpace(r.OperatorID) == "" {
		return fmt.Errorf("%w: operator id is required", ErrInvalidResolution)
	}
	switch r.Action {
	case ActionAccept:
		if r.NewState != nil {
			return fmt.Errorf("%w: accept cannot change the state", ErrInvalidResolution)
		}
	case ActionOverride:
		if strings.TrimSpace(r.Reason) == "" {
			return fmt.Errorf("%w: override requires a reason", ErrInvalidResolution)
		}
		if r.NewState != nil && !model.ValidCategory(*r.NewState) {
			return fmt.Errorf("%w: unknown state %q", ErrInvalidResolution, *r.NewState)
		}
	default:
		return fmt.Errorf("%w: unknown action %q", ErrInvalidResolution, r.Action)
	}
	return nil
}

// Apply records r on c. Overrides placing a trainset in service are refused
// when the conflict stems from a safety rule.
func (c *Conflict) Apply(r Resolution, at time.Time) error {
	if c.Resolved() {
		return fmt.Errorf("%w: %s", ErrAlreadyResolved, c.ID)
	}
	if err := r.Validate(); err != nil {
		return err
	}
	if r.NewState != nil && *r.NewState == model.StateService.Category() && c.safetyBound() {
		return fmt.Errorf("%w: %s (%s)", ErrUnsafeOverride, c.TrainsetID, c.Recommendation.Constraint)
	}
	rec := Record{Status: StatusAccepted, Reason: r.Reason, OperatorID: r.OperatorID, At: at.UTC()}
	if r.Action == ActionOverride {
		rec.Status = StatusOverridden
		rec.NewState = r.NewState
	}
	c.Resolution = rec
	return nil
}

func (c Conflict) safetyBound() bool {
	return c.Kind == KindBrandingJobCard || c.Kind == KindBrandingCertificate
}

// Unresolved returns the conflicts still awaiting a resolution.
func Unresolved(cs []Conflict) []Conflict {
	var out []Conflict
	for _, c := range cs {
		if !c.Resolved() {
			out = append(out, c)
		}
	}
	return out
}

package induction

import (
	"errors"
	"fmt"
	"time"
)

// ErrInvariant is returned when a decoded assignment breaks a planning
// invariant. It indicates a solver defect, never bad input.
var ErrInvariant = errors.New("induction: assignment violates planning invariant")

// InfeasibleModelError reports that no assignment satisfies the hard
// constraints. Class names the offending constraint family.
type InfeasibleModelError struct {
	Class  string
	Detail string
}

func (e *InfeasibleModelError) Error() string {
	return fmt.Sprintf("infeasible model (%s): %s", e.Class, e.Detail)
}

// SolverTimeoutError records that the optimizer did not finish and the plan
// was produced by the fallback heuristic.
type SolverTimeoutError struct {
	Stage   string
	Timeout time.Duration
	Nodes   int
	Cause   error
}

func (e *SolverTimeoutError) Error() string {
	msg := fmt.Sprintf("solver %s stage did not complete within %s after %d nodes", e.Stage, e.Timeout, e.Nodes)
	if e.Cause != nil {
		msg += ": " + e.Cause.Error()
	}
	return msg
}

func (e *SolverTimeoutError) Unwrap() error { return e.Cause }

package milp

import (
	"context"
	"errors"
)

// Status is the outcome of a solve.
type Status int

const (
	StatusOptimal Status = iota
	StatusInfeasible
	StatusTimeout
)

func (s Status) String() string {
	switch s {
	case StatusOptimal:
		return "Optimal"
	case StatusInfeasible:
		return "Infeasible"
	case StatusTimeout:
		return "Timeout"
	default:
		return "unknown"
	}
}

// Solution is the raw result of a solver. On Timeout Values holds the best
// incumbent found so far, or nil. Interrupted is set when the context
// stopped the search rather than the node budget.
type Solution struct {
	Status      Status
	Values      []float64
	Objective   float64
	Nodes       int
	Interrupted bool
}

// Solver solves a Model. Implementations must honour the context deadline
// and be deterministic for identical models.
type Solver interface {
	Solve(ctx context.Context, m *Model) (Solution, error)
}

var (
	// ErrUnbounded indicates the objective can decrease without limit.
	ErrUnbounded = errors.New("milp: problem is unbounded")
	// ErrNumerical indicates the LP backend failed for numerical reasons.
	ErrNumerical = errors.New("milp: numerical failure")
	// ErrNodeLimit indicates the search stopped on its node budget.
	ErrNodeLimit = errors.New("milp: node limit reached")
)

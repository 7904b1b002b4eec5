package milp

import (
	"context"
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/optimize/convex/lp"

	"github.com/kilianp07/induction/core/logger"
)

// BranchAndBound solves binary programs by depth-first branch-and-bound over
// LP relaxations solved with the simplex method.
type BranchAndBound struct {
	// Tolerance is the integrality and feasibility tolerance.
	Tolerance float64
	// MaxNodes bounds the search tree; zero means unlimited. Exhausting it
	// yields StatusTimeout with the incumbent.
	MaxNodes int
	Logger   logger.Logger
}

// NewBranchAndBound returns a solver with default tolerances.
func NewBranchAndBound(log logger.Logger) *BranchAndBound {
	return &BranchAndBound{Tolerance: 1e-6, MaxNodes: 20000, Logger: logger.OrNop(log)}
}

// solveSimplex runs gonum's simplex on a standard-form LP
// min cᵀx s.t. Ax = b, x ≥ 0.
func solveSimplex(c []float64, A mat.Matrix, b []float64) (x []float64, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", ErrNumerical, r)
		}
	}()
	_, x, err = lp.Simplex(c, A, b, 1e-10, nil)
	return x, err
}

// lpSolve points to the function used to solve relaxations. It can be
// overridden in tests to simulate backend failures.
var lpSolve = solveSimplex

var errNodeInfeasible = errors.New("node infeasible")

type node struct {
	fixed map[VarID]float64
	depth int
}

// Solve implements Solver.
func (s *BranchAndBound) Solve(ctx context.Context, m *Model) (Solution, error) {
	tol := s.Tolerance
	if tol <= 0 {
		tol = 1e-6
	}
	log := logger.OrNop(s.Logger)

	root := make(map[VarID]float64)
	for i, v := range m.Vars {
		if v.Fixed {
			root[VarID(i)] = v.Value
		}
	}

	best := math.Inf(1)
	var incumbent []float64
	if m.hint != nil && len(m.Check(m.hint, tol)) == 0 {
		incumbent = append([]float64(nil), m.hint...)
		best = m.Evaluate(incumbent).Total
		log.Debugf("milp %s: hint accepted as incumbent (objective %.4f)", m.Name, best)
	}

	stack := []node{{fixed: root}}
	nodes := 0
	for len(stack) > 0 {
		if err := ctx.Err(); err != nil {
			log.Warnf("milp %s: stopped after %d nodes: %v", m.Name, nodes, err)
			sol := s.partial(m, incumbent, nodes)
			sol.Interrupted = true
			return sol, nil
		}
		if s.MaxNodes > 0 && nodes >= s.MaxNodes {
			log.Warnf("milp %s: node limit %d reached", m.Name, s.MaxNodes)
			return s.partial(m, incumbent, nodes), nil
		}
		n := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		nodes++

		obj, x, err := relax(m, n.fixed, tol)
		if errors.Is(err, errNodeInfeasible) {
			continue
		}
		if err != nil {
			return Solution{Nodes: nodes}, err
		}
		if obj >= best-1e-9 {
			continue
		}
		branch := -1
		for i, v := range m.Vars {
			if v.Kind != Binary {
				continue
			}
			if _, ok := n.fixed[VarID(i)]; ok {
				continue
			}
			if !isIntegral(x[i], tol) {
				branch = i
				break
			}
		}
		if branch < 0 {
			for i, v := range m.Vars {
				if v.Kind == Binary {
					x[i] = math.Round(x[i])
				}
			}
			best = obj
			incumbent = x
			log.Debugf("milp %s: incumbent %.4f at node %d depth %d", m.Name, obj, nodes, n.depth)
			continue
		}
		// The child closer to the relaxed value is explored first.
		first, second := 0.0, 1.0
		if x[branch] >= 0.5 {
			first, second = 1.0, 0.0
		}
		stack = append(stack, child(n, VarID(branch), second), child(n, VarID(branch), first))
	}

	if incumbent == nil {
		return Solution{Status: StatusInfeasible, Nodes: nodes}, nil
	}
	return Solution{Status: StatusOptimal, Values: incumbent, Objective: m.Evaluate(incumbent).Total, Nodes: nodes}, nil
}

func (s *BranchAndBound) partial(m *Model, incumbent []float64, nodes int) Solution {
	sol := Solution{Status: StatusTimeout, Nodes: nodes}
	if incumbent != nil {
		sol.Values = incumbent
		sol.Objective = m.Evaluate(incumbent).Total
	}
	return sol
}

func child(parent node, v VarID, value float64) node {
	fixed := make(map[VarID]float64, len(parent.fixed)+1)
	for k, val := range parent.fixed {
		fixed[k] = val
	}
	fixed[v] = value
	return node{fixed: fixed, depth: parent.depth + 1}
}

// relax solves the LP relaxation of m with the given variables fixed. Fixed
// variables are substituted out and equality rows left with a single free
// variable are propagated before the simplex runs.
//
//gocyclo:ignore
func relax(m *Model, fixed map[VarID]float64, tol float64) (float64, []float64, error) {
	vals := make(map[VarID]float64, len(fixed))
	for k, v := range fixed {
		vals[k] = v
	}

	for changed := true; changed; {
		changed = false
		for _, c := range m.Constraints {
			constant, free := split(c, vals)
			if len(free) == 0 {
				if !satisfied(constant, c.Sense, c.RHS, tol) {
					return 0, nil, errNodeInfeasible
				}
				continue
			}
			if len(free) != 1 || c.Sense != Equal {
				continue
			}
			t := free[0]
			v := (c.RHS - constant) / t.Coef
			if v < -tol {
				return 0, nil, errNodeInfeasible
			}
			if m.Vars[t.Var].Kind == Binary {
				if !isIntegral(v, tol) {
					return 0, nil, errNodeInfeasible
				}
				v = math.Round(v)
			}
			vals[t.Var] = math.Max(v, 0)
			changed = true
		}
	}

	cost := m.Cost()
	type row struct {
		terms []Term
		sense Sense
		rhs   float64
	}
	var rows []row
	inRow := make(map[VarID]bool)
	for _, c := range m.Constraints {
		constant, free := split(c, vals)
		if len(free) == 0 {
			if !satisfied(constant, c.Sense, c.RHS, tol) {
				return 0, nil, errNodeInfeasible
			}
			continue
		}
		for _, t := range free {
			inRow[t.Var] = true
		}
		rows = append(rows, row{terms: free, sense: c.Sense, rhs: c.RHS - constant})
	}

	x := make([]float64, len(m.Vars))
	col := make(map[VarID]int)
	var cols []VarID
	for i, v := range m.Vars {
		id := VarID(i)
		if val, ok := vals[id]; ok {
			x[i] = val
			continue
		}
		if inRow[id] {
			col[id] = len(cols)
			cols = append(cols, id)
			continue
		}
		// Unconstrained variable: its objective sign decides.
		switch {
		case cost[i] >= 0:
			x[i] = 0
		case v.Kind == Binary:
			x[i] = 1
		default:
			return 0, nil, ErrUnbounded
		}
	}

	if len(rows) > 0 {
		slacks := 0
		for _, r := range rows {
			if r.sense != Equal {
				slacks++
			}
		}
		n := len(cols) + slacks
		A := mat.NewDense(len(rows), n, nil)
		b := make([]float64, len(rows))
		c := make([]float64, n)
		for j, id := range cols {
			c[j] = cost[id]
		}
		slack := len(cols)
		for i, r := range rows {
			sign := 1.0
			if r.rhs < 0 {
				sign = -1
			}
			for _, t := range r.terms {
				A.Set(i, col[t.Var], sign*t.Coef)
			}
			switch r.sense {
			case LessEq:
				A.Set(i, slack, sign)
				slack++
			case GreaterEq:
				A.Set(i, slack, -sign)
				slack++
			}
			b[i] = sign * r.rhs
		}
		sol, err := lpSolve(c, A, b)
		switch {
		case errors.Is(err, lp.ErrInfeasible):
			return 0, nil, errNodeInfeasible
		case errors.Is(err, lp.ErrUnbounded):
			return 0, nil, ErrUnbounded
		case errors.Is(err, ErrNumerical):
			return 0, nil, err
		case err != nil:
			return 0, nil, fmt.Errorf("%w: %v", ErrNumerical, err)
		}
		for j, id := range cols {
			v := sol[j]
			if v < 0 && v > -tol {
				v = 0
			}
			x[id] = v
		}
	}

	obj := m.Constant()
	for i, c := range cost {
		obj += c * x[i]
	}
	return obj, x, nil
}

// split returns the constant part of c under vals and its remaining free terms.
func split(c Constraint, vals map[VarID]float64) (float64, []Term) {
	var constant float64
	var free []Term
	for _, t := range c.Terms {
		if v, ok := vals[t.Var]; ok {
			constant += t.Coef * v
			continue
		}
		free = append(free, t)
	}
	return constant, free
}

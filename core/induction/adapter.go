package induction

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/kilianp07/induction/core/logger"
	"github.com/kilianp07/induction/core/milp"
	"github.com/kilianp07/induction/core/snapshot"
)

// DefaultTimeout bounds one planning solve when none is configured.
const DefaultTimeout = 10 * time.Second

// Adapter runs the compile, compose, solve and interpret pipeline against a
// milp.Solver, falling back to the rule-based heuristic when the solver
// cannot finish in time.
type Adapter struct {
	solver   milp.Solver
	compiler *Compiler
	composer *Composer
	timeout  time.Duration
	log      logger.Logger
}

// NewAdapter returns an Adapter. A zero timeout selects DefaultTimeout.
func NewAdapter(solver milp.Solver, timeout time.Duration, log logger.Logger) *Adapter {
	log = logger.OrNop(log)
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Adapter{
		solver:   solver,
		compiler: NewCompiler(log),
		composer: NewComposer(log),
		timeout:  timeout,
		log:      log,
	}
}

type outcome struct {
	values   []float64
	nodes    int
	fallback *SolverTimeoutError
}

// Plan produces a validated induction plan for the snapshot. Infeasible
// snapshots yield *InfeasibleModelError; a plan built by the fallback is
// marked degraded and carries a *SolverTimeoutError in Plan.Fallback.
func (a *Adapter) Plan(ctx context.Context, snap *snapshot.PlanningSnapshot) (*Plan, error) {
	solveCtx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	sp := a.compiler.CompileStates(snap)
	a.composer.ComposeStates(sp)
	var hint []float64
	hStates, hCleaned, herr := heuristicStates(sp)
	if herr == nil {
		hint = sp.Values(hStates, hCleaned)
		sp.Model.Hint(hint)
	}
	first, err := a.solve(ctx, solveCtx, sp.Model, "state", hint)
	if err != nil {
		if errors.Is(err, errNoSolution) {
			if d := Diagnose(snap); d != nil {
				return nil, d
			}
			if herr != nil {
				return nil, herr
			}
			return nil, &InfeasibleModelError{Class: "unknown", Detail: "no assignment satisfies the hard constraints"}
		}
		var tErr *SolverTimeoutError
		if errors.As(err, &tErr) && herr != nil {
			return nil, herr
		}
		return nil, err
	}
	states, cleaned, err := decodeStates(sp, first.values)
	if err != nil {
		return nil, err
	}

	bp, err := a.compiler.CompileStabling(snap, states, cleaned)
	if err != nil {
		return nil, err
	}
	a.composer.ComposeStabling(bp)
	hint = nil
	if hBays, err := heuristicBays(bp); err == nil {
		hint = bp.Values(hBays)
		bp.Model.Hint(hint)
	}
	second, err := a.solve(ctx, solveCtx, bp.Model, "stabling", hint)
	if errors.Is(err, errNoSolution) {
		return nil, &InfeasibleModelError{Class: ClassBayCapacity, Detail: "no bay allocation exists for the selected states"}
	}
	if err != nil {
		return nil, err
	}

	plan, err := Interpret(sp, first.values, bp, second.values)
	if err != nil {
		return nil, err
	}
	plan.Nodes = first.nodes + second.nodes
	for _, o := range []outcome{first, second} {
		if o.fallback != nil && plan.Fallback == nil {
			plan.Quality = QualityDegraded
			plan.Fallback = o.fallback
		}
	}
	a.log.Debugw("induction plan ready", map[string]any{
		"depot":     snap.DepotID,
		"quality":   string(plan.Quality),
		"objective": plan.Objective,
		"nodes":     plan.Nodes,
	})
	return plan, nil
}

var errNoSolution = errors.New("induction: solver found no solution")

type solved struct {
	sol milp.Solution
	err error
}

// solve runs one stage under the wall-clock budget of ctx. A solver that
// overruns the deadline is abandoned. Deadline and numerical failures fall
// back to the heuristic hint; exhausting the node budget keeps the
// incumbent, which depends only on the model.
func (a *Adapter) solve(parent, ctx context.Context, m *milp.Model, stage string, hint []float64) (outcome, error) {
	if err := ctx.Err(); err != nil {
		return a.fallback(parent, stage, hint, 0, err)
	}
	done := make(chan solved, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- solved{err: fmt.Errorf("solver panic: %v", r)}
			}
		}()
		sol, err := a.solver.Solve(ctx, m)
		done <- solved{sol: sol, err: err}
	}()

	var r solved
	select {
	case r = <-done:
	case <-ctx.Done():
		a.log.Warnf("%s stage solver abandoned at the deadline", stage)
		return a.fallback(parent, stage, hint, 0, ctx.Err())
	}

	sol, err := r.sol, r.err
	switch {
	case errors.Is(err, milp.ErrNumerical):
		return a.fallback(parent, stage, hint, sol.Nodes, err)
	case err != nil:
		return outcome{}, fmt.Errorf("solve %s stage: %w", stage, err)
	}
	switch sol.Status {
	case milp.StatusOptimal:
		return outcome{values: sol.Values, nodes: sol.Nodes}, nil
	case milp.StatusInfeasible:
		return outcome{}, errNoSolution
	}
	if sol.Interrupted {
		return a.fallback(parent, stage, hint, sol.Nodes, ctx.Err())
	}
	if sol.Values != nil {
		hint = sol.Values
	}
	return a.fallback(parent, stage, hint, sol.Nodes, milp.ErrNodeLimit)
}

func (a *Adapter) fallback(parent context.Context, stage string, values []float64, nodes int, cause error) (outcome, error) {
	if err := parent.Err(); err != nil {
		return outcome{}, err
	}
	tErr := &SolverTimeoutError{Stage: stage, Timeout: a.timeout, Nodes: nodes, Cause: cause}
	if values == nil {
		return outcome{}, tErr
	}
	a.log.Warnf("%v; using fallback assignment", tErr)
	return outcome{values: values, nodes: nodes, fallback: tErr}, nil
}

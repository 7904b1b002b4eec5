package milp

import (
	"context"
	"errors"
	"fmt"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

func knapsack() (*Model, []VarID) {
	m := NewModel("knapsack")
	a, b, c := m.Binary("a"), m.Binary("b"), m.Binary("c")
	m.Add(Constraint{Name: "weight", Class: "capacity", Terms: []Term{{a, 2}, {b, 3}, {c, 1}}, Sense: LessEq, RHS: 4})
	m.AddObjective("value", a, -5)
	m.AddObjective("value", b, -4)
	m.AddObjective("value", c, -3)
	return m, []VarID{a, b, c}
}

func TestBranchAndBound_Knapsack(t *testing.T) {
	m, ids := knapsack()
	sol, err := NewBranchAndBound(nil).Solve(context.Background(), m)
	require.NoError(t, err)
	require.Equal(t, StatusOptimal, sol.Status)
	assert.InDelta(t, -8, sol.Objective, 1e-6)
	assert.Equal(t, 1.0, sol.Values[ids[0]])
	assert.Equal(t, 0.0, sol.Values[ids[1]])
	assert.Equal(t, 1.0, sol.Values[ids[2]])
	assert.Empty(t, m.Check(sol.Values, 1e-6))
}

func TestBranchAndBound_Assignment(t *testing.T) {
	costs := [][]float64{{4, 1, 3}, {2, 0, 5}, {3, 2, 2}}
	m := NewModel("assignment")
	y := make([][]VarID, 3)
	for i := range costs {
		y[i] = make([]VarID, 3)
		for j := range costs[i] {
			y[i][j] = m.Binary(fmt.Sprintf("y_%d_%d", i, j))
			m.AddObjective("cost", y[i][j], costs[i][j])
		}
	}
	for i := 0; i < 3; i++ {
		row := []Term{{y[i][0], 1}, {y[i][1], 1}, {y[i][2], 1}}
		m.Add(Constraint{Name: fmt.Sprintf("row_%d", i), Class: "row", Terms: row, Sense: Equal, RHS: 1})
		colTerms := []Term{{y[0][i], 1}, {y[1][i], 1}, {y[2][i], 1}}
		m.Add(Constraint{Name: fmt.Sprintf("col_%d", i), Class: "col", Terms: colTerms, Sense: LessEq, RHS: 1})
	}
	sol, err := NewBranchAndBound(nil).Solve(context.Background(), m)
	require.NoError(t, err)
	require.Equal(t, StatusOptimal, sol.Status)
	assert.InDelta(t, 5, sol.Objective, 1e-6)
	assert.Equal(t, 1.0, sol.Values[y[0][1]])
	assert.Equal(t, 1.0, sol.Values[y[1][0]])
	assert.Equal(t, 1.0, sol.Values[y[2][2]])
}

func TestBranchAndBound_Infeasible(t *testing.T) {
	m := NewModel("infeasible")
	x, y := m.Binary("x"), m.Binary("y")
	m.Add(Constraint{Name: "one", Class: "pick", Terms: []Term{{x, 1}, {y, 1}}, Sense: Equal, RHS: 1})
	m.Add(Constraint{Name: "two", Class: "demand", Terms: []Term{{x, 1}, {y, 1}}, Sense: GreaterEq, RHS: 2})
	sol, err := NewBranchAndBound(nil).Solve(context.Background(), m)
	require.NoError(t, err)
	assert.Equal(t, StatusInfeasible, sol.Status)
	assert.Nil(t, sol.Values)
}

func TestBranchAndBound_FixedVariables(t *testing.T) {
	m, ids := knapsack()
	m.Fix(ids[0], 0, "excluded")
	sol, err := NewBranchAndBound(nil).Solve(context.Background(), m)
	require.NoError(t, err)
	require.Equal(t, StatusOptimal, sol.Status)
	assert.Equal(t, 0.0, sol.Values[ids[0]])
	assert.InDelta(t, -7, sol.Objective, 1e-6)
}

func TestBranchAndBound_ContinuousAbsoluteValue(t *testing.T) {
	// pen >= x - 3, pen >= 3 - x with x fixed to 5 gives pen = 2.
	m := NewModel("abs")
	x := m.Continuous("x")
	pen := m.Continuous("pen")
	m.Fix(x, 5, "data")
	m.Add(Constraint{Name: "up", Class: "abs", Terms: []Term{{pen, 1}, {x, -1}}, Sense: GreaterEq, RHS: -3})
	m.Add(Constraint{Name: "down", Class: "abs", Terms: []Term{{pen, 1}, {x, 1}}, Sense: GreaterEq, RHS: 3})
	m.AddObjective("abs", pen, 1)
	sol, err := NewBranchAndBound(nil).Solve(context.Background(), m)
	require.NoError(t, err)
	assert.InDelta(t, 2, sol.Values[pen], 1e-6)
}

func TestBranchAndBound_SolverErrorPropagates(t *testing.T) {
	old := lpSolve
	lpSolve = func(_ []float64, _ mat.Matrix, _ []float64) ([]float64, error) {
		return nil, errors.New("fail")
	}
	defer func() { lpSolve = old }()

	m, _ := knapsack()
	_, err := NewBranchAndBound(nil).Solve(context.Background(), m)
	if !errors.Is(err, ErrNumerical) {
		t.Fatalf("expected numerical error, got %v", err)
	}
}

func TestBranchAndBound_CancelledContext(t *testing.T) {
	m, _ := knapsack()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	sol, err := NewBranchAndBound(nil).Solve(ctx, m)
	require.NoError(t, err)
	assert.Equal(t, StatusTimeout, sol.Status)
	assert.True(t, sol.Interrupted)
	assert.Nil(t, sol.Values)
}

func TestBranchAndBound_NodeLimitIsNotInterruption(t *testing.T) {
	m, _ := knapsack()
	bb := NewBranchAndBound(nil)
	bb.MaxNodes = 1
	sol, err := bb.Solve(context.Background(), m)
	require.NoError(t, err)
	assert.Equal(t, StatusTimeout, sol.Status)
	assert.False(t, sol.Interrupted)
	assert.Equal(t, 1, sol.Nodes)
}

func TestBranchAndBound_HintSurvivesTimeout(t *testing.T) {
	m, ids := knapsack()
	hint := make([]float64, len(m.Vars))
	hint[ids[1]] = 1
	m.Hint(hint)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	sol, err := NewBranchAndBound(nil).Solve(ctx, m)
	require.NoError(t, err)
	assert.Equal(t, StatusTimeout, sol.Status)
	assert.Equal(t, hint, sol.Values)
	assert.InDelta(t, -4, sol.Objective, 1e-9)
}

func TestBranchAndBound_Deterministic(t *testing.T) {
	var first []float64
	for i := 0; i < 3; i++ {
		m, _ := knapsack()
		sol, err := NewBranchAndBound(nil).Solve(context.Background(), m)
		require.NoError(t, err)
		if first == nil {
			first = sol.Values
			continue
		}
		assert.Equal(t, first, sol.Values)
	}
}

func TestModelEvaluateAndCheck(t *testing.T) {
	m := NewModel("eval")
	x, y := m.Binary("x"), m.Continuous("y")
	m.AddObjective("a", x, 2)
	m.AddObjective("b", y, 0.5)
	m.AddConstant("b", 1)
	m.Add(Constraint{Name: "cap", Class: "cap", Terms: []Term{{x, 1}, {y, 1}, {x, 0}}, Sense: LessEq, RHS: 3})

	br := m.Evaluate([]float64{1, 4})
	assert.InDelta(t, 5, br.Total, 1e-9)
	assert.InDelta(t, 2, br.Terms["a"], 1e-9)
	assert.InDelta(t, 3, br.Terms["b"], 1e-9)

	v := m.Check([]float64{1, 4}, 1e-9)
	require.Len(t, v, 1)
	assert.Equal(t, "cap", v[0].Class)
	assert.True(t, math.Abs(v[0].LHS-5) < 1e-9)

	v = m.Check([]float64{0.5, 0}, 1e-9)
	require.Len(t, v, 1)
	assert.Equal(t, "integrality", v[0].Class)
	assert.Equal(t, []string{"cap"}, m.Classes())
}

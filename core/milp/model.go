package milp

import (
	"fmt"
	"math"
	"sort"
)

// VarKind distinguishes continuous from binary variables.
type VarKind int

const (
	Continuous VarKind = iota
	Binary
)

// VarID indexes a variable inside its Model.
type VarID int

// Var is a non-negative decision variable.
type Var struct {
	Name      string
	Kind      VarKind
	Fixed     bool
	Value     float64 // value when Fixed
	FixReason string
}

// Sense is the relation between a constraint's left-hand side and its RHS.
type Sense int

const (
	LessEq Sense = iota
	Equal
	GreaterEq
)

func (s Sense) String() string {
	switch s {
	case LessEq:
		return "<="
	case Equal:
		return "="
	default:
		return ">="
	}
}

// Term is one coefficient of a linear expression.
type Term struct {
	Var  VarID
	Coef float64
}

// Constraint is a linear row Σ coef·var (sense) RHS. Class groups rows of the
// same family for diagnostics.
type Constraint struct {
	Name  string
	Class string
	Terms []Term
	Sense Sense
	RHS   float64
}

type objTerm struct {
	v     VarID
	coef  float64
	group string
}

// Model is a solver-agnostic minimisation problem.
type Model struct {
	Name        string
	Vars        []Var
	Constraints []Constraint

	obj       []objTerm
	constants map[string]float64
	hint      []float64
}

// NewModel returns an empty model.
func NewModel(name string) *Model {
	return &Model{Name: name, constants: make(map[string]float64)}
}

// AddVar appends a variable and returns its id.
func (m *Model) AddVar(name string, kind VarKind) VarID {
	m.Vars = append(m.Vars, Var{Name: name, Kind: kind})
	return VarID(len(m.Vars) - 1)
}

// Binary appends a 0/1 variable.
func (m *Model) Binary(name string) VarID { return m.AddVar(name, Binary) }

// Continuous appends a non-negative continuous variable.
func (m *Model) Continuous(name string) VarID { return m.AddVar(name, Continuous) }

// Fix pins v to value. The reason is kept for explanations.
func (m *Model) Fix(v VarID, value float64, reason string) {
	m.Vars[v].Fixed = true
	m.Vars[v].Value = value
	m.Vars[v].FixReason = reason
}

// Add appends a constraint. Zero coefficients are dropped and repeated
// variables merged.
func (m *Model) Add(c Constraint) {
	merged := make(map[VarID]float64, len(c.Terms))
	order := make([]VarID, 0, len(c.Terms))
	for _, t := range c.Terms {
		if _, ok := merged[t.Var]; !ok {
			order = append(order, t.Var)
		}
		merged[t.Var] += t.Coef
	}
	terms := make([]Term, 0, len(order))
	for _, v := range order {
		if merged[v] != 0 {
			terms = append(terms, Term{Var: v, Coef: merged[v]})
		}
	}
	c.Terms = terms
	m.Constraints = append(m.Constraints, c)
}

// AddObjective adds coef·v to the objective under the named group.
func (m *Model) AddObjective(group string, v VarID, coef float64) {
	if coef == 0 {
		return
	}
	m.obj = append(m.obj, objTerm{v: v, coef: coef, group: group})
}

// AddConstant adds a constant to the objective under the named group.
func (m *Model) AddConstant(group string, c float64) {
	m.constants[group] += c
}

// Hint records a candidate solution used as the initial incumbent when feasible.
func (m *Model) Hint(values []float64) {
	m.hint = append([]float64(nil), values...)
}

// Cost returns the aggregated objective coefficient of each variable.
func (m *Model) Cost() []float64 {
	c := make([]float64, len(m.Vars))
	for _, t := range m.obj {
		c[t.v] += t.coef
	}
	return c
}

// Constant returns the sum of all objective constants.
func (m *Model) Constant() float64 {
	var s float64
	for _, v := range m.constants {
		s += v
	}
	return s
}

// Breakdown is an objective value decomposed by group.
type Breakdown struct {
	Total float64            `json:"total"`
	Terms map[string]float64 `json:"terms"`
}

// Evaluate computes the objective of values, decomposed by group.
func (m *Model) Evaluate(values []float64) Breakdown {
	b := Breakdown{Terms: make(map[string]float64)}
	for g, c := range m.constants {
		b.Terms[g] += c
		b.Total += c
	}
	for _, t := range m.obj {
		v := t.coef * values[t.v]
		b.Terms[t.group] += v
		b.Total += v
	}
	return b
}

// Violation describes a constraint that values do not satisfy.
type Violation struct {
	Constraint string
	Class      string
	LHS        float64
	Sense      Sense
	RHS        float64
}

func (v Violation) String() string {
	return fmt.Sprintf("%s [%s]: %.6g %s %.6g", v.Constraint, v.Class, v.LHS, v.Sense, v.RHS)
}

// Check returns every violated constraint, fixing or integrality requirement.
func (m *Model) Check(values []float64, tol float64) []Violation {
	var out []Violation
	if len(values) != len(m.Vars) {
		return []Violation{{Constraint: "dimension", Class: "model", LHS: float64(len(values)), Sense: Equal, RHS: float64(len(m.Vars))}}
	}
	for i, v := range m.Vars {
		x := values[i]
		switch {
		case x < -tol:
			out = append(out, Violation{Constraint: v.Name, Class: "bound", LHS: x, Sense: GreaterEq})
		case v.Fixed && math.Abs(x-v.Value) > tol:
			out = append(out, Violation{Constraint: v.Name, Class: "fixed", LHS: x, Sense: Equal, RHS: v.Value})
		case v.Kind == Binary && !isIntegral(x, tol):
			out = append(out, Violation{Constraint: v.Name, Class: "integrality", LHS: x, Sense: Equal, RHS: math.Round(x)})
		}
	}
	for _, c := range m.Constraints {
		lhs := 0.0
		for _, t := range c.Terms {
			lhs += t.Coef * values[t.Var]
		}
		if !satisfied(lhs, c.Sense, c.RHS, tol) {
			out = append(out, Violation{Constraint: c.Name, Class: c.Class, LHS: lhs, Sense: c.Sense, RHS: c.RHS})
		}
	}
	return out
}

// Classes returns the distinct constraint classes of the model, sorted.
func (m *Model) Classes() []string {
	seen := make(map[string]struct{})
	for _, c := range m.Constraints {
		seen[c.Class] = struct{}{}
	}
	out := make([]string, 0, len(seen))
	for k := range seen {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func satisfied(lhs float64, s Sense, rhs, tol float64) bool {
	switch s {
	case LessEq:
		return lhs <= rhs+tol
	case GreaterEq:
		return lhs >= rhs-tol
	default:
		return math.Abs(lhs-rhs) <= tol
	}
}

func isIntegral(x, tol float64) bool {
	return math.Abs(x) <= tol || math.Abs(x-1) <= tol
}

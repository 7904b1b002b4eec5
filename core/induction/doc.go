// Package induction turns a planning snapshot into a nightly induction plan:
// it compiles the constraint model, composes the weighted objective, solves
// it through a milp.Solver with a rule-based fallback and validates the
// result before it leaves the package.
package induction

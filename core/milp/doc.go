// Package milp describes mixed binary linear programs independently of any
// solver and ships a branch-and-bound solver built on gonum's simplex.
//
// A Model holds variables, linear constraints tagged with a class and an
// objective whose coefficients are grouped by term so that callers can
// decompose the cost of a solution.
package milp

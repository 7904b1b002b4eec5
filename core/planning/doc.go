// Package planning runs the nightly induction pipeline for a depot: it builds
// the planning snapshot, solves the induction model, detects conflicts and
// publishes the draft schedule. Operator decisions on drafts and committed
// schedules go through the same Planner so that every change reaches the
// ledger and the event bus.
package planning

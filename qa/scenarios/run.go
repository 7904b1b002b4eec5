package scenarios

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sort"
	"time"

	"github.com/kilianp07/induction/core/conflict"
	"github.com/kilianp07/induction/core/induction"
	"github.com/kilianp07/induction/core/milp"
	"github.com/kilianp07/induction/core/planning"
	"github.com/kilianp07/induction/core/schedule"
	"github.com/kilianp07/induction/core/snapshot"
)

// Date is the operating day every scenario is planned for.
var Date = time.Date(2025, 3, 15, 0, 0, 0, 0, time.UTC)

// Outcome is what the pipeline produced for a scenario.
type Outcome struct {
	Result *planning.RunResult
	Err    error
}

// Run plans the scenario on in-memory stores.
func Run(ctx context.Context, sc *Scenario, timeout time.Duration) Outcome {
	clock := func() time.Time { return Date.Add(-3 * time.Hour) }
	pub := schedule.NewPublisher(schedule.NewMemoryStore(), schedule.NewMemoryLedger(), nil).WithClock(clock)
	p, err := planning.NewPlanner(
		snapshot.NewBuilder(sc.Source(), sc.Policy(), nil).WithClock(clock),
		induction.NewAdapter(milp.NewBranchAndBound(nil), timeout, nil),
		conflict.NewDetector(nil),
		pub,
		nil,
		nil,
	)
	if err != nil {
		return Outcome{Err: err}
	}
	res, err := p.WithClock(clock).RunInductionPlanning(ctx, "SCN", Date)
	return Outcome{Result: res, Err: err}
}

// Check compares an outcome with the expectation and returns the mismatches.
func Check(exp Expected, out Outcome) []string {
	var diffs []string
	fail := func(format string, args ...any) { diffs = append(diffs, fmt.Sprintf(format, args...)) }

	var (
		die *snapshot.DataIncompleteError
		inf *induction.InfeasibleModelError
	)
	switch exp.Error {
	case "":
		if out.Err != nil {
			fail("unexpected error: %v", out.Err)
			return diffs
		}
	case "data_incomplete":
		if !errors.As(out.Err, &die) {
			fail("want data incomplete, got %v", out.Err)
			return diffs
		}
		var ids []string
		for _, m := range die.Missing {
			if !slices.Contains(ids, m.TrainsetID) {
				ids = append(ids, m.TrainsetID)
			}
		}
		sort.Strings(ids)
		want := append([]string(nil), exp.Missing...)
		sort.Strings(want)
		if len(want) > 0 && !slices.Equal(ids, want) {
			fail("missing trainsets: want %v, got %v", want, ids)
		}
		return diffs
	case "infeasible":
		if !errors.As(out.Err, &inf) {
			fail("want infeasible, got %v", out.Err)
			return diffs
		}
		if exp.InfeasibleClass != "" && inf.Class != exp.InfeasibleClass {
			fail("infeasible class: want %s, got %s", exp.InfeasibleClass, inf.Class)
		}
		return diffs
	default:
		fail("unknown expected error %q", exp.Error)
		return diffs
	}

	res := out.Result
	if res == nil || res.Schedule == nil {
		fail("no schedule produced")
		return diffs
	}
	a := res.Schedule.Assignments
	if exp.Code != "" && string(res.Code) != exp.Code {
		fail("code: want %s, got %s", exp.Code, res.Code)
	}
	if exp.Service != nil && len(a.ReadyForService) != *exp.Service {
		fail("service: want %d, got %d", *exp.Service, len(a.ReadyForService))
	}
	for _, id := range exp.InService {
		if !slices.Contains(a.ReadyForService, id) {
			fail("%s not in service", id)
		}
	}
	for _, id := range exp.InIBL {
		if !slices.Contains(a.HeldForMaintenance, id) {
			fail("%s not held in IBL", id)
		}
	}
	if exp.Conflicts != nil {
		got := map[string]int{}
		for _, c := range res.Conflicts {
			got[string(c.Kind)]++
		}
		for kind, n := range exp.Conflicts {
			if got[kind] != n {
				fail("conflicts %s: want %d, got %d", kind, n, got[kind])
			}
		}
		for kind, n := range got {
			if _, ok := exp.Conflicts[kind]; !ok {
				fail("unexpected %d %s conflicts", n, kind)
			}
		}
	}
	return diffs
}

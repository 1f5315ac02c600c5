package runtime

import (
	"context"
	"fmt"
	"time"

	"github.com/mpst-tools/dmst/ast"
	"github.com/mpst-tools/dmst/obs"
)

// Result is the outcome of a coordinated multi-role run (spec §4.4
// "Result{success, globalSteps, traces, error}"), returned by both
// DistributedSimulator.Run and DistributedRuntime.Run.
type Result struct {
	Success     bool
	GlobalSteps int
	Traces      map[ast.RoleName][]obs.Event
	Err         error
}

// roleSet is the shared bookkeeping both coordinators use to decide
// whether every simulator has reached a terminal, call-stack-empty state.
type roleSet struct {
	sims  map[ast.RoleName]*CFSMSimulator
	order []ast.RoleName
}

func newRoleSet(sims map[ast.RoleName]*CFSMSimulator) roleSet {
	rs := roleSet{sims: sims}
	for r := range sims {
		rs.order = append(rs.order, r)
	}
	// Deterministic iteration order, independent of Go's randomized map
	// iteration.
	for i := 1; i < len(rs.order); i++ {
		for j := i; j > 0 && rs.order[j] < rs.order[j-1]; j-- {
			rs.order[j], rs.order[j-1] = rs.order[j-1], rs.order[j]
		}
	}
	return rs
}

func (rs roleSet) allComplete() bool {
	for _, r := range rs.order {
		if !rs.sims[r].IsComplete() {
			return false
		}
	}
	return true
}

func (rs roleSet) collectTraces() map[ast.RoleName][]obs.Event {
	out := make(map[ast.RoleName][]obs.Event, len(rs.order))
	for _, r := range rs.order {
		out[r] = rs.sims[r].GetTrace()
	}
	return out
}

func (rs roleSet) totalSteps() int {
	n := 0
	for _, r := range rs.order {
		n += rs.sims[r].StepCount()
	}
	return n
}

// deadlocked implements spec §4.4.3's necessary-and-sufficient condition:
// every simulator is either complete or blocked, at least one is not
// complete, and the transport holds no in-flight messages that could
// unblock anyone.
func deadlocked(rs roleSet, pending int) bool {
	anyUnfinished := false
	for _, r := range rs.order {
		sim := rs.sims[r]
		if sim.IsComplete() {
			continue
		}
		anyUnfinished = true
		if !sim.IsBlocked() {
			return false
		}
	}
	return anyUnfinished && pending == 0
}

func newDeadlockError(rs roleSet) error {
	stuck := make([]string, 0, len(rs.order))
	for _, r := range rs.order {
		if !rs.sims[r].IsComplete() {
			stuck = append(stuck, string(r))
		}
	}
	return &FatalError{
		Kind:    FatalDeadlock,
		Message: fmt.Sprintf("no role can make progress and the transport is empty: stuck roles %v", stuck),
		Details: map[string]interface{}{"stuck_roles": stuck},
	}
}

func emitDeadlock(sims map[ast.RoleName]*CFSMSimulator, stuck []ast.RoleName) {
	for _, r := range stuck {
		sims[r].emit(obs.Deadlock, "", map[string]interface{}{"stuck_roles": stuck})
	}
}

func stuckRoles(rs roleSet) []ast.RoleName {
	var out []ast.RoleName
	for _, r := range rs.order {
		if !rs.sims[r].IsComplete() {
			out = append(out, r)
		}
	}
	return out
}

// runDeadline converts cfg's wall-clock budget, if any, into a derived
// context.
func runDeadline(ctx context.Context, budget time.Duration) (context.Context, context.CancelFunc) {
	if budget <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, budget)
}

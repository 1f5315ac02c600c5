package runtime

import (
	"context"
	"fmt"
	"math/rand"

	"github.com/mpst-tools/dmst/ast"
	"github.com/mpst-tools/dmst/config"
)

// DistributedSimulator drives a fixed set of per-role CFSMSimulators under
// a single goroutine, choosing one role per tick to advance (Mode A,
// "scheduled" in spec §4.4): a `for { step++ ... }` loop picking the next
// role to advance deterministically rather than handing every role its
// own goroutine — useful for reproducible tests and for protocols small
// enough that concurrency would only add scheduling noise.
type DistributedSimulator struct {
	sims       map[ast.RoleName]*CFSMSimulator
	rs         roleSet
	scheduling config.RoleScheduling
	rrCursor   int
}

// NewDistributedSimulator builds a Mode A coordinator over sims, keyed by
// role.
func NewDistributedSimulator(sims map[ast.RoleName]*CFSMSimulator, scheduling config.RoleScheduling) *DistributedSimulator {
	return &DistributedSimulator{
		sims:       sims,
		rs:         newRoleSet(sims),
		scheduling: scheduling,
	}
}

// Run advances roles one at a time until every simulator completes, the
// run deadlocks (spec §4.4.3), or ctx is cancelled.
func (d *DistributedSimulator) Run(ctx context.Context) Result {
	for {
		if d.rs.allComplete() {
			return Result{Success: true, GlobalSteps: d.rs.totalSteps(), Traces: d.rs.collectTraces()}
		}
		if err := ctx.Err(); err != nil {
			return Result{Success: false, GlobalSteps: d.rs.totalSteps(), Traces: d.rs.collectTraces(), Err: err}
		}

		role, ok := d.nextRole()
		if !ok {
			// No role looks runnable this tick. Step every still-active
			// role once so each refreshes its own IsBlocked() flag (a
			// simulator never stepped has lastBlocked=false by
			// construction, which would otherwise make it look
			// indistinguishable from "about to make progress" to
			// deadlocked() below) before deciding whether this is a real
			// deadlock or messages still in transit.
			d.refreshBlocked(ctx)
			pending := d.totalPending()
			if deadlocked(d.rs, pending) {
				stuck := stuckRoles(d.rs)
				emitDeadlock(d.sims, stuck)
				return Result{Success: false, GlobalSteps: d.rs.totalSteps(), Traces: d.rs.collectTraces(), Err: newDeadlockError(d.rs)}
			}
			// Messages are queued but none of the currently-examined
			// roles can consume them yet; loop and try again (the
			// round-robin cursor is left where it is).
			continue
		}

		res := d.sims[role].Step(ctx)
		if res.Err != nil {
			return Result{Success: false, GlobalSteps: d.rs.totalSteps(), Traces: d.rs.collectTraces(), Err: res.Err}
		}
		if res.Reason == ReasonMaxStepsExceeded {
			return Result{
				Success:     false,
				GlobalSteps: d.rs.totalSteps(),
				Traces:      d.rs.collectTraces(),
				Err:         fmt.Errorf("runtime: role %s exceeded max steps", role),
			}
		}
	}
}

// nextRole selects the next role to step, skipping roles that are already
// complete or currently blocked on a receive with nothing enabled.
func (d *DistributedSimulator) nextRole() (ast.RoleName, bool) {
	n := len(d.rs.order)
	switch d.scheduling {
	case config.SchedulingRandom:
		start := rand.Intn(n)
		for i := 0; i < n; i++ {
			r := d.rs.order[(start+i)%n]
			if d.isRunnable(r) {
				return r, true
			}
		}
	case config.SchedulingFair:
		// Fair scheduling picks among currently-runnable roles with equal
		// probability rather than always preferring the lowest index.
		var runnable []ast.RoleName
		for _, r := range d.rs.order {
			if d.isRunnable(r) {
				runnable = append(runnable, r)
			}
		}
		if len(runnable) > 0 {
			return runnable[rand.Intn(len(runnable))], true
		}
	default: // round-robin
		for i := 0; i < n; i++ {
			r := d.rs.order[(d.rrCursor+i)%n]
			if d.isRunnable(r) {
				d.rrCursor = (d.rrCursor + i + 1) % n
				return r, true
			}
		}
	}
	return "", false
}

// refreshBlocked calls Step on every non-complete role that is not
// currently ready to progress, so that a role waiting on a receive that
// will never be satisfied records ReasonBlocked (and IsBlocked() becomes
// true) instead of sitting at its zero-value lastBlocked forever. A
// blocked Step is a no-op on simulator state (step() returns before
// firing anything), so this is safe to call repeatedly.
func (d *DistributedSimulator) refreshBlocked(ctx context.Context) {
	for _, r := range d.rs.order {
		sim := d.sims[r]
		if sim.IsComplete() || sim.ReadyToStep() {
			continue
		}
		sim.Step(ctx)
	}
}

func (d *DistributedSimulator) isRunnable(r ast.RoleName) bool {
	sim := d.sims[r]
	return !sim.IsComplete() && sim.ReadyToStep()
}

func (d *DistributedSimulator) totalPending() int {
	// Any one simulator's transport is shared across the whole run (every
	// simulator is constructed against the same transport.Transport
	// instance), so TotalPending from any of them reflects the global
	// queue state.
	for _, r := range d.rs.order {
		return d.sims[r].transport.TotalPending()
	}
	return 0
}

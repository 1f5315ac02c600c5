package runtime

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/mpst-tools/dmst/ast"
)

// DistributedRuntime drives one goroutine per role (Mode B, "concurrent"
// in spec §4.4), each independently stepping its CFSMSimulator until it
// completes or blocks, plus a watcher goroutine polling for the
// all-blocked-and-no-inflight-messages deadlock condition (spec §4.4.3).
// A sync.WaitGroup tracks one goroutine per role, with a separate
// watcher goroutine standing in for the frontier-empty-and-none-active
// check.
type DistributedRuntime struct {
	sims         map[ast.RoleName]*CFSMSimulator
	rs           roleSet
	pollInterval time.Duration
}

// NewDistributedRuntime builds a Mode B coordinator over sims.
func NewDistributedRuntime(sims map[ast.RoleName]*CFSMSimulator, pollInterval time.Duration) *DistributedRuntime {
	if pollInterval <= 0 {
		pollInterval = 10 * time.Millisecond
	}
	return &DistributedRuntime{sims: sims, rs: newRoleSet(sims), pollInterval: pollInterval}
}

// Run launches one goroutine per role and blocks until every role
// completes, a fatal error occurs in any role, the watcher detects a
// global deadlock, or ctx is cancelled.
func (d *DistributedRuntime) Run(ctx context.Context) Result {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		firstErr error
	)

	for _, r := range d.rs.order {
		wg.Add(1)
		go func(role ast.RoleName) {
			defer wg.Done()
			sim := d.sims[role]
			for {
				select {
				case <-ctx.Done():
					return
				default:
				}
				res := sim.Step(ctx)
				if res.Err != nil {
					mu.Lock()
					if firstErr == nil {
						firstErr = res.Err
					}
					mu.Unlock()
					cancel()
					return
				}
				if res.Reason == ReasonMaxStepsExceeded {
					mu.Lock()
					if firstErr == nil {
						firstErr = fmt.Errorf("runtime: role %s exceeded max steps", role)
					}
					mu.Unlock()
					cancel()
					return
				}
				if sim.IsComplete() {
					return
				}
				if res.Reason == ReasonBlocked || res.Reason == ReasonChoiceRequired {
					select {
					case <-ctx.Done():
						return
					case <-time.After(d.pollInterval):
					}
				}
			}
		}(r)
	}

	watchDone := make(chan struct{})
	go func() {
		defer close(watchDone)
		ticker := time.NewTicker(d.pollInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				pending := d.totalPending()
				if deadlocked(d.rs, pending) {
					stuck := stuckRoles(d.rs)
					emitDeadlock(d.sims, stuck)
					mu.Lock()
					if firstErr == nil {
						firstErr = newDeadlockError(d.rs)
					}
					mu.Unlock()
					cancel()
					return
				}
			}
		}
	}()

	wg.Wait()
	cancel()
	<-watchDone

	mu.Lock()
	err := firstErr
	mu.Unlock()

	if err == nil && !d.rs.allComplete() {
		if ctxErr := ctx.Err(); ctxErr != nil && ctxErr != context.Canceled {
			err = ctxErr
		}
	}

	return Result{
		Success:     err == nil && d.rs.allComplete(),
		GlobalSteps: d.rs.totalSteps(),
		Traces:      d.rs.collectTraces(),
		Err:         err,
	}
}

func (d *DistributedRuntime) totalPending() int {
	for _, r := range d.rs.order {
		return d.sims[r].transport.TotalPending()
	}
	return 0
}

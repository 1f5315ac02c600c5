// Package tracestore persists the event trace a CFSMSimulator run emits,
// so a run can be inspected or diffed after the fact. The Store
// interface and its three implementations (memory, SQLite, MySQL) share
// one pluggable persistence shape: this module has no generic state
// type to persist, so Store is not generic — it always stores a run's
// []obs.Event slice.
package tracestore

import (
	"context"
	"errors"

	"github.com/mpst-tools/dmst/obs"
)

// ErrNotFound is returned when a requested run ID does not exist.
var ErrNotFound = errors.New("tracestore: not found")

// Store persists and retrieves per-run event traces.
type Store interface {
	// AppendEvents appends evs to runID's trace, creating the run if it
	// doesn't exist yet. Events are stored in append order.
	AppendEvents(ctx context.Context, runID string, evs []obs.Event) error

	// LoadTrace retrieves the full recorded trace for runID, in append
	// order. Returns ErrNotFound if runID has never been appended to.
	LoadTrace(ctx context.Context, runID string) ([]obs.Event, error)

	// ListRuns returns every run ID known to the store, in the order each
	// was first seen.
	ListRuns(ctx context.Context) ([]string, error)

	// Close releases any resources held by the store (database handles,
	// and so on). Safe to call on a store with no resources to release.
	Close() error
}

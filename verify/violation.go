// Package verify implements the well-formedness checks of spec §4.2: a
// suite of independent graph algorithms over a *cfg.Graph that together
// decide whether a protocol may be safely projected into CFSMs.
package verify

import (
	"fmt"

	"github.com/mpst-tools/dmst/ast"
)

// Kind enumerates the violation categories from spec §4.2's priority
// tiers. String, not an iota enum: violations are serialized in traces
// and diagnostic output, and a stable string is friendlier there than a
// magic number (matches spec's own kind naming, e.g. "orphan-role").
type Kind string

const (
	KindOrphanRole             Kind = "orphan-role"
	KindNonDeterministicChoice Kind = "non-deterministic-choice"
	KindUnmergeableChoice      Kind = "unmergeable-choice"
	KindDanglingContinue       Kind = "dangling-continue"
	KindContinueCrossesFork    Kind = "continue-crosses-parallel"
	KindMalformedParallel      Kind = "malformed-parallel"
	KindRace                   Kind = "race"
	KindSelfCommunication      Kind = "self-communication"
	KindInvalidMulticast       Kind = "invalid-multicast"
	KindEmptyBranch            Kind = "empty-choice-branch"
	KindUnreachedMerge         Kind = "unreached-merge"
	KindDeadlock               Kind = "deadlock"
	KindNonLive                Kind = "non-live"
	KindUnsafeUpdate           Kind = "unsafe-update"
)

// Violation is a single diagnosed problem: a kind, a human message, the
// AST source location it traces back to, and (for multi-role findings
// like deadlock or race) the set of implicated roles. Violation
// implements error so it composes directly with
// github.com/hashicorp/go-multierror's accumulation (spec §7 "every
// problem is a violation with a kind and a source location").
type Violation struct {
	Kind     Kind
	Message  string
	Location ast.Location
	Roles    []ast.RoleName
}

func (v *Violation) Error() string {
	if len(v.Roles) == 0 {
		return fmt.Sprintf("%s: %s", v.Kind, v.Message)
	}
	return fmt.Sprintf("%s: %s (roles: %v)", v.Kind, v.Message, v.Roles)
}

// Diagnosis is the Verifier's result: OK iff Violations is empty. Verify
// never returns a Go error for a malformed protocol — malformedness is
// data, reported through Violations (spec §4.2 Contract "Verifier never
// throws").
type Diagnosis struct {
	OK         bool
	Violations []*Violation
}

package verify

import (
	"github.com/hashicorp/go-multierror"

	"github.com/mpst-tools/dmst/cfg"
)

// Verify runs every check tier unconditionally against g and returns a
// Diagnosis. It never fails fast: all tiers run even once Priority-0
// violations are found, since reporting everything at once is preferable
// to iterative single-error compile loops (spec §4.2 Contract).
//
// Violations accumulate through a *multierror.Error, gathering every
// independent problem found rather than stopping at the first one.
func Verify(g *cfg.Graph) *Diagnosis {
	var merr *multierror.Error

	checks := []func(*cfg.Graph) []*Violation{
		checkConnectedness,
		checkChoiceDeterminism,
		checkChoiceMergeability,
		checkNestedRecursion,
		checkRecursionInParallel,
		checkForkJoinMatch,
		checkRaceFreedom,
		checkSelfCommunication,
		checkMulticastValidation,
		checkEmptyChoiceBranch,
		checkMergeReachability,
		checkProgress,
		checkLiveness,
		checkUnfoldingSafety,
	}

	for _, check := range checks {
		for _, v := range check(g) {
			merr = multierror.Append(merr, v)
		}
	}

	d := &Diagnosis{OK: merr == nil || len(merr.Errors) == 0}
	if merr != nil {
		for _, err := range merr.Errors {
			d.Violations = append(d.Violations, err.(*Violation))
		}
	}
	return d
}

// PassesP0 reports whether g has no Priority-0 (projection-blocking)
// violations — the projector's stated precondition (spec §4.3 Contract
// "must be called only on a CFG that passed at least the P0 tier").
func PassesP0(g *cfg.Graph) bool {
	for _, check := range []func(*cfg.Graph) []*Violation{checkConnectedness, checkChoiceDeterminism, checkChoiceMergeability} {
		if len(check(g)) > 0 {
			return false
		}
	}
	return true
}

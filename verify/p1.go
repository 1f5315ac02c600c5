package verify

import (
	"fmt"

	"github.com/mpst-tools/dmst/cfg"
	"github.com/mpst-tools/dmst/internal/graphalgo"
)

// checkNestedRecursion re-confirms the CFG invariant that every continue
// edge targets a recursive node (spec §4.2 Priority-1 "Nested
// recursion"). The builder only ever constructs continue edges this way
// (cfg/retag.go), so this check exists as a defensive structural
// assertion against a CFG assembled by another producer.
func checkNestedRecursion(g *cfg.Graph) []*Violation {
	var violations []*Violation
	for _, id := range g.EdgeOrder {
		e := g.Edges[id]
		if e.Tag != cfg.EdgeContinue {
			continue
		}
		if g.Nodes[e.To].Tag != cfg.TagRecursive {
			violations = append(violations, &Violation{
				Kind:     KindDanglingContinue,
				Message:  fmt.Sprintf("continue edge %s targets non-recursive node %s", e.ID, e.To),
				Location: g.Nodes[e.From].Location,
			})
		}
	}
	return violations
}

// checkRecursionInParallel verifies a continue L never crosses a fork
// boundary relative to its bound rec L: both must sit in the same
// parallel-nesting context (spec §4.2 Priority-1).
func checkRecursionInParallel(g *cfg.Graph) []*Violation {
	ctx := walkParallelContext(g)
	var violations []*Violation
	for _, id := range g.EdgeOrder {
		e := g.Edges[id]
		if e.Tag != cfg.EdgeContinue {
			continue
		}
		if !sameStack(ctx[e.From], ctx[e.To]) {
			violations = append(violations, &Violation{
				Kind:     KindContinueCrossesFork,
				Message:  fmt.Sprintf("continue to recursive node %s crosses a parallel (fork) boundary", e.To),
				Location: g.Nodes[e.From].Location,
			})
		}
	}
	return violations
}

// checkForkJoinMatch verifies every fork has exactly one join sharing its
// ParallelID and that every branch path between them reaches the join
// without escaping via continue or an early terminal (spec §4.2
// Priority-1 "Fork-join structural match").
func checkForkJoinMatch(g *cfg.Graph) []*Violation {
	forksByID := map[string][]cfg.NodeID{}
	joinsByID := map[string][]cfg.NodeID{}
	for _, id := range g.NodeOrder {
		n := g.Nodes[id]
		switch n.Tag {
		case cfg.TagFork:
			forksByID[n.ParallelID] = append(forksByID[n.ParallelID], id)
		case cfg.TagJoin:
			joinsByID[n.ParallelID] = append(joinsByID[n.ParallelID], id)
		}
	}

	var violations []*Violation
	ag := algoGraph(g, false)
	for pid, forks := range forksByID {
		joins := joinsByID[pid]
		if len(forks) != 1 || len(joins) != 1 {
			violations = append(violations, &Violation{
				Kind:    KindMalformedParallel,
				Message: fmt.Sprintf("parallel-id %q has %d fork node(s) and %d join node(s), expected exactly one of each", pid, len(forks), len(joins)),
			})
			continue
		}
		ok, deadEnds := graphalgo.AnyPathReaches(ag, forks[0], joins[0])
		if !ok {
			for _, dead := range deadEnds {
				if g.IsTerminal(dead) {
					continue // terminating inside a parallel branch is not itself malformed
				}
				violations = append(violations, &Violation{
					Kind:     KindMalformedParallel,
					Message:  fmt.Sprintf("a branch of parallel-id %q does not reach its join (dead end at %s)", pid, dead),
					Location: g.Nodes[dead].Location,
				})
			}
		}
	}
	return violations
}

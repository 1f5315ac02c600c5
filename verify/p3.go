package verify

import (
	"fmt"

	"github.com/mpst-tools/dmst/ast"
	"github.com/mpst-tools/dmst/cfg"
	"github.com/mpst-tools/dmst/internal/graphalgo"
)

// checkMergeReachability verifies every branch path either reaches its
// shared merge, terminates, or diverges into updatable recursion /
// continue (spec §4.2 Priority-3). A dead end that is a terminal node,
// or a path that loops through a continue edge, is explicitly fine; only
// a true structural dead end (a non-terminal node the builder never
// reached, or a malformed externally-built CFG) is a violation.
func checkMergeReachability(g *cfg.Graph) []*Violation {
	var violations []*Violation
	ag := algoGraph(g, false)
	for _, id := range g.NodeOrder {
		n := g.Nodes[id]
		if n.Tag != cfg.TagBranch {
			continue
		}
		var mergeID cfg.NodeID
		for _, other := range g.NodeOrder {
			if m := g.Nodes[other]; m.Tag == cfg.TagMerge && m.BranchOf == id {
				mergeID = other
				break
			}
		}
		if mergeID == "" {
			continue
		}
		for _, entry := range g.Successors(id) {
			ok, deadEnds := graphalgo.AnyPathReaches(ag, entry, mergeID)
			if ok {
				continue
			}
			for _, dead := range deadEnds {
				if g.IsTerminal(dead) {
					continue
				}
				violations = append(violations, &Violation{
					Kind:     KindUnreachedMerge,
					Message:  fmt.Sprintf("a path from branch %s never reaches merge %s, terminates, or re-enters a recursion (dead end at %s)", id, mergeID, dead),
					Location: g.Nodes[dead].Location,
				})
			}
		}
	}
	return violations
}

// checkProgress implements Theorem 5.10 (Honda et al.): build the
// dependency graph ignoring continue edges, compute SCCs with Tarjan, and
// flag any non-trivial SCC with no exit (no node inside it has a
// successor outside it) — an unconditional infinite loop that can never
// make progress (spec §4.2 Priority-3).
func checkProgress(g *cfg.Graph) []*Violation {
	ag := algoGraph(g, true)
	comps := graphalgo.SCC(ag)
	var violations []*Violation
	for _, comp := range comps {
		if !graphalgo.NonTrivial(ag, comp) {
			continue
		}
		inComp := map[cfg.NodeID]bool{}
		for _, id := range comp {
			inComp[id] = true
		}
		hasExit := false
		roles := map[ast.RoleName]bool{}
		for _, id := range comp {
			for _, r := range rolesOf(g.Nodes[id]) {
				roles[r] = true
			}
			for _, succ := range ag.Next[id] {
				if !inComp[succ] {
					hasExit = true
				}
			}
		}
		if hasExit {
			continue
		}
		roleList := make([]ast.RoleName, 0, len(roles))
		for r := range roles {
			roleList = append(roleList, r)
		}
		violations = append(violations, &Violation{
			Kind:    KindDeadlock,
			Message: fmt.Sprintf("non-trivial cycle of %d node(s) has no exit and can never progress", len(comp)),
			Roles:   roleList,
		})
	}
	return violations
}

// checkLiveness verifies every action node can reach a terminal state, or
// can reach a recursive node whose enclosing cycle has an exit (spec
// §4.2 Priority-3 "Liveness").
func checkLiveness(g *cfg.Graph) []*Violation {
	ag := algoGraph(g, true)
	comps := graphalgo.SCC(ag)
	liveRecursive := map[cfg.NodeID]bool{}
	for _, comp := range comps {
		if !graphalgo.NonTrivial(ag, comp) {
			continue
		}
		inComp := map[cfg.NodeID]bool{}
		for _, id := range comp {
			inComp[id] = true
		}
		hasExit := false
		for _, id := range comp {
			for _, succ := range ag.Next[id] {
				if !inComp[succ] {
					hasExit = true
				}
			}
		}
		if hasExit {
			for _, id := range comp {
				if g.Nodes[id].Tag == cfg.TagRecursive {
					liveRecursive[id] = true
				}
			}
		}
	}

	var violations []*Violation
	for _, id := range g.NodeOrder {
		n := g.Nodes[id]
		if n.Tag != cfg.TagAction {
			continue
		}
		reachable := graphalgo.Reachable(ag, id)
		live := false
		for node := range reachable {
			if g.IsTerminal(node) || liveRecursive[node] {
				live = true
				break
			}
		}
		if !live {
			violations = append(violations, &Violation{
				Kind:     KindNonLive,
				Message:  fmt.Sprintf("action node %s cannot reach a terminal state or a live recursion", id),
				Location: n.Location,
			})
		}
	}
	return violations
}

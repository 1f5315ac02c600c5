package verify

import (
	"fmt"

	"github.com/mpst-tools/dmst/ast"
	"github.com/mpst-tools/dmst/cfg"
)

// checkConnectedness verifies every declared formal role appears as
// sender, receiver, creator, or invitee somewhere in the protocol.
// Dynamic DMst roles never need to appear in the formal signature (spec
// §4.2 Priority-0 Connectedness).
func checkConnectedness(g *cfg.Graph) []*Violation {
	involved := map[ast.RoleName]bool{}
	for _, id := range g.NodeOrder {
		for _, r := range rolesOf(g.Nodes[id]) {
			involved[r] = true
		}
	}
	var violations []*Violation
	for _, role := range g.Protocol.Roles {
		if !involved[role.Name] {
			violations = append(violations, &Violation{
				Kind:     KindOrphanRole,
				Message:  fmt.Sprintf("role %q never sends, receives, creates, or invites", role.Name),
				Location: g.Protocol.Location,
				Roles:    []ast.RoleName{role.Name},
			})
		}
	}
	return violations
}

// firstObservable is the discriminator a branch node's role decides on:
// the message label and receiver set of a branch's first action, found
// by walking forward through tau-eligible (uninvolved/no-op) structure
// until an action or a dead end is hit. Only the first successor of each
// non-action node is followed, including past a merge node.
type firstObservable struct {
	label     ast.Label
	payload   *ast.TypeExpr
	receivers []ast.RoleName
	terminal  bool
}

func firstObservableOf(g *cfg.Graph, entry cfg.NodeID) firstObservable {
	n := g.Nodes[entry]
	switch n.Tag {
	case cfg.TagAction:
		if n.Action.Message != nil {
			return firstObservable{label: n.Action.Message.Message.Label, payload: n.Action.Message.Message.Payload, receivers: n.Action.Message.To}
		}
		return firstObservable{label: ast.Label(fmt.Sprintf("dmst:%d", n.Action.Kind))}
	case cfg.TagTerminal:
		return firstObservable{terminal: true}
	default:
		// branch/merge/fork/recursive/do nodes: walk to the first successor.
		// This is an approximation of tau-elision good enough to
		// distinguish branches whose very first step already differs; a
		// branch node nested immediately inside another branch inherits
		// that inner branch's own determinism check separately.
		succ := g.Successors(entry)
		if len(succ) == 0 {
			return firstObservable{terminal: true}
		}
		return firstObservableOf(g, succ[0])
	}
}

// checkChoiceDeterminism verifies every branch node's branches are
// pairwise distinguishable by their first observable action: either a
// unique label, or a different receiver set (spec §4.2 Priority-0).
func checkChoiceDeterminism(g *cfg.Graph) []*Violation {
	var violations []*Violation
	for _, id := range g.NodeOrder {
		n := g.Nodes[id]
		if n.Tag != cfg.TagBranch {
			continue
		}
		entries := g.Successors(id)
		seen := map[ast.Label]firstObservable{}
		for _, e := range entries {
			obs := firstObservableOf(g, e)
			if obs.terminal {
				continue
			}
			prior, ok := seen[obs.label]
			if !ok {
				seen[obs.label] = obs
				continue
			}
			if sameReceiverSet(prior.receivers, obs.receivers) {
				violations = append(violations, &Violation{
					Kind:     KindNonDeterministicChoice,
					Message:  fmt.Sprintf("branch decided by %q has two branches starting with label %q to the same receivers", n.Decider, obs.label),
					Location: n.Location,
					Roles:    []ast.RoleName{n.Decider},
				})
			}
		}
	}
	return violations
}

func sameReceiverSet(a, b []ast.RoleName) bool {
	if len(a) != len(b) {
		return false
	}
	set := map[ast.RoleName]bool{}
	for _, r := range a {
		set[r] = true
	}
	for _, r := range b {
		if !set[r] {
			return false
		}
	}
	return true
}

// checkChoiceMergeability verifies a role's continuation after a merge is
// the same across every branch it participates in, except for branches
// that diverge into updatable recursion or create conditional dynamic
// participants (spec §4.2 Priority-0 Choice mergeability).
func checkChoiceMergeability(g *cfg.Graph) []*Violation {
	var violations []*Violation
	for _, id := range g.NodeOrder {
		n := g.Nodes[id]
		if n.Tag != cfg.TagBranch {
			continue
		}
		entries := g.Successors(id)
		byRole := map[ast.RoleName][]cfg.NodeID{}
		for _, e := range entries {
			tags := reachableTags(g, e)
			if tags[cfg.TagUpdatable] {
				continue // exempt: updatable recursion divergence is allowed
			}
			if tags[cfg.TagDo] {
				// do/calls may introduce conditional dynamic participants
				// via the callee; conservatively exempt per spec's second
				// carve-out rather than risk a false positive.
				continue
			}
			for _, role := range branchRoles(g, e) {
				byRole[role] = append(byRole[role], e)
			}
		}
		for role, ids := range byRole {
			if len(ids) < 2 {
				continue
			}
			first := continuationShape(g, ids[0], role)
			for _, other := range ids[1:] {
				if continuationShape(g, other, role) != first {
					violations = append(violations, &Violation{
						Kind:     KindUnmergeableChoice,
						Message:  fmt.Sprintf("role %q sees a different continuation shape across branches of the choice decided by %q", role, n.Decider),
						Location: n.Location,
						Roles:    []ast.RoleName{role},
					})
					break
				}
			}
		}
	}
	return violations
}

// reachableTags returns the set of node tags reachable from entry up to
// (but not past) the first merge node, used to detect the mergeability
// exemptions.
func reachableTags(g *cfg.Graph, entry cfg.NodeID) map[cfg.NodeTag]bool {
	tags := map[cfg.NodeTag]bool{}
	visited := map[cfg.NodeID]bool{}
	var walk func(cfg.NodeID)
	walk = func(id cfg.NodeID) {
		if visited[id] {
			return
		}
		visited[id] = true
		n := g.Nodes[id]
		tags[n.Tag] = true
		if n.Tag == cfg.TagMerge {
			return
		}
		for _, s := range g.Successors(id) {
			walk(s)
		}
	}
	walk(entry)
	return tags
}

func branchRoles(g *cfg.Graph, entry cfg.NodeID) []ast.RoleName {
	roles := map[ast.RoleName]bool{}
	visited := map[cfg.NodeID]bool{}
	var walk func(cfg.NodeID)
	walk = func(id cfg.NodeID) {
		if visited[id] {
			return
		}
		visited[id] = true
		n := g.Nodes[id]
		for _, r := range rolesOf(n) {
			roles[r] = true
		}
		if n.Tag == cfg.TagMerge {
			return
		}
		for _, s := range g.Successors(id) {
			walk(s)
		}
	}
	walk(entry)
	out := make([]ast.RoleName, 0, len(roles))
	for r := range roles {
		out = append(out, r)
	}
	return out
}

// continuationShape is a coarse structural fingerprint of what role sees,
// in order, while traversing one branch up to its merge: the sequence of
// message labels it sends or receives. Exact per-role projection
// equivalence belongs to the projector (which builds the real CFSM and
// can minimize it); this is the verifier's cheaper structural proxy,
// sufficient to catch a role committing to genuinely divergent send/
// receive shapes across branches of the same choice.
func continuationShape(g *cfg.Graph, entry cfg.NodeID, role ast.RoleName) string {
	shape := ""
	visited := map[cfg.NodeID]bool{}
	var walk func(cfg.NodeID)
	walk = func(id cfg.NodeID) {
		if visited[id] {
			return
		}
		visited[id] = true
		n := g.Nodes[id]
		if n.Tag == cfg.TagAction && n.Action.Message != nil {
			m := n.Action.Message
			if m.From == role {
				shape += "!" + string(m.Message.Label) + ";"
			} else {
				for _, to := range m.To {
					if to == role {
						shape += "?" + string(m.Message.Label) + ";"
						break
					}
				}
			}
		}
		if n.Tag == cfg.TagMerge {
			return
		}
		for _, s := range g.Successors(id) {
			walk(s)
		}
	}
	walk(entry)
	return shape
}

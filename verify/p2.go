package verify

import (
	"fmt"

	"github.com/mpst-tools/dmst/ast"
	"github.com/mpst-tools/dmst/cfg"
)

// checkRaceFreedom implements Theorem 4.5 (Deniélou & Yoshida 2012):
// two interactions in parallel branches race iff they share a channel
// (ordered sender→receiver pair). Same sender, different receivers is
// explicitly not a race (spec §4.2 Priority-2).
func checkRaceFreedom(g *cfg.Graph) []*Violation {
	var violations []*Violation
	for _, id := range g.NodeOrder {
		fork := g.Nodes[id]
		if fork.Tag != cfg.TagFork {
			continue
		}
		branchChannels := map[int]map[channel]bool{}
		for bi, entry := range g.Successors(id) {
			branchChannels[bi] = collectChannels(g, entry)
		}
		for i := 0; i < len(branchChannels); i++ {
			for j := i + 1; j < len(branchChannels); j++ {
				for ch := range branchChannels[i] {
					if branchChannels[j][ch] {
						violations = append(violations, &Violation{
							Kind:     KindRace,
							Message:  fmt.Sprintf("channel %s->%s used in two parallel branches of fork %s", ch.From, ch.To, id),
							Location: fork.Location,
							Roles:    []ast.RoleName{ch.From, ch.To},
						})
					}
				}
			}
		}
	}
	return violations
}

func collectChannels(g *cfg.Graph, entry cfg.NodeID) map[channel]bool {
	chans := map[channel]bool{}
	visited := map[cfg.NodeID]bool{}
	var walk func(cfg.NodeID)
	walk = func(id cfg.NodeID) {
		if visited[id] {
			return
		}
		visited[id] = true
		n := g.Nodes[id]
		for _, c := range channelsOf(n) {
			chans[c] = true
		}
		if n.Tag == cfg.TagJoin {
			return
		}
		for _, s := range g.Successors(id) {
			walk(s)
		}
	}
	walk(entry)
	return chans
}

// checkSelfCommunication rejects p->p MessageTransfers; DMst local
// actions (create/invite where actor == target) are allowed since they
// represent a role acting on its own dynamically-created participant
// bookkeeping, not a wire message (spec §4.2 Priority-2).
func checkSelfCommunication(g *cfg.Graph) []*Violation {
	var violations []*Violation
	for _, id := range g.NodeOrder {
		n := g.Nodes[id]
		if n.Tag != cfg.TagAction || n.Action == nil || n.Action.Message == nil {
			continue
		}
		m := n.Action.Message
		for _, to := range m.To {
			if to == m.From {
				violations = append(violations, &Violation{
					Kind:     KindSelfCommunication,
					Message:  fmt.Sprintf("role %q sends message %q to itself", m.From, m.Message.Label),
					Location: m.Location,
					Roles:    []ast.RoleName{m.From},
				})
			}
		}
	}
	return violations
}

// checkMulticastValidation verifies a MessageTransfer's receiver list is
// non-empty, free of duplicates, and does not include the sender (spec
// §4.2 Priority-2 "Multicast validation"; the sender-inclusion half
// overlaps checkSelfCommunication but is reported under its own kind
// here since the two are independently actionable diagnostics).
func checkMulticastValidation(g *cfg.Graph) []*Violation {
	var violations []*Violation
	for _, id := range g.NodeOrder {
		n := g.Nodes[id]
		if n.Tag != cfg.TagAction || n.Action == nil || n.Action.Message == nil {
			continue
		}
		m := n.Action.Message
		if len(m.To) == 0 {
			violations = append(violations, &Violation{
				Kind:     KindInvalidMulticast,
				Message:  fmt.Sprintf("message %q from %q has no receivers", m.Message.Label, m.From),
				Location: m.Location,
				Roles:    []ast.RoleName{m.From},
			})
			continue
		}
		seen := map[ast.RoleName]bool{}
		for _, to := range m.To {
			if seen[to] {
				violations = append(violations, &Violation{
					Kind:     KindInvalidMulticast,
					Message:  fmt.Sprintf("message %q from %q lists receiver %q more than once", m.Message.Label, m.From, to),
					Location: m.Location,
					Roles:    []ast.RoleName{to},
				})
			}
			seen[to] = true
		}
	}
	return violations
}

// checkEmptyChoiceBranch rejects a branch with no actions: in the
// builder's output this is a branch whose edge to the merge node is
// tagged EdgeBranch with no intervening node (spec §4.2 Priority-2 —
// currently unconditionally rejected, no "skip" literal yet exists).
func checkEmptyChoiceBranch(g *cfg.Graph) []*Violation {
	var violations []*Violation
	for _, id := range g.NodeOrder {
		n := g.Nodes[id]
		if n.Tag != cfg.TagBranch {
			continue
		}
		for _, e := range g.OutEdges(id) {
			if g.Nodes[e.To].Tag == cfg.TagMerge {
				violations = append(violations, &Violation{
					Kind:     KindEmptyBranch,
					Message:  fmt.Sprintf("a branch of the choice decided by %q has no actions", n.Decider),
					Location: n.Location,
					Roles:    []ast.RoleName{n.Decider},
				})
			}
		}
	}
	return violations
}

package project

import (
	"github.com/mpst-tools/dmst/ast"
	"github.com/mpst-tools/dmst/cfg"
	"github.com/mpst-tools/dmst/cfsm"
)

// pairedJoin finds the TagJoin node sharing parID with the fork that
// owns it (spec §3 "A fork node pairs with a unique join by a shared
// parallel-id"). Returns "" if the CFG has no such join, which cfg.Build
// never produces but a hand-assembled CFG might.
func (b *build) pairedJoin(parID string) cfg.NodeID {
	for _, id := range b.g.NodeOrder {
		n := b.g.Nodes[id]
		if n.Tag == cfg.TagJoin && n.ParallelID == parID {
			return id
		}
	}
	return ""
}

// roleInvolvedBetween reports whether b.role has any observable action
// on the path from entry up to (not including) join.
func (b *build) roleInvolvedBetween(entry, join cfg.NodeID) bool {
	return len(b.collectRoleActions(entry, join)) > 0
}

// collectRoleActions walks a fork branch from entry, stopping at join,
// collecting the action nodes in which b.role is the sender, a receiver,
// or a DMst actor, in traversal order. Branches that themselves contain
// a further choice/recursion are walked structurally but not projected
// here — this is the diamond's own linearization pass, grounded on spec
// §9's documented simplification that >2-branch interleaving is
// sequential composition rather than full interleaving.
func (b *build) collectRoleActions(entry, join cfg.NodeID) []*cfg.Node {
	var result []*cfg.Node
	seen := map[cfg.NodeID]bool{}
	var visit func(id cfg.NodeID)
	visit = func(id cfg.NodeID) {
		if id == join || id == "" || seen[id] {
			return
		}
		seen[id] = true
		n := b.g.Nodes[id]
		if n.Tag == cfg.TagAction && b.actionInvolvesRole(n.Action) {
			result = append(result, n)
		}
		for _, succ := range b.g.Successors(id) {
			visit(succ)
		}
	}
	visit(entry)
	return result
}

func (b *build) actionInvolvesRole(a *cfg.Action) bool {
	if a.Message != nil {
		m := a.Message
		if m.From == b.role {
			return true
		}
		for _, to := range m.To {
			if to == b.role {
				return true
			}
		}
		return false
	}
	if a.DMst != nil {
		return a.DMst.Actor == b.role
	}
	return false
}

// emitActionNode appends the single transition corresponding to n's
// action (already known to involve b.role) from cur, returning the
// freshly allocated target state.
func (b *build) emitActionNode(n *cfg.Node, cur cfsm.StateID) cfsm.StateID {
	a := n.Action
	next := b.allocState()
	b.cfsm.AddState(next, "")

	if m := a.Message; m != nil {
		if m.From == b.role {
			b.cfsm.AddTransition(cur, next, cfsm.Action{
				Kind: cfsm.ActionSend,
				Send: &cfsm.Send{To: append([]ast.RoleName(nil), m.To...), Message: m.Message, Location: m.Location},
			})
		} else {
			b.cfsm.AddTransition(cur, next, cfsm.Action{
				Kind:    cfsm.ActionReceive,
				Receive: &cfsm.Receive{From: m.From, Message: m.Message, Location: m.Location},
			})
		}
		return next
	}

	d := a.DMst
	var action cfsm.Action
	switch d.Kind {
	case cfg.ActionDMstCreate:
		action = cfsm.Action{Kind: cfsm.ActionDMstCreate, Create: &cfsm.DMstCreate{Role: d.Target}}
	case cfg.ActionDMstInvite:
		action = cfsm.Action{Kind: cfsm.ActionDMstInvite, Invite: &cfsm.DMstInvite{Who: d.Target}}
	}
	b.cfsm.AddTransition(cur, next, action)
	return next
}

// walkDiamond projects a fork whose join is reached by ≥2 role-involved
// branches. For exactly two involved branches it enumerates both
// serialization orders so the projected CFSM allows either branch to
// observably interleave first (spec §4.3 "enumerate both orders"); for
// more than two, it falls back to sequential composition in declared
// order, the documented simplification spec §9 Design Notes permits.
func (b *build) walkDiamond(involved []cfg.NodeID, join cfg.NodeID, cur cfsm.StateID) error {
	seqs := make([][]*cfg.Node, len(involved))
	for i, entry := range involved {
		seqs[i] = b.collectRoleActions(entry, join)
	}

	var orders [][]*cfg.Node
	if len(seqs) == 2 {
		orders = append(orders, concatNodes(seqs[0], seqs[1]))
		reordered := concatNodes(seqs[1], seqs[0])
		if !sameOrder(orders[0], reordered) {
			orders = append(orders, reordered)
		}
	} else {
		var all []*cfg.Node
		for _, s := range seqs {
			all = append(all, s...)
		}
		orders = append(orders, all)
	}

	finals := make([]cfsm.StateID, 0, len(orders))
	for _, ord := range orders {
		state := cur
		for _, n := range ord {
			state = b.emitActionNode(n, state)
		}
		finals = append(finals, state)
	}

	if len(finals) == 1 {
		return b.walk(join, finals[0])
	}
	converge := b.allocState()
	b.cfsm.AddState(converge, "")
	for _, s := range finals {
		b.addTau(s, converge)
	}
	return b.walk(join, converge)
}

func concatNodes(a, b []*cfg.Node) []*cfg.Node {
	out := make([]*cfg.Node, 0, len(a)+len(b))
	out = append(out, a...)
	out = append(out, b...)
	return out
}

func sameOrder(a, b []*cfg.Node) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i].ID != b[i].ID {
			return false
		}
	}
	return true
}

package verify

import (
	"github.com/mpst-tools/dmst/ast"
	"github.com/mpst-tools/dmst/cfg"
	"github.com/mpst-tools/dmst/internal/graphalgo"
)

// channel is the ordered (sender, receiver) pair spec §4.2 race-freedom
// defines races over. Same sender with different receivers is
// deliberately NOT the same channel — that distinction is the crux of
// Theorem 4.5's "same sender, different receivers is not a race".
type channel struct {
	From ast.RoleName
	To   ast.RoleName
}

// channelsOf returns every channel used by a single action node: a
// MessageTransfer with N receivers contributes N channels (sender paired
// with each receiver individually, multicast preserved atomically at the
// CFG/CFSM layer but decomposed here purely for race-pair comparison).
func channelsOf(n *cfg.Node) []channel {
	if n.Tag != cfg.TagAction || n.Action == nil || n.Action.Message == nil {
		return nil
	}
	m := n.Action.Message
	chans := make([]channel, 0, len(m.To))
	for _, to := range m.To {
		chans = append(chans, channel{From: m.From, To: to})
	}
	return chans
}

// rolesOf returns the roles an action node involves (sender + receivers,
// or actor + target for a DMst action).
func rolesOf(n *cfg.Node) []ast.RoleName {
	if n.Tag != cfg.TagAction || n.Action == nil {
		return nil
	}
	if n.Action.Message != nil {
		roles := append([]ast.RoleName{n.Action.Message.From}, n.Action.Message.To...)
		return roles
	}
	if n.Action.DMst != nil {
		return []ast.RoleName{n.Action.DMst.Actor, n.Action.DMst.Target}
	}
	return nil
}

// collectChannelsStoppingAt is collectChannels but additionally halts
// traversal at any node whose tag is in stop — used to compute a
// recursion body's own channel set without wandering into an attached
// updatable-continue's update body, which is a structurally separate
// subgraph for 1-unfolding purposes even though it is wired reachable
// from the body in the CFG.
func collectChannelsStoppingAt(g *cfg.Graph, entry cfg.NodeID, stop map[cfg.NodeTag]bool) map[channel]bool {
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
		if n.Tag == cfg.TagJoin || stop[n.Tag] {
			return
		}
		for _, s := range g.Successors(id) {
			walk(s)
		}
	}
	walk(entry)
	return chans
}

// algoGraph adapts a *cfg.Graph into the generic graphalgo.Graph, with
// continue-tagged edges optionally excluded — the Priority-3 progress
// check explicitly builds "the dependency graph ignoring continue
// edges" (spec §4.2).
func algoGraph(g *cfg.Graph, ignoreContinue bool) graphalgo.Graph[cfg.NodeID] {
	next := make(map[cfg.NodeID][]cfg.NodeID, len(g.Nodes))
	for _, id := range g.NodeOrder {
		var succ []cfg.NodeID
		for _, e := range g.OutEdges(id) {
			if ignoreContinue && e.Tag == cfg.EdgeContinue {
				continue
			}
			succ = append(succ, e.To)
		}
		next[id] = succ
	}
	return graphalgo.Graph[cfg.NodeID]{Nodes: g.NodeOrder, Next: next}
}

// walkParallelContext computes, for each node reachable from g.Initial,
// the stack of enclosing ParallelIDs at the point the node was first
// reached (a node nested inside two forks carries a 2-element stack).
// First-reached wins; continue back-edges never revisit a node through a
// new context since the BFS visited-set is checked before enqueueing.
func walkParallelContext(g *cfg.Graph) map[cfg.NodeID][]string {
	type item struct {
		id    cfg.NodeID
		stack []string
	}
	ctx := map[cfg.NodeID][]string{}
	visited := map[cfg.NodeID]bool{}
	queue := []item{{id: g.Initial, stack: nil}}
	visited[g.Initial] = true
	ctx[g.Initial] = nil

	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		node := g.Nodes[cur.id]

		for _, e := range g.OutEdges(cur.id) {
			nextStack := cur.stack
			target := g.Nodes[e.To]
			switch {
			case e.Tag == cfg.EdgeFork:
				nextStack = append(append([]string(nil), cur.stack...), node.ParallelID)
			case target.Tag == cfg.TagJoin && len(cur.stack) > 0 && cur.stack[len(cur.stack)-1] == target.ParallelID:
				nextStack = cur.stack[:len(cur.stack)-1]
			}
			if !visited[e.To] {
				visited[e.To] = true
				ctx[e.To] = nextStack
				queue = append(queue, item{id: e.To, stack: nextStack})
			}
		}
	}
	return ctx
}

func sameStack(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

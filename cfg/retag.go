package cfg

import "github.com/mpst-tools/dmst/internal/graphalgo"

// retagContinueEdges implements spec §4.1's construction post-pass.
// buildContinue has no way to tell its caller's generic connectSequence/connect wiring that the edge
// it's about to create is a continue rather than a structural entry, so
// every recursive node ends up with a mix of in-edges: the one genuine
// entry edge from whatever precedes the `rec L { ... }` construct, plus
// zero or more genuine continue back-edges from inside its own body.
//
// The two are told apart with scoped reachability: starting at the
// recursive node and walking forward over its own out-edges without
// crossing into any *other* recursive node's body, an in-edge is a
// continue iff its source lands in that reachable set — only a node
// inside the recursion's own scope can close a cycle back to it that way;
// the node preceding the recursion in the surrounding control flow never
// can.
func retagContinueEdges(g *Graph) {
	toGraphAlgo := buildAlgoGraph(g)

	recNodes := map[NodeID]bool{}
	for _, id := range g.NodeOrder {
		if g.Nodes[id].Tag == TagRecursive {
			recNodes[id] = true
		}
	}
	if len(recNodes) == 0 {
		return
	}

	for rec := range recNodes {
		avoid := make(map[NodeID]bool, len(recNodes)-1)
		for other := range recNodes {
			if other != rec {
				avoid[other] = true
			}
		}
		reachable := graphalgo.ReachableAvoiding(toGraphAlgo, rec, avoid)
		for _, e := range g.InEdges(rec) {
			if reachable[e.From] {
				e.Tag = EdgeContinue
			}
		}
	}
}

func buildAlgoGraph(g *Graph) graphalgo.Graph[NodeID] {
	next := make(map[NodeID][]NodeID, len(g.Nodes))
	for _, id := range g.NodeOrder {
		next[id] = g.Successors(id)
	}
	return graphalgo.Graph[NodeID]{Nodes: g.NodeOrder, Next: next}
}

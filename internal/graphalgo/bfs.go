package graphalgo

// Reachable returns the set of node ids reachable from start, following
// g.Next edges, via a plain BFS in O(V+E). The start node itself is
// included.
func Reachable[ID comparable](g Graph[ID], start ID) map[ID]bool {
	seen := map[ID]bool{start: true}
	queue := []ID{start}
	for len(queue) > 0 {
		v := queue[0]
		queue = queue[1:]
		for _, w := range g.Next[v] {
			if !seen[w] {
				seen[w] = true
				queue = append(queue, w)
			}
		}
	}
	return seen
}

// ReachableAvoiding is Reachable but never expands past (does not
// traverse edges originating at) any node in avoid — used by cfg's
// continue-edge retagging pass to compute the "scoped reachable set not
// crossing into nested recursion bodies" (spec §4.1).
func ReachableAvoiding[ID comparable](g Graph[ID], start ID, avoid map[ID]bool) map[ID]bool {
	seen := map[ID]bool{start: true}
	queue := []ID{start}
	for len(queue) > 0 {
		v := queue[0]
		queue = queue[1:]
		if avoid[v] && v != start {
			continue
		}
		for _, w := range g.Next[v] {
			if !seen[w] {
				seen[w] = true
				queue = append(queue, w)
			}
		}
	}
	return seen
}

// AnyPathReaches reports whether every path from start eventually reaches
// target; a path that ends at a node with no outgoing edges (a dead end)
// before reaching target makes the result false. Used by the
// merge-reachability check (spec §4.2 Priority-3). It returns
// (allReach, deadEnds) where deadEnds lists terminal-like nodes on paths
// that never reached target.
func AnyPathReaches[ID comparable](g Graph[ID], start, target ID) (allReach bool, deadEnds []ID) {
	seen := map[ID]bool{}
	var walk func(ID) bool
	walk = func(v ID) bool {
		if v == target {
			return true
		}
		if seen[v] {
			return true // already explored this branch without contradiction
		}
		seen[v] = true
		next := g.Next[v]
		if len(next) == 0 {
			deadEnds = append(deadEnds, v)
			return false
		}
		ok := true
		for _, w := range next {
			if !walk(w) {
				ok = false
			}
		}
		return ok
	}
	allReach = walk(start)
	return allReach, deadEnds
}

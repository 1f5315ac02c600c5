package verify

import (
	"fmt"

	"github.com/mpst-tools/dmst/cfg"
)

// checkUnfoldingSafety implements Definition 14's 1-unfolding safety
// check for `continue L with { U }`: for each updatable node, the
// channels used by the recursion body B it extends must be disjoint from
// the channels used by the update body U. Channel-disjointness is, per
// spec §4.2, "sufficient to prevent races in the combined form" — this
// module checks that directly rather than materializing the full B ♢ U
// combined CFG and re-running every other tier against it, a scope
// decision recorded in DESIGN.md.
func checkUnfoldingSafety(g *cfg.Graph) []*Violation {
	var violations []*Violation
	for _, id := range g.NodeOrder {
		n := g.Nodes[id]
		if n.Tag != cfg.TagUpdatable {
			continue
		}
		rec := n.RecursiveOf
		bodyChannels := collectChannelsStoppingAt(g, rec, map[cfg.NodeTag]bool{cfg.TagUpdatable: true})
		var updateChannels map[channel]bool
		if n.UpdateBody != "" {
			updateChannels = collectChannels(g, n.UpdateBody)
		} else {
			updateChannels = map[channel]bool{}
		}

		for ch := range updateChannels {
			if bodyChannels[ch] {
				violations = append(violations, &Violation{
					Kind:     KindUnsafeUpdate,
					Message:  fmt.Sprintf("update body channel %s->%s overlaps the recursion body it extends: 1-unfolding is not safe", ch.From, ch.To),
					Location: n.Location,
				})
			}
		}
	}
	return violations
}

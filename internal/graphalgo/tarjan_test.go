package graphalgo_test

import (
	"testing"

	"github.com/mpst-tools/dmst/internal/graphalgo"
)

func TestSCCSimpleCycle(t *testing.T) {
	g := graphalgo.Graph[string]{
		Nodes: []string{"a", "b", "c"},
		Next: map[string][]string{
			"a": {"b"},
			"b": {"c"},
			"c": {"a"},
		},
	}
	comps := graphalgo.SCC(g)
	if len(comps) != 1 || len(comps[0]) != 3 {
		t.Fatalf("expected a single 3-node SCC, got %v", comps)
	}
	if !graphalgo.NonTrivial(g, comps[0]) {
		t.Fatalf("expected the 3-cycle to be non-trivial")
	}
}

func TestSCCDAGHasNoCycles(t *testing.T) {
	g := graphalgo.Graph[string]{
		Nodes: []string{"a", "b", "c"},
		Next: map[string][]string{
			"a": {"b"},
			"b": {"c"},
		},
	}
	comps := graphalgo.SCC(g)
	for _, c := range comps {
		if graphalgo.NonTrivial(g, c) {
			t.Fatalf("DAG should have no non-trivial SCC, found %v", c)
		}
	}
}

func TestSCCSelfLoop(t *testing.T) {
	g := graphalgo.Graph[string]{
		Nodes: []string{"a"},
		Next:  map[string][]string{"a": {"a"}},
	}
	comps := graphalgo.SCC(g)
	if len(comps) != 1 || !graphalgo.NonTrivial(g, comps[0]) {
		t.Fatalf("expected self-loop to be a non-trivial SCC")
	}
}

func TestReachable(t *testing.T) {
	g := graphalgo.Graph[string]{
		Nodes: []string{"a", "b", "c", "d"},
		Next: map[string][]string{
			"a": {"b", "c"},
			"b": {"d"},
		},
	}
	got := graphalgo.Reachable(g, "a")
	for _, n := range []string{"a", "b", "c", "d"} {
		if !got[n] {
			t.Fatalf("expected %s to be reachable from a", n)
		}
	}
}

func TestReachableAvoiding(t *testing.T) {
	g := graphalgo.Graph[string]{
		Nodes: []string{"a", "b", "c"},
		Next: map[string][]string{
			"a": {"b"},
			"b": {"c"},
		},
	}
	got := graphalgo.ReachableAvoiding(g, "a", map[string]bool{"b": true})
	if !got["a"] || !got["b"] {
		t.Fatalf("expected a and b (the avoided start-adjacent node) reachable")
	}
	if got["c"] {
		t.Fatalf("expected c unreachable since traversal stops at avoided node b")
	}
}

func TestAnyPathReaches(t *testing.T) {
	g := graphalgo.Graph[string]{
		Nodes: []string{"a", "b", "c", "merge"},
		Next: map[string][]string{
			"a":     {"b", "c"},
			"b":     {"merge"},
			"c":     {"merge"},
			"merge": {},
		},
	}
	ok, deadEnds := graphalgo.AnyPathReaches(g, "a", "merge")
	if !ok {
		t.Fatalf("expected all branches to reach merge, dead ends: %v", deadEnds)
	}
}

func TestAnyPathReachesDeadEnd(t *testing.T) {
	g := graphalgo.Graph[string]{
		Nodes: []string{"a", "b", "c", "merge"},
		Next: map[string][]string{
			"a": {"b", "c"},
			"b": {"merge"},
			"c": {},
		},
	}
	ok, deadEnds := graphalgo.AnyPathReaches(g, "a", "merge")
	if ok {
		t.Fatalf("expected branch c to be a dead end")
	}
	if len(deadEnds) != 1 || deadEnds[0] != "c" {
		t.Fatalf("expected dead end [c], got %v", deadEnds)
	}
}

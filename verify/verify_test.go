package verify_test

import (
	"testing"

	"github.com/mpst-tools/dmst/ast"
	"github.com/mpst-tools/dmst/cfg"
	"github.com/mpst-tools/dmst/registry"
	"github.com/mpst-tools/dmst/verify"
)

func build(t *testing.T, proto *ast.Protocol) *cfg.Graph {
	t.Helper()
	g, _, err := cfg.NewBuilder(registry.New()).Build(proto)
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	return g
}

func msg(label string) ast.Message { return ast.Message{Label: ast.Label(label)} }

func hasKind(d *verify.Diagnosis, k verify.Kind) bool {
	for _, v := range d.Violations {
		if v.Kind == k {
			return true
		}
	}
	return false
}

func TestRequestResponseIsClean(t *testing.T) {
	proto := &ast.Protocol{
		Name:  "ReqResp",
		Roles: []ast.RoleParam{{Name: "A"}, {Name: "B"}},
		Body: ast.Sequence{Items: []ast.Interaction{
			ast.MessageTransfer{Sender: "A", Receivers: []ast.RoleName{"B"}, Message: msg("req")},
			ast.MessageTransfer{Sender: "B", Receivers: []ast.RoleName{"A"}, Message: msg("resp")},
		}},
	}
	d := verify.Verify(build(t, proto))
	if !d.OK {
		t.Fatalf("expected clean diagnosis, got violations: %v", d.Violations)
	}
}

func TestOrphanRoleDetected(t *testing.T) {
	proto := &ast.Protocol{
		Name:  "Orphan",
		Roles: []ast.RoleParam{{Name: "A"}, {Name: "B"}, {Name: "Ghost"}},
		Body:  ast.MessageTransfer{Sender: "A", Receivers: []ast.RoleName{"B"}, Message: msg("hi")},
	}
	d := verify.Verify(build(t, proto))
	if d.OK || !hasKind(d, verify.KindOrphanRole) {
		t.Fatalf("expected orphan-role violation, got %v", d.Violations)
	}
}

func TestNonDeterministicChoiceDetected(t *testing.T) {
	proto := &ast.Protocol{
		Name:  "Ambiguous",
		Roles: []ast.RoleParam{{Name: "A"}, {Name: "B"}},
		Body: ast.Choice{
			Decider: "A",
			Branches: []ast.Branch{
				{Body: ast.MessageTransfer{Sender: "A", Receivers: []ast.RoleName{"B"}, Message: msg("go")}},
				{Body: ast.MessageTransfer{Sender: "A", Receivers: []ast.RoleName{"B"}, Message: msg("go")}},
			},
		},
	}
	d := verify.Verify(build(t, proto))
	if d.OK || !hasKind(d, verify.KindNonDeterministicChoice) {
		t.Fatalf("expected non-deterministic-choice violation, got %v", d.Violations)
	}
}

func TestRaceBetweenParallelBranchesDetected(t *testing.T) {
	proto := &ast.Protocol{
		Name:  "Racey",
		Roles: []ast.RoleParam{{Name: "A"}, {Name: "B"}},
		Body: ast.Parallel{
			Branches: []ast.Branch{
				{Body: ast.MessageTransfer{Sender: "A", Receivers: []ast.RoleName{"B"}, Message: msg("x")}},
				{Body: ast.MessageTransfer{Sender: "A", Receivers: []ast.RoleName{"B"}, Message: msg("y")}},
			},
		},
	}
	d := verify.Verify(build(t, proto))
	if d.OK || !hasKind(d, verify.KindRace) {
		t.Fatalf("expected race violation for shared channel A->B, got %v", d.Violations)
	}
}

func TestSameSenderDifferentReceiversIsNotARace(t *testing.T) {
	proto := &ast.Protocol{
		Name:  "NotRacey",
		Roles: []ast.RoleParam{{Name: "A"}, {Name: "B"}, {Name: "C"}},
		Body: ast.Parallel{
			Branches: []ast.Branch{
				{Body: ast.MessageTransfer{Sender: "A", Receivers: []ast.RoleName{"B"}, Message: msg("x")}},
				{Body: ast.MessageTransfer{Sender: "A", Receivers: []ast.RoleName{"C"}, Message: msg("y")}},
			},
		},
	}
	d := verify.Verify(build(t, proto))
	if hasKind(d, verify.KindRace) {
		t.Fatalf("same sender with different receivers must not be flagged as a race, got %v", d.Violations)
	}
}

func TestSelfCommunicationDetected(t *testing.T) {
	proto := &ast.Protocol{
		Name:  "SelfTalk",
		Roles: []ast.RoleParam{{Name: "A"}},
		Body:  ast.MessageTransfer{Sender: "A", Receivers: []ast.RoleName{"A"}, Message: msg("hi")},
	}
	d := verify.Verify(build(t, proto))
	if d.OK || !hasKind(d, verify.KindSelfCommunication) {
		t.Fatalf("expected self-communication violation, got %v", d.Violations)
	}
}

// TestRecursionAloneIsNotADeadlock checks that an ordinary rec/continue
// loop is never flagged by progress checking: spec §4.2 Priority-3 has
// the dependency graph ignore continue edges specifically so that
// intentional, ongoing recursion (a long-running protocol) is not
// mistaken for a stuck cycle.
func TestRecursionAloneIsNotADeadlock(t *testing.T) {
	proto := &ast.Protocol{
		Name:  "Spin",
		Roles: []ast.RoleParam{{Name: "A"}, {Name: "B"}},
		Body: ast.Recursion{
			Label: "L",
			Body: ast.Sequence{Items: []ast.Interaction{
				ast.MessageTransfer{Sender: "A", Receivers: []ast.RoleName{"B"}, Message: msg("ping")},
				ast.Continue{Label: "L"},
			}},
		},
	}
	d := verify.Verify(build(t, proto))
	if hasKind(d, verify.KindDeadlock) {
		t.Fatalf("plain recursion must not be flagged as deadlock, got %v", d.Violations)
	}
}

// TestProgressDetectsNonRecursiveCycle constructs a CFG by hand (bypassing
// the builder, which can never itself produce a non-continue cycle) with
// two action nodes pointing at each other via plain sequence edges, to
// exercise checkProgress's Tarjan-based no-exit detection.
func TestProgressDetectsNonRecursiveCycle(t *testing.T) {
	proto := &ast.Protocol{Name: "Stuck", Roles: []ast.RoleParam{{Name: "A"}, {Name: "B"}}}
	g := &cfg.Graph{
		Protocol:  proto,
		Nodes:     map[cfg.NodeID]*cfg.Node{},
		Edges:     map[cfg.EdgeID]*cfg.Edge{},
		Out:       map[cfg.NodeID][]cfg.EdgeID{},
		In:        map[cfg.NodeID][]cfg.EdgeID{},
		Terminals: map[cfg.NodeID]bool{},
	}
	g.Nodes["n1"] = &cfg.Node{ID: "n1", Tag: cfg.TagAction, Action: &cfg.Action{
		Kind: cfg.ActionMessage,
		Message: &cfg.MessageAction{From: "A", To: []ast.RoleName{"B"}, Message: msg("x")},
	}}
	g.Nodes["n2"] = &cfg.Node{ID: "n2", Tag: cfg.TagAction, Action: &cfg.Action{
		Kind: cfg.ActionMessage,
		Message: &cfg.MessageAction{From: "B", To: []ast.RoleName{"A"}, Message: msg("y")},
	}}
	g.Initial = "n1"
	g.NodeOrder = []cfg.NodeID{"n1", "n2"}
	addEdge := func(eid cfg.EdgeID, from, to cfg.NodeID, tag cfg.EdgeTag) {
		g.Edges[eid] = &cfg.Edge{ID: eid, From: from, To: to, Tag: tag}
		g.EdgeOrder = append(g.EdgeOrder, eid)
		g.Out[from] = append(g.Out[from], eid)
		g.In[to] = append(g.In[to], eid)
	}
	addEdge("e1", "n1", "n2", cfg.EdgeSequence)
	addEdge("e2", "n2", "n1", cfg.EdgeSequence)

	d := verify.Verify(g)
	if !hasKind(d, verify.KindDeadlock) {
		t.Fatalf("expected deadlock violation for a closed cycle with no exit, got %v", d.Violations)
	}
}

func TestUnsafeUpdateOverlapDetected(t *testing.T) {
	proto := &ast.Protocol{
		Name:  "Updatable",
		Roles: []ast.RoleParam{{Name: "A"}, {Name: "B"}},
		Body: ast.Recursion{
			Label: "L",
			Body: ast.Sequence{Items: []ast.Interaction{
				ast.MessageTransfer{Sender: "A", Receivers: []ast.RoleName{"B"}, Message: msg("ping")},
				ast.UpdatableContinue{
					Label:  "L",
					Update: ast.MessageTransfer{Sender: "A", Receivers: []ast.RoleName{"B"}, Message: msg("extend")},
				},
			}},
		},
	}
	d := verify.Verify(build(t, proto))
	if !hasKind(d, verify.KindUnsafeUpdate) {
		t.Fatalf("expected unsafe-update violation for an overlapping channel, got %v", d.Violations)
	}
}

func TestUnsafeUpdateDisjointIsClean(t *testing.T) {
	proto := &ast.Protocol{
		Name:  "UpdatableSafe",
		Roles: []ast.RoleParam{{Name: "A"}, {Name: "B"}, {Name: "C"}},
		Body: ast.Recursion{
			Label: "L",
			Body: ast.Sequence{Items: []ast.Interaction{
				ast.MessageTransfer{Sender: "A", Receivers: []ast.RoleName{"B"}, Message: msg("ping")},
				ast.UpdatableContinue{
					Label:  "L",
					Update: ast.MessageTransfer{Sender: "A", Receivers: []ast.RoleName{"C"}, Message: msg("extend")},
				},
			}},
		},
	}
	d := verify.Verify(build(t, proto))
	if hasKind(d, verify.KindUnsafeUpdate) {
		t.Fatalf("expected no unsafe-update violation for disjoint channels, got %v", d.Violations)
	}
}

func TestPassesP0(t *testing.T) {
	clean := &ast.Protocol{
		Name:  "Clean",
		Roles: []ast.RoleParam{{Name: "A"}, {Name: "B"}},
		Body:  ast.MessageTransfer{Sender: "A", Receivers: []ast.RoleName{"B"}, Message: msg("hi")},
	}
	if !verify.PassesP0(build(t, clean)) {
		t.Fatalf("expected clean protocol to pass P0")
	}

	orphan := &ast.Protocol{
		Name:  "Orphan",
		Roles: []ast.RoleParam{{Name: "A"}, {Name: "B"}, {Name: "Ghost"}},
		Body:  ast.MessageTransfer{Sender: "A", Receivers: []ast.RoleName{"B"}, Message: msg("hi")},
	}
	if verify.PassesP0(build(t, orphan)) {
		t.Fatalf("expected orphan-role protocol to fail P0")
	}
}

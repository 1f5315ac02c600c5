package project_test

import (
	"testing"

	"github.com/mpst-tools/dmst/ast"
	"github.com/mpst-tools/dmst/cfg"
	"github.com/mpst-tools/dmst/cfsm"
	"github.com/mpst-tools/dmst/project"
	"github.com/mpst-tools/dmst/registry"
	"github.com/mpst-tools/dmst/verify"
)

func msg(label string) ast.Message { return ast.Message{Label: ast.Label(label)} }

func buildVerified(t *testing.T, reg *registry.Registry, proto *ast.Protocol) *cfg.Graph {
	t.Helper()
	g, _, err := cfg.NewBuilder(reg).Build(proto)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	d := verify.Verify(g)
	if !d.OK {
		t.Fatalf("expected a well-formed CFG, got violations: %v", d.Violations)
	}
	return g
}

// TestRequestResponseDuality covers Scenario 1 (spec §8): Client and
// Server's projections must be send/receive duals of each other, and the
// run terminates at a three-state, two-transition automaton on each side.
func TestRequestResponseDuality(t *testing.T) {
	proto := &ast.Protocol{
		Name:  "ReqResp",
		Roles: []ast.RoleParam{{Name: "Client"}, {Name: "Server"}},
		Body: ast.Sequence{Items: []ast.Interaction{
			ast.MessageTransfer{Sender: "Client", Receivers: []ast.RoleName{"Server"}, Message: msg("Request")},
			ast.MessageTransfer{Sender: "Server", Receivers: []ast.RoleName{"Client"}, Message: msg("Response")},
		}},
	}
	g := buildVerified(t, registry.New(), proto)

	proj := project.New(registry.New())
	all, err := proj.ProjectAll(g)
	if err != nil {
		t.Fatalf("ProjectAll: %v", err)
	}

	client := all["Client"]
	server := all["Server"]
	if client == nil || server == nil {
		t.Fatalf("expected projections for both roles, got %v", all)
	}

	if problems := cfsm.Validate(client); len(problems) != 0 {
		t.Fatalf("Client CFSM invalid: %v", problems)
	}
	if problems := cfsm.Validate(server); len(problems) != 0 {
		t.Fatalf("Server CFSM invalid: %v", problems)
	}

	if problems := cfsm.ValidateDuality(all); len(problems) != 0 {
		t.Fatalf("duality check failed: %v", problems)
	}

	// Client: s0 --send(Request)--> s1 --receive(Response)--> s2 (terminal)
	firstClient := client.Out[client.InitialState]
	if len(firstClient) != 1 || firstClient[0].Action.Kind != cfsm.ActionSend {
		t.Fatalf("expected Client's first transition to be a send, got %+v", firstClient)
	}
	if firstClient[0].Action.Send.Message.Label != "Request" {
		t.Fatalf("expected send label Request, got %s", firstClient[0].Action.Send.Message.Label)
	}

	second := client.Out[firstClient[0].To]
	if len(second) != 1 || second[0].Action.Kind != cfsm.ActionReceive {
		t.Fatalf("expected Client's second transition to be a receive, got %+v", second)
	}
	if !client.IsTerminal(second[0].To) {
		t.Fatalf("expected Client to terminate after receiving Response")
	}

	// Server: s0 --receive(Request)--> s1 --send(Response)--> s2 (terminal)
	firstServer := server.Out[server.InitialState]
	if len(firstServer) != 1 || firstServer[0].Action.Kind != cfsm.ActionReceive {
		t.Fatalf("expected Server's first transition to be a receive, got %+v", firstServer)
	}
}

// TestTwoBuyerChoiceProjection covers Scenario 2 (spec §8): B2's
// projection is an internal choice between two distinctly-labeled
// branches, and Seller's projection is an external choice with one
// receive transition per label.
func TestTwoBuyerChoiceProjection(t *testing.T) {
	proto := &ast.Protocol{
		Name:  "TwoBuyer",
		Roles: []ast.RoleParam{{Name: "B1"}, {Name: "B2"}, {Name: "Seller"}},
		Body: ast.Sequence{Items: []ast.Interaction{
			ast.MessageTransfer{Sender: "B1", Receivers: []ast.RoleName{"Seller"}, Message: msg("title")},
			ast.MessageTransfer{Sender: "Seller", Receivers: []ast.RoleName{"B1"}, Message: msg("quote")},
			ast.MessageTransfer{Sender: "Seller", Receivers: []ast.RoleName{"B2"}, Message: msg("quote")},
			ast.MessageTransfer{Sender: "B1", Receivers: []ast.RoleName{"B2"}, Message: msg("share")},
			ast.Choice{Decider: "B2", Branches: []ast.Branch{
				{Body: ast.MessageTransfer{Sender: "B2", Receivers: []ast.RoleName{"Seller"}, Message: msg("ok")}},
				{Body: ast.MessageTransfer{Sender: "B2", Receivers: []ast.RoleName{"Seller"}, Message: msg("cancel")}},
			}},
		}},
	}
	g := buildVerified(t, registry.New(), proto)

	proj := project.New(registry.New())
	all, err := proj.ProjectAll(g)
	if err != nil {
		t.Fatalf("ProjectAll: %v", err)
	}

	b2 := all["B2"]
	choiceState := b2.InitialState
	// Walk past B2's receives (quote, share) before reaching the choice point.
	for {
		outs := b2.Out[choiceState]
		if len(outs) != 1 {
			break
		}
		if outs[0].Action.Kind == cfsm.ActionChoice {
			break
		}
		choiceState = outs[0].To
	}
	branches := b2.Out[choiceState]
	if len(branches) != 2 {
		t.Fatalf("expected B2 to have 2 internal-choice transitions at the decision state, got %d", len(branches))
	}
	for _, br := range branches {
		if br.Action.Kind != cfsm.ActionChoice {
			t.Fatalf("expected B2's branches to be Choice actions, got %v", br.Action.Kind)
		}
	}

	seller := all["Seller"]
	// Seller must have two distinct receive labels reachable from some
	// common external-choice state (ok vs cancel).
	labels := map[ast.Label]bool{}
	for _, tr := range seller.Transitions {
		if tr.Action.Kind == cfsm.ActionReceive && tr.Action.Receive.From == "B2" {
			labels[tr.Action.Receive.Message.Label] = true
		}
	}
	if !labels["ok"] || !labels["cancel"] {
		t.Fatalf("expected Seller to observe both ok and cancel receives, got %v", labels)
	}
}

// TestMulticastCollapsesSingleRecipient covers the boundary behavior
// (spec §8): a multicast with exactly one recipient still uses the send
// action (no separate "unicast" variant) and projects a single dual
// receive.
func TestMulticastCollapsesSingleRecipient(t *testing.T) {
	proto := &ast.Protocol{
		Name:  "Solo",
		Roles: []ast.RoleParam{{Name: "A"}, {Name: "B"}},
		Body: ast.MessageTransfer{Sender: "A", Receivers: []ast.RoleName{"B"}, Message: msg("Hi")},
	}
	g := buildVerified(t, registry.New(), proto)
	proj := project.New(registry.New())
	all, err := proj.ProjectAll(g)
	if err != nil {
		t.Fatalf("ProjectAll: %v", err)
	}
	a := all["A"]
	outs := a.Out[a.InitialState]
	if len(outs) != 1 || len(outs[0].Action.Send.To) != 1 || outs[0].Action.Send.To[0] != "B" {
		t.Fatalf("expected single-recipient send, got %+v", outs)
	}
}

// TestUninvolvedRoleTauElides covers the race-freedom companion scenario
// (spec §8 Scenario 4, projection half): in `par { Hub->A: M1 } and
// { Hub->B: M2 }`, A's projection must tau-elide Hub->B entirely (no
// state allocated for an action A is not part of).
func TestUninvolvedRoleTauElides(t *testing.T) {
	proto := &ast.Protocol{
		Name:  "FanOut",
		Roles: []ast.RoleParam{{Name: "Hub"}, {Name: "A"}, {Name: "B"}},
		Body: ast.Parallel{Branches: []ast.Branch{
			{Body: ast.MessageTransfer{Sender: "Hub", Receivers: []ast.RoleName{"A"}, Message: msg("M1")}},
			{Body: ast.MessageTransfer{Sender: "Hub", Receivers: []ast.RoleName{"B"}, Message: msg("M2")}},
		}},
	}
	g := buildVerified(t, registry.New(), proto)
	proj := project.New(registry.New())
	a, err := proj.Project(g, "A")
	if err != nil {
		t.Fatalf("Project(A): %v", err)
	}
	for _, tr := range a.Transitions {
		if tr.Action.Kind == cfsm.ActionReceive && tr.Action.Receive.Message.Label == "M2" {
			t.Fatalf("A's projection should never observe Hub->B's M2")
		}
	}
}

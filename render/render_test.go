package render_test

import (
	"strings"
	"testing"

	"github.com/mpst-tools/dmst/ast"
	"github.com/mpst-tools/dmst/cfsm"
	"github.com/mpst-tools/dmst/render"
)

// requestResponseClient builds the Client-side CFSM from spec §8
// Scenario 1 by hand: s0 --send(Request)--> s1 --receive(Response)--> s2.
func requestResponseClient() *cfsm.CFSM {
	c := cfsm.New("Client", "RequestResponse", []ast.RoleName{"Client", "Server"})
	c.AddState("s0", "")
	c.AddState("s1", "")
	c.AddState("s2", "")
	c.InitialState = "s0"
	c.Terminal["s2"] = true
	c.AddTransition("s0", "s1", cfsm.Action{
		Kind: cfsm.ActionSend,
		Send: &cfsm.Send{To: []ast.RoleName{"Server"}, Message: ast.Message{Label: "Request", Payload: &ast.TypeExpr{Name: "String"}}},
	})
	c.AddTransition("s1", "s2", cfsm.Action{
		Kind:    cfsm.ActionReceive,
		Receive: &cfsm.Receive{From: "Server", Message: ast.Message{Label: "Response", Payload: &ast.TypeExpr{Name: "Int"}}},
	})
	return c
}

func TestLocalRendersSendAndReceive(t *testing.T) {
	out := render.Local(requestResponseClient())

	for _, want := range []string{
		"local protocol RequestResponse(Client,Server) at Client {",
		"!Request(String) to Server;",
		"?Response(Int) from Server;",
		"end;",
	} {
		if !strings.Contains(out, want) {
			t.Fatalf("expected rendering to contain %q, got:\n%s", want, out)
		}
	}
}

func TestLocalRendersInternalChoice(t *testing.T) {
	c := cfsm.New("B2", "TwoBuyer", []ast.RoleName{"B1", "B2", "Seller"})
	c.AddState("s0", "")
	c.AddState("s1", "")
	c.AddState("s2", "")
	c.InitialState = "s0"
	c.Terminal["s1"] = true
	c.Terminal["s2"] = true
	c.AddTransition("s0", "s1", cfsm.Action{Kind: cfsm.ActionChoice, Choice: &cfsm.Choice{Branch: "ok"}})
	c.AddTransition("s0", "s2", cfsm.Action{Kind: cfsm.ActionChoice, Choice: &cfsm.Choice{Branch: "cancel"}})

	out := render.Local(c)
	if !strings.Contains(out, "select {") || !strings.Contains(out, "} or {") {
		t.Fatalf("expected a select {...} or {...} block, got:\n%s", out)
	}
	if !strings.Contains(out, "branch ok") || !strings.Contains(out, "branch cancel") {
		t.Fatalf("expected both branch labels to be mentioned, got:\n%s", out)
	}
}

func TestLocalHandlesRecursionBackEdge(t *testing.T) {
	c := cfsm.New("Worker", "Loop", []ast.RoleName{"Manager", "Worker"})
	c.AddState("s0", "Loop")
	c.AddState("s1", "")
	c.InitialState = "s0"
	c.AddTransition("s0", "s1", cfsm.Action{
		Kind:    cfsm.ActionReceive,
		Receive: &cfsm.Receive{From: "Manager", Message: ast.Message{Label: "Task"}},
	})
	c.AddTransition("s1", "s0", cfsm.Action{
		Kind: cfsm.ActionSend,
		Send: &cfsm.Send{To: []ast.RoleName{"Manager"}, Message: ast.Message{Label: "Result"}},
	})

	out := render.Local(c)
	if !strings.Contains(out, "goto s0;") {
		t.Fatalf("expected the back-edge to render as goto s0, got:\n%s", out)
	}
}

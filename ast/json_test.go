package ast_test

import (
	"encoding/json"
	"testing"

	"github.com/mpst-tools/dmst/ast"
)

func requestResponseProtocol() *ast.Protocol {
	return &ast.Protocol{
		Name:  "RequestResponse",
		Roles: []ast.RoleParam{{Name: "Client"}, {Name: "Server"}},
		Body: ast.Sequence{Items: []ast.Interaction{
			ast.MessageTransfer{
				Sender:    "Client",
				Receivers: []ast.RoleName{"Server"},
				Message:   ast.Message{Label: "Request", Payload: &ast.TypeExpr{Name: "String"}},
			},
			ast.MessageTransfer{
				Sender:    "Server",
				Receivers: []ast.RoleName{"Client"},
				Message:   ast.Message{Label: "Response", Payload: &ast.TypeExpr{Name: "Int"}},
			},
		}},
	}
}

func TestProtocolJSONRoundTrip(t *testing.T) {
	orig := requestResponseProtocol()
	data, err := json.Marshal(orig)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	var got ast.Protocol
	if err := json.Unmarshal(data, &got); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if got.Name != orig.Name || len(got.Roles) != 2 {
		t.Fatalf("round trip lost top-level fields: %+v", got)
	}
	seq, ok := got.Body.(ast.Sequence)
	if !ok {
		t.Fatalf("expected body to decode as Sequence, got %T", got.Body)
	}
	if len(seq.Items) != 2 {
		t.Fatalf("expected 2 sequence items, got %d", len(seq.Items))
	}
	first, ok := seq.Items[0].(ast.MessageTransfer)
	if !ok {
		t.Fatalf("expected first item to decode as MessageTransfer, got %T", seq.Items[0])
	}
	if first.Sender != "Client" || first.Message.Label != "Request" || first.Message.Payload.Name != "String" {
		t.Fatalf("message round trip mismatch: %+v", first)
	}
}

func TestModuleJSONRoundTrip(t *testing.T) {
	mod := ast.Module{Protocols: []*ast.Protocol{requestResponseProtocol()}}
	data, err := json.Marshal(mod)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var got ast.Module
	if err := json.Unmarshal(data, &got); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(got.Protocols) != 1 || got.Protocols[0].Name != "RequestResponse" {
		t.Fatalf("module round trip mismatch: %+v", got)
	}
}

func TestChoiceAndRecursionJSONRoundTrip(t *testing.T) {
	proto := &ast.Protocol{
		Name:  "Loopy",
		Roles: []ast.RoleParam{{Name: "A"}, {Name: "B"}},
		Body: ast.Recursion{
			Label: "L",
			Body: ast.Choice{
				Decider: "A",
				Branches: []ast.Branch{
					{Body: ast.Continue{Label: "L"}},
					{Body: ast.MessageTransfer{Sender: "A", Receivers: []ast.RoleName{"B"}, Message: ast.Message{Label: "Done"}}},
				},
			},
		},
	}

	data, err := json.Marshal(proto)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var got ast.Protocol
	if err := json.Unmarshal(data, &got); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	rec, ok := got.Body.(ast.Recursion)
	if !ok || rec.Label != "L" {
		t.Fatalf("expected Recursion body labeled L, got %+v", got.Body)
	}
	choice, ok := rec.Body.(ast.Choice)
	if !ok || len(choice.Branches) != 2 {
		t.Fatalf("expected 2-branch Choice, got %+v", rec.Body)
	}
	if _, ok := choice.Branches[0].Body.(ast.Continue); !ok {
		t.Fatalf("expected first branch to be Continue, got %T", choice.Branches[0].Body)
	}
}

package registry_test

import (
	"testing"

	"github.com/mpst-tools/dmst/ast"
	"github.com/mpst-tools/dmst/registry"
)

func TestEmptyRegistry(t *testing.T) {
	r := registry.New()
	if _, ok := r.Get("Missing"); ok {
		t.Fatalf("expected no protocol in an empty registry")
	}
	if got := r.Names(); len(got) != 0 {
		t.Fatalf("expected zero names, got %v", got)
	}
}

func TestRegisterAndGet(t *testing.T) {
	p := &ast.Protocol{Name: "Main", Roles: []ast.RoleParam{{Name: "A"}, {Name: "B"}}}
	r := registry.New()
	if err := r.Register(p); err != nil {
		t.Fatalf("Register: %v", err)
	}
	got, ok := r.Get("Main")
	if !ok {
		t.Fatalf("expected Main to be registered")
	}
	if got != p {
		t.Fatalf("Get returned a different pointer than registered")
	}
}

func TestDuplicateNameRejected(t *testing.T) {
	r := registry.New()
	if err := r.Register(&ast.Protocol{Name: "Main"}); err != nil {
		t.Fatalf("Register: %v", err)
	}
	if err := r.Register(&ast.Protocol{Name: "Main"}); err == nil {
		t.Fatalf("expected error registering duplicate protocol name")
	}
}

func TestFromProtocols(t *testing.T) {
	protos := []*ast.Protocol{
		{Name: "Main"},
		{Name: "Sub"},
	}
	r, err := registry.FromProtocols(protos)
	if err != nil {
		t.Fatalf("FromProtocols: %v", err)
	}
	for _, name := range []ast.ProtocolName{"Main", "Sub"} {
		if _, ok := r.Get(name); !ok {
			t.Fatalf("expected %s to be registered", name)
		}
	}
}

func TestFromProtocolsDuplicate(t *testing.T) {
	protos := []*ast.Protocol{
		{Name: "Main"},
		{Name: "Main"},
	}
	if _, err := registry.FromProtocols(protos); err == nil {
		t.Fatalf("expected error for duplicate protocol names")
	}
}

// Package registry provides the read-mostly protocol lookup table that the
// CFG builder, projector, and runtime consult for `do` / `calls` (spec §6).
package registry

import (
	"fmt"
	"sync"

	"github.com/mpst-tools/dmst/ast"
)

// Registry is a {protocolName -> declaration} lookup table constructed
// once per module and shared read-only thereafter. It is safe for
// concurrent use: construction (Register) may race with lookup (Get) in
// tests that build a registry lazily, so every access goes through a
// RWMutex rather than assuming single-threaded setup.
type Registry struct {
	mu    sync.RWMutex
	protos map[ast.ProtocolName]*ast.Protocol
}

// New returns an empty Registry; tests commonly build one with no
// protocols registered (spec §6 "optional empty construction for tests").
func New() *Registry {
	return &Registry{protos: make(map[ast.ProtocolName]*ast.Protocol)}
}

// FromProtocols builds a Registry from a module's full declaration list,
// the normal construction path for a complete module load.
func FromProtocols(protos []*ast.Protocol) (*Registry, error) {
	r := New()
	for _, p := range protos {
		if err := r.Register(p); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// Register adds a protocol declaration. It returns an error on a
// duplicate name, since two protocols sharing a name would make `do`
// resolution ambiguous.
func (r *Registry) Register(p *ast.Protocol) error {
	if p == nil {
		return fmt.Errorf("registry: nil protocol")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.protos[p.Name]; exists {
		return fmt.Errorf("registry: duplicate protocol name %q", p.Name)
	}
	r.protos[p.Name] = p
	return nil
}

// Get looks up a protocol declaration by name.
func (r *Registry) Get(name ast.ProtocolName) (*ast.Protocol, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.protos[name]
	return p, ok
}

// Names returns the registered protocol names in no particular order;
// callers that need a deterministic order should sort the result.
func (r *Registry) Names() []ast.ProtocolName {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]ast.ProtocolName, 0, len(r.protos))
	for n := range r.protos {
		names = append(names, n)
	}
	return names
}

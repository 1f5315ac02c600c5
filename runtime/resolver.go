package runtime

import (
	"fmt"

	"github.com/mpst-tools/dmst/ast"
	"github.com/mpst-tools/dmst/cfg"
	"github.com/mpst-tools/dmst/cfsm"
	"github.com/mpst-tools/dmst/project"
	"github.com/mpst-tools/dmst/registry"
)

// SubprotocolResolver lazily projects a sub-protocol's CFSM for a given
// formal role, the runtime-side half of spec §4.3's "inlining is
// deferred to runtime via the call stack": the projector only ever
// emits a subprotocol-call transition; the actual sub-CFSM is produced
// here, on demand, the first time a simulator's call stack needs it.
type SubprotocolResolver struct {
	cfgs map[ast.ProtocolName]*cfg.Graph
	proj *project.Projector
}

// NewSubprotocolResolver builds a resolver from every protocol's
// pre-built CFG. cfgs must contain an entry for every protocol
// transitively reachable through `do`/`calls`; the root protocol's entry
// is never looked up.
func NewSubprotocolResolver(reg *registry.Registry, cfgs map[ast.ProtocolName]*cfg.Graph) *SubprotocolResolver {
	return &SubprotocolResolver{cfgs: cfgs, proj: project.New(reg)}
}

// Resolve projects protocolName's CFG for the given formal role.
func (r *SubprotocolResolver) Resolve(protocolName ast.ProtocolName, formalRole ast.RoleName) (*cfsm.CFSM, error) {
	g, ok := r.cfgs[protocolName]
	if !ok {
		return nil, fmt.Errorf("runtime: no CFG registered for sub-protocol %q", protocolName)
	}
	return r.proj.Project(g, formalRole)
}

// formalRoleFor inverts a formal->actual RoleMapping to find the formal
// role name bound to actual (the simulator's own identity at the call
// site), so the sub-protocol can be projected from that role's view.
func formalRoleFor(mapping map[ast.RoleName]ast.RoleName, actual ast.RoleName) ast.RoleName {
	for formal, act := range mapping {
		if act == actual {
			return formal
		}
	}
	return ""
}

// Package project implements the Projector of spec §4.3: a recursive
// depth-first walk (not a breadth-first worklist) over a verified CFG that
// computes one enriched CFSM per role.
package project

import (
	"fmt"
	"strconv"

	"github.com/hashicorp/go-multierror"

	"github.com/mpst-tools/dmst/ast"
	"github.com/mpst-tools/dmst/cfg"
	"github.com/mpst-tools/dmst/cfsm"
	"github.com/mpst-tools/dmst/registry"
)

// Projector holds the shared registry needed to resolve `do`/`calls`
// role mappings; it carries no other state and is safe to reuse across
// many Project/ProjectAll calls (spec §5 "Protocol registry... read-only
// after construction; no synchronization needed").
type Projector struct {
	reg *registry.Registry
}

// New returns a Projector bound to reg.
func New(reg *registry.Registry) *Projector {
	return &Projector{reg: reg}
}

// Project computes role's CFSM from g. Per spec §4.3 Contract, g should
// have passed at least the Priority-0 verifier tier; Project never
// panics on a CFG that hasn't, but its output is best-effort and it may
// return a non-nil error describing what went wrong.
func (p *Projector) Project(g *cfg.Graph, role ast.RoleName) (*cfsm.CFSM, error) {
	c := cfsm.New(role, g.Protocol.Name, formalRoleNames(g.Protocol))
	b := &build{g: g, role: role, reg: p.reg, cfsm: c}

	q0 := b.allocState()
	c.AddState(q0, "")
	c.InitialState = q0

	if err := b.walk(g.Initial, q0); err != nil {
		return c, err
	}
	if merr := b.errs.ErrorOrNil(); merr != nil {
		return c, merr
	}
	return c, nil
}

// ProjectAll computes every formal role's CFSM for g.
func (p *Projector) ProjectAll(g *cfg.Graph) (cfsm.Registry, error) {
	out := cfsm.Registry{}
	var errs *multierror.Error
	for _, rp := range g.Protocol.Roles {
		c, err := p.Project(g, rp.Name)
		out[rp.Name] = c
		if err != nil {
			errs = multierror.Append(errs, fmt.Errorf("role %s: %w", rp.Name, err))
		}
	}
	return out, errs.ErrorOrNil()
}

func formalRoleNames(proto *ast.Protocol) []ast.RoleName {
	names := make([]ast.RoleName, len(proto.Roles))
	for i, r := range proto.Roles {
		names[i] = r.Name
	}
	return names
}

// build carries one Project call's working state: the CFSM under
// construction, a cycle-bounding visited set keyed by (cfgNode,
// cfsmState) pairs (spec §4.3 Algorithm), and the memoized funnel targets
// for merge/join/recursive nodes that must be visited exactly once and
// reused across every arriving branch.
type build struct {
	g    *cfg.Graph
	role ast.RoleName
	reg  *registry.Registry
	cfsm *cfsm.CFSM

	counter int
	visited map[visitKey]bool

	mergeState map[cfg.NodeID]cfsm.StateID
	joinState  map[cfg.NodeID]cfsm.StateID
	recState   map[cfg.NodeID]cfsm.StateID
	processed  map[cfg.NodeID]bool

	errs *multierror.Error
}

type visitKey struct {
	node  cfg.NodeID
	state cfsm.StateID
}

func (b *build) allocState() cfsm.StateID {
	b.counter++
	return cfsm.StateID(fmt.Sprintf("s%d", b.counter))
}

func (b *build) addTau(from, to cfsm.StateID) {
	if from == to {
		return
	}
	b.cfsm.AddTransition(from, to, cfsm.Action{Kind: cfsm.ActionTau})
}

func (b *build) lazyInit() {
	if b.visited == nil {
		b.visited = map[visitKey]bool{}
		b.mergeState = map[cfg.NodeID]cfsm.StateID{}
		b.joinState = map[cfg.NodeID]cfsm.StateID{}
		b.recState = map[cfg.NodeID]cfsm.StateID{}
		b.processed = map[cfg.NodeID]bool{}
	}
}

func (b *build) walk(id cfg.NodeID, cur cfsm.StateID) error {
	b.lazyInit()
	key := visitKey{node: id, state: cur}
	if b.visited[key] {
		return nil
	}
	b.visited[key] = true

	n := b.g.Nodes[id]
	switch n.Tag {
	case cfg.TagInitial:
		return b.walkAll(b.g.Successors(id), cur)

	case cfg.TagTerminal:
		b.cfsm.AddState(cur, "")
		b.cfsm.Terminal[cur] = true
		return nil

	case cfg.TagAction:
		return b.walkAction(n, id, cur)

	case cfg.TagBranch:
		return b.walkBranch(n, id, cur)

	case cfg.TagMerge:
		return b.walkFunnel(id, cur, b.mergeState)

	case cfg.TagFork:
		return b.walkFork(n, id, cur)

	case cfg.TagJoin:
		return b.walkFunnel(id, cur, b.joinState)

	case cfg.TagRecursive:
		return b.walkRecursive(n, id, cur)

	case cfg.TagDo:
		return b.walkDo(n, id, cur)

	case cfg.TagUpdatable:
		return b.walkUpdatable(n, id, cur)

	default:
		return fmt.Errorf("project: unknown node tag %v at %s", n.Tag, id)
	}
}

func (b *build) walkAll(ids []cfg.NodeID, cur cfsm.StateID) error {
	for _, id := range ids {
		if err := b.walk(id, cur); err != nil {
			return err
		}
	}
	return nil
}

func (b *build) walkAction(n *cfg.Node, id cfg.NodeID, cur cfsm.StateID) error {
	a := n.Action
	if a.Message != nil {
		return b.walkMessageAction(a.Message, id, cur)
	}
	if a.DMst != nil {
		return b.walkDMstAction(a.DMst, id, cur)
	}
	return fmt.Errorf("project: action node %s has no payload", id)
}

func (b *build) walkMessageAction(m *cfg.MessageAction, id cfg.NodeID, cur cfsm.StateID) error {
	isSender := m.From == b.role
	isReceiver := false
	for _, to := range m.To {
		if to == b.role {
			isReceiver = true
			break
		}
	}
	switch {
	case isSender:
		next := b.allocState()
		b.cfsm.AddState(next, "")
		b.cfsm.AddTransition(cur, next, cfsm.Action{
			Kind: cfsm.ActionSend,
			Send: &cfsm.Send{To: append([]ast.RoleName(nil), m.To...), Message: m.Message, Location: m.Location},
		})
		return b.walkAll(b.g.Successors(id), next)
	case isReceiver:
		next := b.allocState()
		b.cfsm.AddState(next, "")
		b.cfsm.AddTransition(cur, next, cfsm.Action{
			Kind:    cfsm.ActionReceive,
			Receive: &cfsm.Receive{From: m.From, Message: m.Message, Location: m.Location},
		})
		return b.walkAll(b.g.Successors(id), next)
	default:
		// Uninvolved role: tau elision, no new state (spec §4.3).
		return b.walkAll(b.g.Successors(id), cur)
	}
}

func (b *build) walkDMstAction(d *cfg.DMstAction, id cfg.NodeID, cur cfsm.StateID) error {
	if d.Actor != b.role {
		return b.walkAll(b.g.Successors(id), cur)
	}
	next := b.allocState()
	b.cfsm.AddState(next, "")
	var action cfsm.Action
	switch d.Kind {
	case cfg.ActionDMstCreate:
		action = cfsm.Action{Kind: cfsm.ActionDMstCreate, Create: &cfsm.DMstCreate{Role: d.Target}}
	case cfg.ActionDMstInvite:
		action = cfsm.Action{Kind: cfsm.ActionDMstInvite, Invite: &cfsm.DMstInvite{Who: d.Target}}
	default:
		return fmt.Errorf("project: unexpected DMst action kind %v", d.Kind)
	}
	b.cfsm.AddTransition(cur, next, action)
	return b.walkAll(b.g.Successors(id), next)
}

// walkBranch distinguishes internal choice (the decider allocates a new
// state and an explicit Choice transition per branch) from external
// choice (every other role simply continues into each branch from the
// shared current state; the generic tau-elision in walkMessageAction
// naturally produces the discriminating receive transition the first
// time the role is actually involved, so no separate logic is needed
// here for the non-decider case — spec §4.3's "branches with no
// observable action for r collapse to tau" falls out for free).
func (b *build) walkBranch(n *cfg.Node, id cfg.NodeID, cur cfsm.StateID) error {
	branches := b.g.Successors(id)
	if n.Decider != b.role {
		return b.walkAll(branches, cur)
	}
	for idx, entry := range branches {
		next := b.allocState()
		b.cfsm.AddState(next, "")
		b.cfsm.AddTransition(cur, next, cfsm.Action{
			Kind:   cfsm.ActionChoice,
			Choice: &cfsm.Choice{Branch: ast.Label(strconv.Itoa(idx))},
		})
		if err := b.walk(entry, next); err != nil {
			return err
		}
	}
	return nil
}

// walkFunnel implements the "all incoming branch tails funnel into one
// target state, reused across branches" rule shared by merge and join
// nodes: the target is allocated once, every arrival gets a tau edge
// into it, and the subgraph beyond it is only walked the first time.
func (b *build) walkFunnel(id cfg.NodeID, cur cfsm.StateID, memo map[cfg.NodeID]cfsm.StateID) error {
	target, ok := memo[id]
	if !ok {
		target = b.allocState()
		b.cfsm.AddState(target, "")
		memo[id] = target
	}
	b.addTau(cur, target)
	if b.processed[id] {
		return nil
	}
	b.processed[id] = true
	return b.walkAll(b.g.Successors(id), target)
}

// walkRecursive implements the "remember (cfgNodeId -> cfsmStateId); on
// the second pass every continue edge becomes a back-transition to that
// remembered state" rule (spec §4.3). The first arrival's own cur state
// becomes the remembered state (entering a recursion is not itself an
// observable action); every later arrival — which can only be via a
// continue edge, since that is the only other way the CFG points at a
// recursive node — gets a tau back-edge instead of reprocessing the body.
func (b *build) walkRecursive(n *cfg.Node, id cfg.NodeID, cur cfsm.StateID) error {
	target, ok := b.recState[id]
	if !ok {
		b.recState[id] = cur
		b.cfsm.States[cur].Label = n.Label
		return b.walkAll(b.g.Successors(id), cur)
	}
	b.addTau(cur, target)
	return nil
}

// walkFork decides between the three fork/join regimes of spec §4.3: 0
// or 1 involved branches reduce to the same generic tau-fanout that
// walkFunnel's join handling will naturally re-converge (no special
// casing needed — the branches this role ignores simply tau-elide
// straight through to the join); ≥2 involved branches need the diamond
// interleaving built explicitly in interleave.go.
func (b *build) walkFork(n *cfg.Node, id cfg.NodeID, cur cfsm.StateID) error {
	branches := b.g.Successors(id)
	joinID := b.pairedJoin(n.ParallelID)

	var involved []cfg.NodeID
	for _, br := range branches {
		if joinID != "" && b.roleInvolvedBetween(br, joinID) {
			involved = append(involved, br)
		}
	}

	if len(involved) < 2 {
		return b.walkAll(branches, cur)
	}
	return b.walkDiamond(involved, joinID, cur)
}

func (b *build) walkUpdatable(n *cfg.Node, id cfg.NodeID, cur cfsm.StateID) error {
	next := b.allocState()
	b.cfsm.AddState(next, "")
	b.cfsm.AddTransition(cur, next, cfsm.Action{Kind: cfsm.ActionDMstUpdateMarker})
	return b.walkAll(b.g.Successors(id), next)
}

func (b *build) walkDo(n *cfg.Node, id cfg.NodeID, cur cfsm.StateID) error {
	call := n.Do
	callee, ok := b.reg.Get(call.Protocol)
	if !ok {
		b.errs = multierror.Append(b.errs, fmt.Errorf("project: do node %s references unregistered protocol %q", id, call.Protocol))
		return b.walkAll(b.g.Successors(id), cur)
	}

	participates := false
	for _, actual := range call.Arguments {
		if actual == b.role {
			participates = true
			break
		}
	}
	if !participates {
		return b.walkAll(b.g.Successors(id), cur)
	}

	mapping := map[ast.RoleName]ast.RoleName{}
	for i, formal := range callee.Roles {
		if i < len(call.Arguments) {
			mapping[formal.Name] = call.Arguments[i]
		}
	}

	next := b.allocState()
	b.cfsm.AddState(next, "")
	b.cfsm.AddTransition(cur, next, cfsm.Action{
		Kind: cfsm.ActionSubprotocolCall,
		SubprotocolCall: &cfsm.SubprotocolCall{
			Protocol:    call.Protocol,
			RoleMapping: mapping,
			ReturnState: next,
		},
	})
	return b.walkAll(b.g.Successors(id), next)
}

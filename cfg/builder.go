package cfg

import (
	"fmt"
	"sync"

	"github.com/mpst-tools/dmst/ast"
	"github.com/mpst-tools/dmst/registry"
	"github.com/sirupsen/logrus"
)

// Builder lowers protocol ASTs into CFGs. A single Builder instance should
// be reused across every protocol in a module: its node/edge id counters
// are module-wide, never reset between Build calls, which is what lets a
// parent protocol's `do P(...)` CFG node compose with P's own CFG without
// id collisions (spec §4.1, §9 Design Notes "Global state").
type Builder struct {
	reg *registry.Registry
	log *logrus.Entry

	mu       sync.Mutex
	nextNode int
	nextEdge int
	nextPar  int
}

// Warning is a non-fatal build-time diagnostic, e.g. unreachable code
// after a `continue` (spec §4.1 translation table).
type Warning struct {
	Message  string
	Location ast.Location
}

// NewBuilder creates a Builder bound to reg for do/calls resolution.
func NewBuilder(reg *registry.Registry) *Builder {
	return &Builder{reg: reg, log: logrus.WithField("pkg", "cfg")}
}

// Build lowers a single protocol declaration into a CFG. It fails with a
// *BuildError when a continue references an unbound label or a do/calls
// references an unknown protocol; otherwise it always succeeds and
// returns a CFG satisfying the invariants of spec §3 (spec §4.1 Contract).
func (b *Builder) Build(proto *ast.Protocol) (*Graph, []Warning, error) {
	g := &Graph{
		Protocol:  proto,
		Nodes:     make(map[NodeID]*Node),
		Edges:     make(map[EdgeID]*Edge),
		Out:       make(map[NodeID][]EdgeID),
		In:        make(map[NodeID][]EdgeID),
		Terminals: make(map[NodeID]bool),
	}
	c := &context{b: b, g: g}

	initial := c.newNode(TagInitial, ast.Location{})
	g.Initial = initial

	var warnings []Warning
	c.warn = func(w Warning) { warnings = append(warnings, w) }

	result, err := c.buildInteraction(proto.Body)
	if err != nil {
		return nil, nil, err
	}

	terminal := c.newNode(TagTerminal, ast.Location{})
	g.Terminals[terminal] = true

	if len(result.Entries) == 0 {
		// Empty protocol body (spec §8 boundary behavior): initial flows
		// directly into terminal.
		c.connect(initial, terminal, EdgeSequence)
	} else {
		c.connect(initial, result.Entries[0], EdgeSequence)
		for _, exit := range result.Exits {
			c.connect(exit, terminal, EdgeSequence)
		}
	}

	retagContinueEdges(g)

	return g, warnings, nil
}

// scopeFrame binds a recursion label to its CFG node for the lexical
// extent of its body (spec §4.1 "Scope handling").
type scopeFrame struct {
	label ast.Label
	node  NodeID
}

// context carries one Build call's graph-under-construction plus the
// lexical label scope stack; id allocation defers to the shared Builder
// so counters stay module-wide.
type context struct {
	b      *Builder
	g      *Graph
	scopes []scopeFrame
	warn   func(Warning)
}

// buildResult is what building one ast.Interaction yields: the set of
// node ids that a predecessor should connect into (Entries — empty for a
// no-op interaction such as an empty Sequence) and the set of node ids
// whose outgoing edge has not yet been created, for the caller to connect
// to whatever follows (Exits — empty when every path through this
// interaction is already terminal, e.g. it ends in `continue`).
type buildResult struct {
	Entries []NodeID
	Exits   []NodeID
}

func (c *context) newNode(tag NodeTag, loc ast.Location) NodeID {
	c.b.mu.Lock()
	c.b.nextNode++
	id := NodeID(fmt.Sprintf("n%d", c.b.nextNode))
	c.b.mu.Unlock()
	c.g.Nodes[id] = &Node{ID: id, Tag: tag, Location: loc}
	c.g.NodeOrder = append(c.g.NodeOrder, id)
	return id
}

func (c *context) newParallelID() string {
	c.b.mu.Lock()
	c.b.nextPar++
	id := fmt.Sprintf("p%d", c.b.nextPar)
	c.b.mu.Unlock()
	return id
}

func (c *context) connect(from, to NodeID, tag EdgeTag) EdgeID {
	c.b.mu.Lock()
	c.b.nextEdge++
	id := EdgeID(fmt.Sprintf("e%d", c.b.nextEdge))
	c.b.mu.Unlock()
	c.g.Edges[id] = &Edge{ID: id, From: from, To: to, Tag: tag}
	c.g.EdgeOrder = append(c.g.EdgeOrder, id)
	c.g.Out[from] = append(c.g.Out[from], id)
	c.g.In[to] = append(c.g.In[to], id)
	return id
}

func (c *context) pushScope(label ast.Label, node NodeID) {
	c.scopes = append(c.scopes, scopeFrame{label: label, node: node})
}

func (c *context) popScope() {
	c.scopes = c.scopes[:len(c.scopes)-1]
}

// lookupLabel finds the innermost (topmost) binding of label, matching
// the spec's "inner rec L shadows outer rec L" rule.
func (c *context) lookupLabel(label ast.Label) (NodeID, bool) {
	for i := len(c.scopes) - 1; i >= 0; i-- {
		if c.scopes[i].label == label {
			return c.scopes[i].node, true
		}
	}
	return "", false
}

// connectSequence wires every entry in froms to every entry in tos with
// sequence edges — froms/tos both typically hold one id, except when a
// branch/parallel funnels multiple exits into a single successor.
func (c *context) connectSequence(froms, tos []NodeID) {
	for _, f := range froms {
		for _, t := range tos {
			c.connect(f, t, EdgeSequence)
		}
	}
}

func (c *context) buildInteraction(i ast.Interaction) (buildResult, error) {
	switch n := i.(type) {
	case nil:
		return buildResult{}, nil
	case ast.Sequence:
		return c.buildSequence(n)
	case ast.MessageTransfer:
		return c.buildMessageTransfer(n)
	case ast.Choice:
		return c.buildChoice(n)
	case ast.Parallel:
		return c.buildParallel(n)
	case ast.Recursion:
		return c.buildRecursion(n)
	case ast.Continue:
		return c.buildContinue(n)
	case ast.Do:
		return c.buildDo(n)
	case ast.NewRole:
		return buildResult{}, nil // purely a scoping declaration, no action node
	case ast.CreatesRole:
		return c.buildDMst(ActionDMstCreate, n.Creator, n.Role, n.Location)
	case ast.Invites:
		return c.buildDMst(ActionDMstInvite, n.Inviter, n.Invitee, n.Location)
	case ast.UpdatableContinue:
		return c.buildUpdatableContinue(n)
	default:
		return buildResult{}, fmt.Errorf("cfg: unknown interaction form %T", i)
	}
}

func (c *context) buildSequence(seq ast.Sequence) (buildResult, error) {
	var entries []NodeID
	var prevExits []NodeID
	haveEntries := false
	for idx, item := range seq.Items {
		if haveEntries && len(prevExits) == 0 && idx > 0 {
			// The previous item ended every path in `continue` (or another
			// non-returning form): anything after it is unreachable.
			c.warn(Warning{Message: "unreachable code after continue", Location: item.Loc()})
		}
		r, err := c.buildInteraction(item)
		if err != nil {
			return buildResult{}, err
		}
		if len(r.Entries) == 0 {
			continue
		}
		if haveEntries {
			c.connectSequence(prevExits, r.Entries)
		} else {
			entries = r.Entries
			haveEntries = true
		}
		prevExits = r.Exits
	}
	if !haveEntries {
		return buildResult{}, nil
	}
	return buildResult{Entries: entries, Exits: prevExits}, nil
}

func (c *context) buildMessageTransfer(m ast.MessageTransfer) (buildResult, error) {
	id := c.newNode(TagAction, m.Location)
	c.g.Nodes[id].Action = &Action{
		Kind: ActionMessage,
		Message: &MessageAction{
			From:     m.Sender,
			To:       append([]ast.RoleName(nil), m.Receivers...),
			Message:  m.Message,
			Location: m.Location,
		},
	}
	return buildResult{Entries: []NodeID{id}, Exits: []NodeID{id}}, nil
}

func (c *context) buildDMst(kind ActionKind, actor, target ast.RoleName, loc ast.Location) (buildResult, error) {
	id := c.newNode(TagAction, loc)
	c.g.Nodes[id].Action = &Action{
		Kind: kind,
		DMst: &DMstAction{Kind: kind, Actor: actor, Target: target, Location: loc},
	}
	return buildResult{Entries: []NodeID{id}, Exits: []NodeID{id}}, nil
}

func (c *context) buildChoice(ch ast.Choice) (buildResult, error) {
	branchNode := c.newNode(TagBranch, ch.Location)
	c.g.Nodes[branchNode].Decider = ch.Decider

	mergeNode := c.newNode(TagMerge, ch.Location)
	c.g.Nodes[mergeNode].BranchOf = branchNode

	var anyExit bool
	for _, br := range ch.Branches {
		r, err := c.buildInteraction(br.Body)
		if err != nil {
			return buildResult{}, err
		}
		if len(r.Entries) == 0 {
			// Empty branch: connect branch node straight to merge.
			// (spec §4.2 flags this as an error at verify time, not here.)
			c.connect(branchNode, mergeNode, EdgeBranch)
			anyExit = true
			continue
		}
		c.connectSequence([]NodeID{branchNode}, r.Entries)
		if len(r.Exits) > 0 {
			c.connectSequence(r.Exits, []NodeID{mergeNode})
			anyExit = true
		}
	}
	// Retag the edges branch->entry as EdgeBranch (connectSequence above
	// used EdgeSequence by default for the branch->entry hop in the
	// non-empty case; fix that up here).
	for _, eid := range c.g.Out[branchNode] {
		e := c.g.Edges[eid]
		if e.Tag == EdgeSequence {
			e.Tag = EdgeBranch
		}
	}
	if !anyExit {
		// Every branch ended in continue/non-return; merge is unreachable
		// but still exists as a structural node with no exits to report.
		return buildResult{Entries: []NodeID{branchNode}, Exits: nil}, nil
	}
	return buildResult{Entries: []NodeID{branchNode}, Exits: []NodeID{mergeNode}}, nil
}

func (c *context) buildParallel(p ast.Parallel) (buildResult, error) {
	parID := c.newParallelID()
	forkNode := c.newNode(TagFork, p.Location)
	c.g.Nodes[forkNode].ParallelID = parID

	joinNode := c.newNode(TagJoin, p.Location)
	c.g.Nodes[joinNode].ParallelID = parID
	c.g.Nodes[joinNode].JoinOf = forkNode

	for _, br := range p.Branches {
		r, err := c.buildInteraction(br.Body)
		if err != nil {
			return buildResult{}, err
		}
		if len(r.Entries) == 0 {
			c.connect(forkNode, joinNode, EdgeFork)
			continue
		}
		for _, e := range r.Entries {
			c.connect(forkNode, e, EdgeFork)
		}
		if len(r.Exits) > 0 {
			c.connectSequence(r.Exits, []NodeID{joinNode})
		}
	}
	return buildResult{Entries: []NodeID{forkNode}, Exits: []NodeID{joinNode}}, nil
}

func (c *context) buildRecursion(r ast.Recursion) (buildResult, error) {
	recNode := c.newNode(TagRecursive, r.Location)
	c.g.Nodes[recNode].Label = r.Label

	c.pushScope(r.Label, recNode)
	body, err := c.buildInteraction(r.Body)
	c.popScope()
	if err != nil {
		return buildResult{}, err
	}

	if len(body.Entries) == 0 {
		// rec L { } — degenerate, recNode has no body; treat as an
		// immediately-exiting recursive node.
		return buildResult{Entries: []NodeID{recNode}, Exits: []NodeID{recNode}}, nil
	}
	c.connectSequence([]NodeID{recNode}, body.Entries)
	return buildResult{Entries: []NodeID{recNode}, Exits: body.Exits}, nil
}

func (c *context) buildContinue(co ast.Continue) (buildResult, error) {
	target, ok := c.lookupLabel(co.Label)
	if !ok {
		return buildResult{}, newUnboundLabelError(string(co.Label))
	}
	// Entries carries the target recursive node so the caller's generic
	// connectSequence/connect wiring lands the edge there like any other
	// successor; Exits is nil since a continue never falls through. The
	// caller has no way to know this interaction was a Continue, so the
	// edge it creates gets whatever tag that caller normally uses
	// (EdgeSequence, EdgeBranch, EdgeFork); retagContinueEdges fixes it up
	// to EdgeContinue afterward, once the whole graph is built, by telling
	// this back-edge apart from the recursive node's one genuine entry
	// edge via scoped reachability (spec §4.1).
	return buildResult{Entries: []NodeID{target}, Exits: nil}, nil
}

func (c *context) buildDo(d ast.Do) (buildResult, error) {
	if _, ok := c.b.reg.Get(d.Protocol); !ok {
		return buildResult{}, newUnknownProtocolError(string(d.Protocol))
	}
	id := c.newNode(TagDo, d.Location)
	c.g.Nodes[id].Do = &DoCall{Protocol: d.Protocol, Arguments: append([]ast.RoleName(nil), d.Arguments...), Location: d.Location}
	return buildResult{Entries: []NodeID{id}, Exits: []NodeID{id}}, nil
}

func (c *context) buildUpdatableContinue(u ast.UpdatableContinue) (buildResult, error) {
	target, ok := c.lookupLabel(u.Label)
	if !ok {
		return buildResult{}, newUnboundLabelError(string(u.Label))
	}
	upNode := c.newNode(TagUpdatable, u.Location)
	c.g.Nodes[upNode].RecursiveOf = target

	updateResult, err := c.buildInteraction(u.Update)
	if err != nil {
		return buildResult{}, err
	}
	if len(updateResult.Entries) > 0 {
		c.g.Nodes[upNode].UpdateBody = updateResult.Entries[0]
		c.connectSequence([]NodeID{upNode}, updateResult.Entries)
		// The update body itself loops back to the same recursive node,
		// per Definition 13/14: the updated protocol continues the
		// original recursion after applying the extension.
		for _, exit := range updateResult.Exits {
			c.connect(exit, target, EdgeContinue)
		}
	} else {
		c.connect(upNode, target, EdgeContinue)
	}
	return buildResult{Entries: []NodeID{upNode}, Exits: nil}, nil
}

// Package cfg lowers a protocol AST (package ast) into the canonical
// Control-Flow Graph described in spec §3/§4.1: a node/edge graph with
// explicit fork/join, branch/merge, and recursion back-edges, including
// the DMst constructs (dynamic roles, protocol calls, updatable
// recursion). The CFG is the single semantic source of truth consumed by
// package verify and package project.
package cfg

import "github.com/mpst-tools/dmst/ast"

// NodeID uniquely identifies a node across an entire module — ids are
// allocated from a Builder-scoped global counter, never reset between
// protocol builds, so sub-protocols composed into a parent via `do` never
// collide (spec §4.1 "Node ids are allocated from a global counter").
type NodeID string

// EdgeID uniquely identifies an edge within a module.
type EdgeID string

// NodeTag classifies a CFG node (spec §3).
type NodeTag int

const (
	TagInitial NodeTag = iota
	TagTerminal
	TagAction
	TagBranch
	TagMerge
	TagFork
	TagJoin
	TagRecursive
	TagDo
	TagUpdatable
)

func (t NodeTag) String() string {
	switch t {
	case TagInitial:
		return "initial"
	case TagTerminal:
		return "terminal"
	case TagAction:
		return "action"
	case TagBranch:
		return "branch"
	case TagMerge:
		return "merge"
	case TagFork:
		return "fork"
	case TagJoin:
		return "join"
	case TagRecursive:
		return "recursive"
	case TagDo:
		return "do"
	case TagUpdatable:
		return "updatable"
	default:
		return "unknown"
	}
}

// EdgeTag classifies a CFG edge (spec §3).
type EdgeTag int

const (
	EdgeSequence EdgeTag = iota
	EdgeBranch
	EdgeFork
	EdgeContinue
	EdgeEpsilon
)

func (t EdgeTag) String() string {
	switch t {
	case EdgeSequence:
		return "sequence"
	case EdgeBranch:
		return "branch"
	case EdgeFork:
		return "fork"
	case EdgeContinue:
		return "continue"
	case EdgeEpsilon:
		return "epsilon"
	default:
		return "unknown"
	}
}

// ActionKind distinguishes the payload carried by an action node.
type ActionKind int

const (
	ActionMessage ActionKind = iota
	ActionDMstCreate
	ActionDMstInvite
	ActionDMstUpdateMarker
)

// MessageAction is the payload of a MessageTransfer action node: sender,
// ordered (non-exploded) receiver list, the structured message, and the
// source location of the originating AST node.
type MessageAction struct {
	From     ast.RoleName
	To       []ast.RoleName
	Message  ast.Message
	Location ast.Location
}

// DMstAction is the payload of a create/invite/update-marker action node.
type DMstAction struct {
	Kind     ActionKind
	Actor    ast.RoleName // the creator/inviter
	Target   ast.RoleName // the created role / invitee
	Location ast.Location
}

// Action is the tagged payload of a TagAction node: exactly one of
// Message or DMst is non-nil.
type Action struct {
	Kind    ActionKind
	Message *MessageAction
	DMst    *DMstAction
}

func (a *Action) Loc() ast.Location {
	if a.Message != nil {
		return a.Message.Location
	}
	if a.DMst != nil {
		return a.DMst.Location
	}
	return ast.Location{}
}

// DoCall is the payload of a TagDo node: the invoked protocol and the
// actual role arguments substituted for the callee's formal roles.
type DoCall struct {
	Protocol  ast.ProtocolName
	Arguments []ast.RoleName
	Location  ast.Location
}

// Node is a single CFG vertex. Only the fields relevant to Tag are
// populated; this mirrors spec §9's guidance to implement polymorphic
// action nodes as tagged variants rather than a class hierarchy.
type Node struct {
	ID  NodeID
	Tag NodeTag

	// TagAction
	Action *Action

	// TagBranch: the deciding role. TagMerge: the paired branch node id.
	Decider   ast.RoleName
	BranchOf  NodeID

	// TagFork / TagJoin: shared identifier pairing a fork with its join.
	ParallelID string
	// TagJoin: the paired fork node id.
	JoinOf NodeID

	// TagRecursive: the recursion label.
	Label ast.Label

	// TagDo
	Do *DoCall

	// TagUpdatable: entry node of the update body U (side subgraph used
	// by the 1-unfolding safety check, spec §4.2 DMst).
	UpdateBody NodeID
	// TagUpdatable: the rec node this updatable continue belongs to.
	RecursiveOf NodeID

	Location ast.Location
}

// Edge is a single CFG directed edge.
type Edge struct {
	ID   EdgeID
	From NodeID
	To   NodeID
	Tag  EdgeTag
}

// Graph is the frozen, immutable CFG produced by Builder.Build. Once
// returned, a Graph is never mutated by verify or project (spec §3
// Ownership & lifecycle).
type Graph struct {
	Protocol *ast.Protocol

	Nodes map[NodeID]*Node
	Edges map[EdgeID]*Edge

	// NodeOrder/EdgeOrder record allocation order for deterministic
	// iteration (map iteration order in Go is randomized).
	NodeOrder []NodeID
	EdgeOrder []EdgeID

	Out map[NodeID][]EdgeID
	In  map[NodeID][]EdgeID

	Initial   NodeID
	Terminals map[NodeID]bool
}

// OutEdges returns the outgoing edges of id in allocation order.
func (g *Graph) OutEdges(id NodeID) []*Edge {
	ids := g.Out[id]
	edges := make([]*Edge, len(ids))
	for i, eid := range ids {
		edges[i] = g.Edges[eid]
	}
	return edges
}

// InEdges returns the incoming edges of id in allocation order.
func (g *Graph) InEdges(id NodeID) []*Edge {
	ids := g.In[id]
	edges := make([]*Edge, len(ids))
	for i, eid := range ids {
		edges[i] = g.Edges[eid]
	}
	return edges
}

// Successors returns the target node ids of id's outgoing edges.
func (g *Graph) Successors(id NodeID) []NodeID {
	out := g.OutEdges(id)
	ids := make([]NodeID, len(out))
	for i, e := range out {
		ids[i] = e.To
	}
	return ids
}

// IsTerminal reports whether id is a terminal node.
func (g *Graph) IsTerminal(id NodeID) bool {
	return g.Terminals[id]
}

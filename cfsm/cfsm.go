// Package cfsm defines the enriched Communicating Finite-State Machine
// data model of spec §3: a formal (Q, q₀, A, Δ, F) automaton per role,
// where actions live on transitions rather than states (LTS discipline).
package cfsm

import "github.com/mpst-tools/dmst/ast"

// StateID uniquely identifies a state within one CFSM.
type StateID string

// State is a single automaton state: an id and an optional label (carried
// through from the CFG node it was projected from, e.g. a recursion
// label, useful for diagnostics and rendering).
type State struct {
	ID    StateID
	Label ast.Label
}

// ActionKind discriminates a transition's action payload.
type ActionKind int

const (
	ActionSend ActionKind = iota
	ActionReceive
	ActionTau
	ActionChoice
	ActionSubprotocolCall
	ActionDMstCreate
	ActionDMstInvite
	ActionDMstUpdateMarker
)

func (k ActionKind) String() string {
	switch k {
	case ActionSend:
		return "send"
	case ActionReceive:
		return "receive"
	case ActionTau:
		return "tau"
	case ActionChoice:
		return "choice"
	case ActionSubprotocolCall:
		return "subprotocol-call"
	case ActionDMstCreate:
		return "create"
	case ActionDMstInvite:
		return "invite"
	case ActionDMstUpdateMarker:
		return "update-marker"
	default:
		return "unknown"
	}
}

// Send is the `send{to, message, location?}` action: to is preserved as
// an ordered list since a multicast projects the very same atomic send
// to every role involved, never exploded into sequential messages.
type Send struct {
	To       []ast.RoleName
	Message  ast.Message
	Location ast.Location
}

// Receive is the `receive{from, message, location?}` action.
type Receive struct {
	From     ast.RoleName
	Message  ast.Message
	Location ast.Location
}

// Choice is the internal-choice decision transition emitted for the
// deciding role at a branch node.
type Choice struct {
	Branch ast.Label
}

// SubprotocolCall is the `subprotocol-call{protocol, roleMapping,
// returnState}` action: the sub-protocol's own CFSM is produced lazily
// by projecting it with the substituted roles; call-stack linkage is
// purely a runtime concern (spec §4.3).
type SubprotocolCall struct {
	Protocol    ast.ProtocolName
	RoleMapping map[ast.RoleName]ast.RoleName
	ReturnState StateID
}

// DMstCreate is the `create{role, instance}` action.
type DMstCreate struct {
	Role     ast.RoleName
	Instance string
}

// DMstInvite is the `invite{who}` action.
type DMstInvite struct {
	Who ast.RoleName
}

// Action is the tagged payload carried by a Transition. Exactly one of
// the non-nil fields matches Kind — a struct-of-optional-pointers, the
// same variant-representation style as cfg.Action (spec §9 Design Notes
// permits either tagged struct or interface; this module is consistent
// about using the struct form throughout).
type Action struct {
	Kind ActionKind

	Send            *Send
	Receive         *Receive
	Choice          *Choice
	SubprotocolCall *SubprotocolCall
	Create          *DMstCreate
	Invite          *DMstInvite
}

// Transition is a single Δ edge: (From, To, Action). Actions live on
// transitions, never on states (spec §3 CFSM LTS discipline).
type Transition struct {
	From   StateID
	To     StateID
	Action Action
}

// CFSM is one role's enriched projected automaton.
type CFSM struct {
	Role         ast.RoleName
	ProtocolName ast.ProtocolName
	Parameters   []ast.RoleName

	States       map[StateID]*State
	StateOrder   []StateID
	InitialState StateID
	Terminal     map[StateID]bool

	Transitions []*Transition
	// Out indexes Transitions by their From state for O(1) successor
	// lookup during simulation.
	Out map[StateID][]*Transition
}

// New returns an empty CFSM shell for role/protocolName/parameters, ready
// for the projector to populate via AddState/AddTransition.
func New(role ast.RoleName, protocolName ast.ProtocolName, parameters []ast.RoleName) *CFSM {
	return &CFSM{
		Role:         role,
		ProtocolName: protocolName,
		Parameters:   parameters,
		States:       make(map[StateID]*State),
		Terminal:     make(map[StateID]bool),
		Out:          make(map[StateID][]*Transition),
	}
}

// AddState registers a new state, returning it for convenience.
func (c *CFSM) AddState(id StateID, label ast.Label) *State {
	if s, ok := c.States[id]; ok {
		return s
	}
	s := &State{ID: id, Label: label}
	c.States[id] = s
	c.StateOrder = append(c.StateOrder, id)
	return s
}

// AddTransition appends a Δ edge and indexes it.
func (c *CFSM) AddTransition(from, to StateID, action Action) *Transition {
	t := &Transition{From: from, To: to, Action: action}
	c.Transitions = append(c.Transitions, t)
	c.Out[from] = append(c.Out[from], t)
	return t
}

// IsTerminal reports whether id is a terminal state.
func (c *CFSM) IsTerminal(id StateID) bool { return c.Terminal[id] }

// OutTransitions returns id's outgoing transitions.
func (c *CFSM) OutTransitions(id StateID) []*Transition { return c.Out[id] }

// Registry is a read-only {role -> CFSM} map returned by projectAll.
type Registry map[ast.RoleName]*CFSM

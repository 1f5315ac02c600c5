// Package ast defines the protocol AST accepted by the CFG builder.
//
// The AST is produced by an external surface-syntax parser (out of scope
// for this module, see spec §1) and is treated as read-only input: nothing
// in this module mutates an *ast.Protocol after it is handed to cfg.Build.
package ast

// RoleName identifies a participant in a protocol. Dynamic DMst roles
// (created at runtime via CreatesRole) are also represented as RoleName
// values; they need not appear in a Protocol's formal Roles list.
type RoleName string

// ProtocolName identifies a protocol declaration for do/calls resolution.
type ProtocolName string

// Label names a recursion scope (rec L { ... }) or a message.
type Label string

// Location is the source position of an AST node, threaded through the
// CFG, the projected CFSM, and verifier Violations so diagnostics can
// point back at surface syntax.
type Location struct {
	Line int
	Col  int
}

// TypeExpr is a structured payload type: either a named simple type
// ("String", "Int") or a parametric type with a recursive argument list
// ("Map", ["String", {List, ["User"]}]). TypeExpr is never flattened to a
// string anywhere in the pipeline.
type TypeExpr struct {
	Name string
	Args []TypeExpr
}

// IsSimple reports whether the type has no parameters.
func (t TypeExpr) IsSimple() bool { return len(t.Args) == 0 }

// Message is a structured label + optional payload carried by a
// MessageTransfer interaction.
type Message struct {
	Label   Label
	Payload *TypeExpr // nil when the message carries no payload
}

// RoleParam is a formal role parameter of a protocol declaration.
type RoleParam struct {
	Name RoleName
}

// Protocol is a single `protocol Name(roles...) { body }` declaration.
type Protocol struct {
	Name ProtocolName
	// Roles is the ordered list of formal role parameters. DMst dynamic
	// roles need not be listed here (spec §4.2 Connectedness).
	Roles []RoleParam
	// TypeParams holds optional type/signature parameters; this module
	// treats them as opaque names threaded through Do/DMst call sites.
	TypeParams []string
	Body       Interaction
	Location   Location
}

// Interaction is the sealed interface implemented by every interaction
// grammar form from spec §3. Consumers pattern-match exhaustively via a
// type switch; spec §9 Design Notes explicitly permits either a tagged
// union or this single-method-interface style.
type Interaction interface {
	interactionNode()
	Loc() Location
}

// Sequence is an ordered list of interactions executed one after another.
// A single-element or empty Sequence is legal; cfg.Build treats an empty
// Sequence as an immediate fallthrough to whatever follows it.
type Sequence struct {
	Items    []Interaction
	Location Location
}

func (Sequence) interactionNode() {}
func (s Sequence) Loc() Location  { return s.Location }

// MessageTransfer is `p -> q1,...,qn: m`. Receivers is non-empty and its
// order is preserved atomically — multicast is never unrolled into
// sequential sends anywhere in the pipeline (spec §9 Design Notes).
type MessageTransfer struct {
	Sender    RoleName
	Receivers []RoleName
	Message   Message
	Location  Location
}

func (MessageTransfer) interactionNode() {}
func (m MessageTransfer) Loc() Location  { return m.Location }

// Branch is one arm of a Choice or Parallel.
type Branch struct {
	Body     Interaction
	Location Location
}

// Choice is `choice at p { B1 } or ... or { Bn }`.
type Choice struct {
	Decider  RoleName
	Branches []Branch
	Location Location
}

func (Choice) interactionNode() {}
func (c Choice) Loc() Location  { return c.Location }

// Parallel is `par { B1 } and ... and { Bn }`.
type Parallel struct {
	Branches []Branch
	Location Location
}

func (Parallel) interactionNode() {}
func (p Parallel) Loc() Location  { return p.Location }

// Recursion is `rec L { Body }`. Labels are lexically scoped: an inner
// `rec L` shadows an outer one for the extent of its own body.
type Recursion struct {
	Label    Label
	Body     Interaction
	Location Location
}

func (Recursion) interactionNode() {}
func (r Recursion) Loc() Location  { return r.Location }

// Continue is `continue L`, a jump to the enclosing `rec L`. Code placed
// after a Continue within the same Sequence is unreachable (cfg.Build
// reports this as a warning, not an error).
type Continue struct {
	Label    Label
	Location Location
}

func (Continue) interactionNode() {}
func (c Continue) Loc() Location  { return c.Location }

// Do is `do P(r1, ..., rn)` / `p calls P(r1, ..., rn)` — invocation of
// another protocol with an ordered list of actual role arguments.
type Do struct {
	Protocol  ProtocolName
	Arguments []RoleName
	Location  Location
}

func (Do) interactionNode() {}
func (d Do) Loc() Location  { return d.Location }

// NewRole is a DMst `new role r` declaration: r becomes usable as a
// dynamic participant in the enclosing protocol body without being listed
// among the formal Roles.
type NewRole struct {
	Role     RoleName
	Location Location
}

func (NewRole) interactionNode() {}
func (n NewRole) Loc() Location  { return n.Location }

// CreatesRole is a DMst `p creates r` action: p instantiates a fresh
// dynamic participant bound to name r.
type CreatesRole struct {
	Creator  RoleName
	Role     RoleName
	Location Location
}

func (CreatesRole) interactionNode() {}
func (c CreatesRole) Loc() Location  { return c.Location }

// Invites is a DMst `p invites q` action: p admits an existing dynamic
// participant q into the running protocol instance.
type Invites struct {
	Inviter  RoleName
	Invitee  RoleName
	Location Location
}

func (Invites) interactionNode() {}
func (i Invites) Loc() Location  { return i.Location }

// UpdatableContinue is DMst `continue L with { Update }`: in addition to
// looping to rec L, it carries an update body that the 1-unfolding safety
// check (spec §4.2 DMst) verifies is channel-disjoint from the recursion
// body it extends.
type UpdatableContinue struct {
	Label    Label
	Update   Interaction
	Location Location
}

func (UpdatableContinue) interactionNode() {}
func (u UpdatableContinue) Loc() Location  { return u.Location }

// Package render serializes a projected CFSM to the textual "local
// Scribble" notation: `!Msg(T) to q` for send, `?Msg(T) from p` for
// receive, `select {...} or {...}` for internal choice, `offer {...} or
// {...}` for external choice, and `goto <state>` for a state reached a
// second time (recursion is not rendered as `rec L {...}`).
// Round-trip is not required — this is a display artifact, walking the
// CFSM's transitions and emitting a line-oriented local-protocol
// notation.
package render

import (
	"fmt"
	"sort"
	"strings"

	"github.com/mpst-tools/dmst/ast"
	"github.com/mpst-tools/dmst/cfsm"
)

// Local renders c as an indented textual local protocol. Every reachable
// state is visited at most once; a state reached a second time (a
// recursion back-edge or a fork/join diamond rejoin) is rendered as
// `goto <state>` instead of being expanded again, so the output always
// terminates even though the CFSM itself may contain cycles.
func Local(c *cfsm.CFSM) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "local protocol %s(%s) at %s {\n", c.ProtocolName, joinRoles(c.Parameters), c.Role)
	w := &walker{cfsm: c, sb: &sb, visited: map[cfsm.StateID]bool{}}
	w.state(c.InitialState, 1)
	sb.WriteString("}\n")
	return sb.String()
}

type walker struct {
	cfsm    *cfsm.CFSM
	sb      *strings.Builder
	visited map[cfsm.StateID]bool
}

func (w *walker) indent(depth int) string { return strings.Repeat("  ", depth) }

func (w *walker) state(id cfsm.StateID, depth int) {
	if w.visited[id] {
		fmt.Fprintf(w.sb, "%sgoto %s;\n", w.indent(depth), id)
		return
	}
	w.visited[id] = true

	transitions := w.cfsm.OutTransitions(id)
	switch {
	case len(transitions) == 0:
		fmt.Fprintf(w.sb, "%send;\n", w.indent(depth))
	case isChoiceSet(transitions):
		w.choiceSet(transitions, depth)
	default:
		for _, t := range transitions {
			w.transition(t, depth)
		}
	}
}

// isChoiceSet reports whether every transition out of a state is a
// Choice (internal) or a Receive (external offer) action — the two forms
// rendered as `select`/`offer` blocks instead of a flat sequence.
func isChoiceSet(ts []*cfsm.Transition) bool {
	if len(ts) < 2 {
		return false
	}
	kind := ts[0].Action.Kind
	if kind != cfsm.ActionChoice && kind != cfsm.ActionReceive {
		return false
	}
	for _, t := range ts {
		if t.Action.Kind != kind {
			return false
		}
	}
	return true
}

func (w *walker) choiceSet(ts []*cfsm.Transition, depth int) {
	keyword := "offer"
	if ts[0].Action.Kind == cfsm.ActionChoice {
		keyword = "select"
	}
	for i, t := range ts {
		if i == 0 {
			fmt.Fprintf(w.sb, "%s%s {\n", w.indent(depth), keyword)
		} else {
			fmt.Fprintf(w.sb, "%s} or {\n", w.indent(depth))
		}
		w.transitionBody(t, depth+1)
	}
	fmt.Fprintf(w.sb, "%s}\n", w.indent(depth))
}

func (w *walker) transitionBody(t *cfsm.Transition, depth int) {
	switch t.Action.Kind {
	case cfsm.ActionChoice:
		fmt.Fprintf(w.sb, "%s// branch %s\n", w.indent(depth), t.Action.Choice.Branch)
	case cfsm.ActionReceive:
		r := t.Action.Receive
		fmt.Fprintf(w.sb, "%s?%s from %s;\n", w.indent(depth), messageStr(r.Message), r.From)
	}
	w.state(t.To, depth)
}

func (w *walker) transition(t *cfsm.Transition, depth int) {
	switch t.Action.Kind {
	case cfsm.ActionSend:
		s := t.Action.Send
		fmt.Fprintf(w.sb, "%s!%s to %s;\n", w.indent(depth), messageStr(s.Message), joinRoles(s.To))
	case cfsm.ActionReceive:
		r := t.Action.Receive
		fmt.Fprintf(w.sb, "%s?%s from %s;\n", w.indent(depth), messageStr(r.Message), r.From)
	case cfsm.ActionTau:
		// silent; no line emitted, just continue walking.
	case cfsm.ActionChoice:
		fmt.Fprintf(w.sb, "%sselect %s;\n", w.indent(depth), t.Action.Choice.Branch)
	case cfsm.ActionSubprotocolCall:
		call := t.Action.SubprotocolCall
		fmt.Fprintf(w.sb, "%sdo %s(%s);\n", w.indent(depth), call.Protocol, roleMappingStr(call.RoleMapping))
	case cfsm.ActionDMstCreate:
		cr := t.Action.Create
		fmt.Fprintf(w.sb, "%screates %s as %s;\n", w.indent(depth), cr.Role, cr.Instance)
	case cfsm.ActionDMstInvite:
		fmt.Fprintf(w.sb, "%sinvites %s;\n", w.indent(depth), t.Action.Invite.Who)
	case cfsm.ActionDMstUpdateMarker:
		fmt.Fprintf(w.sb, "%supdate;\n", w.indent(depth))
	}
	w.state(t.To, depth)
}

func messageStr(m ast.Message) string {
	if m.Payload == nil {
		return string(m.Label)
	}
	return fmt.Sprintf("%s(%s)", m.Label, typeStr(*m.Payload))
}

func typeStr(t ast.TypeExpr) string {
	if t.IsSimple() {
		return t.Name
	}
	args := make([]string, len(t.Args))
	for i, a := range t.Args {
		args[i] = typeStr(a)
	}
	return fmt.Sprintf("%s<%s>", t.Name, strings.Join(args, ","))
}

func joinRoles(roles []ast.RoleName) string {
	strs := make([]string, len(roles))
	for i, r := range roles {
		strs[i] = string(r)
	}
	return strings.Join(strs, ",")
}

func roleMappingStr(m map[ast.RoleName]ast.RoleName) string {
	keys := make([]ast.RoleName, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = fmt.Sprintf("%s=%s", k, m[k])
	}
	return strings.Join(parts, ",")
}

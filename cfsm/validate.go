package cfsm

import (
	"fmt"

	"github.com/mpst-tools/dmst/ast"
)

// Validate checks the structural post-conditions spec §4.3 requires of a
// freshly projected CFSM: every state reachable from q0, and every
// non-terminal state has at least one outgoing transition. It returns a
// human-readable problem list rather than an error, mirroring the
// verifier's "never throws, report problems as data" discipline (spec
// §4.2/§4.3).
func Validate(c *CFSM) []string {
	var problems []string

	reachable := map[StateID]bool{c.InitialState: true}
	queue := []StateID{c.InitialState}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		for _, t := range c.Out[cur] {
			if !reachable[t.To] {
				reachable[t.To] = true
				queue = append(queue, t.To)
			}
		}
	}
	for _, id := range c.StateOrder {
		if !reachable[id] {
			problems = append(problems, fmt.Sprintf("state %s unreachable from initial state %s", id, c.InitialState))
			continue
		}
		if !c.Terminal[id] && len(c.Out[id]) == 0 {
			problems = append(problems, fmt.Sprintf("non-terminal state %s has no outgoing transition", id))
		}
	}
	return problems
}

// ValidateDuality checks send/receive duality pairwise across a full
// projectAll result: for every send{to, message} transition in role p's
// CFSM, each recipient's CFSM must contain a matching receive{from: p,
// message} transition (spec §4.3 post-condition).
func ValidateDuality(reg Registry) []string {
	var problems []string
	for role, c := range reg {
		for _, t := range c.Transitions {
			if t.Action.Kind != ActionSend {
				continue
			}
			for _, to := range t.Action.Send.To {
				peer, ok := reg[to]
				if !ok {
					problems = append(problems, fmt.Sprintf("role %s sends to unknown role %s", role, to))
					continue
				}
				if !peerHasReceive(peer, role, t.Action.Send.Message.Label) {
					problems = append(problems, fmt.Sprintf("role %s sends %q to %s but %s has no matching receive", role, t.Action.Send.Message.Label, to, to))
				}
			}
		}
	}
	return problems
}

func peerHasReceive(c *CFSM, from ast.RoleName, label ast.Label) bool {
	for _, t := range c.Transitions {
		if t.Action.Kind == ActionReceive && t.Action.Receive.From == from && t.Action.Receive.Message.Label == label {
			return true
		}
	}
	return false
}

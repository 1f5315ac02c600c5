package ast

import (
	"encoding/json"
	"fmt"
)

// JSON (de)serialization for Protocol. The AST boundary (spec §6) is a
// consumer interface: an external surface-syntax parser is out of scope,
// but callers still need a concrete, language-neutral wire format to
// hand a parsed module to this package (the CLI in cmd/mpst reads this
// exact shape). Each Interaction variant is written as {"kind": "...",
// ...fields}, a tagged-struct encoding generalized here to the closed
// set of interaction kinds.

type wireProtocol struct {
	Name       ProtocolName `json:"name"`
	Roles      []RoleParam  `json:"roles"`
	TypeParams []string     `json:"typeParams,omitempty"`
	Body       json.RawMessage `json:"body"`
	Location   Location     `json:"location"`
}

type wireInteraction struct {
	Kind string `json:"kind"`

	Items     []json.RawMessage `json:"items,omitempty"`
	Sender    RoleName          `json:"sender,omitempty"`
	Receivers []RoleName        `json:"receivers,omitempty"`
	Message   *Message          `json:"message,omitempty"`
	Decider   RoleName          `json:"decider,omitempty"`
	Branches  []wireBranch      `json:"branches,omitempty"`
	Label     Label             `json:"label,omitempty"`
	Body      json.RawMessage   `json:"body,omitempty"`
	Protocol  ProtocolName      `json:"protocol,omitempty"`
	Arguments []RoleName        `json:"arguments,omitempty"`
	Role      RoleName          `json:"role,omitempty"`
	Creator   RoleName          `json:"creator,omitempty"`
	Inviter   RoleName          `json:"inviter,omitempty"`
	Invitee   RoleName          `json:"invitee,omitempty"`
	Update    json.RawMessage   `json:"update,omitempty"`

	Location Location `json:"location"`
}

type wireBranch struct {
	Body     json.RawMessage `json:"body"`
	Location Location        `json:"location"`
}

// MarshalJSON encodes p in the wire format documented above.
func (p Protocol) MarshalJSON() ([]byte, error) {
	body, err := marshalInteraction(p.Body)
	if err != nil {
		return nil, err
	}
	return json.Marshal(wireProtocol{
		Name:       p.Name,
		Roles:      p.Roles,
		TypeParams: p.TypeParams,
		Body:       body,
		Location:   p.Location,
	})
}

// UnmarshalJSON decodes p from the wire format documented above.
func (p *Protocol) UnmarshalJSON(data []byte) error {
	var w wireProtocol
	if err := json.Unmarshal(data, &w); err != nil {
		return fmt.Errorf("ast: decode protocol: %w", err)
	}
	body, err := unmarshalInteraction(w.Body)
	if err != nil {
		return err
	}
	p.Name = w.Name
	p.Roles = w.Roles
	p.TypeParams = w.TypeParams
	p.Body = body
	p.Location = w.Location
	return nil
}

func marshalInteraction(i Interaction) (json.RawMessage, error) {
	w := wireInteraction{Location: i.Loc()}
	switch v := i.(type) {
	case Sequence:
		w.Kind = "sequence"
		for _, item := range v.Items {
			raw, err := marshalInteraction(item)
			if err != nil {
				return nil, err
			}
			w.Items = append(w.Items, raw)
		}
	case MessageTransfer:
		w.Kind = "message"
		w.Sender = v.Sender
		w.Receivers = v.Receivers
		w.Message = &v.Message
	case Choice:
		w.Kind = "choice"
		w.Decider = v.Decider
		for _, b := range v.Branches {
			raw, err := marshalInteraction(b.Body)
			if err != nil {
				return nil, err
			}
			w.Branches = append(w.Branches, wireBranch{Body: raw, Location: b.Location})
		}
	case Parallel:
		w.Kind = "parallel"
		for _, b := range v.Branches {
			raw, err := marshalInteraction(b.Body)
			if err != nil {
				return nil, err
			}
			w.Branches = append(w.Branches, wireBranch{Body: raw, Location: b.Location})
		}
	case Recursion:
		w.Kind = "rec"
		w.Label = v.Label
		raw, err := marshalInteraction(v.Body)
		if err != nil {
			return nil, err
		}
		w.Body = raw
	case Continue:
		w.Kind = "continue"
		w.Label = v.Label
	case Do:
		w.Kind = "do"
		w.Protocol = v.Protocol
		w.Arguments = v.Arguments
	case NewRole:
		w.Kind = "newRole"
		w.Role = v.Role
	case CreatesRole:
		w.Kind = "creates"
		w.Creator = v.Creator
		w.Role = v.Role
	case Invites:
		w.Kind = "invites"
		w.Inviter = v.Inviter
		w.Invitee = v.Invitee
	case UpdatableContinue:
		w.Kind = "updatableContinue"
		w.Label = v.Label
		raw, err := marshalInteraction(v.Update)
		if err != nil {
			return nil, err
		}
		w.Update = raw
	default:
		return nil, fmt.Errorf("ast: unknown interaction type %T", i)
	}
	return json.Marshal(w)
}

func unmarshalInteraction(data json.RawMessage) (Interaction, error) {
	if len(data) == 0 || string(data) == "null" {
		return Sequence{}, nil
	}
	var w wireInteraction
	if err := json.Unmarshal(data, &w); err != nil {
		return nil, fmt.Errorf("ast: decode interaction: %w", err)
	}
	switch w.Kind {
	case "sequence":
		items := make([]Interaction, 0, len(w.Items))
		for _, raw := range w.Items {
			item, err := unmarshalInteraction(raw)
			if err != nil {
				return nil, err
			}
			items = append(items, item)
		}
		return Sequence{Items: items, Location: w.Location}, nil
	case "message":
		msg := Message{}
		if w.Message != nil {
			msg = *w.Message
		}
		return MessageTransfer{Sender: w.Sender, Receivers: w.Receivers, Message: msg, Location: w.Location}, nil
	case "choice":
		branches, err := unmarshalBranches(w.Branches)
		if err != nil {
			return nil, err
		}
		return Choice{Decider: w.Decider, Branches: branches, Location: w.Location}, nil
	case "parallel":
		branches, err := unmarshalBranches(w.Branches)
		if err != nil {
			return nil, err
		}
		return Parallel{Branches: branches, Location: w.Location}, nil
	case "rec":
		body, err := unmarshalInteraction(w.Body)
		if err != nil {
			return nil, err
		}
		return Recursion{Label: w.Label, Body: body, Location: w.Location}, nil
	case "continue":
		return Continue{Label: w.Label, Location: w.Location}, nil
	case "do":
		return Do{Protocol: w.Protocol, Arguments: w.Arguments, Location: w.Location}, nil
	case "newRole":
		return NewRole{Role: w.Role, Location: w.Location}, nil
	case "creates":
		return CreatesRole{Creator: w.Creator, Role: w.Role, Location: w.Location}, nil
	case "invites":
		return Invites{Inviter: w.Inviter, Invitee: w.Invitee, Location: w.Location}, nil
	case "updatableContinue":
		update, err := unmarshalInteraction(w.Update)
		if err != nil {
			return nil, err
		}
		return UpdatableContinue{Label: w.Label, Update: update, Location: w.Location}, nil
	default:
		return nil, fmt.Errorf("ast: unknown interaction kind %q", w.Kind)
	}
}

func unmarshalBranches(wbs []wireBranch) ([]Branch, error) {
	branches := make([]Branch, 0, len(wbs))
	for _, wb := range wbs {
		body, err := unmarshalInteraction(wb.Body)
		if err != nil {
			return nil, err
		}
		branches = append(branches, Branch{Body: body, Location: wb.Location})
	}
	return branches, nil
}

// Module is a JSON-serializable collection of protocol declarations —
// the unit the CLI reads from a file or stdin (spec §6 CLI surface).
type Module struct {
	Protocols []*Protocol `json:"protocols"`
}

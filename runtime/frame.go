package runtime

import (
	"github.com/mpst-tools/dmst/ast"
	"github.com/mpst-tools/dmst/cfsm"
)

// CallFrame is a scoped acquisition pushed on a subprotocol-call
// transition and popped on reaching that sub-protocol's terminal state
// (spec §3 "Runtime state", §9 Design Notes "Scoped resources"). A frame
// is popped only by [RETURN], on reaching the sub-protocol's terminal
// state; runtime cancellation leaves the call stack as it is.
type CallFrame struct {
	ParentCFSM  *cfsm.CFSM
	ReturnState cfsm.StateID
	RoleMapping map[ast.RoleName]ast.RoleName
	ProtocolName ast.ProtocolName
}

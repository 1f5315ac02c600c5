package cfg

import "fmt"

// BuildError is the single top-level error the builder returns when the
// AST is malformed beyond local recovery (spec §4.1, §7 "Structural
// errors"): a dangling continue or an unknown do/calls target. It is
// distinct from verify.Violation — those are reported for a CFG that
// built successfully but is not well-formed.
type BuildError struct {
	Kind    string // "unbound-label" | "unknown-protocol"
	Message string
}

func (e *BuildError) Error() string {
	return fmt.Sprintf("cfg build: %s: %s", e.Kind, e.Message)
}

func newUnboundLabelError(label string) error {
	return &BuildError{Kind: "unbound-label", Message: fmt.Sprintf("continue %q has no enclosing rec %q in scope", label, label)}
}

func newUnknownProtocolError(name string) error {
	return &BuildError{Kind: "unknown-protocol", Message: fmt.Sprintf("do/calls references unknown protocol %q", name)}
}

// Package obs provides the observability backbone for the CFSM runtime:
// an Emitter event bus following the observer pattern, Prometheus
// metrics, and OpenTelemetry tracing.
package obs

import "time"

// EventKind is the closed set of events a CFSMSimulator emits:
// step-start, step-end, transition-fired, send, receive, tau,
// choice, step-into, step-out, complete, blocked, deadlock, error,
// fatal-error, choice-required.
type EventKind string

const (
	StepStart       EventKind = "step-start"
	StepEnd         EventKind = "step-end"
	TransitionFired EventKind = "transition-fired"
	Send            EventKind = "send"
	Receive         EventKind = "receive"
	Tau             EventKind = "tau"
	Choice          EventKind = "choice"
	StepInto        EventKind = "step-into"
	StepOut         EventKind = "step-out"
	Complete        EventKind = "complete"
	Blocked         EventKind = "blocked"
	Deadlock        EventKind = "deadlock"
	Error           EventKind = "error"
	FatalError      EventKind = "fatal-error"
	ChoiceRequired  EventKind = "choice-required"
)

// Event is a single observability record emitted by a CFSMSimulator or
// the distributed coordinator.
type Event struct {
	RunID string
	Role  string
	Kind  EventKind

	// Step is the simulator's own step counter at the time of emission;
	// zero for run-level events (e.g. global deadlock).
	Step int

	// State/ToState identify the CFSM state transition, when applicable.
	State   string
	ToState string

	// Msg is a short human-readable description.
	Msg string

	// Meta carries event-kind-specific structured data (message label,
	// sender/receiver, violation kind, stuck role set, ...).
	Meta map[string]interface{}

	Timestamp time.Time
}

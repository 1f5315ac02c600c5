// Package runtime implements the CFSM Runtime of spec §4.4: autonomous
// per-role simulators that communicate through a pluggable transport,
// maintain a formal call stack for sub-protocols, and coordinate under
// either round-robin scheduling or concurrent execution with deadlock
// detection. CFSMSimulator is a single-owner step loop: it looks up the
// current state, decides enabled transitions, applies them, emits
// observability events, and records its trace in memory.
package runtime

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"github.com/google/uuid"

	"github.com/mpst-tools/dmst/ast"
	"github.com/mpst-tools/dmst/cfsm"
	"github.com/mpst-tools/dmst/config"
	"github.com/mpst-tools/dmst/obs"
	"github.com/mpst-tools/dmst/transport"
)

// StepResult is the structured, never-panicking outcome of one Step call
// (spec §4.4.1): Success is false for both benign (blocked,
// choice-required, max-steps-exceeded) and hard (Err != nil) outcomes —
// callers distinguish by checking Reason before Err.
type StepResult struct {
	Success    bool
	Reason     RecoverableReason
	Action     string
	Transition *cfsm.Transition
	Err        error
}

// CFSMSimulator is a single role's autonomous step loop. It owns its
// call stack, step counter, and trace, and advances strictly one
// transition at a time via Step — never panics.
type CFSMSimulator struct {
	RunID string
	Role  ast.RoleName

	rootCFSM     *cfsm.CFSM
	currentCFSM  *cfsm.CFSM
	currentState cfsm.StateID

	callStack []CallFrame
	resolver  *SubprotocolResolver
	subCache  map[ast.ProtocolName]*cfsm.CFSM

	transport transport.Transport
	cfg       *config.RuntimeConfig

	stepCount     int
	visited       []cfsm.StateID
	trace         []obs.Event
	pendingChoice *int
	rrCounter     int

	completed   bool
	lastBlocked bool
	lastErr     error
}

// NewCFSMSimulator constructs a simulator rooted at root's initial state.
// resolver may be nil if root's protocol contains no `do`/`calls`.
func NewCFSMSimulator(runID string, root *cfsm.CFSM, resolver *SubprotocolResolver, tr transport.Transport, cfg *config.RuntimeConfig) *CFSMSimulator {
	if cfg == nil {
		cfg, _ = config.New()
	}
	return &CFSMSimulator{
		RunID:        runID,
		Role:         root.Role,
		rootCFSM:     root,
		currentCFSM:  root,
		currentState: root.InitialState,
		resolver:     resolver,
		subCache:     map[ast.ProtocolName]*cfsm.CFSM{},
		transport:    tr,
		cfg:          cfg,
		visited:      []cfsm.StateID{root.InitialState},
	}
}

// Step advances the simulator by one unit, following spec §4.4.1's
// sequence: check terminal/[RETURN], compute enabled transitions, resolve
// a choice among them if needed, fire it.
func (s *CFSMSimulator) Step(ctx context.Context) StepResult {
	start := time.Now()
	s.emit(obs.StepStart, "", nil)
	res := s.step(ctx)
	s.lastBlocked = res.Reason == ReasonBlocked
	s.recordLatency(start, res)
	s.emit(obs.StepEnd, string(res.Reason), nil)
	return res
}

func (s *CFSMSimulator) step(ctx context.Context) StepResult {
	if s.completed {
		return StepResult{Success: false, Reason: ReasonComplete}
	}
	if ctx != nil && ctx.Err() != nil {
		return StepResult{Success: false, Err: ctx.Err()}
	}
	if s.stepCount >= s.cfg.MaxSteps {
		return StepResult{Success: false, Reason: ReasonMaxStepsExceeded}
	}

	// Rule [RETURN].
	if s.currentCFSM.IsTerminal(s.currentState) {
		if len(s.callStack) > 0 {
			frame := s.callStack[len(s.callStack)-1]
			s.callStack = s.callStack[:len(s.callStack)-1]
			s.currentCFSM = frame.ParentCFSM
			s.currentState = frame.ReturnState
			s.stepCount++
			s.emit(obs.StepOut, string(frame.ProtocolName), nil)
			return StepResult{Success: true, Action: "step-out"}
		}
		s.completed = true
		s.emit(obs.Complete, "", nil)
		return StepResult{Success: true, Action: "complete"}
	}

	outs := s.currentCFSM.OutTransitions(s.currentState)
	var enabled []*cfsm.Transition
	hasReceive := false
	for _, t := range outs {
		if t.Action.Kind == cfsm.ActionReceive {
			hasReceive = true
			if s.matchesReceive(t) {
				enabled = append(enabled, t)
			}
			continue
		}
		enabled = append(enabled, t)
	}

	if len(enabled) == 0 {
		if hasReceive {
			s.emit(obs.Blocked, "", nil)
			return StepResult{Success: false, Reason: ReasonBlocked}
		}
		return StepResult{Success: false, Err: fmt.Errorf("runtime: state %s has no enabled transitions", s.currentState)}
	}

	var chosen *cfsm.Transition
	if len(enabled) > 1 && s.cfg.ChoiceStrategy == config.ChoiceManual {
		if s.pendingChoice == nil {
			s.emit(obs.ChoiceRequired, "", map[string]interface{}{"options": len(enabled)})
			return StepResult{Success: false, Reason: ReasonChoiceRequired}
		}
		idx := *s.pendingChoice
		s.pendingChoice = nil
		if idx < 0 || idx >= len(enabled) {
			return StepResult{Success: false, Err: fmt.Errorf("runtime: choice index %d out of range [0,%d)", idx, len(enabled))}
		}
		chosen = enabled[idx]
	} else {
		chosen = s.selectTransition(enabled)
	}

	return s.fire(chosen)
}

// matchesReceive reports whether t's receive is enabled: the transport
// has a message queued from t's (role-substituted) sender whose label
// matches (spec §4.4.1 step 2(b)).
func (s *CFSMSimulator) matchesReceive(t *cfsm.Transition) bool {
	from := s.resolveRole(t.Action.Receive.From)
	msg, ok := s.transport.Peek(from, s.Role)
	if !ok {
		return false
	}
	return msg.Label == t.Action.Receive.Message.Label
}

// resolveRole translates a role name in the vocabulary of the currently
// active CFSM (which may be a sub-protocol's, using its own formal role
// names) down to the root-level actual role name, by walking the call
// stack from innermost to outermost applying each frame's formal->actual
// RoleMapping (spec §4.3 "Role substitution for sub-protocols").
func (s *CFSMSimulator) resolveRole(r ast.RoleName) ast.RoleName {
	for i := len(s.callStack) - 1; i >= 0; i-- {
		if actual, ok := s.callStack[i].RoleMapping[r]; ok {
			r = actual
		}
	}
	return r
}

func (s *CFSMSimulator) selectTransition(enabled []*cfsm.Transition) *cfsm.Transition {
	switch s.cfg.ChoiceStrategy {
	case config.ChoiceRandom:
		return enabled[rand.Intn(len(enabled))]
	case config.ChoiceRoundRobin:
		idx := s.rrCounter % len(enabled)
		s.rrCounter++
		return enabled[idx]
	default:
		return enabled[0]
	}
}

// SelectTransition records the choice for the next Step call in manual
// mode (spec §4.4.1 "selectTransition(i) — set pendingChoice for the
// next step()").
func (s *CFSMSimulator) SelectTransition(i int) {
	idx := i
	s.pendingChoice = &idx
}

func (s *CFSMSimulator) fire(t *cfsm.Transition) StepResult {
	a := t.Action
	switch a.Kind {
	case cfsm.ActionSend:
		for _, to := range a.Send.To {
			actual := s.resolveRole(to)
			msg := transport.Message{
				ID:      uuid.NewString(),
				From:    s.Role,
				To:      actual,
				Label:   a.Send.Message.Label,
				Payload: a.Send.Message.Payload,
			}
			if err := s.transport.Send(msg); err != nil {
				return StepResult{Success: false, Err: &FatalError{Kind: FatalTransportFailure, Message: err.Error()}}
			}
		}
		s.emit(obs.Send, string(a.Send.Message.Label), map[string]interface{}{"to": a.Send.To})

	case cfsm.ActionReceive:
		from := s.resolveRole(a.Receive.From)
		msg, ok := s.transport.TryReceive(from, s.Role)
		if !ok {
			// Lost the race between matchesReceive's peek and now
			// (only possible with a concurrent driver); report blocked
			// rather than silently misfiring.
			return StepResult{Success: false, Reason: ReasonBlocked}
		}
		s.emit(obs.Receive, string(msg.Label), map[string]interface{}{"from": a.Receive.From})

	case cfsm.ActionTau:
		s.emit(obs.Tau, "", nil)

	case cfsm.ActionChoice:
		s.emit(obs.Choice, string(a.Choice.Branch), map[string]interface{}{"branch": a.Choice.Branch})

	case cfsm.ActionSubprotocolCall:
		if err := s.enterSubprotocol(a.SubprotocolCall); err != nil {
			return StepResult{Success: false, Err: err}
		}
		s.stepCount++
		s.emit(obs.StepInto, string(a.SubprotocolCall.Protocol), nil)
		return StepResult{Success: true, Action: "step-into", Transition: t}

	case cfsm.ActionDMstCreate:
		s.emit(obs.TransitionFired, "create", map[string]interface{}{"role": a.Create.Role})

	case cfsm.ActionDMstInvite:
		s.emit(obs.TransitionFired, "invite", map[string]interface{}{"who": a.Invite.Who})

	case cfsm.ActionDMstUpdateMarker:
		s.emit(obs.TransitionFired, "update-marker", nil)

	default:
		return StepResult{Success: false, Err: fmt.Errorf("runtime: unknown action kind %v", a.Kind)}
	}

	s.currentState = t.To
	s.visited = append(s.visited, t.To)
	s.stepCount++
	s.emit(obs.TransitionFired, string(a.Kind), nil)
	return StepResult{Success: true, Action: string(a.Kind), Transition: t}
}

// enterSubprotocol applies Rule [CALL] (spec §4.4.1 step 6): look up the
// sub-protocol CFSM for this role via the substituted role mapping, push
// a call frame, and switch currentCFSM/currentState to the sub-protocol's
// q0.
func (s *CFSMSimulator) enterSubprotocol(call *cfsm.SubprotocolCall) error {
	formal := formalRoleFor(call.RoleMapping, s.Role)
	if formal == "" {
		return &FatalError{Kind: FatalUnknownSubprotocol, Message: fmt.Sprintf("role %s not present in call mapping for %s", s.Role, call.Protocol)}
	}
	sub, ok := s.subCache[call.Protocol]
	if !ok {
		if s.resolver == nil {
			return &FatalError{Kind: FatalUnknownSubprotocol, Message: fmt.Sprintf("no resolver configured for sub-protocol %s", call.Protocol)}
		}
		var err error
		sub, err = s.resolver.Resolve(call.Protocol, formal)
		if err != nil {
			return &FatalError{Kind: FatalUnknownSubprotocol, Message: err.Error(), Details: map[string]interface{}{"protocol": string(call.Protocol)}}
		}
		s.subCache[call.Protocol] = sub
	}
	s.callStack = append(s.callStack, CallFrame{
		ParentCFSM:   s.currentCFSM,
		ReturnState:  call.ReturnState,
		RoleMapping:  call.RoleMapping,
		ProtocolName: call.Protocol,
	})
	s.currentCFSM = sub
	s.currentState = sub.InitialState
	s.visited = append(s.visited, sub.InitialState)
	return nil
}

// DeliverMessage enqueues m through the simulator's transport, onto the
// (m.From, m.To) queue (spec §4.4.1 "deliverMessage(m)"). It needs a
// non-nil transport.
func (s *CFSMSimulator) DeliverMessage(m transport.Message) error {
	return s.transport.Send(m)
}

func (s *CFSMSimulator) emit(kind obs.EventKind, msg string, meta map[string]interface{}) {
	ev := obs.Event{
		RunID:     s.RunID,
		Role:      string(s.Role),
		Kind:      kind,
		Step:      s.stepCount,
		State:     string(s.currentState),
		Msg:       msg,
		Meta:      meta,
		Timestamp: time.Now(),
	}
	if s.cfg.RecordTrace {
		s.trace = append(s.trace, ev)
	}
	if s.cfg.Emitter != nil {
		s.cfg.Emitter.Emit(ev)
	}
}

func (s *CFSMSimulator) recordLatency(start time.Time, res StepResult) {
	if s.cfg.Metrics == nil {
		return
	}
	status := "success"
	switch {
	case res.Err != nil:
		status = "error"
	case !res.Success:
		status = "blocked"
	}
	s.cfg.Metrics.RecordStep(string(s.Role), time.Since(start), status)
}

// ReadyToStep reports whether the next Step call would not block, without
// mutating any state: true if the simulator is already complete, if the
// current state is terminal (a step would pop a call frame or finish the
// run), or if at least one outgoing transition from the current state is
// enabled.
// Used by DistributedSimulator to pick a runnable role each tick without
// relying on a stale result from the previous Step call.
func (s *CFSMSimulator) ReadyToStep() bool {
	if s.completed {
		return true
	}
	if s.currentCFSM.IsTerminal(s.currentState) {
		return true
	}
	for _, t := range s.currentCFSM.OutTransitions(s.currentState) {
		if t.Action.Kind != cfsm.ActionReceive {
			return true
		}
		if s.matchesReceive(t) {
			return true
		}
	}
	return false
}

// IsComplete reports whether the simulator has reached the root
// protocol's terminal state with an empty call stack.
func (s *CFSMSimulator) IsComplete() bool { return s.completed }

// IsBlocked reports whether the most recent Step returned ReasonBlocked.
func (s *CFSMSimulator) IsBlocked() bool { return !s.completed && s.lastBlocked }

// GetState returns the current CFSM state id (of currentCFSM, which may
// be a sub-protocol's during a call).
func (s *CFSMSimulator) GetState() cfsm.StateID { return s.currentState }

// GetTrace returns the recorded event trace (empty unless
// config.WithRecordTrace(true) was set).
func (s *CFSMSimulator) GetTrace() []obs.Event { return s.trace }

// CallDepth returns the number of active sub-protocol call frames.
func (s *CFSMSimulator) CallDepth() int { return len(s.callStack) }

// StepCount returns the number of transitions fired so far.
func (s *CFSMSimulator) StepCount() int { return s.stepCount }

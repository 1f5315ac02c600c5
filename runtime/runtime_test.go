package runtime_test

import (
	"context"
	"testing"

	"github.com/mpst-tools/dmst/ast"
	"github.com/mpst-tools/dmst/cfg"
	"github.com/mpst-tools/dmst/cfsm"
	"github.com/mpst-tools/dmst/config"
	"github.com/mpst-tools/dmst/project"
	"github.com/mpst-tools/dmst/registry"
	"github.com/mpst-tools/dmst/runtime"
	"github.com/mpst-tools/dmst/transport"
	"github.com/mpst-tools/dmst/verify"
)

func msg(label string) ast.Message { return ast.Message{Label: ast.Label(label)} }

func projectAllVerified(t *testing.T, reg *registry.Registry, proto *ast.Protocol) cfsm.Registry {
	t.Helper()
	g, _, err := cfg.NewBuilder(reg).Build(proto)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	d := verify.Verify(g)
	if !d.OK {
		t.Fatalf("expected well-formed CFG, got: %v", d.Violations)
	}
	all, err := project.New(reg).ProjectAll(g)
	if err != nil {
		t.Fatalf("ProjectAll: %v", err)
	}
	return all
}

func newSimulators(t *testing.T, all cfsm.Registry, tr transport.Transport, cfgr *config.RuntimeConfig) map[ast.RoleName]*runtime.CFSMSimulator {
	t.Helper()
	sims := make(map[ast.RoleName]*runtime.CFSMSimulator, len(all))
	for role, c := range all {
		sims[role] = runtime.NewCFSMSimulator("test-run", c, nil, tr, cfgr)
	}
	return sims
}

// TestRequestResponseScheduledRun covers Scenario 1 (spec §8): a
// round-robin scheduled run over Client/Server terminates successfully
// with exactly 4 global steps (send, receive, send, receive).
func TestRequestResponseScheduledRun(t *testing.T) {
	proto := &ast.Protocol{
		Name:  "ReqResp",
		Roles: []ast.RoleParam{{Name: "Client"}, {Name: "Server"}},
		Body: ast.Sequence{Items: []ast.Interaction{
			ast.MessageTransfer{Sender: "Client", Receivers: []ast.RoleName{"Server"}, Message: msg("Request")},
			ast.MessageTransfer{Sender: "Server", Receivers: []ast.RoleName{"Client"}, Message: msg("Response")},
		}},
	}
	reg := registry.New()
	all := projectAllVerified(t, reg, proto)

	tr := transport.New(transport.NoDelay{}, false)
	cfgr, err := config.New(config.WithRoleScheduling(config.SchedulingRoundRobin))
	if err != nil {
		t.Fatalf("config.New: %v", err)
	}
	sims := newSimulators(t, all, tr, cfgr)

	res := runtime.NewDistributedSimulator(sims, config.SchedulingRoundRobin).Run(context.Background())
	if !res.Success {
		t.Fatalf("expected successful run, got err=%v", res.Err)
	}
	if res.GlobalSteps != 4 {
		t.Fatalf("expected 4 global steps, got %d", res.GlobalSteps)
	}
	for role, sim := range sims {
		if !sim.IsComplete() {
			t.Fatalf("expected role %s to complete", role)
		}
	}
}

// TestDeadlockDetection covers Scenario 3 (spec §8): both roles start
// with a receive they can never satisfy (A waits on B, B waits on A,
// with no corresponding sends queued), so the coordinator must report a
// deadlock rather than spin forever.
func TestDeadlockDetection(t *testing.T) {
	a := cfsm.New("A", "Deadlocked", []ast.RoleName{"A", "B"})
	a.AddState("s0", "")
	a.AddState("s1", "")
	a.Terminal["s1"] = true
	a.InitialState = "s0"
	a.AddTransition("s0", "s1", cfsm.Action{
		Kind:    cfsm.ActionReceive,
		Receive: &cfsm.Receive{From: "B", Message: msg("Start")},
	})

	b := cfsm.New("B", "Deadlocked", []ast.RoleName{"A", "B"})
	b.AddState("s0", "")
	b.AddState("s1", "")
	b.Terminal["s1"] = true
	b.InitialState = "s0"
	b.AddTransition("s0", "s1", cfsm.Action{
		Kind:    cfsm.ActionReceive,
		Receive: &cfsm.Receive{From: "A", Message: msg("Ack")},
	})

	tr := transport.New(transport.NoDelay{}, false)
	cfgr, err := config.New()
	if err != nil {
		t.Fatalf("config.New: %v", err)
	}
	sims := map[ast.RoleName]*runtime.CFSMSimulator{
		"A": runtime.NewCFSMSimulator("deadlock-run", a, nil, tr, cfgr),
		"B": runtime.NewCFSMSimulator("deadlock-run", b, nil, tr, cfgr),
	}

	res := runtime.NewDistributedSimulator(sims, config.SchedulingRoundRobin).Run(context.Background())
	if res.Success {
		t.Fatalf("expected deadlock, got success")
	}
	fe, ok := res.Err.(*runtime.FatalError)
	if !ok {
		t.Fatalf("expected *runtime.FatalError, got %T: %v", res.Err, res.Err)
	}
	if fe.Kind != runtime.FatalDeadlock {
		t.Fatalf("expected FatalDeadlock, got %v", fe.Kind)
	}
}

// TestSubprotocolCallStepInto covers Scenario 5 (spec §8): at the
// subprotocol-call transition, the simulator pushes a call frame,
// switches into Sub's projection, executes it fully, and pops back to
// resume in Main — all the way to both protocols' terminal states.
func TestSubprotocolCallStepInto(t *testing.T) {
	sub := &ast.Protocol{
		Name:  "Sub",
		Roles: []ast.RoleParam{{Name: "X"}, {Name: "Y"}},
		Body: ast.Sequence{Items: []ast.Interaction{
			ast.MessageTransfer{Sender: "X", Receivers: []ast.RoleName{"Y"}, Message: msg("Hello")},
			ast.MessageTransfer{Sender: "Y", Receivers: []ast.RoleName{"X"}, Message: msg("Hi")},
		}},
	}
	main := &ast.Protocol{
		Name:  "Main",
		Roles: []ast.RoleParam{{Name: "A"}, {Name: "B"}},
		Body: ast.Sequence{Items: []ast.Interaction{
			ast.MessageTransfer{Sender: "A", Receivers: []ast.RoleName{"B"}, Message: msg("Go")},
			ast.Do{Protocol: "Sub", Arguments: []ast.RoleName{"A", "B"}},
			ast.MessageTransfer{Sender: "A", Receivers: []ast.RoleName{"B"}, Message: msg("End")},
		}},
	}
	reg, err := registry.FromProtocols([]*ast.Protocol{main, sub})
	if err != nil {
		t.Fatalf("FromProtocols: %v", err)
	}

	builder := cfg.NewBuilder(reg)
	mainG, _, err := builder.Build(main)
	if err != nil {
		t.Fatalf("Build(Main): %v", err)
	}
	subG, _, err := builder.Build(sub)
	if err != nil {
		t.Fatalf("Build(Sub): %v", err)
	}
	if d := verify.Verify(mainG); !d.OK {
		t.Fatalf("Main not well-formed: %v", d.Violations)
	}
	if d := verify.Verify(subG); !d.OK {
		t.Fatalf("Sub not well-formed: %v", d.Violations)
	}

	proj := project.New(reg)
	mainCFSMs, err := proj.ProjectAll(mainG)
	if err != nil {
		t.Fatalf("ProjectAll(Main): %v", err)
	}

	resolver := runtime.NewSubprotocolResolver(reg, map[ast.ProtocolName]*cfg.Graph{"Sub": subG})
	tr := transport.New(transport.NoDelay{}, false)
	cfgr, err := config.New()
	if err != nil {
		t.Fatalf("config.New: %v", err)
	}
	sims := map[ast.RoleName]*runtime.CFSMSimulator{
		"A": runtime.NewCFSMSimulator("sub-run", mainCFSMs["A"], resolver, tr, cfgr),
		"B": runtime.NewCFSMSimulator("sub-run", mainCFSMs["B"], resolver, tr, cfgr),
	}

	res := runtime.NewDistributedSimulator(sims, config.SchedulingRoundRobin).Run(context.Background())
	if !res.Success {
		t.Fatalf("expected successful run, got err=%v", res.Err)
	}
	for role, sim := range sims {
		if !sim.IsComplete() {
			t.Fatalf("expected role %s to complete", role)
		}
		if sim.CallDepth() != 0 {
			t.Fatalf("expected role %s to have popped every call frame, depth=%d", role, sim.CallDepth())
		}
	}
}

// TestMaxStepsExceeded covers the recoverable runtime error class (spec
// §7 "max-steps-exceeded"): an unbounded recursion with an artificially
// tiny step budget must stop rather than loop forever.
func TestMaxStepsExceeded(t *testing.T) {
	proto := &ast.Protocol{
		Name:  "Loop",
		Roles: []ast.RoleParam{{Name: "A"}, {Name: "B"}},
		Body: ast.Recursion{Label: "L", Body: ast.Sequence{Items: []ast.Interaction{
			ast.MessageTransfer{Sender: "A", Receivers: []ast.RoleName{"B"}, Message: msg("Ping")},
			ast.Continue{Label: "L"},
		}}},
	}
	reg := registry.New()
	g, _, err := cfg.NewBuilder(reg).Build(proto)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	all, err := project.New(reg).ProjectAll(g)
	if err != nil {
		t.Fatalf("ProjectAll: %v", err)
	}

	tr := transport.New(transport.NoDelay{}, false)
	cfgr, err := config.New(config.WithMaxSteps(3))
	if err != nil {
		t.Fatalf("config.New: %v", err)
	}
	sims := newSimulators(t, all, tr, cfgr)

	res := runtime.NewDistributedSimulator(sims, config.SchedulingRoundRobin).Run(context.Background())
	if res.Success {
		t.Fatalf("expected the run to stop on max-steps, got unconditional success")
	}
}

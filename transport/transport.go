// Package transport implements the pluggable Transport abstraction of spec
// §4.4.2: an in-memory FIFO queue per directed (sender, receiver) role
// pair, with an optional configurable delivery delay. It is the single
// shared mutable resource in the concurrency model (spec §5) — every
// mutation goes through Send/TryReceive/Receive, internally guarded by a
// single mutex shared by every directed pair's queue.
package transport

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/mpst-tools/dmst/ast"
)

// Message is a single queued datum: `{id, from, to, label, payload?,
// timestamp}` (spec §3 Transport data model).
type Message struct {
	ID        string
	From      ast.RoleName
	To        ast.RoleName
	Label     ast.Label
	Payload   *ast.TypeExpr
	Timestamp time.Time
}

// DelayPolicy samples a delivery delay for one message. Transport never
// calls it more than once per Send.
type DelayPolicy interface {
	Sample() time.Duration
}

// NoDelay delivers synchronously, the default policy.
type NoDelay struct{}

// Sample implements DelayPolicy.
func (NoDelay) Sample() time.Duration { return 0 }

// Fixed delivers after exactly Duration.
type Fixed time.Duration

// Sample implements DelayPolicy.
func (f Fixed) Sample() time.Duration { return time.Duration(f) }

// Range delivers after a duration sampled uniformly from [Lo, Hi].
type Range struct {
	Lo, Hi time.Duration
}

// Sample implements DelayPolicy.
func (r Range) Sample() time.Duration {
	if r.Hi <= r.Lo {
		return r.Lo
	}
	span := r.Hi - r.Lo
	return r.Lo + time.Duration(rand.Int63n(int64(span)))
}

// Microtask delivers after a one-microsecond delay: Send hands the
// enqueue to a separate goroutine, so a step() call that sends and then
// immediately checks for the message will not observe it; no later step
// is guaranteed to see it either, only that it lands once the goroutine
// has run.
type Microtask struct{}

// Sample implements DelayPolicy.
func (Microtask) Sample() time.Duration { return time.Microsecond }

// ErrFIFOViolation is raised by the optional FIFO verifier mode when a
// transport implementation (not this in-memory one, which is FIFO by
// construction) delivers messages to a receiver out of enqueue order for
// a fixed sender (spec §4.4.2 Theorem 5.3).
type ErrFIFOViolation struct {
	From, To ast.RoleName
}

func (e *ErrFIFOViolation) Error() string {
	return fmt.Sprintf("transport: fifo violation on channel %s->%s", e.From, e.To)
}

// Transport is the interface the CFSM runtime depends on (spec §4.4.2).
type Transport interface {
	// Send enqueues msg on the (msg.From, msg.To) FIFO, applying the
	// configured delay policy before the message becomes visible.
	Send(msg Message) error

	// Peek non-destructively reports the head of the (from, to) queue, if
	// any, without consuming it. Used by step() to decide whether a
	// receive transition is enabled before committing to fire it.
	Peek(from, to ast.RoleName) (Message, bool)

	// TryReceive non-blockingly pops the head of the (from, to) queue if
	// present. This is the primitive step() uses once it has decided to
	// fire a receive transition (spec §4.4.1).
	TryReceive(from, to ast.RoleName) (Message, bool)

	// Receive blocks until some message addressed to `to` is available
	// (from any sender; cross-sender ordering is unspecified per spec),
	// then consumes and returns it. Used by callers without a step-wise
	// simulator driving them directly.
	Receive(ctx context.Context, to ast.RoleName) (Message, error)

	// PendingFor is a non-destructive peek count of all messages queued
	// for `to` across every sender.
	PendingFor(to ast.RoleName) int

	// TotalPending is the global queued-message count, used by the
	// distributed coordinator's deadlock detector (spec §4.4.3).
	TotalPending() int
}

type pairKey struct {
	from, to ast.RoleName
}

// InMemory is the reference Transport: one FIFO slice per directed role
// pair guarded by a single mutex (spec §5 permits "one lock per directed
// pair (fine-grained) or one global lock (simple implementations)"; this
// implementation takes the simple-global-lock option, matching the scale
// of the protocols this module projects).
type InMemory struct {
	mu     sync.Mutex
	queues map[pairKey][]Message
	cond   *sync.Cond

	delay      DelayPolicy
	verifyFIFO bool
	lastSeen   map[pairKey]time.Time
	fifoErr    error

	pending sync.WaitGroup
}

// New returns an InMemory transport. delay is the policy applied to every
// Send; pass NoDelay{} for synchronous delivery. verifyFIFO turns on the
// optional runtime FIFO checker (spec §4.4.2).
func New(delay DelayPolicy, verifyFIFO bool) *InMemory {
	if delay == nil {
		delay = NoDelay{}
	}
	t := &InMemory{
		queues:     make(map[pairKey][]Message),
		delay:      delay,
		verifyFIFO: verifyFIFO,
		lastSeen:   make(map[pairKey]time.Time),
	}
	t.cond = sync.NewCond(&t.mu)
	return t
}

// Send implements Transport.
func (t *InMemory) Send(msg Message) error {
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	if msg.Timestamp.IsZero() {
		msg.Timestamp = time.Now()
	}
	d := t.delay.Sample()
	t.pending.Add(1)
	deliver := func() {
		defer t.pending.Done()
		t.mu.Lock()
		key := pairKey{msg.From, msg.To}
		t.queues[key] = append(t.queues[key], msg)
		t.mu.Unlock()
		t.cond.Broadcast()
	}
	if d <= 0 {
		deliver()
		return nil
	}
	go func() {
		time.Sleep(d)
		deliver()
	}()
	return nil
}

// Peek implements Transport.
func (t *InMemory) Peek(from, to ast.RoleName) (Message, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	q := t.queues[pairKey{from, to}]
	if len(q) == 0 {
		return Message{}, false
	}
	return q[0], true
}

// TryReceive implements Transport.
func (t *InMemory) TryReceive(from, to ast.RoleName) (Message, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	key := pairKey{from, to}
	q := t.queues[key]
	if len(q) == 0 {
		return Message{}, false
	}
	msg := q[0]
	t.queues[key] = q[1:]
	t.checkFIFOLocked(key, msg)
	return msg, true
}

// checkFIFOLocked must be called with t.mu held.
func (t *InMemory) checkFIFOLocked(key pairKey, msg Message) {
	if !t.verifyFIFO {
		return
	}
	if last, ok := t.lastSeen[key]; ok && msg.Timestamp.Before(last) {
		t.fifoErr = &ErrFIFOViolation{From: key.from, To: key.to}
	}
	t.lastSeen[key] = msg.Timestamp
}

// FIFOError returns the first FIFO violation observed, if verifyFIFO is
// enabled and one has occurred.
func (t *InMemory) FIFOError() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.fifoErr
}

// Receive implements Transport.
func (t *InMemory) Receive(ctx context.Context, to ast.RoleName) (Message, error) {
	done := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			t.cond.Broadcast()
		case <-done:
		}
	}()
	defer close(done)

	t.mu.Lock()
	defer t.mu.Unlock()
	for {
		if ctx.Err() != nil {
			return Message{}, ctx.Err()
		}
		for key, q := range t.queues {
			if key.to != to || len(q) == 0 {
				continue
			}
			msg := q[0]
			t.queues[key] = q[1:]
			t.checkFIFOLocked(key, msg)
			return msg, nil
		}
		t.cond.Wait()
	}
}

// PendingFor implements Transport.
func (t *InMemory) PendingFor(to ast.RoleName) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	n := 0
	for key, q := range t.queues {
		if key.to == to {
			n += len(q)
		}
	}
	return n
}

// TotalPending implements Transport.
func (t *InMemory) TotalPending() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	n := 0
	for _, q := range t.queues {
		n += len(q)
	}
	return n
}

// Quiesce blocks until every in-flight delayed Send has been delivered
// into its queue. Used by tests that configure a non-zero DelayPolicy
// and need a deterministic point to inspect queue state.
func (t *InMemory) Quiesce() {
	t.pending.Wait()
}

// Package config loads CLI/runtime configuration for the CFSM runtime
// through a functional-options constructor: an accumulate-then-freeze
// RuntimeConfig built from With* constructors rather than a struct
// literal with public mutable fields, so that validation happens at
// construction time.
package config

import (
	"fmt"
	"time"

	"github.com/mpst-tools/dmst/obs"
	"github.com/mpst-tools/dmst/transport"
)

// RoleScheduling selects which role's turn it is next in Mode A
// (scheduled) runs (spec §4.4 "DistributedSimulator(cfsms,
// {scheduling: round-robin|random|fair, ...})").
type RoleScheduling string

const (
	SchedulingRoundRobin RoleScheduling = "round-robin"
	SchedulingRandom     RoleScheduling = "random"
	SchedulingFair       RoleScheduling = "fair"
)

// ChoiceStrategy selects among multiple simultaneously-enabled
// transitions within a single simulator's step() (spec §4.4.1 "select by
// the configured strategy (first | random | round-robin)"), plus the
// "manual" mode that surfaces a choice-required event for an external
// driver to resolve via SelectTransition.
type ChoiceStrategy string

const (
	ChoiceFirst      ChoiceStrategy = "first"
	ChoiceRandom     ChoiceStrategy = "random"
	ChoiceRoundRobin ChoiceStrategy = "round-robin"
	ChoiceManual     ChoiceStrategy = "manual"
)

// RuntimeConfig is the frozen result of applying a list of Options. Its
// fields are accessed read-only by runtime/ once construction completes:
// a mutable builder produces an immutable result.
type RuntimeConfig struct {
	MaxSteps       int
	RoleScheduling RoleScheduling
	ChoiceStrategy ChoiceStrategy
	TransportDelay transport.DelayPolicy
	VerifyFIFO     bool
	Emitter        obs.Emitter
	Metrics        *obs.Metrics
	PollInterval   time.Duration
	RecordTrace    bool
}

// Option mutates a RuntimeConfig under construction; returning an error
// aborts New with that error.
type Option func(*RuntimeConfig) error

// New applies opts over the documented defaults (MaxSteps=10000,
// round-robin role scheduling, "first" choice strategy, synchronous
// transport delivery, NullEmitter, 10ms poll interval) and returns the
// frozen RuntimeConfig.
func New(opts ...Option) (*RuntimeConfig, error) {
	cfg := &RuntimeConfig{
		MaxSteps:       10000,
		RoleScheduling: SchedulingRoundRobin,
		ChoiceStrategy: ChoiceFirst,
		TransportDelay: transport.NoDelay{},
		Emitter:        obs.NewNullEmitter(),
		PollInterval:   10 * time.Millisecond,
	}
	for _, opt := range opts {
		if err := opt(cfg); err != nil {
			return nil, err
		}
	}
	return cfg, nil
}

// WithMaxSteps bounds a simulator's step count (spec §4.4.1
// "max-steps-exceeded"); guards recursion with no exit branch.
func WithMaxSteps(n int) Option {
	return func(c *RuntimeConfig) error {
		if n <= 0 {
			return fmt.Errorf("config: MaxSteps must be positive, got %d", n)
		}
		c.MaxSteps = n
		return nil
	}
}

// WithRoleScheduling sets Mode A's per-tick role selection strategy.
func WithRoleScheduling(s RoleScheduling) Option {
	return func(c *RuntimeConfig) error {
		switch s {
		case SchedulingRoundRobin, SchedulingRandom, SchedulingFair:
			c.RoleScheduling = s
			return nil
		default:
			return fmt.Errorf("config: unknown RoleScheduling %q", s)
		}
	}
}

// WithChoiceStrategy sets how a single simulator resolves multiple
// simultaneously-enabled transitions.
func WithChoiceStrategy(s ChoiceStrategy) Option {
	return func(c *RuntimeConfig) error {
		switch s {
		case ChoiceFirst, ChoiceRandom, ChoiceRoundRobin, ChoiceManual:
			c.ChoiceStrategy = s
			return nil
		default:
			return fmt.Errorf("config: unknown ChoiceStrategy %q", s)
		}
	}
}

// WithTransportDelay sets the delay policy new transports are built
// with.
func WithTransportDelay(d transport.DelayPolicy) Option {
	return func(c *RuntimeConfig) error {
		if d == nil {
			return fmt.Errorf("config: nil DelayPolicy")
		}
		c.TransportDelay = d
		return nil
	}
}

// WithVerifyFIFO turns on the transport's optional FIFO-ordering checker.
func WithVerifyFIFO(enabled bool) Option {
	return func(c *RuntimeConfig) error { c.VerifyFIFO = enabled; return nil }
}

// WithEmitter sets the observability event sink.
func WithEmitter(e obs.Emitter) Option {
	return func(c *RuntimeConfig) error {
		if e == nil {
			return fmt.Errorf("config: nil Emitter")
		}
		c.Emitter = e
		return nil
	}
}

// WithMetrics attaches a Prometheus metrics collector.
func WithMetrics(m *obs.Metrics) Option {
	return func(c *RuntimeConfig) error { c.Metrics = m; return nil }
}

// WithPollInterval sets Mode B's watcher goroutine poll cadence.
func WithPollInterval(d time.Duration) Option {
	return func(c *RuntimeConfig) error {
		if d <= 0 {
			return fmt.Errorf("config: PollInterval must be positive, got %v", d)
		}
		c.PollInterval = d
		return nil
	}
}

// WithRecordTrace enables per-simulator event-trace recording, returned
// in the coordinator's Result (spec §4.4 "Result{success, globalSteps,
// traces, error}").
func WithRecordTrace(enabled bool) Option {
	return func(c *RuntimeConfig) error { c.RecordTrace = enabled; return nil }
}

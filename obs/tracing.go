package obs

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Tracer implements Emitter by turning each Event into its own short
// OpenTelemetry span named after the event kind, with one span event per
// entry of the event's Meta map.
type Tracer struct {
	tracer trace.Tracer
}

// NewTracer wraps an OpenTelemetry tracer, e.g. otel.Tracer("mpst").
func NewTracer(tracer trace.Tracer) *Tracer {
	return &Tracer{tracer: tracer}
}

// Emit starts-and-ends a span representing ev. Step-bracketing events
// (StepStart/StepEnd) would ordinarily open/close a single span across
// the pair; since Emit receives events one at a time with no call
// correlation beyond RunID+Role+Step, each event is recorded as its own
// short span carrying that correlation as attributes, which keeps this
// type stateless and safe for concurrent simulators.
func (t *Tracer) Emit(ev Event) {
	_, span := t.tracer.Start(context.Background(), string(ev.Kind))
	defer span.End()

	span.SetAttributes(
		attribute.String("run_id", ev.RunID),
		attribute.String("role", ev.Role),
		attribute.Int("step", ev.Step),
	)
	if ev.State != "" {
		span.SetAttributes(attribute.String("state", ev.State))
	}
	if ev.ToState != "" {
		span.SetAttributes(attribute.String("to_state", ev.ToState))
	}
	for k, v := range ev.Meta {
		span.AddEvent(ev.Msg, trace.WithAttributes(attribute.String(k, toString(v))))
	}
	switch ev.Kind {
	case Error, FatalError, Deadlock:
		span.SetStatus(codes.Error, ev.Msg)
	default:
		span.SetStatus(codes.Ok, ev.Msg)
	}
}

// EmitBatch records every event in order.
func (t *Tracer) EmitBatch(_ context.Context, events []Event) error {
	for _, ev := range events {
		t.Emit(ev)
	}
	return nil
}

// Flush is a no-op: spans end synchronously in Emit; exporters configured
// on the underlying TracerProvider own their own batching/flush policy.
func (t *Tracer) Flush(context.Context) error { return nil }

func toString(v interface{}) string {
	if s, ok := v.(string); ok {
		return s
	}
	if x, ok := v.(fmt.Stringer); ok {
		return x.String()
	}
	return fmt.Sprintf("%v", v)
}

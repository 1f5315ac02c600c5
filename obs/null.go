package obs

import "context"

// NullEmitter discards every event. Used as the zero-value default for
// runtime configurations that don't care about observability (spec §5
// "no shared mutable graph state" extends naturally to "no observability
// side effects unless asked for").
type NullEmitter struct{}

// NewNullEmitter returns an Emitter that does nothing.
func NewNullEmitter() *NullEmitter { return &NullEmitter{} }

// Emit implements Emitter.
func (*NullEmitter) Emit(Event) {}

// EmitBatch implements Emitter.
func (*NullEmitter) EmitBatch(context.Context, []Event) error { return nil }

// Flush implements Emitter.
func (*NullEmitter) Flush(context.Context) error { return nil }

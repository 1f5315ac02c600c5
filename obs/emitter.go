package obs

import "context"

// Emitter receives and processes observability events from the CFSM
// runtime: a single Emit/EmitBatch/Flush trio, so the same emitter can
// back a CLI logger, an OTel span exporter, or a Prometheus counter
// without the runtime depending on any of them directly.
//
// Implementations must not block simulator execution and must not
// panic; errors are logged internally, never propagated to the caller.
type Emitter interface {
	// Emit sends a single event to the configured backend.
	Emit(event Event)

	// EmitBatch sends multiple events in one operation, preserving
	// happened-before order.
	EmitBatch(ctx context.Context, events []Event) error

	// Flush ensures all buffered events are delivered; safe to call
	// multiple times.
	Flush(ctx context.Context) error
}

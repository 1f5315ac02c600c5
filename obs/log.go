package obs

import (
	"context"

	"github.com/sirupsen/logrus"
)

// LogEmitter implements Emitter by writing structured log lines through
// logrus (spec SPEC_FULL §7 "Logging throughout ... uses
// github.com/sirupsen/logrus structured fields"), one field per Event
// attribute, mirroring how cfg/verify/project log build-time warnings and
// violations.
type LogEmitter struct {
	log *logrus.Logger
}

// NewLogEmitter wraps an existing *logrus.Logger. Pass logrus.StandardLogger()
// to use the package-level default.
func NewLogEmitter(log *logrus.Logger) *LogEmitter {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &LogEmitter{log: log}
}

// Emit implements Emitter.
func (e *LogEmitter) Emit(ev Event) {
	entry := e.log.WithFields(logrus.Fields{
		"run_id": ev.RunID,
		"role":   ev.Role,
		"kind":   ev.Kind,
		"step":   ev.Step,
	})
	if ev.State != "" {
		entry = entry.WithField("state", ev.State)
	}
	if ev.ToState != "" {
		entry = entry.WithField("to_state", ev.ToState)
	}
	for k, v := range ev.Meta {
		entry = entry.WithField(k, v)
	}
	switch ev.Kind {
	case Error, FatalError, Deadlock:
		entry.Error(ev.Msg)
	default:
		entry.Debug(ev.Msg)
	}
}

// EmitBatch implements Emitter by emitting each event in order.
func (e *LogEmitter) EmitBatch(_ context.Context, events []Event) error {
	for _, ev := range events {
		e.Emit(ev)
	}
	return nil
}

// Flush is a no-op: logrus writes synchronously.
func (e *LogEmitter) Flush(context.Context) error { return nil }

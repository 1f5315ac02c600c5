package tracestore

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/mpst-tools/dmst/obs"
)

// eventRow is obs.Event's wire shape for the SQL-backed stores: Meta is
// stored as a JSON blob since its value type (map[string]interface{})
// varies by event kind.
type eventRow struct {
	Kind      string `json:"kind"`
	Step      int    `json:"step"`
	State     string `json:"state"`
	ToState   string `json:"to_state"`
	Msg       string `json:"msg"`
	Meta      string `json:"meta"`
	Timestamp int64  `json:"timestamp"`
}

func encodeEvent(ev obs.Event) (string, error) {
	meta, err := json.Marshal(ev.Meta)
	if err != nil {
		return "", fmt.Errorf("tracestore: marshal event meta: %w", err)
	}
	row := eventRow{
		Kind:      string(ev.Kind),
		Step:      ev.Step,
		State:     ev.State,
		ToState:   ev.ToState,
		Msg:       ev.Msg,
		Meta:      string(meta),
		Timestamp: ev.Timestamp.UnixNano(),
	}
	b, err := json.Marshal(row)
	if err != nil {
		return "", fmt.Errorf("tracestore: marshal event row: %w", err)
	}
	return string(b), nil
}

func decodeEvent(runID, role string, data string) (obs.Event, error) {
	var row eventRow
	if err := json.Unmarshal([]byte(data), &row); err != nil {
		return obs.Event{}, fmt.Errorf("tracestore: unmarshal event row: %w", err)
	}
	var meta map[string]interface{}
	if row.Meta != "" && row.Meta != "null" {
		if err := json.Unmarshal([]byte(row.Meta), &meta); err != nil {
			return obs.Event{}, fmt.Errorf("tracestore: unmarshal event meta: %w", err)
		}
	}
	return obs.Event{
		RunID:     runID,
		Role:      role,
		Kind:      obs.EventKind(row.Kind),
		Step:      row.Step,
		State:     row.State,
		ToState:   row.ToState,
		Msg:       row.Msg,
		Meta:      meta,
		Timestamp: time.Unix(0, row.Timestamp),
	}, nil
}

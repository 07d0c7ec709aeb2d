package selection

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

// Event is one control signal for the Reconciler. Exactly one of Clear,
// Checklist, LegendToggle or LegendSnapshot.
type Event interface {
	event()
}

// Clear empties the selection and the materialized cells.
type Clear struct{}

// Checklist replaces the chosen set with the checked names.
type Checklist struct {
	Value []string `json:"value"`
}

// LegendToggle flips the visibility of one chart trace.
type LegendToggle struct {
	// TraceIndex is the 0-based trace position; trace i is "Cell {i+1}".
	TraceIndex int `json:"trace_index"`

	// Hidden is true when the trace was switched to legend-only.
	Hidden bool `json:"hidden"`
}

// LegendSnapshot reports the visibility of every trace at once, aligned to
// the materialized cell order. It replaces the hidden set wholesale.
type LegendSnapshot struct {
	Hidden []bool `json:"hidden"`
}

func (Clear) event()          {}
func (Checklist) event()      {}
func (LegendToggle) event()   {}
func (LegendSnapshot) event() {}

// EventName returns a short name for logs.
func EventName(ev Event) string {
	switch ev.(type) {
	case Clear:
		return "clear"
	case Checklist:
		return "checklist"
	case LegendToggle:
		return "legend_toggle"
	case LegendSnapshot:
		return "legend_snapshot"
	default:
		return fmt.Sprintf("%T", ev)
	}
}

// legendOnly is the chart's marker for a trace listed in the legend but not drawn.
const legendOnly = "legendonly"

// ErrInvalidRestyle is returned when a restyle payload cannot be decoded.
var ErrInvalidRestyle = errors.New("invalid restyle payload")

// DecodeRestyle turns a chart restyle payload, [{"visible": [...]}, [indices]],
// into a LegendToggle when the visibility list has one element and into a
// LegendSnapshot otherwise. A "legendonly" entry means hidden; anything else
// means shown.
func DecodeRestyle(data []byte) (Event, error) {
	var payload []json.RawMessage
	if err := json.Unmarshal(data, &payload); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRestyle, err)
	}
	if len(payload) == 0 {
		return nil, fmt.Errorf("%w: empty payload", ErrInvalidRestyle)
	}

	var update struct {
		Visible json.RawMessage `json:"visible"`
	}
	if err := json.Unmarshal(payload[0], &update); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRestyle, err)
	}
	if len(update.Visible) == 0 {
		return nil, fmt.Errorf("%w: no visible update", ErrInvalidRestyle)
	}

	flags, err := decodeVisible(update.Visible)
	if err != nil {
		return nil, err
	}

	if len(flags) != 1 {
		return LegendSnapshot{Hidden: flags}, nil
	}

	var indices []int
	if len(payload) > 1 {
		if err := json.Unmarshal(payload[1], &indices); err != nil {
			return nil, fmt.Errorf("%w: trace indices: %v", ErrInvalidRestyle, err)
		}
	}
	if len(indices) == 0 {
		return nil, fmt.Errorf("%w: single visibility update without trace index", ErrInvalidRestyle)
	}
	if indices[0] < 0 {
		return nil, fmt.Errorf("%w: negative trace index %d", ErrInvalidRestyle, indices[0])
	}
	return LegendToggle{TraceIndex: indices[0], Hidden: flags[0]}, nil
}

// decodeVisible accepts a list of visibility values or a bare single value.
func decodeVisible(raw json.RawMessage) ([]bool, error) {
	raw = bytes.TrimSpace(raw)
	var values []any
	if len(raw) > 0 && raw[0] == '[' {
		if err := json.Unmarshal(raw, &values); err != nil {
			return nil, fmt.Errorf("%w: visible: %v", ErrInvalidRestyle, err)
		}
	} else {
		var v any
		if err := json.Unmarshal(raw, &v); err != nil {
			return nil, fmt.Errorf("%w: visible: %v", ErrInvalidRestyle, err)
		}
		values = []any{v}
	}

	flags := make([]bool, len(values))
	for i, v := range values {
		s, ok := v.(string)
		flags[i] = ok && s == legendOnly
	}
	return flags, nil
}

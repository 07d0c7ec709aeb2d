// Package selection keeps the chosen and visible cell sets consistent across
// checklist edits, chart legend clicks and clear actions.
//
// The chosen set is what the user checked. The hidden set remembers which
// names the user switched off in the legend; it survives checklist edits and
// re-selections. The visible set is always chosen minus hidden and is never
// stored on its own.
package selection

import (
	"errors"
	"fmt"
	"slices"

	"github.com/nvandessel/simdash/internal/series"
)

// ErrUnknownEvent is returned by Apply for an Event it does not handle.
var ErrUnknownEvent = errors.New("unknown selection event")

// State is a copy of the reconciler's sets.
type State struct {
	Cells   []string `json:"cells"`
	Chosen  []string `json:"chosen"`
	Visible []string `json:"visible"`
	Hidden  []string `json:"hidden"`
}

// Reconciler is the selection state machine. It is not safe for concurrent
// use; callers serialize access per session.
type Reconciler struct {
	cells  []string
	chosen []string
	hidden []string
}

// New returns a reconciler with no materialized cells.
func New() *Reconciler {
	return &Reconciler{}
}

// Reseed installs a new materialized cell list, e.g. after a new series was
// selected. Every cell becomes chosen; hidden names carry over by name.
func (r *Reconciler) Reseed(cells []string) {
	r.cells = dedup(cells)
	r.chosen = slices.Clone(r.cells)
}

// Apply runs one event through the state machine.
func (r *Reconciler) Apply(ev Event) error {
	switch e := ev.(type) {
	case Clear:
		r.cells = nil
		r.chosen = nil
		r.hidden = nil

	case Checklist:
		r.chosen = r.filter(e.Value)

	case LegendToggle:
		if e.TraceIndex < 0 {
			return fmt.Errorf("trace index %d out of range", e.TraceIndex)
		}
		name := series.CellName(e.TraceIndex + 1)
		if e.Hidden {
			if !slices.Contains(r.hidden, name) {
				r.hidden = append(r.hidden, name)
			}
		} else {
			r.hidden = slices.DeleteFunc(r.hidden, func(h string) bool { return h == name })
		}

	case LegendSnapshot:
		hidden := make([]string, 0, len(e.Hidden))
		for i, h := range e.Hidden {
			if h && i < len(r.cells) {
				hidden = append(hidden, r.cells[i])
			}
		}
		r.hidden = hidden

	default:
		return fmt.Errorf("%w: %T", ErrUnknownEvent, ev)
	}
	return nil
}

// Cells returns the materialized cell names.
func (r *Reconciler) Cells() []string {
	return slices.Clone(r.cells)
}

// Chosen returns the chosen names in materialized order.
func (r *Reconciler) Chosen() []string {
	return slices.Clone(r.chosen)
}

// Hidden returns the names hidden through the legend, including names not
// currently materialized.
func (r *Reconciler) Hidden() []string {
	return slices.Clone(r.hidden)
}

// Visible returns chosen minus hidden, in materialized order.
func (r *Reconciler) Visible() []string {
	visible := make([]string, 0, len(r.chosen))
	for _, name := range r.chosen {
		if !slices.Contains(r.hidden, name) {
			visible = append(visible, name)
		}
	}
	return visible
}

// IsVisible reports whether name is in the visible set.
func (r *Reconciler) IsVisible(name string) bool {
	return slices.Contains(r.chosen, name) && !slices.Contains(r.hidden, name)
}

// State returns a copy of all sets.
func (r *Reconciler) State() State {
	return State{
		Cells:   r.Cells(),
		Chosen:  r.Chosen(),
		Visible: r.Visible(),
		Hidden:  r.Hidden(),
	}
}

// filter keeps the materialized names present in value, in materialized order.
func (r *Reconciler) filter(value []string) []string {
	out := make([]string, 0, len(value))
	for _, name := range r.cells {
		if slices.Contains(value, name) {
			out = append(out, name)
		}
	}
	return out
}

func dedup(names []string) []string {
	out := make([]string, 0, len(names))
	for _, n := range names {
		if !slices.Contains(out, n) {
			out = append(out, n)
		}
	}
	return out
}

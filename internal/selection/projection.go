package selection

import (
	"github.com/nvandessel/simdash/internal/constants"
	"github.com/nvandessel/simdash/internal/series"
)

// Trace is the render descriptor of one cell.
type Trace struct {
	Name       string               `json:"name"`
	Xs         []float64            `json:"xs"`
	Ys         []float64            `json:"ys"`
	Visibility constants.Visibility `json:"visibility"`
}

// Projection is what the line chart and its checklist display.
type Projection struct {
	Traces []Trace `json:"traces"`
	XTitle string  `json:"x_title"`
	YTitle string  `json:"y_title"`

	// Options lists every materialized cell name.
	Options []string `json:"options"`

	// Value is the checklist value, equal to the visible set.
	Value []string `json:"value"`

	Hidden []string `json:"hidden"`
}

// Project renders the reconciler state over s. Only cells the reconciler
// knows about produce traces, so the projection is empty after Clear.
func Project(r *Reconciler, s *series.Series) Projection {
	p := Projection{
		Traces:  []Trace{},
		Options: r.Cells(),
		Value:   r.Visible(),
		Hidden:  r.Hidden(),
	}
	if s == nil || len(p.Options) == 0 {
		return p
	}

	p.XTitle = s.XTitle()
	p.YTitle = s.YTitle()
	for _, name := range p.Options {
		c, ok := s.Cell(name)
		if !ok {
			continue
		}
		vis := constants.VisibilityLegendOnly
		if r.IsVisible(name) {
			vis = constants.VisibilityShown
		}
		p.Traces = append(p.Traces, Trace{
			Name:       c.Name,
			Xs:         s.Xs,
			Ys:         c.Ys,
			Visibility: vis,
		})
	}
	return p
}

// VisibleCells returns the cells of s in the visible set, in materialized order.
func VisibleCells(r *Reconciler, s *series.Series) []series.Cell {
	if s == nil {
		return nil
	}
	var out []series.Cell
	for _, c := range s.Cells {
		if r.IsVisible(c.Name) {
			out = append(out, c)
		}
	}
	return out
}

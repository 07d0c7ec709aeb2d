package series

import (
	"fmt"

	"github.com/nvandessel/simdash/internal/results"
)

// Heatmap is a cells × positions view of one selection.
type Heatmap struct {
	// X is the interpolated channel axis.
	X []float64 `json:"x"`

	// Y holds the cell enumeration values.
	Y []float64 `json:"y"`

	// Z has one row per cell, one column per X position.
	Z [][]float64 `json:"z"`

	XTitle string `json:"x_title"`
	YTitle string `json:"y_title"`
	ZTitle string `json:"z_title"`
}

// BuildHeatmap builds the heatmap for sel. The Z matrix is zero-filled when
// nothing is selected or a branch lacks a sub-series.
func BuildHeatmap(tree *results.Tree, sel Selection, opts Options) (*Heatmap, error) {
	opts = opts.withDefaults()

	s, err := Materialize(tree, sel, opts)
	if err != nil {
		return nil, err
	}

	cells, err := results.LeafAt(tree, opts.CellsKey)
	if err != nil {
		return nil, fmt.Errorf("reading cell enumeration: %w", err)
	}

	h := &Heatmap{
		X:      s.Xs,
		Y:      cells.Vector(),
		Z:      make([][]float64, len(s.Cells)),
		XTitle: s.XTitle(),
		YTitle: axisTitle(opts.CellsKey, cells.Units),
		ZTitle: s.YTitle(),
	}
	for i, c := range s.Cells {
		h.Z[i] = c.Ys
	}
	return h, nil
}

// Package series turns a selected result-tree path into per-cell line data
// over the interpolated channel axis.
package series

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/nvandessel/simdash/internal/constants"
	"github.com/nvandessel/simdash/internal/results"
)

// Options names the well-known series the materializer reads besides the
// selected one.
type Options struct {
	// AxisKey addresses the node coordinates along the channel.
	AxisKey string `json:"axis_key" yaml:"axis_key"`

	// CellsKey addresses the cell enumeration, used to size zero-filled output.
	CellsKey string `json:"cells_key" yaml:"cells_key"`
}

// DefaultOptions returns the stock series names of the simulation output.
func DefaultOptions() Options {
	return Options{
		AxisKey:  constants.DefaultAxisKey,
		CellsKey: constants.DefaultCellsKey,
	}
}

func (o Options) withDefaults() Options {
	d := DefaultOptions()
	if o.AxisKey == "" {
		o.AxisKey = d.AxisKey
	}
	if o.CellsKey == "" {
		o.CellsKey = d.CellsKey
	}
	return o
}

// Selection is a one- or two-level path into the local result tree.
type Selection struct {
	Primary   string `json:"primary"`
	Secondary string `json:"secondary,omitempty"`
}

// IsZero reports whether nothing has been selected yet.
func (s Selection) IsZero() bool {
	return s.Primary == ""
}

// Label joins the path for display, e.g. "Temperature - Coolant".
func (s Selection) Label() string {
	if s.Secondary == "" {
		return s.Primary
	}
	return s.Primary + " - " + s.Secondary
}

// Cell is the y data of one discrete cell of the stack.
type Cell struct {
	// Index is the 1-based cell number.
	Index int `json:"index"`

	// Name is the display name, "Cell {Index}".
	Name string `json:"name"`

	Ys []float64 `json:"ys"`

	// Batch is the accumulation batch the cell was last appended in; 0 when
	// it has not been appended.
	Batch int `json:"batch,omitempty"`
}

// Series is one materialized selection.
type Series struct {
	Selection Selection `json:"selection"`
	Xs        []float64 `json:"xs"`
	XLabel    string    `json:"x_label"`
	XUnits    string    `json:"x_units"`
	Cells     []Cell    `json:"cells"`
	YLabel    string    `json:"y_label"`
	YUnits    string    `json:"y_units"`
}

// XTitle is the x-axis title, "{axis} / {units}".
func (s *Series) XTitle() string {
	return axisTitle(s.XLabel, s.XUnits)
}

// YTitle is the y-axis title, "{primary} [- {secondary}] / {units}".
func (s *Series) YTitle() string {
	return axisTitle(s.YLabel, s.YUnits)
}

// Names returns the cell display names in materialized order.
func (s *Series) Names() []string {
	if s == nil {
		return nil
	}
	names := make([]string, len(s.Cells))
	for i, c := range s.Cells {
		names[i] = c.Name
	}
	return names
}

// Cell returns the cell with the given display name.
func (s *Series) Cell(name string) (Cell, bool) {
	if s == nil {
		return Cell{}, false
	}
	for _, c := range s.Cells {
		if c.Name == name {
			return c, true
		}
	}
	return Cell{}, false
}

// CellName returns the display name of the 1-based cell i.
func CellName(i int) string {
	return "Cell " + strconv.Itoa(i)
}

// CellNumber extracts the cell number from a display name or column id,
// e.g. "Cell 12" or "Cell 12-3" both yield 12.
func CellNumber(name string) (int, bool) {
	rest, ok := strings.CutPrefix(name, "Cell ")
	if !ok {
		return 0, false
	}
	if i := strings.Index(rest, constants.AppendSeparator); i >= 0 {
		rest = rest[:i]
	}
	n, err := strconv.Atoi(rest)
	if err != nil || n < 1 {
		return 0, false
	}
	return n, true
}

// Interpolate resamples node coordinates to element mid-points:
// x'[i] = (x[i] + x[i+1]) / 2. N nodes yield N-1 points. Inputs shorter than
// two are returned as a copy.
func Interpolate(xs []float64) []float64 {
	if len(xs) < 2 {
		return append([]float64{}, xs...)
	}
	out := make([]float64, len(xs)-1)
	for i := range out {
		out[i] = (xs[i] + xs[i+1]) / 2
	}
	return out
}

// Materialize builds the per-cell series for sel. An empty selection, or a
// branch selected without a sub-series, yields zero-filled cells rather than
// an error. Missing keys fail with results.ErrKeyNotFound.
func Materialize(tree *results.Tree, sel Selection, opts Options) (*Series, error) {
	opts = opts.withDefaults()

	nodes, axisUnits, err := results.Axis(tree, opts.AxisKey)
	if err != nil {
		return nil, fmt.Errorf("reading axis: %w", err)
	}
	xs := Interpolate(nodes)

	if sel.Secondary != "" && !results.IsBranch(tree, sel.Primary) {
		// Secondary keys on a leaf are ignored.
		sel.Secondary = ""
	}

	s := &Series{
		Selection: sel,
		Xs:        xs,
		XLabel:    opts.AxisKey,
		XUnits:    axisUnits,
		YLabel:    sel.Label(),
	}

	leaf, err := selectedLeaf(tree, sel)
	if err != nil {
		return nil, err
	}
	if leaf == nil {
		s.Cells = zeroCells(cellCount(tree, opts), len(xs))
		return s, nil
	}

	s.YUnits = leaf.Units
	rows := leaf.Rows()
	if leaf.Dims() < 2 {
		rows = [][]float64{leaf.Vector()}
	}
	s.Cells = make([]Cell, len(rows))
	for i, ys := range rows {
		s.Cells[i] = Cell{Index: i + 1, Name: CellName(i + 1), Ys: ys}
	}
	return s, nil
}

// selectedLeaf resolves sel, returning nil for the zero-filled cases.
func selectedLeaf(tree *results.Tree, sel Selection) (*results.Leaf, error) {
	if sel.Primary == "" {
		return nil, nil
	}
	if !results.IsBranch(tree, sel.Primary) {
		return results.LeafAt(tree, sel.Primary)
	}
	if sel.Secondary == "" {
		return nil, nil
	}
	return results.SubLeaf(tree, sel.Primary, sel.Secondary)
}

func cellCount(tree *results.Tree, opts Options) int {
	leaf, err := results.LeafAt(tree, opts.CellsKey)
	if err != nil {
		return 1
	}
	if n := len(leaf.Vector()); n > 0 {
		return n
	}
	return 1
}

func zeroCells(n, width int) []Cell {
	cells := make([]Cell, n)
	for i := range cells {
		cells[i] = Cell{Index: i + 1, Name: CellName(i + 1), Ys: make([]float64, width)}
	}
	return cells
}

func axisTitle(label, units string) string {
	if units == "" {
		return label
	}
	return label + " / " + units
}

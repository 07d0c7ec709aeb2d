package series

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/nvandessel/simdash/internal/results"
)

func testTree() *results.Tree {
	tree := results.NewTree()
	tree.Set("Channel Location", results.NewVector([]float64{0, 0.5, 1.0, 1.5}, "m"))
	tree.Set("Cells", results.NewVector([]float64{1, 2}, "-"))
	tree.Set("Current Density", results.NewMatrix([][]float64{{10, 11, 12}, {20, 21, 22}}, "A/m²"))
	tree.Set("Pressure", results.NewVector([]float64{5, 4, 3}, "Pa"))
	tree.Set("Stack Voltage", results.NewScalar(12.5, "V"))

	temp := results.NewBranch()
	temp.Set("Membrane", results.NewMatrix([][]float64{{300, 301, 302}, {303, 304, 305}}, "K"))
	tree.Set("Temperature", temp)
	return tree
}

func TestInterpolate(t *testing.T) {
	tests := []struct {
		name string
		in   []float64
		want []float64
	}{
		{"midpoints", []float64{0, 1, 3}, []float64{0.5, 2}},
		{"single", []float64{7}, []float64{7}},
		{"empty", nil, []float64{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if diff := cmp.Diff(tt.want, Interpolate(tt.in)); diff != "" {
				t.Errorf("Interpolate() mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestCellNumber(t *testing.T) {
	tests := []struct {
		in     string
		want   int
		wantOK bool
	}{
		{"Cell 1", 1, true},
		{"Cell 12-3", 12, true},
		{"Cell 0", 0, false},
		{"Channel Location", 0, false},
		{"Cell x", 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, ok := CellNumber(tt.in)
			if got != tt.want || ok != tt.wantOK {
				t.Errorf("CellNumber(%q) = %d, %v, want %d, %v", tt.in, got, ok, tt.want, tt.wantOK)
			}
		})
	}
}

func TestMaterialize_Matrix(t *testing.T) {
	s, err := Materialize(testTree(), Selection{Primary: "Current Density"}, DefaultOptions())
	if err != nil {
		t.Fatalf("Materialize() error = %v", err)
	}

	want := []Cell{
		{Index: 1, Name: "Cell 1", Ys: []float64{10, 11, 12}},
		{Index: 2, Name: "Cell 2", Ys: []float64{20, 21, 22}},
	}
	if diff := cmp.Diff(want, s.Cells); diff != "" {
		t.Errorf("Cells mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]float64{0.25, 0.75, 1.25}, s.Xs); diff != "" {
		t.Errorf("Xs mismatch (-want +got):\n%s", diff)
	}
	if s.XTitle() != "Channel Location / m" {
		t.Errorf("XTitle() = %q", s.XTitle())
	}
	if s.YTitle() != "Current Density / A/m²" {
		t.Errorf("YTitle() = %q", s.YTitle())
	}
}

func TestMaterialize_Shapes(t *testing.T) {
	tests := []struct {
		name      string
		sel       Selection
		wantCells int
		wantYs    []float64
		wantTitle string
	}{
		{"vector is one cell", Selection{Primary: "Pressure"}, 1, []float64{5, 4, 3}, "Pressure / Pa"},
		{"scalar is one value", Selection{Primary: "Stack Voltage"}, 1, []float64{12.5}, "Stack Voltage / V"},
		{"branch with sub", Selection{Primary: "Temperature", Secondary: "Membrane"}, 2, []float64{300, 301, 302}, "Temperature - Membrane / K"},
		{"secondary ignored on leaf", Selection{Primary: "Pressure", Secondary: "x"}, 1, []float64{5, 4, 3}, "Pressure / Pa"},
		{"nothing selected", Selection{}, 2, []float64{0, 0, 0}, ""},
		{"branch without sub", Selection{Primary: "Temperature"}, 2, []float64{0, 0, 0}, "Temperature"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, err := Materialize(testTree(), tt.sel, Options{})
			if err != nil {
				t.Fatalf("Materialize() error = %v", err)
			}
			if len(s.Cells) != tt.wantCells {
				t.Fatalf("len(Cells) = %d, want %d", len(s.Cells), tt.wantCells)
			}
			if diff := cmp.Diff(tt.wantYs, s.Cells[0].Ys); diff != "" {
				t.Errorf("Cells[0].Ys mismatch (-want +got):\n%s", diff)
			}
			if s.YTitle() != tt.wantTitle {
				t.Errorf("YTitle() = %q, want %q", s.YTitle(), tt.wantTitle)
			}
		})
	}
}

func TestMaterialize_ZeroFillWithoutCells(t *testing.T) {
	tree := results.NewTree()
	tree.Set("Channel Location", results.NewVector([]float64{0, 1}, "m"))

	s, err := Materialize(tree, Selection{}, DefaultOptions())
	if err != nil {
		t.Fatalf("Materialize() error = %v", err)
	}
	if diff := cmp.Diff([]string{"Cell 1"}, s.Names()); diff != "" {
		t.Errorf("Names() mismatch (-want +got):\n%s", diff)
	}
}

func TestMaterialize_Errors(t *testing.T) {
	tests := []struct {
		name string
		tree *results.Tree
		sel  Selection
	}{
		{"missing primary", testTree(), Selection{Primary: "Voltage"}},
		{"missing secondary", testTree(), Selection{Primary: "Temperature", Secondary: "Anode"}},
		{"missing axis", results.NewTree(), Selection{Primary: "Pressure"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Materialize(tt.tree, tt.sel, DefaultOptions())
			if !errors.Is(err, results.ErrKeyNotFound) {
				t.Errorf("Materialize() error = %v, want ErrKeyNotFound", err)
			}
		})
	}
}

func TestSeries_CellLookup(t *testing.T) {
	s, _ := Materialize(testTree(), Selection{Primary: "Current Density"}, DefaultOptions())

	c, ok := s.Cell("Cell 2")
	if !ok || c.Index != 2 {
		t.Errorf("Cell(Cell 2) = %+v, %v", c, ok)
	}
	if _, ok := s.Cell("Cell 9"); ok {
		t.Error("Cell(Cell 9) found a cell")
	}

	var nilSeries *Series
	if nilSeries.Names() != nil {
		t.Error("nil Series Names() != nil")
	}
}

func TestBuildHeatmap(t *testing.T) {
	h, err := BuildHeatmap(testTree(), Selection{Primary: "Temperature", Secondary: "Membrane"}, DefaultOptions())
	if err != nil {
		t.Fatalf("BuildHeatmap() error = %v", err)
	}

	want := &Heatmap{
		X:      []float64{0.25, 0.75, 1.25},
		Y:      []float64{1, 2},
		Z:      [][]float64{{300, 301, 302}, {303, 304, 305}},
		XTitle: "Channel Location / m",
		YTitle: "Cells / -",
		ZTitle: "Temperature - Membrane / K",
	}
	if diff := cmp.Diff(want, h); diff != "" {
		t.Errorf("BuildHeatmap() mismatch (-want +got):\n%s", diff)
	}
}

func TestBuildHeatmap_RequiresCells(t *testing.T) {
	tree := results.NewTree()
	tree.Set("Channel Location", results.NewVector([]float64{0, 1}, "m"))
	tree.Set("Pressure", results.NewVector([]float64{1}, "Pa"))

	if _, err := BuildHeatmap(tree, Selection{Primary: "Pressure"}, DefaultOptions()); !errors.Is(err, results.ErrKeyNotFound) {
		t.Errorf("BuildHeatmap() error = %v, want ErrKeyNotFound", err)
	}
}

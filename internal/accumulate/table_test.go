package accumulate

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func snapshot(index []float64, cells ...SeriesColumn) Snapshot {
	chosen := make([]string, len(cells))
	for i, c := range cells {
		chosen[i] = c.Name
	}
	return Snapshot{IndexName: "Channel Location", Index: index, Chosen: chosen, Cells: cells}
}

func col(name string, values ...float64) SeriesColumn {
	return SeriesColumn{Name: name, Values: values}
}

func columnIDs(t *Table) []string {
	var ids []string
	for _, c := range t.Columns() {
		ids = append(ids, c.ID)
	}
	return ids
}

func TestExport(t *testing.T) {
	tbl := New()
	tbl.Export(snapshot([]float64{0, 0.5},
		col("Cell 10", 100, 101),
		col("Cell 2", 20, 21),
	))

	wantCols := []Column{
		{ID: "Channel Location", Name: "Channel Location"},
		{ID: "Cell 2", Name: "Cell 2"},
		{ID: "Cell 10", Name: "Cell 10"},
	}
	if diff := cmp.Diff(wantCols, tbl.Columns()); diff != "" {
		t.Errorf("Columns() mismatch (-want +got):\n%s", diff)
	}

	wantRecords := [][]string{
		{"Channel Location", "Cell 2", "Cell 10"},
		{"0", "20", "100"},
		{"0.5", "21", "101"},
	}
	if diff := cmp.Diff(wantRecords, tbl.Records()); diff != "" {
		t.Errorf("Records() mismatch (-want +got):\n%s", diff)
	}
}

func TestExport_Idempotent(t *testing.T) {
	s := snapshot([]float64{0, 1}, col("Cell 1", 1, 2))
	once := New()
	once.Export(s)
	twice := New()
	twice.Export(s)
	twice.Export(s)

	if diff := cmp.Diff(once.Records(), twice.Records()); diff != "" {
		t.Errorf("repeated export differs (-once +twice):\n%s", diff)
	}
}

func TestAppend_NamespaceUniqueness(t *testing.T) {
	index := []float64{0, 1, 2, 3, 4}
	s := snapshot(index, col("Cell 1", 10, 11, 12, 13, 14))

	tbl := New()
	tbl.Export(s)
	for i := 0; i < 2; i++ {
		if _, err := tbl.Append(s); err != nil {
			t.Fatalf("Append() #%d error = %v", i+1, err)
		}
	}

	want := []string{"Channel Location", "Cell 1", "Cell 1-1", "Cell 1-2"}
	if diff := cmp.Diff(want, columnIDs(tbl)); diff != "" {
		t.Errorf("column ids mismatch (-want +got):\n%s", diff)
	}
	if tbl.Len() != 5 {
		t.Errorf("Len() = %d, want 5", tbl.Len())
	}

	// Display names stay plain.
	header := tbl.Records()[0]
	if diff := cmp.Diff([]string{"Channel Location", "Cell 1", "Cell 1", "Cell 1"}, header); diff != "" {
		t.Errorf("header mismatch (-want +got):\n%s", diff)
	}
	if tbl.BatchOf("Cell 1") != 2 {
		t.Errorf("BatchOf(Cell 1) = %d, want 2", tbl.BatchOf("Cell 1"))
	}
}

func TestAppend_RowJoin(t *testing.T) {
	tests := []struct {
		name     string
		appended []float64
		want     [][]string
	}{
		{
			name:     "identical index merges",
			appended: []float64{0, 0.5, 1},
			want: [][]string{
				{"Channel Location", "Cell 1", "Cell 1"},
				{"0", "1", "7"},
				{"0.5", "2", "8"},
				{"1", "3", "9"},
			},
		},
		{
			name:     "partial overlap keeps both sides",
			appended: []float64{0, 0.6, 1},
			want: [][]string{
				{"Channel Location", "Cell 1", "Cell 1"},
				{"0", "1", "7"},
				{"0.5", "2", ""},
				{"1", "3", "9"},
				{"0.6", "", "8"},
			},
		},
		{
			name:     "shorter batch",
			appended: []float64{0.5},
			want: [][]string{
				{"Channel Location", "Cell 1", "Cell 1"},
				{"0", "1", ""},
				{"0.5", "2", "7"},
				{"1", "3", ""},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tbl := New()
			tbl.Export(snapshot([]float64{0, 0.5, 1}, col("Cell 1", 1, 2, 3)))

			values := []float64{7, 8, 9}[:len(tt.appended)]
			if _, err := tbl.Append(snapshot(tt.appended, col("Cell 1", values...))); err != nil {
				t.Fatalf("Append() error = %v", err)
			}
			if diff := cmp.Diff(tt.want, tbl.Records()); diff != "" {
				t.Errorf("Records() mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestAppend_DuplicateIndexValues(t *testing.T) {
	tbl := New()
	tbl.Export(snapshot([]float64{0, 0, 1}, col("Cell 1", 1, 2, 3)))
	if _, err := tbl.Append(snapshot([]float64{0, 0, 0}, col("Cell 1", 4, 5, 6))); err != nil {
		t.Fatalf("Append() error = %v", err)
	}

	want := [][]string{
		{"Channel Location", "Cell 1", "Cell 1"},
		{"0", "1", "4"},
		{"0", "2", "5"},
		{"1", "3", ""},
		{"0", "", "6"},
	}
	if diff := cmp.Diff(want, tbl.Records()); diff != "" {
		t.Errorf("Records() mismatch (-want +got):\n%s", diff)
	}
}

func TestAppend_Precondition(t *testing.T) {
	s := snapshot([]float64{0, 1}, col("Cell 1", 1, 2))

	tests := []struct {
		name  string
		setup func(*Table)
		snap  Snapshot
	}{
		{"never exported", func(*Table) {}, s},
		{"cleared", func(tbl *Table) { tbl.Export(s); tbl.Clear() }, s},
		{"nothing chosen", func(tbl *Table) { tbl.Export(s) }, Snapshot{Index: s.Index, Cells: s.Cells}},
		{"all chosen hidden", func(tbl *Table) { tbl.Export(snapshot([]float64{0, 0.5, 1}, col("Cell 1", 1, 2, 3))) },
			Snapshot{IndexName: "Channel Location", Index: []float64{0, 0.6, 1}, Chosen: []string{"Cell 1"}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tbl := New()
			tt.setup(tbl)
			before := tbl.Clone()

			_, err := tbl.Append(tt.snap)
			if !errors.Is(err, ErrPreconditionNotMet) {
				t.Fatalf("Append() error = %v, want ErrPreconditionNotMet", err)
			}
			if tbl.Counter() != before.Counter() {
				t.Errorf("Counter() = %d, want %d", tbl.Counter(), before.Counter())
			}
			if diff := cmp.Diff(before.Records(), tbl.Records()); diff != "" {
				t.Errorf("table changed (-before +after):\n%s", diff)
			}
		})
	}
}

func TestCounterSurvivesClear(t *testing.T) {
	s := snapshot([]float64{0, 1}, col("Cell 1", 1, 2))
	tbl := New()

	tbl.Export(s)
	if _, err := tbl.Append(s); err != nil {
		t.Fatalf("Append() error = %v", err)
	}
	tbl.Clear()
	if len(tbl.Columns()) != 0 || tbl.Len() != 0 {
		t.Errorf("table not empty after Clear: %v", tbl.Records())
	}

	tbl.Export(s)
	batch, err := tbl.Append(s)
	if err != nil {
		t.Fatalf("Append() error = %v", err)
	}
	if batch != 2 {
		t.Errorf("second append batch = %d, want 2", batch)
	}
	if diff := cmp.Diff([]string{"Channel Location", "Cell 1", "Cell 1-2"}, columnIDs(tbl)); diff != "" {
		t.Errorf("column ids mismatch (-want +got):\n%s", diff)
	}

	tbl.Reset()
	if tbl.Counter() != 0 {
		t.Errorf("Counter() after Reset = %d, want 0", tbl.Counter())
	}
}

func TestClone_Independent(t *testing.T) {
	tbl := New()
	tbl.Export(snapshot([]float64{0}, col("Cell 1", 1)))
	c := tbl.Clone()

	tbl.Append(snapshot([]float64{0}, col("Cell 1", 2)))
	if len(c.Columns()) != 2 {
		t.Errorf("clone columns = %v, want 2 columns", c.Columns())
	}
	if _, ok := c.Rows()[0].Values["Cell 1-1"]; ok {
		t.Error("clone shares row values with original")
	}
}

func TestMarshalJSON(t *testing.T) {
	tbl := New()
	tbl.Export(snapshot([]float64{0.5}, col("Cell 1", 3)))

	data, err := json.Marshal(tbl)
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}
	var got struct {
		IndexName string   `json:"index_name"`
		Columns   []Column `json:"columns"`
		Rows      []Row    `json:"rows"`
	}
	if err := json.Unmarshal(data, &got); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}
	if got.IndexName != "Channel Location" || len(got.Columns) != 2 || len(got.Rows) != 1 {
		t.Errorf("decoded = %+v", got)
	}
	if got.Rows[0].Values["Cell 1"] != 3 {
		t.Errorf("row values = %v", got.Rows[0].Values)
	}
}

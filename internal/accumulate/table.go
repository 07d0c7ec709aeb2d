// Package accumulate builds the exportable result table: one row per channel
// position, one column per exported cell, growing across appended runs.
//
// Export replaces the table. Append adds the current cells as a new batch
// whose column ids carry a batch suffix ("Cell 1-2") so repeated appends of
// the same cell never collide, and joins the new rows onto existing rows with
// an identical index value.
package accumulate

import (
	"encoding/json"
	"errors"
	"slices"
	"strconv"

	"github.com/nvandessel/simdash/internal/constants"
	"github.com/nvandessel/simdash/internal/series"
)

// ErrPreconditionNotMet is returned by Append when nothing is chosen or no
// export has populated the table yet. The table is left unchanged.
var ErrPreconditionNotMet = errors.New("append requires a chosen selection and an exported table")

// Column describes one table column. ID is unique within the table; Name is
// what the header row shows.
type Column struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Row is one table row keyed by its index value. Values maps column ids to
// values; absent ids are empty cells.
type Row struct {
	Index  float64            `json:"index"`
	Values map[string]float64 `json:"values"`
}

// SeriesColumn is the data of one cell to be written into the table.
type SeriesColumn struct {
	Name   string    `json:"name"`
	Values []float64 `json:"values"`
}

// Snapshot is the input of Export and Append: the index column and the cells
// currently visible.
type Snapshot struct {
	// IndexName is the header of the index column, e.g. "Channel Location".
	IndexName string `json:"index_name"`

	Index []float64 `json:"index"`

	// Chosen is the chosen cell set; Append refuses to run when it is empty.
	Chosen []string `json:"chosen"`

	Cells []SeriesColumn `json:"cells"`
}

// Table is the accumulation table. It is not safe for concurrent use.
type Table struct {
	indexName string
	columns   []Column
	rows      []Row
	counter   int
	batches   map[string]int
}

// New returns an empty table.
func New() *Table {
	return &Table{batches: make(map[string]int)}
}

// Export replaces the table with one row per index value and one column per
// cell, sorted by cell number. Column ids equal display names.
func (t *Table) Export(s Snapshot) {
	t.indexName = indexName(s)
	t.columns = nil
	for _, c := range sortedCells(s.Cells) {
		t.columns = append(t.columns, Column{ID: c.Name, Name: c.Name})
	}
	t.rows = buildRows(s, "")
	clear(t.batches)
}

// Append adds s as a new batch and returns the batch number. Each cell's
// column id is "{name}-{batch}"; its display name stays the plain cell name.
// A new row whose index exactly equals a not yet matched existing row is
// merged into it; other new rows follow the existing rows.
//
// The table must be non-empty and s must have at least one chosen and one
// visible cell; otherwise ErrPreconditionNotMet is returned and nothing
// changes, including the counter.
func (t *Table) Append(s Snapshot) (int, error) {
	if len(s.Chosen) == 0 || len(s.Cells) == 0 || t.IsEmpty() {
		return 0, ErrPreconditionNotMet
	}

	t.counter++
	batch := t.counter
	suffix := constants.AppendSeparator + strconv.Itoa(batch)

	for _, c := range sortedCells(s.Cells) {
		t.columns = append(t.columns, Column{ID: c.Name + suffix, Name: c.Name})
		t.batches[c.Name] = batch
	}

	matched := make([]bool, len(t.rows))
	var unmatched []Row
	for _, nr := range buildRows(s, suffix) {
		i := -1
		for j, r := range t.rows {
			if !matched[j] && r.Index == nr.Index {
				i = j
				break
			}
		}
		if i < 0 {
			unmatched = append(unmatched, nr)
			continue
		}
		matched[i] = true
		for id, v := range nr.Values {
			t.rows[i].Values[id] = v
		}
	}
	t.rows = append(t.rows, unmatched...)
	return batch, nil
}

// Clear removes all rows and columns. The append counter keeps counting.
func (t *Table) Clear() {
	t.indexName = ""
	t.columns = nil
	t.rows = nil
	clear(t.batches)
}

// Reset clears the table and restarts append numbering.
func (t *Table) Reset() {
	t.Clear()
	t.counter = 0
}

// IsEmpty reports whether the table has no rows or no columns.
func (t *Table) IsEmpty() bool {
	return len(t.rows) == 0 || len(t.columns) == 0
}

// Len returns the number of rows.
func (t *Table) Len() int {
	return len(t.rows)
}

// Counter returns the number of the last append batch.
func (t *Table) Counter() int {
	return t.counter
}

// IndexName returns the header of the index column.
func (t *Table) IndexName() string {
	return t.indexName
}

// BatchOf returns the last batch cell name was appended in, or 0.
func (t *Table) BatchOf(name string) int {
	return t.batches[name]
}

// Columns returns the columns, index column first. An empty table has none.
func (t *Table) Columns() []Column {
	if t.IsEmpty() {
		return []Column{}
	}
	out := make([]Column, 0, len(t.columns)+1)
	out = append(out, Column{ID: t.indexName, Name: t.indexName})
	return append(out, t.columns...)
}

// Rows returns copies of the rows in table order. The index value is also
// stored under the index column id.
func (t *Table) Rows() []Row {
	out := make([]Row, len(t.rows))
	for i, r := range t.rows {
		values := make(map[string]float64, len(r.Values)+1)
		for k, v := range r.Values {
			values[k] = v
		}
		values[t.indexName] = r.Index
		out[i] = Row{Index: r.Index, Values: values}
	}
	return out
}

// Records returns the table as strings: a header row of display names
// followed by one record per row. Missing values are empty strings.
func (t *Table) Records() [][]string {
	cols := t.Columns()
	if len(cols) == 0 {
		return [][]string{}
	}

	header := make([]string, len(cols))
	for i, c := range cols {
		header[i] = c.Name
	}
	records := [][]string{header}

	for _, r := range t.rows {
		rec := make([]string, len(cols))
		rec[0] = FormatValue(r.Index)
		for i, c := range cols[1:] {
			if v, ok := r.Values[c.ID]; ok {
				rec[i+1] = FormatValue(v)
			}
		}
		records = append(records, rec)
	}
	return records
}

// Clone returns a deep copy.
func (t *Table) Clone() *Table {
	c := &Table{
		indexName: t.indexName,
		columns:   slices.Clone(t.columns),
		rows:      make([]Row, len(t.rows)),
		counter:   t.counter,
		batches:   make(map[string]int, len(t.batches)),
	}
	for i, r := range t.rows {
		values := make(map[string]float64, len(r.Values))
		for k, v := range r.Values {
			values[k] = v
		}
		c.rows[i] = Row{Index: r.Index, Values: values}
	}
	for k, v := range t.batches {
		c.batches[k] = v
	}
	return c
}

// MarshalJSON encodes the table as its columns, rows and append counter.
func (t *Table) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		IndexName string   `json:"index_name"`
		Columns   []Column `json:"columns"`
		Rows      []Row    `json:"rows"`
		Counter   int      `json:"counter"`
	}{
		IndexName: t.indexName,
		Columns:   t.Columns(),
		Rows:      t.Rows(),
		Counter:   t.counter,
	})
}

// FormatValue renders a table value with the shortest exact representation.
func FormatValue(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}

func indexName(s Snapshot) string {
	if s.IndexName == "" {
		return constants.DefaultAxisKey
	}
	return s.IndexName
}

// buildRows lays out s row-major, one row per index value, with column ids
// "{name}{suffix}". Cells shorter than the index leave trailing gaps.
func buildRows(s Snapshot, suffix string) []Row {
	rows := make([]Row, len(s.Index))
	for i, x := range s.Index {
		values := make(map[string]float64, len(s.Cells))
		for _, c := range s.Cells {
			if i < len(c.Values) {
				values[c.Name+suffix] = c.Values[i]
			}
		}
		rows[i] = Row{Index: x, Values: values}
	}
	return rows
}

// sortedCells orders cells by cell number; names without one keep their
// relative order after numbered cells.
func sortedCells(cells []SeriesColumn) []SeriesColumn {
	out := slices.Clone(cells)
	slices.SortStableFunc(out, func(a, b SeriesColumn) int {
		na, okA := series.CellNumber(a.Name)
		nb, okB := series.CellNumber(b.Name)
		switch {
		case okA && okB:
			return na - nb
		case okA:
			return -1
		case okB:
			return 1
		default:
			return 0
		}
	})
	return out
}

// Package export writes result tables to files: CSV, Arrow IPC, JSON and
// SQLite.
package export

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/nvandessel/simdash/internal/accumulate"
	"github.com/nvandessel/simdash/internal/constants"
	"github.com/nvandessel/simdash/internal/results"
)

// Kind is the value type of a column.
type Kind int

const (
	Float Kind = iota
	String
)

func (k Kind) String() string {
	switch k {
	case Float:
		return "float"
	case String:
		return "string"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// Column describes one frame column. ID is unique; Name is the header text
// and may repeat.
type Column struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Kind Kind   `json:"-"`
}

// Frame is a rectangular table ready to be written. Each row holds one value
// per column: float64 for Float columns, string for String columns, nil for
// a missing value.
type Frame struct {
	// Name is used as the SQLite table name.
	Name    string   `json:"name"`
	Columns []Column `json:"columns"`
	Rows    [][]any  `json:"rows"`
}

// FromTable converts the accumulation table.
func FromTable(t *accumulate.Table) *Frame {
	cols := t.Columns()
	f := &Frame{Name: "series", Columns: make([]Column, len(cols))}
	for i, c := range cols {
		f.Columns[i] = Column{ID: c.ID, Name: c.Name, Kind: Float}
	}
	for _, r := range t.Rows() {
		row := make([]any, len(cols))
		for i, c := range cols {
			if v, ok := r.Values[c.ID]; ok {
				row[i] = v
			}
		}
		f.Rows = append(f.Rows, row)
	}
	return f
}

// FromGlobals converts global results to a Quantity/Value/Units table. Values
// are rendered with five significant digits.
func FromGlobals(g results.Globals) *Frame {
	f := &Frame{
		Name: "globals",
		Columns: []Column{
			{ID: "quantity", Name: "Quantity", Kind: String},
			{ID: "value", Name: "Value", Kind: String},
			{ID: "units", Name: "Units", Kind: String},
		},
	}
	for _, r := range GlobalRows(g) {
		f.Rows = append(f.Rows, []any{r.Quantity, r.Value, r.Units})
	}
	return f
}

// GlobalRow is one formatted line of the global results table.
type GlobalRow struct {
	Quantity string `json:"quantity"`
	Value    string `json:"value"`
	Units    string `json:"units"`
}

// GlobalRows formats global results for display.
func GlobalRows(g results.Globals) []GlobalRow {
	rows := make([]GlobalRow, len(g))
	for i, v := range g {
		rows[i] = GlobalRow{Quantity: v.Name, Value: FormatSignificant(v.Value), Units: v.Units}
	}
	return rows
}

// FormatSignificant formats v with constants.GlobalSignificantDigits
// significant digits, like %.5g.
func FormatSignificant(v float64) string {
	return fmt.Sprintf("%.*g", constants.GlobalSignificantDigits, v)
}

// Format is an output file format.
type Format string

const (
	FormatCSV    Format = "csv"
	FormatArrow  Format = "arrow"
	FormatJSON   Format = "json"
	FormatSQLite Format = "sqlite"
)

// ValidFormats lists every supported format.
func ValidFormats() []Format {
	return []Format{FormatCSV, FormatArrow, FormatJSON, FormatSQLite}
}

// ParseFormat parses a format name.
func ParseFormat(s string) (Format, error) {
	f := Format(strings.ToLower(strings.TrimSpace(s)))
	for _, v := range ValidFormats() {
		if f == v {
			return f, nil
		}
	}
	return "", fmt.Errorf("unknown export format %q (valid: csv, arrow, json, sqlite)", s)
}

// FormatFromPath picks the format from a file extension.
func FormatFromPath(path string) (Format, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv":
		return FormatCSV, nil
	case ".arrow", ".ipc", ".feather":
		return FormatArrow, nil
	case ".json":
		return FormatJSON, nil
	case ".db", ".sqlite", ".sqlite3":
		return FormatSQLite, nil
	default:
		return "", fmt.Errorf("cannot infer export format from %q", path)
	}
}

package export

import (
	"encoding/json"
	"fmt"
	"io"
)

// WriteJSON writes f as {"name", "columns": [{id, name}], "rows": [[...]]}.
// Missing values are null.
func WriteJSON(w io.Writer, f *Frame) error {
	rows := f.Rows
	if rows == nil {
		rows = [][]any{}
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(struct {
		Name    string   `json:"name"`
		Columns []Column `json:"columns"`
		Rows    [][]any  `json:"rows"`
	}{f.Name, f.Columns, rows}); err != nil {
		return fmt.Errorf("failed to encode json: %w", err)
	}
	return nil
}

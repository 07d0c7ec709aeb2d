package export

import (
	"fmt"
	"io"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/csv"
	"github.com/apache/arrow-go/v18/arrow/ipc"
	"github.com/apache/arrow-go/v18/arrow/memory"
)

// metaColumnID is the field metadata key holding the column id; field names
// carry the display name, which may repeat.
const metaColumnID = "simdash.column_id"

// Schema returns the Arrow schema of f.
func (f *Frame) Schema() *arrow.Schema {
	fields := make([]arrow.Field, len(f.Columns))
	for i, c := range f.Columns {
		var dt arrow.DataType = arrow.PrimitiveTypes.Float64
		if c.Kind == String {
			dt = arrow.BinaryTypes.String
		}
		fields[i] = arrow.Field{
			Name:     c.Name,
			Type:     dt,
			Nullable: true,
			Metadata: arrow.NewMetadata([]string{metaColumnID}, []string{c.ID}),
		}
	}
	return arrow.NewSchema(fields, nil)
}

// Record builds an Arrow record from f. The caller must Release it.
func (f *Frame) Record(mem memory.Allocator) (arrow.Record, error) {
	if mem == nil {
		mem = memory.NewGoAllocator()
	}
	b := array.NewRecordBuilder(mem, f.Schema())
	defer b.Release()

	for r, row := range f.Rows {
		if len(row) != len(f.Columns) {
			return nil, fmt.Errorf("row %d has %d values, want %d", r, len(row), len(f.Columns))
		}
		for i, v := range row {
			switch fb := b.Field(i).(type) {
			case *array.Float64Builder:
				if v == nil {
					fb.AppendNull()
					continue
				}
				x, ok := v.(float64)
				if !ok {
					return nil, fmt.Errorf("row %d column %q: got %T, want float64", r, f.Columns[i].ID, v)
				}
				fb.Append(x)
			case *array.StringBuilder:
				if v == nil {
					fb.AppendNull()
					continue
				}
				s, ok := v.(string)
				if !ok {
					return nil, fmt.Errorf("row %d column %q: got %T, want string", r, f.Columns[i].ID, v)
				}
				fb.Append(s)
			}
		}
	}
	return b.NewRecord(), nil
}

// WriteCSV writes f as CSV with a header row of display names. Missing
// values are empty.
func WriteCSV(w io.Writer, f *Frame) error {
	rec, err := f.Record(nil)
	if err != nil {
		return err
	}
	defer rec.Release()

	cw := csv.NewWriter(w, rec.Schema(), csv.WithHeader(true), csv.WithNullWriter(""))
	if err := cw.Write(rec); err != nil {
		return fmt.Errorf("failed to write csv: %w", err)
	}
	if err := cw.Flush(); err != nil {
		return fmt.Errorf("failed to flush csv: %w", err)
	}
	return cw.Error()
}

// WriteArrow writes f as an Arrow IPC file.
func WriteArrow(w io.Writer, f *Frame) error {
	mem := memory.NewGoAllocator()
	rec, err := f.Record(mem)
	if err != nil {
		return err
	}
	defer rec.Release()

	fw, err := ipc.NewFileWriter(w, ipc.WithSchema(rec.Schema()), ipc.WithAllocator(mem))
	if err != nil {
		return fmt.Errorf("failed to create arrow writer: %w", err)
	}
	if err := fw.Write(rec); err != nil {
		fw.Close()
		return fmt.Errorf("failed to write arrow record: %w", err)
	}
	if err := fw.Close(); err != nil {
		return fmt.Errorf("failed to close arrow writer: %w", err)
	}
	return nil
}

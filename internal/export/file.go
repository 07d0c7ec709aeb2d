package export

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// Write writes f to w in the given format. SQLite needs a file path and is
// not supported here.
func Write(w io.Writer, format Format, f *Frame) error {
	switch format {
	case FormatCSV:
		return WriteCSV(w, f)
	case FormatArrow:
		return WriteArrow(w, f)
	case FormatJSON:
		return WriteJSON(w, f)
	case FormatSQLite:
		return fmt.Errorf("sqlite export requires a file path")
	default:
		return fmt.Errorf("unknown export format %q", format)
	}
}

// WriteFile writes f to path in the format implied by its extension.
// Parent directories are created as needed.
func WriteFile(ctx context.Context, path string, f *Frame) error {
	format, err := FormatFromPath(path)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create export directory: %w", err)
	}

	if format == FormatSQLite {
		return WriteSQLite(ctx, path, f)
	}

	out, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create export file: %w", err)
	}
	if err := Write(out, format, f); err != nil {
		out.Close()
		return err
	}
	if err := out.Close(); err != nil {
		return fmt.Errorf("failed to close export file: %w", err)
	}
	return nil
}

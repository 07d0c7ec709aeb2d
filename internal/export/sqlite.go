package export

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	_ "modernc.org/sqlite" // SQLite driver
)

// columnsTable maps SQLite column names back to display names, since the
// exported table uses ids as column names.
const columnsTable = `
CREATE TABLE IF NOT EXISTS simdash_columns (
    table_name TEXT NOT NULL,
    position INTEGER NOT NULL,
    column_id TEXT NOT NULL,
    display_name TEXT NOT NULL,
    kind TEXT NOT NULL,
    PRIMARY KEY (table_name, position)
);
`

// WriteSQLite writes f into the SQLite database at path, replacing any
// existing table of the same name.
func WriteSQLite(ctx context.Context, path string, f *Frame) error {
	if f.Name == "" {
		return fmt.Errorf("frame has no name")
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()
	db.SetMaxOpenConns(1)

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, columnsTable); err != nil {
		return fmt.Errorf("failed to create column table: %w", err)
	}

	table := quoteIdent(f.Name)
	if _, err := tx.ExecContext(ctx, `DROP TABLE IF EXISTS `+table); err != nil {
		return fmt.Errorf("failed to drop table: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM simdash_columns WHERE table_name = ?`, f.Name); err != nil {
		return fmt.Errorf("failed to clear column map: %w", err)
	}

	defs := make([]string, len(f.Columns))
	names := make([]string, len(f.Columns))
	for i, c := range f.Columns {
		typ := "REAL"
		if c.Kind == String {
			typ = "TEXT"
		}
		names[i] = quoteIdent(c.ID)
		defs[i] = names[i] + " " + typ
	}
	if _, err := tx.ExecContext(ctx, fmt.Sprintf(`CREATE TABLE %s (%s)`, table, strings.Join(defs, ", "))); err != nil {
		return fmt.Errorf("failed to create table: %w", err)
	}

	for i, c := range f.Columns {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO simdash_columns (table_name, position, column_id, display_name, kind) VALUES (?, ?, ?, ?, ?)`,
			f.Name, i, c.ID, c.Name, c.Kind.String()); err != nil {
			return fmt.Errorf("failed to record column %q: %w", c.ID, err)
		}
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(f.Columns)), ", ")
	stmt, err := tx.PrepareContext(ctx, fmt.Sprintf(`INSERT INTO %s (%s) VALUES (%s)`,
		table, strings.Join(names, ", "), placeholders))
	if err != nil {
		return fmt.Errorf("failed to prepare insert: %w", err)
	}
	defer stmt.Close()

	for r, row := range f.Rows {
		if len(row) != len(f.Columns) {
			return fmt.Errorf("row %d has %d values, want %d", r, len(row), len(f.Columns))
		}
		if _, err := stmt.ExecContext(ctx, row...); err != nil {
			return fmt.Errorf("failed to insert row %d: %w", r, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit: %w", err)
	}
	return nil
}

func quoteIdent(s string) string {
	return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
}

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/nvandessel/simdash/internal/export"
	"github.com/nvandessel/simdash/internal/series"
	"github.com/spf13/cobra"
)

type runResult struct {
	Fingerprint string             `json:"fingerprint"`
	Globals     []export.GlobalRow `json:"globals"`
	Selection   series.Selection   `json:"selection"`
	Export      *exportResult      `json:"export,omitempty"`
}

type exportResult struct {
	Path   string `json:"path"`
	Format string `json:"format"`
	Rows   int    `json:"rows"`
}

func newRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the simulation once and print the global results",
		Long: `Run the simulation for an input file and print the global results.

The input file is a JSON object keyed by input id, e.g.
{"stack-cell_number": 10, "membrane-thickness": 1.5e-5}. Use "-" to read
it from stdin.

With --export, the chosen series (default: the dashboard default) is also
written as a table with one column per cell. The file extension picks the
format: .csv, .arrow, .json or .sqlite.

Examples:
  simdash run --inputs case.json
  simdash run --inputs case.json --export out/temp.csv --series Temperature --sub Coolant
  simdash run --inputs - --json < case.json`,
		RunE: func(cmd *cobra.Command, args []string) error {
			inputsPath, _ := cmd.Flags().GetString("inputs")
			format, _ := cmd.Flags().GetString("format")
			exportPath, _ := cmd.Flags().GetString("export")
			seriesKey, _ := cmd.Flags().GetString("series")
			subKey, _ := cmd.Flags().GetString("sub")
			if jsonOut, _ := cmd.Flags().GetBool("json"); jsonOut {
				format = "json"
			}
			if format != "text" && format != "json" {
				return fmt.Errorf("invalid format: %s (must be text or json)", format)
			}
			if exportPath != "" {
				if _, err := export.FormatFromPath(exportPath); err != nil {
					return err
				}
			}

			inputs, err := readInputs(cmd.InOrStdin(), inputsPath)
			if err != nil {
				return err
			}

			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			eng, err := newEngine(cfg, cmd.ErrOrStderr(), nil)
			if err != nil {
				return err
			}
			defer eng.Close()

			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}

			sess := eng.sessions.Create()
			globals, err := sess.Run(ctx, inputs)
			if err != nil {
				return err
			}

			res := runResult{
				Fingerprint: sess.Fingerprint().Key(),
				Globals:     export.GlobalRows(globals),
			}

			if exportPath != "" {
				if seriesKey != "" {
					if _, err := sess.Select(ctx, series.Selection{Primary: seriesKey, Secondary: subKey}); err != nil {
						return fmt.Errorf("failed to select series: %w", err)
					}
				}
				tbl, err := sess.ExportTable()
				if err != nil {
					return fmt.Errorf("failed to build table: %w", err)
				}
				if err := export.WriteFile(ctx, exportPath, export.FromTable(tbl)); err != nil {
					return err
				}
				f, _ := export.FormatFromPath(exportPath)
				res.Export = &exportResult{Path: exportPath, Format: string(f), Rows: tbl.Len()}
			}
			res.Selection = sess.Selection()

			out := cmd.OutOrStdout()
			if format == "json" {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(res)
			}
			printRunResult(out, res)
			return nil
		},
	}

	cmd.Flags().String("inputs", "", "JSON input file, or - for stdin (required)")
	cmd.Flags().String("format", "text", "Output format: text or json")
	cmd.Flags().String("export", "", "Write the selected series table to this file")
	cmd.Flags().String("series", "", "Series to export (default: the dashboard default)")
	cmd.Flags().String("sub", "", "Sub-series to export when the series has sub-series")
	cmd.MarkFlagRequired("inputs")

	return cmd
}

// readInputs decodes a flat JSON object of input id to value.
func readInputs(stdin io.Reader, path string) (map[string]any, error) {
	var r io.Reader
	if path == "-" {
		r = stdin
	} else {
		f, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("failed to open inputs: %w", err)
		}
		defer f.Close()
		r = f
	}

	var inputs map[string]any
	if err := json.NewDecoder(r).Decode(&inputs); err != nil {
		return nil, fmt.Errorf("failed to parse inputs %s: %w", path, err)
	}
	if inputs == nil {
		return nil, fmt.Errorf("failed to parse inputs %s: expected a JSON object", path)
	}
	return inputs, nil
}

func printRunResult(w io.Writer, res runResult) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "QUANTITY\tVALUE\tUNITS")
	for _, row := range res.Globals {
		fmt.Fprintf(tw, "%s\t%s\t%s\n", row.Quantity, row.Value, row.Units)
	}
	tw.Flush()

	if res.Export != nil {
		fmt.Fprintf(w, "\nExported %s (%d rows) to %s\n", res.Selection.Label(), res.Export.Rows, res.Export.Path)
	}
}

package mcp

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"slices"
	"strings"
	"time"

	sdk "github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/nvandessel/simdash/internal/accumulate"
	"github.com/nvandessel/simdash/internal/chart"
	"github.com/nvandessel/simdash/internal/export"
	"github.com/nvandessel/simdash/internal/pathutil"
	"github.com/nvandessel/simdash/internal/ratelimit"
	"github.com/nvandessel/simdash/internal/selection"
	"github.com/nvandessel/simdash/internal/series"
	"github.com/nvandessel/simdash/internal/session"
)

const (
	stateResourceURI   = "simdash://session/state"
	tableResourceURI   = "simdash://table.csv"
	optionsResourceURI = "simdash://options/"
)

// registerTools registers all simdash MCP tools with the server.
func (s *Server) registerTools() error {
	sdk.AddTool(s.server, &sdk.Tool{
		Name:        "simdash_run",
		Description: "Run the fuel cell simulation for the given inputs, reusing a cached result when the same inputs ran recently",
	}, s.handleRun)

	sdk.AddTool(s.server, &sdk.Tool{
		Name:        "simdash_options",
		Description: "List selectable local result series, or the sub-series of one series",
	}, s.handleOptions)

	sdk.AddTool(s.server, &sdk.Tool{
		Name:        "simdash_select",
		Description: "Select the series shown on the line chart; all cells become visible",
	}, s.handleSelect)

	sdk.AddTool(s.server, &sdk.Tool{
		Name:        "simdash_cells",
		Description: "Change which cells are shown: checklist, legend toggle, legend snapshot, raw restyle or clear",
	}, s.handleCells)

	sdk.AddTool(s.server, &sdk.Tool{
		Name:        "simdash_heatmap",
		Description: "Get a cells by channel position matrix of one series",
	}, s.handleHeatmap)

	sdk.AddTool(s.server, &sdk.Tool{
		Name:        "simdash_globals",
		Description: "Get the global results of the current run",
	}, s.handleGlobals)

	sdk.AddTool(s.server, &sdk.Tool{
		Name:        "simdash_table",
		Description: "Export the visible cells into the accumulation table, append them as a new batch, clear or show the table",
	}, s.handleTable)

	sdk.AddTool(s.server, &sdk.Tool{
		Name:        "simdash_export",
		Description: "Write the accumulation table or the global results to a csv, arrow, json or sqlite file",
	}, s.handleExport)

	sdk.AddTool(s.server, &sdk.Tool{
		Name:        "simdash_reset",
		Description: "Clear the selection, the table and its append numbering; cached results are kept",
	}, s.handleReset)

	sdk.AddTool(s.server, &sdk.Tool{
		Name:        "simdash_chart",
		Description: "Render the line chart of the current selection as a PNG image",
	}, s.handleChart)

	sdk.AddTool(s.server, &sdk.Tool{
		Name:        "simdash_cache",
		Description: "Show result cache statistics, optionally pruning expired entries",
	}, s.handleCache)

	return nil
}

// registerResources registers read-only views of the session.
func (s *Server) registerResources() error {
	s.server.AddResource(&sdk.Resource{
		URI:         stateResourceURI,
		Name:        "simdash-session-state",
		Description: "Current selection, visible and hidden cells, and table size.",
		MIMEType:    "application/json",
	}, s.handleStateResource)

	s.server.AddResource(&sdk.Resource{
		URI:         tableResourceURI,
		Name:        "simdash-table",
		Description: "The accumulation table as CSV with display names in the header.",
		MIMEType:    "text/csv",
	}, s.handleTableResource)

	s.server.AddResourceTemplate(&sdk.ResourceTemplate{
		URITemplate: optionsResourceURI + "{key}",
		Name:        "simdash-sub-options",
		Description: "Sub-series of one local result series.",
		MIMEType:    "application/json",
	}, s.handleOptionsResource)

	return nil
}

func (s *Server) handleStateResource(ctx context.Context, req *sdk.ReadResourceRequest) (*sdk.ReadResourceResult, error) {
	data, err := json.MarshalIndent(s.stateOutput(), "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to encode state: %w", err)
	}
	return textResource(stateResourceURI, "application/json", string(data)), nil
}

func (s *Server) handleTableResource(ctx context.Context, req *sdk.ReadResourceRequest) (*sdk.ReadResourceResult, error) {
	var buf bytes.Buffer
	if err := export.WriteCSV(&buf, export.FromTable(s.session.Table())); err != nil {
		return nil, fmt.Errorf("failed to encode table: %w", err)
	}
	return textResource(tableResourceURI, "text/csv", buf.String()), nil
}

func (s *Server) handleOptionsResource(ctx context.Context, req *sdk.ReadResourceRequest) (*sdk.ReadResourceResult, error) {
	uri := req.Params.URI
	key, err := url.PathUnescape(strings.TrimPrefix(uri, optionsResourceURI))
	if err != nil || key == "" {
		return nil, fmt.Errorf("invalid URI format: %s", uri)
	}

	opts, err := s.session.SubOptions(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("failed to list sub-series of %s: %w", key, err)
	}
	data, err := json.Marshal(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to encode options: %w", err)
	}
	return textResource(uri, "application/json", string(data)), nil
}

func textResource(uri, mimeType, text string) *sdk.ReadResourceResult {
	return &sdk.ReadResourceResult{
		Contents: []*sdk.ResourceContents{
			{URI: uri, MIMEType: mimeType, Text: text},
		},
	}
}

// handleRun implements the simdash_run tool.
func (s *Server) handleRun(ctx context.Context, req *sdk.CallToolRequest, args RunInput) (_ *sdk.CallToolResult, _ RunOutput, retErr error) {
	start := time.Now()
	defer func() {
		s.auditTool("simdash_run", start, retErr, sanitizeToolParams(map[string]interface{}{
			"inputs": args.Inputs,
		}))
	}()

	if err := ratelimit.CheckLimit(s.toolLimiters, "simdash_run"); err != nil {
		return nil, RunOutput{}, err
	}

	globals, err := s.session.Run(ctx, args.Inputs)
	if err != nil {
		return nil, RunOutput{}, fmt.Errorf("simulation run failed: %w", err)
	}

	return nil, RunOutput{
		Fingerprint: s.session.Fingerprint().Key(),
		Globals:     export.GlobalRows(globals),
		Selection:   s.session.Selection(),
		Cells:       s.session.Projection().Options,
	}, nil
}

// handleOptions implements the simdash_options tool.
func (s *Server) handleOptions(ctx context.Context, req *sdk.CallToolRequest, args OptionsInput) (_ *sdk.CallToolResult, _ OptionsOutput, retErr error) {
	start := time.Now()
	defer func() {
		s.auditTool("simdash_options", start, retErr, sanitizeToolParams(map[string]interface{}{
			"key": args.Key,
		}))
	}()

	if err := ratelimit.CheckLimit(s.toolLimiters, "simdash_options"); err != nil {
		return nil, OptionsOutput{}, err
	}

	var (
		opts session.Options
		err  error
	)
	if args.Key == "" {
		opts, err = s.session.SeriesOptions(ctx)
	} else {
		opts, err = s.session.SubOptions(ctx, args.Key)
	}
	if errors.Is(err, session.ErrNoData) {
		return nil, OptionsOutput{Options: []string{}}, nil
	}
	if err != nil {
		return nil, OptionsOutput{}, fmt.Errorf("failed to list options: %w", err)
	}
	return nil, OptionsOutput{Options: opts.Options, Default: opts.Default}, nil
}

// handleSelect implements the simdash_select tool.
func (s *Server) handleSelect(ctx context.Context, req *sdk.CallToolRequest, args SelectInput) (_ *sdk.CallToolResult, _ ProjectionOutput, retErr error) {
	start := time.Now()
	defer func() {
		s.auditTool("simdash_select", start, retErr, sanitizeToolParams(map[string]interface{}{
			"primary":      args.Primary,
			"secondary":    args.Secondary,
			"include_data": args.IncludeData,
		}))
	}()

	if err := ratelimit.CheckLimit(s.toolLimiters, "simdash_select"); err != nil {
		return nil, ProjectionOutput{}, err
	}
	if args.Primary == "" {
		return nil, ProjectionOutput{}, fmt.Errorf("'primary' parameter is required")
	}

	p, err := s.session.Select(ctx, series.Selection{Primary: args.Primary, Secondary: args.Secondary})
	if err != nil {
		return nil, ProjectionOutput{}, fmt.Errorf("failed to select series: %w", err)
	}
	return nil, s.projectionOutput(p, args.IncludeData), nil
}

// handleCells implements the simdash_cells tool.
func (s *Server) handleCells(ctx context.Context, req *sdk.CallToolRequest, args CellsInput) (_ *sdk.CallToolResult, _ ProjectionOutput, retErr error) {
	start := time.Now()
	defer func() {
		s.auditTool("simdash_cells", start, retErr, sanitizeToolParams(map[string]interface{}{
			"action":       args.Action,
			"value":        args.Value,
			"trace_index":  args.TraceIndex,
			"hidden":       args.Hidden,
			"hidden_flags": args.HiddenFlags,
			"restyle":      args.Restyle,
		}))
	}()

	if err := ratelimit.CheckLimit(s.toolLimiters, "simdash_cells"); err != nil {
		return nil, ProjectionOutput{}, err
	}

	var (
		p   selection.Projection
		err error
	)
	switch args.Action {
	case "checklist":
		p, err = s.session.Apply(selection.Checklist{Value: args.Value})
	case "toggle":
		p, err = s.session.Apply(selection.LegendToggle{TraceIndex: args.TraceIndex, Hidden: args.Hidden})
	case "snapshot":
		p, err = s.session.Apply(selection.LegendSnapshot{Hidden: args.HiddenFlags})
	case "restyle":
		p, err = s.session.ApplyRestyle([]byte(args.Restyle))
	case "clear":
		p, err = s.session.Apply(selection.Clear{})
	case "show", "":
		p = s.session.Projection()
	default:
		return nil, ProjectionOutput{}, fmt.Errorf("invalid action: %s (must be checklist, toggle, snapshot, restyle, clear or show)", args.Action)
	}
	if err != nil {
		return nil, ProjectionOutput{}, fmt.Errorf("failed to apply %s: %w", args.Action, err)
	}
	return nil, s.projectionOutput(p, args.IncludeData), nil
}

// handleHeatmap implements the simdash_heatmap tool.
func (s *Server) handleHeatmap(ctx context.Context, req *sdk.CallToolRequest, args HeatmapInput) (_ *sdk.CallToolResult, _ *series.Heatmap, retErr error) {
	start := time.Now()
	defer func() {
		s.auditTool("simdash_heatmap", start, retErr, sanitizeToolParams(map[string]interface{}{
			"primary":   args.Primary,
			"secondary": args.Secondary,
		}))
	}()

	if err := ratelimit.CheckLimit(s.toolLimiters, "simdash_heatmap"); err != nil {
		return nil, nil, err
	}

	h, err := s.session.Heatmap(ctx, series.Selection{Primary: args.Primary, Secondary: args.Secondary})
	if err != nil {
		return nil, nil, fmt.Errorf("failed to build heatmap: %w", err)
	}
	return nil, h, nil
}

// handleGlobals implements the simdash_globals tool.
func (s *Server) handleGlobals(ctx context.Context, req *sdk.CallToolRequest, args GlobalsInput) (_ *sdk.CallToolResult, _ GlobalsOutput, retErr error) {
	start := time.Now()
	defer func() {
		s.auditTool("simdash_globals", start, retErr, sanitizeToolParams(map[string]interface{}{}))
	}()

	if err := ratelimit.CheckLimit(s.toolLimiters, "simdash_globals"); err != nil {
		return nil, GlobalsOutput{}, err
	}

	rows, err := s.session.GlobalTable(ctx)
	if errors.Is(err, session.ErrNoData) {
		return nil, GlobalsOutput{Globals: []export.GlobalRow{}}, nil
	}
	if err != nil {
		return nil, GlobalsOutput{}, fmt.Errorf("failed to read globals: %w", err)
	}
	return nil, GlobalsOutput{Globals: rows}, nil
}

// handleTable implements the simdash_table tool.
func (s *Server) handleTable(ctx context.Context, req *sdk.CallToolRequest, args TableInput) (_ *sdk.CallToolResult, _ TableOutput, retErr error) {
	start := time.Now()
	defer func() {
		s.auditTool("simdash_table", start, retErr, sanitizeToolParams(map[string]interface{}{
			"action": args.Action,
		}))
	}()

	if err := ratelimit.CheckLimit(s.toolLimiters, "simdash_table"); err != nil {
		return nil, TableOutput{}, err
	}

	var out TableOutput
	switch args.Action {
	case "export":
		tbl, err := s.session.ExportTable()
		if err != nil {
			return nil, TableOutput{}, fmt.Errorf("failed to export table: %w", err)
		}
		out = tableOutput(tbl.Columns(), tbl.Records(), tbl.Counter())
		out.Applied = true
	case "append":
		res, err := s.session.AppendTable()
		if err != nil {
			return nil, TableOutput{}, fmt.Errorf("failed to append to table: %w", err)
		}
		out = tableOutput(res.Table.Columns(), res.Table.Records(), res.Table.Counter())
		out.Applied, out.Batch = res.Applied, res.Batch
	case "clear":
		tbl := s.session.ClearTable()
		out = tableOutput(tbl.Columns(), tbl.Records(), tbl.Counter())
		out.Applied = true
	case "show", "":
		tbl := s.session.Table()
		out = tableOutput(tbl.Columns(), tbl.Records(), tbl.Counter())
	default:
		return nil, TableOutput{}, fmt.Errorf("invalid action: %s (must be export, append, clear or show)", args.Action)
	}
	return nil, out, nil
}

// handleExport implements the simdash_export tool.
func (s *Server) handleExport(ctx context.Context, req *sdk.CallToolRequest, args ExportInput) (_ *sdk.CallToolResult, _ ExportOutput, retErr error) {
	start := time.Now()
	defer func() {
		s.auditTool("simdash_export", start, retErr, sanitizeToolParams(map[string]interface{}{
			"path":   args.Path,
			"source": args.Source,
		}))
	}()

	if err := ratelimit.CheckLimit(s.toolLimiters, "simdash_export"); err != nil {
		return nil, ExportOutput{}, err
	}
	if s.exportDir == "" {
		return nil, ExportOutput{}, fmt.Errorf("file exports are disabled: no export directory configured")
	}

	format, err := export.FormatFromPath(args.Path)
	if err != nil {
		return nil, ExportOutput{}, err
	}
	path, err := pathutil.ResolveExportPath(s.exportDir, args.Path)
	if err != nil {
		return nil, ExportOutput{}, fmt.Errorf("export path rejected: %w", err)
	}

	var frame *export.Frame
	switch args.Source {
	case "table", "":
		tbl := s.session.Table()
		if tbl.IsEmpty() {
			return nil, ExportOutput{}, fmt.Errorf("table is empty: export or append first")
		}
		frame = export.FromTable(tbl)
	case "globals":
		g, err := s.session.Globals(ctx)
		if err != nil {
			return nil, ExportOutput{}, fmt.Errorf("failed to read globals: %w", err)
		}
		frame = export.FromGlobals(g)
	default:
		return nil, ExportOutput{}, fmt.Errorf("invalid source: %s (must be table or globals)", args.Source)
	}

	if err := export.WriteFile(ctx, path, frame); err != nil {
		return nil, ExportOutput{}, fmt.Errorf("failed to write %s: %w", pathutil.RedactPath(path), err)
	}
	s.logger.Info("exported", "format", format, "rows", len(frame.Rows), "path", pathutil.RedactPath(path))

	return nil, ExportOutput{Path: path, Format: string(format), Rows: len(frame.Rows)}, nil
}

// handleReset implements the simdash_reset tool.
func (s *Server) handleReset(ctx context.Context, req *sdk.CallToolRequest, args ResetInput) (_ *sdk.CallToolResult, _ StateOutput, retErr error) {
	start := time.Now()
	defer func() {
		s.auditTool("simdash_reset", start, retErr, sanitizeToolParams(map[string]interface{}{}))
	}()

	if err := ratelimit.CheckLimit(s.toolLimiters, "simdash_reset"); err != nil {
		return nil, StateOutput{}, err
	}

	s.session.Reset()
	return nil, s.stateOutput(), nil
}

// handleChart implements the simdash_chart tool. The PNG is returned as
// image content alongside the structured summary.
func (s *Server) handleChart(ctx context.Context, req *sdk.CallToolRequest, args ChartInput) (_ *sdk.CallToolResult, _ ChartOutput, retErr error) {
	start := time.Now()
	defer func() {
		s.auditTool("simdash_chart", start, retErr, sanitizeToolParams(map[string]interface{}{
			"width":  args.Width,
			"height": args.Height,
		}))
	}()

	if err := ratelimit.CheckLimit(s.toolLimiters, "simdash_chart"); err != nil {
		return nil, ChartOutput{}, err
	}

	opts := s.chart
	if args.Width > 0 && args.Width <= 4096 {
		opts.Width = args.Width
	}
	if args.Height > 0 && args.Height <= 4096 {
		opts.Height = args.Height
	}

	p := s.session.Projection()
	var buf bytes.Buffer
	if err := chart.RenderPNG(&buf, p, opts); err != nil {
		if errors.Is(err, chart.ErrNothingToRender) {
			return nil, ChartOutput{}, fmt.Errorf("nothing to render: run and select a series first")
		}
		return nil, ChartOutput{}, fmt.Errorf("failed to render chart: %w", err)
	}

	out := ChartOutput{Traces: len(p.Traces), Bytes: buf.Len()}
	return &sdk.CallToolResult{
		Content: []sdk.Content{
			&sdk.ImageContent{Data: buf.Bytes(), MIMEType: "image/png"},
		},
	}, out, nil
}

// handleCache implements the simdash_cache tool.
func (s *Server) handleCache(ctx context.Context, req *sdk.CallToolRequest, args CacheInput) (_ *sdk.CallToolResult, _ CacheOutput, retErr error) {
	start := time.Now()
	defer func() {
		s.auditTool("simdash_cache", start, retErr, sanitizeToolParams(map[string]interface{}{
			"prune": args.Prune,
		}))
	}()

	if err := ratelimit.CheckLimit(s.toolLimiters, "simdash_cache"); err != nil {
		return nil, CacheOutput{}, err
	}

	cache := s.sessions.Cache()
	var out CacheOutput
	if args.Prune {
		out.Pruned = cache.Prune()
	}
	out.Stats = cache.Stats()
	out.TTLSeconds = cache.TTL().Seconds()
	return nil, out, nil
}

func (s *Server) stateOutput() StateOutput {
	snap := s.session.State()
	return StateOutput{
		Fingerprint: snap.Fingerprint,
		Selection:   snap.Selection,
		Reconciler:  snap.Reconciler,
		TableRows:   snap.TableRows,
		AppendCount: snap.AppendCount,
	}
}

func (s *Server) projectionOutput(p selection.Projection, includeData bool) ProjectionOutput {
	out := ProjectionOutput{
		Selection: s.session.Selection(),
		XTitle:    p.XTitle,
		YTitle:    p.YTitle,
		Options:   nonNil(p.Options),
		Visible:   nonNil(p.Value),
		Hidden:    nonNil(p.Hidden),
		Traces:    make([]TraceSummary, 0, len(p.Traces)),
	}
	for _, tr := range p.Traces {
		sum := TraceSummary{
			Name:       tr.Name,
			Visibility: tr.Visibility,
			Points:     len(tr.Ys),
		}
		if len(tr.Ys) > 0 {
			sum.Min, sum.Max = slices.Min(tr.Ys), slices.Max(tr.Ys)
		}
		if includeData {
			sum.Xs, sum.Ys = tr.Xs, tr.Ys
		}
		out.Traces = append(out.Traces, sum)
	}
	return out
}

func tableOutput(cols []accumulate.Column, records [][]string, counter int) TableOutput {
	if records == nil {
		records = [][]string{}
	}
	return TableOutput{Counter: counter, Columns: nonNil(cols), Records: records}
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}

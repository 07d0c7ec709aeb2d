// Package mcp provides an MCP (Model Context Protocol) server exposing the
// simdash engine as tools.
package mcp

import (
	"github.com/nvandessel/simdash/internal/accumulate"
	"github.com/nvandessel/simdash/internal/constants"
	"github.com/nvandessel/simdash/internal/export"
	"github.com/nvandessel/simdash/internal/selection"
	"github.com/nvandessel/simdash/internal/series"
	"github.com/nvandessel/simdash/internal/simcache"
)

// RunInput defines the input for simdash_run tool.
type RunInput struct {
	Inputs map[string]any `json:"inputs" jsonschema:"Simulation inputs keyed by setting path, e.g. {\"stack-cell_number\": 10}"`
}

// RunOutput defines the output for simdash_run tool.
type RunOutput struct {
	Fingerprint string             `json:"fingerprint" jsonschema:"Cache key of the submitted inputs"`
	Globals     []export.GlobalRow `json:"globals" jsonschema:"Global results with values at 5 significant digits"`
	Selection   series.Selection   `json:"selection" jsonschema:"Series selected after the run"`
	Cells       []string           `json:"cells" jsonschema:"Cells of the selected series"`
}

// OptionsInput defines the input for simdash_options tool.
type OptionsInput struct {
	Key string `json:"key,omitempty" jsonschema:"Series whose sub-series to list; empty lists top-level series"`
}

// OptionsOutput defines the output for simdash_options tool.
type OptionsOutput struct {
	Options []string `json:"options" jsonschema:"Selectable names in result order"`
	Default string   `json:"default" jsonschema:"Preselected option, empty when there are none"`
}

// SelectInput defines the input for simdash_select tool.
type SelectInput struct {
	Primary     string `json:"primary" jsonschema:"Top-level series name"`
	Secondary   string `json:"secondary,omitempty" jsonschema:"Sub-series name when the series has sub-series"`
	IncludeData bool   `json:"include_data,omitempty" jsonschema:"Include x and y values of each trace (default: false)"`
}

// CellsInput defines the input for simdash_cells tool.
type CellsInput struct {
	Action      string   `json:"action" jsonschema:"One of: checklist, toggle, snapshot, restyle, clear, show"`
	Value       []string `json:"value,omitempty" jsonschema:"Checklist value: the cells to choose (action=checklist)"`
	TraceIndex  int      `json:"trace_index,omitempty" jsonschema:"Zero-based legend entry to toggle (action=toggle)"`
	Hidden      bool     `json:"hidden,omitempty" jsonschema:"Whether the toggled cell becomes hidden (action=toggle)"`
	HiddenFlags []bool   `json:"hidden_flags,omitempty" jsonschema:"Hidden flag per legend entry (action=snapshot)"`
	Restyle     string   `json:"restyle,omitempty" jsonschema:"Raw chart restyle payload as JSON (action=restyle)"`
	IncludeData bool     `json:"include_data,omitempty" jsonschema:"Include x and y values of each trace (default: false)"`
}

// ProjectionOutput is the chart state returned by selection tools.
type ProjectionOutput struct {
	Selection series.Selection `json:"selection" jsonschema:"Current series selection"`
	XTitle    string           `json:"x_title" jsonschema:"X axis title"`
	YTitle    string           `json:"y_title" jsonschema:"Y axis title"`
	Options   []string         `json:"options" jsonschema:"All cells of the series"`
	Visible   []string         `json:"visible" jsonschema:"Cells drawn on the chart"`
	Hidden    []string         `json:"hidden" jsonschema:"Cells hidden through the legend"`
	Traces    []TraceSummary   `json:"traces" jsonschema:"One entry per cell"`
}

// TraceSummary describes one chart trace.
type TraceSummary struct {
	Name       string               `json:"name"`
	Visibility constants.Visibility `json:"visibility"`
	Points     int                  `json:"points"`
	Min        float64              `json:"min"`
	Max        float64              `json:"max"`
	Xs         []float64            `json:"xs,omitempty"`
	Ys         []float64            `json:"ys,omitempty"`
}

// HeatmapInput defines the input for simdash_heatmap tool.
type HeatmapInput struct {
	Primary   string `json:"primary,omitempty" jsonschema:"Top-level series name; empty uses the current selection"`
	Secondary string `json:"secondary,omitempty" jsonschema:"Sub-series name"`
}

// GlobalsInput defines the input for simdash_globals tool.
type GlobalsInput struct{}

// GlobalsOutput defines the output for simdash_globals tool.
type GlobalsOutput struct {
	Globals []export.GlobalRow `json:"globals" jsonschema:"Global results, empty before the first run"`
}

// TableInput defines the input for simdash_table tool.
type TableInput struct {
	Action string `json:"action" jsonschema:"One of: export, append, clear, show"`
}

// TableOutput defines the output for simdash_table tool.
type TableOutput struct {
	Applied bool                `json:"applied" jsonschema:"False when an append was ignored because nothing is chosen or the table is empty"`
	Batch   int                 `json:"batch,omitempty" jsonschema:"Batch number of an applied append"`
	Counter int                 `json:"counter" jsonschema:"Appends so far in this session"`
	Columns []accumulate.Column `json:"columns" jsonschema:"Columns, index first"`
	Records [][]string          `json:"records" jsonschema:"Header of display names followed by one record per row"`
}

// ExportInput defines the input for simdash_export tool.
type ExportInput struct {
	Path   string `json:"path" jsonschema:"File path relative to the export directory; the extension picks csv, arrow, json or sqlite"`
	Source string `json:"source,omitempty" jsonschema:"What to write: table (default) or globals"`
}

// ExportOutput defines the output for simdash_export tool.
type ExportOutput struct {
	Path   string `json:"path" jsonschema:"Absolute path written"`
	Format string `json:"format" jsonschema:"Format written"`
	Rows   int    `json:"rows" jsonschema:"Rows written"`
}

// ResetInput defines the input for simdash_reset tool.
type ResetInput struct{}

// StateOutput summarizes the session.
type StateOutput struct {
	Fingerprint string           `json:"fingerprint,omitempty"`
	Selection   series.Selection `json:"selection"`
	Reconciler  selection.State  `json:"reconciler"`
	TableRows   int              `json:"table_rows"`
	AppendCount int              `json:"append_count"`
}

// ChartInput defines the input for simdash_chart tool.
type ChartInput struct {
	Width  int `json:"width,omitempty" jsonschema:"Image width in pixels (default: 1024)"`
	Height int `json:"height,omitempty" jsonschema:"Image height in pixels (default: 480)"`
}

// ChartOutput defines the output for simdash_chart tool.
type ChartOutput struct {
	Traces int `json:"traces" jsonschema:"Traces drawn"`
	Bytes  int `json:"bytes" jsonschema:"PNG size"`
}

// CacheInput defines the input for simdash_cache tool.
type CacheInput struct {
	Prune bool `json:"prune,omitempty" jsonschema:"Drop expired entries first (default: false)"`
}

// CacheOutput defines the output for simdash_cache tool.
type CacheOutput struct {
	Stats      simcache.Stats `json:"stats" jsonschema:"Hit, miss and computation counters since start"`
	TTLSeconds float64        `json:"ttl_seconds" jsonschema:"Result lifetime in seconds"`
	Pruned     int            `json:"pruned,omitempty" jsonschema:"Expired entries dropped by this call"`
}

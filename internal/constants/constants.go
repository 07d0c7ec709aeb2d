// Package constants provides named constants used throughout simdash.
// This centralizes the well-known series names of the simulation output and
// the engine's defaults.
package constants

import "time"

// Well-known series names in the local result tree.
const (
	// DefaultAxisKey is the series holding node coordinates along the channel.
	// Every line, heatmap and table view is indexed by it.
	DefaultAxisKey = "Channel Location"

	// DefaultCellsKey is the series enumerating the discrete cells of the stack.
	DefaultCellsKey = "Cells"

	// DefaultSeriesKey is the series preselected after a run, when present.
	DefaultSeriesKey = "Current Density"
)

// DefaultExcludedKeys returns the local series that are never offered in the
// series dropdowns: coordinates, enumerations and per-channel metadata.
func DefaultExcludedKeys() []string {
	return []string{
		DefaultAxisKey,
		DefaultCellsKey,
		"Cathode",
		"Coolant Channels",
		"Normalized Flow Distribution",
	}
}

// Cache constants
const (
	// DefaultCacheTTL is how long a simulation result stays reusable.
	DefaultCacheTTL = 300 * time.Second

	// DefaultSimulationTimeout bounds a single external simulation run.
	DefaultSimulationTimeout = 10 * time.Minute
)

// Accumulation table constants
const (
	// AppendSeparator joins a cell name and its append batch number in column ids,
	// e.g. "Cell 1-2".
	AppendSeparator = "-"

	// GlobalSignificantDigits is the precision used when displaying global results.
	GlobalSignificantDigits = 5
)

// Chart rendering defaults
const (
	DefaultChartWidth  = 1024
	DefaultChartHeight = 480
)

// Server defaults
const (
	// DefaultServerAddr lets the OS pick a free local port.
	DefaultServerAddr = "localhost:0"

	// ShutdownTimeout bounds graceful HTTP shutdown.
	ShutdownTimeout = 5 * time.Second
)

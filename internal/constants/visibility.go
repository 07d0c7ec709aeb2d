package constants

// Visibility is how a chart trace is displayed.
type Visibility string

const (
	// VisibilityShown draws the trace in full.
	VisibilityShown Visibility = "shown"

	// VisibilityLegendOnly keeps the trace in the legend but does not draw it.
	VisibilityLegendOnly Visibility = "legend-only"
)

// Valid returns true if the visibility is a recognized value.
func (v Visibility) Valid() bool {
	switch v {
	case VisibilityShown, VisibilityLegendOnly:
		return true
	}
	return false
}

// String returns the string representation of the visibility.
func (v Visibility) String() string {
	return string(v)
}

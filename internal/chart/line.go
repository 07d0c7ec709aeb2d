// Package chart renders trace projections to PNG.
package chart

import (
	"errors"
	"fmt"
	"io"
	"math"

	"github.com/nvandessel/simdash/internal/constants"
	"github.com/nvandessel/simdash/internal/selection"
	gochart "github.com/wcharczuk/go-chart/v2"
)

// ErrNothingToRender is returned when no trace has at least two points.
var ErrNothingToRender = errors.New("no trace to render")

// Options controls the image size.
type Options struct {
	Width  int
	Height int
}

// DefaultOptions returns the default image size.
func DefaultOptions() Options {
	return Options{Width: constants.DefaultChartWidth, Height: constants.DefaultChartHeight}
}

// legendOnlyStyle draws hidden traces as thin dashed gray lines so they stay
// identifiable in the legend.
func legendOnlyStyle() gochart.Style {
	return gochart.Style{
		StrokeColor:     gochart.ColorAlternateGray.WithAlpha(96),
		StrokeWidth:     1,
		StrokeDashArray: []float64{4, 4},
	}
}

func shownStyle(i int) gochart.Style {
	col := gochart.GetDefaultColor(i)
	return gochart.Style{
		StrokeColor: col,
		StrokeWidth: 2,
		DotColor:    col,
		DotWidth:    3,
	}
}

// RenderPNG draws p as a line chart. Legend-only traces are drawn dimmed.
func RenderPNG(w io.Writer, p selection.Projection, opts Options) error {
	if opts.Width <= 0 || opts.Height <= 0 {
		opts = DefaultOptions()
	}

	var series []gochart.Series
	lo, hi := math.Inf(1), math.Inf(-1)
	for i, tr := range p.Traces {
		n := min(len(tr.Xs), len(tr.Ys))
		if n < 2 {
			continue
		}
		style := shownStyle(i)
		if tr.Visibility == constants.VisibilityLegendOnly {
			style = legendOnlyStyle()
		}
		for _, y := range tr.Ys[:n] {
			lo = math.Min(lo, y)
			hi = math.Max(hi, y)
		}
		series = append(series, gochart.ContinuousSeries{
			Name:    tr.Name,
			XValues: tr.Xs[:n],
			YValues: tr.Ys[:n],
			Style:   style,
		})
	}
	if len(series) == 0 {
		return ErrNothingToRender
	}

	// go-chart rejects a zero-height range.
	if lo == hi {
		pad := math.Max(math.Abs(lo)*0.05, 1)
		lo, hi = lo-pad, hi+pad
	}

	ch := gochart.Chart{
		Width:      opts.Width,
		Height:     opts.Height,
		Background: gochart.Style{Padding: gochart.Box{Top: 20, Left: 20, Right: 20, Bottom: 20}},
		XAxis:      gochart.XAxis{Name: p.XTitle},
		YAxis:      gochart.YAxis{Name: p.YTitle, Range: &gochart.ContinuousRange{Min: lo, Max: hi}},
		Series:     series,
	}
	ch.Elements = []gochart.Renderable{gochart.Legend(&ch)}

	if err := ch.Render(gochart.PNG, w); err != nil {
		return fmt.Errorf("failed to render chart: %w", err)
	}
	return nil
}

package export

import (
	"fmt"
	"io"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/plotutil"
	"gonum.org/v1/plot/vg"

	"github.com/RMahshie/smuacq/internal/acquisition"
)

// Plot size
const (
	PlotWidth  = 8 * vg.Inch
	PlotHeight = 5 * vg.Inch
)

// WritePlot draws Voltage and Current against Timestamp, in seconds from the
// first sample. Without a Timestamp column the sample index is used
func WritePlot(w io.Writer, res *acquisition.Result, f Format) error {
	if !f.IsImage() {
		return fmt.Errorf("%w: %q is not an image format", ErrUnsupportedFormat, string(f))
	}
	if res == nil || len(res.Samples) == 0 {
		return ErrNoData
	}

	x, xLabel := xAxis(res)

	p := plot.New()
	p.Title.Text = res.Mode.String()
	p.X.Label.Text = xLabel
	p.Y.Label.Text = "Value"
	p.Add(plotter.NewGrid())

	series := 0
	for _, q := range []acquisition.Quantity{acquisition.Voltage, acquisition.Current} {
		y, ok := res.Column(q)
		if !ok {
			continue
		}
		pts := make(plotter.XYs, len(y))
		for i := range y {
			pts[i].X = x[i]
			pts[i].Y = y[i]
		}
		line, err := plotter.NewLine(pts)
		if err != nil {
			return fmt.Errorf("plotting %s: %w", q, err)
		}
		line.Color = plotutil.Color(series)
		p.Add(line)
		p.Legend.Add(q.Label(), line)
		series++
	}
	if series == 0 {
		return fmt.Errorf("%w: neither voltage nor current was recorded", ErrNoData)
	}
	p.Legend.Top = true

	wt, err := p.WriterTo(PlotWidth, PlotHeight, string(f))
	if err != nil {
		return fmt.Errorf("rendering plot: %w", err)
	}
	if _, err := wt.WriteTo(w); err != nil {
		return fmt.Errorf("writing plot: %w", err)
	}
	return nil
}

func xAxis(res *acquisition.Result) ([]float64, string) {
	if ts, ok := res.Column(acquisition.Timestamp); ok {
		x := make([]float64, len(ts))
		for i, t := range ts {
			x[i] = t - ts[0]
		}
		return x, "Time (s)"
	}
	x := make([]float64, len(res.Samples))
	for i := range x {
		x[i] = float64(i)
	}
	return x, "Sample"
}

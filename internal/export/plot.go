// Package export renders recorded run series as image files.
package export

import (
	"errors"
	"fmt"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/plotutil"
	"gonum.org/v1/plot/vg"

	"github.com/san-kum/emsim/internal/storage"
)

var ErrSeriesLength = errors.New("export: x and y lengths differ")

const (
	Width  = 8 * vg.Inch
	Height = 4 * vg.Inch
)

type Series struct {
	Name string
	X, Y []float64
}

func (s Series) xys() (plotter.XYs, error) {
	if len(s.X) != len(s.Y) {
		return nil, fmt.Errorf("%w: %s has %d x and %d y", ErrSeriesLength, s.Name, len(s.X), len(s.Y))
	}
	pts := make(plotter.XYs, len(s.X))
	for i := range pts {
		pts[i].X = s.X[i]
		pts[i].Y = s.Y[i]
	}
	return pts, nil
}

// SavePlot draws each series as a line and writes the chart to path. The
// format follows the extension: png, svg, pdf or eps.
func SavePlot(path, title, xlabel, ylabel string, series ...Series) error {
	p := plot.New()
	p.Title.Text = title
	p.X.Label.Text = xlabel
	p.Y.Label.Text = ylabel
	p.Add(plotter.NewGrid())

	for i, s := range series {
		pts, err := s.xys()
		if err != nil {
			return err
		}
		line, err := plotter.NewLine(pts)
		if err != nil {
			return fmt.Errorf("plot %s: %w", s.Name, err)
		}
		line.Color = plotutil.Color(i)
		p.Add(line)
		p.Legend.Add(s.Name, line)
	}

	return p.Save(Width, Height, path)
}

// TableSeries pairs column x of t with each of the ys columns.
func TableSeries(t *storage.Table, x string, ys ...string) ([]Series, error) {
	xs := t.Column(x)
	if xs == nil {
		return nil, fmt.Errorf("table %s has no column %q", t.Name, x)
	}
	out := make([]Series, 0, len(ys))
	for _, y := range ys {
		col := t.Column(y)
		if col == nil {
			return nil, fmt.Errorf("table %s has no column %q", t.Name, y)
		}
		out = append(out, Series{Name: y, X: xs, Y: col})
	}
	return out, nil
}

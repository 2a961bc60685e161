package optim

import (
	"context"
	"errors"
	"fmt"
	"math"

	"golang.org/x/sync/errgroup"

	"github.com/san-kum/emsim/internal/config"
	"github.com/san-kum/emsim/internal/dynamo"
	"github.com/san-kum/emsim/internal/experiment"
	"github.com/san-kum/emsim/internal/sim"
)

// Point is one run of a sweep: the swept parameter values and the full
// configuration they produce.
type Point struct {
	Values []float64
	Config *config.Config
}

// Row is a finished point. A run that diverged keeps its parameters,
// reports NaN measurements and carries the error.
type Row struct {
	Values []float64
	Result *sim.Result
	Err    error
}

type Sweep struct {
	Name    string
	Columns []string
	Points  []Point

	measure func(r *sim.Result) []float64
}

// Run executes every point with at most workers runs in flight. Rows come
// back in point order. A configuration error or cancellation aborts the
// sweep; numeric divergence is recorded on the row.
func (s *Sweep) Run(ctx context.Context, workers int, opts ...experiment.Option) ([]Row, error) {
	if workers < 1 {
		workers = 1
	}
	rows := make([]Row, len(s.Points))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)

	for i, p := range s.Points {
		g.Go(func() error {
			exp, err := experiment.Build(p.Config, opts...)
			if err != nil {
				return fmt.Errorf("%s point %d: %w", s.Name, i, err)
			}

			res, err := exp.Run(gctx)
			row := Row{Result: res, Err: err}
			switch {
			case err == nil:
				row.Values = append(clone(p.Values), s.measure(res)...)
			case errors.Is(err, dynamo.ErrNumericDivergence):
				row.Values = append(clone(p.Values), nans(len(s.Columns)-len(p.Values))...)
			default:
				return err
			}
			rows[i] = row
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return rows, nil
}

func clone(v []float64) []float64 {
	return append(make([]float64, 0, len(v)), v...)
}

func nans(n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = math.NaN()
	}
	return out
}

// logRange returns from*10^(k/perDecade) for k = 0, 1, ... while the value
// stays within [from, to] (or [to, from] when descending).
func logRange(from, to float64, perDecade int) []float64 {
	decades := math.Log10(to / from)
	n := int(math.Floor(math.Abs(decades)*float64(perDecade) + 1e-9))
	sign := 1.0
	if decades < 0 {
		sign = -1
	}

	out := make([]float64, 0, n+1)
	for k := 0; k <= n; k++ {
		out = append(out, from*math.Pow(10, sign*float64(k)/float64(perDecade)))
	}
	return out
}

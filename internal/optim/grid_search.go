package optim

import (
	"context"
	"fmt"
	"math"
	"sort"

	"github.com/san-kum/emsim/internal/config"
	"github.com/san-kum/emsim/internal/dynamo"
	"github.com/san-kum/emsim/internal/experiment"
)

// Setters maps tunable parameter names onto a configuration.
var Setters = map[string]func(c *config.Config, v float64){
	"dt":           func(c *config.Config, v float64) { c.Dt = v },
	"tolerance":    func(c *config.Config, v float64) { c.Tolerance = v },
	"phase":        func(c *config.Config, v float64) { c.Fields.Phase = v },
	"electric":     func(c *config.Config, v float64) { c.Fields.Electric = v },
	"magnetic":     func(c *config.Config, v float64) { c.Fields.Magnetic = v },
	"speed":        func(c *config.Config, v float64) { c.Bunch.Speed = v },
	"speed_spread": func(c *config.Config, v float64) { c.Bunch.SpeedSpread = v },
	"spread_x":     func(c *config.Config, v float64) { c.Bunch.Spread.X = v },
	"spread_y":     func(c *config.Config, v float64) { c.Bunch.Spread.Y = v },
	"spread_z":     func(c *config.Config, v float64) { c.Bunch.Spread.Z = v },
}

func SetterNames() []string {
	names := make([]string, 0, len(Setters))
	for name := range Setters {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// GridSearch runs the full cartesian product of parameter values and keeps
// the point minimising a result metric.
type GridSearch struct {
	paramNames []string
	ranges     [][]float64
}

func NewGridSearch(params []string, ranges [][]float64) (*GridSearch, error) {
	if len(params) != len(ranges) {
		return nil, fmt.Errorf("%w: %d parameters but %d ranges", dynamo.ErrInvalidParameter, len(params), len(ranges))
	}
	for _, p := range params {
		if _, ok := Setters[p]; !ok {
			return nil, fmt.Errorf("%w: unknown parameter %q", dynamo.ErrInvalidParameter, p)
		}
	}
	return &GridSearch{paramNames: params, ranges: ranges}, nil
}

// Search returns the best parameters and metric value. Points that fail to
// build or run are skipped; if every point fails the best value is +Inf and
// the parameters are nil.
func (g *GridSearch) Search(
	ctx context.Context,
	base *config.Config,
	metricName string,
	opts ...experiment.Option,
) (map[string]float64, float64, error) {

	best := math.Inf(1)
	var bestParams map[string]float64

	g.searchRecursive(ctx, 0, make(map[string]float64), base, metricName, opts, &best, &bestParams)

	return bestParams, best, ctx.Err()
}

func (g *GridSearch) searchRecursive(
	ctx context.Context,
	depth int,
	current map[string]float64,
	base *config.Config,
	metricName string,
	opts []experiment.Option,
	best *float64,
	bestParams *map[string]float64,
) {
	if ctx.Err() != nil {
		return
	}

	if depth == len(g.paramNames) {
		cfg := base.Clone()
		for k, v := range current {
			Setters[k](cfg, v)
		}

		exp, err := experiment.Build(cfg, opts...)
		if err != nil {
			return
		}

		result, err := exp.Run(ctx)
		if err != nil {
			return
		}

		val, ok := result.Metrics[metricName]
		if ok && val < *best {
			*best = val
			*bestParams = make(map[string]float64)
			for k, v := range current {
				(*bestParams)[k] = v
			}
		}
		return
	}

	paramName := g.paramNames[depth]
	for _, val := range g.ranges[depth] {
		newParams := make(map[string]float64)
		for k, v := range current {
			newParams[k] = v
		}
		newParams[paramName] = val

		g.searchRecursive(ctx, depth+1, newParams, base, metricName, opts, best, bestParams)
	}
}

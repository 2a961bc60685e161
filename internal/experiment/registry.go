package experiment

import (
	"fmt"
	"sort"

	"github.com/san-kum/emsim/internal/dynamo"
	"github.com/san-kum/emsim/internal/integrators"
	"github.com/san-kum/emsim/internal/metrics"
	"github.com/san-kum/emsim/internal/sim"
)

type stepperFactory func(tol float64, policy integrators.AcceptancePolicy) dynamo.Stepper

type Registry struct {
	steppers map[dynamo.Algorithm]stepperFactory
	metrics  map[string]func(e *Experiment) sim.Metric
	defaults []string
}

func NewRegistry() *Registry {
	r := &Registry{
		steppers: make(map[dynamo.Algorithm]stepperFactory),
		metrics:  make(map[string]func(e *Experiment) sim.Metric),
	}

	fixed := func(alg dynamo.Algorithm) stepperFactory {
		return func(float64, integrators.AcceptancePolicy) dynamo.Stepper {
			s, _ := integrators.New(alg)
			return s
		}
	}
	r.steppers[dynamo.Euler] = fixed(dynamo.Euler)
	r.steppers[dynamo.EulerCromer] = fixed(dynamo.EulerCromer)
	r.steppers[dynamo.Heun] = fixed(dynamo.Heun)
	r.steppers[dynamo.Verlet] = fixed(dynamo.Verlet)
	r.steppers[dynamo.RK4] = fixed(dynamo.RK4)
	r.steppers[dynamo.RKF45] = func(tol float64, policy integrators.AcceptancePolicy) dynamo.Stepper {
		return integrators.NewRKF45(integrators.WithTolerance(tol), integrators.WithAcceptance(policy))
	}

	r.metrics["energy"] = func(*Experiment) sim.Metric { return metrics.NewEnergy() }
	r.metrics["energy_drift"] = func(*Experiment) sim.Metric { return metrics.NewEnergyDrift() }
	r.metrics["momentum_drift"] = func(*Experiment) sim.Metric { return metrics.NewMomentumDrift() }
	r.metrics["max_spread"] = func(*Experiment) sim.Metric { return metrics.NewMaxSpread() }
	r.metrics["mean_dt"] = func(*Experiment) sim.Metric { return metrics.NewMeanStep() }
	// A particle wider than the gap band misses the accelerating field.
	r.metrics["stability"] = func(e *Experiment) sim.Metric {
		return metrics.NewStability(e.cfg.Fields.GapFraction * e.Radius)
	}

	r.defaults = []string{"energy_drift", "momentum_drift", "max_spread", "mean_dt"}
	return r
}

func (r *Registry) GetStepper(alg dynamo.Algorithm, tol float64, policy integrators.AcceptancePolicy) (dynamo.Stepper, error) {
	fn, ok := r.steppers[alg]
	if !ok {
		return nil, fmt.Errorf("%w: %s", dynamo.ErrUnknownAlgorithm, alg)
	}
	return fn(tol, policy), nil
}

// Metrics instantiates the named metrics for e, or the defaults when names
// is empty.
func (r *Registry) Metrics(names []string, e *Experiment) ([]sim.Metric, error) {
	if len(names) == 0 {
		names = r.defaults
	}
	out := make([]sim.Metric, 0, len(names))
	for _, name := range names {
		fn, ok := r.metrics[name]
		if !ok {
			return nil, fmt.Errorf("%w: unknown metric %q", dynamo.ErrInvalidParameter, name)
		}
		out = append(out, fn(e))
	}
	return out, nil
}

func (r *Registry) ListAlgorithms() []string {
	names := make([]string, 0, len(r.steppers))
	for alg := range r.steppers {
		names = append(names, alg.String())
	}
	sort.Strings(names)
	return names
}

func (r *Registry) ListMetrics() []string {
	names := make([]string, 0, len(r.metrics))
	for name := range r.metrics {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

package integrators

import (
	"github.com/san-kum/emsim/internal/dynamo"
)

// DefaultTolerance is used by Step when no tolerance is configured.
const DefaultTolerance = 0.01

// Fehlberg stage weights. Row j builds stage j+2 from the base particle
// (leading 1) and the earlier increments.
var fehlbergStages = [5][]float64{
	{1, 1.0 / 4.0},
	{1, 3.0 / 32.0, 9.0 / 32.0},
	{1, 1932.0 / 2197.0, -7200.0 / 2197.0, 7296.0 / 2197.0},
	{1, 439.0 / 216.0, -8, 3680.0 / 513.0, -845.0 / 4104.0},
	{1, -8.0 / 27.0, 2, -3544.0 / 2565.0, 1859.0 / 4104.0, -11.0 / 40.0},
}

type RKF45 struct {
	Tolerance float64
	Policy    AcceptancePolicy
}

type Option func(*RKF45)

func WithTolerance(tol float64) Option {
	return func(r *RKF45) { r.Tolerance = tol }
}

func WithAcceptance(policy AcceptancePolicy) Option {
	return func(r *RKF45) { r.Policy = policy }
}

func NewRKF45(opts ...Option) *RKF45 {
	r := &RKF45{
		Tolerance: DefaultTolerance,
		Policy:    AcceptLegacy,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *RKF45) Step(f dynamo.Field, p *dynamo.Particle, dt float64) {
	r.StepAdaptive(f, p, dt, r.Tolerance)
}

// StepAdaptive takes one embedded 4(5) step and returns the candidate next
// step size for this particle.
func (r *RKF45) StepAdaptive(f dynamo.Field, p *dynamo.Particle, dt, tol float64) float64 {
	var k [6]Increment
	k[0] = cromerIncrement(p, dt)

	for j, weights := range fehlbergStages {
		stage := *p
		for i, w := range weights[1:] {
			stage = advance(stage, k[i], w)
		}
		evaluate(f, &stage)
		k[j+1] = slope(&stage, dt)
	}

	accepted, next := Adapt(*p, k, dt, tol, r.Policy)
	p.Position = accepted.Position
	p.Velocity = accepted.Velocity
	return next
}

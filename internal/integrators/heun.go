package integrators

import (
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/san-kum/emsim/internal/dynamo"
)

// Heun predicts the end of the step with Euler-Cromer on a copy and averages
// the start and end slopes. One force evaluation per step.
type Heun struct{}

func NewHeun() *Heun {
	return &Heun{}
}

func (h *Heun) Step(f dynamo.Field, p *dynamo.Particle, dt float64) {
	end := advance(*p, cromerIncrement(p, dt), 1)
	evaluate(f, &end)

	halfDt := 0.5 * dt
	p.Position = r3.Add(p.Position, r3.Scale(halfDt, r3.Add(p.Velocity, end.Velocity)))
	p.Velocity = r3.Add(p.Velocity, r3.Scale(halfDt, r3.Add(p.Acceleration, end.Acceleration)))
}

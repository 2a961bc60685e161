package integrators

import (
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/san-kum/emsim/internal/dynamo"
)

// Verlet is velocity Verlet. The new acceleration is evaluated at the
// updated position with the start-of-step velocity.
type Verlet struct{}

func NewVerlet() *Verlet {
	return &Verlet{}
}

func (v *Verlet) Step(f dynamo.Field, p *dynamo.Particle, dt float64) {
	aOld := p.Acceleration

	p.Position = r3.Add(p.Position, r3.Add(r3.Scale(dt, p.Velocity), r3.Scale(0.5*dt*dt, aOld)))

	probe := *p
	aNew := f.Acceleration(&probe)

	p.Velocity = r3.Add(p.Velocity, r3.Scale(0.5*dt, r3.Add(aOld, aNew)))
}

package integrators

import (
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/san-kum/emsim/internal/dynamo"
)

// RK4 is the classical fourth-order scheme. The first stage is the
// Euler-Cromer increment; the later stages step forward from the base
// particle using the midpoint and endpoint slopes.
type RK4 struct{}

func NewRK4() *RK4 {
	return &RK4{}
}

func (r *RK4) Step(f dynamo.Field, p *dynamo.Particle, dt float64) {
	k1 := cromerIncrement(p, dt)

	stage := advance(*p, k1, 0.5)
	evaluate(f, &stage)
	k2 := slope(&stage, dt)

	stage = advance(*p, k2, 0.5)
	evaluate(f, &stage)
	k3 := slope(&stage, dt)

	stage = advance(*p, k3, 1)
	evaluate(f, &stage)
	k4 := slope(&stage, dt)

	dr := r3.Add(r3.Add(k1.Position, r3.Scale(2, k2.Position)), r3.Add(r3.Scale(2, k3.Position), k4.Position))
	dv := r3.Add(r3.Add(k1.Velocity, r3.Scale(2, k2.Velocity)), r3.Add(r3.Scale(2, k3.Velocity), k4.Velocity))

	p.Position = r3.Add(p.Position, r3.Scale(1.0/6.0, dr))
	p.Velocity = r3.Add(p.Velocity, r3.Scale(1.0/6.0, dv))
}

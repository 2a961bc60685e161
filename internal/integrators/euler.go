package integrators

import (
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/san-kum/emsim/internal/dynamo"
)

type Euler struct{}

func NewEuler() *Euler {
	return &Euler{}
}

// Step moves the position with the old velocity, then updates the velocity.
func (e *Euler) Step(_ dynamo.Field, p *dynamo.Particle, dt float64) {
	p.Position = r3.Add(p.Position, r3.Scale(dt, p.Velocity))
	p.Velocity = r3.Add(p.Velocity, r3.Scale(dt, p.Acceleration))
}

// EulerCromer is the semi-implicit variant: the position uses the updated
// velocity.
type EulerCromer struct{}

func NewEulerCromer() *EulerCromer {
	return &EulerCromer{}
}

func (e *EulerCromer) Step(_ dynamo.Field, p *dynamo.Particle, dt float64) {
	k := cromerIncrement(p, dt)
	p.Velocity = r3.Add(p.Velocity, k.Velocity)
	p.Position = r3.Add(p.Position, k.Position)
}

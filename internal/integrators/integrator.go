package integrators

import (
	"fmt"

	"gonum.org/v1/gonum/spatial/r3"

	"github.com/san-kum/emsim/internal/dynamo"
)

// Increment is a (position, velocity) change produced by one stage.
type Increment struct {
	Position r3.Vec
	Velocity r3.Vec
}

// New returns the stepper for alg. Options only affect RKF45.
func New(alg dynamo.Algorithm, opts ...Option) (dynamo.Stepper, error) {
	switch alg {
	case dynamo.Euler:
		return NewEuler(), nil
	case dynamo.EulerCromer:
		return NewEulerCromer(), nil
	case dynamo.Heun:
		return NewHeun(), nil
	case dynamo.Verlet:
		return NewVerlet(), nil
	case dynamo.RK4:
		return NewRK4(), nil
	case dynamo.RKF45:
		r := NewRKF45()
		for _, opt := range opts {
			opt(r)
		}
		return r, nil
	default:
		return nil, fmt.Errorf("%w: %d", dynamo.ErrUnknownAlgorithm, int(alg))
	}
}

// cromerIncrement is the Euler-Cromer update: velocity first, then the
// position with the updated velocity.
func cromerIncrement(p *dynamo.Particle, dt float64) Increment {
	dv := r3.Scale(dt, p.Acceleration)
	return Increment{
		Position: r3.Scale(dt, r3.Add(p.Velocity, dv)),
		Velocity: dv,
	}
}

// slope is the forward step from base driven by a stage's velocity and
// acceleration.
func slope(stage *dynamo.Particle, dt float64) Increment {
	return Increment{
		Position: r3.Scale(dt, stage.Velocity),
		Velocity: r3.Scale(dt, stage.Acceleration),
	}
}

// advance returns a detached copy of p moved by w*k.
func advance(p dynamo.Particle, k Increment, w float64) dynamo.Particle {
	p.Position = r3.Add(p.Position, r3.Scale(w, k.Position))
	p.Velocity = r3.Add(p.Velocity, r3.Scale(w, k.Velocity))
	return p
}

// evaluate assigns the force model's acceleration to a stage copy.
func evaluate(f dynamo.Field, stage *dynamo.Particle) {
	stage.Acceleration = f.Acceleration(stage)
}

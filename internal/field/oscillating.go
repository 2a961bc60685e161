package field

import (
	"math"

	"gonum.org/v1/gonum/spatial/r3"
)

// Oscillating is a field whose components follow amp*sin(omega*t + phase)
// independently per axis. Electric and Magnetic return the values set by
// the last Update.
type Oscillating struct {
	E0, B0         r3.Vec
	OmegaE, OmegaB r3.Vec
	PhaseE, PhaseB r3.Vec

	electric r3.Vec
	magnetic r3.Vec
}

func NewOscillating(e0, omegaE, phaseE, b0, omegaB, phaseB r3.Vec) *Oscillating {
	o := &Oscillating{
		E0: e0, OmegaE: omegaE, PhaseE: phaseE,
		B0: b0, OmegaB: omegaB, PhaseB: phaseB,
	}
	o.Update(0)
	return o
}

func (o *Oscillating) Update(t float64) {
	o.electric = sinusoid(o.E0, o.OmegaE, o.PhaseE, t)
	o.magnetic = sinusoid(o.B0, o.OmegaB, o.PhaseB, t)
}

func (o *Oscillating) Electric() r3.Vec { return o.electric }
func (o *Oscillating) Magnetic() r3.Vec { return o.magnetic }

// SetOmega rescales the electric angular frequency to magnitude w while
// keeping its direction.
func (o *Oscillating) SetOmega(w float64) {
	n := r3.Norm(o.OmegaE)
	if n == 0 {
		return
	}
	o.OmegaE = r3.Scale(w/n, o.OmegaE)
}

func sinusoid(amp, omega, phase r3.Vec, t float64) r3.Vec {
	return r3.Vec{
		X: amp.X * math.Sin(omega.X*t+phase.X),
		Y: amp.Y * math.Sin(omega.Y*t+phase.Y),
		Z: amp.Z * math.Sin(omega.Z*t+phase.Z),
	}
}

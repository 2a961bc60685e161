// Package bunch aggregates an ensemble of particles: averages, spreads,
// energy, angular momentum and the expected energy gain from a cyclotron
// gap crossing.
//
// Cached aggregates are only refreshed by the method that computes them.
// Reductions are serial, so results do not depend on scheduling.
package bunch

import (
	"math"
	"math/rand"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/san-kum/emsim/internal/dynamo"
)

// Axis selects a Cartesian component.
type Axis int

const (
	X Axis = iota
	Y
	Z
)

func (a Axis) String() string {
	return [...]string{"x", "y", "z"}[a]
}

func (a Axis) of(v r3.Vec) float64 {
	switch a {
	case X:
		return v.X
	case Y:
		return v.Y
	default:
		return v.Z
	}
}

type Bunch struct {
	Particles []dynamo.Particle

	avgPos r3.Vec
	avgVel r3.Vec

	KE, PE float64
	L      float64
}

// New scatters n copies of proto uniformly within +/-spread of the origin
// on each axis, moving along +y with speed drawn uniformly from
// v*(1 +/- vSpread). The bunch is re-centred on the origin.
func New(proto dynamo.Particle, n int, v, vSpread float64, spread r3.Vec, rng *rand.Rand) *Bunch {
	ps := make([]dynamo.Particle, n)
	for i := range ps {
		p := proto
		p.Position = r3.Vec{
			X: spread.X * (2*rng.Float64() - 1),
			Y: spread.Y * (2*rng.Float64() - 1),
			Z: spread.Z * (2*rng.Float64() - 1),
		}
		p.Velocity = r3.Vec{Y: v + vSpread*v*(2*rng.Float64()-1)}
		p.Acceleration = r3.Vec{}
		ps[i] = p
	}

	b := FromParticles(ps)
	b.ReAlign()
	return b
}

func FromParticles(ps []dynamo.Particle) *Bunch {
	b := &Bunch{Particles: ps}
	b.Recompute()
	return b
}

func (b *Bunch) Len() int { return len(b.Particles) }

func (b *Bunch) Clone() *Bunch {
	c := *b
	c.Particles = make([]dynamo.Particle, len(b.Particles))
	copy(c.Particles, b.Particles)
	return &c
}

// Recompute refreshes the average position and velocity.
func (b *Bunch) Recompute() {
	var pos, vel r3.Vec
	for i := range b.Particles {
		pos = r3.Add(pos, b.Particles[i].Position)
		vel = r3.Add(vel, b.Particles[i].Velocity)
	}
	n := float64(len(b.Particles))
	if n == 0 {
		b.avgPos, b.avgVel = r3.Vec{}, r3.Vec{}
		return
	}
	b.avgPos = r3.Vec{X: pos.X / n, Y: pos.Y / n, Z: pos.Z / n}
	b.avgVel = r3.Vec{X: vel.X / n, Y: vel.Y / n, Z: vel.Z / n}
}

func (b *Bunch) AveragePosition() r3.Vec { return b.avgPos }
func (b *Bunch) AverageVelocity() r3.Vec { return b.avgVel }

// ReAlign shifts every particle so the average position is the origin.
func (b *Bunch) ReAlign() {
	b.Recompute()
	shift := b.avgPos
	for i := range b.Particles {
		b.Particles[i].Position = r3.Sub(b.Particles[i].Position, shift)
	}
	b.Recompute()
}

// Spread is the largest distance of any particle from the cached average
// position along axis.
func (b *Bunch) Spread(axis Axis) float64 {
	if len(b.Particles) == 0 {
		return 0
	}
	dev := make([]float64, len(b.Particles))
	for i := range b.Particles {
		dev[i] = math.Abs(axis.of(r3.Sub(b.Particles[i].Position, b.avgPos)))
	}
	return floats.Max(dev)
}

func (b *Bunch) Spreads() r3.Vec {
	return r3.Vec{X: b.Spread(X), Y: b.Spread(Y), Z: b.Spread(Z)}
}

// Energy caches KE and PE on every particle and returns the totals. q0 is
// the point charge at centre and field the uniform magnetic field.
func (b *Bunch) Energy(q0 float64, centre, field r3.Vec) (ke, pe float64) {
	kes := make([]float64, len(b.Particles))
	pes := make([]float64, len(b.Particles))
	for i := range b.Particles {
		kes[i] = b.Particles[i].CalcKE()
		pes[i] = b.Particles[i].CalcPE(q0, centre, field)
	}
	b.KE = floats.Sum(kes)
	b.PE = floats.Sum(pes)
	return b.KE, b.PE
}

// Total returns the cached KE + PE.
func (b *Bunch) Total() float64 { return b.KE + b.PE }

// AngularMomentum is |sum m (r - centre) x v|. Vectors are summed before
// taking the magnitude, so counter-rotating particles cancel.
func (b *Bunch) AngularMomentum(centre r3.Vec) float64 {
	var l r3.Vec
	for i := range b.Particles {
		p := &b.Particles[i]
		l = r3.Add(l, r3.Scale(p.Mass, r3.Cross(r3.Sub(p.Position, centre), p.Velocity)))
	}
	b.L = r3.Norm(l)
	return b.L
}

// EnergyGain sums the energy each particle is expected to pick up when
// crossing a gap of voltage v at time t, with a phase correction for its
// offset along y:
//
//	dE = 2 q V sin(w t + phase + y q B / (vy m)),  w = q B / m
func (b *Bunch) EnergyGain(t, v, field, phase float64) float64 {
	gains := make([]float64, len(b.Particles))
	for i := range b.Particles {
		p := &b.Particles[i]
		omega := p.Charge * field / p.Mass
		dphase := p.Position.Y * p.Charge * field / (p.Velocity.Y * p.Mass)
		gains[i] = 2 * p.Charge * v * math.Sin(omega*t+phase+dphase)
	}
	return floats.Sum(gains)
}

// SynchronousEnergyGain is EnergyGain for a particle exactly on the
// synchronous phase.
func (b *Bunch) SynchronousEnergyGain(t, v, field, phase float64) float64 {
	gains := make([]float64, len(b.Particles))
	for i := range b.Particles {
		p := &b.Particles[i]
		omega := p.Charge * field / p.Mass
		gains[i] = 2 * p.Charge * v * math.Sin(omega*t+phase)
	}
	return floats.Sum(gains)
}

// Valid reports whether every position and velocity is finite.
func (b *Bunch) Valid() bool {
	for i := range b.Particles {
		if !b.Particles[i].IsValid() {
			return false
		}
	}
	return true
}

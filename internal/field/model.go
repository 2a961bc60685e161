// Package field evaluates the electromagnetic acceleration on a particle.
//
// A single Model carries every field the simulator knows about and a set of
// capability flags selecting which of them act. Contributions are summed.
package field

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/spatial/r3"

	"github.com/san-kum/emsim/internal/dynamo"
)

// DefaultFailingFactor scales the magnetic field on the x < 0 half plane.
const DefaultFailingFactor = 0.9

// Config selects the active field contributions.
type Config struct {
	UniformMagnetic bool `yaml:"uniform_magnetic"`
	FailingField    bool `yaml:"failing_field"`
	PointCharge     bool `yaml:"point_charge"`
	CyclotronGap    bool `yaml:"cyclotron_gap"`
}

func (c Config) String() string {
	return fmt.Sprintf("magnetic=%t failing=%t point_charge=%t cyclotron=%t",
		c.UniformMagnetic, c.FailingField, c.PointCharge, c.CyclotronGap)
}

// PointCharge is a static charge Q at Position.
type PointCharge struct {
	Position r3.Vec
	Charge   float64
}

// ElectricField returns k Q r/|r|^3 with r measured from the charge.
func (c PointCharge) ElectricField(at r3.Vec) r3.Vec {
	r := r3.Sub(at, c.Position)
	d := r3.Norm(r)
	return r3.Scale(dynamo.CoulombConstant*c.Charge/(d*d*d), r)
}

// Model is the composite field. B is the guiding magnetic field; it also
// sets the failing field's magnitude.
type Model struct {
	Config Config

	B             r3.Vec
	FailingFactor float64
	Charge        PointCharge

	// Gap is the accelerating field, applied while |y| < GapHalfWidth.
	Gap          *Oscillating
	GapHalfWidth float64
}

func New(cfg Config, b r3.Vec) *Model {
	return &Model{
		Config:        cfg,
		B:             b,
		FailingFactor: DefaultFailingFactor,
	}
}

// Update advances the oscillating gap field to time t.
func (m *Model) Update(t float64) {
	if m.Gap != nil {
		m.Gap.Update(t)
	}
}

// Acceleration returns (q/m)(E + v x B) summed over the active fields. It
// does not modify p.
func (m *Model) Acceleration(p *dynamo.Particle) r3.Vec {
	qm := p.ChargeToMass()
	var a r3.Vec

	switch {
	case m.Config.FailingField:
		b := m.B
		if p.Position.X < 0 {
			b = r3.Scale(m.FailingFactor, b)
		}
		a = r3.Add(a, r3.Scale(qm, r3.Cross(p.Velocity, b)))
	case m.Config.UniformMagnetic, m.Config.CyclotronGap:
		a = r3.Add(a, r3.Scale(qm, r3.Cross(p.Velocity, m.B)))
	}

	if m.Config.PointCharge {
		a = r3.Add(a, r3.Scale(qm, m.Charge.ElectricField(p.Position)))
	}

	if m.Config.CyclotronGap && m.Gap != nil && math.Abs(p.Position.Y) < m.GapHalfWidth {
		lorentz := r3.Add(m.Gap.Electric(), r3.Cross(p.Velocity, m.Gap.Magnetic()))
		a = r3.Add(a, r3.Scale(qm, lorentz))
	}

	return a
}

package metrics

import (
	"math"

	"github.com/san-kum/emsim/internal/sim"
)

// Energy is the mean total energy over the observed snapshots.
type Energy struct {
	name        string
	samples     int
	totalEnergy float64
}

func NewEnergy() *Energy {
	return &Energy{name: "energy"}
}

func (e *Energy) Name() string { return e.name }

func (e *Energy) Observe(s sim.Snapshot) {
	e.totalEnergy += s.Energy()
	e.samples++
}

func (e *Energy) Value() float64 {
	if e.samples == 0 {
		return 0
	}
	return e.totalEnergy / float64(e.samples)
}

func (e *Energy) Reset() {
	e.totalEnergy = 0
	e.samples = 0
}

// drift tracks the largest relative departure of a quantity from its first
// observed value.
type drift struct {
	initial  float64
	maxDrift float64
	samples  int
}

func (d *drift) observe(v float64) {
	if d.samples == 0 {
		d.initial = v
	}
	d.samples++

	if d.initial != 0 {
		d.maxDrift = math.Max(d.maxDrift, math.Abs(v-d.initial)/math.Abs(d.initial))
	}
}

type EnergyDrift struct {
	name string
	drift
}

func NewEnergyDrift() *EnergyDrift {
	return &EnergyDrift{name: "energy_drift"}
}

func (e *EnergyDrift) Name() string           { return e.name }
func (e *EnergyDrift) Observe(s sim.Snapshot) { e.observe(s.Energy()) }
func (e *EnergyDrift) Value() float64         { return e.maxDrift }
func (e *EnergyDrift) Reset()                 { e.drift = drift{} }

// MomentumDrift is EnergyDrift for the angular momentum magnitude.
type MomentumDrift struct {
	name string
	drift
}

func NewMomentumDrift() *MomentumDrift {
	return &MomentumDrift{name: "momentum_drift"}
}

func (m *MomentumDrift) Name() string           { return m.name }
func (m *MomentumDrift) Observe(s sim.Snapshot) { m.observe(s.L) }
func (m *MomentumDrift) Value() float64         { return m.maxDrift }
func (m *MomentumDrift) Reset()                 { m.drift = drift{} }

package metrics

import (
	"math"

	"github.com/san-kum/emsim/internal/sim"
)

// Stability is the fraction of snapshots in which no axis of the bunch
// spread exceeds threshold.
type Stability struct {
	name       string
	threshold  float64
	violations int
	samples    int
}

func NewStability(threshold float64) *Stability {
	return &Stability{
		name:      "stability",
		threshold: threshold,
	}
}

func (s *Stability) Name() string {
	return s.name
}

func (s *Stability) Observe(snap sim.Snapshot) {
	s.samples++
	if widest(snap) > s.threshold {
		s.violations++
	}
}

func (s *Stability) Value() float64 {
	if s.samples == 0 {
		return 1.0
	}
	return 1.0 - float64(s.violations)/float64(s.samples)
}

func (s *Stability) Reset() {
	s.violations = 0
	s.samples = 0
}

// MaxSpread is the widest per-axis spread seen.
type MaxSpread struct {
	name string
	max  float64
}

func NewMaxSpread() *MaxSpread {
	return &MaxSpread{name: "max_spread"}
}

func (m *MaxSpread) Name() string { return m.name }

func (m *MaxSpread) Observe(snap sim.Snapshot) {
	m.max = math.Max(m.max, widest(snap))
}

func (m *MaxSpread) Value() float64 { return m.max }
func (m *MaxSpread) Reset()         { m.max = 0 }

func widest(snap sim.Snapshot) float64 {
	return math.Max(snap.Spread.X, math.Max(snap.Spread.Y, snap.Spread.Z))
}

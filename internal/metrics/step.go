package metrics

import "github.com/san-kum/emsim/internal/sim"

// MeanStep is the average time step across snapshots. It only differs from
// the configured step for adaptive runs.
type MeanStep struct {
	name    string
	sum     float64
	samples int
}

func NewMeanStep() *MeanStep {
	return &MeanStep{
		name: "mean_dt",
	}
}

func (m *MeanStep) Name() string {
	return m.name
}

func (m *MeanStep) Observe(s sim.Snapshot) {
	m.sum += s.Dt
	m.samples++
}

func (m *MeanStep) Value() float64 {
	if m.samples == 0 {
		return 0
	}
	return m.sum / float64(m.samples)
}

func (m *MeanStep) Reset() {
	m.sum = 0
	m.samples = 0
}

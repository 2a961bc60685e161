package optim

import (
	"context"
	"io"
	"log/slog"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/san-kum/emsim/internal/bunch"
	"github.com/san-kum/emsim/internal/config"
	"github.com/san-kum/emsim/internal/dynamo"
	"github.com/san-kum/emsim/internal/experiment"
	"github.com/san-kum/emsim/internal/sim"
)

var quiet = experiment.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil)))

func TestLogRange(t *testing.T) {
	up := logRange(1e-8, 0.1, 10)
	require.Len(t, up, 71)
	assert.InEpsilon(t, 1e-8, up[0], 1e-12)
	assert.InEpsilon(t, 0.1, up[70], 1e-9)

	down := logRange(1e-2, 1e-6, 20)
	require.Len(t, down, 81)
	assert.InEpsilon(t, 1e-6, down[80], 1e-9)
	for i := 1; i < len(down); i++ {
		assert.Less(t, down[i], down[i-1])
	}
}

func TestScanShapes(t *testing.T) {
	base := config.DefaultConfig()

	tests := []struct {
		sweep   *Sweep
		points  int
		first   float64
		last    float64
		columns int
	}{
		{PhaseScan(base), 101, 0, 2, 3},
		{SpreadScan(base, bunch.Y), 71, 1e-8, 0.1, 2},
		{VelocitySpreadScan(base, false), 77, 1e-8, math.Pow(10, 7.6) * 1e-8, 2},
		{TimeStepScan(base, dynamo.RK4, true), 81, 1e-2, 1e-6, 3},
		{ToleranceScan(base, false), 27, 0.5, 0.5 * math.Pow(10, -2.6), 4},
	}

	for _, tt := range tests {
		t.Run(tt.sweep.Name, func(t *testing.T) {
			require.Len(t, tt.sweep.Points, tt.points)
			assert.Len(t, tt.sweep.Columns, tt.columns)
			if tt.first == 0 {
				assert.Zero(t, tt.sweep.Points[0].Values[0])
			} else {
				assert.InEpsilon(t, tt.first, tt.sweep.Points[0].Values[0], 1e-9)
			}
			assert.InEpsilon(t, tt.last, tt.sweep.Points[tt.points-1].Values[0], 1e-9)

			for _, p := range tt.sweep.Points {
				assert.NoError(t, p.Config.Validate())
			}
		})
	}
}

func TestScanOverridesDoNotLeak(t *testing.T) {
	base := config.DefaultConfig()
	s := PhaseScan(base)

	assert.Equal(t, "euler", base.Algorithm)
	assert.True(t, base.Fields.UniformMagnetic)

	p := s.Points[25].Config
	assert.Equal(t, "heun", p.Algorithm)
	assert.True(t, p.Fields.CyclotronGap)
	assert.False(t, p.Fields.UniformMagnetic)
	assert.InEpsilon(t, math.Pi/2, p.Fields.Phase, 1e-12)
	assert.Equal(t, 1, p.Bunch.Particles)
}

func TestVelocitySpreadScanFailing(t *testing.T) {
	s := VelocitySpreadScan(config.DefaultConfig(), true)
	assert.Equal(t, "velocity-spread-failing", s.Name)
	assert.True(t, s.Points[0].Config.Fields.FailingField)
	assert.True(t, s.Points[0].Config.Fields.CyclotronGap)
}

func TestByName(t *testing.T) {
	base := config.DefaultConfig()
	for _, name := range ScanNames() {
		sweeps, err := ByName(name, base)
		require.NoError(t, err, name)
		assert.NotEmpty(t, sweeps, name)
	}

	dt, _ := ByName(ScanTimeStep, base)
	assert.Len(t, dt, 10)

	_, err := ByName("temperature", base)
	assert.ErrorIs(t, err, dynamo.ErrInvalidParameter)
}

// short truncates a sweep to its first n points, each capped at a few
// iterations.
func short(s *Sweep, n int) *Sweep {
	s.Points = s.Points[:n]
	for _, p := range s.Points {
		p.Config.MaxIterations = 20
	}
	return s
}

func TestSweepRunKeepsPointOrder(t *testing.T) {
	s := short(PhaseScan(config.DefaultConfig()), 6)

	rows, err := s.Run(context.Background(), 3, quiet)
	require.NoError(t, err)
	require.Len(t, rows, 6)

	for i, row := range rows {
		require.NoError(t, row.Err)
		require.Len(t, row.Values, len(s.Columns))
		assert.InDelta(t, float64(i)/50, row.Values[0], 1e-12)
		assert.Equal(t, sim.ReasonMaxIterations, row.Result.Reason)
	}
}

func TestSweepAbortsOnInvalidPoint(t *testing.T) {
	s := short(TimeStepScan(config.DefaultConfig(), dynamo.Euler, false), 3)
	s.Points[1].Config.Dt = 0

	_, err := s.Run(context.Background(), 2, quiet)
	assert.ErrorIs(t, err, dynamo.ErrInvalidParameter)
}

func TestSweepRecordsDivergence(t *testing.T) {
	s := short(TimeStepScan(config.DefaultConfig(), dynamo.Euler, false), 2)
	// The first step overflows the velocity.
	for _, p := range s.Points {
		p.Config.Fields.Magnetic = 1e308
	}

	rows, err := s.Run(context.Background(), 1, quiet)
	require.NoError(t, err)
	for _, row := range rows {
		assert.ErrorIs(t, row.Err, dynamo.ErrNumericDivergence)
		assert.True(t, math.IsNaN(row.Values[1]))
	}
}

func TestSweepHonoursCancellation(t *testing.T) {
	s := short(PhaseScan(config.DefaultConfig()), 4)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := s.Run(ctx, 2, quiet)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestGridSearch(t *testing.T) {
	base, err := config.GetPreset("euler-cromer-magnetic")
	require.NoError(t, err)
	base.Turns = 1
	base.Output.WriteEvery = 1000

	g, err := NewGridSearch([]string{"dt"}, [][]float64{{1e-3, 1e-4}})
	require.NoError(t, err)

	params, best, err := g.Search(context.Background(), base, "energy_drift", quiet)
	require.NoError(t, err)
	assert.Equal(t, 1e-4, params["dt"])
	assert.Greater(t, best, 0.0)
}

func TestNewGridSearchValidates(t *testing.T) {
	_, err := NewGridSearch([]string{"dt"}, nil)
	assert.ErrorIs(t, err, dynamo.ErrInvalidParameter)

	_, err = NewGridSearch([]string{"gravity"}, [][]float64{{1}})
	assert.ErrorIs(t, err, dynamo.ErrInvalidParameter)

	assert.Contains(t, SetterNames(), "phase")
}

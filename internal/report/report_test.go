package report

import (
	"bytes"
	"math"
	"testing"
	"time"

	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/require"

	"github.com/san-kum/emsim/internal/config"
	"github.com/san-kum/emsim/internal/field"
	"github.com/san-kum/emsim/internal/sim"
)

var stamp = time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

func golden(t *testing.T) *goldie.Goldie {
	return goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
}

func TestParameterHeader(t *testing.T) {
	adaptive := config.DefaultConfig()
	adaptive.Algorithm = "rkf45"
	adaptive.Dt = 1e-4
	adaptive.Turns = 50
	adaptive.Stop = ""
	adaptive.Seed = 7
	adaptive.Fields.Config = field.Config{CyclotronGap: true}
	adaptive.Bunch.Particles = 1
	adaptive.Bunch.Spread = config.Vec{X: 0.01}
	adaptive.Bunch.SpreadInRadii = false
	adaptive.Bunch.SpeedSpread = 0.1

	tests := []struct {
		name   string
		golden string
		cfg    *config.Config
	}{
		{"user", "header_euler", config.DefaultConfig()},
		{"rkf45-cyclotron", "header_rkf45", adaptive},
	}

	for _, tt := range tests {
		t.Run(tt.golden, func(t *testing.T) {
			var buf bytes.Buffer
			require.NoError(t, ParameterHeader(&buf, tt.name, tt.cfg, stamp))
			golden(t).Assert(t, tt.golden, buf.Bytes())
		})
	}
}

func TestSummary(t *testing.T) {
	tests := []struct {
		golden string
		result *sim.Result
	}{
		{
			golden: "summary_cyclotron",
			result: &sim.Result{
				Reason:          sim.ReasonTurns,
				Iterations:      1000,
				Turns:           10,
				Time:            21,
				FinalDt:         0.021,
				Initial:         sim.Conserved{KE: 2, PE: -1, L: 4},
				Final:           sim.Conserved{KE: 3, PE: -1, L: 4.4},
				ExpectedPeriod:  2,
				ExpectedGain:    0.8,
				SynchronousGain: 1,
				Fields:          field.Config{CyclotronGap: true},
				Metrics:         map[string]float64{"max_spread": 0.25, "energy_drift": 0.5},
				Elapsed:         1500 * time.Millisecond,
			},
		},
		{
			golden: "summary_magnetic",
			result: &sim.Result{
				Reason:         sim.ReasonTurns,
				Iterations:     500,
				Turns:          2,
				Time:           4,
				FinalDt:        0.008,
				RejectedSteps:  3,
				Initial:        sim.Conserved{KE: 4, L: 2},
				Final:          sim.Conserved{KE: 5, L: 2},
				ExpectedPeriod: 2,
				Fields:         field.Config{UniformMagnetic: true},
				Elapsed:        250 * time.Millisecond,
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.golden, func(t *testing.T) {
			var buf bytes.Buffer
			require.NoError(t, Summary(&buf, tt.result))
			golden(t).Assert(t, tt.golden, buf.Bytes())
		})
	}
}

func TestTable(t *testing.T) {
	var buf bytes.Buffer
	err := Table(&buf,
		[]string{"phi/pi", "delta_KE_%", "expected_dKE_%"},
		[][]float64{{0, 1.5, 2}, {0.02, math.NaN(), 1e-9}},
	)
	require.NoError(t, err)
	golden(t).Assert(t, "sweep_table", buf.Bytes())
}

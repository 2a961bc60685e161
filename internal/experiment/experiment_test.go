package experiment

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/san-kum/emsim/internal/bunch"
	"github.com/san-kum/emsim/internal/config"
	"github.com/san-kum/emsim/internal/dynamo"
	"github.com/san-kum/emsim/internal/integrators"
	"github.com/san-kum/emsim/internal/sim"
)

var quiet = slog.New(slog.NewTextHandler(io.Discard, nil))

func preset(t *testing.T, name string) *config.Config {
	t.Helper()
	cfg, err := config.GetPreset(name)
	require.NoError(t, err)
	return cfg
}

func TestBuildDerivesOrbit(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Bunch.Particles = 10

	e, err := Build(cfg, WithLogger(quiet))
	require.NoError(t, err)

	period := 2 * math.Pi * dynamo.ProtonMass / (dynamo.ProtonCharge * cfg.Fields.Magnetic)
	assert.InEpsilon(t, period, e.Period, 1e-12)
	assert.InEpsilon(t, cfg.Bunch.Speed*period/(2*math.Pi), e.Radius, 1e-12)

	assert.Equal(t, r3.Vec{X: e.Radius}, e.Reference().Centre)
	assert.Equal(t, r3.Vec{Z: cfg.Fields.Magnetic}, e.Reference().Field)
	assert.Zero(t, e.Reference().PointCharge)
	assert.Zero(t, e.Reference().Voltage)
	assert.Nil(t, e.Model().Gap)

	assert.Equal(t, 10, e.Bunch().Len())
	assert.InDelta(t, 0, r3.Norm(e.Bunch().AveragePosition()), 1e-12)
	assert.Equal(t, dynamo.Euler, e.Algorithm())
}

func TestBuildPointChargeHoldsNominalOrbit(t *testing.T) {
	cfg := preset(t, "euler-electric")

	e, err := Build(cfg, WithLogger(quiet))
	require.NoError(t, err)

	q := e.Reference().PointCharge
	require.Less(t, q, 0.0)
	assert.Equal(t, q, e.Model().Charge.Charge)

	p := e.Bunch().Particles[0]
	a := e.Model().Acceleration(&p)
	v := cfg.Bunch.Speed
	assert.InEpsilon(t, v*v/e.Radius, a.X, 1e-9)
	assert.InDelta(t, 0, a.Y, 1e-20)
}

func TestBuildCyclotronGap(t *testing.T) {
	cfg := preset(t, "cyclotron")

	e, err := Build(cfg, WithLogger(quiet))
	require.NoError(t, err)

	gap := e.Model().Gap
	require.NotNil(t, gap)
	assert.InEpsilon(t, 2*math.Pi/e.Period, gap.OmegaE.Y, 1e-12)
	assert.Equal(t, cfg.Fields.Electric, gap.E0.Y)
	assert.Equal(t, cfg.Fields.Phase, gap.PhaseE.Y)

	halfWidth := cfg.Fields.GapFraction * e.Radius
	assert.InEpsilon(t, halfWidth, e.Model().GapHalfWidth, 1e-12)
	assert.InEpsilon(t, 2*cfg.Fields.Electric*halfWidth, e.Reference().Voltage, 1e-12)
	assert.Equal(t, cfg.Fields.Phase, e.Reference().Phase)
}

func TestBuildSpreadInRadii(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Bunch.Particles = 200
	cfg.Bunch.Spread = config.Vec{X: 0.1}

	e, err := Build(cfg, WithLogger(quiet))
	require.NoError(t, err)

	spread := e.Bunch().Spread(bunch.X)
	assert.LessOrEqual(t, spread, 2*0.1*e.Radius)
	assert.Greater(t, spread, 0.05*e.Radius)

	cfg.Bunch.SpreadInRadii = false
	e, err = Build(cfg, WithLogger(quiet))
	require.NoError(t, err)
	assert.Greater(t, e.Bunch().Spread(bunch.X), 0.05)
}

func TestBuildIsSeeded(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Bunch.Spread = config.Vec{X: 0.1, Y: 0.1, Z: 0.1}
	cfg.Bunch.SpeedSpread = 0.1

	a, err := Build(cfg, WithLogger(quiet))
	require.NoError(t, err)
	b, err := Build(cfg, WithLogger(quiet))
	require.NoError(t, err)
	assert.Equal(t, a.Bunch().Particles, b.Bunch().Particles)

	cfg.Seed++
	c, err := Build(cfg, WithLogger(quiet))
	require.NoError(t, err)
	assert.NotEqual(t, a.Bunch().Particles, c.Bunch().Particles)
}

func TestBuildCustomParticle(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Bunch.Charge = -dynamo.ProtonCharge
	cfg.Bunch.Mass = 9.1093837e-31

	e, err := Build(cfg, WithLogger(quiet))
	require.NoError(t, err)

	p := e.Bunch().Particles[0]
	assert.Equal(t, cfg.Bunch.Charge, p.Charge)
	assert.Equal(t, cfg.Bunch.Mass, p.Mass)
	assert.Greater(t, e.Period, 0.0)
}

func TestBuildRejectsInvalidConfig(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Dt = 0
	_, err := Build(cfg, WithLogger(quiet))
	assert.ErrorIs(t, err, dynamo.ErrInvalidParameter)

	cfg = config.DefaultConfig()
	cfg.Metrics = []string{"energy", "entropy"}
	_, err = Build(cfg, WithLogger(quiet))
	assert.ErrorIs(t, err, dynamo.ErrInvalidParameter)
}

type turnCounter struct{ turns int }

func (c *turnCounter) OnSnapshot(sim.Snapshot) {}
func (c *turnCounter) OnTurn(sim.TurnRecord)   { c.turns++ }

func TestRunMagneticPreset(t *testing.T) {
	cfg := preset(t, "euler-cromer-magnetic")
	cfg.Turns = 1

	counter := &turnCounter{}
	e, err := Build(cfg, WithLogger(quiet), WithObserver(counter))
	require.NoError(t, err)

	res, err := e.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, sim.ReasonTurns, res.Reason)
	assert.Equal(t, 1, counter.turns)
	assert.InEpsilon(t, e.Period, res.ExpectedPeriod, 1e-12)

	_, percent := res.PeriodError()
	assert.Less(t, percent, 1.0)

	for _, name := range []string{"energy_drift", "momentum_drift", "max_spread", "mean_dt"} {
		assert.Contains(t, res.Metrics, name)
	}
	assert.InEpsilon(t, cfg.Dt, res.Metrics["mean_dt"], 1e-12)
}

func TestStartDrivesSession(t *testing.T) {
	cfg := preset(t, "cyclotron")
	cfg.MaxIterations = 3

	e, err := Build(cfg, WithLogger(quiet))
	require.NoError(t, err)

	ss, err := e.Start()
	require.NoError(t, err)

	for {
		done, err := ss.Advance()
		require.NoError(t, err)
		if done {
			break
		}
	}
	assert.Equal(t, 3, ss.Iteration)
	assert.Equal(t, sim.ReasonMaxIterations, ss.Result().Reason)
}

func TestRegistry(t *testing.T) {
	r := NewRegistry()

	assert.Len(t, r.ListAlgorithms(), len(dynamo.Algorithms()))
	assert.Contains(t, r.ListMetrics(), "stability")

	s, err := r.GetStepper(dynamo.RKF45, 0.005, integrators.AcceptHigherOrder)
	require.NoError(t, err)
	rkf, ok := s.(*integrators.RKF45)
	require.True(t, ok)
	assert.Equal(t, 0.005, rkf.Tolerance)
	assert.Equal(t, integrators.AcceptHigherOrder, rkf.Policy)

	_, err = r.GetStepper(dynamo.Algorithm(99), 0, integrators.AcceptLegacy)
	assert.True(t, errors.Is(err, dynamo.ErrUnknownAlgorithm))
}

func TestStabilityMetricUsesGapWidth(t *testing.T) {
	cfg := preset(t, "cyclotron")
	cfg.Metrics = []string{"stability"}
	cfg.MaxIterations = 2

	e, err := Build(cfg, WithLogger(quiet))
	require.NoError(t, err)

	res, err := e.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1.0, res.Metrics["stability"])
}

package optim

import (
	"fmt"
	"math"

	"github.com/san-kum/emsim/internal/bunch"
	"github.com/san-kum/emsim/internal/config"
	"github.com/san-kum/emsim/internal/dynamo"
	"github.com/san-kum/emsim/internal/field"
	"github.com/san-kum/emsim/internal/sim"
)

var (
	cyclotronFields = field.Config{CyclotronGap: true}
	magneticFields  = field.Config{UniformMagnetic: true}
)

// percentKE is the kinetic energy change and the expected gain, both as a
// percentage of the initial kinetic energy.
func percentKE(r *sim.Result) (dke, expected float64) {
	ke := r.Initial.KE
	if ke == 0 {
		return 0, 0
	}
	return 100 * r.DeltaKE() / ke, 100 * r.ExpectedGain / ke
}

func derive(base *config.Config, mutate func(*config.Config)) *config.Config {
	c := base.Clone()
	mutate(c)
	return c
}

// PhaseScan runs a single particle through the gap at phases 0 to 2 pi in
// steps of pi/50.
func PhaseScan(base *config.Config) *Sweep {
	s := &Sweep{
		Name:    "phase",
		Columns: []string{"phi/pi", "delta_KE_%", "expected_dKE_%"},
		measure: func(r *sim.Result) []float64 {
			dke, exp := percentKE(r)
			return []float64{dke, exp}
		},
	}
	for i := 0; i <= 100; i++ {
		phi := float64(i) * math.Pi / 50
		s.Points = append(s.Points, Point{
			Values: []float64{phi / math.Pi},
			Config: derive(base, func(c *config.Config) {
				c.Algorithm = dynamo.Heun.String()
				c.Fields.Config = cyclotronFields
				c.Fields.Phase = phi
				c.Bunch.Particles = 1
				c.Bunch.Spread = config.Vec{}
				c.Dt = 1e-5
				c.Turns = 100
			}),
		})
	}
	return s
}

// SpreadScan varies the bunch spread along one axis from 1e-8 to 0.1 orbit
// radii.
func SpreadScan(base *config.Config, axis bunch.Axis) *Sweep {
	s := &Sweep{
		Name:    "spread-" + axis.String(),
		Columns: []string{"spread_" + axis.String(), "delta_KE_%"},
		measure: func(r *sim.Result) []float64 {
			dke, _ := percentKE(r)
			return []float64{dke}
		},
	}
	for _, spread := range logRange(1e-8, 0.1, 10) {
		var v config.Vec
		switch axis {
		case bunch.X:
			v.X = spread
		case bunch.Y:
			v.Y = spread
		default:
			v.Z = spread
		}
		s.Points = append(s.Points, Point{
			Values: []float64{spread},
			Config: derive(base, func(c *config.Config) {
				c.Algorithm = dynamo.Heun.String()
				c.Fields.Config = cyclotronFields
				c.Bunch.Particles = 50
				c.Bunch.Speed = 0.1
				c.Bunch.SpeedSpread = 0.1
				c.Bunch.Spread = v
				c.Bunch.SpreadInRadii = true
				c.Dt = 1e-5
				c.Turns = 10
			}),
		})
	}
	return s
}

// VelocitySpreadScan varies the speed spread from 1e-8 to 0.5 of the
// nominal speed, optionally in a failing field.
func VelocitySpreadScan(base *config.Config, failing bool) *Sweep {
	name := "velocity-spread"
	if failing {
		name += "-failing"
	}
	s := &Sweep{
		Name:    name,
		Columns: []string{"v_sigma/v", "delta_KE_%"},
		measure: func(r *sim.Result) []float64 {
			dke, _ := percentKE(r)
			return []float64{dke}
		},
	}
	for _, frac := range logRange(1e-8, 0.5, 10) {
		s.Points = append(s.Points, Point{
			Values: []float64{frac},
			Config: derive(base, func(c *config.Config) {
				c.Algorithm = dynamo.Heun.String()
				c.Fields.Config = field.Config{CyclotronGap: true, FailingField: failing}
				c.Bunch.Particles = 50
				c.Bunch.Speed = 1e3
				c.Bunch.SpeedSpread = frac
				c.Bunch.Spread = config.Vec{X: 0.01, Y: 0.01, Z: 0.01}
				c.Bunch.SpreadInRadii = true
				c.Dt = 1e-4
				c.Turns = 50
			}),
		})
	}
	return s
}

// TimeStepScan measures the simulation error and run time of alg for steps
// from 1e-2 down to 1e-6.
func TimeStepScan(base *config.Config, alg dynamo.Algorithm, cyclotron bool) *Sweep {
	fields, kind := magneticFields, "magnetic"
	if cyclotron {
		fields, kind = cyclotronFields, "cyclotron"
	}
	s := &Sweep{
		Name:    fmt.Sprintf("dt-%s-%s", alg, kind),
		Columns: []string{"dt", "dE_err_%", "compute_s"},
		measure: func(r *sim.Result) []float64 {
			return []float64{r.SimulationError(), r.Elapsed.Seconds()}
		},
	}
	for _, dt := range logRange(1e-2, 1e-6, 20) {
		s.Points = append(s.Points, Point{
			Values: []float64{dt},
			Config: derive(base, func(c *config.Config) {
				c.Algorithm = alg.String()
				c.Fields.Config = fields
				c.Bunch.Particles = 1
				c.Bunch.Spread = config.Vec{}
				c.Bunch.Speed = 0.1
				c.Dt = dt
				c.MinDt = 1e-6
				c.Turns = 50
			}),
		})
	}
	return s
}

// ToleranceScan runs RKF45 for tolerances from 0.5 down to 1e-3.
func ToleranceScan(base *config.Config, cyclotron bool) *Sweep {
	fields, kind := magneticFields, "magnetic"
	if cyclotron {
		fields, kind = cyclotronFields, "cyclotron"
	}
	s := &Sweep{
		Name:    "tolerance-" + kind,
		Columns: []string{"tol", "final_dt", "dE_err_%", "compute_s"},
		measure: func(r *sim.Result) []float64 {
			return []float64{r.FinalDt, r.SimulationError(), r.Elapsed.Seconds()}
		},
	}
	for _, tol := range logRange(0.5, 1e-3, 10) {
		s.Points = append(s.Points, Point{
			Values: []float64{tol},
			Config: derive(base, func(c *config.Config) {
				c.Algorithm = dynamo.RKF45.String()
				c.Fields.Config = fields
				c.Bunch.Particles = 1
				c.Bunch.Spread = config.Vec{}
				c.Tolerance = tol
				c.Dt = 1e-4
				c.MinDt = 1e-6
				c.MaxDt = 5e-3
				c.Turns = 50
			}),
		})
	}
	return s
}

// Scan names accepted by ByName.
const (
	ScanPhase              = "phase"
	ScanSpreadX            = "spread-x"
	ScanSpreadY            = "spread-y"
	ScanSpreadZ            = "spread-z"
	ScanVelocitySpread     = "velocity-spread"
	ScanVelocitySpreadFail = "velocity-spread-failing"
	ScanTimeStep           = "dt"
	ScanTolerance          = "tolerance"
)

func ScanNames() []string {
	return []string{
		ScanPhase, ScanSpreadX, ScanSpreadY, ScanSpreadZ,
		ScanVelocitySpread, ScanVelocitySpreadFail, ScanTimeStep, ScanTolerance,
	}
}

// ByName returns the sweeps behind a scan name. The time-step scan covers
// every fixed-step algorithm and the time-step and tolerance scans run in
// both the cyclotron and the uniform field.
func ByName(name string, base *config.Config) ([]*Sweep, error) {
	switch name {
	case ScanPhase:
		return []*Sweep{PhaseScan(base)}, nil
	case ScanSpreadX:
		return []*Sweep{SpreadScan(base, bunch.X)}, nil
	case ScanSpreadY:
		return []*Sweep{SpreadScan(base, bunch.Y)}, nil
	case ScanSpreadZ:
		return []*Sweep{SpreadScan(base, bunch.Z)}, nil
	case ScanVelocitySpread:
		return []*Sweep{VelocitySpreadScan(base, false)}, nil
	case ScanVelocitySpreadFail:
		return []*Sweep{VelocitySpreadScan(base, true)}, nil
	case ScanTimeStep:
		var out []*Sweep
		for _, cyclotron := range []bool{true, false} {
			for _, alg := range dynamo.Algorithms() {
				if alg.Adaptive() {
					continue
				}
				out = append(out, TimeStepScan(base, alg, cyclotron))
			}
		}
		return out, nil
	case ScanTolerance:
		return []*Sweep{ToleranceScan(base, true), ToleranceScan(base, false)}, nil
	}
	return nil, fmt.Errorf("%w: unknown scan %q", dynamo.ErrInvalidParameter, name)
}

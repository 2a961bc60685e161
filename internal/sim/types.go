package sim

import (
	"fmt"
	"math"
	"strings"
	"time"

	"gonum.org/v1/gonum/spatial/r3"

	"github.com/san-kum/emsim/internal/dynamo"
	"github.com/san-kum/emsim/internal/field"
)

// Phase is the driver state after an iteration.
type Phase int

const (
	Running Phase = iota
	TurnBoundary
	Terminated
)

func (p Phase) String() string {
	switch p {
	case Running:
		return "running"
	case TurnBoundary:
		return "turn-boundary"
	case Terminated:
		return "terminated"
	}
	return fmt.Sprintf("phase(%d)", int(p))
}

// StopCondition selects the mode-specific termination rule. The safety caps
// apply regardless.
type StopCondition int

const (
	StopTurns StopCondition = iota
	StopRelativistic
	StopSpreadSettled
)

var stopNames = map[StopCondition]string{
	StopTurns:         "turns",
	StopRelativistic:  "relativistic",
	StopSpreadSettled: "spread-settled",
}

func (s StopCondition) String() string {
	if name, ok := stopNames[s]; ok {
		return name
	}
	return fmt.Sprintf("stop(%d)", int(s))
}

func ParseStop(name string) (StopCondition, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "" {
		return StopTurns, nil
	}
	for s, n := range stopNames {
		if n == name {
			return s, nil
		}
	}
	return 0, fmt.Errorf("%w: %q", dynamo.ErrUnknownStop, name)
}

// StopReason records why a run terminated.
type StopReason string

const (
	ReasonNone          StopReason = ""
	ReasonTurns         StopReason = "turns"
	ReasonRelativistic  StopReason = "relativistic"
	ReasonSpreadSettled StopReason = "spread-settled"
	ReasonMaxTurns      StopReason = "max-turns"
	ReasonMaxIterations StopReason = "max-iterations"
	ReasonCanceled      StopReason = "canceled"
	ReasonDiverged      StopReason = "diverged"
)

// RelativisticFraction of the speed of light ends a StopRelativistic run.
const RelativisticFraction = 0.1

// SettledBand is the relative window around spread_x that spread_y must
// enter to end a StopSpreadSettled run.
const SettledBand = 0.1

type Config struct {
	Dt        float64
	Tolerance float64
	MinDt     float64
	MaxDt     float64

	Turns         int
	MaxTurns      int
	MaxIterations int
	Stop          StopCondition

	// WriteEvery and PrintEvery are iteration periods; zero disables.
	WriteEvery int
	PrintEvery int

	Workers       int
	ValidateState bool
}

func DefaultConfig() Config {
	return Config{
		Dt:            1e-6,
		Tolerance:     0.01,
		MinDt:         1e-7,
		MaxDt:         0.01,
		Turns:         10,
		MaxTurns:      100000,
		Stop:          StopTurns,
		WriteEvery:    1000000,
		PrintEvery:    1000000,
		Workers:       1,
		ValidateState: true,
	}
}

// Validate checks the parameters a run needs. Adaptive enables the RKF45
// bounds checks.
func (c Config) Validate(adaptive bool) error {
	if c.Dt <= 0 || math.IsNaN(c.Dt) {
		return fmt.Errorf("%w: dt must be positive, got %g", dynamo.ErrInvalidParameter, c.Dt)
	}
	if c.Stop == StopTurns && c.Turns <= 0 {
		return fmt.Errorf("%w: turns must be positive, got %d", dynamo.ErrInvalidParameter, c.Turns)
	}
	if _, ok := stopNames[c.Stop]; !ok {
		return fmt.Errorf("%w: %d", dynamo.ErrUnknownStop, int(c.Stop))
	}
	if c.MaxTurns <= 0 {
		return fmt.Errorf("%w: max turns must be positive, got %d", dynamo.ErrInvalidParameter, c.MaxTurns)
	}
	if c.MaxIterations < 0 || c.WriteEvery < 0 || c.PrintEvery < 0 || c.Workers < 0 {
		return fmt.Errorf("%w: negative iteration count", dynamo.ErrInvalidParameter)
	}
	if adaptive {
		if c.Tolerance <= 0 {
			return fmt.Errorf("%w: tolerance must be positive for adaptive stepping", dynamo.ErrInvalidParameter)
		}
		if c.MinDt <= 0 || c.MaxDt < c.MinDt {
			return fmt.Errorf("%w: adaptive step bounds [%g, %g]", dynamo.ErrInvalidParameter, c.MinDt, c.MaxDt)
		}
	}
	return nil
}

// Reference carries the quantities the diagnostics are measured against:
// the orbit centre, the point charge at it, the nominal field and the gap.
type Reference struct {
	Centre      r3.Vec
	PointCharge float64
	Field       r3.Vec
	Voltage     float64
	Phase       float64
}

// Snapshot is the ensemble state emitted every WriteEvery iterations.
type Snapshot struct {
	Iteration int
	Turn      int
	Time      float64
	Dt        float64

	AvgPosition r3.Vec
	AvgVelocity r3.Vec
	Spread      r3.Vec

	KE, PE float64
	L      float64
}

func (s Snapshot) Energy() float64 { return s.KE + s.PE }

// TurnRecord is emitted at each turn boundary.
type TurnRecord struct {
	Turn   int
	Time   float64
	Period float64
	Speed  float64

	DeltaV         float64
	ExpectedDeltaV float64
	ExpectedGain   float64
}

type Observer interface {
	OnSnapshot(s Snapshot)
	OnTurn(r TurnRecord)
}

type Metric interface {
	Name() string
	Observe(s Snapshot)
	Value() float64
	Reset()
}

// Conserved holds the quantities checked for drift across a run.
type Conserved struct {
	KE, PE float64
	L      float64
}

func (c Conserved) Energy() float64 { return c.KE + c.PE }

type Result struct {
	Reason        StopReason
	Iterations    int
	Turns         int
	Time          float64
	FinalDt       float64
	RejectedSteps int

	Initial Conserved
	Final   Conserved

	ExpectedPeriod  float64
	ExpectedGain    float64
	SynchronousGain float64

	Fields  field.Config
	Metrics map[string]float64

	Snapshots []Snapshot
	TurnLog   []TurnRecord

	Elapsed time.Duration
}

func (r *Result) DeltaKE() float64 { return r.Final.KE - r.Initial.KE }

// SimulatedPeriod is the mean time per completed turn.
func (r *Result) SimulatedPeriod() float64 {
	if r.Turns == 0 {
		return 0
	}
	return r.Time / float64(r.Turns)
}

// PeriodError is |T_expected - T_simulated| and its percentage.
func (r *Result) PeriodError() (abs, percent float64) {
	abs = math.Abs(r.ExpectedPeriod - r.SimulatedPeriod())
	return abs, percentOf(abs, r.ExpectedPeriod)
}

func (r *Result) EnergyError() float64 {
	return percentOf(math.Abs(r.Initial.Energy()-r.Final.Energy()), r.Initial.Energy())
}

func (r *Result) MomentumError() float64 {
	return percentOf(math.Abs(r.Initial.L-r.Final.L), r.Initial.L)
}

// SimulationError is the headline error: the energy error when a
// conservative field is on, otherwise the gap run's departure from the
// expected gain.
func (r *Result) SimulationError() float64 {
	if r.Fields.UniformMagnetic || r.Fields.PointCharge {
		return r.EnergyError()
	}
	if r.Fields.CyclotronGap {
		return percentOf(math.Abs(r.DeltaKE()-r.ExpectedGain), r.ExpectedGain)
	}
	return 0
}

func percentOf(v, ref float64) float64 {
	if ref == 0 {
		return 0
	}
	return 100 * v / math.Abs(ref)
}

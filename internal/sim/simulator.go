package sim

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"time"

	"gonum.org/v1/gonum/spatial/r3"

	"github.com/san-kum/emsim/internal/bunch"
	"github.com/san-kum/emsim/internal/dynamo"
	"github.com/san-kum/emsim/internal/field"
)

// minChunk is the smallest per-worker slice of particles.
const minChunk = 64

type Simulator struct {
	model     *field.Model
	stepper   dynamo.Stepper
	ref       Reference
	logger    *slog.Logger
	metrics   []Metric
	observers []Observer
}

type Option func(*Simulator)

func WithLogger(l *slog.Logger) Option {
	return func(s *Simulator) { s.logger = l }
}

func New(model *field.Model, stepper dynamo.Stepper, ref Reference, opts ...Option) *Simulator {
	s := &Simulator{
		model:     model,
		stepper:   stepper,
		ref:       ref,
		logger:    slog.Default(),
		metrics:   make([]Metric, 0),
		observers: make([]Observer, 0),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Simulator) AddMetric(m Metric)     { s.metrics = append(s.metrics, m) }
func (s *Simulator) AddObserver(o Observer) { s.observers = append(s.observers, o) }

func (s *Simulator) Model() *field.Model     { return s.model }
func (s *Simulator) Reference() Reference    { return s.ref }
func (s *Simulator) Stepper() dynamo.Stepper { return s.stepper }

// Run advances b until a termination condition holds or ctx is done. On
// cancellation the partial result is returned with ctx.Err().
func (s *Simulator) Run(ctx context.Context, b *bunch.Bunch, cfg Config) (*Result, error) {
	ss, err := s.Start(b, cfg)
	if err != nil {
		return nil, err
	}

	for {
		select {
		case <-ctx.Done():
			ss.terminate(ReasonCanceled)
			return ss.Result(), ctx.Err()
		default:
		}

		done, err := ss.Advance()
		if err != nil {
			return ss.Result(), err
		}
		if done {
			return ss.Result(), nil
		}
	}
}

// Start validates cfg, records the initial conserved quantities and returns
// a session positioned before the first iteration. The session owns b until
// it terminates.
func (s *Simulator) Start(b *bunch.Bunch, cfg Config) (*Session, error) {
	adaptive := false
	if _, ok := s.stepper.(dynamo.AdaptiveStepper); ok {
		adaptive = true
	}
	if err := cfg.Validate(adaptive); err != nil {
		return nil, err
	}
	if b == nil || b.Len() == 0 {
		return nil, fmt.Errorf("%w: empty bunch", dynamo.ErrInvalidParameter)
	}
	for i := range b.Particles {
		if b.Particles[i].Mass <= 0 {
			return nil, fmt.Errorf("%w: particle %d has mass %g", dynamo.ErrInvalidParameter, i, b.Particles[i].Mass)
		}
	}
	if cfg.Workers == 0 {
		cfg.Workers = 1
	}

	for _, m := range s.metrics {
		m.Reset()
	}

	ss := &Session{
		sim:      s,
		bunch:    b,
		cfg:      cfg,
		adaptive: adaptive,
		Dt:       cfg.Dt,
		started:  time.Now(),
		result: &Result{
			Fields:  s.model.Config,
			Metrics: make(map[string]float64),
		},
	}
	if adaptive {
		ss.candidates = make([]float64, b.Len())
	}

	b.Recompute()
	ss.result.Initial = ss.conserved()
	ss.result.ExpectedPeriod = s.expectedPeriod(b)
	ss.vIn = r3.Norm(b.AverageVelocity())
	ss.emitSnapshot()

	s.logger.Debug("run started",
		"particles", b.Len(),
		"dt", cfg.Dt,
		"stop", cfg.Stop,
		"fields", s.model.Config.String(),
		"energy", ss.result.Initial.Energy())

	return ss, nil
}

// expectedPeriod is the cyclotron period 2 pi m / (q B) of the first
// particle in the nominal field.
func (s *Simulator) expectedPeriod(b *bunch.Bunch) float64 {
	p := b.Particles[0]
	bField := r3.Norm(s.ref.Field)
	if p.Charge == 0 || bField == 0 {
		return 0
	}
	return math.Abs(2 * math.Pi * p.Mass / (p.Charge * bField))
}

// Session is the RunState of a single run: elapsed time, iteration and
// turn counters, the current step and the expected-gain accumulator.
type Session struct {
	sim      *Simulator
	bunch    *bunch.Bunch
	cfg      Config
	adaptive bool

	Time         float64
	Dt           float64
	Iteration    int
	Turns        int
	ExpectedGain float64
	Rejected     int
	Phase        Phase

	detector   TurnDetector
	candidates []float64
	vIn        float64
	started    time.Time
	result     *Result
}

func (ss *Session) Bunch() *bunch.Bunch { return ss.bunch }
func (ss *Session) Config() Config      { return ss.cfg }

// Advance performs one iteration. It reports true once the run has
// terminated; further calls are no-ops.
func (ss *Session) Advance() (bool, error) {
	if ss.Phase == Terminated {
		return true, nil
	}

	s := ss.sim
	b := ss.bunch
	dt := ss.Dt
	ss.Iteration++

	s.model.Update(ss.Time)
	ss.accelerate()
	ss.step(dt)
	b.Recompute()
	ss.Time += dt

	if ss.adaptive {
		ss.adapt()
	}

	if ss.cfg.ValidateState && !b.Valid() {
		ss.terminate(ReasonDiverged)
		return true, &dynamo.SimulationError{
			Iteration: ss.Iteration,
			Time:      ss.Time,
			Turn:      ss.Turns,
			Wrapped:   dynamo.ErrNumericDivergence,
		}
	}

	if ss.cfg.WriteEvery > 0 && ss.Iteration%ss.cfg.WriteEvery == 0 {
		ss.emitSnapshot()
	}
	if ss.cfg.PrintEvery > 0 && ss.Iteration%ss.cfg.PrintEvery == 0 {
		s.logger.Info("progress",
			"iteration", ss.Iteration,
			"time", ss.Time,
			"dt", ss.Dt,
			"turns", ss.Turns,
			"vx", b.AverageVelocity().X)
	}

	ss.Phase = Running
	if ss.detector.Observe(b.AverageVelocity().X) {
		ss.completeTurn()
	}

	if reason := ss.stopReason(); reason != ReasonNone {
		ss.terminate(reason)
		return true, nil
	}
	return false, nil
}

// accelerate evaluates the force model for every particle.
func (ss *Session) accelerate() {
	ps := ss.bunch.Particles
	model := ss.sim.model
	dynamo.ParallelFor(len(ps), ss.cfg.Workers, minChunk, func(start, end int) {
		for i := start; i < end; i++ {
			ps[i].Acceleration = model.Acceleration(&ps[i])
		}
	})
}

func (ss *Session) step(dt float64) {
	ps := ss.bunch.Particles
	model := ss.sim.model

	if ss.adaptive {
		stepper := ss.sim.stepper.(dynamo.AdaptiveStepper)
		tol := ss.cfg.Tolerance
		dynamo.ParallelFor(len(ps), ss.cfg.Workers, minChunk, func(start, end int) {
			for i := start; i < end; i++ {
				ss.candidates[i] = stepper.StepAdaptive(model, &ps[i], dt, tol)
			}
		})
		return
	}

	stepper := ss.sim.stepper
	dynamo.ParallelFor(len(ps), ss.cfg.Workers, minChunk, func(start, end int) {
		for i := start; i < end; i++ {
			stepper.Step(model, &ps[i], dt)
		}
	})
}

// adapt applies the mean per-particle candidate when it lies in
// [MinDt, MaxDt] and keeps the current step otherwise.
func (ss *Session) adapt() {
	var sum float64
	for _, c := range ss.candidates {
		sum += c
	}
	next := sum / float64(len(ss.candidates))

	if next >= ss.cfg.MinDt && next <= ss.cfg.MaxDt {
		ss.Dt = next
		return
	}
	ss.Rejected++
	ss.sim.logger.Debug("step candidate rejected",
		"iteration", ss.Iteration,
		"candidate", next,
		"dt", ss.Dt)
}

func (ss *Session) completeTurn() {
	s := ss.sim
	b := ss.bunch
	ss.Turns++
	ss.Phase = TurnBoundary

	bField := r3.Norm(s.ref.Field)
	gain := b.EnergyGain(ss.Time, s.ref.Voltage, bField, s.ref.Phase)
	ss.ExpectedGain += gain

	speed := r3.Norm(b.AverageVelocity())
	mass := b.Particles[0].Mass * float64(b.Len())
	expectedDv := math.Sqrt(ss.vIn*ss.vIn+2*gain/mass) - ss.vIn

	rec := TurnRecord{
		Turn:           ss.Turns,
		Time:           ss.Time,
		Period:         ss.Time / float64(ss.Turns),
		Speed:          speed,
		DeltaV:         speed - ss.vIn,
		ExpectedDeltaV: expectedDv,
		ExpectedGain:   gain,
	}
	ss.vIn = speed

	ss.result.TurnLog = append(ss.result.TurnLog, rec)
	for _, o := range s.observers {
		o.OnTurn(rec)
	}

	s.logger.Debug("turn completed",
		"turn", rec.Turn,
		"time", rec.Time,
		"delta_v", rec.DeltaV,
		"expected_gain", gain)
}

func (ss *Session) stopReason() StopReason {
	b := ss.bunch
	switch ss.cfg.Stop {
	case StopTurns:
		if ss.Turns >= ss.cfg.Turns {
			return ReasonTurns
		}
	case StopRelativistic:
		if r3.Norm(b.AverageVelocity()) >= RelativisticFraction*dynamo.SpeedOfLight {
			return ReasonRelativistic
		}
	case StopSpreadSettled:
		sx, sy := b.Spread(bunch.X), b.Spread(bunch.Y)
		if sy >= (1-SettledBand)*sx && sy <= (1+SettledBand)*sx {
			return ReasonSpreadSettled
		}
	}

	if ss.Turns >= ss.cfg.MaxTurns {
		return ReasonMaxTurns
	}
	if ss.cfg.MaxIterations > 0 && ss.Iteration >= ss.cfg.MaxIterations {
		return ReasonMaxIterations
	}
	return ReasonNone
}

func (ss *Session) conserved() Conserved {
	ref := ss.sim.ref
	ke, pe := ss.bunch.Energy(ref.PointCharge, ref.Centre, ref.Field)
	return Conserved{KE: ke, PE: pe, L: ss.bunch.AngularMomentum(ref.Centre)}
}

func (ss *Session) emitSnapshot() {
	c := ss.conserved()
	snap := Snapshot{
		Iteration:   ss.Iteration,
		Turn:        ss.Turns,
		Time:        ss.Time,
		Dt:          ss.Dt,
		AvgPosition: ss.bunch.AveragePosition(),
		AvgVelocity: ss.bunch.AverageVelocity(),
		Spread:      ss.bunch.Spreads(),
		KE:          c.KE,
		PE:          c.PE,
		L:           c.L,
	}

	ss.result.Snapshots = append(ss.result.Snapshots, snap)
	for _, m := range ss.sim.metrics {
		m.Observe(snap)
	}
	for _, o := range ss.sim.observers {
		o.OnSnapshot(snap)
	}
}

// terminate finalises the result. A diverged bunch has no meaningful
// final energy, so only the counters are recorded for it.
func (ss *Session) terminate(reason StopReason) {
	if ss.Phase == Terminated {
		return
	}
	ss.Phase = Terminated

	s := ss.sim
	r := ss.result
	r.Reason = reason
	r.Iterations = ss.Iteration
	r.Turns = ss.Turns
	r.Time = ss.Time
	r.FinalDt = ss.Dt
	r.RejectedSteps = ss.Rejected
	r.ExpectedGain = ss.ExpectedGain

	if reason != ReasonDiverged {
		ss.emitSnapshot()
		r.Final = ss.conserved()
		bField := r3.Norm(s.ref.Field)
		r.SynchronousGain = float64(ss.Turns) * ss.bunch.SynchronousEnergyGain(ss.Time, s.ref.Voltage, bField, s.ref.Phase)
	}

	for _, m := range s.metrics {
		r.Metrics[m.Name()] = m.Value()
	}
	r.Elapsed = time.Since(ss.started)

	s.logger.Debug("run finished",
		"reason", reason,
		"iterations", r.Iterations,
		"turns", r.Turns,
		"time", r.Time,
		"elapsed", r.Elapsed)
}

// Result returns the run's result. It is complete once the session has
// terminated.
func (ss *Session) Result() *Result { return ss.result }

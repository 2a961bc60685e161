package experiment

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"math/rand"

	"gonum.org/v1/gonum/spatial/r3"

	"github.com/san-kum/emsim/internal/bunch"
	"github.com/san-kum/emsim/internal/config"
	"github.com/san-kum/emsim/internal/dynamo"
	"github.com/san-kum/emsim/internal/field"
	"github.com/san-kum/emsim/internal/integrators"
	"github.com/san-kum/emsim/internal/sim"
)

// Experiment is a fully derived run: the field model, the bunch and the
// simulator wired to them.
type Experiment struct {
	cfg        *config.Config
	algorithm  dynamo.Algorithm
	model      *field.Model
	ref        sim.Reference
	bunch      *bunch.Bunch
	simulator  *sim.Simulator
	randSource *rand.Rand
	logger     *slog.Logger

	// Period is the nominal cyclotron period and Radius the matching
	// orbit radius.
	Period float64
	Radius float64
}

type Option func(*options)

type options struct {
	logger    *slog.Logger
	registry  *Registry
	observers []sim.Observer
}

func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.logger = l }
}

func WithRegistry(r *Registry) Option {
	return func(o *options) { o.registry = r }
}

func WithObserver(obs sim.Observer) Option {
	return func(o *options) { o.observers = append(o.observers, obs) }
}

// Build derives the fields, reference quantities and the seeded bunch from
// cfg.
func Build(cfg *config.Config, opts ...Option) (*Experiment, error) {
	o := options{logger: slog.Default()}
	for _, opt := range opts {
		opt(&o)
	}
	if o.registry == nil {
		o.registry = NewRegistry()
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	alg, _ := cfg.AlgorithmID()
	policy, _ := integrators.ParseAcceptance(cfg.Acceptance)

	stepper, err := o.registry.GetStepper(alg, cfg.Tolerance, policy)
	if err != nil {
		return nil, err
	}

	proto := dynamo.NewProton()
	if cfg.Bunch.Charge != 0 {
		proto.Charge = cfg.Bunch.Charge
	}
	if cfg.Bunch.Mass != 0 {
		proto.Mass = cfg.Bunch.Mass
	}

	e := &Experiment{
		cfg:        cfg,
		algorithm:  alg,
		randSource: rand.New(rand.NewSource(cfg.Seed)),
		logger:     o.logger,
	}

	b := r3.Vec{Z: cfg.Fields.Magnetic}
	v := cfg.Bunch.Speed
	e.Period = math.Abs(2 * math.Pi * proto.Mass / (proto.Charge * cfg.Fields.Magnetic))
	e.Radius = v * e.Period / (2 * math.Pi)
	centre := r3.Vec{X: e.Radius}

	e.model = field.New(cfg.Fields.Config, b)
	e.model.FailingFactor = cfg.Fields.FailingFactor
	e.ref = sim.Reference{Centre: centre, Field: b}

	if cfg.Fields.PointCharge {
		// Charge holding the particle on the nominal orbit by Coulomb force alone.
		q := -(proto.Mass * proto.Mass * v * v * v) /
			(dynamo.CoulombConstant * proto.Charge * proto.Charge * cfg.Fields.Magnetic)
		e.model.Charge = field.PointCharge{Position: centre, Charge: q}
		e.ref.PointCharge = q
	}

	if cfg.Fields.CyclotronGap {
		halfWidth := cfg.Fields.GapFraction * e.Radius
		e.model.Gap = field.NewOscillating(
			r3.Vec{Y: cfg.Fields.Electric}, r3.Vec{Y: 2 * math.Pi / e.Period}, r3.Vec{Y: cfg.Fields.Phase},
			r3.Vec{}, r3.Vec{}, r3.Vec{},
		)
		e.model.GapHalfWidth = halfWidth
		e.ref.Voltage = 2 * cfg.Fields.Electric * halfWidth
		e.ref.Phase = cfg.Fields.Phase
	}

	spread := r3.Vec{X: cfg.Bunch.Spread.X, Y: cfg.Bunch.Spread.Y, Z: cfg.Bunch.Spread.Z}
	if cfg.Bunch.SpreadInRadii {
		spread = r3.Scale(e.Radius, spread)
	}
	e.bunch = bunch.New(proto, cfg.Bunch.Particles, v, cfg.Bunch.SpeedSpread, spread, e.randSource)

	e.simulator = sim.New(e.model, stepper, e.ref, sim.WithLogger(o.logger))

	ms, err := o.registry.Metrics(cfg.Metrics, e)
	if err != nil {
		return nil, err
	}
	for _, m := range ms {
		e.simulator.AddMetric(m)
	}
	for _, obs := range o.observers {
		e.simulator.AddObserver(obs)
	}

	o.logger.Debug("experiment built",
		"algorithm", alg,
		"particles", cfg.Bunch.Particles,
		"period", e.Period,
		"radius", e.Radius,
		"fields", cfg.Fields.Config.String())

	return e, nil
}

func (e *Experiment) Run(ctx context.Context) (*sim.Result, error) {
	if e.simulator == nil {
		return nil, fmt.Errorf("experiment not built")
	}

	simCfg, err := e.cfg.Sim()
	if err != nil {
		return nil, err
	}

	e.logger.Info("run starting",
		"algorithm", e.algorithm,
		"dt", simCfg.Dt,
		"turns", simCfg.Turns,
		"stop", simCfg.Stop)

	return e.simulator.Run(ctx, e.bunch, simCfg)
}

// Start opens a session for callers that drive iterations themselves.
func (e *Experiment) Start() (*sim.Session, error) {
	simCfg, err := e.cfg.Sim()
	if err != nil {
		return nil, err
	}
	return e.simulator.Start(e.bunch, simCfg)
}

func (e *Experiment) Config() *config.Config       { return e.cfg }
func (e *Experiment) Algorithm() dynamo.Algorithm  { return e.algorithm }
func (e *Experiment) Model() *field.Model          { return e.model }
func (e *Experiment) Reference() sim.Reference     { return e.ref }
func (e *Experiment) Bunch() *bunch.Bunch          { return e.bunch }
func (e *Experiment) GetSimulator() *sim.Simulator { return e.simulator }

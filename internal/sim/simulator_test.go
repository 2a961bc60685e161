package sim_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"math"
	"math/rand"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/san-kum/emsim/internal/bunch"
	"github.com/san-kum/emsim/internal/dynamo"
	"github.com/san-kum/emsim/internal/field"
	"github.com/san-kum/emsim/internal/integrators"
	"github.com/san-kum/emsim/internal/sim"
)

var quiet = slog.New(slog.NewTextHandler(io.Discard, nil))

type recorder struct {
	snaps []sim.Snapshot
	turns []sim.TurnRecord
}

func (r *recorder) OnSnapshot(s sim.Snapshot) { r.snaps = append(r.snaps, s) }
func (r *recorder) OnTurn(t sim.TurnRecord)   { r.turns = append(r.turns, t) }

type countMetric struct{ n int }

func (c *countMetric) Name() string         { return "count" }
func (c *countMetric) Observe(sim.Snapshot) { c.n++ }
func (c *countMetric) Value() float64       { return float64(c.n) }
func (c *countMetric) Reset()               { c.n = 0 }

// gyro is a unit charge and mass in a unit field along z with unit speed:
// the period is 2 pi and the orbit centre is (1, 0, 0).
func gyro(stepper dynamo.Stepper) (*sim.Simulator, *bunch.Bunch) {
	model := field.New(field.Config{UniformMagnetic: true}, r3.Vec{Z: 1})
	ref := sim.Reference{Centre: r3.Vec{X: 1}, Field: r3.Vec{Z: 1}}
	b := bunch.FromParticles([]dynamo.Particle{{Mass: 1, Charge: 1, Velocity: r3.Vec{Y: 1}}})
	return sim.New(model, stepper, ref, sim.WithLogger(quiet)), b
}

// proton is a single proton at the origin moving along +y at v in a uniform
// field B along z.
func proton(stepper dynamo.Stepper, bz, v float64) (*sim.Simulator, *bunch.Bunch) {
	p := dynamo.NewProton()
	p.Velocity = r3.Vec{Y: v}
	radius := p.Mass * v / (p.Charge * bz)

	model := field.New(field.Config{UniformMagnetic: true}, r3.Vec{Z: bz})
	ref := sim.Reference{Centre: r3.Vec{X: radius}, Field: r3.Vec{Z: bz}}
	return sim.New(model, stepper, ref, sim.WithLogger(quiet)), bunch.FromParticles([]dynamo.Particle{p})
}

func turnsConfig(dt float64, turns int) sim.Config {
	cfg := sim.DefaultConfig()
	cfg.Dt = dt
	cfg.Turns = turns
	return cfg
}

var _ = Describe("TurnDetector", func() {
	It("reports exactly one turn on the sign crossing", func() {
		var d sim.TurnDetector
		var got []bool
		for _, vx := range []float64{-1, -0.1, 0.05, 1} {
			got = append(got, d.Observe(vx))
		}
		Expect(got).To(Equal([]bool{false, false, true, false}))
	})

	It("only primes on the first observation", func() {
		var d sim.TurnDetector
		Expect(d.Observe(1)).To(BeFalse())
		Expect(d.Observe(0)).To(BeFalse())
		Expect(d.Observe(0)).To(BeTrue())

		d.Reset()
		Expect(d.Observe(2)).To(BeFalse())
	})
})

var _ = Describe("Simulator", func() {
	var ctx context.Context

	BeforeEach(func() {
		ctx = context.Background()
	})

	Describe("cyclotron period", func() {
		It("matches 2 pi m / (q B) for a proton with Euler-Cromer", func() {
			s, b := proton(integrators.NewEulerCromer(), 1e-7, 0.1)

			res, err := s.Run(ctx, b, turnsConfig(1e-4, 1))
			Expect(err).NotTo(HaveOccurred())

			expected := 2 * math.Pi * dynamo.ProtonMass / (dynamo.ProtonCharge * 1e-7)
			Expect(res.Reason).To(Equal(sim.ReasonTurns))
			Expect(res.Turns).To(Equal(1))
			Expect(res.ExpectedPeriod).To(BeNumerically("~", expected, 1e-12))
			Expect(res.SimulatedPeriod()).To(BeNumerically("~", expected, 0.01*expected))

			_, percent := res.PeriodError()
			Expect(percent).To(BeNumerically("<", 1))
		})

		It("matches to 0.1% with RK4 at dt = T/5000", func() {
			s, b := gyro(integrators.NewRK4())
			period := 2 * math.Pi

			res, err := s.Run(ctx, b, turnsConfig(period/5000, 1))
			Expect(err).NotTo(HaveOccurred())
			Expect(res.SimulatedPeriod()).To(BeNumerically("~", period, 1e-3*period))
		})

		It("logs every turn", func() {
			s, b := gyro(integrators.NewRK4())
			rec := &recorder{}
			s.AddObserver(rec)

			res, err := s.Run(ctx, b, turnsConfig(2*math.Pi/200, 3))
			Expect(err).NotTo(HaveOccurred())

			Expect(res.TurnLog).To(HaveLen(3))
			Expect(rec.turns).To(Equal(res.TurnLog))
			for i, t := range res.TurnLog {
				Expect(t.Turn).To(Equal(i + 1))
				Expect(t.Period).To(BeNumerically("~", 2*math.Pi, 0.05))
			}
		})
	})

	Describe("adaptive stepping", func() {
		It("keeps every applied step inside the clamp", func() {
			s, b := gyro(integrators.NewRKF45())
			rec := &recorder{}
			s.AddObserver(rec)

			cfg := turnsConfig(0.01, 1000)
			cfg.MinDt = 1e-3
			cfg.MaxDt = 0.05
			cfg.MaxIterations = 200
			cfg.WriteEvery = 1

			res, err := s.Run(ctx, b, cfg)
			Expect(err).NotTo(HaveOccurred())
			Expect(res.Reason).To(Equal(sim.ReasonMaxIterations))
			Expect(res.Iterations).To(Equal(200))

			for _, snap := range rec.snaps {
				Expect(snap.Dt).To(BeNumerically(">=", cfg.MinDt))
				Expect(snap.Dt).To(BeNumerically("<=", cfg.MaxDt))
			}
			Expect(res.RejectedSteps).To(BeNumerically(">", 0))
			Expect(res.FinalDt).To(BeNumerically("<=", cfg.MaxDt))
		})
	})

	Describe("termination", func() {
		It("stops at the turn safety cap", func() {
			s, b := gyro(integrators.NewRK4())
			cfg := turnsConfig(2*math.Pi/100, 1000)
			cfg.MaxTurns = 2

			res, err := s.Run(ctx, b, cfg)
			Expect(err).NotTo(HaveOccurred())
			Expect(res.Reason).To(Equal(sim.ReasonMaxTurns))
			Expect(res.Turns).To(Equal(2))
		})

		It("stops once the bunch is relativistic", func() {
			model := field.New(field.Config{}, r3.Vec{})
			fast := dynamo.NewProton()
			fast.Velocity = r3.Vec{Y: 0.2 * dynamo.SpeedOfLight}
			s := sim.New(model, integrators.NewEuler(), sim.Reference{}, sim.WithLogger(quiet))

			cfg := turnsConfig(1e-9, 1)
			cfg.Stop = sim.StopRelativistic

			res, err := s.Run(ctx, bunch.FromParticles([]dynamo.Particle{fast}), cfg)
			Expect(err).NotTo(HaveOccurred())
			Expect(res.Reason).To(Equal(sim.ReasonRelativistic))
			Expect(res.Iterations).To(Equal(1))
		})

		It("stops once the y spread is within 10% of the x spread", func() {
			model := field.New(field.Config{}, r3.Vec{})
			b := bunch.FromParticles([]dynamo.Particle{
				{Mass: 1, Charge: 1, Position: r3.Vec{X: 1, Y: 1.05}},
				{Mass: 1, Charge: 1, Position: r3.Vec{X: -1, Y: -1.05}},
			})
			s := sim.New(model, integrators.NewEuler(), sim.Reference{}, sim.WithLogger(quiet))

			cfg := turnsConfig(1e-3, 1)
			cfg.Stop = sim.StopSpreadSettled

			res, err := s.Run(ctx, b, cfg)
			Expect(err).NotTo(HaveOccurred())
			Expect(res.Reason).To(Equal(sim.ReasonSpreadSettled))
			Expect(res.Iterations).To(Equal(1))
		})

		It("returns the partial result when canceled", func() {
			s, b := gyro(integrators.NewEulerCromer())
			canceled, cancel := context.WithCancel(ctx)
			cancel()

			res, err := s.Run(canceled, b, turnsConfig(0.01, 1))
			Expect(err).To(MatchError(context.Canceled))
			Expect(res.Reason).To(Equal(sim.ReasonCanceled))
			Expect(res.Iterations).To(BeZero())
		})
	})

	Describe("errors", func() {
		DescribeTable("rejects invalid parameters before running",
			func(stepper dynamo.Stepper, mutate func(*sim.Config)) {
				s, b := gyro(stepper)
				cfg := turnsConfig(0.01, 1)
				mutate(&cfg)

				_, err := s.Run(ctx, b, cfg)
				Expect(errors.Is(err, dynamo.ErrInvalidParameter)).To(BeTrue(), "got %v", err)
			},
			Entry("zero dt", integrators.NewEuler(), func(c *sim.Config) { c.Dt = 0 }),
			Entry("negative dt", integrators.NewEuler(), func(c *sim.Config) { c.Dt = -1 }),
			Entry("zero turns", integrators.NewEuler(), func(c *sim.Config) { c.Turns = 0 }),
			Entry("zero turn cap", integrators.NewEuler(), func(c *sim.Config) { c.MaxTurns = 0 }),
			Entry("zero tolerance", integrators.NewRKF45(), func(c *sim.Config) { c.Tolerance = 0 }),
			Entry("inverted step bounds", integrators.NewRKF45(), func(c *sim.Config) { c.MinDt, c.MaxDt = 1, 0.1 }),
		)

		It("rejects an empty bunch and non-positive masses", func() {
			s, _ := gyro(integrators.NewEuler())

			_, err := s.Run(ctx, bunch.FromParticles(nil), turnsConfig(0.01, 1))
			Expect(errors.Is(err, dynamo.ErrInvalidParameter)).To(BeTrue())

			massless := bunch.FromParticles([]dynamo.Particle{{Charge: 1, Velocity: r3.Vec{Y: 1}}})
			_, err = s.Run(ctx, massless, turnsConfig(0.01, 1))
			Expect(errors.Is(err, dynamo.ErrInvalidParameter)).To(BeTrue())
		})

		It("propagates divergence with run context", func() {
			model := field.New(field.Config{PointCharge: true}, r3.Vec{})
			model.Charge = field.PointCharge{Charge: 1e-9}
			b := bunch.FromParticles([]dynamo.Particle{dynamo.NewProton()})
			s := sim.New(model, integrators.NewEulerCromer(), sim.Reference{}, sim.WithLogger(quiet))

			res, err := s.Run(ctx, b, turnsConfig(0.01, 1))
			Expect(errors.Is(err, dynamo.ErrNumericDivergence)).To(BeTrue())

			var simErr *dynamo.SimulationError
			Expect(errors.As(err, &simErr)).To(BeTrue())
			Expect(simErr.Iteration).To(Equal(1))
			Expect(res.Reason).To(Equal(sim.ReasonDiverged))
		})
	})

	Describe("observation", func() {
		It("emits the initial, periodic and final snapshots", func() {
			s, b := gyro(integrators.NewVerlet())
			rec := &recorder{}
			metric := &countMetric{n: 99}
			s.AddObserver(rec)
			s.AddMetric(metric)

			cfg := turnsConfig(0.01, 1)
			cfg.MaxIterations = 10
			cfg.WriteEvery = 5

			res, err := s.Run(ctx, b, cfg)
			Expect(err).NotTo(HaveOccurred())

			Expect(rec.snaps).To(HaveLen(4))
			Expect(rec.snaps[0].Iteration).To(BeZero())
			Expect(rec.snaps[1].Iteration).To(Equal(5))
			Expect(rec.snaps[3].Iteration).To(Equal(10))
			Expect(res.Snapshots).To(Equal(rec.snaps))
			Expect(res.Metrics).To(HaveKeyWithValue("count", 4.0))
		})

		It("records conserved quantities for an ideal orbit", func() {
			s, b := gyro(integrators.NewRK4())

			res, err := s.Run(ctx, b, turnsConfig(2*math.Pi/1000, 1))
			Expect(err).NotTo(HaveOccurred())

			Expect(res.Initial.KE).To(BeNumerically("~", 0.5, 1e-12))
			Expect(res.Initial.L).To(BeNumerically("~", 1, 1e-12))
			Expect(res.Final.KE).To(BeNumerically("~", 0.5, 1e-6))
			Expect(res.SimulationError()).To(Equal(res.EnergyError()))
		})
	})

	Describe("sessions", func() {
		It("passes through the turn boundary phase", func() {
			s, b := gyro(integrators.NewRK4())
			ss, err := s.Start(b, turnsConfig(2*math.Pi/200, 2))
			Expect(err).NotTo(HaveOccurred())

			for ss.Phase != sim.TurnBoundary {
				done, err := ss.Advance()
				Expect(err).NotTo(HaveOccurred())
				Expect(done).To(BeFalse())
			}
			Expect(ss.Turns).To(Equal(1))

			done, err := ss.Advance()
			Expect(err).NotTo(HaveOccurred())
			Expect(done).To(BeFalse())
			Expect(ss.Phase).To(Equal(sim.Running))
		})

		It("is a no-op once terminated", func() {
			s, b := gyro(integrators.NewEuler())
			cfg := turnsConfig(0.01, 1)
			cfg.MaxIterations = 1

			ss, err := s.Start(b, cfg)
			Expect(err).NotTo(HaveOccurred())

			done, _ := ss.Advance()
			Expect(done).To(BeTrue())
			done, _ = ss.Advance()
			Expect(done).To(BeTrue())
			Expect(ss.Iteration).To(Equal(1))
		})
	})

	It("gives identical results for any worker count", func() {
		final := func(workers int) sim.Snapshot {
			model := field.New(field.Config{UniformMagnetic: true}, r3.Vec{Z: 1})
			proto := dynamo.Particle{Mass: 1, Charge: 1}
			b := bunch.New(proto, 300, 1, 0.1, r3.Vec{X: 0.1, Y: 0.1, Z: 0.1}, rand.New(rand.NewSource(3)))
			s := sim.New(model, integrators.NewRK4(), sim.Reference{Field: r3.Vec{Z: 1}}, sim.WithLogger(quiet))

			cfg := turnsConfig(0.01, 1)
			cfg.MaxIterations = 50
			cfg.Workers = workers

			res, err := s.Run(ctx, b, cfg)
			Expect(err).NotTo(HaveOccurred())
			return res.Snapshots[len(res.Snapshots)-1]
		}

		Expect(final(4)).To(Equal(final(1)))
	})
})

var _ = Describe("Result", func() {
	DescribeTable("headline simulation error",
		func(fields field.Config, expected float64) {
			r := &sim.Result{
				Fields:       fields,
				Initial:      sim.Conserved{KE: 10, PE: 10},
				Final:        sim.Conserved{KE: 12, PE: 9},
				ExpectedGain: 4,
			}
			Expect(r.SimulationError()).To(BeNumerically("~", expected, 1e-12))
		},
		Entry("magnetic uses energy error", field.Config{UniformMagnetic: true}, 5.0),
		Entry("point charge uses energy error", field.Config{PointCharge: true}, 5.0),
		Entry("cyclotron uses gain error", field.Config{CyclotronGap: true}, 50.0),
		Entry("no field", field.Config{}, 0.0),
	)

	It("derives the period error", func() {
		r := &sim.Result{ExpectedPeriod: 2, Time: 10.5, Turns: 5}
		abs, percent := r.PeriodError()
		Expect(abs).To(BeNumerically("~", 0.1, 1e-12))
		Expect(percent).To(BeNumerically("~", 5, 1e-9))
	})
})

var _ = Describe("ParseStop", func() {
	It("accepts every known name", func() {
		for _, stop := range []sim.StopCondition{sim.StopTurns, sim.StopRelativistic, sim.StopSpreadSettled} {
			got, err := sim.ParseStop(stop.String())
			Expect(err).NotTo(HaveOccurred())
			Expect(got).To(Equal(stop))
		}
	})

	It("rejects unknown names", func() {
		_, err := sim.ParseStop("forever")
		Expect(errors.Is(err, dynamo.ErrUnknownStop)).To(BeTrue())
	})
})

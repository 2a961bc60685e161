package dynamo

import (
	"fmt"
	"math"
	"strings"

	"gonum.org/v1/gonum/spatial/r3"
)

// Physical constants shared by the force model and the aggregator.
const (
	CoulombConstant = 8.9875517873681764e9
	SpeedOfLight    = 299792458.0

	ProtonCharge = 1.60217662e-19
	ProtonMass   = 1.6726219e-27
)

// Particle is a single charged particle. It holds no pointers, so assigning
// it copies every component and a stage copy can never alias its source.
type Particle struct {
	Mass   float64
	Charge float64

	Position     r3.Vec
	Velocity     r3.Vec
	Acceleration r3.Vec

	// KE and PE are only valid right after CalcKE and CalcPE.
	KE float64
	PE float64
}

func NewProton() Particle {
	return Particle{Mass: ProtonMass, Charge: ProtonCharge}
}

func (p Particle) Clone() Particle {
	return p
}

func (p Particle) IsValid() bool {
	return finite(p.Position) && finite(p.Velocity)
}

func finite(v r3.Vec) bool {
	for _, c := range [3]float64{v.X, v.Y, v.Z} {
		if math.IsNaN(c) || math.IsInf(c, 0) {
			return false
		}
	}
	return true
}

// ChargeToMass returns q/m.
func (p *Particle) ChargeToMass() float64 {
	return p.Charge / p.Mass
}

func (p *Particle) CalcKE() float64 {
	p.KE = 0.5 * p.Mass * r3.Norm2(p.Velocity)
	return p.KE
}

// CalcPE stores the electrostatic energy against a point charge q0 at centre
// plus the magnetic term -q/2 B.((r-c) x v) of a uniform field b.
func (p *Particle) CalcPE(q0 float64, centre, b r3.Vec) float64 {
	rel := r3.Sub(p.Position, centre)
	electric := 0.0
	if q0 != 0 {
		electric = CoulombConstant * p.Charge * q0 / r3.Norm(rel)
	}
	magnetic := -0.5 * p.Charge * r3.Dot(b, r3.Cross(rel, p.Velocity))
	p.PE = electric + magnetic
	return p.PE
}

// Field evaluates the Lorentz acceleration on a particle.
type Field interface {
	Acceleration(p *Particle) r3.Vec
}

// Stepper advances one particle by dt in place. The particle's
// Acceleration must already hold the force model's value at its state.
type Stepper interface {
	Step(f Field, p *Particle, dt float64)
}

// AdaptiveStepper additionally returns the candidate next step size.
type AdaptiveStepper interface {
	Stepper
	StepAdaptive(f Field, p *Particle, dt, tol float64) float64
}

// Algorithm selects one of the explicit steppers.
type Algorithm int

const (
	Euler Algorithm = iota + 1
	EulerCromer
	Heun
	Verlet
	RK4
	RKF45
)

var algorithmNames = map[Algorithm]string{
	Euler:       "euler",
	EulerCromer: "euler-cromer",
	Heun:        "heun",
	Verlet:      "verlet",
	RK4:         "rk4",
	RKF45:       "rkf45",
}

// Algorithms lists every algorithm in menu order.
func Algorithms() []Algorithm {
	return []Algorithm{Euler, EulerCromer, Heun, Verlet, RK4, RKF45}
}

func (a Algorithm) String() string {
	if name, ok := algorithmNames[a]; ok {
		return name
	}
	return fmt.Sprintf("algorithm(%d)", int(a))
}

func (a Algorithm) Adaptive() bool {
	return a == RKF45
}

// ParseAlgorithm accepts a name or a numeric menu code 1..6.
func ParseAlgorithm(name string) (Algorithm, error) {
	key := strings.ToLower(strings.TrimSpace(name))
	for alg, n := range algorithmNames {
		if n == key || fmt.Sprint(int(alg)) == key {
			return alg, nil
		}
	}
	switch key {
	case "ec", "cromer":
		return EulerCromer, nil
	case "velocity-verlet":
		return Verlet, nil
	case "rk45":
		return RKF45, nil
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownAlgorithm, name)
}

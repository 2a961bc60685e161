package integrators

import (
	"fmt"
	"math"
	"strings"

	"gonum.org/v1/gonum/spatial/r3"

	"github.com/san-kum/emsim/internal/dynamo"
)

// Embedded solution weights over k1..k6. k2 carries no weight in either.
// The 4101 denominator is intentional: the order-4 weights sum to about
// 1.00039, so y drifts from z even for a force-free particle.
var (
	order4Weights = [6]float64{25.0 / 216.0, 0, 1408.0 / 2565.0, 2197.0 / 4101.0, -1.0 / 5.0, 0}
	order5Weights = [6]float64{16.0 / 135.0, 0, 6656.0 / 12825.0, 28561.0 / 56430.0, -9.0 / 50.0, 2.0 / 55.0}
)

// AcceptancePolicy decides which embedded solution becomes the new state.
type AcceptancePolicy int

const (
	// AcceptLegacy keeps the fifth-order component when its disagreement
	// with the fourth-order one is at least tol*|z|, and the fourth-order
	// component otherwise. Position and velocity are decided separately.
	AcceptLegacy AcceptancePolicy = iota
	// AcceptHigherOrder always keeps the fifth-order solution.
	AcceptHigherOrder
)

func (a AcceptancePolicy) String() string {
	switch a {
	case AcceptLegacy:
		return "legacy"
	case AcceptHigherOrder:
		return "higher-order"
	default:
		return fmt.Sprintf("policy(%d)", int(a))
	}
}

func ParseAcceptance(name string) (AcceptancePolicy, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "legacy":
		return AcceptLegacy, nil
	case "higher-order", "fifth-order", "z":
		return AcceptHigherOrder, nil
	default:
		return 0, fmt.Errorf("%w: acceptance policy %q", dynamo.ErrInvalidParameter, name)
	}
}

// Adapt combines the six stage increments into the fourth and fifth order
// solutions, picks the accepted state according to policy and returns the
// candidate next step dt*f with
//
//	f = ((tol*dt/(2*errPos))^(1/4) + (tol*dt/(2*errVel))^(1/4)) / 2
//
// A zero error yields +Inf, which callers are expected to reject.
func Adapt(base dynamo.Particle, k [6]Increment, dt, tol float64, policy AcceptancePolicy) (dynamo.Particle, float64) {
	y := combine(base, k, order4Weights)
	z := combine(base, k, order5Weights)

	errPos := r3.Norm(r3.Sub(y.Position, z.Position))
	errVel := r3.Norm(r3.Sub(y.Velocity, z.Velocity))

	accepted := base
	switch policy {
	case AcceptHigherOrder:
		accepted.Position = z.Position
		accepted.Velocity = z.Velocity
	default:
		accepted.Position = y.Position
		if errPos >= tol*r3.Norm(z.Position) {
			accepted.Position = z.Position
		}
		accepted.Velocity = y.Velocity
		if errVel >= tol*r3.Norm(z.Velocity) {
			accepted.Velocity = z.Velocity
		}
	}

	factor := 0.5 * (math.Pow(tol*dt/(2*errPos), 0.25) + math.Pow(tol*dt/(2*errVel), 0.25))
	return accepted, dt * factor
}

func combine(base dynamo.Particle, k [6]Increment, w [6]float64) dynamo.Particle {
	out := base
	for i := range k {
		if w[i] == 0 {
			continue
		}
		out = advance(out, k[i], w[i])
	}
	return out
}

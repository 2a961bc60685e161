// Package dynamo provides the core primitives shared by the simulation
// packages.
//
//   - [Particle]: a charged particle with position, velocity and the
//     acceleration last assigned by the force model
//   - [Field]: anything that can evaluate the Lorentz acceleration
//   - [Stepper], [AdaptiveStepper]: single-particle integrators
//   - [Algorithm]: tagged selector for the six steppers
//
// Vectors are gonum r3.Vec values, so a Particle copy is always a deep copy.
//
// # Example
//
//	p := dynamo.NewProton()
//	p.Velocity = r3.Vec{Y: 0.1}
//	p.Acceleration = model.Acceleration(&p)
//	stepper.Step(model, &p, 1e-6)
//
// # Thread Safety
//
// Particles are plain values. Distinct particles may be stepped from
// different goroutines; see [ParallelFor].
package dynamo

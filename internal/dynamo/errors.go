package dynamo

import (
	"errors"
	"fmt"
)

// Domain errors for simulation operations.
var (
	// ErrInvalidParameter indicates a parameter value is outside valid range.
	ErrInvalidParameter = errors.New("dynamo: parameter out of valid bounds")

	// ErrNumericDivergence indicates a non-finite position or velocity.
	ErrNumericDivergence = errors.New("dynamo: simulation diverged (NaN or Inf detected)")

	// ErrUnknownAlgorithm indicates an unrecognised stepper name or code.
	ErrUnknownAlgorithm = errors.New("dynamo: unknown algorithm")

	// ErrUnknownPreset indicates a preset name with no configuration.
	ErrUnknownPreset = errors.New("dynamo: unknown preset")

	// ErrUnknownStop indicates an unrecognised termination mode.
	ErrUnknownStop = errors.New("dynamo: unknown stop condition")
)

// SimulationError wraps an error with run context.
type SimulationError struct {
	Iteration int
	Time      float64
	Turn      int
	Wrapped   error
}

func (e *SimulationError) Error() string {
	return fmt.Sprintf("iteration %d (t=%.6g, turn %d): %v", e.Iteration, e.Time, e.Turn, e.Wrapped)
}

func (e *SimulationError) Unwrap() error {
	return e.Wrapped
}

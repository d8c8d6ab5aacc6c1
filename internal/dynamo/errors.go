package dynamo

import (
	"errors"
	"fmt"
)

// Domain errors for model and solver operations.
var (
	// ErrInvalidState indicates a state vector with NaN or Inf entries.
	ErrInvalidState = errors.New("dynamo: invalid state (NaN or Inf detected)")

	// ErrDimensionMismatch indicates mismatched vector or matrix dimensions.
	ErrDimensionMismatch = errors.New("dynamo: dimension mismatch")

	// ErrSingularJacobian indicates a constraint or mass matrix block that
	// cannot be inverted at the current configuration.
	ErrSingularJacobian = errors.New("dynamo: singular jacobian")

	// ErrNoConvergence indicates a nonlinear solve that did not reach tolerance.
	ErrNoConvergence = errors.New("dynamo: nonlinear solve did not converge")

	// ErrInvalidPartition indicates independent/dependent index lists that do
	// not partition the generalized coordinates.
	ErrInvalidPartition = errors.New("dynamo: invalid coordinate partition")

	// ErrUnknownName indicates a segment, marker or contact that is not in the model.
	ErrUnknownName = errors.New("dynamo: unknown name")

	// ErrParameterBounds indicates a parameter value is outside valid range.
	ErrParameterBounds = errors.New("dynamo: parameter out of valid bounds")

	// ErrContextCanceled indicates the run was interrupted.
	ErrContextCanceled = errors.New("dynamo: canceled by context")
)

// NodeError wraps an error with the phase and node it was raised at.
type NodeError struct {
	Phase   int
	Node    int
	Wrapped error
}

func (e *NodeError) Error() string {
	return fmt.Sprintf("phase %d node %d: %v", e.Phase, e.Node, e.Wrapped)
}

func (e *NodeError) Unwrap() error {
	return e.Wrapped
}

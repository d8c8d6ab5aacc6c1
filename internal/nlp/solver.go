package nlp

import (
	"context"
	"fmt"
)

// Status is the termination reason of a solve.
type Status int

const (
	Converged Status = iota
	IterationLimit
	Canceled
	Failed
)

func (s Status) String() string {
	switch s {
	case Converged:
		return "Converged"
	case IterationLimit:
		return "MaxIterations"
	case Canceled:
		return "Canceled"
	case Failed:
		return "Failed"
	default:
		return fmt.Sprintf("Status(%d)", int(s))
	}
}

// Result is the outcome of a solve. X is always the best iterate reached,
// projected into the box bounds.
type Result struct {
	X               []float64
	Cost            float64
	Violation       float64
	Iterations      int
	OuterIterations int
	FuncEvaluations int
	Status          Status
	// Multipliers holds one slice per term in problem order; nil for
	// objective terms.
	Multipliers [][]float64
}

// Solver solves a Problem.
type Solver interface {
	Solve(ctx context.Context, p *Problem) (*Result, error)
}

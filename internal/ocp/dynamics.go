package ocp

import (
	"fmt"
	"math"

	"github.com/san-kum/salto/internal/dynamo"
	"github.com/san-kum/salto/internal/holonomic"
	"github.com/san-kum/salto/internal/rbd"
)

// DynamicsKind selects the equations of motion of a phase.
type DynamicsKind int

const (
	// TorqueDriven is free-body dynamics; contacts of the body are ignored.
	TorqueDriven DynamicsKind = iota
	// TorqueDrivenContact enforces every contact of the body as a rigid
	// constraint and exposes the contact forces.
	TorqueDrivenContact
	// HolonomicTorqueDriven integrates the independent coordinates of a
	// partitioned closed-loop model.
	HolonomicTorqueDriven
)

func (k DynamicsKind) String() string {
	switch k {
	case TorqueDriven:
		return "torque_driven"
	case TorqueDrivenContact:
		return "torque_driven_contact"
	case HolonomicTorqueDriven:
		return "holonomic_torque_driven"
	default:
		return fmt.Sprintf("dynamics(%d)", int(k))
	}
}

func ParseDynamicsKind(s string) (DynamicsKind, error) {
	for _, k := range []DynamicsKind{TorqueDriven, TorqueDrivenContact, HolonomicTorqueDriven} {
		if k.String() == s {
			return k, nil
		}
	}
	return 0, fmt.Errorf("dynamics %q: %w", s, dynamo.ErrUnknownName)
}

// FullTorque scatters the actuated torques into a generalized force vector
// of length n; unactuated coordinates get zero.
func FullTorque(n int, actuated []int, tau []float64) []float64 {
	out := make([]float64, n)
	for i, idx := range actuated {
		out[idx] = tau[i]
	}
	return out
}

func nanState(n int) dynamo.State {
	s := make(dynamo.State, n)
	for i := range s {
		s[i] = math.NaN()
	}
	return s
}

// BodySystem is torque-driven dynamics of x = [q; qdot], with or without
// rigid contacts. It is safe for concurrent use.
type BodySystem struct {
	Body        *rbd.Model
	Actuated    []int
	WithContact bool
}

func (s *BodySystem) StateDim() int   { return 2 * s.Body.NQ() }
func (s *BodySystem) ControlDim() int { return len(s.Actuated) }

// Derive returns [qdot; q̈]. A singular mass or contact matrix yields NaN.
func (s *BodySystem) Derive(x dynamo.State, u dynamo.Control, t float64) dynamo.State {
	qdd, _, err := s.Accelerations(x, u)
	if err != nil {
		return nanState(len(x))
	}
	_, qdot := x.Split()
	return dynamo.Concat(qdot, qdd)
}

// Accelerations returns q̈ and, with contacts, the contact forces.
func (s *BodySystem) Accelerations(x dynamo.State, u dynamo.Control) ([]float64, []float64, error) {
	n := s.Body.NQ()
	if len(x) != 2*n || len(u) != len(s.Actuated) {
		return nil, nil, dynamo.ErrDimensionMismatch
	}
	q, qdot := x.Split()
	tau := FullTorque(n, s.Actuated, u)
	if s.WithContact {
		return s.Body.ConstrainedForwardDynamics(q, qdot, tau)
	}
	qdd, err := s.Body.ForwardDynamics(q, qdot, tau)
	return qdd, nil, err
}

// HolonomicSystem is the reduced dynamics of x = [u; udot] on the
// constraint manifold of a partitioned model.
type HolonomicSystem struct {
	Model    *holonomic.Model
	Actuated []int
}

func (s *HolonomicSystem) StateDim() int   { return 2 * s.Model.NbIndependent() }
func (s *HolonomicSystem) ControlDim() int { return len(s.Actuated) }

func (s *HolonomicSystem) Derive(x dynamo.State, u dynamo.Control, t float64) dynamo.State {
	nu := s.Model.NbIndependent()
	if len(x) != 2*nu || len(u) != len(s.Actuated) {
		return nanState(len(x))
	}
	ui, udot := x.Split()
	uddot, err := s.Model.PartitionedForwardDynamics(ui, udot, FullTorque(s.Model.NQ(), s.Actuated, u))
	if err != nil {
		return nanState(len(x))
	}
	return dynamo.Concat(udot, uddot)
}

// Multipliers returns λ at x under control u.
func (s *HolonomicSystem) Multipliers(x dynamo.State, u dynamo.Control) ([]float64, error) {
	ui, udot := x.Split()
	return s.Model.LagrangeMultipliers(ui, udot, FullTorque(s.Model.NQ(), s.Actuated, u))
}

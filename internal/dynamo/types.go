package dynamo

import (
	"math"
)

// State is a generalized state vector. Free phases store [q; qdot],
// holonomic phases store [u; udot].
type State []float64

func (s State) Clone() State {
	c := make(State, len(s))
	copy(c, s)
	return c
}

// IsValid reports whether every component is finite. Dynamics signal an
// unusable configuration by returning NaN states.
func (s State) IsValid() bool {
	for _, v := range s {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}

// Split returns the two halves of a [q; qdot] style vector.
func (s State) Split() (State, State) {
	h := len(s) / 2
	return s[:h], s[h:]
}

// Concat joins position and velocity halves into a new state.
func Concat(a, b []float64) State {
	out := make(State, len(a)+len(b))
	copy(out, a)
	copy(out[len(a):], b)
	return out
}

// Control holds the actuated joint torques.
type Control []float64

// System is a phase dynamics function dX/dt = f(X, u, t).
type System interface {
	Derive(x State, u Control, t float64) State
	StateDim() int
	ControlDim() int
}

// Integrator advances a state by one step under a constant control.
type Integrator interface {
	Step(dyn System, x State, u Control, t float64, dt float64) State
}

// AdaptiveIntegrator also estimates its local error and proposes the next
// step size.
type AdaptiveIntegrator interface {
	Integrator
	StepAdaptive(dyn System, x State, u Control, t, dt, tol float64) (State, float64, error)
}

// Controller yields the control applied at t. Replays use piecewise
// constant schedules.
type Controller interface {
	Compute(x State, t float64) Control
}

type Metric interface {
	Name() string
	Observe(x State, u Control, t float64)
	Value() float64
	Reset()
}

type Observer interface {
	OnStep(x State, u Control, t float64)
}

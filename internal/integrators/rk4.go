package integrators

import "github.com/san-kum/salto/internal/dynamo"

// RK4 is the classical fourth-order Runge-Kutta stepper used inside every
// shooting interval. It holds no state and is safe for concurrent use.
type RK4 struct{}

func NewRK4() *RK4 {
	return &RK4{}
}

func (r *RK4) Step(dyn dynamo.System, x dynamo.State, u dynamo.Control, t, dt float64) dynamo.State {
	return combine(x, classicTableau.slopes(dyn, x, u, t, dt), classicTableau.b, dt)
}

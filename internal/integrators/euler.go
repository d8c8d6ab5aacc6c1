package integrators

import "github.com/san-kum/salto/internal/dynamo"

// Euler is the explicit first-order stepper, kept for comparing replays.
type Euler struct{}

func NewEuler() *Euler {
	return &Euler{}
}

func (e *Euler) Step(dyn dynamo.System, x dynamo.State, u dynamo.Control, t, dt float64) dynamo.State {
	return combine(x, eulerTableau.slopes(dyn, x, u, t, dt), eulerTableau.b, dt)
}

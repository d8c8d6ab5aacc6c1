package integrators

import (
	"errors"
	"fmt"

	"github.com/san-kum/salto/internal/dynamo"
)

// ErrStepRejected is returned by adaptive steppers when the local error
// exceeds the tolerance. The suggested step size is still returned.
var ErrStepRejected = errors.New("integrators: step rejected")

// New returns a fresh integrator by name.
func New(name string) (dynamo.Integrator, error) {
	switch name {
	case "euler":
		return NewEuler(), nil
	case "rk4", "":
		return NewRK4(), nil
	case "rk45":
		return NewRK45(), nil
	}
	return nil, fmt.Errorf("unknown integrator %q (euler, rk4, rk45)", name)
}

// Shoot integrates x over [t0, t0+duration] in steps fixed sub-steps under a
// constant control.
func Shoot(integ dynamo.Integrator, dyn dynamo.System, x dynamo.State, u dynamo.Control, t0, duration float64, steps int) dynamo.State {
	if steps < 1 {
		steps = 1
	}
	dt := duration / float64(steps)
	for i := 0; i < steps; i++ {
		x = integ.Step(dyn, x, u, t0+float64(i)*dt, dt)
	}
	return x
}

package integrators

import (
	"math"

	"github.com/san-kum/salto/internal/dynamo"
)

// RK45 is the Dormand-Prince embedded pair. Step ignores the error
// estimate; StepAdaptive uses it for step size control.
type RK45 struct {
	safety   float64
	minScale float64
	maxScale float64
}

func NewRK45() *RK45 {
	return &RK45{
		safety:   0.9,
		minScale: 0.2,
		maxScale: 10.0,
	}
}

func (r *RK45) Step(dyn dynamo.System, x dynamo.State, u dynamo.Control, t, dt float64) dynamo.State {
	k := dormandPrince.slopes(dyn, x, u, t, dt)
	return combine(x, k, dormandPrince.b, dt)
}

// StepAdaptive takes one step and suggests the next step size. A step whose
// relative error exceeds tol, or is not finite, is rejected with
// ErrStepRejected and x is returned unchanged.
func (r *RK45) StepAdaptive(dyn dynamo.System, x dynamo.State, u dynamo.Control, t, dt, tol float64) (dynamo.State, float64, error) {
	k := dormandPrince.slopes(dyn, x, u, t, dt)
	ratio := r.errorNorm(x, k, dt) / tol

	if !(ratio <= 1) {
		scale := r.minScale
		if !math.IsNaN(ratio) {
			scale = math.Max(r.minScale, r.safety*math.Pow(ratio, -0.25))
		}
		return x, dt * scale, ErrStepRejected
	}

	next := dt * r.maxScale
	if ratio > 0 {
		next = dt * math.Min(r.maxScale, r.safety*math.Pow(ratio, -0.2))
	}
	return combine(x, k, dormandPrince.b, dt), next, nil
}

// errorNorm is the max-norm of the embedded error, relative to the state
// and the first slope.
func (r *RK45) errorNorm(x dynamo.State, k []dynamo.State, dt float64) float64 {
	worst := 0.0
	for i := range x {
		est := 0.0
		for s, e := range dormandPrince.e {
			est += e * k[s][i]
		}
		scale := math.Abs(x[i]) + math.Abs(dt*k[0][i]) + 1e-10
		worst = math.Max(worst, math.Abs(dt*est)/scale)
	}
	return worst
}

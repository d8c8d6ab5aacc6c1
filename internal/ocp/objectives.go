package ocp

import (
	"fmt"

	"github.com/san-kum/salto/internal/dynamo"
	"github.com/san-kum/salto/internal/nlp"
)

// Lagrange terms are integrated with the rectangle rule over the shooting
// intervals, so their value is scaled by dt = duration / NShooting.

// MinimizeTau is Σ τ² dt.
type MinimizeTau struct {
	Weight float64
}

func (o MinimizeTau) Terms(pr *Program, p int) ([]nlp.Term, error) {
	ph := pr.Phases[p]
	nu := ph.NU()
	var out []nlp.Term
	for k := 0; k < ph.NShooting; k++ {
		vars := pr.ControlVars(p, k)
		if t := pr.TimeVar(p); t >= 0 {
			vars = append(vars, t)
		}
		out = append(out, nlp.Term{
			Name:   fmt.Sprintf("%s minimize tau", ph.Name),
			Kind:   nlp.Objective,
			Vars:   vars,
			Dim:    1,
			Weight: o.Weight,
			Eval: func(dst, x []float64) {
				duration := ph.Duration
				if ph.FreeTime() {
					duration = x[nu]
				}
				sum := 0.0
				for _, v := range x[:nu] {
					sum += v * v
				}
				dst[0] = sum * duration / float64(ph.NShooting)
			},
		})
	}
	return out, nil
}

// MinimizeTauDerivative is Σ (τ_{k+1} − τ_k)², a smoothness penalty.
type MinimizeTauDerivative struct {
	Weight float64
}

func (o MinimizeTauDerivative) Terms(pr *Program, p int) ([]nlp.Term, error) {
	ph := pr.Phases[p]
	nu := ph.NU()
	var out []nlp.Term
	for k := 0; k+1 < ph.NShooting; k++ {
		out = append(out, nlp.Term{
			Name:   fmt.Sprintf("%s minimize tau derivative", ph.Name),
			Kind:   nlp.Objective,
			Vars:   append(pr.ControlVars(p, k), pr.ControlVars(p, k+1)...),
			Dim:    1,
			Weight: o.Weight,
			Eval: func(dst, x []float64) {
				sum := 0.0
				for i := 0; i < nu; i++ {
					d := x[nu+i] - x[i]
					sum += d * d
				}
				dst[0] = sum
			},
		})
	}
	return out, nil
}

// MinimizeTime is the phase duration. The phase must have free time.
type MinimizeTime struct {
	Weight float64
}

func (o MinimizeTime) Terms(pr *Program, p int) ([]nlp.Term, error) {
	ph := pr.Phases[p]
	t := pr.TimeVar(p)
	if t < 0 {
		return nil, fmt.Errorf("%s: minimize time on a fixed duration: %w", ph.Name, dynamo.ErrInvalidState)
	}
	return []nlp.Term{{
		Name:   fmt.Sprintf("%s minimize time", ph.Name),
		Kind:   nlp.Objective,
		Vars:   []int{t},
		Dim:    1,
		Weight: o.Weight,
		Eval:   func(dst, x []float64) { dst[0] = x[0] },
	}}, nil
}

// MinimizeActuatorTorques is Σ (τ_i / τmax_i(q))² dt, with τmax read from
// the actuator curve selected by the sign of τ_i at the actuated joint
// angle. Holonomic phases evaluate the curve on the assembled full q.
type MinimizeActuatorTorques struct {
	Weight float64
}

func (o MinimizeActuatorTorques) Terms(pr *Program, p int) ([]nlp.Term, error) {
	ph := pr.Phases[p]
	if len(ph.Actuators) != ph.NU() || ph.NU() == 0 {
		return nil, fmt.Errorf("%s: %d actuators for %d controls: %w", ph.Name, len(ph.Actuators), ph.NU(), dynamo.ErrDimensionMismatch)
	}
	nx, nu := ph.NX(), ph.NU()
	var out []nlp.Term
	for k := 0; k < ph.NShooting; k++ {
		out = append(out, nlp.Term{
			Name:   fmt.Sprintf("%s minimize actuator torques", ph.Name),
			Kind:   nlp.Objective,
			Vars:   pr.nodeVars(p, k, true),
			Dim:    1,
			Weight: o.Weight,
			Eval: func(dst, x []float64) {
				v := pr.values(p, x, true)
				q, _, err := ph.FullState(v.X)
				if err != nil {
					fillNaN(dst)
					return
				}
				angles := make([]float64, nu)
				for i, idx := range ph.Actuated {
					angles[i] = q[idx]
				}
				dst[0] = ph.Actuators.Effort(angles, x[nx:nx+nu]) * v.Duration / float64(ph.NShooting)
			},
		})
	}
	return out, nil
}

package integrators

import "github.com/san-kum/salto/internal/dynamo"

// tableau is an explicit Runge-Kutta scheme. a is strictly lower
// triangular, b holds the solution weights and e, for embedded pairs, the
// difference between b and the weights of the lower order solution.
type tableau struct {
	c []float64
	a [][]float64
	b []float64
	e []float64
}

// slopes evaluates every stage of the scheme at x. The stage state buffer is
// reused, so dyn must not keep it.
func (tb *tableau) slopes(dyn dynamo.System, x dynamo.State, u dynamo.Control, t, dt float64) []dynamo.State {
	k := make([]dynamo.State, len(tb.c))
	xs := make(dynamo.State, len(x))
	for s, c := range tb.c {
		copy(xs, x)
		for j, a := range tb.a[s] {
			if a == 0 {
				continue
			}
			for i := range xs {
				xs[i] += dt * a * k[j][i]
			}
		}
		k[s] = dyn.Derive(xs, u, t+c*dt)
	}
	return k
}

// combine returns x + dt Σ w_s k_s.
func combine(x dynamo.State, k []dynamo.State, w []float64, dt float64) dynamo.State {
	out := x.Clone()
	for s, ws := range w {
		if ws == 0 {
			continue
		}
		for i := range out {
			out[i] += dt * ws * k[s][i]
		}
	}
	return out
}

var (
	eulerTableau = tableau{
		c: []float64{0},
		a: [][]float64{{}},
		b: []float64{1},
	}

	classicTableau = tableau{
		c: []float64{0, 0.5, 0.5, 1},
		a: [][]float64{{}, {0.5}, {0, 0.5}, {0, 0, 1}},
		b: []float64{1.0 / 6, 1.0 / 3, 1.0 / 3, 1.0 / 6},
	}

	// Dormand-Prince 5(4). The last stage sits at the fifth order solution,
	// so its weights repeat b.
	dormandPrince = tableau{
		c: []float64{0, 1.0 / 5, 3.0 / 10, 4.0 / 5, 8.0 / 9, 1, 1},
		a: [][]float64{
			{},
			{1.0 / 5},
			{3.0 / 40, 9.0 / 40},
			{44.0 / 45, -56.0 / 15, 32.0 / 9},
			{19372.0 / 6561, -25360.0 / 2187, 64448.0 / 6561, -212.0 / 729},
			{9017.0 / 3168, -355.0 / 33, 46732.0 / 5247, 49.0 / 176, -5103.0 / 18656},
			{35.0 / 384, 0, 500.0 / 1113, 125.0 / 192, -2187.0 / 6784, 11.0 / 84},
		},
		b: []float64{35.0 / 384, 0, 500.0 / 1113, 125.0 / 192, -2187.0 / 6784, 11.0 / 84, 0},
		e: []float64{
			35.0/384 - 5179.0/57600,
			0,
			500.0/1113 - 7571.0/16695,
			125.0/192 - 393.0/640,
			-2187.0/6784 + 92097.0/339200,
			11.0/84 - 187.0/2100,
			-1.0 / 40,
		},
	}
)

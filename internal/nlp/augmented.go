package nlp

import (
	"context"
	"fmt"
	"math"

	"go.uber.org/zap"
	"gonum.org/v1/gonum/diff/fd"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/optimize"

	"github.com/san-kum/salto/internal/dynamo"
)

// penaltyCeiling replaces a non-finite merit so line searches back off
// instead of aborting the inner solve.
const penaltyCeiling = 1e20

// AugmentedLagrangian solves a Problem by minimizing the
// Powell-Hestenes-Rockafellar augmented Lagrangian with L-BFGS and updating
// the multipliers between inner solves. Box bounds enter as inequality
// rows on single variables.
type AugmentedLagrangian struct {
	Rho           float64 // initial penalty
	RhoGrowth     float64
	RhoMax        float64
	MaxOuter      int
	MaxInner      int
	ConstraintTol float64
	GradientTol   float64
	FDStep        float64
	MinChunk      int // terms per goroutine
	Logger        *zap.Logger
}

// NewAugmentedLagrangian returns a solver with default settings.
func NewAugmentedLagrangian() *AugmentedLagrangian {
	return &AugmentedLagrangian{
		Rho:           10,
		RhoGrowth:     10,
		RhoMax:        1e9,
		MaxOuter:      40,
		MaxInner:      500,
		ConstraintTol: 1e-6,
		GradientTol:   1e-6,
		MinChunk:      8,
	}
}

type merit struct {
	p    *Problem
	rho  float64
	mult [][]float64 // equality: Dim; inequality: 2*Dim (lower, upper)
	boxL []float64
	boxH []float64

	step     float64
	minChunk int
	evals    int
}

func newMerit(p *Problem, rho, step float64, minChunk int) *merit {
	m := &merit{
		p:        p,
		rho:      rho,
		mult:     make([][]float64, len(p.Terms)),
		boxL:     make([]float64, p.N),
		boxH:     make([]float64, p.N),
		step:     step,
		minChunk: minChunk,
	}
	for i := range p.Terms {
		switch p.Terms[i].Kind {
		case Equality:
			m.mult[i] = make([]float64, p.Terms[i].Dim)
		case Inequality:
			m.mult[i] = make([]float64, 2*p.Terms[i].Dim)
		}
	}
	return m
}

// phr is the PHR penalty of an inequality g <= 0 with multiplier mu.
func phr(mu, g, rho float64) float64 {
	s := math.Max(0, mu+rho*g)
	return (s*s - mu*mu) / (2 * rho)
}

// termValue returns the merit contribution of values c of term k, and, when
// dc is not nil, its derivative with respect to c.
func (m *merit) termValue(k int, c, dc []float64) float64 {
	t := &m.p.Terms[k]
	f := 0.0
	for j, v := range c {
		switch t.Kind {
		case Objective:
			f += t.Weight * v
			if dc != nil {
				dc[j] = t.Weight
			}
		case Equality:
			lam := m.mult[k][j]
			f += lam*v + 0.5*m.rho*v*v
			if dc != nil {
				dc[j] = lam + m.rho*v
			}
		case Inequality:
			d := 0.0
			if lo := t.Lower[j]; !math.IsInf(lo, -1) {
				mu := m.mult[k][2*j]
				f += phr(mu, lo-v, m.rho)
				d -= math.Max(0, mu+m.rho*(lo-v))
			}
			if hi := t.Upper[j]; !math.IsInf(hi, 1) {
				mu := m.mult[k][2*j+1]
				f += phr(mu, v-hi, m.rho)
				d += math.Max(0, mu+m.rho*(v-hi))
			}
			if dc != nil {
				dc[j] = d
			}
		}
	}
	return f
}

func (m *merit) boxValue(x, grad []float64) float64 {
	f := 0.0
	for i, v := range x {
		if lo := m.p.Lo[i]; !math.IsInf(lo, -1) {
			f += phr(m.boxL[i], lo-v, m.rho)
			if grad != nil {
				grad[i] -= math.Max(0, m.boxL[i]+m.rho*(lo-v))
			}
		}
		if hi := m.p.Hi[i]; !math.IsInf(hi, 1) {
			f += phr(m.boxH[i], v-hi, m.rho)
			if grad != nil {
				grad[i] += math.Max(0, m.boxH[i]+m.rho*(v-hi))
			}
		}
	}
	return f
}

func (m *merit) Func(x []float64) float64 {
	m.evals++
	vals := make([]float64, len(m.p.Terms))
	dynamo.ParallelFor(len(m.p.Terms), m.minChunk, func(start, end int) {
		for k := start; k < end; k++ {
			vals[k] = m.termValue(k, m.p.Terms[k].value(x), nil)
		}
	})
	f := m.boxValue(x, nil)
	for _, v := range vals {
		f += v
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return penaltyCeiling
	}
	return f
}

func (m *merit) Grad(grad, x []float64) {
	local := make([][]float64, len(m.p.Terms))
	dynamo.ParallelFor(len(m.p.Terms), m.minChunk, func(start, end int) {
		for k := start; k < end; k++ {
			local[k] = m.termGradient(k, x)
		}
	})
	for i := range grad {
		grad[i] = 0
	}
	for k := range m.p.Terms {
		for i, v := range m.p.Terms[k].Vars {
			grad[v] += local[k][i]
		}
	}
	m.boxValue(x, grad)
}

func (m *merit) termGradient(k int, x []float64) []float64 {
	t := &m.p.Terms[k]
	xl := t.gather(x)
	g := make([]float64, len(xl))
	if len(xl) == 0 {
		return g
	}
	c := make([]float64, t.Dim)
	t.Eval(c, xl)
	dc := make([]float64, t.Dim)
	m.termValue(k, c, dc)

	jac := mat.NewDense(t.Dim, len(xl), nil)
	fd.Jacobian(jac, t.Eval, xl, &fd.JacobianSettings{
		Formula:     fd.Central,
		OriginValue: c,
		Step:        m.step,
	})
	for j := 0; j < t.Dim; j++ {
		if dc[j] == 0 {
			continue
		}
		for i := range g {
			if v := jac.At(j, i); !math.IsNaN(v) && !math.IsInf(v, 0) {
				g[i] += dc[j] * v
			}
		}
	}
	return g
}

// update moves the multipliers to the first-order estimate at x and
// returns the constraint violation there.
func (m *merit) update(x []float64) float64 {
	worst := 0.0
	for k := range m.p.Terms {
		t := &m.p.Terms[k]
		if t.Kind == Objective {
			continue
		}
		c := t.value(x)
		for j, v := range c {
			if math.IsNaN(v) {
				worst = math.Inf(1)
				continue
			}
			worst = math.Max(worst, rowViolation(t, j, v))
			if t.Kind == Equality {
				m.mult[k][j] += m.rho * v
				continue
			}
			if lo := t.Lower[j]; !math.IsInf(lo, -1) {
				m.mult[k][2*j] = math.Max(0, m.mult[k][2*j]+m.rho*(lo-v))
			}
			if hi := t.Upper[j]; !math.IsInf(hi, 1) {
				m.mult[k][2*j+1] = math.Max(0, m.mult[k][2*j+1]+m.rho*(v-hi))
			}
		}
	}
	for i, v := range x {
		if lo := m.p.Lo[i]; !math.IsInf(lo, -1) {
			m.boxL[i] = math.Max(0, m.boxL[i]+m.rho*(lo-v))
			worst = math.Max(worst, lo-v)
		}
		if hi := m.p.Hi[i]; !math.IsInf(hi, 1) {
			m.boxH[i] = math.Max(0, m.boxH[i]+m.rho*(v-hi))
			worst = math.Max(worst, v-hi)
		}
	}
	return worst
}

// multipliers reports the signed multiplier per constraint row: equality
// rows as-is, inequality rows as upper minus lower.
func (m *merit) multipliers() [][]float64 {
	out := make([][]float64, len(m.p.Terms))
	for k := range m.p.Terms {
		t := &m.p.Terms[k]
		switch t.Kind {
		case Equality:
			out[k] = append([]float64(nil), m.mult[k]...)
		case Inequality:
			out[k] = make([]float64, t.Dim)
			for j := range out[k] {
				out[k][j] = m.mult[k][2*j+1] - m.mult[k][2*j]
			}
		}
	}
	return out
}

// Solve runs the outer multiplier loop until the violation and the inner
// gradient are both below tolerance.
func (a *AugmentedLagrangian) Solve(ctx context.Context, p *Problem) (*Result, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	logger := a.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	m := newMerit(p, a.Rho, a.FDStep, a.MinChunk)
	x := append([]float64(nil), p.X0...)
	res := &Result{Status: IterationLimit}
	prevViol := math.Inf(1)

	for outer := 0; outer < a.MaxOuter; outer++ {
		if ctx.Err() != nil {
			res.Status = Canceled
			break
		}

		problem := optimize.Problem{Func: m.Func, Grad: m.Grad}
		settings := &optimize.Settings{
			GradientThreshold: a.GradientTol,
			MajorIterations:   a.MaxInner,
			Converger: &optimize.FunctionConverge{
				Absolute:   1e-12,
				Relative:   1e-12,
				Iterations: 20,
			},
			Recorder: cancelRecorder{ctx},
		}
		inner, err := optimize.Minimize(problem, x, settings, &optimize.LBFGS{})
		if ctx.Err() != nil {
			if inner != nil && !math.IsInf(inner.F, 1) {
				copy(x, inner.X)
				res.Iterations += inner.Stats.MajorIterations
			}
			res.Status = Canceled
			break
		}
		if inner == nil {
			res.Status = Failed
			return a.finish(p, m, x, res), fmt.Errorf("outer iteration %d: %w", outer, err)
		}
		if !math.IsInf(inner.F, 1) {
			copy(x, inner.X)
		}
		res.Iterations += inner.Stats.MajorIterations
		res.OuterIterations = outer + 1

		viol := m.update(x)
		logger.Debug("augmented lagrangian outer iteration",
			zap.Int("outer", outer),
			zap.Float64("rho", m.rho),
			zap.Float64("cost", p.Cost(x)),
			zap.Float64("violation", viol),
			zap.String("inner", inner.Status.String()),
		)

		if viol <= a.ConstraintTol && !inner.Status.Early() {
			res.Status = Converged
			break
		}
		if viol > 0.25*prevViol {
			m.rho = math.Min(m.rho*a.RhoGrowth, a.RhoMax)
		}
		prevViol = viol
	}

	return a.finish(p, m, x, res), nil
}

// cancelRecorder stops an inner minimization at the next evaluation once
// ctx is done.
type cancelRecorder struct {
	ctx context.Context
}

func (r cancelRecorder) Init() error { return nil }

func (r cancelRecorder) Record(*optimize.Location, optimize.Operation, *optimize.Stats) error {
	return r.ctx.Err()
}

func (a *AugmentedLagrangian) finish(p *Problem, m *merit, x []float64, res *Result) *Result {
	p.Clip(x)
	res.X = x
	res.Cost = p.Cost(x)
	res.Violation = p.Violation(x)
	res.Multipliers = m.multipliers()
	res.FuncEvaluations = m.evals
	return res
}

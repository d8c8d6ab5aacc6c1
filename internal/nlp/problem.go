package nlp

import (
	"fmt"
	"math"

	"github.com/san-kum/salto/internal/dynamo"
)

// Kind classifies a term.
type Kind int

const (
	Objective Kind = iota
	Equality
	Inequality
)

func (k Kind) String() string {
	switch k {
	case Objective:
		return "objective"
	case Equality:
		return "equality"
	case Inequality:
		return "inequality"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Term is a vector function of a subset of the decision variables.
//
// Eval receives the variables listed in Vars, in that order, and writes Dim
// values into dst. Eval is called concurrently and must not share scratch
// state between calls. Objective terms contribute Weight times the sum of
// their values. Inequality terms require Lower[i] <= c[i] <= Upper[i]; use
// ±Inf for a one-sided bound.
type Term struct {
	Name   string
	Kind   Kind
	Vars   []int
	Dim    int
	Weight float64
	Lower  []float64
	Upper  []float64
	Eval   func(dst, x []float64)
}

// Problem is a sparse nonlinear program
//
//	min Σ objective terms  s.t.  equalities = 0,  Lower <= inequalities <= Upper,  Lo <= x <= Hi.
type Problem struct {
	N     int
	Terms []Term
	Lo    []float64
	Hi    []float64
	X0    []float64
}

// NewProblem returns an unbounded problem over n variables starting at zero.
func NewProblem(n int) *Problem {
	p := &Problem{
		N:  n,
		Lo: make([]float64, n),
		Hi: make([]float64, n),
		X0: make([]float64, n),
	}
	for i := 0; i < n; i++ {
		p.Lo[i] = math.Inf(-1)
		p.Hi[i] = math.Inf(1)
	}
	return p
}

// Add appends a term after validating it against the problem size.
func (p *Problem) Add(t Term) error {
	if err := p.checkTerm(&t); err != nil {
		return err
	}
	p.Terms = append(p.Terms, t)
	return nil
}

func (p *Problem) checkTerm(t *Term) error {
	if t.Eval == nil || t.Dim <= 0 {
		return fmt.Errorf("term %q: empty: %w", t.Name, dynamo.ErrDimensionMismatch)
	}
	for _, v := range t.Vars {
		if v < 0 || v >= p.N {
			return fmt.Errorf("term %q: variable %d outside [0,%d): %w", t.Name, v, p.N, dynamo.ErrDimensionMismatch)
		}
	}
	switch t.Kind {
	case Objective:
		if t.Weight == 0 {
			t.Weight = 1
		}
	case Inequality:
		if len(t.Lower) != t.Dim || len(t.Upper) != t.Dim {
			return fmt.Errorf("term %q: bounds length: %w", t.Name, dynamo.ErrDimensionMismatch)
		}
		for i := range t.Lower {
			if t.Lower[i] > t.Upper[i] {
				return fmt.Errorf("term %q: lower %g > upper %g: %w", t.Name, t.Lower[i], t.Upper[i], dynamo.ErrParameterBounds)
			}
		}
	}
	return nil
}

// Validate checks the bound and start vectors.
func (p *Problem) Validate() error {
	if len(p.Lo) != p.N || len(p.Hi) != p.N || len(p.X0) != p.N {
		return fmt.Errorf("problem: vectors of length %d/%d/%d for %d variables: %w",
			len(p.Lo), len(p.Hi), len(p.X0), p.N, dynamo.ErrDimensionMismatch)
	}
	for i := 0; i < p.N; i++ {
		if p.Lo[i] > p.Hi[i] {
			return fmt.Errorf("problem: variable %d bounds [%g, %g]: %w", i, p.Lo[i], p.Hi[i], dynamo.ErrParameterBounds)
		}
	}
	for i := range p.Terms {
		if err := p.checkTerm(&p.Terms[i]); err != nil {
			return err
		}
	}
	return nil
}

// NbConstraintRows counts equality and inequality rows.
func (p *Problem) NbConstraintRows() int {
	n := 0
	for i := range p.Terms {
		if p.Terms[i].Kind != Objective {
			n += p.Terms[i].Dim
		}
	}
	return n
}

func (t *Term) gather(x []float64) []float64 {
	local := make([]float64, len(t.Vars))
	for i, v := range t.Vars {
		local[i] = x[v]
	}
	return local
}

func (t *Term) value(x []float64) []float64 {
	c := make([]float64, t.Dim)
	t.Eval(c, t.gather(x))
	return c
}

// Cost evaluates the weighted objective.
func (p *Problem) Cost(x []float64) float64 {
	cost := 0.0
	for i := range p.Terms {
		t := &p.Terms[i]
		if t.Kind != Objective {
			continue
		}
		for _, c := range t.value(x) {
			cost += t.Weight * c
		}
	}
	return cost
}

// Violation returns the largest constraint or bound violation at x.
func (p *Problem) Violation(x []float64) float64 {
	worst := 0.0
	for i := range p.Terms {
		t := &p.Terms[i]
		if t.Kind == Objective {
			continue
		}
		for j, c := range t.value(x) {
			worst = math.Max(worst, rowViolation(t, j, c))
		}
	}
	for i := 0; i < p.N; i++ {
		worst = math.Max(worst, math.Max(p.Lo[i]-x[i], x[i]-p.Hi[i]))
	}
	return worst
}

// TermViolations reports the worst violation of each constraint term by name.
func (p *Problem) TermViolations(x []float64) map[string]float64 {
	out := make(map[string]float64)
	for i := range p.Terms {
		t := &p.Terms[i]
		if t.Kind == Objective {
			continue
		}
		worst := 0.0
		for j, c := range t.value(x) {
			worst = math.Max(worst, rowViolation(t, j, c))
		}
		if w, ok := out[t.Name]; !ok || worst > w {
			out[t.Name] = worst
		}
	}
	return out
}

func rowViolation(t *Term, j int, c float64) float64 {
	if math.IsNaN(c) {
		return math.Inf(1)
	}
	if t.Kind == Equality {
		return math.Abs(c)
	}
	return math.Max(0, math.Max(t.Lower[j]-c, c-t.Upper[j]))
}

// Clip projects x into the box bounds in place.
func (p *Problem) Clip(x []float64) {
	for i := range x {
		if x[i] < p.Lo[i] {
			x[i] = p.Lo[i]
		}
		if x[i] > p.Hi[i] {
			x[i] = p.Hi[i]
		}
	}
}

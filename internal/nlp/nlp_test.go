package nlp

import (
	"context"
	"errors"
	"math"
	"sync/atomic"
	"testing"

	"github.com/san-kum/salto/internal/dynamo"
)

func quadratic(cy, cz float64) Term {
	return Term{
		Name: "distance",
		Kind: Objective,
		Vars: []int{0, 1},
		Dim:  1,
		Eval: func(dst, x []float64) {
			dst[0] = (x[0]-cy)*(x[0]-cy) + (x[1]-cz)*(x[1]-cz)
		},
	}
}

func TestAddValidation(t *testing.T) {
	eval := func(dst, x []float64) {}
	tests := []struct {
		name string
		term Term
		want error
	}{
		{"no eval", Term{Name: "a", Dim: 1}, dynamo.ErrDimensionMismatch},
		{"zero dim", Term{Name: "a", Eval: eval}, dynamo.ErrDimensionMismatch},
		{"var out of range", Term{Name: "a", Dim: 1, Vars: []int{3}, Eval: eval}, dynamo.ErrDimensionMismatch},
		{"bounds length", Term{Name: "a", Kind: Inequality, Dim: 2, Lower: []float64{0}, Upper: []float64{1, 1}, Eval: eval}, dynamo.ErrDimensionMismatch},
		{"crossed bounds", Term{Name: "a", Kind: Inequality, Dim: 1, Lower: []float64{2}, Upper: []float64{1}, Eval: eval}, dynamo.ErrParameterBounds},
		{"ok", Term{Name: "a", Dim: 1, Vars: []int{0, 2}, Eval: eval}, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := NewProblem(3)
			err := p.Add(tt.term)
			if tt.want == nil {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if !errors.Is(err, tt.want) {
				t.Errorf("expected %v, got %v", tt.want, err)
			}
		})
	}
}

func TestObjectiveDefaultWeight(t *testing.T) {
	p := NewProblem(2)
	if err := p.Add(quadratic(1, 2)); err != nil {
		t.Fatal(err)
	}
	if got := p.Cost([]float64{0, 0}); got != 5 {
		t.Errorf("expected cost 5, got %f", got)
	}
}

func TestViolation(t *testing.T) {
	p := NewProblem(2)
	p.Hi[1] = 0.5
	p.Add(Term{
		Name: "sum", Kind: Equality, Vars: []int{0, 1}, Dim: 1,
		Eval: func(dst, x []float64) { dst[0] = x[0] + x[1] - 1 },
	})
	p.Add(Term{
		Name: "floor", Kind: Inequality, Vars: []int{0}, Dim: 1,
		Lower: []float64{2}, Upper: []float64{math.Inf(1)},
		Eval: func(dst, x []float64) { dst[0] = x[0] },
	})

	if v := p.Violation([]float64{0.5, 0.5}); math.Abs(v-1.5) > 1e-12 {
		t.Errorf("expected violation 1.5, got %f", v)
	}
	if v := p.Violation([]float64{2, 1}); math.Abs(v-2) > 1e-12 {
		t.Errorf("expected violation 2, got %f", v)
	}
	byName := p.TermViolations([]float64{3, -2})
	if byName["sum"] != 0 || byName["floor"] != 0 {
		t.Errorf("expected feasible terms, got %v", byName)
	}
	if p.NbConstraintRows() != 2 {
		t.Errorf("expected 2 rows, got %d", p.NbConstraintRows())
	}
}

func TestAugmentedLagrangianEquality(t *testing.T) {
	p := NewProblem(2)
	p.Add(quadratic(1, 2))
	p.Add(Term{
		Name: "sum", Kind: Equality, Vars: []int{0, 1}, Dim: 1,
		Eval: func(dst, x []float64) { dst[0] = x[0] + x[1] - 1 },
	})

	res, err := NewAugmentedLagrangian().Solve(context.Background(), p)
	if err != nil {
		t.Fatal(err)
	}
	if res.Status != Converged {
		t.Fatalf("expected Converged, got %s", res.Status)
	}
	if math.Abs(res.X[0]) > 1e-4 || math.Abs(res.X[1]-1) > 1e-4 {
		t.Errorf("expected (0, 1), got %v", res.X)
	}
	if math.Abs(res.Multipliers[1][0]-2) > 1e-3 {
		t.Errorf("expected multiplier 2, got %f", res.Multipliers[1][0])
	}
	if res.Multipliers[0] != nil {
		t.Error("objective terms should carry no multiplier")
	}
}

func TestAugmentedLagrangianInequality(t *testing.T) {
	p := NewProblem(1)
	p.Add(Term{
		Name: "square", Kind: Objective, Vars: []int{0}, Dim: 1,
		Eval: func(dst, x []float64) { dst[0] = x[0] * x[0] },
	})
	p.Add(Term{
		Name: "floor", Kind: Inequality, Vars: []int{0}, Dim: 1,
		Lower: []float64{1}, Upper: []float64{math.Inf(1)},
		Eval: func(dst, x []float64) { dst[0] = x[0] },
	})
	p.X0[0] = 3

	res, err := NewAugmentedLagrangian().Solve(context.Background(), p)
	if err != nil {
		t.Fatal(err)
	}
	if math.Abs(res.X[0]-1) > 1e-4 {
		t.Errorf("expected x = 1, got %f", res.X[0])
	}
	if res.Violation > 1e-5 {
		t.Errorf("violation %g", res.Violation)
	}
}

func TestAugmentedLagrangianBoxBounds(t *testing.T) {
	p := NewProblem(2)
	p.Add(quadratic(1, 2))
	p.Lo[0], p.Hi[0] = -1, 0.5
	p.Lo[1], p.Hi[1] = 3, 4

	res, err := NewAugmentedLagrangian().Solve(context.Background(), p)
	if err != nil {
		t.Fatal(err)
	}
	if math.Abs(res.X[0]-0.5) > 1e-4 || math.Abs(res.X[1]-3) > 1e-4 {
		t.Errorf("expected (0.5, 3), got %v", res.X)
	}
	if res.X[0] > 0.5 || res.X[1] < 3 {
		t.Errorf("result not clipped into bounds: %v", res.X)
	}
}

func TestAugmentedLagrangianCanceled(t *testing.T) {
	p := NewProblem(2)
	p.Add(quadratic(1, 2))
	p.X0[0] = 7

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	res, err := NewAugmentedLagrangian().Solve(ctx, p)
	if err != nil {
		t.Fatal(err)
	}
	if res.Status != Canceled {
		t.Errorf("expected Canceled, got %s", res.Status)
	}
	if res.X[0] != 7 {
		t.Errorf("expected start point, got %v", res.X)
	}
}

func TestAugmentedLagrangianCanceledMidSolve(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var calls atomic.Int32
	p := NewProblem(2)
	p.Add(Term{
		Name: "rosenbrock", Kind: Objective, Vars: []int{0, 1}, Dim: 1,
		Eval: func(dst, x []float64) {
			if calls.Add(1) == 20 {
				cancel()
			}
			dst[0] = 100*(x[1]-x[0]*x[0])*(x[1]-x[0]*x[0]) + (1-x[0])*(1-x[0])
		},
	})
	p.X0[0], p.X0[1] = -1.2, 1

	s := NewAugmentedLagrangian()
	s.MaxOuter = 1
	res, err := s.Solve(ctx, p)
	if err != nil {
		t.Fatal(err)
	}
	if res.Status != Canceled {
		t.Errorf("expected Canceled, got %s", res.Status)
	}
	// the inner run stops after the gradient in flight
	if n := calls.Load(); n > 40 {
		t.Errorf("inner minimization kept evaluating after cancel: %d calls", n)
	}
}

func TestNonFiniteMerit(t *testing.T) {
	p := NewProblem(1)
	p.Add(Term{
		Name: "log", Kind: Objective, Vars: []int{0}, Dim: 1,
		Eval: func(dst, x []float64) { dst[0] = x[0] - math.Log(x[0]) },
	})

	m := newMerit(p, 10, 0, 1)
	if f := m.Func([]float64{-1}); f != penaltyCeiling {
		t.Errorf("expected penalty ceiling, got %g", f)
	}
	grad := []float64{0}
	m.Grad(grad, []float64{-1})
	if grad[0] != 0 {
		t.Errorf("expected non-finite derivatives to be dropped, got %g", grad[0])
	}
}

func TestStatusString(t *testing.T) {
	if Converged.String() != "Converged" || IterationLimit.String() != "MaxIterations" {
		t.Error("unexpected status names")
	}
	if Objective.String() != "objective" || Inequality.String() != "inequality" {
		t.Error("unexpected kind names")
	}
}

func BenchmarkMeritGradient(b *testing.B) {
	p := NewProblem(200)
	for i := 0; i+1 < p.N; i++ {
		i := i
		p.Add(Term{
			Name: "chain", Kind: Equality, Vars: []int{i, i + 1}, Dim: 1,
			Eval: func(dst, x []float64) { dst[0] = x[1] - x[0] - 0.01*float64(i) },
		})
	}
	m := newMerit(p, 10, 0, 16)
	x := make([]float64, p.N)
	grad := make([]float64, p.N)
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		m.Grad(grad, x)
	}
}

package integrators

import (
	"errors"
	"math"
	"testing"

	"github.com/san-kum/salto/internal/dynamo"
)

type harmonicOscillator struct{}

func (h *harmonicOscillator) StateDim() int   { return 2 }
func (h *harmonicOscillator) ControlDim() int { return 0 }

func (h *harmonicOscillator) Derive(x dynamo.State, u dynamo.Control, t float64) dynamo.State {
	return dynamo.State{x[1], -x[0]}
}

func (h *harmonicOscillator) Energy(x dynamo.State) float64 {
	return 0.5 * (x[0]*x[0] + x[1]*x[1])
}

// forced is a unit mass pushed by a constant control.
type forced struct{}

func (f *forced) StateDim() int   { return 2 }
func (f *forced) ControlDim() int { return 1 }
func (f *forced) Derive(x dynamo.State, u dynamo.Control, t float64) dynamo.State {
	return dynamo.State{x[1], u[0]}
}

func TestRK4Accuracy(t *testing.T) {
	dyn := &harmonicOscillator{}
	integ := NewRK4()

	x := dynamo.State{1.0, 0.0}
	dt := 0.01
	steps := 100
	for i := 0; i < steps; i++ {
		x = integ.Step(dyn, x, nil, float64(i)*dt, dt)
	}

	if math.Abs(x[0]-math.Cos(1)) > 1e-4 {
		t.Errorf("position error too large: got %.6f, expected %.6f", x[0], math.Cos(1))
	}
	if math.Abs(x[1]+math.Sin(1)) > 1e-4 {
		t.Errorf("velocity error too large: got %.6f, expected %.6f", x[1], -math.Sin(1))
	}
}

func TestShootConstantControl(t *testing.T) {
	for _, name := range []string{"rk4", "rk45"} {
		integ, err := New(name)
		if err != nil {
			t.Fatal(err)
		}
		x := Shoot(integ, &forced{}, dynamo.State{0, 1}, dynamo.Control{2}, 0, 0.5, 5)
		// x(t) = t + t², exact for fourth order and above
		if math.Abs(x[0]-0.75) > 1e-12 || math.Abs(x[1]-2) > 1e-12 {
			t.Errorf("%s: Shoot = %v, want [0.75 2]", name, x)
		}
	}
}

func TestEulerFirstOrder(t *testing.T) {
	integ := NewEuler()
	x := integ.Step(&forced{}, dynamo.State{0, 1}, dynamo.Control{2}, 0, 0.1)
	if math.Abs(x[0]-0.1) > 1e-15 || math.Abs(x[1]-1.2) > 1e-15 {
		t.Errorf("Euler step = %v", x)
	}
}

func TestNewUnknown(t *testing.T) {
	if _, err := New("verlet"); err == nil {
		t.Error("expected error for unknown integrator")
	}
	if integ, err := New(""); err != nil || integ == nil {
		t.Error("empty name should select rk4")
	}
}

func TestRK45EnergyConservation(t *testing.T) {
	integrator := NewRK45()
	dyn := &harmonicOscillator{}
	x0 := dynamo.State{1.0, 0.0}

	initialEnergy := dyn.Energy(x0)
	x := x0.Clone()
	dt := 0.01
	for i := 0; i < 10000; i++ {
		x = integrator.Step(dyn, x, nil, float64(i)*dt, dt)
	}

	drift := math.Abs(dyn.Energy(x)-initialEnergy) / initialEnergy
	if drift > 1e-6 {
		t.Errorf("RK45 energy drift too high: %e", drift)
	}
}

func TestRK45AdaptiveStep(t *testing.T) {
	integrator := NewRK45()
	dyn := &harmonicOscillator{}
	x0 := dynamo.State{1.0, 0.0}

	x, newDt, err := integrator.StepAdaptive(dyn, x0, nil, 0, 0.01, 1e-6)
	if err != nil {
		t.Fatalf("StepAdaptive returned error: %v", err)
	}
	if !x.IsValid() || newDt <= 0.01 {
		t.Errorf("small accepted step should grow dt, got %v", newDt)
	}

	x, newDt, err = integrator.StepAdaptive(dyn, x0, nil, 0, 2.0, 1e-12)
	if !errors.Is(err, ErrStepRejected) {
		t.Fatalf("large step error = %v, want ErrStepRejected", err)
	}
	if newDt >= 2.0 || x[0] != x0[0] {
		t.Errorf("rejected step should shrink dt and keep x, got dt=%v x=%v", newDt, x)
	}
}

type blowup struct{}

func (b *blowup) StateDim() int   { return 1 }
func (b *blowup) ControlDim() int { return 0 }
func (b *blowup) Derive(x dynamo.State, u dynamo.Control, t float64) dynamo.State {
	return dynamo.State{math.NaN()}
}

func TestRK45RejectsNaN(t *testing.T) {
	x, dt, err := NewRK45().StepAdaptive(&blowup{}, dynamo.State{1}, nil, 0, 0.1, 1e-6)
	if !errors.Is(err, ErrStepRejected) {
		t.Fatalf("expected rejection, got %v", err)
	}
	if x[0] != 1 || math.Abs(dt-0.02) > 1e-15 {
		t.Errorf("rejected NaN step: x=%v dt=%v", x, dt)
	}
}

func TestTableauConsistency(t *testing.T) {
	tests := []struct {
		name string
		tb   tableau
	}{
		{"euler", eulerTableau},
		{"classic", classicTableau},
		{"dormand-prince", dormandPrince},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sum := 0.0
			for _, b := range tt.tb.b {
				sum += b
			}
			if math.Abs(sum-1) > 1e-14 {
				t.Errorf("weights sum to %v", sum)
			}
			for s, row := range tt.tb.a {
				c := 0.0
				for _, a := range row {
					c += a
				}
				if math.Abs(c-tt.tb.c[s]) > 1e-14 {
					t.Errorf("stage %d: row sum %v, node %v", s, c, tt.tb.c[s])
				}
			}
			esum := 0.0
			for _, e := range tt.tb.e {
				esum += e
			}
			if math.Abs(esum) > 1e-14 {
				t.Errorf("error weights sum to %v", esum)
			}
		})
	}
}

func BenchmarkRK4(b *testing.B) {
	integrator := NewRK4()
	dyn := &harmonicOscillator{}
	x := dynamo.State{1.0, 0.0}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		x = integrator.Step(dyn, x, nil, 0, 0.01)
	}
}

func BenchmarkRK45(b *testing.B) {
	integrator := NewRK45()
	dyn := &harmonicOscillator{}
	x := dynamo.State{1.0, 0.0}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		x = integrator.Step(dyn, x, nil, 0, 0.01)
	}
}

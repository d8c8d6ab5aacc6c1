package sim

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/san-kum/salto/internal/dynamo"
	"github.com/san-kum/salto/internal/integrators"
	"github.com/san-kum/salto/internal/ocp"
)

type testDynamics struct{}

func (t *testDynamics) Derive(x dynamo.State, u dynamo.Control, time float64) dynamo.State {
	out := dynamo.State{-x[0]}
	if len(u) > 0 {
		out[0] += u[0]
	}
	return out
}

func (t *testDynamics) StateDim() int   { return 1 }
func (t *testDynamics) ControlDim() int { return 0 }

type testController struct{}

func (t *testController) Compute(x dynamo.State, time float64) dynamo.Control {
	return dynamo.Control{}
}

type testMetric struct {
	count int
	sum   float64
}

func (t *testMetric) Name() string { return "test" }
func (t *testMetric) Observe(x dynamo.State, u dynamo.Control, time float64) {
	t.count++
	t.sum += x[0]
}
func (t *testMetric) Value() float64 {
	if t.count == 0 {
		return 0
	}
	return t.sum / float64(t.count)
}
func (t *testMetric) Reset() {
	t.count = 0
	t.sum = 0
}

func TestSimulatorRun(t *testing.T) {
	sim := New(&testDynamics{}, integrators.NewEuler(), &testController{})

	cfg := Config{
		Dt:       0.1,
		Duration: 1.0,
	}

	result, err := sim.Run(context.Background(), dynamo.State{1.0}, 0, cfg)
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}

	if len(result.States) != 11 {
		t.Errorf("expected 11 states, got %d", len(result.States))
	}

	if len(result.Times) != 11 {
		t.Errorf("expected 11 times, got %d", len(result.Times))
	}

	finalState := result.Final()[0]
	expected := math.Exp(-1.0)
	if math.Abs(finalState-expected) > 0.2 {
		t.Errorf("expected final state ~%.4f, got %.4f", expected, finalState)
	}
}

func TestSimulatorInvalidConfig(t *testing.T) {
	sim := New(&testDynamics{}, integrators.NewEuler(), &testController{})

	tests := []struct {
		name string
		cfg  Config
	}{
		{"zero dt", Config{Dt: 0, Duration: 1.0}},
		{"negative dt", Config{Dt: -0.1, Duration: 1.0}},
		{"zero duration", Config{Dt: 0.1, Duration: 0}},
		{"negative duration", Config{Dt: 0.1, Duration: -1.0}},
		{"adaptive without tolerance", Config{Dt: 0.1, Duration: 1.0, Adaptive: true}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := sim.Run(context.Background(), dynamo.State{1.0}, 0, tt.cfg)
			if !errors.Is(err, dynamo.ErrParameterBounds) {
				t.Errorf("expected parameter error, got %v", err)
			}
		})
	}
}

func TestSimulatorMetrics(t *testing.T) {
	sim := New(&testDynamics{}, integrators.NewEuler(), &testController{})

	metric := &testMetric{}
	sim.AddMetric(metric)

	result, err := sim.Run(context.Background(), dynamo.State{1.0}, 0, Config{Dt: 0.1, Duration: 1.0})
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}

	if _, ok := result.Metrics["test"]; !ok {
		t.Error("metric not found in result")
	}

	// every step plus the final state
	if metric.count != 11 {
		t.Errorf("expected 11 observations, got %d", metric.count)
	}
}

func TestSimulatorAdaptive(t *testing.T) {
	sim := New(&testDynamics{}, integrators.NewRK45(), &testController{})

	cfg := Config{Dt: 0.5, Duration: 2.0, Adaptive: true, Tolerance: 1e-10, MinDt: 1e-8}
	result, err := sim.Run(context.Background(), dynamo.State{1.0}, 0, cfg)
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}
	if result.Rejected == 0 {
		t.Error("a large first step should be rejected at this tolerance")
	}
	if got := result.Times[len(result.Times)-1]; math.Abs(got-2) > 1e-9 {
		t.Errorf("expected to stop at t=2, got %f", got)
	}
	if d := math.Abs(result.Final()[0] - math.Exp(-2)); d > 1e-7 {
		t.Errorf("adaptive error %g too large", d)
	}
}

func TestSimulatorStepDoubling(t *testing.T) {
	sim := New(&testDynamics{}, integrators.NewRK4(), &testController{})

	cfg := Config{Dt: 0.5, Duration: 1.0, Adaptive: true, Tolerance: 1e-8, MinDt: 1e-6}
	result, err := sim.Run(context.Background(), dynamo.State{1.0}, 0, cfg)
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}
	if result.Rejected == 0 {
		t.Error("expected halved steps")
	}
	if d := math.Abs(result.Final()[0] - math.Exp(-1)); d > 1e-6 {
		t.Errorf("step doubling error %g too large", d)
	}
}

func TestSimulatorCanceled(t *testing.T) {
	sim := New(&testDynamics{}, integrators.NewEuler(), &testController{})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	result, err := sim.Run(ctx, dynamo.State{1.0}, 0, Config{Dt: 0.1, Duration: 1.0})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
	if len(result.States) != 1 {
		t.Errorf("expected only the initial state, got %d", len(result.States))
	}
}

func TestScheduleSwitches(t *testing.T) {
	sched := &Schedule{Start: 1, Dt: 0.25, Tau: [][]float64{{1}, {2}, {3}}}
	tests := []struct {
		t    float64
		want float64
		next float64
	}{
		{1, 1, 1.25},
		{1.25, 2, 1.5},
		{1.3, 2, 1.5},
		{1.75, 3, 1.75},
		{5, 3, 1.75},
	}
	for _, tt := range tests {
		if got := sched.Compute(nil, tt.t)[0]; got != tt.want {
			t.Errorf("t=%v: expected control %v, got %v", tt.t, tt.want, got)
		}
		if got := sched.NextSwitch(tt.t); math.Abs(got-tt.next) > 1e-12 {
			t.Errorf("t=%v: expected switch %v, got %v", tt.t, tt.next, got)
		}
	}
}

func TestSimulatorStopsAtSwitches(t *testing.T) {
	sched := &Schedule{Start: 0, Dt: 0.3, Tau: [][]float64{{0}, {1}}}
	sim := New(&testDynamics{}, integrators.NewRK4(), sched)

	result, err := sim.Run(context.Background(), dynamo.State{0}, 0, Config{Dt: 0.25, Duration: 0.6})
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}
	found := false
	for _, tm := range result.Times {
		if math.Abs(tm-0.3) < 1e-12 {
			found = true
		}
	}
	if !found {
		t.Errorf("expected a step to end on the switch, times %v", result.Times)
	}
}

func TestRunWithCallback(t *testing.T) {
	sim := New(&testDynamics{}, integrators.NewEuler(), &testController{})
	calls := 0
	err := sim.RunWithCallback(context.Background(), dynamo.State{1}, 0, Config{Dt: 0.1, Duration: 1}, func(x dynamo.State, u dynamo.Control, tm float64) bool {
		calls++
		return calls < 3
	})
	if err != nil {
		t.Fatalf("callback run failed: %v", err)
	}
	if calls != 3 {
		t.Errorf("expected 3 calls, got %d", calls)
	}
}

func rolledOutSwing(t *testing.T) (*ocp.Program, *ocp.Solution) {
	t.Helper()
	pr, err := ocp.PendulumSwing(10, 1, 5)
	if err != nil {
		t.Fatal(err)
	}
	pr.Phases[0].UInit = ocp.ConstantGuess{1.5}
	pr.Rollout(0)
	prob, err := pr.Transcribe()
	if err != nil {
		t.Fatal(err)
	}
	sol, err := pr.Decode(prob.X0)
	if err != nil {
		t.Fatal(err)
	}
	return pr, sol
}

func TestReplayMatchesShooting(t *testing.T) {
	pr, sol := rolledOutSwing(t)

	rep, err := Replay(context.Background(), pr, sol, 0, "rk4", Config{})
	if err != nil {
		t.Fatalf("replay failed: %v", err)
	}
	if rep.Deviation > 1e-9 {
		t.Errorf("replay deviates from the rolled-out guess by %g", rep.Deviation)
	}
	if rep.Result.StepsTaken != 20 {
		t.Errorf("expected 20 sub-steps, got %d", rep.Result.StepsTaken)
	}
	if effort := rep.Result.Metrics["control_effort"]; math.Abs(effort-1.5) > 1e-12 {
		t.Errorf("expected control effort 1.5, got %f", effort)
	}
	if _, ok := rep.Result.Metrics["energy"]; !ok {
		t.Error("expected an energy metric")
	}
}

func TestReplayAll(t *testing.T) {
	pr, sol := rolledOutSwing(t)

	reps, err := ReplayAll(context.Background(), pr, sol, "rk45", Config{Adaptive: true, Tolerance: 1e-10, MinDt: 1e-9})
	if err != nil {
		t.Fatalf("replay failed: %v", err)
	}
	if len(reps) != 1 || reps[0].Deviation > 1e-2 {
		t.Errorf("unexpected replay %+v", reps[0])
	}

	if _, err := ReplayAll(context.Background(), pr, sol, "leapfrog", Config{}); err == nil {
		t.Error("expected an unknown integrator error")
	}
}

func TestReplayBadPhase(t *testing.T) {
	pr, sol := rolledOutSwing(t)
	if _, err := Replay(context.Background(), pr, sol, 3, "rk4", Config{}); !errors.Is(err, dynamo.ErrDimensionMismatch) {
		t.Errorf("expected dimension error, got %v", err)
	}
}

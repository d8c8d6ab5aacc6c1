package sim

import (
	"context"
	"fmt"
	"math"

	"github.com/san-kum/salto/internal/dynamo"
	"github.com/san-kum/salto/internal/integrators"
	"github.com/san-kum/salto/internal/metrics"
	"github.com/san-kum/salto/internal/ocp"
)

// PhaseReplay is the reintegration of one decoded phase.
type PhaseReplay struct {
	Phase  string
	Result *Result
	// Deviation is the max-norm gap between the reintegrated final state
	// and the optimised last node.
	Deviation float64
}

// PhaseMetrics returns the metrics that apply to a phase.
func PhaseMetrics(ph *ocp.Phase) []dynamo.Metric {
	expand := metrics.Expander(ph.FullState)
	out := []dynamo.Metric{
		metrics.NewControlEffort(),
		metrics.NewEnergy(ph.Body, expand),
		metrics.NewRangeCompliance(ph.Body, expand, 1e-6),
	}
	if len(ph.Actuators) == len(ph.Actuated) && len(ph.Actuators) > 0 {
		out = append(out, metrics.NewActuatorEffort(ph.Actuators, ph.Actuated, expand))
	}
	if ph.Kind == ocp.HolonomicTorqueDriven {
		out = append(out,
			metrics.NewHolonomicDrift(ph.Holonomic, expand),
			metrics.NewLambdaRatio(ph.Holonomic, ph.Actuated, 1, 0),
		)
	}
	return out
}

// Replay reintegrates phase p of sol from its first node under the
// optimised piecewise-constant torques.
func Replay(ctx context.Context, pr *ocp.Program, sol *ocp.Solution, p int, integrator string, cfg Config) (*PhaseReplay, error) {
	if p < 0 || p >= len(pr.Phases) || p >= len(sol.Phases) {
		return nil, fmt.Errorf("phase %d of %d: %w", p, len(sol.Phases), dynamo.ErrDimensionMismatch)
	}
	ph := pr.Phases[p]
	ps := &sol.Phases[p]
	integ, err := integrators.New(integrator)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", ph.Name, err)
	}

	sched := &Schedule{Start: ps.Start, Dt: ps.Duration / float64(len(ps.Tau)), Tau: ps.Tau}
	s := New(ph.System(), integ, sched)
	for _, m := range PhaseMetrics(ph) {
		s.AddMetric(m)
	}

	cfg.Duration = ps.Duration
	if cfg.Dt <= 0 {
		cfg.Dt = sched.Dt / float64(max(ph.SubSteps, 1))
	}
	res, err := s.Run(ctx, dynamo.State(ps.States[0]), ps.Start, cfg)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", ph.Name, err)
	}

	last := ps.States[len(ps.States)-1]
	dev := 0.0
	for i, v := range res.Final() {
		dev = math.Max(dev, math.Abs(v-last[i]))
	}
	res.Metrics["final_deviation"] = dev
	return &PhaseReplay{Phase: ph.Name, Result: res, Deviation: dev}, nil
}

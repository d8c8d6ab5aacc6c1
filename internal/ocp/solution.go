package ocp

import (
	"errors"
	"fmt"
	"time"

	"github.com/san-kum/salto/internal/dynamo"
)

// PhaseSolution is the decoded trajectory of one phase. Q and Qdot are
// always full coordinates; States holds the raw phase states.
type PhaseSolution struct {
	Name     string
	Kind     DynamicsKind
	Start    float64
	Duration float64
	Time     []float64
	States   [][]float64
	Q        [][]float64
	Qdot     [][]float64
	// Tau holds the actuated torques per interval.
	Tau [][]float64
	// Lambda holds the holonomic multipliers per node.
	Lambda [][]float64
	// ContactForces holds the contact forces per node of contact phases.
	ContactForces [][]float64
}

// Solution is a decoded program optimum.
type Solution struct {
	Phases         []PhaseSolution
	X              []float64
	Cost           float64
	Violation      float64
	Iterations     int
	Status         string
	Elapsed        time.Duration
	TermViolations map[string]float64
}

// TotalTime is the summed duration of every phase.
func (s *Solution) TotalTime() float64 {
	total := 0.0
	for _, ph := range s.Phases {
		total += ph.Duration
	}
	return total
}

// Decode splits x into per-phase trajectories and recomputes full states,
// multipliers and contact forces.
func (pr *Program) Decode(x []float64) (*Solution, error) {
	if len(x) != pr.nvars {
		return nil, fmt.Errorf("decode %d values for %d variables: %w", len(x), pr.nvars, dynamo.ErrDimensionMismatch)
	}
	sol := &Solution{X: append([]float64(nil), x...)}
	start := 0.0
	for p := range pr.Phases {
		ps, err := pr.decodePhase(p, x, start)
		if err != nil {
			return nil, err
		}
		start += ps.Duration
		sol.Phases = append(sol.Phases, *ps)
	}
	return sol, nil
}

func gatherAll(x []float64, vars []int) []float64 {
	out := make([]float64, len(vars))
	for i, v := range vars {
		out[i] = x[v]
	}
	return out
}

func (pr *Program) decodePhase(p int, x []float64, start float64) (*PhaseSolution, error) {
	ph := pr.Phases[p]
	nodes := ph.Nodes()
	ps := &PhaseSolution{Name: ph.Name, Kind: ph.Kind, Start: start, Duration: ph.Duration}
	if t := pr.TimeVar(p); t >= 0 {
		ps.Duration = x[t]
	}
	dt := ps.Duration / float64(ph.NShooting)
	for k := 0; k < nodes; k++ {
		ps.Time = append(ps.Time, start+float64(k)*dt)
		ps.States = append(ps.States, gatherAll(x, pr.StateVars(p, k)))
	}
	for k := 0; k < ph.NShooting; k++ {
		ps.Tau = append(ps.Tau, gatherAll(x, pr.ControlVars(p, k)))
	}

	n := ph.NQ()
	switch ph.Kind {
	case HolonomicTorqueDriven:
		nu := ph.Holonomic.NbIndependent()
		us := make([][]float64, nodes)
		udots := make([][]float64, nodes)
		for k, s := range ps.States {
			us[k], udots[k] = s[:nu], s[nu:]
		}
		taus := make([][]float64, len(ps.Tau))
		for k, tau := range ps.Tau {
			taus[k] = FullTorque(n, ph.Actuated, tau)
		}
		all, err := ph.Holonomic.ComputeAllStates(us, udots, taus)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", ph.Name, withPhase(err, p))
		}
		ps.Q, ps.Qdot, ps.Lambda = all.Q, all.Qdot, all.Lambda
	default:
		for _, s := range ps.States {
			ps.Q = append(ps.Q, s[:n])
			ps.Qdot = append(ps.Qdot, s[n:])
		}
		if ph.Kind == TorqueDrivenContact {
			sys := &BodySystem{Body: ph.Body, Actuated: ph.Actuated, WithContact: true}
			for k, s := range ps.States {
				tau := ps.Tau[min(k, ph.NShooting-1)]
				_, f, err := sys.Accelerations(s, tau)
				if err != nil {
					return nil, fmt.Errorf("%s: %w", ph.Name, &dynamo.NodeError{Phase: p, Node: k, Wrapped: err})
				}
				ps.ContactForces = append(ps.ContactForces, f)
			}
		}
	}
	return ps, nil
}

func withPhase(err error, p int) error {
	var ne *dynamo.NodeError
	if errors.As(err, &ne) {
		return &dynamo.NodeError{Phase: p, Node: ne.Node, Wrapped: ne.Wrapped}
	}
	return err
}

package ocp

import (
	"context"
	"fmt"
	"math"
	"time"

	"go.uber.org/zap"

	"github.com/san-kum/salto/internal/dynamo"
	"github.com/san-kum/salto/internal/integrators"
	"github.com/san-kum/salto/internal/nlp"
)

// Constraint adds path or point constraints of one phase to the program.
type Constraint interface {
	Terms(pr *Program, phase int) ([]nlp.Term, error)
}

// Objective adds cost terms of one phase to the program.
type Objective interface {
	Terms(pr *Program, phase int) ([]nlp.Term, error)
}

type phaseLayout struct {
	x, u, t int // first state, first control, time variable (-1 when fixed)
}

// Program is a multi-phase optimal control problem transcribed by direct
// multiple shooting. Phases are chained in order; Transitions override the
// default continuity between consecutive phases.
type Program struct {
	Phases      []*Phase
	Transitions []Transition
	Logger      *zap.Logger

	layout []phaseLayout
	links  []Transition
	nvars  int
}

// NewProgram validates the phases and assigns decision variable offsets.
func NewProgram(phases []*Phase, transitions []Transition) (*Program, error) {
	if len(phases) == 0 {
		return nil, fmt.Errorf("program without phases: %w", dynamo.ErrInvalidState)
	}
	pr := &Program{Phases: phases, Transitions: transitions, Logger: zap.NewNop()}
	for i, ph := range phases {
		if err := ph.validate(i); err != nil {
			return nil, err
		}
		l := phaseLayout{x: pr.nvars, t: -1}
		pr.nvars += ph.Nodes() * ph.NX()
		l.u = pr.nvars
		pr.nvars += ph.NShooting * ph.NU()
		if ph.FreeTime() {
			l.t = pr.nvars
			pr.nvars++
		}
		pr.layout = append(pr.layout, l)
	}

	pr.links = make([]Transition, len(phases)-1)
	for i := range pr.links {
		pr.links[i] = Transition{Kind: Continuous, PhasePre: i}
	}
	for _, tr := range transitions {
		if tr.PhasePre < 0 || tr.PhasePre >= len(pr.links) {
			return nil, fmt.Errorf("transition after phase %d of %d: %w", tr.PhasePre, len(phases), dynamo.ErrDimensionMismatch)
		}
		pr.links[tr.PhasePre] = tr
	}
	for _, tr := range pr.links {
		if err := tr.check(pr); err != nil {
			return nil, err
		}
	}
	return pr, nil
}

func (pr *Program) NVars() int { return pr.nvars }

// StateVars lists the variable indices of the state at node k of phase p.
func (pr *Program) StateVars(p, k int) []int {
	nx := pr.Phases[p].NX()
	out := make([]int, nx)
	for i := range out {
		out[i] = pr.layout[p].x + k*nx + i
	}
	return out
}

// ControlVars lists the control variables active at node k; the last node
// reuses the control of the last interval.
func (pr *Program) ControlVars(p, k int) []int {
	ph := pr.Phases[p]
	if k >= ph.NShooting {
		k = ph.NShooting - 1
	}
	nu := ph.NU()
	out := make([]int, nu)
	for i := range out {
		out[i] = pr.layout[p].u + k*nu + i
	}
	return out
}

// TimeVar is the duration variable of phase p, or -1 for a fixed duration.
func (pr *Program) TimeVar(p int) int { return pr.layout[p].t }

// nodeVars lists the state, optionally the control, and the duration
// variable of node k, in that order.
func (pr *Program) nodeVars(p, k int, withControl bool) []int {
	vars := pr.StateVars(p, k)
	if withControl {
		vars = append(vars, pr.ControlVars(p, k)...)
	}
	if t := pr.TimeVar(p); t >= 0 {
		vars = append(vars, t)
	}
	return vars
}

type nodeValues struct {
	X, U     []float64
	Duration float64
}

// values splits a local vector laid out by nodeVars.
func (pr *Program) values(p int, local []float64, withControl bool) nodeValues {
	ph := pr.Phases[p]
	nx, nu := ph.NX(), ph.NU()
	v := nodeValues{X: local[:nx], Duration: ph.Duration}
	off := nx
	if withControl {
		v.U = local[off : off+nu]
		off += nu
	}
	if ph.FreeTime() {
		v.Duration = local[off]
	}
	return v
}

// Transcribe builds the nonlinear program: box bounds and start point from
// the phase bounds and guesses, shooting continuity, phase constraints,
// objectives and transitions.
func (pr *Program) Transcribe() (*nlp.Problem, error) {
	prob := nlp.NewProblem(pr.nvars)
	for p, ph := range pr.Phases {
		pr.fillBounds(prob, p)
		for k := 0; k < ph.NShooting; k++ {
			if err := prob.Add(pr.continuity(p, k)); err != nil {
				return nil, err
			}
		}
		for _, c := range ph.Constraints {
			terms, err := c.Terms(pr, p)
			if err != nil {
				return nil, fmt.Errorf("phase %d constraint: %w", p, err)
			}
			for _, t := range terms {
				if err := prob.Add(t); err != nil {
					return nil, err
				}
			}
		}
		for _, o := range ph.Objectives {
			terms, err := o.Terms(pr, p)
			if err != nil {
				return nil, fmt.Errorf("phase %d objective: %w", p, err)
			}
			for _, t := range terms {
				if err := prob.Add(t); err != nil {
					return nil, err
				}
			}
		}
	}
	for _, tr := range pr.links {
		if err := prob.Add(tr.term(pr)); err != nil {
			return nil, err
		}
	}
	pr.Logger.Debug("program transcribed",
		zap.Int("variables", prob.N),
		zap.Int("terms", len(prob.Terms)),
		zap.Int("constraint_rows", prob.NbConstraintRows()),
	)
	return prob, nil
}

func (pr *Program) fillBounds(prob *nlp.Problem, p int) {
	ph := pr.Phases[p]
	nodes := ph.Nodes()
	for k := 0; k < nodes; k++ {
		lo, hi := ph.XBounds.At(k, nodes)
		var guess []float64
		if ph.XInit != nil {
			guess = ph.XInit.At(k, nodes)
		}
		for i, v := range pr.StateVars(p, k) {
			prob.Lo[v], prob.Hi[v] = lo[i], hi[i]
			prob.X0[v] = startValue(guess, i, lo[i], hi[i])
		}
	}
	for k := 0; k < ph.NShooting; k++ {
		lo, hi := ph.UBounds.At(k, ph.NShooting)
		var guess []float64
		if ph.UInit != nil {
			guess = ph.UInit.At(k, ph.NShooting)
		}
		for i, v := range pr.ControlVars(p, k) {
			prob.Lo[v], prob.Hi[v] = lo[i], hi[i]
			prob.X0[v] = startValue(guess, i, lo[i], hi[i])
		}
	}
	if t := pr.TimeVar(p); t >= 0 {
		prob.Lo[t], prob.Hi[t] = ph.TimeMin, ph.TimeMax
		prob.X0[t] = math.Max(ph.TimeMin, math.Min(ph.TimeMax, ph.Duration))
	}
}

// startValue is the guess when given, else the bound midpoint when finite,
// else the finite bound, else zero.
func startValue(guess []float64, i int, lo, hi float64) float64 {
	if guess != nil {
		return guess[i]
	}
	switch {
	case !math.IsInf(lo, 0) && !math.IsInf(hi, 0):
		return 0.5 * (lo + hi)
	case !math.IsInf(lo, 0) && lo > 0:
		return lo
	case !math.IsInf(hi, 0) && hi < 0:
		return hi
	}
	return 0
}

// continuity is the shooting defect x(t_{k+1}; x_k, u_k) − x_{k+1}.
func (pr *Program) continuity(p, k int) nlp.Term {
	ph := pr.Phases[p]
	nx, nu := ph.NX(), ph.NU()
	vars := append(pr.StateVars(p, k), pr.ControlVars(p, k)...)
	vars = append(vars, pr.StateVars(p, k+1)...)
	if t := pr.TimeVar(p); t >= 0 {
		vars = append(vars, t)
	}
	sys := ph.System()
	return nlp.Term{
		Name: fmt.Sprintf("%s continuity", ph.Name),
		Kind: nlp.Equality,
		Vars: vars,
		Dim:  nx,
		Eval: func(dst, x []float64) {
			duration := ph.Duration
			if ph.FreeTime() {
				duration = x[2*nx+nu]
			}
			dt := duration / float64(ph.NShooting)
			end := integrators.Shoot(integrators.NewRK4(), sys,
				dynamo.State(x[:nx]), dynamo.Control(x[nx:nx+nu]), float64(k)*dt, dt, ph.SubSteps)
			next := x[nx+nu : 2*nx+nu]
			for i := range dst {
				dst[i] = end[i] - next[i]
			}
		},
	}
}

// Rollout replaces the state guess of phase p by integrating its control
// guess from the first guessed node.
func (pr *Program) Rollout(p int) EachFrameGuess {
	ph := pr.Phases[p]
	nodes := ph.Nodes()
	x := make(dynamo.State, ph.NX())
	if ph.XInit != nil {
		copy(x, ph.XInit.At(0, nodes))
	}
	sys := ph.System()
	integ := integrators.NewRK4()
	dt := ph.Duration / float64(ph.NShooting)
	out := EachFrameGuess{x.Clone()}
	for k := 0; k < ph.NShooting; k++ {
		u := make(dynamo.Control, ph.NU())
		if ph.UInit != nil {
			copy(u, ph.UInit.At(k, ph.NShooting))
		}
		x = integrators.Shoot(integ, sys, x, u, float64(k)*dt, dt, ph.SubSteps)
		out = append(out, x.Clone())
	}
	ph.XInit = out
	return out
}

// AddNoise perturbs every state and control guess, see WithNoise. Phase p
// draws from seed+p.
func (pr *Program) AddNoise(magnitude float64, seed uint64) {
	for p, ph := range pr.Phases {
		nodes := ph.Nodes()
		var xg Guess = ph.XInit
		if xg == nil {
			xg = midGuess(ph.XBounds, ph.NX(), nodes)
		}
		ph.XInit = WithNoise(xg, ph.XBounds, nodes, magnitude, seed+uint64(p))
		var ug Guess = ph.UInit
		if ug == nil {
			ug = ConstantGuess(make([]float64, ph.NU()))
		}
		ph.UInit = WithNoise(ug, ph.UBounds, ph.NShooting, magnitude, seed+uint64(p)+1<<32)
	}
}

func midGuess(b Bounds, n, nodes int) EachFrameGuess {
	out := make(EachFrameGuess, nodes)
	for k := range out {
		lo, hi := b.At(k, nodes)
		out[k] = make([]float64, n)
		for i := range out[k] {
			out[k][i] = startValue(nil, i, lo[i], hi[i])
		}
	}
	return out
}

// Solve transcribes, solves and decodes the program.
func (pr *Program) Solve(ctx context.Context, solver nlp.Solver) (*Solution, error) {
	prob, err := pr.Transcribe()
	if err != nil {
		return nil, err
	}
	start := time.Now()
	res, err := solver.Solve(ctx, prob)
	if err != nil {
		return nil, fmt.Errorf("solve: %w", err)
	}
	sol, err := pr.Decode(res.X)
	if err != nil {
		return nil, err
	}
	sol.Cost = res.Cost
	sol.Violation = res.Violation
	sol.Iterations = res.Iterations
	sol.Status = res.Status.String()
	sol.Elapsed = time.Since(start)
	sol.TermViolations = prob.TermViolations(res.X)
	pr.Logger.Info("program solved",
		zap.String("status", sol.Status),
		zap.Float64("cost", sol.Cost),
		zap.Float64("violation", sol.Violation),
		zap.Int("iterations", sol.Iterations),
		zap.Duration("elapsed", sol.Elapsed),
	)
	return sol, nil
}

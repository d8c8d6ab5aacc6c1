package ocp

import (
	"fmt"
	"math"

	"github.com/san-kum/salto/internal/dynamo"
	"github.com/san-kum/salto/internal/nlp"
	"github.com/san-kum/salto/internal/rbd"
)

func boundedTerm(name string, vars []int, lo, hi float64, eval func(dst, x []float64)) nlp.Term {
	if lo == hi {
		return nlp.Term{
			Name: name,
			Kind: nlp.Equality,
			Vars: vars,
			Dim:  1,
			Eval: func(dst, x []float64) {
				eval(dst, x)
				dst[0] -= lo
			},
		}
	}
	return nlp.Term{
		Name:  name,
		Kind:  nlp.Inequality,
		Vars:  vars,
		Dim:   1,
		Lower: []float64{lo},
		Upper: []float64{hi},
		Eval:  eval,
	}
}

// TrackMarker keeps one axis of a marker within [Min, Max] on the selected
// nodes. Min == Max makes it an equality.
type TrackMarker struct {
	Marker   string
	Axis     int
	Node     Node
	Min, Max float64
}

func (c TrackMarker) Terms(pr *Program, p int) ([]nlp.Term, error) {
	ph := pr.Phases[p]
	idx, err := ph.Body.MarkerIndex(c.Marker)
	if err != nil {
		return nil, err
	}
	if c.Axis != rbd.AxisY && c.Axis != rbd.AxisZ {
		return nil, fmt.Errorf("track marker %s axis %d: %w", c.Marker, c.Axis, dynamo.ErrParameterBounds)
	}
	var out []nlp.Term
	for _, k := range c.Node.Indices(ph.Nodes()) {
		name := fmt.Sprintf("%s track %s", ph.Name, c.Marker)
		out = append(out, boundedTerm(name, pr.StateVars(p, k), c.Min, c.Max, func(dst, x []float64) {
			q, _, err := ph.FullState(x)
			if err != nil {
				fillNaN(dst)
				return
			}
			pos := ph.Body.Kinematics(q, nil).Marker(idx)
			if c.Axis == rbd.AxisY {
				dst[0] = pos.X
			} else {
				dst[0] = pos.Y
			}
		}))
	}
	return out, nil
}

// CoMOverToes places the horizontal centre of mass above a marker.
type CoMOverToes struct {
	Toe  string
	Node Node
}

func (c CoMOverToes) Terms(pr *Program, p int) ([]nlp.Term, error) {
	ph := pr.Phases[p]
	idx, err := ph.Body.MarkerIndex(c.Toe)
	if err != nil {
		return nil, err
	}
	var out []nlp.Term
	for _, k := range c.Node.Indices(ph.Nodes()) {
		name := fmt.Sprintf("%s com over %s", ph.Name, c.Toe)
		out = append(out, boundedTerm(name, pr.StateVars(p, k), 0, 0, func(dst, x []float64) {
			q, _, err := ph.FullState(x)
			if err != nil {
				fillNaN(dst)
				return
			}
			kin := ph.Body.Kinematics(q, nil)
			dst[0] = kin.CoM().X - kin.Marker(idx).X
		}))
	}
	return out, nil
}

// contactForces evaluates the rigid contact forces of a contact phase at a
// local [x; u] vector.
func contactForces(ph *Phase, x []float64) ([]float64, error) {
	sys := &BodySystem{Body: ph.Body, Actuated: ph.Actuated, WithContact: true}
	nx := ph.NX()
	_, f, err := sys.Accelerations(dynamo.State(x[:nx]), dynamo.Control(x[nx:nx+ph.NU()]))
	return f, err
}

func contactPhase(ph *Phase, row int) error {
	if ph.Kind != TorqueDrivenContact {
		return fmt.Errorf("%s: contact constraint on %s dynamics: %w", ph.Name, ph.Kind, dynamo.ErrInvalidState)
	}
	if row < 0 || row >= ph.Body.NbContactRows() {
		return fmt.Errorf("%s: contact row %d of %d: %w", ph.Name, row, ph.Body.NbContactRows(), dynamo.ErrDimensionMismatch)
	}
	return nil
}

// ContactForceMin keeps one contact force row above Min.
type ContactForceMin struct {
	Row  int
	Min  float64
	Node Node
}

func (c ContactForceMin) Terms(pr *Program, p int) ([]nlp.Term, error) {
	ph := pr.Phases[p]
	if err := contactPhase(ph, c.Row); err != nil {
		return nil, err
	}
	var out []nlp.Term
	for _, k := range c.Node.Indices(ph.Nodes()) {
		name := fmt.Sprintf("%s contact force", ph.Name)
		out = append(out, boundedTerm(name, pr.nodeVars(p, k, true), c.Min, math.Inf(1), func(dst, x []float64) {
			f, err := contactForces(ph, x)
			if err != nil {
				fillNaN(dst)
				return
			}
			dst[0] = f[c.Row]
		}))
	}
	return out, nil
}

// NonSlipping keeps the tangential contact force inside the friction cone,
// |Ft| <= Mu·Fn, as the two rows Mu·Fn ± Ft >= 0.
type NonSlipping struct {
	Normal, Tangential int
	Mu                 float64
	Node               Node
}

func (c NonSlipping) Terms(pr *Program, p int) ([]nlp.Term, error) {
	ph := pr.Phases[p]
	if err := contactPhase(ph, c.Normal); err != nil {
		return nil, err
	}
	if err := contactPhase(ph, c.Tangential); err != nil {
		return nil, err
	}
	if c.Mu <= 0 {
		return nil, fmt.Errorf("%s: friction coefficient %g: %w", ph.Name, c.Mu, dynamo.ErrParameterBounds)
	}
	var out []nlp.Term
	for _, k := range c.Node.Indices(ph.Nodes()) {
		out = append(out, nlp.Term{
			Name:  fmt.Sprintf("%s non slipping", ph.Name),
			Kind:  nlp.Inequality,
			Vars:  pr.nodeVars(p, k, true),
			Dim:   2,
			Lower: []float64{0, 0},
			Upper: []float64{math.Inf(1), math.Inf(1)},
			Eval: func(dst, x []float64) {
				f, err := contactForces(ph, x)
				if err != nil {
					fillNaN(dst)
					return
				}
				dst[0] = c.Mu*f[c.Normal] + f[c.Tangential]
				dst[1] = c.Mu*f[c.Normal] - f[c.Tangential]
			},
		})
	}
	return out, nil
}

func multipliers(ph *Phase, x []float64) ([]float64, error) {
	sys := &HolonomicSystem{Model: ph.Holonomic, Actuated: ph.Actuated}
	nx := ph.NX()
	return sys.Multipliers(dynamo.State(x[:nx]), dynamo.Control(x[nx:nx+ph.NU()]))
}

func holonomicPhase(ph *Phase, rows int) error {
	if ph.Kind != HolonomicTorqueDriven {
		return fmt.Errorf("%s: multiplier constraint on %s dynamics: %w", ph.Name, ph.Kind, dynamo.ErrInvalidState)
	}
	if ph.Holonomic.NbConstraints() < rows {
		return fmt.Errorf("%s: %d constraint rows, need %d: %w", ph.Name, ph.Holonomic.NbConstraints(), rows, dynamo.ErrDimensionMismatch)
	}
	return nil
}

// LambdaNormal keeps the first holonomic multiplier, the force pulling the
// hands against the legs, at or above Min.
type LambdaNormal struct {
	Min  float64
	Node Node
}

func (c LambdaNormal) Terms(pr *Program, p int) ([]nlp.Term, error) {
	ph := pr.Phases[p]
	if err := holonomicPhase(ph, 1); err != nil {
		return nil, err
	}
	var out []nlp.Term
	for _, k := range c.Node.Indices(ph.Nodes()) {
		name := fmt.Sprintf("%s lambda normal", ph.Name)
		out = append(out, boundedTerm(name, pr.nodeVars(p, k, true), c.Min, math.Inf(1), func(dst, x []float64) {
			lambda, err := multipliers(ph, x)
			if err != nil {
				fillNaN(dst)
				return
			}
			dst[0] = lambda[0]
		}))
	}
	return out, nil
}

// LambdaShear bounds the second multiplier by the first:
// Ratio·λ0 <= λ1 <= λ0.
type LambdaShear struct {
	Ratio float64
	Node  Node
}

func (c LambdaShear) Terms(pr *Program, p int) ([]nlp.Term, error) {
	ph := pr.Phases[p]
	if err := holonomicPhase(ph, 2); err != nil {
		return nil, err
	}
	var out []nlp.Term
	for _, k := range c.Node.Indices(ph.Nodes()) {
		out = append(out, nlp.Term{
			Name:  fmt.Sprintf("%s lambda shear", ph.Name),
			Kind:  nlp.Inequality,
			Vars:  pr.nodeVars(p, k, true),
			Dim:   2,
			Lower: []float64{math.Inf(-1), 0},
			Upper: []float64{0, math.Inf(1)},
			Eval: func(dst, x []float64) {
				lambda, err := multipliers(ph, x)
				if err != nil {
					fillNaN(dst)
					return
				}
				dst[0] = lambda[1] - lambda[0]
				dst[1] = lambda[1] - c.Ratio*lambda[0]
			},
		})
	}
	return out, nil
}

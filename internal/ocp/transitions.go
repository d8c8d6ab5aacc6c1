package ocp

import (
	"fmt"
	"math"

	"github.com/san-kum/salto/internal/dynamo"
	"github.com/san-kum/salto/internal/nlp"
)

// TransitionKind is the link between the last node of a phase and the first
// node of the next one.
type TransitionKind int

const (
	// Continuous equates the two states.
	Continuous TransitionKind = iota
	// HolonomicPre links a full-state phase to a following holonomic phase:
	// x_pre = [q(u); qdot(u, udot)].
	HolonomicPre
	// HolonomicPost links a holonomic phase to a following full-state phase.
	HolonomicPost
	// Impact keeps q and applies the rigid impact of the next phase's
	// contacts to qdot.
	Impact
)

func (k TransitionKind) String() string {
	switch k {
	case Continuous:
		return "continuous"
	case HolonomicPre:
		return "holonomic_pre"
	case HolonomicPost:
		return "holonomic_post"
	case Impact:
		return "impact"
	default:
		return fmt.Sprintf("transition(%d)", int(k))
	}
}

// Transition applies after phase PhasePre.
type Transition struct {
	Kind     TransitionKind
	PhasePre int
}

func (tr Transition) check(pr *Program) error {
	pre, post := pr.Phases[tr.PhasePre], pr.Phases[tr.PhasePre+1]
	preHolo := pre.Kind == HolonomicTorqueDriven
	postHolo := post.Kind == HolonomicTorqueDriven
	ok := true
	switch tr.Kind {
	case Continuous:
		ok = pre.NX() == post.NX()
	case HolonomicPre:
		ok = !preHolo && postHolo && pre.NQ() == post.NQ()
	case HolonomicPost:
		ok = preHolo && !postHolo && pre.NQ() == post.NQ()
	case Impact:
		ok = !preHolo && !postHolo && pre.NQ() == post.NQ()
	default:
		ok = false
	}
	if !ok {
		return fmt.Errorf("%s transition between %s phase %d and %s phase %d: %w",
			tr.Kind, pre.Kind, tr.PhasePre, post.Kind, tr.PhasePre+1, dynamo.ErrDimensionMismatch)
	}
	return nil
}

func fillNaN(dst []float64) {
	for i := range dst {
		dst[i] = math.NaN()
	}
}

func (tr Transition) term(pr *Program) nlp.Term {
	p := tr.PhasePre
	pre, post := pr.Phases[p], pr.Phases[p+1]
	vars := append(pr.StateVars(p, pre.NShooting), pr.StateVars(p+1, 0)...)
	nxPre := pre.NX()
	t := nlp.Term{
		Name: fmt.Sprintf("%s transition %d", tr.Kind, p),
		Kind: nlp.Equality,
		Vars: vars,
	}

	switch tr.Kind {
	case Continuous:
		t.Dim = nxPre
		t.Eval = func(dst, x []float64) {
			for i := range dst {
				dst[i] = x[nxPre+i] - x[i]
			}
		}
	case HolonomicPre:
		t.Dim = nxPre
		t.Eval = func(dst, x []float64) {
			q, qdot, err := post.FullState(x[nxPre:])
			if err != nil {
				fillNaN(dst)
				return
			}
			full := dynamo.Concat(q, qdot)
			for i := range dst {
				dst[i] = x[i] - full[i]
			}
		}
	case HolonomicPost:
		t.Dim = post.NX()
		t.Eval = func(dst, x []float64) {
			q, qdot, err := pre.FullState(x[:nxPre])
			if err != nil {
				fillNaN(dst)
				return
			}
			full := dynamo.Concat(q, qdot)
			for i := range dst {
				dst[i] = full[i] - x[nxPre+i]
			}
		}
	case Impact:
		n := pre.NQ()
		t.Dim = 2 * n
		t.Eval = func(dst, x []float64) {
			q, qdot := x[:n], x[n:2*n]
			after, _, err := post.Body.ImpactVelocity(q, qdot)
			if err != nil {
				fillNaN(dst)
				return
			}
			for i := 0; i < n; i++ {
				dst[i] = x[2*n+i] - q[i]
				dst[n+i] = x[3*n+i] - after[i]
			}
		}
	}
	return t
}

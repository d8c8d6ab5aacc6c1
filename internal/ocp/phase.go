package ocp

import (
	"fmt"

	"github.com/san-kum/salto/internal/actuators"
	"github.com/san-kum/salto/internal/dynamo"
	"github.com/san-kum/salto/internal/holonomic"
	"github.com/san-kum/salto/internal/rbd"
)

// Phase is one stage of a multi-phase program. States live on NShooting+1
// nodes, controls are piecewise constant on the NShooting intervals.
type Phase struct {
	Name string
	Kind DynamicsKind

	// Body carries the contacts enforced by TorqueDrivenContact.
	Body *rbd.Model
	// Holonomic is required by HolonomicTorqueDriven.
	Holonomic *holonomic.Model

	// Actuated maps control i to generalized coordinate Actuated[i].
	Actuated  []int
	Actuators actuators.Set

	NShooting int
	Duration  float64
	// Duration becomes a decision variable in [TimeMin, TimeMax] when
	// TimeMax > TimeMin.
	TimeMin, TimeMax float64
	// SubSteps is the number of RK4 steps per shooting interval.
	SubSteps int

	XBounds Bounds
	UBounds Bounds
	XInit   Guess
	UInit   Guess

	Objectives  []Objective
	Constraints []Constraint
}

func (p *Phase) Nodes() int { return p.NShooting + 1 }

// NX is the state size: [q; qdot] or [u; udot] for holonomic phases.
func (p *Phase) NX() int {
	if p.Kind == HolonomicTorqueDriven {
		return 2 * p.Holonomic.NbIndependent()
	}
	return 2 * p.Body.NQ()
}

func (p *Phase) NU() int { return len(p.Actuated) }

func (p *Phase) FreeTime() bool { return p.TimeMax > p.TimeMin }

// System returns the phase dynamics.
func (p *Phase) System() dynamo.System {
	if p.Kind == HolonomicTorqueDriven {
		return &HolonomicSystem{Model: p.Holonomic, Actuated: p.Actuated}
	}
	return &BodySystem{Body: p.Body, Actuated: p.Actuated, WithContact: p.Kind == TorqueDrivenContact}
}

// NQ is the number of full generalized coordinates.
func (p *Phase) NQ() int {
	if p.Body != nil {
		return p.Body.NQ()
	}
	return p.Holonomic.NQ()
}

// FullState returns q and qdot for a phase state, solving the dependent
// coordinates for holonomic phases.
func (p *Phase) FullState(x []float64) ([]float64, []float64, error) {
	h := len(x) / 2
	if p.Kind != HolonomicTorqueDriven {
		return x[:h], x[h:], nil
	}
	return p.Holonomic.FullState(x[:h], x[h:])
}

func (p *Phase) validate(idx int) error {
	if p.NShooting < 1 {
		return fmt.Errorf("phase %d: n_shooting %d: %w", idx, p.NShooting, dynamo.ErrParameterBounds)
	}
	if p.Duration <= 0 && !p.FreeTime() {
		return fmt.Errorf("phase %d: duration %g: %w", idx, p.Duration, dynamo.ErrParameterBounds)
	}
	if p.FreeTime() && p.TimeMin <= 0 {
		return fmt.Errorf("phase %d: time lower bound %g: %w", idx, p.TimeMin, dynamo.ErrParameterBounds)
	}
	switch p.Kind {
	case HolonomicTorqueDriven:
		if p.Holonomic == nil {
			return fmt.Errorf("phase %d: holonomic dynamics without a holonomic model: %w", idx, dynamo.ErrInvalidState)
		}
		if p.Body == nil {
			p.Body = p.Holonomic.Body()
		}
	default:
		if p.Body == nil {
			return fmt.Errorf("phase %d: no body model: %w", idx, dynamo.ErrInvalidState)
		}
		if p.Kind == TorqueDrivenContact && len(p.Body.Contacts) == 0 {
			return fmt.Errorf("phase %d: contact dynamics on a body without contacts: %w", idx, dynamo.ErrInvalidState)
		}
	}
	for _, a := range p.Actuated {
		if a < 0 || a >= p.NQ() {
			return fmt.Errorf("phase %d: actuated coordinate %d: %w", idx, a, dynamo.ErrDimensionMismatch)
		}
	}
	if len(p.Actuators) != 0 && len(p.Actuators) != p.NU() {
		return fmt.Errorf("phase %d: %d actuators for %d controls: %w", idx, len(p.Actuators), p.NU(), dynamo.ErrDimensionMismatch)
	}
	if p.SubSteps < 1 {
		p.SubSteps = 1
	}
	if err := p.XBounds.validate(p.NX(), fmt.Sprintf("phase %d state", idx)); err != nil {
		return err
	}
	if err := p.UBounds.validate(p.NU(), fmt.Sprintf("phase %d control", idx)); err != nil {
		return err
	}
	if p.XInit != nil && p.XInit.Len() != p.NX() {
		return fmt.Errorf("phase %d: state guess of %d values for %d states: %w", idx, p.XInit.Len(), p.NX(), dynamo.ErrDimensionMismatch)
	}
	if p.UInit != nil && p.UInit.Len() != p.NU() {
		return fmt.Errorf("phase %d: control guess of %d values for %d controls: %w", idx, p.UInit.Len(), p.NU(), dynamo.ErrDimensionMismatch)
	}
	return nil
}

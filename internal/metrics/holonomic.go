package metrics

import (
	"math"

	"github.com/san-kum/salto/internal/dynamo"
	"github.com/san-kum/salto/internal/holonomic"
)

// HolonomicDrift is the largest |Φ(q)| seen along a trajectory.
type HolonomicDrift struct {
	model  *holonomic.Model
	expand Expander
	max    float64
}

func NewHolonomicDrift(model *holonomic.Model, expand Expander) *HolonomicDrift {
	return &HolonomicDrift{model: model, expand: expand}
}

func (h *HolonomicDrift) Name() string { return "holonomic_drift" }

func (h *HolonomicDrift) Observe(x dynamo.State, u dynamo.Control, t float64) {
	q, _, err := h.expand(x)
	if err != nil {
		h.max = math.Inf(1)
		return
	}
	for _, r := range h.model.ConstraintResidual(q) {
		h.max = math.Max(h.max, math.Abs(r))
	}
}

func (h *HolonomicDrift) Value() float64 { return h.max }

func (h *HolonomicDrift) Reset() { h.max = 0 }

// LambdaRatio tracks the largest |λ_tangential/λ_normal| of a two-row
// constraint, and the smallest normal multiplier. Rows follow the
// constraint axes, so for a Y,Z constraint row 1 is normal.
type LambdaRatio struct {
	model      *holonomic.Model
	actuated   []int
	normal     int
	tangential int
	maxRatio   float64
	minNormal  float64
	samples    int
}

func NewLambdaRatio(model *holonomic.Model, actuated []int, normal, tangential int) *LambdaRatio {
	return &LambdaRatio{model: model, actuated: actuated, normal: normal, tangential: tangential, minNormal: math.Inf(1)}
}

func (l *LambdaRatio) Name() string { return "lambda_ratio" }

func (l *LambdaRatio) Observe(x dynamo.State, u dynamo.Control, t float64) {
	tau := make([]float64, l.model.NQ())
	for i, idx := range l.actuated {
		tau[idx] = u[i]
	}
	ui, udot := x.Split()
	lambda, err := l.model.LagrangeMultipliers(ui, udot, tau)
	if err != nil {
		return
	}
	n, s := lambda[l.normal], lambda[l.tangential]
	l.minNormal = math.Min(l.minNormal, n)
	if n != 0 {
		l.maxRatio = math.Max(l.maxRatio, math.Abs(s/n))
	}
	l.samples++
}

func (l *LambdaRatio) Value() float64 { return l.maxRatio }

// MinNormal is the smallest normal multiplier seen, +Inf before any sample.
func (l *LambdaRatio) MinNormal() float64 { return l.minNormal }

func (l *LambdaRatio) Reset() {
	l.maxRatio = 0
	l.minNormal = math.Inf(1)
	l.samples = 0
}

package metrics

import (
	"math"

	"gonum.org/v1/gonum/floats"

	"github.com/san-kum/salto/internal/actuators"
	"github.com/san-kum/salto/internal/dynamo"
)

// Expander maps a phase state to full generalized coordinates.
type Expander func(x []float64) (q, qdot []float64, err error)

// Split treats the state as [q; qdot].
func Split(x []float64) ([]float64, []float64, error) {
	h := len(x) / 2
	return x[:h], x[h:], nil
}

// ControlEffort is the mean L1 norm of the applied torques.
type ControlEffort struct {
	sum     float64
	samples int
}

func NewControlEffort() *ControlEffort { return &ControlEffort{} }

func (c *ControlEffort) Name() string { return "control_effort" }

func (c *ControlEffort) Observe(x dynamo.State, u dynamo.Control, t float64) {
	if len(u) > 0 {
		c.sum += floats.Norm(u, 1)
	}
	c.samples++
}

func (c *ControlEffort) Value() float64 {
	if c.samples == 0 {
		return 0
	}
	return c.sum / float64(c.samples)
}

func (c *ControlEffort) Reset() { c.sum, c.samples = 0, 0 }

// ActuatorEffort averages Σ (τ/τmax(q))² over the samples, and tracks the
// peak single-joint ratio.
type ActuatorEffort struct {
	set      actuators.Set
	actuated []int
	expand   Expander
	sum      float64
	peak     float64
	samples  int
}

func NewActuatorEffort(set actuators.Set, actuated []int, expand Expander) *ActuatorEffort {
	return &ActuatorEffort{set: set, actuated: actuated, expand: expand}
}

func (a *ActuatorEffort) Name() string { return "actuator_effort" }

func (a *ActuatorEffort) Observe(x dynamo.State, u dynamo.Control, t float64) {
	q, _, err := a.expand(x)
	if err != nil || len(u) != len(a.set) {
		return
	}
	angles := make([]float64, len(a.actuated))
	for i, idx := range a.actuated {
		angles[i] = q[idx]
	}
	a.sum += a.set.Effort(angles, u)
	for i, j := range a.set {
		a.peak = math.Max(a.peak, math.Abs(j.Ratio(angles[i], u[i])))
	}
	a.samples++
}

func (a *ActuatorEffort) Value() float64 {
	if a.samples == 0 {
		return 0
	}
	return a.sum / float64(a.samples)
}

// Peak is the largest |τ/τmax| seen.
func (a *ActuatorEffort) Peak() float64 { return a.peak }

func (a *ActuatorEffort) Reset() {
	a.sum = 0
	a.peak = 0
	a.samples = 0
}

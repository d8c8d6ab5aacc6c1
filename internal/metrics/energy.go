package metrics

import (
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"

	"github.com/san-kum/salto/internal/dynamo"
	"github.com/san-kum/salto/internal/rbd"
)

// MechanicalEnergy returns ½ q̇ᵀM(q)q̇ plus the gravitational potential of
// the centre of mass.
func MechanicalEnergy(body *rbd.Model, q, qdot []float64) float64 {
	M := body.MassMatrix(q)
	v := mat.NewVecDense(len(qdot), append([]float64(nil), qdot...))
	ke := 0.5 * mat.Inner(v, M, v)
	com := body.Kinematics(q, qdot).CoM()
	pe := body.TotalMass() * body.Gravity * com.Y
	return ke + pe
}

// energySeries records the mechanical energy of every state it can expand.
type energySeries struct {
	body   *rbd.Model
	expand Expander
	values []float64
}

func (s *energySeries) Observe(x dynamo.State, u dynamo.Control, t float64) {
	q, qdot, err := s.expand(x)
	if err != nil {
		return
	}
	s.values = append(s.values, MechanicalEnergy(s.body, q, qdot))
}

func (s *energySeries) Reset() { s.values = s.values[:0] }

// Energy is the mean mechanical energy over the observed states.
type Energy struct {
	energySeries
}

func NewEnergy(body *rbd.Model, expand Expander) *Energy {
	return &Energy{energySeries{body: body, expand: expand}}
}

func (e *Energy) Name() string { return "energy" }

func (e *Energy) Value() float64 {
	if len(e.values) == 0 {
		return 0
	}
	return stat.Mean(e.values, nil)
}

// EnergyDrift is the largest relative change of mechanical energy from the
// first sample. It is only meaningful for unactuated, contact-free motion.
type EnergyDrift struct {
	energySeries
}

func NewEnergyDrift(body *rbd.Model, expand Expander) *EnergyDrift {
	return &EnergyDrift{energySeries{body: body, expand: expand}}
}

func (e *EnergyDrift) Name() string { return "energy_drift" }

func (e *EnergyDrift) Value() float64 {
	if len(e.values) == 0 || e.values[0] == 0 {
		return 0
	}
	e0 := e.values[0]
	return math.Max(floats.Max(e.values)-e0, e0-floats.Min(e.values)) / math.Abs(e0)
}

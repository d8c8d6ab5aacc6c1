package holonomic

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"github.com/san-kum/salto/internal/dynamo"
	"github.com/san-kum/salto/internal/rbd"
)

const (
	DefaultTolerance = 1e-10
	DefaultMaxIter   = 50

	// maxCond bounds the condition number of the dependent Jacobian block.
	maxCond = 1e12
)

// Model is a rigid-body model with holonomic constraints and a fixed
// partition of its coordinates. It is safe for concurrent use once
// configured.
type Model struct {
	body        *rbd.Model
	constraints []bound
	independent []int
	dependent   []int
	nc          int

	// Newton settings for ComputeDependent.
	Tolerance float64
	MaxIter   int

	guess []float64
}

// Configure binds constraints to body and fixes the partition. independent
// and dependent must together list every coordinate exactly once, and the
// dependent count must equal the number of constraint rows.
func Configure(body *rbd.Model, constraints []Constraint, independent, dependent []int) (*Model, error) {
	m := &Model{
		body:        body,
		independent: append([]int(nil), independent...),
		dependent:   append([]int(nil), dependent...),
		Tolerance:   DefaultTolerance,
		MaxIter:     DefaultMaxIter,
	}
	for _, c := range constraints {
		b, err := c.bind(body)
		if err != nil {
			return nil, fmt.Errorf("configure: %w", err)
		}
		m.constraints = append(m.constraints, b)
		m.nc += b.dim()
	}

	n := body.NQ()
	if m.nc > n {
		return nil, fmt.Errorf("%d constraint rows for %d coordinates: %w", m.nc, n, dynamo.ErrInvalidPartition)
	}
	if len(m.dependent) != m.nc {
		return nil, fmt.Errorf("%d dependent coordinates for %d constraint rows: %w", len(m.dependent), m.nc, dynamo.ErrInvalidPartition)
	}
	seen := make([]bool, n)
	for _, idx := range append(append([]int(nil), m.independent...), m.dependent...) {
		if idx < 0 || idx >= n || seen[idx] {
			return nil, fmt.Errorf("index %d: %w", idx, dynamo.ErrInvalidPartition)
		}
		seen[idx] = true
	}
	for i, ok := range seen {
		if !ok {
			return nil, fmt.Errorf("coordinate %d not assigned: %w", i, dynamo.ErrInvalidPartition)
		}
	}

	// Start Newton from the middle of each dependent coordinate's range.
	m.guess = make([]float64, m.nc)
	for i, idx := range m.dependent {
		m.guess[i] = 0.5 * (body.QRanges[idx][0] + body.QRanges[idx][1])
	}
	return m, nil
}

// SetDefaultGuess replaces the starting point used by ComputeDependent.
// It must not be called concurrently with other methods.
func (m *Model) SetDefaultGuess(v []float64) error {
	if len(v) != m.nc {
		return dynamo.ErrDimensionMismatch
	}
	m.guess = append([]float64(nil), v...)
	return nil
}

// Body is the underlying rigid-body model.
func (m *Model) Body() *rbd.Model { return m.body }

// NQ is the number of generalized coordinates.
func (m *Model) NQ() int { return m.body.NQ() }

// NbConstraints is the number of holonomic constraint rows, equal to
// NbDependent.
func (m *Model) NbConstraints() int { return m.nc }

func (m *Model) NbIndependent() int { return len(m.independent) }
func (m *Model) NbDependent() int   { return len(m.dependent) }

// IndependentJointIndex returns a copy of the independent coordinate
// indices. Together with DependentJointIndex it covers every coordinate
// exactly once.
func (m *Model) IndependentJointIndex() []int { return append([]int(nil), m.independent...) }

// DependentJointIndex returns a copy of the dependent coordinate indices,
// in the column order of Jv.
func (m *Model) DependentJointIndex() []int { return append([]int(nil), m.dependent...) }

// AssembleFullState scatters u and v into a full coordinate vector.
func (m *Model) AssembleFullState(u, v []float64) []float64 {
	q := make([]float64, m.NQ())
	for i, idx := range m.independent {
		q[idx] = u[i]
	}
	for i, idx := range m.dependent {
		q[idx] = v[i]
	}
	return q
}

// Partition gathers the independent and dependent parts of q.
func (m *Model) Partition(q []float64) (u, v []float64) {
	u = make([]float64, len(m.independent))
	v = make([]float64, len(m.dependent))
	for i, idx := range m.independent {
		u[i] = q[idx]
	}
	for i, idx := range m.dependent {
		v[i] = q[idx]
	}
	return u, v
}

// Evaluate returns the residual g(q), the Jacobian ∂g/∂q and, when qdot is
// not nil, the bias J̇q̇.
func (m *Model) Evaluate(q, qdot []float64) ([]float64, *mat.Dense, []float64) {
	g := make([]float64, m.nc)
	if m.nc == 0 {
		return g, nil, nil
	}
	J := mat.NewDense(m.nc, m.NQ(), nil)
	var bias []float64
	if qdot != nil {
		bias = make([]float64, m.nc)
	}
	k := m.body.Kinematics(q, qdot)
	row := 0
	for _, c := range m.constraints {
		c.eval(k, row, g, J, bias)
		row += c.dim()
	}
	return g, J, bias
}

// ConstraintResidual returns g(q).
func (m *Model) ConstraintResidual(q []float64) []float64 {
	g, _, _ := m.Evaluate(q, nil)
	return g
}

// ConstraintJacobian returns ∂g/∂q, or nil without constraints.
func (m *Model) ConstraintJacobian(q []float64) *mat.Dense {
	_, J, _ := m.Evaluate(q, nil)
	return J
}

// split returns the dependent and independent column blocks of J.
func (m *Model) split(J *mat.Dense) (jv, ju *mat.Dense) {
	jv = mat.NewDense(m.nc, len(m.dependent), nil)
	for c, idx := range m.dependent {
		for r := 0; r < m.nc; r++ {
			jv.Set(r, c, J.At(r, idx))
		}
	}
	if len(m.independent) == 0 {
		return jv, nil
	}
	ju = mat.NewDense(m.nc, len(m.independent), nil)
	for c, idx := range m.independent {
		for r := 0; r < m.nc; r++ {
			ju.Set(r, c, J.At(r, idx))
		}
	}
	return jv, ju
}

func factorize(jv *mat.Dense) (*mat.LU, error) {
	var lu mat.LU
	lu.Factorize(jv)
	if c := lu.Cond(); c > maxCond || math.IsNaN(c) {
		return nil, fmt.Errorf("dependent block condition %.3g: %w", c, dynamo.ErrSingularJacobian)
	}
	return &lu, nil
}

// ComputeDependent solves g(u, v) = 0 for v starting from the default guess.
func (m *Model) ComputeDependent(u []float64) ([]float64, error) {
	return m.ComputeDependentFrom(u, m.guess)
}

// ComputeDependentFrom solves g(u, v) = 0 for v by damped Newton iteration
// on the dependent Jacobian block, starting from v0.
func (m *Model) ComputeDependentFrom(u, v0 []float64) ([]float64, error) {
	if len(u) != len(m.independent) || len(v0) != m.nc {
		return nil, dynamo.ErrDimensionMismatch
	}
	v := append([]float64(nil), v0...)
	if m.nc == 0 {
		return v, nil
	}

	g, J, _ := m.Evaluate(m.AssembleFullState(u, v), nil)
	norm := floats.Norm(g, 2)
	for iter := 0; iter < m.MaxIter; iter++ {
		if floats.Norm(g, math.Inf(1)) < m.Tolerance {
			return v, nil
		}
		jv, _ := m.split(J)
		lu, err := factorize(jv)
		if err != nil {
			return nil, err
		}
		step := mat.NewVecDense(m.nc, nil)
		if err := lu.SolveVecTo(step, false, mat.NewVecDense(m.nc, g)); err != nil {
			return nil, fmt.Errorf("newton step: %w", dynamo.ErrSingularJacobian)
		}

		// Backtrack on the residual norm.
		alpha := 1.0
		trial := make([]float64, m.nc)
		for {
			for i := range v {
				trial[i] = v[i] - alpha*step.AtVec(i)
			}
			tg, tJ, _ := m.Evaluate(m.AssembleFullState(u, trial), nil)
			tn := floats.Norm(tg, 2)
			if tn < norm || alpha < 1.0/64 {
				copy(v, trial)
				g, J, norm = tg, tJ, tn
				break
			}
			alpha *= 0.5
		}
	}
	if floats.Norm(g, math.Inf(1)) < m.Tolerance {
		return v, nil
	}
	return nil, fmt.Errorf("residual %.3g after %d iterations: %w", floats.Norm(g, math.Inf(1)), m.MaxIter, dynamo.ErrNoConvergence)
}

// CouplingMatrix returns B = −Jv⁻¹·Ju, the m×(n−m) sensitivity ∂v/∂u along
// the constraint manifold. It is nil when there are no independent
// coordinates or no constraints.
func (m *Model) CouplingMatrix(q []float64) (*mat.Dense, error) {
	if m.nc == 0 || len(m.independent) == 0 {
		return nil, nil
	}
	J := m.ConstraintJacobian(q)
	return m.coupling(J)
}

func (m *Model) coupling(J *mat.Dense) (*mat.Dense, error) {
	jv, ju := m.split(J)
	lu, err := factorize(jv)
	if err != nil {
		return nil, err
	}
	var B mat.Dense
	if err := lu.SolveTo(&B, false, ju); err != nil {
		return nil, fmt.Errorf("coupling matrix: %w", dynamo.ErrSingularJacobian)
	}
	B.Scale(-1, &B)
	return &B, nil
}

// QdotFromUdot returns the full velocity scatter(udot, B·udot).
func (m *Model) QdotFromUdot(q, udot []float64) ([]float64, error) {
	if len(udot) != len(m.independent) {
		return nil, dynamo.ErrDimensionMismatch
	}
	vdot := make([]float64, m.nc)
	B, err := m.CouplingMatrix(q)
	if err != nil {
		return nil, err
	}
	if B != nil {
		out := mat.NewVecDense(m.nc, vdot)
		out.MulVec(B, mat.NewVecDense(len(udot), append([]float64(nil), udot...)))
	}
	return m.AssembleFullState(udot, vdot), nil
}

// BiasAcceleration returns c = −Jv⁻¹·J̇q̇, the dependent accelerations when
// the independent accelerations are zero.
func (m *Model) BiasAcceleration(q, qdot []float64) ([]float64, error) {
	if m.nc == 0 {
		return nil, nil
	}
	_, J, bias := m.Evaluate(q, qdot)
	jv, _ := m.split(J)
	lu, err := factorize(jv)
	if err != nil {
		return nil, err
	}
	c := mat.NewVecDense(m.nc, nil)
	if err := lu.SolveVecTo(c, false, mat.NewVecDense(m.nc, bias)); err != nil {
		return nil, fmt.Errorf("bias acceleration: %w", dynamo.ErrSingularJacobian)
	}
	c.ScaleVec(-1, c)
	return c.RawVector().Data, nil
}

// FullState maps (u, udot) to (q, qdot) on the constraint manifold.
func (m *Model) FullState(u, udot []float64) ([]float64, []float64, error) {
	return m.FullStateFrom(u, udot, m.guess)
}

// FullStateFrom is FullState with an explicit Newton starting point.
func (m *Model) FullStateFrom(u, udot, v0 []float64) ([]float64, []float64, error) {
	v, err := m.ComputeDependentFrom(u, v0)
	if err != nil {
		return nil, nil, err
	}
	q := m.AssembleFullState(u, v)
	qdot, err := m.QdotFromUdot(q, udot)
	if err != nil {
		return nil, nil, err
	}
	return q, qdot, nil
}

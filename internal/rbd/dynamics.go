package rbd

import (
	"fmt"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/spatial/r2"

	"github.com/san-kum/salto/internal/dynamo"
)

// maxCond is the largest condition number accepted for the reduced
// constraint-space matrix J M⁻¹ Jᵀ.
const maxCond = 1e12

// MassMatrix returns the joint-space inertia matrix
// M = Σ m·Jcᵀ·Jc + I·jωᵀ·jω.
func (m *Model) MassMatrix(q []float64) *mat.SymDense {
	return m.massMatrix(m.Kinematics(q, nil))
}

func (m *Model) massMatrix(k *Kinematics) *mat.SymDense {
	n := m.nq
	out := mat.NewSymDense(n, nil)
	jy := make([]float64, n)
	jz := make([]float64, n)
	for i, s := range m.Segments {
		if s.Mass == 0 && s.Inertia == 0 {
			continue
		}
		k.pointJacobianRows(i, s.CoM, jy, jz)
		jw := k.AngularJacobian(i)
		for r := 0; r < n; r++ {
			for c := r; c < n; c++ {
				v := s.Mass*(jy[r]*jy[c]+jz[r]*jz[c]) + s.Inertia*jw[r]*jw[c]
				if v != 0 {
					out.SetSym(r, c, out.At(r, c)+v)
				}
			}
		}
	}
	return out
}

// NonLinearEffects returns Coriolis, centrifugal and gravity terms N so
// that M·q̈ + N = τ.
func (m *Model) NonLinearEffects(q, qdot []float64) []float64 {
	return m.nonLinearEffects(m.Kinematics(q, qdot))
}

func (m *Model) nonLinearEffects(k *Kinematics) []float64 {
	n := m.nq
	out := make([]float64, n)
	jy := make([]float64, n)
	jz := make([]float64, n)
	g := r2.Vec{Y: -m.Gravity}
	for i, s := range m.Segments {
		if s.Mass == 0 {
			continue
		}
		k.pointJacobianRows(i, s.CoM, jy, jz)
		f := r2.Scale(s.Mass, r2.Sub(k.PointBias(i, s.CoM), g))
		for c := 0; c < n; c++ {
			out[c] += jy[c]*f.X + jz[c]*f.Y
		}
	}
	return out
}

// InverseDynamics returns τ = M·q̈ + N.
func (m *Model) InverseDynamics(q, qdot, qddot []float64) []float64 {
	k := m.Kinematics(q, qdot)
	M := m.massMatrix(k)
	tau := m.nonLinearEffects(k)
	mq := mat.NewVecDense(m.nq, nil)
	mq.MulVec(M, mat.NewVecDense(m.nq, append([]float64(nil), qddot...)))
	for i := range tau {
		tau[i] += mq.AtVec(i)
	}
	return tau
}

// ForwardDynamics returns q̈ = M⁻¹(τ − N).
func (m *Model) ForwardDynamics(q, qdot, tau []float64) ([]float64, error) {
	if len(q) != m.nq || len(qdot) != m.nq || len(tau) != m.nq {
		return nil, dynamo.ErrDimensionMismatch
	}
	k := m.Kinematics(q, qdot)
	M := m.massMatrix(k)
	rhs := m.nonLinearEffects(k)
	for i := range rhs {
		rhs[i] = tau[i] - rhs[i]
	}
	var chol mat.Cholesky
	if ok := chol.Factorize(M); !ok {
		return nil, fmt.Errorf("mass matrix not positive definite: %w", dynamo.ErrSingularJacobian)
	}
	x := mat.NewVecDense(m.nq, nil)
	if err := chol.SolveVecTo(x, mat.NewVecDense(m.nq, rhs)); err != nil {
		return nil, fmt.Errorf("forward dynamics: %w", err)
	}
	return x.RawVector().Data, nil
}

// ContactJacobian stacks the Jacobian rows and J̇q̇ terms of every contact
// axis, in contact order.
func (m *Model) ContactJacobian(k *Kinematics) (*mat.Dense, []float64) {
	rows := m.NbContactRows()
	if rows == 0 {
		return nil, nil
	}
	J := mat.NewDense(rows, m.nq, nil)
	bias := make([]float64, 0, rows)
	r := 0
	for _, c := range m.Contacts {
		jm := k.MarkerJacobian(c.Marker)
		b := k.MarkerBias(c.Marker)
		for _, ax := range c.Axes {
			J.SetRow(r, jm.RawRowView(ax))
			if ax == AxisY {
				bias = append(bias, b.X)
			} else {
				bias = append(bias, b.Y)
			}
			r++
		}
	}
	return J, bias
}

// ConstrainedForwardDynamics solves the rigid-contact dynamics
// [M −Jᵀ; J 0][q̈; f] = [τ − N; −J̇q̇] and returns q̈ and the contact forces
// applied to the body, in contact-axis order.
func (m *Model) ConstrainedForwardDynamics(q, qdot, tau []float64) ([]float64, []float64, error) {
	if len(m.Contacts) == 0 {
		qdd, err := m.ForwardDynamics(q, qdot, tau)
		return qdd, nil, err
	}
	k := m.Kinematics(q, qdot)
	M := m.massMatrix(k)
	top := m.nonLinearEffects(k)
	for i := range top {
		top[i] = tau[i] - top[i]
	}
	J, bias := m.ContactJacobian(k)
	for i := range bias {
		bias[i] = -bias[i]
	}
	return SolveKKT(M, J, top, bias)
}

// ImpactVelocity returns the post-impact velocity for rigid, perfectly
// plastic contacts, [M −Jᵀ; J 0][q̇⁺; Λ] = [M·q̇⁻; 0], with the impulse Λ.
func (m *Model) ImpactVelocity(q, qdotPre []float64) ([]float64, []float64, error) {
	if len(m.Contacts) == 0 {
		return append([]float64(nil), qdotPre...), nil, nil
	}
	k := m.Kinematics(q, nil)
	M := m.massMatrix(k)
	top := mat.NewVecDense(m.nq, nil)
	top.MulVec(M, mat.NewVecDense(m.nq, append([]float64(nil), qdotPre...)))
	J, _ := m.ContactJacobian(k)
	return SolveKKT(M, J, top.RawVector().Data, make([]float64, J.RawMatrix().Rows))
}

// SolveKKT solves [M −Jᵀ; J 0][x; λ] = [top; bottom] through the Schur
// complement J·M⁻¹·Jᵀ. J may be nil, in which case λ is nil.
func SolveKKT(M mat.Symmetric, J *mat.Dense, top, bottom []float64) ([]float64, []float64, error) {
	n := M.SymmetricDim()
	var chol mat.Cholesky
	if ok := chol.Factorize(M); !ok {
		return nil, nil, fmt.Errorf("mass matrix not positive definite: %w", dynamo.ErrSingularJacobian)
	}
	x := mat.NewVecDense(n, nil)
	if err := chol.SolveVecTo(x, mat.NewVecDense(n, append([]float64(nil), top...))); err != nil {
		return nil, nil, fmt.Errorf("kkt: %w", err)
	}
	if J == nil {
		return x.RawVector().Data, nil, nil
	}
	rows, cols := J.Dims()
	if cols != n || len(bottom) != rows {
		return nil, nil, dynamo.ErrDimensionMismatch
	}

	// W = M⁻¹·Jᵀ, A = J·W
	var W mat.Dense
	if err := chol.SolveTo(&W, J.T()); err != nil {
		return nil, nil, fmt.Errorf("kkt: %w", err)
	}
	var A mat.Dense
	A.Mul(J, &W)

	rhs := mat.NewVecDense(rows, append([]float64(nil), bottom...))
	jx := mat.NewVecDense(rows, nil)
	jx.MulVec(J, x)
	rhs.SubVec(rhs, jx)

	var lu mat.LU
	lu.Factorize(&A)
	if c := lu.Cond(); c > maxCond {
		return nil, nil, fmt.Errorf("constraint space condition %.3g: %w", c, dynamo.ErrSingularJacobian)
	}
	lambda := mat.NewVecDense(rows, nil)
	if err := lu.SolveVecTo(lambda, false, rhs); err != nil {
		return nil, nil, fmt.Errorf("kkt: %w", dynamo.ErrSingularJacobian)
	}

	wl := mat.NewVecDense(n, nil)
	wl.MulVec(&W, lambda)
	x.AddVec(x, wl)
	return x.RawVector().Data, lambda.RawVector().Data, nil
}

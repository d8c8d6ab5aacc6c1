package holonomic

import (
	"fmt"

	"gonum.org/v1/gonum/mat"

	"github.com/san-kum/salto/internal/dynamo"
	"github.com/san-kum/salto/internal/rbd"
)

// LagrangeMultipliersFull solves [M −Jᵀ; J 0][q̈; λ] = [τ − N; −J̇q̇] at a
// full state and returns q̈ and λ.
func (m *Model) LagrangeMultipliersFull(q, qdot, tau []float64) ([]float64, []float64, error) {
	n := m.NQ()
	if len(q) != n || len(qdot) != n || len(tau) != n {
		return nil, nil, dynamo.ErrDimensionMismatch
	}
	M := m.body.MassMatrix(q)
	top := m.body.NonLinearEffects(q, qdot)
	for i := range top {
		top[i] = tau[i] - top[i]
	}
	if m.nc == 0 {
		return rbd.SolveKKT(M, nil, top, nil)
	}
	_, J, bias := m.Evaluate(q, qdot)
	for i := range bias {
		bias[i] = -bias[i]
	}
	qddot, lambda, err := rbd.SolveKKT(M, J, top, bias)
	if err != nil {
		return nil, nil, fmt.Errorf("lagrange multipliers: %w", err)
	}
	return qddot, lambda, nil
}

// LagrangeMultipliers returns λ at the reduced state (u, udot) under the
// full generalized forces tau.
func (m *Model) LagrangeMultipliers(u, udot, tau []float64) ([]float64, error) {
	q, qdot, err := m.FullState(u, udot)
	if err != nil {
		return nil, err
	}
	_, lambda, err := m.LagrangeMultipliersFull(q, qdot, tau)
	return lambda, err
}

// reducedBasis returns Q (n×(n−m)) and c (n) such that q̈ = Q·ü + c on the
// manifold.
func (m *Model) reducedBasis(q, qdot []float64) (*mat.Dense, []float64, error) {
	n, nu := m.NQ(), len(m.independent)
	Q := mat.NewDense(n, nu, nil)
	for i, idx := range m.independent {
		Q.Set(idx, i, 1)
	}
	c := make([]float64, n)
	if m.nc == 0 {
		return Q, c, nil
	}
	_, J, _ := m.Evaluate(q, nil)
	B, err := m.coupling(J)
	if err != nil {
		return nil, nil, err
	}
	for r, idx := range m.dependent {
		Q.SetRow(idx, B.RawRowView(r))
	}
	bias, err := m.BiasAcceleration(q, qdot)
	if err != nil {
		return nil, nil, err
	}
	for r, idx := range m.dependent {
		c[idx] = bias[r]
	}
	return Q, c, nil
}

// PartitionedForwardDynamics returns the independent accelerations from
// Qᵀ·M·Q·ü = Qᵀ·(τ − N − M·c).
func (m *Model) PartitionedForwardDynamics(u, udot, tau []float64) ([]float64, error) {
	q, qdot, err := m.FullState(u, udot)
	if err != nil {
		return nil, err
	}
	return m.PartitionedForwardDynamicsFull(q, qdot, tau)
}

// PartitionedForwardDynamicsFull is PartitionedForwardDynamics at a state
// already on the manifold.
func (m *Model) PartitionedForwardDynamicsFull(q, qdot, tau []float64) ([]float64, error) {
	nu := len(m.independent)
	if nu == 0 {
		return nil, nil
	}
	n := m.NQ()
	if len(tau) != n {
		return nil, dynamo.ErrDimensionMismatch
	}
	Q, c, err := m.reducedBasis(q, qdot)
	if err != nil {
		return nil, err
	}
	M := m.body.MassMatrix(q)
	N := m.body.NonLinearEffects(q, qdot)

	mc := mat.NewVecDense(n, nil)
	mc.MulVec(M, mat.NewVecDense(n, c))
	rhs := mat.NewVecDense(n, nil)
	for i := 0; i < n; i++ {
		rhs.SetVec(i, tau[i]-N[i]-mc.AtVec(i))
	}

	var mq, mr mat.Dense
	mq.Mul(M, Q)
	mr.Mul(Q.T(), &mq)
	reduced := mat.NewSymDense(nu, nil)
	for i := 0; i < nu; i++ {
		for j := i; j < nu; j++ {
			reduced.SetSym(i, j, 0.5*(mr.At(i, j)+mr.At(j, i)))
		}
	}
	qr := mat.NewVecDense(nu, nil)
	qr.MulVec(Q.T(), rhs)

	var chol mat.Cholesky
	if ok := chol.Factorize(reduced); !ok {
		return nil, fmt.Errorf("reduced mass matrix: %w", dynamo.ErrSingularJacobian)
	}
	uddot := mat.NewVecDense(nu, nil)
	if err := chol.SolveVecTo(uddot, qr); err != nil {
		return nil, fmt.Errorf("partitioned dynamics: %w", err)
	}
	return uddot.RawVector().Data, nil
}

// States holds the full-coordinate reconstruction of a reduced trajectory.
type States struct {
	Q      [][]float64
	Qdot   [][]float64
	Qddot  [][]float64
	Lambda [][]float64
}

// ComputeAllStates rebuilds q, qdot, q̈ and λ at every node of a reduced
// trajectory. taus holds full generalized forces; it may be one shorter
// than us, in which case the last control is held at the final node.
// Each node starts Newton from the previous node's dependent coordinates.
func (m *Model) ComputeAllStates(us, udots, taus [][]float64) (*States, error) {
	nodes := len(us)
	if len(udots) != nodes || (len(taus) != nodes && len(taus) != nodes-1) || len(taus) == 0 {
		return nil, dynamo.ErrDimensionMismatch
	}
	out := &States{
		Q:      make([][]float64, nodes),
		Qdot:   make([][]float64, nodes),
		Qddot:  make([][]float64, nodes),
		Lambda: make([][]float64, nodes),
	}
	guess := m.guess
	for i := 0; i < nodes; i++ {
		q, qdot, err := m.FullStateFrom(us[i], udots[i], guess)
		if err != nil {
			return nil, &dynamo.NodeError{Node: i, Wrapped: err}
		}
		_, guess = m.Partition(q)
		tau := taus[len(taus)-1]
		if i < len(taus) {
			tau = taus[i]
		}
		qddot, lambda, err := m.LagrangeMultipliersFull(q, qdot, tau)
		if err != nil {
			return nil, &dynamo.NodeError{Node: i, Wrapped: err}
		}
		out.Q[i], out.Qdot[i], out.Qddot[i], out.Lambda[i] = q, qdot, qddot, lambda
	}
	return out, nil
}

// Package holonomic partitions the generalized coordinates of a planar body
// subject to holonomic constraints g(q) = 0 and recovers the constraint
// forces.
//
// With n coordinates and m constraint rows, the coordinates split into n−m
// independent ones u and m dependent ones v. A [Model] fixes that split once,
// in [Configure]; every other operation relies on it:
//
//	q     = scatter(u, v)             AssembleFullState
//	v     = solve g(u, v) = 0         ComputeDependent
//	B     = −Jv⁻¹·Ju                  CouplingMatrix
//	qdot  = scatter(udot, B·udot)     QdotFromUdot
//	λ     from [M −Jᵀ; J 0]           LagrangeMultipliers
//
// λ is the generalized force M·q̈ + N − τ = Jᵀ·λ, i.e. the force applied to
// the body at the first marker of each constraint, expressed along the
// constraint axes.
package holonomic

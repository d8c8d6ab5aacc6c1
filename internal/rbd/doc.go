// Package rbd implements planar rigid-body trees in the sagittal (Y, Z)
// plane.
//
// A [Model] is a tree of segments. Each segment may carry translations
// along its parent's Y and Z axes and a rotation about X. Generalized
// coordinates are numbered in segment order, translations first. The
// package computes:
//
//   - frames, marker positions and velocities
//   - marker Jacobians and the bias acceleration J̇q̇
//   - centre of mass and its Jacobian
//   - joint-space mass matrix and non-linear effects (Kane's method)
//   - forward, inverse and contact-constrained dynamics
//   - post-impact velocities for rigid contacts
//
// Models are described in YAML. A few models are embedded and available
// through [Builtin].
package rbd

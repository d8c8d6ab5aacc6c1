// Package dynamo provides the core numeric primitives shared by the
// trajectory optimisation packages.
//
// The package defines the vector and interface vocabulary used across the
// repository:
//
//   - [State]: generalized state vector (q, qdot or the reduced u, udot)
//   - [System]: interface for phase dynamics (dX/dt = f(X, u, t))
//   - [Integrator]: numerical stepper over a shooting interval
//   - [Controller]: control source during reintegration
//   - [Metric]: observer accumulating a scalar over a trajectory
//
// Domain errors live in errors.go and are wrapped with context by the
// packages that return them, so callers can match them with errors.Is.
//
// # Thread Safety
//
// The types here carry no hidden state. [ParallelFor] is used by the
// transcription to evaluate independent nodes concurrently; anything passed
// to it must be safe for concurrent use.
package dynamo

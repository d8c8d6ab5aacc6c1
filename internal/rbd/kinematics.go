package rbd

import (
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/spatial/r2"
)

type frame struct {
	origin r2.Vec
	angle  float64
	vel    r2.Vec
	omega  float64
	// origin acceleration with qddot = 0
	bias r2.Vec
}

// Kinematics holds the segment frames of a model at one (q, qdot).
// Velocity and bias terms are zero when qdot is nil.
type Kinematics struct {
	model  *Model
	frames []frame
}

func perp(v r2.Vec) r2.Vec {
	return r2.Vec{X: -v.Y, Y: v.X}
}

func rotate(v r2.Vec, angle float64) r2.Vec {
	if angle == 0 {
		return v
	}
	return r2.Rotate(v, angle, r2.Vec{})
}

// Kinematics propagates segment frames from the root outwards.
func (m *Model) Kinematics(q, qdot []float64) *Kinematics {
	k := &Kinematics{model: m, frames: make([]frame, len(m.Segments))}
	for i, s := range m.Segments {
		var p frame
		if s.Parent >= 0 {
			p = k.frames[s.Parent]
		}

		var t, tdot r2.Vec
		rot, rotdot := 0.0, 0.0
		for j, d := range s.DoFs {
			qi := s.FirstQ + j
			v := 0.0
			if qdot != nil {
				v = qdot[qi]
			}
			switch d {
			case TransY:
				t.X += q[qi]
				tdot.X += v
			case TransZ:
				t.Y += q[qi]
				tdot.Y += v
			case RotX:
				rot += q[qi]
				rotdot += v
			}
		}

		d := rotate(r2.Add(s.Offset, t), p.angle)
		rtdot := rotate(tdot, p.angle)
		f := frame{
			origin: r2.Add(p.origin, d),
			angle:  p.angle + rot,
			vel:    r2.Add(r2.Add(p.vel, r2.Scale(p.omega, perp(d))), rtdot),
			omega:  p.omega + rotdot,
		}
		f.bias = r2.Add(r2.Sub(p.bias, r2.Scale(p.omega*p.omega, d)), r2.Scale(2*p.omega, perp(rtdot)))
		k.frames[i] = f
	}
	return k
}

func (k *Kinematics) Model() *Model { return k.model }

func (k *Kinematics) SegmentOrigin(seg int) r2.Vec { return k.frames[seg].origin }

func (k *Kinematics) SegmentAngle(seg int) float64 { return k.frames[seg].angle }

func (k *Kinematics) SegmentAngularVelocity(seg int) float64 { return k.frames[seg].omega }

// Point returns the world position of a point given in segment coordinates.
func (k *Kinematics) Point(seg int, local r2.Vec) r2.Vec {
	f := k.frames[seg]
	return r2.Add(f.origin, rotate(local, f.angle))
}

func (k *Kinematics) PointVelocity(seg int, local r2.Vec) r2.Vec {
	f := k.frames[seg]
	return r2.Add(f.vel, r2.Scale(f.omega, perp(rotate(local, f.angle))))
}

// PointBias returns J̇q̇ for a point, i.e. its acceleration when qddot = 0.
func (k *Kinematics) PointBias(seg int, local r2.Vec) r2.Vec {
	f := k.frames[seg]
	return r2.Sub(f.bias, r2.Scale(f.omega*f.omega, rotate(local, f.angle)))
}

// pointJacobianRows fills the Y and Z rows of a point Jacobian.
func (k *Kinematics) pointJacobianRows(seg int, local r2.Vec, jy, jz []float64) {
	for i := range jy {
		jy[i], jz[i] = 0, 0
	}
	p := k.Point(seg, local)
	for a := seg; a >= 0; a = k.model.Segments[a].Parent {
		s := k.model.Segments[a]
		parentAngle := 0.0
		if s.Parent >= 0 {
			parentAngle = k.frames[s.Parent].angle
		}
		for j, d := range s.DoFs {
			var col r2.Vec
			switch d {
			case TransY:
				col = rotate(r2.Vec{X: 1}, parentAngle)
			case TransZ:
				col = rotate(r2.Vec{Y: 1}, parentAngle)
			case RotX:
				col = perp(r2.Sub(p, k.frames[a].origin))
			}
			jy[s.FirstQ+j] += col.X
			jz[s.FirstQ+j] += col.Y
		}
	}
}

// PointJacobian returns the 2×nq Jacobian of a point, rows (Y, Z).
func (k *Kinematics) PointJacobian(seg int, local r2.Vec) *mat.Dense {
	n := k.model.nq
	data := make([]float64, 2*n)
	k.pointJacobianRows(seg, local, data[:n], data[n:])
	return mat.NewDense(2, n, data)
}

// AngularJacobian returns dφ_seg/dq.
func (k *Kinematics) AngularJacobian(seg int) []float64 {
	jw := make([]float64, k.model.nq)
	for a := seg; a >= 0; a = k.model.Segments[a].Parent {
		s := k.model.Segments[a]
		for j, d := range s.DoFs {
			if d == RotX {
				jw[s.FirstQ+j] = 1
			}
		}
	}
	return jw
}

func (k *Kinematics) Marker(idx int) r2.Vec {
	mk := k.model.Markers[idx]
	return k.Point(mk.Segment, mk.Position)
}

func (k *Kinematics) MarkerVelocity(idx int) r2.Vec {
	mk := k.model.Markers[idx]
	return k.PointVelocity(mk.Segment, mk.Position)
}

func (k *Kinematics) MarkerBias(idx int) r2.Vec {
	mk := k.model.Markers[idx]
	return k.PointBias(mk.Segment, mk.Position)
}

func (k *Kinematics) MarkerJacobian(idx int) *mat.Dense {
	mk := k.model.Markers[idx]
	return k.PointJacobian(mk.Segment, mk.Position)
}

// CoM returns the whole-body centre of mass.
func (k *Kinematics) CoM() r2.Vec {
	var sum r2.Vec
	total := 0.0
	for i, s := range k.model.Segments {
		if s.Mass == 0 {
			continue
		}
		sum = r2.Add(sum, r2.Scale(s.Mass, k.Point(i, s.CoM)))
		total += s.Mass
	}
	if total == 0 {
		return r2.Vec{}
	}
	return r2.Scale(1/total, sum)
}

func (k *Kinematics) CoMVelocity() r2.Vec {
	var sum r2.Vec
	total := 0.0
	for i, s := range k.model.Segments {
		if s.Mass == 0 {
			continue
		}
		sum = r2.Add(sum, r2.Scale(s.Mass, k.PointVelocity(i, s.CoM)))
		total += s.Mass
	}
	if total == 0 {
		return r2.Vec{}
	}
	return r2.Scale(1/total, sum)
}

// CoMJacobian returns the mass-weighted 2×nq Jacobian of the centre of mass.
func (k *Kinematics) CoMJacobian() *mat.Dense {
	n := k.model.nq
	out := mat.NewDense(2, n, nil)
	total := k.model.TotalMass()
	if total == 0 {
		return out
	}
	jy := make([]float64, n)
	jz := make([]float64, n)
	for i, s := range k.model.Segments {
		if s.Mass == 0 {
			continue
		}
		k.pointJacobianRows(i, s.CoM, jy, jz)
		w := s.Mass / total
		for c := 0; c < n; c++ {
			out.Set(0, c, out.At(0, c)+w*jy[c])
			out.Set(1, c, out.At(1, c)+w*jz[c])
		}
	}
	return out
}

// MarkerPositions returns every marker position at q.
func (m *Model) MarkerPositions(q []float64) []r2.Vec {
	k := m.Kinematics(q, nil)
	out := make([]r2.Vec, len(m.Markers))
	for i := range m.Markers {
		out[i] = k.Marker(i)
	}
	return out
}

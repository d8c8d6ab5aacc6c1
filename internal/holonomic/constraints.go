package holonomic

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/spatial/r2"

	"github.com/san-kum/salto/internal/rbd"
)

// Constraint describes a holonomic constraint in terms of model names.
type Constraint interface {
	bind(m *rbd.Model) (bound, error)
}

// bound is a constraint resolved against a model.
type bound interface {
	dim() int
	// eval writes the residual, Jacobian rows and J̇q̇ rows starting at row.
	eval(k *rbd.Kinematics, row int, g []float64, J *mat.Dense, bias []float64)
}

// SuperimposeMarkers keeps two markers together along Axes. With
// LocalSegment set, the difference is expressed in that segment's frame.
type SuperimposeMarkers struct {
	Marker1      string
	Marker2      string
	Axes         []int
	LocalSegment string
}

// PinMarker holds a marker at a fixed world point along Axes.
type PinMarker struct {
	Marker string
	Point  r2.Vec
	Axes   []int
}

func checkAxes(axes []int) error {
	if len(axes) == 0 || len(axes) > 2 {
		return fmt.Errorf("expected 1 or 2 axes, got %d", len(axes))
	}
	for _, a := range axes {
		if a != rbd.AxisY && a != rbd.AxisZ {
			return fmt.Errorf("unsupported axis %d", a)
		}
	}
	if len(axes) == 2 && axes[0] == axes[1] {
		return fmt.Errorf("duplicate axis %d", axes[0])
	}
	return nil
}

func component(v r2.Vec, axis int) float64 {
	if axis == rbd.AxisY {
		return v.X
	}
	return v.Y
}

func perp(v r2.Vec) r2.Vec {
	return r2.Vec{X: -v.Y, Y: v.X}
}

type boundSuperimpose struct {
	m1, m2 int
	axes   []int
	local  int
}

func (c SuperimposeMarkers) bind(m *rbd.Model) (bound, error) {
	m1, err := m.MarkerIndex(c.Marker1)
	if err != nil {
		return nil, err
	}
	m2, err := m.MarkerIndex(c.Marker2)
	if err != nil {
		return nil, err
	}
	if err := checkAxes(c.Axes); err != nil {
		return nil, fmt.Errorf("superimpose %s/%s: %w", c.Marker1, c.Marker2, err)
	}
	b := &boundSuperimpose{m1: m1, m2: m2, axes: append([]int(nil), c.Axes...), local: -1}
	if c.LocalSegment != "" {
		if b.local, err = m.SegmentIndex(c.LocalSegment); err != nil {
			return nil, err
		}
	}
	return b, nil
}

func (c *boundSuperimpose) dim() int { return len(c.axes) }

func (c *boundSuperimpose) eval(k *rbd.Kinematics, row int, g []float64, J *mat.Dense, bias []float64) {
	d := r2.Sub(k.Marker(c.m1), k.Marker(c.m2))
	dd := r2.Sub(k.MarkerVelocity(c.m1), k.MarkerVelocity(c.m2))
	db := r2.Sub(k.MarkerBias(c.m1), k.MarkerBias(c.m2))

	var dJ mat.Dense
	dJ.Sub(k.MarkerJacobian(c.m1), k.MarkerJacobian(c.m2))

	if c.local < 0 {
		for i, ax := range c.axes {
			g[row+i] = component(d, ax)
			J.SetRow(row+i, dJ.RawRowView(ax))
			if bias != nil {
				bias[row+i] = component(db, ax)
			}
		}
		return
	}

	// g = R(−φ)·d
	phi := k.SegmentAngle(c.local)
	w := k.SegmentAngularVelocity(c.local)
	rd := r2.Rotate(d, -phi, r2.Vec{})
	rdd := r2.Rotate(dd, -phi, r2.Vec{})
	rdb := r2.Rotate(db, -phi, r2.Vec{})
	// -φ̇²·Rᵀd − 2φ̇·perp(Rᵀḋ) + Rᵀ·(J̇q̇)
	gb := r2.Sub(r2.Sub(rdb, r2.Scale(2*w, perp(rdd))), r2.Scale(w*w, rd))
	dphi := perp(rd)
	jw := k.AngularJacobian(c.local)

	_, n := dJ.Dims()
	sin, cos := math.Sincos(-phi)
	for i, ax := range c.axes {
		g[row+i] = component(rd, ax)
		if bias != nil {
			bias[row+i] = component(gb, ax)
		}
		for col := 0; col < n; col++ {
			jy, jz := dJ.At(rbd.AxisY, col), dJ.At(rbd.AxisZ, col)
			rot := r2.Vec{X: cos*jy - sin*jz, Y: sin*jy + cos*jz}
			J.Set(row+i, col, component(rot, ax)-component(dphi, ax)*jw[col])
		}
	}
}

type boundPin struct {
	marker int
	point  r2.Vec
	axes   []int
}

func (c PinMarker) bind(m *rbd.Model) (bound, error) {
	idx, err := m.MarkerIndex(c.Marker)
	if err != nil {
		return nil, err
	}
	if err := checkAxes(c.Axes); err != nil {
		return nil, fmt.Errorf("pin %s: %w", c.Marker, err)
	}
	return &boundPin{marker: idx, point: c.Point, axes: append([]int(nil), c.Axes...)}, nil
}

func (c *boundPin) dim() int { return len(c.axes) }

func (c *boundPin) eval(k *rbd.Kinematics, row int, g []float64, J *mat.Dense, bias []float64) {
	d := r2.Sub(k.Marker(c.marker), c.point)
	jm := k.MarkerJacobian(c.marker)
	b := k.MarkerBias(c.marker)
	for i, ax := range c.axes {
		g[row+i] = component(d, ax)
		J.SetRow(row+i, jm.RawRowView(ax))
		if bias != nil {
			bias[row+i] = component(b, ax)
		}
	}
}

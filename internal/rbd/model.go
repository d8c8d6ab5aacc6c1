package rbd

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/spatial/r2"

	"github.com/san-kum/salto/internal/dynamo"
)

// DoF is the kind of a single segment degree of freedom.
type DoF int

const (
	TransY DoF = iota
	TransZ
	RotX
)

func (d DoF) String() string {
	switch d {
	case TransY:
		return "TransY"
	case TransZ:
		return "TransZ"
	case RotX:
		return "RotX"
	}
	return fmt.Sprintf("DoF(%d)", int(d))
}

// Axis indices used by markers, contacts and constraints.
const (
	AxisY = 0
	AxisZ = 1
)

type Segment struct {
	Name    string
	Parent  int
	Offset  r2.Vec
	DoFs    []DoF
	FirstQ  int
	Mass    float64
	CoM     r2.Vec
	Inertia float64
}

type Marker struct {
	Name     string
	Segment  int
	Position r2.Vec
}

// Contact is a rigid point contact on a marker, constrained along Axes.
type Contact struct {
	Name   string
	Marker int
	Axes   []int
}

type Model struct {
	Name     string
	Gravity  float64
	Segments []Segment
	Markers  []Marker
	Contacts []Contact

	QRanges    [][2]float64
	QdotRanges [][2]float64

	nq       int
	segIndex map[string]int
	mkIndex  map[string]int
}

func (m *Model) NQ() int { return m.nq }

// NbContactRows is the number of scalar contact constraints.
func (m *Model) NbContactRows() int {
	n := 0
	for _, c := range m.Contacts {
		n += len(c.Axes)
	}
	return n
}

func (m *Model) TotalMass() float64 {
	total := 0.0
	for _, s := range m.Segments {
		total += s.Mass
	}
	return total
}

func (m *Model) SegmentIndex(name string) (int, error) {
	i, ok := m.segIndex[name]
	if !ok {
		return -1, fmt.Errorf("segment %q: %w", name, dynamo.ErrUnknownName)
	}
	return i, nil
}

func (m *Model) MarkerIndex(name string) (int, error) {
	i, ok := m.mkIndex[name]
	if !ok {
		return -1, fmt.Errorf("marker %q: %w", name, dynamo.ErrUnknownName)
	}
	return i, nil
}

func (m *Model) MarkerNames() []string {
	names := make([]string, len(m.Markers))
	for i, mk := range m.Markers {
		names[i] = mk.Name
	}
	return names
}

// DoFNames returns "<segment>_<dof>" for every generalized coordinate.
func (m *Model) DoFNames() []string {
	names := make([]string, 0, m.nq)
	for _, s := range m.Segments {
		for _, d := range s.DoFs {
			names = append(names, s.Name+"_"+d.String())
		}
	}
	return names
}

// IsRotation reports whether coordinate i is a rotation.
func (m *Model) IsRotation(i int) bool {
	for _, s := range m.Segments {
		if i >= s.FirstQ && i < s.FirstQ+len(s.DoFs) {
			return s.DoFs[i-s.FirstQ] == RotX
		}
	}
	return false
}

// WithContacts returns a shallow copy of m keeping only the named contacts.
// With no names the copy has no contacts.
func (m *Model) WithContacts(names ...string) (*Model, error) {
	out := *m
	out.Contacts = nil
	for _, name := range names {
		found := false
		for _, c := range m.Contacts {
			if c.Name == name {
				out.Contacts = append(out.Contacts, c)
				found = true
				break
			}
		}
		if !found {
			return nil, fmt.Errorf("contact %q: %w", name, dynamo.ErrUnknownName)
		}
	}
	return &out, nil
}

// BoundsFromRanges returns lower and upper bounds for q and qdot.
func (m *Model) BoundsFromRanges() (qMin, qMax, qdMin, qdMax []float64) {
	qMin = make([]float64, m.nq)
	qMax = make([]float64, m.nq)
	qdMin = make([]float64, m.nq)
	qdMax = make([]float64, m.nq)
	for i := 0; i < m.nq; i++ {
		qMin[i], qMax[i] = m.QRanges[i][0], m.QRanges[i][1]
		qdMin[i], qdMax[i] = m.QdotRanges[i][0], m.QdotRanges[i][1]
	}
	return qMin, qMax, qdMin, qdMax
}

// finalize assigns coordinate indices and lookup tables and fills default
// ranges. Parents must precede children.
func (m *Model) finalize() error {
	m.segIndex = make(map[string]int, len(m.Segments))
	m.mkIndex = make(map[string]int, len(m.Markers))
	m.nq = 0
	for i := range m.Segments {
		s := &m.Segments[i]
		if _, dup := m.segIndex[s.Name]; dup {
			return fmt.Errorf("duplicate segment %q", s.Name)
		}
		if s.Parent >= i {
			return fmt.Errorf("segment %q: parent must be declared first", s.Name)
		}
		if s.Mass < 0 || s.Inertia < 0 {
			return fmt.Errorf("segment %q: %w", s.Name, dynamo.ErrParameterBounds)
		}
		m.segIndex[s.Name] = i
		s.FirstQ = m.nq
		m.nq += len(s.DoFs)
	}
	for i, mk := range m.Markers {
		if _, dup := m.mkIndex[mk.Name]; dup {
			return fmt.Errorf("duplicate marker %q", mk.Name)
		}
		m.mkIndex[mk.Name] = i
	}

	for len(m.QRanges) < m.nq {
		m.QRanges = append(m.QRanges, [2]float64{})
	}
	for len(m.QdotRanges) < m.nq {
		m.QdotRanges = append(m.QdotRanges, [2]float64{})
	}
	for i := 0; i < m.nq; i++ {
		rot := m.IsRotation(i)
		if m.QRanges[i] == ([2]float64{}) {
			if rot {
				m.QRanges[i] = [2]float64{-math.Pi, math.Pi}
			} else {
				m.QRanges[i] = [2]float64{-10, 10}
			}
		}
		if m.QdotRanges[i] == ([2]float64{}) {
			if rot {
				m.QdotRanges[i] = [2]float64{-10 * math.Pi, 10 * math.Pi}
			} else {
				m.QdotRanges[i] = [2]float64{-10, 10}
			}
		}
	}
	return nil
}

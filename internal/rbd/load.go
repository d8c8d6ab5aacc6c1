package rbd

import (
	"embed"
	"fmt"
	"os"
	"path"
	"sort"
	"strings"

	"gonum.org/v1/gonum/spatial/r2"
	"gopkg.in/yaml.v3"
)

//go:embed models/*.yaml
var builtinFS embed.FS

const defaultGravity = 9.81

type fileModel struct {
	Name     string        `yaml:"name"`
	Gravity  *float64      `yaml:"gravity,omitempty"`
	Segments []fileSegment `yaml:"segments"`
	Contacts []fileContact `yaml:"contacts,omitempty"`
}

type fileSegment struct {
	Name         string       `yaml:"name"`
	Parent       string       `yaml:"parent,omitempty"`
	Translations string       `yaml:"translations,omitempty"`
	Rotations    string       `yaml:"rotations,omitempty"`
	Offset       []float64    `yaml:"offset,omitempty"`
	Mass         float64      `yaml:"mass"`
	CoM          []float64    `yaml:"com,omitempty"`
	Inertia      float64      `yaml:"inertia"`
	QRanges      [][]float64  `yaml:"q_ranges,omitempty"`
	QdotRanges   [][]float64  `yaml:"qdot_ranges,omitempty"`
	Markers      []fileMarker `yaml:"markers,omitempty"`
}

type fileMarker struct {
	Name     string    `yaml:"name"`
	Position []float64 `yaml:"position"`
}

type fileContact struct {
	Name   string `yaml:"name"`
	Marker string `yaml:"marker"`
	Axes   string `yaml:"axes"`
}

// Load reads a model from a YAML file.
func Load(filename string) (*Model, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, err
	}
	return Parse(data)
}

// Builtin returns one of the embedded models by name.
func Builtin(name string) (*Model, error) {
	data, err := builtinFS.ReadFile(path.Join("models", name+".yaml"))
	if err != nil {
		return nil, fmt.Errorf("unknown model %q (available: %s)", name, strings.Join(BuiltinNames(), ", "))
	}
	return Parse(data)
}

// LoadOrBuiltin resolves name as a builtin model first, then as a file path.
func LoadOrBuiltin(name string) (*Model, error) {
	for _, b := range BuiltinNames() {
		if b == name {
			return Builtin(name)
		}
	}
	return Load(name)
}

func BuiltinNames() []string {
	entries, err := builtinFS.ReadDir("models")
	if err != nil {
		return nil
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, strings.TrimSuffix(e.Name(), ".yaml"))
	}
	sort.Strings(names)
	return names
}

// Parse builds a model from its YAML description.
func Parse(data []byte) (*Model, error) {
	var fm fileModel
	if err := yaml.Unmarshal(data, &fm); err != nil {
		return nil, fmt.Errorf("parse model: %w", err)
	}

	m := &Model{Name: fm.Name, Gravity: defaultGravity}
	if fm.Gravity != nil {
		m.Gravity = *fm.Gravity
	}

	parents := map[string]int{}
	type pendingMarker struct {
		seg int
		fm  fileMarker
	}
	var markers []pendingMarker

	for i, fs := range fm.Segments {
		s := Segment{Name: fs.Name, Parent: -1, Mass: fs.Mass, Inertia: fs.Inertia}
		if fs.Parent != "" {
			p, ok := parents[fs.Parent]
			if !ok {
				return nil, fmt.Errorf("segment %q: parent %q not declared before it", fs.Name, fs.Parent)
			}
			s.Parent = p
		}
		var err error
		if s.Offset, err = vec(fs.Offset); err != nil {
			return nil, fmt.Errorf("segment %q offset: %w", fs.Name, err)
		}
		if s.CoM, err = vec(fs.CoM); err != nil {
			return nil, fmt.Errorf("segment %q com: %w", fs.Name, err)
		}
		for _, c := range strings.ToLower(fs.Translations) {
			switch c {
			case 'y':
				s.DoFs = append(s.DoFs, TransY)
			case 'z':
				s.DoFs = append(s.DoFs, TransZ)
			default:
				return nil, fmt.Errorf("segment %q: unsupported translation %q", fs.Name, c)
			}
		}
		switch strings.ToLower(fs.Rotations) {
		case "":
		case "x":
			s.DoFs = append(s.DoFs, RotX)
		default:
			return nil, fmt.Errorf("segment %q: only rotation about x is planar", fs.Name)
		}

		if len(fs.QRanges) != 0 && len(fs.QRanges) != len(s.DoFs) {
			return nil, fmt.Errorf("segment %q: %d q ranges for %d dofs", fs.Name, len(fs.QRanges), len(s.DoFs))
		}
		if len(fs.QdotRanges) != 0 && len(fs.QdotRanges) != len(s.DoFs) {
			return nil, fmt.Errorf("segment %q: %d qdot ranges for %d dofs", fs.Name, len(fs.QdotRanges), len(s.DoFs))
		}
		for j := range s.DoFs {
			qr, err := pair(fs.QRanges, j)
			if err != nil {
				return nil, fmt.Errorf("segment %q q range: %w", fs.Name, err)
			}
			qdr, err := pair(fs.QdotRanges, j)
			if err != nil {
				return nil, fmt.Errorf("segment %q qdot range: %w", fs.Name, err)
			}
			m.QRanges = append(m.QRanges, qr)
			m.QdotRanges = append(m.QdotRanges, qdr)
		}

		parents[fs.Name] = i
		m.Segments = append(m.Segments, s)
		for _, mk := range fs.Markers {
			markers = append(markers, pendingMarker{seg: i, fm: mk})
		}
	}

	for _, pm := range markers {
		pos, err := vec(pm.fm.Position)
		if err != nil {
			return nil, fmt.Errorf("marker %q: %w", pm.fm.Name, err)
		}
		m.Markers = append(m.Markers, Marker{Name: pm.fm.Name, Segment: pm.seg, Position: pos})
	}

	if err := m.finalize(); err != nil {
		return nil, err
	}

	for _, fc := range fm.Contacts {
		idx, err := m.MarkerIndex(fc.Marker)
		if err != nil {
			return nil, fmt.Errorf("contact %q: %w", fc.Name, err)
		}
		axes, err := ParseAxes(fc.Axes)
		if err != nil {
			return nil, fmt.Errorf("contact %q: %w", fc.Name, err)
		}
		m.Contacts = append(m.Contacts, Contact{Name: fc.Name, Marker: idx, Axes: axes})
	}
	return m, nil
}

// ParseAxes converts "y", "z" or "yz" into axis indices.
func ParseAxes(s string) ([]int, error) {
	var axes []int
	for _, c := range strings.ToLower(s) {
		switch c {
		case 'y':
			axes = append(axes, AxisY)
		case 'z':
			axes = append(axes, AxisZ)
		default:
			return nil, fmt.Errorf("unsupported axis %q", c)
		}
	}
	if len(axes) == 0 {
		return nil, fmt.Errorf("no axes in %q", s)
	}
	return axes, nil
}

func vec(v []float64) (r2.Vec, error) {
	switch len(v) {
	case 0:
		return r2.Vec{}, nil
	case 2:
		return r2.Vec{X: v[0], Y: v[1]}, nil
	}
	return r2.Vec{}, fmt.Errorf("expected [y, z], got %d values", len(v))
}

func pair(ranges [][]float64, j int) ([2]float64, error) {
	if len(ranges) == 0 {
		return [2]float64{}, nil
	}
	r := ranges[j]
	if len(r) != 2 || r[0] > r[1] {
		return [2]float64{}, fmt.Errorf("invalid range %v", r)
	}
	return [2]float64{r[0], r[1]}, nil
}

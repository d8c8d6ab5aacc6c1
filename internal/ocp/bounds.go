package ocp

import (
	"fmt"
	"math"
	"math/rand/v2"

	"gonum.org/v1/gonum/stat/distuv"

	"github.com/san-kum/salto/internal/dynamo"
)

// Node selects the nodes a constraint or bound applies to.
type Node int

const (
	Start Node = iota
	Mid        // every node strictly between the first and the last
	End
	All
	AllShooting // every node carrying a control: all but the last
)

func (n Node) String() string {
	switch n {
	case Start:
		return "start"
	case Mid:
		return "mid"
	case End:
		return "end"
	case All:
		return "all"
	case AllShooting:
		return "all_shooting"
	default:
		return fmt.Sprintf("node(%d)", int(n))
	}
}

// Indices lists the node indices selected among nodes = nShooting+1.
func (n Node) Indices(nodes int) []int {
	var out []int
	switch n {
	case Start:
		out = []int{0}
	case End:
		out = []int{nodes - 1}
	case Mid:
		for i := 1; i < nodes-1; i++ {
			out = append(out, i)
		}
	case All:
		for i := 0; i < nodes; i++ {
			out = append(out, i)
		}
	case AllShooting:
		for i := 0; i < nodes-1; i++ {
			out = append(out, i)
		}
	}
	return out
}

// Bounds are per-variable limits with separate first, intermediate and
// last node columns.
type Bounds struct {
	Min [3][]float64
	Max [3][]float64
}

// ConstantBounds applies min and max at every node.
func ConstantBounds(min, max []float64) Bounds {
	var b Bounds
	for c := 0; c < 3; c++ {
		b.Min[c] = append([]float64(nil), min...)
		b.Max[c] = append([]float64(nil), max...)
	}
	return b
}

// Unbounded returns ±Inf bounds for n variables.
func Unbounded(n int) Bounds {
	lo := make([]float64, n)
	hi := make([]float64, n)
	for i := range lo {
		lo[i] = math.Inf(-1)
		hi[i] = math.Inf(1)
	}
	return ConstantBounds(lo, hi)
}

func (b *Bounds) Len() int { return len(b.Min[0]) }

func columns(n Node) []int {
	switch n {
	case Start:
		return []int{0}
	case Mid:
		return []int{1}
	case End:
		return []int{2}
	case AllShooting:
		return []int{0, 1}
	default:
		return []int{0, 1, 2}
	}
}

// Set overrides variable i on the selected nodes.
func (b *Bounds) Set(n Node, i int, lo, hi float64) {
	for _, c := range columns(n) {
		b.Min[c][i], b.Max[c][i] = lo, hi
	}
}

// SetMin overrides the lower bound of variable i on the selected nodes.
func (b *Bounds) SetMin(n Node, i int, lo float64) {
	for _, c := range columns(n) {
		b.Min[c][i] = lo
	}
}

// SetMax overrides the upper bound of variable i on the selected nodes.
func (b *Bounds) SetMax(n Node, i int, hi float64) {
	for _, c := range columns(n) {
		b.Max[c][i] = hi
	}
}

// At returns the bounds at node k of nodes.
func (b *Bounds) At(k, nodes int) (lo, hi []float64) {
	c := 1
	switch {
	case k == 0:
		c = 0
	case k == nodes-1:
		c = 2
	}
	return b.Min[c], b.Max[c]
}

func (b *Bounds) validate(n int, what string) error {
	for c := 0; c < 3; c++ {
		if len(b.Min[c]) != n || len(b.Max[c]) != n {
			return fmt.Errorf("%s bounds: %d values for %d variables: %w", what, len(b.Min[c]), n, dynamo.ErrDimensionMismatch)
		}
		for i := 0; i < n; i++ {
			if b.Min[c][i] > b.Max[c][i] {
				return fmt.Errorf("%s bounds: variable %d [%g, %g]: %w", what, i, b.Min[c][i], b.Max[c][i], dynamo.ErrParameterBounds)
			}
		}
	}
	return nil
}

// Guess provides the initial value of a variable block at node k of nodes.
type Guess interface {
	At(k, nodes int) []float64
	Len() int
}

// ConstantGuess is the same value at every node.
type ConstantGuess []float64

func (g ConstantGuess) At(k, nodes int) []float64 { return append([]float64(nil), g...) }
func (g ConstantGuess) Len() int                  { return len(g) }

// LinearGuess interpolates from First at node 0 to Last at the last node.
type LinearGuess struct {
	First, Last []float64
}

func (g LinearGuess) At(k, nodes int) []float64 {
	s := 0.0
	if nodes > 1 {
		s = float64(k) / float64(nodes-1)
	}
	out := make([]float64, len(g.First))
	for i := range out {
		out[i] = g.First[i] + s*(g.Last[i]-g.First[i])
	}
	return out
}

func (g LinearGuess) Len() int { return len(g.First) }

// EachFrameGuess gives one value per node. A series shorter than the
// requested nodes repeats its last frame.
type EachFrameGuess [][]float64

func (g EachFrameGuess) At(k, nodes int) []float64 {
	if k >= len(g) {
		k = len(g) - 1
	}
	return append([]float64(nil), g[k]...)
}

func (g EachFrameGuess) Len() int {
	if len(g) == 0 {
		return 0
	}
	return len(g[0])
}

// Resample linearly interpolates g onto a different node count.
func (g EachFrameGuess) Resample(nodes int) EachFrameGuess {
	if len(g) == nodes || len(g) < 2 {
		return g
	}
	out := make(EachFrameGuess, nodes)
	for k := range out {
		s := 0.0
		if nodes > 1 {
			s = float64(k) * float64(len(g)-1) / float64(nodes-1)
		}
		i := int(s)
		if i >= len(g)-1 {
			i = len(g) - 2
		}
		f := s - float64(i)
		out[k] = make([]float64, len(g[i]))
		for j := range out[k] {
			out[k][j] = g[i][j] + f*(g[i+1][j]-g[i][j])
		}
	}
	return out
}

// WithNoise perturbs guess at every node by magnitude·(hi−lo)·U(−½, ½),
// clipped into bounds. Infinite bound ranges are left unperturbed.
func WithNoise(g Guess, b Bounds, nodes int, magnitude float64, seed uint64) EachFrameGuess {
	dist := distuv.Uniform{Min: -0.5, Max: 0.5, Src: rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)}
	out := make(EachFrameGuess, nodes)
	for k := 0; k < nodes; k++ {
		v := g.At(k, nodes)
		lo, hi := b.At(k, nodes)
		for i := range v {
			r := dist.Rand()
			span := hi[i] - lo[i]
			if math.IsInf(span, 0) {
				continue
			}
			v[i] += magnitude * span * r
			v[i] = math.Max(lo[i], math.Min(hi[i], v[i]))
		}
		out[k] = v
	}
	return out
}

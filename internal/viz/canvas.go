package viz

import (
	"math"
	"strings"

	"gonum.org/v1/gonum/spatial/r2"

	"github.com/san-kum/salto/internal/rbd"
)

// brailleDots maps a sub-pixel (row, column) inside a cell to its braille
// dot bit.
var brailleDots = [4][2]uint8{
	{0x01, 0x08},
	{0x02, 0x10},
	{0x04, 0x20},
	{0x40, 0x80},
}

const brailleBase = 0x2800

// Canvas is a grid of braille cells, each cell 2 sub-pixels wide and 4
// tall, y pointing down.
type Canvas struct {
	Cols, Rows int
	dots       [][]uint8
}

func NewCanvas(cols, rows int) *Canvas {
	c := &Canvas{Cols: cols, Rows: rows, dots: make([][]uint8, rows)}
	for i := range c.dots {
		c.dots[i] = make([]uint8, cols)
	}
	return c
}

// Set lights the sub-pixel (x, y); points outside the canvas are dropped.
func (c *Canvas) Set(x, y int) {
	col, row := x/2, y/4
	if x < 0 || y < 0 || col >= c.Cols || row >= c.Rows {
		return
	}
	c.dots[row][col] |= brailleDots[y%4][x%2]
}

// Lit reports whether any dot of a cell is set.
func (c *Canvas) Lit(col, row int) bool { return c.dots[row][col] != 0 }

func (c *Canvas) Clear() {
	for _, row := range c.dots {
		clear(row)
	}
}

// DrawLine steps along the major axis and rounds the minor one.
func (c *Canvas) DrawLine(x0, y0, x1, y1 int) {
	dx, dy := x1-x0, y1-y0
	steps := max(absInt(dx), absInt(dy))
	if steps == 0 {
		c.Set(x0, y0)
		return
	}
	for i := 0; i <= steps; i++ {
		f := float64(i) / float64(steps)
		c.Set(x0+int(math.Round(f*float64(dx))), y0+int(math.Round(f*float64(dy))))
	}
}

func (c *Canvas) String() string {
	var b strings.Builder
	for _, row := range c.dots {
		for _, d := range row {
			b.WriteRune(rune(brailleBase + int(d)))
		}
		b.WriteByte('\n')
	}
	return b.String()
}

// Viewport maps the sagittal plane (Y right, Z up) onto a canvas.
type Viewport struct {
	Min, Max r2.Vec
}

// FitPoses returns a square viewport around every marker and segment
// origin of the given poses, with a 10% margin.
func FitPoses(body *rbd.Model, poses [][]float64) Viewport {
	lo := r2.Vec{X: math.Inf(1), Y: math.Inf(1)}
	hi := r2.Vec{X: math.Inf(-1), Y: math.Inf(-1)}
	grow := func(p r2.Vec) {
		lo.X, lo.Y = math.Min(lo.X, p.X), math.Min(lo.Y, p.Y)
		hi.X, hi.Y = math.Max(hi.X, p.X), math.Max(hi.Y, p.Y)
	}
	for _, q := range poses {
		k := body.Kinematics(q, nil)
		for i := range body.Segments {
			grow(k.SegmentOrigin(i))
		}
		for i := range body.Markers {
			grow(k.Marker(i))
		}
	}
	if math.IsInf(lo.X, 0) {
		return Viewport{Min: r2.Vec{X: -1, Y: -1}, Max: r2.Vec{X: 1, Y: 1}}
	}
	center := r2.Scale(0.5, r2.Add(lo, hi))
	half := 0.55 * math.Max(math.Max(hi.X-lo.X, hi.Y-lo.Y), 1e-3)
	return Viewport{
		Min: r2.Sub(center, r2.Vec{X: half, Y: half}),
		Max: r2.Add(center, r2.Vec{X: half, Y: half}),
	}
}

func (v Viewport) pixel(c *Canvas, p r2.Vec) (int, int) {
	w, h := float64(c.Cols*2-1), float64(c.Rows*4-1)
	x := (p.X - v.Min.X) / (v.Max.X - v.Min.X) * w
	y := (v.Max.Y - p.Y) / (v.Max.Y - v.Min.Y) * h
	return int(math.Round(x)), int(math.Round(y))
}

// Line draws a world-frame segment.
func (v Viewport) Line(c *Canvas, a, b r2.Vec) {
	x0, y0 := v.pixel(c, a)
	x1, y1 := v.pixel(c, b)
	c.DrawLine(x0, y0, x1, y1)
}

// DrawPose draws the body at q as a stick figure: each segment joined to
// its parent, each marker joined to its segment origin.
func DrawPose(c *Canvas, v Viewport, body *rbd.Model, q []float64) {
	k := body.Kinematics(q, nil)
	for i, s := range body.Segments {
		if s.Parent >= 0 {
			v.Line(c, k.SegmentOrigin(s.Parent), k.SegmentOrigin(i))
		}
	}
	for i, mk := range body.Markers {
		v.Line(c, k.SegmentOrigin(mk.Segment), k.Marker(i))
	}
	// ground line at Z = 0
	if v.Min.Y <= 0 && v.Max.Y >= 0 {
		v.Line(c, r2.Vec{X: v.Min.X}, r2.Vec{X: v.Max.X})
	}
}

func absInt(x int) int {
	if x < 0 {
		return -x
	}
	return x
}

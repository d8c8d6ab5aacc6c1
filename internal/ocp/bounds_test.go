package ocp

import (
	"math"
	"reflect"
	"testing"
)

func TestNodeIndices(t *testing.T) {
	tests := []struct {
		node Node
		want []int
	}{
		{Start, []int{0}},
		{End, []int{4}},
		{Mid, []int{1, 2, 3}},
		{All, []int{0, 1, 2, 3, 4}},
		{AllShooting, []int{0, 1, 2, 3}},
	}
	for _, tt := range tests {
		t.Run(tt.node.String(), func(t *testing.T) {
			if got := tt.node.Indices(5); !reflect.DeepEqual(got, tt.want) {
				t.Errorf("expected %v, got %v", tt.want, got)
			}
		})
	}
}

func TestBoundsColumns(t *testing.T) {
	b := ConstantBounds([]float64{-1, -1}, []float64{1, 1})
	b.Set(Start, 0, 0, 0)
	b.SetMax(AllShooting, 1, 0.5)
	b.SetMin(End, 1, 0.25)

	lo, hi := b.At(0, 4)
	if lo[0] != 0 || hi[0] != 0 || hi[1] != 0.5 {
		t.Errorf("start column: %v %v", lo, hi)
	}
	lo, hi = b.At(2, 4)
	if lo[0] != -1 || hi[1] != 0.5 {
		t.Errorf("mid column: %v %v", lo, hi)
	}
	lo, hi = b.At(3, 4)
	if lo[1] != 0.25 || hi[1] != 1 {
		t.Errorf("end column: %v %v", lo, hi)
	}
	if err := b.validate(2, "test"); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
	b.Set(End, 0, 2, 1)
	if err := b.validate(2, "test"); err == nil {
		t.Error("expected crossed bounds to fail")
	}
}

func TestGuesses(t *testing.T) {
	lin := LinearGuess{First: []float64{0, 10}, Last: []float64{1, 20}}
	if got := lin.At(2, 5); got[0] != 0.5 || got[1] != 15 {
		t.Errorf("linear midpoint: %v", got)
	}
	c := ConstantGuess{3}
	g := c.At(1, 3)
	g[0] = 7
	if c[0] != 3 {
		t.Error("constant guess must return a copy")
	}

	frames := EachFrameGuess{{0}, {2}}
	if got := frames.At(5, 6); got[0] != 2 {
		t.Errorf("short series should hold its last frame, got %v", got)
	}
	re := frames.Resample(5)
	want := []float64{0, 0.5, 1, 1.5, 2}
	for k, w := range want {
		if math.Abs(re[k][0]-w) > 1e-12 {
			t.Errorf("resample node %d: expected %f, got %f", k, w, re[k][0])
		}
	}
}

func TestWithNoise(t *testing.T) {
	b := ConstantBounds([]float64{-1, math.Inf(-1)}, []float64{1, math.Inf(1)})
	g := ConstantGuess{0.9, 4}

	a := WithNoise(g, b, 10, 0.2, 7)
	again := WithNoise(g, b, 10, 0.2, 7)
	other := WithNoise(g, b, 10, 0.2, 8)

	if !reflect.DeepEqual(a, again) {
		t.Error("same seed should reproduce the guess")
	}
	if reflect.DeepEqual(a, other) {
		t.Error("different seeds should differ")
	}
	for k, v := range a {
		if v[0] < -1 || v[0] > 1 {
			t.Errorf("node %d: noisy value %f outside bounds", k, v[0])
		}
		if math.Abs(v[0]-0.9) > 0.2+1e-12 {
			t.Errorf("node %d: noise %f larger than magnitude", k, v[0]-0.9)
		}
		if v[1] != 4 {
			t.Errorf("node %d: unbounded variable perturbed to %f", k, v[1])
		}
	}
}

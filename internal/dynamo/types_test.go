package dynamo

import (
	"errors"
	"fmt"
	"math"
	"sync/atomic"
	"testing"
)

func TestStateClone(t *testing.T) {
	a := State{1, 2, 3}

	c := a.Clone()
	c[0] = 99
	if a[0] != 1 {
		t.Error("Clone shares backing array")
	}
}

func TestStateValidity(t *testing.T) {
	tests := []struct {
		name  string
		s     State
		valid bool
	}{
		{"finite", State{1, -2, 0}, true},
		{"nan", State{1, math.NaN()}, false},
		{"inf", State{math.Inf(-1)}, false},
		{"empty", State{}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.s.IsValid(); got != tt.valid {
				t.Errorf("IsValid() = %v, want %v", got, tt.valid)
			}
		})
	}
}

func TestSplitConcat(t *testing.T) {
	x := Concat([]float64{1, 2}, []float64{3, 4})
	q, qd := x.Split()
	if len(q) != 2 || q[1] != 2 || qd[0] != 3 {
		t.Errorf("Split(%v) = %v, %v", x, q, qd)
	}
}

func TestNodeErrorUnwrap(t *testing.T) {
	err := fmt.Errorf("evaluate: %w", &NodeError{Phase: 2, Node: 7, Wrapped: ErrSingularJacobian})
	if !errors.Is(err, ErrSingularJacobian) {
		t.Errorf("errors.Is failed for %v", err)
	}
	var ne *NodeError
	if !errors.As(err, &ne) || ne.Node != 7 {
		t.Errorf("errors.As failed for %v", err)
	}
}

func TestParallelForCoversRange(t *testing.T) {
	for _, n := range []int{0, 1, 7, 100, 1001} {
		seen := make([]int32, n)
		var calls int32
		ParallelFor(n, 4, func(start, end int) {
			atomic.AddInt32(&calls, 1)
			for i := start; i < end; i++ {
				atomic.AddInt32(&seen[i], 1)
			}
		})
		for i, c := range seen {
			if c != 1 {
				t.Fatalf("n=%d: index %d visited %d times", n, i, c)
			}
		}
	}
}

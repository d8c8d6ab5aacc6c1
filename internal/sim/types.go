package sim

import (
	"fmt"

	"github.com/san-kum/salto/internal/dynamo"
)

type Config struct {
	Dt       float64
	Duration float64
	// Adaptive enables error-controlled steps between MinDt and MaxDt.
	Adaptive      bool
	Tolerance     float64
	MinDt         float64
	MaxDt         float64
	ValidateState bool
}

type Result struct {
	States     []dynamo.State
	Controls   []dynamo.Control
	Times      []float64
	Metrics    map[string]float64
	StepsTaken int
	Rejected   int
	Errors     []error
}

// Final returns the last recorded state.
func (r *Result) Final() dynamo.State {
	if len(r.States) == 0 {
		return nil
	}
	return r.States[len(r.States)-1]
}

type SimError struct {
	Time    float64
	Step    int
	Message string
}

func (e SimError) Error() string {
	return fmt.Sprintf("step %d at t=%.4f: %s", e.Step, e.Time, e.Message)
}

// Switcher is implemented by controllers whose output jumps at known
// times. Steps never straddle a switch.
type Switcher interface {
	NextSwitch(t float64) float64
}

// Schedule replays piecewise-constant controls on a uniform grid starting
// at Start.
type Schedule struct {
	Start float64
	Dt    float64
	Tau   [][]float64
}

func (s *Schedule) interval(t float64) int {
	k := int((t - s.Start) / s.Dt * (1 + 1e-12))
	return max(0, min(k, len(s.Tau)-1))
}

func (s *Schedule) Compute(x dynamo.State, t float64) dynamo.Control {
	if len(s.Tau) == 0 {
		return dynamo.Control{}
	}
	return append(dynamo.Control(nil), s.Tau[s.interval(t)]...)
}

func (s *Schedule) NextSwitch(t float64) float64 {
	return s.Start + float64(s.interval(t)+1)*s.Dt
}

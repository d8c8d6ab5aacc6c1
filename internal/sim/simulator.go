package sim

import (
	"context"
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"

	"github.com/san-kum/salto/internal/dynamo"
	"github.com/san-kum/salto/internal/integrators"
)

// switchEps absorbs rounding when a step lands on a control switch.
const switchEps = 1e-12

type Simulator struct {
	dyn        dynamo.System
	integrator dynamo.Integrator
	controller dynamo.Controller
	metrics    []dynamo.Metric
	observers  []dynamo.Observer
}

func New(dyn dynamo.System, integrator dynamo.Integrator, controller dynamo.Controller) *Simulator {
	return &Simulator{
		dyn:        dyn,
		integrator: integrator,
		controller: controller,
		metrics:    make([]dynamo.Metric, 0),
		observers:  make([]dynamo.Observer, 0),
	}
}

func (s *Simulator) AddMetric(m dynamo.Metric)     { s.metrics = append(s.metrics, m) }
func (s *Simulator) AddObserver(o dynamo.Observer) { s.observers = append(s.observers, o) }

// Run integrates from x0 over [t0, t0+cfg.Duration].
func (s *Simulator) Run(ctx context.Context, x0 dynamo.State, t0 float64, cfg Config) (*Result, error) {
	if err := s.validateConfig(cfg); err != nil {
		return nil, err
	}

	steps := int(math.Round(cfg.Duration / cfg.Dt))
	result := &Result{
		States:   make([]dynamo.State, 0, steps+1),
		Controls: make([]dynamo.Control, 0, steps),
		Times:    make([]float64, 0, steps+1),
		Metrics:  make(map[string]float64),
		Errors:   make([]error, 0),
	}

	for _, m := range s.metrics {
		m.Reset()
	}

	x := x0.Clone()
	t := t0
	end := t0 + cfg.Duration
	dt := cfg.Dt

	result.States = append(result.States, x.Clone())
	result.Times = append(result.Times, t)

	for i := 0; end-t > switchEps*math.Max(1, math.Abs(end)); i++ {
		select {
		case <-ctx.Done():
			return result, ctx.Err()
		default:
		}

		u := s.controller.Compute(x, t)

		for _, m := range s.metrics {
			m.Observe(x, u, t)
		}
		for _, obs := range s.observers {
			obs.OnStep(x, u, t)
		}

		h := s.clamp(dt, t, end)
		var newX dynamo.State
		if cfg.Adaptive {
			var next float64
			var err error
			newX, h, next, err = s.adaptiveStep(x, u, t, h, cfg, &result.Rejected)
			if err != nil {
				result.Errors = append(result.Errors, err)
				return result, err
			}
			dt = next
		} else {
			newX = s.integrator.Step(s.dyn, x, u, t, h)
		}

		if cfg.ValidateState && !newX.IsValid() {
			err := SimError{Time: t, Step: i, Message: "invalid state (NaN/Inf)"}
			result.Errors = append(result.Errors, err)
			return result, fmt.Errorf("%w: %w", dynamo.ErrInvalidState, err)
		}

		x = newX
		t += h
		result.StepsTaken++

		result.States = append(result.States, x.Clone())
		result.Controls = append(result.Controls, u)
		result.Times = append(result.Times, t)
	}

	for _, m := range s.metrics {
		m.Observe(x, s.controller.Compute(x, t), t)
		result.Metrics[m.Name()] = m.Value()
	}

	return result, nil
}

// clamp shortens dt so the step ends at the horizon or the next control
// switch, whichever comes first.
func (s *Simulator) clamp(dt, t, end float64) float64 {
	h := math.Min(dt, end-t)
	if sw, ok := s.controller.(Switcher); ok {
		if next := sw.NextSwitch(t); next > t+switchEps {
			h = math.Min(h, next-t)
		}
	}
	return h
}

func (s *Simulator) validateConfig(cfg Config) error {
	if cfg.Dt <= 0 {
		return fmt.Errorf("dt must be positive, got %f: %w", cfg.Dt, dynamo.ErrParameterBounds)
	}
	if cfg.Duration <= 0 {
		return fmt.Errorf("duration must be positive, got %f: %w", cfg.Duration, dynamo.ErrParameterBounds)
	}
	if cfg.Adaptive && cfg.Tolerance <= 0 {
		return fmt.Errorf("tolerance must be positive for adaptive stepping: %w", dynamo.ErrParameterBounds)
	}
	return nil
}

// adaptiveStep retries rejected steps with the suggested smaller size. It
// returns the new state, the step actually taken and the next step size.
func (s *Simulator) adaptiveStep(x dynamo.State, u dynamo.Control, t, dt float64, cfg Config, rejected *int) (dynamo.State, float64, float64, error) {
	maxDt := cfg.MaxDt
	if maxDt <= 0 {
		maxDt = math.Inf(1)
	}
	for {
		if adaptive, ok := s.integrator.(dynamo.AdaptiveIntegrator); ok {
			newX, next, err := adaptive.StepAdaptive(s.dyn, x, u, t, dt, cfg.Tolerance)
			if err == nil {
				return newX, dt, math.Min(next, maxDt), nil
			}
			if !errors.Is(err, integrators.ErrStepRejected) {
				return nil, 0, 0, err
			}
			*rejected++
			if next < cfg.MinDt || next <= 0 {
				return nil, 0, 0, SimError{Time: t, Message: fmt.Sprintf("step size %g below minimum", next)}
			}
			dt = next
			continue
		}

		x1 := s.integrator.Step(s.dyn, x, u, t, dt)
		xHalf := s.integrator.Step(s.dyn, x, u, t, dt/2)
		x2 := s.integrator.Step(s.dyn, xHalf, u, t+dt/2, dt/2)

		errNorm := floats.Distance(x1, x2, 2)
		if (errNorm > cfg.Tolerance || math.IsNaN(errNorm)) && dt/2 >= cfg.MinDt {
			*rejected++
			dt /= 2
			continue
		}

		next := dt
		if errNorm < cfg.Tolerance/10 {
			next = math.Min(dt*2, maxDt)
		}
		return x2, dt, next, nil
	}
}

// RunWithCallback steps until the horizon or until callback returns false.
func (s *Simulator) RunWithCallback(ctx context.Context, x0 dynamo.State, t0 float64, cfg Config, callback func(dynamo.State, dynamo.Control, float64) bool) error {
	if err := s.validateConfig(cfg); err != nil {
		return err
	}

	x := x0.Clone()
	t := t0
	end := t0 + cfg.Duration

	for end-t > switchEps*math.Max(1, math.Abs(end)) {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		u := s.controller.Compute(x, t)

		if !callback(x, u, t) {
			return nil
		}

		h := s.clamp(cfg.Dt, t, end)
		x = s.integrator.Step(s.dyn, x, u, t, h)
		t += h

		if cfg.ValidateState && !x.IsValid() {
			return fmt.Errorf("invalid state at t=%.4f: %w", t, dynamo.ErrInvalidState)
		}
	}

	return nil
}

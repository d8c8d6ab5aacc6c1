// Package actuators models joint torque generators with torque-angle
// curves.
package actuators

import (
	"fmt"
	"math"
)

// Curve is a Gaussian torque-angle relationship
// τmax(q) = TauMax·exp(−(q − ThetaOpt)² / (2·R²)).
type Curve struct {
	TauMax   float64 `yaml:"tau_max" json:"tau_max"`
	ThetaOpt float64 `yaml:"theta_opt" json:"theta_opt"`
	R        float64 `yaml:"r" json:"r"`
}

func (c Curve) At(q float64) float64 {
	d := q - c.ThetaOpt
	return c.TauMax * math.Exp(-d*d/(2*c.R*c.R))
}

// Joint describes one actuated joint. Plus applies to positive torques,
// Minus to negative ones. Limit is the absolute torque bound.
type Joint struct {
	Name  string  `yaml:"name" json:"name"`
	Plus  Curve   `yaml:"plus" json:"plus"`
	Minus Curve   `yaml:"minus" json:"minus"`
	MinQ  float64 `yaml:"min_q" json:"min_q"`
	MaxQ  float64 `yaml:"max_q" json:"max_q"`
	Limit float64 `yaml:"limit" json:"limit"`
}

// MaxTorque returns the torque capacity at q in the direction of tau.
func (j Joint) MaxTorque(q, tau float64) float64 {
	if tau > 0 {
		return j.Plus.At(q)
	}
	return j.Minus.At(q)
}

// Ratio returns tau over the available capacity.
func (j Joint) Ratio(q, tau float64) float64 {
	return tau / j.MaxTorque(q, tau)
}

// Set lists the actuated joints in control order.
type Set []Joint

func (s Set) Validate() error {
	for _, j := range s {
		if j.Plus.TauMax <= 0 || j.Minus.TauMax <= 0 || j.Plus.R <= 0 || j.Minus.R <= 0 {
			return fmt.Errorf("actuator %q: curves need positive tau_max and r", j.Name)
		}
		if j.MinQ > j.MaxQ {
			return fmt.Errorf("actuator %q: min_q > max_q", j.Name)
		}
	}
	return nil
}

func (s Set) Names() []string {
	out := make([]string, len(s))
	for i, j := range s {
		out[i] = j.Name
	}
	return out
}

// TorqueBounds returns ±scale·Limit for every joint.
func (s Set) TorqueBounds(scale float64) (lo, hi []float64) {
	lo = make([]float64, len(s))
	hi = make([]float64, len(s))
	for i, j := range s {
		hi[i] = scale * j.Limit
		lo[i] = -hi[i]
	}
	return lo, hi
}

// Effort returns Σ (τ_i / τmax_i(q_i))² for joint angles q and torques tau.
func (s Set) Effort(q, tau []float64) float64 {
	out := 0.0
	for i, j := range s {
		r := j.Ratio(q[i], tau[i])
		out += r * r
	}
	return out
}

func deg(d float64) float64 { return d * math.Pi / 180 }

// Somersault returns the measured actuators of the jumper: shoulders,
// elbows, hips, knees and ankles, both sides merged.
func Somersault() Set {
	return Set{
		{
			Name:  "Shoulders",
			Plus:  Curve{TauMax: 112.8107 * 2, ThetaOpt: deg(-41.0307), R: deg(109.6679)},
			Minus: Curve{TauMax: 162.7655 * 2, ThetaOpt: deg(-101.6627), R: deg(103.9095)},
			MinQ:  -0.7,
			MaxQ:  3.1,
			Limit: 325.531,
		},
		{
			Name:  "Elbows",
			Plus:  Curve{TauMax: 100 * 2, ThetaOpt: math.Pi/2 - 0.1, R: deg(40)},
			Minus: Curve{TauMax: 50 * 2, ThetaOpt: math.Pi/2 - 0.1, R: deg(70)},
			MinQ:  0,
			MaxQ:  2.09,
			Limit: 138,
		},
		{
			Name:  "Hips",
			Plus:  Curve{TauMax: 220.3831 * 2, ThetaOpt: deg(25.6939), R: deg(56.4021)},
			Minus: Curve{TauMax: 490.5938 * 2, ThetaOpt: deg(72.5836), R: deg(48.6999)},
			MinQ:  -0.4,
			MaxQ:  2.6,
			Limit: 981.1876,
		},
		{
			Name:  "Knees",
			Plus:  Curve{TauMax: 367.6643 * 2, ThetaOpt: deg(-61.7303), R: deg(31.7218)},
			Minus: Curve{TauMax: 177.9694 * 2, ThetaOpt: deg(-33.2908), R: deg(57.0370)},
			MinQ:  -2.3,
			MaxQ:  0.02,
			Limit: 735.3286,
		},
		{
			Name:  "Ankles",
			Plus:  Curve{TauMax: 153.8230 * 2, ThetaOpt: deg(0.7442), R: deg(58.9832)},
			Minus: Curve{TauMax: 171.9903 * 2, ThetaOpt: deg(12.6824), R: deg(21.8717)},
			MinQ:  -0.7,
			MaxQ:  0.7,
			Limit: 343.9806,
		},
	}
}

package config

import (
	"fmt"
	"os"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/san-kum/salto/internal/dynamo"
	"github.com/san-kum/salto/internal/nlp"
	"github.com/san-kum/salto/internal/ocp"
)

const (
	DefaultProgram      = "somersault"
	DefaultModel        = "jumper"
	DefaultIntegrator   = "rk45"
	DefaultNoise        = 0.2
	DefaultSeeds        = 20
	DefaultSimulationDt = 0.001
)

type Config struct {
	Program    string          `yaml:"program"`
	Model      string          `yaml:"model"`
	Integrator string          `yaml:"integrator"`
	Phases     []PhaseConfig   `yaml:"phases"`
	SubSteps   int             `yaml:"sub_steps"`
	FreeTime   bool            `yaml:"free_time"`
	TimeSlack  float64         `yaml:"time_slack"`
	Limits     LimitsConfig    `yaml:"limits"`
	Weights    WeightsConfig   `yaml:"weights"`
	Solver     SolverConfig    `yaml:"solver"`
	MultiStart MultiStartConfig `yaml:"multistart"`
	Simulate   SimulateConfig  `yaml:"simulate"`
}

type PhaseConfig struct {
	Name      string  `yaml:"name"`
	Duration  float64 `yaml:"duration"`
	NShooting int     `yaml:"n_shooting"`
}

type LimitsConfig struct {
	TorqueScale     float64 `yaml:"torque_scale"`
	Friction        float64 `yaml:"friction"`
	MinContactForce float64 `yaml:"min_contact_force"`
	MinNormalLambda float64 `yaml:"min_normal_lambda"`
	ShearRatio      float64 `yaml:"shear_ratio"`
	MaxTorque       float64 `yaml:"max_torque"`
}

type WeightsConfig struct {
	Actuators float64 `yaml:"actuators"`
	Smooth    float64 `yaml:"smooth"`
	Time      float64 `yaml:"time"`
}

type SolverConfig struct {
	MaxOuter      int     `yaml:"max_outer"`
	MaxInner      int     `yaml:"max_inner"`
	ConstraintTol float64 `yaml:"constraint_tol"`
	GradientTol   float64 `yaml:"gradient_tol"`
	Rho           float64 `yaml:"rho"`
}

type MultiStartConfig struct {
	Seeds     int     `yaml:"seeds"`
	FirstSeed uint64  `yaml:"first_seed"`
	Noise     float64 `yaml:"noise"`
	Workers   int     `yaml:"workers"`
}

type SimulateConfig struct {
	Dt        float64 `yaml:"dt"`
	Tolerance float64 `yaml:"tolerance"`
}

func DefaultConfig() *Config {
	opts := ocp.DefaultSomersaultOptions()
	names := []string{"propulsion", "flight", "tucked", "preparation", "landing"}
	phases := make([]PhaseConfig, len(names))
	for i, name := range names {
		phases[i] = PhaseConfig{Name: name, Duration: opts.Durations[i], NShooting: opts.Shootings[i]}
	}
	al := nlp.NewAugmentedLagrangian()
	return &Config{
		Program:    DefaultProgram,
		Model:      DefaultModel,
		Integrator: DefaultIntegrator,
		Phases:     phases,
		SubSteps:   opts.SubSteps,
		TimeSlack:  opts.TimeSlack,
		Limits: LimitsConfig{
			TorqueScale:     opts.TorqueScale,
			Friction:        opts.Friction,
			MinContactForce: opts.MinContactForce,
			MinNormalLambda: opts.MinNormalLambda,
			ShearRatio:      opts.ShearRatio,
			MaxTorque:       10,
		},
		Weights: WeightsConfig{
			Actuators: opts.ActuatorWeight,
			Smooth:    opts.SmoothWeight,
			Time:      opts.TimeWeight,
		},
		Solver: SolverConfig{
			MaxOuter:      al.MaxOuter,
			MaxInner:      al.MaxInner,
			ConstraintTol: al.ConstraintTol,
			GradientTol:   al.GradientTol,
			Rho:           al.Rho,
		},
		MultiStart: MultiStartConfig{
			Seeds:   DefaultSeeds,
			Noise:   DefaultNoise,
			Workers: 4,
		},
		Simulate: SimulateConfig{
			Dt:        DefaultSimulationDt,
			Tolerance: 1e-8,
		},
	}
}

func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}
	return cfg, cfg.Validate()
}

func Save(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

// Validate checks the values a program build would reject late.
func (c *Config) Validate() error {
	switch c.Program {
	case "somersault":
		if len(c.Phases) != 5 {
			return fmt.Errorf("somersault needs 5 phases, got %d: %w", len(c.Phases), dynamo.ErrDimensionMismatch)
		}
	case "pendulum_swing":
		if len(c.Phases) < 1 {
			return fmt.Errorf("pendulum_swing needs one phase: %w", dynamo.ErrDimensionMismatch)
		}
	default:
		return fmt.Errorf("program %q (somersault, pendulum_swing): %w", c.Program, dynamo.ErrUnknownName)
	}
	for i, ph := range c.Phases {
		if ph.Duration <= 0 || ph.NShooting < 1 {
			return fmt.Errorf("phase %d: duration %g, n_shooting %d: %w", i, ph.Duration, ph.NShooting, dynamo.ErrParameterBounds)
		}
	}
	if c.FreeTime && (c.TimeSlack <= 0 || c.TimeSlack >= 1) {
		return fmt.Errorf("time_slack %g outside (0, 1): %w", c.TimeSlack, dynamo.ErrParameterBounds)
	}
	if c.MultiStart.Noise < 0 {
		return fmt.Errorf("multistart noise %g: %w", c.MultiStart.Noise, dynamo.ErrParameterBounds)
	}
	return nil
}

// SomersaultOptions maps the configuration onto the program options.
func (c *Config) SomersaultOptions() ocp.SomersaultOptions {
	opts := ocp.DefaultSomersaultOptions()
	opts.Model = c.Model
	for i := 0; i < len(c.Phases) && i < len(opts.Durations); i++ {
		opts.Durations[i] = c.Phases[i].Duration
		opts.Shootings[i] = c.Phases[i].NShooting
	}
	opts.SubSteps = c.SubSteps
	opts.FreeTime = c.FreeTime
	opts.TimeSlack = c.TimeSlack
	opts.TorqueScale = c.Limits.TorqueScale
	opts.Friction = c.Limits.Friction
	opts.MinContactForce = c.Limits.MinContactForce
	opts.MinNormalLambda = c.Limits.MinNormalLambda
	opts.ShearRatio = c.Limits.ShearRatio
	opts.ActuatorWeight = c.Weights.Actuators
	opts.SmoothWeight = c.Weights.Smooth
	opts.TimeWeight = c.Weights.Time
	return opts
}

// BuildProgram constructs the configured program.
func (c *Config) BuildProgram() (*ocp.Program, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}
	if c.Program == "pendulum_swing" {
		return ocp.PendulumSwing(c.Phases[0].NShooting, c.Phases[0].Duration, c.Limits.MaxTorque)
	}
	return ocp.Somersault(c.SomersaultOptions())
}

// NewSolver returns the configured augmented Lagrangian solver.
func (c *Config) NewSolver(logger *zap.Logger) *nlp.AugmentedLagrangian {
	s := nlp.NewAugmentedLagrangian()
	s.MaxOuter = c.Solver.MaxOuter
	s.MaxInner = c.Solver.MaxInner
	s.ConstraintTol = c.Solver.ConstraintTol
	s.GradientTol = c.Solver.GradientTol
	if c.Solver.Rho > 0 {
		s.Rho = c.Solver.Rho
	}
	s.Logger = logger
	return s
}

// Seeds lists the multi-start seeds.
func (c *Config) Seeds() []uint64 {
	out := make([]uint64, c.MultiStart.Seeds)
	for i := range out {
		out[i] = c.MultiStart.FirstSeed + uint64(i)
	}
	return out
}

package config

import (
	"errors"
	"path/filepath"
	"testing"

	"github.com/san-kum/salto/internal/dynamo"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Program != "somersault" {
		t.Errorf("expected program somersault, got %s", cfg.Program)
	}
	if len(cfg.Phases) != 5 {
		t.Fatalf("expected 5 phases, got %d", len(cfg.Phases))
	}
	if cfg.Phases[2].Name != "tucked" || cfg.Phases[2].NShooting != 30 {
		t.Errorf("unexpected tucked phase %+v", cfg.Phases[2])
	}
	if cfg.MultiStart.Noise != 0.2 {
		t.Errorf("expected noise 0.2, got %f", cfg.MultiStart.Noise)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("default config should validate: %v", err)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   error
	}{
		{"unknown program", func(c *Config) { c.Program = "cartwheel" }, dynamo.ErrUnknownName},
		{"missing phase", func(c *Config) { c.Phases = c.Phases[:4] }, dynamo.ErrDimensionMismatch},
		{"zero duration", func(c *Config) { c.Phases[1].Duration = 0 }, dynamo.ErrParameterBounds},
		{"zero shooting", func(c *Config) { c.Phases[3].NShooting = 0 }, dynamo.ErrParameterBounds},
		{"bad slack", func(c *Config) { c.FreeTime = true; c.TimeSlack = 1.5 }, dynamo.ErrParameterBounds},
		{"negative noise", func(c *Config) { c.MultiStart.Noise = -1 }, dynamo.ErrParameterBounds},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			if err := cfg.Validate(); !errors.Is(err, tt.want) {
				t.Errorf("expected %v, got %v", tt.want, err)
			}
		})
	}
}

func TestSaveLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "salto.yaml")
	cfg := DefaultConfig()
	cfg.FreeTime = true
	cfg.Phases[0].NShooting = 7
	cfg.MultiStart.FirstSeed = 42

	if err := Save(path, cfg); err != nil {
		t.Fatalf("save: %v", err)
	}
	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if !loaded.FreeTime || loaded.Phases[0].NShooting != 7 || loaded.MultiStart.FirstSeed != 42 {
		t.Errorf("round trip lost fields: %+v", loaded)
	}
}

func TestSomersaultOptions(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Phases[4].Duration = 0.35
	cfg.Weights.Time = 2
	opts := cfg.SomersaultOptions()

	if opts.Durations[4] != 0.35 {
		t.Errorf("expected landing duration 0.35, got %f", opts.Durations[4])
	}
	if opts.TimeWeight != 2 {
		t.Errorf("expected time weight 2, got %f", opts.TimeWeight)
	}
	if opts.Friction != 0.5 {
		t.Errorf("expected friction 0.5, got %f", opts.Friction)
	}
}

func TestNewSolver(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Solver.MaxOuter = 3
	cfg.Solver.Rho = 0
	s := cfg.NewSolver(nil)
	if s.MaxOuter != 3 {
		t.Errorf("expected 3 outer iterations, got %d", s.MaxOuter)
	}
	if s.Rho != 10 {
		t.Errorf("zero rho should keep the default, got %f", s.Rho)
	}
}

func TestSeeds(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MultiStart.Seeds = 3
	cfg.MultiStart.FirstSeed = 5
	seeds := cfg.Seeds()
	if len(seeds) != 3 || seeds[0] != 5 || seeds[2] != 7 {
		t.Errorf("unexpected seeds %v", seeds)
	}
}

func TestBuildPendulumProgram(t *testing.T) {
	cfg := GetPreset("pendulum_swing", "default")
	cfg.Phases[0].NShooting = 5
	pr, err := cfg.BuildProgram()
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	if len(pr.Phases) != 1 {
		t.Errorf("expected one phase, got %d", len(pr.Phases))
	}
}

func TestGetPreset(t *testing.T) {
	cfg := GetPreset("somersault", "smoke")
	if cfg == nil {
		t.Fatal("expected preset, got nil")
	}
	if cfg.Phases[0].NShooting != 2 {
		t.Errorf("expected 2 shooting nodes, got %d", cfg.Phases[0].NShooting)
	}

	cfg.Phases[0].NShooting = 99
	if again := GetPreset("somersault", "smoke"); again.Phases[0].NShooting != 2 {
		t.Error("presets must not share state")
	}
}

func TestGetPreset_NotFound(t *testing.T) {
	cfg := GetPreset("somersault", "nonexistent")
	if cfg != nil {
		t.Error("expected nil for nonexistent preset")
	}

	cfg = GetPreset("nonexistent", "smoke")
	if cfg != nil {
		t.Error("expected nil for nonexistent program")
	}
}

func TestListPresets(t *testing.T) {
	presets := ListPresets("somersault")
	if len(presets) != 4 || presets[0] != "coarse" {
		t.Errorf("unexpected presets %v", presets)
	}

	presets = ListPresets("nonexistent")
	if presets != nil {
		t.Error("expected nil for nonexistent program")
	}
}

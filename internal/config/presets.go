package config

import "sort"

// Presets adjust the default configuration per program. Each entry is
// applied to a fresh DefaultConfig so callers can mutate the result.
var Presets = map[string]map[string]func(*Config){
	"somersault": {
		"full": func(c *Config) {},
		"coarse": func(c *Config) {
			for i := range c.Phases {
				c.Phases[i].NShooting = 10
			}
			c.Solver.MaxOuter = 20
			c.MultiStart.Seeds = 8
		},
		"smoke": func(c *Config) {
			for i := range c.Phases {
				c.Phases[i].NShooting = 2
			}
			c.Solver.MaxOuter = 2
			c.Solver.MaxInner = 20
			c.MultiStart.Seeds = 2
			c.MultiStart.Workers = 2
		},
		"free_time": func(c *Config) {
			c.FreeTime = true
			c.Weights.Time = 1
		},
	},
	"pendulum_swing": {
		"default": func(c *Config) {
			c.Program = "pendulum_swing"
			c.Model = "pendulum"
			c.Integrator = "rk4"
			c.Phases = []PhaseConfig{{Name: "swing", Duration: 1, NShooting: 30}}
			c.MultiStart.Seeds = 4
		},
		"weak": func(c *Config) {
			c.Program = "pendulum_swing"
			c.Model = "pendulum"
			c.Integrator = "rk4"
			c.Phases = []PhaseConfig{{Name: "swing", Duration: 2, NShooting: 40}}
			c.Limits.MaxTorque = 4
			c.MultiStart.Seeds = 4
		},
	},
}

func GetPreset(program, preset string) *Config {
	programPresets, ok := Presets[program]
	if !ok {
		return nil
	}
	apply, ok := programPresets[preset]
	if !ok {
		return nil
	}
	cfg := DefaultConfig()
	apply(cfg)
	return cfg
}

func ListPresets(program string) []string {
	programPresets, ok := Presets[program]
	if !ok {
		return nil
	}
	names := make([]string, 0, len(programPresets))
	for name := range programPresets {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

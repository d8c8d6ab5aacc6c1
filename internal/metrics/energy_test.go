package metrics

import (
	"math"
	"testing"

	"github.com/san-kum/salto/internal/dynamo"
	"github.com/san-kum/salto/internal/rbd"
)

func pendulum(t *testing.T) *rbd.Model {
	t.Helper()
	body, err := rbd.Builtin("pendulum")
	if err != nil {
		t.Fatal(err)
	}
	return body
}

func TestMechanicalEnergy(t *testing.T) {
	body := pendulum(t)
	tests := []struct {
		name        string
		theta, omega float64
		expected    float64
	}{
		{"hanging at rest", 0, 0, -9.81 * 0.5},
		{"horizontal", math.Pi / 2, 0, 0},
		{"swinging", 0, 2, -9.81*0.5 + 0.5*(1.0/3.0)*4},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := MechanicalEnergy(body, []float64{tt.theta}, []float64{tt.omega})
			if math.Abs(got-tt.expected) > 1e-9 {
				t.Errorf("expected energy %f, got %f", tt.expected, got)
			}
		})
	}
}

func TestEnergyReset(t *testing.T) {
	m := NewEnergy(pendulum(t), Split)

	m.Observe(dynamo.State{1.0, 1.0}, dynamo.Control{}, 0)
	if m.Value() == 0 {
		t.Error("expected non-zero energy")
	}

	m.Reset()
	if m.Value() != 0 {
		t.Error("expected zero energy after reset")
	}
}

func TestEnergyDrift(t *testing.T) {
	m := NewEnergyDrift(pendulum(t), Split)

	m.Observe(dynamo.State{0, 0}, nil, 0)
	m.Observe(dynamo.State{0, 0}, nil, 0.1)
	if m.Value() != 0 {
		t.Errorf("expected no drift, got %f", m.Value())
	}

	// raising the rod to horizontal at rest loses the whole initial energy
	m.Observe(dynamo.State{math.Pi / 2, 0}, nil, 0.2)
	if math.Abs(m.Value()-1) > 1e-9 {
		t.Errorf("expected drift 1, got %f", m.Value())
	}
}

func TestRangeCompliance(t *testing.T) {
	m := NewRangeCompliance(pendulum(t), Split, 0)
	if m.Value() != 1 {
		t.Error("expected full compliance before any sample")
	}
	m.Observe(dynamo.State{0.5, 0}, nil, 0)
	m.Observe(dynamo.State{4, 0}, nil, 0)
	if m.Value() != 0.5 {
		t.Errorf("expected compliance 0.5, got %f", m.Value())
	}
}

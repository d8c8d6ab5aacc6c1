package ocp

import (
	"fmt"
	"math"

	"github.com/san-kum/salto/internal/actuators"
	"github.com/san-kum/salto/internal/holonomic"
	"github.com/san-kum/salto/internal/rbd"
)

// Key poses of the jumper, full q.
var (
	posePropulsionStart = []float64{-0.2343, -0.2177, -0.3274, 0.2999, 0.4935, 1.7082, -1.9999, 0.1692}
	poseTakeoutStart    = []float64{-0.1233, 0.22, 0.3173, 1.5707, 0.1343, -0.2553, -0.1913, -0.342}
	poseSaltoStart      = []float64{0.135, 0.455, 1.285, 0.481, 1.818, 2.6, -1.658, 0.692}
	poseSaltoEnd        = []float64{0.107, 0.797, 2.892, 0.216, 1.954, 2.599, -2.058, 0.224}
	poseLandingStart    = []float64{0.013, 0.088, 5.804, -0.305, 0, 1.014, -0.97, 0.006}
	poseLandingEnd      = []float64{0.053, 0.091, 6.08, 2.9, -0.17, 0.092, 0.17, 0.20}
)

var (
	tuckIndependent = []int{0, 1, 2, 5, 6, 7}
	tuckDependent   = []int{3, 4}
	jumperActuated  = []int{3, 4, 5, 6, 7}
)

// SomersaultOptions parameterizes the five-phase somersault program:
// propulsion, flight, tucked flight, landing preparation and landing.
type SomersaultOptions struct {
	Model     string
	Durations [5]float64
	Shootings [5]int
	SubSteps  int
	// FreeTime lets each duration move within ±TimeSlack of its value.
	FreeTime  bool
	TimeSlack float64

	TorqueScale     float64
	Friction        float64
	MinContactForce float64
	MinNormalLambda float64
	ShearRatio      float64

	ActuatorWeight float64
	SmoothWeight   float64
	TimeWeight     float64
}

func DefaultSomersaultOptions() SomersaultOptions {
	return SomersaultOptions{
		Model:           "jumper",
		Durations:       [5]float64{0.2, 0.2, 0.3, 0.3, 0.3},
		Shootings:       [5]int{20, 20, 30, 30, 30},
		SubSteps:        1,
		TimeSlack:       0.5,
		TorqueScale:     0.7,
		Friction:        0.5,
		MinContactForce: 0.01,
		MinNormalLambda: 1,
		ShearRatio:      0.01,
		ActuatorWeight:  0.1,
		SmoothWeight:    1e-4,
		TimeWeight:      0,
	}
}

func pick(v []float64, idx []int) []float64 {
	out := make([]float64, len(idx))
	for i, j := range idx {
		out[i] = v[j]
	}
	return out
}

func stateBounds(qMin, qMax, qdMin, qdMax []float64) Bounds {
	return ConstantBounds(append(append([]float64(nil), qMin...), qdMin...), append(append([]float64(nil), qMax...), qdMax...))
}

func poseGuess(from, to []float64) LinearGuess {
	zeros := make([]float64, len(from))
	return LinearGuess{
		First: append(append([]float64(nil), from...), zeros...),
		Last:  append(append([]float64(nil), to...), zeros...),
	}
}

// TuckModel partitions the jumper for the tucked phase: the hand is held
// on the shin, expressed in the thigh frame, with the arm angles
// dependent.
func TuckModel(body *rbd.Model) (*holonomic.Model, error) {
	hm, err := holonomic.Configure(body, []holonomic.Constraint{
		holonomic.SuperimposeMarkers{
			Marker1:      "BELOW_KNEE",
			Marker2:      "CENTER_HAND",
			Axes:         []int{rbd.AxisY, rbd.AxisZ},
			LocalSegment: "Thigh",
		},
	}, tuckIndependent, tuckDependent)
	if err != nil {
		return nil, err
	}
	if err := hm.SetDefaultGuess(pick(poseSaltoStart, tuckDependent)); err != nil {
		return nil, err
	}
	return hm, nil
}

// Somersault builds the five-phase program.
func Somersault(opts SomersaultOptions) (*Program, error) {
	jumper, err := rbd.LoadOrBuiltin(opts.Model)
	if err != nil {
		return nil, err
	}
	contact, err := jumper.WithContacts("Foot_Toe")
	if err != nil {
		return nil, err
	}
	free, err := jumper.WithContacts()
	if err != nil {
		return nil, err
	}
	tuck, err := TuckModel(free)
	if err != nil {
		return nil, fmt.Errorf("tuck model: %w", err)
	}

	acts := actuators.Somersault()
	if err := acts.Validate(); err != nil {
		return nil, err
	}
	tauMin, tauMax := acts.TorqueBounds(opts.TorqueScale)
	qMin, qMax, qdMin, qdMax := jumper.BoundsFromRanges()
	n := jumper.NQ()

	names := []string{"propulsion", "flight", "tucked", "preparation", "landing"}
	kinds := []DynamicsKind{TorqueDrivenContact, TorqueDriven, HolonomicTorqueDriven, TorqueDriven, TorqueDrivenContact}
	bodies := []*rbd.Model{contact, free, free, free, contact}
	phases := make([]*Phase, 5)
	for i := range phases {
		ph := &Phase{
			Name:      names[i],
			Kind:      kinds[i],
			Body:      bodies[i],
			Actuated:  jumperActuated,
			Actuators: acts,
			NShooting: opts.Shootings[i],
			Duration:  opts.Durations[i],
			SubSteps:  opts.SubSteps,
			UBounds:   ConstantBounds(tauMin, tauMax),
			UInit:     ConstantGuess(make([]float64, len(jumperActuated))),
		}
		if opts.FreeTime {
			ph.TimeMin = opts.Durations[i] * (1 - opts.TimeSlack)
			ph.TimeMax = opts.Durations[i] * (1 + opts.TimeSlack)
		}
		if kinds[i] == HolonomicTorqueDriven {
			ph.Holonomic = tuck
			ph.XBounds = stateBounds(pick(qMin, tuckIndependent), pick(qMax, tuckIndependent),
				pick(qdMin, tuckIndependent), pick(qdMax, tuckIndependent))
		} else {
			ph.XBounds = stateBounds(qMin, qMax, qdMin, qdMax)
		}

		ph.Objectives = append(ph.Objectives, MinimizeActuatorTorques{Weight: opts.ActuatorWeight})
		if opts.SmoothWeight > 0 {
			ph.Objectives = append(ph.Objectives, MinimizeTauDerivative{Weight: opts.SmoothWeight})
		}
		if opts.FreeTime && opts.TimeWeight > 0 {
			ph.Objectives = append(ph.Objectives, MinimizeTime{Weight: opts.TimeWeight})
		}
		phases[i] = ph
	}

	propulsion(phases[0], n)
	flight(phases[1])
	tucked(phases[2], opts)
	preparation(phases[3])
	landing(phases[4], n)

	phases[0].XInit = poseGuess(posePropulsionStart, poseTakeoutStart)
	phases[1].XInit = poseGuess(poseTakeoutStart, poseSaltoStart)
	phases[2].XInit = poseGuess(pick(poseSaltoStart, tuckIndependent), pick(poseSaltoEnd, tuckIndependent))
	phases[3].XInit = poseGuess(poseSaltoEnd, poseLandingStart)
	phases[4].XInit = poseGuess(poseLandingStart, poseLandingEnd)

	for _, i := range []int{0, 4} {
		node := Start
		if i == 4 {
			node = End
		}
		phases[i].Constraints = append(phases[i].Constraints,
			TrackMarker{Marker: "Foot_Toe_marker", Axis: rbd.AxisZ, Node: node, Min: 0, Max: 0},
			TrackMarker{Marker: "Foot_Toe_marker", Axis: rbd.AxisY, Node: node, Min: -0.1, Max: 0.1},
			CoMOverToes{Toe: "Foot_Toe_marker", Node: node},
			NonSlipping{Normal: 1, Tangential: 0, Mu: opts.Friction, Node: AllShooting},
			ContactForceMin{Row: 1, Min: opts.MinContactForce, Node: AllShooting},
		)
	}

	return NewProgram(phases, []Transition{
		{Kind: HolonomicPre, PhasePre: 1},
		{Kind: HolonomicPost, PhasePre: 2},
		{Kind: Impact, PhasePre: 3},
	})
}

func propulsion(ph *Phase, n int) {
	b := &ph.XBounds
	for i := 2; i < 7; i++ {
		b.Set(Start, i, posePropulsionStart[i]-0.3, posePropulsionStart[i]+0.3)
	}
	b.SetMax(Start, 2, 0.5)
	b.SetMax(Start, 5, 2)
	b.Set(Start, 6, -2, -0.7)
	for i := 0; i < n; i++ {
		b.Set(Start, n+i, 0, 0)
	}
	b.SetMax(All, n+5, 0)
	for _, node := range []Node{Mid, End} {
		b.Set(node, 2, -math.Pi, math.Pi)
	}
	b.Set(All, 0, -1, 1)
	b.Set(All, 1, -1, 2)
	b.SetMin(All, n+3, 0)
	b.SetMin(End, 3, math.Pi/2)
}

func flight(ph *Phase) {
	b := &ph.XBounds
	b.Set(All, 0, -1, 1)
	b.Set(All, 1, -1, 2)
	b.Set(All, 2, -math.Pi, 1.5*math.Pi)
}

func tucked(ph *Phase, opts SomersaultOptions) {
	b := &ph.XBounds
	b.Set(All, 0, -1, 1)
	b.Set(All, 1, -1, 2)
	b.Set(Start, 2, -math.Pi, 1.5*math.Pi)
	b.Set(Mid, 2, -math.Pi, 2*math.Pi)
	b.Set(End, 2, 0.75*math.Pi, 1.5*math.Pi)
	b.Set(AllShooting, 3, 1.96, 2.6)
	b.Set(AllShooting, 4, -2.3, -1.5)

	ph.Constraints = append(ph.Constraints,
		LambdaShear{Ratio: opts.ShearRatio, Node: AllShooting},
		LambdaNormal{Min: opts.MinNormalLambda, Node: AllShooting},
	)
}

func preparation(ph *Phase) {
	b := &ph.XBounds
	b.Set(All, 0, -1, 1)
	b.Set(Mid, 1, -1, 2)
	b.Set(End, 1, -1, 2)
	b.Set(All, 2, 0.75*math.Pi, 2*math.Pi+0.5)
	b.Set(End, 5, poseLandingStart[5]-1, poseLandingStart[5]+0.5)
	b.Set(End, 6, poseLandingStart[6]-1, poseLandingStart[6]+0.1)
}

func landing(ph *Phase, n int) {
	b := &ph.XBounds
	b.Set(Start, 5, poseLandingStart[5]-1, poseLandingStart[5]+0.5)
	b.Set(Start, 6, poseLandingStart[6]-1, poseLandingStart[6]+0.1)
	b.Set(All, 0, -1, 1)
	b.Set(All, 1, -1, 2)
	b.Set(Start, 2, 0.5*math.Pi, 2*math.Pi+1.66)
	b.Set(Mid, 2, 0.5*math.Pi, 2*math.Pi+1.66)
	for i := 0; i < n; i++ {
		b.Set(End, i, poseLandingEnd[i]-0.2, poseLandingEnd[i]+0.2)
	}
}

// PendulumSwing is a single-phase swing-up of the torque-driven pendulum
// from hanging at rest to upright at rest.
func PendulumSwing(nShooting int, duration, maxTorque float64) (*Program, error) {
	body, err := rbd.Builtin("pendulum")
	if err != nil {
		return nil, err
	}
	xb := ConstantBounds([]float64{-2 * math.Pi, -20}, []float64{2 * math.Pi, 20})
	xb.Set(Start, 0, 0, 0)
	xb.Set(Start, 1, 0, 0)
	xb.Set(End, 0, math.Pi, math.Pi)
	xb.Set(End, 1, 0, 0)
	ph := &Phase{
		Name:       "swing",
		Kind:       TorqueDriven,
		Body:       body,
		Actuated:   []int{0},
		NShooting:  nShooting,
		Duration:   duration,
		SubSteps:   2,
		XBounds:    xb,
		UBounds:    ConstantBounds([]float64{-maxTorque}, []float64{maxTorque}),
		XInit:      LinearGuess{First: []float64{0, 0}, Last: []float64{math.Pi, 0}},
		Objectives: []Objective{MinimizeTau{Weight: 1}},
	}
	return NewProgram([]*Phase{ph}, nil)
}

package holonomic_test

import (
	"math"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"gonum.org/v1/gonum/spatial/r2"

	"github.com/san-kum/salto/internal/dynamo"
	"github.com/san-kum/salto/internal/holonomic"
	"github.com/san-kum/salto/internal/rbd"
)

var _ = Describe("Tucked jumper", func() {
	var model *holonomic.Model
	u := []float64{0.135, 0.455, 1.285, 2.6, -1.658, 0.692}

	BeforeEach(func() {
		body, err := rbd.Builtin("jumper")
		Expect(err).NotTo(HaveOccurred())
		model, err = holonomic.Configure(body, []holonomic.Constraint{
			holonomic.SuperimposeMarkers{
				Marker1:      "BELOW_KNEE",
				Marker2:      "CENTER_HAND",
				Axes:         []int{rbd.AxisY, rbd.AxisZ},
				LocalSegment: "Thigh",
			},
		}, []int{0, 1, 2, 5, 6, 7}, []int{3, 4})
		Expect(err).NotTo(HaveOccurred())
	})

	It("splits eight coordinates into six independent and two dependent", func() {
		Expect(model.NbIndependent()).To(Equal(6))
		Expect(model.NbDependent()).To(Equal(2))
		Expect(model.NbConstraints()).To(Equal(2))
	})

	It("closes the hand on the shin from the mid-range guess", func() {
		v, err := model.ComputeDependent(u)
		Expect(err).NotTo(HaveOccurred())
		for _, r := range model.ConstraintResidual(model.AssembleFullState(u, v)) {
			Expect(r).To(BeNumerically("~", 0, 1e-9))
		}
	})

	It("keeps the multipliers finite along a tucked state", func() {
		udot := []float64{0, 0.5, 6, 0, 0, 0}
		tau := []float64{0, 0, 0, 10, -5, 20, -20, 0}
		lambda, err := model.LagrangeMultipliers(u, udot, tau)
		Expect(err).NotTo(HaveOccurred())
		Expect(lambda).To(HaveLen(2))
		Expect(dynamo.State(lambda).IsValid()).To(BeTrue())
	})

	It("rejects a partition that misses a coordinate", func() {
		body, _ := rbd.Builtin("jumper")
		_, err := holonomic.Configure(body, []holonomic.Constraint{
			holonomic.SuperimposeMarkers{Marker1: "BELOW_KNEE", Marker2: "CENTER_HAND", Axes: []int{rbd.AxisY, rbd.AxisZ}},
		}, []int{0, 1, 2, 5, 6}, []int{3, 4})
		Expect(err).To(MatchError(dynamo.ErrInvalidPartition))
	})
})

var _ = Describe("A-frame at rest", func() {
	DescribeTable("matches the closed-form support reaction",
		func(alpha float64) {
			body, err := rbd.Builtin("aframe")
			Expect(err).NotTo(HaveOccurred())
			model, err := holonomic.Configure(body, []holonomic.Constraint{
				holonomic.PinMarker{Marker: "Foot", Point: r2.Vec{X: 2 * math.Sin(alpha)}, Axes: []int{rbd.AxisY, rbd.AxisZ}},
			}, nil, []int{0, 1})
			Expect(err).NotTo(HaveOccurred())

			q := []float64{-alpha, math.Pi + 2*alpha}
			_, lambda, err := model.LagrangeMultipliersFull(q, []float64{0, 0}, []float64{0, 0})
			Expect(err).NotTo(HaveOccurred())

			g := body.Gravity
			Expect(lambda[0]).To(BeNumerically("~", -0.5*g*math.Tan(alpha), 0.01*0.5*g*math.Tan(alpha)))
			Expect(lambda[1]).To(BeNumerically("~", g, 0.01*g))
		},
		Entry("narrow stance", 0.15),
		Entry("thirty degrees", math.Pi/6),
		Entry("wide stance", 1.0),
	)
})

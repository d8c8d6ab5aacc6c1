package metrics

import (
	"github.com/san-kum/salto/internal/dynamo"
	"github.com/san-kum/salto/internal/rbd"
)

// RangeCompliance is the fraction of samples whose coordinates all stay
// inside the model's joint ranges.
type RangeCompliance struct {
	name       string
	body       *rbd.Model
	expand     Expander
	tolerance  float64
	violations int
	samples    int
}

func NewRangeCompliance(body *rbd.Model, expand Expander, tolerance float64) *RangeCompliance {
	return &RangeCompliance{
		name:      "range_compliance",
		body:      body,
		expand:    expand,
		tolerance: tolerance,
	}
}

func (s *RangeCompliance) Name() string {
	return s.name
}

func (s *RangeCompliance) Observe(x dynamo.State, u dynamo.Control, t float64) {
	s.samples++
	q, _, err := s.expand(x)
	if err != nil {
		s.violations++
		return
	}
	for i, val := range q {
		r := s.body.QRanges[i]
		if val < r[0]-s.tolerance || val > r[1]+s.tolerance {
			s.violations++
			break
		}
	}
}

func (s *RangeCompliance) Value() float64 {
	if s.samples == 0 {
		return 1.0
	}
	return 1.0 - float64(s.violations)/float64(s.samples)
}

func (s *RangeCompliance) Reset() {
	s.violations = 0
	s.samples = 0
}

package viz

import (
	"fmt"

	"github.com/san-kum/salto/internal/dynamo"
	"github.com/san-kum/salto/internal/ocp"
)

// Series selects one quantity of a decoded solution.
type Series int

const (
	SeriesQ Series = iota
	SeriesQdot
	SeriesTau
	SeriesLambda
	SeriesContact
)

var seriesNames = []string{"q", "qdot", "tau", "lambda", "contact"}

func (s Series) String() string {
	if int(s) < len(seriesNames) {
		return seriesNames[s]
	}
	return fmt.Sprintf("series(%d)", int(s))
}

func ParseSeries(name string) (Series, error) {
	for i, n := range seriesNames {
		if n == name {
			return Series(i), nil
		}
	}
	return 0, fmt.Errorf("series %q (q, qdot, tau, lambda, contact): %w", name, dynamo.ErrUnknownName)
}

func (s Series) rows(ph *ocp.PhaseSolution) [][]float64 {
	switch s {
	case SeriesQ:
		return ph.Q
	case SeriesQdot:
		return ph.Qdot
	case SeriesTau:
		return ph.Tau
	case SeriesLambda:
		return ph.Lambda
	case SeriesContact:
		return ph.ContactForces
	}
	return nil
}

// Width is the number of columns of s, taken from the first phase that
// carries it.
func (s Series) Width(sol *ocp.Solution) int {
	for i := range sol.Phases {
		if rows := s.rows(&sol.Phases[i]); len(rows) > 0 {
			return len(rows[0])
		}
	}
	return 0
}

// Extract returns column index of s over every phase that carries it,
// with node times. Torques are stamped at their interval start.
func Extract(sol *ocp.Solution, s Series, index int) (ts, ys []float64, err error) {
	for i := range sol.Phases {
		ph := &sol.Phases[i]
		for k, row := range s.rows(ph) {
			if index < 0 || index >= len(row) {
				return nil, nil, fmt.Errorf("%s[%d] of width %d: %w", s, index, len(row), dynamo.ErrDimensionMismatch)
			}
			ts = append(ts, ph.Time[k])
			ys = append(ys, row[index])
		}
	}
	if len(ys) == 0 {
		return nil, nil, fmt.Errorf("no phase carries %s: %w", s, dynamo.ErrDimensionMismatch)
	}
	return ts, ys, nil
}

// PhaseExtract is Extract restricted to one phase.
func PhaseExtract(ph *ocp.PhaseSolution, s Series, index int) []float64 {
	rows := s.rows(ph)
	out := make([]float64, 0, len(rows))
	for _, row := range rows {
		if index < len(row) {
			out = append(out, row[index])
		}
	}
	return out
}

package storage

import (
	"encoding/csv"
	"encoding/json"
	"io"
	"os"

	"github.com/san-kum/salto/internal/ocp"
)

type ExportPhase struct {
	Name          string      `json:"name"`
	Kind          string      `json:"kind"`
	Start         float64     `json:"start"`
	Duration      float64     `json:"duration"`
	Times         []float64   `json:"times"`
	Q             [][]float64 `json:"q"`
	Qdot          [][]float64 `json:"qdot"`
	Tau           [][]float64 `json:"tau"`
	Lambda        [][]float64 `json:"lambda,omitempty"`
	ContactForces [][]float64 `json:"contact_forces,omitempty"`
}

type ExportData struct {
	Run    RunMetadata   `json:"run"`
	Phases []ExportPhase `json:"phases"`
}

func NewExportData(meta RunMetadata, sol *ocp.Solution) ExportData {
	data := ExportData{Run: meta, Phases: make([]ExportPhase, len(sol.Phases))}
	for i, ph := range sol.Phases {
		data.Phases[i] = ExportPhase{
			Name:          ph.Name,
			Kind:          ph.Kind.String(),
			Start:         ph.Start,
			Duration:      ph.Duration,
			Times:         ph.Time,
			Q:             ph.Q,
			Qdot:          ph.Qdot,
			Tau:           ph.Tau,
			Lambda:        ph.Lambda,
			ContactForces: ph.ContactForces,
		}
	}
	return data
}

func ExportJSON(w io.Writer, meta RunMetadata, sol *ocp.Solution) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(NewExportData(meta, sol))
}

func ExportJSONFile(path string, meta RunMetadata, sol *ocp.Solution) error {
	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()
	return ExportJSON(file, meta, sol)
}

// ExportCSV writes every phase into one table prefixed with the phase name.
// Phases with different column sets share the widest header.
func ExportCSV(w io.Writer, sol *ocp.Solution) error {
	cw := csv.NewWriter(w)
	var header []string
	var body [][]string
	for i := range sol.Phases {
		rows := PhaseRecords(&sol.Phases[i])
		if len(rows[0])+1 > len(header) {
			header = append([]string{"phase"}, rows[0]...)
		}
		for _, row := range rows[1:] {
			body = append(body, append([]string{sol.Phases[i].Name}, row...))
		}
	}
	if header == nil {
		header = []string{"phase"}
	}
	if err := cw.Write(header); err != nil {
		return err
	}
	if err := cw.WriteAll(body); err != nil {
		return err
	}
	return cw.Error()
}

func ExportCSVFile(path string, sol *ocp.Solution) error {
	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()
	return ExportCSV(file, sol)
}

package storage

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"time"

	"github.com/san-kum/salto/internal/config"
	"github.com/san-kum/salto/internal/ocp"
)

type Store struct {
	baseDir string
}

func New(baseDir string) *Store {
	return &Store{baseDir: baseDir}
}

func (s *Store) Init() error {
	return os.MkdirAll(s.baseDir, 0755)
}

type PhaseMetadata struct {
	Name     string  `json:"name"`
	Kind     string  `json:"kind"`
	Start    float64 `json:"start"`
	Duration float64 `json:"duration"`
	Nodes    int     `json:"nodes"`
}

type RunMetadata struct {
	ID             string             `json:"id"`
	Program        string             `json:"program"`
	Model          string             `json:"model"`
	Timestamp      time.Time          `json:"timestamp"`
	Seed           uint64             `json:"seed"`
	Status         string             `json:"status"`
	Cost           float64            `json:"cost"`
	Violation      float64            `json:"violation"`
	Iterations     int                `json:"iterations"`
	Elapsed        float64            `json:"elapsed_seconds"`
	TotalTime      float64            `json:"total_time"`
	Phases         []PhaseMetadata    `json:"phases"`
	Metrics        map[string]float64 `json:"metrics"`
	TermViolations map[string]float64 `json:"term_violations"`
}

// Save writes a run directory holding metadata.json, config.yaml, the raw
// decision vector in x.json, one CSV per phase and lambda.csv when any phase
// carries multipliers.
func (s *Store) Save(cfg *config.Config, seed uint64, sol *ocp.Solution, metrics map[string]float64) (string, error) {
	now := time.Now()
	runID := fmt.Sprintf("%s_%d", cfg.Program, now.UnixNano())
	runDir := filepath.Join(s.baseDir, runID)

	if err := os.MkdirAll(runDir, 0755); err != nil {
		return "", err
	}

	meta := NewMetadata(runID, cfg, seed, sol, metrics)
	meta.Timestamp = now
	if err := writeJSON(filepath.Join(runDir, "metadata.json"), meta); err != nil {
		return "", err
	}
	if err := config.Save(filepath.Join(runDir, "config.yaml"), cfg); err != nil {
		return "", err
	}
	if err := writeJSON(filepath.Join(runDir, "x.json"), sol.X); err != nil {
		return "", err
	}

	for i := range sol.Phases {
		path := filepath.Join(runDir, fmt.Sprintf("phase_%d.csv", i))
		if err := writeCSV(path, PhaseRecords(&sol.Phases[i])); err != nil {
			return "", err
		}
	}
	if rows := LambdaRecords(sol); len(rows) > 1 {
		if err := writeCSV(filepath.Join(runDir, "lambda.csv"), rows); err != nil {
			return "", err
		}
	}

	return runID, nil
}

func NewMetadata(runID string, cfg *config.Config, seed uint64, sol *ocp.Solution, metrics map[string]float64) RunMetadata {
	meta := RunMetadata{
		ID:             runID,
		Program:        cfg.Program,
		Model:          cfg.Model,
		Timestamp:      time.Now(),
		Seed:           seed,
		Status:         sol.Status,
		Cost:           sol.Cost,
		Violation:      sol.Violation,
		Iterations:     sol.Iterations,
		Elapsed:        sol.Elapsed.Seconds(),
		TotalTime:      sol.TotalTime(),
		Metrics:        metrics,
		TermViolations: sol.TermViolations,
	}
	for _, ph := range sol.Phases {
		meta.Phases = append(meta.Phases, PhaseMetadata{
			Name:     ph.Name,
			Kind:     ph.Kind.String(),
			Start:    ph.Start,
			Duration: ph.Duration,
			Nodes:    len(ph.Time),
		})
	}
	return meta
}

func (s *Store) List() ([]RunMetadata, error) {
	entries, err := os.ReadDir(s.baseDir)
	if err != nil {
		if os.IsNotExist(err) {
			return []RunMetadata{}, nil
		}
		return nil, err
	}

	runs := make([]RunMetadata, 0)
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}

		meta, err := s.Load(entry.Name())
		if err != nil {
			continue
		}

		runs = append(runs, *meta)
	}
	sort.Slice(runs, func(i, j int) bool { return runs[i].Timestamp.Before(runs[j].Timestamp) })

	return runs, nil
}

func (s *Store) Load(runID string) (*RunMetadata, error) {
	metaPath := filepath.Join(s.baseDir, runID, "metadata.json")
	data, err := os.ReadFile(metaPath)
	if err != nil {
		return nil, err
	}

	var meta RunMetadata
	if err := json.Unmarshal(data, &meta); err != nil {
		return nil, err
	}

	return &meta, nil
}

func (s *Store) LoadConfig(runID string) (*config.Config, error) {
	return config.Load(filepath.Join(s.baseDir, runID, "config.yaml"))
}

// LoadSolution rebuilds the run's program from config.yaml and decodes the
// stored decision vector, so derived quantities match the current code.
func (s *Store) LoadSolution(runID string) (*ocp.Program, *ocp.Solution, error) {
	meta, err := s.Load(runID)
	if err != nil {
		return nil, nil, err
	}
	cfg, err := s.LoadConfig(runID)
	if err != nil {
		return nil, nil, err
	}
	pr, err := cfg.BuildProgram()
	if err != nil {
		return nil, nil, err
	}

	data, err := os.ReadFile(filepath.Join(s.baseDir, runID, "x.json"))
	if err != nil {
		return nil, nil, err
	}
	var x []float64
	if err := json.Unmarshal(data, &x); err != nil {
		return nil, nil, err
	}
	sol, err := pr.Decode(x)
	if err != nil {
		return nil, nil, fmt.Errorf("run %s: %w", runID, err)
	}
	sol.Cost = meta.Cost
	sol.Violation = meta.Violation
	sol.Iterations = meta.Iterations
	sol.Status = meta.Status
	sol.Elapsed = time.Duration(meta.Elapsed * float64(time.Second))
	sol.TermViolations = meta.TermViolations
	return pr, sol, nil
}

// LoadPhase reads phase_<i>.csv back as a header and numeric rows.
func (s *Store) LoadPhase(runID string, phase int) ([]string, [][]float64, error) {
	return readCSV(filepath.Join(s.baseDir, runID, fmt.Sprintf("phase_%d.csv", phase)))
}

func (s *Store) LoadLambda(runID string) ([]string, [][]float64, error) {
	return readCSV(filepath.Join(s.baseDir, runID, "lambda.csv"))
}

// PhaseRecords lays one phase out as CSV rows: time, q, qdot, the torque
// of the interval starting at the node, then multipliers and contact
// forces when present.
func PhaseRecords(ph *ocp.PhaseSolution) [][]string {
	if len(ph.Time) == 0 {
		return [][]string{{"time"}}
	}
	nq := len(ph.Q[0])
	header := []string{"time"}
	for i := 0; i < nq; i++ {
		header = append(header, fmt.Sprintf("q%d", i))
	}
	for i := 0; i < nq; i++ {
		header = append(header, fmt.Sprintf("qdot%d", i))
	}
	numControls := 0
	if len(ph.Tau) > 0 {
		numControls = len(ph.Tau[0])
	}
	for i := 0; i < numControls; i++ {
		header = append(header, fmt.Sprintf("tau%d", i))
	}
	numLambda := 0
	if len(ph.Lambda) > 0 {
		numLambda = len(ph.Lambda[0])
	}
	for i := 0; i < numLambda; i++ {
		header = append(header, fmt.Sprintf("lambda%d", i))
	}
	numForces := 0
	if len(ph.ContactForces) > 0 {
		numForces = len(ph.ContactForces[0])
	}
	for i := 0; i < numForces; i++ {
		header = append(header, fmt.Sprintf("f%d", i))
	}

	rows := [][]string{header}
	for k, t := range ph.Time {
		row := []string{formatFloat(t)}
		row = appendFloats(row, ph.Q[k])
		row = appendFloats(row, ph.Qdot[k])
		if numControls > 0 {
			row = appendFloats(row, ph.Tau[min(k, len(ph.Tau)-1)])
		}
		if numLambda > 0 {
			row = appendFloats(row, ph.Lambda[k])
		}
		if numForces > 0 {
			row = appendFloats(row, ph.ContactForces[k])
		}
		rows = append(rows, row)
	}
	return rows
}

// LambdaRecords collects the multipliers of every holonomic phase.
func LambdaRecords(sol *ocp.Solution) [][]string {
	rows := [][]string{{"phase", "time"}}
	width := 0
	for _, ph := range sol.Phases {
		for k, l := range ph.Lambda {
			if width == 0 {
				width = len(l)
				for i := 0; i < width; i++ {
					rows[0] = append(rows[0], fmt.Sprintf("lambda%d", i))
				}
			}
			row := []string{ph.Name, formatFloat(ph.Time[k])}
			rows = append(rows, appendFloats(row, l))
		}
	}
	return rows
}

func appendFloats(row []string, vals []float64) []string {
	for _, v := range vals {
		row = append(row, formatFloat(v))
	}
	return row
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', 6, 64)
}

func writeJSON(path string, v any) error {
	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	enc := json.NewEncoder(file)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func writeCSV(path string, rows [][]string) error {
	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	w := csv.NewWriter(file)
	if err := w.WriteAll(rows); err != nil {
		return err
	}
	return w.Error()
}

func readCSV(path string) ([]string, [][]float64, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, nil, err
	}
	defer file.Close()

	r := csv.NewReader(file)
	r.FieldsPerRecord = -1

	records, err := r.ReadAll()
	if err != nil {
		return nil, nil, err
	}
	if len(records) == 0 {
		return nil, [][]float64{}, nil
	}

	header := records[0]
	rows := make([][]float64, 0, len(records)-1)
	for _, record := range records[1:] {
		row := make([]float64, 0, len(record))
		for _, field := range record {
			val, err := strconv.ParseFloat(field, 64)
			if err != nil {
				continue
			}
			row = append(row, val)
		}
		rows = append(rows, row)
	}
	return header, rows, nil
}

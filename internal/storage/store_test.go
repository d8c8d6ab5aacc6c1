package storage

import (
	"bytes"
	"encoding/json"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/san-kum/salto/internal/config"
	"github.com/san-kum/salto/internal/ocp"
)

func testSolution() *ocp.Solution {
	return &ocp.Solution{
		Phases: []ocp.PhaseSolution{
			{
				Name:     "flight",
				Kind:     ocp.TorqueDriven,
				Duration: 0.1,
				Time:     []float64{0, 0.1},
				Q:        [][]float64{{1, 2}, {1.5, 2.5}},
				Qdot:     [][]float64{{0, 0}, {5, 5}},
				Tau:      [][]float64{{0.5}},
			},
			{
				Name:     "tucked",
				Kind:     ocp.HolonomicTorqueDriven,
				Start:    0.1,
				Duration: 0.2,
				Time:     []float64{0.1, 0.2, 0.3},
				Q:        [][]float64{{1, 2}, {1, 2}, {1, 2}},
				Qdot:     [][]float64{{0, 0}, {0, 0}, {0, 0}},
				Tau:      [][]float64{{1}, {2}},
				Lambda:   [][]float64{{3, 4}, {5, 6}, {7, 8}},
			},
		},
		Cost:       1.5,
		Violation:  1e-7,
		Iterations: 12,
		Status:     "Converged",
		Elapsed:    2 * time.Second,
		TermViolations: map[string]float64{
			"flight continuity": 1e-7,
		},
	}
}

func TestStoreSaveLoad(t *testing.T) {
	tmpDir := t.TempDir()
	st := New(tmpDir)

	if err := st.Init(); err != nil {
		t.Fatalf("init failed: %v", err)
	}

	cfg := config.DefaultConfig()
	runID, err := st.Save(cfg, 42, testSolution(), map[string]float64{"effort": 1.5})
	if err != nil {
		t.Fatalf("save failed: %v", err)
	}

	if !strings.HasPrefix(runID, "somersault_") {
		t.Errorf("unexpected run id %q", runID)
	}

	meta, err := st.Load(runID)
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}

	if meta.Seed != 42 {
		t.Errorf("expected seed 42, got %d", meta.Seed)
	}
	if meta.Metrics["effort"] != 1.5 {
		t.Errorf("expected effort 1.5, got %f", meta.Metrics["effort"])
	}
	if len(meta.Phases) != 2 || meta.Phases[1].Kind != "holonomic_torque_driven" {
		t.Errorf("unexpected phases %+v", meta.Phases)
	}
	if math.Abs(meta.TotalTime-0.3) > 1e-12 {
		t.Errorf("expected total time 0.3, got %f", meta.TotalTime)
	}

	header, rows, err := st.LoadPhase(runID, 1)
	if err != nil {
		t.Fatalf("load phase failed: %v", err)
	}
	want := []string{"time", "q0", "q1", "qdot0", "qdot1", "tau0", "lambda0", "lambda1"}
	if strings.Join(header, ",") != strings.Join(want, ",") {
		t.Errorf("expected header %v, got %v", want, header)
	}
	if len(rows) != 3 {
		t.Fatalf("expected 3 rows, got %d", len(rows))
	}
	// the last node reuses the last interval's torque
	if rows[2][5] != 2 || rows[2][7] != 8 {
		t.Errorf("unexpected last row %v", rows[2])
	}

	_, lambda, err := st.LoadLambda(runID)
	if err != nil {
		t.Fatalf("load lambda failed: %v", err)
	}
	if len(lambda) != 3 {
		t.Errorf("expected 3 lambda rows, got %d", len(lambda))
	}

	loaded, err := st.LoadConfig(runID)
	if err != nil {
		t.Fatalf("load config failed: %v", err)
	}
	if loaded.Program != cfg.Program {
		t.Errorf("expected program %s, got %s", cfg.Program, loaded.Program)
	}
}

func TestStoreList(t *testing.T) {
	tmpDir := t.TempDir()
	st := New(tmpDir)

	if err := st.Init(); err != nil {
		t.Fatalf("init failed: %v", err)
	}

	runs, err := st.List()
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}

	if len(runs) != 0 {
		t.Errorf("expected 0 runs, got %d", len(runs))
	}

	if _, err := st.Save(config.DefaultConfig(), 1, testSolution(), nil); err != nil {
		t.Fatalf("save failed: %v", err)
	}

	runs, err = st.List()
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}

	if len(runs) != 1 {
		t.Errorf("expected 1 run, got %d", len(runs))
	}
}

func TestStoreFileStructure(t *testing.T) {
	tmpDir := t.TempDir()
	st := New(tmpDir)

	if err := st.Init(); err != nil {
		t.Fatalf("init failed: %v", err)
	}

	sol := testSolution()
	sol.Phases = sol.Phases[:1]
	runID, err := st.Save(config.DefaultConfig(), 1, sol, nil)
	if err != nil {
		t.Fatalf("save failed: %v", err)
	}

	runDir := filepath.Join(tmpDir, runID)
	for _, name := range []string{"metadata.json", "config.yaml", "x.json", "phase_0.csv"} {
		if _, err := os.Stat(filepath.Join(runDir, name)); os.IsNotExist(err) {
			t.Errorf("%s not created", name)
		}
	}
	if _, err := os.Stat(filepath.Join(runDir, "lambda.csv")); !os.IsNotExist(err) {
		t.Error("lambda.csv should only exist with holonomic phases")
	}
}

func TestStoreLoadSolution(t *testing.T) {
	st := New(t.TempDir())
	if err := st.Init(); err != nil {
		t.Fatalf("init failed: %v", err)
	}

	cfg := config.GetPreset("pendulum_swing", "default")
	cfg.Phases[0].NShooting = 4
	pr, err := cfg.BuildProgram()
	if err != nil {
		t.Fatalf("build failed: %v", err)
	}
	x := make([]float64, pr.NVars())
	for i := range x {
		x[i] = 0.01 * float64(i%7)
	}
	sol, err := pr.Decode(x)
	if err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	sol.Status = "Converged"
	sol.Cost = 2.5

	runID, err := st.Save(cfg, 7, sol, nil)
	if err != nil {
		t.Fatalf("save failed: %v", err)
	}
	_, loaded, err := st.LoadSolution(runID)
	if err != nil {
		t.Fatalf("load solution failed: %v", err)
	}
	if loaded.Status != "Converged" || loaded.Cost != 2.5 {
		t.Errorf("metadata not restored: %s %f", loaded.Status, loaded.Cost)
	}
	if len(loaded.Phases) != 1 || len(loaded.Phases[0].Time) != 5 {
		t.Fatalf("unexpected decoded phases %+v", loaded.Phases)
	}
	for k := range sol.Phases[0].Q {
		if loaded.Phases[0].Q[k][0] != sol.Phases[0].Q[k][0] {
			t.Errorf("node %d: q %f != %f", k, loaded.Phases[0].Q[k][0], sol.Phases[0].Q[k][0])
		}
	}
}

func TestExportJSON(t *testing.T) {
	sol := testSolution()
	meta := NewMetadata("run", config.DefaultConfig(), 3, sol, nil)

	var buf bytes.Buffer
	if err := ExportJSON(&buf, meta, sol); err != nil {
		t.Fatalf("export failed: %v", err)
	}

	var data ExportData
	if err := json.Unmarshal(buf.Bytes(), &data); err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if data.Run.Seed != 3 || len(data.Phases) != 2 {
		t.Errorf("unexpected export %+v", data.Run)
	}
	if data.Phases[0].Lambda != nil {
		t.Error("free phase should not export multipliers")
	}
	if data.Phases[1].Lambda[2][1] != 8 {
		t.Errorf("unexpected lambda %v", data.Phases[1].Lambda)
	}
}

func TestExportCSV(t *testing.T) {
	var buf bytes.Buffer
	if err := ExportCSV(&buf, testSolution()); err != nil {
		t.Fatalf("export failed: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 6 {
		t.Fatalf("expected header and 5 rows, got %d lines", len(lines))
	}
	if !strings.HasPrefix(lines[0], "phase,time,q0") || !strings.HasSuffix(lines[0], "lambda1") {
		t.Errorf("unexpected header %q", lines[0])
	}
	if !strings.HasPrefix(lines[3], "tucked,") {
		t.Errorf("expected tucked row, got %q", lines[3])
	}
}

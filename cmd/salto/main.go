package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/san-kum/salto/internal/config"
	"github.com/san-kum/salto/internal/logging"
	"github.com/san-kum/salto/internal/nlp"
	"github.com/san-kum/salto/internal/ocp"
	"github.com/san-kum/salto/internal/sim"
	"github.com/san-kum/salto/internal/storage"
	"github.com/san-kum/salto/internal/viz"
)

var (
	dataDir    string
	configFile string
	preset     string
	verbose    bool
	theme      string

	program    string
	integrator string
	freeTime   bool
	maxOuter   int
	seed       uint64
	seeds      int
	noise      float64
	workers    int

	series   string
	index    int
	width    int
	height   int
	outDir   string
	output   string
	simDt    float64
	adaptive bool
	tol      float64
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "salto",
		Short: "multi-phase somersault optimal control",
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			if theme != "" {
				viz.SetTheme(theme)
			}
		},
	}

	rootCmd.PersistentFlags().StringVar(&dataDir, "data", ".salto", "data directory")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "debug logging")
	rootCmd.PersistentFlags().StringVar(&theme, "theme", "", "color theme (cyberpunk, retro, minimal)")

	solveCmd := &cobra.Command{
		Use:   "solve",
		Short: "solve the configured program once",
		Args:  cobra.NoArgs,
		RunE:  solveProgram,
	}
	addProgramFlags(solveCmd)
	solveCmd.Flags().Uint64Var(&seed, "seed", 0, "perturb the initial guess with this seed (0 keeps it)")

	multistartCmd := &cobra.Command{
		Use:   "multistart",
		Short: "solve from several perturbed guesses and keep the best",
		Args:  cobra.NoArgs,
		RunE:  multiStart,
	}
	addProgramFlags(multistartCmd)
	multistartCmd.Flags().IntVar(&seeds, "seeds", config.DefaultSeeds, "number of seeds")
	multistartCmd.Flags().Uint64Var(&seed, "first-seed", 0, "first seed")
	multistartCmd.Flags().Float64Var(&noise, "noise", config.DefaultNoise, "guess noise relative to the bound span")
	multistartCmd.Flags().IntVar(&workers, "workers", 4, "concurrent solves")

	checkCmd := &cobra.Command{
		Use:   "check",
		Short: "transcribe the program and report the initial guess",
		Args:  cobra.NoArgs,
		RunE:  checkProgram,
	}
	addProgramFlags(checkCmd)

	lambdaCmd := &cobra.Command{
		Use:   "lambda [run_id]",
		Short: "print the holonomic multipliers of a run",
		Args:  cobra.ExactArgs(1),
		RunE:  printLambda,
	}

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "list stored runs",
		RunE:  listRuns,
	}

	plotCmd := &cobra.Command{
		Use:   "plot [run_id]",
		Short: "plot one coordinate of a run in the terminal",
		Args:  cobra.ExactArgs(1),
		RunE:  plotRun,
	}
	plotCmd.Flags().StringVar(&series, "series", "q", "series (q, qdot, tau, lambda, contact)")
	plotCmd.Flags().IntVar(&index, "index", 0, "coordinate index, -1 plots every coordinate")
	plotCmd.Flags().IntVar(&width, "width", 80, "plot width")
	plotCmd.Flags().IntVar(&height, "height", 10, "plot height")

	graphsCmd := &cobra.Command{
		Use:   "graphs [run_id]",
		Short: "write PNG graphs of a run",
		Args:  cobra.ExactArgs(1),
		RunE:  saveGraphs,
	}
	graphsCmd.Flags().StringVarP(&outDir, "out", "o", "", "output directory (default: the run directory)")

	exportCmd := &cobra.Command{
		Use:   "export [run_id]",
		Short: "print run metadata as JSON",
		Args:  cobra.ExactArgs(1),
		RunE:  exportRun,
	}

	exportJSONCmd := &cobra.Command{
		Use:   "export-json [run_id]",
		Short: "export run trajectories to JSON",
		Args:  cobra.ExactArgs(1),
		RunE:  exportJSON,
	}
	exportJSONCmd.Flags().StringVarP(&output, "output", "o", "", "output file (default: stdout)")

	exportCSVCmd := &cobra.Command{
		Use:   "export-csv [run_id]",
		Short: "export run trajectories to CSV",
		Args:  cobra.ExactArgs(1),
		RunE:  exportCSV,
	}
	exportCSVCmd.Flags().StringVarP(&output, "output", "o", "", "output file (default: stdout)")

	presetsCmd := &cobra.Command{
		Use:   "presets [program]",
		Short: "list available presets",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			programs := []string{"somersault", "pendulum_swing"}
			if len(args) > 0 {
				programs = args
			}
			for _, name := range programs {
				presets := config.ListPresets(name)
				if len(presets) == 0 {
					fmt.Printf("no presets for program: %s\n", name)
					continue
				}
				fmt.Printf("presets for %s:\n", name)
				for _, p := range presets {
					fmt.Printf("  %s\n", p)
				}
			}
			return nil
		},
	}

	viewCmd := &cobra.Command{
		Use:   "view [run_id]",
		Short: "browse a run interactively",
		Args:  cobra.ExactArgs(1),
		RunE:  viewRun,
	}

	simulateCmd := &cobra.Command{
		Use:   "simulate [run_id]",
		Short: "reintegrate a run under its optimised torques",
		Args:  cobra.ExactArgs(1),
		RunE:  simulateRun,
	}
	simulateCmd.Flags().StringVar(&integrator, "integrator", "", "integrator (euler, rk4, rk45; default from the run config)")
	simulateCmd.Flags().Float64Var(&simDt, "dt", 0, "step size (0 follows the shooting grid)")
	simulateCmd.Flags().BoolVar(&adaptive, "adaptive", false, "error-controlled steps")
	simulateCmd.Flags().Float64Var(&tol, "tol", 1e-8, "adaptive tolerance")

	rootCmd.AddCommand(solveCmd, multistartCmd, checkCmd, lambdaCmd, listCmd, plotCmd, graphsCmd,
		exportCmd, exportJSONCmd, exportCSVCmd, presetsCmd, viewCmd, simulateCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func addProgramFlags(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&configFile, "config", "c", "", "config file")
	cmd.Flags().StringVarP(&preset, "preset", "p", "", "named preset")
	cmd.Flags().StringVar(&program, "program", config.DefaultProgram, "program (somersault, pendulum_swing)")
	cmd.Flags().StringVar(&integrator, "integrator", config.DefaultIntegrator, "replay integrator")
	cmd.Flags().BoolVar(&freeTime, "free-time", false, "optimise phase durations")
	cmd.Flags().IntVar(&maxOuter, "max-outer", 0, "outer solver iterations (0 keeps the config)")
}

// resolveConfig layers the preset, the config file and the changed flags,
// in that order.
func resolveConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg := config.DefaultConfig()
	if preset != "" {
		cfg = config.GetPreset(program, preset)
		if cfg == nil {
			return nil, fmt.Errorf("unknown preset: %s (available: %v)", preset, config.ListPresets(program))
		}
	}

	if configFile != "" {
		loaded, err := config.Load(configFile)
		if err != nil {
			return nil, fmt.Errorf("failed to load config: %w", err)
		}
		cfg = loaded
	}

	flags := cmd.Flags()
	if flags.Changed("program") && cfg.Program != program {
		if preset == "" && configFile == "" {
			if p := config.GetPreset(program, "default"); p != nil {
				cfg = p
			}
		}
		cfg.Program = program
	}
	if flags.Changed("integrator") {
		cfg.Integrator = integrator
	}
	if flags.Changed("free-time") {
		cfg.FreeTime = freeTime
	}
	if flags.Changed("max-outer") && maxOuter > 0 {
		cfg.Solver.MaxOuter = maxOuter
	}
	if flags.Lookup("seeds") != nil {
		if flags.Changed("seeds") {
			cfg.MultiStart.Seeds = seeds
		}
		if flags.Changed("first-seed") {
			cfg.MultiStart.FirstSeed = seed
		}
		if flags.Changed("noise") {
			cfg.MultiStart.Noise = noise
		}
		if flags.Changed("workers") {
			cfg.MultiStart.Workers = workers
		}
	}
	return cfg, cfg.Validate()
}

func newLogger() (*zap.Logger, error) {
	return logging.New(verbose)
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt)
}

func solveProgram(cmd *cobra.Command, args []string) error {
	cfg, err := resolveConfig(cmd)
	if err != nil {
		return err
	}
	logger, err := newLogger()
	if err != nil {
		return err
	}
	defer logger.Sync()

	pr, err := cfg.BuildProgram()
	if err != nil {
		return err
	}
	pr.Logger = logger
	if seed != 0 {
		pr.AddNoise(cfg.MultiStart.Noise, seed)
	}

	ctx, cancel := signalContext()
	defer cancel()

	fmt.Printf("solving %s (%d variables)...\n", cfg.Program, pr.NVars())
	sol, err := pr.Solve(ctx, cfg.NewSolver(logger))
	if err != nil {
		return err
	}
	return saveAndReport(ctx, logger, cfg, seed, pr, sol)
}

func multiStart(cmd *cobra.Command, args []string) error {
	cfg, err := resolveConfig(cmd)
	if err != nil {
		return err
	}
	logger, err := newLogger()
	if err != nil {
		return err
	}
	defer logger.Sync()

	ctx, cancel := signalContext()
	defer cancel()

	build := func() (*ocp.Program, error) {
		pr, err := cfg.BuildProgram()
		if err != nil {
			return nil, err
		}
		pr.Logger = logger
		return pr, nil
	}
	newSolver := func() nlp.Solver { return cfg.NewSolver(logger) }

	fmt.Printf("solving %s from %d seeds on %d workers...\n", cfg.Program, cfg.MultiStart.Seeds, cfg.MultiStart.Workers)
	results, err := ocp.MultiStart(ctx, build, newSolver, cfg.Seeds(), cfg.MultiStart.Noise, cfg.MultiStart.Workers)
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "SEED\tSTATUS\tCOST\tVIOLATION\tITER\tTIME")
	for _, r := range results {
		if r.Err != nil {
			fmt.Fprintf(w, "%d\terror: %v\t\t\t\t\n", r.Seed, r.Err)
			continue
		}
		s := r.Solution
		fmt.Fprintf(w, "%d\t%s\t%.6f\t%.2e\t%d\t%v\n", r.Seed, s.Status, s.Cost, s.Violation, s.Iterations, s.Elapsed.Round(time.Millisecond))
	}
	if err := w.Flush(); err != nil {
		return err
	}

	best := ocp.Best(results)
	if best == nil {
		return fmt.Errorf("no seed produced a solution")
	}
	fmt.Printf("\nbest seed: %d\n", best.Seed)

	pr, err := build()
	if err != nil {
		return err
	}
	return saveAndReport(ctx, logger, cfg, best.Seed, pr, best.Solution)
}

// saveAndReport replays the solution for metrics, stores the run and
// prints a summary.
func saveAndReport(ctx context.Context, logger *zap.Logger, cfg *config.Config, seed uint64, pr *ocp.Program, sol *ocp.Solution) error {
	metrics := make(map[string]float64)
	replays, err := sim.ReplayAll(ctx, pr, sol, cfg.Integrator, sim.Config{})
	if err != nil {
		logger.Warn("replay failed", zap.Error(err))
	}
	for _, r := range replays {
		if r == nil {
			continue
		}
		for name, v := range r.Result.Metrics {
			metrics[r.Phase+"."+name] = v
		}
	}

	st := storage.New(dataDir)
	if err := st.Init(); err != nil {
		return err
	}
	runID, err := st.Save(cfg, seed, sol, metrics)
	if err != nil {
		return err
	}

	fmt.Printf("status: %s\n", viz.StatusBadge(viz.CurrentTheme, sol.Status))
	fmt.Printf("run id: %s\n", runID)
	fmt.Printf("cost: %.6f\n", sol.Cost)
	fmt.Printf("violation: %.3e %s\n", sol.Violation, viz.ViolationBar(sol.Violation, cfg.Solver.ConstraintTol, 20))
	fmt.Printf("iterations: %d\n", sol.Iterations)
	fmt.Printf("completed in %v\n", sol.Elapsed)
	fmt.Println("\nphases:")
	for _, ph := range sol.Phases {
		fmt.Printf("  %-12s %-24s %.3fs\n", ph.Name, ph.Kind, ph.Duration)
	}
	return nil
}

func checkProgram(cmd *cobra.Command, args []string) error {
	cfg, err := resolveConfig(cmd)
	if err != nil {
		return err
	}
	pr, err := cfg.BuildProgram()
	if err != nil {
		return err
	}
	prob, err := pr.Transcribe()
	if err != nil {
		return err
	}

	fmt.Printf("program: %s\n", cfg.Program)
	fmt.Printf("variables: %d\n", prob.N)
	fmt.Printf("constraint rows: %d\n\n", prob.NbConstraintRows())

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "PHASE\tDYNAMICS\tNODES\tNX\tNU\tDURATION")
	for _, ph := range pr.Phases {
		dur := fmt.Sprintf("%.3fs", ph.Duration)
		if ph.FreeTime() {
			dur = fmt.Sprintf("[%.3f, %.3f]s", ph.TimeMin, ph.TimeMax)
		}
		fmt.Fprintf(w, "%s\t%s\t%d\t%d\t%d\t%s\n", ph.Name, ph.Kind, ph.Nodes(), ph.NX(), ph.NU(), dur)
	}
	if err := w.Flush(); err != nil {
		return err
	}

	fmt.Printf("\ninitial guess cost: %.6f\n", prob.Cost(prob.X0))
	fmt.Printf("initial guess violation: %.3e\n\n", prob.Violation(prob.X0))

	terms := prob.TermViolations(prob.X0)
	names := make([]string, 0, len(terms))
	for name := range terms {
		names = append(names, name)
	}
	sort.Strings(names)
	w = tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "TERM\tVIOLATION")
	for _, name := range names {
		fmt.Fprintf(w, "%s\t%.3e\n", name, terms[name])
	}
	return w.Flush()
}

func printLambda(cmd *cobra.Command, args []string) error {
	_, sol, err := storage.New(dataDir).LoadSolution(args[0])
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	found := false
	for _, ph := range sol.Phases {
		if len(ph.Lambda) == 0 {
			continue
		}
		found = true
		fmt.Fprint(w, "PHASE\tTIME")
		for i := range ph.Lambda[0] {
			fmt.Fprintf(w, "\tLAMBDA%d", i)
		}
		fmt.Fprintln(w)
		for k, l := range ph.Lambda {
			fmt.Fprintf(w, "%s\t%.4f", ph.Name, ph.Time[k])
			for _, v := range l {
				fmt.Fprintf(w, "\t%.4f", v)
			}
			fmt.Fprintln(w)
		}
	}
	if !found {
		fmt.Println("run has no holonomic phase")
		return nil
	}
	return w.Flush()
}

func listRuns(cmd *cobra.Command, args []string) error {
	st := storage.New(dataDir)
	runs, err := st.List()
	if err != nil {
		return err
	}

	if len(runs) == 0 {
		fmt.Println("no runs found")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tPROGRAM\tTIME\tSEED\tSTATUS\tCOST\tVIOLATION\tDURATION")

	for _, run := range runs {
		fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%s\t%.4f\t%.2e\t%.3fs\n",
			run.ID,
			run.Program,
			run.Timestamp.Format("2006-01-02 15:04:05"),
			run.Seed,
			run.Status,
			run.Cost,
			run.Violation,
			run.TotalTime,
		)
	}

	return w.Flush()
}

func plotRun(cmd *cobra.Command, args []string) error {
	_, sol, err := storage.New(dataDir).LoadSolution(args[0])
	if err != nil {
		return err
	}
	s, err := viz.ParseSeries(series)
	if err != nil {
		return err
	}

	indices := []int{index}
	if index < 0 {
		indices = indices[:0]
		for i := 0; i < s.Width(sol); i++ {
			indices = append(indices, i)
		}
	}

	fmt.Printf("run: %s\n", args[0])
	fmt.Printf("status: %s\n\n", sol.Status)
	for _, i := range indices {
		graph, err := viz.TerminalPlot(sol, s, i, width, height)
		if err != nil {
			return err
		}
		fmt.Println(graph)
		fmt.Println()
	}
	return nil
}

func saveGraphs(cmd *cobra.Command, args []string) error {
	runID := args[0]
	pr, sol, err := storage.New(dataDir).LoadSolution(runID)
	if err != nil {
		return err
	}
	dir := outDir
	if dir == "" {
		dir = filepath.Join(dataDir, runID, "graphs")
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}

	paths, err := viz.SaveAll(sol, dir, pr.Phases[0].Body.DoFNames())
	for _, p := range paths {
		fmt.Printf("wrote %s\n", p)
	}
	return err
}

func exportRun(cmd *cobra.Command, args []string) error {
	st := storage.New(dataDir)
	meta, err := st.Load(args[0])
	if err != nil {
		return err
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(meta)
}

func exportJSON(cmd *cobra.Command, args []string) error {
	st := storage.New(dataDir)
	meta, err := st.Load(args[0])
	if err != nil {
		return err
	}
	_, sol, err := st.LoadSolution(args[0])
	if err != nil {
		return err
	}
	if output == "" {
		return storage.ExportJSON(os.Stdout, *meta, sol)
	}
	if err := storage.ExportJSONFile(output, *meta, sol); err != nil {
		return err
	}
	fmt.Printf("exported to %s\n", output)
	return nil
}

func exportCSV(cmd *cobra.Command, args []string) error {
	_, sol, err := storage.New(dataDir).LoadSolution(args[0])
	if err != nil {
		return err
	}
	if output == "" {
		return storage.ExportCSV(os.Stdout, sol)
	}
	if err := storage.ExportCSVFile(output, sol); err != nil {
		return err
	}
	fmt.Printf("exported to %s\n", output)
	return nil
}

func viewRun(cmd *cobra.Command, args []string) error {
	pr, sol, err := storage.New(dataDir).LoadSolution(args[0])
	if err != nil {
		return err
	}
	return viz.RunBrowser(viz.NewBrowser(sol, pr.Phases[0].Body))
}

func simulateRun(cmd *cobra.Command, args []string) error {
	st := storage.New(dataDir)
	cfg, err := st.LoadConfig(args[0])
	if err != nil {
		return err
	}
	pr, sol, err := st.LoadSolution(args[0])
	if err != nil {
		return err
	}
	integ := cfg.Integrator
	if integrator != "" {
		integ = integrator
	}

	ctx, cancel := signalContext()
	defer cancel()

	simCfg := sim.Config{Dt: simDt, Adaptive: adaptive, Tolerance: tol, ValidateState: true}
	replays, err := sim.ReplayAll(ctx, pr, sol, integ, simCfg)
	for _, r := range replays {
		if r == nil {
			continue
		}
		fmt.Printf("%s: %d steps, %d rejected, final deviation %.3e\n",
			r.Phase, r.Result.StepsTaken, r.Result.Rejected, r.Deviation)
		names := make([]string, 0, len(r.Result.Metrics))
		for name := range r.Result.Metrics {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			fmt.Printf("  %s\n", viz.Metric(name, r.Result.Metrics[name]))
		}
	}
	return err
}

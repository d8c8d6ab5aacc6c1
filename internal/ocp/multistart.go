package ocp

import (
	"context"
	"fmt"
	"sort"

	"go.uber.org/multierr"
	"golang.org/x/sync/errgroup"

	"github.com/san-kum/salto/internal/nlp"
)

// Builder constructs a fresh program. MultiStart calls it once per seed so
// runs never share guesses.
type Builder func() (*Program, error)

// StartResult is the outcome of one seeded run.
type StartResult struct {
	Seed     uint64
	Solution *Solution
	Err      error
}

// MultiStart solves the program from noisy guesses, one per seed, with at
// most workers solves in flight. Results are sorted by seed. The error is
// non-nil only when every run failed or ctx was canceled.
func MultiStart(ctx context.Context, build Builder, newSolver func() nlp.Solver, seeds []uint64, noise float64, workers int) ([]StartResult, error) {
	if workers < 1 {
		workers = 1
	}
	results := make([]StartResult, len(seeds))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i, seed := range seeds {
		g.Go(func() error {
			results[i].Seed = seed
			if err := gctx.Err(); err != nil {
				results[i].Err = err
				return err
			}
			pr, err := build()
			if err != nil {
				results[i].Err = err
				return nil
			}
			pr.AddNoise(noise, seed)
			sol, err := pr.Solve(gctx, newSolver())
			results[i].Solution, results[i].Err = sol, err
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return results, err
	}

	sort.Slice(results, func(a, b int) bool { return results[a].Seed < results[b].Seed })
	var errs error
	for _, r := range results {
		if r.Err == nil {
			return results, nil
		}
		errs = multierr.Append(errs, fmt.Errorf("seed %d: %w", r.Seed, r.Err))
	}
	return results, errs
}

// Best returns the converged run with the lowest cost, or the feasible-most
// run when none converged.
func Best(results []StartResult) *StartResult {
	var best *StartResult
	better := func(a, b *Solution) bool {
		ac, bc := a.Status == nlp.Converged.String(), b.Status == nlp.Converged.String()
		if ac != bc {
			return ac
		}
		if ac {
			return a.Cost < b.Cost
		}
		return a.Violation < b.Violation
	}
	for i := range results {
		r := &results[i]
		if r.Err != nil || r.Solution == nil {
			continue
		}
		if best == nil || better(r.Solution, best.Solution) {
			best = r
		}
	}
	return best
}

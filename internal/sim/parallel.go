package sim

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/multierr"

	"github.com/san-kum/salto/internal/ocp"
)

// ReplayAll reintegrates every phase concurrently. Phases start from their
// own optimised first node, so they are independent.
func ReplayAll(ctx context.Context, pr *ocp.Program, sol *ocp.Solution, integrator string, cfg Config) ([]*PhaseReplay, error) {
	n := len(sol.Phases)
	results := make([]*PhaseReplay, n)
	errs := make([]error, n)

	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()
			results[idx], errs[idx] = Replay(ctx, pr, sol, idx, integrator, cfg)
		}(i)
	}

	wg.Wait()

	var err error
	for i, e := range errs {
		if e != nil {
			err = multierr.Append(err, fmt.Errorf("phase %d: %w", i, e))
		}
	}
	return results, err
}

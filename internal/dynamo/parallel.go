package dynamo

import (
	"runtime"
	"sync"
)

// ParallelFor runs fn over [0, n) in contiguous chunks of at least minChunk
// items, at most one chunk per available processor. It returns once every
// chunk is done.
func ParallelFor(n, minChunk int, fn func(start, end int)) {
	if n <= 0 {
		return
	}
	workers := min(runtime.GOMAXPROCS(0), n/max(minChunk, 1))
	if workers <= 1 {
		fn(0, n)
		return
	}

	chunk := (n + workers - 1) / workers
	var wg sync.WaitGroup
	for start := 0; start < n; start += chunk {
		wg.Add(1)
		go func() {
			defer wg.Done()
			fn(start, min(start+chunk, n))
		}()
	}
	wg.Wait()
}

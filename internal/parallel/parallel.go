// Package parallel runs independent work items on a bounded set of goroutines.
package parallel

import (
	"context"
	"runtime"
	"sync"
	"sync/atomic"
)

// Config controls parallel execution behavior.
type Config struct {
	NumWorkers int // Number of worker goroutines; 1 or less runs sequentially.
}

// DefaultConfig returns one worker per CPU.
func DefaultConfig() Config {
	return Config{NumWorkers: runtime.NumCPU()}
}

// For executes f(i) for i in [0, n).
//
// Items are handed out in increasing order. After the first failure no new
// item is started, and the error of the lowest failing index is returned, so
// the result does not depend on scheduling. Cancelling ctx stops handing out
// items and returns ctx.Err() when no item failed.
func For(ctx context.Context, n int, cfg Config, f func(i int) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if n <= 0 {
		return nil
	}

	errs := make([]error, n)
	var next atomic.Int64
	var failed atomic.Bool

	work := func() {
		for !failed.Load() && ctx.Err() == nil {
			i := int(next.Add(1) - 1)
			if i >= n {
				return
			}
			if err := f(i); err != nil {
				errs[i] = err
				failed.Store(true)
			}
		}
	}

	workers := min(cfg.NumWorkers, n)
	if workers <= 1 {
		work()
	} else {
		var wg sync.WaitGroup
		for range workers {
			wg.Add(1)
			go func() {
				defer wg.Done()
				work()
			}()
		}
		wg.Wait()
	}

	for _, err := range errs {
		if err != nil {
			return err
		}
	}
	if next.Load() < int64(n) {
		return ctx.Err()
	}
	return nil
}

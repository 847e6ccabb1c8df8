package util

import (
	"context"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"
)

// LimitedErrGroup wraps errgroup with a semaphore to limit concurrency
type LimitedErrGroup struct {
	group *errgroup.Group
	ctx   context.Context
	sem   *semaphore.Weighted
}

// NewLimitedErrGroup creates a new error group with limited concurrency
func NewLimitedErrGroup(ctx context.Context, maxConcurrency int) *LimitedErrGroup {
	g, ctx := errgroup.WithContext(ctx)

	// If maxConcurrency is <= 0, use unlimited concurrency (no semaphore)
	var sem *semaphore.Weighted
	if maxConcurrency > 0 {
		sem = semaphore.NewWeighted(int64(maxConcurrency))
	}

	return &LimitedErrGroup{
		group: g,
		ctx:   ctx,
		sem:   sem,
	}
}

// Go runs the given function in a new goroutine, respecting concurrency limits
func (g *LimitedErrGroup) Go(f func() error) {
	g.group.Go(func() error {
		// If no semaphore was created (unlimited concurrency), just run the function
		if g.sem == nil {
			return f()
		}

		// Acquire semaphore (blocks if max concurrency reached)
		if err := g.sem.Acquire(g.ctx, 1); err != nil {
			return err
		}

		// Release semaphore when done
		defer g.sem.Release(1)

		// Run the function
		return f()
	})
}

// Wait waits for all goroutines to complete and returns the first error
func (g *LimitedErrGroup) Wait() error {
	return g.group.Wait()
}

package worker

import (
	"context"
	"sync"
)

// Runner is a background loop that returns once ctx is cancelled.
type Runner interface {
	Run(ctx context.Context)
}

// Group tracks ticker-driven workers so shutdown can wait for an in-flight
// pass to return before shared resources are closed.
type Group struct {
	wg sync.WaitGroup
}

// Go starts r in its own goroutine.
func (g *Group) Go(ctx context.Context, r Runner) {
	g.wg.Add(1)
	go func() {
		defer g.wg.Done()
		r.Run(ctx)
	}()
}

// Wait blocks until every started runner has returned.
func (g *Group) Wait() {
	g.wg.Wait()
}

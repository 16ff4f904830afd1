// Package worker provides a parallel tile task worker pool.
package worker

import (
	"context"
	"sync"
	"time"

	"github.com/MeKo-Tech/tilebank/internal/tile"
)

// Handler processes a single tile. It is called concurrently from every
// worker goroutine.
type Handler func(ctx context.Context, coords tile.Coords) error

// Result represents the outcome of a single tile task.
type Result struct {
	Coords  tile.Coords
	Err     error
	Elapsed time.Duration
}

// ProgressFunc is called after each task completes.
type ProgressFunc func(completed, total, failed int)

// Stats summarizes a pool run.
type Stats struct {
	Completed int
	Failed    int
}

// Config configures the worker pool.
type Config struct {
	Workers    int
	Handler    Handler
	OnProgress ProgressFunc
	// OnResult receives every failed task, called from a single
	// goroutine. Optional.
	OnResult func(Result)
}

// Pool manages parallel tile processing.
type Pool struct {
	workers    int
	handler    Handler
	onProgress ProgressFunc
	onResult   func(Result)
}

// New creates a new worker pool.
func New(cfg Config) *Pool {
	workers := cfg.Workers
	if workers <= 0 {
		workers = 1
	}

	return &Pool{
		workers:    workers,
		handler:    cfg.Handler,
		onProgress: cfg.OnProgress,
		onResult:   cfg.OnResult,
	}
}

// Run drains coords and processes every tile with the configured number of
// workers. The channel may carry far more tiles than fit in memory; results
// are folded into counters as they arrive. Run blocks until the channel is
// closed and all in-flight tasks finished, or the context is cancelled.
// total is used only for progress reporting.
func (p *Pool) Run(ctx context.Context, total int, coords <-chan tile.Coords) Stats {
	resultCh := make(chan Result, p.workers)

	// Start workers
	var wg sync.WaitGroup
	for i := 0; i < p.workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			p.worker(ctx, coords, resultCh)
		}()
	}

	// Fold results in a separate goroutine
	var stats Stats
	done := make(chan struct{})

	go func() {
		defer close(done)
		for result := range resultCh {
			stats.Completed++
			if result.Err != nil {
				stats.Failed++
				if p.onResult != nil {
					p.onResult(result)
				}
			}

			if p.onProgress != nil {
				p.onProgress(stats.Completed, total, stats.Failed)
			}
		}
	}()

	// Wait for workers to finish
	wg.Wait()
	close(resultCh)

	// Wait for result folding to finish
	<-done

	return stats
}

// worker processes tiles from the coords channel and sends results to the
// result channel. Cancellation stops intake without draining the channel;
// the done channel is checked with priority because select picks randomly
// when both cases are ready.
func (p *Pool) worker(ctx context.Context, coords <-chan tile.Coords, results chan<- Result) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		select {
		case <-ctx.Done():
			return
		case c, ok := <-coords:
			if !ok || ctx.Err() != nil {
				return
			}

			start := time.Now()
			err := p.handler(ctx, c)
			elapsed := time.Since(start)

			results <- Result{
				Coords:  c,
				Err:     err,
				Elapsed: elapsed,
			}
		}
	}
}

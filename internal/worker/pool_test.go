package worker

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/MeKo-Tech/tilebank/internal/tile"
)

func feed(coords ...tile.Coords) <-chan tile.Coords {
	ch := make(chan tile.Coords, len(coords))
	for _, c := range coords {
		ch <- c
	}
	close(ch)
	return ch
}

func TestPool_BasicExecution(t *testing.T) {
	var calls atomic.Int32

	pool := New(Config{
		Workers: 2,
		Handler: func(ctx context.Context, c tile.Coords) error {
			calls.Add(1)
			time.Sleep(10 * time.Millisecond)
			return nil
		},
	})

	stats := pool.Run(context.Background(), 3, feed(
		tile.Coords{Z: 13, X: 4297, Y: 2754},
		tile.Coords{Z: 13, X: 4297, Y: 2755},
		tile.Coords{Z: 13, X: 4298, Y: 2754},
	))

	if stats.Completed != 3 {
		t.Errorf("Expected 3 completed, got %d", stats.Completed)
	}
	if stats.Failed != 0 {
		t.Errorf("Expected 0 failed, got %d", stats.Failed)
	}
	if calls.Load() != 3 {
		t.Errorf("Expected 3 handler calls, got %d", calls.Load())
	}
}

func TestPool_Parallelism(t *testing.T) {
	pool := New(Config{
		Workers: 4,
		Handler: func(ctx context.Context, c tile.Coords) error {
			time.Sleep(50 * time.Millisecond)
			return nil
		},
	})

	coords := make([]tile.Coords, 8)
	for i := range coords {
		coords[i] = tile.Coords{Z: 13, X: 4297 + i, Y: 2754}
	}

	start := time.Now()
	stats := pool.Run(context.Background(), len(coords), feed(coords...))
	elapsed := time.Since(start)

	// With 4 workers and 8 tasks at 50ms each, should take ~100ms (2 batches)
	if elapsed > 200*time.Millisecond {
		t.Errorf("Expected parallel execution in ~100ms, took %v", elapsed)
	}
	if stats.Completed != len(coords) {
		t.Errorf("Expected %d completed, got %d", len(coords), stats.Completed)
	}
}

func TestPool_ErrorHandling(t *testing.T) {
	failTile := tile.Coords{Z: 13, X: 4297, Y: 2755}

	var failures []Result
	pool := New(Config{
		Workers: 2,
		Handler: func(ctx context.Context, c tile.Coords) error {
			if c == failTile {
				return errors.New("simulated failure")
			}
			return nil
		},
		OnResult: func(r Result) {
			failures = append(failures, r)
		},
	})

	stats := pool.Run(context.Background(), 3, feed(
		tile.Coords{Z: 13, X: 4297, Y: 2754},
		failTile,
		tile.Coords{Z: 13, X: 4298, Y: 2754},
	))

	if stats.Completed != 3 {
		t.Errorf("Expected 3 completed, got %d", stats.Completed)
	}
	if stats.Failed != 1 {
		t.Errorf("Expected 1 failed, got %d", stats.Failed)
	}
	if len(failures) != 1 || failures[0].Coords != failTile {
		t.Errorf("Expected failure result for %s, got %v", failTile, failures)
	}
}

func TestPool_Cancellation(t *testing.T) {
	pool := New(Config{
		Workers: 2,
		Handler: func(ctx context.Context, c tile.Coords) error {
			time.Sleep(100 * time.Millisecond)
			return nil
		},
	})

	coords := make([]tile.Coords, 10)
	for i := range coords {
		coords[i] = tile.Coords{Z: 13, X: 4297 + i, Y: 2754}
	}

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(50 * time.Millisecond)
		cancel()
	}()

	start := time.Now()
	stats := pool.Run(ctx, len(coords), feed(coords...))
	elapsed := time.Since(start)

	// Workers stop picking up tiles after cancellation
	if elapsed > 300*time.Millisecond {
		t.Errorf("Expected early cancellation, took %v", elapsed)
	}
	if stats.Completed >= len(coords) {
		t.Errorf("Expected partial completion, got %d/%d", stats.Completed, len(coords))
	}
}

func TestPool_CancelledBeforeRun(t *testing.T) {
	// A full buffered channel plus a done context makes both select cases
	// ready; the priority check must keep workers from taking tiles.
	var calls atomic.Int32
	pool := New(Config{
		Workers: 2,
		Handler: func(ctx context.Context, c tile.Coords) error {
			calls.Add(1)
			return nil
		},
	})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	coords := make([]tile.Coords, 10)
	for i := range coords {
		coords[i] = tile.Coords{Z: 13, X: 4297 + i, Y: 2754}
	}
	stats := pool.Run(ctx, len(coords), feed(coords...))

	if calls.Load() != 0 {
		t.Errorf("Expected no handler calls with a cancelled context, got %d", calls.Load())
	}
	if stats.Completed != 0 {
		t.Errorf("Expected 0 completed, got %d", stats.Completed)
	}
}

func TestPool_ProgressCallback(t *testing.T) {
	var progressCalls atomic.Int32
	var lastCompleted, lastTotal int

	pool := New(Config{
		Workers: 2,
		Handler: func(ctx context.Context, c tile.Coords) error {
			time.Sleep(10 * time.Millisecond)
			return nil
		},
		OnProgress: func(completed, total, failed int) {
			progressCalls.Add(1)
			lastCompleted = completed
			lastTotal = total
		},
	})

	pool.Run(context.Background(), 3, feed(
		tile.Coords{Z: 13, X: 4297, Y: 2754},
		tile.Coords{Z: 13, X: 4297, Y: 2755},
		tile.Coords{Z: 13, X: 4298, Y: 2754},
	))

	if progressCalls.Load() == 0 {
		t.Error("Expected progress callbacks, got none")
	}
	if lastCompleted != 3 {
		t.Errorf("Expected lastCompleted=3, got %d", lastCompleted)
	}
	if lastTotal != 3 {
		t.Errorf("Expected lastTotal=3, got %d", lastTotal)
	}
}

func TestPool_EmptyFeed(t *testing.T) {
	var calls atomic.Int32
	pool := New(Config{
		Workers: 2,
		Handler: func(ctx context.Context, c tile.Coords) error {
			calls.Add(1)
			return nil
		},
	})

	stats := pool.Run(context.Background(), 0, feed())

	if stats.Completed != 0 {
		t.Errorf("Expected 0 completed for empty feed, got %d", stats.Completed)
	}
	if calls.Load() != 0 {
		t.Errorf("Expected 0 handler calls for empty feed, got %d", calls.Load())
	}
}

func TestPool_StreamingFeed(t *testing.T) {
	// The feed channel is produced concurrently, like a tile range walk.
	ch := make(chan tile.Coords)
	go func() {
		defer close(ch)
		r := tile.Range{Z: 4, MinX: 0, MaxX: 3, MinY: 0, MaxY: 3}
		r.ForEach(func(c tile.Coords) bool {
			ch <- c
			return true
		})
	}()

	var calls atomic.Int32
	pool := New(Config{
		Workers: 3,
		Handler: func(ctx context.Context, c tile.Coords) error {
			calls.Add(1)
			return nil
		},
	})

	stats := pool.Run(context.Background(), 16, ch)

	if stats.Completed != 16 {
		t.Errorf("Expected 16 completed, got %d", stats.Completed)
	}
	if calls.Load() != 16 {
		t.Errorf("Expected 16 handler calls, got %d", calls.Load())
	}
}

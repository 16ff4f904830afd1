// Package seed pre-populates and expires cache stores from the seed.json
// and cleanup.json descriptors. Tiles are enumerated zoom-major from the
// declared bounding boxes and processed by a bounded worker pool.
package seed

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"runtime"
	"sort"
	"time"

	"github.com/MeKo-Tech/tilebank/internal/cache"
	"github.com/MeKo-Tech/tilebank/internal/config"
	"github.com/MeKo-Tech/tilebank/internal/store"
	"github.com/MeKo-Tech/tilebank/internal/store/xyz"
	"github.com/MeKo-Tech/tilebank/internal/tile"
	"github.com/MeKo-Tech/tilebank/internal/worker"
)

var tileLeafPattern = regexp.MustCompile(`^\d+\.(png|jpe?g|webp|gif|pbf)$`)

// Runner executes seed and cleanup runs against the data directory.
type Runner struct {
	layout      config.Layout
	postgresURI string
	logger      *slog.Logger

	// Workers overrides per-entry concurrency when positive.
	Workers int
	// ShowProgress enables the interactive progress line on stderr.
	ShowProgress bool
	// now is the clock for age cutoffs, swappable in tests.
	now func() time.Time
}

// NewRunner creates a Runner for the given data directory layout.
func NewRunner(layout config.Layout, postgresURI string, logger *slog.Logger) *Runner {
	return &Runner{
		layout:      layout,
		postgresURI: postgresURI,
		logger:      logger,
		now:         time.Now,
	}
}

// SeedAll runs every descriptor in seed.json. One failing id does not
// abort the rest.
func (r *Runner) SeedAll(ctx context.Context, seeds config.SeedFile) error {
	var firstErr error
	for _, id := range sortedKeys(seeds) {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err := r.Seed(ctx, id, seeds[id]); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("seed %s: %w", id, err)
		}
	}
	return firstErr
}

// CleanupAll runs every descriptor in cleanup.json.
func (r *Runner) CleanupAll(ctx context.Context, cleanups config.CleanupFile) error {
	var firstErr error
	for _, id := range sortedKeys(cleanups) {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err := r.Cleanup(ctx, id, cleanups[id]); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("cleanup %s: %w", id, err)
		}
	}
	return firstErr
}

// Seed fills the store for one descriptor. Metadata is merged before the
// first tile task; a failing tile is logged and skipped, never fatal for
// the run.
func (r *Runner) Seed(ctx context.Context, id string, entry config.SeedEntry) error {
	desc := r.descriptor(id, entry.Backend, entry.TimeoutMS)
	desc.StoreMD5 = entry.StoreMD5
	desc.StoreTransparent = entry.StoreTransparent
	desc.SourceURL = entry.URL

	st, err := config.OpenStore(ctx, desc, r.postgresURI)
	if err != nil {
		return err
	}
	defer st.Close()

	if len(entry.MetadataAdds) > 0 {
		if err := st.PutMetadata(ctx, entry.MetadataAdds); err != nil {
			return fmt.Errorf("merge metadata: %w", err)
		}
	}

	fetcher := cache.New(cache.Config{
		Timeout: time.Duration(entry.TimeoutMS) * time.Millisecond,
		MaxTry:  entry.MaxTry,
		Logger:  r.logger,
	})

	cutoff, hasCutoff := int64(0), false
	md5Mode := false
	if entry.RefreshBefore != nil {
		cutoff, hasCutoff = entry.RefreshBefore.Cutoff(r.now())
		md5Mode = entry.RefreshBefore.MD5
	}

	handler := func(ctx context.Context, c tile.Coords) error {
		need, err := r.needDownload(ctx, st, fetcher, entry.URL, c, md5Mode, cutoff, hasCutoff)
		if err != nil || !need {
			return err
		}

		data, err := fetcher.FetchTile(ctx, cache.TileURL(entry.URL, c))
		if errors.Is(err, cache.ErrUpstreamEmpty) {
			return nil
		}
		if err != nil {
			return err
		}
		return st.PutTile(ctx, c, data)
	}

	stats := r.run(ctx, id, "seed", entry.BBoxs, entry.Zooms, entry.Concurrency, handler)
	r.logger.Info("seed finished", "id", id,
		"completed", stats.Completed, "failed", stats.Failed)
	return nil
}

// needDownload applies the refresh policy for one tile.
func (r *Runner) needDownload(ctx context.Context, st store.Store, fetcher *cache.Fetcher,
	url string, c tile.Coords, md5Mode bool, cutoff int64, hasCutoff bool) (bool, error) {
	switch {
	case md5Mode:
		probe, err := fetcher.ProbeMD5(ctx, url, c)
		if errors.Is(err, cache.ErrUpstreamEmpty) {
			// Upstream has no tile; downloading would fail the same way.
			return false, nil
		}
		if err != nil {
			return false, err
		}
		hash, err := st.TileMD5(ctx, c)
		if errors.Is(err, store.ErrMD5NotFound) {
			return true, nil
		}
		if err != nil {
			return false, err
		}
		return hash != probe, nil

	case hasCutoff:
		created, err := st.TileCreated(ctx, c)
		if errors.Is(err, store.ErrCreatedNotFound) {
			return true, nil
		}
		if err != nil {
			return false, err
		}
		return created < cutoff, nil

	default:
		return true, nil
	}
}

// Cleanup deletes tiles older than the descriptor cutoff. Without a
// cutoff every tile in the declared ranges is deleted. Empty directories
// are pruned afterwards on the XYZ backend.
func (r *Runner) Cleanup(ctx context.Context, id string, entry config.CleanupEntry) error {
	desc := r.descriptor(id, entry.Backend, entry.TimeoutMS)

	st, err := config.OpenStore(ctx, desc, r.postgresURI)
	if err != nil {
		return err
	}
	defer st.Close()

	cutoff, hasCutoff := int64(0), false
	if entry.CleanupBefore != nil {
		cutoff, hasCutoff = entry.CleanupBefore.Cutoff(r.now())
	}

	handler := func(ctx context.Context, c tile.Coords) error {
		if hasCutoff {
			created, err := st.TileCreated(ctx, c)
			if errors.Is(err, store.ErrCreatedNotFound) {
				// Unknown age, leave the tile alone.
				return nil
			}
			if err != nil {
				return err
			}
			if created >= cutoff {
				return nil
			}
		}
		return st.DeleteTile(ctx, c)
	}

	stats := r.run(ctx, id, "cleanup", entry.BBoxs, entry.Zooms, entry.Concurrency, handler)
	r.logger.Info("cleanup finished", "id", id,
		"completed", stats.Completed, "failed", stats.Failed)

	if desc.Kind == store.KindXYZ {
		if err := xyz.RemoveEmptyFolders(desc.Location, tileLeafPattern); err != nil {
			r.logger.Warn("pruning empty folders", "id", id, "error", err)
		}
	}
	return nil
}

// run enumerates the declared ranges into a worker pool. Cancellation
// stops the producer and intake; in-flight tiles finish.
func (r *Runner) run(ctx context.Context, id, action string, bboxs []tile.BBox, zooms []int,
	concurrency int, handler worker.Handler) worker.Stats {
	workers := r.Workers
	if workers <= 0 {
		workers = concurrency
	}
	if workers <= 0 {
		workers = runtime.NumCPU()
	}

	total := 0
	var ranges []tile.Range
	for _, bbox := range bboxs {
		rs := tile.RangesFromBBox(bbox, zooms, tile.SchemeXYZ)
		for _, rng := range rs {
			total += rng.Count()
		}
		ranges = append(ranges, rs...)
	}

	r.logger.Info("run starting", "id", id, "action", action,
		"tiles", total, "workers", workers)

	coords := make(chan tile.Coords)
	go func() {
		defer close(coords)
		for _, rng := range ranges {
			rng.ForEach(func(c tile.Coords) bool {
				select {
				case coords <- c:
					return true
				case <-ctx.Done():
					return false
				}
			})
			if ctx.Err() != nil {
				return
			}
		}
	}()

	progress := worker.NewProgress(total, r.ShowProgress)
	pool := worker.New(worker.Config{
		Workers:    workers,
		Handler:    handler,
		OnProgress: progress.Callback(),
		OnResult: func(res worker.Result) {
			r.logger.Warn("tile task failed", "id", id, "action", action,
				"tile", res.Coords.String(), "error", res.Err)
		},
	})

	stats := pool.Run(ctx, total, coords)
	progress.Done()
	r.logger.Info(progress.Summary())
	return stats
}

// descriptor builds the writable cache descriptor for a run id.
func (r *Runner) descriptor(id, backend string, timeoutMS int64) store.Descriptor {
	entry := config.CacheEntry{
		ID:        id,
		Backend:   backend,
		TimeoutMS: timeoutMS,
	}
	return entry.Descriptor(r.layout)
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

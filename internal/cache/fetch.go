// Package cache implements the read-through tile path: a miss on the
// local store is filled from the upstream tile URL and optionally written
// back through the store contract.
package cache

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/MeKo-Tech/tilebank/internal/store"
	"github.com/MeKo-Tech/tilebank/internal/tile"
)

// userAgent identifies the cache against upstream tile servers.
const userAgent = "Tile Server"

var (
	// ErrUpstreamEmpty reports an upstream 204 or 404: the tile does not
	// exist there and must not be cached or retried.
	ErrUpstreamEmpty = errors.New("upstream has no tile")

	// ErrNoSource reports a cache miss on a store without an upstream.
	ErrNoSource = errors.New("no upstream source configured")
)

// StatusError is a retryable upstream failure.
type StatusError struct {
	URL    string
	Status int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("upstream %s returned status %d", e.URL, e.Status)
}

// Fetcher resolves tiles through a store with upstream fill-in.
type Fetcher struct {
	client *http.Client
	logger *slog.Logger
	maxTry int
}

// Config configures a Fetcher.
type Config struct {
	// Timeout bounds a single upstream request (default 30s).
	Timeout time.Duration
	// MaxTry is the attempt budget for transient upstream failures
	// (default 3).
	MaxTry int
	Logger *slog.Logger
}

// New creates a Fetcher.
func New(cfg Config) *Fetcher {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.MaxTry <= 0 {
		cfg.MaxTry = 3
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Fetcher{
		client: &http.Client{Timeout: cfg.Timeout},
		logger: cfg.Logger,
		maxTry: cfg.MaxTry,
	}
}

// TileURL substitutes {z}, {x} and {y} in an upstream template.
func TileURL(template string, c tile.Coords) string {
	r := strings.NewReplacer(
		"{z}", fmt.Sprintf("%d", c.Z),
		"{x}", fmt.Sprintf("%d", c.X),
		"{y}", fmt.Sprintf("%d", c.Y),
	)
	return r.Replace(template)
}

// MD5URL derives the hash probe URL from a tile template by prefixing the
// coordinate segment. The probe answers with the tile MD5 in its ETag.
func MD5URL(template string, c tile.Coords) string {
	return TileURL(strings.Replace(template, "{z}/{x}/{y}", "md5/{z}/{x}/{y}", 1), c)
}

// GetOrFetch returns the tile from the store, filling a miss from the
// store's upstream URL. Upstream bytes are persisted when the descriptor
// asks for it; the returned bytes are always the raw payload.
func (f *Fetcher) GetOrFetch(ctx context.Context, st store.Store, c tile.Coords) ([]byte, error) {
	data, err := st.GetTile(ctx, c)
	if err == nil {
		return data, nil
	}
	if !errors.Is(err, store.ErrTileNotFound) {
		return nil, err
	}

	desc := st.Descriptor()
	if desc.SourceURL == "" {
		return nil, store.ErrTileNotFound
	}

	data, err = f.FetchTile(ctx, TileURL(desc.SourceURL, c))
	if err != nil {
		if errors.Is(err, ErrUpstreamEmpty) {
			return nil, store.ErrTileNotFound
		}
		return nil, err
	}

	if desc.StoreCache && desc.Writable {
		if err := st.PutTile(ctx, c, data); err != nil {
			// Serving the fetched bytes beats failing the request; the
			// next miss will retry the write.
			f.logger.Warn("failed to cache fetched tile", "tile", c.String(), "error", err)
		}
	}

	return data, nil
}

// FetchTile downloads one tile with the retry budget. A 204 or 404 answer
// is terminal; other non-2xx statuses and transport errors are retried.
func (f *Fetcher) FetchTile(ctx context.Context, url string) ([]byte, error) {
	var data []byte
	err := Retry(f.logger, f.maxTry, 0, func() error {
		var err error
		data, err = f.fetchOnce(ctx, url)
		if errors.Is(err, ErrUpstreamEmpty) {
			return Permanent(err)
		}
		return err
	})
	return data, err
}

func (f *Fetcher) fetchOnce(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNoContent || resp.StatusCode == http.StatusNotFound:
		return nil, fmt.Errorf("%w: %s", ErrUpstreamEmpty, url)
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		return nil, &StatusError{URL: url, Status: resp.StatusCode}
	}

	return io.ReadAll(resp.Body)
}

// ProbeMD5 requests the upstream hash probe and returns the ETag value
// with surrounding quotes stripped. An empty probe answer reports
// ErrUpstreamEmpty.
func (f *Fetcher) ProbeMD5(ctx context.Context, template string, c tile.Coords) (string, error) {
	url := MD5URL(template, c)

	var etag string
	err := Retry(f.logger, f.maxTry, 0, func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return Permanent(err)
		}
		req.Header.Set("User-Agent", userAgent)

		resp, err := f.client.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()
		_, _ = io.Copy(io.Discard, resp.Body)

		switch {
		case resp.StatusCode == http.StatusNoContent || resp.StatusCode == http.StatusNotFound:
			return Permanent(fmt.Errorf("%w: %s", ErrUpstreamEmpty, url))
		case resp.StatusCode < 200 || resp.StatusCode > 299:
			return &StatusError{URL: url, Status: resp.StatusCode}
		}

		etag = strings.Trim(resp.Header.Get("ETag"), `"`)
		return nil
	})
	return etag, err
}

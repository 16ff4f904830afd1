package geojson

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/MeKo-Tech/tilebank/internal/fslock"
	"github.com/MeKo-Tech/tilebank/internal/store"
)

// ErrNotFound reports an absent document with no upstream to fetch from.
var ErrNotFound = errors.New("geojson not found")

// Store is a read-through cache for one GeoJSON document. The on-disk
// discipline matches the tile stores: sidecar lock plus temp-file rename,
// so readers never observe a partial document.
type Store struct {
	path   string
	url    string
	client *http.Client
	logger *slog.Logger
}

// NewStore creates a GeoJSON store caching at path, optionally filled
// from url.
func NewStore(path, url string, timeout time.Duration, logger *slog.Logger) *Store {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Store{
		path:   path,
		url:    url,
		client: &http.Client{Timeout: timeout},
		logger: logger,
	}
}

// Get returns the cached document, fetching and persisting it on a miss.
// Fetched bytes must decode as GeoJSON before they are cached.
func (s *Store) Get(ctx context.Context) ([]byte, error) {
	data, err := os.ReadFile(s.path)
	if err == nil {
		return data, nil
	}
	if !os.IsNotExist(err) {
		return nil, fmt.Errorf("read geojson: %w", err)
	}
	if s.url == "" {
		return nil, ErrNotFound
	}

	data, err = s.fetch(ctx)
	if err != nil {
		return nil, err
	}
	if _, err := decodeGeometries(data); err != nil {
		return nil, err
	}

	if err := fslock.WithLock(s.path, store.DefaultTimeout, func() error {
		return fslock.WriteFileAtomic(s.path, data)
	}); err != nil {
		s.logger.Warn("failed to cache geojson", "path", s.path, "error", err)
	}
	return data, nil
}

// MD5 returns the lowercase hex digest of the cached document, fetching
// it first when absent. Served as the ETag.
func (s *Store) MD5(ctx context.Context) (string, error) {
	data, err := s.Get(ctx)
	if err != nil {
		return "", err
	}
	return store.MD5Hex(data), nil
}

func (s *Store) fetch(ctx context.Context) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", "Tile Server")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNoContent || resp.StatusCode == http.StatusNotFound {
		return nil, ErrNotFound
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("upstream %s returned status %d", s.url, resp.StatusCode)
	}
	return io.ReadAll(resp.Body)
}

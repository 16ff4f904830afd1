package config

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/MeKo-Tech/tilebank/internal/metadata"
	"github.com/MeKo-Tech/tilebank/internal/store"
	"github.com/MeKo-Tech/tilebank/internal/store/mbtiles"
	"github.com/MeKo-Tech/tilebank/internal/store/postgres"
	"github.com/MeKo-Tech/tilebank/internal/store/xyz"
)

// OpenStore dispatches a descriptor to its backend implementation.
// postgresURI is consulted only for the postgres kind.
func OpenStore(ctx context.Context, desc store.Descriptor, postgresURI string) (store.Store, error) {
	switch desc.Kind {
	case store.KindXYZ:
		return xyz.Open(desc)
	case store.KindMBTiles:
		return mbtiles.Open(desc)
	case store.KindPostgres:
		if postgresURI == "" {
			return nil, fmt.Errorf("%w: POSTGRESQL_BASE_URI not set for store %s", ErrConfig, desc.ID)
		}
		return postgres.Open(ctx, desc, postgresURI)
	default:
		return nil, fmt.Errorf("%w: unknown backend %q", ErrConfig, desc.Kind)
	}
}

// Descriptor builds the store descriptor for a cache entry under the
// layout.
func (e CacheEntry) Descriptor(layout Layout) store.Descriptor {
	desc := store.Descriptor{
		ID:               e.ID,
		Kind:             store.Kind(e.Backend),
		Format:           e.Format,
		Writable:         true,
		StoreMD5:         e.StoreMD5,
		StoreTransparent: e.StoreTransparent,
		SourceURL:        e.URL,
		StoreCache:       e.StoreCache,
		Timeout:          time.Duration(e.TimeoutMS) * time.Millisecond,
	}
	switch desc.Kind {
	case store.KindXYZ:
		desc.Location = layout.CacheXYZPath(e.ID)
	case store.KindMBTiles:
		desc.Location = layout.CacheMBTilesPath(e.ID)
	case store.KindPostgres:
		desc.Location = e.ID
	}
	return desc
}

// Repository holds the open stores keyed by id. It is built once at
// startup and read-only afterwards; seed and cleanup mutate backend state
// only, never this map.
type Repository struct {
	stores map[string]store.Store
	logger *slog.Logger
}

// OpenRepository opens every cache entry from config.json plus the
// read-only imports discovered under mbtiles/ and xyzs/. A store that
// fails to open or carries invalid metadata is excluded and logged, not
// fatal for the repository.
func OpenRepository(ctx context.Context, layout Layout, cfg *Config, postgresURI string, logger *slog.Logger) (*Repository, error) {
	r := &Repository{
		stores: make(map[string]store.Store),
		logger: logger,
	}

	for _, entry := range cfg.Caches {
		r.admit(ctx, entry.Descriptor(layout), postgresURI)
	}

	for _, desc := range discoverImports(layout, logger) {
		if _, taken := r.stores[desc.ID]; taken {
			logger.Warn("import shadowed by cache entry", "id", desc.ID)
			continue
		}
		r.admit(ctx, desc, postgresURI)
	}

	return r, nil
}

// admit opens and validates one store, excluding it on failure.
func (r *Repository) admit(ctx context.Context, desc store.Descriptor, postgresURI string) {
	s, err := OpenStore(ctx, desc, postgresURI)
	if err != nil {
		r.logger.Error("excluding store", "id", desc.ID, "error", err)
		return
	}

	info, err := s.Info(ctx)
	if err == nil {
		err = info.Validate()
	}
	if err != nil {
		r.logger.Error("excluding store with invalid metadata", "id", desc.ID, "error", err)
		_ = s.Close()
		return
	}

	r.stores[desc.ID] = s
	r.logger.Info("opened store", "id", desc.ID, "backend", string(desc.Kind), "writable", desc.Writable)
}

// discoverImports lists read-only stores from the directory layout.
func discoverImports(layout Layout, logger *slog.Logger) []store.Descriptor {
	var descs []store.Descriptor

	entries, err := os.ReadDir(layout.MBTilesDir())
	if err != nil && !os.IsNotExist(err) {
		logger.Warn("cannot list mbtiles imports", "error", err)
	}
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".mbtiles") {
			continue
		}
		id := strings.TrimSuffix(entry.Name(), ".mbtiles")
		descs = append(descs, store.Descriptor{
			ID:       id,
			Kind:     store.KindMBTiles,
			Location: filepath.Join(layout.MBTilesDir(), entry.Name()),
		})
	}

	entries, err = os.ReadDir(layout.XYZDir())
	if err != nil && !os.IsNotExist(err) {
		logger.Warn("cannot list xyz imports", "error", err)
	}
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		descs = append(descs, store.Descriptor{
			ID:       entry.Name(),
			Kind:     store.KindXYZ,
			Location: filepath.Join(layout.XYZDir(), entry.Name()),
		})
	}

	return descs
}

// Get returns the open store for id.
func (r *Repository) Get(id string) (store.Store, bool) {
	s, ok := r.stores[id]
	return s, ok
}

// IDs returns the sorted store ids.
func (r *Repository) IDs() []string {
	ids := make([]string, 0, len(r.stores))
	for id := range r.stores {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Infos returns the TileJSON of every store keyed by id.
func (r *Repository) Infos(ctx context.Context) map[string]metadata.Metadata {
	out := make(map[string]metadata.Metadata, len(r.stores))
	for id, s := range r.stores {
		info, err := s.Info(ctx)
		if err != nil {
			r.logger.Warn("skipping store info", "id", id, "error", err)
			continue
		}
		out[id] = info
	}
	return out
}

// Close closes every open store.
func (r *Repository) Close() {
	for id, s := range r.stores {
		if err := s.Close(); err != nil {
			r.logger.Warn("closing store", "id", id, "error", err)
		}
	}
}

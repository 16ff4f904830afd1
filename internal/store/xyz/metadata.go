package xyz

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/MeKo-Tech/tilebank/internal/fslock"
	"github.com/MeKo-Tech/tilebank/internal/metadata"
	"github.com/MeKo-Tech/tilebank/internal/store"
	"github.com/MeKo-Tech/tilebank/internal/tile"
)

const metadataFile = "metadata.json"

// layerScanConcurrency bounds the parallel PBF decode during vector layer
// derivation.
const layerScanConcurrency = 100

var numericName = regexp.MustCompile(`^\d+$`)

func (s *Store) metadataPath() string {
	return filepath.Join(s.root, metadataFile)
}

func (s *Store) readMetadata() (metadata.Metadata, error) {
	data, err := os.ReadFile(s.metadataPath())
	if err != nil {
		if os.IsNotExist(err) {
			return metadata.New(), nil
		}
		return nil, fmt.Errorf("read metadata: %w", err)
	}
	var m metadata.Metadata
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("%w: decode metadata.json: %v", store.ErrCorrupt, err)
	}
	return m, nil
}

// PutMetadata merges keys into metadata.json under the same lock-file
// discipline as tile writes.
func (s *Store) PutMetadata(_ context.Context, merge metadata.Metadata) error {
	if !s.desc.Writable {
		return store.ErrNotWritable
	}

	path := s.metadataPath()
	return fslock.WithLock(path, s.desc.OperationTimeout(), func() error {
		current, err := s.readMetadata()
		if err != nil {
			return err
		}
		current.Merge(merge)
		current.CanonicalizeScheme(tile.SchemeXYZ)

		encoded, err := json.MarshalIndent(current, "", "  ")
		if err != nil {
			return fmt.Errorf("encode metadata: %w", err)
		}
		return fslock.WriteFileAtomic(path, encoded)
	})
}

// Info layers defaults, metadata.json and values derived from the tree,
// in that order, then computes the center when missing.
func (s *Store) Info(ctx context.Context) (metadata.Metadata, error) {
	persisted, err := s.readMetadata()
	if err != nil {
		return nil, err
	}

	m := metadata.New()
	m.Merge(persisted)
	if m.String(metadata.KeyName) == "" {
		m[metadata.KeyName] = s.desc.ID
	}

	derived, err := s.deriveFromTree(ctx, m)
	if err != nil {
		return nil, err
	}
	for k, v := range derived {
		if _, ok := m[k]; !ok {
			m[k] = v
		}
	}

	m.ApplyDefaults()
	m.FinalizeCenter()
	m.CanonicalizeScheme(tile.SchemeXYZ)
	return m, nil
}

// deriveFromTree fills keys still missing after the persisted layer by
// inspecting the directory tree: zoom range from directory names, format
// from a leaf extension, bounds from the union of per-zoom tile ranges and
// vector layers from decoding PBF payloads.
func (s *Store) deriveFromTree(ctx context.Context, m metadata.Metadata) (metadata.Metadata, error) {
	_, hasMin := m.Int(metadata.KeyMinZoom)
	_, hasMax := m.Int(metadata.KeyMaxZoom)
	_, hasBounds := m.Bounds()
	hasFormat := m.String(metadata.KeyFormat) != ""
	needLayers := m[metadata.KeyVectorLayers] == nil

	derived := metadata.New()
	if hasMin && hasMax && hasBounds && hasFormat && !needLayers {
		return derived, nil
	}

	zooms, err := s.zoomLevels()
	if err != nil || len(zooms) == 0 {
		return derived, err
	}

	minZoom, maxZoom := zooms[0], zooms[0]
	var union *tile.BBox
	var leafExt string

	for _, z := range zooms {
		if z < minZoom {
			minZoom = z
		}
		if z > maxZoom {
			maxZoom = z
		}
		r, ext, ok, err := s.zoomRange(z)
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}
		if leafExt == "" {
			leafExt = ext
		}
		bbox := tile.BBoxFromRange(r, tile.SchemeXYZ)
		if union == nil {
			union = &bbox
		} else {
			union[0] = min(union[0], bbox[0])
			union[1] = min(union[1], bbox[1])
			union[2] = max(union[2], bbox[2])
			union[3] = max(union[3], bbox[3])
		}
	}

	if !hasMin {
		derived[metadata.KeyMinZoom] = minZoom
	}
	if !hasMax {
		derived[metadata.KeyMaxZoom] = maxZoom
	}
	if !hasBounds && union != nil {
		derived[metadata.KeyBounds] = []float64{union[0], union[1], union[2], union[3]}
	}
	if !hasFormat && leafExt != "" {
		derived[metadata.KeyFormat] = leafExt
	}

	effectiveFormat := m.String(metadata.KeyFormat)
	if effectiveFormat == "" {
		effectiveFormat = leafExt
	}
	if needLayers && effectiveFormat == "pbf" {
		names, err := s.scanVectorLayers(ctx)
		if err != nil {
			return nil, err
		}
		if len(names) > 0 {
			derived[metadata.KeyVectorLayers] = metadata.VectorLayers(names)
		}
	}

	return derived, nil
}

func (s *Store) zoomLevels() ([]int, error) {
	entries, err := os.ReadDir(s.root)
	if err != nil {
		return nil, fmt.Errorf("read store root: %w", err)
	}
	var zooms []int
	for _, e := range entries {
		if !e.IsDir() || !numericName.MatchString(e.Name()) {
			continue
		}
		z, err := strconv.Atoi(e.Name())
		if err != nil || z > tile.MaxZoom {
			continue
		}
		zooms = append(zooms, z)
	}
	return zooms, nil
}

// zoomRange returns the rectangle of tiles present at a zoom level and the
// extension of one leaf file.
func (s *Store) zoomRange(z int) (tile.Range, string, bool, error) {
	zoomDir := filepath.Join(s.root, strconv.Itoa(z))
	xDirs, err := os.ReadDir(zoomDir)
	if err != nil {
		return tile.Range{}, "", false, fmt.Errorf("read zoom directory: %w", err)
	}

	r := tile.Range{Z: z, MinX: -1, MinY: -1}
	var ext string
	for _, xd := range xDirs {
		if !xd.IsDir() || !numericName.MatchString(xd.Name()) {
			continue
		}
		x, _ := strconv.Atoi(xd.Name())

		files, err := os.ReadDir(filepath.Join(zoomDir, xd.Name()))
		if err != nil {
			return tile.Range{}, "", false, fmt.Errorf("read column directory: %w", err)
		}
		colHasTiles := false
		for _, f := range files {
			if f.IsDir() {
				continue
			}
			name := f.Name()
			dot := strings.LastIndexByte(name, '.')
			if dot <= 0 || strings.HasSuffix(name, ".lock") || strings.HasSuffix(name, ".tmp") {
				continue
			}
			y, err := strconv.Atoi(name[:dot])
			if err != nil {
				continue
			}
			colHasTiles = true
			if ext == "" {
				ext = name[dot+1:]
			}
			if r.MinY == -1 || y < r.MinY {
				r.MinY = y
			}
			if y > r.MaxY {
				r.MaxY = y
			}
		}
		if colHasTiles {
			if r.MinX == -1 || x < r.MinX {
				r.MinX = x
			}
			if x > r.MaxX {
				r.MaxX = x
			}
		}
	}

	if r.MinX == -1 || r.MinY == -1 {
		return tile.Range{}, "", false, nil
	}
	return r, ext, true, nil
}

// scanVectorLayers decodes every PBF leaf under the root with bounded
// concurrency and unions the layer names. Undecodable tiles are skipped.
func (s *Store) scanVectorLayers(ctx context.Context) ([]string, error) {
	var paths []string
	err := filepath.WalkDir(s.root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() && strings.HasSuffix(path, ".pbf") {
			paths = append(paths, path)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk store: %w", err)
	}

	var mu sync.Mutex
	seen := make(map[string]struct{})

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(layerScanConcurrency)
	for _, path := range paths {
		g.Go(func() error {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			data, err := os.ReadFile(path)
			if err != nil {
				return nil
			}
			names, err := metadata.LayerNames(data)
			if err != nil {
				return nil
			}
			mu.Lock()
			for _, n := range names {
				seen[n] = struct{}{}
			}
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	names := make([]string, 0, len(seen))
	for n := range seen {
		names = append(names, n)
	}
	return metadata.MergeLayerNames(names), nil
}

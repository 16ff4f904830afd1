package config

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MeKo-Tech/tilebank/internal/store"
	"github.com/MeKo-Tech/tilebank/internal/tile"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func TestLayoutPaths(t *testing.T) {
	l := Layout{DataDir: "/data"}
	assert.Equal(t, filepath.Join("/data", "config.json"), l.ConfigPath())
	assert.Equal(t, filepath.Join("/data", "mbtiles", "osm.mbtiles"), l.MBTilesPath("osm"))
	assert.Equal(t, filepath.Join("/data", "caches", "xyzs", "osm"), l.CacheXYZPath("osm"))
	assert.Equal(t, filepath.Join("/data", "caches", "mbtiles", "osm", "osm.mbtiles"), l.CacheMBTilesPath("osm"))
	assert.Equal(t, filepath.Join("/data", "caches", "geojsons", "rivers", "rivers.geojson"), l.CacheGeoJSONPath("rivers"))
	assert.Equal(t, filepath.Join("/data", "caches", "styles", "base", "style.json"), l.StylePath("base"))
	assert.Equal(t, filepath.Join("/data", "fonts", "Open Sans"), l.FontDir("Open Sans"))
}

func TestLoadConfigMissingFile(t *testing.T) {
	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "config.json"))
	require.NoError(t, err)
	assert.Empty(t, cfg.Caches)
}

func TestLoadConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	writeFile(t, path, `{
		"caches": [
			{"id": "osm", "backend": "xyz", "format": "png",
			 "url": "https://up/{z}/{x}/{y}.png", "storeCache": true,
			 "storeMD5": true, "timeoutMs": 60000}
		]
	}`)

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	require.Len(t, cfg.Caches, 1)

	desc := cfg.Caches[0].Descriptor(Layout{DataDir: "/data"})
	assert.Equal(t, store.KindXYZ, desc.Kind)
	assert.Equal(t, filepath.Join("/data", "caches", "xyzs", "osm"), desc.Location)
	assert.True(t, desc.Writable)
	assert.True(t, desc.StoreCache)
	assert.Equal(t, time.Minute, desc.Timeout)
}

func TestLoadConfigRejectsInvalid(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"bad json", `{`},
		{"missing id", `{"caches": [{"backend": "xyz"}]}`},
		{"unknown backend", `{"caches": [{"id": "a", "backend": "ftp"}]}`},
		{"duplicate id", `{"caches": [{"id": "a", "backend": "xyz"}, {"id": "a", "backend": "mbtiles"}]}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "config.json")
			writeFile(t, path, tt.body)
			_, err := LoadConfig(path)
			assert.Error(t, err)
		})
	}
}

func TestLoadSeed(t *testing.T) {
	path := filepath.Join(t.TempDir(), "seed.json")
	writeFile(t, path, `{
		"cache1": {
			"backend": "xyz",
			"url": "https://up/{z}/{x}/{y}.png",
			"bboxs": [[105, 10, 106, 11]],
			"zooms": [8],
			"concurrency": 4,
			"maxTry": 3,
			"refreshBefore": {"md5": true},
			"metadataAdds": {"attribution": "test"}
		}
	}`)

	seeds, err := LoadSeed(path)
	require.NoError(t, err)
	entry, ok := seeds["cache1"]
	require.True(t, ok)
	assert.Equal(t, tile.BBox{105, 10, 106, 11}, entry.BBoxs[0])
	assert.True(t, entry.RefreshBefore.MD5)
	assert.Equal(t, "test", entry.MetadataAdds["attribution"])
}

func TestLoadSeedRejectsInvalid(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"no url", `{"a": {"bboxs": [[0,0,1,1]], "zooms": [3]}}`},
		{"no bboxs", `{"a": {"url": "u", "zooms": [3]}}`},
		{"bad bbox", `{"a": {"url": "u", "bboxs": [[1,1,0,0]], "zooms": [3]}}`},
		{"no zooms", `{"a": {"url": "u", "bboxs": [[0,0,1,1]]}}`},
		{"zoom range", `{"a": {"url": "u", "bboxs": [[0,0,1,1]], "zooms": [23]}}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "seed.json")
			writeFile(t, path, tt.body)
			_, err := LoadSeed(path)
			assert.Error(t, err)
		})
	}
}

func TestRefreshBeforeCutoff(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

	cutoff, ok := RefreshBefore{Timestamp: 1700000000000}.Cutoff(now)
	assert.True(t, ok)
	assert.Equal(t, int64(1700000000000), cutoff)

	cutoff, ok = RefreshBefore{Day: 30}.Cutoff(now)
	assert.True(t, ok)
	assert.Equal(t, now.AddDate(0, 0, -30).UnixMilli(), cutoff)

	_, ok = RefreshBefore{MD5: true}.Cutoff(now)
	assert.False(t, ok)

	_, ok = RefreshBefore{}.Cutoff(now)
	assert.False(t, ok)
}

func TestOpenRepository(t *testing.T) {
	dataDir := t.TempDir()
	layout := Layout{DataDir: dataDir}
	logger := slog.New(slog.DiscardHandler)

	// Read-only XYZ import with one tile.
	writeFile(t, filepath.Join(layout.XYZPath("base"), "3", "4", "2.png"), "not-a-real-png")

	cfg := &Config{Caches: []CacheEntry{{
		ID:      "osm",
		Backend: "xyz",
		Format:  "png",
	}}}

	repo, err := OpenRepository(context.Background(), layout, cfg, "", logger)
	require.NoError(t, err)
	defer repo.Close()

	assert.Equal(t, []string{"base", "osm"}, repo.IDs())

	s, ok := repo.Get("base")
	require.True(t, ok)
	assert.False(t, s.Descriptor().Writable)

	s, ok = repo.Get("osm")
	require.True(t, ok)
	assert.True(t, s.Descriptor().Writable)

	infos := repo.Infos(context.Background())
	assert.Len(t, infos, 2)
}

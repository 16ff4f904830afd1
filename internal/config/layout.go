// Package config loads the data-directory documents and opens the
// repository of tile stores described by them.
package config

import "path/filepath"

// Layout resolves the conventional paths under the data directory.
//
//	DATA_DIR/
//	  config.json  seed.json  cleanup.json
//	  mbtiles/<id>.mbtiles         read-only imports
//	  xyzs/<id>/                   read-only imports
//	  caches/mbtiles/<id>/<id>.mbtiles
//	  caches/xyzs/<id>/
//	  caches/geojsons/<id>/<id>.geojson
//	  caches/styles/<id>/style.json
//	  fonts/<stack>/<range>.pbf
//	  sprites/<id>/
type Layout struct {
	DataDir string
}

func (l Layout) ConfigPath() string  { return filepath.Join(l.DataDir, "config.json") }
func (l Layout) SeedPath() string    { return filepath.Join(l.DataDir, "seed.json") }
func (l Layout) CleanupPath() string { return filepath.Join(l.DataDir, "cleanup.json") }

func (l Layout) MBTilesDir() string { return filepath.Join(l.DataDir, "mbtiles") }
func (l Layout) XYZDir() string     { return filepath.Join(l.DataDir, "xyzs") }

func (l Layout) MBTilesPath(id string) string {
	return filepath.Join(l.MBTilesDir(), id+".mbtiles")
}

func (l Layout) XYZPath(id string) string {
	return filepath.Join(l.XYZDir(), id)
}

func (l Layout) CacheMBTilesPath(id string) string {
	return filepath.Join(l.DataDir, "caches", "mbtiles", id, id+".mbtiles")
}

func (l Layout) CacheXYZPath(id string) string {
	return filepath.Join(l.DataDir, "caches", "xyzs", id)
}

func (l Layout) CacheGeoJSONPath(id string) string {
	return filepath.Join(l.DataDir, "caches", "geojsons", id, id+".geojson")
}

func (l Layout) StylePath(id string) string {
	return filepath.Join(l.DataDir, "caches", "styles", id, "style.json")
}

func (l Layout) StylesDir() string  { return filepath.Join(l.DataDir, "caches", "styles") }
func (l Layout) FontsDir() string   { return filepath.Join(l.DataDir, "fonts") }
func (l Layout) SpritesDir() string { return filepath.Join(l.DataDir, "sprites") }

func (l Layout) SpriteDir(id string) string {
	return filepath.Join(l.SpritesDir(), id)
}

func (l Layout) FontDir(stack string) string {
	return filepath.Join(l.FontsDir(), stack)
}

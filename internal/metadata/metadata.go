// Package metadata models TileJSON metadata for tile stores: parsing,
// merging, synthesis of missing keys and validation.
package metadata

import (
	"math"

	"github.com/MeKo-Tech/tilebank/internal/tile"
)

// Metadata is a TileJSON-style key/value document. Unrecognized keys (such
// as tilestats) pass through untouched.
type Metadata map[string]any

// Recognized keys.
const (
	KeyName         = "name"
	KeyDescription  = "description"
	KeyAttribution  = "attribution"
	KeyVersion      = "version"
	KeyType         = "type"
	KeyFormat       = "format"
	KeyMinZoom      = "minzoom"
	KeyMaxZoom      = "maxzoom"
	KeyBounds       = "bounds"
	KeyCenter       = "center"
	KeyVectorLayers = "vector_layers"
	KeyTileJSON     = "tilejson"
	KeyScheme       = "scheme"
	KeyJSON         = "json"
)

// New returns an empty metadata document.
func New() Metadata {
	return Metadata{}
}

// Clone returns a shallow copy.
func (m Metadata) Clone() Metadata {
	out := make(Metadata, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// Merge copies all keys of other into m, overwriting existing values.
// Keys absent from other are preserved.
func (m Metadata) Merge(other Metadata) {
	for k, v := range other {
		m[k] = v
	}
}

// String returns the string value of a key, or "" when absent.
func (m Metadata) String(key string) string {
	if s, ok := m[key].(string); ok {
		return s
	}
	return ""
}

// Int returns the integer value of a key. Metadata decoded from JSON holds
// float64 numbers, so both forms are accepted.
func (m Metadata) Int(key string) (int, bool) {
	switch v := m[key].(type) {
	case int:
		return v, true
	case float64:
		return int(v), true
	}
	return 0, false
}

// Bounds returns the bounds value when present and well formed.
func (m Metadata) Bounds() (tile.BBox, bool) {
	return floats4(m[KeyBounds])
}

// Center returns the center value when present and well formed.
func (m Metadata) Center() ([3]float64, bool) {
	v, ok := m[KeyCenter]
	if !ok {
		return [3]float64{}, false
	}
	fs, ok := floatSlice(v)
	if !ok || len(fs) != 3 {
		return [3]float64{}, false
	}
	return [3]float64{fs[0], fs[1], fs[2]}, true
}

// ApplyDefaults fills the defaults layer of the synthesis order: values
// already present are never overwritten.
func (m Metadata) ApplyDefaults() {
	defaults := Metadata{
		KeyType:     "overlay",
		KeyFormat:   "png",
		KeyBounds:   []float64{-180, -tile.MaxLatitude, 180, tile.MaxLatitude},
		KeyMinZoom:  0,
		KeyMaxZoom:  tile.MaxZoom,
		KeyTileJSON: "2.2.0",
	}
	for k, v := range defaults {
		if _, ok := m[k]; !ok {
			m[k] = v
		}
	}
}

// FinalizeCenter derives the center from bounds and zoom range when absent:
// the bbox midpoint at the floor midpoint of min/max zoom.
func (m Metadata) FinalizeCenter() {
	if _, ok := m.Center(); ok {
		return
	}
	bounds, ok := m.Bounds()
	if !ok {
		return
	}
	minZoom, _ := m.Int(KeyMinZoom)
	maxZoom, ok := m.Int(KeyMaxZoom)
	if !ok {
		maxZoom = tile.MaxZoom
	}
	m[KeyCenter] = []float64{
		(bounds[0] + bounds[2]) / 2,
		(bounds[1] + bounds[3]) / 2,
		math.Floor(float64(minZoom+maxZoom) / 2),
	}
}

// CanonicalizeScheme forces the documented per-backend scheme.
func (m Metadata) CanonicalizeScheme(scheme tile.Scheme) {
	m[KeyScheme] = string(scheme)
}

func floats4(v any) (tile.BBox, bool) {
	fs, ok := floatSlice(v)
	if !ok || len(fs) != 4 {
		return tile.BBox{}, false
	}
	return tile.BBox{fs[0], fs[1], fs[2], fs[3]}, true
}

func floatSlice(v any) ([]float64, bool) {
	switch vv := v.(type) {
	case []float64:
		return vv, true
	case tile.BBox:
		return vv[:], true
	case [4]float64:
		return vv[:], true
	case []any:
		out := make([]float64, 0, len(vv))
		for _, e := range vv {
			f, ok := e.(float64)
			if !ok {
				if i, isInt := e.(int); isInt {
					f = float64(i)
				} else {
					return nil, false
				}
			}
			out = append(out, f)
		}
		return out, true
	}
	return nil, false
}

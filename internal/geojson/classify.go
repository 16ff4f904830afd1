// Package geojson caches GeoJSON documents and classifies their
// geometries into the three style buckets used for layer styling.
package geojson

import (
	"errors"
	"fmt"
	"sort"

	"github.com/paulmach/orb"
	geo "github.com/paulmach/orb/geojson"
)

// Bucket is a style bucket for a geometry type.
type Bucket string

const (
	BucketPolygon Bucket = "polygon"
	BucketLine    Bucket = "line"
	BucketCircle  Bucket = "circle"
)

// ErrDecode reports a document that is not valid GeoJSON.
var ErrDecode = errors.New("invalid geojson")

// ClassifyGeometry maps a geometry to its style bucket. Collections are
// not classified directly; expand them first.
func ClassifyGeometry(g orb.Geometry) (Bucket, bool) {
	switch g.(type) {
	case orb.Polygon, orb.MultiPolygon:
		return BucketPolygon, true
	case orb.LineString, orb.MultiLineString:
		return BucketLine, true
	case orb.Point, orb.MultiPoint:
		return BucketCircle, true
	}
	return "", false
}

// Buckets decodes a GeoJSON document (FeatureCollection, Feature,
// Geometry or GeometryCollection) and returns the sorted set of style
// buckets its geometries fall into.
func Buckets(data []byte) ([]Bucket, error) {
	geometries, err := decodeGeometries(data)
	if err != nil {
		return nil, err
	}

	seen := make(map[Bucket]struct{})
	var walk func(g orb.Geometry)
	walk = func(g orb.Geometry) {
		if coll, ok := g.(orb.Collection); ok {
			for _, child := range coll {
				walk(child)
			}
			return
		}
		if bucket, ok := ClassifyGeometry(g); ok {
			seen[bucket] = struct{}{}
		}
	}
	for _, g := range geometries {
		walk(g)
	}

	buckets := make([]Bucket, 0, len(seen))
	for b := range seen {
		buckets = append(buckets, b)
	}
	sort.Slice(buckets, func(i, j int) bool { return buckets[i] < buckets[j] })
	return buckets, nil
}

// decodeGeometries accepts the four top-level GeoJSON document shapes.
func decodeGeometries(data []byte) ([]orb.Geometry, error) {
	if fc, err := geo.UnmarshalFeatureCollection(data); err == nil {
		out := make([]orb.Geometry, 0, len(fc.Features))
		for _, f := range fc.Features {
			if f.Geometry != nil {
				out = append(out, f.Geometry)
			}
		}
		return out, nil
	}
	if f, err := geo.UnmarshalFeature(data); err == nil {
		if f.Geometry == nil {
			return nil, nil
		}
		return []orb.Geometry{f.Geometry}, nil
	}
	if g, err := geo.UnmarshalGeometry(data); err == nil {
		return []orb.Geometry{g.Geometry()}, nil
	}
	return nil, fmt.Errorf("%w: not a feature collection, feature or geometry", ErrDecode)
}

package tile

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRangesFromBBox(t *testing.T) {
	bbox := BBox{105, 10, 106, 11}
	ranges := RangesFromBBox(bbox, []int{8}, SchemeXYZ)
	require.Len(t, ranges, 1)

	r := ranges[0]
	assert.Equal(t, 8, r.Z)
	assert.LessOrEqual(t, r.MinX, r.MaxX)
	assert.LessOrEqual(t, r.MinY, r.MaxY)

	// Every corner of the bbox must fall inside the range.
	for _, pt := range [][2]float64{{105, 10}, {106, 10}, {105, 11}, {106, 11}} {
		c := FromLonLat(pt[0], pt[1], 8, SchemeXYZ)
		assert.GreaterOrEqual(t, c.X, r.MinX)
		assert.LessOrEqual(t, c.X, r.MaxX)
		assert.GreaterOrEqual(t, c.Y, r.MinY)
		assert.LessOrEqual(t, c.Y, r.MaxY)
	}
}

func TestRangeCountMatchesForEach(t *testing.T) {
	ranges := RangesFromBBox(BBox{9.6, 52.2, 9.9, 52.5}, []int{10, 11, 12}, SchemeXYZ)
	require.Len(t, ranges, 3)

	total := 0
	visited := 0
	for _, r := range ranges {
		total += r.Count()
		r.ForEach(func(c Coords) bool {
			assert.Equal(t, r.Z, c.Z)
			assert.True(t, c.Valid())
			visited++
			return true
		})
	}
	assert.Equal(t, total, visited)
	assert.Equal(t, total, CountTiles(BBox{9.6, 52.2, 9.9, 52.5}, []int{10, 11, 12}, SchemeXYZ))
}

func TestForEachEarlyStop(t *testing.T) {
	r := Range{Z: 4, MinX: 0, MaxX: 3, MinY: 0, MaxY: 3}
	seen := 0
	r.ForEach(func(Coords) bool {
		seen++
		return seen < 5
	})
	assert.Equal(t, 5, seen)
}

func TestBBoxFromRangeEnclosesTiles(t *testing.T) {
	r := Range{Z: 8, MinX: 202, MaxX: 203, MinY: 120, MaxY: 121}
	bbox := BBoxFromRange(r, SchemeXYZ)
	require.True(t, bbox.Valid())

	// Round-tripping the bbox through RangesFromBBox must cover the
	// original range (corner points can land on neighbours, never inside).
	rt := RangesFromBBox(bbox, []int{8}, SchemeXYZ)[0]
	assert.LessOrEqual(t, rt.MinX, r.MinX)
	assert.GreaterOrEqual(t, rt.MaxX, r.MaxX)
	assert.LessOrEqual(t, rt.MinY, r.MinY)
	assert.GreaterOrEqual(t, rt.MaxY, r.MaxY)
}

func TestBBoxValid(t *testing.T) {
	assert.True(t, BBox{-180, -85, 180, 85}.Valid())
	assert.False(t, BBox{10, 10, 5, 20}.Valid())
	assert.False(t, BBox{-181, 0, 0, 10}.Valid())
	assert.False(t, BBox{0, 0, 10, 91}.Valid())
}
